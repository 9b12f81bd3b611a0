package fetcher

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/transform"

	"stockbt/backtest"
)

// RequiredColumns CSV 必需列
var RequiredColumns = []string{"date", "open", "high", "low", "close", "volume"}

// 支持的日期格式
var csvDateLayouts = []string{"2006-01-02", "2006/01/02", "2006-01-02 15:04:05"}

var ErrMissingColumns = errors.New("missing required columns")

// CSVOptions CSV 读取选项
type CSVOptions struct {
	// Encoding 为空或 utf-8 时原样读取；gbk / gb18030 时转码
	Encoding string
}

// LoadCSVFile 读取 OHLCV CSV 文件
func LoadCSVFile(path string, opt CSVOptions) ([]backtest.Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadCSV(f, opt)
}

// LoadCSV 解析 OHLCV 数据，按日期升序返回，同一日期保留最后一行
func LoadCSV(r io.Reader, opt CSVOptions) ([]backtest.Bar, error) {
	switch strings.ToLower(strings.TrimSpace(opt.Encoding)) {
	case "", "utf-8", "utf8":
	case "gbk":
		r = transform.NewReader(r, simplifiedchinese.GBK.NewDecoder())
	case "gb18030":
		r = transform.NewReader(r, simplifiedchinese.GB18030.NewDecoder())
	default:
		return nil, fmt.Errorf("unsupported encoding: %s", opt.Encoding)
	}

	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		cols[h] = i
	}
	var missing []string
	for _, c := range RequiredColumns {
		if _, ok := cols[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s (found: %s)", ErrMissingColumns, strings.Join(missing, ", "), strings.Join(header, ", "))
	}

	byDate := make(map[string]backtest.Bar)
	line := 1
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		d, err := parseCSVDate(field(rec, cols["date"]))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		var vals [5]float64
		for i, c := range RequiredColumns[1:] {
			v, err := strconv.ParseFloat(field(rec, cols[c]), 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid %s: %w", line, c, err)
			}
			vals[i] = v
		}
		b := backtest.Bar{Date: d, Open: vals[0], High: vals[1], Low: vals[2], Close: vals[3], Volume: vals[4]}
		if b.High < b.Low || b.High < b.Open || b.High < b.Close || b.Low > b.Open || b.Low > b.Close {
			return nil, fmt.Errorf("line %d: invalid OHLC relationship", line)
		}
		byDate[d.Format("2006-01-02")] = b
	}

	bars := make([]backtest.Bar, 0, len(byDate))
	for _, b := range byDate {
		bars = append(bars, b)
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
	return bars, nil
}

func field(rec []string, i int) string {
	if i < 0 || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

// parseCSVDate 只保留日期部分
func parseCSVDate(s string) (time.Time, error) {
	for _, layout := range csvDateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			y, m, d := t.Date()
			return time.Date(y, m, d, 0, 0, 0, 0, time.Local), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q, supported formats: YYYY-MM-DD, YYYY/MM/DD, YYYY-MM-DD HH:MM:SS", s)
}
