package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"stockbt/backtest"
)

const defaultKLineURL = "https://push2his.eastmoney.com/api/qt/stock/kline/get"

// KLineFetcher 日K线拉取器，结果直接转换为回测用的 Bar
type KLineFetcher struct {
	client  *http.Client
	baseURL string
}

// NewKLineFetcher 创建K线数据拉取器
func NewKLineFetcher() *KLineFetcher {
	return &KLineFetcher{
		client:  &http.Client{Timeout: 15 * time.Second},
		baseURL: defaultKLineURL,
	}
}

// WithBaseURL 替换接口地址（测试用）
func (f *KLineFetcher) WithBaseURL(u string) *KLineFetcher {
	f.baseURL = u
	return f
}

// secID 转换代码格式: sh600000 -> 1.600000, sz000001 -> 0.000001
func secID(code string) (string, error) {
	code = strings.ToLower(strings.TrimSpace(code))
	if len(code) <= 2 {
		return "", fmt.Errorf("股票代码格式错误: %s", code)
	}
	switch code[:2] {
	case "sh":
		return "1." + code[2:], nil
	case "sz":
		return "0." + code[2:], nil
	default:
		return "", fmt.Errorf("未知的股票代码格式: %s", code)
	}
}

// FetchDailyBars 获取股票前复权日K线
// code: 股票代码（如 sh600000, sz000001）
// days: 获取天数
func (f *KLineFetcher) FetchDailyBars(ctx context.Context, code string, days int) ([]backtest.Bar, error) {
	id, err := secID(code)
	if err != nil {
		return nil, err
	}
	if days <= 0 {
		days = 500
	}

	url := fmt.Sprintf(
		"%s?secid=%s&fields1=f1,f2,f3,f4,f5,f6&fields2=f51,f52,f53,f54,f55,f56,f57&klt=101&fqt=1&end=20500101&lmt=%d",
		f.baseURL, id, days,
	)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")
	req.Header.Set("Referer", "https://quote.eastmoney.com/")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("kline http %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return parseKLineBody(body)
}

// parseKLineBody 解析东方财富K线响应
func parseKLineBody(data []byte) ([]backtest.Bar, error) {
	var result struct {
		Data *struct {
			Klines []string `json:"klines"`
		} `json:"data"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, err
	}
	if result.Data == nil {
		return nil, fmt.Errorf("kline response has no data")
	}

	bars := make([]backtest.Bar, 0, len(result.Data.Klines))
	for _, line := range result.Data.Klines {
		// 格式: 日期,开盘,收盘,最高,最低,成交量,成交额
		parts := strings.Split(line, ",")
		if len(parts) < 6 {
			continue
		}
		d, err := time.ParseInLocation("2006-01-02", parts[0], time.Local)
		if err != nil {
			continue
		}
		open, _ := strconv.ParseFloat(parts[1], 64)
		close, _ := strconv.ParseFloat(parts[2], 64)
		high, _ := strconv.ParseFloat(parts[3], 64)
		low, _ := strconv.ParseFloat(parts[4], 64)
		volume, _ := strconv.ParseFloat(parts[5], 64)

		bars = append(bars, backtest.Bar{
			Date:   d,
			Open:   open,
			Close:  close,
			High:   high,
			Low:    low,
			Volume: volume,
		})
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
	return bars, nil
}
