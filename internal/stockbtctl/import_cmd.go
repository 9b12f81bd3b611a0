package stockbtctl

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"time"

	"stockbt/fetcher"
	"stockbt/store"
	"stockbt/trading"
)

func runImport(dbPath, csvPath, name, symbol, encoding string) (int64, error) {
	bars, err := fetcher.LoadCSVFile(csvPath, fetcher.CSVOptions{Encoding: encoding})
	if err != nil {
		return 0, err
	}

	st, err := store.Open(dbPath)
	if err != nil {
		return 0, err
	}
	defer st.Close()

	id, err := st.CreateDataSet(context.Background(), store.DataSet{
		Name:   name,
		Symbol: symbol,
		Source: "csv:" + filepath.Base(csvPath),
	}, bars)
	if err != nil {
		return 0, err
	}
	log.Printf("[IMPORT] %s -> data set %d (%d bars, %s ~ %s)\n",
		csvPath, id, len(bars), bars[0].Date.Format("2006-01-02"), bars[len(bars)-1].Date.Format("2006-01-02"))
	return id, nil
}

// runFetch 下载日K线并存为数据集; baseURL 为空时使用东方财富默认地址
func runFetch(dbPath, code, name string, days int, timeout time.Duration, baseURL string) (int64, error) {
	code = strings.ToLower(strings.TrimSpace(code))
	if name == "" {
		name = code
	}

	f := fetcher.NewKLineFetcher()
	if baseURL != "" {
		f = f.WithBaseURL(baseURL)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	bars, err := f.FetchDailyBars(ctx, code, days)
	if err != nil {
		return 0, err
	}
	now := time.Now()
	if trading.IsStockTradingTimeAt(now) {
		log.Printf("[WARN] 当前为交易时间，%s 当日K线尚未收盘\n", code)
	}
	if n := len(bars); n > 0 && !trading.DailyBarFinal(bars[n-1].Date, now) {
		log.Printf("[FETCH] %s 丢弃未收盘的 %s 日K\n", code, bars[n-1].Date.Format("2006-01-02"))
		bars = bars[:n-1]
	}
	if len(bars) == 0 {
		return 0, fmt.Errorf("%s: 未获取到K线数据", code)
	}

	st, err := store.Open(dbPath)
	if err != nil {
		return 0, err
	}
	defer st.Close()

	id, err := st.CreateDataSet(context.Background(), store.DataSet{
		Name:   name,
		Symbol: code,
		Source: "eastmoney",
	}, bars)
	if err != nil {
		return 0, err
	}
	log.Printf("[FETCH] %s -> data set %d (%d bars)\n", code, id, len(bars))
	return id, nil
}
