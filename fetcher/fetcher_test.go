package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"golang.org/x/text/encoding/simplifiedchinese"
)

func TestLoadCSVDateFormats(t *testing.T) {
	in := "Date,Open,High,Low,Close,Volume\n" +
		"2024/01/03,10,11,9,10.5,100\n" +
		"2024-01-02,9,10,8,9.5,200\n" +
		"2024-01-04 15:00:00,10.5,12,10,11,300\n"

	bars, err := LoadCSV(strings.NewReader(in), CSVOptions{})
	if err != nil {
		t.Fatalf("LoadCSV: %v", err)
	}
	if len(bars) != 3 {
		t.Fatalf("expected 3 bars, got %d", len(bars))
	}
	want := []string{"2024-01-02", "2024-01-03", "2024-01-04"}
	for i, b := range bars {
		if got := b.Date.Format("2006-01-02"); got != want[i] {
			t.Fatalf("bar %d date = %s, want %s", i, got, want[i])
		}
	}
	if bars[2].Date.Hour() != 0 {
		t.Fatalf("time of day not dropped: %v", bars[2].Date)
	}
	if bars[0].Close != 9.5 || bars[0].Volume != 200 {
		t.Fatalf("unexpected first bar: %#v", bars[0])
	}
}

func TestLoadCSVErrors(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"missing columns", "date,open,close\n2024-01-02,1,1\n", "high, low, volume"},
		{"bad date", "date,open,high,low,close,volume\n02.01.2024,1,1,1,1,1\n", "invalid date"},
		{"bad number", "date,open,high,low,close,volume\n2024-01-02,x,1,1,1,1\n", "invalid open"},
		{"bad ohlc", "date,open,high,low,close,volume\n2024-01-02,5,4,3,4,1\n", "OHLC"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadCSV(strings.NewReader(tc.in), CSVOptions{})
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}

	_, err := LoadCSV(strings.NewReader("date,open\n"), CSVOptions{})
	if !errors.Is(err, ErrMissingColumns) {
		t.Fatalf("expected ErrMissingColumns, got %v", err)
	}
}

func TestLoadCSVDuplicateDateKeepsLast(t *testing.T) {
	in := "date,open,high,low,close,volume\n" +
		"2024-01-02,1,2,1,1.5,10\n" +
		"2024-01-02,1,3,1,2.5,20\n"
	bars, err := LoadCSV(strings.NewReader(in), CSVOptions{})
	if err != nil {
		t.Fatalf("LoadCSV: %v", err)
	}
	if len(bars) != 1 || bars[0].Close != 2.5 {
		t.Fatalf("unexpected bars: %#v", bars)
	}
}

func TestLoadCSVGBK(t *testing.T) {
	utf8 := "日期备注,date,open,high,low,close,volume\n浦发银行,2024-01-02,10,11,9,10.5,100\n"
	gbk, err := simplifiedchinese.GBK.NewEncoder().String(utf8)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	bars, err := LoadCSV(strings.NewReader(gbk), CSVOptions{Encoding: "GBK"})
	if err != nil {
		t.Fatalf("LoadCSV: %v", err)
	}
	if len(bars) != 1 || bars[0].Close != 10.5 {
		t.Fatalf("unexpected bars: %#v", bars)
	}

	if _, err := LoadCSV(strings.NewReader(utf8), CSVOptions{Encoding: "latin1"}); err == nil {
		t.Fatalf("expected unsupported encoding error")
	}
}

func TestFetchDailyBars(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("secid"); got != "1.600000" {
			t.Errorf("secid = %q", got)
		}
		if got := r.URL.Query().Get("lmt"); got != "2" {
			t.Errorf("lmt = %q", got)
		}
		w.Write([]byte(`{"data":{"klines":["2024-01-03,10.1,10.4,10.6,10.0,12345,1.2e8","2024-01-02,10.0,10.1,10.2,9.9,10000,1.0e8","bad"]}}`))
	}))
	defer srv.Close()

	bars, err := NewKLineFetcher().WithBaseURL(srv.URL).FetchDailyBars(context.Background(), "SH600000", 2)
	if err != nil {
		t.Fatalf("FetchDailyBars: %v", err)
	}
	if len(bars) != 2 {
		t.Fatalf("expected 2 bars, got %d", len(bars))
	}
	if bars[0].Date.Format("2006-01-02") != "2024-01-02" || bars[1].Close != 10.4 || bars[1].High != 10.6 {
		t.Fatalf("unexpected bars: %#v", bars)
	}

	if _, err := NewKLineFetcher().FetchDailyBars(context.Background(), "hk00700", 1); err == nil {
		t.Fatalf("expected code format error")
	}
}
