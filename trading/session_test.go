package trading

import (
	"testing"
	"time"
)

func TestIsStockTradingTimeAt(t *testing.T) {
	cases := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"morning session", time.Date(2024, 3, 4, 10, 0, 0, 0, cst), true},
		{"lunch break", time.Date(2024, 3, 4, 12, 0, 0, 0, cst), false},
		{"afternoon close", time.Date(2024, 3, 4, 15, 0, 0, 0, cst), true},
		{"after close", time.Date(2024, 3, 4, 15, 1, 0, 0, cst), false},
		{"saturday", time.Date(2024, 3, 2, 10, 0, 0, 0, cst), false},
		{"utc input", time.Date(2024, 3, 4, 2, 0, 0, 0, time.UTC), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsStockTradingTimeAt(tc.at); got != tc.want {
				t.Fatalf("IsStockTradingTimeAt(%v) = %v, want %v", tc.at, got, tc.want)
			}
		})
	}
}

func TestDailyBarFinal(t *testing.T) {
	day := time.Date(2024, 3, 4, 0, 0, 0, 0, time.Local)
	cases := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"next day", time.Date(2024, 3, 5, 9, 0, 0, 0, cst), true},
		{"same day intraday", time.Date(2024, 3, 4, 14, 59, 0, 0, cst), false},
		{"same day after close", time.Date(2024, 3, 4, 15, 0, 0, 0, cst), true},
		{"day before", time.Date(2024, 3, 3, 20, 0, 0, 0, cst), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := DailyBarFinal(day, tc.now); got != tc.want {
				t.Fatalf("DailyBarFinal = %v, want %v", got, tc.want)
			}
		})
	}
}
