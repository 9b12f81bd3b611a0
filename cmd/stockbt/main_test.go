package main

import "testing"

func TestShouldRouteToCtl(t *testing.T) {
	cases := []struct {
		args []string
		want bool
	}{
		{nil, false},
		{[]string{"-config", "config.yaml"}, false},
		{[]string{"-backtest", "-bt-config", "bt.yaml"}, true},
		{[]string{"--import", "prices.csv", "-name", "x"}, true},
		{[]string{"-fetch", "sh600000"}, true},
		{[]string{"-scan", "-scan-json"}, true},
	}
	for _, tc := range cases {
		if got := shouldRouteToCtl(tc.args); got != tc.want {
			t.Errorf("shouldRouteToCtl(%v) = %v, want %v", tc.args, got, tc.want)
		}
	}
}
