package main

import (
	"os"

	"stockbt/internal/stockbtctl"
	"stockbt/internal/stockbtd"
)

// Version is injected by build scripts via -ldflags "-X main.Version=..."
var Version = "dev"

func main() {
	args := os.Args[1:]
	if shouldRouteToCtl(args) {
		os.Exit(stockbtctl.Run(args))
	}
	os.Exit(stockbtd.Run(args))
}

func shouldRouteToCtl(args []string) bool {
	for _, a := range args {
		switch a {
		case "-backtest", "--backtest", "-scan", "--scan", "-import", "--import", "-fetch", "--fetch":
			return true
		}
	}
	return false
}
