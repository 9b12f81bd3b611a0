package stockbtctl

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"stockbt/config"
)

func Run(args []string) int {
	fs := flag.NewFlagSet("stockbtctl", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var (
		configPath string
		dbPath     string

		backtestMode   bool
		backtestConfig string
		backtestOut    string
		tradesCSV      string
		chartDir       string
		reportHTML     string

		scanMode bool
		scanOut  string
		scanJSON bool

		importPath string
		fetchCode  string
		fetchDays  int
		dsName     string
		dsSymbol   string
		encoding   string
		timeout    time.Duration
	)

	fs.StringVar(&configPath, "config", "", "服务配置文件路径(YAML格式)，用于确定数据库位置")
	fs.StringVar(&dbPath, "db", "", "SQLite 数据库路径（默认取配置 DB_PATH）")

	fs.BoolVar(&backtestMode, "backtest", false, "运行一次回测并退出")
	fs.StringVar(&backtestConfig, "bt-config", "backtest.yaml", "回测配置文件路径(YAML格式)")
	fs.StringVar(&backtestOut, "bt-out", "", "回测输出JSON文件路径(默认stdout)")
	fs.StringVar(&tradesCSV, "bt-trades-csv", "", "交易明细CSV输出路径")
	fs.StringVar(&chartDir, "bt-chart", "", "输出交易K线图与权益曲线(SVG)到目录")
	fs.StringVar(&reportHTML, "bt-report", "", "输出单文件HTML回测报告")

	fs.BoolVar(&scanMode, "scan", false, "检查最新一根日K的策略信号与持仓并退出（使用 -bt-config）")
	fs.StringVar(&scanOut, "scan-out", "", "扫描输出路径（默认stdout）")
	fs.BoolVar(&scanJSON, "scan-json", false, "扫描输出使用 JSON 格式（默认表格文本）")

	fs.StringVar(&importPath, "import", "", "导入CSV日线数据到数据库并退出")
	fs.StringVar(&fetchCode, "fetch", "", "从东方财富下载日K线(如 sh600000)导入数据库并退出")
	fs.IntVar(&fetchDays, "days", 500, "下载最近 N 根日K（配合 -fetch）")
	fs.StringVar(&dsName, "name", "", "数据集名称（-import 必填，-fetch 默认使用代码）")
	fs.StringVar(&dsSymbol, "symbol", "", "数据集对应的代码（可选）")
	fs.StringVar(&encoding, "encoding", "utf-8", "CSV 文件编码: utf-8 / gbk / gb18030")
	fs.DurationVar(&timeout, "timeout", 30*time.Second, "下载超时时间")

	if err := fs.Parse(args); err != nil {
		return 2
	}

	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)

	modes := 0
	for _, on := range []bool{backtestMode, scanMode, importPath != "", fetchCode != ""} {
		if on {
			modes++
		}
	}
	if modes > 1 {
		log.Printf("[ERROR] -backtest / -scan / -import / -fetch 只能选择一个\n")
		return 2
	}

	if backtestMode {
		opts := backtestOutputs{JSON: backtestOut, TradesCSV: tradesCSV, ChartDir: chartDir, ReportHTML: reportHTML}
		if err := runBacktest(backtestConfig, opts); err != nil {
			log.Printf("[ERROR] 回测失败: %v\n", err)
			return 1
		}
		return 0
	}

	if scanMode {
		if err := runScan(backtestConfig, scanOut, scanJSON); err != nil {
			log.Printf("[ERROR] 扫描失败: %v\n", err)
			return 1
		}
		return 0
	}

	if (importPath != "" || fetchCode != "") && dbPath == "" {
		dbPath = config.Load(configPath).DBPath
	}

	if importPath != "" {
		if dsName == "" {
			log.Printf("[ERROR] -import 需要 -name\n")
			return 2
		}
		id, err := runImport(dbPath, importPath, dsName, dsSymbol, encoding)
		if err != nil {
			log.Printf("[ERROR] 导入失败: %v\n", err)
			return 1
		}
		fmt.Printf("data_set_id=%d\n", id)
		return 0
	}

	if fetchCode != "" {
		id, err := runFetch(dbPath, fetchCode, dsName, fetchDays, timeout, "")
		if err != nil {
			log.Printf("[ERROR] 下载失败: %v\n", err)
			return 1
		}
		fmt.Printf("data_set_id=%d\n", id)
		return 0
	}

	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  stockbt -backtest -bt-config backtest.yaml [-bt-out report.json] [-bt-trades-csv trades.csv] [-bt-chart dir] [-bt-report report.html]")
	fmt.Fprintln(os.Stderr, "  stockbt -scan -bt-config backtest.yaml [-scan-json] [-scan-out scan.txt]")
	fmt.Fprintln(os.Stderr, "  stockbt -import prices.csv -name NAME [-symbol sh600000] [-encoding gbk] [-db data/stockbt.db]")
	fmt.Fprintln(os.Stderr, "  stockbt -fetch sh600000 [-days 500] [-name NAME] [-db data/stockbt.db]")
	fmt.Fprintln(os.Stderr, "  stockbt [-config config.yaml]            # 启动回测服务")
	return 2
}
