package stockbtctl

import (
	"bytes"
	"fmt"
	"html"
	"os"
	"time"

	"stockbt/backtest"
)

type htmlReport struct {
	Title     string
	Start     time.Time
	End       time.Time
	Capital   float64
	Result    backtest.Result
	TradesSVG []byte
	EquitySVG []byte
}

// writeReportHTML 生成单文件HTML报告，SVG 直接内联，离线可打开
func writeReportHTML(path string, rep htmlReport) error {
	var b bytes.Buffer
	title := html.EscapeString(rep.Title)

	b.WriteString("<!doctype html>\n")
	b.WriteString("<html lang=\"zh-CN\">\n<head>\n")
	b.WriteString("  <meta charset=\"utf-8\" />\n")
	b.WriteString("  <meta name=\"viewport\" content=\"width=device-width, initial-scale=1\" />\n")
	fmt.Fprintf(&b, "  <title>回测报告 %s</title>\n", title)
	b.WriteString("  <style>\n")
	b.WriteString(cssReport())
	b.WriteString("  </style>\n")
	b.WriteString("</head>\n<body>\n")

	b.WriteString("  <header class=\"hdr\">\n")
	fmt.Fprintf(&b, "    <div class=\"title\">回测报告 %s</div>\n", title)
	fmt.Fprintf(&b, "    <div class=\"meta\">%s ~ %s · 初始资金 %.2f</div>\n",
		dayOrOpen(rep.Start, "开始"), dayOrOpen(rep.End, "结束"), rep.Capital)
	b.WriteString("  </header>\n")

	p := rep.Result.Performance
	b.WriteString("  <section class=\"stats\">\n")
	stat := func(label string, v string, cls string) {
		fmt.Fprintf(&b, "    <div class=\"stat\"><div class=\"lbl\">%s</div><div class=\"val %s\">%s</div></div>\n", label, cls, v)
	}
	stat("总收益", fmt.Sprintf("%.2f%%", p.TotalReturn), signClass(p.TotalReturn))
	stat("胜率", fmt.Sprintf("%.2f%%", p.WinRate), "")
	stat("交易数", fmt.Sprintf("%d", p.TotalTrades), "")
	stat("最大回撤", fmt.Sprintf("%.2f%%", p.MaxDrawdown), "")
	stat("Sharpe", fmt.Sprintf("%.2f", p.SharpeRatio), "")
	stat("平均盈利", fmt.Sprintf("%.2f", p.AverageProfit), "good")
	stat("平均亏损", fmt.Sprintf("%.2f", p.AverageLoss), "bad")
	b.WriteString("  </section>\n")

	b.WriteString("  <section class=\"card\">\n")
	b.Write(inlineSVG(rep.TradesSVG))
	b.WriteString("\n  </section>\n")
	b.WriteString("  <section class=\"card\">\n")
	b.Write(inlineSVG(rep.EquitySVG))
	b.WriteString("\n  </section>\n")

	b.WriteString("  <section class=\"card\">\n")
	b.WriteString("    <table class=\"tbl\">\n")
	b.WriteString("      <thead><tr><th>#</th><th>买入日</th><th>卖出日</th><th>买入价</th><th>卖出价</th><th>数量</th><th>盈亏</th><th>收益率</th><th>平仓原因</th></tr></thead>\n")
	b.WriteString("      <tbody>\n")
	if len(rep.Result.Trades) == 0 {
		b.WriteString("        <tr><td colspan=\"9\" class=\"empty\">无交易</td></tr>\n")
	}
	for i, t := range rep.Result.Trades {
		fmt.Fprintf(&b, "        <tr><td>%d</td><td>%s</td><td>%s</td><td>%.2f</td><td>%.2f</td><td>%.0f</td><td class=\"%s\">%.2f</td><td class=\"%s\">%.2f%%</td><td>%s</td></tr>\n",
			i+1, html.EscapeString(t.EntryDate), html.EscapeString(t.ExitDate), t.EntryPrice, t.ExitPrice, t.Quantity,
			signClass(t.Profit), t.Profit, signClass(t.ProfitRate), t.ProfitRate, html.EscapeString(t.ExitReason))
	}
	b.WriteString("      </tbody>\n")
	b.WriteString("    </table>\n")
	b.WriteString("  </section>\n")
	b.WriteString("</body>\n</html>\n")

	if err := ensureParentDir(path); err != nil {
		return err
	}
	return os.WriteFile(path, b.Bytes(), 0o644)
}

// inlineSVG drops the XML declaration so the markup can sit inside <body>.
func inlineSVG(svg []byte) []byte {
	if i := bytes.Index(svg, []byte("<svg")); i > 0 {
		return svg[i:]
	}
	return svg
}

func dayOrOpen(t time.Time, open string) string {
	if t.IsZero() {
		return open
	}
	return t.Format("2006-01-02")
}

func signClass(v float64) string {
	switch {
	case v > 0:
		return "good"
	case v < 0:
		return "bad"
	}
	return ""
}

func cssReport() string {
	return `
:root {
  --bg: #0b1220;
  --panel: rgba(255,255,255,0.06);
  --txt: rgba(255,255,255,0.88);
  --muted: rgba(255,255,255,0.62);
  --grid: rgba(255,255,255,0.10);
  --good: #22c55e;
  --bad: #ef4444;
  --mono: ui-monospace, Menlo, Monaco, Consolas, "Liberation Mono", monospace;
  --sans: ui-sans-serif, system-ui, -apple-system, Segoe UI, Roboto, "Noto Sans", Arial;
}
* { box-sizing: border-box; }
body { margin:0; background: var(--bg); color: var(--txt); font-family: var(--sans); }
.hdr { padding: 18px; border-bottom: 1px solid var(--grid); display:flex; align-items: baseline; gap: 12px; }
.title { font-size: 18px; font-weight: 700; }
.meta { font-family: var(--mono); color: var(--muted); font-size: 12px; }
.stats { padding: 14px 18px; display:flex; gap: 10px; flex-wrap: wrap; }
.stat { background: var(--panel); border: 1px solid var(--grid); border-radius: 12px; padding: 10px 14px; min-width: 120px; }
.lbl { color: var(--muted); font-size: 12px; }
.val { font-family: var(--mono); font-size: 18px; margin-top: 4px; }
.card { margin: 0 18px 14px 18px; background: var(--panel); border: 1px solid var(--grid); border-radius: 14px; overflow: auto; }
.card svg { display:block; max-width: 100%; height: auto; }
.tbl { width: 100%; border-collapse: collapse; font-family: var(--mono); font-size: 12px; }
.tbl th, .tbl td { padding: 8px 10px; border-bottom: 1px solid var(--grid); text-align: right; }
.tbl th { color: var(--muted); font-weight: 600; }
.empty { text-align: center; color: var(--muted); }
.good { color: var(--good); }
.bad { color: var(--bad); }
`
}
