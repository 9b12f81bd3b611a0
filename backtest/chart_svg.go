package backtest

import (
	"bytes"
	"fmt"
	"html"
	"math"
	"strconv"
	"strings"

	"stockbt/indicators"
)

type SVGChartOptions struct {
	Width  int
	Height int
	// Volume adds a volume strip under the candles.
	Volume bool
}

func (o SVGChartOptions) withDefaults() SVGChartOptions {
	if o.Width <= 0 {
		o.Width = 980
	}
	if o.Height <= 0 {
		o.Height = 520
	}
	return o
}

const (
	svgFont   = "ui-monospace, Menlo, Monaco, Consolas, monospace"
	svgBG     = "#0b1220"
	svgGrid   = "rgba(255,255,255,0.08)"
	svgText   = "rgba(255,255,255,0.85)"
	colUp     = "#22c55e"
	colDown   = "#ef4444"
	colEntry  = "#38bdf8"
	colExit   = "#f59e0b"
	colEquity = "#a78bfa"

	colVolUp   = "rgba(34,197,94,0.35)"
	colVolDown = "rgba(239,68,68,0.35)"
)

var maColors = map[int]string{20: "#facc15", 50: "#f472b6"}

// svgPlot maps n slots and a value range onto the plot area.
type svgPlot struct {
	buf           bytes.Buffer
	mLeft, mTop   float64
	plotW, plotH  float64
	minV, maxV    float64
	step          float64
	width, height int
}

func newSVGPlot(n int, minV, maxV float64, opt SVGChartOptions) (*svgPlot, error) {
	if math.IsInf(minV, 0) || math.IsInf(maxV, 0) || maxV < minV {
		return nil, fmt.Errorf("invalid value range")
	}
	pad := (maxV - minV) * 0.05
	if pad <= 0 {
		pad = math.Max(math.Abs(minV)*0.02, 1)
	}
	p := &svgPlot{
		mLeft:  80,
		mTop:   24,
		width:  opt.Width,
		height: opt.Height,
		minV:   minV - pad,
		maxV:   maxV + pad,
	}
	p.plotW = float64(opt.Width) - p.mLeft - 20
	p.plotH = float64(opt.Height) - p.mTop - 40
	if p.plotW <= 10 || p.plotH <= 10 {
		return nil, fmt.Errorf("invalid chart size")
	}
	p.step = p.plotW / float64(n)
	return p, nil
}

func (p *svgPlot) x(i int) float64 {
	return p.mLeft + (float64(i)+0.5)*p.step
}

func (p *svgPlot) y(v float64) float64 {
	r := (v - p.minV) / (p.maxV - p.minV)
	r = math.Max(0, math.Min(1, r))
	return p.mTop + (1.0-r)*p.plotH
}

func (p *svgPlot) text(x, y float64, size int, col, s string) {
	p.buf.WriteString(`<text x="` + fmtFloat(x) + `" y="` + fmtFloat(y) + `" fill="` + col + `" font-size="` + strconv.Itoa(size) + `" font-family="` + svgFont + `">` +
		html.EscapeString(s) + `</text>` + "\n")
}

func (p *svgPlot) header(title, firstD, lastD string) {
	w, h := strconv.Itoa(p.width), strconv.Itoa(p.height)
	p.buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	p.buf.WriteString(`<svg xmlns="http://www.w3.org/2000/svg" width="` + w + `" height="` + h + `" viewBox="0 0 ` + w + ` ` + h + `">` + "\n")
	p.buf.WriteString(`<rect x="0" y="0" width="100%" height="100%" fill="` + svgBG + `"/>` + "\n")

	title = strings.TrimSpace(title)
	if title == "" {
		title = "BACKTEST"
	}
	p.text(p.mLeft, 16, 14, svgText, title+"  "+firstD+" ~ "+lastD)

	for k := 0; k <= 5; k++ {
		y := p.mTop + (float64(k)/5.0)*p.plotH
		p.buf.WriteString(`<line x1="` + fmtFloat(p.mLeft) + `" y1="` + fmtFloat(y) + `" x2="` + fmtFloat(p.mLeft+p.plotW) + `" y2="` + fmtFloat(y) + `" stroke="` + svgGrid + `" stroke-width="1"/>` + "\n")
		v := p.maxV - (float64(k)/5.0)*(p.maxV-p.minV)
		p.text(6, y+4, 12, svgText, fmtPrice(v))
	}
}

// polyline skips NaN slots.
func (p *svgPlot) polyline(vals []float64, col string) {
	var pts strings.Builder
	for i, v := range vals {
		if math.IsNaN(v) {
			continue
		}
		if pts.Len() > 0 {
			pts.WriteByte(' ')
		}
		pts.WriteString(fmtFloat(p.x(i)))
		pts.WriteByte(',')
		pts.WriteString(fmtFloat(p.y(v)))
	}
	if pts.Len() > 0 {
		p.buf.WriteString(`<polyline fill="none" stroke="` + col + `" stroke-width="1.4" points="` + pts.String() + `"/>` + "\n")
	}
}

func (p *svgPlot) finish(firstD, lastD string) []byte {
	yb := float64(p.height) - 12
	p.text(p.mLeft, yb, 12, svgText, firstD)
	p.text(p.mLeft+p.plotW-70, yb, 12, svgText, lastD)
	p.buf.WriteString(`</svg>` + "\n")
	return p.buf.Bytes()
}

// RenderTradesSVG draws candles with SMA overlays and marks every entry and
// exit of trades. Forced exits are labelled "END".
func RenderTradesSVG(title string, bars []Bar, trades []Trade, opt SVGChartOptions) ([]byte, error) {
	opt = opt.withDefaults()
	if len(bars) < 2 {
		return nil, fmt.Errorf("not enough bars: %d", len(bars))
	}

	minP, maxP := math.Inf(1), math.Inf(-1)
	index := make(map[string]int, len(bars))
	for i, b := range bars {
		if b.Low > 0 && b.Low < minP {
			minP = b.Low
		}
		if b.High > maxP {
			maxP = b.High
		}
		index[b.Date.Format(dateLayout)] = i
	}
	p, err := newSVGPlot(len(bars), minP, maxP, opt)
	if err != nil {
		return nil, err
	}

	var volTop, volH float64
	if opt.Volume {
		volH = math.Max(40, p.plotH*0.2)
		p.plotH -= volH + 10
		volTop = p.mTop + p.plotH + 10
	}

	firstD := bars[0].Date.Format(dateLayout)
	lastD := bars[len(bars)-1].Date.Format(dateLayout)
	p.header(title, firstD, lastD)

	cw := math.Max(1.0, p.step*0.65)
	for i, b := range bars {
		x := p.x(i)
		col := colUp
		if b.Close < b.Open {
			col = colDown
		}
		yTop := math.Min(p.y(b.Open), p.y(b.Close))
		yBot := math.Max(p.y(b.Open), p.y(b.Close))
		if yBot-yTop < 1 {
			yBot = yTop + 1
		}
		p.buf.WriteString(`<line x1="` + fmtFloat(x) + `" y1="` + fmtFloat(p.y(b.High)) + `" x2="` + fmtFloat(x) + `" y2="` + fmtFloat(p.y(b.Low)) + `" stroke="` + col + `" stroke-width="1"/>` + "\n")
		p.buf.WriteString(`<rect x="` + fmtFloat(x-cw/2) + `" y="` + fmtFloat(yTop) + `" width="` + fmtFloat(cw) + `" height="` + fmtFloat(yBot-yTop) + `" fill="` + col + `" opacity="0.9"/>` + "\n")
	}

	if opt.Volume {
		p.volumeStrip(bars, volTop, volH)
	}

	closes := Closes(bars)
	for k, period := range indicators.DefaultMAPeriods {
		col := maColors[period]
		if col == "" {
			col = "rgba(255,255,255,0.65)"
		}
		p.polyline(indicators.SMA(closes, period), col)
		p.text(p.mLeft+p.plotW-60, p.mTop+14+float64(k)*14, 12, col, "MA"+strconv.Itoa(period))
	}

	for _, t := range trades {
		if i, ok := index[t.EntryDate]; ok {
			x, y := p.x(i), p.y(t.EntryPrice)
			p.buf.WriteString(`<path d="M` + fmtFloat(x) + ` ` + fmtFloat(y+4) + ` l-5 9 h10 z" fill="` + colEntry + `"/>` + "\n")
			p.text(x+6, y+14, 11, colEntry, "B "+fmtPrice(t.EntryPrice))
		}
		if i, ok := index[t.ExitDate]; ok {
			x, y := p.x(i), p.y(t.ExitPrice)
			p.buf.WriteString(`<path d="M` + fmtFloat(x) + ` ` + fmtFloat(y-4) + ` l-5 -9 h10 z" fill="` + colExit + `"/>` + "\n")
			label := "S "
			if t.ExitReason == ExitEndOfData {
				label = "END "
			}
			p.text(x+6, y-10, 11, colExit, label+fmtPrice(t.ExitPrice))
		}
	}

	return p.finish(firstD, lastD), nil
}

// volumeStrip draws volume bars scaled to the window's largest volume plus
// a 20-bar volume average.
func (p *svgPlot) volumeStrip(bars []Bar, top, h float64) {
	maxV := 0.0
	vols := make([]float64, len(bars))
	for i, b := range bars {
		vols[i] = b.Volume
		maxV = math.Max(maxV, b.Volume)
	}
	if maxV <= 0 {
		return
	}
	bottom := top + h
	volY := func(v float64) float64 {
		return bottom - math.Max(0, math.Min(1, v/maxV))*h
	}

	cw := math.Max(1.0, p.step*0.65)
	for i, b := range bars {
		col := colVolUp
		if b.Close < b.Open {
			col = colVolDown
		}
		y := volY(b.Volume)
		p.buf.WriteString(`<rect x="` + fmtFloat(p.x(i)-cw/2) + `" y="` + fmtFloat(y) + `" width="` + fmtFloat(cw) + `" height="` + fmtFloat(bottom-y) + `" fill="` + col + `"/>` + "\n")
	}

	var pts strings.Builder
	for i, v := range indicators.SMA(vols, 20) {
		if math.IsNaN(v) {
			continue
		}
		if pts.Len() > 0 {
			pts.WriteByte(' ')
		}
		pts.WriteString(fmtFloat(p.x(i)) + "," + fmtFloat(volY(v)))
	}
	if pts.Len() > 0 {
		p.buf.WriteString(`<polyline fill="none" stroke="` + colEntry + `" stroke-width="1.2" points="` + pts.String() + `"/>` + "\n")
	}
	p.text(6, top+12, 11, svgText, "VOL "+fmtVol(maxV))
}

// RenderEquitySVG draws the equity curve with a dashed baseline at the
// starting capital.
func RenderEquitySVG(title string, curve []EquityPoint, initialCapital float64, opt SVGChartOptions) ([]byte, error) {
	opt = opt.withDefaults()
	if len(curve) < 2 {
		return nil, fmt.Errorf("not enough points: %d", len(curve))
	}

	vals := make([]float64, len(curve))
	minV, maxV := initialCapital, initialCapital
	for i, pt := range curve {
		vals[i] = pt.Equity
		minV = math.Min(minV, pt.Equity)
		maxV = math.Max(maxV, pt.Equity)
	}
	p, err := newSVGPlot(len(curve), minV, maxV, opt)
	if err != nil {
		return nil, err
	}

	firstD, lastD := curve[0].Date, curve[len(curve)-1].Date
	p.header(title, firstD, lastD)

	yb := p.y(initialCapital)
	p.buf.WriteString(`<line x1="` + fmtFloat(p.mLeft) + `" y1="` + fmtFloat(yb) + `" x2="` + fmtFloat(p.mLeft+p.plotW) + `" y2="` + fmtFloat(yb) + `" stroke="rgba(255,255,255,0.65)" stroke-width="1.2" stroke-dasharray="6 6"/>` + "\n")
	p.polyline(vals, colEquity)
	p.text(p.mLeft+6, p.mTop+14, 12, colEquity, "EQUITY "+fmtPrice(vals[len(vals)-1]))

	return p.finish(firstD, lastD), nil
}

func fmtFloat(x float64) string {
	return strconv.FormatFloat(x, 'f', 2, 64)
}

func fmtPrice(p float64) string {
	if p >= 1000 {
		return strconv.FormatFloat(p, 'f', 0, 64)
	}
	if p >= 100 {
		return strconv.FormatFloat(p, 'f', 1, 64)
	}
	return strconv.FormatFloat(p, 'f', 2, 64)
}

func fmtVol(v float64) string {
	if v >= 100000000 {
		return strconv.FormatFloat(v/100000000, 'f', 1, 64) + "e8"
	}
	if v >= 10000 {
		return strconv.FormatFloat(v/10000, 'f', 1, 64) + "e4"
	}
	return strconv.FormatFloat(v, 'f', 0, 64)
}
