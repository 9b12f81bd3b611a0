package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"stockbt/backtest"
	"stockbt/config"
	"stockbt/jobs"
	"stockbt/store"
)

// Handler API处理器
type Handler struct {
	store *store.Store
	jobs  *jobs.Manager
	cfg   *config.Config
}

// NewHandler 创建处理器
func NewHandler(st *store.Store, mgr *jobs.Manager, cfg *config.Config) *Handler {
	return &Handler{store: st, jobs: mgr, cfg: cfg}
}

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{"code": 0, "data": data})
}

// fail 将领域错误映射为 HTTP 状态码
func fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, backtest.ErrInvalidAlgorithm),
		errors.Is(err, backtest.ErrNoDataInRange),
		errors.Is(err, jobs.ErrBadSpec):
		status = http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, jobs.ErrQueueFull), errors.Is(err, jobs.ErrClosed):
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}

func lintWarnings(a *backtest.AlgorithmDefinition) []string {
	w := a.Lint()
	if w == nil {
		return []string{}
	}
	return w
}

func paramID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "invalid id: "+c.Param("id"))
		return 0, false
	}
	return id, true
}

// SubmitBacktest 提交异步回测任务
func (h *Handler) SubmitBacktest(c *gin.Context) {
	var spec jobs.JobSpec
	if err := c.ShouldBindJSON(&spec); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	id, err := h.jobs.Submit(c.Request.Context(), spec)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"code": 0, "data": gin.H{"job_id": id}})
}

// GetBacktest 查询任务状态
func (h *Handler) GetBacktest(c *gin.Context) {
	job, err := h.store.GetJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, job)
}

// GetBacktestResult 查询回测结果
func (h *Handler) GetBacktestResult(c *gin.Context) {
	res, err := h.store.GetResult(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, res)
}

type barInput struct {
	Date   string  `json:"date"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

type runRequest struct {
	Algorithm      json.RawMessage `json:"algorithm"`
	Bars           []barInput      `json:"bars"`
	StartDate      string          `json:"start_date"`
	EndDate        string          `json:"end_date"`
	InitialCapital float64         `json:"initial_capital"`
}

// RunBacktest 同步回测, 不落库
func (h *Handler) RunBacktest(c *gin.Context) {
	var req runRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	if len(req.Algorithm) == 0 {
		fail(c, fmt.Errorf("%w: algorithm is required", backtest.ErrInvalidAlgorithm))
		return
	}
	algo, err := backtest.ParseAlgorithmJSON(req.Algorithm)
	if err != nil {
		fail(c, err)
		return
	}

	start, err := backtest.ParseDate(req.StartDate)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	end, err := backtest.ParseDate(req.EndDate)
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	bars := make([]backtest.Bar, 0, len(req.Bars))
	for i, b := range req.Bars {
		d, err := backtest.ParseDate(b.Date)
		if err != nil || d.IsZero() {
			badRequest(c, fmt.Sprintf("bars[%d]: invalid date %q", i, b.Date))
			return
		}
		bars = append(bars, backtest.Bar{Date: d, Open: b.Open, High: b.High, Low: b.Low, Close: b.Close, Volume: b.Volume})
	}

	capital := req.InitialCapital
	if capital <= 0 {
		capital = h.cfg.InitialCapital
	}
	res, err := backtest.Run(backtest.Request{
		Algorithm:      algo,
		Bars:           bars,
		Start:          start,
		End:            end,
		InitialCapital: capital,
		RiskFreeRate:   h.cfg.RiskFreeRate,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 0, "data": res, "warnings": lintWarnings(algo)})
}

type algorithmRequest struct {
	Name        string          `json:"name" binding:"required"`
	Description string          `json:"description"`
	Definition  json.RawMessage `json:"definition"`
}

// CreateAlgorithm 保存策略, 返回 lint 警告
func (h *Handler) CreateAlgorithm(c *gin.Context) {
	var req algorithmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	algo, err := backtest.ParseAlgorithmJSON(req.Definition)
	if err != nil {
		fail(c, err)
		return
	}

	id, err := h.store.CreateAlgorithm(c.Request.Context(), req.Name, req.Description, algo)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"code": 0, "data": gin.H{"id": id, "warnings": lintWarnings(algo)}})
}

// GetAlgorithm 查询策略
func (h *Handler) GetAlgorithm(c *gin.Context) {
	id, valid := paramID(c)
	if !valid {
		return
	}
	a, err := h.store.GetAlgorithm(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, a)
}

// ListDataSets 数据集列表
func (h *Handler) ListDataSets(c *gin.Context) {
	list, err := h.store.ListDataSets(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":  0,
		"count": len(list),
		"data":  list,
	})
}

// GetDataSetBars 查询数据集K线
func (h *Handler) GetDataSetBars(c *gin.Context) {
	id, valid := paramID(c)
	if !valid {
		return
	}
	bars, err := h.store.LoadBars(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}

	out := make([]barInput, len(bars))
	for i, b := range bars {
		out[i] = barInput{Date: b.Date.Format("2006-01-02"), Open: b.Open, High: b.High, Low: b.Low, Close: b.Close, Volume: b.Volume}
	}
	c.JSON(http.StatusOK, gin.H{
		"code":  0,
		"count": len(out),
		"data":  out,
	})
}
