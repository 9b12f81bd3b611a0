package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"stockbt/backtest"
	"stockbt/config"
	"stockbt/jobs"
	"stockbt/store"
)

const dipAlgorithm = `{
	"triggers": [{"type": "price", "condition": {"operator": "lt", "value": 105}}],
	"actions": [{"type": "buy"}]
}`

type envelope struct {
	Code     int             `json:"code"`
	Data     json.RawMessage `json:"data"`
	Count    int             `json:"count"`
	Warnings []string        `json:"warnings"`
	Error    string          `json:"error"`
}

type testEnv struct {
	srv   *Server
	store *store.Store
	jobs  *jobs.Manager
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	cfg := config.DefaultConfig
	mgr := jobs.NewManager(context.Background(), st, jobs.Options{Workers: 1, InitialCapital: cfg.InitialCapital})
	t.Cleanup(func() {
		mgr.Close()
		st.Close()
	})

	srv := NewServer(st, mgr, &cfg)
	gin.SetMode(gin.TestMode)
	return &testEnv{srv: srv, store: st, jobs: mgr}
}

func (e *testEnv) do(t *testing.T, method, path, body string) (int, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
			t.Fatalf("%s %s: bad body %q: %v", method, path, w.Body.String(), err)
		}
	}
	return w.Code, env
}

func fiveBars() []backtest.Bar {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.Local)
	closes := []float64{100, 103, 106, 103, 108}
	bars := make([]backtest.Bar, len(closes))
	for i, c := range closes {
		bars[i] = backtest.Bar{Date: start.AddDate(0, 0, i), Open: c, High: c, Low: c, Close: c, Volume: 1}
	}
	return bars
}

func runBody(algorithm string) string {
	var b bytes.Buffer
	b.WriteString(`{"algorithm": ` + algorithm + `, "start_date": "2024-01-01", "end_date": "2024-01-31", "bars": [`)
	for i, bar := range fiveBars() {
		if i > 0 {
			b.WriteString(",")
		}
		fmt.Fprintf(&b, `{"date":"%s","open":%v,"high":%v,"low":%v,"close":%v,"volume":%v}`,
			bar.Date.Format("2006-01-02"), bar.Open, bar.High, bar.Low, bar.Close, bar.Volume)
	}
	b.WriteString("]}")
	return b.String()
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Fatalf("missing X-Request-ID header")
	}
}

func TestRunBacktestSync(t *testing.T) {
	env := newTestEnv(t)
	code, body := env.do(t, http.MethodPost, "/api/backtests/run", runBody(dipAlgorithm))
	if code != http.StatusOK {
		t.Fatalf("status = %d, error = %q", code, body.Error)
	}

	var res backtest.Result
	if err := json.Unmarshal(body.Data, &res); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if len(res.Trades) != 1 || res.Trades[0].Profit != 8000 || res.Trades[0].ExitReason != backtest.ExitEndOfData {
		t.Fatalf("unexpected trades: %#v", res.Trades)
	}
	if len(res.EquityCurve) != 5 {
		t.Fatalf("equity points = %d", len(res.EquityCurve))
	}
}

func TestRunBacktestErrors(t *testing.T) {
	env := newTestEnv(t)
	cases := []struct {
		name string
		body string
		want int
	}{
		{"missing actions", runBody(`{"triggers": []}`), http.StatusBadRequest},
		{"missing algorithm", `{"bars": []}`, http.StatusBadRequest},
		{"no data in range", strings.Replace(runBody(dipAlgorithm), "2024-01-01", "2025-01-01", 1), http.StatusBadRequest},
		{"bad json", `{"algorithm":`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, body := env.do(t, http.MethodPost, "/api/backtests/run", tc.body)
			if code != tc.want || body.Error == "" {
				t.Fatalf("status = %d (want %d), error = %q", code, tc.want, body.Error)
			}
		})
	}
}

func TestAlgorithmEndpoints(t *testing.T) {
	env := newTestEnv(t)

	code, body := env.do(t, http.MethodPost, "/api/algorithms",
		`{"name":"odd","definition":{"triggers":[{"type":"volatility","condition":{"operator":"gt","value":1}}],"actions":[{"type":"buy"}]}}`)
	if code != http.StatusCreated {
		t.Fatalf("create status = %d, error = %q", code, body.Error)
	}
	var created struct {
		ID       int64    `json:"id"`
		Warnings []string `json:"warnings"`
	}
	if err := json.Unmarshal(body.Data, &created); err != nil {
		t.Fatal(err)
	}
	if created.ID == 0 || len(created.Warnings) == 0 {
		t.Fatalf("unexpected create response: %s", body.Data)
	}

	code, _ = env.do(t, http.MethodGet, fmt.Sprintf("/api/algorithms/%d", created.ID), "")
	if code != http.StatusOK {
		t.Fatalf("get status = %d", code)
	}
	code, _ = env.do(t, http.MethodGet, "/api/algorithms/999", "")
	if code != http.StatusNotFound {
		t.Fatalf("missing algorithm status = %d", code)
	}
	code, _ = env.do(t, http.MethodGet, "/api/algorithms/abc", "")
	if code != http.StatusBadRequest {
		t.Fatalf("bad id status = %d", code)
	}
	code, _ = env.do(t, http.MethodPost, "/api/algorithms", `{"name":"x","definition":{"triggers":[]}}`)
	if code != http.StatusBadRequest {
		t.Fatalf("invalid definition status = %d", code)
	}
}

func seedAPI(t *testing.T, env *testEnv) (algoID, dsID int64) {
	t.Helper()
	ctx := context.Background()
	dsID, err := env.store.CreateDataSet(ctx, store.DataSet{Name: "five", Symbol: "sh600000"}, fiveBars())
	if err != nil {
		t.Fatalf("CreateDataSet: %v", err)
	}
	def, _ := backtest.ParseAlgorithmJSON([]byte(dipAlgorithm))
	algoID, err = env.store.CreateAlgorithm(ctx, "dip", "", def)
	if err != nil {
		t.Fatalf("CreateAlgorithm: %v", err)
	}
	return algoID, dsID
}

func TestSubmitBacktestAndFetchResult(t *testing.T) {
	env := newTestEnv(t)
	algoID, dsID := seedAPI(t, env)

	code, body := env.do(t, http.MethodPost, "/api/backtests",
		fmt.Sprintf(`{"algorithm_id":%d,"data_set_id":%d,"start_date":"2024-01-01","end_date":"2024-01-31"}`, algoID, dsID))
	if code != http.StatusAccepted {
		t.Fatalf("submit status = %d, error = %q", code, body.Error)
	}
	var submitted struct {
		JobID string `json:"job_id"`
	}
	if err := json.Unmarshal(body.Data, &submitted); err != nil || submitted.JobID == "" {
		t.Fatalf("bad submit response: %s", body.Data)
	}

	env.jobs.Close()

	code, body = env.do(t, http.MethodGet, "/api/backtests/"+submitted.JobID, "")
	if code != http.StatusOK {
		t.Fatalf("status code = %d", code)
	}
	var job store.Job
	if err := json.Unmarshal(body.Data, &job); err != nil {
		t.Fatal(err)
	}
	if job.Status != store.StatusCompleted {
		t.Fatalf("job = %#v", job)
	}

	code, body = env.do(t, http.MethodGet, "/api/backtests/"+submitted.JobID+"/result", "")
	if code != http.StatusOK {
		t.Fatalf("result status = %d", code)
	}
	var res store.StoredResult
	if err := json.Unmarshal(body.Data, &res); err != nil {
		t.Fatal(err)
	}
	if res.JobID != submitted.JobID || len(res.Trades) != 1 {
		t.Fatalf("unexpected result: %s", body.Data)
	}

	code, _ = env.do(t, http.MethodGet, "/api/backtests/nope", "")
	if code != http.StatusNotFound {
		t.Fatalf("unknown job status = %d", code)
	}
}

func TestSubmitBacktestErrors(t *testing.T) {
	env := newTestEnv(t)
	algoID, _ := seedAPI(t, env)

	code, _ := env.do(t, http.MethodPost, "/api/backtests", `{"algorithm_id":42,"start_date":"2024-01-01","end_date":"2024-01-31"}`)
	if code != http.StatusNotFound {
		t.Fatalf("unknown algorithm status = %d", code)
	}
	code, _ = env.do(t, http.MethodPost, "/api/backtests", fmt.Sprintf(`{"algorithm_id":%d}`, algoID))
	if code != http.StatusBadRequest {
		t.Fatalf("missing dates status = %d", code)
	}

	env.jobs.Close()
	code, _ = env.do(t, http.MethodPost, "/api/backtests",
		fmt.Sprintf(`{"algorithm_id":%d,"start_date":"2024-01-01","end_date":"2024-01-31"}`, algoID))
	if code != http.StatusServiceUnavailable {
		t.Fatalf("closed manager status = %d", code)
	}
}

func TestDataSetEndpoints(t *testing.T) {
	env := newTestEnv(t)
	_, dsID := seedAPI(t, env)

	code, body := env.do(t, http.MethodGet, "/api/datasets", "")
	if code != http.StatusOK || body.Count != 1 {
		t.Fatalf("list status = %d count = %d", code, body.Count)
	}

	code, body = env.do(t, http.MethodGet, fmt.Sprintf("/api/datasets/%d/bars", dsID), "")
	if code != http.StatusOK || body.Count != 5 {
		t.Fatalf("bars status = %d count = %d", code, body.Count)
	}
	var bars []barInput
	if err := json.Unmarshal(body.Data, &bars); err != nil {
		t.Fatal(err)
	}
	if bars[0].Date != "2024-01-01" || bars[4].Close != 108 {
		t.Fatalf("unexpected bars: %#v", bars)
	}

	code, _ = env.do(t, http.MethodGet, "/api/datasets/77/bars", "")
	if code != http.StatusNotFound {
		t.Fatalf("missing data set status = %d", code)
	}
}

func TestStreamFinishedJob(t *testing.T) {
	env := newTestEnv(t)
	algoID, _ := seedAPI(t, env)

	id, err := env.jobs.Submit(context.Background(), jobs.JobSpec{AlgorithmID: algoID, StartDate: "2024-01-01", EndDate: "2024-01-31"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	env.jobs.Close()

	ts := httptest.NewServer(env.srv.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/backtests/" + id + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	var u jobs.StatusUpdate
	if err := conn.ReadJSON(&u); err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if u.JobID != id || u.Status != store.StatusCompleted || u.Progress != 1 {
		t.Fatalf("unexpected snapshot: %#v", u)
	}
	if _, _, err := conn.ReadMessage(); !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Fatalf("expected normal close, got %v", err)
	}
}

func TestRateLimiterEvictsIdleIPs(t *testing.T) {
	l := newIPRateLimiter(1, 1)
	now := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	l.lastSweep = now

	if !l.get("10.0.0.1").Allow() {
		t.Fatal("first request should pass")
	}
	if l.get("10.0.0.1").Allow() {
		t.Fatal("second request within the same second should be limited")
	}

	now = now.Add(5 * time.Minute)
	l.get("10.0.0.2")
	if len(l.limiters) != 2 {
		t.Fatalf("limiters = %d, want 2 before the idle window", len(l.limiters))
	}

	now = now.Add(limiterIdleTTL)
	l.get("10.0.0.3")
	if len(l.limiters) != 1 {
		t.Fatalf("limiters = %d, want only the fresh IP after sweep", len(l.limiters))
	}
	if _, ok := l.limiters["10.0.0.3"]; !ok {
		t.Fatal("fresh IP should be kept")
	}
}
