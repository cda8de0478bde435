package router

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"reverse_auction/internal/auction"
	"reverse_auction/internal/catalog"
	"reverse_auction/internal/config"
	"reverse_auction/internal/model"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

const token = "test-admin"

type svcStub struct {
	createErr   error
	lastCreate  auction.CreateRequest
	stopped     int
	manual      []float64
	mutationRes catalog.Result
	mutationErr error
}

func (s *svcStub) Status(context.Context) auction.Status {
	return auction.Status{IsRunning: true, CurrentDiscountPercent: 30, Schedule: []auction.ScheduleEntry{}}
}

func (s *svcStub) Create(_ context.Context, req auction.CreateRequest) (*model.AuctionConfig, error) {
	s.lastCreate = req
	if s.createErr != nil {
		return nil, s.createErr
	}
	return &model.AuctionConfig{ID: model.GlobalAuctionID, IntervalMinutes: req.IntervalMinutes, IsActive: true}, nil
}

func (s *svcStub) Stop(context.Context) error {
	s.stopped++
	return nil
}

func (s *svcStub) ResetPrices(context.Context) (catalog.Result, error) {
	return s.mutationRes, s.mutationErr
}

func (s *svcStub) ApplyManualDiscount(_ context.Context, p float64) (catalog.Result, error) {
	s.manual = append(s.manual, p)
	return s.mutationRes, s.mutationErr
}

func (s *svcStub) EstablishCompareAtPrices(context.Context) (catalog.Result, error) {
	return s.mutationRes, s.mutationErr
}

type logStub struct{ limit int }

func (l *logStub) Recent(_ context.Context, limit int) ([]model.AuctionLog, error) {
	l.limit = limit
	return []model.AuctionLog{{EventID: "e1", Action: model.ActionPriceDrop, OccurredAt: time.Now()}}, nil
}

type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

func setup(t *testing.T) (*gin.Engine, *svcStub, *logStub) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := config.Defaults()
	cfg.AdminToken = token
	svc := &svcStub{}
	logs := &logStub{}
	r := gin.New()
	Setup(r, svc, logs, nil, cfg)
	return r, svc, logs
}

func do(r *gin.Engine, method, path string, body any, admin bool) (*httptest.ResponseRecorder, envelope) {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if admin {
		req.Header.Set("X-Admin-Token", token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var env envelope
	_ = json.Unmarshal(w.Body.Bytes(), &env)
	return w, env
}

func TestStatusIsPublic(t *testing.T) {
	r, _, _ := setup(t)
	w, env := do(r, http.MethodGet, "/api/auction-status", nil, false)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	var st auction.Status
	require.NoError(t, json.Unmarshal(env.Data, &st))
	require.True(t, st.IsRunning)
	require.Equal(t, 30.0, st.CurrentDiscountPercent)
}

func TestAdminRoutesRequireToken(t *testing.T) {
	r, svc, _ := setup(t)
	w, env := do(r, http.MethodPost, "/api/auctions/stop", nil, false)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, 401, env.Code)
	require.Equal(t, 0, svc.stopped)

	w, _ = do(r, http.MethodPost, "/api/auctions/stop", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, 1, svc.stopped)
}

func TestCreateAuction(t *testing.T) {
	r, svc, _ := setup(t)
	body := map[string]any{
		"interval_minutes":           10,
		"discount_increment_percent": 15,
		"start_mode":                 "scheduled",
		"scheduled_time":             "2026-03-10T09:00",
		"timezone":                   "Europe/Berlin",
		"initial_discount_percent":   20,
	}
	w, env := do(r, http.MethodPost, "/api/auctions", body, true)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, 0, env.Code)
	require.Equal(t, 10, svc.lastCreate.IntervalMinutes)
	require.Equal(t, auction.StartScheduled, svc.lastCreate.StartMode)
	require.NotNil(t, svc.lastCreate.InitialDiscountPercent)
	require.Equal(t, 20.0, *svc.lastCreate.InitialDiscountPercent)
}

func TestCreateAuctionErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"validation", errors.Wrap(auction.ErrInvalidInterval, "got 0"), http.StatusBadRequest},
		{"no products", auction.ErrNoEligibleProducts, http.StatusBadRequest},
		{"catalog down", errors.Wrap(auction.ErrCatalogUnavailable, "503"), http.StatusBadGateway},
		{"store", errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			r, svc, _ := setup(t)
			svc.createErr = tc.err
			w, env := do(r, http.MethodPost, "/api/auctions", map[string]any{"interval_minutes": 1}, true)
			require.Equal(t, tc.want, w.Code)
			require.Equal(t, tc.want, env.Code)
			require.NotEmpty(t, env.Msg)
		})
	}
}

func TestManualDiscount(t *testing.T) {
	r, svc, _ := setup(t)
	svc.mutationRes = catalog.Result{Eligible: 3, Updated: 2, FailedIDs: []string{"v3"}}

	w, env := do(r, http.MethodPost, "/api/auctions/manual-discount", map[string]any{"percent": 0}, true)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, []float64{0}, svc.manual)

	var data struct {
		Eligible  int      `json:"eligible"`
		Updated   int      `json:"updated"`
		Failed    int      `json:"failed"`
		FailedIDs []string `json:"failed_ids"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.Equal(t, 1, data.Failed)
	require.Equal(t, []string{"v3"}, data.FailedIDs)

	// 缺少 percent
	w, _ = do(r, http.MethodPost, "/api/auctions/manual-discount", map[string]any{}, true)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestResetAndCompareErrors(t *testing.T) {
	r, svc, _ := setup(t)
	svc.mutationErr = errors.Wrap(auction.ErrCatalogUnavailable, "timeout")
	w, _ := do(r, http.MethodPost, "/api/auctions/reset-prices", nil, true)
	require.Equal(t, http.StatusBadGateway, w.Code)
	w, _ = do(r, http.MethodPost, "/api/auctions/compare-prices", nil, true)
	require.Equal(t, http.StatusBadGateway, w.Code)
}

func TestListLogs(t *testing.T) {
	r, _, logs := setup(t)
	w, _ := do(r, http.MethodGet, "/api/auction-logs?limit=5", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, 5, logs.limit)

	w, _ = do(r, http.MethodGet, "/api/auction-logs?limit=abc", nil, true)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMetricsExposed(t *testing.T) {
	r, _, _ := setup(t)
	w, _ := do(r, http.MethodGet, "/metrics", nil, false)
	require.Equal(t, http.StatusOK, w.Code)
}
