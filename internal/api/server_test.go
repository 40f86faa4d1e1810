package api_test

import (
	"bytes"
	"context"
	stderrors "errors"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"codeberg.org/mutker/boostctl/internal/api"
	"codeberg.org/mutker/boostctl/internal/errors"
	"codeberg.org/mutker/boostctl/internal/history"
	"codeberg.org/mutker/boostctl/internal/logger"
	"codeberg.org/mutker/boostctl/internal/metrics"
	"codeberg.org/mutker/boostctl/internal/mode"
	"codeberg.org/mutker/boostctl/internal/permission"
	"codeberg.org/mutker/boostctl/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	server   *api.Server
	modes    *mode.Controller
	service  *telemetry.Service
	checker  *permission.StaticChecker
	recorder history.Recorder
}

func newFixture(t *testing.T, hist history.Config) *fixture {
	t.Helper()

	log := logger.Nop()

	modes, err := mode.NewController(mode.Balance, log)
	require.NoError(t, err)

	recorder, err := history.NewRecorder(hist, log)
	require.NoError(t, err)
	t.Cleanup(func() { recorder.Close() })

	reg := prometheus.NewRegistry()
	exporter := metrics.NewExporter(reg)
	exporter.SetMode(modes.Mode())
	modes.Subscribe(exporter.ModeChanged)

	cfg := telemetry.DefaultConfig()
	cfg.Seed = 1
	service, err := telemetry.NewService(cfg, modes, log, recorder, exporter)
	require.NoError(t, err)

	sims := make([]api.SnapshotSource, 0, 3)
	for _, sim := range service.Simulators() {
		sims = append(sims, sim)
	}

	checker := permission.NewStaticChecker(permission.Capabilities{})

	server := api.NewServer("127.0.0.1:0", api.Deps{
		Modes:        modes,
		Simulators:   sims,
		History:      recorder,
		Setup:        permission.NewFlow(checker, log),
		Capabilities: checker,
		Gatherer:     reg,
	}, log)

	return &fixture{
		server:   server,
		modes:    modes,
		service:  service,
		checker:  checker,
		recorder: recorder,
	}
}

func (f *fixture) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v))
}

func TestStatus(t *testing.T) {
	f := newFixture(t, history.DefaultConfig())

	w := f.do(t, http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Mode              string `json:"mode"`
		OptimizationScore int    `json:"optimization_score"`
		Snapshots         []struct {
			Source string             `json:"source"`
			Values map[string]float64 `json:"values"`
		} `json:"snapshots"`
	}
	decode(t, w, &body)

	assert.Equal(t, "balance", body.Mode)
	assert.Equal(t, 72, body.OptimizationScore)
	require.Len(t, body.Snapshots, 3)
	assert.Equal(t, "primary", body.Snapshots[0].Source)
	assert.Equal(t, 45.0, body.Snapshots[0].Values["cpu"])
	assert.Equal(t, 80.0, body.Snapshots[1].Values["ping"])
	assert.Equal(t, 30.0, body.Snapshots[2].Values["temperature"])
}

func TestSetMode(t *testing.T) {
	f := newFixture(t, history.DefaultConfig())

	w := f.do(t, http.MethodPut, "/api/mode", `{"mode":"boost"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"mode":"boost","optimization_score":95}`, w.Body.String())
	assert.Equal(t, mode.Boost, f.modes.Mode())

	// The primary simulator is already inside the boost ranges.
	fps, ok := f.service.Primary.Value(telemetry.FPS)
	require.True(t, ok)
	assert.GreaterOrEqual(t, fps, 100.0)

	w = f.do(t, http.MethodGet, "/api/mode", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"mode":"boost","optimization_score":95}`, w.Body.String())
}

func TestSetModeRejectsUnknown(t *testing.T) {
	f := newFixture(t, history.DefaultConfig())

	w := f.do(t, http.MethodPut, "/api/mode", `{"mode":"turbo"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	var body api.ErrorResponse
	decode(t, w, &body)
	assert.Equal(t, "invalid_mode", string(body.Code))
	assert.NotEmpty(t, body.Error)
	assert.Equal(t, mode.Balance, f.modes.Mode())

	w = f.do(t, http.MethodPut, "/api/mode", `{}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	decode(t, w, &body)
	assert.Equal(t, "invalid_argument", string(body.Code))
}

func TestRanges(t *testing.T) {
	f := newFixture(t, history.DefaultConfig())

	w := f.do(t, http.MethodGet, "/api/ranges", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body api.RangesResponse
	decode(t, w, &body)
	assert.Equal(t, mode.Balance, body.Mode)
	assert.Equal(t, telemetry.Range{Min: 30, Max: 70}, body.Ranges[telemetry.CPU].Range)
	assert.Equal(t, 10.0, body.Ranges[telemetry.CPU].StepScale)

	w = f.do(t, http.MethodGet, "/api/ranges?mode=boost", "")
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &body)
	assert.Equal(t, mode.Boost, body.Mode)
	assert.Equal(t, telemetry.Range{Min: 100, Max: 144}, body.Ranges[telemetry.FPS].Range)

	w = f.do(t, http.MethodGet, "/api/ranges?mode=nope", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHistoryDisabled(t *testing.T) {
	f := newFixture(t, history.DefaultConfig())

	w := f.do(t, http.MethodGet, "/api/history", "")
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	var body api.ErrorResponse
	decode(t, w, &body)
	assert.Equal(t, history.ErrDisabled, body.Code)
}

func TestHistory(t *testing.T) {
	dir := t.TempDir()
	f := newFixture(t, history.Config{
		Enabled:   true,
		DBPath:    filepath.Join(dir, "history.db"),
		BatchSize: 100,
	})

	f.service.Primary.Tick()
	f.service.Network.Tick()

	w := f.do(t, http.MethodGet, "/api/history?duration=60&source=network", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Duration int              `json:"duration"`
		Count    int              `json:"count"`
		Data     []history.Sample `json:"data"`
	}
	decode(t, w, &body)
	assert.Equal(t, 60, body.Duration)
	require.Equal(t, 1, body.Count)
	assert.Equal(t, "ping", body.Data[0].Metric)
	assert.Equal(t, f.recorder.Session(), body.Data[0].Session)

	w = f.do(t, http.MethodGet, "/api/history", "")
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &body)
	assert.Equal(t, 5, body.Count)

	w = f.do(t, http.MethodGet, "/api/history?duration=abc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSetupFlow(t *testing.T) {
	f := newFixture(t, history.DefaultConfig())

	w := f.do(t, http.MethodGet, "/api/setup", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"step":"intro","capabilities":{"overlay":false,"write_settings":false}}`, w.Body.String())

	w = f.do(t, http.MethodPost, "/api/setup/advance", "")
	assert.JSONEq(t, `{"step":"overlay","capabilities":{"overlay":false,"write_settings":false}}`, w.Body.String())

	w = f.do(t, http.MethodPost, "/api/setup/advance", "")
	assert.Contains(t, w.Body.String(), `"step":"overlay"`)

	w = f.do(t, http.MethodPost, "/api/setup/capabilities", `{"overlay":true,"write_settings":true}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"step":"overlay"`)
	assert.True(t, f.checker.CanDrawOverlays())

	w = f.do(t, http.MethodPost, "/api/setup/recheck", "")
	assert.JSONEq(t, `{"step":"done","capabilities":{"overlay":true,"write_settings":true}}`, w.Body.String())

	w = f.do(t, http.MethodPost, "/api/setup/capabilities", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, history.DefaultConfig())

	f.service.Thermal.Tick()
	f.do(t, http.MethodPut, "/api/mode", `{"mode":"saving"}`)

	w := f.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)

	body := w.Body.String()
	assert.Contains(t, body, `boostctl_simulator_ticks_total{source="thermal"} 1`)
	assert.Contains(t, body, `boostctl_mode_active{mode="saving"} 1`)
	assert.Contains(t, body, "boostctl_mode_changes_total 1")
	assert.Contains(t, body, `boostctl_simulator_metric_value{metric="temperature",source="thermal"}`)
}

func TestRunShutsDownOnCancel(t *testing.T) {
	f := newFixture(t, history.DefaultConfig())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.server.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not stop")
	}
}

type failingHistory struct{}

func (failingHistory) Enabled() bool { return true }

func (failingHistory) Query(context.Context, time.Time, string) ([]history.Sample, error) {
	return nil, errors.New().Wrap(history.ErrStorageAccess, stderrors.New("disk gone"))
}

func TestHistoryFailureLogsErrorCode(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New(&buf)

	modes, err := mode.NewController(mode.Balance, log)
	require.NoError(t, err)

	server := api.NewServer("127.0.0.1:0", api.Deps{
		Modes:   modes,
		History: failingHistory{},
	}, log)

	req := httptest.NewRequest(http.MethodGet, "/api/history", nil)
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusInternalServerError, w.Code)
	var body api.ErrorResponse
	decode(t, w, &body)
	assert.Equal(t, history.ErrStorageAccess, body.Code)

	assert.Contains(t, buf.String(), `"error_code":"history_storage_access_failed"`)
	assert.Contains(t, buf.String(), `"error":"disk gone"`)
}
