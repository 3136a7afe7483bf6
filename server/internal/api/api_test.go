package api_test

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/sensorcal/sensorcal/pkg/pipeline"
	"github.com/sensorcal/sensorcal/server/internal/alerts"
	"github.com/sensorcal/sensorcal/server/internal/api"
	"github.com/sensorcal/sensorcal/server/internal/config"
	"github.com/sensorcal/sensorcal/server/internal/metrics"
	"github.com/sensorcal/sensorcal/server/internal/runner"
	"github.com/sensorcal/sensorcal/server/internal/store"
)

func init() { gin.SetMode(gin.TestMode) }

const scenarioCSV = "timestamp,measured,ideal\n" +
	"2024-03-01T00:00:00Z,100,100\n" +
	"2024-03-01T00:01:00Z,100.5,100\n" +
	"2024-03-01T00:02:00Z,110,100\n"

// --- test helpers -----------------------------------------------------------

type testServer struct {
	handler http.Handler
	store   *store.Memory
	alerts  *alerts.Engine
	reports string
}

func newServer(t *testing.T, mutate ...func(*api.Deps)) *testServer {
	t.Helper()
	st := store.NewMemory()
	dir := t.TempDir()
	eng := alerts.New(config.AlertsConfig{Rules: []config.AlertRule{
		{Name: "critical-reading", Condition: "alert == CRITICAL", Severity: "critical"},
	}})
	reg := metrics.New()
	r, err := runner.New(st, pipeline.DefaultThresholds(), config.ReportsConfig{Dir: dir, Prefix: "latest_report"},
		runner.WithEvaluator(eng), runner.WithMetrics(reg))
	if err != nil {
		t.Fatalf("runner.New: %v", err)
	}
	d := api.Deps{
		Store:      st,
		Runner:     r,
		Alerts:     eng,
		Metrics:    reg,
		ReportsDir: dir,
	}
	for _, m := range mutate {
		m(&d)
	}
	return &testServer{handler: api.New(d), store: st, alerts: eng, reports: dir}
}

func (s *testServer) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	s.handler.ServeHTTP(rr, req)
	return rr
}

func (s *testServer) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	return s.do(t, httptest.NewRequest(http.MethodGet, path, nil))
}

func uploadRequest(t *testing.T, field, content string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, "readings.csv")
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	fw.Write([]byte(content)) //nolint:errcheck
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decode JSON: %v (body: %s)", err, rr.Body.String())
	}
}

// --- /api/v1/upload ---------------------------------------------------------

func TestUpload_RunsPipeline(t *testing.T) {
	s := newServer(t)
	rr := s.do(t, uploadRequest(t, "file", scenarioCSV))
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200 (body %s)", rr.Code, rr.Body.String())
	}

	var resp struct {
		RunID     string            `json:"run_id"`
		Stored    int               `json:"stored"`
		Status    map[string]any    `json:"status"`
		Rows      []map[string]any  `json:"rows"`
		Downloads map[string]string `json:"downloads"`
	}
	decode(t, rr, &resp)

	if resp.RunID == "" || resp.Stored != 3 || len(resp.Rows) != 3 {
		t.Fatalf("response: %+v", resp)
	}
	if resp.Status["alert"] != "CRITICAL" || resp.Status["anomaly"] != "Out-of-Range" {
		t.Errorf("status: %v", resp.Status)
	}
	if resp.Rows[1]["alert"] != "NORMAL" {
		t.Errorf("row 1 alert: got %v, want NORMAL", resp.Rows[1]["alert"])
	}
	if got := resp.Downloads["pdf"]; got != "/api/v1/reports/latest_report.pdf" {
		t.Errorf("pdf download: got %q", got)
	}
	if s.store.Count() != 3 {
		t.Errorf("store rows: got %d, want 3", s.store.Count())
	}

	s.alerts.Wait()
	if n := s.alerts.Firing(); n != 1 {
		t.Errorf("firing alerts: got %d, want 1", n)
	}
}

func TestUpload_SchemaErrorIs422AndStoresNothing(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"missing column", "timestamp,measured\n2024-03-01T00:00:00Z,100\n"},
		{"non-numeric", "measured,ideal\n100,100\nabc,100\n"},
		{"header only", "measured,ideal\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := newServer(t)
			rr := s.do(t, uploadRequest(t, "file", tc.content))
			if rr.Code != http.StatusUnprocessableEntity {
				t.Fatalf("status: got %d, want 422 (body %s)", rr.Code, rr.Body.String())
			}
			var resp map[string]any
			decode(t, rr, &resp)
			if resp["kind"] != metrics.RejectSchema {
				t.Errorf("kind: got %v, want schema", resp["kind"])
			}
			if s.store.Count() != 0 {
				t.Errorf("rejected upload stored %d rows", s.store.Count())
			}
		})
	}
}

func TestUpload_MissingFileField(t *testing.T) {
	s := newServer(t)
	rr := s.do(t, uploadRequest(t, "other", scenarioCSV))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", rr.Code)
	}
}

func TestUpload_TooLarge(t *testing.T) {
	s := newServer(t, func(d *api.Deps) { d.UploadMaxBytes = 64 })
	rr := s.do(t, uploadRequest(t, "file", scenarioCSV+strings.Repeat("2024-03-01T00:03:00Z,100,100\n", 10)))
	if rr.Code != http.StatusRequestEntityTooLarge && rr.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want 413 or 400", rr.Code)
	}
	if s.store.Count() != 0 {
		t.Error("oversized upload was stored")
	}
}

// --- /api/v1/readings -------------------------------------------------------

func TestReadings_JSON(t *testing.T) {
	s := newServer(t)
	body := `[{"measured": 100, "ideal": 100}, {"measured": "100.2", "ideal": 100}]`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/readings", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	rr := s.do(t, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200 (body %s)", rr.Code, rr.Body.String())
	}
	if s.store.Count() != 2 {
		t.Errorf("store rows: got %d, want 2", s.store.Count())
	}
}

func TestReadings_BadBody(t *testing.T) {
	for _, body := range []string{`{"measured": 1}`, `[]`, `[{"measured": true, "ideal": 1}]`} {
		s := newServer(t)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/readings", strings.NewReader(body))
		if rr := s.do(t, req); rr.Code != http.StatusUnprocessableEntity {
			t.Errorf("body %s: status %d, want 422", body, rr.Code)
		}
	}
}

// --- /api/v1/history --------------------------------------------------------

func TestHistory(t *testing.T) {
	s := newServer(t)
	s.do(t, uploadRequest(t, "file", scenarioCSV))

	rr := s.get(t, "/api/v1/history?limit=2")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d", rr.Code)
	}
	var rows []map[string]any
	decode(t, rr, &rows)
	if len(rows) != 2 {
		t.Fatalf("rows: got %d, want 2", len(rows))
	}
	if rows[0]["measured"].(float64) != 100.5 || rows[1]["measured"].(float64) != 110 {
		t.Errorf("history should be the newest rows oldest first, got %v", rows)
	}

	rr = s.get(t, "/api/v1/history")
	decode(t, rr, &rows)
	if len(rows) != 3 {
		t.Errorf("default limit: got %d rows, want 3", len(rows))
	}
}

func TestHistory_EmptyIsArray(t *testing.T) {
	rr := newServer(t).get(t, "/api/v1/history")
	if strings.TrimSpace(rr.Body.String()) != "[]" {
		t.Errorf("body: got %s, want []", rr.Body.String())
	}
}

func TestHistory_BadLimit(t *testing.T) {
	s := newServer(t)
	for _, q := range []string{"abc", "-1"} {
		if rr := s.get(t, "/api/v1/history?limit="+q); rr.Code != http.StatusBadRequest {
			t.Errorf("limit=%s: status %d, want 400", q, rr.Code)
		}
	}
}

// --- /api/v1/status & runs --------------------------------------------------

func TestStatus_Empty(t *testing.T) {
	rr := newServer(t).get(t, "/api/v1/status")
	var resp api.StatusResponse
	decode(t, rr, &resp)
	if resp.State != "unknown" || resp.Status != nil {
		t.Errorf("empty status: %+v", resp)
	}
	if len(resp.Diagnostics) != 1 || resp.Diagnostics[0].Key != "no_data" {
		t.Errorf("diagnostics: %+v", resp.Diagnostics)
	}
}

func TestStatus_AfterRun(t *testing.T) {
	s := newServer(t)
	s.do(t, uploadRequest(t, "file", scenarioCSV))
	s.alerts.Wait()

	var resp api.StatusResponse
	decode(t, s.get(t, "/api/v1/status"), &resp)

	if resp.State != "CRITICAL" || resp.Status == nil || resp.Status.Measured != 110 {
		t.Fatalf("status: %+v", resp)
	}
	if resp.RunRows != 3 || resp.FiringAlerts != 1 {
		t.Errorf("run_rows=%d firing=%d", resp.RunRows, resp.FiringAlerts)
	}
	if resp.Diagnostics[0].Key != "out_of_range" || resp.Diagnostics[0].Level != "critical" {
		t.Errorf("first diagnostic: %+v", resp.Diagnostics[0])
	}
}

func TestRun_ByID(t *testing.T) {
	s := newServer(t)
	rr := s.do(t, uploadRequest(t, "file", scenarioCSV))
	var res struct {
		RunID string `json:"run_id"`
	}
	decode(t, rr, &res)

	var resp api.RunRowsResponse
	decode(t, s.get(t, "/api/v1/runs/"+res.RunID), &resp)
	if resp.RunID != res.RunID || len(resp.Rows) != 3 {
		t.Errorf("run: %+v", resp)
	}

	if rr := s.get(t, "/api/v1/runs/does-not-exist"); rr.Code != http.StatusNotFound {
		t.Errorf("unknown run: status %d, want 404", rr.Code)
	}
}

// --- /api/v1/alerts ---------------------------------------------------------

func TestAlerts(t *testing.T) {
	s := newServer(t)
	rr := s.get(t, "/api/v1/alerts")
	if strings.TrimSpace(rr.Body.String()) != "[]" {
		t.Errorf("no alerts: got %s", rr.Body.String())
	}

	s.do(t, uploadRequest(t, "file", scenarioCSV))
	s.alerts.Wait()

	var got []alerts.Alert
	decode(t, s.get(t, "/api/v1/alerts"), &got)
	if len(got) != 1 || got[0].RuleName != "critical-reading" || got[0].State != alerts.StateFiring {
		t.Errorf("alerts: %+v", got)
	}
}

func TestAlerts_NoEngine(t *testing.T) {
	s := newServer(t, func(d *api.Deps) { d.Alerts = nil })
	if rr := s.get(t, "/api/v1/alerts"); strings.TrimSpace(rr.Body.String()) != "[]" {
		t.Errorf("body: %s", rr.Body.String())
	}
}

// --- /api/v1/reports --------------------------------------------------------

func TestReports_Download(t *testing.T) {
	s := newServer(t)
	s.do(t, uploadRequest(t, "file", scenarioCSV))

	rr := s.get(t, "/api/v1/reports/latest_report.csv")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d", rr.Code)
	}
	if !strings.HasPrefix(rr.Body.String(), "timestamp,measured,ideal,offset") {
		t.Errorf("csv body: %.60s", rr.Body.String())
	}
	if cd := rr.Header().Get("Content-Disposition"); !strings.Contains(cd, "latest_report.csv") {
		t.Errorf("Content-Disposition: %q", cd)
	}
}

func TestReports_RejectsTraversalAndMissing(t *testing.T) {
	s := newServer(t)
	secret := filepath.Join(filepath.Dir(s.reports), "secret.txt")
	os.WriteFile(secret, []byte("nope"), 0o600) //nolint:errcheck

	for path, want := range map[string]int{
		"/api/v1/reports/..":              http.StatusBadRequest,
		"/api/v1/reports/.hidden":         http.StatusBadRequest,
		"/api/v1/reports/..%2Fsecret.txt": http.StatusBadRequest,
		"/api/v1/reports/missing.pdf":     http.StatusNotFound,
	} {
		rr := s.get(t, path)
		if rr.Code == http.StatusOK {
			t.Errorf("%s: served a file", path)
			continue
		}
		if rr.Code != want && rr.Code != http.StatusNotFound {
			t.Errorf("%s: status %d, want %d", path, rr.Code, want)
		}
	}
}

// --- auth, health, metrics --------------------------------------------------

func TestAPIKeyGuardsAPIGroupOnly(t *testing.T) {
	t.Setenv("TEST_API_KEY", "k1")
	s := newServer(t, func(d *api.Deps) {
		d.Auth = config.AuthConfig{Mode: "apikey", KeyEnv: "TEST_API_KEY"}
	})

	if rr := s.get(t, "/api/v1/history"); rr.Code != http.StatusUnauthorized {
		t.Errorf("no key: status %d, want 401", rr.Code)
	}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/history", nil)
	req.Header.Set("x-api-key", "k1")
	if rr := s.do(t, req); rr.Code != http.StatusOK {
		t.Errorf("with key: status %d, want 200", rr.Code)
	}
	if rr := s.get(t, "/health"); rr.Code != http.StatusOK {
		t.Errorf("/health: status %d, want 200", rr.Code)
	}
}

func TestMetricsRoute(t *testing.T) {
	s := newServer(t)
	s.do(t, uploadRequest(t, "file", scenarioCSV))
	s.do(t, uploadRequest(t, "file", "measured\n1\n"))

	body := s.get(t, "/metrics").Body.String()
	for _, want := range []string{
		"sensorcal_runs_total 1",
		"sensorcal_readings_total 3",
		`sensorcal_runs_rejected_total{kind="schema"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}

func TestCORSPreflight(t *testing.T) {
	s := newServer(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/upload", nil)
	req.Header.Set("Origin", "http://dashboard.local")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rr := s.do(t, req)
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Allow-Origin: got %q, want *", got)
	}
}
