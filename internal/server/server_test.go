package server

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/rewired-gh/strikewatch/internal/analyzer"
	"github.com/rewired-gh/strikewatch/internal/models"
	"github.com/rewired-gh/strikewatch/internal/monitor"
)

type fakeSignals struct {
	records []models.SignalRecord
	err     error
	limit   int
}

func (f *fakeSignals) GetRecentSignals(k int) ([]models.SignalRecord, error) {
	f.limit = k
	if f.err != nil {
		return nil, f.err
	}
	if k < len(f.records) {
		return f.records[:k], nil
	}
	return f.records, nil
}

func instrument(strike string, ltp, vol, avg, oi float64) models.InstrumentRow {
	return models.InstrumentRow{
		StrikeKey: strike,
		LTP: ltp, TotalVolume: vol, AveragePrice: avg, OpenInterest: oi,
	}
}

func newTestRouter(t *testing.T, signals SignalStore) (http.Handler, *monitor.Controller) {
	t.Helper()
	c := monitor.NewController(analyzer.PolicyZeroLeg, analyzer.DefaultSignalRule())
	c.OnSnapshot("cycle-1", []models.InstrumentRow{
		instrument("100", 10, 100, 50, 10),
		instrument("100", 9, 200, 5, 1),
		instrument("150", 40, 10, 30, 5),
		instrument("150", 20, 10, 20, 5),
		instrument("1500", 5, 1, 5, 1),
	})
	return NewRouter(NewServer(c, signals, nil, zap.NewNop()), nil), c
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeView(t *testing.T, rec *httptest.ResponseRecorder) monitor.View {
	t.Helper()
	var v monitor.View
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode view: %v (%s)", err, rec.Body.String())
	}
	return v
}

func strikes(v monitor.View) string {
	out := make([]string, len(v.Rows))
	for i, r := range v.Rows {
		out[i] = r.Strike
	}
	return strings.Join(out, ",")
}

func TestHealth(t *testing.T) {
	h, _ := newTestRouter(t, nil)
	rec := do(t, h, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body healthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Status != "ok" || body.CycleID != "cycle-1" {
		t.Errorf("unexpected health body: %+v", body)
	}
}

func TestGetView(t *testing.T) {
	h, c := newTestRouter(t, nil)

	tests := []struct {
		name   string
		target string
		status int
		want   string
	}{
		{"strike order", "/api/view", http.StatusOK, "100,150,1500"},
		{"sorted descending", "/api/view?sort=diffLtpVol&order=desc", http.StatusOK, "150,1500,100"},
		{"sorted ascending", "/api/view?sort=diffLtpVol", http.StatusOK, "100,1500,150"},
		{"filtered", "/api/view?filter=150", http.StatusOK, "150,1500"},
		{"unknown field", "/api/view?sort=bogus", http.StatusBadRequest, ""},
		{"bad order", "/api/view?sort=avgRatio&order=up", http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodGet, tt.target, "")
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.status, rec.Body.String())
			}
			if tt.status != http.StatusOK {
				return
			}
			v := decodeView(t, rec)
			if got := strikes(v); got != tt.want {
				t.Errorf("rows = %s, want %s", got, tt.want)
			}
			if len(v.Colors) != len(v.Rows) {
				t.Errorf("colors not parallel to rows")
			}
		})
	}

	if c.View().Sort.Field != "" || c.View().Filter != "" {
		t.Error("query parameters must not change controller state")
	}
}

func TestSortEndpoint(t *testing.T) {
	h, c := newTestRouter(t, nil)

	rec := do(t, h, http.MethodPost, "/api/view/sort", `{"field":"diffLtpVol"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if v := decodeView(t, rec); !v.Sort.Ascending || strikes(v) != "100,1500,150" {
		t.Errorf("first click: sort=%+v rows=%s", v.Sort, strikes(v))
	}

	rec = do(t, h, http.MethodPost, "/api/view/sort", `{"field":"diffLtpVol"}`)
	if v := decodeView(t, rec); v.Sort.Ascending || strikes(v) != "150,1500,100" {
		t.Errorf("second click: sort=%+v rows=%s", v.Sort, strikes(v))
	}
	if c.View().Sort.Field != models.FieldDiffLtpVol {
		t.Error("sort should be stored on the controller")
	}

	for _, body := range []string{`{"field":"nope"}`, `not json`} {
		if rec := do(t, h, http.MethodPost, "/api/view/sort", body); rec.Code != http.StatusBadRequest {
			t.Errorf("body %s: status = %d, want 400", body, rec.Code)
		}
	}
}

func TestFilterEndpoint(t *testing.T) {
	h, c := newTestRouter(t, nil)

	rec := do(t, h, http.MethodPost, "/api/view/filter", `{"text":"150"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if v := decodeView(t, rec); strikes(v) != "150,1500" || v.Total != 3 {
		t.Errorf("rows = %s total = %d", strikes(v), v.Total)
	}
	if c.View().Filter != "150" {
		t.Error("filter should be stored on the controller")
	}
}

func TestSignalsEndpoint(t *testing.T) {
	now := time.Now()
	store := &fakeSignals{records: []models.SignalRecord{
		{CycleID: "c2", Strike: "100", AvgRatio: 0.4, DetectedAt: now},
		{CycleID: "c1", Strike: "100", AvgRatio: 0.5, DetectedAt: now.Add(-time.Minute)},
	}}
	h, _ := newTestRouter(t, store)

	rec := do(t, h, http.MethodGet, "/api/signals?limit=1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got []models.SignalRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].CycleID != "c2" {
		t.Errorf("unexpected records: %+v", got)
	}

	do(t, h, http.MethodGet, "/api/signals", "")
	if store.limit != defaultSignalLimit {
		t.Errorf("default limit = %d, want %d", store.limit, defaultSignalLimit)
	}
	do(t, h, http.MethodGet, "/api/signals?limit=100000", "")
	if store.limit != maxSignalLimit {
		t.Errorf("limit should be capped at %d, got %d", maxSignalLimit, store.limit)
	}

	if rec := do(t, h, http.MethodGet, "/api/signals?limit=-2", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("negative limit: status = %d, want 400", rec.Code)
	}

	store.err = errors.New("db closed")
	if rec := do(t, h, http.MethodGet, "/api/signals", ""); rec.Code != http.StatusInternalServerError {
		t.Errorf("store error: status = %d, want 500", rec.Code)
	}
}

func TestSignalsEndpoint_NoStore(t *testing.T) {
	h, _ := newTestRouter(t, nil)
	if rec := do(t, h, http.MethodGet, "/api/signals", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	h, _ := newTestRouter(t, nil)
	rec := do(t, h, http.MethodOptions, "/api/view", "")
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("missing CORS header")
	}
}

func TestWriteJSON_EncodeFailure(t *testing.T) {
	srv := NewServer(nil, nil, nil, zap.NewNop())
	rec := httptest.NewRecorder()
	srv.writeJSON(rec, http.StatusOK, map[string]float64{"v": math.Inf(1)})

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	var body errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || body.Error == "" {
		t.Errorf("expected JSON error body, got %q", rec.Body.String())
	}
}
