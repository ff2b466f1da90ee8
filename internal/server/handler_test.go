package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"farmcall/internal/chunked"
	"farmcall/internal/farm"
)

type mockFarm struct {
	snapshot *farm.Snapshot
	details  map[uint64]*farm.PoolDetail
	loading  map[uint64]bool
}

func (m *mockFarm) Snapshot() *farm.Snapshot { return m.snapshot }

func (m *mockFarm) PoolDetail(pid uint64) (*farm.PoolDetail, error) {
	if m.loading[pid] {
		return nil, farm.ErrPoolLoading
	}
	d, ok := m.details[pid]
	if !ok {
		return nil, farm.ErrPoolNotFound
	}
	return d, nil
}

type mockHealth struct{ healthy bool }

func (m mockHealth) HasHealthyUpstreams() bool { return m.healthy }

type mockBlocks struct{ latest uint64 }

func (m mockBlocks) Latest() uint64 { return m.latest }

func newTestHandler(healthy bool, block uint64) (*Handler, *chunked.Counts, *prometheus.Registry) {
	counts := chunked.NewCounts()
	reg := prometheus.NewRegistry()
	f := &mockFarm{
		snapshot: &farm.Snapshot{BlockNumber: 12, Pools: []farm.PoolView{{RawPool: farm.RawPool{PoolID: 3}}}},
		details:  map[uint64]*farm.PoolDetail{1: {RawPool: farm.RawPool{PoolID: 1}}},
		loading:  map[uint64]bool{2: true},
	}
	return NewHandler(f, counts, mockHealth{healthy: healthy}, mockBlocks{latest: block}, reg, zerolog.Nop()), counts, reg
}

func get(h http.Handler, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHandlePools(t *testing.T) {
	h, _, _ := newTestHandler(true, 12)

	rec := get(h, "/pools")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var snap farm.Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if snap.BlockNumber != 12 || len(snap.Pools) != 1 || snap.Pools[0].PoolID != 3 {
		t.Errorf("unexpected snapshot %+v", snap)
	}
}

func TestHandlePool(t *testing.T) {
	h, _, _ := newTestHandler(true, 12)

	tests := []struct {
		path string
		code int
	}{
		{"/pools/1", http.StatusOK},
		{"/pools/2", http.StatusAccepted},
		{"/pools/9", http.StatusNotFound},
		{"/pools/abc", http.StatusBadRequest},
	}
	for _, tt := range tests {
		if rec := get(h, tt.path); rec.Code != tt.code {
			t.Errorf("%s: expected %d, got %d", tt.path, tt.code, rec.Code)
		}
	}
}

func TestHandleCallCounts(t *testing.T) {
	h, counts, _ := newTestHandler(true, 12)
	counts.Record("lpToken", "lpToken:[0],[1]")
	counts.Record("lpToken", "lpToken:[0],[1]")

	rec := get(h, "/debug/callcounts")
	var got map[string]uint64
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if got["lpToken:[0],[1]"] != 2 {
		t.Errorf("expected count 2, got %v", got)
	}
}

func TestHandleHealth(t *testing.T) {
	tests := []struct {
		name    string
		healthy bool
		block   uint64
		code    int
	}{
		{"healthy", true, 5, http.StatusOK},
		{"no block yet", true, 0, http.StatusServiceUnavailable},
		{"no upstreams", false, 5, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _, _ := newTestHandler(tt.healthy, tt.block)
			if rec := get(h, "/healthz"); rec.Code != tt.code {
				t.Errorf("expected %d, got %d", tt.code, rec.Code)
			}
		})
	}
}

func TestHandleMetrics(t *testing.T) {
	h, _, reg := newTestHandler(true, 12)
	chunked.NewPrometheusCounter(reg).Record("token0", "token0:0xa")

	rec := get(h, "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `farmcall_chunked_dispatch_total{method="token0"} 1`) {
		t.Errorf("dispatch counter missing from metrics output")
	}
}

func TestUnknownRouteAndMethod(t *testing.T) {
	h, _, _ := newTestHandler(true, 12)

	if rec := get(h, "/nope"); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/pools", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rec.Code)
	}
}
