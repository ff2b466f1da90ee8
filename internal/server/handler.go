package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"farmcall/internal/farm"
)

// FarmView serves the dashboard data
type FarmView interface {
	Snapshot() *farm.Snapshot
	PoolDetail(pid uint64) (*farm.PoolDetail, error)
}

// CallCounts exposes dispatch counts per request key
type CallCounts interface {
	Snapshot() map[string]uint64
}

// HealthSource reports whether the service can read the chain
type HealthSource interface {
	HasHealthyUpstreams() bool
}

// BlockHeight reports the chain head
type BlockHeight interface {
	Latest() uint64
}

// Handler serves the HTTP API
type Handler struct {
	farm   FarmView
	counts CallCounts
	health HealthSource
	blocks BlockHeight
	mux    *http.ServeMux
	logger zerolog.Logger
}

// NewHandler creates a new Handler
func NewHandler(farmView FarmView, counts CallCounts, health HealthSource, blocks BlockHeight, gatherer prometheus.Gatherer, logger zerolog.Logger) *Handler {
	h := &Handler{
		farm:   farmView,
		counts: counts,
		health: health,
		blocks: blocks,
		mux:    http.NewServeMux(),
		logger: logger.With().Str("component", "http").Logger(),
	}

	h.mux.HandleFunc("GET /pools", h.handlePools)
	h.mux.HandleFunc("GET /pools/{pid}", h.handlePool)
	h.mux.HandleFunc("GET /debug/callcounts", h.handleCallCounts)
	h.mux.HandleFunc("GET /healthz", h.handleHealth)
	h.mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return h
}

// ServeHTTP handles HTTP requests
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) handlePools(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, h.farm.Snapshot())
}

func (h *Handler) handlePool(w http.ResponseWriter, r *http.Request) {
	pid, err := strconv.ParseUint(r.PathValue("pid"), 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid pool id")
		return
	}

	detail, err := h.farm.PoolDetail(pid)
	switch {
	case errors.Is(err, farm.ErrPoolNotFound):
		h.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, farm.ErrPoolLoading):
		h.writeError(w, http.StatusAccepted, err.Error())
	case err != nil:
		h.logger.Error().Err(err).Uint64("pid", pid).Msg("failed to read pool")
		h.writeError(w, http.StatusInternalServerError, "internal error")
	default:
		h.writeJSON(w, http.StatusOK, detail)
	}
}

func (h *Handler) handleCallCounts(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, h.counts.Snapshot())
}

type healthResponse struct {
	Status      string `json:"status"`
	BlockNumber uint64 `json:"blockNumber"`
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	block := h.blocks.Latest()
	if block == 0 || !h.health.HasHealthyUpstreams() {
		h.writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable", BlockNumber: block})
		return
	}
	h.writeJSON(w, http.StatusOK, healthResponse{Status: "ok", BlockNumber: block})
}

// writeJSON writes v as a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to marshal response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError writes an error message as JSON
func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
