package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/innovatorsguild/sales-agents/internal/domain"
	"github.com/innovatorsguild/sales-agents/internal/leadstore"
	"github.com/innovatorsguild/sales-agents/internal/state"
)

// StatsProvider is implemented by the worker pollers.
type StatsProvider interface {
	Stats() map[string]int64
}

// UsageStore reports per-account send counters.
type UsageStore interface {
	GetUsage(ctx context.Context) ([]state.AccountUsage, error)
}

// Handlers serves the read-only status endpoints. It never writes to the
// sheet or the store.
type Handlers struct {
	store   leadstore.Store
	usage   UsageStore
	agents  map[string]StatsProvider
	started time.Time
}

func NewHandlers(store leadstore.Store, usage UsageStore) *Handlers {
	return &Handlers{
		store:   store,
		usage:   usage,
		agents:  make(map[string]StatsProvider),
		started: time.Now(),
	}
}

// RegisterAgent exposes a poller's counters under the given name.
func (h *Handlers) RegisterAgent(name string, p StatsProvider) {
	h.agents[name] = p
}

// HealthCheck reports liveness.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.started).Round(time.Second).String(),
	})
}

// GetStatus returns the lead funnel, per-account send usage and per-agent
// counters in one call.
func (h *Handlers) GetStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	leads, err := h.store.List(ctx, leadstore.Filter{})
	if err != nil {
		respondError(w, http.StatusBadGateway, "lead sheet unavailable: "+err.Error())
		return
	}

	funnel := map[string]int{}
	for _, status := range []domain.ContactStatus{
		domain.StatusNotContacted,
		domain.StatusAllocated,
		domain.StatusInvitationSent,
		domain.StatusMessageSent,
		domain.StatusResponded,
		domain.StatusClosed,
		domain.StatusFailed,
	} {
		funnel[string(status)] = 0
	}
	for _, lead := range leads {
		funnel[string(lead.ContactStatus)]++
	}

	usage, err := h.usage.GetUsage(ctx)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "usage unavailable: "+err.Error())
		return
	}

	agents := make(map[string]map[string]int64, len(h.agents))
	for name, p := range h.agents {
		agents[name] = p.Stats()
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"timestamp":   time.Now().UTC(),
		"total_leads": len(leads),
		"funnel":      funnel,
		"usage":       usage,
		"agents":      agents,
	})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
