package broker

import (
	"net/http"
	"strconv"
	"strings"

	"ytmusicdl/internal/api"
	"ytmusicdl/internal/ledger"
	"ytmusicdl/internal/registry"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 1000
)

func (b *Broker) handleStatus(w http.ResponseWriter, _ *http.Request) {
	var status api.Status
	b.reg.View(func(tx *registry.Tx) {
		status = api.SnapshotStatus(tx)
	})
	writeJSON(w, http.StatusOK, status)
}

func (b *Broker) handleHistory(w http.ResponseWriter, r *http.Request) {
	if b.history == nil {
		writeError(w, http.StatusServiceUnavailable, "ledger disabled")
		return
	}
	filter := ledger.Filter{
		SessionID: strings.TrimSpace(r.URL.Query().Get("session")),
		Limit:     defaultHistoryLimit,
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		filter.Limit = min(limit, maxHistoryLimit)
	}
	for _, kind := range r.URL.Query()["kind"] {
		if kind = strings.TrimSpace(kind); kind != "" {
			filter.Kinds = append(filter.Kinds, ledger.Kind(kind))
		}
	}

	events, err := b.history.Recent(r.Context(), filter)
	if err != nil {
		b.logRequestError(r, "history query failed", err)
		writeError(w, http.StatusInternalServerError, "history query failed")
		return
	}
	if events == nil {
		events = []ledger.Event{}
	}
	writeJSON(w, http.StatusOK, api.HistoryResponse{Events: events})
}
