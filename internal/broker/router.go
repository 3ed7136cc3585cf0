package broker

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"ytmusicdl/internal/api"
	"ytmusicdl/internal/logging"
)

// Handler returns the manager's HTTP surface.
func (b *Broker) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/", b.serveWebsocket)
	r.Route("/api", func(r chi.Router) {
		r.Use(b.requireAdmin)
		r.Get("/status", b.handleStatus)
		r.Get("/history", b.handleHistory)
	})
	r.Get("/{sessionID}", b.serveArchive)
	return r
}

// serveWebsocket routes an upgrade to the downloader or client path based on
// the subprotocols offered.
func (b *Broker) serveWebsocket(w http.ResponseWriter, r *http.Request) {
	if !websocket.IsWebSocketUpgrade(r) {
		writeError(w, http.StatusBadRequest, "websocket upgrade required")
		return
	}
	offer := parseProtocols(r)
	if offer.downloader {
		b.serveWorker(w, r, offer)
		return
	}
	b.serveClient(w, r, offer)
}

// requireAdmin validates the bearer token. The admin API is disabled when no
// token is configured.
func (b *Broker) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := b.cfg.Manager.AdminToken
		if token == "" {
			writeError(w, http.StatusNotFound, "admin api disabled")
			return
		}
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") || !secretsEqual(strings.TrimPrefix(auth, "Bearer "), token) {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func secretsEqual(got, want string) bool {
	return want != "" && subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, api.ErrorResponse{Error: message})
}

func (b *Broker) logRequestError(r *http.Request, msg string, err error) {
	b.logger.Debug(msg,
		logging.String(logging.FieldRemoteAddr, r.RemoteAddr),
		logging.Error(err),
	)
}
