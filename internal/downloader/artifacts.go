package downloader

import (
	"errors"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"ytmusicdl/internal/logging"
)

// servedGrace is how long a served file stays on disk after its first GET.
const servedGrace = time.Minute

// ArtifactStore hands each finished file out exactly once. Unclaimed files
// are deleted when their time box expires.
type ArtifactStore struct {
	ttl    time.Duration
	grace  time.Duration
	logger *slog.Logger

	mu     sync.Mutex
	items  map[string]*artifact
	timers map[*time.Timer]struct{}
	closed bool
}

type artifact struct {
	path   string
	expiry *time.Timer
}

// NewArtifactStore returns a store whose entries expire after ttl.
func NewArtifactStore(ttl time.Duration, logger *slog.Logger) *ArtifactStore {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &ArtifactStore{
		ttl:    ttl,
		grace:  servedGrace,
		logger: logging.NewComponentLogger(logger, "artifacts"),
		items:  make(map[string]*artifact),
		timers: make(map[*time.Timer]struct{}),
	}
}

// Add registers path under jobID.
func (s *ArtifactStore) Add(jobID, path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		_ = os.Remove(path)
		return
	}
	if old, ok := s.items[jobID]; ok {
		old.expiry.Stop()
	}
	entry := &artifact{path: path}
	entry.expiry = time.AfterFunc(s.ttl, func() {
		s.mu.Lock()
		current, ok := s.items[jobID]
		if ok && current == entry {
			delete(s.items, jobID)
		}
		s.mu.Unlock()
		if ok && current == entry {
			s.logger.Info("artifact expired unclaimed",
				logging.String(logging.FieldEventType, "artifact_expired"),
				logging.String(logging.FieldJobID, jobID),
			)
			_ = os.Remove(path)
		}
	})
	s.items[jobID] = entry
}

// Take claims the artifact for jobID. A second call for the same id fails.
func (s *ArtifactStore) Take(jobID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.items[jobID]
	if !ok {
		return "", false
	}
	delete(s.items, jobID)
	entry.expiry.Stop()
	return entry.path, true
}

// Pending reports how many artifacts are waiting to be fetched.
func (s *ArtifactStore) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// removeLater deletes path after the grace period.
func (s *ArtifactStore) removeLater(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		_ = os.Remove(path)
		return
	}
	var timer *time.Timer
	timer = time.AfterFunc(s.grace, func() {
		_ = os.Remove(path)
		s.mu.Lock()
		delete(s.timers, timer)
		s.mu.Unlock()
	})
	s.timers[timer] = struct{}{}
}

// Close cancels pending timers and deletes every file the store still knows.
func (s *ArtifactStore) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for id, entry := range s.items {
		entry.expiry.Stop()
		_ = os.Remove(entry.path)
		delete(s.items, id)
	}
	for timer := range s.timers {
		timer.Stop()
		delete(s.timers, timer)
	}
}

// Handler serves GET /{jobID} for the manager and answers GET / with 204 so
// hosting platforms can wake the process.
func (s *ArtifactStore) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	r.Get("/{jobID}", s.serve)
	return r
}

func (s *ArtifactStore) serve(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	path, ok := s.Take(jobID)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	defer s.removeLater(path)

	file, err := os.Open(path)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, os.ErrNotExist) {
			status = http.StatusNotFound
		}
		logging.WarnWithContext(s.logger, "artifact unreadable", "artifact_open_failed",
			logging.String(logging.FieldJobID, jobID),
			logging.Error(err),
			logging.String(logging.FieldImpact, "manager reports the job as failed"),
		)
		w.WriteHeader(status)
		return
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "audio/mpeg")
	http.ServeContent(w, r, jobID+".mp3", info.ModTime(), file)
	s.logger.Debug("artifact served",
		logging.String(logging.FieldJobID, jobID),
		logging.Int64("bytes", info.Size()),
	)
}
