package ledger

import "time"

// Kind names a recorded event.
type Kind string

const (
	JobCreated             Kind = "job_created"
	JobRejected            Kind = "job_rejected"
	JobAssigned            Kind = "job_assigned"
	JobStarted             Kind = "job_started"
	JobFinished            Kind = "job_finished"
	JobFailed              Kind = "job_failed"
	JobRemoved             Kind = "job_removed"
	JobRequeued            Kind = "job_requeued"
	SessionOpened          Kind = "session_opened"
	SessionRecovered       Kind = "session_recovered"
	SessionExpired         Kind = "session_expired"
	SessionPackaged        Kind = "session_packaged"
	SessionPackagingFailed Kind = "session_packaging_failed"
	WorkerJoined           Kind = "worker_joined"
	WorkerLeft             Kind = "worker_left"
)

// Event is one ledger row. Empty strings are stored as NULL.
type Event struct {
	ID        int64     `json:"id"`
	Kind      Kind      `json:"kind"`
	SessionID string    `json:"session_id,omitempty"`
	JobID     string    `json:"job_id,omitempty"`
	WorkerID  string    `json:"worker_id,omitempty"`
	VideoID   string    `json:"video_id,omitempty"`
	Title     string    `json:"title,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Sink accepts events without blocking the caller.
type Sink interface {
	Record(Event)
}

// Discard drops every event.
var Discard Sink = discard{}

type discard struct{}

func (discard) Record(Event) {}
