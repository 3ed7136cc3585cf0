package registry

import (
	"net/url"
	"slices"
	"strings"
	"time"

	"ytmusicdl/internal/protocol"
)

// Conn is the outbound half of a websocket connection. Send must not block;
// implementations queue the packet and drop the connection when the queue is
// full.
type Conn interface {
	Send(p protocol.Packet)
	Close(code protocol.CloseCode, reason string)
}

// PackagingStatus tracks a session's archive.
type PackagingStatus string

const (
	PackagingNone    PackagingStatus = "none"
	PackagingWorking PackagingStatus = "working"
	PackagingDone    PackagingStatus = "done"
)

// SessionState is the lifecycle position of a session.
type SessionState int

const (
	StateActive SessionState = iota
	// StateRecoverable means disconnected with an armed recovery timer.
	StateRecoverable
	// StateClosing means disconnected and waiting for final cleanup.
	StateClosing
)

func (s SessionState) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateRecoverable:
		return "recoverable"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

type Session struct {
	ID        string
	Settings  protocol.Settings
	Jobs      []string
	Packaging PackagingStatus
	Restored  bool
	State     SessionState
	Conn      Conn
	CreatedAt time.Time
}

// Send is a no-op while the session is disconnected.
func (s *Session) Send(p protocol.ServerPacket) {
	if s != nil && s.Conn != nil {
		s.Conn.Send(p)
	}
}

// Close closes the attached connection, if any.
func (s *Session) Close(code protocol.CloseCode, reason string) {
	if s != nil && s.Conn != nil {
		s.Conn.Close(code, reason)
	}
}

// RemoveJob drops id from the session's job list.
func (s *Session) RemoveJob(id string) bool {
	idx := slices.Index(s.Jobs, id)
	if idx < 0 {
		return false
	}
	s.Jobs = slices.Delete(s.Jobs, idx, idx+1)
	return true
}

type Worker struct {
	ID              string
	ContactURL      string
	CurrentDownload string
	// Rejecting is set after the worker refused a start; it is skipped by
	// the scheduler until it reports a terminal packet.
	Rejecting   bool
	Conn        Conn
	ConnectedAt time.Time
}

// Idle reports whether the worker may receive a job.
func (w *Worker) Idle() bool {
	return w.CurrentDownload == "" && !w.Rejecting
}

// Send is a no-op for a detached worker.
func (w *Worker) Send(p protocol.ManagerPacket) {
	if w != nil && w.Conn != nil {
		w.Conn.Send(p)
	}
}

// Name is the first host label of the contact URL.
func (w *Worker) Name() string {
	if parsed, err := url.Parse(w.ContactURL); err == nil && parsed.Hostname() != "" {
		host := parsed.Hostname()
		if idx := strings.IndexByte(host, '.'); idx > 0 {
			return host[:idx]
		}
		return host
	}
	return w.ContactURL
}

type Job struct {
	ID              string
	SessionID       string
	Request         protocol.JobRequest
	AssignedWorker  string
	PendingDownload bool
	QueuePosition   *int
	Paused          bool
	// Delivering is set between download-finish and the end of the artifact
	// pull; the pull decides the job's outcome even if the worker leaves.
	Delivering bool
	Finished   bool
	CreatedAt  time.Time
}

// Terminal reports whether the job can no longer change state.
func (j *Job) Terminal() bool { return j.Finished }

// View renders the job for the recovered-job-list packet.
func (j *Job) View() protocol.JobView {
	view := protocol.JobView{
		JobID:           j.ID,
		SessionID:       j.SessionID,
		Metadata:        j.Request.VideoMetadata,
		PendingDownload: j.PendingDownload,
		Paused:          j.Paused,
		Finished:        j.Finished,
		ArtistFolder:    j.Request.ArtistFolder,
		AlbumFolder:     j.Request.AlbumFolder,
		Lyrics:          j.Request.Lyrics,
		SyncedLyrics:    j.Request.SyncedLyrics,
		CreatedAt:       j.CreatedAt,
	}
	if j.AssignedWorker != "" {
		worker := j.AssignedWorker
		view.AssignedDownloader = &worker
	}
	if j.QueuePosition != nil {
		pos := *j.QueuePosition
		view.QueuePosition = &pos
	}
	return view
}
