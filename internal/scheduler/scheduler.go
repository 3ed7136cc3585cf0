package scheduler

import (
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"ytmusicdl/internal/ledger"
	"ytmusicdl/internal/logging"
	"ytmusicdl/internal/protocol"
	"ytmusicdl/internal/registry"
)

const (
	// ReasonWorkerLost is reported when a worker disconnects mid-job.
	ReasonWorkerLost = "Connection lost to worker"
	// ReasonDuplicate rejects a video the session already requested.
	ReasonDuplicate = "Video already requested"
	// StatusFinishing is forwarded while the artifact is being fetched.
	StatusFinishing = "Finishing up"
)

var (
	ErrUnknownSession = errors.New("unknown session")
	ErrDuplicateVideo = errors.New("video already requested")
)

// Options tune admission.
type Options struct {
	AllowDuplicates bool
}

// Scheduler owns job assignment. It holds no state of its own beyond the
// registry it was given.
type Scheduler struct {
	reg    *registry.Registry
	logger *slog.Logger
	sink   ledger.Sink
	opts   Options
	now    func() time.Time
}

func New(reg *registry.Registry, logger *slog.Logger, sink ledger.Sink, opts Options) *Scheduler {
	if logger == nil {
		logger = logging.NewNop()
	}
	if sink == nil {
		sink = ledger.Discard
	}
	return &Scheduler{
		reg:    reg,
		logger: logging.NewComponentLogger(logger, "scheduler"),
		sink:   sink,
		opts:   opts,
		now:    time.Now,
	}
}

// Registry exposes the underlying registry for read-only callers.
func (s *Scheduler) Registry() *registry.Registry { return s.reg }

// Submit creates a job for the session, queues it, sends job-accept and runs
// an assignment pass. It returns the new job id.
func (s *Scheduler) Submit(sessionID string, req protocol.JobRequest) (string, error) {
	var (
		jobID string
		err   error
	)
	s.reg.Update(func(tx *registry.Tx) {
		session := tx.Session(sessionID)
		if session == nil {
			err = ErrUnknownSession
			return
		}
		if !s.opts.AllowDuplicates {
			for _, existing := range tx.SessionJobs(sessionID) {
				if existing.Request.VideoID == req.VideoID {
					err = ErrDuplicateVideo
					return
				}
			}
		}

		job := &registry.Job{
			ID:        uuid.NewString(),
			SessionID: sessionID,
			Request:   req,
			CreatedAt: s.now(),
		}
		tx.PutJob(job)
		position := tx.Enqueue(job.ID)
		session.Jobs = append(session.Jobs, job.ID)
		session.Send(protocol.JobAccept{VideoID: req.VideoID, JobID: job.ID, QueuePosition: position})
		jobID = job.ID

		s.logger.Debug("job queued",
			logging.String(logging.FieldEventType, "job_queued"),
			logging.String(logging.FieldSessionID, sessionID),
			logging.String(logging.FieldJobID, job.ID),
			logging.String(logging.FieldVideoID, req.VideoID),
			logging.Int("queue_position", position),
		)
		s.record(ledger.JobCreated, job, "", "")
		s.assign(tx)
	})
	return jobID, err
}

// AssignAvailableWork runs one assignment pass.
func (s *Scheduler) AssignAvailableWork() {
	s.reg.Update(s.assign)
}

// Remove deletes an unassigned job and reschedules. It returns false while
// the job is assigned to a worker. Unknown ids count as removed.
func (s *Scheduler) Remove(jobID string) bool {
	removed := true
	s.reg.Update(func(tx *registry.Tx) {
		job := tx.Job(jobID)
		if job == nil {
			return
		}
		if job.AssignedWorker != "" {
			removed = false
			return
		}
		s.deleteJob(tx, job)
		s.record(ledger.JobRemoved, job, "", "")
		s.assign(tx)
	})
	return removed
}

// Cancel removes a queued job on behalf of its owning session. It reports
// false for jobs that are assigned, finished, unknown or owned by another
// session.
func (s *Scheduler) Cancel(sessionID, jobID string) bool {
	cancelled := false
	s.reg.Update(func(tx *registry.Tx) {
		job := tx.Job(jobID)
		if job == nil || job.SessionID != sessionID || job.QueuePosition == nil {
			return
		}
		s.deleteJob(tx, job)
		s.record(ledger.JobRemoved, job, "", "cancelled by client")
		s.assign(tx)
		cancelled = true
	})
	return cancelled
}

// deleteJob drops the job from the registry, the queue and its session.
func (s *Scheduler) deleteJob(tx *registry.Tx, job *registry.Job) {
	if session := tx.Session(job.SessionID); session != nil {
		session.RemoveJob(job.ID)
	}
	tx.DeleteJob(job.ID)
	job.QueuePosition = nil
}

func (s *Scheduler) record(kind ledger.Kind, job *registry.Job, workerID, detail string) {
	s.sink.Record(ledger.Event{
		Kind:      kind,
		SessionID: job.SessionID,
		JobID:     job.ID,
		WorkerID:  workerID,
		VideoID:   job.Request.VideoID,
		Title:     job.Request.Title,
		Detail:    detail,
		CreatedAt: s.now(),
	})
}
