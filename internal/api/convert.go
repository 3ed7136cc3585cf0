package api

import (
	"time"

	"ytmusicdl/internal/registry"
)

// FromSession converts a registry session. unfinished is supplied by the
// caller because counting needs the transaction.
func FromSession(session *registry.Session, unfinished int) SessionSummary {
	if session == nil {
		return SessionSummary{}
	}
	return SessionSummary{
		ID:            session.ID,
		State:         session.State.String(),
		Packaging:     string(session.Packaging),
		Jobs:          len(session.Jobs),
		UnfinishedJobs: unfinished,
		Connected:     session.Conn != nil,
		CreatedAt:     formatTime(session.CreatedAt),
	}
}

// FromWorker converts a registry worker.
func FromWorker(worker *registry.Worker) WorkerSummary {
	if worker == nil {
		return WorkerSummary{}
	}
	return WorkerSummary{
		ID:              worker.ID,
		Name:            worker.Name(),
		ContactURL:      worker.ContactURL,
		CurrentDownload: worker.CurrentDownload,
		Rejecting:       worker.Rejecting,
		ConnectedAt:     formatTime(worker.ConnectedAt),
	}
}

// FromJob converts a registry job.
func FromJob(job *registry.Job) JobSummary {
	if job == nil {
		return JobSummary{}
	}
	dto := JobSummary{
		ID:              job.ID,
		SessionID:       job.SessionID,
		VideoID:         job.Request.VideoID,
		Title:           job.Request.Title,
		AssignedWorker:  job.AssignedWorker,
		PendingDownload: job.PendingDownload,
		Paused:          job.Paused,
		Finished:        job.Finished,
		CreatedAt:       formatTime(job.CreatedAt),
	}
	if job.QueuePosition != nil {
		pos := *job.QueuePosition
		dto.QueuePosition = &pos
	}
	return dto
}

// SnapshotStatus builds a Status from inside a registry transaction.
func SnapshotStatus(tx *registry.Tx) Status {
	status := Status{
		Sessions: []SessionSummary{},
		Workers:  []WorkerSummary{},
		Jobs:     []JobSummary{},
	}
	for _, session := range tx.Sessions() {
		status.Sessions = append(status.Sessions, FromSession(session, tx.UnfinishedJobs(session.ID)))
	}
	for _, worker := range tx.Workers() {
		status.Workers = append(status.Workers, FromWorker(worker))
		if worker.Idle() {
			status.Counts.IdleWorkers++
		}
	}
	for _, job := range tx.Jobs() {
		status.Jobs = append(status.Jobs, FromJob(job))
	}
	status.Counts.Sessions = len(status.Sessions)
	status.Counts.Workers = len(status.Workers)
	status.Counts.Jobs = len(status.Jobs)
	status.Counts.Queued = tx.QueueLen()
	return status
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
