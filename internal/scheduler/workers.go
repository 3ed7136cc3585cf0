package scheduler

import (
	"ytmusicdl/internal/ledger"
	"ytmusicdl/internal/logging"
	"ytmusicdl/internal/protocol"
	"ytmusicdl/internal/registry"
)

// Delivery describes a finished download whose artifact still has to be
// pulled from the worker.
type Delivery struct {
	JobID      string
	SessionID  string
	WorkerID   string
	ContactURL string
	Request    protocol.JobRequest
	Settings   protocol.Settings
}

// AddWorker registers a connected worker, announces the new downloader list
// and offers it work.
func (s *Scheduler) AddWorker(worker *registry.Worker) {
	s.reg.Update(func(tx *registry.Tx) {
		tx.PutWorker(worker)
		s.sink.Record(ledger.Event{Kind: ledger.WorkerJoined, WorkerID: worker.ID, Detail: worker.ContactURL, CreatedAt: s.now()})
		broadcastDownloaderList(tx)
		s.assign(tx)
	})
}

// WorkerDisconnected forgets the worker. A job it held is failed and deleted
// regardless of the assignment guard, unless its artifact is already being
// pulled; Complete settles that job. It returns the lost job, if any.
func (s *Scheduler) WorkerDisconnected(workerID string) *registry.Job {
	var lost *registry.Job
	s.reg.Update(func(tx *registry.Tx) {
		worker := tx.Worker(workerID)
		if worker == nil {
			return
		}
		tx.DeleteWorker(workerID)
		s.sink.Record(ledger.Event{Kind: ledger.WorkerLeft, WorkerID: workerID, CreatedAt: s.now()})

		job := tx.Job(worker.CurrentDownload)
		if job != nil && job.Delivering {
			s.logger.Info("worker left during artifact pull",
				logging.String(logging.FieldWorkerID, workerID),
				logging.String(logging.FieldJobID, job.ID),
				logging.String(logging.FieldSessionID, job.SessionID),
			)
		} else if job != nil {
			job.AssignedWorker = ""
			job.PendingDownload = false
			tx.Session(job.SessionID).Send(protocol.JobDownloadFail{JobID: job.ID, Reason: ReasonWorkerLost})
			s.deleteJob(tx, job)
			s.record(ledger.JobFailed, job, workerID, ReasonWorkerLost)
			logging.WarnWithContext(s.logger, "worker lost with job in flight", "worker_lost",
				logging.String(logging.FieldWorkerID, workerID),
				logging.String(logging.FieldJobID, job.ID),
				logging.String(logging.FieldSessionID, job.SessionID),
				logging.String(logging.FieldImpact, "job failed and was removed"),
				logging.String(logging.FieldErrorHint, "check the downloader host and its logs"),
			)
			lost = job
		}
		broadcastDownloaderList(tx)
		s.assign(tx)
	})
	return lost
}

// Confirm marks an assigned job as started.
func (s *Scheduler) Confirm(workerID, jobID string) {
	s.reg.Update(func(tx *registry.Tx) {
		job := s.heldJob(tx, workerID, jobID, "download-start-confirm")
		if job == nil {
			return
		}
		job.PendingDownload = false
		tx.Session(job.SessionID).Send(protocol.JobDownloadStart{JobID: job.ID})
		s.record(ledger.JobStarted, job, workerID, "")
	})
}

// Reject puts the job back at the head of the queue and parks the worker
// until it reports a terminal packet.
func (s *Scheduler) Reject(workerID, jobID string) {
	s.reg.Update(func(tx *registry.Tx) {
		worker := tx.Worker(workerID)
		if worker == nil {
			return
		}
		worker.Rejecting = true
		job := s.heldJob(tx, workerID, jobID, "download-start-reject")
		if job == nil {
			return
		}
		worker.CurrentDownload = ""
		job.AssignedWorker = ""
		job.PendingDownload = false
		tx.EnqueueFront(job.ID)
		logging.WarnWithContext(s.logger, "worker rejected job; requeued at head", "job_rejected_by_worker",
			logging.String(logging.FieldWorkerID, workerID),
			logging.String(logging.FieldJobID, job.ID),
			logging.String(logging.FieldImpact, "worker skipped until it reports a finished job"),
		)
		s.record(ledger.JobRequeued, job, workerID, "rejected by worker")
		s.assign(tx)
	})
}

// Status forwards a progress report to the owning session.
func (s *Scheduler) Status(workerID string, status protocol.DownloadStatus) {
	s.reg.View(func(tx *registry.Tx) {
		job := s.heldJob(tx, workerID, status.JobID, "download-status")
		if job == nil {
			return
		}
		tx.Session(job.SessionID).Send(protocol.JobDownloadStatus{
			JobID:      job.ID,
			Percentage: status.Percentage,
			Status:     status.Status,
		})
	})
}

// Fail reports a worker-side failure to the client and deletes the job.
func (s *Scheduler) Fail(workerID, jobID, reason string) {
	s.reg.Update(func(tx *registry.Tx) {
		worker := tx.Worker(workerID)
		if worker == nil {
			return
		}
		worker.Rejecting = false
		job := s.heldJob(tx, workerID, jobID, "download-fail")
		if job == nil {
			s.assign(tx)
			return
		}
		worker.CurrentDownload = ""
		job.AssignedWorker = ""
		job.PendingDownload = false
		tx.Session(job.SessionID).Send(protocol.JobDownloadFail{JobID: job.ID, Reason: reason})
		s.deleteJob(tx, job)
		s.record(ledger.JobFailed, job, workerID, reason)
		s.assign(tx)
	})
}

// BeginFinish acknowledges download-finish. The worker stays busy until
// Complete is called for the returned delivery.
func (s *Scheduler) BeginFinish(workerID, jobID string) (Delivery, bool) {
	var (
		delivery Delivery
		ok       bool
	)
	s.reg.Update(func(tx *registry.Tx) {
		worker := tx.Worker(workerID)
		if worker == nil {
			return
		}
		if worker.Rejecting {
			worker.Rejecting = false
			defer s.assign(tx)
		}
		job := s.heldJob(tx, workerID, jobID, "download-finish")
		if job == nil {
			return
		}
		session := tx.Session(job.SessionID)
		if session == nil {
			worker.CurrentDownload = ""
			s.deleteJob(tx, job)
			s.assign(tx)
			return
		}
		job.Delivering = true
		session.Send(protocol.JobDownloadStatus{JobID: job.ID, Status: StatusFinishing})
		delivery = Delivery{
			JobID:      job.ID,
			SessionID:  job.SessionID,
			WorkerID:   workerID,
			ContactURL: worker.ContactURL,
			Request:    job.Request,
			Settings:   session.Settings,
		}
		ok = true
	})
	return delivery, ok
}

// Complete releases the worker after its artifact was fetched. A non-empty
// failure reports the job as failed and deletes it; otherwise the job is
// marked finished. It returns the owning session id, empty when the job was
// already gone.
func (s *Scheduler) Complete(d Delivery, failure string) string {
	var sessionID string
	s.reg.Update(func(tx *registry.Tx) {
		if worker := tx.Worker(d.WorkerID); worker != nil && worker.CurrentDownload == d.JobID {
			worker.CurrentDownload = ""
		}
		job := tx.Job(d.JobID)
		if job == nil {
			s.assign(tx)
			return
		}
		job.AssignedWorker = ""
		job.PendingDownload = false
		job.Delivering = false
		session := tx.Session(job.SessionID)
		if failure != "" {
			session.Send(protocol.JobDownloadFail{JobID: job.ID, Reason: failure})
			s.deleteJob(tx, job)
			s.record(ledger.JobFailed, job, d.WorkerID, failure)
		} else {
			job.Finished = true
			session.Send(protocol.JobDownloadFinish{JobID: job.ID})
			s.record(ledger.JobFinished, job, d.WorkerID, "")
		}
		sessionID = job.SessionID
		s.assign(tx)
	})
	return sessionID
}

// heldJob returns the job only when workerID currently holds it.
func (s *Scheduler) heldJob(tx *registry.Tx, workerID, jobID, packet string) *registry.Job {
	job := tx.Job(jobID)
	if job == nil || job.AssignedWorker != workerID {
		s.logger.Debug("ignoring packet for job not held by worker",
			logging.String("packet", packet),
			logging.String(logging.FieldWorkerID, workerID),
			logging.String(logging.FieldJobID, jobID),
		)
		return nil
	}
	return job
}

// DownloaderList renders the connected workers for clients.
func DownloaderList(tx *registry.Tx) protocol.DownloaderList {
	list := protocol.DownloaderList{Downloaders: []protocol.DownloaderInfo{}}
	for _, worker := range tx.Workers() {
		list.Downloaders = append(list.Downloaders, protocol.DownloaderInfo{ID: worker.ID, Name: worker.Name()})
	}
	return list
}

func broadcastDownloaderList(tx *registry.Tx) {
	list := DownloaderList(tx)
	for _, session := range tx.Sessions() {
		session.Send(list)
	}
}
