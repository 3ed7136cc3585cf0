package scheduler

import (
	"ytmusicdl/internal/ledger"
	"ytmusicdl/internal/logging"
	"ytmusicdl/internal/protocol"
	"ytmusicdl/internal/registry"
)

// assign hands queued jobs to idle workers, then republishes positions.
func (s *Scheduler) assign(tx *registry.Tx) {
	skipped := make(map[string]struct{})
	for _, worker := range tx.IdleWorkers() {
		job := s.nextReady(tx, skipped)
		if job == nil {
			break
		}
		s.dispatch(tx, worker, job)
	}
	s.publishPositions(tx)
}

// nextReady pops the first schedulable job. Every iteration either shrinks
// the queue or grows skipped, so the loop ends.
func (s *Scheduler) nextReady(tx *registry.Tx, skipped map[string]struct{}) *registry.Job {
	for {
		head, ok := tx.QueueHead()
		if !ok {
			return nil
		}
		if _, seen := skipped[head]; seen {
			return nil
		}
		job := tx.Job(head)
		if job == nil {
			tx.PopHead()
			s.logger.Debug("dropped stale queue entry", logging.String(logging.FieldJobID, head))
			continue
		}
		if tx.Session(job.SessionID) == nil {
			tx.PopHead()
			tx.DeleteJob(job.ID)
			job.QueuePosition = nil
			s.logger.Debug("dropped job of vanished session",
				logging.String(logging.FieldJobID, job.ID),
				logging.String(logging.FieldSessionID, job.SessionID),
			)
			continue
		}
		if job.Paused {
			tx.RotateHead()
			skipped[head] = struct{}{}
			continue
		}
		tx.PopHead()
		return job
	}
}

func (s *Scheduler) dispatch(tx *registry.Tx, worker *registry.Worker, job *registry.Job) {
	session := tx.Session(job.SessionID)
	job.AssignedWorker = worker.ID
	job.PendingDownload = true
	job.QueuePosition = nil
	worker.CurrentDownload = job.ID

	worker.Send(protocol.DownloadStart{
		JobID:        job.ID,
		Metadata:     job.Request.VideoMetadata,
		Lyrics:       job.Request.Lyrics,
		SyncedLyrics: job.Request.SyncedLyrics,
		Settings:     session.Settings,
	})
	session.Send(protocol.JobDownloadPending{JobID: job.ID, DownloaderID: worker.ID})

	s.logger.Info("job assigned",
		logging.String(logging.FieldEventType, "job_assigned"),
		logging.String(logging.FieldSessionID, job.SessionID),
		logging.String(logging.FieldJobID, job.ID),
		logging.String(logging.FieldWorkerID, worker.ID),
		logging.String(logging.FieldVideoID, job.Request.VideoID),
	)
	s.record(ledger.JobAssigned, job, worker.ID, "")
}

// publishPositions renumbers the queue and tells each session where its own
// jobs stand.
func (s *Scheduler) publishPositions(tx *registry.Tx) {
	updates := make(map[string]protocol.QueueUpdate)
	for idx, id := range tx.Queue() {
		job := tx.Job(id)
		if job == nil {
			continue
		}
		pos := idx
		job.QueuePosition = &pos
		update, ok := updates[job.SessionID]
		if !ok {
			update = protocol.QueueUpdate{}
			updates[job.SessionID] = update
		}
		update[id] = idx
	}
	for _, session := range tx.Sessions() {
		if update, ok := updates[session.ID]; ok {
			session.Send(update)
		}
	}
}
