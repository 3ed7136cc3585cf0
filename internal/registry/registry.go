// Package registry holds the manager's in-memory state: sessions, workers,
// jobs, the pending queue and session recovery timers.
//
// All access goes through Update or View, which run a callback with the
// registry lock held. Nothing outside the package sees the underlying maps,
// and lookups of ids that were deleted concurrently return nil rather than an
// error. Sends made from inside a transaction are safe because Conn.Send only
// queues.
package registry

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"
)

type Registry struct {
	mu          sync.Mutex
	sessions    map[string]*Session
	workers     map[string]*Worker
	workerOrder []string
	jobs        map[string]*Job
	queue       []string
	timers      map[string]*timerEntry
}

type timerEntry struct {
	timer *time.Timer
}

// Tx is a handle valid only inside an Update or View callback.
type Tx struct {
	r *Registry
}

func New() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		workers:  make(map[string]*Worker),
		jobs:     make(map[string]*Job),
		timers:   make(map[string]*timerEntry),
	}
}

// Update runs fn with exclusive access.
func (r *Registry) Update(fn func(tx *Tx)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(&Tx{r: r})
}

// View runs fn with exclusive access; callers promise not to mutate.
func (r *Registry) View(fn func(tx *Tx)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(&Tx{r: r})
}

// StopTimers cancels every armed timer without firing it.
func (r *Registry) StopTimers() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, entry := range r.timers {
		entry.timer.Stop()
		delete(r.timers, key)
	}
}

// Sessions

func (tx *Tx) Session(id string) *Session { return tx.r.sessions[id] }

func (tx *Tx) PutSession(s *Session) { tx.r.sessions[s.ID] = s }

func (tx *Tx) DeleteSession(id string) { delete(tx.r.sessions, id) }

func (tx *Tx) SessionCount() int { return len(tx.r.sessions) }

// Sessions returns all sessions, oldest first.
func (tx *Tx) Sessions() []*Session {
	out := make([]*Session, 0, len(tx.r.sessions))
	for _, s := range tx.r.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// SessionJobs returns the session's jobs in request order, skipping ids whose
// job is already gone.
func (tx *Tx) SessionJobs(sessionID string) []*Job {
	session := tx.r.sessions[sessionID]
	if session == nil {
		return nil
	}
	out := make([]*Job, 0, len(session.Jobs))
	for _, id := range session.Jobs {
		if job := tx.r.jobs[id]; job != nil {
			out = append(out, job)
		}
	}
	return out
}

// UnfinishedJobs counts the session's jobs that have not finished.
func (tx *Tx) UnfinishedJobs(sessionID string) int {
	count := 0
	for _, job := range tx.SessionJobs(sessionID) {
		if !job.Finished {
			count++
		}
	}
	return count
}

// Workers

func (tx *Tx) Worker(id string) *Worker { return tx.r.workers[id] }

func (tx *Tx) PutWorker(w *Worker) {
	if _, exists := tx.r.workers[w.ID]; !exists {
		tx.r.workerOrder = append(tx.r.workerOrder, w.ID)
	}
	tx.r.workers[w.ID] = w
}

func (tx *Tx) DeleteWorker(id string) {
	if _, ok := tx.r.workers[id]; !ok {
		return
	}
	delete(tx.r.workers, id)
	if idx := slices.Index(tx.r.workerOrder, id); idx >= 0 {
		tx.r.workerOrder = slices.Delete(tx.r.workerOrder, idx, idx+1)
	}
}

// Workers returns workers in connection order.
func (tx *Tx) Workers() []*Worker {
	out := make([]*Worker, 0, len(tx.r.workerOrder))
	for _, id := range tx.r.workerOrder {
		out = append(out, tx.r.workers[id])
	}
	return out
}

// IdleWorkers returns workers that may take a job, in connection order.
func (tx *Tx) IdleWorkers() []*Worker {
	var out []*Worker
	for _, w := range tx.Workers() {
		if w.Idle() {
			out = append(out, w)
		}
	}
	return out
}

// Jobs

func (tx *Tx) Job(id string) *Job { return tx.r.jobs[id] }

func (tx *Tx) PutJob(j *Job) { tx.r.jobs[j.ID] = j }

// DeleteJob removes the job and its queue slot.
func (tx *Tx) DeleteJob(id string) {
	delete(tx.r.jobs, id)
	tx.RemoveFromQueue(id)
}

func (tx *Tx) JobCount() int { return len(tx.r.jobs) }

// Jobs returns every job, oldest first.
func (tx *Tx) Jobs() []*Job {
	out := make([]*Job, 0, len(tx.r.jobs))
	for _, job := range tx.r.jobs {
		out = append(out, job)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Queue

// Enqueue appends id and returns its position.
func (tx *Tx) Enqueue(id string) int {
	tx.r.queue = append(tx.r.queue, id)
	pos := len(tx.r.queue) - 1
	if job := tx.r.jobs[id]; job != nil {
		job.QueuePosition = &pos
	}
	return pos
}

// EnqueueFront puts id at the head of the queue.
func (tx *Tx) EnqueueFront(id string) {
	tx.r.queue = slices.Insert(tx.r.queue, 0, id)
	if job := tx.r.jobs[id]; job != nil {
		zero := 0
		job.QueuePosition = &zero
	}
}

func (tx *Tx) QueueHead() (string, bool) {
	if len(tx.r.queue) == 0 {
		return "", false
	}
	return tx.r.queue[0], true
}

// PopHead removes and returns the head.
func (tx *Tx) PopHead() (string, bool) {
	head, ok := tx.QueueHead()
	if ok {
		tx.r.queue = tx.r.queue[1:]
	}
	return head, ok
}

// RotateHead moves the head to the tail.
func (tx *Tx) RotateHead() {
	if head, ok := tx.PopHead(); ok {
		tx.r.queue = append(tx.r.queue, head)
	}
}

func (tx *Tx) RemoveFromQueue(id string) bool {
	idx := slices.Index(tx.r.queue, id)
	if idx < 0 {
		return false
	}
	tx.r.queue = slices.Delete(tx.r.queue, idx, idx+1)
	return true
}

// Queue returns a copy of the pending queue.
func (tx *Tx) Queue() []string { return slices.Clone(tx.r.queue) }

func (tx *Tx) QueueLen() int { return len(tx.r.queue) }

// Timers

// ArmTimer schedules fire after d under key, replacing any timer already armed
// for key. fire runs without the registry lock, and only if the timer was not
// claimed first.
func (tx *Tx) ArmTimer(key string, d time.Duration, fire func()) {
	r := tx.r
	if previous, ok := r.timers[key]; ok {
		previous.timer.Stop()
	}
	entry := &timerEntry{}
	entry.timer = time.AfterFunc(d, func() {
		r.mu.Lock()
		owned := r.timers[key] == entry
		if owned {
			delete(r.timers, key)
		}
		r.mu.Unlock()
		if owned {
			fire()
		}
	})
	r.timers[key] = entry
}

// ClaimTimer cancels the timer armed under key. It returns false when no timer
// is armed, including when it already fired.
func (tx *Tx) ClaimTimer(key string) bool {
	entry, ok := tx.r.timers[key]
	if !ok {
		return false
	}
	delete(tx.r.timers, key)
	entry.timer.Stop()
	return true
}

func (tx *Tx) HasTimer(key string) bool {
	_, ok := tx.r.timers[key]
	return ok
}

// CheckInvariants verifies the cross-references between jobs, workers and the
// queue. It is meant for tests and debug assertions.
func (tx *Tx) CheckInvariants() error {
	var errs []error
	queued := make(map[string]int, len(tx.r.queue))
	for idx, id := range tx.r.queue {
		if _, dup := queued[id]; dup {
			errs = append(errs, fmt.Errorf("job %s queued twice", id))
		}
		queued[id] = idx
		if tx.r.jobs[id] == nil {
			errs = append(errs, fmt.Errorf("queue holds unknown job %s", id))
		}
	}

	for id, job := range tx.r.jobs {
		idx, inQueue := queued[id]
		switch {
		case job.Finished:
			if inQueue || job.QueuePosition != nil || job.AssignedWorker != "" {
				errs = append(errs, fmt.Errorf("finished job %s still scheduled", id))
			}
		case inQueue:
			if job.AssignedWorker != "" {
				errs = append(errs, fmt.Errorf("queued job %s is assigned to %s", id, job.AssignedWorker))
			}
			if job.QueuePosition == nil || *job.QueuePosition != idx {
				errs = append(errs, fmt.Errorf("queued job %s has position %v, want %d", id, job.QueuePosition, idx))
			}
		default:
			if job.AssignedWorker == "" {
				errs = append(errs, fmt.Errorf("job %s is neither queued nor assigned", id))
			}
			if job.QueuePosition != nil {
				errs = append(errs, fmt.Errorf("assigned job %s keeps position %d", id, *job.QueuePosition))
			}
		}
		if job.AssignedWorker != "" {
			// A delivering job outlives its worker until the pull completes.
			worker := tx.r.workers[job.AssignedWorker]
			if (worker == nil && !job.Delivering) || (worker != nil && worker.CurrentDownload != id) {
				errs = append(errs, fmt.Errorf("job %s assigned to %s which does not hold it", id, job.AssignedWorker))
			}
		}
	}

	holders := make(map[string]string)
	for id, worker := range tx.r.workers {
		if worker.CurrentDownload == "" {
			continue
		}
		if other, dup := holders[worker.CurrentDownload]; dup {
			errs = append(errs, fmt.Errorf("job %s held by %s and %s", worker.CurrentDownload, other, id))
		}
		holders[worker.CurrentDownload] = id
		job := tx.r.jobs[worker.CurrentDownload]
		if job == nil || job.AssignedWorker != id {
			errs = append(errs, fmt.Errorf("worker %s holds %s which is not assigned to it", id, worker.CurrentDownload))
		}
	}
	return errors.Join(errs...)
}
