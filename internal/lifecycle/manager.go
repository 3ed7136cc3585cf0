package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"ytmusicdl/internal/fileutil"
	"ytmusicdl/internal/ledger"
	"ytmusicdl/internal/logging"
	"ytmusicdl/internal/protocol"
	"ytmusicdl/internal/registry"
	"ytmusicdl/internal/scheduler"
)

// ErrCapacity is returned when max_clients sessions already exist.
var ErrCapacity = errors.New("maximum number of clients reached")

const defaultPollInterval = time.Second

// Options configure session handling.
type Options struct {
	MaxClients      int
	RecoveryWindow  time.Duration
	RetentionWindow time.Duration
	DownloadDir     string
	// Config is advertised to clients in the welcome packet.
	Config protocol.ServerConfig
	// PollInterval paces cleanup while jobs are still in flight.
	PollInterval time.Duration
}

// Manager owns session state transitions.
type Manager struct {
	reg    *registry.Registry
	sched  *scheduler.Scheduler
	logger *slog.Logger
	sink   ledger.Sink
	opts   Options
	now    func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(sched *scheduler.Scheduler, logger *slog.Logger, sink ledger.Sink, opts Options) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	if sink == nil {
		sink = ledger.Discard
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		reg:    sched.Registry(),
		sched:  sched,
		logger: logging.NewComponentLogger(logger, "lifecycle"),
		sink:   sink,
		opts:   opts,
		now:    time.Now,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Close stops recovery timers and pending cleanups and waits for them.
func (m *Manager) Close() {
	m.cancel()
	m.reg.StopTimers()
	m.wg.Wait()
}

// SessionDir is where a session's audio files are written.
func (m *Manager) SessionDir(sessionID string) string {
	return filepath.Join(m.opts.DownloadDir, sessionID)
}

// ArchivePath is where a session's archive is written.
func (m *Manager) ArchivePath(sessionID string) string {
	return filepath.Join(m.opts.DownloadDir, sessionID+".zip")
}

// CanAdmit reports whether a connection presenting ticket would be accepted.
// It is advisory; Admit decides under the lock.
func (m *Manager) CanAdmit(ticket string) bool {
	ok := false
	m.reg.View(func(tx *registry.Tx) {
		ok = (ticket != "" && tx.HasTimer(ticket)) || tx.SessionCount() < m.opts.MaxClients
	})
	return ok
}

// Admit attaches conn to a session and greets it. A ticket naming a session
// whose recovery timer is still armed resumes that session; anything else
// mints a new one.
func (m *Manager) Admit(ticket string, conn registry.Conn) (string, bool, error) {
	var (
		sessionID string
		restored  bool
		err       error
	)
	m.reg.Update(func(tx *registry.Tx) {
		if ticket != "" && tx.ClaimTimer(ticket) {
			if session := tx.Session(ticket); session != nil {
				session.Conn = conn
				session.State = registry.StateActive
				session.Restored = true
				for _, job := range tx.SessionJobs(session.ID) {
					job.Paused = false
				}
				sessionID, restored = session.ID, true
				m.open(tx, session)
				return
			}
		}
		if tx.SessionCount() >= m.opts.MaxClients {
			err = ErrCapacity
			return
		}
		session := &registry.Session{
			ID:        uuid.NewString(),
			Settings:  protocol.DefaultSettings(),
			Packaging: registry.PackagingNone,
			State:     registry.StateActive,
			Conn:      conn,
			CreatedAt: m.now(),
		}
		tx.PutSession(session)
		sessionID = session.ID
		m.open(tx, session)
	})
	if err != nil {
		return "", false, err
	}

	kind := ledger.SessionOpened
	if restored {
		kind = ledger.SessionRecovered
		m.logger.Info("session recovered",
			logging.String(logging.FieldEventType, "session_recovered"),
			logging.String(logging.FieldSessionID, sessionID),
		)
		m.sched.AssignAvailableWork()
	} else {
		m.logger.Debug("session opened", logging.String(logging.FieldSessionID, sessionID))
	}
	m.sink.Record(ledger.Event{Kind: kind, SessionID: sessionID, CreatedAt: m.now()})
	return sessionID, restored, nil
}

// open sends the greeting packets.
func (m *Manager) open(tx *registry.Tx, session *registry.Session) {
	session.Send(protocol.Welcome{SessionID: session.ID, Config: m.opts.Config})
	session.Send(scheduler.DownloaderList(tx))
	if !session.Restored {
		return
	}
	jobs := tx.SessionJobs(session.ID)
	views := make([]protocol.JobView, 0, len(jobs))
	for _, job := range jobs {
		views = append(views, job.View())
	}
	session.Send(protocol.RecoveredJobList{Jobs: views})
}

// Closed handles a dropped client connection. conn must be the connection
// the session currently holds; stale closes are ignored.
func (m *Manager) Closed(sessionID string, conn registry.Conn, code protocol.CloseCode) {
	m.reg.Update(func(tx *registry.Tx) {
		session := tx.Session(sessionID)
		if session == nil || session.State != registry.StateActive || session.Conn != conn {
			return
		}
		session.Conn = nil

		if code == protocol.CloseDownloadFinished || session.Packaging != registry.PackagingNone {
			session.State = registry.StateClosing
			m.logger.Info("session closed; scheduling deletion",
				logging.String(logging.FieldEventType, "session_closing"),
				logging.String(logging.FieldSessionID, sessionID),
				logging.Duration("delay", m.opts.RetentionWindow),
			)
			m.spawnCleanup(sessionID, m.opts.RetentionWindow)
			return
		}

		session.State = registry.StateRecoverable
		for _, job := range tx.SessionJobs(sessionID) {
			if !job.Finished && job.AssignedWorker == "" {
				job.Paused = true
			}
		}
		tx.ArmTimer(sessionID, m.opts.RecoveryWindow, func() {
			m.logger.Info("recovery window elapsed",
				logging.String(logging.FieldEventType, "session_expired"),
				logging.String(logging.FieldSessionID, sessionID),
			)
			m.spawnCleanup(sessionID, 0)
		})
		m.logger.Info("session recoverable",
			logging.String(logging.FieldEventType, "session_recoverable"),
			logging.String(logging.FieldSessionID, sessionID),
			logging.Int("close_code", int(code)),
			logging.Duration("window", m.opts.RecoveryWindow),
		)
	})
}

func (m *Manager) spawnCleanup(sessionID string, delay time.Duration) {
	if m.ctx.Err() != nil {
		return
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if err := m.Cleanup(m.ctx, sessionID, delay); err != nil && !errors.Is(err, context.Canceled) {
			logging.WarnWithContext(m.logger, "session cleanup failed", "session_cleanup_failed",
				logging.String(logging.FieldSessionID, sessionID),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "remove the session directory manually"),
			)
		}
	}()
}

// Cleanup waits delay, removes the session's jobs from last to first
// (polling while any is still in flight), then deletes the session and its
// files.
func (m *Manager) Cleanup(ctx context.Context, sessionID string, delay time.Duration) error {
	if err := sleep(ctx, delay); err != nil {
		return err
	}

	var jobs []string
	m.reg.View(func(tx *registry.Tx) {
		if session := tx.Session(sessionID); session != nil {
			jobs = append(jobs, session.Jobs...)
		}
	})
	for i := len(jobs) - 1; i >= 0; i-- {
		for !m.sched.Remove(jobs[i]) {
			if err := sleep(ctx, m.opts.PollInterval); err != nil {
				return err
			}
		}
	}

	err := fileutil.RemoveQuietly(m.ArchivePath(sessionID), m.SessionDir(sessionID))
	m.reg.Update(func(tx *registry.Tx) {
		tx.DeleteSession(sessionID)
	})
	m.sink.Record(ledger.Event{Kind: ledger.SessionExpired, SessionID: sessionID, CreatedAt: m.now()})
	m.logger.Info("session deleted",
		logging.String(logging.FieldEventType, "session_deleted"),
		logging.String(logging.FieldSessionID, sessionID),
		logging.Int("jobs", len(jobs)),
	)
	return err
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
