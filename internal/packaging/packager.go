package packaging

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"ytmusicdl/internal/ledger"
	"ytmusicdl/internal/logging"
	"ytmusicdl/internal/notifications"
	"ytmusicdl/internal/protocol"
	"ytmusicdl/internal/registry"
)

const (
	// ReasonAlreadyStarted rejects a second explicit request.
	ReasonAlreadyStarted = "Packaging already started"
	// ReasonJobsRunning rejects packaging while any job is unfinished.
	ReasonJobsRunning = "Jobs still queued/downloading"
	// ReasonArchiveFailed is sent to the client when the zip could not be written.
	ReasonArchiveFailed = "Failed to create archive"

	completeReason = "Packaging complete"
)

// Locator maps a session to its output directory and archive path.
type Locator interface {
	SessionDir(sessionID string) string
	ArchivePath(sessionID string) string
}

// Packager runs archive jobs for sessions.
type Packager struct {
	reg      *registry.Registry
	paths    Locator
	notifier notifications.Service
	logger   *slog.Logger
	sink     ledger.Sink
	now      func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(reg *registry.Registry, paths Locator, notifier notifications.Service, logger *slog.Logger, sink ledger.Sink) *Packager {
	if logger == nil {
		logger = logging.NewNop()
	}
	if sink == nil {
		sink = ledger.Discard
	}
	if notifier == nil {
		notifier = notifications.Noop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Packager{
		reg:      reg,
		paths:    paths,
		notifier: notifier,
		logger:   logging.NewComponentLogger(logger, "packaging"),
		sink:     sink,
		now:      time.Now,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Package starts archiving the session in the background and reports whether
// it did. Explicit requests that cannot start are answered with package-fail.
// Automatic requests only start when the session opted in with
// autoPackageOnFinish and skip silently otherwise.
func (p *Packager) Package(sessionID string, automatic bool) bool {
	started := false
	p.reg.Update(func(tx *registry.Tx) {
		session := tx.Session(sessionID)
		if session == nil {
			return
		}
		if automatic && !session.Settings.AutoPackageOnFinish {
			return
		}
		if session.Packaging != registry.PackagingNone {
			if !automatic {
				session.Send(protocol.PackageFail{Reason: ReasonAlreadyStarted})
			}
			return
		}
		if tx.UnfinishedJobs(sessionID) > 0 {
			if !automatic {
				session.Send(protocol.PackageFail{Reason: ReasonJobsRunning})
			}
			return
		}
		session.Packaging = registry.PackagingWorking
		session.Send(protocol.PackageStart{})
		started = true
	})
	if !started {
		return false
	}
	if p.ctx.Err() != nil {
		return false
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.run(sessionID, automatic)
	}()
	return true
}

func (p *Packager) run(sessionID string, automatic bool) {
	started := time.Now()
	count, err := Archive(p.ctx, p.paths.SessionDir(sessionID), p.paths.ArchivePath(sessionID))

	var conn registry.Conn
	p.reg.Update(func(tx *registry.Tx) {
		session := tx.Session(sessionID)
		if session == nil {
			return
		}
		conn = session.Conn
		if err != nil {
			session.Send(protocol.PackageFail{Reason: ReasonArchiveFailed})
			return
		}
		session.Packaging = registry.PackagingDone
		session.Send(protocol.PackageEnd{})
	})

	if err != nil {
		logging.ErrorWithContext(p.logger, "packaging failed", "packaging_failed",
			logging.String(logging.FieldSessionID, sessionID),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check free space and permissions of the download directory"),
		)
		p.sink.Record(ledger.Event{Kind: ledger.SessionPackagingFailed, SessionID: sessionID, Detail: err.Error(), CreatedAt: p.now()})
		if notifyErr := p.notifier.Publish(p.ctx, notifications.EventPackagingFailed, notifications.Payload{
			"session": sessionID,
			"reason":  err.Error(),
		}); notifyErr != nil {
			logging.WarnWithContext(p.logger, "packaging failure notification failed", "notification_failed",
				logging.Error(notifyErr),
				logging.String(logging.FieldImpact, "operator was not alerted"),
			)
		}
		if conn != nil {
			conn.Close(protocol.ClosePackagingFailure, ReasonArchiveFailed)
		}
		return
	}

	p.logger.Info("session packaged",
		logging.String(logging.FieldEventType, "session_packaged"),
		logging.String(logging.FieldSessionID, sessionID),
		logging.Int("files", count),
		logging.Bool("automatic", automatic),
		logging.Duration("elapsed", time.Since(started)),
	)
	p.sink.Record(ledger.Event{Kind: ledger.SessionPackaged, SessionID: sessionID, CreatedAt: p.now()})
	if conn != nil {
		conn.Close(protocol.CloseDefault, completeReason)
	}
}

// Wait blocks until running archive jobs have finished.
func (p *Packager) Wait() {
	p.wg.Wait()
}

// Close cancels running archive jobs and waits for them.
func (p *Packager) Close() {
	p.cancel()
	p.wg.Wait()
}
