// Package managerrun assembles and runs the manager process: it claims the
// download directory, opens the ledger and serves the broker over HTTP until
// a signal arrives.
package managerrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gofrs/flock"

	"ytmusicdl/internal/broker"
	"ytmusicdl/internal/config"
	"ytmusicdl/internal/fileutil"
	"ytmusicdl/internal/ledger"
	"ytmusicdl/internal/logging"
	"ytmusicdl/internal/notifications"
	"ytmusicdl/internal/preflight"
)

const (
	role            = "manager"
	lockName        = ".manager.lock"
	shutdownTimeout = 10 * time.Second
)

// Options configures manager process runtime behavior.
type Options struct {
	LogLevel string
}

// Run starts the manager and blocks until cmdCtx ends or SIGINT/SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if opts.LogLevel != "" {
		cfg.Logging.Level = opts.LogLevel
	}
	if err := cfg.ValidateManagerRole(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger, err := logging.NewFromConfig(cfg, role)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays, cfg.Paths.LogDir, logging.RunLogPattern(role))

	if failed := preflight.Failed(preflight.RunAll(signalCtx, cfg, preflight.RoleManager)); len(failed) > 0 {
		return preflightError(failed)
	}

	listener, err := net.Listen("tcp", cfg.Manager.Bind)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Manager.Bind, err)
	}
	return Serve(signalCtx, cfg, logger, listener)
}

// Serve runs the manager on an existing listener until ctx ends. It owns and
// closes the listener.
func Serve(ctx context.Context, cfg *config.Config, logger *slog.Logger, listener net.Listener) error {
	defer listener.Close()
	if logger == nil {
		logger = logging.NewNop()
	}

	if err := os.MkdirAll(cfg.Paths.DownloadDir, 0o755); err != nil {
		return fmt.Errorf("create download dir: %w", err)
	}
	lock := flock.New(filepath.Join(cfg.Paths.DownloadDir, lockName))
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another ytmusicdl manager is already using %s", cfg.Paths.DownloadDir)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			logger.Warn("failed to release manager lock", logging.Error(err))
		}
	}()

	// Sessions do not survive a restart, so neither do their files.
	if err := fileutil.ClearDir(cfg.Paths.DownloadDir, lockName); err != nil {
		return fmt.Errorf("clear download dir: %w", err)
	}

	deps := broker.Dependencies{
		Logger:   logger,
		Notifier: notifications.NewService(cfg),
	}
	if cfg.Ledger.Enabled {
		store, err := ledger.Open(cfg)
		if err != nil {
			logger.Error("open ledger", logging.Error(err))
			return err
		}
		defer store.Close()
		pruneLedger(ctx, store, cfg.Ledger.RetentionDays, logger)

		recorder := ledger.NewRecorder(store, logger, 0)
		defer recorder.Close()
		deps.Sink = recorder
		deps.History = store
	}

	b := broker.New(cfg, deps)
	defer b.Close()

	server := &http.Server{
		Handler:           b.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Serve(listener)
	}()

	logger.Info("manager listening",
		logging.String(logging.FieldEventType, "manager_started"),
		logging.String("address", listener.Addr().String()),
		logging.String("download_dir", cfg.Paths.DownloadDir),
		logging.Bool("ledger", cfg.Ledger.Enabled),
		logging.Bool("admin_api", cfg.Manager.AdminToken != ""),
	)

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
	}

	logger.Info("manager shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown incomplete", logging.Error(err))
	}
	return nil
}

func pruneLedger(ctx context.Context, store *ledger.Store, retentionDays int, logger *slog.Logger) {
	if retentionDays <= 0 {
		return
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	removed, err := store.Prune(ctx, cutoff)
	if err != nil {
		logging.WarnWithContext(logger, "ledger prune failed", "ledger_prune_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "old history stays in the database"),
		)
		return
	}
	if removed > 0 {
		logger.Info("ledger pruned",
			logging.String(logging.FieldEventType, "ledger_pruned"),
			logging.Int64("removed", removed),
			logging.Int("retention_days", retentionDays),
		)
	}
}

func preflightError(failed []preflight.Result) error {
	parts := make([]string, 0, len(failed))
	for _, result := range failed {
		parts = append(parts, fmt.Sprintf("%s: %s", result.Name, result.Detail))
	}
	return fmt.Errorf("preflight failed: %s", strings.Join(parts, "; "))
}
