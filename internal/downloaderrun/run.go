// Package downloaderrun assembles and runs a downloader process: the artifact
// server, the job supervisor and the reconnecting link to the manager.
package downloaderrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"ytmusicdl/internal/config"
	"ytmusicdl/internal/downloader"
	"ytmusicdl/internal/fileutil"
	"ytmusicdl/internal/logging"
	"ytmusicdl/internal/preflight"
)

const (
	role            = "downloader"
	shutdownTimeout = 5 * time.Second
	managerCheck    = "Manager"
)

// Options configures downloader process runtime behavior.
type Options struct {
	LogLevel string
}

// Run starts the downloader. It returns downloader.ErrRestartRequested when
// the manager asked for a restart so the caller can exit non-zero and let the
// supervisor bring the process back.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if opts.LogLevel != "" {
		cfg.Logging.Level = opts.LogLevel
	}
	if err := cfg.ValidateDownloaderRole(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger, err := logging.NewFromConfig(cfg, role)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays, cfg.Paths.LogDir, logging.RunLogPattern(role))

	var fatal []string
	for _, result := range preflight.Failed(preflight.RunAll(signalCtx, cfg, preflight.RoleDownloader)) {
		if result.Name == managerCheck {
			logging.WarnWithContext(logger, "manager not reachable yet", "manager_unreachable",
				logging.String("detail", result.Detail),
				logging.String(logging.FieldImpact, "downloader keeps retrying the connection"),
			)
			continue
		}
		fatal = append(fatal, fmt.Sprintf("%s: %s", result.Name, result.Detail))
	}
	if len(fatal) > 0 {
		return fmt.Errorf("preflight failed: %s", strings.Join(fatal, "; "))
	}

	listener, err := net.Listen("tcp", cfg.Downloader.Bind)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Downloader.Bind, err)
	}
	return Serve(signalCtx, cfg, logger, listener)
}

// Serve runs the downloader on an existing listener until ctx ends or the
// manager requests a restart. It owns and closes the listener.
func Serve(ctx context.Context, cfg *config.Config, logger *slog.Logger, listener net.Listener) error {
	defer listener.Close()
	if logger == nil {
		logger = logging.NewNop()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := fileutil.ClearDir(cfg.Paths.WorkDir); err != nil {
		return fmt.Errorf("clear work dir: %w", err)
	}
	cookiesPath, err := downloader.WriteCookies(cfg.Paths.WorkDir, cfg.Downloader.Cookies)
	if err != nil {
		return err
	}

	artifacts := downloader.NewArtifactStore(cfg.ArtifactTTL(), logger)
	defer artifacts.Close()

	supervisor, err := downloader.NewSupervisor(downloader.Options{
		WorkDir:          cfg.Paths.WorkDir,
		YtDlpBinary:      cfg.Downloader.YtDlpBinary,
		FFmpegBinary:     cfg.Downloader.FFmpegBinary,
		CookiesPath:      cookiesPath,
		ProgressInterval: cfg.ProgressInterval(),
		ProgressMinDelta: cfg.Downloader.ProgressMinDelta,
		CoverTimeout:     cfg.CoverTimeout(),
		Artifacts:        artifacts,
		Logger:           logger,
	})
	if err != nil {
		return err
	}

	server := &http.Server{
		Handler:           artifacts.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Serve(listener)
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("artifact server shutdown incomplete", logging.Error(err))
		}
	}()

	logger.Info("downloader started",
		logging.String(logging.FieldEventType, "downloader_started"),
		logging.String("address", listener.Addr().String()),
		logging.String("contact_url", cfg.Downloader.ContactURL),
		logging.Bool("cookies", cookiesPath != ""),
	)

	client := downloader.NewClient(downloader.ClientOptions{
		ManagerURL: cfg.Downloader.ManagerURL,
		ContactURL: cfg.Downloader.ContactURL,
		Key:        cfg.Downloader.Key,
		Logger:     logger,
	}, supervisor)

	linkErr := make(chan error, 1)
	go func() {
		linkErr <- connectLoop(ctx, client, cfg.ReconnectDelay(), logger)
	}()

	select {
	case err := <-linkErr:
		return err
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve artifacts: %w", err)
	}
}

// connectLoop keeps the manager link up. It returns nil when ctx ends and
// downloader.ErrRestartRequested when the manager asks for a restart.
func connectLoop(ctx context.Context, client *downloader.Client, delay time.Duration, logger *slog.Logger) error {
	for {
		err := client.Run(ctx)
		if errors.Is(err, downloader.ErrRestartRequested) {
			return err
		}
		if ctx.Err() != nil {
			logger.Info("downloader shutting down")
			return nil
		}
		logging.WarnWithContext(logger, "manager link down", "manager_disconnected",
			logging.Error(err),
			logging.Duration("retry_in", delay),
			logging.String(logging.FieldImpact, "no new jobs until reconnected"),
			logging.String(logging.FieldErrorHint, "check downloader.manager_url and downloader.key"),
		)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
	}
}
