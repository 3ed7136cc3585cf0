package downloader

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"ytmusicdl/internal/logging"
	"ytmusicdl/internal/protocol"
)

// Failure reasons reported to the manager.
const (
	ReasonCoverFailed = "Cover apply failed"
	ReasonCancelled   = "Download cancelled"
	ReasonUnknown     = "Download failed"
)

const (
	failureTailLines = 20
	maxFailureReason = 2000
)

// Sender delivers packets to the manager.
type Sender interface {
	Send(p protocol.WorkerPacket)
}

// Options configure a Supervisor.
type Options struct {
	WorkDir          string
	YtDlpBinary      string
	FFmpegBinary     string
	CookiesPath      string
	ProgressInterval time.Duration
	ProgressMinDelta float64
	CoverTimeout     time.Duration
	Artifacts        *ArtifactStore
	HTTPClient       *http.Client
	Executor         Executor
	Logger           *slog.Logger
	Now              func() time.Time
}

// Supervisor runs at most one download pipeline at a time.
type Supervisor struct {
	opts   Options
	logger *slog.Logger

	mu             sync.Mutex
	busy           bool
	maxAudioLength int
	wg             sync.WaitGroup
}

// NewSupervisor validates opts and fills defaults.
func NewSupervisor(opts Options) (*Supervisor, error) {
	if strings.TrimSpace(opts.WorkDir) == "" {
		return nil, errors.New("work directory required")
	}
	if opts.Artifacts == nil {
		return nil, errors.New("artifact store required")
	}
	if opts.YtDlpBinary == "" {
		opts.YtDlpBinary = "yt-dlp"
	}
	if opts.FFmpegBinary == "" {
		opts.FFmpegBinary = "ffmpeg"
	}
	if opts.CoverTimeout <= 0 {
		opts.CoverTimeout = 15 * time.Second
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if opts.Executor == nil {
		opts.Executor = commandExecutor{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Supervisor{opts: opts, logger: logging.NewComponentLogger(logger, "supervisor")}, nil
}

// SetMaxAudioLength applies the duration limit announced by the manager.
func (s *Supervisor) SetMaxAudioLength(seconds int) {
	s.mu.Lock()
	s.maxAudioLength = seconds
	s.mu.Unlock()
}

// Busy reports whether a pipeline is running.
func (s *Supervisor) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

// Start answers a download-start. A busy supervisor rejects; otherwise it
// confirms and runs the pipeline in the background until ctx ends.
func (s *Supervisor) Start(ctx context.Context, start protocol.DownloadStart, out Sender) bool {
	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		logging.WarnWithContext(s.logger, "manager sent a job while another is running", "download_rejected",
			logging.String(logging.FieldJobID, start.JobID),
			logging.String(logging.FieldImpact, "job returned to the manager queue"),
		)
		out.Send(protocol.DownloadStartReject{JobID: start.JobID})
		return false
	}
	s.busy = true
	maxAudioLength := s.maxAudioLength
	s.wg.Add(1)
	s.mu.Unlock()

	out.Send(protocol.DownloadStartConfirm{JobID: start.JobID})
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			s.busy = false
			s.mu.Unlock()
		}()
		s.run(ctx, start, maxAudioLength, out)
	}()
	return true
}

// Wait blocks until the running pipeline, if any, has finished.
func (s *Supervisor) Wait() {
	s.wg.Wait()
}

func (s *Supervisor) run(ctx context.Context, start protocol.DownloadStart, maxAudioLength int, out Sender) {
	jobID := start.JobID
	logger := s.logger.With(
		logging.String(logging.FieldJobID, jobID),
		logging.String(logging.FieldVideoID, start.Metadata.VideoID),
	)
	started := s.opts.Now()
	logger.Info("download started", logging.String(logging.FieldEventType, "download_started"))

	base := filepath.Join(s.opts.WorkDir, jobID)
	pre, final := base+".pre.mp3", base+".mp3"
	fail := func(reason string) {
		removeFiles(pre, final)
		out.Send(protocol.DownloadFail{JobID: jobID, Reason: reason})
	}

	cover, err := fetchCover(ctx, s.opts.HTTPClient, start.Metadata.Cover, start.Settings.UseMaxResCovers, s.opts.CoverTimeout)
	if err != nil {
		logger.Debug("cover unavailable", logging.Error(err))
	}

	args := YtDlpArgs(JobSpec{
		Output:         base + ".pre.%(ext)s",
		Metadata:       start.Metadata,
		Lyrics:         start.Lyrics,
		Settings:       start.Settings,
		MaxAudioLength: maxAudioLength,
		CookiesPath:    s.opts.CookiesPath,
	})
	throttle := newProgressThrottle(s.opts.ProgressInterval, s.opts.ProgressMinDelta, s.opts.Now)
	sampler := logging.NewProgressSampler(25)
	tail := newLineTail(failureTailLines)

	runErr := s.opts.Executor.Run(ctx, s.opts.YtDlpBinary, args, nil, func(stream Stream, line string) {
		if stream == StreamStderr {
			tail.Add(line)
			return
		}
		update, ok := Classify(line)
		if !ok {
			return
		}
		if update.Status != "" {
			out.Send(protocol.DownloadStatus{JobID: jobID, Status: update.Status})
			if sampler.ShouldLog(-1, update.Status) {
				logger.Debug("download status", logging.String("status", update.Status))
			}
			return
		}
		if !throttle.Allow(update.Fraction) {
			return
		}
		fraction := update.Fraction
		out.Send(protocol.DownloadStatus{JobID: jobID, Percentage: &fraction})
		if sampler.ShouldLog(fraction*100, "") {
			logger.Debug("download progress", logging.Float64("percent", fraction*100))
		}
	})
	if runErr != nil {
		reason := tail.Reason()
		if ctx.Err() != nil {
			reason = ReasonCancelled
		}
		logging.WarnWithContext(logger, "yt-dlp failed", "download_failed",
			logging.Error(runErr),
			logging.String("reason", reason),
			logging.String(logging.FieldImpact, "job reported as failed"),
		)
		fail(reason)
		return
	}

	if len(cover) > 0 {
		out.Send(protocol.DownloadStatus{JobID: jobID, Status: StatusCover})
		err := s.opts.Executor.Run(ctx, s.opts.FFmpegBinary, CoverArgs(pre, final), bytes.NewReader(cover), nil)
		_ = os.Remove(pre)
		if err != nil {
			logging.WarnWithContext(logger, "cover mux failed", "cover_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "job reported as failed"),
				logging.String(logging.FieldErrorHint, "check the ffmpeg installation"),
			)
			fail(ReasonCoverFailed)
			return
		}
	} else if err := os.Rename(pre, final); err != nil {
		logging.WarnWithContext(logger, "finalize download failed", "download_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "job reported as failed"),
		)
		fail(ReasonUnknown)
		return
	}

	s.opts.Artifacts.Add(jobID, final)
	out.Send(protocol.DownloadFinish{JobID: jobID})
	logger.Info("download finished",
		logging.String(logging.FieldEventType, "download_finished"),
		logging.Duration("elapsed", s.opts.Now().Sub(started)),
		logging.Bool("cover", len(cover) > 0),
	)
}

func removeFiles(paths ...string) {
	for _, path := range paths {
		_ = os.Remove(path)
	}
}

// lineTail keeps the last n stderr lines for the failure reason.
type lineTail struct {
	n     int
	lines []string
}

func newLineTail(n int) *lineTail {
	return &lineTail{n: n}
}

func (t *lineTail) Add(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	t.lines = append(t.lines, line)
	if len(t.lines) > t.n {
		t.lines = t.lines[len(t.lines)-t.n:]
	}
}

// Reason prefers the last yt-dlp ERROR line and falls back to the tail.
func (t *lineTail) Reason() string {
	for i := len(t.lines) - 1; i >= 0; i-- {
		if strings.HasPrefix(t.lines[i], "ERROR:") {
			return truncate(t.lines[i], maxFailureReason)
		}
	}
	if len(t.lines) == 0 {
		return ReasonUnknown
	}
	return truncate(strings.Join(t.lines, "\n"), maxFailureReason)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return strings.ToValidUTF8(s[len(s)-n:], "")
}
