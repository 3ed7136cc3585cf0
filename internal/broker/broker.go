package broker

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"ytmusicdl/internal/config"
	"ytmusicdl/internal/ledger"
	"ytmusicdl/internal/lifecycle"
	"ytmusicdl/internal/logging"
	"ytmusicdl/internal/notifications"
	"ytmusicdl/internal/packaging"
	"ytmusicdl/internal/protocol"
	"ytmusicdl/internal/registry"
	"ytmusicdl/internal/scheduler"
)

const (
	wakeInterval    = time.Minute
	restartInterval = time.Minute
	wakeTimeout     = 10 * time.Second
	workerReadLimit = 1 << 20
)

// HistoryReader serves the admin history endpoint.
type HistoryReader interface {
	Recent(ctx context.Context, filter ledger.Filter) ([]ledger.Event, error)
}

// Dependencies are the optional collaborators of a Broker. Zero values fall
// back to no-op implementations.
type Dependencies struct {
	Logger   *slog.Logger
	Sink     ledger.Sink
	History  HistoryReader
	Notifier notifications.Service
	// HTTPClient performs artifact pulls and wake-up pings.
	HTTPClient *http.Client
}

// Broker wires the manager components behind the websocket endpoints.
type Broker struct {
	cfg      *config.Config
	reg      *registry.Registry
	sched    *scheduler.Scheduler
	life     *lifecycle.Manager
	pack     *packaging.Packager
	notifier notifications.Service
	history  HistoryReader
	logger   *slog.Logger
	sink     ledger.Sink
	client   *http.Client
	upgrader websocket.Upgrader
	now      func() time.Time

	wakeLimiter    *rate.Limiter
	restartLimiter *rate.Limiter

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds the registry, scheduler, lifecycle manager and packager for cfg.
func New(cfg *config.Config, deps Dependencies) *Broker {
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	sink := deps.Sink
	if sink == nil {
		sink = ledger.Discard
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = notifications.Noop()
	}
	client := deps.HTTPClient
	if client == nil {
		client = &http.Client{}
	}

	m := cfg.Manager
	reg := registry.New()
	sched := scheduler.New(reg, logger, sink, scheduler.Options{AllowDuplicates: m.AllowSameVideoMultipleTimes})
	life := lifecycle.New(sched, logger, sink, lifecycle.Options{
		MaxClients:      m.MaxClients,
		RecoveryWindow:  cfg.SessionRecoveryWindow(),
		RetentionWindow: cfg.RetentionWindow(),
		DownloadDir:     cfg.Paths.DownloadDir,
		Config: protocol.ServerConfig{
			SessionRecoveryTimeout:      m.SessionRecoveryTimeout,
			MaxClients:                  m.MaxClients,
			MaxPacketLength:             m.MaxPacketLength,
			MaxAudioLength:              m.MaxAudioLength,
			MaxTotalAudioLength:         m.MaxTotalAudioLength,
			AllowSameVideoMultipleTimes: m.AllowSameVideoMultipleTimes,
			DownloadMinutes:             m.DownloadMinutes,
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	return &Broker{
		cfg:      cfg,
		reg:      reg,
		sched:    sched,
		life:     life,
		pack:     packaging.New(reg, life, notifier, logger, sink),
		notifier: notifier,
		history:  deps.History,
		logger:   logging.NewComponentLogger(logger, "broker"),
		sink:     sink,
		client:   client,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		now:            time.Now,
		wakeLimiter:    rate.NewLimiter(rate.Every(wakeInterval), 1),
		restartLimiter: rate.NewLimiter(rate.Every(restartInterval), 1),
		ctx:            ctx,
		cancel:         cancel,
	}
}

// Registry exposes the shared state for status reporting and tests.
func (b *Broker) Registry() *registry.Registry { return b.reg }

// Lifecycle exposes the session manager.
func (b *Broker) Lifecycle() *lifecycle.Manager { return b.life }

// Close stops background work: artifact pulls, wake-ups, archiving, recovery
// timers and pending cleanups.
func (b *Broker) Close() {
	b.cancel()
	b.wg.Wait()
	b.pack.Close()
	b.life.Close()
}

// spawn runs fn in a tracked goroutine bound to the broker context.
func (b *Broker) spawn(fn func(ctx context.Context)) {
	if b.ctx.Err() != nil {
		return
	}
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		fn(b.ctx)
	}()
}
