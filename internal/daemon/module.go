package daemon

import (
	"context"
	"time"

	"github.com/lfmelo/zapcrm/internal/api"
	"github.com/lfmelo/zapcrm/internal/bus"
	"github.com/lfmelo/zapcrm/internal/config"
	"github.com/lfmelo/zapcrm/internal/conn"
	"github.com/lfmelo/zapcrm/internal/convo"
	"github.com/lfmelo/zapcrm/internal/ingest"
	"github.com/lfmelo/zapcrm/internal/lock"
	"github.com/lfmelo/zapcrm/internal/logging"
	"github.com/lfmelo/zapcrm/internal/outbound"
	"github.com/lfmelo/zapcrm/internal/session"
	"github.com/lfmelo/zapcrm/internal/status"
	"github.com/lfmelo/zapcrm/internal/store"
	"github.com/lfmelo/zapcrm/internal/wa"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved session configuration passed to the fx module.
type Params struct {
	SessionName string
	ListenAddr  string // optional override for testing; empty = use config
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideStore,
			provideAdapter,
			provideManager,
			provideIngestPipeline,
			provideOutboundPipeline,
			provideAggregator,
			provideHandler,
			provideServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	cfg, err := config.LoadOrInit(session.ConfigPath())
	if err != nil {
		return nil, err
	}
	if p.ListenAddr != "" {
		cfg.ListenAddr = p.ListenAddr
	}
	return cfg, nil
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(session.LogPath(p.SessionName), p.SessionName)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := session.EnsureDir(p.SessionName); err != nil {
		return nil, err
	}
	logger.Info("acquiring session lock", zap.String("session", p.SessionName))
	l, err := lock.Acquire(session.Dir(p.SessionName))
	if err != nil {
		return nil, err
	}
	logger.Info("session lock acquired")
	return l, nil
}

func provideStore(p Params, logger *zap.Logger) (*store.DB, error) {
	dbPath := session.AppDBPath(p.SessionName)
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideAdapter(p Params, b *bus.Bus, logger *zap.Logger) (*wa.Adapter, error) {
	return wa.NewAdapter(context.Background(), session.CredentialsDBPath(p.SessionName), b, logger)
}

func provideManager(adapter *wa.Adapter, machine *status.Machine, b *bus.Bus, cfg *config.Config, logger *zap.Logger) *conn.Manager {
	return conn.NewManager(adapter, machine, b, logger, conn.Config{
		MaxRetries:  cfg.MaxRetries,
		BaseDelay:   time.Duration(cfg.BaseDelayMS) * time.Millisecond,
		MaxDelay:    time.Duration(cfg.MaxDelayMS) * time.Millisecond,
		SettleDelay: cfg.SettleDelay(),
	})
}

func provideIngestPipeline(db *store.DB, mgr *conn.Manager, b *bus.Bus, logger *zap.Logger) *ingest.Pipeline {
	return ingest.NewPipeline(db, mgr, b, logger)
}

func provideOutboundPipeline(db *store.DB, mgr *conn.Manager, b *bus.Bus, logger *zap.Logger) *outbound.Pipeline {
	return outbound.NewPipeline(db, mgr, b, logger)
}

func provideAggregator(db *store.DB, cfg *config.Config, logger *zap.Logger) *convo.Aggregator {
	return convo.NewAggregator(db, cfg.SLAThreshold(), logger)
}

func provideHandler(mgr *conn.Manager, out *outbound.Pipeline, agg *convo.Aggregator, db *store.DB, cfg *config.Config, logger *zap.Logger) *api.Handler {
	return api.NewHandler(mgr, out, agg, db, cfg.SettleDelay(), logger)
}

func provideServer(cfg *config.Config, h *api.Handler, logger *zap.Logger) (*Server, error) {
	return NewServer(cfg.ListenAddr, h, logger)
}

func registerLifecycle(lc fx.Lifecycle, srv *Server, lk *lock.Lock, adapter *wa.Adapter, mgr *conn.Manager, ing *ingest.Pipeline, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Manager consumes conn.* events, ingestion consumes transport.*.
			mgr.Run(context.Background())
			ing.Start(context.Background())

			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("http server error", zap.Error(err))
				}
			}()

			// Bring the session up: connects with stored credentials or
			// surfaces a QR pairing code.
			mgr.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			mgr.Shutdown()
			ing.Stop()
			// Close the transport without logging out so the pairing
			// survives a daemon restart.
			if err := adapter.Close(); err != nil {
				logger.Warn("transport close failed", zap.Error(err))
			}
			srv.Stop(ctx)
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
