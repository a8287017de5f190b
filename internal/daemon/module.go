package daemon

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/matheus3301/dmsync/internal/aggregate"
	"github.com/matheus3301/dmsync/internal/api"
	"github.com/matheus3301/dmsync/internal/auth"
	"github.com/matheus3301/dmsync/internal/bus"
	"github.com/matheus3301/dmsync/internal/config"
	"github.com/matheus3301/dmsync/internal/dispatch"
	"github.com/matheus3301/dmsync/internal/gateway"
	"github.com/matheus3301/dmsync/internal/instance"
	"github.com/matheus3301/dmsync/internal/lock"
	"github.com/matheus3301/dmsync/internal/logging"
	"github.com/matheus3301/dmsync/internal/metrics"
	"github.com/matheus3301/dmsync/internal/realtime"
	"github.com/matheus3301/dmsync/internal/registry"
	"github.com/matheus3301/dmsync/internal/store"
)

// Params holds the resolved instance configuration passed to the fx module.
type Params struct {
	InstanceName string
	Config       config.Config
	LogLevel     zapcore.Level
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	p.Config = p.Config.WithDefaults()
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideBus,
			provideLock,
			provideStore,
			providePrometheus,
			provideMetrics,
			provideRegistry,
			provideGateway,
			provideDirectory,
			provideDispatcher,
			provideAggregator,
			provideAuthenticator,
			provideHub,
			provideRouterDeps,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(instance.LogPath(p.InstanceName), p.InstanceName, p.LogLevel)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := instance.EnsureDir(p.InstanceName); err != nil {
		return nil, err
	}
	logger.Info("acquiring instance lock", zap.String("instance", p.InstanceName))
	l, err := lock.Acquire(instance.Dir(p.InstanceName), p.Config.ListenAddr)
	if err != nil {
		return nil, err
	}
	logger.Info("instance lock acquired")
	return l, nil
}

// The lock is a parameter so the database is only opened by the lock holder.
func provideStore(p Params, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	dbPath := instance.DBPath(p.InstanceName)
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

func providePrometheus() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func provideMetrics(reg *prometheus.Registry) *metrics.Metrics {
	return metrics.New(reg)
}

func provideRegistry(b *bus.Bus) *registry.Registry {
	return registry.New(b)
}

func provideGateway(db *store.DB, m *metrics.Metrics, logger *zap.Logger) *gateway.Gateway {
	return gateway.New(db, m, logger.Named("gateway"))
}

func provideDirectory(p Params, db *store.DB) *gateway.Directory {
	return gateway.NewDirectory(db, p.Config.DefaultRegion)
}

func provideDispatcher(reg *registry.Registry, b *bus.Bus, m *metrics.Metrics, logger *zap.Logger) *dispatch.Dispatcher {
	return dispatch.New(reg, b, m, logger.Named("dispatch"))
}

func provideAggregator(db *store.DB, logger *zap.Logger) *aggregate.Aggregator {
	return aggregate.New(db, logger.Named("aggregate"))
}

func provideAuthenticator() auth.Authenticator {
	return auth.TrustingAuthenticator{}
}

func provideHub(p Params, reg *registry.Registry, a auth.Authenticator, b *bus.Bus, m *metrics.Metrics, logger *zap.Logger) *realtime.Hub {
	return realtime.NewHub(reg, a, b, m, logger.Named("realtime"), p.Config.PushBuffer)
}

func provideRouterDeps(
	p Params,
	gw *gateway.Gateway,
	dir *gateway.Directory,
	d *dispatch.Dispatcher,
	agg *aggregate.Aggregator,
	reg *registry.Registry,
	a auth.Authenticator,
	hub *realtime.Hub,
	promReg *prometheus.Registry,
	m *metrics.Metrics,
	logger *zap.Logger,
) api.Deps {
	gin.SetMode(gin.ReleaseMode)
	deps := api.Deps{
		Messages: api.NewMessageService(gw, d),
		Chats:    api.NewChatService(agg, reg),
		Users:    api.NewUserService(dir),
		Auth:     a,
		Realtime: hub,
		Metrics:  m,
		Logger:   logger.Named("http"),
	}
	if p.Config.Metrics() {
		deps.Gatherer = promReg
	}
	return deps
}

func registerLifecycle(lc fx.Lifecycle, srv *Server, hub *realtime.Hub, b *bus.Bus, db *store.DB, lk *lock.Lock, logger *zap.Logger) {
	hubCtx, cancelHub := context.WithCancel(context.Background())
	hubDone := make(chan struct{})
	activityDone := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Broadcast presence and own websocket shutdown.
			go func() {
				defer close(hubDone)
				hub.Run(hubCtx)
			}()
			go func() {
				defer close(activityDone)
				runActivityLog(hubCtx, b, logger.Named("activity"))
			}()

			// Start HTTP server in background.
			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("http server error", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			srv.Stop(ctx)
			cancelHub()
			<-hubDone
			<-activityDone
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			_ = logger.Sync()
			return nil
		},
	})
}
