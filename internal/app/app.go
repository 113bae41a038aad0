// Package app assembles the storefront object graph shared by the API server
// and the batch worker.
package app

import (
	"context"

	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	rd "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"storefront/internal/batch"
	"storefront/internal/catalog"
	"storefront/internal/config"
	"storefront/internal/database"
	"storefront/internal/inventory"
	"storefront/internal/logger"
	"storefront/internal/notify"
	"storefront/internal/order"
	"storefront/internal/queue"
	"storefront/internal/telemetry"
	sredis "storefront/pkg/redis"
)

type App struct {
	Config     config.AppConfig
	Log        *zap.Logger
	DB         *gorm.DB
	Redis      *rd.Client
	Catalog    *catalog.Store
	Orders     *order.Service
	Correlator *batch.Correlator
	// DelayQueue is set only when the batch scheduler is redis.
	DelayQueue *queue.DelayQueue

	closers []func(context.Context) error
}

// New wires every component from cfg. Close releases them in reverse order.
func New(ctx context.Context, cfg config.AppConfig) (_ *App, err error) {
	log, err := logger.New(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: cfg.Log.Output})
	if err != nil {
		return nil, err
	}
	a := &App{Config: cfg, Log: log}
	defer func() {
		if err != nil {
			a.Close(context.Background())
		}
	}()
	a.onClose(func(context.Context) error {
		_ = log.Sync()
		return nil
	})

	tcfg := telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
		MetricInterval:    cfg.Telemetry.MetricInterval,
	}
	tp, err := telemetry.NewTracerProvider(ctx, tcfg, log)
	if err != nil {
		return nil, err
	}
	a.onClose(tp.Shutdown)

	mp, err := telemetry.NewMeterProvider(ctx, tcfg, log)
	if err != nil {
		return nil, err
	}
	a.onClose(mp.Shutdown)
	metrics, err := telemetry.NewMetrics(mp.Meter())
	if err != nil {
		return nil, err
	}

	a.DB, err = database.Open(cfg.Database, log, cfg.Log.Level, tp.Enabled())
	if err != nil {
		return nil, err
	}
	a.onClose(func(context.Context) error { return database.Close(a.DB) })
	if cfg.Database.AutoMigrate {
		if err := database.Migrate(a.DB); err != nil {
			return nil, err
		}
	}

	if cfg.Redis.Enabled() {
		a.Redis = rd.NewClient(&rd.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err := a.Redis.Ping(ctx).Err(); err != nil {
			return nil, errors.Wrapf(err, "ping redis %s", cfg.Redis.Addr)
		}
		a.onClose(func(context.Context) error { return a.Redis.Close() })
	}

	guard := notify.NewGuard(a.dispatcher(), log.Named("notify"), notify.WithMetrics(metrics))

	a.Catalog = catalog.NewStore(a.DB, cfg.MediaBaseURL)
	ledger := inventory.NewLedger(a.DB, log, inventory.WithMetrics(metrics))
	repo := order.NewRepository(a.DB)

	var marker batch.Marker = batch.NewMemoryMarker(clockwork.NewRealClock())
	if a.Redis != nil {
		marker = sredis.NewMarker(a.Redis)
	}

	var (
		scheduler batch.Scheduler
		timers    *batch.TimerScheduler
	)
	switch cfg.Batch.Scheduler {
	case "redis":
		a.DelayQueue = queue.NewDelayQueue(a.Redis, cfg.Batch.QueueKey, clockwork.NewRealClock(), cfg.Batch.PollInterval, log)
		scheduler = a.DelayQueue
	default:
		timers = batch.NewTimerScheduler(clockwork.NewRealClock(), log)
		a.onClose(func(context.Context) error { return timers.Close() })
		scheduler = timers
	}

	a.Correlator = batch.NewCorrelator(repo, guard, marker, scheduler,
		batch.WithWindows(batch.Windows{
			Recent:    cfg.Batch.RecentWindow,
			Delay:     cfg.Batch.Delay,
			Confirm:   cfg.Batch.Confirm,
			MarkerTTL: cfg.Batch.MarkerTTL,
		}),
		batch.WithLogger(log))
	if timers != nil {
		timers.Bind(a.Correlator.ConfirmBatch)
	}

	opts := []order.Option{order.WithLogger(log), order.WithMetrics(metrics)}
	if cfg.Orders.StrictTransitions {
		opts = append(opts, order.WithTransitionPolicy(order.StrictLifecycle()))
	}
	if cfg.Orders.RestockOnCancel {
		opts = append(opts, order.WithCancellationPolicy(order.Restock{Ledger: ledger}))
	}
	a.Orders = order.NewService(a.DB, a.Catalog, ledger, a.Correlator, guard, opts...)

	log.Info("storefront wired",
		zap.String("env", cfg.Env),
		zap.String("database", cfg.Database.Driver),
		zap.String("notify", cfg.Notify.Driver),
		zap.String("batch_scheduler", cfg.Batch.Scheduler),
		zap.Bool("redis", a.Redis != nil))
	return a, nil
}

func (a *App) dispatcher() notify.Dispatcher {
	if a.Config.Notify.Driver == "kafka" {
		d := notify.NewKafkaDispatcher(
			notify.NewKafkaWriter(a.Config.Kafka.Brokers, a.Config.Notify.Topic),
			a.Config.Notify.AdminEmail, clockwork.NewRealClock(), a.Log)
		a.onClose(func(context.Context) error { return d.Close() })
		return d
	}
	return notify.NewLogDispatcher(a.Log, a.Config.Notify.AdminEmail)
}

func (a *App) onClose(fn func(context.Context) error) {
	a.closers = append(a.closers, fn)
}

// Close runs the registered closers in reverse order and logs failures.
func (a *App) Close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.Log.Warn("close", zap.Error(err))
		}
	}
	a.closers = nil
}
