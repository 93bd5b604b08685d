// Package app assembles the store, collaborators and booking service from config.
// Every binary under cmd/ shares this wiring.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hackgods/session-booking/internal/api"
	"github.com/hackgods/session-booking/internal/appointment"
	"github.com/hackgods/session-booking/internal/auth"
	"github.com/hackgods/session-booking/internal/catalog"
	"github.com/hackgods/session-booking/internal/config"
	"github.com/hackgods/session-booking/internal/db"
	"github.com/hackgods/session-booking/internal/notify"
	redisclient "github.com/hackgods/session-booking/internal/redis"
)

type Runtime struct {
	Config   config.Config
	Logger   *zap.Logger
	Pool     *pgxpool.Pool // nil with the memory store
	Redis    *redis.Client // nil when redis is not configured
	Repo     appointment.Repository
	Service  *appointment.Service
	Catalog  *catalog.Static
	Tokens   *auth.TokenManager
	Notifier *notify.Async
	Checks   []api.DependencyCheck
}

// Build connects to every configured dependency. On error, anything already
// opened is closed.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (rt *Runtime, err error) {
	rt = &Runtime{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			rt.Close(context.Background())
			rt = nil
		}
	}()

	rt.Catalog, err = catalog.Parse(cfg.Clinic.ServiceCatalog)
	if err != nil {
		return rt, fmt.Errorf("service catalog: %w", err)
	}
	slots, err := appointment.NewCatalog(cfg.Clinic.SlotTimes)
	if err != nil {
		return rt, fmt.Errorf("slot catalog: %w", err)
	}
	rt.Tokens = auth.NewTokenManager(cfg.JWTSecret, 0)

	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		logger.Warn("using in-memory store; data is lost on exit")
		rt.Repo = appointment.NewMemoryRepository()
	default:
		pgCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		rt.Pool, err = db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
		cancel()
		if err != nil {
			return rt, fmt.Errorf("postgres connection: %w", err)
		}
		logger.Info("connected to postgres")

		if cfg.RunMigrations {
			if err := db.RunMigrations(ctx, rt.Pool, logger); err != nil {
				return rt, err
			}
		}
		rt.Repo = appointment.NewPgRepository(rt.Pool)
		pool := rt.Pool
		rt.Checks = append(rt.Checks, api.DependencyCheck{Name: "postgres", Critical: true, Ping: pool.Ping})
	}

	if cfg.RedisAddr != "" {
		rt.Redis, err = redisclient.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
		if err != nil {
			return rt, fmt.Errorf("redis connection: %w", err)
		}
		logger.Info("connected to redis", zap.String("addr", cfg.RedisAddr))
		rdb := rt.Redis
		rt.Checks = append(rt.Checks, api.DependencyCheck{
			Name: "redis",
			Ping: func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		})
	}

	var transport notify.Notifier
	switch cfg.Notification.Driver {
	case "amqp":
		transport = notify.NewAMQPNotifier(cfg.Notification.AMQPURL)
	case "kafka":
		brokers := notify.SplitBrokers(cfg.Notification.KafkaBrokers)
		transport = notify.NewKafkaNotifier(brokers)
		rt.Checks = append(rt.Checks, api.DependencyCheck{Name: "kafka", Ping: notify.KafkaReady(brokers)})
	default:
		transport = notify.NewLogNotifier(logger.Named("notify"))
	}
	rt.Notifier = notify.NewAsync(transport, cfg.Notification.Timeout, logger)
	logger.Info("notifications enabled", zap.String("driver", cfg.Notification.Driver))

	loc := cfg.Clinic.Location
	rt.Service = appointment.NewService(appointment.Dependencies{
		Repo:     rt.Repo,
		Catalog:  slots,
		Tickets:  appointment.NewTicketIssuer(rt.Repo, cfg.Clinic.TicketPrefix, cfg.Clinic.TicketMaxAttempts, loc),
		Notifier: rt.Notifier,
		Location: loc,
		Clinic:   appointment.ClinicInfo{Address: cfg.Clinic.Address, Practitioner: cfg.Clinic.Practitioner},
		Logger:   logger,
	})

	return rt, nil
}

// Limiter returns the booking rate limiter, or nil when it is disabled.
func (rt *Runtime) Limiter() redisclient.Limiter {
	if rt.Redis == nil || rt.Config.RateLimit <= 0 {
		return nil
	}
	return redisclient.NewFixedWindowLimiter(rt.Redis, rt.Config.RateLimit, rt.Config.RateWindow, "booking")
}

// Close drains notifications and releases connections.
func (rt *Runtime) Close(ctx context.Context) {
	if rt.Service != nil {
		if err := rt.Service.Close(ctx); err != nil {
			rt.Logger.Warn("error draining notifications", zap.Error(err))
		}
	}
	if rt.Redis != nil {
		if err := rt.Redis.Close(); err != nil {
			rt.Logger.Warn("error closing redis", zap.Error(err))
		}
	}
	if rt.Pool != nil {
		rt.Pool.Close()
	}
}
