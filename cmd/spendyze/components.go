package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"spendyze/internal/ai"
	"spendyze/internal/amqp"
	"spendyze/internal/backend"
	"spendyze/internal/cache"
	apphttp "spendyze/internal/http"
	"spendyze/internal/ledger"
	"spendyze/internal/lock"
	"spendyze/internal/log"
	"spendyze/internal/metrics"
	"spendyze/internal/notify"
	"spendyze/internal/services"
)

const cacheCleanupInterval = 5 * time.Minute

// components are the long-lived collaborators shared by serve and worker.
type components struct {
	store     ledger.Store
	cleanup   backend.CleanupFunc
	redis     *redis.Client
	locker    lock.Locker
	metrics   *metrics.Registry
	ai        ai.Service
	caches    *cache.Manager
	alerts    *services.AlertService
	processor *services.AlertProcessor
	broker    *amqp.Client
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

// buildStore opens only the configured ledger store.
func (a *app) buildStore(ctx context.Context) (*backend.BackendResult, error) {
	bcfg, err := backend.FromAppConfig(a.cfg)
	if err != nil {
		return nil, err
	}
	return backend.NewFactory(a.logger).CreateBackend(ctx, bcfg)
}

func (a *app) buildLocker(ctx context.Context) (lock.Locker, *redis.Client, error) {
	if a.cfg.LockBackend != "redis" {
		return lock.NewLocal(), nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     a.cfg.RedisAddr,
		Password: a.cfg.RedisPassword,
		DB:       a.cfg.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("connect redis %s: %w", a.cfg.RedisAddr, err)
	}
	a.logger.Info("Using redis locks", "addr", a.cfg.RedisAddr)
	return lock.NewRedis(client, "spendyze:lock:", 30*time.Second), client, nil
}

func (a *app) buildDispatcher() notify.Dispatcher {
	var mailer notify.Mailer
	if a.cfg.SMTPConfigured() {
		mailer = notify.NewSMTPMailer(notify.SMTPConfig{
			Host:     a.cfg.SMTPHost,
			Port:     a.cfg.SMTPPort,
			Username: a.cfg.SMTPUser,
			Password: a.cfg.SMTPPass,
		})
	} else {
		a.logger.Warn("SMTP is not fully configured, alert emails will only be logged")
		mailer = notify.NewLogMailer(a.logger)
	}
	return notify.NewEmailDispatcher(mailer, notify.EmailConfig{
		FromName:     a.cfg.FromName,
		FromEmail:    a.cfg.FromEmail,
		DashboardURL: a.cfg.DashboardURL,
	}, a.logger)
}

// build wires every component. The broker is connected only when
// withBroker is set and AMQP_URL is configured.
func (a *app) build(ctx context.Context, withBroker bool) (*components, error) {
	c := &components{metrics: metrics.New(), caches: cache.NewManager()}

	res, err := a.buildStore(ctx)
	if err != nil {
		return nil, err
	}
	c.store, c.cleanup = res.Store, res.Cleanup

	c.locker, c.redis, err = a.buildLocker(ctx)
	if err != nil {
		c.Close()
		return nil, err
	}

	service, summaries, err := ai.New(ctx, ai.Config{
		Provider: a.cfg.AIProvider,
		APIKey:   a.cfg.AIAPIKey,
		Model:    a.cfg.AIModel,
		BaseURL:  a.cfg.AIBaseURL,
	}, a.logger)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("init ai provider: %w", err)
	}
	c.ai = service
	if summaries != nil {
		c.caches.Register(summaries)
		c.caches.StartCleanup(cacheCleanupInterval)
	}

	pcfg := services.DefaultAlertProcessorConfig()
	pcfg.PollInterval = a.cfg.AlertPollInterval
	pcfg.BatchSize = a.cfg.AlertBatchSize
	pcfg.MaxRetries = a.cfg.AlertMaxRetries
	c.processor = services.NewAlertProcessor(c.store, c.ai, a.buildDispatcher(), pcfg, a.logger).
		WithMetrics(c.metrics)

	c.alerts = services.NewAlertService(c.store, c.locker, a.logger).WithMetrics(c.metrics)
	if a.cfg.AlertDelivery == "sync" {
		c.alerts.WithDeliverer(c.processor)
	}

	if withBroker && a.cfg.AMQPURL != "" {
		c.broker, err = amqp.NewClient(a.cfg.AMQPURL, a.cfg.AMQPExchange, a.cfg.AMQPQueue)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("connect amqp: %w", err)
		}
		a.logger.Info("Connected to AMQP", "exchange", a.cfg.AMQPExchange, "queue", a.cfg.AMQPQueue)
	}
	return c, nil
}

// readiness lists the probes for /readyz.
func (c *components) readiness() map[string]apphttp.Pinger {
	probes := map[string]apphttp.Pinger{"store": c.store}
	if c.broker != nil {
		probes["amqp"] = c.broker
	}
	if c.redis != nil {
		probes["redis"] = pingFunc(func(ctx context.Context) error { return c.redis.Ping(ctx).Err() })
	}
	return probes
}

// Close releases resources in reverse order of creation.
func (c *components) Close() error {
	var errs []error
	if c.broker != nil {
		errs = append(errs, c.broker.Close())
	}
	if c.caches != nil {
		c.caches.Stop()
	}
	if c.redis != nil {
		errs = append(errs, c.redis.Close())
	}
	if c.cleanup != nil {
		errs = append(errs, c.cleanup())
	}
	return errors.Join(errs...)
}

// withStore runs fn against the configured store and closes it afterwards.
func (a *app) withStore(ctx context.Context, fn func(ledger.Store) error) error {
	res, err := a.buildStore(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := res.Cleanup(); err != nil {
			a.logger.Warn("Failed to close store", log.FieldError, err)
		}
	}()
	return fn(res.Store)
}
