package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/santirms/zupply-app-sub000/config"
	"github.com/santirms/zupply-app-sub000/internal/broker/kafka"
	"github.com/santirms/zupply-app-sub000/internal/broker/messages"
	"github.com/santirms/zupply-app-sub000/internal/cache/rediscache"
	"github.com/santirms/zupply-app-sub000/internal/integrations/meli"
	"github.com/santirms/zupply-app-sub000/internal/integrations/meli/fake"
	"github.com/santirms/zupply-app-sub000/internal/integrations/meli/melihttp"
	"github.com/santirms/zupply-app-sub000/internal/models"
	"github.com/santirms/zupply-app-sub000/internal/services/recon"
	"github.com/santirms/zupply-app-sub000/internal/storage/pgshipping"
)

type orderConsumer interface {
	Consume(ctx context.Context, handler func(key, value []byte) error) error
	Close() error
}

// shipmentRegistrar: хранилища, умеющие регистрировать новые отправления.
// Проверяется type assertion'ом, т.к. пайплайну сверки этот метод не нужен.
type shipmentRegistrar interface {
	CreateOrGetShipments(ctx context.Context, items []models.ShipmentCreateInput) ([]*models.ShipmentRecord, error)
}

type workerFactories struct {
	newStorage     func(cfg *config.Config) (storage recon.Storage, closeFn func(), err error)
	newProducer    func(cfg *config.Config) recon.Producer
	newRateLimiter func(cfg *config.Config) recon.RateLimiter
	newTokens      func(cfg *config.Config) meli.TokenProvider
	newClient      func(cfg *config.Config, tokens meli.TokenProvider) meli.Client
	newConsumer    func(cfg *config.Config) orderConsumer
}

func defaultWorkerFactories() workerFactories {
	return workerFactories{
		newStorage: func(cfg *config.Config) (recon.Storage, func(), error) {
			sslMode := cfg.Database.SSLMode
			if sslMode == "" {
				sslMode = "disable"
			}
			connString := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
				cfg.Database.Username, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName, sslMode)
			st, err := pgshipping.New(connString)
			if err != nil {
				return nil, nil, err
			}
			return st, st.Close, nil
		},
		newProducer: func(cfg *config.Config) recon.Producer {
			brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
			return kafka.NewProducer(brokers)
		},
		newRateLimiter: func(cfg *config.Config) recon.RateLimiter {
			redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
			return rediscache.NewRateLimiter(redisAddr)
		},
		newTokens: func(cfg *config.Config) meli.TokenProvider {
			tokens := make(map[uint64]string, len(cfg.Meli.Accounts))
			for _, a := range cfg.Meli.Accounts {
				tokens[a.AccountID] = a.AccessToken
			}
			var p meli.TokenProvider = meli.NewStaticTokenProvider(tokens)

			ttl := time.Duration(cfg.Meli.TokenTTLSeconds) * time.Second
			if ttl > 0 {
				redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
				p = meli.NewCachingTokenProvider(p, rediscache.New(redisAddr), ttl)
			}
			return p
		},
		newClient: func(cfg *config.Config, tokens meli.TokenProvider) meli.Client {
			// Без явного http-режима работаем на локальном fake (демо).
			if cfg.Meli.Mode == "http" {
				return melihttp.New(cfg.Meli.BaseURL, tokens)
			}
			return fake.New()
		},
		newConsumer: func(cfg *config.Config) orderConsumer {
			if cfg.Kafka.OrderCreatedTopicName == "" {
				return nil
			}
			brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
			return kafka.NewConsumer(brokers, cfg.Kafka.OrderCreatedTopicName, cfg.Kafka.ConsumerGroup)
		},
	}
}

func buildRunner(cfg *config.Config, f workerFactories) (*recon.Runner, recon.Storage, func(), error) {
	topic := cfg.Kafka.StatusChangedTopicName
	if topic == "" {
		topic = "shipments.status.changed"
	}

	pollInterval := time.Duration(cfg.Recon.WorkerPollIntervalSeconds) * time.Second
	if pollInterval <= 0 {
		pollInterval = 60 * time.Second
	}
	batchSize := cfg.Recon.WorkerBatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	concurrency := cfg.Recon.WorkerConcurrency
	if concurrency <= 0 {
		concurrency = 10
	}
	lease := time.Duration(cfg.Recon.WorkerLeaseSeconds) * time.Second
	if lease <= 0 {
		lease = 120 * time.Second
	}
	rlPerMin := int64(cfg.Recon.WorkerRateLimitPerMinute)
	if rlPerMin <= 0 {
		rlPerMin = 120
	}

	storage, closeFn, err := f.newStorage(cfg)
	if err != nil {
		return nil, nil, nil, err
	}

	tokens := f.newTokens(cfg)

	r := recon.New(storage, f.newClient(cfg, tokens), tokens, f.newProducer(cfg), f.newRateLimiter(cfg), topic).
		WithSettings(pollInterval, batchSize, concurrency, lease, rlPerMin).
		WithResolver(resolverConfig(cfg)).
		WithNoiseFilter(noiseConfig(cfg)).
		WithSchedule(scheduleConfig(cfg))

	return r, storage, closeFn, nil
}

func resolverConfig(cfg *config.Config) recon.ResolverConfig {
	rc := recon.ResolverConfig{
		TerminalStatuses:   cfg.Recon.ResolverTerminalCodes,
		SpecificDetails:    cfg.Recon.ResolverSpecificCodes,
		IncidentDetails:    cfg.Recon.ResolverIncidentCodes,
		GenericResetDetail: cfg.Recon.NoiseGenericDetail,
	}
	if cfg.Recon.ResolverRecencyHours > 0 {
		rc.RecencyWindow = time.Duration(cfg.Recon.ResolverRecencyHours) * time.Hour
	}
	return rc
}

func noiseConfig(cfg *config.Config) recon.NoiseConfig {
	nc := recon.NoiseConfig{
		GenericResetDetail: cfg.Recon.NoiseGenericDetail,
		WindowStartHour:    cfg.Recon.NoiseWindowStartHour,
		WindowEndHour:      cfg.Recon.NoiseWindowEndHour,
		SpecificDetails:    cfg.Recon.ResolverSpecificCodes,
	}
	if cfg.Recon.NoiseFreshnessMinutes > 0 {
		nc.Freshness = time.Duration(cfg.Recon.NoiseFreshnessMinutes) * time.Minute
	}
	if cfg.Recon.NoiseTimezone != "" {
		if loc, err := time.LoadLocation(cfg.Recon.NoiseTimezone); err == nil {
			nc.Location = loc
		}
	}
	return nc
}

func scheduleConfig(cfg *config.Config) recon.ScheduleConfig {
	return recon.ScheduleConfig{
		TerminalDelay: time.Duration(cfg.Recon.ResyncTerminalSeconds) * time.Second,
		ActiveDelay:   time.Duration(cfg.Recon.ResyncActiveSeconds) * time.Second,
		Backoff1:      time.Duration(cfg.Recon.Backoff1Seconds) * time.Second,
		Backoff2:      time.Duration(cfg.Recon.Backoff2Seconds) * time.Second,
		Backoff3:      time.Duration(cfg.Recon.Backoff3Seconds) * time.Second,
		Backoff4:      time.Duration(cfg.Recon.Backoff4Seconds) * time.Second,
	}
}

// orderIntakeHandler регистрирует отправление из сообщения о новом заказе и
// дёргает внеочередной цикл сверки. Кривые сообщения коммитим с Warn: retry
// им не поможет, а топик они заблокируют.
func orderIntakeHandler(ctx context.Context, reg shipmentRegistrar, r *recon.Runner) func(key, value []byte) error {
	return func(_, value []byte) error {
		var m messages.OrderCreated
		if err := json.Unmarshal(value, &m); err != nil {
			slog.Warn("order intake: malformed message", "error", err.Error())
			return nil
		}
		if m.AccountID == 0 || m.OrderID == "" {
			slog.Warn("order intake: incomplete message", "account_id", m.AccountID, "order_id", m.OrderID)
			return nil
		}
		created, err := reg.CreateOrGetShipments(ctx, []models.ShipmentCreateInput{{
			AccountID:  m.AccountID,
			OrderID:    m.OrderID,
			ExternalID: m.ShipmentID,
		}})
		if err != nil {
			return errors.Wrap(err, "register shipment")
		}
		if len(created) > 0 {
			slog.Info("shipment registered", "shipment_id", created[0].ID, "order_id", m.OrderID)
		}
		r.Trigger()
		return nil
	}
}

func RunReconWorker(ctx context.Context, cfg *config.Config, f workerFactories) error {
	r, storage, closeFn, err := buildRunner(cfg, f)
	if err != nil {
		return err
	}
	if closeFn != nil {
		defer closeFn()
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return r.Run(ctx)
	})
	if f.newConsumer != nil {
		if consumer := f.newConsumer(cfg); consumer != nil {
			if reg, ok := storage.(shipmentRegistrar); ok {
				g.Go(func() error {
					defer func() { _ = consumer.Close() }()
					slog.Info("order intake started", "topic", cfg.Kafka.OrderCreatedTopicName)
					err := consumer.Consume(ctx, orderIntakeHandler(ctx, reg, r))
					if ctx.Err() != nil {
						return ctx.Err()
					}
					return err
				})
			}
		}
	}
	g.Go(func() error {
		err := runWorkerHTTPServer(ctx, workerHTTPOpts{
			httpAddr: cfg.Recon.HTTPAddr,
			runner:   r,
			cfg:      cfg,
		})
		if errors.Is(err, http.ErrServerClosed) {
			// Штатное завершение по отмене контекста.
			return ctx.Err()
		}
		return err
	})
	return g.Wait()
}
