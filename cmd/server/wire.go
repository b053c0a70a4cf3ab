package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"onboarding/internal/audit"
	"onboarding/internal/platform/config"
	"onboarding/internal/platform/httpserver"
	"onboarding/internal/platform/kafka"
	"onboarding/internal/platform/postgres"
	"onboarding/internal/platform/redis"
	"onboarding/internal/ratelimit"
	"onboarding/internal/registration/adapters/identity"
	"onboarding/internal/registration/notify"
	"onboarding/internal/registration/ports"
	"onboarding/internal/registration/store/metadata"
	"onboarding/internal/registration/store/organization"
	"onboarding/internal/registration/store/profile"
	"onboarding/pkg/platform/circuit"
)

// organizationStore is what the saga and the recovery checker need from the
// organization side.
type organizationStore interface {
	ports.OrganizationProvisioner
	ports.MembershipChecker
}

type identityStore interface {
	ports.IdentityProvider
	ports.IdentityAdmin
}

type profileStore interface {
	ports.ProfileStore
	ports.ProfileReader
}

type stores struct {
	Identities    ports.IdentityProvider
	IdentityAdmin ports.IdentityAdmin
	Profiles      ports.ProfileStore
	ProfileReader ports.ProfileReader
	Metadata      ports.MetadataStore
	Organizations organizationStore
	Audit         audit.Store
	RateLimits    ratelimit.Store
	Checks        map[string]httpserver.Check

	closers []func() error
}

func (s *stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		_ = s.closers[i]()
	}
}

// buildStores uses Postgres and Redis when configured and falls back to the
// in-memory implementations otherwise.
func buildStores(ctx context.Context, cfg config.Config, log *slog.Logger) (*stores, error) {
	s := &stores{Checks: map[string]httpserver.Check{}}
	identityOpts := []identity.Option{identity.WithSignupsEnabled(cfg.Registration.SignupsEnabled)}

	var (
		identities identityStore
		profiles   profileStore
	)
	if cfg.Postgres.URL != "" {
		db, err := openPostgres(ctx, cfg.Postgres, log)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, db.Close)
		s.Checks["postgres"] = db.PingContext

		identities = identity.NewPostgres(db, identityOpts...)
		profiles = profile.NewPostgres(db)
		s.Organizations = organization.NewPostgres(db)
		s.Audit = audit.NewPostgresStore(db)
	} else {
		log.Warn("postgres not configured; using in-memory identity, profile and organization stores")
		orgs := organization.NewInMemory()
		identities = identity.NewInMemory(identityOpts...)
		profiles = profile.NewInMemory().WithOrganizations(orgs)
		s.Organizations = orgs
		s.Audit = audit.NewInMemoryStore()
	}
	s.Identities, s.IdentityAdmin = identities, identities
	s.Profiles, s.ProfileReader = profiles, profiles

	rc, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	if rc != nil {
		s.closers = append(s.closers, rc.Close)
		s.Checks["redis"] = rc.Health
		s.Metadata = metadata.NewRedis(rc.Client, metadata.WithKeyPrefix(cfg.Redis.KeyPrefix+":"))
		s.RateLimits = ratelimit.NewRedis(rc.Client, cfg.Redis.KeyPrefix+":")
	} else {
		log.Warn("redis not configured; using in-memory metadata and rate limit stores")
		s.Metadata = metadata.NewInMemory()
		s.RateLimits = ratelimit.NewInMemory()
	}
	return s, nil
}

func openPostgres(ctx context.Context, cfg config.Postgres, log *slog.Logger) (*sql.DB, error) {
	db, err := postgres.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if cfg.RunMigrations {
		if err := postgres.Migrate(db); err != nil {
			_ = db.Close()
			return nil, err
		}
		log.Info("database migrations applied")
	}
	return db, nil
}

// buildNotifier picks the welcome sender backend and wraps it in a circuit
// breaker.
func buildNotifier(ctx context.Context, cfg config.Notifier, log *slog.Logger) (ports.Notifier, func(), error) {
	var (
		sender ports.Notifier
		closer = func() {}
	)
	switch cfg.Backend {
	case config.NotifierKafka:
		client, err := kafka.NewProducer(cfg)
		if err != nil {
			return nil, nil, err
		}
		if err := kafka.EnsureTopic(ctx, client, cfg.Topic, 1, 1); err != nil {
			log.Warn("could not ensure welcome topic", "topic", cfg.Topic, "error", err)
		}
		sender = notify.NewKafka(client, cfg.Topic)
		closer = client.Close
	case config.NotifierAMQP:
		producer, err := notify.DialAMQP(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			return nil, nil, err
		}
		sender = producer
		closer = func() { _ = producer.Close() }
	case config.NotifierLog:
		sender = notify.NewLog(log)
	default:
		return nil, nil, errors.New("unknown notifier backend " + cfg.Backend)
	}

	breaker := circuit.New("welcome-"+cfg.Backend,
		circuit.WithFailureThreshold(cfg.FailureThreshold),
		circuit.WithCooldown(cfg.Cooldown),
	)
	return notify.NewGuarded(sender, breaker, log), closer, nil
}
