// Package service runs the registration saga.
//
// Execute drives four phases in a fixed order (auth, user_profile,
// user_metadata, organization). Every committed phase pushes one compensating
// action; a hard failure in auth, user_profile or organization replays those
// actions in reverse through the rollback engine. The metadata phase is soft.
// Execute never returns an error: every outcome is a TransactionResult.
package service

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"onboarding/internal/audit"
	"onboarding/internal/registration/metrics"
	"onboarding/internal/registration/models"
	"onboarding/internal/registration/ports"
	"onboarding/internal/registration/rollback"
)

const (
	DefaultAuthTimeout   = 15 * time.Second
	DefaultNotifyTimeout = 10 * time.Second

	// OwnerRole is the membership role given to the registering user.
	OwnerRole = "owner"
)

type AuditPublisher interface {
	Emit(ctx context.Context, base audit.Event) error
}

// Compensator replays rollback actions. rollback.Engine is the production
// implementation.
type Compensator interface {
	Rollback(ctx context.Context, actions []models.RollbackAction) rollback.Report
}

// Service orchestrates a registration attempt across the collaborators.
type Service struct {
	identities    ports.IdentityProvider
	profiles      ports.ProfileStore
	metadata      ports.MetadataStore
	organizations ports.OrganizationProvisioner

	reader         ports.ProfileReader
	notifier       ports.Notifier
	identityAdmin  ports.IdentityAdmin
	compensator    Compensator
	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *metrics.Metrics
	tracer         trace.Tracer

	authTimeout           time.Duration
	notifyTimeout         time.Duration
	rollbackActionTimeout time.Duration
	now                   func() time.Time
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = tracer
	}
}

// WithProfileReader enables reading back the joined profile view after
// success. Without it the result is built from the request.
func WithProfileReader(reader ports.ProfileReader) Option {
	return func(s *Service) {
		s.reader = reader
	}
}

func WithNotifier(notifier ports.Notifier) Option {
	return func(s *Service) {
		s.notifier = notifier
	}
}

// WithIdentityAdmin lets rollback delete identities created in phase 1.
func WithIdentityAdmin(admin ports.IdentityAdmin) Option {
	return func(s *Service) {
		s.identityAdmin = admin
	}
}

// WithCompensator replaces the default rollback engine.
func WithCompensator(c Compensator) Option {
	return func(s *Service) {
		s.compensator = c
	}
}

func WithAuthTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.authTimeout = d
		}
	}
}

func WithNotifyTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.notifyTimeout = d
		}
	}
}

func WithRollbackActionTimeout(d time.Duration) Option {
	return func(s *Service) {
		s.rollbackActionTimeout = d
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// New constructs a Service. The four phase collaborators are required.
func New(
	identities ports.IdentityProvider,
	profiles ports.ProfileStore,
	metadata ports.MetadataStore,
	organizations ports.OrganizationProvisioner,
	opts ...Option,
) *Service {
	s := &Service{
		identities:    identities,
		profiles:      profiles,
		metadata:      metadata,
		organizations: organizations,
		authTimeout:   DefaultAuthTimeout,
		notifyTimeout: DefaultNotifyTimeout,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer("onboarding/registration")
	}
	if s.compensator == nil {
		engineOpts := []rollback.Option{
			rollback.WithLogger(s.logger),
			rollback.WithMetrics(s.metrics),
			rollback.WithActionTimeout(s.rollbackActionTimeout),
		}
		if s.identityAdmin != nil {
			engineOpts = append(engineOpts, rollback.WithIdentityAdmin(s.identityAdmin))
		}
		s.compensator = rollback.New(profiles, metadata, organizations, engineOpts...)
	}
	return s
}
