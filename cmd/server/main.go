package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"onboarding/internal/audit"
	jwttoken "onboarding/internal/jwt_token"
	"onboarding/internal/platform/config"
	"onboarding/internal/platform/httpserver"
	"onboarding/internal/platform/logger"
	"onboarding/internal/platform/metrics"
	"onboarding/internal/ratelimit"
	"onboarding/internal/registration/handler"
	regmetrics "onboarding/internal/registration/metrics"
	"onboarding/internal/registration/recovery"
	"onboarding/internal/registration/service"
	"onboarding/pkg/platform/middleware/metadata"
	request "onboarding/pkg/platform/middleware/request"
	"onboarding/pkg/platform/middleware/requesttime"
)

const auditQueueSize = 1024

// main wires the dependencies, serves HTTP and shuts down on SIGINT/SIGTERM.
// Business logic lives in internal/registration.
func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(".env")
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.New(cfg.Server.LogLevel, cfg.Server.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := buildStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer deps.Close()

	notifier, closeNotifier, err := buildNotifier(ctx, cfg.Notifier, log)
	if err != nil {
		return err
	}
	defer closeNotifier()

	inbox := make(chan audit.Event, auditQueueSize)
	auditWorker := audit.NewWorker(deps.Audit, inbox, log)

	svcOpts := []service.Option{
		service.WithLogger(log),
		service.WithMetrics(regmetrics.New(prometheus.DefaultRegisterer)),
		service.WithAuditPublisher(audit.NewQueue(inbox)),
		service.WithProfileReader(deps.ProfileReader),
		service.WithNotifier(notifier),
		service.WithAuthTimeout(cfg.Registration.AuthTimeout),
		service.WithNotifyTimeout(cfg.Registration.NotifyTimeout),
		service.WithRollbackActionTimeout(cfg.Registration.RollbackActionTimeout),
	}
	if cfg.Registration.IdentityAdminEnabled {
		svcOpts = append(svcOpts, service.WithIdentityAdmin(deps.IdentityAdmin))
	} else {
		log.Warn("identity admin disabled; failed registrations may leave orphaned identities")
	}
	svc := service.New(deps.Identities, deps.Profiles, deps.Metadata, deps.Organizations, svcOpts...)
	checker := recovery.New(deps.Profiles, deps.Organizations, recovery.WithLogger(log))

	jwtService := jwttoken.NewJWTService(cfg.Server.JWTSigningKey, cfg.Server.JWTIssuer, cfg.Server.JWTAudience)
	h := handler.New(svc, checker, log,
		handler.WithTokenIssuer(jwtService, cfg.Server.TokenTTL),
		handler.WithJWTValidator(jwttoken.NewJWTServiceAdapter(jwtService)),
		handler.WithAdminToken(cfg.Server.AdminToken),
		handler.WithAuditReader(audit.NewPublisher(deps.Audit)),
		handler.WithRegistrationLimit(ratelimit.Middleware(
			deps.RateLimits, cfg.Registration.RateLimit, cfg.Registration.RateWindow, log,
		)),
	)

	clientIPs, err := metadata.NewResolver(cfg.Server.TrustedProxies)
	if err != nil {
		return fmt.Errorf("server trusted proxies: %w", err)
	}

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(request.RequestID)
	r.Use(requesttime.Middleware)
	r.Use(clientIPs.Middleware)
	r.Use(metrics.NewHTTP(prometheus.DefaultRegisterer).Middleware)
	h.Register(r)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", httpserver.Health(deps.Checks))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return httpserver.Run(gctx, httpserver.New(cfg.Server.Addr, r), log)
	})
	g.Go(func() error {
		if err := auditWorker.Run(gctx); err != nil && gctx.Err() == nil {
			return err
		}
		return nil
	})

	log.Info("onboarding service started",
		slog.String("addr", cfg.Server.Addr),
		slog.String("notifier", cfg.Notifier.Backend),
	)
	return g.Wait()
}
