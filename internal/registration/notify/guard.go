package notify

import (
	"context"
	"fmt"
	"log/slog"

	"onboarding/internal/registration/models"
	"onboarding/internal/registration/ports"
	"onboarding/pkg/platform/circuit"
	"onboarding/pkg/platform/sentinel"
)

// Guarded stops calling a failing sender once its circuit opens. While open,
// sends fail fast with an error wrapping sentinel.ErrUnavailable.
type Guarded struct {
	next    ports.Notifier
	breaker *circuit.Breaker
	logger  *slog.Logger
}

func NewGuarded(next ports.Notifier, breaker *circuit.Breaker, logger *slog.Logger) *Guarded {
	return &Guarded{next: next, breaker: breaker, logger: logger}
}

func (g *Guarded) SendWelcome(ctx context.Context, summary models.ProfileSummary) error {
	if !g.breaker.Allow() {
		return fmt.Errorf("welcome sender %s: %w", g.breaker.Name(), sentinel.ErrUnavailable)
	}

	if err := g.next.SendWelcome(ctx, summary); err != nil {
		if _, change := g.breaker.RecordFailure(); change.Opened && g.logger != nil {
			g.logger.WarnContext(ctx, "welcome sender circuit opened",
				"breaker", g.breaker.Name(),
				"error", err,
			)
		}
		return err
	}

	if _, change := g.breaker.RecordSuccess(); change.Closed && g.logger != nil {
		g.logger.InfoContext(ctx, "welcome sender circuit closed", "breaker", g.breaker.Name())
	}
	return nil
}
