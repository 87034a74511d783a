package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/compras-erp/compras-erp/internal/budgets"
	jobmetrics "github.com/compras-erp/compras-erp/internal/jobs"
	"github.com/compras-erp/compras-erp/internal/requests"
)

// Instrument wraps a handler with run/failure/duration metrics.
func Instrument(job string, metrics *jobmetrics.Metrics, h asynq.HandlerFunc) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		return metrics.Track(job).End(h(ctx, t))
	}
}

// NewActivateScheduledHandler runs the programada sweep. The underlying
// update is a single statement, so overlapping runs activate each request
// at most once.
func NewActivateScheduledHandler(svc *requests.Service, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, _ *asynq.Task) error {
		activated, err := svc.ActivateScheduled(ctx, time.Now())
		if err != nil {
			return err
		}
		if activated > 0 {
			logger.Info("scheduled requests activated", slog.Int("count", activated))
		}
		return nil
	}
}

// NewReconcileBudgetsHandler recomputes budget spent amounts for the year
// in the payload, defaulting to the current one.
func NewReconcileBudgetsHandler(svc *budgets.Service, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload ReconcileBudgetsPayload
		if len(t.Payload()) > 0 {
			if err := json.Unmarshal(t.Payload(), &payload); err != nil {
				return asynq.SkipRetry
			}
		}
		year := payload.Year
		if year == 0 {
			year = time.Now().Year()
		}
		if err := svc.Reconcile(ctx, year); err != nil {
			return err
		}
		logger.Info("budgets reconciled", slog.Int("year", year))
		return nil
	}
}
