package budgets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/compras-erp/compras-erp/internal/observability"
	"github.com/compras-erp/compras-erp/internal/shared"
)

// Service wraps budget business rules.
type Service struct {
	repo    Repository
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewService constructs a Service. metrics may be nil in tests.
func NewService(repo Repository, logger *slog.Logger, metrics *observability.Metrics) *Service {
	return &Service{repo: repo, logger: logger, metrics: metrics}
}

// Get returns the budget for an area and year. When no budget is assigned it
// returns a zero-total sentinel so callers can still render availability.
func (s *Service) Get(ctx context.Context, area string, year int) (Budget, error) {
	budget, err := s.repo.Find(ctx, area, year)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Budget{Area: area, Year: year}, nil
		}
		return Budget{}, err
	}
	return budget, nil
}

// ListYear returns every budget assigned for the year.
func (s *Service) ListYear(ctx context.Context, year int) ([]Budget, error) {
	if year < 2000 || year > 2100 {
		return nil, fmt.Errorf("%w: invalid year", ErrValidation)
	}
	return s.repo.ListYear(ctx, year)
}

// Assign sets or replaces the total for an area/year budget.
func (s *Service) Assign(ctx context.Context, area string, year int, total shared.Centavos) (Budget, error) {
	area = strings.TrimSpace(area)
	if area == "" {
		return Budget{}, fmt.Errorf("%w: area is required", ErrValidation)
	}
	if year < 2000 || year > 2100 {
		return Budget{}, fmt.Errorf("%w: invalid year", ErrValidation)
	}
	if total < 0 {
		return Budget{}, fmt.Errorf("%w: total cannot be negative", ErrValidation)
	}
	return s.repo.Upsert(ctx, area, year, total)
}

// Consume charges an amount against the area/year budget. Overspending is
// permitted; the result flags it so the caller can warn and withhold
// automatic budget approval.
func (s *Service) Consume(ctx context.Context, area string, year int, amount shared.Centavos) (ConsumeResult, error) {
	if amount < 0 {
		return ConsumeResult{}, fmt.Errorf("%w: amount cannot be negative", ErrValidation)
	}
	budget, err := s.repo.Consume(ctx, area, year, amount)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// No budget assigned: spending against a zero budget is always
			// over budget but never blocked.
			if _, err := s.repo.Upsert(ctx, area, year, 0); err != nil {
				return ConsumeResult{}, err
			}
			budget, err = s.repo.Consume(ctx, area, year, amount)
			if err != nil {
				return ConsumeResult{}, err
			}
		} else {
			return ConsumeResult{}, err
		}
	}
	result := ConsumeResult{Budget: budget, Charged: amount, OverBudget: budget.IsOverspent()}
	if result.OverBudget {
		s.logger.Warn("budget overspent",
			slog.String("area", area),
			slog.Int("year", year),
			slog.String("available", budget.Available().String()))
	}
	return result, nil
}

// Refund credits an amount back, used when an order is cancelled.
func (s *Service) Refund(ctx context.Context, area string, year int, amount shared.Centavos) error {
	if amount < 0 {
		return fmt.Errorf("%w: amount cannot be negative", ErrValidation)
	}
	_, err := s.repo.Consume(ctx, area, year, -amount)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

// Reconcile recomputes spent_centavos for every budget of the year from the
// actual purchase orders, fixing drift and publishing it as a gauge.
func (s *Service) Reconcile(ctx context.Context, year int) error {
	list, err := s.repo.ListYear(ctx, year)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, budget := range list {
		budget := budget
		g.Go(func() error {
			actual, err := s.repo.ActualSpend(ctx, budget.Area, budget.Year)
			if err != nil {
				return err
			}
			drift := int64(budget.Spent - actual)
			s.metrics.SetBudgetDrift(budget.Area, budget.Year, drift)
			if drift == 0 {
				return nil
			}
			s.logger.Warn("budget drift corrected",
				slog.String("area", budget.Area),
				slog.Int("year", budget.Year),
				slog.Int64("drift_centavos", drift))
			return s.repo.SetSpent(ctx, budget.ID, actual)
		})
	}
	return g.Wait()
}
