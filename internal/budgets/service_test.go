package budgets

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/compras-erp/compras-erp/internal/observability"
	"github.com/compras-erp/compras-erp/internal/shared"
)

type fakeRepo struct {
	budgets map[string]Budget
	actual  map[string]shared.Centavos
	nextID  int64
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{budgets: map[string]Budget{}, actual: map[string]shared.Centavos{}, nextID: 1}
}

func key(area string, year int) string {
	return fmt.Sprintf("%s/%d", area, year)
}

func (f *fakeRepo) Find(_ context.Context, area string, year int) (Budget, error) {
	b, ok := f.budgets[key(area, year)]
	if !ok {
		return Budget{}, ErrNotFound
	}
	return b, nil
}

func (f *fakeRepo) ListYear(_ context.Context, year int) ([]Budget, error) {
	var list []Budget
	for _, b := range f.budgets {
		if b.Year == year {
			list = append(list, b)
		}
	}
	return list, nil
}

func (f *fakeRepo) Upsert(_ context.Context, area string, year int, total shared.Centavos) (Budget, error) {
	k := key(area, year)
	b, ok := f.budgets[k]
	if !ok {
		b = Budget{ID: f.nextID, Area: area, Year: year}
		f.nextID++
	}
	b.Total = total
	f.budgets[k] = b
	return b, nil
}

func (f *fakeRepo) Consume(_ context.Context, area string, year int, amount shared.Centavos) (Budget, error) {
	k := key(area, year)
	b, ok := f.budgets[k]
	if !ok {
		return Budget{}, ErrNotFound
	}
	b.Spent += amount
	f.budgets[k] = b
	return b, nil
}

func (f *fakeRepo) ActualSpend(_ context.Context, area string, year int) (shared.Centavos, error) {
	return f.actual[key(area, year)], nil
}

func (f *fakeRepo) SetSpent(_ context.Context, id int64, spent shared.Centavos) error {
	for k, b := range f.budgets {
		if b.ID == id {
			b.Spent = spent
			f.budgets[k] = b
		}
	}
	return nil
}

func newTestService(repo Repository) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(repo, logger, nil)
}

func TestConsumeWithinBudget(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	_, err := svc.Assign(ctx, "sistemas", 2026, 100_000_00)
	require.NoError(t, err)

	result, err := svc.Consume(ctx, "sistemas", 2026, 40_000_00)
	require.NoError(t, err)
	require.False(t, result.OverBudget)
	require.Equal(t, shared.Centavos(60_000_00), result.Budget.Available())
}

func TestConsumeOverspendAllowedButFlagged(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	_, err := svc.Assign(ctx, "sistemas", 2026, 50_000_00)
	require.NoError(t, err)

	result, err := svc.Consume(ctx, "sistemas", 2026, 80_000_00)
	require.NoError(t, err)
	require.True(t, result.OverBudget)
	require.Equal(t, shared.Centavos(-30_000_00), result.Budget.Available())
	require.True(t, result.Budget.Available() < 0)
}

func TestConsumeCreatesZeroBudgetWhenAbsent(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)

	result, err := svc.Consume(context.Background(), "mantenimiento", 2026, 10_00)
	require.NoError(t, err)
	require.True(t, result.OverBudget)
	require.Equal(t, shared.Centavos(0), result.Budget.Total)
	require.Equal(t, shared.Centavos(10_00), result.Budget.Spent)
}

func TestGetAbsentReturnsSentinel(t *testing.T) {
	svc := newTestService(newFakeRepo())

	budget, err := svc.Get(context.Background(), "compras", 2026)
	require.NoError(t, err)
	require.Equal(t, shared.Centavos(0), budget.Total)
	require.Equal(t, "compras", budget.Area)
	require.Equal(t, 2026, budget.Year)
}

func TestReconcileCorrectsDrift(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	_, err := svc.Assign(ctx, "sistemas", 2026, 100_000_00)
	require.NoError(t, err)
	_, err = svc.Consume(ctx, "sistemas", 2026, 30_000_00)
	require.NoError(t, err)

	// Real orders only add up to 25,000.00.
	repo.actual[key("sistemas", 2026)] = 25_000_00

	require.NoError(t, svc.Reconcile(ctx, 2026))

	budget, err := svc.Get(ctx, "sistemas", 2026)
	require.NoError(t, err)
	require.Equal(t, shared.Centavos(25_000_00), budget.Spent)
}

func TestReconcilePublishesDriftGauge(t *testing.T) {
	repo := newFakeRepo()
	metrics := observability.NewMetrics()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(repo, logger, metrics)
	ctx := context.Background()

	_, err := svc.Assign(ctx, "sistemas", 2026, 100_000_00)
	require.NoError(t, err)
	_, err = svc.Consume(ctx, "sistemas", 2026, 30_000_00)
	require.NoError(t, err)
	repo.actual[key("sistemas", 2026)] = 25_000_00

	require.NoError(t, svc.Reconcile(ctx, 2026))

	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	require.Contains(t, body, "compras_budget_drift_centavos")
	require.Contains(t, body, `area="sistemas"`)
	require.Contains(t, body, "500000")
}

func TestAssignValidation(t *testing.T) {
	svc := newTestService(newFakeRepo())

	_, err := svc.Assign(context.Background(), "", 2026, 100)
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.Assign(context.Background(), "sistemas", 1800, 100)
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.Assign(context.Background(), "sistemas", 2026, -5)
	require.ErrorIs(t, err, ErrValidation)
}
