package budgets

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/compras-erp/compras-erp/internal/shared"
)

// Repository persists budgets.
type Repository interface {
	Find(ctx context.Context, area string, year int) (Budget, error)
	ListYear(ctx context.Context, year int) ([]Budget, error)
	Upsert(ctx context.Context, area string, year int, total shared.Centavos) (Budget, error)
	Consume(ctx context.Context, area string, year int, amount shared.Centavos) (Budget, error)
	ActualSpend(ctx context.Context, area string, year int) (shared.Centavos, error)
	SetSpent(ctx context.Context, id int64, spent shared.Centavos) error
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL backed Repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const budgetColumns = `id, area, year, total_centavos, spent_centavos, created_at, updated_at`

func scanBudget(row pgx.Row) (Budget, error) {
	var b Budget
	err := row.Scan(&b.ID, &b.Area, &b.Year, &b.Total, &b.Spent, &b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Budget{}, ErrNotFound
	}
	return b, err
}

func (r *repository) Find(ctx context.Context, area string, year int) (Budget, error) {
	return scanBudget(r.db.QueryRow(ctx,
		`SELECT `+budgetColumns+` FROM budgets WHERE area=$1 AND year=$2`, area, year))
}

func (r *repository) ListYear(ctx context.Context, year int) ([]Budget, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+budgetColumns+` FROM budgets WHERE year=$1 ORDER BY area`, year)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []Budget
	for rows.Next() {
		var b Budget
		if err := rows.Scan(&b.ID, &b.Area, &b.Year, &b.Total, &b.Spent, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, b)
	}
	return list, rows.Err()
}

func (r *repository) Upsert(ctx context.Context, area string, year int, total shared.Centavos) (Budget, error) {
	return scanBudget(r.db.QueryRow(ctx, `
		INSERT INTO budgets (area, year, total_centavos)
		VALUES ($1, $2, $3)
		ON CONFLICT (area, year)
		DO UPDATE SET total_centavos = EXCLUDED.total_centavos, updated_at = NOW()
		RETURNING `+budgetColumns, area, year, total))
}

// Consume charges the amount in a single atomic statement so concurrent order
// issues never lose an increment.
func (r *repository) Consume(ctx context.Context, area string, year int, amount shared.Centavos) (Budget, error) {
	return scanBudget(r.db.QueryRow(ctx, `
		UPDATE budgets
		SET spent_centavos = spent_centavos + $3, updated_at = NOW()
		WHERE area = $1 AND year = $2
		RETURNING `+budgetColumns, area, year, amount))
}

// ActualSpend recomputes the real spend from non-cancelled purchase orders.
func (r *repository) ActualSpend(ctx context.Context, area string, year int) (shared.Centavos, error) {
	var spend shared.Centavos
	err := r.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(po.total_centavos), 0)
		FROM purchase_orders po
		JOIN requests req ON req.id = po.request_id
		WHERE req.area = $1
		  AND EXTRACT(YEAR FROM po.order_date) = $2
		  AND po.status <> 'cancelada'`, area, year).Scan(&spend)
	return spend, err
}

func (r *repository) SetSpent(ctx context.Context, id int64, spent shared.Centavos) error {
	_, err := r.db.Exec(ctx,
		`UPDATE budgets SET spent_centavos=$2, updated_at=NOW() WHERE id=$1`, id, spent)
	return err
}
