package budgets

import (
	"fmt"
	"time"

	"github.com/compras-erp/compras-erp/internal/platform/httpx"
	"github.com/compras-erp/compras-erp/internal/shared"
)

var (
	// ErrNotFound indicates a missing budget row.
	ErrNotFound = fmt.Errorf("budgets: %w", httpx.ErrNotFound)
	// ErrValidation indicates an invalid payload.
	ErrValidation = fmt.Errorf("budgets: %w", httpx.ErrValidation)
)

// Budget tracks assigned versus spent money for an area and year.
// Amounts are integer centavos; Available may go negative, overspending is
// allowed but flagged so directors see it.
type Budget struct {
	ID        int64           `json:"id"`
	Area      string          `json:"area"`
	Year      int             `json:"year"`
	Total     shared.Centavos `json:"total_centavos"`
	Spent     shared.Centavos `json:"spent_centavos"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Available returns remaining budget. Negative means overspent.
func (b Budget) Available() shared.Centavos {
	return b.Total - b.Spent
}

// IsOverspent reports whether spending exceeds the assigned total.
func (b Budget) IsOverspent() bool {
	return b.Spent > b.Total
}

// PercentUsed returns spent/total as a percentage, 0 when nothing assigned.
func (b Budget) PercentUsed() float64 {
	return b.Spent.PercentOf(b.Total)
}

// ConsumeResult reports the outcome of charging an amount to a budget.
type ConsumeResult struct {
	Budget     Budget          `json:"budget"`
	Charged    shared.Centavos `json:"charged_centavos"`
	OverBudget bool            `json:"over_budget"`
}
