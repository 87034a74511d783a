package suppliers

import (
	"fmt"
	"time"

	"github.com/compras-erp/compras-erp/internal/platform/httpx"
)

var (
	// ErrNotFound indicates a missing supplier.
	ErrNotFound = fmt.Errorf("suppliers: %w", httpx.ErrNotFound)
	// ErrValidation indicates an invalid payload.
	ErrValidation = fmt.Errorf("suppliers: %w", httpx.ErrValidation)
)

// Supplier is a vendor that can quote requests and receive purchase orders.
type Supplier struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	RFC         string    `json:"rfc"`
	ContactName string    `json:"contact_name"`
	Email       string    `json:"email"`
	Phone       string    `json:"phone"`
	Category    string    `json:"category"`
	Rating      int       `json:"rating"`
	IsActive    bool      `json:"is_active"`
	CanInvoice  bool      `json:"can_invoice"`
	Notes       string    `json:"notes"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ListFilters narrows supplier listings.
type ListFilters struct {
	Search     string
	Category   string
	OnlyActive bool
	Page       int
	PerPage    int
}
