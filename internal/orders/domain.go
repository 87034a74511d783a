package orders

import (
	"fmt"
	"time"

	"github.com/compras-erp/compras-erp/internal/platform/httpx"
	"github.com/compras-erp/compras-erp/internal/shared"
)

var (
	// ErrNotFound indicates a missing order or invoice.
	ErrNotFound = fmt.Errorf("orders: %w", httpx.ErrNotFound)
	// ErrValidation indicates an invalid payload.
	ErrValidation = fmt.Errorf("orders: %w", httpx.ErrValidation)
	// ErrForbidden indicates the actor may not operate on orders.
	ErrForbidden = fmt.Errorf("orders: %w", httpx.ErrForbidden)
	// ErrInvalidTransition indicates an illegal order status change.
	ErrInvalidTransition = fmt.Errorf("orders: %w", httpx.ErrInvalidTransition)
	// ErrUnresolvedItems indicates request lines without a winning bid
	// that are not flagged in stock.
	ErrUnresolvedItems = fmt.Errorf("orders: request has unresolved items: %w", httpx.ErrValidation)
)

// Status is the purchase order lifecycle state.
type Status string

const (
	StatusEmitida    Status = "emitida"
	StatusEnTransito Status = "en_transito"
	StatusRecibida   Status = "recibida"
	StatusCancelada  Status = "cancelada"
)

// Valid reports whether s is a known order status.
func (s Status) Valid() bool {
	switch s {
	case StatusEmitida, StatusEnTransito, StatusRecibida, StatusCancelada:
		return true
	}
	return false
}

// orderTransitions: linear emitida -> en_transito -> recibida, cancelable
// from any non-terminal state.
var orderTransitions = map[Status][]Status{
	StatusEmitida:    {StatusEnTransito, StatusCancelada},
	StatusEnTransito: {StatusRecibida, StatusCancelada},
}

// CanTransition reports whether the order may move from one status to another.
func CanTransition(from, to Status) bool {
	for _, next := range orderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// PurchaseOrder is the commercial commitment issued from a request.
type PurchaseOrder struct {
	ID               int64           `json:"id"`
	Folio            string          `json:"folio"`
	RequestID        int64           `json:"request_id"`
	QuotationID      *int64          `json:"quotation_id,omitempty"`
	SupplierID       int64           `json:"supplier_id"`
	Status           Status          `json:"status"`
	OrderDate        time.Time       `json:"order_date"`
	ExpectedDelivery *time.Time      `json:"expected_delivery,omitempty"`
	ActualDelivery   *time.Time      `json:"actual_delivery,omitempty"`
	Total            shared.Centavos `json:"total_centavos"`
	PDFPath          string          `json:"pdf_path"`
	RequiresInvoice  bool            `json:"requires_invoice"`
	Notes            string          `json:"notes"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// Invoice is a fiscal document registered against a received order.
type Invoice struct {
	ID            int64           `json:"id"`
	OrderID       int64           `json:"order_id"`
	SupplierID    *int64          `json:"supplier_id,omitempty"`
	InvoiceNumber string          `json:"invoice_number"`
	InvoiceDate   time.Time       `json:"invoice_date"`
	Subtotal      shared.Centavos `json:"subtotal_centavos"`
	Tax           shared.Centavos `json:"tax_centavos"`
	Total         shared.Centavos `json:"total_centavos"`
	FilePath      string          `json:"file_path"`
	CreatedAt     time.Time       `json:"created_at"`
}

// IssueResult reports the outcome of issuing orders from a request.
type IssueResult struct {
	Orders         []PurchaseOrder `json:"orders"`
	Total          shared.Centavos `json:"total_centavos"`
	BudgetApproved bool            `json:"budget_approved"`
	OverBudget     bool            `json:"over_budget"`
}

// ListFilters narrows order listings.
type ListFilters struct {
	Status    Status
	RequestID int64
	Page      int
	PerPage   int
}
