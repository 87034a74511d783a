package quotations

import (
	"fmt"
	"time"

	"github.com/compras-erp/compras-erp/internal/platform/httpx"
	"github.com/compras-erp/compras-erp/internal/shared"
)

var (
	// ErrNotFound indicates a missing quotation or quotation item.
	ErrNotFound = fmt.Errorf("quotations: %w", httpx.ErrNotFound)
	// ErrValidation indicates an invalid payload.
	ErrValidation = fmt.Errorf("quotations: %w", httpx.ErrValidation)
	// ErrForbidden indicates the actor may not quote.
	ErrForbidden = fmt.Errorf("quotations: %w", httpx.ErrForbidden)
	// ErrDuplicateQuotation indicates the supplier already quoted the request.
	ErrDuplicateQuotation = fmt.Errorf("quotations: supplier already quoted this request: %w", httpx.ErrDuplicate)
	// ErrRequestNotQuotable indicates the request is not accepting quotations.
	ErrRequestNotQuotable = fmt.Errorf("quotations: request is not accepting quotations: %w", httpx.ErrInvalidTransition)
)

// Quotation is a supplier's priced response to a request.
type Quotation struct {
	ID           int64           `json:"id"`
	RequestID    int64           `json:"request_id"`
	SupplierID   int64           `json:"supplier_id"`
	Total        shared.Centavos `json:"total_centavos"`
	PaymentTerms string          `json:"payment_terms"`
	ValidUntil   *time.Time      `json:"valid_until,omitempty"`
	SubmittedBy  *int64          `json:"submitted_by,omitempty"`
	IsSelected   bool            `json:"is_selected"`
	Items        []QuotationItem `json:"items,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// QuotationItem prices one request line. Subtotal is always computed
// server-side as unit price times the requested quantity.
type QuotationItem struct {
	ID             int64           `json:"id"`
	QuotationID    int64           `json:"quotation_id"`
	RequestItemID  int64           `json:"request_item_id"`
	UnitPrice      shared.Centavos `json:"unit_price_centavos"`
	Subtotal       shared.Centavos `json:"subtotal_centavos"`
	HasInvoice     bool            `json:"has_invoice"`
	DeliveryDate   *time.Time      `json:"delivery_date,omitempty"`
	HasWarranty    bool            `json:"has_warranty"`
	WarrantyMonths int             `json:"warranty_months"`
	IsSelected     bool            `json:"is_selected"`
}

// Bid is one supplier's offer on a line, shaped for the comparison matrix.
type Bid struct {
	QuotationItemID int64           `json:"quotation_item_id"`
	RequestItemID   int64           `json:"request_item_id"`
	QuotationID     int64           `json:"quotation_id"`
	SupplierID      int64           `json:"supplier_id"`
	SupplierName    string          `json:"supplier_name"`
	UnitPrice       shared.Centavos `json:"unit_price_centavos"`
	Subtotal        shared.Centavos `json:"subtotal_centavos"`
	HasInvoice      bool            `json:"has_invoice"`
	DeliveryDate    *time.Time      `json:"delivery_date,omitempty"`
	IsSelected      bool            `json:"is_selected"`
}

// ComparisonLine aggregates every bid for one request item. A line with no
// bids is unresolved and blocks issuance unless flagged in stock.
type ComparisonLine struct {
	RequestItemID int64   `json:"request_item_id"`
	Material      string  `json:"material"`
	Quantity      float64 `json:"quantity"`
	Unit          string  `json:"unit"`
	InStock       bool    `json:"in_stock"`
	Unresolved    bool    `json:"unresolved"`
	Selected      *int64  `json:"selected_quotation_item_id,omitempty"`
	Bids          []Bid   `json:"bids"`
}

// Comparison is the full matrix for a request.
type Comparison struct {
	RequestID     int64            `json:"request_id"`
	Lines         []ComparisonLine `json:"lines"`
	TotalSelected shared.Centavos  `json:"total_selected_centavos"`
}
