package quotations

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/compras-erp/compras-erp/internal/shared"
)

// LifecycleAdvancer moves the parent request into cotizando when the first
// quotation lands. Satisfied by the requests service.
type LifecycleAdvancer interface {
	MarkQuoting(ctx context.Context, requestID int64) error
}

// Service owns quotation attachment and winner selection.
type Service struct {
	repo      Repository
	logger    *slog.Logger
	lifecycle LifecycleAdvancer
}

// NewService constructs a Service.
func NewService(repo Repository, logger *slog.Logger, lifecycle LifecycleAdvancer) *Service {
	return &Service{repo: repo, logger: logger, lifecycle: lifecycle}
}

// AttachItemInput prices one request line.
type AttachItemInput struct {
	RequestItemID  int64
	UnitPrice      shared.Centavos
	HasInvoice     bool
	DeliveryDate   *time.Time
	HasWarranty    bool
	WarrantyMonths int
}

// AttachInput is the payload for attaching a quotation.
type AttachInput struct {
	RequestID    int64
	SupplierID   int64
	PaymentTerms string
	ValidUntil   *time.Time
	Items        []AttachItemInput
}

// Attach creates a quotation with its items. Subtotals are computed from the
// requested quantity, never trusted from the client. A second quotation from
// the same supplier for the same request yields ErrDuplicateQuotation.
func (s *Service) Attach(ctx context.Context, actor shared.Actor, input AttachInput) (Quotation, error) {
	if !actor.IsComprador() {
		return Quotation{}, fmt.Errorf("%w: comprador role required", ErrForbidden)
	}
	if len(input.Items) == 0 {
		return Quotation{}, fmt.Errorf("%w: at least one item is required", ErrValidation)
	}
	for i, item := range input.Items {
		if item.UnitPrice < 0 {
			return Quotation{}, fmt.Errorf("%w: item %d unit price cannot be negative", ErrValidation, i+1)
		}
	}

	status, err := s.repo.RequestStatus(ctx, input.RequestID)
	if err != nil {
		return Quotation{}, err
	}
	if status != "autorizada" && status != "cotizando" {
		return Quotation{}, fmt.Errorf("%w: request is %s", ErrRequestNotQuotable, status)
	}

	lines, err := s.repo.RequestLines(ctx, input.RequestID)
	if err != nil {
		return Quotation{}, err
	}
	quantities := make(map[int64]float64, len(lines))
	for _, line := range lines {
		quantities[line.ID] = line.Quantity
	}

	quotation := Quotation{
		RequestID:    input.RequestID,
		SupplierID:   input.SupplierID,
		PaymentTerms: input.PaymentTerms,
		ValidUntil:   input.ValidUntil,
		SubmittedBy:  &actor.ID,
	}
	for _, item := range input.Items {
		qty, ok := quantities[item.RequestItemID]
		if !ok {
			return Quotation{}, fmt.Errorf("%w: item %d does not belong to request %d",
				ErrValidation, item.RequestItemID, input.RequestID)
		}
		subtotal := shared.Centavos(math.Round(float64(item.UnitPrice) * qty))
		quotation.Items = append(quotation.Items, QuotationItem{
			RequestItemID:  item.RequestItemID,
			UnitPrice:      item.UnitPrice,
			Subtotal:       subtotal,
			HasInvoice:     item.HasInvoice,
			DeliveryDate:   item.DeliveryDate,
			HasWarranty:    item.HasWarranty,
			WarrantyMonths: item.WarrantyMonths,
		})
		quotation.Total += subtotal
	}

	var created Quotation
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		var err error
		created, err = tx.InsertQuotation(ctx, quotation)
		return err
	})
	if err != nil {
		return Quotation{}, err
	}

	if status == "autorizada" {
		if err := s.lifecycle.MarkQuoting(ctx, input.RequestID); err != nil {
			s.logger.Error("mark quoting", slog.Any("error", err), slog.Int64("request_id", input.RequestID))
		}
	}
	return created, nil
}

// SelectItem marks one quotation item as the winner for its request line,
// clearing any competing selection first. Repeating the call is a no-op.
func (s *Service) SelectItem(ctx context.Context, actor shared.Actor, itemID int64) (QuotationItem, error) {
	if !actor.IsComprador() {
		return QuotationItem{}, fmt.Errorf("%w: comprador role required", ErrForbidden)
	}
	var selected QuotationItem
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		item, requestID, err := tx.GetItem(ctx, itemID)
		if err != nil {
			return err
		}
		if err := tx.LockRequest(ctx, requestID); err != nil {
			return err
		}
		if err := tx.ClearSelection(ctx, item.RequestItemID); err != nil {
			return err
		}
		if err := tx.MarkSelected(ctx, itemID); err != nil {
			return err
		}
		item.IsSelected = true
		selected = item
		return nil
	})
	if err != nil {
		return QuotationItem{}, err
	}
	return selected, nil
}

// Comparison builds the bid matrix for a request: one line per request item
// with all bids cheapest-first and the current winner flagged.
func (s *Service) Comparison(ctx context.Context, requestID int64) (Comparison, error) {
	lines, err := s.repo.RequestLines(ctx, requestID)
	if err != nil {
		return Comparison{}, err
	}
	if len(lines) == 0 {
		if _, err := s.repo.RequestStatus(ctx, requestID); err != nil {
			return Comparison{}, err
		}
	}
	bids, err := s.repo.ComparisonBids(ctx, requestID)
	if err != nil {
		return Comparison{}, err
	}

	comparison := Comparison{RequestID: requestID}
	for _, line := range lines {
		cl := ComparisonLine{
			RequestItemID: line.ID,
			Material:      line.Material,
			Quantity:      line.Quantity,
			Unit:          line.Unit,
			InStock:       line.InStock,
			Bids:          bids[line.ID],
		}
		if len(cl.Bids) == 0 {
			cl.Unresolved = !line.InStock
		}
		for _, bid := range cl.Bids {
			if bid.IsSelected {
				id := bid.QuotationItemID
				cl.Selected = &id
				comparison.TotalSelected += bid.Subtotal
			}
		}
		comparison.Lines = append(comparison.Lines, cl)
	}
	return comparison, nil
}

// TotalSelected sums the subtotals of the currently selected items. This is
// the authoritative order total, independent of any quotation's own total.
func (s *Service) TotalSelected(ctx context.Context, requestID int64) (shared.Centavos, error) {
	bids, err := s.repo.SelectedBids(ctx, requestID)
	if err != nil {
		return 0, err
	}
	var total shared.Centavos
	for _, bid := range bids {
		total += bid.Subtotal
	}
	return total, nil
}

// ListByRequest returns the quotations attached to a request.
func (s *Service) ListByRequest(ctx context.Context, requestID int64) ([]Quotation, error) {
	return s.repo.ListByRequest(ctx, requestID)
}

// SelectedBids exposes the winning bids per line; used at order issuance.
func (s *Service) SelectedBids(ctx context.Context, requestID int64) ([]Bid, error) {
	return s.repo.SelectedBids(ctx, requestID)
}
