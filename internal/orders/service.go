package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/compras-erp/compras-erp/internal/budgets"
	"github.com/compras-erp/compras-erp/internal/quotations"
	"github.com/compras-erp/compras-erp/internal/requests"
	"github.com/compras-erp/compras-erp/internal/shared"
)

// QuotationSource provides the winning bids for a request.
type QuotationSource interface {
	SelectedBids(ctx context.Context, requestID int64) ([]quotations.Bid, error)
}

// RequestGateway mirrors order transitions onto the parent request.
type RequestGateway interface {
	SyncOrderStatus(ctx context.Context, requestID int64, to requests.Status) error
	ApplyBudgetFlag(ctx context.Context, requestID int64, approved bool) error
}

// BudgetLedger charges and refunds area budgets.
type BudgetLedger interface {
	Consume(ctx context.Context, area string, year int, amount shared.Centavos) (budgets.ConsumeResult, error)
	Refund(ctx context.Context, area string, year int, amount shared.Centavos) error
}

// Auditor records order events.
type Auditor interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Notifier informs the requester about order milestones.
type Notifier interface {
	NotifyUser(ctx context.Context, userID int64, kind, title, message, link string) error
}

// Service owns purchase order issuance and progression.
type Service struct {
	repo     Repository
	logger   *slog.Logger
	quotes   QuotationSource
	requests RequestGateway
	ledger   BudgetLedger
	audit    Auditor
	notifier Notifier
}

// NewService constructs a Service. audit and notifier may be nil in tests.
func NewService(repo Repository, logger *slog.Logger, quotes QuotationSource, gateway RequestGateway, ledger BudgetLedger, audit Auditor, notifier Notifier) *Service {
	return &Service{repo: repo, logger: logger, quotes: quotes, requests: gateway, ledger: ledger, audit: audit, notifier: notifier}
}

// IssueInput carries optional issuance parameters.
type IssueInput struct {
	ExpectedDelivery *time.Time
	Notes            string
}

// IssueFromRequest creates one purchase order per supplier from the selected
// bids and moves the request to emitida. Valid from cotizando, or from
// autorizada when every line is flagged in stock (the never-quoted path).
// Budget is consumed per order; overspend is allowed but leaves the request
// without automatic budget approval.
func (s *Service) IssueFromRequest(ctx context.Context, actor shared.Actor, requestID int64, input IssueInput) (IssueResult, error) {
	if !actor.IsComprador() {
		return IssueResult{}, fmt.Errorf("%w: comprador role required", ErrForbidden)
	}

	bids, err := s.quotes.SelectedBids(ctx, requestID)
	if err != nil {
		return IssueResult{}, err
	}

	var result IssueResult
	var area string
	var requesterID int64
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		info, err := tx.RequestInfo(ctx, requestID)
		if err != nil {
			return err
		}
		area = info.Area
		requesterID = info.RequesterID

		lines, err := tx.RequestLines(ctx, requestID)
		if err != nil {
			return err
		}
		selectedByLine := map[int64]bool{}
		for _, bid := range bids {
			selectedByLine[bid.RequestItemID] = true
		}

		allInStock := true
		for _, line := range lines {
			if !line.InStock {
				allInStock = false
			}
			if !line.InStock && !selectedByLine[line.ID] {
				return fmt.Errorf("%w: item %d has no winning bid", ErrUnresolvedItems, line.ID)
			}
		}

		switch info.Status {
		case string(requests.StatusCotizando):
		case string(requests.StatusAutorizada):
			if !allInStock {
				return fmt.Errorf("%w: request is autorizada with items pending quotes", ErrInvalidTransition)
			}
		default:
			return fmt.Errorf("%w: cannot issue from %s", ErrInvalidTransition, info.Status)
		}

		year := time.Now().Year()
		for _, group := range groupBySupplier(bids) {
			seq, err := tx.NextFolio(ctx, year)
			if err != nil {
				return err
			}
			order := PurchaseOrder{
				Folio:            shared.FormatFolio("OC", year, seq),
				RequestID:        requestID,
				QuotationID:      &group.quotationID,
				SupplierID:       group.supplierID,
				Status:           StatusEmitida,
				ExpectedDelivery: input.ExpectedDelivery,
				Total:            group.total,
				RequiresInvoice:  true,
				Notes:            input.Notes,
			}
			created, err := tx.Insert(ctx, order)
			if err != nil {
				return err
			}
			result.Orders = append(result.Orders, created)
			result.Total += created.Total
		}
		return nil
	})
	if err != nil {
		return IssueResult{}, err
	}

	year := time.Now().Year()
	overBudget := false
	for _, order := range result.Orders {
		consumed, err := s.ledger.Consume(ctx, area, year, order.Total)
		if err != nil {
			s.logger.Error("consume budget", slog.Any("error", err), slog.String("folio", order.Folio))
			continue
		}
		if consumed.OverBudget {
			overBudget = true
		}
	}
	result.OverBudget = overBudget
	result.BudgetApproved = !overBudget

	if err := s.requests.ApplyBudgetFlag(ctx, requestID, result.BudgetApproved); err != nil {
		s.logger.Error("apply budget flag", slog.Any("error", err), slog.Int64("request_id", requestID))
	}
	if err := s.requests.SyncOrderStatus(ctx, requestID, requests.StatusEmitida); err != nil {
		return IssueResult{}, err
	}

	s.recordAudit(ctx, actor, "order.issue", requestID, map[string]any{
		"orders":      len(result.Orders),
		"total":       int64(result.Total),
		"over_budget": overBudget,
	})
	if len(result.Orders) > 0 {
		s.notifyUser(ctx, requesterID, "order_issued",
			"Órdenes de compra emitidas",
			fmt.Sprintf("Se emitieron %d órdenes de compra por %s para tu solicitud.",
				len(result.Orders), shared.FormatMXN(result.Total)),
			fmt.Sprintf("/requests/%d", requestID))
	}
	return result, nil
}

func (s *Service) notifyUser(ctx context.Context, userID int64, kind, title, message, link string) {
	if s.notifier == nil || userID == 0 {
		return
	}
	if err := s.notifier.NotifyUser(ctx, userID, kind, title, message, link); err != nil {
		s.logger.Error("notify user", slog.Any("error", err), slog.String("kind", kind))
	}
}

type supplierGroup struct {
	supplierID  int64
	quotationID int64
	total       shared.Centavos
}

func groupBySupplier(bids []quotations.Bid) []supplierGroup {
	grouped := map[int64]*supplierGroup{}
	for _, bid := range bids {
		g, ok := grouped[bid.SupplierID]
		if !ok {
			g = &supplierGroup{supplierID: bid.SupplierID, quotationID: bid.QuotationID}
			grouped[bid.SupplierID] = g
		}
		g.total += bid.Subtotal
	}
	groups := make([]supplierGroup, 0, len(grouped))
	for _, g := range grouped {
		groups = append(groups, *g)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].supplierID < groups[j].supplierID })
	return groups
}

// Get returns an order with its invoices.
func (s *Service) Get(ctx context.Context, id int64) (PurchaseOrder, []Invoice, error) {
	order, err := s.repo.Get(ctx, id)
	if err != nil {
		return PurchaseOrder{}, nil, err
	}
	invoices, err := s.repo.ListInvoices(ctx, id)
	if err != nil {
		return PurchaseOrder{}, nil, err
	}
	return order, invoices, nil
}

// List returns orders matching the filters.
func (s *Service) List(ctx context.Context, filters ListFilters) ([]PurchaseOrder, int, error) {
	return s.repo.List(ctx, filters)
}

// AdvanceStatus moves an order along emitida -> en_transito -> recibida, or
// cancels it, mirroring the parent request.
func (s *Service) AdvanceStatus(ctx context.Context, actor shared.Actor, orderID int64, to Status, actualDelivery *time.Time, notes string) (PurchaseOrder, error) {
	if !actor.IsComprador() {
		return PurchaseOrder{}, fmt.Errorf("%w: comprador role required", ErrForbidden)
	}
	if !to.Valid() {
		return PurchaseOrder{}, fmt.Errorf("%w: unknown status %q", ErrValidation, to)
	}

	var updated PurchaseOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		order, err := tx.GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if !CanTransition(order.Status, to) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, order.Status, to)
		}
		if to == StatusRecibida && actualDelivery == nil {
			now := time.Now()
			actualDelivery = &now
		}
		if err := tx.SetStatus(ctx, orderID, to, actualDelivery, notes); err != nil {
			return err
		}
		updated, err = tx.Get(ctx, orderID)
		return err
	})
	if err != nil {
		return PurchaseOrder{}, err
	}

	if to == StatusCancelada {
		s.refundOrder(ctx, updated)
		// A request with several orders is only cancelled once its last
		// active order is; sibling orders keep it alive.
		if s.activeSiblings(ctx, updated) {
			s.logger.Info("request kept alive, sibling orders active",
				slog.Int64("request_id", updated.RequestID), slog.String("folio", updated.Folio))
		} else {
			s.mirrorRequest(ctx, updated.RequestID, to)
		}
	} else {
		s.mirrorRequest(ctx, updated.RequestID, to)
	}
	s.recordAudit(ctx, actor, "order.status", updated.ID, map[string]any{
		"status": string(to), "folio": updated.Folio,
	})
	return updated, nil
}

func (s *Service) activeSiblings(ctx context.Context, order PurchaseOrder) bool {
	siblings, _, err := s.repo.List(ctx, ListFilters{RequestID: order.RequestID})
	if err != nil {
		s.logger.Error("list sibling orders", slog.Any("error", err), slog.Int64("request_id", order.RequestID))
		return true // keep the request alive when in doubt
	}
	for _, sibling := range siblings {
		if sibling.ID != order.ID && sibling.Status != StatusCancelada {
			return true
		}
	}
	return false
}

// mirrorRequest syncs the parent request. With several orders per request a
// sibling may have advanced it already; an invalid transition here is logged,
// not surfaced.
func (s *Service) mirrorRequest(ctx context.Context, requestID int64, to Status) {
	if err := s.requests.SyncOrderStatus(ctx, requestID, requests.Status(to)); err != nil {
		if errors.Is(err, requests.ErrInvalidTransition) {
			s.logger.Warn("request not mirrored", slog.Int64("request_id", requestID), slog.String("status", string(to)))
			return
		}
		s.logger.Error("sync request status", slog.Any("error", err), slog.Int64("request_id", requestID))
	}
}

func (s *Service) refundOrder(ctx context.Context, order PurchaseOrder) {
	info, err := s.repo.RequestInfo(ctx, order.RequestID)
	if err != nil {
		s.logger.Error("refund lookup", slog.Any("error", err), slog.String("folio", order.Folio))
		return
	}
	if err := s.ledger.Refund(ctx, info.Area, order.OrderDate.Year(), order.Total); err != nil {
		s.logger.Error("refund budget", slog.Any("error", err), slog.String("folio", order.Folio))
	}
}

// InvoiceInput is the payload for registering an invoice.
type InvoiceInput struct {
	SupplierID    *int64
	InvoiceNumber string
	InvoiceDate   time.Time
	Subtotal      shared.Centavos
	Tax           shared.Centavos
	Total         shared.Centavos
	FilePath      string
}

// RegisterInvoice attaches a fiscal document to a received order.
// Subtotal plus tax must equal total, in exact centavos.
func (s *Service) RegisterInvoice(ctx context.Context, actor shared.Actor, orderID int64, input InvoiceInput) (Invoice, error) {
	if !actor.IsComprador() {
		return Invoice{}, fmt.Errorf("%w: comprador role required", ErrForbidden)
	}
	if strings.TrimSpace(input.InvoiceNumber) == "" {
		return Invoice{}, fmt.Errorf("%w: invoice number is required", ErrValidation)
	}
	if input.Subtotal < 0 || input.Tax < 0 {
		return Invoice{}, fmt.Errorf("%w: amounts cannot be negative", ErrValidation)
	}
	if input.Subtotal+input.Tax != input.Total {
		return Invoice{}, fmt.Errorf("%w: subtotal + tax must equal total", ErrValidation)
	}

	order, err := s.repo.Get(ctx, orderID)
	if err != nil {
		return Invoice{}, err
	}
	if order.Status != StatusRecibida {
		return Invoice{}, fmt.Errorf("%w: invoices require a received order, got %s", ErrInvalidTransition, order.Status)
	}

	inv := Invoice{
		OrderID:       orderID,
		SupplierID:    input.SupplierID,
		InvoiceNumber: input.InvoiceNumber,
		InvoiceDate:   input.InvoiceDate,
		Subtotal:      input.Subtotal,
		Tax:           input.Tax,
		Total:         input.Total,
		FilePath:      input.FilePath,
	}
	created, err := s.repo.InsertInvoice(ctx, inv)
	if err != nil {
		return Invoice{}, err
	}
	s.recordAudit(ctx, actor, "order.invoice", orderID, map[string]any{
		"invoice_number": created.InvoiceNumber, "total": int64(created.Total),
	})
	return created, nil
}

func (s *Service) recordAudit(ctx context.Context, actor shared.Actor, action string, entityID int64, values map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:   actor.ID,
		Action:    action,
		Entity:    "purchase_order",
		EntityID:  strconv.FormatInt(entityID, 10),
		NewValues: values,
	})
	if err != nil {
		s.logger.Error("audit record", slog.Any("error", err), slog.String("action", action))
	}
}
