package orders

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/compras-erp/compras-erp/internal/budgets"
	"github.com/compras-erp/compras-erp/internal/quotations"
	"github.com/compras-erp/compras-erp/internal/requests"
	"github.com/compras-erp/compras-erp/internal/shared"
)

type fakeRepo struct {
	request  RequestInfo
	lines    []RequestLine
	orders   map[int64]PurchaseOrder
	invoices map[int64][]Invoice
	folioSeq int64
	nextID   int64
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{orders: map[int64]PurchaseOrder{}, invoices: map[int64][]Invoice{}, nextID: 1}
}

func (f *fakeRepo) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return fn(ctx, f)
}

func (f *fakeRepo) RequestInfo(_ context.Context, requestID int64) (RequestInfo, error) {
	if f.request.ID != requestID {
		return RequestInfo{}, ErrNotFound
	}
	return f.request, nil
}

func (f *fakeRepo) RequestLines(context.Context, int64) ([]RequestLine, error) {
	return f.lines, nil
}

func (f *fakeRepo) NextFolio(context.Context, int) (int64, error) {
	f.folioSeq++
	return f.folioSeq, nil
}

func (f *fakeRepo) Insert(_ context.Context, order PurchaseOrder) (PurchaseOrder, error) {
	order.ID = f.nextID
	f.nextID++
	order.OrderDate = time.Now()
	order.CreatedAt = order.OrderDate
	order.UpdatedAt = order.OrderDate
	f.orders[order.ID] = order
	return order, nil
}

func (f *fakeRepo) Get(_ context.Context, id int64) (PurchaseOrder, error) {
	order, ok := f.orders[id]
	if !ok {
		return PurchaseOrder{}, ErrNotFound
	}
	return order, nil
}

func (f *fakeRepo) GetForUpdate(ctx context.Context, id int64) (PurchaseOrder, error) {
	return f.Get(ctx, id)
}

func (f *fakeRepo) List(_ context.Context, filters ListFilters) ([]PurchaseOrder, int, error) {
	var list []PurchaseOrder
	for _, o := range f.orders {
		if filters.Status != "" && o.Status != filters.Status {
			continue
		}
		if filters.RequestID != 0 && o.RequestID != filters.RequestID {
			continue
		}
		list = append(list, o)
	}
	return list, len(list), nil
}

func (f *fakeRepo) SetStatus(_ context.Context, id int64, status Status, actualDelivery *time.Time, notes string) error {
	order, ok := f.orders[id]
	if !ok {
		return ErrNotFound
	}
	order.Status = status
	if actualDelivery != nil {
		order.ActualDelivery = actualDelivery
	}
	if notes != "" {
		order.Notes = notes
	}
	f.orders[id] = order
	return nil
}

func (f *fakeRepo) InsertInvoice(_ context.Context, inv Invoice) (Invoice, error) {
	inv.ID = f.nextID
	f.nextID++
	inv.CreatedAt = time.Now()
	f.invoices[inv.OrderID] = append(f.invoices[inv.OrderID], inv)
	return inv, nil
}

func (f *fakeRepo) ListInvoices(_ context.Context, orderID int64) ([]Invoice, error) {
	return f.invoices[orderID], nil
}

type fakeQuotes struct {
	bids []quotations.Bid
}

func (f *fakeQuotes) SelectedBids(context.Context, int64) ([]quotations.Bid, error) {
	return f.bids, nil
}

type fakeGateway struct {
	synced []requests.Status
	flags  []bool
}

func (f *fakeGateway) SyncOrderStatus(_ context.Context, _ int64, to requests.Status) error {
	f.synced = append(f.synced, to)
	return nil
}

func (f *fakeGateway) ApplyBudgetFlag(_ context.Context, _ int64, approved bool) error {
	f.flags = append(f.flags, approved)
	return nil
}

type fakeLedger struct {
	consumed   shared.Centavos
	refunded   shared.Centavos
	overBudget bool
}

func (f *fakeLedger) Consume(_ context.Context, area string, year int, amount shared.Centavos) (budgets.ConsumeResult, error) {
	f.consumed += amount
	return budgets.ConsumeResult{Charged: amount, OverBudget: f.overBudget}, nil
}

func (f *fakeLedger) Refund(_ context.Context, _ string, _ int, amount shared.Centavos) error {
	f.refunded += amount
	return nil
}

var buyer = shared.Actor{ID: 3, Name: "Marta", Role: shared.RoleComprador, Area: "compras"}

func newTestService(repo Repository, quotes QuotationSource, gateway RequestGateway, ledger BudgetLedger) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(repo, logger, quotes, gateway, ledger, nil, nil)
}

func bid(itemID, requestItemID, quotationID, supplierID int64, subtotal shared.Centavos) quotations.Bid {
	return quotations.Bid{
		QuotationItemID: itemID,
		RequestItemID:   requestItemID,
		QuotationID:     quotationID,
		SupplierID:      supplierID,
		Subtotal:        subtotal,
		IsSelected:      true,
	}
}

func TestIssueRoundTripTotalMatchesSelection(t *testing.T) {
	repo := newFakeRepo()
	repo.request = RequestInfo{ID: 1, Status: "cotizando", Area: "sistemas", RequesterID: 7}
	repo.lines = []RequestLine{{ID: 10}, {ID: 11}}
	quotes := &fakeQuotes{bids: []quotations.Bid{
		bid(100, 10, 50, 300, 500_00),
		bid(101, 11, 50, 300, 500_00),
	}}
	gateway := &fakeGateway{}
	ledger := &fakeLedger{}
	svc := newTestService(repo, quotes, gateway, ledger)

	result, err := svc.IssueFromRequest(context.Background(), buyer, 1, IssueInput{})
	require.NoError(t, err)
	require.Len(t, result.Orders, 1)
	require.Equal(t, shared.Centavos(1000_00), result.Total)
	require.Equal(t, shared.Centavos(1000_00), result.Orders[0].Total)
	require.True(t, result.BudgetApproved)
	require.Equal(t, shared.Centavos(1000_00), ledger.consumed)
	require.Equal(t, []requests.Status{requests.StatusEmitida}, gateway.synced)
	require.Equal(t, []bool{true}, gateway.flags)
	require.NotEmpty(t, result.Orders[0].Folio)
}

type fakeNotifier struct {
	userIDs  []int64
	messages []string
}

func (f *fakeNotifier) NotifyUser(_ context.Context, userID int64, _, _, message, _ string) error {
	f.userIDs = append(f.userIDs, userID)
	f.messages = append(f.messages, message)
	return nil
}

func TestIssueNotifiesRequester(t *testing.T) {
	repo := newFakeRepo()
	repo.request = RequestInfo{ID: 1, Status: "cotizando", Area: "sistemas", RequesterID: 7}
	repo.lines = []RequestLine{{ID: 10}}
	quotes := &fakeQuotes{bids: []quotations.Bid{bid(100, 10, 50, 300, 1234567)}}
	notifier := &fakeNotifier{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(repo, logger, quotes, &fakeGateway{}, &fakeLedger{}, nil, notifier)

	_, err := svc.IssueFromRequest(context.Background(), buyer, 1, IssueInput{})
	require.NoError(t, err)
	require.Equal(t, []int64{7}, notifier.userIDs)
	require.Contains(t, notifier.messages[0], "$12,345.67 MXN")
}

func TestIssueGroupsBySupplier(t *testing.T) {
	repo := newFakeRepo()
	repo.request = RequestInfo{ID: 1, Status: "cotizando", Area: "sistemas"}
	repo.lines = []RequestLine{{ID: 10}, {ID: 11}}
	quotes := &fakeQuotes{bids: []quotations.Bid{
		bid(100, 10, 50, 300, 450_00),
		bid(101, 11, 51, 400, 200_00),
	}}
	svc := newTestService(repo, quotes, &fakeGateway{}, &fakeLedger{})

	result, err := svc.IssueFromRequest(context.Background(), buyer, 1, IssueInput{})
	require.NoError(t, err)
	require.Len(t, result.Orders, 2)
	require.Equal(t, shared.Centavos(650_00), result.Total)
	require.NotEqual(t, result.Orders[0].SupplierID, result.Orders[1].SupplierID)
	require.NotEqual(t, result.Orders[0].Folio, result.Orders[1].Folio)
}

func TestIssueBlocksUnresolvedItems(t *testing.T) {
	repo := newFakeRepo()
	repo.request = RequestInfo{ID: 1, Status: "cotizando", Area: "sistemas"}
	repo.lines = []RequestLine{{ID: 10}, {ID: 11}} // item 11 has no bid
	quotes := &fakeQuotes{bids: []quotations.Bid{bid(100, 10, 50, 300, 450_00)}}
	svc := newTestService(repo, quotes, &fakeGateway{}, &fakeLedger{})

	_, err := svc.IssueFromRequest(context.Background(), buyer, 1, IssueInput{})
	require.ErrorIs(t, err, ErrUnresolvedItems)
}

func TestIssueAllowsInStockLineWithoutBid(t *testing.T) {
	repo := newFakeRepo()
	repo.request = RequestInfo{ID: 1, Status: "cotizando", Area: "sistemas"}
	repo.lines = []RequestLine{{ID: 10}, {ID: 11, InStock: true}}
	quotes := &fakeQuotes{bids: []quotations.Bid{bid(100, 10, 50, 300, 450_00)}}
	svc := newTestService(repo, quotes, &fakeGateway{}, &fakeLedger{})

	result, err := svc.IssueFromRequest(context.Background(), buyer, 1, IssueInput{})
	require.NoError(t, err)
	require.Len(t, result.Orders, 1)
}

func TestIssueFromAutorizadaAllInStock(t *testing.T) {
	repo := newFakeRepo()
	repo.request = RequestInfo{ID: 1, Status: "autorizada", Area: "sistemas"}
	repo.lines = []RequestLine{{ID: 10, InStock: true}, {ID: 11, InStock: true}}
	gateway := &fakeGateway{}
	svc := newTestService(repo, &fakeQuotes{}, gateway, &fakeLedger{})

	result, err := svc.IssueFromRequest(context.Background(), buyer, 1, IssueInput{})
	require.NoError(t, err)
	require.Empty(t, result.Orders)
	require.Equal(t, []requests.Status{requests.StatusEmitida}, gateway.synced)
}

func TestIssueFromAutorizadaWithPendingQuotesFails(t *testing.T) {
	repo := newFakeRepo()
	repo.request = RequestInfo{ID: 1, Status: "autorizada", Area: "sistemas"}
	repo.lines = []RequestLine{{ID: 10, InStock: true}, {ID: 11}}
	quotes := &fakeQuotes{bids: []quotations.Bid{bid(100, 11, 50, 300, 450_00)}}
	svc := newTestService(repo, quotes, &fakeGateway{}, &fakeLedger{})

	_, err := svc.IssueFromRequest(context.Background(), buyer, 1, IssueInput{})
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestIssueFromPendienteFails(t *testing.T) {
	repo := newFakeRepo()
	repo.request = RequestInfo{ID: 1, Status: "pendiente", Area: "sistemas"}
	svc := newTestService(repo, &fakeQuotes{}, &fakeGateway{}, &fakeLedger{})

	_, err := svc.IssueFromRequest(context.Background(), buyer, 1, IssueInput{})
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestIssueOverBudgetWithholdsApproval(t *testing.T) {
	repo := newFakeRepo()
	repo.request = RequestInfo{ID: 1, Status: "cotizando", Area: "sistemas"}
	repo.lines = []RequestLine{{ID: 10}}
	quotes := &fakeQuotes{bids: []quotations.Bid{bid(100, 10, 50, 300, 800_00)}}
	gateway := &fakeGateway{}
	svc := newTestService(repo, quotes, gateway, &fakeLedger{overBudget: true})

	result, err := svc.IssueFromRequest(context.Background(), buyer, 1, IssueInput{})
	require.NoError(t, err) // allowed but flagged
	require.True(t, result.OverBudget)
	require.False(t, result.BudgetApproved)
	require.Equal(t, []bool{false}, gateway.flags)
}

func TestIssueRequiresComprador(t *testing.T) {
	svc := newTestService(newFakeRepo(), &fakeQuotes{}, &fakeGateway{}, &fakeLedger{})

	solicitante := shared.Actor{ID: 1, Role: shared.RoleSolicitante}
	_, err := svc.IssueFromRequest(context.Background(), solicitante, 1, IssueInput{})
	require.ErrorIs(t, err, ErrForbidden)
}

func issuedOrder(t *testing.T, repo *fakeRepo, gateway *fakeGateway, ledger *fakeLedger) (*Service, PurchaseOrder) {
	t.Helper()
	repo.request = RequestInfo{ID: 1, Status: "cotizando", Area: "sistemas"}
	repo.lines = []RequestLine{{ID: 10}}
	quotes := &fakeQuotes{bids: []quotations.Bid{bid(100, 10, 50, 300, 450_00)}}
	svc := newTestService(repo, quotes, gateway, ledger)
	result, err := svc.IssueFromRequest(context.Background(), buyer, 1, IssueInput{})
	require.NoError(t, err)
	return svc, result.Orders[0]
}

func TestAdvanceStatusLinear(t *testing.T) {
	repo := newFakeRepo()
	gateway := &fakeGateway{}
	svc, order := issuedOrder(t, repo, gateway, &fakeLedger{})

	moved, err := svc.AdvanceStatus(context.Background(), buyer, order.ID, StatusEnTransito, nil, "")
	require.NoError(t, err)
	require.Equal(t, StatusEnTransito, moved.Status)

	received, err := svc.AdvanceStatus(context.Background(), buyer, order.ID, StatusRecibida, nil, "")
	require.NoError(t, err)
	require.Equal(t, StatusRecibida, received.Status)
	require.NotNil(t, received.ActualDelivery)

	// Request mirrored through every step.
	require.Equal(t, []requests.Status{
		requests.StatusEmitida, requests.StatusEnTransito, requests.StatusRecibida,
	}, gateway.synced)

	// Terminal.
	_, err = svc.AdvanceStatus(context.Background(), buyer, order.ID, StatusCancelada, nil, "")
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestAdvanceStatusCannotSkip(t *testing.T) {
	repo := newFakeRepo()
	svc, order := issuedOrder(t, repo, &fakeGateway{}, &fakeLedger{})

	_, err := svc.AdvanceStatus(context.Background(), buyer, order.ID, StatusRecibida, nil, "")
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestCancelRefundsBudget(t *testing.T) {
	repo := newFakeRepo()
	ledger := &fakeLedger{}
	svc, order := issuedOrder(t, repo, &fakeGateway{}, ledger)

	cancelled, err := svc.AdvanceStatus(context.Background(), buyer, order.ID, StatusCancelada, nil, "proveedor incumplió")
	require.NoError(t, err)
	require.Equal(t, StatusCancelada, cancelled.Status)
	require.Equal(t, shared.Centavos(450_00), ledger.refunded)
}

func TestCancelMirrorsOnlyWhenLastOrderFalls(t *testing.T) {
	repo := newFakeRepo()
	repo.request = RequestInfo{ID: 1, Status: "cotizando", Area: "sistemas"}
	repo.lines = []RequestLine{{ID: 10}, {ID: 11}}
	quotes := &fakeQuotes{bids: []quotations.Bid{
		bid(100, 10, 50, 300, 450_00),
		bid(101, 11, 51, 400, 200_00),
	}}
	gateway := &fakeGateway{}
	ledger := &fakeLedger{}
	svc := newTestService(repo, quotes, gateway, ledger)

	result, err := svc.IssueFromRequest(context.Background(), buyer, 1, IssueInput{})
	require.NoError(t, err)
	require.Len(t, result.Orders, 2)

	// First cancellation refunds but leaves the request alive: the
	// sibling order is still emitida.
	_, err = svc.AdvanceStatus(context.Background(), buyer, result.Orders[0].ID, StatusCancelada, nil, "")
	require.NoError(t, err)
	require.Equal(t, []requests.Status{requests.StatusEmitida}, gateway.synced)
	require.Equal(t, shared.Centavos(450_00), ledger.refunded)

	_, err = svc.AdvanceStatus(context.Background(), buyer, result.Orders[1].ID, StatusCancelada, nil, "")
	require.NoError(t, err)
	require.Equal(t, []requests.Status{requests.StatusEmitida, requests.StatusCancelada}, gateway.synced)
	require.Equal(t, shared.Centavos(650_00), ledger.refunded)
}

func TestRegisterInvoiceRequiresReceivedOrder(t *testing.T) {
	repo := newFakeRepo()
	svc, order := issuedOrder(t, repo, &fakeGateway{}, &fakeLedger{})

	input := InvoiceInput{
		InvoiceNumber: "F-001",
		InvoiceDate:   time.Now(),
		Subtotal:      400_00,
		Tax:           64_00,
		Total:         464_00,
	}
	_, err := svc.RegisterInvoice(context.Background(), buyer, order.ID, input)
	require.ErrorIs(t, err, ErrInvalidTransition)

	_, err = svc.AdvanceStatus(context.Background(), buyer, order.ID, StatusEnTransito, nil, "")
	require.NoError(t, err)
	_, err = svc.AdvanceStatus(context.Background(), buyer, order.ID, StatusRecibida, nil, "")
	require.NoError(t, err)

	inv, err := svc.RegisterInvoice(context.Background(), buyer, order.ID, input)
	require.NoError(t, err)
	require.Equal(t, "F-001", inv.InvoiceNumber)
}

func TestRegisterInvoiceValidatesArithmetic(t *testing.T) {
	repo := newFakeRepo()
	svc, order := issuedOrder(t, repo, &fakeGateway{}, &fakeLedger{})
	_, err := svc.AdvanceStatus(context.Background(), buyer, order.ID, StatusEnTransito, nil, "")
	require.NoError(t, err)
	_, err = svc.AdvanceStatus(context.Background(), buyer, order.ID, StatusRecibida, nil, "")
	require.NoError(t, err)

	_, err = svc.RegisterInvoice(context.Background(), buyer, order.ID, InvoiceInput{
		InvoiceNumber: "F-002",
		InvoiceDate:   time.Now(),
		Subtotal:      400_00,
		Tax:           64_00,
		Total:         500_00, // 400 + 64 != 500
	})
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.RegisterInvoice(context.Background(), buyer, order.ID, InvoiceInput{
		InvoiceDate: time.Now(),
		Subtotal:    400_00,
		Tax:         64_00,
		Total:       464_00,
	})
	require.ErrorIs(t, err, ErrValidation) // missing invoice number
}
