package quotations

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/compras-erp/compras-erp/internal/shared"
)

type fakeRepo struct {
	statuses   map[int64]string
	lines      map[int64][]RequestLine
	quotations map[int64]Quotation
	items      map[int64]QuotationItem
	itemReq    map[int64]int64 // quotation item id -> request id
	quoted     map[[2]int64]bool
	nextID     int64
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		statuses:   map[int64]string{},
		lines:      map[int64][]RequestLine{},
		quotations: map[int64]Quotation{},
		items:      map[int64]QuotationItem{},
		itemReq:    map[int64]int64{},
		quoted:     map[[2]int64]bool{},
		nextID:     1,
	}
}

func (f *fakeRepo) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return fn(ctx, f)
}

func (f *fakeRepo) RequestStatus(_ context.Context, requestID int64) (string, error) {
	status, ok := f.statuses[requestID]
	if !ok {
		return "", ErrNotFound
	}
	return status, nil
}

func (f *fakeRepo) RequestLines(_ context.Context, requestID int64) ([]RequestLine, error) {
	return f.lines[requestID], nil
}

func (f *fakeRepo) InsertQuotation(_ context.Context, q Quotation) (Quotation, error) {
	key := [2]int64{q.RequestID, q.SupplierID}
	if f.quoted[key] {
		return Quotation{}, ErrDuplicateQuotation
	}
	f.quoted[key] = true
	q.ID = f.nextID
	f.nextID++
	for i := range q.Items {
		q.Items[i].ID = f.nextID
		q.Items[i].QuotationID = q.ID
		f.items[q.Items[i].ID] = q.Items[i]
		f.itemReq[q.Items[i].ID] = q.RequestID
		f.nextID++
	}
	f.quotations[q.ID] = q
	return q, nil
}

func (f *fakeRepo) ListByRequest(_ context.Context, requestID int64) ([]Quotation, error) {
	var list []Quotation
	for _, q := range f.quotations {
		if q.RequestID == requestID {
			list = append(list, q)
		}
	}
	return list, nil
}

func (f *fakeRepo) GetItem(_ context.Context, itemID int64) (QuotationItem, int64, error) {
	item, ok := f.items[itemID]
	if !ok {
		return QuotationItem{}, 0, ErrNotFound
	}
	return item, f.itemReq[itemID], nil
}

func (f *fakeRepo) LockRequest(context.Context, int64) error { return nil }

func (f *fakeRepo) ClearSelection(_ context.Context, requestItemID int64) error {
	for id, item := range f.items {
		if item.RequestItemID == requestItemID && item.IsSelected {
			item.IsSelected = false
			f.items[id] = item
		}
	}
	return nil
}

func (f *fakeRepo) MarkSelected(_ context.Context, itemID int64) error {
	item, ok := f.items[itemID]
	if !ok {
		return ErrNotFound
	}
	item.IsSelected = true
	f.items[itemID] = item
	return nil
}

func (f *fakeRepo) bids(requestID int64, onlySelected bool) []Bid {
	var ids []int64
	for id := range f.items {
		if f.itemReq[id] == requestID {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	var bids []Bid
	for _, id := range ids {
		item := f.items[id]
		if onlySelected && !item.IsSelected {
			continue
		}
		q := f.quotations[item.QuotationID]
		bids = append(bids, Bid{
			QuotationItemID: item.ID,
			RequestItemID:   item.RequestItemID,
			QuotationID:     item.QuotationID,
			SupplierID:      q.SupplierID,
			UnitPrice:       item.UnitPrice,
			Subtotal:        item.Subtotal,
			HasInvoice:      item.HasInvoice,
			IsSelected:      item.IsSelected,
		})
	}
	return bids
}

func (f *fakeRepo) SelectedBids(_ context.Context, requestID int64) ([]Bid, error) {
	return f.bids(requestID, true), nil
}

func (f *fakeRepo) ComparisonBids(_ context.Context, requestID int64) (map[int64][]Bid, error) {
	grouped := map[int64][]Bid{}
	for _, bid := range f.bids(requestID, false) {
		item := f.items[bid.QuotationItemID]
		grouped[item.RequestItemID] = append(grouped[item.RequestItemID], bid)
	}
	return grouped, nil
}

type fakeLifecycle struct {
	marked []int64
}

func (f *fakeLifecycle) MarkQuoting(_ context.Context, requestID int64) error {
	f.marked = append(f.marked, requestID)
	return nil
}

var buyer = shared.Actor{ID: 3, Name: "Marta", Role: shared.RoleComprador, Area: "compras"}

func newTestService(repo Repository, lifecycle LifecycleAdvancer) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(repo, logger, lifecycle)
}

// seedRequest registers request 1 with two lines: Mouse qty 5 (item 10)
// and Teclado qty 2 (item 11).
func seedRequest(repo *fakeRepo, status string) {
	repo.statuses[1] = status
	repo.lines[1] = []RequestLine{
		{ID: 10, Material: "Mouse", Quantity: 5, Unit: "pieza"},
		{ID: 11, Material: "Teclado", Quantity: 2, Unit: "pieza"},
	}
}

func TestAttachComputesSubtotals(t *testing.T) {
	repo := newFakeRepo()
	seedRequest(repo, "cotizando")
	svc := newTestService(repo, &fakeLifecycle{})

	created, err := svc.Attach(context.Background(), buyer, AttachInput{
		RequestID:  1,
		SupplierID: 100,
		Items: []AttachItemInput{
			{RequestItemID: 10, UnitPrice: 100_00}, // $100 x 5
			{RequestItemID: 11, UnitPrice: 250_00}, // $250 x 2
		},
	})
	require.NoError(t, err)
	require.Equal(t, shared.Centavos(500_00), created.Items[0].Subtotal)
	require.Equal(t, shared.Centavos(500_00), created.Items[1].Subtotal)
	require.Equal(t, shared.Centavos(1000_00), created.Total)
}

func TestAttachDuplicateSupplier(t *testing.T) {
	repo := newFakeRepo()
	seedRequest(repo, "cotizando")
	svc := newTestService(repo, &fakeLifecycle{})

	input := AttachInput{
		RequestID:  1,
		SupplierID: 100,
		Items:      []AttachItemInput{{RequestItemID: 10, UnitPrice: 90_00}},
	}
	first, err := svc.Attach(context.Background(), buyer, input)
	require.NoError(t, err)

	_, err = svc.Attach(context.Background(), buyer, input)
	require.ErrorIs(t, err, ErrDuplicateQuotation)

	// First quotation untouched.
	list, err := svc.ListByRequest(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, first.ID, list[0].ID)
}

func TestAttachAdvancesAuthorizedRequest(t *testing.T) {
	repo := newFakeRepo()
	seedRequest(repo, "autorizada")
	lifecycle := &fakeLifecycle{}
	svc := newTestService(repo, lifecycle)

	_, err := svc.Attach(context.Background(), buyer, AttachInput{
		RequestID:  1,
		SupplierID: 100,
		Items:      []AttachItemInput{{RequestItemID: 10, UnitPrice: 90_00}},
	})
	require.NoError(t, err)
	require.Equal(t, []int64{1}, lifecycle.marked)
}

func TestAttachRejectedWhenNotQuotable(t *testing.T) {
	repo := newFakeRepo()
	seedRequest(repo, "pendiente")
	svc := newTestService(repo, &fakeLifecycle{})

	_, err := svc.Attach(context.Background(), buyer, AttachInput{
		RequestID:  1,
		SupplierID: 100,
		Items:      []AttachItemInput{{RequestItemID: 10, UnitPrice: 90_00}},
	})
	require.ErrorIs(t, err, ErrRequestNotQuotable)
}

func TestAttachRequiresComprador(t *testing.T) {
	repo := newFakeRepo()
	seedRequest(repo, "cotizando")
	svc := newTestService(repo, &fakeLifecycle{})

	solicitante := shared.Actor{ID: 1, Role: shared.RoleSolicitante}
	_, err := svc.Attach(context.Background(), solicitante, AttachInput{
		RequestID:  1,
		SupplierID: 100,
		Items:      []AttachItemInput{{RequestItemID: 10, UnitPrice: 90_00}},
	})
	require.ErrorIs(t, err, ErrForbidden)
}

// attachTwoBids quotes the Mouse line from suppliers A ($100) and B ($90)
// and returns the two quotation item ids.
func attachTwoBids(t *testing.T, svc *Service) (itemA, itemB int64) {
	t.Helper()
	a, err := svc.Attach(context.Background(), buyer, AttachInput{
		RequestID:  1,
		SupplierID: 100,
		Items:      []AttachItemInput{{RequestItemID: 10, UnitPrice: 100_00}},
	})
	require.NoError(t, err)
	b, err := svc.Attach(context.Background(), buyer, AttachInput{
		RequestID:  1,
		SupplierID: 200,
		Items:      []AttachItemInput{{RequestItemID: 10, UnitPrice: 90_00}},
	})
	require.NoError(t, err)
	return a.Items[0].ID, b.Items[0].ID
}

func TestSelectItemExactlyOneWinner(t *testing.T) {
	repo := newFakeRepo()
	seedRequest(repo, "cotizando")
	svc := newTestService(repo, &fakeLifecycle{})
	itemA, itemB := attachTwoBids(t, svc)

	_, err := svc.SelectItem(context.Background(), buyer, itemB)
	require.NoError(t, err)
	require.True(t, repo.items[itemB].IsSelected)

	// Selecting A must auto-deselect B.
	_, err = svc.SelectItem(context.Background(), buyer, itemA)
	require.NoError(t, err)
	require.True(t, repo.items[itemA].IsSelected)
	require.False(t, repo.items[itemB].IsSelected)
}

func TestSelectItemIdempotent(t *testing.T) {
	repo := newFakeRepo()
	seedRequest(repo, "cotizando")
	svc := newTestService(repo, &fakeLifecycle{})
	itemA, _ := attachTwoBids(t, svc)

	_, err := svc.SelectItem(context.Background(), buyer, itemA)
	require.NoError(t, err)
	_, err = svc.SelectItem(context.Background(), buyer, itemA)
	require.NoError(t, err)
	require.True(t, repo.items[itemA].IsSelected)

	selected, err := svc.SelectedBids(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, selected, 1)
}

func TestTotalSelectedTracksChanges(t *testing.T) {
	repo := newFakeRepo()
	seedRequest(repo, "cotizando")
	svc := newTestService(repo, &fakeLifecycle{})
	itemA, itemB := attachTwoBids(t, svc)

	total, err := svc.TotalSelected(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, shared.Centavos(0), total)

	_, err = svc.SelectItem(context.Background(), buyer, itemB)
	require.NoError(t, err)
	total, err = svc.TotalSelected(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, shared.Centavos(450_00), total) // $90 x 5

	_, err = svc.SelectItem(context.Background(), buyer, itemA)
	require.NoError(t, err)
	total, err = svc.TotalSelected(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, shared.Centavos(500_00), total) // $100 x 5
}

func TestComparisonMatrix(t *testing.T) {
	repo := newFakeRepo()
	seedRequest(repo, "cotizando")
	svc := newTestService(repo, &fakeLifecycle{})
	_, itemB := attachTwoBids(t, svc)

	_, err := svc.SelectItem(context.Background(), buyer, itemB)
	require.NoError(t, err)

	comparison, err := svc.Comparison(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, comparison.Lines, 2)

	mouse := comparison.Lines[0]
	require.Equal(t, int64(10), mouse.RequestItemID)
	require.Len(t, mouse.Bids, 2)
	require.NotNil(t, mouse.Selected)
	require.Equal(t, itemB, *mouse.Selected)
	require.False(t, mouse.Unresolved)

	// Teclado has no quotes and is not in stock: unresolved.
	teclado := comparison.Lines[1]
	require.Empty(t, teclado.Bids)
	require.True(t, teclado.Unresolved)
	require.Nil(t, teclado.Selected)

	require.Equal(t, shared.Centavos(450_00), comparison.TotalSelected)
}
