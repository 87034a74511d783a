package quotations

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/compras-erp/compras-erp/internal/platform/db"
)

// RequestLine is the slice of a request item the resolver needs for
// subtotal computation and comparison assembly.
type RequestLine struct {
	ID       int64
	Material string
	Quantity float64
	Unit     string
	InStock  bool
}

// Repository persists quotations. WithTx runs the callback against a
// transaction-scoped repository at RepeatableRead.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	RequestStatus(ctx context.Context, requestID int64) (string, error)
	RequestLines(ctx context.Context, requestID int64) ([]RequestLine, error)
	InsertQuotation(ctx context.Context, q Quotation) (Quotation, error)
	ListByRequest(ctx context.Context, requestID int64) ([]Quotation, error)
	GetItem(ctx context.Context, itemID int64) (QuotationItem, int64, error)
	LockRequest(ctx context.Context, requestID int64) error
	ClearSelection(ctx context.Context, requestItemID int64) error
	MarkSelected(ctx context.Context, itemID int64) error
	SelectedBids(ctx context.Context, requestID int64) ([]Bid, error)
	ComparisonBids(ctx context.Context, requestID int64) (map[int64][]Bid, error)
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type repository struct {
	db   querier
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL backed Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool, pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &repository{db: tx, pool: r.pool})
	})
}

func (r *repository) RequestStatus(ctx context.Context, requestID int64) (string, error) {
	var status string
	err := r.db.QueryRow(ctx, `SELECT status FROM requests WHERE id=$1`, requestID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	return status, err
}

func (r *repository) RequestLines(ctx context.Context, requestID int64) ([]RequestLine, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, material, quantity, unit, in_stock
		FROM request_items WHERE request_id=$1 ORDER BY id`, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []RequestLine
	for rows.Next() {
		var line RequestLine
		if err := rows.Scan(&line.ID, &line.Material, &line.Quantity, &line.Unit, &line.InStock); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func (r *repository) InsertQuotation(ctx context.Context, q Quotation) (Quotation, error) {
	err := r.db.QueryRow(ctx, `
		INSERT INTO quotations (request_id, supplier_id, total_centavos, payment_terms, valid_until, submitted_by)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING id, created_at`,
		q.RequestID, q.SupplierID, q.Total, q.PaymentTerms, q.ValidUntil, q.SubmittedBy,
	).Scan(&q.ID, &q.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Quotation{}, ErrDuplicateQuotation
		}
		return Quotation{}, err
	}

	for i := range q.Items {
		item := &q.Items[i]
		item.QuotationID = q.ID
		err := r.db.QueryRow(ctx, `
			INSERT INTO quotation_items (quotation_id, request_item_id, unit_price_centavos,
				subtotal_centavos, has_invoice, delivery_date, has_warranty, warranty_months)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
			RETURNING id`,
			item.QuotationID, item.RequestItemID, item.UnitPrice, item.Subtotal,
			item.HasInvoice, item.DeliveryDate, item.HasWarranty, item.WarrantyMonths,
		).Scan(&item.ID)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				return Quotation{}, ErrDuplicateQuotation
			}
			return Quotation{}, err
		}
	}
	return q, nil
}

func (r *repository) ListByRequest(ctx context.Context, requestID int64) ([]Quotation, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, request_id, supplier_id, total_centavos, payment_terms, valid_until,
			submitted_by, is_selected, created_at
		FROM quotations WHERE request_id=$1 ORDER BY id`, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []Quotation
	for rows.Next() {
		var q Quotation
		if err := rows.Scan(&q.ID, &q.RequestID, &q.SupplierID, &q.Total, &q.PaymentTerms,
			&q.ValidUntil, &q.SubmittedBy, &q.IsSelected, &q.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, q)
	}
	return list, rows.Err()
}

// GetItem returns the quotation item and the id of the request it belongs to.
func (r *repository) GetItem(ctx context.Context, itemID int64) (QuotationItem, int64, error) {
	var item QuotationItem
	var requestID int64
	err := r.db.QueryRow(ctx, `
		SELECT qi.id, qi.quotation_id, qi.request_item_id, qi.unit_price_centavos,
			qi.subtotal_centavos, qi.has_invoice, qi.delivery_date, qi.has_warranty,
			qi.warranty_months, qi.is_selected, q.request_id
		FROM quotation_items qi
		JOIN quotations q ON q.id = qi.quotation_id
		WHERE qi.id=$1`, itemID,
	).Scan(&item.ID, &item.QuotationID, &item.RequestItemID, &item.UnitPrice, &item.Subtotal,
		&item.HasInvoice, &item.DeliveryDate, &item.HasWarranty, &item.WarrantyMonths,
		&item.IsSelected, &requestID)
	if errors.Is(err, pgx.ErrNoRows) {
		return QuotationItem{}, 0, ErrNotFound
	}
	return item, requestID, err
}

// LockRequest serialises competing selections on the same request for the
// duration of the transaction.
func (r *repository) LockRequest(ctx context.Context, requestID int64) error {
	_, err := r.db.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, requestID)
	return err
}

func (r *repository) ClearSelection(ctx context.Context, requestItemID int64) error {
	_, err := r.db.Exec(ctx, `
		UPDATE quotation_items SET is_selected=FALSE
		WHERE request_item_id=$1 AND is_selected`, requestItemID)
	return err
}

func (r *repository) MarkSelected(ctx context.Context, itemID int64) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE quotation_items SET is_selected=TRUE WHERE id=$1`, itemID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const bidColumns = `qi.id, qi.quotation_id, q.supplier_id, s.name, qi.unit_price_centavos,
	qi.subtotal_centavos, qi.has_invoice, qi.delivery_date, qi.is_selected`

func scanBid(rows pgx.Rows) (Bid, error) {
	var bid Bid
	err := rows.Scan(&bid.RequestItemID, &bid.QuotationItemID, &bid.QuotationID, &bid.SupplierID,
		&bid.SupplierName, &bid.UnitPrice, &bid.Subtotal, &bid.HasInvoice, &bid.DeliveryDate,
		&bid.IsSelected)
	return bid, err
}

// SelectedBids returns the currently selected bid per line for the request.
func (r *repository) SelectedBids(ctx context.Context, requestID int64) ([]Bid, error) {
	rows, err := r.db.Query(ctx, `
		SELECT qi.request_item_id, `+bidColumns+`
		FROM quotation_items qi
		JOIN quotations q ON q.id = qi.quotation_id
		JOIN suppliers s ON s.id = q.supplier_id
		WHERE q.request_id=$1 AND qi.is_selected
		ORDER BY qi.request_item_id`, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var bids []Bid
	for rows.Next() {
		bid, err := scanBid(rows)
		if err != nil {
			return nil, err
		}
		bids = append(bids, bid)
	}
	return bids, rows.Err()
}

// ComparisonBids returns every bid grouped by request item, sorted cheapest
// first for display.
func (r *repository) ComparisonBids(ctx context.Context, requestID int64) (map[int64][]Bid, error) {
	rows, err := r.db.Query(ctx, `
		SELECT qi.request_item_id, `+bidColumns+`
		FROM quotation_items qi
		JOIN quotations q ON q.id = qi.quotation_id
		JOIN suppliers s ON s.id = q.supplier_id
		WHERE q.request_id=$1
		ORDER BY qi.request_item_id, qi.unit_price_centavos, qi.id`, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	grouped := map[int64][]Bid{}
	for rows.Next() {
		bid, err := scanBid(rows)
		if err != nil {
			return nil, err
		}
		grouped[bid.RequestItemID] = append(grouped[bid.RequestItemID], bid)
	}
	return grouped, rows.Err()
}
