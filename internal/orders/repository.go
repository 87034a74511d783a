package orders

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/compras-erp/compras-erp/internal/platform/db"
)

// RequestInfo is the slice of the parent request the issuer needs.
type RequestInfo struct {
	ID          int64
	Status      string
	Area        string
	RequesterID int64
}

// RequestLine mirrors a request item's sourcing state.
type RequestLine struct {
	ID      int64
	InStock bool
}

// Repository persists purchase orders and invoices.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	RequestInfo(ctx context.Context, requestID int64) (RequestInfo, error)
	RequestLines(ctx context.Context, requestID int64) ([]RequestLine, error)
	NextFolio(ctx context.Context, year int) (int64, error)
	Insert(ctx context.Context, order PurchaseOrder) (PurchaseOrder, error)
	Get(ctx context.Context, id int64) (PurchaseOrder, error)
	GetForUpdate(ctx context.Context, id int64) (PurchaseOrder, error)
	List(ctx context.Context, filters ListFilters) ([]PurchaseOrder, int, error)
	SetStatus(ctx context.Context, id int64, status Status, actualDelivery *time.Time, notes string) error
	InsertInvoice(ctx context.Context, inv Invoice) (Invoice, error)
	ListInvoices(ctx context.Context, orderID int64) ([]Invoice, error)
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

func (r *repository) RequestInfo(ctx context.Context, requestID int64) (RequestInfo, error) {
	var info RequestInfo
	err := r.db.QueryRow(ctx,
		`SELECT id, status, area, requester_id FROM requests WHERE id=$1 FOR UPDATE`, requestID,
	).Scan(&info.ID, &info.Status, &info.Area, &info.RequesterID)
	if errors.Is(err, pgx.ErrNoRows) {
		return RequestInfo{}, ErrNotFound
	}
	return info, err
}

func (r *repository) RequestLines(ctx context.Context, requestID int64) ([]RequestLine, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, in_stock FROM request_items WHERE request_id=$1 ORDER BY id`, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []RequestLine
	for rows.Next() {
		var line RequestLine
		if err := rows.Scan(&line.ID, &line.InStock); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func (r *repository) NextFolio(ctx context.Context, year int) (int64, error) {
	var seq int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO folio_counters (prefix, year, value) VALUES ('OC', $1, 1)
		ON CONFLICT (prefix, year) DO UPDATE SET value = folio_counters.value + 1
		RETURNING value`, year).Scan(&seq)
	return seq, err
}

const orderColumns = `id, folio, request_id, quotation_id, supplier_id, status, order_date,
	expected_delivery, actual_delivery, total_centavos, pdf_path, requires_invoice, notes,
	created_at, updated_at`

func scanOrder(row pgx.Row) (PurchaseOrder, error) {
	var o PurchaseOrder
	err := row.Scan(&o.ID, &o.Folio, &o.RequestID, &o.QuotationID, &o.SupplierID, &o.Status,
		&o.OrderDate, &o.ExpectedDelivery, &o.ActualDelivery, &o.Total, &o.PDFPath,
		&o.RequiresInvoice, &o.Notes, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return PurchaseOrder{}, ErrNotFound
	}
	return o, err
}

func (r *repository) Insert(ctx context.Context, order PurchaseOrder) (PurchaseOrder, error) {
	return scanOrder(r.db.QueryRow(ctx, `
		INSERT INTO purchase_orders (folio, request_id, quotation_id, supplier_id, status,
			expected_delivery, total_centavos, requires_invoice, notes)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING `+orderColumns,
		order.Folio, order.RequestID, order.QuotationID, order.SupplierID, order.Status,
		order.ExpectedDelivery, order.Total, order.RequiresInvoice, order.Notes))
}

func (r *repository) Get(ctx context.Context, id int64) (PurchaseOrder, error) {
	return scanOrder(r.db.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM purchase_orders WHERE id=$1`, id))
}

func (r *repository) GetForUpdate(ctx context.Context, id int64) (PurchaseOrder, error) {
	return scanOrder(r.db.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM purchase_orders WHERE id=$1 FOR UPDATE`, id))
}

func (r *repository) List(ctx context.Context, filters ListFilters) ([]PurchaseOrder, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	argCount := 0

	if filters.Status != "" {
		argCount++
		where += ` AND status = $` + strconv.Itoa(argCount)
		args = append(args, filters.Status)
	}
	if filters.RequestID != 0 {
		argCount++
		where += ` AND request_id = $` + strconv.Itoa(argCount)
		args = append(args, filters.RequestID)
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM purchase_orders`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + orderColumns + ` FROM purchase_orders` + where + ` ORDER BY created_at DESC`
	if filters.PerPage > 0 {
		argCount++
		query += ` LIMIT $` + strconv.Itoa(argCount)
		args = append(args, filters.PerPage)
		argCount++
		query += ` OFFSET $` + strconv.Itoa(argCount)
		offset := (filters.Page - 1) * filters.PerPage
		if offset < 0 {
			offset = 0
		}
		args = append(args, offset)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var list []PurchaseOrder
	for rows.Next() {
		var o PurchaseOrder
		if err := rows.Scan(&o.ID, &o.Folio, &o.RequestID, &o.QuotationID, &o.SupplierID, &o.Status,
			&o.OrderDate, &o.ExpectedDelivery, &o.ActualDelivery, &o.Total, &o.PDFPath,
			&o.RequiresInvoice, &o.Notes, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, 0, err
		}
		list = append(list, o)
	}
	return list, total, rows.Err()
}

func (r *repository) SetStatus(ctx context.Context, id int64, status Status, actualDelivery *time.Time, notes string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE purchase_orders
		SET status=$2,
			actual_delivery=COALESCE($3, actual_delivery),
			notes=CASE WHEN $4 <> '' THEN $4 ELSE notes END,
			updated_at=NOW()
		WHERE id=$1`, id, status, actualDelivery, notes)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) InsertInvoice(ctx context.Context, inv Invoice) (Invoice, error) {
	err := r.db.QueryRow(ctx, `
		INSERT INTO invoices (order_id, supplier_id, invoice_number, invoice_date,
			subtotal_centavos, tax_centavos, total_centavos, file_path)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING id, created_at`,
		inv.OrderID, inv.SupplierID, inv.InvoiceNumber, inv.InvoiceDate,
		inv.Subtotal, inv.Tax, inv.Total, inv.FilePath,
	).Scan(&inv.ID, &inv.CreatedAt)
	return inv, err
}

func (r *repository) ListInvoices(ctx context.Context, orderID int64) ([]Invoice, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, order_id, supplier_id, invoice_number, invoice_date,
			subtotal_centavos, tax_centavos, total_centavos, file_path, created_at
		FROM invoices WHERE order_id=$1 ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []Invoice
	for rows.Next() {
		var inv Invoice
		if err := rows.Scan(&inv.ID, &inv.OrderID, &inv.SupplierID, &inv.InvoiceNumber,
			&inv.InvoiceDate, &inv.Subtotal, &inv.Tax, &inv.Total, &inv.FilePath, &inv.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, inv)
	}
	return list, rows.Err()
}
