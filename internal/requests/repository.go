package requests

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/compras-erp/compras-erp/internal/platform/db"
	"github.com/compras-erp/compras-erp/internal/platform/httpx"
	"github.com/compras-erp/compras-erp/internal/shared"
)

// ErrDuplicateDeclaration indicates the area already declared the month empty.
var ErrDuplicateDeclaration = fmt.Errorf("requests: month already declared: %w", httpx.ErrDuplicate)

// Repository persists requests. WithTx runs the callback against a
// transaction-scoped repository at RepeatableRead.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	Create(ctx context.Context, req Request, items []RequestItem) (Request, error)
	Get(ctx context.Context, id int64) (Request, error)
	GetForUpdate(ctx context.Context, id int64) (Request, error)
	Items(ctx context.Context, requestID int64) ([]RequestItem, error)
	List(ctx context.Context, filters ListFilters) ([]Request, int, error)
	SetStatus(ctx context.Context, id int64, status Status) error
	MarkAuthorized(ctx context.Context, id, directorID int64) error
	MarkRejected(ctx context.Context, id int64, reason string) error
	SetBudgetApproved(ctx context.Context, id int64, approved bool) error
	SaveDraft(ctx context.Context, id int64, draft DraftSnapshot) error
	ActivateScheduled(ctx context.Context, now time.Time) ([]Request, error)
	InsertNoRequirement(ctx context.Context, decl NoRequirement) (NoRequirement, error)
	ListSchedules(ctx context.Context) ([]AreaSchedule, error)
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

const requestColumns = `id, folio, requester_id, area, priority, justification, needed_by, status,
	authorized_by, authorized_at, rejection_reason, scheduled_for, budget_approved, draft_data,
	created_at, updated_at`

func scanRequest(row pgx.Row) (Request, error) {
	var req Request
	var draftJSON []byte
	err := row.Scan(&req.ID, &req.Folio, &req.RequesterID, &req.Area, &req.Priority,
		&req.Justification, &req.NeededBy, &req.Status, &req.AuthorizedBy, &req.AuthorizedAt,
		&req.RejectionReason, &req.ScheduledFor, &req.BudgetApproved, &draftJSON,
		&req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Request{}, ErrNotFound
		}
		return Request{}, err
	}
	if len(draftJSON) > 0 {
		var draft DraftSnapshot
		if err := json.Unmarshal(draftJSON, &draft); err == nil {
			req.Draft = &draft
		}
	}
	return req, nil
}

func (r *repository) Create(ctx context.Context, req Request, items []RequestItem) (Request, error) {
	year := time.Now().Year()
	var seq int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO folio_counters (prefix, year, value) VALUES ('REQ', $1, 1)
		ON CONFLICT (prefix, year) DO UPDATE SET value = folio_counters.value + 1
		RETURNING value`, year).Scan(&seq)
	if err != nil {
		return Request{}, err
	}
	req.Folio = shared.FormatFolio("REQ", year, seq)

	var draftJSON []byte
	if req.Draft != nil {
		draftJSON, err = json.Marshal(req.Draft)
		if err != nil {
			return Request{}, err
		}
	}

	err = r.db.QueryRow(ctx, `
		INSERT INTO requests (folio, requester_id, area, priority, justification, needed_by,
			status, scheduled_for, draft_data)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING id, created_at, updated_at`,
		req.Folio, req.RequesterID, req.Area, req.Priority, req.Justification, req.NeededBy,
		req.Status, req.ScheduledFor, draftJSON,
	).Scan(&req.ID, &req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		return Request{}, err
	}

	for i := range items {
		item := &items[i]
		item.RequestID = req.ID
		err := r.db.QueryRow(ctx, `
			INSERT INTO request_items (request_id, material, specification, quantity, unit,
				approx_cost_centavos, in_stock, stock_location)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
			RETURNING id, created_at`,
			item.RequestID, item.Material, item.Specification, item.Quantity, item.Unit,
			item.ApproxCost, item.InStock, item.StockLocation,
		).Scan(&item.ID, &item.CreatedAt)
		if err != nil {
			return Request{}, err
		}
	}
	req.Items = items
	return req, nil
}

func (r *repository) Get(ctx context.Context, id int64) (Request, error) {
	return scanRequest(r.db.QueryRow(ctx,
		`SELECT `+requestColumns+` FROM requests WHERE id=$1`, id))
}

// GetForUpdate locks the request row; callers must be inside WithTx.
func (r *repository) GetForUpdate(ctx context.Context, id int64) (Request, error) {
	return scanRequest(r.db.QueryRow(ctx,
		`SELECT `+requestColumns+` FROM requests WHERE id=$1 FOR UPDATE`, id))
}

func (r *repository) Items(ctx context.Context, requestID int64) ([]RequestItem, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, request_id, material, specification, quantity, unit,
			approx_cost_centavos, in_stock, stock_location, created_at
		FROM request_items WHERE request_id=$1 ORDER BY id`, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []RequestItem
	for rows.Next() {
		var it RequestItem
		if err := rows.Scan(&it.ID, &it.RequestID, &it.Material, &it.Specification, &it.Quantity,
			&it.Unit, &it.ApproxCost, &it.InStock, &it.StockLocation, &it.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (r *repository) List(ctx context.Context, filters ListFilters) ([]Request, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	argCount := 0

	if filters.Status != "" {
		argCount++
		where += ` AND status = $` + strconv.Itoa(argCount)
		args = append(args, filters.Status)
	}
	if filters.Area != "" {
		argCount++
		where += ` AND area = $` + strconv.Itoa(argCount)
		args = append(args, filters.Area)
	}
	if filters.Owner != 0 {
		argCount++
		where += ` AND requester_id = $` + strconv.Itoa(argCount)
		args = append(args, filters.Owner)
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM requests`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + requestColumns + ` FROM requests` + where + ` ORDER BY created_at DESC`
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

	var list []Request
	for rows.Next() {
		req, err := scanRequestRows(rows)
		if err != nil {
			return nil, 0, err
		}
		list = append(list, req)
	}
	return list, total, rows.Err()
}

func scanRequestRows(rows pgx.Rows) (Request, error) {
	var req Request
	var draftJSON []byte
	err := rows.Scan(&req.ID, &req.Folio, &req.RequesterID, &req.Area, &req.Priority,
		&req.Justification, &req.NeededBy, &req.Status, &req.AuthorizedBy, &req.AuthorizedAt,
		&req.RejectionReason, &req.ScheduledFor, &req.BudgetApproved, &draftJSON,
		&req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		return Request{}, err
	}
	if len(draftJSON) > 0 {
		var draft DraftSnapshot
		if err := json.Unmarshal(draftJSON, &draft); err == nil {
			req.Draft = &draft
		}
	}
	return req, nil
}

func (r *repository) SetStatus(ctx context.Context, id int64, status Status) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE requests SET status=$2, updated_at=NOW() WHERE id=$1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) MarkAuthorized(ctx context.Context, id, directorID int64) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE requests SET status=$2, authorized_by=$3, authorized_at=NOW(), updated_at=NOW()
		WHERE id=$1`, id, StatusAutorizada, directorID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) MarkRejected(ctx context.Context, id int64, reason string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE requests SET status=$2, rejection_reason=$3, updated_at=NOW()
		WHERE id=$1`, id, StatusRechazada, reason)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) SetBudgetApproved(ctx context.Context, id int64, approved bool) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE requests SET budget_approved=$2, updated_at=NOW() WHERE id=$1`, id, approved)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) SaveDraft(ctx context.Context, id int64, draft DraftSnapshot) error {
	data, err := json.Marshal(draft)
	if err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx,
		`UPDATE requests SET draft_data=$2, updated_at=NOW() WHERE id=$1 AND status=$3`,
		id, data, StatusBorrador)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ActivateScheduled promotes every due programada request in one atomic
// statement; running it twice in the same minute returns the second time
// an empty slice.
func (r *repository) ActivateScheduled(ctx context.Context, now time.Time) ([]Request, error) {
	rows, err := r.db.Query(ctx, `
		UPDATE requests SET status=$1, updated_at=NOW()
		WHERE status=$2 AND scheduled_for IS NOT NULL AND scheduled_for <= $3
		RETURNING `+requestColumns, StatusPendiente, StatusProgramada, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var activated []Request
	for rows.Next() {
		req, err := scanRequestRows(rows)
		if err != nil {
			return nil, err
		}
		activated = append(activated, req)
	}
	return activated, rows.Err()
}

func (r *repository) InsertNoRequirement(ctx context.Context, decl NoRequirement) (NoRequirement, error) {
	err := r.db.QueryRow(ctx, `
		INSERT INTO no_requirements (area, year, month, declared_by, note)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING id, created_at`,
		decl.Area, decl.Year, decl.Month, decl.DeclaredBy, decl.Note,
	).Scan(&decl.ID, &decl.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return NoRequirement{}, ErrDuplicateDeclaration
		}
		return NoRequirement{}, err
	}
	return decl, nil
}

func (r *repository) ListSchedules(ctx context.Context) ([]AreaSchedule, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, area, opens_on, closes_on, is_active
		FROM area_schedules WHERE is_active ORDER BY area`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []AreaSchedule
	for rows.Next() {
		var s AreaSchedule
		if err := rows.Scan(&s.ID, &s.Area, &s.OpensOn, &s.ClosesOn, &s.IsActive); err != nil {
			return nil, err
		}
		list = append(list, s)
	}
	return list, rows.Err()
}
