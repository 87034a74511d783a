package requests

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/compras-erp/compras-erp/internal/shared"
)

// Auditor records workflow transitions in the audit log.
type Auditor interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Notifier fans out workflow notifications. Delivery failures must not
// abort the transition; implementations log and move on.
type Notifier interface {
	NotifyUser(ctx context.Context, userID int64, kind, title, message, link string) error
	NotifyRole(ctx context.Context, role shared.Role, kind, title, message, link string) error
}

// Service owns the request lifecycle.
type Service struct {
	repo     Repository
	logger   *slog.Logger
	audit    Auditor
	notifier Notifier
}

// NewService constructs a Service. audit and notifier may be nil in tests.
func NewService(repo Repository, logger *slog.Logger, audit Auditor, notifier Notifier) *Service {
	return &Service{repo: repo, logger: logger, audit: audit, notifier: notifier}
}

// CreateInput is the payload for creating a request.
type CreateInput struct {
	Priority      Priority
	Justification string
	NeededBy      *time.Time
	ScheduledFor  *time.Time
	AsDraft       bool
	Items         []RequestItem
}

// Create registers a new request. Drafts skip item validation and carry a
// snapshot; a future scheduled_for yields programada; otherwise the request
// enters the workflow as pendiente.
func (s *Service) Create(ctx context.Context, actor shared.Actor, input CreateInput) (Request, error) {
	if input.Priority == "" {
		input.Priority = PriorityNormal
	}
	if input.Priority != PriorityNormal && input.Priority != PriorityUrgente && input.Priority != PriorityCritica {
		return Request{}, fmt.Errorf("%w: unknown priority %q", ErrValidation, input.Priority)
	}

	req := Request{
		RequesterID:   actor.ID,
		Area:          actor.Area,
		Priority:      input.Priority,
		Justification: input.Justification,
		NeededBy:      input.NeededBy,
	}

	switch {
	case input.AsDraft:
		req.Status = StatusBorrador
		req.Draft = &DraftSnapshot{
			Priority:      input.Priority,
			Justification: input.Justification,
			NeededBy:      input.NeededBy,
			Items:         input.Items,
			SavedAt:       time.Now(),
		}
	case input.ScheduledFor != nil && input.ScheduledFor.After(time.Now()):
		if err := validateItems(input.Items); err != nil {
			return Request{}, err
		}
		req.Status = StatusProgramada
		req.ScheduledFor = input.ScheduledFor
	default:
		if err := validateItems(input.Items); err != nil {
			return Request{}, err
		}
		req.Status = StatusPendiente
	}

	var created Request
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		var err error
		created, err = tx.Create(ctx, req, input.Items)
		return err
	})
	if err != nil {
		return Request{}, err
	}

	s.recordAudit(ctx, actor, "request.create", created.ID, nil, map[string]any{
		"folio": created.Folio, "status": string(created.Status),
	})
	if created.Status == StatusPendiente {
		s.notifyRole(ctx, shared.RoleDirector, "request_submitted",
			"Nueva solicitud "+created.Folio,
			fmt.Sprintf("El área %s envió la solicitud %s para autorización.", created.Area, created.Folio),
			requestLink(created.ID))
	}
	return created, nil
}

func validateItems(items []RequestItem) error {
	if len(items) == 0 {
		return fmt.Errorf("%w: at least one item is required", ErrValidation)
	}
	for i, item := range items {
		if strings.TrimSpace(item.Material) == "" {
			return fmt.Errorf("%w: item %d missing material", ErrValidation, i+1)
		}
		if item.Quantity <= 0 {
			return fmt.Errorf("%w: item %d quantity must be positive", ErrValidation, i+1)
		}
	}
	return nil
}

// Get returns a request with its items, enforcing role visibility.
func (s *Service) Get(ctx context.Context, actor shared.Actor, id int64) (Request, error) {
	req, err := s.repo.Get(ctx, id)
	if err != nil {
		return Request{}, err
	}
	if err := canView(actor, req); err != nil {
		return Request{}, err
	}
	items, err := s.repo.Items(ctx, id)
	if err != nil {
		return Request{}, err
	}
	req.Items = items
	return req, nil
}

// List returns requests visible to the actor.
func (s *Service) List(ctx context.Context, actor shared.Actor, filters ListFilters) ([]Request, int, error) {
	switch actor.Role {
	case shared.RoleSolicitante:
		filters.Owner = actor.ID
	case shared.RoleDirector:
		filters.Area = actor.Area
	}
	return s.repo.List(ctx, filters)
}

func canView(actor shared.Actor, req Request) error {
	switch actor.Role {
	case shared.RoleSolicitante:
		if req.RequesterID != actor.ID {
			return fmt.Errorf("%w: not your request", ErrForbidden)
		}
	case shared.RoleDirector:
		if req.Area != actor.Area {
			return fmt.Errorf("%w: request belongs to another area", ErrForbidden)
		}
	}
	return nil
}

// Submit moves a draft or scheduled request into the approval workflow.
func (s *Service) Submit(ctx context.Context, actor shared.Actor, id int64) (Request, error) {
	return s.transition(ctx, actor, id, StatusPendiente, func(req Request) error {
		if req.RequesterID != actor.ID && actor.Role != shared.RoleAdmin {
			return fmt.Errorf("%w: only the requester may submit", ErrForbidden)
		}
		if req.Status != StatusBorrador && req.Status != StatusProgramada {
			return transitionErr(req.Status, StatusPendiente)
		}
		return nil
	}, func(ctx context.Context, tx Repository, req Request) error {
		return tx.SetStatus(ctx, req.ID, StatusPendiente)
	}, func(req Request) {
		s.notifyRole(ctx, shared.RoleDirector, "request_submitted",
			"Nueva solicitud "+req.Folio,
			fmt.Sprintf("El área %s envió la solicitud %s para autorización.", req.Area, req.Folio),
			requestLink(req.ID))
	})
}

// Authorize approves a pending request. Director only.
func (s *Service) Authorize(ctx context.Context, actor shared.Actor, id int64) (Request, error) {
	return s.transition(ctx, actor, id, StatusAutorizada, func(req Request) error {
		if !actor.IsDirector() {
			return fmt.Errorf("%w: director role required", ErrForbidden)
		}
		if req.Status != StatusPendiente {
			return transitionErr(req.Status, StatusAutorizada)
		}
		return nil
	}, func(ctx context.Context, tx Repository, req Request) error {
		return tx.MarkAuthorized(ctx, req.ID, actor.ID)
	}, func(req Request) {
		s.notifyUser(ctx, req.RequesterID, "request_authorized",
			"Solicitud "+req.Folio+" autorizada",
			"Tu solicitud fue autorizada y pasará a cotización.",
			requestLink(req.ID))
		s.notifyRole(ctx, shared.RoleComprador, "request_authorized",
			"Solicitud "+req.Folio+" lista para cotizar",
			fmt.Sprintf("La solicitud %s del área %s fue autorizada.", req.Folio, req.Area),
			requestLink(req.ID))
	})
}

// Reject declines a pending request with a mandatory reason. Director only.
func (s *Service) Reject(ctx context.Context, actor shared.Actor, id int64, reason string) (Request, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return Request{}, fmt.Errorf("%w: rejection reason is required", ErrValidation)
	}
	return s.transition(ctx, actor, id, StatusRechazada, func(req Request) error {
		if !actor.IsDirector() {
			return fmt.Errorf("%w: director role required", ErrForbidden)
		}
		if req.Status != StatusPendiente {
			return transitionErr(req.Status, StatusRechazada)
		}
		return nil
	}, func(ctx context.Context, tx Repository, req Request) error {
		return tx.MarkRejected(ctx, req.ID, reason)
	}, func(req Request) {
		s.notifyUser(ctx, req.RequesterID, "request_rejected",
			"Solicitud "+req.Folio+" rechazada",
			"Motivo: "+reason,
			requestLink(req.ID))
	})
}

// Cancel aborts a request before it reaches quoting. Requester initiated.
func (s *Service) Cancel(ctx context.Context, actor shared.Actor, id int64, reason string) (Request, error) {
	return s.transition(ctx, actor, id, StatusCancelada, func(req Request) error {
		if req.RequesterID != actor.ID && actor.Role != shared.RoleAdmin {
			return fmt.Errorf("%w: only the requester may cancel", ErrForbidden)
		}
		switch req.Status {
		case StatusBorrador, StatusProgramada, StatusPendiente:
			return nil
		}
		return transitionErr(req.Status, StatusCancelada)
	}, func(ctx context.Context, tx Repository, req Request) error {
		return tx.SetStatus(ctx, req.ID, StatusCancelada)
	}, func(req Request) {
		if reason != "" {
			s.recordAudit(ctx, actor, "request.cancel_reason", req.ID, nil, map[string]any{"reason": reason})
		}
	})
}

// BudgetApprove is the director override for overspent issuances.
func (s *Service) BudgetApprove(ctx context.Context, actor shared.Actor, id int64) (Request, error) {
	if !actor.IsDirector() {
		return Request{}, fmt.Errorf("%w: director role required", ErrForbidden)
	}
	var updated Request
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		req, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := tx.SetBudgetApproved(ctx, id, true); err != nil {
			return err
		}
		req.BudgetApproved = true
		updated = req
		return nil
	})
	if err != nil {
		return Request{}, err
	}
	s.recordAudit(ctx, actor, "request.budget_approve", id,
		map[string]any{"budget_approved": false}, map[string]any{"budget_approved": true})
	return updated, nil
}

// ApplyBudgetFlag records whether issuance stayed within budget. Used by the
// orders service; the director override goes through BudgetApprove instead.
func (s *Service) ApplyBudgetFlag(ctx context.Context, id int64, approved bool) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		return tx.SetBudgetApproved(ctx, id, approved)
	})
}

// MarkQuoting flips an authorized request to cotizando. Fired when the first
// quotation arrives; already-quoting requests are a no-op.
func (s *Service) MarkQuoting(ctx context.Context, id int64) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		req, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		switch req.Status {
		case StatusCotizando:
			return nil
		case StatusAutorizada:
			return tx.SetStatus(ctx, id, StatusCotizando)
		}
		return transitionErr(req.Status, StatusCotizando)
	})
}

// SyncOrderStatus mirrors a purchase order transition onto the parent
// request. Used by the orders service.
func (s *Service) SyncOrderStatus(ctx context.Context, id int64, to Status) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		req, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if req.Status == to {
			return nil
		}
		if !CanTransition(req.Status, to) {
			return transitionErr(req.Status, to)
		}
		return tx.SetStatus(ctx, id, to)
	})
}

// ActivateScheduled runs the sweep for due programada requests. Safe to run
// repeatedly; only rows actually promoted produce notifications.
func (s *Service) ActivateScheduled(ctx context.Context, now time.Time) (int, error) {
	var activated []Request
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		var err error
		activated, err = tx.ActivateScheduled(ctx, now)
		return err
	})
	if err != nil {
		return 0, err
	}
	for _, req := range activated {
		s.recordAudit(ctx, shared.Actor{}, "request.activate_scheduled", req.ID,
			map[string]any{"status": string(StatusProgramada)},
			map[string]any{"status": string(StatusPendiente)})
		s.notifyRole(ctx, shared.RoleDirector, "request_submitted",
			"Nueva solicitud "+req.Folio,
			fmt.Sprintf("La solicitud programada %s del área %s entró a revisión.", req.Folio, req.Area),
			requestLink(req.ID))
		s.notifyUser(ctx, req.RequesterID, "request_submitted",
			"Solicitud "+req.Folio+" enviada",
			"Tu solicitud programada fue enviada automáticamente.",
			requestLink(req.ID))
	}
	return len(activated), nil
}

// DeclareNoRequirements records an empty month for the actor's area.
func (s *Service) DeclareNoRequirements(ctx context.Context, actor shared.Actor, year, month int, note string) (NoRequirement, error) {
	if month < 1 || month > 12 {
		return NoRequirement{}, fmt.Errorf("%w: invalid month", ErrValidation)
	}
	if year < 2000 || year > 2100 {
		return NoRequirement{}, fmt.Errorf("%w: invalid year", ErrValidation)
	}
	decl := NoRequirement{Area: actor.Area, Year: year, Month: month, DeclaredBy: actor.ID, Note: note}
	var created NoRequirement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		var err error
		created, err = tx.InsertNoRequirement(ctx, decl)
		return err
	})
	if err != nil {
		return NoRequirement{}, err
	}
	s.recordAudit(ctx, actor, "request.no_requirements", created.ID, nil,
		map[string]any{"area": created.Area, "year": created.Year, "month": created.Month})
	return created, nil
}

// ListSchedules returns the active area submission windows.
func (s *Service) ListSchedules(ctx context.Context) ([]AreaSchedule, error) {
	return s.repo.ListSchedules(ctx)
}

// transition runs guard + apply inside a transaction with the row locked,
// then fires audit and notifications outside it.
func (s *Service) transition(
	ctx context.Context,
	actor shared.Actor,
	id int64,
	to Status,
	guard func(Request) error,
	apply func(context.Context, Repository, Request) error,
	after func(Request),
) (Request, error) {
	var before, updated Request
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		req, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := guard(req); err != nil {
			return err
		}
		before = req
		if err := apply(ctx, tx, req); err != nil {
			return err
		}
		updated, err = tx.Get(ctx, id)
		return err
	})
	if err != nil {
		return Request{}, err
	}

	s.recordAudit(ctx, actor, "request.status", id,
		map[string]any{"status": string(before.Status)},
		map[string]any{"status": string(updated.Status)})
	if after != nil {
		after(updated)
	}
	return updated, nil
}

func transitionErr(from, to Status) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

func requestLink(id int64) string {
	return "/solicitudes/" + strconv.FormatInt(id, 10)
}

func (s *Service) recordAudit(ctx context.Context, actor shared.Actor, action string, entityID int64, oldValues, newValues map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:   actor.ID,
		Action:    action,
		Entity:    "request",
		EntityID:  strconv.FormatInt(entityID, 10),
		OldValues: oldValues,
		NewValues: newValues,
	})
	if err != nil {
		s.logger.Error("audit record", slog.Any("error", err), slog.String("action", action))
	}
}

func (s *Service) notifyUser(ctx context.Context, userID int64, kind, title, message, link string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.NotifyUser(ctx, userID, kind, title, message, link); err != nil {
		s.logger.Error("notify user", slog.Any("error", err), slog.String("kind", kind))
	}
}

func (s *Service) notifyRole(ctx context.Context, role shared.Role, kind, title, message, link string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.NotifyRole(ctx, role, kind, title, message, link); err != nil {
		s.logger.Error("notify role", slog.Any("error", err), slog.String("kind", kind))
	}
}
