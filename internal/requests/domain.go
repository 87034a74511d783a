package requests

import (
	"fmt"
	"time"

	"github.com/compras-erp/compras-erp/internal/platform/httpx"
	"github.com/compras-erp/compras-erp/internal/shared"
)

var (
	// ErrNotFound indicates a missing request.
	ErrNotFound = fmt.Errorf("requests: %w", httpx.ErrNotFound)
	// ErrValidation indicates an invalid payload.
	ErrValidation = fmt.Errorf("requests: %w", httpx.ErrValidation)
	// ErrForbidden indicates the actor may not perform the operation.
	ErrForbidden = fmt.Errorf("requests: %w", httpx.ErrForbidden)
	// ErrInvalidTransition indicates the status change is not allowed
	// from the current state.
	ErrInvalidTransition = fmt.Errorf("requests: %w", httpx.ErrInvalidTransition)
)

// Status is the lifecycle state of a purchase request. The literal Spanish
// strings are part of the wire contract and the schema CHECK constraint.
type Status string

const (
	StatusBorrador   Status = "borrador"
	StatusProgramada Status = "programada"
	StatusPendiente  Status = "pendiente"
	StatusCotizando  Status = "cotizando"
	StatusAutorizada Status = "autorizada"
	StatusEmitida    Status = "emitida"
	StatusEnTransito Status = "en_transito"
	StatusRecibida   Status = "recibida"
	StatusRechazada  Status = "rechazada"
	StatusCancelada  Status = "cancelada"
)

// transitions enumerates every legal status edge. Terminal states
// (recibida, rechazada, cancelada) have no outgoing edges.
var transitions = map[Status][]Status{
	StatusBorrador:   {StatusPendiente, StatusCancelada},
	StatusProgramada: {StatusPendiente, StatusCancelada},
	StatusPendiente:  {StatusAutorizada, StatusRechazada, StatusCancelada},
	StatusAutorizada: {StatusCotizando, StatusEmitida},
	StatusCotizando:  {StatusEmitida},
	StatusEmitida:    {StatusEnTransito, StatusCancelada},
	StatusEnTransito: {StatusRecibida, StatusCancelada},
}

// CanTransition reports whether moving from one status to another is legal.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status admits no further transitions.
func (s Status) IsTerminal() bool {
	return len(transitions[s]) == 0
}

// Valid reports whether s is one of the nine enumerated values.
func (s Status) Valid() bool {
	switch s {
	case StatusBorrador, StatusProgramada, StatusPendiente, StatusCotizando,
		StatusAutorizada, StatusEmitida, StatusEnTransito, StatusRecibida,
		StatusRechazada, StatusCancelada:
		return true
	}
	return false
}

// Priority of a request.
type Priority string

const (
	PriorityNormal  Priority = "normal"
	PriorityUrgente Priority = "urgente"
	PriorityCritica Priority = "critica"
)

// Request is a procurement ask moving through the lifecycle.
type Request struct {
	ID              int64          `json:"id"`
	Folio           string         `json:"folio"`
	RequesterID     int64          `json:"requester_id"`
	Area            string         `json:"area"`
	Priority        Priority       `json:"priority"`
	Justification   string         `json:"justification"`
	NeededBy        *time.Time     `json:"needed_by,omitempty"`
	Status          Status         `json:"status"`
	AuthorizedBy    *int64         `json:"authorized_by,omitempty"`
	AuthorizedAt    *time.Time     `json:"authorized_at,omitempty"`
	RejectionReason *string        `json:"rejection_reason,omitempty"`
	ScheduledFor    *time.Time     `json:"scheduled_for,omitempty"`
	BudgetApproved  bool           `json:"budget_approved"`
	Draft           *DraftSnapshot `json:"draft,omitempty"`
	Items           []RequestItem  `json:"items,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// RequestItem is one line of a request.
type RequestItem struct {
	ID            int64            `json:"id"`
	RequestID     int64            `json:"request_id"`
	Material      string           `json:"material"`
	Specification string           `json:"specification"`
	Quantity      float64          `json:"quantity"`
	Unit          string           `json:"unit"`
	ApproxCost    *shared.Centavos `json:"approx_cost_centavos,omitempty"`
	InStock       bool             `json:"in_stock"`
	StockLocation string           `json:"stock_location"`
	CreatedAt     time.Time        `json:"created_at"`
}

// DraftSnapshot is the validated draft payload stored alongside a borrador
// request so partially filled forms survive schema evolution.
type DraftSnapshot struct {
	Priority      Priority      `json:"priority,omitempty"`
	Justification string        `json:"justification,omitempty"`
	NeededBy      *time.Time    `json:"needed_by,omitempty"`
	Items         []RequestItem `json:"items,omitempty"`
	SavedAt       time.Time     `json:"saved_at"`
}

// AreaSchedule describes the day-of-month window in which an area may submit.
type AreaSchedule struct {
	ID       int64  `json:"id"`
	Area     string `json:"area"`
	OpensOn  int    `json:"opens_on"`
	ClosesOn int    `json:"closes_on"`
	IsActive bool   `json:"is_active"`
}

// NoRequirement records that an area declared nothing needed for a month.
type NoRequirement struct {
	ID         int64     `json:"id"`
	Area       string    `json:"area"`
	Year       int       `json:"year"`
	Month      int       `json:"month"`
	DeclaredBy int64     `json:"declared_by"`
	Note       string    `json:"note"`
	CreatedAt  time.Time `json:"created_at"`
}

// ListFilters narrows request listings.
type ListFilters struct {
	Status  Status
	Area    string
	Owner   int64
	Page    int
	PerPage int
}
