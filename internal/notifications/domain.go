package notifications

import (
	"fmt"
	"time"

	"github.com/compras-erp/compras-erp/internal/platform/httpx"
)

// ErrNotFound indicates a missing notification or one owned by another user.
var ErrNotFound = fmt.Errorf("notifications: %w", httpx.ErrNotFound)

// Notification is an in-app message shown in the user's inbox. Every
// notification also triggers an email through the job queue.
type Notification struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Link      string    `json:"link"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}
