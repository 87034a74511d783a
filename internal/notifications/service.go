package notifications

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/compras-erp/compras-erp/internal/shared"
	"github.com/compras-erp/compras-erp/internal/users"
)

// Directory resolves recipients. Satisfied by users.Repository.
type Directory interface {
	Get(ctx context.Context, id int64) (users.User, error)
	ListByRole(ctx context.Context, role shared.Role) ([]users.User, error)
}

// MailQueue enqueues outbound email for asynchronous delivery.
type MailQueue interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// Service writes in-app notifications and fans out the matching emails.
// Email delivery is best effort: a full queue never blocks a workflow
// transition, the inbox row is the source of truth.
type Service struct {
	repo   Repository
	users  Directory
	mail   MailQueue
	logger *slog.Logger
}

// NewService constructs a Service. mail may be nil to disable email fan-out.
func NewService(repo Repository, users Directory, mail MailQueue, logger *slog.Logger) *Service {
	return &Service{repo: repo, users: users, mail: mail, logger: logger}
}

// NotifyUser stores a notification for one user and queues the email.
func (s *Service) NotifyUser(ctx context.Context, userID int64, kind, title, message, link string) error {
	user, err := s.users.Get(ctx, userID)
	if err != nil {
		return err
	}
	if _, err := s.repo.Insert(ctx, Notification{
		UserID:  userID,
		Type:    kind,
		Title:   title,
		Message: message,
		Link:    link,
	}); err != nil {
		return err
	}
	s.sendMail(ctx, user, title, message, link)
	return nil
}

// NotifyRole fans a notification out to every active user holding the role.
// A failure for one recipient is logged and does not stop the rest.
func (s *Service) NotifyRole(ctx context.Context, role shared.Role, kind, title, message, link string) error {
	recipients, err := s.users.ListByRole(ctx, role)
	if err != nil {
		return err
	}
	for _, user := range recipients {
		if _, err := s.repo.Insert(ctx, Notification{
			UserID:  user.ID,
			Type:    kind,
			Title:   title,
			Message: message,
			Link:    link,
		}); err != nil {
			s.logger.Error("insert notification", slog.Any("error", err),
				slog.Int64("user_id", user.ID), slog.String("kind", kind))
			continue
		}
		s.sendMail(ctx, user, title, message, link)
	}
	return nil
}

func (s *Service) sendMail(ctx context.Context, user users.User, subject, message, link string) {
	if s.mail == nil || user.Email == "" {
		return
	}
	body := fmt.Sprintf("Hola %s:\n\n%s\n", user.Name, message)
	if link != "" {
		body += fmt.Sprintf("\nConsulta el detalle en %s\n", link)
	}
	if err := s.mail.SendEmail(ctx, user.Email, subject, body); err != nil {
		s.logger.Error("enqueue email", slog.Any("error", err), slog.String("to", user.Email))
	}
}

// ListForUser returns the user's inbox, newest first, with the unread count.
func (s *Service) ListForUser(ctx context.Context, userID int64, unreadOnly bool) ([]Notification, int64, error) {
	list, err := s.repo.ListForUser(ctx, userID, unreadOnly)
	if err != nil {
		return nil, 0, err
	}
	unread, err := s.repo.UnreadCount(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	return list, unread, nil
}

// MarkRead marks one of the user's notifications as read.
func (s *Service) MarkRead(ctx context.Context, userID, id int64) error {
	return s.repo.MarkRead(ctx, id, userID)
}

// MarkAllRead marks the whole inbox as read and returns how many changed.
func (s *Service) MarkAllRead(ctx context.Context, userID int64) (int64, error) {
	return s.repo.MarkAllRead(ctx, userID)
}
