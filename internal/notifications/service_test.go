package notifications

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/compras-erp/compras-erp/internal/shared"
	"github.com/compras-erp/compras-erp/internal/users"
)

type fakeRepo struct {
	rows   map[int64]Notification
	nextID int64
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{rows: map[int64]Notification{}, nextID: 1}
}

func (f *fakeRepo) Insert(_ context.Context, n Notification) (Notification, error) {
	n.ID = f.nextID
	f.nextID++
	f.rows[n.ID] = n
	return n, nil
}

func (f *fakeRepo) ListForUser(_ context.Context, userID int64, unreadOnly bool) ([]Notification, error) {
	var list []Notification
	for _, n := range f.rows {
		if n.UserID != userID {
			continue
		}
		if unreadOnly && n.IsRead {
			continue
		}
		list = append(list, n)
	}
	return list, nil
}

func (f *fakeRepo) MarkRead(_ context.Context, id, userID int64) error {
	n, ok := f.rows[id]
	if !ok || n.UserID != userID {
		return ErrNotFound
	}
	n.IsRead = true
	f.rows[id] = n
	return nil
}

func (f *fakeRepo) MarkAllRead(_ context.Context, userID int64) (int64, error) {
	var count int64
	for id, n := range f.rows {
		if n.UserID == userID && !n.IsRead {
			n.IsRead = true
			f.rows[id] = n
			count++
		}
	}
	return count, nil
}

func (f *fakeRepo) UnreadCount(_ context.Context, userID int64) (int64, error) {
	var count int64
	for _, n := range f.rows {
		if n.UserID == userID && !n.IsRead {
			count++
		}
	}
	return count, nil
}

type fakeDirectory struct {
	byID map[int64]users.User
}

func (f *fakeDirectory) Get(_ context.Context, id int64) (users.User, error) {
	u, ok := f.byID[id]
	if !ok {
		return users.User{}, users.ErrNotFound
	}
	return u, nil
}

func (f *fakeDirectory) ListByRole(_ context.Context, role shared.Role) ([]users.User, error) {
	var list []users.User
	for _, u := range f.byID {
		if u.Role == role && u.IsActive {
			list = append(list, u)
		}
	}
	return list, nil
}

type fakeMail struct {
	sent []string // recipients
	err  error
}

func (f *fakeMail) SendEmail(_ context.Context, to, _, _ string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, to)
	return nil
}

func newTestService(repo Repository, dir Directory, mail MailQueue) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(repo, dir, mail, logger)
}

func seedDirectory() *fakeDirectory {
	return &fakeDirectory{byID: map[int64]users.User{
		1: {ID: 1, Name: "Ana", Email: "ana@acme.mx", Role: shared.RoleSolicitante, IsActive: true},
		2: {ID: 2, Name: "Luis", Email: "luis@acme.mx", Role: shared.RoleDirector, IsActive: true},
		3: {ID: 3, Name: "Rosa", Email: "rosa@acme.mx", Role: shared.RoleDirector, IsActive: true},
	}}
}

func TestNotifyUserStoresAndEmails(t *testing.T) {
	repo := newFakeRepo()
	mail := &fakeMail{}
	svc := newTestService(repo, seedDirectory(), mail)

	err := svc.NotifyUser(context.Background(), 1, "request_authorized",
		"Solicitud REQ-2025-001 autorizada", "Tu solicitud fue autorizada.", "/requests/1")
	require.NoError(t, err)

	list, unread, err := svc.ListForUser(context.Background(), 1, false)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, int64(1), unread)
	require.Equal(t, "request_authorized", list[0].Type)
	require.Equal(t, []string{"ana@acme.mx"}, mail.sent)
}

func TestNotifyUserUnknownRecipient(t *testing.T) {
	svc := newTestService(newFakeRepo(), seedDirectory(), &fakeMail{})

	err := svc.NotifyUser(context.Background(), 99, "x", "t", "m", "")
	require.ErrorIs(t, err, users.ErrNotFound)
}

func TestNotifyRoleFansOut(t *testing.T) {
	repo := newFakeRepo()
	mail := &fakeMail{}
	svc := newTestService(repo, seedDirectory(), mail)

	err := svc.NotifyRole(context.Background(), shared.RoleDirector, "request_submitted",
		"Nueva solicitud", "El área sistemas envió una solicitud.", "/requests/1")
	require.NoError(t, err)

	for _, userID := range []int64{2, 3} {
		list, _, err := svc.ListForUser(context.Background(), userID, true)
		require.NoError(t, err)
		require.Len(t, list, 1)
	}
	require.Len(t, mail.sent, 2)

	// Nobody outside the role got anything.
	list, _, err := svc.ListForUser(context.Background(), 1, false)
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestMailFailureDoesNotFailNotify(t *testing.T) {
	repo := newFakeRepo()
	mail := &fakeMail{err: errors.New("queue full")}
	svc := newTestService(repo, seedDirectory(), mail)

	err := svc.NotifyUser(context.Background(), 1, "x", "t", "m", "")
	require.NoError(t, err)

	_, unread, err := svc.ListForUser(context.Background(), 1, false)
	require.NoError(t, err)
	require.Equal(t, int64(1), unread)
}

func TestMarkReadScopedToOwner(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, seedDirectory(), nil)
	require.NoError(t, svc.NotifyUser(context.Background(), 1, "x", "t", "m", ""))

	err := svc.MarkRead(context.Background(), 2, 1) // Luis cannot read Ana's row
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, svc.MarkRead(context.Background(), 1, 1))
	_, unread, err := svc.ListForUser(context.Background(), 1, false)
	require.NoError(t, err)
	require.Zero(t, unread)
}

func TestMarkAllRead(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, seedDirectory(), nil)
	require.NoError(t, svc.NotifyUser(context.Background(), 1, "x", "t1", "m", ""))
	require.NoError(t, svc.NotifyUser(context.Background(), 1, "x", "t2", "m", ""))

	updated, err := svc.MarkAllRead(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, int64(2), updated)

	updated, err = svc.MarkAllRead(context.Background(), 1)
	require.NoError(t, err)
	require.Zero(t, updated)
}
