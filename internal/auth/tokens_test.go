package auth

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/compras-erp/compras-erp/internal/shared"
)

func newTestStore(t *testing.T) (*TokenStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewTokenStore(client, time.Hour), mr
}

func TestTokenStoreIssueResolve(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	actor := shared.Actor{ID: 7, Name: "Laura", Role: shared.RoleComprador, Area: "compras"}
	token, err := store.Issue(ctx, actor)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	got, err := store.Resolve(ctx, token)
	require.NoError(t, err)
	require.Equal(t, actor, got)
}

func TestTokenStoreResolveUnknown(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.Resolve(context.Background(), "missing")
	require.ErrorIs(t, err, ErrTokenInvalid)

	_, err = store.Resolve(context.Background(), "")
	require.ErrorIs(t, err, ErrTokenInvalid)
}

func TestTokenStoreResolveExpired(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	token, err := store.Issue(ctx, shared.Actor{ID: 1, Role: shared.RoleSolicitante})
	require.NoError(t, err)

	mr.FastForward(2 * time.Hour)

	_, err = store.Resolve(ctx, token)
	require.ErrorIs(t, err, ErrTokenInvalid)
}

func TestTokenStoreRevoke(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	token, err := store.Issue(ctx, shared.Actor{ID: 2, Role: shared.RoleDirector, Area: "ti"})
	require.NoError(t, err)
	require.NoError(t, store.Revoke(ctx, token))

	_, err = store.Resolve(ctx, token)
	require.ErrorIs(t, err, ErrTokenInvalid)
}
