package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/compras-erp/compras-erp/internal/platform/httpx"
	"github.com/compras-erp/compras-erp/internal/shared"
)

// ErrTokenInvalid indicates an unknown or expired bearer token.
var ErrTokenInvalid = fmt.Errorf("auth: %w", httpx.ErrUnauthorized)

// TokenStore keeps opaque bearer tokens in Redis. Token issuance for external
// identity providers happens elsewhere; this backend only mints and resolves
// its own opaque tokens.
type TokenStore struct {
	client *redis.Client
	ttl    time.Duration
}

type tokenPayload struct {
	UserID int64  `json:"user_id"`
	Name   string `json:"name"`
	Role   string `json:"role"`
	Area   string `json:"area"`
}

// NewTokenStore constructs a TokenStore.
func NewTokenStore(client *redis.Client, ttl time.Duration) *TokenStore {
	return &TokenStore{client: client, ttl: ttl}
}

// Issue creates a token for the actor and stores it with the configured TTL.
func (s *TokenStore) Issue(ctx context.Context, actor shared.Actor) (string, error) {
	token := generateToken()
	data, err := json.Marshal(tokenPayload{UserID: actor.ID, Name: actor.Name, Role: string(actor.Role), Area: actor.Area})
	if err != nil {
		return "", err
	}
	if err := s.client.Set(ctx, s.redisKey(token), data, s.ttl).Err(); err != nil {
		return "", err
	}
	return token, nil
}

// Resolve returns the actor bound to the token, refreshing its TTL.
func (s *TokenStore) Resolve(ctx context.Context, token string) (shared.Actor, error) {
	if token == "" {
		return shared.Actor{}, ErrTokenInvalid
	}
	data, err := s.client.Get(ctx, s.redisKey(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return shared.Actor{}, ErrTokenInvalid
		}
		return shared.Actor{}, err
	}
	var payload tokenPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return shared.Actor{}, ErrTokenInvalid
	}
	_ = s.client.Expire(ctx, s.redisKey(token), s.ttl).Err()
	return shared.Actor{ID: payload.UserID, Name: payload.Name, Role: shared.Role(payload.Role), Area: payload.Area}, nil
}

// Revoke deletes a token.
func (s *TokenStore) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return s.client.Del(ctx, s.redisKey(token)).Err()
}

// TTL exposes the configured token lifetime.
func (s *TokenStore) TTL() time.Duration {
	return s.ttl
}

func (s *TokenStore) redisKey(token string) string {
	return "token:" + token
}

func generateToken() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return uuid.NewString()
	}
	return base64.RawURLEncoding.EncodeToString(b)
}
