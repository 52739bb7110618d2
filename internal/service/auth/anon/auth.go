package service_anon_auth

// Anonymous identity: every device gets a stable uuid bound to an opaque
// session token. No accounts, no passwords.

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

type Token = string

var ErrAuthUnavailable = errors.New("auth unavailable")

type SessionCache interface {
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
}

type Service struct {
	sessionCache SessionCache
	ttl          time.Duration
}

func New(
	sessionCache SessionCache,
	ttl *time.Duration,
) *Service {
	if ttl == nil {
		ttl = func() *time.Duration {
			defaultSessionTTL := time.Hour * 24
			return &defaultSessionTTL
		}()
	}

	return &Service{
		sessionCache: sessionCache,
		ttl:          *ttl,
	}
}

// SignInAnonymously provisions a fresh identity and the token that
// resolves back to it.
func (s *Service) SignInAnonymously(ctx context.Context) (userID string, token Token, err error) {
	userID = uuid.New().String()
	token = uuid.New().String()

	if err := s.sessionCache.Set(ctx, token, userID, s.ttl); err != nil {
		return "", "", errors.Join(ErrAuthUnavailable, err)
	}
	return userID, token, nil
}

// Resolve returns the user id behind a session token, "" when the token
// is unknown or expired.
func (s *Service) Resolve(ctx context.Context, token Token) (string, error) {
	userID, err := s.sessionCache.Get(ctx, token)
	if err != nil {
		return "", errors.Join(ErrAuthUnavailable, err)
	}
	return userID, nil
}
