package service_anon_auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cacheFake struct {
	values map[string]string
	err    error
}

func newCacheFake() *cacheFake {
	return &cacheFake{values: make(map[string]string)}
}

func (c *cacheFake) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if c.err != nil {
		return c.err
	}
	c.values[key] = value
	return nil
}

func (c *cacheFake) Get(ctx context.Context, key string) (string, error) {
	if c.err != nil {
		return "", c.err
	}
	return c.values[key], nil
}

func TestSignInIssuesResolvableIdentity(t *testing.T) {
	cache := newCacheFake()
	service := New(cache, nil)
	ctx := context.Background()

	userID, token, err := service.SignInAnonymously(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, userID)
	assert.NotEmpty(t, token)
	assert.NotEqual(t, userID, token)

	resolved, err := service.Resolve(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, userID, resolved)
}

func TestSignInIssuesDistinctIdentities(t *testing.T) {
	service := New(newCacheFake(), nil)
	ctx := context.Background()

	first, _, err := service.SignInAnonymously(ctx)
	require.NoError(t, err)
	second, _, err := service.SignInAnonymously(ctx)
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestResolveUnknownTokenIsEmpty(t *testing.T) {
	service := New(newCacheFake(), nil)

	resolved, err := service.Resolve(context.Background(), "nope")
	require.NoError(t, err)
	assert.Empty(t, resolved)
}

func TestCacheFailureIsAuthUnavailable(t *testing.T) {
	cache := newCacheFake()
	cache.err = errors.New("connection refused")
	service := New(cache, nil)
	ctx := context.Background()

	_, _, err := service.SignInAnonymously(ctx)
	assert.ErrorIs(t, err, ErrAuthUnavailable)

	_, err = service.Resolve(ctx, "token")
	assert.ErrorIs(t, err, ErrAuthUnavailable)
}
