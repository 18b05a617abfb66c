package meli

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

type fakeCache struct {
	m    map[string][]byte
	gets int
	sets int
}

func (c *fakeCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	c.gets++
	b, ok := c.m[key]
	return b, ok, nil
}
func (c *fakeCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.sets++
	c.m[key] = value
	return nil
}

func TestStaticTokenProvider(t *testing.T) {
	p := NewStaticTokenProvider(map[uint64]string{7: "APP_USR-abc"})

	tok, err := p.GetCredential(context.Background(), 7)
	require.NoError(t, err)
	require.Equal(t, "APP_USR-abc", tok)

	_, err = p.GetCredential(context.Background(), 8)
	require.ErrorIs(t, err, ErrNoCredential)
}

type countingProvider struct {
	tok   string
	err   error
	calls int
}

func (p *countingProvider) GetCredential(ctx context.Context, accountID uint64) (string, error) {
	p.calls++
	return p.tok, p.err
}

func TestCachingTokenProvider_CachesHits(t *testing.T) {
	next := &countingProvider{tok: "tok-1"}
	c := &fakeCache{m: map[string][]byte{}}
	p := NewCachingTokenProvider(next, c, time.Minute)

	tok, err := p.GetCredential(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, "tok-1", tok)
	require.Equal(t, 1, next.calls)

	tok, err = p.GetCredential(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, "tok-1", tok)
	require.Equal(t, 1, next.calls) // второй раз — из кэша
}

func TestCachingTokenProvider_NeverCachesErrors(t *testing.T) {
	next := &countingProvider{err: ErrNoCredential}
	c := &fakeCache{m: map[string][]byte{}}
	p := NewCachingTokenProvider(next, c, time.Minute)

	_, err := p.GetCredential(context.Background(), 1)
	require.ErrorIs(t, err, ErrNoCredential)
	require.Equal(t, 0, c.sets)

	_, err = p.GetCredential(context.Background(), 1)
	require.ErrorIs(t, err, ErrNoCredential)
	require.Equal(t, 2, next.calls)
}

func TestAPIError_Retryable(t *testing.T) {
	require.True(t, (&APIError{StatusCode: 429}).Retryable())
	require.True(t, (&APIError{StatusCode: 503}).Retryable())
	require.False(t, (&APIError{StatusCode: 404}).Retryable())

	var apiErr *APIError
	wrapped := errors.Wrap(&APIError{StatusCode: 500}, "get snapshot")
	require.True(t, errors.As(wrapped, &apiErr))
	require.True(t, apiErr.Retryable())
}
