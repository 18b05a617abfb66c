package meli

import (
	"context"
	"fmt"
	"time"

	"github.com/santirms/zupply-app-sub000/internal/cache"
)

// StaticTokenProvider serves credentials from a fixed map (config-file
// accounts). The real OAuth refresh flow lives outside this subsystem.
type StaticTokenProvider struct {
	tokens map[uint64]string
}

func NewStaticTokenProvider(tokens map[uint64]string) *StaticTokenProvider {
	return &StaticTokenProvider{tokens: tokens}
}

func (p *StaticTokenProvider) GetCredential(ctx context.Context, accountID uint64) (string, error) {
	tok, ok := p.tokens[accountID]
	if !ok || tok == "" {
		return "", ErrNoCredential
	}
	return tok, nil
}

// CachingTokenProvider puts the resolved credential into a shared cache so a
// worker pool does not hammer the upstream provider once per record.
// Errors (including ErrNoCredential) are never cached.
type CachingTokenProvider struct {
	next  TokenProvider
	cache cache.BytesCache
	ttl   time.Duration
}

func NewCachingTokenProvider(next TokenProvider, c cache.BytesCache, ttl time.Duration) *CachingTokenProvider {
	return &CachingTokenProvider{next: next, cache: c, ttl: ttl}
}

func (p *CachingTokenProvider) GetCredential(ctx context.Context, accountID uint64) (string, error) {
	key := tokenKey(accountID)

	if p.cache != nil && p.ttl > 0 {
		// Кэш — best effort: при ошибке просто идём к провайдеру.
		if b, ok, err := p.cache.Get(ctx, key); err == nil && ok && len(b) > 0 {
			return string(b), nil
		}
	}

	tok, err := p.next.GetCredential(ctx, accountID)
	if err != nil {
		return "", err
	}

	if p.cache != nil && p.ttl > 0 {
		_ = p.cache.Set(ctx, key, []byte(tok), p.ttl)
	}
	return tok, nil
}

func tokenKey(accountID uint64) string {
	return fmt.Sprintf("meli:token:%d", accountID)
}
