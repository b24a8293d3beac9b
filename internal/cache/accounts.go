// Package cache holds short-lived in-process caches.
package cache

import (
	"time"

	"github.com/DukeRupert/qrapi/internal/domain"
	gocache "github.com/patrickmn/go-cache"
)

// AccountCache maps credential hashes to accounts for a bounded time.
// Entries are copies; callers may not mutate what they receive.
type AccountCache struct {
	c *gocache.Cache
}

// NewAccountCache creates a cache whose entries expire after ttl. A zero ttl
// disables caching.
func NewAccountCache(ttl time.Duration) *AccountCache {
	if ttl <= 0 {
		return &AccountCache{}
	}
	return &AccountCache{c: gocache.New(ttl, 2*ttl)}
}

// Get returns the cached account for a credential hash.
func (a *AccountCache) Get(hash string) (*domain.Account, bool) {
	if a == nil || a.c == nil {
		return nil, false
	}
	v, ok := a.c.Get(hash)
	if !ok {
		return nil, false
	}
	acct := v.(domain.Account)
	return &acct, true
}

// Set stores an account under its credential hash.
func (a *AccountCache) Set(acct *domain.Account) {
	if a == nil || a.c == nil || acct == nil {
		return
	}
	a.c.SetDefault(acct.CredentialHash, *acct)
}

// Delete evicts a credential hash.
func (a *AccountCache) Delete(hash string) {
	if a == nil || a.c == nil {
		return
	}
	a.c.Delete(hash)
}
