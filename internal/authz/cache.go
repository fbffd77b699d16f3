// Parley - Real-time Room Messaging Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

package authz

import (
	"sync"
	"time"
)

type decisionKey struct {
	role   string
	action string
}

type decision struct {
	allowed   bool
	expiresAt time.Time
}

// decisionCache memoizes role/action decisions. The key space is the small
// product of roles and actions, so expired entries are overwritten in place
// rather than swept.
type decisionCache struct {
	ttl   time.Duration
	now   func() time.Time
	mu    sync.RWMutex
	items map[decisionKey]decision
}

func newDecisionCache(ttl time.Duration) *decisionCache {
	return &decisionCache{
		ttl:   ttl,
		now:   time.Now,
		items: make(map[decisionKey]decision),
	}
}

func (c *decisionCache) get(role, action string) (allowed, ok bool) {
	c.mu.RLock()
	d, found := c.items[decisionKey{role, action}]
	c.mu.RUnlock()

	if !found {
		AuthzCacheMissesTotal.Inc()
		return false, false
	}
	if c.now().After(d.expiresAt) {
		AuthzCacheMissesTotal.Inc()
		return false, false
	}
	AuthzCacheHitsTotal.Inc()
	return d.allowed, true
}

func (c *decisionCache) set(role, action string, allowed bool) {
	c.mu.Lock()
	c.items[decisionKey{role, action}] = decision{allowed: allowed, expiresAt: c.now().Add(c.ttl)}
	size := len(c.items)
	c.mu.Unlock()
	AuthzCacheSize.Set(float64(size))
}

func (c *decisionCache) clear() {
	c.mu.Lock()
	c.items = make(map[decisionKey]decision)
	c.mu.Unlock()
	AuthzCacheSize.Set(0)
	AuthzCacheInvalidationsTotal.Inc()
}

func (c *decisionCache) size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
