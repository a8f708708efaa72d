package org

import (
	"sync"
	"time"
)

type memberKey struct {
	orgID  string
	userID string
}

type cachedRole struct {
	role      string
	expiresAt time.Time
}

// roleCache holds membership roles for a fixed TTL. An empty role records
// that the user is not a member.
type roleCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[memberKey]cachedRole
}

func newRoleCache(ttl time.Duration, now func() time.Time) *roleCache {
	if now == nil {
		now = time.Now
	}
	return &roleCache{ttl: ttl, now: now, entries: make(map[memberKey]cachedRole)}
}

func (c *roleCache) get(orgID, userID string) (string, bool) {
	if c.ttl <= 0 {
		return "", false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[memberKey{orgID, userID}]
	if !ok {
		return "", false
	}
	if !c.now().Before(e.expiresAt) {
		delete(c.entries, memberKey{orgID, userID})
		return "", false
	}
	return e.role, true
}

func (c *roleCache) put(orgID, userID, role string) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	c.entries[memberKey{orgID, userID}] = cachedRole{role: role, expiresAt: c.now().Add(c.ttl)}
	c.mu.Unlock()
}

func (c *roleCache) forget(orgID, userID string) {
	c.mu.Lock()
	delete(c.entries, memberKey{orgID, userID})
	c.mu.Unlock()
}

func (c *roleCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
