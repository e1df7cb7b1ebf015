package billing

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// paymentsCache memoizes projected payments per (school, range) snapshot.
// "now" is bucketed per minute so a cached batch never serves a stale "today".
type paymentsCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]paymentsCacheEntry
}

type paymentsCacheEntry struct {
	expiresAt time.Time
	payments  []ExpectedPayment
}

func newPaymentsCache(ttl time.Duration) *paymentsCache {
	return &paymentsCache{
		ttl:     ttl,
		entries: make(map[string]paymentsCacheEntry),
	}
}

func (c *paymentsCache) key(schoolID string, rng DateRange, now time.Time) string {
	return fmt.Sprintf("%s|%s|%s", schoolID, rng.key(), now.Truncate(time.Minute).Format(time.RFC3339))
}

func (c *paymentsCache) get(key string, now time.Time) ([]ExpectedPayment, bool) {
	if c.ttl <= 0 {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok || now.After(entry.expiresAt) {
		delete(c.entries, key)
		return nil, false
	}
	return entry.payments, true
}

func (c *paymentsCache) set(key string, now time.Time, payments []ExpectedPayment) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	// minute-bucketed keys are never queried again once their minute passes,
	// so expired entries must be swept here or they pile up forever
	for k, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, k)
		}
	}
	c.entries[key] = paymentsCacheEntry{expiresAt: now.Add(c.ttl), payments: payments}
}

// invalidate drops every cached batch of the school after a write.
func (c *paymentsCache) invalidate(schoolID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		if strings.HasPrefix(key, schoolID+"|") {
			delete(c.entries, key)
		}
	}
}
