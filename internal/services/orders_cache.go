package services

import (
	"sync"
	"time"

	"github.com/niaga-platform/service-order-dashboard/internal/domain/orders"
)

// CacheEntry is one cached fetch result for a date range.
type CacheEntry struct {
	Orders       []orders.Order   `json:"orders"`
	Timestamp    time.Time        `json:"timestamp"`
	DateRange    orders.DateRange `json:"dateRange"`
	FetchedPages int              `json:"fetchedPages"`
	TotalOrders  int              `json:"totalOrders"`
}

// Age returns how old the entry is at now.
func (e *CacheEntry) Age(now time.Time) time.Duration {
	return now.Sub(e.Timestamp)
}

// OrdersCache is the in-memory orders cache keyed by date range. Entries are
// replaced wholesale and must not be mutated by callers.
type OrdersCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]*CacheEntry
}

// NewOrdersCache creates a cache whose entries are fresh for ttl.
func NewOrdersCache(ttl time.Duration, now func() time.Time) *OrdersCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	if now == nil {
		now = time.Now
	}
	return &OrdersCache{
		ttl:     ttl,
		now:     now,
		entries: make(map[string]*CacheEntry),
	}
}

// TTL returns the freshness window.
func (c *OrdersCache) TTL() time.Duration {
	return c.ttl
}

// Get returns the entry for r when it is younger than the TTL and was stored
// for exactly r.
func (c *OrdersCache) Get(r orders.DateRange) (*CacheEntry, bool) {
	return c.GetStale(r, c.ttl)
}

// GetStale returns the entry for r when it is younger than maxAge.
func (c *OrdersCache) GetStale(r orders.DateRange, maxAge time.Duration) (*CacheEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[r.Key()]
	if !ok || entry.DateRange != r {
		return nil, false
	}
	if entry.Age(c.now()) >= maxAge {
		return nil, false
	}
	return entry, true
}

// Set replaces the entry for r.
func (c *OrdersCache) Set(r orders.DateRange, list []orders.Order, fetchedPages int) *CacheEntry {
	entry := &CacheEntry{
		Orders:       list,
		Timestamp:    c.now(),
		DateRange:    r,
		FetchedPages: fetchedPages,
		TotalOrders:  len(list),
	}
	c.Put(entry)
	return entry
}

// Put stores a prebuilt entry, keeping its timestamp.
func (c *OrdersCache) Put(entry *CacheEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[entry.DateRange.Key()] = entry
}

// Invalidate drops the entry for r.
func (c *OrdersCache) Invalidate(r orders.DateRange) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, r.Key())
}

// Clear drops every entry.
func (c *OrdersCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*CacheEntry)
}

// Len returns the number of entries held.
func (c *OrdersCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
