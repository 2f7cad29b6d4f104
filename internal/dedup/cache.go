// Package dedup implements the in-process duplicate-suppression and
// idempotent-delivery cache.
//
// The cache tracks three things per request fingerprint:
//   - when the fingerprint was first seen (request records),
//   - when it was last fully processed (processed records),
//   - which recipients have already been sent mail for it (recipient sets).
//
// All three share one rolling window and are evicted together by Sweep, so a
// recipient set never outlives the records that give it meaning.
//
// The cache is single-process and in-memory: it does not survive restarts and
// is not shared between replicas.
package dedup

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/tbourn/go-quote-backend/internal/fingerprint"
)

// DefaultWindow is the duplicate/processed window used when none is given.
const DefaultWindow = 15 * time.Second

// Status is the result of CheckAndMarkInFlight.
type Status struct {
	// InFlight is true when the fingerprint was already seen within the window.
	InFlight bool
	// Processed is true when the fingerprint finished processing within the window.
	Processed bool
}

// Duplicate reports whether the caller should skip reprocessing.
func (s Status) Duplicate() bool { return s.InFlight || s.Processed }

// Stats is a point-in-time view of the cache sizes.
type Stats struct {
	Requests      int
	Processed     int
	RecipientSets int
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock overrides the time source. Tests use it to advance time without
// sleeping.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// Cache is safe for concurrent use.
type Cache struct {
	window time.Duration
	now    func() time.Time

	mu         sync.Mutex
	requests   map[fingerprint.Fingerprint]time.Time
	processed  map[fingerprint.Fingerprint]time.Time
	recipients map[fingerprint.Fingerprint]map[string]struct{}
}

// New constructs a Cache with the given window. A non-positive window falls
// back to DefaultWindow.
func New(window time.Duration, opts ...Option) *Cache {
	if window <= 0 {
		window = DefaultWindow
	}
	c := &Cache{
		window:     window,
		now:        time.Now,
		requests:   make(map[fingerprint.Fingerprint]time.Time),
		processed:  make(map[fingerprint.Fingerprint]time.Time),
		recipients: make(map[fingerprint.Fingerprint]map[string]struct{}),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Window returns the configured duplicate window.
func (c *Cache) Window() time.Duration { return c.window }

// CheckAndMarkInFlight records a sighting of fp and reports whether it is a
// duplicate.
//
// A request record inside the window marks the call as in flight and keeps
// its original timestamp; otherwise a fresh record is stored. The processed
// record is consulted independently. An expired processed record is dropped
// together with its recipient set; the recipient set of a released cycle that
// never completed is kept, so a retry does not mail those addresses again.
//
// The request record expires with the window even while its attempt is still
// sending, so a retry after that point runs alongside the first attempt.
func (c *Cache) CheckAndMarkInFlight(fp fingerprint.Fingerprint) Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	var st Status
	if ts, ok := c.requests[fp]; ok && c.live(ts, now) {
		st.InFlight = true
	} else {
		c.requests[fp] = now
	}
	if ts, ok := c.processed[fp]; ok && c.live(ts, now) {
		st.Processed = true
	}
	if ts, ok := c.processed[fp]; ok && !c.live(ts, now) {
		// A completed cycle has expired; its recipients start over.
		delete(c.processed, fp)
		delete(c.recipients, fp)
	}
	checksTotal.WithLabelValues(outcome(st)).Inc()
	return st
}

// RecipientsPending returns the candidates that have not yet been sent mail
// for fp, in input order. Addresses compare case-insensitively after
// trimming; repeated candidates are returned once.
func (c *Cache) RecipientsPending(fp fingerprint.Fingerprint, candidates []string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	set := c.recipientSetLocked(fp)
	out := make([]string, 0, len(candidates))
	seen := make(map[string]struct{}, len(candidates))
	for _, addr := range candidates {
		key := NormalizeAddress(addr)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		if _, sent := set[key]; sent {
			continue
		}
		out = append(out, strings.TrimSpace(addr))
	}
	return out
}

// MarkSent records that address has been sent mail for fp. Repeated calls are
// no-ops.
func (c *Cache) MarkSent(fp fingerprint.Fingerprint, address string) {
	key := NormalizeAddress(address)
	if key == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recipientSetLocked(fp)[key] = struct{}{}
}

// SentCount returns how many recipients have been recorded for fp.
func (c *Cache) SentCount(fp fingerprint.Fingerprint) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.recipients[fp])
}

// MarkProcessed upserts the processed record for fp with the current time.
func (c *Cache) MarkProcessed(fp fingerprint.Fingerprint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.processed[fp] = c.now()
}

// Release forgets the in-flight sighting of fp so that a retry inside the
// window is processed again. It is used when processing failed before any
// side effect landed. A non-empty recipient set is left to Sweep.
func (c *Cache) Release(fp fingerprint.Fingerprint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.requests, fp)
	if _, processed := c.processed[fp]; processed {
		return
	}
	if len(c.recipients[fp]) == 0 {
		delete(c.recipients, fp)
	}
}

// Sweep evicts every record older than the window, using a single clock read
// for the whole pass. A recipient set is removed once neither a live request
// record nor a live processed record remains for its fingerprint. It returns
// the number of entries removed.
func (c *Cache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for fp, ts := range c.requests {
		if !c.live(ts, now) {
			delete(c.requests, fp)
			removed++
		}
	}
	for fp, ts := range c.processed {
		if !c.live(ts, now) {
			delete(c.processed, fp)
			removed++
		}
	}
	for fp := range c.recipients {
		_, req := c.requests[fp]
		_, done := c.processed[fp]
		if !req && !done {
			delete(c.recipients, fp)
			removed++
		}
	}

	evictionsTotal.Add(float64(removed))
	entries.WithLabelValues("requests").Set(float64(len(c.requests)))
	entries.WithLabelValues("processed").Set(float64(len(c.processed)))
	entries.WithLabelValues("recipients").Set(float64(len(c.recipients)))
	return removed
}

// Run sweeps every interval until ctx is cancelled. It blocks; start it in
// its own goroutine.
func (c *Cache) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			c.Sweep()
		}
	}
}

// Stats returns the current number of entries in each map.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Requests:      len(c.requests),
		Processed:     len(c.processed),
		RecipientSets: len(c.recipients),
	}
}

// NormalizeAddress returns the comparison key for an email address.
func NormalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// live reports whether ts is still inside the window at now.
func (c *Cache) live(ts, now time.Time) bool {
	return now.Sub(ts) <= c.window
}

func (c *Cache) recipientSetLocked(fp fingerprint.Fingerprint) map[string]struct{} {
	set, ok := c.recipients[fp]
	if !ok {
		set = make(map[string]struct{})
		c.recipients[fp] = set
	}
	return set
}

func outcome(st Status) string {
	switch {
	case st.Processed:
		return "processed"
	case st.InFlight:
		return "in_flight"
	default:
		return "fresh"
	}
}
