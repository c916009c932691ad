// Package cache provides the transform result cache: a sharded LRU keyed by
// (source identity, descriptor fingerprint) that coalesces concurrent
// identical computations into a single in-flight run.
package cache

import (
	"container/list"
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/opencontainers/go-digest"
	"golang.org/x/sync/singleflight"

	apperrors "github.com/pixelserve/pixelserve/errors"
)

// Key identifies one cached transform result.
type Key struct {
	Source      string
	Fingerprint digest.Digest
}

// String returns the stable map key.  Identical (source, normalized
// descriptor) pairs produce the same string across process restarts.
func (k Key) String() string { return k.Source + "#" + k.Fingerprint.String() }

// Entry is a cached transform result.  Once inserted it is owned by the
// cache; callers receive it as a read-only view and must not mutate Bytes.
type Entry struct {
	Bytes       []byte
	ContentType string
	Width       int
	Height      int
	SizeBytes   int64
	CreatedAt   time.Time

	key        string
	lastAccess time.Time
}

// Config bounds the cache.  Capacity budgets are split evenly across shards
// so eviction never takes a lock spanning unrelated keys; use a single shard
// when exact global bounds matter more than contention.
type Config struct {
	MaxBytes   int64 // total payload bytes; 0 = unbounded
	MaxEntries int   // entry count; 0 = unbounded
	Shards     int   // key-space shards; defaults to 16

	// EntryTTL expires Ready entries after a fixed lifetime; 0 = no TTL.
	EntryTTL time.Duration

	// NegativeTTL caches permanent failures briefly so a broken source is
	// not hammered; 0 disables negative caching.  Retryable failures are
	// never negative-cached.
	NegativeTTL time.Duration

	// ComputeTimeout bounds one pipeline computation.  Computations run
	// detached from waiter contexts, so this is their only deadline apart
	// from cache shutdown.
	ComputeTimeout time.Duration
}

// Outcome reports how a GetOrCompute call was served.
type Outcome int

const (
	// OutcomeComputed means this caller's computation ran.
	OutcomeComputed Outcome = iota
	// OutcomeHit means a Ready (or negative) entry was served directly.
	OutcomeHit
	// OutcomeCoalesced means the caller waited on another caller's
	// in-flight computation.
	OutcomeCoalesced
)

// Stats is a point-in-time snapshot of cache occupancy.
type Stats struct {
	Entries int
	Bytes   int64
}

type negEntry struct {
	err   error
	until time.Time
}

type shard struct {
	mu      sync.Mutex
	entries map[string]*list.Element // of *Entry
	lru     *list.List               // front = most recently used
	bytes   int64
	neg     map[string]negEntry
	group   singleflight.Group

	maxBytes   int64
	maxEntries int
}

// Cache is the result cache.  Safe for concurrent use.  Create with New and
// release with Close; Close cancels in-flight computations.
type Cache struct {
	cfg    Config
	shards []*shard

	ctx    context.Context
	cancel context.CancelFunc

	onEvict func(bytes int64) // optional observer
}

// New creates a Cache with the given bounds.
func New(cfg Config) *Cache {
	if cfg.Shards <= 0 {
		cfg.Shards = 16
	}
	perShardBytes := cfg.MaxBytes / int64(cfg.Shards)
	if cfg.MaxBytes > 0 && perShardBytes == 0 {
		perShardBytes = 1
	}
	perShardEntries := (cfg.MaxEntries + cfg.Shards - 1) / cfg.Shards
	shards := make([]*shard, cfg.Shards)
	for i := range shards {
		shards[i] = &shard{
			entries:    make(map[string]*list.Element),
			lru:        list.New(),
			neg:        make(map[string]negEntry),
			maxBytes:   perShardBytes,
			maxEntries: perShardEntries,
		}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Cache{cfg: cfg, shards: shards, ctx: ctx, cancel: cancel}
}

// OnEvict registers an observer called with the payload size of each evicted
// entry.  Call before the cache is shared across goroutines.
func (c *Cache) OnEvict(fn func(bytes int64)) { c.onEvict = fn }

// Close cancels in-flight computations.  Entries already cached remain
// readable; the cache is memory-only and dies with the process.
func (c *Cache) Close() { c.cancel() }

func (c *Cache) shard(ks string) *shard {
	h := fnv.New32a()
	h.Write([]byte(ks))
	return c.shards[int(h.Sum32())%len(c.shards)]
}

// GetOrCompute returns the Ready entry for key, or runs compute exactly once
// while concurrent callers for the same key wait on the same in-flight run.
//
// compute receives a context detached from the caller: cancelling the
// requesting context abandons the wait but the computation still completes
// and populates the cache.  A failed computation is propagated to every
// waiter and leaves no residue, so the next request retries from scratch.
func (c *Cache) GetOrCompute(ctx context.Context, key Key, compute func(ctx context.Context) (*Entry, error)) (*Entry, Outcome, error) {
	ks := key.String()
	s := c.shard(ks)

	if ent, err, ok := s.lookup(ks, time.Now(), c.cfg); ok {
		return ent, OutcomeHit, err
	}

	// singleflight marks every delivered result Shared when waiters piled up,
	// the originator's included, so the flight's ownership is tracked here:
	// only the caller whose closure actually ran did the computing.
	var ran bool
	ch := s.group.DoChan(ks, func() (interface{}, error) {
		ran = true
		// A racing caller may have stored the entry between lookup and
		// flight start.
		if ent, err, ok := s.lookup(ks, time.Now(), c.cfg); ok {
			return ent, err
		}

		cctx := c.ctx
		if c.cfg.ComputeTimeout > 0 {
			var cancel context.CancelFunc
			cctx, cancel = context.WithTimeout(cctx, c.cfg.ComputeTimeout)
			defer cancel()
		}

		ent, err := compute(cctx)
		if err != nil {
			if c.cfg.NegativeTTL > 0 && !apperrors.IsRetryable(err) {
				s.storeNegative(ks, err, time.Now().Add(c.cfg.NegativeTTL))
			}
			return nil, err
		}
		s.store(ks, ent, c.onEvict)
		return ent, nil
	})

	select {
	case res := <-ch:
		outcome := OutcomeCoalesced
		if ran {
			outcome = OutcomeComputed
		}
		if res.Err != nil {
			return nil, outcome, res.Err
		}
		return res.Val.(*Entry), outcome, nil
	case <-ctx.Done():
		// The computation keeps running and will populate the cache for
		// later callers.
		return nil, OutcomeComputed, ctx.Err()
	}
}

// Get returns the Ready entry for key without triggering a computation.
func (c *Cache) Get(key Key) (*Entry, bool) {
	ks := key.String()
	s := c.shard(ks)
	ent, err, ok := s.lookup(ks, time.Now(), c.cfg)
	if !ok || err != nil {
		return nil, false
	}
	return ent, true
}

// Remove drops the Ready entry for key, if present.  In-flight computations
// are unaffected.
func (c *Cache) Remove(key Key) {
	ks := key.String()
	s := c.shard(ks)
	s.mu.Lock()
	defer s.mu.Unlock()
	if el, ok := s.entries[ks]; ok {
		s.removeLocked(el)
	}
	delete(s.neg, ks)
}

// Stats reports current occupancy across all shards.
func (c *Cache) Stats() Stats {
	var st Stats
	for _, s := range c.shards {
		s.mu.Lock()
		st.Entries += len(s.entries)
		st.Bytes += s.bytes
		s.mu.Unlock()
	}
	return st
}

// lookup returns (entry, nil, true) on a Ready hit, (nil, err, true) on a
// negative-cache hit, and ok=false when the key is absent or expired.
func (s *shard) lookup(ks string, now time.Time, cfg Config) (*Entry, error, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ne, ok := s.neg[ks]; ok {
		if now.Before(ne.until) {
			return nil, ne.err, true
		}
		delete(s.neg, ks)
	}

	el, ok := s.entries[ks]
	if !ok {
		return nil, nil, false
	}
	ent := el.Value.(*Entry)
	if cfg.EntryTTL > 0 && now.Sub(ent.CreatedAt) > cfg.EntryTTL {
		s.removeLocked(el)
		return nil, nil, false
	}
	ent.lastAccess = now
	s.lru.MoveToFront(el)
	return ent, nil, true
}

func (s *shard) store(ks string, ent *Entry, onEvict func(int64)) {
	now := time.Now()
	ent.key = ks
	ent.SizeBytes = int64(len(ent.Bytes))
	if ent.CreatedAt.IsZero() {
		ent.CreatedAt = now
	}
	ent.lastAccess = now

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.neg, ks)
	if el, ok := s.entries[ks]; ok {
		s.removeLocked(el)
	}
	s.entries[ks] = s.lru.PushFront(ent)
	s.bytes += ent.SizeBytes

	// Evict least-recently-used Ready entries until within bounds.  Pending
	// computations live only in the flight group and are never evicted.
	for s.overLocked() {
		tail := s.lru.Back()
		if tail == nil {
			return
		}
		evicted := tail.Value.(*Entry)
		s.removeLocked(tail)
		if onEvict != nil {
			onEvict(evicted.SizeBytes)
		}
	}
}

func (s *shard) overLocked() bool {
	if s.maxBytes > 0 && s.bytes > s.maxBytes {
		return true
	}
	if s.maxEntries > 0 && len(s.entries) > s.maxEntries {
		return true
	}
	return false
}

func (s *shard) removeLocked(el *list.Element) {
	ent := el.Value.(*Entry)
	s.lru.Remove(el)
	delete(s.entries, ent.key)
	s.bytes -= ent.SizeBytes
}

func (s *shard) storeNegative(ks string, err error, until time.Time) {
	s.mu.Lock()
	s.neg[ks] = negEntry{err: err, until: until}
	s.mu.Unlock()
}
