package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/couchcryptid/phototrack/internal/domain"
)

// schemaVersion is bumped only for incompatible cache layouts. The file
// persists indefinitely across tool versions, so fields are only ever added.
const schemaVersion = 1

// ErrLockTimeout is returned when the cache lock file stays held past the
// configured bound. Flush failures are non-fatal: the run keeps its
// in-memory cache and simply skips persistence.
var ErrLockTimeout = errors.New("cache lock timeout")

// Entry is one persisted reverse-geocoding result. Center is the place's
// representative coordinate, resolved lazily the first time anonymization
// needs it.
type Entry struct {
	Place       domain.PlaceInfo   `json:"place"`
	Center      *domain.Coordinate `json:"center,omitempty"`
	RetrievedAt time.Time          `json:"retrieved_at"`
}

type cacheFile struct {
	Version int              `json:"version"`
	Entries map[string]Entry `json:"entries"`
}

// Cache is the persistent quantized-coordinate → place mapping shared across
// runs and across concurrent processes. Lookup and Store touch memory only;
// Flush is the single place that reaches disk, under an exclusive lock file
// with a read-merge-write cycle so concurrent runs never clobber each
// other's additions.
type Cache struct {
	path        string
	precision   int
	lockTimeout time.Duration
	logger      *slog.Logger

	mu      sync.Mutex
	entries map[string]Entry
	dirty   map[string]Entry
	hits    int
	misses  int
}

// OpenCache loads the persisted cache at path. A missing file starts an
// empty cache; an unreadable or future-versioned file is ignored with a
// warning rather than failing the run.
func OpenCache(path string, precision int, lockTimeout time.Duration, logger *slog.Logger) *Cache {
	entries, err := readCacheFile(path)
	if err != nil {
		logger.Warn("geocoding cache unreadable, starting fresh", "path", path, "error", err)
		entries = make(map[string]Entry)
	}
	logger.Debug("geocoding cache loaded", "path", path, "entries", len(entries))

	return &Cache{
		path:        path,
		precision:   precision,
		lockTimeout: lockTimeout,
		logger:      logger,
		entries:     entries,
		dirty:       make(map[string]Entry),
	}
}

// Lookup returns the cached entry for the coordinate's grid cell.
func (c *Cache) Lookup(coord domain.Coordinate) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[coord.Key(c.precision)]
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	return e, ok
}

// Store records an entry at the coordinate's grid cell, in memory only.
// The entry reaches disk on the next Flush.
func (c *Cache) Store(coord domain.Coordinate, e Entry) {
	if e.RetrievedAt.IsZero() {
		e.RetrievedAt = domain.Clock().Now().UTC()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	key := coord.Key(c.precision)
	c.entries[key] = e
	c.dirty[key] = e
}

// Stats returns the hit/miss counts accumulated since the cache was opened.
func (c *Cache) Stats() (hits, misses int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

// Flush persists this run's additions: acquire the lock file, re-read the
// on-disk state, merge in only keys the disk does not already have, write
// atomically, release. The re-read is the correctness mechanism against
// concurrent writers — without it one process's flush could discard
// another's.
func (c *Cache) Flush(ctx context.Context) error {
	c.mu.Lock()
	dirty := make(map[string]Entry, len(c.dirty))
	for k, v := range c.dirty {
		dirty[k] = v
	}
	c.mu.Unlock()

	if len(dirty) == 0 {
		return nil
	}

	unlock, err := c.acquireLock(ctx)
	if err != nil {
		return fmt.Errorf("acquire cache lock: %w", err)
	}
	defer unlock()

	onDisk, err := readCacheFile(c.path)
	if err != nil {
		c.logger.Warn("on-disk cache unreadable during flush, rewriting", "error", err)
		onDisk = make(map[string]Entry)
	}

	added := 0
	for k, e := range dirty {
		if _, exists := onDisk[k]; !exists {
			onDisk[k] = e
			added++
		}
	}

	if err := writeCacheFile(c.path, onDisk); err != nil {
		return fmt.Errorf("write cache: %w", err)
	}

	c.mu.Lock()
	for k := range dirty {
		delete(c.dirty, k)
	}
	c.mu.Unlock()

	c.logger.Debug("geocoding cache flushed", "added", added, "total", len(onDisk))
	return nil
}

// acquireLock creates the sibling .lock file exclusively, retrying with
// doubling backoff within the configured bound. The returned func releases
// the lock.
func (c *Cache) acquireLock(ctx context.Context) (func(), error) {
	lockPath := c.path + ".lock"
	clock := domain.Clock()
	start := clock.Now()
	backoff := 50 * time.Millisecond

	for {
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			fmt.Fprintf(f, "%d\n", os.Getpid())
			f.Close()
			return func() { os.Remove(lockPath) }, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, err
		}

		if clock.Since(start) >= c.lockTimeout {
			return nil, ErrLockTimeout
		}
		if !sleepWithContext(ctx, backoff) {
			return nil, ctx.Err()
		}
		if backoff *= 2; backoff > time.Second {
			backoff = time.Second
		}
	}
}

func readCacheFile(path string) (map[string]Entry, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return make(map[string]Entry), nil
	}
	if err != nil {
		return nil, err
	}

	var f cacheFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("unmarshal cache: %w", err)
	}
	if f.Version > schemaVersion {
		return nil, fmt.Errorf("cache schema version %d newer than supported %d", f.Version, schemaVersion)
	}
	if f.Entries == nil {
		f.Entries = make(map[string]Entry)
	}
	return f.Entries, nil
}

func writeCacheFile(path string, entries map[string]Entry) error {
	data, err := json.MarshalIndent(cacheFile{Version: schemaVersion, Entries: entries}, "", "  ")
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
