package archive

import (
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"golang.org/x/exp/mmap"
)

// cacheEntry holds one day file's read-only mmap plus the bookkeeping the
// eviction loop needs (spec §4.D "Cache").
type cacheEntry struct {
	reader     *mmap.ReaderAt
	lastAccess time.Time
	dirty      bool // set by Save; next Get reopens the mmap instead of reusing it
}

// mmapCache is the in-process path->mmap table. Because every write goes
// through writeDayFileAtomic (rename over the old file), "dirty" here
// means "the file on disk changed since this mmap was opened", not
// "this mmap has unflushed writes" — there never are any, by design
// (spec.md §9: no unsafe read-mapped mutation).
type mmapCache struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry
	ttl     time.Duration
	log     zerolog.Logger
}

func newMmapCache(ttl time.Duration, log zerolog.Logger) *mmapCache {
	return &mmapCache{
		entries: make(map[string]*cacheEntry),
		ttl:     ttl,
		log:     log.With().Str("component", "archive.cache").Logger(),
	}
}

// get returns the bytes of path, opening (or reopening, if marked dirty)
// the mmap on demand. A missing file returns (nil, nil): callers treat an
// absent day file as an empty one.
func (c *mmapCache) get(path string) ([]byte, error) {
	c.mu.Lock()
	entry, ok := c.entries[path]
	if ok && !entry.dirty {
		entry.lastAccess = time.Now()
		data := entry.reader.Len()
		buf := make([]byte, data)
		_, err := entry.reader.ReadAt(buf, 0)
		c.mu.Unlock()
		if err != nil {
			return nil, err
		}
		return buf, nil
	}
	c.mu.Unlock()

	reader, err := mmap.Open(path)
	if err != nil {
		return nil, nil // not yet written; treat as empty per §4.D
	}
	buf := make([]byte, reader.Len())
	if _, err := reader.ReadAt(buf, 0); err != nil && reader.Len() > 0 {
		reader.Close()
		return nil, err
	}

	c.mu.Lock()
	if old, ok := c.entries[path]; ok {
		old.reader.Close()
	}
	c.entries[path] = &cacheEntry{reader: reader, lastAccess: time.Now()}
	c.mu.Unlock()

	return buf, nil
}

// invalidate marks path dirty so the next get() reopens its mmap against
// the freshly-written file (called by Save after writeDayFileAtomic).
func (c *mmapCache) invalidate(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok := c.entries[path]; ok {
		entry.dirty = true
	}
}

// evictExpired drops (and closes) every entry whose last access is older
// than the TTL. Intended to be called periodically by a timer-driven
// goroutine (spec §5 "a timer-driven task for mmap cache eviction").
func (c *mmapCache) evictExpired(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var freed uint64
	for path, entry := range c.entries {
		if now.Sub(entry.lastAccess) > c.ttl {
			freed += uint64(entry.reader.Len())
			entry.reader.Close()
			delete(c.entries, path)
		}
	}
	if freed > 0 {
		c.log.Debug().Str("freed", humanize.Bytes(freed)).Msg("evicted expired mmap entries")
	}
}

// runEvictionLoop blocks evicting expired entries every tick until stop
// is closed. Open runs it as its own goroutine; Close closes stop.
func (c *mmapCache) runEvictionLoop(stop <-chan struct{}, tick time.Duration) {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			c.evictExpired(now)
		case <-stop:
			return
		}
	}
}

func (c *mmapCache) closeAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for path, entry := range c.entries {
		entry.reader.Close()
		delete(c.entries, path)
	}
}
