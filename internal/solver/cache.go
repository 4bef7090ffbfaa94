package solver

import (
	"github.com/pbnjay/memory"
	"github.com/rs/zerolog/log"

	"github.com/igrek51/connect4solver/internal/game"
)

// approxEntryBytes is a rough per-entry cost of the map: key string,
// header, outcome and bucket overhead for a standard board.
const approxEntryBytes = 96

type CacheStats struct {
	Hits    uint64 `json:"hits"`
	Misses  uint64 `json:"misses"`
	Stores  uint64 `json:"stores"`
	Skipped uint64 `json:"skipped"`
}

// Cache maps positions to outcomes already proven for one perspective
// player. Entries are written once and never evicted. It is not safe for
// concurrent use.
type Cache struct {
	perspective game.Player
	maxEntries  int
	entries     map[string]Outcome
	stats       CacheStats
}

// NewCache creates a cache for the given perspective. maxEntries <= 0
// means unbounded; once a bounded cache is full, further stores are
// skipped.
func NewCache(perspective game.Player, maxEntries int) *Cache {
	return &Cache{
		perspective: perspective,
		maxEntries:  maxEntries,
		entries:     make(map[string]Outcome),
	}
}

// MaxEntriesForMemory sizes a cache to a fraction of system memory.
func MaxEntriesForMemory(fraction float64) int {
	if fraction <= 0 {
		return 0
	}
	total := memory.TotalMemory()
	n := int(fraction * float64(total) / approxEntryBytes)
	log.Debug().
		Uint64("total-system-memory-bytes", total).
		Float64("fraction", fraction).
		Int("max-entries", n).
		Msg("transposition-cache-size")
	return n
}

func (c *Cache) Perspective() game.Player {
	return c.perspective
}

func (c *Cache) Lookup(key string) (Outcome, bool) {
	o, ok := c.entries[key]
	if ok {
		c.stats.Hits++
	} else {
		c.stats.Misses++
	}
	return o, ok
}

// Store records o for key unless the key is already known, o is not a
// result or the cache is full. It reports whether the entry was written.
func (c *Cache) Store(key string, o Outcome) bool {
	if !o.Valid() {
		return false
	}
	if _, ok := c.entries[key]; ok {
		return false
	}
	if c.maxEntries > 0 && len(c.entries) >= c.maxEntries {
		c.stats.Skipped++
		return false
	}
	c.entries[key] = o
	c.stats.Stores++
	return true
}

func (c *Cache) Len() int {
	return len(c.entries)
}

func (c *Cache) Stats() CacheStats {
	return c.stats
}

// positionKey identifies a position by its cells and the side to move.
func positionKey(b *game.Board, mover game.Player) string {
	return b.Key() + string(rune('0'+mover))
}
