// Package blobcache caches decoded geometries across a single CLI batch run,
// keyed by the blake3 digest of the source BLOB bytes so that identical
// payloads (common in bulk exports with repeated geometries) are decoded
// once. It wraps core/cache's generic size-bounded LRU cache rather than
// re-implementing expiration and eviction bookkeeping.
package blobcache

import (
	"encoding/hex"
	"time"

	"github.com/twpayne/go-geom"
	"github.com/zeebo/blake3"

	"github.com/quadrant-gis/spatialite-blob/core/cache"
)

// DefaultTTL bounds how long a decoded geometry stays cached before a CLI
// batch run is expected to have moved on to the next one.
const DefaultTTL = 10 * time.Minute

// DefaultMaxBytes bounds the cache's total estimated geometry size. A batch
// export over a table with a handful of huge polygons shouldn't be able to
// grow the cache without limit just because each individual geometry is
// still "new" by the entry-count LRU policy.
const DefaultMaxBytes = 64 << 20 // 64 MiB

// DecodeCache memoizes geom.T values decoded from raw BLOB bytes.
type DecodeCache struct {
	entries cache.Cache[string, geom.T]
}

// estimateBytes approximates a decoded geometry's memory footprint from its
// flat ordinate slice, which dominates the cost for anything but a bare
// Point: 8 bytes per float64 ordinate plus the go-geom wrapper overhead.
func estimateBytes(g geom.T) int64 {
	const wrapperOverhead = 64
	return int64(len(g.FlatCoords()))*8 + wrapperOverhead
}

// New creates a DecodeCache with the given per-entry TTL and a byte budget
// of maxBytes (0 = unlimited), backed by core/cache's size-bounded LRU so a
// run with a few oversized geometries can't starve the cache of entries.
func New(ttl time.Duration, maxBytes int64) *DecodeCache {
	return &DecodeCache{
		entries: cache.NewBoundedCache[string, geom.T](cache.Config{TTL: ttl}, maxBytes, estimateBytes),
	}
}

// Key returns the blake3 digest of blob, hex-encoded, for use as a cache key.
// Two byte-identical BLOBs (common when a source table repeats a geometry
// across rows) hash to the same key regardless of where they came from.
func Key(blob []byte) string {
	sum := blake3.Sum256(blob)
	return hex.EncodeToString(sum[:])
}

// Get returns the cached decode result for key, if present and unexpired.
func (c *DecodeCache) Get(key string) (geom.T, bool) {
	return c.entries.Get(key)
}

// Put records the decode result for key.
func (c *DecodeCache) Put(key string, g geom.T) {
	c.entries.Put(key, g)
}

// GetOrDecode returns the cached geometry for blob's hash, decoding with
// decode and caching the result on a miss.
func (c *DecodeCache) GetOrDecode(blob []byte, decode func([]byte) (geom.T, error)) (geom.T, error) {
	key := Key(blob)
	if g, ok := c.Get(key); ok {
		return g, nil
	}
	g, err := decode(blob)
	if err != nil {
		return nil, err
	}
	c.Put(key, g)
	return g, nil
}

// Invalidate clears the cache, forcing the next lookup to miss.
func (c *DecodeCache) Invalidate() {
	c.entries.Clear()
}

// Len returns the number of cached entries.
func (c *DecodeCache) Len() int {
	return c.entries.Len()
}

// Stats exposes the underlying LRU cache's hit/miss/eviction counters, for
// a CLI run that wants to report cache effectiveness (e.g. "dump" deciding
// whether --filter is worth combining with a larger TTL).
func (c *DecodeCache) Stats() cache.Stats {
	return c.entries.Stats()
}
