package preview

import (
	"bytes"
	"fmt"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultDecodeCacheSize = 16

// DecodeCache keeps recent TIFF decode results keyed by content digest, so
// switching back to a document does not decode it again. A nil cache is
// valid and never hits.
type DecodeCache struct {
	entries *lru.Cache[uint64, decodeEntry]
}

// decodeEntry keeps the length and a prefix of the source to rule out
// digest collisions between different documents.
type decodeEntry struct {
	size   int
	prefix []byte
	result *DecodeResult
}

const cachePrefixLen = 64

// NewDecodeCache creates a cache holding up to size documents.
func NewDecodeCache(size int) (*DecodeCache, error) {
	if size <= 0 {
		size = defaultDecodeCacheSize
	}
	entries, err := lru.New[uint64, decodeEntry](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create decode cache: %w", err)
	}
	return &DecodeCache{entries: entries}, nil
}

// Get returns the cached result for data.
func (c *DecodeCache) Get(data []byte) (*DecodeResult, bool) {
	if c == nil {
		return nil, false
	}
	entry, ok := c.entries.Get(xxhash.Sum64(data))
	if !ok || entry.size != len(data) || !bytes.HasPrefix(data, entry.prefix) {
		return nil, false
	}
	return entry.result, true
}

// Add stores result for data. Results are shared between sessions and must
// not be mutated.
func (c *DecodeCache) Add(data []byte, result *DecodeResult) {
	if c == nil {
		return
	}
	n := min(len(data), cachePrefixLen)
	c.entries.Add(xxhash.Sum64(data), decodeEntry{
		size:   len(data),
		prefix: bytes.Clone(data[:n]),
		result: result,
	})
}

// Len returns the number of cached documents.
func (c *DecodeCache) Len() int {
	if c == nil {
		return 0
	}
	return c.entries.Len()
}

// Purge drops every cached result.
func (c *DecodeCache) Purge() {
	if c == nil {
		return
	}
	c.entries.Purge()
}
