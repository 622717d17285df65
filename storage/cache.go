package storage

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// Cache is the per-invocation instance cache spec section 9 requires: reads
// made during one transaction are served from an LRU after their first KV
// hit, writes are buffered and applied to the underlying KV write-through on
// Commit, and the whole buffer (and any cached reads) is dropped on Abort so
// a rolled-back transaction never leaks state into the next one.
type Cache struct {
	kv      KV
	reads   *lru.Cache[string, []byte]
	pending map[string][]byte
	deleted map[string]struct{}
}

const defaultCacheSize = 1024

// NewCache wraps kv with a fresh per-transaction instance cache.
func NewCache(kv KV) *Cache {
	reads, err := lru.New[string, []byte](defaultCacheSize)
	if err != nil {
		// Only returns an error for a non-positive size, which defaultCacheSize never is.
		panic(err)
	}
	return &Cache{
		kv:      kv,
		reads:   reads,
		pending: make(map[string][]byte),
		deleted: make(map[string]struct{}),
	}
}

// Get resolves key from the pending write buffer, then the read cache, then
// falls through to the underlying KV, populating the read cache on a hit.
func (c *Cache) Get(key string) ([]byte, bool, error) {
	if _, gone := c.deleted[key]; gone {
		return nil, false, nil
	}
	if v, ok := c.pending[key]; ok {
		return append([]byte(nil), v...), true, nil
	}
	if v, ok := c.reads.Get(key); ok {
		return append([]byte(nil), v...), true, nil
	}
	v, ok, err := c.kv.Get(key)
	if err != nil || !ok {
		return nil, ok, err
	}
	c.reads.Add(key, v)
	return v, true, nil
}

// Set buffers a write; it is not visible to the underlying KV until Commit.
func (c *Cache) Set(key string, value []byte) {
	delete(c.deleted, key)
	cp := append([]byte(nil), value...)
	c.pending[key] = cp
	c.reads.Add(key, cp)
}

// Delete buffers a deletion; it is not visible to the underlying KV until Commit.
func (c *Cache) Delete(key string) {
	delete(c.pending, key)
	c.reads.Remove(key)
	c.deleted[key] = struct{}{}
}

// Commit applies every buffered deletion and then every buffered write to
// the underlying KV. A key is never in both sets (Set and Delete each clear
// the other), so each key ends in its last buffered state; the order of the
// KV calls within each set is not defined.
func (c *Cache) Commit() error {
	for key := range c.deleted {
		if err := c.kv.Delete(key); err != nil {
			return err
		}
	}
	for key, value := range c.pending {
		if err := c.kv.Set(key, value); err != nil {
			return err
		}
	}
	c.pending = make(map[string][]byte)
	c.deleted = make(map[string]struct{})
	return nil
}

// Abort discards every buffered write, deletion, and cached read without
// touching the underlying KV.
func (c *Cache) Abort() {
	c.pending = make(map[string][]byte)
	c.deleted = make(map[string]struct{})
	c.reads.Purge()
}
