package cog

// blockKey identifies a decoded block of one band.
type blockKey struct {
	band int
	col  int
	row  int
}

type block struct {
	vals []float64
	w, h int
}

// BlockCache keeps recently decoded blocks, evicting the oldest entry when
// full. It is owned by a single Sampler and is not safe for concurrent use;
// every worker gets its own.
type BlockCache struct {
	cache   map[blockKey]*block
	order   []blockKey
	maxSize int

	hits, misses int
}

// NewBlockCache creates a block cache with the given maximum number of entries.
func NewBlockCache(maxEntries int) *BlockCache {
	if maxEntries <= 0 {
		maxEntries = 32
	}
	return &BlockCache{
		cache:   make(map[blockKey]*block, maxEntries),
		order:   make([]blockKey, 0, maxEntries),
		maxSize: maxEntries,
	}
}

// get returns a cached block or nil.
func (bc *BlockCache) get(key blockKey) *block {
	if b, ok := bc.cache[key]; ok {
		bc.hits++
		return b
	}
	bc.misses++
	return nil
}

// put stores a block, evicting the oldest entry if full.
func (bc *BlockCache) put(key blockKey, b *block) {
	if _, ok := bc.cache[key]; ok {
		return
	}
	for len(bc.cache) >= bc.maxSize && len(bc.order) > 0 {
		oldest := bc.order[0]
		bc.order = bc.order[1:]
		delete(bc.cache, oldest)
	}
	bc.cache[key] = b
	bc.order = append(bc.order, key)
}

// Stats returns the number of cache hits and misses so far.
func (bc *BlockCache) Stats() (hits, misses int) {
	return bc.hits, bc.misses
}
