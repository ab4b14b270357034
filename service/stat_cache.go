package service

import (
	"time"

	"github.com/cyverse/build-cache/service/io"
	gocache "github.com/patrickmn/go-cache"
)

// StatCache keeps recent stat results of cache files
type StatCache struct {
	cacheTimeout   time.Duration
	cleanupTimeout time.Duration
	entryCache     *gocache.Cache
}

// NewStatCache creates a new StatCache
func NewStatCache(cacheTimeout time.Duration, cleanup time.Duration) *StatCache {
	return &StatCache{
		cacheTimeout:   cacheTimeout,
		cleanupTimeout: cleanup,
		entryCache:     gocache.New(cacheTimeout, cleanup),
	}
}

func (cache *StatCache) makeCacheKey(kind io.ArtifactKind, key io.CacheEntryKey) string {
	return key.String() + "." + kind.Extension()
}

// AddEntryCache adds an entry cache
func (cache *StatCache) AddEntryCache(entry *io.EntryInfo) {
	cache.entryCache.Set(cache.makeCacheKey(entry.Kind, entry.Key), entry, 0)
}

// RemoveEntryCache removes an entry cache
func (cache *StatCache) RemoveEntryCache(kind io.ArtifactKind, key io.CacheEntryKey) {
	cache.entryCache.Delete(cache.makeCacheKey(kind, key))
}

// GetEntryCache retrieves an entry cache
func (cache *StatCache) GetEntryCache(kind io.ArtifactKind, key io.CacheEntryKey) *io.EntryInfo {
	entry, exist := cache.entryCache.Get(cache.makeCacheKey(kind, key))
	if exist {
		if info, ok := entry.(*io.EntryInfo); ok {
			return info
		}
	}
	return nil
}

// ClearEntryCache clears all entry caches
func (cache *StatCache) ClearEntryCache() {
	cache.entryCache.Flush()
}

// GetEntryCount returns the number of cached entries
func (cache *StatCache) GetEntryCount() int {
	return cache.entryCache.ItemCount()
}
