package io

import (
	"context"
	"time"
)

// EntryInfo is a stat result of a cache file
type EntryInfo struct {
	Kind       ArtifactKind
	Key        CacheEntryKey
	Path       string
	Size       int64
	ModTime    time.Time
	AccessTime time.Time
}

// Transaction accumulates artifact streams for a single cache entry
type Transaction interface {
	GetKey() CacheEntryKey
	GetState() TransactionState

	OpenWriteStream(kind ArtifactKind, declaredSize int64) (*WriteStream, error)
	Finalize(ctx context.Context) error
	GetFiles() []*TransactionFile
	Abort() error
}

// Backend is a cache storage backend
type Backend interface {
	Release()

	GetRootPath() string

	Stat(kind ArtifactKind, key CacheEntryKey) (*EntryInfo, error)
	OpenReadStream(kind ArtifactKind, key CacheEntryKey) (*ReadStream, error)
	BeginTransaction(key CacheEntryKey) Transaction
	Commit(ctx context.Context, txn Transaction) (*CommitResult, error)

	Cleanup(ctx context.Context, options *CleanupOptions, handler CleanupEventHandler) (*CleanupResult, error)
}
