package io

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/cyverse/build-cache/commons"
	log "github.com/sirupsen/logrus"
)

const (
	// TempDirName is the work area for in-flight transactions, excluded from cleanup
	TempDirName string = ".tmp"

	defaultDirPerm os.FileMode = 0755
)

// CommitHandler receives a completion signal per committed file. err is nil on success.
type CommitHandler func(key CacheEntryKey, file *TransactionFile, err error)

// CommitResult reports per-file outcome of a commit
type CommitResult struct {
	Key       CacheEntryKey
	Committed []*TransactionFile
	Failed    map[ArtifactKind]error
}

// DiskCacheOption configures DiskCache
type DiskCacheOption func(*DiskCache)

// WithDirPerm sets the permission for shard directories
func WithDirPerm(mode os.FileMode) DiskCacheOption {
	return func(cache *DiskCache) {
		cache.dirPerm = mode
	}
}

// WithCommitHandler sets a per-file commit completion handler
func WithCommitHandler(handler CommitHandler) DiskCacheOption {
	return func(cache *DiskCache) {
		cache.commitHandler = handler
	}
}

// WithTouchOnRead enables or disables bumping access time when a file is opened for read
func WithTouchOnRead(touch bool) DiskCacheOption {
	return func(cache *DiskCache) {
		cache.touchOnRead = touch
	}
}

// DiskCache is a Backend storing cache files in a sharded directory tree
type DiskCache struct {
	rootPath      string
	tempRootPath  string
	dirPerm       os.FileMode
	touchOnRead   bool
	commitHandler CommitHandler
}

// NewDiskCache creates a new DiskCache rooted at rootPath
func NewDiskCache(rootPath string, options ...DiskCacheOption) (*DiskCache, error) {
	if len(rootPath) == 0 {
		return nil, commons.NewInvalidArgumentError("cache root path is empty")
	}

	cache := &DiskCache{
		rootPath:     rootPath,
		tempRootPath: filepath.Join(rootPath, TempDirName),
		dirPerm:      defaultDirPerm,
		touchOnRead:  true,
	}

	for _, option := range options {
		option(cache)
	}

	err := os.MkdirAll(cache.tempRootPath, cache.dirPerm)
	if err != nil {
		return nil, commons.NewIOFaultError("mkdir", cache.tempRootPath, err)
	}

	return cache, nil
}

// Release releases resources. Cache files are persistent and kept.
func (cache *DiskCache) Release() {
	logger := log.WithFields(log.Fields{
		"package":  "io",
		"struct":   "DiskCache",
		"function": "Release",
	})

	logger.Infof("Releasing disk cache at %s", cache.rootPath)
}

// GetRootPath returns the root path
func (cache *DiskCache) GetRootPath() string {
	return cache.rootPath
}

// GetTempRootPath returns the work area path for in-flight transactions
func (cache *DiskCache) GetTempRootPath() string {
	return cache.tempRootPath
}

// GetCacheFilePath returns the canonical path of a cache file
func (cache *DiskCache) GetCacheFilePath(kind ArtifactKind, key CacheEntryKey) (string, error) {
	relPath, err := MakeCacheFileRelPath(kind, key)
	if err != nil {
		return "", err
	}

	return filepath.Join(cache.rootPath, relPath), nil
}

// Stat returns info of a cache file
func (cache *DiskCache) Stat(kind ArtifactKind, key CacheEntryKey) (*EntryInfo, error) {
	path, err := cache.GetCacheFilePath(kind, key)
	if err != nil {
		return nil, err
	}

	stat, err := statFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, commons.NewNotFoundError(path)
		}
		return nil, commons.NewIOFaultError("stat", path, err)
	}

	if !stat.regular {
		return nil, commons.NewNotFoundError(path)
	}

	return &EntryInfo{
		Kind:       kind,
		Key:        key,
		Path:       path,
		Size:       stat.size,
		ModTime:    stat.modTime,
		AccessTime: stat.accessTime,
	}, nil
}

// OpenReadStream opens a cache file for read. The file is opened before returning.
func (cache *DiskCache) OpenReadStream(kind ArtifactKind, key CacheEntryKey) (*ReadStream, error) {
	logger := log.WithFields(log.Fields{
		"package":  "io",
		"struct":   "DiskCache",
		"function": "OpenReadStream",
	})

	path, err := cache.GetCacheFilePath(kind, key)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, commons.NewNotFoundError(path)
		}
		return nil, commons.NewIOFaultError("open", path, err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, commons.NewIOFaultError("stat", path, err)
	}

	if !info.Mode().IsRegular() {
		file.Close()
		return nil, commons.NewNotFoundError(path)
	}

	if cache.touchOnRead {
		// keeps LRU ordering meaningful on noatime mounts
		err = os.Chtimes(path, time.Now(), info.ModTime())
		if err != nil {
			logger.WithError(err).Debugf("failed to update access time of %s", path)
		}
	}

	return newReadStream(kind, key, path, file, info.Size()), nil
}

// BeginTransaction creates a new transaction. No disk state is allocated.
func (cache *DiskCache) BeginTransaction(key CacheEntryKey) Transaction {
	return newDiskTransaction(cache.tempRootPath, key)
}

// Commit finalizes the transaction and moves each verified file into its canonical path.
// Moves are independent; a failed move does not undo the others.
func (cache *DiskCache) Commit(ctx context.Context, txn Transaction) (*CommitResult, error) {
	logger := log.WithFields(log.Fields{
		"package":  "io",
		"struct":   "DiskCache",
		"function": "Commit",
	})

	diskTxn, ok := txn.(*DiskTransaction)
	if !ok || diskTxn.tempRootPath != cache.tempRootPath {
		return nil, commons.NewInvalidArgumentError("transaction does not belong to this cache")
	}

	key := diskTxn.GetKey()

	err := diskTxn.Finalize(ctx)
	if err != nil {
		return nil, err
	}

	result := &CommitResult{
		Key:       key,
		Committed: []*TransactionFile{},
		Failed:    map[ArtifactKind]error{},
	}

	var firstErr error
	for _, file := range diskTxn.GetFiles() {
		moveErr := cache.moveFile(file, key)
		if moveErr != nil {
			logger.WithError(moveErr).Errorf("failed to commit %s for %s", file.Kind, key.String())

			result.Failed[file.Kind] = moveErr
			if firstErr == nil {
				firstErr = moveErr
			}

			removeErr := os.Remove(file.Path)
			if removeErr != nil && !errors.Is(removeErr, fs.ErrNotExist) {
				logger.WithError(removeErr).Warnf("failed to remove temp file %s", file.Path)
			}
		} else {
			logger.Debugf("Committed %s for %s (%d bytes)", file.Kind, key.String(), file.Size)
			result.Committed = append(result.Committed, file)
		}

		if cache.commitHandler != nil {
			cache.commitHandler(key, file, moveErr)
		}
	}

	diskTxn.setCommitted()

	return result, firstErr
}

func (cache *DiskCache) moveFile(file *TransactionFile, key CacheEntryKey) error {
	targetPath, err := cache.GetCacheFilePath(file.Kind, key)
	if err != nil {
		return err
	}

	targetDir := filepath.Dir(targetPath)
	err = os.MkdirAll(targetDir, cache.dirPerm)
	if err != nil {
		return commons.NewIOFaultError("mkdir", targetDir, err)
	}

	err = os.Rename(file.Path, targetPath)
	if err != nil {
		return commons.NewIOFaultError("rename", targetPath, err)
	}

	return nil
}
