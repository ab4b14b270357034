package io

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/cyverse/build-cache/commons"
	"github.com/cyverse/build-cache/utils"
	log "github.com/sirupsen/logrus"
)

// CleanupOptions configures a cleanup pass
type CleanupOptions struct {
	// ExpireAfter is required. Files not accessed within the duration are deleted.
	ExpireAfter time.Duration
	// MaxTotalSize is a size budget in bytes for files retained after expiry. 0 means unlimited.
	MaxTotalSize int64
	// DryRun reports deletions without performing them
	DryRun bool
}

// NewDefaultCleanupOptions returns options with dry run enabled. ExpireAfter must be set.
func NewDefaultCleanupOptions() *CleanupOptions {
	return &CleanupOptions{
		ExpireAfter:  0,
		MaxTotalSize: 0,
		DryRun:       true,
	}
}

// Validate validates options
func (options *CleanupOptions) Validate() error {
	if options.ExpireAfter <= 0 {
		return commons.NewInvalidArgumentErrorf("expire duration must be a positive duration, got %s", options.ExpireAfter)
	}

	if options.MaxTotalSize < 0 {
		return commons.NewInvalidArgumentErrorf("max total size must not be negative, got %d", options.MaxTotalSize)
	}

	return nil
}

// CleanupResult is an outcome of a cleanup pass
type CleanupResult struct {
	Status CleanupStatus
	DryRun bool
	// DeletedPaths are deleted files, or files that would be deleted in dry run
	DeletedPaths []string
	DeleteErrors int
	// StaleTempPaths are abandoned temp files removed from the work area, or that would be removed in dry run
	StaleTempPaths []string
}

type cleanupItem struct {
	path       string
	size       int64
	accessTime time.Time
}

// CacheCleaner scans a cache directory tree and deletes expired or excess files.
// It holds no state between passes.
type CacheCleaner struct {
	rootPath     string
	excludePaths map[string]bool
	now          func() time.Time
}

// NewCacheCleaner creates a new CacheCleaner. Directories in excludePaths are not scanned.
func NewCacheCleaner(rootPath string, excludePaths ...string) *CacheCleaner {
	excludes := map[string]bool{}
	for _, excludePath := range excludePaths {
		excludes[filepath.Clean(excludePath)] = true
	}

	return &CacheCleaner{
		rootPath:     rootPath,
		excludePaths: excludes,
		now:          time.Now,
	}
}

// Run runs a cleanup pass.
// Retained files are held in memory for the size-budget pass, which bounds the practical store population.
func (cleaner *CacheCleaner) Run(ctx context.Context, options *CleanupOptions, handler CleanupEventHandler) (*CleanupResult, error) {
	logger := log.WithFields(log.Fields{
		"package":  "io",
		"struct":   "CacheCleaner",
		"function": "Run",
	})

	if options == nil {
		return nil, commons.NewInvalidArgumentError("cleanup options are not given")
	}

	err := options.Validate()
	if err != nil {
		return nil, err
	}

	if handler == nil {
		handler = NewNilCleanupEventHandler()
	}

	expireTime := cleaner.now().Add(-options.ExpireAfter)

	logger.Infof("Searching %s for files not accessed since %s (max total size %s, dry run %t)", cleaner.rootPath, utils.MakeTimeToString(expireTime), cleaner.sizeLimitString(options.MaxTotalSize), options.DryRun)

	status := CleanupStatus{}
	marked := []*cleanupItem{}
	retained := []*cleanupItem{}

	walkErr := filepath.WalkDir(cleaner.rootPath, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				// removed while walking
				return nil
			}
			return err
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if entry.IsDir() {
			if cleaner.excludePaths[filepath.Clean(path)] {
				return filepath.SkipDir
			}
			return nil
		}

		if !entry.Type().IsRegular() {
			return nil
		}

		stat, err := statFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}

		item := &cleanupItem{
			path:       path,
			size:       stat.size,
			accessTime: stat.accessTime,
		}

		status.ItemsSeen++
		status.CacheSize += item.size

		if item.accessTime.Before(expireTime) {
			marked = append(marked, item)
			status.DeleteCount++
			status.DeleteSize += item.size
		} else {
			retained = append(retained, item)
		}

		handler.HandleCleanupEvent(&CleanupEvent{
			Type:   CleanupEventSearchProgress,
			Status: status,
		})
		return nil
	})

	if walkErr != nil {
		if errors.Is(walkErr, context.Canceled) || errors.Is(walkErr, context.DeadlineExceeded) {
			return nil, walkErr
		}

		logger.WithError(walkErr).Errorf("failed to walk %s", cleaner.rootPath)
		return nil, commons.NewIOFaultError("walk", cleaner.rootPath, walkErr)
	}

	if options.MaxTotalSize > 0 && status.CacheSize-status.DeleteSize > options.MaxTotalSize {
		// oldest access first, walk order among equals
		sort.SliceStable(retained, func(i int, j int) bool {
			return retained[i].accessTime.Before(retained[j].accessTime)
		})

		for _, item := range retained {
			if status.CacheSize-status.DeleteSize <= options.MaxTotalSize {
				break
			}

			marked = append(marked, item)
			status.DeleteCount++
			status.DeleteSize += item.size
		}
	}

	handler.HandleCleanupEvent(&CleanupEvent{
		Type:   CleanupEventSearchFinished,
		Status: status,
	})

	logger.Infof("Found %d files (%s), %d files (%s) to delete", status.ItemsSeen, utils.MakeSizeString(status.CacheSize), status.DeleteCount, utils.MakeSizeString(status.DeleteSize))

	result := &CleanupResult{
		Status:       status,
		DryRun:       options.DryRun,
		DeletedPaths: make([]string, 0, len(marked)),
	}

	if options.DryRun {
		for _, item := range marked {
			result.DeletedPaths = append(result.DeletedPaths, item.path)
		}
	} else {
		for _, item := range marked {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return result, ctxErr
			}

			handler.HandleCleanupEvent(&CleanupEvent{
				Type:   CleanupEventDeletingItem,
				Status: status,
				Path:   item.path,
			})

			err := os.Remove(item.path)
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					continue
				}

				logger.WithError(err).Errorf("failed to delete %s", item.path)
				result.DeleteErrors++
				continue
			}

			result.DeletedPaths = append(result.DeletedPaths, item.path)
		}
	}

	handler.HandleCleanupEvent(&CleanupEvent{
		Type:   CleanupEventDeletionFinished,
		Status: status,
	})

	logger.Infof("Cleanup finished - %d files deleted, %d failures, dry run %t", len(result.DeletedPaths), result.DeleteErrors, options.DryRun)

	return result, nil
}

func (cleaner *CacheCleaner) sizeLimitString(size int64) string {
	if size <= 0 {
		return "unlimited"
	}
	return utils.MakeSizeString(size)
}

// Cleanup runs a cleanup pass over the cache tree, skipping the work area of in-flight transactions.
// Abandoned temp files in the work area are reclaimed afterwards.
func (cache *DiskCache) Cleanup(ctx context.Context, options *CleanupOptions, handler CleanupEventHandler) (*CleanupResult, error) {
	cleaner := NewCacheCleaner(cache.rootPath, cache.tempRootPath)
	result, err := cleaner.Run(ctx, options, handler)
	if err != nil {
		return result, err
	}

	err = cleaner.RemoveStaleTempFiles(ctx, cache.tempRootPath, options, result)
	if err != nil {
		return result, err
	}
	return result, nil
}

// RemoveStaleTempFiles removes files in the temp area that were not modified within options.ExpireAfter.
// Streams being written keep their mod time fresh, so only abandoned files are removed.
func (cleaner *CacheCleaner) RemoveStaleTempFiles(ctx context.Context, tempRootPath string, options *CleanupOptions, result *CleanupResult) error {
	logger := log.WithFields(log.Fields{
		"package":  "io",
		"struct":   "CacheCleaner",
		"function": "RemoveStaleTempFiles",
	})

	entries, err := os.ReadDir(tempRootPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return commons.NewIOFaultError("readdir", tempRootPath, err)
	}

	staleTime := cleaner.now().Add(-options.ExpireAfter)

	for _, entry := range entries {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if !entry.Type().IsRegular() {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		if !info.ModTime().Before(staleTime) {
			continue
		}

		path := filepath.Join(tempRootPath, entry.Name())
		if !options.DryRun {
			err = os.Remove(path)
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					continue
				}

				logger.WithError(err).Errorf("failed to delete stale temp file %s", path)
				result.DeleteErrors++
				continue
			}
		}

		result.StaleTempPaths = append(result.StaleTempPaths, path)
	}

	if len(result.StaleTempPaths) > 0 {
		logger.Infof("Found %d stale temp files, dry run %t", len(result.StaleTempPaths), options.DryRun)
	}
	return nil
}
