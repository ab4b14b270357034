package service

import (
	"context"
	"os"
	"runtime/debug"
	"sync"

	"github.com/cyverse/build-cache/commons"
	"github.com/cyverse/build-cache/service/io"
	log "github.com/sirupsen/logrus"
)

// Server serves cache operations over a backend
type Server struct {
	config *ServerConfig

	backend   io.Backend
	statCache *StatCache

	cleanupMutex      sync.Mutex // held while a cleanup pass runs
	lastCleanupResult *io.CleanupResult
	mutex             sync.RWMutex // mutex to access lastCleanupResult
}

// NewServer creates a new Server with a disk cache backend
func NewServer(config *ServerConfig) (*Server, error) {
	logger := log.WithFields(log.Fields{
		"package":  "service",
		"function": "NewServer",
	})

	diskCache, err := io.NewDiskCache(config.CacheRootPath, io.WithCommitHandler(logCommittedFile))
	if err != nil {
		logger.WithError(err).Errorf("failed to create a disk cache at %s", config.CacheRootPath)
		return nil, err
	}

	return NewServerWithBackend(config, diskCache), nil
}

// NewServerWithBackend creates a new Server with the given backend
func NewServerWithBackend(config *ServerConfig, backend io.Backend) *Server {
	var statCache *StatCache
	if config.StatCacheTimeout > 0 {
		cleanupTime := config.StatCacheCleanupTime
		if cleanupTime <= 0 {
			cleanupTime = commons.StatCacheCleanupTimeDefault
		}
		statCache = NewStatCache(config.StatCacheTimeout, cleanupTime)
	}

	return &Server{
		config: config,

		backend:   backend,
		statCache: statCache,
	}
}

func logCommittedFile(key io.CacheEntryKey, file *io.TransactionFile, err error) {
	logger := log.WithFields(log.Fields{
		"package":  "service",
		"function": "logCommittedFile",
	})

	if err != nil {
		logger.WithError(err).Warnf("Failed to commit %s for %s", file.Kind, key.String())
		return
	}

	logger.Infof("Committed %s for %s (%d bytes)", file.Kind, key.String(), file.Size)
}

// Release releases resources
func (server *Server) Release() {
	logger := log.WithFields(log.Fields{
		"package":  "service",
		"struct":   "Server",
		"function": "Release",
	})

	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("stacktrace from panic: %s", string(debug.Stack()))
			logger.Panic(r)
		}
	}()

	logger.Info("Release")
	defer logger.Info("Released")

	if server.statCache != nil {
		server.statCache.ClearEntryCache()
	}

	if server.backend != nil {
		server.backend.Release()
	}
}

// GetBackend returns the backend
func (server *Server) GetBackend() io.Backend {
	return server.backend
}

// isEntryUnchanged checks a cached entry against the file on disk.
// Files can be deleted or replaced by other processes sharing the cache root.
func isEntryUnchanged(entry *io.EntryInfo) bool {
	stat, err := os.Lstat(entry.Path)
	if err != nil {
		return false
	}

	return stat.Mode().IsRegular() && stat.Size() == entry.Size && stat.ModTime().Equal(entry.ModTime)
}

// Stat returns info of a cache file.
// Cached results are re-checked against the file so a deleted file is never reported.
func (server *Server) Stat(kind io.ArtifactKind, key io.CacheEntryKey) (*io.EntryInfo, error) {
	promCounterForStat.Inc()

	if server.statCache != nil {
		entry := server.statCache.GetEntryCache(kind, key)
		if entry != nil && isEntryUnchanged(entry) {
			promCounterForStatCacheHit.Inc()
			info := *entry
			return &info, nil
		}

		if entry != nil {
			server.statCache.RemoveEntryCache(kind, key)
		}
		promCounterForStatCacheMiss.Inc()
	}

	entry, err := server.backend.Stat(kind, key)
	if err != nil {
		if commons.IsNotFoundError(err) {
			promCounterForNotFound.Inc()
		}
		return nil, err
	}

	if server.statCache != nil {
		cached := *entry
		server.statCache.AddEntryCache(&cached)
	}

	return entry, nil
}

// OpenReadStream opens a cache file for read
func (server *Server) OpenReadStream(kind io.ArtifactKind, key io.CacheEntryKey) (*io.ReadStream, error) {
	promCounterForRead.Inc()

	stream, err := server.backend.OpenReadStream(kind, key)
	if err != nil {
		if commons.IsNotFoundError(err) {
			promCounterForNotFound.Inc()

			if server.statCache != nil {
				server.statCache.RemoveEntryCache(kind, key)
			}
		}
		return nil, err
	}

	return stream, nil
}

// BeginTransaction begins a transaction for a cache entry
func (server *Server) BeginTransaction(key io.CacheEntryKey) io.Transaction {
	promCounterForTransactions.Inc()

	return server.backend.BeginTransaction(key)
}

// Commit commits the transaction. Stat caches for the entry are invalidated.
func (server *Server) Commit(ctx context.Context, txn io.Transaction) (*io.CommitResult, error) {
	logger := log.WithFields(log.Fields{
		"package":  "service",
		"struct":   "Server",
		"function": "Commit",
	})

	promCounterForCommit.Inc()

	result, err := server.backend.Commit(ctx, txn)

	if server.statCache != nil {
		for _, kind := range io.GetArtifactKinds() {
			server.statCache.RemoveEntryCache(kind, txn.GetKey())
		}
	}

	if result == nil {
		promCounterForCommitFailures.Inc()
		logger.WithError(err).Errorf("failed to commit a transaction for %s", txn.GetKey().String())
		return nil, err
	}

	collectCommitMetrics(result)
	return result, err
}

// NewCleanupOptions returns cleanup options from the server config
func (server *Server) NewCleanupOptions() *io.CleanupOptions {
	options := io.NewDefaultCleanupOptions()
	options.ExpireAfter = server.config.CleanupExpireAfter
	options.MaxTotalSize = server.config.CleanupMaxTotalSize
	options.DryRun = server.config.CleanupDryRun
	return options
}

// Cleanup runs a cleanup pass. Passes do not overlap; a second caller gets CleanupInProgressError.
// Nil options use the server config.
func (server *Server) Cleanup(ctx context.Context, options *io.CleanupOptions, handler io.CleanupEventHandler) (*io.CleanupResult, error) {
	logger := log.WithFields(log.Fields{
		"package":  "service",
		"struct":   "Server",
		"function": "Cleanup",
	})

	if !server.cleanupMutex.TryLock() {
		return nil, NewCleanupInProgressError()
	}
	defer server.cleanupMutex.Unlock()

	if options == nil {
		options = server.NewCleanupOptions()
	}

	promCounterForCleanupRuns.Inc()
	promGaugeForCleanupRunning.Set(1)
	defer promGaugeForCleanupRunning.Set(0)

	handlers := NewMultiCleanupEventHandler(NewPrometheusCleanupReporter(), handler)

	result, err := server.backend.Cleanup(ctx, options, handlers)
	if err != nil {
		logger.WithError(err).Error("failed to cleanup cache")
	}

	if result != nil {
		if !result.DryRun && server.statCache != nil {
			server.statCache.ClearEntryCache()
		}

		collectCleanupMetrics(result)

		server.mutex.Lock()
		server.lastCleanupResult = result
		server.mutex.Unlock()
	}

	return result, err
}

// GetLastCleanupResult returns the result of the last cleanup pass, nil if none ran
func (server *Server) GetLastCleanupResult() *io.CleanupResult {
	server.mutex.RLock()
	defer server.mutex.RUnlock()

	return server.lastCleanupResult
}
