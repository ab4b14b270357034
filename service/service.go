package service

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"github.com/cyverse/build-cache/commons"
	log "github.com/sirupsen/logrus"
)

// CacheService is a service object running periodic cleanup over the cache
type CacheService struct {
	config *commons.Config
	server *Server

	ctx        context.Context
	cancelFunc context.CancelFunc
	started    bool
	terminated bool
	waitGroup  sync.WaitGroup
	mutex      sync.Mutex // for start and termination
}

// NewCacheService creates a new cache service
func NewCacheService(config *commons.Config) (*CacheService, error) {
	logger := log.WithFields(log.Fields{
		"package":  "service",
		"function": "NewCacheService",
	})

	server, err := NewServer(NewServerConfig(config))
	if err != nil {
		logger.WithError(err).Error("failed to create a new server")
		return nil, err
	}

	ctx, cancelFunc := context.WithCancel(context.Background())

	return &CacheService{
		config: config,
		server: server,

		ctx:        ctx,
		cancelFunc: cancelFunc,
	}, nil
}

// GetServer returns the server
func (svc *CacheService) GetServer() *Server {
	return svc.server
}

// Start starts the periodic cleanup. It returns immediately.
func (svc *CacheService) Start() error {
	logger := log.WithFields(log.Fields{
		"package":  "service",
		"struct":   "CacheService",
		"function": "Start",
	})

	svc.mutex.Lock()
	defer svc.mutex.Unlock()

	if svc.terminated {
		return NewServiceTerminatedError()
	}

	if svc.started {
		return nil
	}

	svc.started = true

	logger.Infof("Starting the build cache service at %s", svc.config.CacheRootPath)

	if svc.config.CleanupInterval <= 0 {
		logger.Info("Periodic cleanup is disabled")
		return nil
	}

	svc.waitGroup.Add(1)
	go func() {
		defer svc.waitGroup.Done()

		ticker := time.NewTicker(svc.config.CleanupInterval)
		defer ticker.Stop()

		for {
			select {
			case <-svc.ctx.Done():
				// terminate
				return
			case <-ticker.C:
				svc.runCleanup()
			}
		}
	}()

	return nil
}

func (svc *CacheService) runCleanup() {
	logger := log.WithFields(log.Fields{
		"package":  "service",
		"struct":   "CacheService",
		"function": "runCleanup",
	})

	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("stacktrace from panic: %s", string(debug.Stack()))
			logger.Error(r)
		}
	}()

	reporter := NewLogCleanupReporter(CleanupReportIntervalDefault)

	_, err := svc.server.Cleanup(svc.ctx, nil, reporter)
	if err != nil {
		if IsCleanupInProgressError(err) {
			logger.Info("Skipping cleanup, previous pass is still running")
			return
		}

		logger.WithError(err).Error("failed to run periodic cleanup")
	}
}

// RunCleanup runs one cleanup pass immediately with the service config
func (svc *CacheService) RunCleanup() error {
	reporter := NewLogCleanupReporter(CleanupReportIntervalDefault)

	_, err := svc.server.Cleanup(svc.ctx, nil, reporter)
	return err
}

// Stop stops the periodic cleanup and cancels a running pass
func (svc *CacheService) Stop() {
	logger := log.WithFields(log.Fields{
		"package":  "service",
		"struct":   "CacheService",
		"function": "Stop",
	})

	svc.mutex.Lock()
	defer svc.mutex.Unlock()

	if svc.terminated {
		// already terminated
		return
	}

	svc.terminated = true

	logger.Info("Stopping the build cache service")
	svc.cancelFunc()
	svc.waitGroup.Wait()
}

// Release releases all resources
func (svc *CacheService) Release() {
	svc.Stop()

	if svc.server != nil {
		svc.server.Release()
	}
}
