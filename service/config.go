package service

import (
	"time"

	"github.com/cyverse/build-cache/commons"
)

// ServerConfig is a configuration for Server
type ServerConfig struct {
	CacheRootPath string

	CleanupExpireAfter  time.Duration
	CleanupMaxTotalSize int64
	CleanupInterval     time.Duration
	CleanupDryRun       bool

	StatCacheTimeout     time.Duration
	StatCacheCleanupTime time.Duration
}

// NewServerConfig creates ServerConfig from service config
func NewServerConfig(config *commons.Config) *ServerConfig {
	return &ServerConfig{
		CacheRootPath: config.CacheRootPath,

		CleanupExpireAfter:  config.CleanupExpireAfter,
		CleanupMaxTotalSize: config.CleanupMaxTotalSize,
		CleanupInterval:     config.CleanupInterval,
		CleanupDryRun:       config.CleanupDryRun,

		StatCacheTimeout:     config.StatCacheTimeout,
		StatCacheCleanupTime: commons.StatCacheCleanupTimeDefault,
	}
}
