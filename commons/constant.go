package commons

import "time"

const (
	CacheRootPathDefault        string        = "/var/lib/build_cache"
	CleanupExpireAfterDefault   time.Duration = 7 * 24 * time.Hour // 7 days
	CleanupMaxTotalSizeDefault  int64         = 0                  // unlimited
	CleanupIntervalDefault      time.Duration = 1 * time.Hour
	CleanupDryRunDefault        bool          = true
	StatCacheTimeoutDefault     time.Duration = 0 // disabled
	StatCacheCleanupTimeDefault time.Duration = 1 * time.Minute

	ProfileServicePortDefault     int = 12021
	PrometheusExporterPortDefault int = 12022

	EnvConfigPrefix string = "BUILD_CACHE"
)
