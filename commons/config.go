package commons

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/xid"
	yaml "gopkg.in/yaml.v2"
)

var (
	instanceID string
)

// getInstanceID returns instance ID
func getInstanceID() string {
	if len(instanceID) == 0 {
		instanceID = xid.New().String()
	}

	return instanceID
}

// Config holds the parameters list which can be configured
type Config struct {
	CacheRootPath string `yaml:"cache_root_path" envconfig:"CACHE_ROOT_PATH"`

	CleanupExpireAfter  time.Duration `yaml:"cleanup_expire_after" envconfig:"CLEANUP_EXPIRE_AFTER"`
	CleanupMaxTotalSize int64         `yaml:"cleanup_max_total_size,omitempty" envconfig:"CLEANUP_MAX_TOTAL_SIZE"`
	CleanupInterval     time.Duration `yaml:"cleanup_interval,omitempty" envconfig:"CLEANUP_INTERVAL"`
	CleanupDryRun       bool          `yaml:"cleanup_dry_run" envconfig:"CLEANUP_DRY_RUN"`

	StatCacheTimeout time.Duration `yaml:"stat_cache_timeout,omitempty" envconfig:"STAT_CACHE_TIMEOUT"`

	LogPath string `yaml:"log_path,omitempty" envconfig:"LOG_PATH"`
	Debug   bool   `yaml:"debug,omitempty" envconfig:"DEBUG"`

	Profile                bool `yaml:"profile,omitempty"`
	ProfileServicePort     int  `yaml:"profile_service_port,omitempty"`
	PrometheusExporterPort int  `yaml:"prometheus_exporter_port,omitempty" envconfig:"PROMETHEUS_EXPORTER_PORT"`

	InstanceID string `yaml:"instanceid,omitempty"`
}

// NewDefaultConfig creates DefaultConfig
func NewDefaultConfig() *Config {
	return &Config{
		CacheRootPath: CacheRootPathDefault,

		CleanupExpireAfter:  CleanupExpireAfterDefault,
		CleanupMaxTotalSize: CleanupMaxTotalSizeDefault,
		CleanupInterval:     CleanupIntervalDefault,
		CleanupDryRun:       CleanupDryRunDefault,

		StatCacheTimeout: StatCacheTimeoutDefault,

		LogPath: "",
		Debug:   false,

		Profile:                false,
		ProfileServicePort:     ProfileServicePortDefault,
		PrometheusExporterPort: PrometheusExporterPortDefault,

		InstanceID: getInstanceID(),
	}
}

// NewConfigFromYAML creates Config from YAML
func NewConfigFromYAML(yamlBytes []byte) (*Config, error) {
	config := NewDefaultConfig()

	err := yaml.Unmarshal(yamlBytes, config)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML - %v", err)
	}

	return config, nil
}

// NewConfigFromENV overlays environmental variables on the given config.
// A nil config starts from defaults.
func NewConfigFromENV(config *Config) (*Config, error) {
	if config == nil {
		config = NewDefaultConfig()
	}

	err := envconfig.Process(EnvConfigPrefix, config)
	if err != nil {
		return nil, fmt.Errorf("failed to read environmental variables - %v", err)
	}

	return config, nil
}

// MakeWorkDirs creates the cache root directory
func (config *Config) MakeWorkDirs() error {
	err := os.MkdirAll(config.CacheRootPath, 0755)
	if err != nil {
		return fmt.Errorf("failed to make cache root dir %s - %v", config.CacheRootPath, err)
	}

	return nil
}

// Validate validates configuration
func (config *Config) Validate() error {
	if len(config.CacheRootPath) == 0 {
		return fmt.Errorf("cache root path must be given")
	}

	if config.CleanupExpireAfter <= 0 {
		return fmt.Errorf("cleanup expire duration must be a positive duration")
	}

	if config.CleanupMaxTotalSize < 0 {
		return fmt.Errorf("cleanup max total size must not be negative")
	}

	if config.CleanupInterval < 0 {
		return fmt.Errorf("cleanup interval must not be negative")
	}

	if config.StatCacheTimeout < 0 {
		return fmt.Errorf("stat cache timeout must not be negative")
	}

	if config.Profile && config.ProfileServicePort <= 0 {
		return fmt.Errorf("profile service port must be given")
	}

	return nil
}
