package commons

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/cyverse/build-cache/commons"
	"github.com/cyverse/build-cache/utils"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func SetCommonFlags(command *cobra.Command) {
	command.Flags().BoolP("version", "v", false, "Print version")
	command.Flags().BoolP("help", "h", false, "Print help")
	command.Flags().BoolP("debug", "d", false, "Enable debug mode")

	command.Flags().StringP("config", "", "", "Set config file (yaml)")
	command.Flags().StringP("log", "", "", "Set log file path")
	command.Flags().StringP("cache_root", "", "", "Set cache root path")
	command.Flags().StringP("expire_after", "", "", "Delete cache files not accessed within the duration (e.g., 168h)")
	command.Flags().StringP("max_size", "", "", "Set max total cache size (e.g., 20GB), 0 for unlimited")
	command.Flags().BoolP("delete", "", false, "Delete files in cleanup (default is dry run)")
}

func SetServiceFlags(command *cobra.Command) {
	command.Flags().BoolP("profile", "", false, "Enable profiling")
	command.Flags().StringP("cleanup_interval", "", "", "Set periodic cleanup interval (e.g., 1h), 0 to disable")
	command.Flags().IntP("profile_port", "", commons.ProfileServicePortDefault, "Set profile service port")
	command.Flags().IntP("prometheus_exporter_port", "", commons.PrometheusExporterPortDefault, "Set prometheus exporter port")
}

func getBoolFlag(command *cobra.Command, name string) bool {
	flag := command.Flags().Lookup(name)
	if flag == nil {
		return false
	}

	value, err := strconv.ParseBool(flag.Value.String())
	if err != nil {
		return false
	}

	return value
}

func getStringFlag(command *cobra.Command, name string) string {
	flag := command.Flags().Lookup(name)
	if flag == nil {
		return ""
	}

	return flag.Value.String()
}

func isFlagChanged(command *cobra.Command, name string) bool {
	flag := command.Flags().Lookup(name)
	if flag == nil {
		return false
	}

	return flag.Changed
}

// ProcessCommonFlags builds config from config file, environmental variables and flags, in the order of priority from low to high.
// Returns false when the command should stop, e.g., for help or version.
func ProcessCommonFlags(command *cobra.Command) (*commons.Config, io.WriteCloser, bool, error) {
	logger := log.WithFields(log.Fields{
		"package":  "commons",
		"function": "ProcessCommonFlags",
	})

	debug := getBoolFlag(command, "debug")
	if debug {
		log.SetLevel(log.DebugLevel)
	}

	if getBoolFlag(command, "help") {
		PrintHelp(command)
		return nil, nil, false, nil // stop here
	}

	if getBoolFlag(command, "version") {
		PrintVersion(command)
		return nil, nil, false, nil // stop here
	}

	config := commons.NewDefaultConfig()

	configPath := getStringFlag(command, "config")
	if len(configPath) > 0 {
		yamlBytes, err := os.ReadFile(configPath)
		if err != nil {
			logger.Error(err)
			return nil, nil, false, err // stop here
		}

		serverConfig, err := commons.NewConfigFromYAML(yamlBytes)
		if err != nil {
			logger.Error(err)
			return nil, nil, false, err // stop here
		}

		// overwrite config
		config = serverConfig
	}

	config, err := commons.NewConfigFromENV(config)
	if err != nil {
		logger.Error(err)
		return nil, nil, false, err // stop here
	}

	// prioritize command-line flag over config files
	err = applyFlags(command, config)
	if err != nil {
		logger.Error(err)
		return nil, nil, false, err // stop here
	}

	if config.Debug {
		log.SetLevel(log.DebugLevel)
	}

	var logWriter io.WriteCloser
	if config.LogPath == "-" || len(config.LogPath) == 0 {
		log.SetOutput(os.Stderr)
	} else {
		logWriter = getLogWriter(config.LogPath)

		// use multi output - to output to file and stdout
		mw := io.MultiWriter(os.Stderr, logWriter)
		log.SetOutput(mw)

		logger.Infof("Logging to %s", config.LogPath)
	}

	err = config.Validate()
	if err != nil {
		logger.Error(err)
		return nil, logWriter, false, err // stop here
	}

	return config, logWriter, true, nil // continue
}

func applyFlags(command *cobra.Command, config *commons.Config) error {
	if getBoolFlag(command, "debug") {
		config.Debug = true
	}

	if getBoolFlag(command, "profile") {
		config.Profile = true
	}

	if logPath := getStringFlag(command, "log"); len(logPath) > 0 {
		config.LogPath = logPath
	}

	if cacheRoot := getStringFlag(command, "cache_root"); len(cacheRoot) > 0 {
		config.CacheRootPath = cacheRoot
	}

	if expireAfter := getStringFlag(command, "expire_after"); len(expireAfter) > 0 {
		duration, err := time.ParseDuration(expireAfter)
		if err != nil {
			return fmt.Errorf("failed to parse expire duration %q - %v", expireAfter, err)
		}
		config.CleanupExpireAfter = duration
	}

	if maxSize := getStringFlag(command, "max_size"); len(maxSize) > 0 {
		size, err := utils.ParseSizeString(maxSize)
		if err != nil {
			return fmt.Errorf("failed to parse max size %q - %v", maxSize, err)
		}
		config.CleanupMaxTotalSize = size
	}

	if cleanupInterval := getStringFlag(command, "cleanup_interval"); len(cleanupInterval) > 0 {
		duration, err := time.ParseDuration(cleanupInterval)
		if err != nil {
			return fmt.Errorf("failed to parse cleanup interval %q - %v", cleanupInterval, err)
		}
		config.CleanupInterval = duration
	}

	if isFlagChanged(command, "delete") {
		config.CleanupDryRun = !getBoolFlag(command, "delete")
	}

	if isFlagChanged(command, "profile_port") {
		port, err := strconv.Atoi(getStringFlag(command, "profile_port"))
		if err != nil {
			return fmt.Errorf("failed to convert profile port to int - %v", err)
		}
		config.ProfileServicePort = port
	}

	if isFlagChanged(command, "prometheus_exporter_port") {
		port, err := strconv.Atoi(getStringFlag(command, "prometheus_exporter_port"))
		if err != nil {
			return fmt.Errorf("failed to convert prometheus exporter port to int - %v", err)
		}
		config.PrometheusExporterPort = port
	}

	return nil
}

func PrintVersion(command *cobra.Command) error {
	info, err := commons.GetVersionJSON()
	if err != nil {
		return err
	}

	fmt.Println(info)
	return nil
}

func PrintHelp(command *cobra.Command) error {
	return command.Usage()
}

func getLogWriter(logPath string) io.WriteCloser {
	return &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    50, // 50MB
		MaxBackups: 5,
		MaxAge:     30, // 30 days
		Compress:   false,
	}
}
