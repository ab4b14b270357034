package main

import (
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"sync"

	"github.com/pkg/profile"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	cmd_commons "github.com/cyverse/build-cache/cmd/commons"
	"github.com/cyverse/build-cache/commons"
	"github.com/cyverse/build-cache/service"
	"github.com/cyverse/build-cache/service/io"
	"github.com/cyverse/build-cache/utils"
	log "github.com/sirupsen/logrus"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "build-cache [command]",
	Short: "Build artifact cache storage",
	Long:  "Build artifact cache storage that stores cache entries on disk and reclaims space.",
	RunE: func(command *cobra.Command, args []string) error {
		if version, _ := command.Flags().GetBool("version"); version {
			return cmd_commons.PrintVersion(command)
		}
		return command.Help()
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the cache service with periodic cleanup",
	RunE:  processServeCommand,
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Run a cleanup pass once (dry run unless --delete is given)",
	RunE:  processCleanupCommand,
}

func Execute() error {
	return rootCmd.Execute()
}

func main() {
	log.SetFormatter(&log.TextFormatter{
		TimestampFormat: "2006-01-02 15:04:05.000000",
		FullTimestamp:   true,
	})

	log.SetLevel(log.InfoLevel)

	logger := log.WithFields(log.Fields{
		"package":  "main",
		"function": "main",
	})

	rootCmd.Flags().BoolP("version", "v", false, "Print version")

	// attach common flags
	cmd_commons.SetCommonFlags(serveCmd)
	cmd_commons.SetServiceFlags(serveCmd)
	cmd_commons.SetCommonFlags(cleanupCmd)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(cleanupCmd)

	err := Execute()
	if err != nil {
		logger.Fatal(err)
		os.Exit(1)
	}
}

func processServeCommand(command *cobra.Command, args []string) error {
	logger := log.WithFields(log.Fields{
		"package":  "main",
		"function": "processServeCommand",
	})

	config, logWriter, cont, err := cmd_commons.ProcessCommonFlags(command)
	if logWriter != nil {
		defer logWriter.Close()
	}

	if err != nil {
		logger.WithError(err).Error("failed to process arguments")
		return err
	}

	if !cont {
		return nil
	}

	err = run(config)
	if err != nil {
		logger.WithError(err).Error("failed to run build cache service")
		return err
	}

	return nil
}

func processCleanupCommand(command *cobra.Command, args []string) error {
	logger := log.WithFields(log.Fields{
		"package":  "main",
		"function": "processCleanupCommand",
	})

	config, logWriter, cont, err := cmd_commons.ProcessCommonFlags(command)
	if logWriter != nil {
		defer logWriter.Close()
	}

	if err != nil {
		logger.WithError(err).Error("failed to process arguments")
		return err
	}

	if !cont {
		return nil
	}

	server, err := service.NewServer(service.NewServerConfig(config))
	if err != nil {
		logger.WithError(err).Error("failed to create the server")
		return err
	}
	defer server.Release()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	reporter := service.NewLogCleanupReporter(service.CleanupReportIntervalDefault)
	var deleting io.CleanupEventHandlerFunc = func(event *io.CleanupEvent) {
		if event.Type == io.CleanupEventDeletingItem {
			logger.Infof("Deleting %s", event.Path)
		}
	}

	result, err := server.Cleanup(ctx, nil, service.NewMultiCleanupEventHandler(reporter, deleting))
	if err != nil {
		return err
	}

	if result.DryRun {
		fmt.Printf("Dry run: %d of %d files (%s of %s) would be deleted\n", result.Status.DeleteCount, result.Status.ItemsSeen,
			utils.MakeSizeString(result.Status.DeleteSize), utils.MakeSizeString(result.Status.CacheSize))
	} else {
		fmt.Printf("Deleted %d files (%s), %d failures\n", len(result.DeletedPaths), utils.MakeSizeString(result.Status.DeleteSize), result.DeleteErrors)
	}

	if len(result.StaleTempPaths) > 0 {
		fmt.Printf("Stale temp files: %d\n", len(result.StaleTempPaths))
	}

	return nil
}

// run runs the build cache service until interrupted
func run(config *commons.Config) error {
	logger := log.WithFields(log.Fields{
		"package":  "main",
		"function": "run",
	})

	versionInfo := commons.GetVersion()
	logger.Infof("Build cache service version - %s, commit - %s", versionInfo.ServiceVersion, versionInfo.GitCommit)

	// make work dirs required
	err := config.MakeWorkDirs()
	if err != nil {
		logger.WithError(err).Error("invalid configuration")
		return err
	}

	// profile
	if config.Profile && config.ProfileServicePort > 0 {
		go func() {
			profileServiceAddr := fmt.Sprintf(":%d", config.ProfileServicePort)

			logger.Infof("Starting profile service at %s", profileServiceAddr)
			http.ListenAndServe(profileServiceAddr, nil)
		}()

		prof := profile.Start(profile.MemProfile)
		defer prof.Stop()
	}

	var prometheusExporterServer *http.Server
	if config.PrometheusExporterPort > 0 {
		prometheusExporterAddr := fmt.Sprintf(":%d", config.PrometheusExporterPort)
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		prometheusExporterServer = &http.Server{Addr: prometheusExporterAddr, Handler: mux}

		go func() {
			logger.Infof("Starting prometheus exporter at %s", prometheusExporterAddr)
			err := prometheusExporterServer.ListenAndServe()
			if err != nil && err != http.ErrServerClosed {
				logger.WithError(err).Error("prometheus exporter stopped")
			}
		}()
	}

	// run a service
	svc, err := service.NewCacheService(config)
	if err != nil {
		logger.WithError(err).Error("failed to create the service")
		return err
	}

	err = svc.Start()
	if err != nil {
		logger.WithError(err).Error("failed to start the service")
		svc.Release()
		return err
	}

	defer func() {
		if prometheusExporterServer != nil {
			prometheusExporterServer.Shutdown(context.TODO())
		}

		svc.Release()
	}()

	// wait
	waitForCtrlC()

	return nil
}

func waitForCtrlC() {
	var endWaiter sync.WaitGroup

	endWaiter.Add(1)
	signalChannel := make(chan os.Signal, 1)

	signal.Notify(signalChannel, os.Interrupt)

	go func() {
		<-signalChannel
		endWaiter.Done()
	}()

	endWaiter.Wait()
}
