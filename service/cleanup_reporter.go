package service

import (
	"fmt"
	"sync"
	"time"

	"github.com/cyverse/build-cache/service/io"
	"github.com/cyverse/build-cache/utils"
	log "github.com/sirupsen/logrus"
)

const (
	CleanupReportIntervalDefault time.Duration = 5 * time.Second
)

// LogCleanupReporter logs cleanup progress. Progress is logged at most once per interval.
type LogCleanupReporter struct {
	reportInterval time.Duration
	lastReport     time.Time
	mutex          sync.Mutex
}

// NewLogCleanupReporter creates a new LogCleanupReporter
func NewLogCleanupReporter(reportInterval time.Duration) *LogCleanupReporter {
	return &LogCleanupReporter{
		reportInterval: reportInterval,
	}
}

// HandleCleanupEvent logs the event
func (reporter *LogCleanupReporter) HandleCleanupEvent(event *io.CleanupEvent) {
	logger := log.WithFields(log.Fields{
		"package":  "service",
		"struct":   "LogCleanupReporter",
		"function": "HandleCleanupEvent",
	})

	switch event.Type {
	case io.CleanupEventSearchProgress:
		reporter.mutex.Lock()
		now := time.Now()
		if now.Sub(reporter.lastReport) < reporter.reportInterval {
			reporter.mutex.Unlock()
			return
		}
		reporter.lastReport = now
		reporter.mutex.Unlock()

		logger.Infof("Searching - %s", formatCleanupStatus(event.Status))
	case io.CleanupEventSearchFinished:
		logger.Infof("Search finished - %s", formatCleanupStatus(event.Status))
	case io.CleanupEventDeletingItem:
		logger.Debugf("Deleting %s", event.Path)
	case io.CleanupEventDeletionFinished:
		logger.Infof("Deletion finished - %s", formatCleanupStatus(event.Status))
	}
}

func formatCleanupStatus(status io.CleanupStatus) string {
	return fmt.Sprintf("seen %s files (%s), delete %s files (%s)",
		utils.MakeCountString(status.ItemsSeen), utils.MakeSizeString(status.CacheSize),
		utils.MakeCountString(status.DeleteCount), utils.MakeSizeString(status.DeleteSize))
}

// MultiCleanupEventHandler fans events out to multiple handlers
type MultiCleanupEventHandler struct {
	handlers []io.CleanupEventHandler
}

// NewMultiCleanupEventHandler creates a new MultiCleanupEventHandler, nil handlers are ignored
func NewMultiCleanupEventHandler(handlers ...io.CleanupEventHandler) *MultiCleanupEventHandler {
	nonNil := []io.CleanupEventHandler{}
	for _, handler := range handlers {
		if handler != nil {
			nonNil = append(nonNil, handler)
		}
	}

	return &MultiCleanupEventHandler{
		handlers: nonNil,
	}
}

// HandleCleanupEvent passes the event to all handlers
func (handler *MultiCleanupEventHandler) HandleCleanupEvent(event *io.CleanupEvent) {
	for _, h := range handler.handlers {
		h.HandleCleanupEvent(event)
	}
}
