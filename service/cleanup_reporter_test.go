package service

import (
	"testing"
	"time"

	"github.com/cyverse/build-cache/service/io"
	"github.com/stretchr/testify/assert"
)

func TestMultiCleanupEventHandler(t *testing.T) {
	counts := []int{0, 0}

	handler := NewMultiCleanupEventHandler(
		io.CleanupEventHandlerFunc(func(event *io.CleanupEvent) { counts[0]++ }),
		nil,
		io.CleanupEventHandlerFunc(func(event *io.CleanupEvent) { counts[1]++ }),
	)

	handler.HandleCleanupEvent(&io.CleanupEvent{Type: io.CleanupEventSearchProgress})
	handler.HandleCleanupEvent(&io.CleanupEvent{Type: io.CleanupEventSearchFinished})

	assert.Equal(t, []int{2, 2}, counts)
}

func TestLogCleanupReporterThrottles(t *testing.T) {
	reporter := NewLogCleanupReporter(time.Hour)

	reporter.HandleCleanupEvent(&io.CleanupEvent{Type: io.CleanupEventSearchProgress, Status: io.CleanupStatus{ItemsSeen: 1}})
	first := reporter.lastReport
	assert.False(t, first.IsZero())

	reporter.HandleCleanupEvent(&io.CleanupEvent{Type: io.CleanupEventSearchProgress, Status: io.CleanupStatus{ItemsSeen: 2}})
	assert.Equal(t, first, reporter.lastReport)
}

func TestFormatCleanupStatus(t *testing.T) {
	status := io.CleanupStatus{ItemsSeen: 1234, CacheSize: 2000000, DeleteCount: 2, DeleteSize: 1000}
	assert.Equal(t, "seen 1,234 files (2.0 MB), delete 2 files (1.0 kB)", formatCleanupStatus(status))
}
