package io

// NilCleanupEventHandler discards all events
type NilCleanupEventHandler struct{}

// NewNilCleanupEventHandler creates a new NilCleanupEventHandler
func NewNilCleanupEventHandler() *NilCleanupEventHandler {
	return &NilCleanupEventHandler{}
}

// HandleCleanupEvent does nothing
func (handler *NilCleanupEventHandler) HandleCleanupEvent(event *CleanupEvent) {
}
