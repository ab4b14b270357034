package io

// CleanupEventType is a type of cleanup event
type CleanupEventType string

const (
	CleanupEventSearchProgress   CleanupEventType = "search_progress"
	CleanupEventSearchFinished   CleanupEventType = "search_finished"
	CleanupEventDeletingItem     CleanupEventType = "deleting_item"
	CleanupEventDeletionFinished CleanupEventType = "deletion_finished"
)

// CleanupStatus is running totals of a cleanup pass
type CleanupStatus struct {
	ItemsSeen   int64 `json:"itemsSeen"`
	CacheSize   int64 `json:"cacheSize"`
	DeleteCount int64 `json:"deleteCount"`
	DeleteSize  int64 `json:"deleteSize"`
}

// CleanupEvent is emitted during a cleanup pass. Path is set for deleting_item only.
type CleanupEvent struct {
	Type   CleanupEventType
	Status CleanupStatus
	Path   string
}

// CleanupEventHandler receives cleanup events. It is called synchronously from the pass and must be cheap.
type CleanupEventHandler interface {
	HandleCleanupEvent(event *CleanupEvent)
}

// CleanupEventHandlerFunc adapts a function to CleanupEventHandler
type CleanupEventHandlerFunc func(event *CleanupEvent)

// HandleCleanupEvent calls the function
func (f CleanupEventHandlerFunc) HandleCleanupEvent(event *CleanupEvent) {
	f(event)
}
