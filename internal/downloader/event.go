package downloader

import "time"

// Event represents a state change or progress update for a manifest task.
//
// Terminal events (Succeeded, Skipped) carry the final size and are persisted
// by the ledger. Progress events carry transient transfer information and do
// not mutate the ledger.
type Event struct {
	RunID   string
	TaskID  string
	URL     string
	Path    string
	Type    EventType
	Size    int64
	Fetched bool
	Err     string
	At      time.Time

	Progress *Progress
}

// EventType defines the set of events emitted during a run.
type EventType string

const (
	EventFetching  EventType = "Fetching"
	EventPresent   EventType = "AlreadyPresent"
	EventSucceeded EventType = "Succeeded"
	EventSkipped   EventType = "Skipped"
	EventProgress  EventType = "Progress"
	EventScrubbed  EventType = "Scrubbed"
)

// IsTerminal reports whether the event closes a task.
func (t EventType) IsTerminal() bool {
	return t == EventSucceeded || t == EventSkipped
}

// Progress provides optional details about an in-flight transfer.
type Progress struct {
	Completed int64
	Total     int64
	// Speed is the current download speed in bytes/sec, if available.
	// A value of 0 indicates it was not provided by the backend.
	Speed int64
}
