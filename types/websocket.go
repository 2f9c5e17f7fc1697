package types

import (
	"encoding/json"
	"time"
)

// EventType names a live channel message
type EventType string

const (
	EventQueueUpdate   EventType = "queue_update"
	EventStatusUpdate  EventType = "status_update"
	EventProgress      EventType = "progress"
	EventLibraryUpdate EventType = "library_update"
	EventPauseUpdate   EventType = "pause_update"
)

// Event is a message pushed to every live channel observer. Only the fields
// belonging to its type are serialized.
type Event struct {
	Type      EventType
	Queue     []ConversionJob
	Path      string
	Status    JobStatus
	Reason    string
	Percent   float64
	Library   []Artist
	IsPaused  bool
	Timestamp time.Time
}

// MarshalJSON writes the wire form of the event
func (e Event) MarshalJSON() ([]byte, error) {
	msg := map[string]any{"type": e.Type}
	switch e.Type {
	case EventQueueUpdate:
		queue := e.Queue
		if queue == nil {
			queue = []ConversionJob{}
		}
		msg["queue"] = queue
	case EventStatusUpdate:
		msg["path"] = e.Path
		msg["status"] = e.Status
		if e.Reason != "" {
			msg["reason"] = e.Reason
		}
	case EventProgress:
		msg["path"] = e.Path
		msg["percent"] = e.Percent
	case EventLibraryUpdate:
		library := e.Library
		if library == nil {
			library = []Artist{}
		}
		msg["library"] = library
	case EventPauseUpdate:
		msg["isPaused"] = e.IsPaused
	}
	if !e.Timestamp.IsZero() {
		msg["timestamp"] = e.Timestamp
	}
	return json.Marshal(msg)
}

// QueueUpdate builds a queue snapshot event
func QueueUpdate(queue []ConversionJob) Event {
	return Event{Type: EventQueueUpdate, Queue: queue, Timestamp: time.Now()}
}

// StatusUpdate builds a job status change event
func StatusUpdate(path string, status JobStatus, reason string) Event {
	return Event{Type: EventStatusUpdate, Path: path, Status: status, Reason: reason, Timestamp: time.Now()}
}

// ProgressUpdate builds a percent-complete event for one job
func ProgressUpdate(path string, percent float64) Event {
	return Event{Type: EventProgress, Path: path, Percent: percent, Timestamp: time.Now()}
}

// LibraryUpdate builds a full library refresh event
func LibraryUpdate(library []Artist) Event {
	return Event{Type: EventLibraryUpdate, Library: library, Timestamp: time.Now()}
}

// PauseUpdate builds a pause flag change event
func PauseUpdate(paused bool) Event {
	return Event{Type: EventPauseUpdate, IsPaused: paused, Timestamp: time.Now()}
}
