package provisioning

import (
	"fmt"
	"time"

	"github.com/go-logr/logr"
)

// Observer receives structured provisioning events.
type Observer interface {
	Event(event Event)
}

// Event represents a structured provisioning event.
type Event struct {
	Type      EventType         // Type of event
	Phase     string            // Stage or action name (e.g., "fleet", "installer")
	Message   string            // Human-readable message
	Resource  string            // Resource name/ID if applicable
	Timestamp time.Time         // When the event occurred
	Fields    map[string]string // Additional contextual fields
}

// EventType represents the type of provisioning event.
type EventType string

const (
	// EventPhaseStarted indicates a stage has started.
	EventPhaseStarted EventType = "phase.started"
	// EventPhaseCompleted indicates a stage completed successfully.
	EventPhaseCompleted EventType = "phase.completed"
	// EventPhaseSkipped indicates a stage was not needed.
	EventPhaseSkipped EventType = "phase.skipped"
	// EventPhaseFailed indicates a stage failed.
	EventPhaseFailed EventType = "phase.failed"

	// EventResourceCreating indicates a resource is being created.
	EventResourceCreating EventType = "resource.creating"
	// EventResourceReady indicates a resource reached its target status.
	EventResourceReady EventType = "resource.ready"
	// EventResourceFailed indicates a resource did not converge.
	EventResourceFailed EventType = "resource.failed"
)

// LogObserver writes events to a logr.Logger.
type LogObserver struct {
	log logr.Logger
}

// NewLogObserver creates an observer that logs every event.
func NewLogObserver(log logr.Logger) *LogObserver {
	return &LogObserver{log: log.WithName("events")}
}

// Event implements Observer.
func (o *LogObserver) Event(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	kv := []any{"type", string(event.Type)}
	if event.Phase != "" {
		kv = append(kv, "phase", event.Phase)
	}
	if event.Resource != "" {
		kv = append(kv, "resource", event.Resource)
	}
	for k, v := range event.Fields {
		kv = append(kv, k, v)
	}

	if event.Type == EventPhaseFailed || event.Type == EventResourceFailed {
		o.log.Error(nil, event.Message, kv...)
		return
	}
	o.log.Info(event.Message, kv...)
}

// nopObserver drops every event.
type nopObserver struct{}

func (nopObserver) Event(Event) {}

// LogPhaseStart logs a phase start event.
func LogPhaseStart(observer Observer, phase string) {
	observer.Event(Event{
		Type:    EventPhaseStarted,
		Phase:   phase,
		Message: "starting",
	})
}

// LogPhaseComplete logs a phase completion event.
func LogPhaseComplete(observer Observer, phase string, duration time.Duration) {
	observer.Event(Event{
		Type:    EventPhaseCompleted,
		Phase:   phase,
		Message: fmt.Sprintf("completed in %v", duration.Round(time.Millisecond)),
	})
}

// LogPhaseSkipped logs a phase that had nothing to do.
func LogPhaseSkipped(observer Observer, phase, reason string) {
	observer.Event(Event{
		Type:    EventPhaseSkipped,
		Phase:   phase,
		Message: "skipped: " + reason,
	})
}

// LogPhaseFailed logs a phase failure event.
func LogPhaseFailed(observer Observer, phase string, err error) {
	observer.Event(Event{
		Type:    EventPhaseFailed,
		Phase:   phase,
		Message: fmt.Sprintf("failed: %v", err),
	})
}

// LogResourceCreating logs a resource creation start event.
func LogResourceCreating(observer Observer, phase, resourceType, resourceName string) {
	observer.Event(Event{
		Type:     EventResourceCreating,
		Phase:    phase,
		Resource: resourceName,
		Message:  fmt.Sprintf("creating %s", resourceType),
		Fields: map[string]string{
			"kind": resourceType,
		},
	})
}

// LogResourceReady logs a resource that reached its target status.
func LogResourceReady(observer Observer, phase, resourceType, resourceName, resourceID, status string) {
	observer.Event(Event{
		Type:     EventResourceReady,
		Phase:    phase,
		Resource: resourceName,
		Message:  fmt.Sprintf("%s %s", resourceType, status),
		Fields: map[string]string{
			"kind": resourceType,
			"id":   resourceID,
		},
	})
}

// LogResourceFailed logs a resource that failed to converge.
func LogResourceFailed(observer Observer, phase, resourceType, resourceName string, err error) {
	observer.Event(Event{
		Type:     EventResourceFailed,
		Phase:    phase,
		Resource: resourceName,
		Message:  fmt.Sprintf("%s failed: %v", resourceType, err),
		Fields: map[string]string{
			"kind": resourceType,
		},
	})
}
