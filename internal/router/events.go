package router

import (
	"time"

	"sketchgen/internal/providers"
)

// EventType names a router lifecycle event.
type EventType string

const (
	EventStarted   EventType = "started"
	EventProgress  EventType = "progress"
	EventCompleted EventType = "completed"
	EventFailed    EventType = "failed"
)

// Event reports one step of a routed request. Err is set on progress (a retryable attempt
// failed and the router will try again) and on failed.
type Event struct {
	Type        EventType
	RequestID   string
	Provider    providers.ID
	Attempt     int
	MaxAttempts int
	Delay       time.Duration
	Err         *providers.Error
	Elapsed     time.Duration
	At          time.Time
}

// Observer receives router events. OnEvent runs on the routing goroutine and must not
// block.
type Observer interface {
	OnEvent(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) OnEvent(e Event) { f(e) }
