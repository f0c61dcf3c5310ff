package manager

import "time"

// Event names published by the manager.
const (
	EventLoadStart       = "load_start"
	EventTokenizerLoaded = "tokenizer_loaded"
	EventModelLoaded     = "model_loaded"
	EventQuantized       = "quantized"
	EventLoadReady       = "load_ready"
	EventLoadFailed      = "load_failed"
	EventGenerateStart   = "generate_start"
	EventGenerateDone    = "generate_done"
)

// Event represents a manager lifecycle event: a name plus optional fields.
type Event struct {
	Name   string
	Model  string
	Time   time.Time
	Fields map[string]any
}

// EventPublisher receives events from the manager. Implementations should be
// lightweight and non-blocking; Publish must not panic.
type EventPublisher interface {
	Publish(Event)
}

// noopPublisher is the default; it drops events.
type noopPublisher struct{}

func (noopPublisher) Publish(Event) {}
