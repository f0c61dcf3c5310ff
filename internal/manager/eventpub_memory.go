package manager

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// MemoryPublisher records events in order. `chatd inspect` uses it to print
// the load timeline.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []Event
}

func NewMemoryPublisher() *MemoryPublisher { return &MemoryPublisher{} }

func (p *MemoryPublisher) Publish(e Event) {
	p.mu.Lock()
	p.events = append(p.events, e)
	p.mu.Unlock()
}

// Events returns a copy of the recorded events.
func (p *MemoryPublisher) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Event, len(p.events))
	copy(out, p.events)
	return out
}

// Names returns the recorded event names in order.
func (p *MemoryPublisher) Names() []string {
	events := p.Events()
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.Name
	}
	return out
}

// Step is one event with its offset from the first recorded event.
type Step struct {
	Event
	Offset time.Duration
}

// Timeline returns the recorded events with offsets from the first one.
func (p *MemoryPublisher) Timeline() []Step {
	events := p.Events()
	out := make([]Step, len(events))
	for i, e := range events {
		out[i] = Step{Event: e, Offset: e.Time.Sub(events[0].Time)}
	}
	return out
}

// LogPublisher writes every event to a zerolog logger at debug level.
type LogPublisher struct {
	log *zerolog.Logger
}

func NewLogPublisher(log *zerolog.Logger) LogPublisher {
	if log == nil {
		nop := zerolog.Nop()
		log = &nop
	}
	return LogPublisher{log: log}
}

func (p LogPublisher) Publish(e Event) {
	p.log.Debug().Str("event", e.Name).Str("model", e.Model).Fields(e.Fields).Msg("manager event")
}
