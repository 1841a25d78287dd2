// Package annotations provides a low-overhead event system for tracing
// chase runs and homomorphism searches.
package annotations

import (
	"sync"
	"time"
)

// Event name constants following hierarchical naming pattern
const (
	// Chase lifecycle
	ChaseBegin    = "chase/begin"
	ChaseComplete = "chase/complete"

	// Rounds
	RoundBegin    = "chase/round.begin"
	RoundComplete = "chase/round.complete"

	// One rule application (or one rule's batch within a round)
	RuleApplied = "chase/rule.applied"

	// Search
	HomomorphismSearch = "homomorphism/search"

	// Errors
	ErrorStore = "error/store"
	ErrorRule  = "error/rule"
)

// Event represents a single annotation event.
type Event struct {
	Name    string                 // Event name using hierarchical constants above
	Start   time.Time              // Start timestamp
	End     time.Time              // End timestamp
	Latency time.Duration          // Duration (End - Start)
	Data    map[string]interface{} // Additional event-specific data
	Caller  string                 // Optional: file:line where event occurred
}

// Handler processes annotation events as they occur.
type Handler func(event Event)

// Collector accumulates events and forwards them to a handler.
type Collector struct {
	enabled bool
	handler Handler
	events  []Event
	mu      sync.Mutex
}

// NewCollector creates a new annotation collector. A nil handler disables
// collection.
func NewCollector(handler Handler) *Collector {
	return &Collector{
		enabled: handler != nil,
		handler: handler,
		events:  make([]Event, 0, 64),
	}
}

// Enabled reports whether events are recorded
func (c *Collector) Enabled() bool {
	return c != nil && c.enabled
}

// Handler returns a handler that records into the collector.
func (c *Collector) Handler() Handler {
	if !c.Enabled() {
		return nil
	}
	return c.Add
}

// Add records a new event.
// Thread-safe for concurrent access.
func (c *Collector) Add(event Event) {
	if !c.Enabled() {
		return
	}

	c.mu.Lock()
	c.events = append(c.events, event)
	c.mu.Unlock()

	// Call handler outside the lock to avoid deadlocks
	c.handler(event)
}

// AddTiming records an event that started at start and ends now.
func (c *Collector) AddTiming(name string, start time.Time, data map[string]interface{}) {
	if !c.Enabled() {
		return
	}

	end := time.Now()
	c.Add(Event{
		Name:    name,
		Start:   start,
		End:     end,
		Latency: end.Sub(start),
		Data:    data,
	})
}

// Events returns a copy of all collected events.
func (c *Collector) Events() []Event {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	eventsCopy := make([]Event, len(c.events))
	copy(eventsCopy, c.events)
	return eventsCopy
}

// Named returns the collected events with the given name
func (c *Collector) Named(name string) []Event {
	var out []Event
	for _, e := range c.Events() {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}

// Reset clears the collector for reuse.
func (c *Collector) Reset() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = c.events[:0]
}

// Tee returns a handler calling every non-nil handler in order
func Tee(handlers ...Handler) Handler {
	var hs []Handler
	for _, h := range handlers {
		if h != nil {
			hs = append(hs, h)
		}
	}
	switch len(hs) {
	case 0:
		return nil
	case 1:
		return hs[0]
	}
	return func(e Event) {
		for _, h := range hs {
			h(e)
		}
	}
}
