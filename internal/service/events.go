package service

import "github.com/alanyoungcy/auctionhouse/internal/domain"

// EventCollector is the engine's event sink. The engine emits synchronously
// while an operation runs; the service drains the collector after the
// operation commits and fans the events out to the bus and stores. The
// collector is only touched by the goroutine holding the engine lock.
type EventCollector struct {
	events []domain.Event
}

// NewEventCollector creates an empty collector.
func NewEventCollector() *EventCollector {
	return &EventCollector{}
}

// Emit appends an event.
func (c *EventCollector) Emit(ev domain.Event) {
	c.events = append(c.events, ev)
}

// Drain returns and clears the collected events.
func (c *EventCollector) Drain() []domain.Event {
	out := c.events
	c.events = nil
	return out
}

// Compile-time interface check.
var _ domain.EventSink = (*EventCollector)(nil)
