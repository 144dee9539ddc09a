package agent

import (
	"github.com/haasonsaas/nexus/pkg/models"
)

// ChanSink sends events to a channel with non-blocking behavior when the channel is full.
type ChanSink struct {
	ch chan<- models.AgentEvent
}

// NewChanSink creates a sink that sends to a channel.
// The channel should be buffered to avoid blocking.
func NewChanSink(ch chan<- models.AgentEvent) *ChanSink {
	return &ChanSink{ch: ch}
}

// Send delivers the event to the channel, dropping it if the channel is full.
func (s *ChanSink) Send(e models.AgentEvent) {
	select {
	case s.ch <- e:
	default:
		// Channel full - drop event rather than block.
	}
}

// MultiSink fans out events to multiple sinks, calling each sink's Send method.
type MultiSink struct {
	sinks []EventSink
}

// NewMultiSink creates a sink that dispatches events to multiple sinks.
// Nil sinks are filtered out automatically.
func NewMultiSink(sinks ...EventSink) *MultiSink {
	filtered := make([]EventSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			filtered = append(filtered, s)
		}
	}
	return &MultiSink{sinks: filtered}
}

// Send dispatches the event to all sinks.
func (s *MultiSink) Send(e models.AgentEvent) {
	for _, sink := range s.sinks {
		sink.Send(e)
	}
}

// NopSink discards all events silently. Useful for testing or when event handling is not needed.
type NopSink struct{}

// Send does nothing.
func (NopSink) Send(models.AgentEvent) {}
