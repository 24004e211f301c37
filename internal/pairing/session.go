package pairing

import (
	"context"
	"time"
)

// Session wires a Poller to an Engine over the same backend. It exposes the
// engine's actions plus Retry.
type Session struct {
	*Engine
	poller *Poller
}

// NewSession creates an engine for opts and a poller feeding it.
func NewSession(opts Options, interval time.Duration) *Session {
	e := NewEngine(opts)
	return &Session{
		Engine: e,
		poller: NewPoller(opts.Backend, e, interval),
	}
}

// Start begins polling.
func (s *Session) Start(ctx context.Context) { s.poller.Start(ctx) }

// Stop ends polling and waits for the in-flight cycle.
func (s *Session) Stop() { s.poller.Stop() }

// Retry triggers an immediate poll, typically after Unavailable.
func (s *Session) Retry() { s.poller.Refresh() }

// SetPollInterval applies a new poll period to the running session.
func (s *Session) SetPollInterval(d time.Duration) { s.poller.SetInterval(d) }

// PollInterval returns the current poll period.
func (s *Session) PollInterval() time.Duration { return s.poller.Interval() }
