package pairing

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nextlevelbuilder/pairlink/internal/backend"
)

// DefaultPollInterval is the fixed status poll period.
const DefaultPollInterval = 3 * time.Second

// Fetcher returns the current status snapshot.
type Fetcher interface {
	Status(ctx context.Context) (*backend.Snapshot, error)
}

// Sink consumes poll results. *Engine satisfies it.
type Sink interface {
	Observe(ctx context.Context, snap *backend.Snapshot)
	ObserveError(err error)
}

// Poller fetches a snapshot immediately on Start and then every interval
// until Stop. Cycles never overlap. A failed fetch is reported to the sink
// and the next tick still fires.
type Poller struct {
	fetcher Fetcher
	sink    Sink

	mu       sync.Mutex
	interval time.Duration
	running  bool
	cancel   context.CancelFunc
	done     chan struct{}

	refresh chan struct{}
	reset   chan struct{}
}

func NewPoller(fetcher Fetcher, sink Sink, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{
		fetcher:  fetcher,
		sink:     sink,
		interval: interval,
		refresh:  make(chan struct{}, 1),
		reset:    make(chan struct{}, 1),
	}
}

// Start begins polling in a background goroutine. It is a no-op when
// already running.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true

	go p.loop(ctx, p.interval, p.done)
	slog.Info("status poller started", "interval", p.interval)
}

// Stop cancels polling and waits for the loop to exit. A fetch that
// completes after Stop is discarded. Stop must not be called from the sink.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.cancel()
	done := p.done
	p.running = false
	p.mu.Unlock()

	<-done
	slog.Info("status poller stopped")
}

// IsRunning returns whether the poll loop is active.
func (p *Poller) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Refresh requests an immediate out-of-band fetch. Requests coalesce.
func (p *Poller) Refresh() {
	select {
	case p.refresh <- struct{}{}:
	default:
	}
}

// Interval returns the current poll period.
func (p *Poller) Interval() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.interval
}

// SetInterval changes the poll period, taking effect on the running loop.
func (p *Poller) SetInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	p.mu.Lock()
	changed := p.interval != d
	p.interval = d
	p.mu.Unlock()

	if changed {
		select {
		case p.reset <- struct{}{}:
		default:
		}
	}
}

func (p *Poller) loop(ctx context.Context, interval time.Duration, done chan struct{}) {
	defer close(done)

	p.cycle(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.cycle(ctx)
		case <-p.refresh:
			p.cycle(ctx)
		case <-p.reset:
			d := p.Interval()
			ticker.Reset(d)
			slog.Info("status poll interval changed", "interval", d)
		}
	}
}

func (p *Poller) cycle(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	ctx, span := tracer.Start(ctx, "pairing.poll")
	defer span.End()

	snap, err := p.fetcher.Status(ctx)
	if ctx.Err() != nil {
		slog.Debug("discarding status fetched after stop")
		return
	}
	if err != nil {
		failSpan(span, err)
		p.sink.ObserveError(err)
		return
	}
	p.sink.Observe(ctx, snap)
}
