package pairing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nextlevelbuilder/pairlink/internal/backend"
)

type fetchFunc func(ctx context.Context) (*backend.Snapshot, error)

func (f fetchFunc) Status(ctx context.Context) (*backend.Snapshot, error) { return f(ctx) }

type recordingSink struct {
	mu        sync.Mutex
	snapshots int
	errs      int
	notify    chan struct{}
}

func newRecordingSink() *recordingSink {
	return &recordingSink{notify: make(chan struct{}, 64)}
}

func (s *recordingSink) Observe(_ context.Context, _ *backend.Snapshot) {
	s.mu.Lock()
	s.snapshots++
	s.mu.Unlock()
	s.notify <- struct{}{}
}

func (s *recordingSink) ObserveError(_ error) {
	s.mu.Lock()
	s.errs++
	s.mu.Unlock()
	s.notify <- struct{}{}
}

func (s *recordingSink) counts() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshots, s.errs
}

func (s *recordingSink) wait(t *testing.T, n int) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for i := 0; i < n; i++ {
		select {
		case <-s.notify:
		case <-deadline:
			t.Fatalf("timed out waiting for poll result %d of %d", i+1, n)
		}
	}
}

func TestPoller_FetchesImmediately(t *testing.T) {
	sink := newRecordingSink()
	p := NewPoller(fetchFunc(func(context.Context) (*backend.Snapshot, error) {
		return disconnected(), nil
	}), sink, time.Hour)

	p.Start(context.Background())
	defer p.Stop()

	sink.wait(t, 1)
	if snaps, _ := sink.counts(); snaps != 1 {
		t.Errorf("snapshots = %d, want 1", snaps)
	}
}

func TestPoller_ErrorsDoNotBackOff(t *testing.T) {
	sink := newRecordingSink()
	p := NewPoller(fetchFunc(func(context.Context) (*backend.Snapshot, error) {
		return nil, errors.New("connection refused")
	}), sink, 10*time.Millisecond)

	p.Start(context.Background())
	sink.wait(t, 3)
	p.Stop()

	if snaps, errs := sink.counts(); snaps != 0 || errs < 3 {
		t.Errorf("snapshots=%d errs=%d, want 0 and >=3", snaps, errs)
	}
}

func TestPoller_DiscardsResultAfterStop(t *testing.T) {
	sink := newRecordingSink()
	started := make(chan struct{})
	release := make(chan struct{})

	p := NewPoller(fetchFunc(func(ctx context.Context) (*backend.Snapshot, error) {
		close(started)
		<-ctx.Done()
		<-release
		return connected("14155551234"), nil
	}), sink, time.Hour)

	p.Start(context.Background())
	<-started

	stopped := make(chan struct{})
	go func() {
		p.Stop()
		close(stopped)
	}()
	close(release)

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
	if snaps, errs := sink.counts(); snaps != 0 || errs != 0 {
		t.Errorf("late result reached sink: snapshots=%d errs=%d", snaps, errs)
	}
	if p.IsRunning() {
		t.Error("poller still running")
	}
}

func TestPoller_Refresh(t *testing.T) {
	sink := newRecordingSink()
	p := NewPoller(fetchFunc(func(context.Context) (*backend.Snapshot, error) {
		return disconnected(), nil
	}), sink, time.Hour)

	p.Start(context.Background())
	defer p.Stop()
	sink.wait(t, 1)

	p.Refresh()
	sink.wait(t, 1)
	if snaps, _ := sink.counts(); snaps != 2 {
		t.Errorf("snapshots = %d, want 2", snaps)
	}
}

func TestPoller_SetInterval(t *testing.T) {
	sink := newRecordingSink()
	p := NewPoller(fetchFunc(func(context.Context) (*backend.Snapshot, error) {
		return disconnected(), nil
	}), sink, time.Hour)

	p.Start(context.Background())
	defer p.Stop()
	sink.wait(t, 1)

	p.SetInterval(10 * time.Millisecond)
	sink.wait(t, 2)
	if p.Interval() != 10*time.Millisecond {
		t.Errorf("interval = %v", p.Interval())
	}
}

func TestSession_DrivesEngine(t *testing.T) {
	fb := &fakeBackend{snapshot: connected("14155551234")}
	s := NewSession(Options{Backend: fb}, time.Hour)
	s.Start(context.Background())
	defer s.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for s.View().State.Kind() == KindLoading {
		if time.Now().After(deadline) {
			t.Fatal("session never observed a snapshot")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if st := s.View().State; st != (ConnectedSteady{AdminPhone: "14155551234"}) {
		t.Errorf("state = %#v", st)
	}
}
