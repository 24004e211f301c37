package pairing

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"golang.org/x/time/rate"

	"github.com/nextlevelbuilder/pairlink/internal/backend"
	"github.com/nextlevelbuilder/pairlink/internal/bus"
	"github.com/nextlevelbuilder/pairlink/internal/store"
	"github.com/nextlevelbuilder/pairlink/pkg/protocol"
)

const (
	// DefaultMarkerTTL bounds how long a save marker suppresses the phone
	// prompt while the backend status still reports no admin phone.
	DefaultMarkerTTL = 5 * time.Minute

	DefaultCodeInterval = 10 * time.Second
	DefaultCodeBurst    = 2
)

var tracer = otel.Tracer("github.com/nextlevelbuilder/pairlink/internal/pairing")

// Backend is the subset of the backend client the engine drives.
// *backend.Client satisfies it.
type Backend interface {
	Status(ctx context.Context) (*backend.Snapshot, error)
	RequestPairingCode(ctx context.Context, phone string) (*backend.PairingCode, error)
	ConfirmPhone(ctx context.Context, phone string) (*backend.ApplyResult, error)
	FlushSession(ctx context.Context) error
	FactoryReset(ctx context.Context) error
}

// Publisher receives state-change events. *bus.MessageBus satisfies it.
type Publisher interface {
	Broadcast(event bus.Event)
}

// Options configures an Engine. Only Backend is required.
type Options struct {
	Backend Backend
	// Markers defaults to an in-memory store.
	Markers   store.MarkerStore
	MarkerTTL time.Duration
	Bus       Publisher
	// OnConnected is called once per disconnected→connected edge, outside
	// the engine lock.
	OnConnected func()
	// CodeInterval and CodeBurst shape the pairing-code rate limiter.
	CodeInterval time.Duration
	CodeBurst    int
	Method       Method
	Now          func() time.Time
}

// Engine reconciles polled snapshots with local actions. It is safe for
// concurrent use. Backend calls run outside the lock; their results are
// applied under it. State events reach the bus in change order.
type Engine struct {
	backend     Backend
	markers     store.MarkerStore
	bus         Publisher
	onConnected func()
	now         func() time.Time
	limiter     *rate.Limiter

	mu            sync.Mutex
	ttl           time.Duration
	snapshot      *backend.Snapshot
	pollErr       error
	prevConnected *bool // nil until the first snapshot
	pending       string
	promptOpen    bool
	prefill       string
	justSaved     bool
	savedPhone    string
	method        Method
	code          string
	lastErr       string
	needsRestart  bool
	markerMaybe   bool // a marker may exist in the store
	lastPublished []byte
	seq           uint64 // last stamped state event

	pubMu   sync.Mutex
	sentSeq uint64 // last broadcast state event
}

func NewEngine(opts Options) *Engine {
	if opts.Markers == nil {
		opts.Markers = store.NewMemoryMarkerStore()
	}
	if opts.MarkerTTL <= 0 {
		opts.MarkerTTL = DefaultMarkerTTL
	}
	if opts.CodeInterval <= 0 {
		opts.CodeInterval = DefaultCodeInterval
	}
	if opts.CodeBurst <= 0 {
		opts.CodeBurst = DefaultCodeBurst
	}
	if opts.Method == "" {
		opts.Method = MethodQR
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine{
		backend:     opts.Backend,
		markers:     opts.Markers,
		bus:         opts.Bus,
		onConnected: opts.OnConnected,
		now:         opts.Now,
		limiter:     rate.NewLimiter(rate.Every(opts.CodeInterval), opts.CodeBurst),
		ttl:         opts.MarkerTTL,
		method:      opts.Method,
		markerMaybe: true,
	}
}

// SetMarkerTTL changes the marker expiry for subsequent checks.
func (e *Engine) SetMarkerTTL(d time.Duration) {
	if d <= 0 {
		return
	}
	e.mu.Lock()
	e.ttl = d
	e.mu.Unlock()
}

// View returns the current projection.
func (e *Engine) View() View {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.viewLocked()
}

// Observe applies one snapshot. It is the engine half of a poll cycle.
// The automatic phone save runs without the engine lock held.
func (e *Engine) Observe(ctx context.Context, snap *backend.Snapshot) {
	if snap == nil {
		return
	}

	e.mu.Lock()
	firstPoll := e.prevConnected == nil
	justConnected := snap.IsConnected && !firstPoll && !*e.prevConnected
	firstLoad := firstPoll && snap.IsConnected && snap.AdminPhone == ""
	edge := justConnected || firstLoad
	var phone string
	if edge {
		phone = e.pending
		e.pending = ""
	}
	e.mu.Unlock()

	var (
		res     *backend.ApplyResult
		saveErr error
	)
	if phone != "" {
		res, saveErr = e.autosave(ctx, phone)
	}

	e.mu.Lock()
	e.snapshot = snap
	e.pollErr = nil

	if !snap.IsConnected {
		e.promptOpen = false
		e.prefill = ""
		e.justSaved = false
		e.savedPhone = ""
	} else {
		e.code = ""
	}

	switch {
	case !edge:
	case phone != "" && saveErr == nil:
		e.markSavedLocked(ctx, phone, res)
	case phone != "":
		// An operator save that landed during the call wins.
		if !e.justSaved {
			e.promptOpen = true
			e.prefill = phone
		}
	case snap.AdminPhone == "" && !e.markerValidLocked(ctx):
		e.promptOpen = true
		e.prefill = ""
	}

	if snap.AdminPhone != "" {
		e.promptOpen = false
		e.prefill = ""
		e.justSaved = false
		e.savedPhone = ""
		if e.markerMaybe {
			e.deleteMarkerLocked(ctx)
		}
	}

	connected := snap.IsConnected
	e.prevConnected = &connected
	ev := e.changedLocked()
	e.mu.Unlock()

	e.publish(ev)
	if justConnected {
		slog.Info("messaging account connected", "admin_phone_known", snap.AdminPhone != "")
		if e.onConnected != nil {
			e.onConnected()
		}
		e.broadcast(bus.Event{Name: protocol.EventPairingConnected, Payload: e.View()})
	}
}

// ObserveError records a failed poll. The state becomes Unavailable until
// the next successful snapshot.
func (e *Engine) ObserveError(err error) {
	if err == nil {
		return
	}
	e.mu.Lock()
	e.pollErr = err
	ev := e.changedLocked()
	e.mu.Unlock()

	slog.Warn("pairing status unavailable", "error", err)
	e.publish(ev)
}

func (e *Engine) autosave(ctx context.Context, phone string) (*backend.ApplyResult, error) {
	ctx, span := tracer.Start(ctx, "pairing.autosave_phone")
	defer span.End()

	res, err := e.backend.ConfirmPhone(ctx, phone)
	if err != nil {
		failSpan(span, err)
		slog.Warn("auto-save of pending phone failed, asking operator", "error", err)
		return nil, err
	}
	slog.Info("pending phone saved on connect")
	return res, nil
}

// markSavedLocked records a successful phone save.
func (e *Engine) markSavedLocked(ctx context.Context, phone string, res *backend.ApplyResult) {
	if err := e.markers.Put(ctx, store.SaveMarker{SavedAt: e.now()}); err != nil {
		slog.Warn("failed to write save marker", "error", err)
	} else {
		e.markerMaybe = true
	}
	e.justSaved = true
	e.savedPhone = phone
	e.promptOpen = false
	e.prefill = ""
	e.pending = ""
	e.lastErr = ""
	e.needsRestart = res != nil && res.NeedsRestart
}

// markerValidLocked reports whether an unexpired marker exists. Expired
// markers are removed. Store errors count as "no marker".
func (e *Engine) markerValidLocked(ctx context.Context) bool {
	m, err := e.markers.Get(ctx)
	if err != nil {
		slog.Warn("failed to read save marker", "error", err)
		return false
	}
	if m == nil {
		e.markerMaybe = false
		return false
	}
	age := e.now().Sub(m.SavedAt)
	if age < 0 || age > e.ttl {
		slog.Info("save marker expired", "age", age.Round(time.Second), "ttl", e.ttl)
		e.deleteMarkerLocked(ctx)
		return false
	}
	return true
}

func (e *Engine) deleteMarkerLocked(ctx context.Context) {
	if err := e.markers.Delete(ctx); err != nil {
		slog.Warn("failed to delete save marker", "error", err)
		return
	}
	e.markerMaybe = false
}

func (e *Engine) stateLocked() State {
	switch {
	case e.pollErr != nil:
		return Unavailable{Err: backend.Message(e.pollErr)}
	case e.snapshot == nil:
		return Loading{}
	case !e.snapshot.IsConnected:
		ps := PairingRequired{Method: e.method, QR: e.snapshot.QR}
		if e.method == MethodCode {
			ps.Code = e.code
		}
		return ps
	case e.promptOpen:
		return ConnectedPendingPhone{Prefill: e.prefill}
	case e.justSaved && e.snapshot.AdminPhone == "":
		return ConnectedPhoneJustSaved{Phone: e.savedPhone}
	default:
		return ConnectedSteady{AdminPhone: e.snapshot.AdminPhone}
	}
}

func (e *Engine) viewLocked() View {
	v := View{
		State:        e.stateLocked(),
		Snapshot:     e.snapshot,
		LastError:    e.lastErr,
		NeedsRestart: e.needsRestart,
	}
	if e.snapshot != nil {
		v.SyncState = e.snapshot.SyncState
		v.SyncProgress = e.snapshot.SyncProgress
	}
	return v
}

// stateEvent is a state change stamped with its position in the engine's
// change order.
type stateEvent struct {
	event bus.Event
	seq   uint64
}

// changedLocked returns a state event when the view differs from the last
// published one.
func (e *Engine) changedLocked() *stateEvent {
	v := e.viewLocked()
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("marshal pairing view", "error", err)
		return nil
	}
	if bytes.Equal(data, e.lastPublished) {
		return nil
	}
	e.lastPublished = data
	e.seq++
	return &stateEvent{
		event: bus.Event{Name: protocol.EventPairingState, Payload: v},
		seq:   e.seq,
	}
}

// publish broadcasts ev unless a later state event already went out.
func (e *Engine) publish(ev *stateEvent) {
	if ev == nil || e.bus == nil {
		return
	}
	e.pubMu.Lock()
	defer e.pubMu.Unlock()
	if ev.seq <= e.sentSeq {
		return
	}
	e.sentSeq = ev.seq
	e.bus.Broadcast(ev.event)
}

func (e *Engine) broadcast(ev bus.Event) {
	if e.bus == nil {
		return
	}
	e.pubMu.Lock()
	defer e.pubMu.Unlock()
	e.bus.Broadcast(ev)
}
