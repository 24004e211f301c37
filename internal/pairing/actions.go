package pairing

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/nextlevelbuilder/pairlink/internal/backend"
)

// SelectPairingMethod switches the PairingRequired sub-state. It does not
// affect polling.
func (e *Engine) SelectPairingMethod(m Method) error {
	if _, err := ParseMethod(string(m)); err != nil {
		return err
	}
	e.mu.Lock()
	e.method = m
	ev := e.changedLocked()
	e.mu.Unlock()
	e.publish(ev)
	return nil
}

// RequestCode validates the phone, asks the backend for a pairing code and
// queues the phone for automatic saving on the next connection edge.
// On failure the previously displayed code is kept.
func (e *Engine) RequestCode(ctx context.Context, prefix, number string) (*backend.PairingCode, error) {
	phone, err := NormalizePhone(prefix, number)
	if err != nil {
		return nil, err
	}
	if !e.limiter.Allow() {
		return nil, ErrRateLimited
	}

	ctx, span := tracer.Start(ctx, "pairing.request_code")
	defer span.End()

	pc, err := e.backend.RequestPairingCode(ctx, phone)

	e.mu.Lock()
	if err != nil {
		e.lastErr = backend.Message(err)
	} else {
		e.pending = phone
		e.code = pc.Display()
		e.method = MethodCode
		e.lastErr = ""
	}
	ev := e.changedLocked()
	e.mu.Unlock()
	e.publish(ev)

	if err != nil {
		failSpan(span, err)
		slog.Warn("pairing code request failed", "error", err)
		return nil, err
	}
	slog.Info("pairing code requested", "phone_digits", len(phone))
	return pc, nil
}

// ConfirmPhone saves the admin phone. Success behaves like a successful
// auto-save; failure keeps the confirmation form populated.
func (e *Engine) ConfirmPhone(ctx context.Context, prefix, number string) (*backend.ApplyResult, error) {
	phone, err := NormalizePhone(prefix, number)
	if err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "pairing.confirm_phone")
	defer span.End()

	res, err := e.backend.ConfirmPhone(ctx, phone)

	e.mu.Lock()
	if err != nil {
		e.lastErr = backend.Message(err)
		if e.promptOpen {
			e.prefill = phone
		}
	} else {
		e.markSavedLocked(ctx, phone, res)
	}
	ev := e.changedLocked()
	e.mu.Unlock()
	e.publish(ev)

	if err != nil {
		failSpan(span, err)
		slog.Warn("phone confirmation failed", "error", err)
		return nil, err
	}
	span.SetAttributes(attribute.Bool("needs_restart", res.NeedsRestart))
	slog.Info("admin phone saved", "needs_restart", res.NeedsRestart)
	return res, nil
}

// SkipPhoneConfirmation dismisses the phone prompt for this session. No
// marker is written, so the prompt returns on the next connection edge.
func (e *Engine) SkipPhoneConfirmation() {
	e.mu.Lock()
	e.promptOpen = false
	e.prefill = ""
	e.lastErr = ""
	ev := e.changedLocked()
	e.mu.Unlock()
	e.publish(ev)
}

// FlushSession drops the backend messaging session. Callers must obtain
// explicit confirmation first.
func (e *Engine) FlushSession(ctx context.Context) error {
	return e.resetAction(ctx, "flush_session", e.backend.FlushSession)
}

// FactoryReset wipes all backend messaging state. Same local effect as
// FlushSession.
func (e *Engine) FactoryReset(ctx context.Context) error {
	return e.resetAction(ctx, "factory_reset", e.backend.FactoryReset)
}

func (e *Engine) resetAction(ctx context.Context, name string, call func(context.Context) error) error {
	ctx, span := tracer.Start(ctx, "pairing."+name)
	defer span.End()

	err := call(ctx)

	e.mu.Lock()
	if err != nil {
		e.lastErr = backend.Message(err)
	} else {
		disconnected := false
		e.prevConnected = &disconnected
		e.code = ""
		e.lastErr = ""
	}
	ev := e.changedLocked()
	e.mu.Unlock()
	e.publish(ev)

	if err != nil {
		failSpan(span, err)
		slog.Warn("backend reset failed", "action", name, "error", err)
		return err
	}
	slog.Info("backend session reset", "action", name)
	return nil
}

func failSpan(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
