// Package pairing reconciles the backend's polled pairing status with
// locally-initiated actions (pairing-code requests, phone confirmation)
// and derives the single pairing state shown to the operator.
//
// A Poller feeds Snapshots to an Engine. The Engine tracks the
// disconnected→connected edge, submits a pending admin phone once per edge,
// and uses a short-lived SaveMarker to avoid re-prompting while the
// backend's status lags behind a successful save.
package pairing

import (
	"encoding/json"
	"fmt"

	"github.com/nextlevelbuilder/pairlink/internal/backend"
)

// Method is how the operator links the device.
type Method string

const (
	MethodQR   Method = "qr"
	MethodCode Method = "code"
)

// ParseMethod validates a method name.
func ParseMethod(s string) (Method, error) {
	switch Method(s) {
	case MethodQR, MethodCode:
		return Method(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidMethod, s)
}

// Kind names a State variant.
type Kind string

const (
	KindLoading                 Kind = "loading"
	KindUnavailable             Kind = "unavailable"
	KindPairingRequired         Kind = "pairing_required"
	KindConnectedPendingPhone   Kind = "connected_pending_phone"
	KindConnectedPhoneJustSaved Kind = "connected_phone_just_saved"
	KindConnectedSteady         Kind = "connected_steady"
)

// State is the derived pairing state. The concrete type is one of Loading,
// Unavailable, PairingRequired, ConnectedPendingPhone,
// ConnectedPhoneJustSaved or ConnectedSteady.
type State interface {
	Kind() Kind
	isState()
}

// Loading means no snapshot has been received yet.
type Loading struct{}

// Unavailable means the last status fetch failed.
type Unavailable struct {
	Err string `json:"error"`
}

// PairingRequired means the account is not linked. QR is nil while the
// backend is still generating one. Code is the last pairing code issued,
// if any.
type PairingRequired struct {
	Method Method          `json:"method"`
	QR     *backend.Visual `json:"qr,omitempty"`
	Code   string          `json:"code,omitempty"`
}

// ConnectedPendingPhone means the account is linked but no admin phone is
// known; the operator is asked to enter one.
type ConnectedPendingPhone struct {
	Prefill string `json:"prefill,omitempty"`
}

// ConnectedPhoneJustSaved means the phone was saved but the backend status
// does not report it yet.
type ConnectedPhoneJustSaved struct {
	Phone string `json:"phone,omitempty"`
}

// ConnectedSteady means the account is linked and nothing needs attention.
// AdminPhone is "" when the operator skipped the prompt or a fresh save
// marker suppressed it.
type ConnectedSteady struct {
	AdminPhone string `json:"adminPhone,omitempty"`
}

func (Loading) Kind() Kind                 { return KindLoading }
func (Unavailable) Kind() Kind             { return KindUnavailable }
func (PairingRequired) Kind() Kind         { return KindPairingRequired }
func (ConnectedPendingPhone) Kind() Kind   { return KindConnectedPendingPhone }
func (ConnectedPhoneJustSaved) Kind() Kind { return KindConnectedPhoneJustSaved }
func (ConnectedSteady) Kind() Kind         { return KindConnectedSteady }

func (Loading) isState()                 {}
func (Unavailable) isState()             {}
func (PairingRequired) isState()         {}
func (ConnectedPendingPhone) isState()   {}
func (ConnectedPhoneJustSaved) isState() {}
func (ConnectedSteady) isState()         {}

// IsConnected reports whether s is one of the connected variants.
func IsConnected(s State) bool {
	switch s.(type) {
	case ConnectedPendingPhone, ConnectedPhoneJustSaved, ConnectedSteady:
		return true
	}
	return false
}

// View is a read-only projection of the engine for presentation.
type View struct {
	State        State
	Snapshot     *backend.Snapshot
	SyncState    backend.SyncState
	SyncProgress *backend.SyncProgress
	// LastError is the message of the last failed action, verbatim when the
	// backend rejected it.
	LastError string
	// NeedsRestart mirrors the backend's answer to the last phone save.
	NeedsRestart bool
}

type viewJSON struct {
	State        Kind                  `json:"state"`
	Detail       State                 `json:"detail,omitempty"`
	SyncState    backend.SyncState     `json:"syncState,omitempty"`
	SyncProgress *backend.SyncProgress `json:"syncProgress,omitempty"`
	LastError    string                `json:"lastError,omitempty"`
	NeedsRestart bool                  `json:"needsRestart,omitempty"`
}

// MarshalJSON flattens the state into {"state": kind, "detail": {...}}.
func (v View) MarshalJSON() ([]byte, error) {
	out := viewJSON{
		SyncState:    v.SyncState,
		SyncProgress: v.SyncProgress,
		LastError:    v.LastError,
		NeedsRestart: v.NeedsRestart,
	}
	if v.State != nil {
		out.State = v.State.Kind()
		if _, empty := v.State.(Loading); !empty {
			out.Detail = v.State
		}
	}
	return json.Marshal(out)
}
