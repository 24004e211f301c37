// Package http serves the local pairing surface: a read-only projection of
// the pairing state, the pairing actions, a QR image and a WebSocket push
// channel for dashboards.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nextlevelbuilder/pairlink/internal/backend"
	"github.com/nextlevelbuilder/pairlink/internal/bus"
	"github.com/nextlevelbuilder/pairlink/internal/pairing"
	"github.com/nextlevelbuilder/pairlink/pkg/protocol"
)

// maxBodyBytes bounds action request bodies.
const maxBodyBytes = 64 * 1024

// Controller is the pairing session the surface drives.
// *pairing.Session satisfies it.
type Controller interface {
	View() pairing.View
	Retry()
	SelectPairingMethod(m pairing.Method) error
	RequestCode(ctx context.Context, prefix, number string) (*backend.PairingCode, error)
	ConfirmPhone(ctx context.Context, prefix, number string) (*backend.ApplyResult, error)
	SkipPhoneConfirmation()
	FlushSession(ctx context.Context) error
	FactoryReset(ctx context.Context) error
}

// Subscriber delivers pairing events. *bus.MessageBus satisfies it.
type Subscriber interface {
	Subscribe(id string, handler bus.EventHandler)
	Unsubscribe(id string)
}

// Options configures a Server.
type Options struct {
	// Token, when set, is required as a bearer token on every route but /health.
	Token          string
	AllowedOrigins []string
	// ActionsPerMinute limits mutating requests per remote IP (0 disables).
	ActionsPerMinute int
	ActionBurst      int
	// CodeInterval is the pairing-code cooldown reported to rate-limited
	// clients. Defaults to pairing.DefaultCodeInterval.
	CodeInterval time.Duration
	// OnShutdown runs once ctx is cancelled, before connections close.
	OnShutdown func()
}

// Server is the local HTTP/WebSocket surface.
type Server struct {
	ctrl     Controller
	events   Subscriber
	token    string
	origins  []string
	limiter  *RateLimiter
	retry    time.Duration
	onStop   func()
	upgrader websocket.Upgrader
	mux      *http.ServeMux
}

func NewServer(ctrl Controller, events Subscriber, opts Options) *Server {
	if opts.CodeInterval <= 0 {
		opts.CodeInterval = pairing.DefaultCodeInterval
	}
	s := &Server{
		ctrl:    ctrl,
		events:  events,
		token:   opts.Token,
		origins: opts.AllowedOrigins,
		limiter: NewRateLimiter(opts.ActionsPerMinute, opts.ActionBurst),
		retry:   opts.CodeInterval,
		onStop:  opts.OnShutdown,
		mux:     http.NewServeMux(),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)

	s.mux.HandleFunc("GET /v1/pairing/state", s.requireToken(s.handleState))
	s.mux.HandleFunc("GET /v1/pairing/qr.png", s.requireToken(s.handleQR))
	s.mux.HandleFunc("POST /v1/pairing/retry", s.requireToken(s.handleRetry))
	s.mux.HandleFunc("POST /v1/pairing/method", s.action(s.handleMethod))
	s.mux.HandleFunc("POST /v1/pairing/code", s.action(s.handleCode))
	s.mux.HandleFunc("POST /v1/pairing/confirm-phone", s.action(s.handleConfirmPhone))
	s.mux.HandleFunc("POST /v1/pairing/skip", s.action(s.handleSkip))
	s.mux.HandleFunc("POST /v1/pairing/flush", s.action(s.handleFlush))
	s.mux.HandleFunc("POST /v1/pairing/factory-reset", s.action(s.handleFactoryReset))

	s.mux.HandleFunc("GET /ws", s.requireToken(s.handleWS))
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.mux }

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("pairing surface listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		s.limiter.Stop()
		return err
	case <-ctx.Done():
	}

	if s.onStop != nil {
		s.onStop()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.limiter.Stop()
	if err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// action wraps a mutating handler with auth and rate limiting.
func (s *Server) action(next http.HandlerFunc) http.HandlerFunc {
	return s.requireToken(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow(remoteIP(r)) {
			writeError(w, r, http.StatusTooManyRequests, protocol.ErrResourceExhausted, "too many requests")
			return
		}
		next(w, r)
	})
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func requestID(r *http.Request) string {
	if id := r.Header.Get("X-Request-Id"); id != "" {
		return id
	}
	return uuid.NewString()
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("write response failed", "error", err)
	}
}

func writeOK(w http.ResponseWriter, r *http.Request, payload interface{}) {
	writeJSON(w, http.StatusOK, protocol.NewOKResponse(requestID(r), payload))
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, protocol.NewErrorResponse(requestID(r), code, message))
}

// writeActionError maps pairing and backend errors onto HTTP statuses.
func (s *Server) writeActionError(w http.ResponseWriter, r *http.Request, err error) {
	var rej *backend.RejectedError
	switch {
	case errors.Is(err, pairing.ErrInvalidPhone), errors.Is(err, pairing.ErrInvalidMethod):
		writeError(w, r, http.StatusBadRequest, protocol.ErrInvalidRequest, err.Error())
	case errors.Is(err, pairing.ErrNotConfirmed):
		writeError(w, r, http.StatusPreconditionFailed, protocol.ErrFailedPrecondition, err.Error())
	case errors.Is(err, pairing.ErrRateLimited):
		resp := protocol.NewErrorResponse(requestID(r), protocol.ErrResourceExhausted, err.Error())
		resp.Error.Retryable = true
		resp.Error.RetryAfterMs = int(s.retry / time.Millisecond)
		writeJSON(w, http.StatusTooManyRequests, resp)
	case errors.As(err, &rej):
		writeError(w, r, http.StatusUnprocessableEntity, protocol.ErrRejected, rej.Message)
	case errors.Is(err, backend.ErrTransport):
		resp := protocol.NewErrorResponse(requestID(r), protocol.ErrUnavailable, err.Error())
		resp.Error.Retryable = true
		writeJSON(w, http.StatusServiceUnavailable, resp)
	default:
		slog.Error("pairing action failed", "path", r.URL.Path, "error", err)
		writeError(w, r, http.StatusInternalServerError, protocol.ErrInternal, err.Error())
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, r, http.StatusBadRequest, protocol.ErrInvalidRequest, "invalid JSON: "+err.Error())
		return false
	}
	return true
}
