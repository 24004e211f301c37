package http

import (
	"context"
	"net/http"

	"github.com/nextlevelbuilder/pairlink/internal/pairing"
)

type phoneRequest struct {
	Prefix string `json:"prefix"`
	Number string `json:"number"`
}

type methodRequest struct {
	Method string `json:"method"`
}

type confirmRequest struct {
	Confirm bool `json:"confirm"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeOK(w, r, map[string]string{"status": "ok"})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeOK(w, r, s.ctrl.View())
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	s.ctrl.Retry()
	writeOK(w, r, s.ctrl.View())
}

func (s *Server) handleMethod(w http.ResponseWriter, r *http.Request) {
	var req methodRequest
	if !decodeBody(w, r, &req) {
		return
	}
	m, err := pairing.ParseMethod(req.Method)
	if err == nil {
		err = s.ctrl.SelectPairingMethod(m)
	}
	if err != nil {
		s.writeActionError(w, r, err)
		return
	}
	writeOK(w, r, s.ctrl.View())
}

func (s *Server) handleCode(w http.ResponseWriter, r *http.Request) {
	var req phoneRequest
	if !decodeBody(w, r, &req) {
		return
	}
	pc, err := s.ctrl.RequestCode(r.Context(), req.Prefix, req.Number)
	if err != nil {
		s.writeActionError(w, r, err)
		return
	}
	writeOK(w, r, map[string]interface{}{
		"code": pc.Display(),
		"view": s.ctrl.View(),
	})
}

func (s *Server) handleConfirmPhone(w http.ResponseWriter, r *http.Request) {
	var req phoneRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := s.ctrl.ConfirmPhone(r.Context(), req.Prefix, req.Number)
	if err != nil {
		s.writeActionError(w, r, err)
		return
	}
	writeOK(w, r, map[string]interface{}{
		"needsRestart": res.NeedsRestart,
		"view":         s.ctrl.View(),
	})
}

func (s *Server) handleSkip(w http.ResponseWriter, r *http.Request) {
	s.ctrl.SkipPhoneConfirmation()
	writeOK(w, r, s.ctrl.View())
}

func (s *Server) handleFlush(w http.ResponseWriter, r *http.Request) {
	s.destructive(w, r, s.ctrl.FlushSession)
}

func (s *Server) handleFactoryReset(w http.ResponseWriter, r *http.Request) {
	s.destructive(w, r, s.ctrl.FactoryReset)
}

// destructive runs a flush/reset only when the body carries {"confirm": true}.
func (s *Server) destructive(w http.ResponseWriter, r *http.Request, call func(context.Context) error) {
	var req confirmRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !req.Confirm {
		s.writeActionError(w, r, pairing.ErrNotConfirmed)
		return
	}
	if err := call(r.Context()); err != nil {
		s.writeActionError(w, r, err)
		return
	}
	writeOK(w, r, s.ctrl.View())
}
