package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/nextlevelbuilder/pairlink/internal/qr"
	"github.com/nextlevelbuilder/pairlink/pkg/protocol"
)

// handleQR serves the current pairing QR as a PNG. ?size= sets the edge
// length in pixels.
func (s *Server) handleQR(w http.ResponseWriter, r *http.Request) {
	v := s.ctrl.View()
	if v.Snapshot == nil || v.Snapshot.IsConnected {
		writeError(w, r, http.StatusNotFound, protocol.ErrNotFound, "no pairing in progress")
		return
	}

	size, _ := strconv.Atoi(r.URL.Query().Get("size"))
	png, err := qr.PNG(v.Snapshot.QR, size)
	if errors.Is(err, qr.ErrNoQR) {
		writeError(w, r, http.StatusNotFound, protocol.ErrNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(w, r, http.StatusBadGateway, protocol.ErrUnavailable, err.Error())
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(png)
}
