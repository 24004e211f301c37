// Package qr renders the backend's pairing QR for terminals and browsers.
package qr

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/skip2/go-qrcode"

	"github.com/nextlevelbuilder/pairlink/internal/backend"
)

const (
	DefaultSize = 256
	MinSize     = 128
	MaxSize     = 1024
)

// ErrNoQR is returned when the backend has not produced a QR yet.
var ErrNoQR = errors.New("no pairing QR available")

const pngDataURLPrefix = "data:image/png;base64,"

// ClampSize bounds a requested edge length, 0 meaning DefaultSize.
func ClampSize(size int) int {
	switch {
	case size <= 0:
		return DefaultSize
	case size < MinSize:
		return MinSize
	case size > MaxSize:
		return MaxSize
	}
	return size
}

// PNG returns v as a size×size PNG. The raw payload is re-encoded when
// present; otherwise the backend's pre-rendered data URL is decoded and
// scaled.
func PNG(v *backend.Visual, size int) ([]byte, error) {
	if v == nil || (v.Raw == "" && v.DataURL == "") {
		return nil, ErrNoQR
	}
	size = ClampSize(size)

	if v.Raw != "" {
		png, err := qrcode.Encode(v.Raw, qrcode.Medium, size)
		if err != nil {
			return nil, fmt.Errorf("encode qr: %w", err)
		}
		return png, nil
	}
	return scaleDataURL(v.DataURL, size)
}

func scaleDataURL(dataURL string, size int) ([]byte, error) {
	if !strings.HasPrefix(dataURL, pngDataURLPrefix) {
		return nil, fmt.Errorf("unsupported QR data URL")
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(dataURL, pngDataURLPrefix))
	if err != nil {
		return nil, fmt.Errorf("decode QR data URL: %w", err)
	}
	img, err := imaging.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode QR image: %w", err)
	}
	// Nearest neighbour keeps module edges sharp.
	scaled := imaging.Resize(img, size, size, imaging.NearestNeighbor)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, scaled, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode QR image: %w", err)
	}
	return buf.Bytes(), nil
}

// Terminal renders the raw payload as half-block characters for a terminal.
func Terminal(v *backend.Visual) (string, error) {
	if v == nil || v.Raw == "" {
		return "", ErrNoQR
	}
	code, err := qrcode.New(v.Raw, qrcode.Low)
	if err != nil {
		return "", fmt.Errorf("encode qr: %w", err)
	}
	return code.ToSmallString(false), nil
}
