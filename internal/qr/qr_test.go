package qr

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/skip2/go-qrcode"

	"github.com/nextlevelbuilder/pairlink/internal/backend"
)

func decodeSize(t *testing.T, data []byte) image.Point {
	t.Helper()
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode png: %v", err)
	}
	return img.Bounds().Size()
}

func TestPNG_FromRaw(t *testing.T) {
	data, err := PNG(&backend.Visual{Raw: "2@abc,def,ghi"}, 300)
	if err != nil {
		t.Fatalf("PNG: %v", err)
	}
	if got := decodeSize(t, data); got.X != 300 || got.Y != 300 {
		t.Errorf("size = %v, want 300x300", got)
	}
}

func TestPNG_FromDataURL(t *testing.T) {
	small, err := qrcode.Encode("2@abc", qrcode.Low, 64)
	if err != nil {
		t.Fatal(err)
	}
	v := &backend.Visual{DataURL: "data:image/png;base64," + base64.StdEncoding.EncodeToString(small)}

	data, err := PNG(v, 0)
	if err != nil {
		t.Fatalf("PNG: %v", err)
	}
	if got := decodeSize(t, data); got.X != DefaultSize {
		t.Errorf("width = %d, want %d", got.X, DefaultSize)
	}
}

func TestPNG_Errors(t *testing.T) {
	if _, err := PNG(nil, 0); !errors.Is(err, ErrNoQR) {
		t.Errorf("nil visual: %v", err)
	}
	if _, err := PNG(&backend.Visual{DataURL: "data:image/gif;base64,AAAA"}, 0); err == nil {
		t.Error("expected error for non-PNG data URL")
	}
	if _, err := PNG(&backend.Visual{DataURL: "data:image/png;base64,!!!"}, 0); err == nil {
		t.Error("expected error for bad base64")
	}
}

func TestClampSize(t *testing.T) {
	tests := []struct{ in, want int }{
		{0, DefaultSize}, {-5, DefaultSize}, {50, MinSize}, {512, 512}, {5000, MaxSize},
	}
	for _, tt := range tests {
		if got := ClampSize(tt.in); got != tt.want {
			t.Errorf("ClampSize(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestTerminal(t *testing.T) {
	out, err := Terminal(&backend.Visual{Raw: "2@abc"})
	if err != nil {
		t.Fatalf("Terminal: %v", err)
	}
	if !strings.Contains(out, "█") && !strings.Contains(out, "▀") && !strings.Contains(out, "▄") {
		t.Errorf("output has no block characters: %q", out)
	}
	if _, err := Terminal(&backend.Visual{DataURL: "data:image/png;base64,AAAA"}); !errors.Is(err, ErrNoQR) {
		t.Errorf("data-URL-only visual: %v", err)
	}
}
