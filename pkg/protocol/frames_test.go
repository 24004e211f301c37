package protocol

import (
	"encoding/json"
	"testing"
)

func TestParseFrameType(t *testing.T) {
	data, _ := json.Marshal(NewEvent(EventPairingState, map[string]string{"state": "loading"}))
	ft, err := ParseFrameType(data)
	if err != nil {
		t.Fatalf("ParseFrameType: %v", err)
	}
	if ft != FrameTypeEvent {
		t.Errorf("type = %q, want %q", ft, FrameTypeEvent)
	}

	if _, err := ParseFrameType([]byte("{")); err == nil {
		t.Error("expected error for malformed JSON")
	}
}

func TestNewErrorResponse(t *testing.T) {
	resp := NewErrorResponse("req-1", ErrRejected, "Invalid phone")
	if resp.OK || resp.Error == nil || resp.Error.Code != ErrRejected || resp.Error.Message != "Invalid phone" {
		t.Errorf("unexpected response: %+v", resp)
	}
	if resp.Type != FrameTypeResponse || resp.ID != "req-1" {
		t.Errorf("envelope = %+v", resp)
	}
}
