package pairing

import (
	"encoding/json"
	"testing"

	"github.com/nextlevelbuilder/pairlink/internal/backend"
)

func TestView_MarshalJSON(t *testing.T) {
	tests := []struct {
		name string
		view View
		want string
	}{
		{"loading", View{State: Loading{}}, `{"state":"loading"}`},
		{
			"pairing_code",
			View{State: PairingRequired{Method: MethodCode, Code: "ABCD-1234"}, SyncState: backend.SyncIdle},
			`{"state":"pairing_required","detail":{"method":"code","code":"ABCD-1234"},"syncState":"idle"}`,
		},
		{
			"steady",
			View{State: ConnectedSteady{AdminPhone: "14155551234"}, NeedsRestart: true},
			`{"state":"connected_steady","detail":{"adminPhone":"14155551234"},"needsRestart":true}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.view)
			if err != nil {
				t.Fatalf("Marshal: %v", err)
			}
			if string(data) != tt.want {
				t.Errorf("got  %s\nwant %s", data, tt.want)
			}
		})
	}
}

func TestIsConnected(t *testing.T) {
	for _, st := range []State{Loading{}, Unavailable{}, PairingRequired{}} {
		if IsConnected(st) {
			t.Errorf("%s reported connected", st.Kind())
		}
	}
	for _, st := range []State{ConnectedPendingPhone{}, ConnectedPhoneJustSaved{}, ConnectedSteady{}} {
		if !IsConnected(st) {
			t.Errorf("%s reported disconnected", st.Kind())
		}
	}
}

func TestParseMethod(t *testing.T) {
	if m, err := ParseMethod("code"); err != nil || m != MethodCode {
		t.Errorf("ParseMethod(code) = %q, %v", m, err)
	}
	if _, err := ParseMethod(""); err == nil {
		t.Error("empty method should be rejected")
	}
}
