package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/nextlevelbuilder/pairlink/internal/backend"
	"github.com/nextlevelbuilder/pairlink/internal/pairing"
	"github.com/nextlevelbuilder/pairlink/internal/qr"
)

var (
	styleLabel = lipgloss.NewStyle().Bold(true)
	styleOK    = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	styleWarn  = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	styleErr   = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	styleDim   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	styleCode  = lipgloss.NewStyle().
			Bold(true).
			Padding(0, 2).
			Border(lipgloss.RoundedBorder())
)

// stateLine renders the one-line summary of a view.
func stateLine(v pairing.View) string {
	var b strings.Builder
	switch st := v.State.(type) {
	case pairing.Loading:
		b.WriteString(styleDim.Render("Loading pairing status..."))
	case pairing.Unavailable:
		b.WriteString(styleErr.Render("Unavailable") + "  " + st.Err + styleDim.Render("  (retrying)"))
	case pairing.PairingRequired:
		b.WriteString(styleWarn.Render("Not linked") + "  ")
		if st.Method == pairing.MethodCode {
			b.WriteString("link with a pairing code: WhatsApp > Linked devices > Link with phone number")
		} else {
			b.WriteString("scan the QR: WhatsApp > Linked devices > Link a device")
		}
	case pairing.ConnectedPendingPhone:
		b.WriteString(styleOK.Render("Connected") + "  admin phone not set")
	case pairing.ConnectedPhoneJustSaved:
		b.WriteString(styleOK.Render("Connected") + "  admin phone " + st.Phone + " saved")
		if v.NeedsRestart {
			b.WriteString(styleDim.Render("  (backend restart pending)"))
		}
	case pairing.ConnectedSteady:
		b.WriteString(styleOK.Render("Connected"))
		if st.AdminPhone != "" {
			b.WriteString("  admin phone " + st.AdminPhone)
		}
	}
	if s := syncSummary(v); s != "" {
		b.WriteString(styleDim.Render("  " + s))
	}
	if v.LastError != "" {
		b.WriteString("\n" + styleErr.Render("Error") + "  " + v.LastError)
	}
	return b.String()
}

func syncSummary(v pairing.View) string {
	if !pairing.IsConnected(v.State) || v.SyncState == "" || v.SyncState == backend.SyncIdle {
		return ""
	}
	if v.SyncProgress == nil {
		return "sync: " + string(v.SyncState)
	}
	s := fmt.Sprintf("sync: %s, %d chats", v.SyncState, v.SyncProgress.ItemsReceived)
	if v.SyncProgress.IsLatest {
		s += " (up to date)"
	}
	return s
}

// printCode shows a pairing code in a box.
func printCode(code string) {
	fmt.Println(styleLabel.Render("Pairing code"))
	fmt.Println(styleCode.Render(code))
}

// printQR draws the QR in the terminal, or points at an alternative when
// only a pre-rendered image is available.
func printQR(v *backend.Visual) {
	if v == nil {
		fmt.Println(styleDim.Render("Waiting for the backend to generate a QR..."))
		return
	}
	out, err := qr.Terminal(v)
	if err != nil {
		fmt.Println(styleDim.Render("QR available as an image only: run 'pairlink qr --png qr.png'"))
		return
	}
	fmt.Print(out)
}

// isTerminal reports whether stdin is interactive.
func isTerminal() bool {
	fi, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

// printJSON writes v as indented JSON followed by a newline.
func printJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
