package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/pairlink/internal/pairing"
	"github.com/nextlevelbuilder/pairlink/pkg/protocol"
)

func statusCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Fetch the pairing status once and print the derived state",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := mustLoadConfig()
			ctx, cancel := context.WithTimeout(context.Background(), cfg.BackendTimeout()+time.Second)
			defer cancel()

			rt := mustApp(ctx, cfg, nil)
			defer rt.close()

			_, err := rt.observeOnce(ctx)
			v := rt.session.View()
			if asJSON {
				if jerr := printJSON(os.Stdout, v); jerr != nil {
					rt.close()
					exitOnError(jerr)
				}
			} else {
				fmt.Println(stateLine(v))
				if pr, ok := v.State.(pairing.PairingRequired); ok && pr.QR != nil {
					fmt.Println(styleDim.Render("Run 'pairlink watch' to scan the QR or 'pairlink pair code' to link by phone number."))
				}
			}
			if err != nil {
				rt.close()
				os.Exit(1)
			}
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the state as JSON")
	return cmd
}

func pairCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pair",
		Short: "Link the account with a pairing code and save the admin phone",
	}
	cmd.AddCommand(pairCodeCmd())
	cmd.AddCommand(pairConfirmCmd())
	return cmd
}

func pairCodeCmd() *cobra.Command {
	var noWait bool
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "code [prefix] [number]",
		Short: "Request a pairing code and wait for the account to link (interactive if no phone given)",
		Args:  cobra.RangeArgs(0, 2),
		Run: func(cmd *cobra.Command, args []string) {
			cfg := mustLoadConfig()
			prefix, number := phoneArgs(args, cfg.Phone.DefaultPrefix)
			if number == "" {
				var err error
				prefix, number, err = promptPairingPhone(cfg.Phone.DefaultPrefix)
				if err != nil {
					fmt.Println("Cancelled.")
					return
				}
			}
			runPairCode(prefix, number, !noWait, timeout)
		},
	}
	cmd.Flags().BoolVar(&noWait, "no-wait", false, "print the code and exit without waiting for the link")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "how long to wait for the account to link")
	return cmd
}

// phoneArgs maps [prefix] [number] arguments. A single argument is a full
// number and the configured default prefix is not applied.
func phoneArgs(args []string, defaultPrefix string) (prefix, number string) {
	switch len(args) {
	case 2:
		return args[0], args[1]
	case 1:
		return "", args[0]
	}
	return defaultPrefix, ""
}

func runPairCode(prefix, number string, wait bool, timeout time.Duration) {
	cfg := mustLoadConfig()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry := initTelemetry(ctx, cfg)
	defer shutdownTelemetry()

	connected := make(chan struct{})
	var once sync.Once
	rt := mustApp(ctx, cfg, func() { once.Do(func() { close(connected) }) })
	defer rt.close()

	// The first snapshot seeds the connection flag so the link is seen as an edge.
	if _, err := rt.observeOnce(ctx); err != nil {
		exitOnError(err)
	}
	if pairing.IsConnected(rt.session.View().State) {
		fmt.Println(stateLine(rt.session.View()))
		fmt.Println("The account is already linked. Use 'pairlink flush' first to link another device.")
		return
	}

	pc, err := rt.session.RequestCode(ctx, prefix, number)
	exitOnError(err)
	printCode(pc.Display())
	fmt.Println("Enter it in WhatsApp: Linked devices > Link a device > Link with phone number instead.")
	if !wait {
		return
	}

	rt.session.Start(ctx)
	fmt.Println(styleDim.Render("Waiting for the account to link..."))

	select {
	case <-connected:
	case <-ctx.Done():
		fmt.Println("Cancelled. The code stays valid until it expires.")
		return
	case <-time.After(timeout):
		fmt.Fprintln(os.Stderr, "Timed out waiting for the account to link.")
		os.Exit(1)
	}

	v := rt.session.View()
	fmt.Println(stateLine(v))
	if _, ok := v.State.(pairing.ConnectedPendingPhone); ok {
		fmt.Println("Run 'pairlink pair confirm' to save the admin phone.")
	}
}

func pairConfirmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "confirm [prefix] [number]",
		Short: "Save the admin phone on a linked account (interactive if no phone given)",
		Args:  cobra.RangeArgs(0, 2),
		Run: func(cmd *cobra.Command, args []string) {
			cfg := mustLoadConfig()
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rt := mustApp(ctx, cfg, nil)
			defer rt.close()

			if _, err := rt.observeOnce(ctx); err != nil {
				exitOnError(err)
			}

			prefix, number := phoneArgs(args, cfg.Phone.DefaultPrefix)
			if number == "" {
				var prefill string
				if p, ok := rt.session.View().State.(pairing.ConnectedPendingPhone); ok {
					prefill = p.Prefill
				}
				var skip bool
				var err error
				prefix, number, skip, err = promptAdminPhone(cfg.Phone.DefaultPrefix, prefill)
				if err != nil || skip {
					fmt.Println("Cancelled.")
					return
				}
			}

			res, err := rt.session.ConfirmPhone(ctx, prefix, number)
			exitOnError(err)
			fmt.Println(stateLine(rt.session.View()))
			if res.NeedsRestart {
				fmt.Println("The backend needs a restart to apply the admin phone.")
			}
		},
	}
}

func attachCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "attach",
		Short: "Follow the pairing state of a running 'pairlink serve'",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := mustLoadConfig()
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if err := attach(ctx, serverWSURL(cfg.Server.Host, cfg.Server.Port), cfg.Server.Token, printRemoteView); err != nil && ctx.Err() == nil {
				fmt.Fprintf(os.Stderr, "Error: %s\n", err)
				os.Exit(1)
			}
		},
	}
}

func serverWSURL(host string, port int) string {
	if host == "" || host == "0.0.0.0" {
		host = "127.0.0.1"
	}
	u := url.URL{Scheme: "ws", Host: fmt.Sprintf("%s:%d", host, port), Path: "/ws"}
	return u.String()
}

// remoteView is the client-side decoding of a pairing.state payload.
type remoteView struct {
	State        pairing.Kind    `json:"state"`
	Detail       json.RawMessage `json:"detail,omitempty"`
	SyncState    string          `json:"syncState,omitempty"`
	LastError    string          `json:"lastError,omitempty"`
	NeedsRestart bool            `json:"needsRestart,omitempty"`
}

// attach reads event frames from a serve WebSocket until ctx ends or the
// connection drops, calling fn for every pairing.state event.
func attach(ctx context.Context, wsURL, token string, fn func(remoteView)) error {
	header := make(map[string][]string)
	if token != "" {
		header["Authorization"] = []string{"Bearer " + token}
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", wsURL, err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return fmt.Errorf("read event: %w", err)
		}
		if ft, _ := protocol.ParseFrameType(msg); ft != protocol.FrameTypeEvent {
			continue
		}
		var frame struct {
			Event   string          `json:"event"`
			Payload json.RawMessage `json:"payload"`
		}
		if err := json.Unmarshal(msg, &frame); err != nil {
			return fmt.Errorf("parse event: %w", err)
		}
		if frame.Event != protocol.EventPairingState {
			continue
		}
		var v remoteView
		if err := json.Unmarshal(frame.Payload, &v); err != nil {
			return fmt.Errorf("parse state: %w", err)
		}
		fn(v)
	}
}

func printRemoteView(v remoteView) {
	line := styleLabel.Render(string(v.State))
	if len(v.Detail) > 0 {
		line += "  " + styleDim.Render(string(v.Detail))
	}
	fmt.Println(line)
	if v.LastError != "" {
		fmt.Println(styleErr.Render("Error") + "  " + v.LastError)
	}
}
