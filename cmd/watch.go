package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/pairlink/internal/bus"
	"github.com/nextlevelbuilder/pairlink/internal/pairing"
	"github.com/nextlevelbuilder/pairlink/pkg/protocol"
)

type watchOptions struct {
	prefix         string
	phone          string
	method         string
	noPrompt       bool
	untilConnected bool
}

func watchCmd() *cobra.Command {
	var opts watchOptions
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow the pairing state, show the QR or code, and save the admin phone",
		Run: func(cmd *cobra.Command, args []string) {
			runWatch(opts)
		},
	}
	cmd.Flags().StringVar(&opts.prefix, "prefix", "", "country prefix for --phone (default phone.defaultPrefix)")
	cmd.Flags().StringVar(&opts.phone, "phone", "", "request a pairing code for this number instead of scanning the QR")
	cmd.Flags().StringVar(&opts.method, "method", "", "pairing method: qr or code")
	cmd.Flags().BoolVar(&opts.noPrompt, "no-prompt", false, "never prompt for the admin phone")
	cmd.Flags().BoolVar(&opts.untilConnected, "until-connected", false, "exit once the account is linked and the phone handled")
	return cmd
}

func runWatch(opts watchOptions) {
	cfg := mustLoadConfig()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry := initTelemetry(ctx, cfg)
	defer shutdownTelemetry()

	rt := mustApp(ctx, cfg, func() {
		fmt.Println(styleOK.Render("Account linked."))
	})
	defer rt.close()

	if opts.prefix == "" {
		opts.prefix = cfg.Phone.DefaultPrefix
	}
	if opts.method != "" {
		m, err := pairing.ParseMethod(opts.method)
		exitOnError(err)
		exitOnError(rt.session.SelectPairingMethod(m))
	}

	changed := make(chan struct{}, 1)
	rt.bus.Subscribe("cli-watch", func(ev bus.Event) {
		if ev.Name != protocol.EventPairingState {
			return
		}
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	defer rt.bus.Unsubscribe("cli-watch")

	rt.session.Start(ctx)

	w := &watcher{opts: opts, rt: rt}
	for {
		select {
		case <-ctx.Done():
			fmt.Println()
			return
		case <-changed:
			// Changes coalesce; act on the current view.
			if w.handle(ctx, rt.session.View()) {
				return
			}
		}
	}
}

// watcher reacts to view changes on the terminal.
type watcher struct {
	opts          watchOptions
	rt            *app
	lastLine      string
	lastQR        string
	codeRequested bool
}

// handle renders v and runs any interaction it calls for. It returns true
// when the watch should end.
func (w *watcher) handle(ctx context.Context, v pairing.View) bool {
	if line := stateLine(v); line != w.lastLine {
		fmt.Println(line)
		w.lastLine = line
	}

	switch st := v.State.(type) {
	case pairing.PairingRequired:
		if w.opts.phone != "" && !w.codeRequested {
			w.codeRequested = true
			pc, err := w.rt.session.RequestCode(ctx, w.opts.prefix, w.opts.phone)
			if err != nil {
				fmt.Fprintln(os.Stderr, styleErr.Render("Error")+"  "+formatActionError(err))
				return false
			}
			printCode(pc.Display())
			return false
		}
		if st.Method != pairing.MethodQR || st.QR == nil {
			return false
		}
		key := st.QR.Raw
		if key == "" {
			key = st.QR.DataURL
		}
		if key != w.lastQR {
			w.lastQR = key
			printQR(st.QR)
		}

	case pairing.ConnectedPendingPhone:
		if w.opts.noPrompt || !isTerminal() {
			if w.opts.untilConnected {
				return true
			}
			return false
		}
		w.promptPhone(ctx, st.Prefill)
		return w.handle(ctx, w.rt.session.View())

	case pairing.ConnectedPhoneJustSaved, pairing.ConnectedSteady:
		return w.opts.untilConnected
	}
	return false
}

func (w *watcher) promptPhone(ctx context.Context, prefill string) {
	prefix, number, skip, err := promptAdminPhone(w.opts.prefix, prefill)
	if err != nil || skip {
		w.rt.session.SkipPhoneConfirmation()
		return
	}
	if _, err := w.rt.session.ConfirmPhone(ctx, prefix, number); err != nil {
		fmt.Fprintln(os.Stderr, styleErr.Render("Error")+"  "+formatActionError(err))
	}
}
