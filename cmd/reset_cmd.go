package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/pairlink/internal/pairing"
)

func flushCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "flush",
		Short: "Drop the backend's WhatsApp session so the account must pair again",
		Run: func(cmd *cobra.Command, args []string) {
			runReset(resetFlush, yes)
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}

func resetCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Factory-reset all backend WhatsApp state (last resort, try 'flush' first)",
		Long: `Factory reset wipes every piece of WhatsApp state the backend holds,
not just the current session. It cannot be undone and the account must be
linked again from scratch.

Use it only when 'pairlink flush' did not fix pairing.`,
		Run: func(cmd *cobra.Command, args []string) {
			runReset(resetFactory, yes)
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}

type resetKind int

const (
	resetFlush resetKind = iota
	resetFactory
)

func (k resetKind) question() string {
	if k == resetFactory {
		return "Factory reset wipes ALL backend WhatsApp state and cannot be undone. Use it only as a last resort, after 'pairlink flush' did not help. Continue?"
	}
	return "Flush the backend's WhatsApp session? The account must be linked again."
}

func runReset(kind resetKind, yes bool) {
	if !yes {
		ok, err := promptConfirm(kind.question(), false)
		if err != nil || !ok {
			exitOnError(pairing.ErrNotConfirmed)
		}
	}

	cfg := mustLoadConfig()
	ctx, cancel := context.WithTimeout(context.Background(), 2*cfg.BackendTimeout())
	defer cancel()

	rt := mustApp(ctx, cfg, nil)
	defer rt.close()

	var err error
	if kind == resetFactory {
		err = rt.session.FactoryReset(ctx)
	} else {
		err = rt.session.FlushSession(ctx)
	}
	exitOnError(err)
	fmt.Println("Done. Run 'pairlink watch' to link the account again.")
}
