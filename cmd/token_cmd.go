package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/pairlink/internal/keyring"
)

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage the backend API token in the OS keychain",
	}
	cmd.AddCommand(tokenSetCmd())
	cmd.AddCommand(tokenClearCmd())
	cmd.AddCommand(tokenStatusCmd())
	return cmd
}

func tokenSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set [token]",
		Short: "Store the backend token (prompts when not given)",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			requireKeyring()
			var tok string
			if len(args) == 1 {
				tok = args[0]
			} else {
				var err error
				tok, err = promptPassword("Backend API token", "Stored in the OS keychain, never written to the config file")
				if err != nil {
					fmt.Println("Cancelled.")
					return
				}
			}
			if tok == "" {
				fmt.Fprintln(os.Stderr, "Error: token is empty")
				os.Exit(1)
			}
			if err := keyring.SetToken(tok); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %s\n", err)
				os.Exit(1)
			}
			fmt.Println("Token stored. Set backend.tokenFromKeyring: true to use it.")
		},
	}
}

func tokenClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove the backend token from the keychain",
		Run: func(cmd *cobra.Command, args []string) {
			requireKeyring()
			if err := keyring.DeleteToken(); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %s\n", err)
				os.Exit(1)
			}
			fmt.Println("Token removed.")
		},
	}
}

func tokenStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report where the backend token comes from",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := mustLoadConfig()
			fmt.Println(tokenSource(cfg.Backend.Token != "", cfg.Backend.TokenFromKeyring))
		},
	}
}

// tokenSource describes which token the backend client will use.
func tokenSource(inConfig, fromKeyring bool) string {
	switch {
	case inConfig:
		return "Token: from config or PAIRLINK_BACKEND_TOKEN"
	case !fromKeyring:
		return "Token: none (requests are sent without Authorization)"
	case !keyring.Available():
		return "Token: keychain selected but unavailable on this system"
	}
	if _, err := keyring.GetToken(); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "Token: keychain selected but no token stored (run 'pairlink token set')"
		}
		return "Token: keychain error: " + err.Error()
	}
	return "Token: from OS keychain"
}

func requireKeyring() {
	if !keyring.Available() {
		fmt.Fprintln(os.Stderr, "Error: no OS keychain available. Put the token in backend.token or PAIRLINK_BACKEND_TOKEN instead.")
		os.Exit(1)
	}
}
