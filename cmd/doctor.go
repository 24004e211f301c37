package cmd

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/pairlink/internal/config"
	"github.com/nextlevelbuilder/pairlink/internal/keyring"
	"github.com/nextlevelbuilder/pairlink/pkg/protocol"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration, backend reachability and local storage",
		Run: func(cmd *cobra.Command, args []string) {
			if !runDoctor() {
				os.Exit(1)
			}
		},
	}
}

// runDoctor prints a health report and returns false when a required
// check failed.
func runDoctor() bool {
	fmt.Println("pairlink doctor")
	fmt.Printf("  Version:  %s (protocol %d)\n", Version, protocol.ProtocolVersion)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (not found, using defaults)")
	} else {
		fmt.Println(" (OK)")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return false
	}

	ok := true
	ctx, cancel := context.WithTimeout(context.Background(), cfg.BackendTimeout()+time.Second)
	defer cancel()

	fmt.Println()
	fmt.Println("  Backend:")
	fmt.Printf("    %-12s %s\n", "URL:", cfg.Backend.URL)
	fmt.Printf("    %-12s %s\n", "Token:", tokenSource(cfg.Backend.Token != "", cfg.Backend.TokenFromKeyring))
	ok = checkBackend(ctx, cfg) && ok

	fmt.Println()
	fmt.Println("  Marker store:")
	ok = checkMarkerStore(ctx, cfg) && ok

	fmt.Println()
	fmt.Println("  Optional:")
	keychain := "unavailable"
	if keyring.Available() {
		keychain = "available"
	}
	fmt.Printf("    %-12s %s\n", "Keychain:", keychain)
	fmt.Printf("    %-12s %s\n", "Telemetry:", telemetryStatus(cfg))
	fmt.Printf("    %-12s %s\n", "Serve:", cfg.ListenAddr())

	fmt.Println()
	if ok {
		fmt.Println("Doctor check complete.")
	} else {
		fmt.Println("Doctor found problems.")
	}
	return ok
}

func checkBackend(ctx context.Context, cfg *config.Config) bool {
	client, err := newBackendClient(cfg)
	if err != nil {
		fmt.Printf("    %-12s %s\n", "Status:", err)
		return false
	}
	start := time.Now()
	snap, err := client.Status(ctx)
	if err != nil {
		fmt.Printf("    %-12s %s\n", "Status:", formatActionError(err))
		return false
	}
	linked := "not linked"
	if snap.IsConnected {
		linked = "linked"
	}
	fmt.Printf("    %-12s OK in %s (%s)\n", "Status:", time.Since(start).Truncate(time.Millisecond), linked)
	return true
}

func checkMarkerStore(ctx context.Context, cfg *config.Config) bool {
	sc := storeConfig(cfg)
	fmt.Printf("    %-12s %s\n", "Driver:", sc.Driver)
	if sc.Path != "" {
		fmt.Printf("    %-12s %s\n", "Path:", sc.Path)
	}
	markers, err := openMarkerStore(ctx, cfg)
	if err != nil {
		fmt.Printf("    %-12s %s\n", "Open:", err)
		return false
	}
	defer markers.Close()
	if _, err := markers.Get(ctx); err != nil {
		fmt.Printf("    %-12s %s\n", "Read:", err)
		return false
	}
	fmt.Printf("    %-12s OK\n", "Read:")
	return true
}

func telemetryStatus(cfg *config.Config) string {
	switch {
	case !telemetryCompiled:
		return "not compiled in (build with -tags otel)"
	case !cfg.Telemetry.Enabled || cfg.Telemetry.Endpoint == "":
		return "disabled"
	}
	return "exporting to " + cfg.Telemetry.Endpoint
}
