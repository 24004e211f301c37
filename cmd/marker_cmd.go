package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func markerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "marker",
		Short: "Inspect the local admin-phone save marker",
	}
	cmd.AddCommand(markerShowCmd())
	cmd.AddCommand(markerClearCmd())
	return cmd
}

func markerShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the save marker and whether it is still valid",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := mustLoadConfig()
			ctx := context.Background()
			markers, err := openMarkerStore(ctx, cfg)
			exitOnError(err)
			defer markers.Close()

			sc := storeConfig(cfg)
			fmt.Printf("Driver: %s\n", sc.Driver)
			if sc.Path != "" {
				fmt.Printf("Path:   %s\n", sc.Path)
			}
			fmt.Printf("Key:    %s\n", sc.MarkerKey())

			m, err := markers.Get(ctx)
			exitOnError(err)
			if m == nil {
				fmt.Println("Marker: none")
				return
			}
			age := time.Since(m.SavedAt).Truncate(time.Second)
			state := "valid"
			if age < 0 || age > cfg.MarkerTTL() {
				state = "expired"
			}
			fmt.Printf("Marker: saved %s (%s ago, %s, ttl %s)\n", m.SavedAt.Format(time.RFC3339), age, state, cfg.MarkerTTL())
		},
	}
}

func markerClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete the save marker so the phone prompt can appear again",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := mustLoadConfig()
			ctx := context.Background()
			markers, err := openMarkerStore(ctx, cfg)
			exitOnError(err)
			defer markers.Close()

			exitOnError(markers.Delete(ctx))
			fmt.Println("Marker cleared.")
		},
	}
}
