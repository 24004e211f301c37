package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/pairlink/internal/qr"
)

func qrCmd() *cobra.Command {
	var pngPath string
	var size int
	cmd := &cobra.Command{
		Use:   "qr",
		Short: "Print the current pairing QR in the terminal or save it as PNG",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := mustLoadConfig()
			ctx, cancel := context.WithTimeout(context.Background(), cfg.BackendTimeout()+time.Second)
			defer cancel()

			client, err := newBackendClient(cfg)
			exitOnError(err)
			snap, err := client.Status(ctx)
			exitOnError(err)

			if snap.IsConnected {
				fmt.Println("The account is already linked.")
				return
			}
			if snap.QR == nil {
				fmt.Fprintln(os.Stderr, "The backend has not generated a QR yet. Try again in a few seconds.")
				os.Exit(1)
			}

			if pngPath == "" {
				printQR(snap.QR)
				return
			}
			data, err := qr.PNG(snap.QR, size)
			if errors.Is(err, qr.ErrNoQR) {
				fmt.Fprintln(os.Stderr, "The backend has not generated a QR yet.")
				os.Exit(1)
			}
			exitOnError(err)
			if err := os.WriteFile(pngPath, data, 0o600); err != nil {
				exitOnError(err)
			}
			fmt.Printf("QR written to %s (%dpx)\n", pngPath, qr.ClampSize(size))
		},
	}
	cmd.Flags().StringVar(&pngPath, "png", "", "write the QR as a PNG file instead of printing it")
	cmd.Flags().IntVar(&size, "size", qr.DefaultSize, fmt.Sprintf("PNG size in pixels (%d-%d)", qr.MinSize, qr.MaxSize))
	return cmd
}
