package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nextlevelbuilder/pairlink/internal/bus"
	"github.com/nextlevelbuilder/pairlink/internal/config"
	pairhttp "github.com/nextlevelbuilder/pairlink/internal/http"
	"github.com/nextlevelbuilder/pairlink/pkg/protocol"
)

func serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the pairing session with a local HTTP/WebSocket surface for dashboards",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default server.host:server.port)")
	return cmd
}

func runServe(addr string) error {
	cfg := mustLoadConfig()
	if addr == "" {
		addr = cfg.ListenAddr()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry := initTelemetry(ctx, cfg)
	defer shutdownTelemetry()

	rt, err := newApp(ctx, cfg, func() {
		slog.Info("whatsapp account linked")
	})
	if err != nil {
		return err
	}
	defer rt.close()

	watcher := startConfigWatcher(rt)
	if watcher != nil {
		defer watcher.Stop()
	}

	if err := serve(ctx, rt, addr); err != nil {
		slog.Error("serve stopped", "error", err)
		return err
	}
	slog.Info("serve stopped")
	return nil
}

// serve runs the session and the HTTP surface until ctx is cancelled or
// the listener fails. Clients get a shutdown event before connections close.
func serve(ctx context.Context, rt *app, addr string) error {
	cfg := rt.cfg
	if cfg.Server.Token == "" {
		slog.Warn("server.token is empty: the pairing surface accepts unauthenticated requests", "addr", addr)
	}

	srv := pairhttp.NewServer(rt.session, rt.bus, pairhttp.Options{
		Token:            cfg.Server.Token,
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		ActionsPerMinute: cfg.Server.ActionsPerMinute,
		CodeInterval:     cfg.CodeInterval(),
		OnShutdown: func() {
			rt.bus.Broadcast(bus.Event{Name: protocol.EventShutdown})
		},
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rt.session.Start(gctx)
		<-gctx.Done()
		rt.session.Stop()
		return nil
	})
	g.Go(func() error {
		return srv.ListenAndServe(gctx, addr)
	})
	return g.Wait()
}

// startConfigWatcher applies poll interval and marker TTL changes to the
// running session. Other settings need a restart.
func startConfigWatcher(rt *app) *config.Watcher {
	w, err := config.NewWatcher(resolveConfigPath())
	if err != nil {
		slog.Warn("config hot reload disabled", "error", err)
		return nil
	}
	w.OnChange(func(cfg *config.Config) {
		if d := cfg.PollInterval(); d != rt.session.PollInterval() {
			rt.session.SetPollInterval(d)
			slog.Info("poll interval updated", "interval", d)
		}
		rt.session.SetMarkerTTL(cfg.MarkerTTL())
	})
	if err := w.Start(); err != nil {
		slog.Warn("config hot reload disabled", "error", err)
		return nil
	}
	return w
}
