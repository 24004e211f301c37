package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/nextlevelbuilder/pairlink/internal/backend"
	"github.com/nextlevelbuilder/pairlink/internal/bus"
	"github.com/nextlevelbuilder/pairlink/internal/config"
	"github.com/nextlevelbuilder/pairlink/internal/keyring"
	"github.com/nextlevelbuilder/pairlink/internal/pairing"
	"github.com/nextlevelbuilder/pairlink/internal/store"
	"github.com/nextlevelbuilder/pairlink/internal/store/file"
	"github.com/nextlevelbuilder/pairlink/internal/store/pg"
	redisstore "github.com/nextlevelbuilder/pairlink/internal/store/redis"
	"github.com/nextlevelbuilder/pairlink/internal/store/sqlite"
)

// app bundles everything a command needs to drive a pairing session.
type app struct {
	cfg     *config.Config
	client  *backend.Client
	markers store.MarkerStore
	bus     *bus.MessageBus
	session *pairing.Session
}

// mustLoadConfig loads the config or exits.
func mustLoadConfig() *config.Config {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %s\n", err)
		os.Exit(1)
	}
	return cfg
}

// resolveToken picks the backend token from config/env, then the keychain.
func resolveToken(cfg *config.Config) string {
	if cfg.Backend.Token != "" || !cfg.Backend.TokenFromKeyring {
		return cfg.Backend.Token
	}
	tok, err := keyring.GetToken()
	if err != nil {
		if !errors.Is(err, keyring.ErrNotFound) {
			slog.Warn("keychain unavailable, continuing without backend token", "error", err)
		}
		return ""
	}
	return tok
}

func newBackendClient(cfg *config.Config) (*backend.Client, error) {
	p := cfg.Backend.Paths
	return backend.New(backend.Options{
		BaseURL:       cfg.Backend.URL,
		Token:         resolveToken(cfg),
		Timeout:       cfg.BackendTimeout(),
		AdminPhoneKey: cfg.Backend.AdminPhoneKey,
		Paths: backend.Paths{
			Status:       p.Status,
			PairingCode:  p.PairingCode,
			ApplyConfig:  p.ApplyConfig,
			FlushSession: p.FlushSession,
			FactoryReset: p.FactoryReset,
		},
	})
}

func storeConfig(cfg *config.Config) store.StoreConfig {
	return store.StoreConfig{
		Driver:      cfg.Marker.Driver,
		Path:        cfg.MarkerPath(),
		RedisURL:    cfg.Marker.RedisURL,
		PostgresDSN: cfg.Marker.PostgresDSN,
		Key:         cfg.Marker.Key,
	}
}

// openMarkerStore opens the configured marker backend.
func openMarkerStore(ctx context.Context, cfg *config.Config) (store.MarkerStore, error) {
	sc := storeConfig(cfg)
	switch sc.Driver {
	case store.DriverSQLite:
		return sqlite.Open(sc.Path, sc.MarkerKey())
	case store.DriverRedis:
		// Redis expiry backs up the in-process TTL check.
		return redisstore.Open(ctx, sc.RedisURL, sc.MarkerKey(), 2*cfg.MarkerTTL())
	case store.DriverPostgres:
		return pg.Open(ctx, sc.PostgresDSN, sc.MarkerKey())
	case store.DriverMemory:
		return store.NewMemoryMarkerStore(), nil
	default:
		return file.NewFileMarkerStore(sc.Path, sc.MarkerKey()), nil
	}
}

// newApp wires client, marker store, bus and session from cfg. The
// session is not started. Callers must call close.
func newApp(ctx context.Context, cfg *config.Config, onConnected func()) (*app, error) {
	client, err := newBackendClient(cfg)
	if err != nil {
		return nil, err
	}
	markers, err := openMarkerStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open marker store: %w", err)
	}

	mb := bus.New()
	session := pairing.NewSession(pairing.Options{
		Backend:      client,
		Markers:      markers,
		MarkerTTL:    cfg.MarkerTTL(),
		Bus:          mb,
		OnConnected:  onConnected,
		CodeInterval: cfg.CodeInterval(),
		CodeBurst:    cfg.Backend.CodeBurst,
	}, cfg.PollInterval())

	return &app{cfg: cfg, client: client, markers: markers, bus: mb, session: session}, nil
}

// mustApp is newApp that exits on error.
func mustApp(ctx context.Context, cfg *config.Config, onConnected func()) *app {
	rt, err := newApp(ctx, cfg, onConnected)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
	return rt
}

func (rt *app) close() {
	rt.session.Stop()
	if err := rt.markers.Close(); err != nil {
		slog.Warn("close marker store", "error", err)
	}
}

// observeOnce fetches one snapshot and feeds it to the engine so the
// derived state reflects the backend without starting the poller.
func (rt *app) observeOnce(ctx context.Context) (*backend.Snapshot, error) {
	snap, err := rt.client.Status(ctx)
	if err != nil {
		rt.session.ObserveError(err)
		return nil, err
	}
	rt.session.Observe(ctx, snap)
	return snap, nil
}
