package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lazypower/sigil/internal/breaker"
	"github.com/lazypower/sigil/internal/config"
	"github.com/lazypower/sigil/internal/dna"
	"github.com/lazypower/sigil/internal/engine"
	"github.com/lazypower/sigil/internal/metrics"
	"github.com/lazypower/sigil/internal/server"
	"github.com/lazypower/sigil/internal/signing"
	"github.com/lazypower/sigil/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}

	// The signing key is the one startup hard requirement.
	signer, err := signing.Load(cfg.Signing.Key, cfg.Signing.KeyFile)
	if err != nil {
		return fmt.Errorf("signing key: %w", err)
	}

	driver, path, err := openDriver(cfg.Storage)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}

	met := metrics.New()

	opts := engine.Options{
		SweepInterval:  cfg.Decay.Interval,
		DecayThreshold: cfg.Decay.Threshold,
		HalfLife:       cfg.Decay.HalfLife,
		Metrics:        met,
	}
	if cfg.DNA.URL != "" {
		brkCfg := breaker.DefaultConfig()
		brkCfg.Timeout = cfg.Breaker.Timeout
		brkCfg.ErrorThreshold = cfg.Breaker.ErrorThreshold
		brkCfg.ResetTimeout = cfg.Breaker.ResetTimeout
		opts.Breaker = breaker.New(brkCfg)
		opts.Attester = dna.NewClient(cfg.DNA.URL)
		fmt.Fprintf(os.Stderr, "  dnastore: %s\n", cfg.DNA.URL)
	}

	eng := engine.New(driver, signer, opts)
	eng.Start()
	defer eng.Stop()

	srv := server.New(eng, met, VersionString(), cfg.Metrics.Token)
	addr := cfg.ListenAddr()

	httpServer := &http.Server{
		Addr:    addr,
		Handler: srv,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		fmt.Fprintf(os.Stderr, "sigil serving on %s\n", addr)
		fmt.Fprintf(os.Stderr, "  storage: %s (%s)\n", cfg.Storage.Backend, path)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "server error: %v\n", err)
			os.Exit(1)
		}
	}()

	<-done
	fmt.Fprintln(os.Stderr, "\nshutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return httpServer.Shutdown(ctx)
}

// openDriver builds the configured storage driver. Returns the resolved
// data path for logging.
func openDriver(cfg config.StorageConfig) (storage.Driver, string, error) {
	path := cfg.Path
	if path == "" && cfg.Backend != "memory" {
		base, err := config.DefaultDataPath()
		if err != nil {
			return nil, "", err
		}
		switch cfg.Backend {
		case "badger":
			path = filepath.Join(base, "badger")
		default:
			path = filepath.Join(base, "sigil.db")
		}
	}

	switch cfg.Backend {
	case "memory":
		return storage.NewMemory(), "memory", nil
	case "badger":
		d, err := storage.OpenBadger(path)
		return d, path, err
	case "sqlite":
		d, err := storage.OpenSQLite(path)
		return d, path, err
	default:
		return nil, "", fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
