package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/lazypower/sigil/internal/config"
	"github.com/lazypower/sigil/internal/engine"
	"github.com/lazypower/sigil/internal/signing"
)

// Compaction is explicit-only: revoked records stay on disk for audit until
// an operator runs this command (or hits the admin endpoint).
var compactCmd = &cobra.Command{
	Use:   "compact",
	Short: "Physically remove revoked records",
	RunE:  runCompact,
}

func runCompact(cmd *cobra.Command, args []string) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}

	signer, err := signing.Load(cfg.Signing.Key, cfg.Signing.KeyFile)
	if err != nil {
		return fmt.Errorf("signing key: %w", err)
	}

	driver, path, err := openDriver(cfg.Storage)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}

	eng := engine.New(driver, signer, engine.Options{})
	defer driver.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	removed, err := eng.Compact(ctx)
	if err != nil {
		return fmt.Errorf("compact: %w", err)
	}
	fmt.Printf("compacted %d revoked records from %s\n", removed, path)
	return nil
}
