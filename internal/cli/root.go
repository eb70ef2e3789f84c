package cli

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "sigil",
	Short: "Content-addressed, signed record store with importance-weighted eviction",
	Long:  "Sigil stores cryptographically signed records, decays their importance over time, and evicts what nothing pins. Single Go binary.",
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(compactCmd)
}
