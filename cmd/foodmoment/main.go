// Command foodmoment is an offline-first meal, water and weight tracker.
//
// Every write lands in a local SQLite store first and is pushed to the
// backend when it is reachable. The daemon subcommand runs the long-lived
// side: network watching, sync on reconnect, achievement unlocks and a
// WebSocket feed for UI clients.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ZhaoChaoqun/foodmoment/internal/config"
)

var (
	configPath string
	dbPath     string
	verbose    bool

	// cfg is loaded once per invocation in PersistentPreRunE.
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "foodmoment",
	Short: "Offline-first meal, water and weight tracker",
	Long: `foodmoment records meals, water and weight locally and syncs them to the
FoodMoment backend whenever it is reachable.

Records are written locally first, so logging works offline. Pending records
are pushed by the next sync pass: after a write when the backend is up, by
'foodmoment sync', or by the daemon when connectivity returns.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if dbPath != "" {
			loaded.DBPath = dbPath
		}
		cfg = loaded
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default ~/.foodmoment/config.toml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Path to the local SQLite store (overrides db_path)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log component activity to stderr")

	rootCmd.AddGroup(
		&cobra.Group{ID: "track", Title: "Tracking:"},
		&cobra.Group{ID: "sync", Title: "Sync:"},
		&cobra.Group{ID: "maint", Title: "Maintenance:"},
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
