package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ZhaoChaoqun/foodmoment/internal/achievement"
	"github.com/ZhaoChaoqun/foodmoment/internal/api"
	"github.com/ZhaoChaoqun/foodmoment/internal/appstate"
	"github.com/ZhaoChaoqun/foodmoment/internal/daemon"
	"github.com/ZhaoChaoqun/foodmoment/internal/dashboard"
	"github.com/ZhaoChaoqun/foodmoment/internal/db"
	"github.com/ZhaoChaoqun/foodmoment/internal/logging"
	"github.com/ZhaoChaoqun/foodmoment/internal/netwatch"
	"github.com/ZhaoChaoqun/foodmoment/internal/sync"
	"github.com/ZhaoChaoqun/foodmoment/internal/ui"
)

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	GroupID: "sync",
	Short:   "Run the sync daemon (foreground)",
	Long: `Run the long-lived tracker process in the foreground.

The daemon will:
  1. Probe the backend and track connectivity
  2. Push pending records when the backend comes back
  3. Watch the store for writes by other foodmoment commands
  4. Unlock achievements and queue their notifications
  5. Publish state to WebSocket clients (ws://127.0.0.1:7420/ws)

Clients may send {"type":"dismiss"} to dismiss the shown achievement and
{"type":"sync"} to request a sync pass. Only one daemon runs per store.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if noDashboard, _ := cmd.Flags().GetBool("no-dashboard"); noDashboard {
			cfg.Dashboard.Enabled = false
		}
		if cmd.Flags().Changed("port") {
			cfg.Dashboard.Port, _ = cmd.Flags().GetInt("port")
		}

		out, closer := logging.Output(cfg.Log.File)
		defer closer.Close()

		store, err := db.Open(cfg.DBPath)
		if err != nil {
			return err
		}
		defer store.Close()
		if err := store.InitSchema(); err != nil {
			return err
		}

		catalog, err := achievement.DefaultCatalog()
		if err != nil {
			return err
		}

		client := api.NewClient(cfg.API.URL, cfg.API.Token, cfg.API.Timeout)
		client.MinVersion = cfg.API.MinVersion

		manager := sync.New(store, client, logging.New(out, "sync"))
		monitor := netwatch.New(client, netwatch.Config{
			Interval: cfg.Sync.ProbeInterval,
			Timeout:  cfg.API.Timeout,
			Pending: func(ctx context.Context) int {
				n, err := manager.RefreshPendingCount(ctx)
				if err != nil {
					return 0
				}
				return n
			},
			Logger: logging.New(out, "netwatch"),
		})
		state := appstate.New(cfg.Queue.SettleDelay)
		defer state.Close()

		var server *dashboard.Server
		if cfg.Dashboard.Enabled {
			server = dashboard.NewServer(&dashboard.Config{
				Host:   cfg.Dashboard.Host,
				Port:   cfg.Dashboard.Port,
				Logger: logging.New(out, "dashboard"),
			})
		}

		d, err := daemon.New(daemon.Components{
			Store:     store,
			Sync:      manager,
			Monitor:   monitor,
			Evaluator: achievement.NewEvaluator(achievement.DefaultCheckers(), catalog, logging.New(out, "achievement")),
			State:     state,
			Dashboard: server,
		}, &daemon.Config{
			DebounceInterval: daemon.DefaultConfig().DebounceInterval,
			Logger:           logging.New(out, "daemon"),
		})
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "%s Starting FoodMoment daemon...\n", ui.RenderAccent("🚀"))
		fmt.Fprintf(w, "   Store: %s\n", cfg.DBPath)
		fmt.Fprintf(w, "   Backend: %s\n", cfg.API.URL)
		if server != nil {
			fmt.Fprintf(w, "   Dashboard: ws://%s:%d/ws\n", cfg.Dashboard.Host, cfg.Dashboard.Port)
		}
		if cfg.Log.File != "" {
			fmt.Fprintf(w, "   Log: %s\n", cfg.Log.File)
		}
		fmt.Fprintf(w, "\nPress Ctrl+C to stop\n\n")

		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		// Start blocks until the signal arrives.
		if err := d.Start(ctx); err != nil {
			return fmt.Errorf("daemon stopped with error: %w", err)
		}
		return nil
	},
}

func init() {
	daemonCmd.Flags().Int("port", 0, "Dashboard port (overrides dashboard.port)")
	daemonCmd.Flags().Bool("no-dashboard", false, "Do not start the WebSocket dashboard")
	rootCmd.AddCommand(daemonCmd)
}
