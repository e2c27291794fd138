package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ZhaoChaoqun/foodmoment/internal/lock"
	"github.com/ZhaoChaoqun/foodmoment/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: "sync",
	Short:   "Push pending records to the backend",
	Long: `Run one sync pass.

The pass pushes, oldest first:
  1. Meals not yet on the backend
  2. Meal deletions
  3. Water logs
  4. Weight logs

A record that fails stays pending for the next pass. When a daemon is
running for the store, the pass is requested from the daemon instead so
only one process pushes.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if a.daemonRunning {
			return delegateSync(cmd, a)
		}

		if err := a.connect(ctx); err != nil {
			n, _ := a.sync.RefreshPendingCount(ctx)
			return fmt.Errorf("backend unreachable at %s (%s): %w", cfg.API.URL, pendingLabel(n), err)
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "%s Syncing with %s...\n", ui.RenderAccent("🔄"), cfg.API.URL)

		result, err := a.sync.SyncAll(ctx)
		if err != nil {
			return err
		}

		fmt.Fprintf(w, "%s Sync complete in %v\n", ui.RenderPass("✓"), result.Duration.Round(time.Millisecond))
		fmt.Fprintf(w, "   Meals: %d\n", result.MealsPushed)
		fmt.Fprintf(w, "   Deletions: %d\n", result.DeletesPushed)
		fmt.Fprintf(w, "   Water: %d\n", result.WaterPushed)
		fmt.Fprintf(w, "   Weight: %d\n", result.WeightPushed)
		if failed := result.Failed(); failed > 0 {
			fmt.Fprintf(w, "%s %d record(s) failed and stay pending\n", ui.RenderWarn("⚠"), failed)
		}
		if result.Pending > 0 {
			fmt.Fprintf(w, "%s %s\n", ui.RenderWarn("⏳"), pendingLabel(result.Pending))
		}
		return nil
	},
}

// delegateSync hands the pass to the daemon holding the store lock.
func delegateSync(cmd *cobra.Command, a *app) error {
	ctx := cmd.Context()
	w := cmd.OutOrStdout()
	pid := lock.Holder(lock.PathFor(cfg.DBPath))

	if err := requestDaemonSync(ctx); err != nil {
		a.logger("sync").Printf("WARNING: %v", err)
		fmt.Fprintf(w, "%s Daemon running (pid %d); it pushes pending records when the backend is reachable\n",
			ui.RenderMuted("•"), pid)
	} else {
		fmt.Fprintf(w, "%s Asked the daemon (pid %d) to sync\n", ui.RenderPass("✓"), pid)
	}

	n, err := a.sync.RefreshPendingCount(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		fmt.Fprintf(w, "%s %s\n", ui.RenderWarn("⏳"), pendingLabel(n))
	}
	return nil
}

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "sync",
	Short:   "Show store, backend and daemon status",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		pending, err := a.sync.RefreshPendingCount(ctx)
		if err != nil {
			return err
		}
		meals, err := a.store.MealCount(ctx)
		if err != nil {
			return err
		}
		version, err := a.store.SchemaVersion(ctx)
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "\n%s FoodMoment Status\n\n", ui.RenderAccent("📊"))
		fmt.Fprintf(w, "Store: %s (schema v%d)\n", cfg.DBPath, version)
		if info, err := os.Stat(cfg.DBPath); err == nil {
			fmt.Fprintf(w, "Size: %s\n", formatSize(info.Size()))
		}
		fmt.Fprintf(w, "Meals: %d\n", meals)

		if pending == 0 {
			fmt.Fprintf(w, "Pending: %s\n", ui.RenderPass("none"))
		} else {
			fmt.Fprintf(w, "Pending: %d %s\n", pending, ui.RenderBadge("unsynced"))
		}

		if err := a.connect(ctx); err != nil {
			fmt.Fprintf(w, "Backend: %s %s %s\n", ui.RenderFail("✗"), cfg.API.URL, ui.RenderMuted(err.Error()))
		} else {
			fmt.Fprintf(w, "Backend: %s %s\n", ui.RenderPass("✓"), cfg.API.URL)
		}

		if a.daemonRunning {
			pid := lock.Holder(lock.PathFor(cfg.DBPath))
			fmt.Fprintf(w, "Daemon: %s running (pid %d)\n", ui.RenderPass("✓"), pid)
		} else {
			fmt.Fprintf(w, "Daemon: %s\n", ui.RenderMuted("not running"))
		}
		if cfg.File != "" {
			fmt.Fprintf(w, "Config: %s\n", cfg.File)
		}
		fmt.Fprintln(w)
		return nil
	},
}

func formatSize(size int64) string {
	switch {
	case size > 1024*1024:
		return fmt.Sprintf("%.1f MB", float64(size)/(1024*1024))
	case size > 1024:
		return fmt.Sprintf("%.1f KB", float64(size)/1024)
	default:
		return fmt.Sprintf("%d bytes", size)
	}
}

func init() {
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(statusCmd)
}
