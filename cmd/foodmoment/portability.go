package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ZhaoChaoqun/foodmoment/internal/migrate"
	"github.com/ZhaoChaoqun/foodmoment/internal/ui"
)

var exportCmd = &cobra.Command{
	Use:     "export [file]",
	GroupID: "maint",
	Short:   "Export local records as JSONL",
	Long: `Write every meal, water log, weight log and achievement as one JSON
object per line. Meals pending deletion are left out. Without a file (or
with "-") the backup goes to stdout.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		var w io.Writer = cmd.OutOrStdout()
		toFile := len(args) == 1 && args[0] != "-"
		if toFile {
			f, err := os.Create(args[0])
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", args[0], err)
			}
			defer f.Close()
			w = f
		}

		result, err := migrate.Export(ctx, a.store, w)
		if err != nil {
			return err
		}

		if toFile {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s Exported %d meals, %d water logs, %d weight logs, %d achievements to %s\n",
				ui.RenderPass("✓"), result.Meals, result.Water, result.Weight, result.Achievements, args[0])
		}
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:     "import <file>",
	GroupID: "maint",
	Short:   "Import records from a JSONL backup",
	Long: `Insert the records of a JSONL backup whose id is not already in the
store. Imported records keep their sync state. Achievements already earned
are skipped. Malformed lines are reported and skipped.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", args[0], err)
		}
		defer f.Close()

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		result, err := migrate.Import(ctx, f, a.store)
		if err != nil {
			return err
		}
		if _, err := a.sync.RefreshPendingCount(ctx); err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "%s Imported %d records (%d already present)\n", ui.RenderPass("✓"), result.Imported, result.Skipped)
		if result.Invalid > 0 {
			fmt.Fprintf(w, "%s %d invalid line(s):\n", ui.RenderWarn("⚠"), result.Invalid)
			for _, e := range result.Errors {
				fmt.Fprintf(w, "   %s\n", e)
			}
		}
		if n := a.sync.PendingCount(); n > 0 {
			fmt.Fprintf(w, "%s %s\n", ui.RenderWarn("⏳"), pendingLabel(n))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
}
