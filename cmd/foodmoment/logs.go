package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ZhaoChaoqun/foodmoment/internal/ui"
)

var waterCmd = &cobra.Command{
	Use:     "water",
	GroupID: "track",
	Short:   "Track water intake",
}

var waterLogCmd = &cobra.Command{
	Use:   "log <ml>",
	Short: "Log water intake in millilitres",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		ml, err := strconv.Atoi(strings.TrimSuffix(strings.TrimSpace(args[0]), "ml"))
		if err != nil {
			return fmt.Errorf("invalid amount %q", args[0])
		}
		at, _ := cmd.Flags().GetString("at")
		recordedAt, err := parseWhen(at, time.Now())
		if err != nil {
			return err
		}

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if cfg.Sync.Auto {
			_ = a.connect(ctx)
		}
		entry, out, err := a.tracker.LogWater(ctx, ml, recordedAt)
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "%s Logged %d ml of water %s\n", ui.RenderPass("✓"), entry.AmountML, ui.RenderMuted(entry.ID))
		printOutcome(w, out)
		return nil
	},
}

var weightCmd = &cobra.Command{
	Use:     "weight",
	GroupID: "track",
	Short:   "Track body weight",
}

var weightLogCmd = &cobra.Command{
	Use:   "log <kg>",
	Short: "Log body weight in kilograms",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		kg, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(args[0]), "kg"), 64)
		if err != nil {
			return fmt.Errorf("invalid weight %q", args[0])
		}
		at, _ := cmd.Flags().GetString("at")
		recordedAt, err := parseWhen(at, time.Now())
		if err != nil {
			return err
		}

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if cfg.Sync.Auto {
			_ = a.connect(ctx)
		}
		entry, out, err := a.tracker.LogWeight(ctx, kg, recordedAt)
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "%s Logged %.1f kg %s\n", ui.RenderPass("✓"), entry.WeightKG, ui.RenderMuted(entry.ID))
		printOutcome(w, out)
		return nil
	},
}

func init() {
	waterLogCmd.Flags().String("at", "", "When the water was drunk (default now)")
	weightLogCmd.Flags().String("at", "", "When the weight was measured (default now)")

	waterCmd.AddCommand(waterLogCmd)
	weightCmd.AddCommand(weightLogCmd)
	rootCmd.AddCommand(waterCmd)
	rootCmd.AddCommand(weightCmd)
}
