package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ZhaoChaoqun/foodmoment/internal/achievement"
	"github.com/ZhaoChaoqun/foodmoment/internal/ui"
)

var achievementsCmd = &cobra.Command{
	Use:     "achievements",
	GroupID: "track",
	Short:   "List earned achievements",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		earned, err := a.store.ListAchievements(ctx)
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "\n%s Achievements\n\n", ui.RenderAccent("🏆"))
		if len(earned) == 0 {
			fmt.Fprintln(w, ui.RenderMuted("None yet. Log a meal to earn your first."))
			fmt.Fprintln(w)
			return nil
		}

		for _, ach := range earned {
			item := achievement.NewItem(ach, a.catalog.Lookup(ach.Type))
			fmt.Fprintf(w, "%s %s  %s\n", ui.TierIcon(string(item.Tier)), item.Title,
				ui.RenderMuted(item.EarnedAt.Local().Format("2006-01-02")))
			if item.Subtitle != "" {
				fmt.Fprintf(w, "   %s\n", ui.RenderMuted(item.Subtitle))
			}
		}
		fmt.Fprintln(w)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(achievementsCmd)
}
