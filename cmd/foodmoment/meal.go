package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/ZhaoChaoqun/foodmoment/internal/classify"
	"github.com/ZhaoChaoqun/foodmoment/internal/logging"
	"github.com/ZhaoChaoqun/foodmoment/internal/schema"
	"github.com/ZhaoChaoqun/foodmoment/internal/ui"
)

var mealCmd = &cobra.Command{
	Use:     "meal",
	GroupID: "track",
	Short:   "Log, list and delete meals",
}

var mealLogCmd = &cobra.Command{
	Use:   "log [name]",
	Short: "Log a meal",
	Long: `Log a meal to the local store.

The meal is saved locally first and pushed to the backend when it is
reachable. Without a name on an interactive terminal, a short form asks for
the details. With --photo, missing details are estimated from the picture.

Examples:
  foodmoment meal log "Oatmeal with berries" --calories 350 --type breakfast
  foodmoment meal log "Ramen" --calories 700 --at "yesterday 8pm"
  foodmoment meal log --photo lunch.jpg`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		flags := cmd.Flags()

		meal := &mealInput{}
		if len(args) == 1 {
			meal.name = args[0]
		}
		meal.mealType, _ = flags.GetString("type")
		meal.notes, _ = flags.GetString("notes")
		meal.photo, _ = flags.GetString("photo")
		meal.calories, _ = flags.GetInt("calories")
		meal.proteinG, _ = flags.GetFloat64("protein")
		meal.carbsG, _ = flags.GetFloat64("carbs")
		meal.fatG, _ = flags.GetFloat64("fat")
		meal.caloriesSet = flags.Changed("calories")

		at, _ := flags.GetString("at")
		eatenAt, err := parseWhen(at, time.Now())
		if err != nil {
			return err
		}

		if meal.photo != "" {
			if err := meal.estimateFromPhoto(ctx); err != nil {
				return err
			}
		}
		if strings.TrimSpace(meal.name) == "" {
			if !ui.IsInteractive() {
				return fmt.Errorf("meal name is required")
			}
			if err := meal.prompt(); err != nil {
				return err
			}
		}

		record := meal.record(eatenAt)

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if cfg.Sync.Auto {
			_ = a.connect(ctx)
		}
		out, err := a.tracker.LogMeal(ctx, record)
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "%s Logged %s (%d kcal) %s\n", ui.RenderPass("✓"), record.Name, record.Calories, ui.RenderMuted(record.ID))
		printOutcome(w, out)
		return nil
	},
}

var mealDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a meal",
	Long: `Delete a meal. The meal disappears locally at once; the backend copy is
removed by the next sync pass.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if cfg.Sync.Auto {
			_ = a.connect(ctx)
		}
		out, err := a.tracker.DeleteMeal(ctx, args[0])
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "%s Deleted meal %s\n", ui.RenderPass("✓"), args[0])
		printOutcome(w, out)
		return nil
	},
}

var mealListCmd = &cobra.Command{
	Use:   "list",
	Short: "List meals for a day",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		day, _ := cmd.Flags().GetString("date")
		t, err := parseWhen(day, time.Now())
		if err != nil {
			return err
		}
		from, to := dayBounds(t.Local())

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		meals, err := a.store.ListMeals(ctx, from, to)
		if err != nil {
			return err
		}
		water, err := a.store.WaterLogsBetween(ctx, from, to)
		if err != nil {
			return err
		}
		weights, err := a.store.WeightLogsBetween(ctx, from, to)
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "\n%s Meals on %s\n\n", ui.RenderAccent("🍽"), from.Format("Mon 2006-01-02"))
		if len(meals) == 0 {
			fmt.Fprintln(w, ui.RenderMuted("No meals logged"))
		} else {
			total := 0
			for _, m := range meals {
				mark := ui.RenderPass("✓")
				if !m.IsSynced {
					mark = ui.RenderWarn("⏳")
				}
				kind := ""
				if m.MealType != "" {
					kind = " " + ui.RenderMuted("("+m.MealType+")")
				}
				fmt.Fprintf(w, "%s %s  %-28s %5d kcal%s  %s\n",
					mark, m.EatenAt.Local().Format("15:04"), m.Name, m.Calories, kind, ui.RenderMuted(m.ID))
				total += m.Calories
			}
			fmt.Fprintf(w, "\nTotal: %d kcal\n", total)
		}

		if len(water) > 0 {
			ml := 0
			for _, l := range water {
				ml += l.AmountML
			}
			fmt.Fprintf(w, "Water: %d ml\n", ml)
		}
		// Ordered by recorded_at, so the last entry is the day's latest.
		if len(weights) > 0 {
			fmt.Fprintf(w, "Weight: %.1f kg\n", weights[len(weights)-1].WeightKG)
		}
		fmt.Fprintln(w)
		return nil
	},
}

// mealInput collects the fields of a meal from flags, a photo and the form.
type mealInput struct {
	name        string
	mealType    string
	notes       string
	photo       string
	calories    int
	caloriesSet bool
	proteinG    float64
	carbsG      float64
	fatG        float64
}

func (m *mealInput) record(eatenAt time.Time) *schema.MealRecord {
	r := schema.NewMeal(m.name, m.calories, eatenAt)
	r.MealType = m.mealType
	r.Notes = strings.TrimSpace(m.notes)
	r.ProteinG = m.proteinG
	r.CarbsG = m.carbsG
	r.FatG = m.fatG
	if m.photo != "" {
		if abs, err := filepath.Abs(m.photo); err == nil {
			r.ImagePath = abs
		} else {
			r.ImagePath = m.photo
		}
	}
	return r
}

// estimateFromPhoto fills the fields the user did not give from a photo
// classification.
func (m *mealInput) estimateFromPhoto(ctx context.Context) error {
	pipeline, closeLog := photoPipeline()
	defer closeLog()

	est, err := pipeline.ClassifyFile(ctx, m.photo)
	if err != nil {
		if errors.Is(err, classify.ErrNoClassifier) && cfg.Classify.AnthropicAPIKey == "" {
			return fmt.Errorf("%w (set ANTHROPIC_API_KEY to enable cloud estimates)", err)
		}
		return err
	}

	if strings.TrimSpace(m.name) == "" {
		m.name = est.Name
	}
	if !m.caloriesSet {
		m.calories = est.Calories
	}
	if m.proteinG == 0 {
		m.proteinG = est.ProteinG
	}
	if m.carbsG == 0 {
		m.carbsG = est.CarbsG
	}
	if m.fatG == 0 {
		m.fatG = est.FatG
	}
	return nil
}

func photoPipeline() (*classify.Pipeline, func()) {
	w, c := commandLogOutput()
	logger := logging.New(w, "classify")

	classifiers := []classify.Classifier{classify.OnDevice{}}
	if cfg.Classify.AnthropicAPIKey != "" {
		classifiers = append(classifiers, classify.NewCloud(cfg.Classify.AnthropicAPIKey, cfg.Classify.Model))
	}
	return classify.NewPipeline(logger, classifiers...), func() { _ = c.Close() }
}

// mealTypeOptions lists "None" followed by every meal type.
func mealTypeOptions() []huh.Option[string] {
	opts := []huh.Option[string]{huh.NewOption("None", "")}
	for _, t := range schema.MealTypes {
		opts = append(opts, huh.NewOption(strings.ToUpper(t[:1])+t[1:], t))
	}
	return opts
}

// prompt asks for the meal details with a form.
func (m *mealInput) prompt() error {
	calories := ""
	if m.caloriesSet {
		calories = strconv.Itoa(m.calories)
	}
	mealType := m.mealType

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("What did you eat?").
				Value(&m.name).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("name is required")
					}
					return nil
				}),
			huh.NewInput().
				Title("Calories").
				Value(&calories).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return nil
					}
					n, err := strconv.Atoi(strings.TrimSpace(s))
					if err != nil || n < 0 {
						return fmt.Errorf("enter a whole number")
					}
					return nil
				}),
			huh.NewSelect[string]().
				Title("Meal").
				Options(mealTypeOptions()...).
				Value(&mealType),
		),
	)
	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return fmt.Errorf("cancelled")
		}
		return err
	}

	if s := strings.TrimSpace(calories); s != "" {
		m.calories, _ = strconv.Atoi(s)
	}
	m.mealType = mealType
	return nil
}

func init() {
	mealLogCmd.Flags().IntP("calories", "c", 0, "Calories (kcal)")
	mealLogCmd.Flags().Float64("protein", 0, "Protein in grams")
	mealLogCmd.Flags().Float64("carbs", 0, "Carbohydrates in grams")
	mealLogCmd.Flags().Float64("fat", 0, "Fat in grams")
	mealLogCmd.Flags().StringP("type", "t", "", "Meal type ("+strings.Join(schema.MealTypes, ", ")+")")
	mealLogCmd.Flags().String("notes", "", "Free-form notes")
	mealLogCmd.Flags().String("at", "", `When the meal was eaten ("yesterday 8pm", "2026-01-02 12:30"; default now)`)
	mealLogCmd.Flags().String("photo", "", "Photo of the meal; estimates missing details")

	mealListCmd.Flags().String("date", "", `Day to list ("yesterday", "2026-01-02"; default today)`)

	mealCmd.AddCommand(mealLogCmd)
	mealCmd.AddCommand(mealDeleteCmd)
	mealCmd.AddCommand(mealListCmd)
	rootCmd.AddCommand(mealCmd)
}
