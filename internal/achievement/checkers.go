package achievement

import (
	"context"
	"fmt"

	"github.com/ZhaoChaoqun/foodmoment/internal/schema"
)

// TypeFirstGlimpse is unlocked by logging the first meal.
const TypeFirstGlimpse = "first_glimpse"

// Checker pairs an achievement type with the predicate that earns it.
// Check must not modify the store; it reports the tier earned, or false
// when the condition does not hold.
type Checker struct {
	Type  string
	Check func(ctx context.Context, store Store) (schema.Tier, bool, error)
}

// DefaultCheckers returns the registered checkers in evaluation order.
func DefaultCheckers() []Checker {
	return []Checker{
		FirstGlimpse(),
	}
}

// FirstGlimpse earns gold once any meal has been logged.
func FirstGlimpse() Checker {
	return Checker{
		Type: TypeFirstGlimpse,
		Check: func(ctx context.Context, store Store) (schema.Tier, bool, error) {
			n, err := store.MealCount(ctx)
			if err != nil {
				return "", false, fmt.Errorf("failed to count meals: %w", err)
			}
			if n >= 1 {
				return schema.TierGold, true, nil
			}
			return "", false, nil
		},
	}
}
