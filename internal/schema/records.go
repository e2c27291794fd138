// Package schema provides the record types stored by the local tracker.
package schema

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var validate = validator.New()

// Tier is the grade of an earned achievement.
type Tier string

const (
	TierBronze Tier = "bronze"
	TierSilver Tier = "silver"
	TierGold   Tier = "gold"
)

// Valid reports whether t is one of the known tiers.
func (t Tier) Valid() bool {
	switch t {
	case TierBronze, TierSilver, TierGold:
		return true
	default:
		return false
	}
}

// Meal types accepted by MealRecord.MealType.
const (
	MealBreakfast = "breakfast"
	MealLunch     = "lunch"
	MealDinner    = "dinner"
	MealSnack     = "snack"
)

// MealTypes lists the meal types in display order.
var MealTypes = []string{MealBreakfast, MealLunch, MealDinner, MealSnack}

// MealRecord is a logged meal.
//
// IsSynced flips to true only after the backend acknowledged the create.
// PendingDeletion marks a meal the user deleted locally whose removal has
// not reached the backend yet.
type MealRecord struct {
	ID       string  `json:"id" validate:"required"`
	Name     string  `json:"name" validate:"required,max=200"`
	MealType string  `json:"meal_type,omitempty" validate:"omitempty,oneof=breakfast lunch dinner snack"`
	Calories int     `json:"calories" validate:"gte=0,lte=20000"`
	ProteinG float64 `json:"protein_g" validate:"gte=0"`
	CarbsG   float64 `json:"carbs_g" validate:"gte=0"`
	FatG     float64 `json:"fat_g" validate:"gte=0"`

	ImagePath string `json:"image_path,omitempty"`
	Notes     string `json:"notes,omitempty" validate:"max=2000"`

	EatenAt time.Time `json:"eaten_at"`

	IsSynced        bool `json:"is_synced"`
	PendingDeletion bool `json:"pending_deletion"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewMeal returns an unsynced meal with a fresh id.
func NewMeal(name string, calories int, eatenAt time.Time) *MealRecord {
	now := time.Now().UTC()
	if eatenAt.IsZero() {
		eatenAt = now
	}
	return &MealRecord{
		ID:        uuid.NewString(),
		Name:      strings.TrimSpace(name),
		Calories:  calories,
		EatenAt:   eatenAt.UTC(),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Validate checks if the MealRecord has valid field values.
func (m *MealRecord) Validate() error {
	if err := validate.Struct(m); err != nil {
		return fieldError(err)
	}
	if m.EatenAt.IsZero() {
		return fmt.Errorf("eaten_at is required")
	}
	if m.CreatedAt.IsZero() {
		return fmt.Errorf("created_at is required")
	}
	return nil
}

// WaterLog is a single water intake entry.
type WaterLog struct {
	ID         string    `json:"id" validate:"required"`
	AmountML   int       `json:"amount_ml" validate:"gt=0,lte=10000"`
	RecordedAt time.Time `json:"recorded_at"`
	IsSynced   bool      `json:"is_synced"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// NewWaterLog returns an unsynced water log with a fresh id.
func NewWaterLog(amountML int, recordedAt time.Time) *WaterLog {
	now := time.Now().UTC()
	if recordedAt.IsZero() {
		recordedAt = now
	}
	return &WaterLog{
		ID:         uuid.NewString(),
		AmountML:   amountML,
		RecordedAt: recordedAt.UTC(),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Validate checks if the WaterLog has valid field values.
func (w *WaterLog) Validate() error {
	if err := validate.Struct(w); err != nil {
		return fieldError(err)
	}
	if w.RecordedAt.IsZero() {
		return fmt.Errorf("recorded_at is required")
	}
	return nil
}

// WeightLog is a single body weight measurement.
type WeightLog struct {
	ID         string    `json:"id" validate:"required"`
	WeightKG   float64   `json:"weight_kg" validate:"gt=0,lt=700"`
	RecordedAt time.Time `json:"recorded_at"`
	IsSynced   bool      `json:"is_synced"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// NewWeightLog returns an unsynced weight log with a fresh id.
func NewWeightLog(weightKG float64, recordedAt time.Time) *WeightLog {
	now := time.Now().UTC()
	if recordedAt.IsZero() {
		recordedAt = now
	}
	return &WeightLog{
		ID:         uuid.NewString(),
		WeightKG:   weightKG,
		RecordedAt: recordedAt.UTC(),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Validate checks if the WeightLog has valid field values.
func (w *WeightLog) Validate() error {
	if err := validate.Struct(w); err != nil {
		return fieldError(err)
	}
	if w.RecordedAt.IsZero() {
		return fmt.Errorf("recorded_at is required")
	}
	return nil
}

// Achievement is an earned achievement. Rows are only ever inserted.
type Achievement struct {
	ID       string    `json:"id"`
	Type     string    `json:"type"`
	Tier     Tier      `json:"tier"`
	EarnedAt time.Time `json:"earned_at"`
}

// NewAchievement returns an achievement of the given type earned now.
func NewAchievement(typ string, tier Tier) *Achievement {
	return &Achievement{
		ID:       uuid.NewString(),
		Type:     typ,
		Tier:     tier,
		EarnedAt: time.Now().UTC(),
	}
}

// Validate checks if the Achievement has valid field values.
func (a *Achievement) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("id is required")
	}
	if a.Type == "" {
		return fmt.Errorf("type is required")
	}
	if !a.Tier.Valid() {
		return fmt.Errorf("invalid tier %q", a.Tier)
	}
	if a.EarnedAt.IsZero() {
		return fmt.Errorf("earned_at is required")
	}
	return nil
}

// fieldError flattens validator errors into one readable message.
func fieldError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s must satisfy %s=%s", strings.ToLower(fe.Field()), fe.Tag(), fe.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s is %s", strings.ToLower(fe.Field()), fe.Tag()))
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}
