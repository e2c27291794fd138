package schema

import (
	"strings"
	"testing"
	"time"
)

func TestMealRecordValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(m *MealRecord)
		wantErr string
	}{
		{name: "valid", mutate: func(m *MealRecord) {}},
		{name: "missing name", mutate: func(m *MealRecord) { m.Name = "" }, wantErr: "name"},
		{name: "negative calories", mutate: func(m *MealRecord) { m.Calories = -5 }, wantErr: "calories"},
		{name: "unknown meal type", mutate: func(m *MealRecord) { m.MealType = "brunch" }, wantErr: "mealtype"},
		{name: "zero eaten_at", mutate: func(m *MealRecord) { m.EatenAt = time.Time{} }, wantErr: "eaten_at"},
		{name: "known meal type", mutate: func(m *MealRecord) { m.MealType = MealDinner }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMeal("Oatmeal", 350, time.Now())
			tt.mutate(m)
			err := m.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() = nil, want error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %q, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestNewMealDefaults(t *testing.T) {
	m := NewMeal("  Ramen ", 600, time.Time{})

	if m.ID == "" {
		t.Fatal("expected generated id")
	}
	if m.Name != "Ramen" {
		t.Errorf("Name = %q, want trimmed", m.Name)
	}
	if m.IsSynced || m.PendingDeletion {
		t.Error("new meal must start unsynced and not pending deletion")
	}
	if m.EatenAt.IsZero() {
		t.Error("EatenAt should default to now")
	}
	if !m.CreatedAt.Equal(m.UpdatedAt) {
		t.Error("CreatedAt and UpdatedAt should match on creation")
	}
}

func TestWaterAndWeightValidate(t *testing.T) {
	if err := NewWaterLog(250, time.Now()).Validate(); err != nil {
		t.Errorf("water log: %v", err)
	}
	if err := NewWaterLog(0, time.Now()).Validate(); err == nil {
		t.Error("expected error for zero water amount")
	}
	if err := NewWeightLog(72.4, time.Now()).Validate(); err != nil {
		t.Errorf("weight log: %v", err)
	}
	if err := NewWeightLog(-1, time.Now()).Validate(); err == nil {
		t.Error("expected error for negative weight")
	}
}

func TestAchievementValidate(t *testing.T) {
	a := NewAchievement("first_glimpse", TierGold)
	if err := a.Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}

	a.Tier = "platinum"
	if err := a.Validate(); err == nil {
		t.Error("expected error for unknown tier")
	}
}
