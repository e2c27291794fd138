package api

import (
	"time"

	"github.com/ZhaoChaoqun/foodmoment/internal/schema"
)

// MealDTO is the create-meal request body.
type MealDTO struct {
	ClientID  string    `json:"client_id"`
	Name      string    `json:"name"`
	MealType  string    `json:"meal_type,omitempty"`
	Calories  int       `json:"calories"`
	ProteinG  float64   `json:"protein_g"`
	CarbsG    float64   `json:"carbs_g"`
	FatG      float64   `json:"fat_g"`
	Notes     string    `json:"notes,omitempty"`
	EatenAt   time.Time `json:"eaten_at"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MealResponse is the backend's acknowledgment of a created meal.
type MealResponse struct {
	ID        string    `json:"id"`
	ClientID  string    `json:"client_id"`
	CreatedAt time.Time `json:"created_at"`
}

// WaterLogDTO is the log-water request body.
type WaterLogDTO struct {
	ClientID   string    `json:"client_id"`
	AmountML   int       `json:"amount_ml"`
	RecordedAt time.Time `json:"recorded_at"`
}

// WaterLogResponse acknowledges a water log.
type WaterLogResponse struct {
	ID       string `json:"id"`
	ClientID string `json:"client_id"`
	TotalML  int    `json:"total_ml,omitempty"`
}

// WeightLogDTO is the log-weight request body.
type WeightLogDTO struct {
	ClientID   string    `json:"client_id"`
	WeightKG   float64   `json:"weight_kg"`
	RecordedAt time.Time `json:"recorded_at"`
}

// WeightLogResponse acknowledges a weight log.
type WeightLogResponse struct {
	ID       string `json:"id"`
	ClientID string `json:"client_id"`
}

// HealthInfo is returned by GET /health.
type HealthInfo struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// MealFromRecord builds the request body for a local meal.
func MealFromRecord(m *schema.MealRecord) MealDTO {
	return MealDTO{
		ClientID:  m.ID,
		Name:      m.Name,
		MealType:  m.MealType,
		Calories:  m.Calories,
		ProteinG:  m.ProteinG,
		CarbsG:    m.CarbsG,
		FatG:      m.FatG,
		Notes:     m.Notes,
		EatenAt:   m.EatenAt,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

// WaterFromRecord builds the request body for a local water log.
func WaterFromRecord(w *schema.WaterLog) WaterLogDTO {
	return WaterLogDTO{ClientID: w.ID, AmountML: w.AmountML, RecordedAt: w.RecordedAt}
}

// WeightFromRecord builds the request body for a local weight log.
func WeightFromRecord(w *schema.WeightLog) WeightLogDTO {
	return WeightLogDTO{ClientID: w.ID, WeightKG: w.WeightKG, RecordedAt: w.RecordedAt}
}
