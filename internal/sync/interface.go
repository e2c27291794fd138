package sync

import (
	"context"

	"github.com/ZhaoChaoqun/foodmoment/internal/api"
	"github.com/ZhaoChaoqun/foodmoment/internal/schema"
)

// Store is the part of the local database a sync pass reads and writes.
// *db.DB satisfies it.
type Store interface {
	UnsyncedMeals(ctx context.Context) ([]*schema.MealRecord, error)
	PendingDeletionMeals(ctx context.Context) ([]*schema.MealRecord, error)
	UnsyncedWaterLogs(ctx context.Context) ([]*schema.WaterLog, error)
	UnsyncedWeightLogs(ctx context.Context) ([]*schema.WeightLog, error)

	MarkMealSynced(ctx context.Context, id string) error
	MarkWaterLogSynced(ctx context.Context, id string) error
	MarkWeightLogSynced(ctx context.Context, id string) error

	// PurgeMeal removes the row after the backend confirmed the delete.
	PurgeMeal(ctx context.Context, id string) error

	PendingCount(ctx context.Context) (int, error)
}

// Remote is the backend the records are pushed to. *api.Client satisfies it.
type Remote interface {
	CreateMeal(ctx context.Context, meal api.MealDTO) (*api.MealResponse, error)
	DeleteMeal(ctx context.Context, id string) error
	LogWater(ctx context.Context, w api.WaterLogDTO) (*api.WaterLogResponse, error)
	LogWeight(ctx context.Context, w api.WeightLogDTO) (*api.WeightLogResponse, error)
}
