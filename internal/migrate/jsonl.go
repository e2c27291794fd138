// Package migrate moves tracker data in and out of JSONL files.
//
// Each line is one record:
//
//	{"kind":"meal","record":{...}}
//	{"kind":"water","record":{...}}
//	{"kind":"weight","record":{...}}
//	{"kind":"achievement","record":{...}}
package migrate

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/ZhaoChaoqun/foodmoment/internal/db"
	"github.com/ZhaoChaoqun/foodmoment/internal/schema"
)

// Record kinds.
const (
	KindMeal        = "meal"
	KindWater       = "water"
	KindWeight      = "weight"
	KindAchievement = "achievement"
)

// Line is one JSONL entry.
type Line struct {
	Kind   string          `json:"kind"`
	Record json.RawMessage `json:"record"`
}

// ExportResult contains statistics about an export
type ExportResult struct {
	Meals        int
	Water        int
	Weight       int
	Achievements int
}

// ImportResult contains statistics about an import
type ImportResult struct {
	Imported int
	Skipped  int
	Invalid  int
	Errors   []string
}

// Export writes every meal not pending deletion, every water and weight
// log and every achievement to w.
func Export(ctx context.Context, store *db.DB, w io.Writer) (*ExportResult, error) {
	result := &ExportResult{}
	enc := json.NewEncoder(w)

	write := func(kind string, record any) error {
		data, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("failed to marshal %s: %w", kind, err)
		}
		if err := enc.Encode(Line{Kind: kind, Record: data}); err != nil {
			return fmt.Errorf("failed to write %s: %w", kind, err)
		}
		return nil
	}

	meals, err := store.AllMeals(ctx)
	if err != nil {
		return nil, err
	}
	for _, m := range meals {
		if m.PendingDeletion {
			continue
		}
		if err := write(KindMeal, m); err != nil {
			return nil, err
		}
		result.Meals++
	}

	water, err := store.AllWaterLogs(ctx)
	if err != nil {
		return nil, err
	}
	for _, l := range water {
		if err := write(KindWater, l); err != nil {
			return nil, err
		}
		result.Water++
	}

	weight, err := store.AllWeightLogs(ctx)
	if err != nil {
		return nil, err
	}
	for _, l := range weight {
		if err := write(KindWeight, l); err != nil {
			return nil, err
		}
		result.Weight++
	}

	achievements, err := store.ListAchievements(ctx)
	if err != nil {
		return nil, err
	}
	for _, a := range achievements {
		if err := write(KindAchievement, a); err != nil {
			return nil, err
		}
		result.Achievements++
	}

	return result, nil
}

// Import reads JSONL from r into store. Records whose id already exists,
// and achievements whose type is already earned, are skipped. Sync flags
// are kept as exported, so data already on the backend is not pushed again.
// Malformed or invalid lines are counted and reported, not fatal.
func Import(ctx context.Context, r io.Reader, store *db.DB) (*ImportResult, error) {
	result := &ImportResult{}

	earned, err := store.EarnedAchievementTypes(ctx)
	if err != nil {
		return nil, err
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}

		var line Line
		if err := json.Unmarshal(raw, &line); err != nil {
			result.invalid(lineNum, fmt.Errorf("invalid JSON: %w", err))
			continue
		}

		imported, err := importLine(ctx, store, line, earned)
		if err != nil {
			result.invalid(lineNum, err)
			continue
		}
		if imported {
			result.Imported++
		} else {
			result.Skipped++
		}
	}
	if err := scanner.Err(); err != nil {
		return result, fmt.Errorf("failed to read import: %w", err)
	}
	return result, nil
}

func (r *ImportResult) invalid(lineNum int, err error) {
	r.Invalid++
	r.Errors = append(r.Errors, fmt.Sprintf("line %d: %v", lineNum, err))
}

func importLine(ctx context.Context, store *db.DB, line Line, earned map[string]bool) (bool, error) {
	switch line.Kind {
	case KindMeal:
		var m schema.MealRecord
		if err := json.Unmarshal(line.Record, &m); err != nil {
			return false, fmt.Errorf("invalid meal: %w", err)
		}
		if exists, err := store.Exists(ctx, "meals", m.ID); err != nil || exists {
			return false, err
		}
		m.PendingDeletion = false
		return true, store.InsertMeal(ctx, &m)

	case KindWater:
		var w schema.WaterLog
		if err := json.Unmarshal(line.Record, &w); err != nil {
			return false, fmt.Errorf("invalid water log: %w", err)
		}
		if exists, err := store.Exists(ctx, "water_logs", w.ID); err != nil || exists {
			return false, err
		}
		return true, store.InsertWaterLog(ctx, &w)

	case KindWeight:
		var w schema.WeightLog
		if err := json.Unmarshal(line.Record, &w); err != nil {
			return false, fmt.Errorf("invalid weight log: %w", err)
		}
		if exists, err := store.Exists(ctx, "weight_logs", w.ID); err != nil || exists {
			return false, err
		}
		return true, store.InsertWeightLog(ctx, &w)

	case KindAchievement:
		var a schema.Achievement
		if err := json.Unmarshal(line.Record, &a); err != nil {
			return false, fmt.Errorf("invalid achievement: %w", err)
		}
		if earned[a.Type] {
			return false, nil
		}
		if err := store.InsertAchievements(ctx, []*schema.Achievement{&a}); err != nil {
			return false, err
		}
		earned[a.Type] = true
		return true, nil

	default:
		return false, fmt.Errorf("unknown kind %q", line.Kind)
	}
}
