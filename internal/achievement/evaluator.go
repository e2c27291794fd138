// Package achievement decides when an achievement unlocks and hands newly
// unlocked achievements to the notification queue.
package achievement

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/ZhaoChaoqun/foodmoment/internal/schema"
)

// Store is the storage an evaluation pass needs. *db.DB satisfies it.
type Store interface {
	MealCount(ctx context.Context) (int, error)
	EarnedAchievementTypes(ctx context.Context) (map[string]bool, error)
	InsertAchievements(ctx context.Context, achievements []*schema.Achievement) error
}

// Sink receives unlocked achievements in unlock order.
type Sink interface {
	Enqueue(item Item)
}

// Item is the display projection of a freshly unlocked achievement.
type Item struct {
	ID       string      `json:"id"`
	Type     string      `json:"type"`
	Tier     schema.Tier `json:"tier"`
	Title    string      `json:"title"`
	Subtitle string      `json:"subtitle,omitempty"`
	Icon     string      `json:"icon,omitempty"`
	Theme    string      `json:"theme,omitempty"`
	Category string      `json:"category,omitempty"`
	EarnedAt time.Time   `json:"earned_at"`
}

// NewItem projects an achievement through its catalog entry.
func NewItem(a *schema.Achievement, e Entry) Item {
	return Item{
		ID:       a.ID,
		Type:     a.Type,
		Tier:     a.Tier,
		Title:    e.Title,
		Subtitle: e.Subtitle,
		Icon:     e.Icon,
		Theme:    e.Theme,
		Category: e.Category,
		EarnedAt: a.EarnedAt,
	}
}

// Evaluator runs the registered checkers against the store.
type Evaluator struct {
	checkers []Checker
	catalog  Catalog
	logger   *log.Logger

	mu       sync.Mutex
	checking bool
}

// NewEvaluator creates an evaluator. Checkers run in the given order.
//
// If logger is nil, a default logger writing to stderr is used.
func NewEvaluator(checkers []Checker, catalog Catalog, logger *log.Logger) *Evaluator {
	if logger == nil {
		logger = log.New(os.Stderr, "[achievement] ", log.LstdFlags)
	}
	if catalog == nil {
		catalog = Catalog{}
	}
	return &Evaluator{
		checkers: checkers,
		catalog:  catalog,
		logger:   logger,
	}
}

// IsChecking reports whether an evaluation pass is running.
func (e *Evaluator) IsChecking() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.checking
}

func (e *Evaluator) begin() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.checking {
		return false
	}
	e.checking = true
	return true
}

func (e *Evaluator) end() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.checking = false
}

// CheckAndUnlock runs every checker whose type has not been earned yet,
// saves all new achievements in one transaction and enqueues them into
// sink in checker order. sink may be nil.
//
// A call made while another pass is running returns nil, nil without
// touching the store. A checker that fails is logged and skipped.
func (e *Evaluator) CheckAndUnlock(ctx context.Context, store Store, sink Sink) ([]Item, error) {
	if !e.begin() {
		return nil, nil
	}
	defer e.end()

	earned, err := store.EarnedAchievementTypes(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load earned achievements: %w", err)
	}

	var (
		unlocked []*schema.Achievement
		items    []Item
	)
	for _, c := range e.checkers {
		if earned[c.Type] {
			continue
		}
		tier, ok, err := c.Check(ctx, store)
		if err != nil {
			e.logger.Printf("WARNING: Checker %s failed: %v", c.Type, err)
			continue
		}
		if !ok {
			continue
		}

		a := schema.NewAchievement(c.Type, tier)
		unlocked = append(unlocked, a)
		items = append(items, NewItem(a, e.catalog.Lookup(c.Type)))
		// Guards against the same type registered twice.
		earned[c.Type] = true
	}

	if len(unlocked) == 0 {
		return nil, nil
	}

	if err := store.InsertAchievements(ctx, unlocked); err != nil {
		return nil, fmt.Errorf("failed to save achievements: %w", err)
	}

	for _, item := range items {
		e.logger.Printf("Unlocked achievement: %s (%s)", item.Type, item.Tier)
		if sink != nil {
			sink.Enqueue(item)
		}
	}
	return items, nil
}
