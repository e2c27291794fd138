// Package classify turns a meal photo into a nutrition estimate.
//
// A Pipeline tries its classifiers in order. The on-device classifier is a
// placeholder that always reports ErrModelUnavailable, so in practice the
// cloud classifier answers.
package classify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
)

var (
	// ErrModelUnavailable is returned by a classifier that cannot run.
	ErrModelUnavailable = errors.New("classification model unavailable")

	// ErrNoClassifier is returned when every classifier in a pipeline failed.
	ErrNoClassifier = errors.New("no classifier could estimate the photo")

	// ErrNotImage is returned for files that are not images.
	ErrNotImage = errors.New("file is not an image")
)

// maxImageBytes caps photos sent for classification.
const maxImageBytes = 5 << 20

// Estimate is a nutrition estimate for one photographed meal.
type Estimate struct {
	Name       string  `json:"name"`
	Calories   int     `json:"calories"`
	ProteinG   float64 `json:"protein_g"`
	CarbsG     float64 `json:"carbs_g"`
	FatG       float64 `json:"fat_g"`
	Confidence float64 `json:"confidence"`

	// Source names the classifier that produced the estimate.
	Source string `json:"-"`
}

// Classifier estimates the nutrition content of an image.
type Classifier interface {
	Name() string
	Classify(ctx context.Context, image []byte, mediaType string) (*Estimate, error)
}

// OnDevice is the local model slot. No model ships with the tracker.
type OnDevice struct{}

// Name implements Classifier.
func (OnDevice) Name() string { return "on-device" }

// Classify implements Classifier.
func (OnDevice) Classify(context.Context, []byte, string) (*Estimate, error) {
	return nil, ErrModelUnavailable
}

// Pipeline falls back through classifiers in order.
type Pipeline struct {
	classifiers []Classifier
	logger      *log.Logger
}

// NewPipeline creates a pipeline. If logger is nil, a default logger writing
// to stderr is used.
func NewPipeline(logger *log.Logger, classifiers ...Classifier) *Pipeline {
	if logger == nil {
		logger = log.New(os.Stderr, "[classify] ", log.LstdFlags)
	}
	return &Pipeline{classifiers: classifiers, logger: logger}
}

// Classify returns the first estimate any classifier produces.
func (p *Pipeline) Classify(ctx context.Context, image []byte, mediaType string) (*Estimate, error) {
	var lastErr error
	for _, c := range p.classifiers {
		est, err := c.Classify(ctx, image, mediaType)
		if err != nil {
			if !errors.Is(err, ErrModelUnavailable) {
				p.logger.Printf("WARNING: %s classifier failed: %v", c.Name(), err)
			}
			lastErr = err
			continue
		}
		est.Source = c.Name()
		return est, nil
	}
	if lastErr == nil {
		return nil, ErrNoClassifier
	}
	return nil, fmt.Errorf("%w: %w", ErrNoClassifier, lastErr)
}

// ClassifyFile reads an image from disk and classifies it.
func (p *Pipeline) ClassifyFile(ctx context.Context, path string) (*Estimate, error) {
	image, mediaType, err := ReadImage(path)
	if err != nil {
		return nil, err
	}
	return p.Classify(ctx, image, mediaType)
}

// ReadImage loads an image file and sniffs its media type.
func ReadImage(path string) ([]byte, string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.Size() > maxImageBytes {
		return nil, "", fmt.Errorf("%s is %d bytes, limit is %d", path, info.Size(), maxImageBytes)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	mediaType := http.DetectContentType(data)
	if !strings.HasPrefix(mediaType, "image/") {
		return nil, "", fmt.Errorf("%s (%s): %w", path, mediaType, ErrNotImage)
	}
	return data, mediaType, nil
}

// parseEstimate extracts the JSON object from a model reply. Models
// sometimes wrap the object in prose or a code fence.
func parseEstimate(text string) (*Estimate, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in reply %q", truncate(text, 120))
	}

	var est Estimate
	if err := json.Unmarshal([]byte(text[start:end+1]), &est); err != nil {
		return nil, fmt.Errorf("failed to decode estimate: %w", err)
	}
	if strings.TrimSpace(est.Name) == "" {
		return nil, fmt.Errorf("estimate has no name")
	}
	if est.Calories < 0 || est.ProteinG < 0 || est.CarbsG < 0 || est.FatG < 0 {
		return nil, fmt.Errorf("estimate has negative values")
	}
	return &est, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
