package classify

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "claude-sonnet-4-5"

const estimatePrompt = `Identify the meal in this photo and estimate its nutrition for the whole portion shown.
Reply with a single JSON object and nothing else:
{"name": string, "calories": integer kcal, "protein_g": number, "carbs_g": number, "fat_g": number, "confidence": number between 0 and 1}`

// Cloud classifies photos with the Anthropic Messages API.
type Cloud struct {
	client anthropic.Client
	model  string
}

// NewCloud creates a cloud classifier. Extra options are passed to the SDK
// client (base URL, retries, HTTP client).
func NewCloud(apiKey, model string, opts ...option.RequestOption) *Cloud {
	if model == "" {
		model = DefaultModel
	}
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &Cloud{
		client: anthropic.NewClient(opts...),
		model:  model,
	}
}

// Name implements Classifier.
func (c *Cloud) Name() string { return "cloud" }

// Classify implements Classifier.
func (c *Cloud) Classify(ctx context.Context, image []byte, mediaType string) (*Estimate, error) {
	msg, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: 512,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(
				anthropic.NewImageBlockBase64(mediaType, base64.StdEncoding.EncodeToString(image)),
				anthropic.NewTextBlock(estimatePrompt),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("messages request failed: %w", err)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return parseEstimate(text.String())
}
