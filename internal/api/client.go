// Package api is the HTTP client for the FoodMoment backend.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/mod/semver"
)

const defaultTimeout = 15 * time.Second

var (
	// ErrNotFound matches a *StatusError with status 404.
	ErrNotFound = errors.New("not found")

	// ErrIncompatibleVersion is returned by Health when the backend is
	// older than Client.MinVersion.
	ErrIncompatibleVersion = errors.New("incompatible backend version")
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// Is lets errors.Is(err, ErrNotFound) match 404 responses.
func (e *StatusError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// Client talks to the backend REST API.
type Client struct {
	BaseURL    string
	Token      string
	MinVersion string
	HTTPClient *http.Client
}

// NewClient returns a client for baseURL. A zero timeout uses the default.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		BaseURL:    baseURL,
		Token:      token,
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

// CreateMeal uploads a meal record.
func (c *Client) CreateMeal(ctx context.Context, meal MealDTO) (*MealResponse, error) {
	var out MealResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/meals", meal, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteMeal removes a meal on the backend.
func (c *Client) DeleteMeal(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/meals/"+url.PathEscape(id), nil, nil)
}

// LogWater uploads a water log.
func (c *Client) LogWater(ctx context.Context, w WaterLogDTO) (*WaterLogResponse, error) {
	var out WaterLogResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/water", w, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// LogWeight uploads a weight log.
func (c *Client) LogWeight(ctx context.Context, w WeightLogDTO) (*WeightLogResponse, error) {
	var out WeightLogResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/weight", w, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Health checks that the backend is reachable and, when MinVersion is
// set, that it speaks a compatible API version.
func (c *Client) Health(ctx context.Context) (*HealthInfo, error) {
	var out HealthInfo
	if err := c.do(ctx, http.MethodGet, "/health", nil, &out); err != nil {
		return nil, err
	}
	if c.MinVersion == "" {
		return &out, nil
	}

	have, want := canonicalVersion(out.Version), canonicalVersion(c.MinVersion)
	if !semver.IsValid(have) {
		return &out, fmt.Errorf("%w: backend reported %q", ErrIncompatibleVersion, out.Version)
	}
	if semver.IsValid(want) && semver.Compare(have, want) < 0 {
		return &out, fmt.Errorf("%w: backend %s older than required %s", ErrIncompatibleVersion, have, want)
	}
	return &out, nil
}

// Probe reports whether the backend is reachable. It satisfies the
// reachability prober used by the network monitor.
func (c *Client) Probe(ctx context.Context) error {
	_, err := c.Health(ctx)
	return err
}

func canonicalVersion(v string) string {
	v = strings.TrimSpace(v)
	if v != "" && !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return v
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	baseURL := strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if baseURL == "" {
		return fmt.Errorf("missing API base URL")
	}
	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal %s %s payload: %w", method, path, err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create %s %s request: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read %s %s response: %w", method, path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(data)),
		}
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}
