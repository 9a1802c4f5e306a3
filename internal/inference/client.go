// Package inference talks to an external patch segmentation service.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrBadResponse is returned when the service answers with an unexpected payload.
var ErrBadResponse = errors.New("unexpected inference response")

// ImageNet statistics used by the encoder the service runs.
var (
	DefaultMean = []float64{0.485, 0.456, 0.406}
	DefaultStd  = []float64{0.229, 0.224, 0.225}
)

// Patch is a square, band-sequential input tile.
type Patch struct {
	Size  int         `json:"size"`
	Bands [][]float64 `json:"bands"`
}

// Predictor returns per-pixel positive class probabilities (Size*Size values).
type Predictor interface {
	Predict(ctx context.Context, p Patch) ([]float64, error)
}

type predictResponse struct {
	Probabilities []float64 `json:"probabilities"`
}

// Client is an HTTP Predictor.
type Client struct {
	http  *http.Client
	url   string
	token string
}

// NewClient builds a client for the service at url. token may be empty.
func NewClient(url, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		http:  &http.Client{Timeout: timeout},
		url:   strings.TrimRight(url, "/"),
		token: token,
	}
}

// Predict posts the patch as JSON and decodes the probabilities.
func (c *Client) Predict(ctx context.Context, p Patch) ([]float64, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode patch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("inference failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if len(out.Probabilities) != p.Size*p.Size {
		return nil, fmt.Errorf("%w: %d probabilities for %dx%d patch", ErrBadResponse, len(out.Probabilities), p.Size, p.Size)
	}

	return out.Probabilities, nil
}

// CheckHealth verifies the service answers on <url>/health.
func (c *Client) CheckHealth(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url+"/health", nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("inference service unhealthy: %d", resp.StatusCode)
	}

	return nil
}

// Normalize scales 8-bit values to [0,1] and standardises them: (v/255 - mean) / std.
func Normalize(band []float64, mean, std float64) []float64 {
	out := make([]float64, len(band))
	for i, v := range band {
		out[i] = (v/255 - mean) / std
	}
	return out
}
