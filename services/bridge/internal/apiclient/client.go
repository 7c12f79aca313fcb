// Package apiclient talks to the sensor hub REST API.
package apiclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/goccy/go-json"
)

// Field describes one field of a sensor registration.
type Field struct {
	Name string `json:"nombre_campo"`
	Type string `json:"tipo_campo"`
}

// Sensor is the body of POST /agregar_sensor.
type Sensor struct {
	Name   string  `json:"sensor"`
	Type   string  `json:"tipo_sensor"`
	Fields []Field `json:"campos"`
}

// Reading is one entry of a /guardar batch.
type Reading struct {
	Detail string   `json:"detail"`
	Value  *float64 `json:"value"`
}

// StatusError reports a non-2xx answer from the API.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("api answered %d: %s", e.Code, e.Body)
}

// Client posts registrations and batches. Requests are retried on transport errors and 5xx
// answers; 4xx answers fail immediately.
type Client struct {
	baseURL  string
	token    string
	http     *http.Client
	attempts int
	delay    time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithRetry sets the number of attempts and the initial backoff delay.
func WithRetry(attempts int, delay time.Duration) Option {
	return func(c *Client) {
		if attempts > 0 {
			c.attempts = attempts
		}
		c.delay = delay
	}
}

// New constructs a Client for baseURL. An empty token sends no Authorization header.
func New(baseURL, token string, httpClient *http.Client, opts ...Option) *Client {
	c := &Client{baseURL: baseURL, token: token, http: httpClient, attempts: 3, delay: time.Second}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RegisterSensor upserts a sensor by name.
func (c *Client) RegisterSensor(ctx context.Context, s Sensor) error {
	return c.post(ctx, "/agregar_sensor", s)
}

// PostMeasures sends one ingestion batch keyed by sensor name.
func (c *Client) PostMeasures(ctx context.Context, measures map[string][]Reading) error {
	return c.post(ctx, "/guardar", map[string]any{"measures": measures})
}

func (c *Client) post(ctx context.Context, path string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = c.delay
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(c.attempts-1)), ctx)

	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			_, _ = io.Copy(io.Discard, resp.Body)
			return nil
		}
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		statusErr := &StatusError{Code: resp.StatusCode, Body: string(bytes.TrimSpace(msg))}
		if resp.StatusCode < 500 {
			return backoff.Permanent(statusErr)
		}
		return statusErr
	}

	if err := backoff.Retry(op, policy); err != nil {
		return fmt.Errorf("POST %s: %w", path, err)
	}
	return nil
}
