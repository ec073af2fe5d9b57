// Package apitest exercises a running lookup service: health checking with
// bounded retries and concurrent batch key resolution for soak testing a
// deployment.
package apitest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"oasisrun/internal/model"
)

// Client talks to one deployed lookup service. BaseURL includes the model
// route prefix, e.g. http://host:5000/AcmeCo/Flood01/1.0.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Logger     *log.Logger
	RetryDelay time.Duration
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) retryDelay() time.Duration {
	if c.RetryDelay > 0 {
		return c.RetryDelay
	}
	return 5 * time.Second
}

// HealthCheck polls the service's healthcheck route until it answers OK,
// waiting between attempts. It fails after the given number of attempts.
func (c *Client) HealthCheck(ctx context.Context, attempts int) error {
	if attempts < 1 {
		return fmt.Errorf("health check needs at least 1 attempt")
	}

	var lastErr error
	for i := 1; i <= attempts; i++ {
		if i > 1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.retryDelay()):
			}
		}

		err := c.healthCheckOnce(ctx)
		if err == nil {
			if c.Logger != nil {
				c.Logger.Printf("health check passed on attempt %d", i)
			}
			return nil
		}
		lastErr = err
		if c.Logger != nil {
			c.Logger.Printf("health check attempt %d/%d failed: %v", i, attempts, err)
		}
	}
	return fmt.Errorf("health check failed after %d attempts: %w", attempts, lastErr)
}

func (c *Client) healthCheckOnce(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/healthcheck", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("healthcheck status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if string(body) != "OK" {
		return fmt.Errorf("unexpected healthcheck body %q", body)
	}
	return nil
}

// GetKeys posts a CSV exposures file and returns the resolved key records.
func (c *Client) GetKeys(ctx context.Context, exposuresPath string) ([]model.KeyRecord, error) {
	f, err := os.Open(exposuresPath)
	if err != nil {
		return nil, fmt.Errorf("open exposures: %w", err)
	}
	defer f.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/get_keys", f)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "text/csv")

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("get_keys status %d", resp.StatusCode)
	}
	var parsed struct {
		Status string            `json:"status"`
		Items  []model.KeyRecord `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode get_keys response: %w", err)
	}
	if parsed.Status != "success" {
		return nil, fmt.Errorf("get_keys status field %q", parsed.Status)
	}
	return parsed.Items, nil
}
