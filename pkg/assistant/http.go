package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Arjun-57561/Veena/pkg/models"
)

const (
	welcomePath      = "/api/veena_welcome"
	queryPath        = "/api/query_customer"
	saveCustomerPath = "/api/save_customer"
)

// HTTPClient talks to the external assistant backend over JSON.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) post(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *HTTPClient) Welcome(ctx context.Context, req WelcomeRequest) (Reply, error) {
	var reply Reply
	if err := c.post(ctx, welcomePath, req, &reply); err != nil {
		return Reply{}, failed("welcome", err)
	}
	return reply, nil
}

func (c *HTTPClient) Query(ctx context.Context, req QueryRequest) (Reply, error) {
	var reply Reply
	if err := c.post(ctx, queryPath, req, &reply); err != nil {
		return Reply{}, failed("query", err)
	}
	return reply, nil
}

func (c *HTTPClient) SaveCustomer(ctx context.Context, customer models.CustomerData) error {
	var status struct {
		Status string `json:"status"`
	}
	if err := c.post(ctx, saveCustomerPath, customer, &status); err != nil {
		return failed("save_customer", err)
	}
	if status.Status != "success" {
		return failed("save_customer", fmt.Errorf("status %q", status.Status))
	}
	return nil
}
