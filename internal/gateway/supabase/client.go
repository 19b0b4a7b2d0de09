// Package supabase implements the record gateway, identity provider and object
// storage on top of a hosted Supabase project (PostgREST, GoTrue, Storage).
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"devplan/internal/gateway"
	"devplan/internal/pkg/metrics"

	"github.com/tidwall/gjson"
)

const (
	maxResponseBytes  = 8 << 20  // 8 MiB
	maxErrorBodyBytes = 32 << 10 // 32 KiB
)

// Config holds client configuration.
type Config struct {
	URL        string
	AnonKey    string
	ServiceKey string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client talks to one Supabase project.
//
// Record and storage calls use the service key when configured so row access is
// decided by this backend (every query is scoped by user_id). Password sign-in
// always uses the anon key.
type Client struct {
	baseURL    string
	anonKey    string
	serviceKey string
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates a client.
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("supabase url is required")
	}
	if cfg.AnonKey == "" && cfg.ServiceKey == "" {
		return nil, fmt.Errorf("supabase key is required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Client{
		baseURL:    strings.TrimSuffix(cfg.URL, "/"),
		anonKey:    cfg.AnonKey,
		serviceKey: cfg.ServiceKey,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

func (c *Client) key() string {
	if c.serviceKey != "" {
		return c.serviceKey
	}
	return c.anonKey
}

func (c *Client) publicKey() string {
	if c.anonKey != "" {
		return c.anonKey
	}
	return c.serviceKey
}

type response struct {
	status int
	body   []byte
}

// call performs one request and converts non-2xx answers into *gateway.StoreError.
func (c *Client) call(ctx context.Context, op, table string, req *http.Request) (*response, error) {
	if req.Header.Get("apikey") == "" {
		req.Header.Set("apikey", c.key())
		req.Header.Set("Authorization", "Bearer "+c.key())
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}

	resp, err := c.httpClient.Do(req.WithContext(ctx))
	if err != nil {
		metrics.GatewayErrorsTotal.WithLabelValues(op, table).Inc()
		return nil, &gateway.StoreError{Op: op, Table: table, Err: fmt.Errorf("http request: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		metrics.GatewayErrorsTotal.WithLabelValues(op, table).Inc()
		msg := errorMessage(body)
		c.logger.Warn("supabase api error",
			slog.String("op", op),
			slog.String("table", table),
			slog.Int("status", resp.StatusCode),
			slog.String("error", msg),
		)
		return nil, &gateway.StoreError{Op: op, Table: table, Status: resp.StatusCode, Err: errors.New(msg)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return nil, &gateway.StoreError{Op: op, Table: table, Status: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}
	if len(body) > maxResponseBytes {
		return nil, &gateway.StoreError{Op: op, Table: table, Status: resp.StatusCode, Err: fmt.Errorf("response too large")}
	}
	return &response{status: resp.StatusCode, body: body}, nil
}

// errorMessage extracts the human readable part of a PostgREST/GoTrue/Storage error body.
func errorMessage(body []byte) string {
	if len(body) == 0 {
		return "empty error body"
	}
	if gjson.ValidBytes(body) {
		for _, path := range []string{"message", "msg", "error_description", "error"} {
			if v := gjson.GetBytes(body, path); v.Exists() && v.String() != "" {
				return v.String()
			}
		}
	}
	return strings.TrimSpace(string(body))
}

func newJSONRequest(method, url string, payload any) (*http.Request, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, url, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}
