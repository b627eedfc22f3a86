package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const userAgent = "flotilla"

var httpClient = &http.Client{
	Timeout: 30 * time.Second,
}

// HTTPGetTool performs HTTP GET requests.
type HTTPGetTool struct{}

func (t *HTTPGetTool) Name() string {
	return "http_get"
}

func (t *HTTPGetTool) Description() string {
	return "Performs an HTTP GET request to the specified URL and returns the response body."
}

func (t *HTTPGetTool) Invoke(ctx context.Context, args map[string]any) (*Result, error) {
	rawURL, _ := args["url"].(string)
	if rawURL == "" {
		return nil, fmt.Errorf("http_get: url is required")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("http_get: %w", err)
	}
	applyHeaders(req, args)

	return executeRequest(req)
}

// HTTPPostTool performs HTTP POST requests with a JSON body.
type HTTPPostTool struct{}

func (t *HTTPPostTool) Name() string {
	return "http_post"
}

func (t *HTTPPostTool) Description() string {
	return "Performs an HTTP POST request with a JSON body and returns the response body."
}

func (t *HTTPPostTool) Invoke(ctx context.Context, args map[string]any) (*Result, error) {
	rawURL, _ := args["url"].(string)
	if rawURL == "" {
		return nil, fmt.Errorf("http_post: url is required")
	}

	var body io.Reader
	if payload, ok := args["body"]; ok {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("http_post: encoding body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, body)
	if err != nil {
		return nil, fmt.Errorf("http_post: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	applyHeaders(req, args)

	return executeRequest(req)
}

func applyHeaders(req *http.Request, args map[string]any) {
	req.Header.Set("User-Agent", userAgent)
	headers, _ := args["headers"].(map[string]any)
	for k, v := range headers {
		if s, ok := v.(string); ok {
			req.Header.Set(k, s)
		}
	}
}

func executeRequest(req *http.Request) (*Result, error) {
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	// Cap response bodies at 1MB
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return Fail(fmt.Sprintf("HTTP %d: %s", resp.StatusCode, string(data))), nil
	}
	return Ok(string(data)), nil
}
