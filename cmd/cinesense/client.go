package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	json "github.com/goccy/go-json"

	"github.com/kalambet/cinesense/internal/config"
)

// userFlag is set by the persistent --user flag.
var userFlag string

type apiClient struct {
	baseURL    string
	token      string
	user       string
	userHeader string
	httpClient *http.Client
}

var newAPIClient = func() (*apiClient, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	token, err := config.GetAPIToken(cfg)
	if err != nil {
		return nil, fmt.Errorf("getting API token: %w", err)
	}

	return &apiClient{
		baseURL:    fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port),
		token:      token,
		user:       userFlag,
		userHeader: cfg.Server.UserHeader,
		// Discovery streams can outlast a normal request; callers bound
		// them with their context instead.
		httpClient: &http.Client{Timeout: 5 * time.Minute},
	}, nil
}

func (c *apiClient) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshalling request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if c.user != "" && c.userHeader != "" {
		req.Header.Set(c.userHeader, c.user)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("server not reachable, is cinesense running? (%w)", err)
	}
	return resp, nil
}

func (c *apiClient) get(ctx context.Context, path string) (*http.Response, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

func (c *apiClient) post(ctx context.Context, path string, body any) (*http.Response, error) {
	return c.do(ctx, http.MethodPost, path, body)
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("server returned %d (failed to read body: %w)", resp.StatusCode, err)
	}
	return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(body))
}

func decodeJSON(resp *http.Response, v any) error {
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return err
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

// decodeNDJSON calls fn with every line of a newline-delimited JSON body.
// A trailing {"error":...} line is reported as an error.
func decodeNDJSON(resp *http.Response, fn func(json.RawMessage) error) error {
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return err
	}

	dec := json.NewDecoder(resp.Body)
	for {
		var line json.RawMessage
		if err := dec.Decode(&line); err == io.EOF {
			return nil
		} else if err != nil {
			return fmt.Errorf("reading stream: %w", err)
		}

		var failure struct {
			Error string `json:"error"`
		}
		if len(line) > 0 && line[0] == '{' && json.Unmarshal(line, &failure) == nil && failure.Error != "" {
			return fmt.Errorf("server error: %s", failure.Error)
		}
		if err := fn(line); err != nil {
			return err
		}
	}
}
