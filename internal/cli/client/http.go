package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const (
	envAPIURL       = "CLARIFY_API_URL"
	envExtractorURL = "CLARIFY_EXTRACTOR_URL"

	defaultAPIURL = "http://localhost:8080"
)

type APIClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewAPIClientWithCmd resolves the base URL with the cascade flag → env → default.
// A nil cmd skips the flag lookup.
func NewAPIClientWithCmd(cmd *cobra.Command) *APIClient {
	_ = godotenv.Load()
	var flags *pflag.FlagSet
	if cmd != nil {
		flags = cmd.Flags()
	}
	return NewAPIClientWithURL(resolve(flags, "api-url", envAPIURL, defaultAPIURL))
}

func NewAPIClientWithURL(baseURL string) *APIClient {
	return &APIClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			// Ingest of a large document embeds every batch before replying.
			Timeout: 5 * time.Minute,
		},
	}
}

func resolve(flags *pflag.FlagSet, flag, env, fallback string) string {
	if flags != nil {
		if v, err := flags.GetString(flag); err == nil && v != "" {
			return v
		}
	}
	if v := os.Getenv(env); v != "" {
		return v
	}
	return fallback
}

// APIError represents an error from the API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
}

type errorBody struct {
	Error string `json:"error"`
}

// Post sends body as JSON and decodes a 2xx reply into out.
// Non-2xx replies become *APIError; when the body still decodes into out
// (ingest's failed report) both out and the error are populated.
func (c *APIClient) Post(ctx context.Context, path string, body, out any) error {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
		var eb errorBody
		if json.Unmarshal(respBody, &eb) == nil && eb.Error != "" {
			apiErr.Message = eb.Error
		}
		if out != nil {
			_ = json.Unmarshal(respBody, out)
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// IsStatus reports whether err is an APIError with the given status code.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == status
}
