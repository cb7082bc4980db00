package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// Sentinel errors surfaced by the client.
var (
	// ErrUnauthorized marks an HTTP 401. It is never retried; the registered
	// unauthorized hook runs first (credential cleanup).
	ErrUnauthorized = errors.New("unauthorized")

	// ErrMissingJobID marks an accept response without a job identifier.
	ErrMissingJobID = errors.New("missing job_id in process response")
)

// Config holds configuration for the Docling API client.
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration

	// OnUnauthorized runs once per 401 response before ErrUnauthorized is
	// returned. Typically clears stored credentials.
	OnUnauthorized func()
}

// Client wraps the remote invoice-processing and catalogue API.
type Client struct {
	http *resty.Client
}

// NewClient creates a Docling API client.
//
// Transport policy: 3 retries with exponential backoff, applied only to 5xx
// responses and transport-level failures. 401 is terminal and triggers the
// unauthorized hook.
func NewClient(cfg *Config) *Client {
	c := resty.New()
	c.SetBaseURL(cfg.BaseURL)
	if cfg.Token != "" {
		c.SetHeader("Authorization", "Bearer "+cfg.Token)
	}
	if cfg.Timeout > 0 {
		c.SetTimeout(cfg.Timeout)
	} else {
		c.SetTimeout(120 * time.Second)
	}

	c.SetRetryCount(3)
	c.SetRetryWaitTime(500 * time.Millisecond)
	c.SetRetryMaxWaitTime(4 * time.Second)
	c.AddRetryCondition(func(r *resty.Response, err error) bool {
		if errors.Is(err, ErrUnauthorized) {
			return false
		}
		if err != nil {
			return true
		}
		return r.StatusCode() >= http.StatusInternalServerError
	})

	c.OnAfterResponse(func(_ *resty.Client, r *resty.Response) error {
		if r.StatusCode() == http.StatusUnauthorized {
			if cfg.OnUnauthorized != nil {
				cfg.OnUnauthorized()
			}
			return ErrUnauthorized
		}
		return nil
	})

	return &Client{http: c}
}

// apiError extracts a failure from a non-2xx response.
type apiError struct {
	StatusCode int
	Detail     string
}

func (e *apiError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("api error (%d): %s", e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("api error (%d)", e.StatusCode)
}

// checkStatus converts a non-2xx response into an error, preserving the
// server-supplied detail message when present.
func checkStatus(resp *resty.Response) error {
	if resp.IsSuccess() {
		return nil
	}
	var body struct {
		Detail string `json:"detail"`
		Error  string `json:"error"`
	}
	detail := ""
	if err := json.Unmarshal(resp.Body(), &body); err == nil {
		detail = body.Detail
		if detail == "" {
			detail = body.Error
		}
	}
	return &apiError{StatusCode: resp.StatusCode(), Detail: detail}
}
