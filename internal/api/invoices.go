package api

import (
	"bytes"
	"context"
	"fmt"

	"github.com/docling/docling-agent/internal/domain"
)

// ProcessResponse is the accept response of the processing endpoint. The
// backend answers either with an asynchronous job to poll, or (simple path)
// with the extracted products directly.
type ProcessResponse struct {
	Success  bool                      `json:"success"`
	JobID    string                    `json:"job_id"`
	Products []domain.ExtractedProduct `json:"products"`
}

// JobStatusResponse is one poll result for an extraction job.
type JobStatusResponse struct {
	Status string `json:"status"` // "completed", "error", or transient
	Result *struct {
		Products      []domain.ExtractedProduct `json:"products"`
		ProductsAdded int                       `json:"products_added"`
	} `json:"result,omitempty"`
	Error string `json:"error,omitempty"`
}

// Completed reports whether the job reached successful terminal state.
func (r *JobStatusResponse) Completed() bool { return r.Status == "completed" }

// Failed reports whether the job reached failed terminal state.
func (r *JobStatusResponse) Failed() bool { return r.Status == "error" }

// ProcessInvoice uploads one invoice file for AI extraction.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - file: payload to upload (already compressed when applicable).
//   - model: AI model identifier.
//   - source: upload source tag.
//
// Returns:
//   - *ProcessResponse: job id to poll, or synchronous products.
//   - error: non-nil on transport or server failure.
func (c *Client) ProcessInvoice(ctx context.Context, file domain.File, model string, source domain.Source) (*ProcessResponse, error) {
	var out ProcessResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetFileReader("file", file.Name, bytes.NewReader(file.Data)).
		SetFormData(map[string]string{
			"model":  model,
			"source": string(source),
		}).
		SetResult(&out).
		Post("/api/v1/invoices/process")
	if err != nil {
		return nil, fmt.Errorf("process invoice: %w", err)
	}
	if err := checkStatus(resp); err != nil {
		return nil, err
	}
	return &out, nil
}

// JobStatus polls the status of an extraction job.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - jobID: opaque backend-assigned job identifier.
//
// Returns:
//   - *JobStatusResponse: current job state.
//   - error: non-nil on transport or server failure.
func (c *Client) JobStatus(ctx context.Context, jobID string) (*JobStatusResponse, error) {
	var out JobStatusResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		Get("/api/v1/invoices/status/" + jobID)
	if err != nil {
		return nil, fmt.Errorf("job status: %w", err)
	}
	if err := checkStatus(resp); err != nil {
		return nil, err
	}
	return &out, nil
}

// Health probes the service and doubles as the connectivity check for the
// offline queue decision.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//
// Returns:
//   - error: non-nil when the service is unreachable.
func (c *Client) Health(ctx context.Context) error {
	resp, err := c.http.R().SetContext(ctx).Get("/health")
	if err != nil {
		return fmt.Errorf("health: %w", err)
	}
	return checkStatus(resp)
}

// Online reports whether the remote service currently answers.
func (c *Client) Online(ctx context.Context) bool {
	return c.Health(ctx) == nil
}
