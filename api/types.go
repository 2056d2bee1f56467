// Package api - HTTP request and response types
// Run reports are rendered by the output formatters; these types cover the
// history, diff and error envelopes.
package api

import (
	"time"

	"github.com/samber/lo"

	"profit-engine/adapters/storage"
	"profit-engine/core/types"
)

// RunSummary describes a stored run without its rows
type RunSummary struct {
	ID          string            `json:"id"`
	CreatedAt   time.Time         `json:"created_at"`
	Fingerprint string            `json:"fingerprint"`
	Currency    types.Currency    `json:"currency,omitempty"`
	Metrics     []string          `json:"metrics"`
	Stats       types.RunStats    `json:"stats"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// ListResponse is returned by GET /runs
type ListResponse struct {
	Runs  []RunSummary `json:"runs"`
	Count int          `json:"count"`
}

// DiffRequest is the input to POST /diff
type DiffRequest struct {
	OldID string `json:"old_id"`
	NewID string `json:"new_id"`
}

// DiffResponse is the output of POST /diff
type DiffResponse struct {
	*storage.CompareResult
	DurationMs int64 `json:"duration_ms"`
}

// ErrorResponse wraps every non-2xx JSON body
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// ErrorBody carries the error code, message and any structured context
type ErrorBody struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Context map[string]interface{} `json:"context,omitempty"`
}

func summarize(run *storage.StoredRun) RunSummary {
	return RunSummary{
		ID:          run.ID,
		CreatedAt:   run.CreatedAt,
		Fingerprint: run.Fingerprint,
		Currency:    types.Currency(run.Metadata["currency"]),
		Metrics:     lo.Map(run.Metrics, func(m types.Metric, _ int) string { return m.String() }),
		Stats:       run.Stats,
		Metadata:    run.Metadata,
	}
}
