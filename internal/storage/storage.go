// Package storage defines the usage ledger: one row per bridged request.
package storage

import (
	"context"
	"time"
)

// UsageRecord describes one completed request.
type UsageRecord struct {
	RequestID    string
	Ingress      string
	Model        string
	Egress       string
	Streaming    bool
	StopReason   string
	InputTokens  int
	OutputTokens int
	Status       int
	Duration     time.Duration
	CreatedAt    time.Time
}

// ModelTotals aggregates the ledger for one model.
type ModelTotals struct {
	Model        string `json:"model"`
	Requests     int64  `json:"requests"`
	Errors       int64  `json:"errors"`
	InputTokens  int64  `json:"input_tokens"`
	OutputTokens int64  `json:"output_tokens"`
}

// UsageStore records requests and reports per-model totals.
type UsageStore interface {
	Record(ctx context.Context, rec *UsageRecord) error
	Totals(ctx context.Context) ([]ModelTotals, error)
	Close() error
}
