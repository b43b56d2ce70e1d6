// Package output provides JSONL output for description runs.
//
// Output is structured as typed record envelopes containing descriptions,
// failures, and summaries. Each line is a self-contained JSON object that
// can be parsed independently, and the records file is append-only: a
// regenerated description is a new record, never an overwrite.
package output

import (
	"encoding/json"
	"errors"
	"time"
)

// Record type constants define the envelope types for JSONL output.
// These follow the pattern: mediascribe.<type>.v<version>
const (
	// TypeDescription identifies generated description records.
	TypeDescription = "mediascribe.description.v1"

	// TypeFailure identifies per-item failure records.
	TypeFailure = "mediascribe.failure.v1"

	// TypeSummary identifies stage-end summary records.
	TypeSummary = "mediascribe.summary.v1"
)

// Record is the envelope for all JSONL output.
//
// Each line contains a Record with a type-specific payload in the Data
// field. The type field determines how to interpret the payload.
type Record struct {
	// Type identifies the record type (e.g., "mediascribe.description.v1").
	Type string `json:"type"`

	// TS is the timestamp when the record was created (RFC3339Nano).
	TS time.Time `json:"ts"`

	// RunID is the correlation ID for this run.
	RunID string `json:"run_id"`

	// Provider identifies the description backend (e.g., "ollama").
	Provider string `json:"provider"`

	// Data contains the type-specific payload as raw JSON.
	Data json.RawMessage `json:"data"`
}

// DescriptionRecord is the data payload for one generated description.
//
// This is the stable schema consumed by report generation: work-item
// identity, text, provider, model, prompt style, token counts, timestamp.
// Records appear in ledger order (discovery order); consumers re-sort
// for display.
type DescriptionRecord struct {
	// Identity is the stable work-item identity the text describes.
	Identity string `json:"identity"`

	// Text is the generated description.
	Text string `json:"text"`

	// Provider is the backend id that produced the text.
	Provider string `json:"provider"`

	// Model is the model identifier.
	Model string `json:"model"`

	// PromptStyle names the instruction variant used.
	PromptStyle string `json:"prompt_style"`

	// InputTokens and OutputTokens hold usage counts; zero when the
	// backend does not report tokens.
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`

	// CreatedAt is when the description was generated.
	CreatedAt time.Time `json:"created_at"`
}

// FailureRecord is the data payload for one terminally failed item.
type FailureRecord struct {
	// Category is the failure category (e.g., "validation", "credential").
	Category string `json:"category"`

	// Message is a human-readable failure description.
	Message string `json:"message"`

	// Identity is the work-item identity that failed.
	Identity string `json:"identity"`

	// Attempts is how many times the call was attempted.
	Attempts int `json:"attempts"`

	// Terminal is true once all attempts are spent.
	Terminal bool `json:"terminal"`
}

// SummaryRecord is the data payload for stage-end summaries.
type SummaryRecord struct {
	// Discovered is the number of work items found by discovery.
	Discovered int `json:"discovered"`

	// Processed is the number of items described this run.
	Processed int `json:"processed"`

	// Skipped is the number of items excluded by the resume skip-set.
	Skipped int `json:"skipped"`

	// Failed is the number of items that terminally failed.
	Failed int `json:"failed"`

	// Duration is the stage duration.
	Duration time.Duration `json:"duration_ns"`

	// DurationHuman is a human-readable duration string.
	DurationHuman string `json:"duration"`

	// FailureCategories maps category → count for failed items.
	FailureCategories map[string]int `json:"failure_categories,omitempty"`
}

// Writer errors.
var (
	// ErrWriterClosed is returned when writing to a closed writer.
	ErrWriterClosed = errors.New("writer is closed")
)

// WriteError wraps errors that occur during write operations.
type WriteError struct {
	Op  string // Operation that failed (e.g., "marshal_data", "write")
	Err error  // Underlying error
}

func (e *WriteError) Error() string {
	return "output: " + e.Op + ": " + e.Err.Error()
}

func (e *WriteError) Unwrap() error {
	return e.Err
}
