// Package failure classifies and aggregates per-item failures.
//
// A single item's failure never aborts a run; it becomes a Record, and
// records are grouped by category into a stage-end Summary with
// per-category remediation text so a non-zero failed count is never
// reported without detail.
package failure

import (
	"errors"
	"fmt"
	"sort"

	"github.com/scribeworks/mediascribe/pkg/provider"
	"github.com/scribeworks/mediascribe/pkg/retry"
)

// Category groups failures for reporting.
type Category string

const (
	// CategoryValidation covers pre-flight rejections (unreadable file,
	// unsupported format).
	CategoryValidation Category = "validation"

	// CategoryPayload covers payloads over the provider limit. Split
	// from validation so remediation can be specific.
	CategoryPayload Category = "payload_too_large"

	// CategoryCredential covers missing or rejected credentials.
	CategoryCredential Category = "credential"

	// CategoryUnavailable covers unreachable local backend hosts.
	CategoryUnavailable Category = "service_unavailable"

	// CategoryTransient covers calls that exhausted their retries on
	// transient errors (server errors, timeouts, malformed responses).
	CategoryTransient Category = "transient_exhausted"

	// CategoryPermanent covers non-retryable backend rejections
	// (invalid request, unsupported model).
	CategoryPermanent Category = "permanent"
)

// remediation maps each category to operator guidance.
var remediation = map[Category]string{
	CategoryValidation:  "inspect the listed files; they are unreadable or in an unsupported format",
	CategoryPayload:     "reduce input size (resize or recompress) below the provider payload limit",
	CategoryCredential:  "check credential configuration (parameter, credential file, or environment variable)",
	CategoryUnavailable: "start the local backend service or point --endpoint at a reachable host",
	CategoryTransient:   "the backend was unstable; re-run with --resume to retry only the failed items",
	CategoryPermanent:   "the backend rejected these requests; check the model name and request parameters",
}

// Remediation returns operator guidance for a category.
func Remediation(c Category) string {
	if r, ok := remediation[c]; ok {
		return r
	}
	return "see the failure messages for details"
}

// Categorize maps a terminal describe error to its reporting category.
func Categorize(err error) Category {
	var ve *provider.ValidationError
	if errors.As(err, &ve) {
		if ve.Kind == provider.ValidationPayloadTooLarge {
			return CategoryPayload
		}
		return CategoryValidation
	}

	switch {
	case provider.IsCredentialMissing(err), provider.IsAuthFailed(err):
		return CategoryCredential
	case provider.IsServiceUnavailable(err):
		return CategoryUnavailable
	case retry.IsExhausted(err):
		return CategoryTransient
	default:
		return CategoryPermanent
	}
}

// Record is one item's terminal failure.
type Record struct {
	// Category is the reporting category.
	Category Category

	// Message is the illustrative failure message.
	Message string

	// Identity is the work-item identity.
	Identity string

	// Attempts is the number of attempts made (0 for pre-flight
	// rejections that never reached the call path).
	Attempts int

	// Terminal is true once no further attempts will be made.
	Terminal bool
}

// NewRecord builds a Record from a terminal describe error.
func NewRecord(identity string, attempts int, err error) Record {
	return Record{
		Category: Categorize(err),
		Message:  err.Error(),
		Identity: identity,
		Attempts: attempts,
		Terminal: true,
	}
}

// Group aggregates one category's failures.
type Group struct {
	// Count is the number of failed items in this category.
	Count int

	// Example is one illustrative message (the first seen).
	Example string

	// Remediation is the category's operator guidance.
	Remediation string
}

// Summary aggregates a stage's failure records by category.
type Summary struct {
	records []Record
	groups  map[Category]*Group
}

// NewSummary returns an empty summary.
func NewSummary() *Summary {
	return &Summary{groups: make(map[Category]*Group)}
}

// Add folds one record into the summary.
func (s *Summary) Add(r Record) {
	s.records = append(s.records, r)
	g, ok := s.groups[r.Category]
	if !ok {
		g = &Group{Remediation: Remediation(r.Category)}
		s.groups[r.Category] = g
	}
	g.Count++
	if g.Example == "" {
		g.Example = r.Message
	}
}

// Total is the number of failed items.
func (s *Summary) Total() int {
	return len(s.records)
}

// Records returns all failure records in insertion order.
func (s *Summary) Records() []Record {
	return s.records
}

// Group returns one category's aggregation, or nil.
func (s *Summary) Group(c Category) *Group {
	return s.groups[c]
}

// Categories returns the populated categories, sorted.
func (s *Summary) Categories() []Category {
	cats := make([]Category, 0, len(s.groups))
	for c := range s.groups {
		cats = append(cats, c)
	}
	sort.Slice(cats, func(i, j int) bool { return cats[i] < cats[j] })
	return cats
}

// Counts returns category → count, for summary records.
func (s *Summary) Counts() map[string]int {
	if len(s.groups) == 0 {
		return nil
	}
	out := make(map[string]int, len(s.groups))
	for c, g := range s.groups {
		out[string(c)] = g.Count
	}
	return out
}

// Lines renders the summary as human-readable lines, one per category.
func (s *Summary) Lines() []string {
	var lines []string
	for _, c := range s.Categories() {
		g := s.groups[c]
		lines = append(lines, fmt.Sprintf("%s: %d failed (e.g. %s); %s", c, g.Count, g.Example, g.Remediation))
	}
	return lines
}
