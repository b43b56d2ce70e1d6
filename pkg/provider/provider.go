// Package provider defines abstractions for AI description backends.
//
// Providers implement a single Describe operation over heterogeneous
// backends (local inference hosts, cloud APIs). Static capabilities are
// declared once per backend in a Registry; call sites query the registry
// instead of keeping their own capability tables.
package provider

import (
	"context"
	"net/http"
	"time"
)

// Describer produces a text description for a single media payload.
//
// Implementations should:
//   - Perform no network I/O for inputs that fail pre-flight validation
//   - Resolve credentials lazily, on first Describe call
//   - Be safe for sequential reuse across many work items
type Describer interface {
	// Describe generates a description for the request's payload.
	// Classifiable errors use the sentinel errors in this package so the
	// retry layer can separate transient from permanent failures.
	Describe(ctx context.Context, req Request) (*Description, error)

	// Close releases any resources held by the describer.
	Close() error
}

// Request carries one description call.
type Request struct {
	// Identity is the stable work-item identity, used in errors and records.
	Identity string

	// Path is the local file holding the payload to describe.
	Path string

	// Prompt is the full instruction text sent to the backend.
	Prompt string

	// PromptStyle names the instruction variant the prompt was built from.
	PromptStyle string

	// Model is the backend model identifier.
	Model string
}

// Usage reports token counts for a call, when the backend provides them.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Description is the result of a successful Describe call.
// Immutable once created; regeneration creates a new Description.
type Description struct {
	// Identity is the work-item identity the text describes.
	Identity string

	// Text is the generated description.
	Text string

	// Provider is the backend id that produced the text.
	Provider string

	// Model is the model that produced the text.
	Model string

	// PromptStyle is the instruction variant used.
	PromptStyle string

	// Usage holds token counts. Zero values when the backend does not
	// report tokens (see Descriptor.ReportsTokens).
	Usage Usage

	// CreatedAt is when the description was generated.
	CreatedAt time.Time
}

// Options configures backend construction. The zero value is usable for
// backends that need no credential and accept their default endpoint.
type Options struct {
	// Credential is an explicit credential value. Takes precedence over
	// CredentialFile and the backend's environment variable.
	Credential string

	// CredentialFile is a path to a file whose trimmed contents are the
	// credential. Checked after Credential, before the environment.
	CredentialFile string

	// Endpoint overrides the backend's default base URL
	// (e.g. a local inference host, an API-compatible gateway).
	Endpoint string

	// HTTPClient overrides the default HTTP client. Tests use this to
	// point backends at httptest servers.
	HTTPClient *http.Client

	// Timeout bounds a single HTTP exchange. Zero uses the backend default.
	// The resilience layer applies its own per-attempt timeout on top.
	Timeout time.Duration
}
