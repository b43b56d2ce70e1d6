// Package ollama implements the describe provider for a local Ollama host.
//
// Ollama runs models locally, so no credential is required; the failure
// mode unique to this backend is the host service not running, which is
// reported as provider.ErrServiceUnavailable.
package ollama

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/scribeworks/mediascribe/pkg/provider"
)

// DefaultEndpoint is the standard local Ollama address.
const DefaultEndpoint = "http://localhost:11434"

// DefaultTimeout bounds one HTTP exchange. Local inference on large
// images can be slow, so this is generous; the resilience layer applies
// its own per-attempt budget on top.
const DefaultTimeout = 5 * time.Minute

// Descriptor declares Ollama's static capabilities.
func Descriptor() provider.Descriptor {
	return provider.Descriptor{
		ID:                   "ollama",
		Name:                 "Ollama (local)",
		RequiresCredential:   false,
		SupportsCustomPrompt: true,
		SupportsChat:         true,
		ReportsTokens:        true,
		// Ollama accepts whatever the local model handles; bound requests
		// to keep encode memory sane rather than by an API contract.
		MaxPayloadBytes: 100 << 20,
		Formats:         []string{".jpg", ".jpeg", ".png", ".gif", ".webp", ".bmp"},
		DefaultModel:    "llava",
	}
}

// Describer calls a local Ollama host.
type Describer struct {
	id       string
	endpoint string
	client   *http.Client
}

var _ provider.Describer = (*Describer)(nil)

// New creates an Ollama describer.
func New(_ context.Context, d provider.Descriptor, opts provider.Options) (provider.Describer, error) {
	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}

	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}

	return &Describer{id: d.ID, endpoint: endpoint, client: client}, nil
}

// Factory adapts New to the registry factory signature.
var Factory provider.Factory = New

type generateRequest struct {
	Model  string   `json:"model"`
	Prompt string   `json:"prompt"`
	Images []string `json:"images"`
	Stream bool     `json:"stream"`
}

type generateResponse struct {
	Response        string `json:"response"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
	Error           string `json:"error"`
}

// Describe implements provider.Describer.
func (o *Describer) Describe(ctx context.Context, req provider.Request) (*provider.Description, error) {
	payload, err := os.ReadFile(req.Path)
	if err != nil {
		return nil, o.wrap(req.Identity, &provider.ValidationError{
			Identity: req.Identity,
			Kind:     provider.ValidationUnreadable,
			Reason:   fmt.Sprintf("cannot read %s", req.Path),
			Err:      err,
		})
	}

	body, err := json.Marshal(generateRequest{
		Model:  req.Model,
		Prompt: req.Prompt,
		Images: []string{base64.StdEncoding.EncodeToString(payload)},
		Stream: false,
	})
	if err != nil {
		return nil, o.wrap(req.Identity, fmt.Errorf("encode request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpoint+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, o.wrap(req.Identity, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return nil, o.wrap(req.Identity, classifyTransport(err))
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, o.wrap(req.Identity, fmt.Errorf("%w: %v", provider.ErrMalformedResponse, err))
	}

	if resp.StatusCode != http.StatusOK {
		return nil, o.wrap(req.Identity, classifyStatus(resp.StatusCode, respBody))
	}

	var gen generateResponse
	if err := json.Unmarshal(respBody, &gen); err != nil {
		return nil, o.wrap(req.Identity, fmt.Errorf("%w: %v", provider.ErrMalformedResponse, err))
	}
	if gen.Error != "" {
		return nil, o.wrap(req.Identity, fmt.Errorf("%w: %s", provider.ErrServer, gen.Error))
	}
	if gen.Response == "" {
		return nil, o.wrap(req.Identity, fmt.Errorf("%w: empty response", provider.ErrMalformedResponse))
	}

	return &provider.Description{
		Identity:    req.Identity,
		Text:        gen.Response,
		Provider:    o.id,
		Model:       req.Model,
		PromptStyle: req.PromptStyle,
		Usage: provider.Usage{
			InputTokens:  gen.PromptEvalCount,
			OutputTokens: gen.EvalCount,
		},
		CreatedAt: time.Now().UTC(),
	}, nil
}

// Close implements provider.Describer.
func (o *Describer) Close() error {
	o.client.CloseIdleConnections()
	return nil
}

func (o *Describer) wrap(identity string, err error) error {
	return &provider.Error{Op: "Describe", Provider: o.id, Identity: identity, Err: err}
}

// classifyTransport maps transport-level failures. A refused connection
// means the Ollama host is not running.
func classifyTransport(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || os.IsTimeout(err) {
		return fmt.Errorf("%w: %v", provider.ErrTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", provider.ErrTimeout, err)
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return fmt.Errorf("%w: %v", provider.ErrServiceUnavailable, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %v", provider.ErrServiceUnavailable, err)
}

// classifyStatus maps HTTP status codes to the error taxonomy.
func classifyStatus(status int, body []byte) error {
	detail := string(body)
	if len(detail) > 200 {
		detail = detail[:200]
	}
	switch {
	case status == http.StatusNotFound:
		return fmt.Errorf("%w: %s", provider.ErrUnsupportedModel, detail)
	case status == http.StatusBadRequest:
		return fmt.Errorf("%w: %s", provider.ErrInvalidRequest, detail)
	case status >= 500:
		return fmt.Errorf("%w: HTTP %d: %s", provider.ErrServer, status, detail)
	default:
		return fmt.Errorf("%w: HTTP %d: %s", provider.ErrInvalidRequest, status, detail)
	}
}
