// Package openai implements the describe provider for the OpenAI
// vision-capable chat API and API-compatible gateways.
//
// The credential resolves lazily on the first Describe call, in
// precedence order: explicit option, credential file, environment
// variable. A run against a misconfigured credential therefore fails
// per item with ErrCredentialMissing instead of refusing to start.
package openai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/scribeworks/mediascribe/pkg/provider"
)

// DefaultEndpoint is the OpenAI API base URL.
const DefaultEndpoint = "https://api.openai.com"

// DefaultTimeout bounds one HTTP exchange.
const DefaultTimeout = 2 * time.Minute

// EnvVar is the environment variable consulted last in the credential
// resolution chain.
const EnvVar = "OPENAI_API_KEY"

// Descriptor declares the OpenAI backend's static capabilities.
func Descriptor() provider.Descriptor {
	return provider.Descriptor{
		ID:                   "openai",
		Name:                 "OpenAI",
		RequiresCredential:   true,
		SupportsCustomPrompt: true,
		SupportsChat:         true,
		ReportsTokens:        true,
		// Documented request limit for image payloads.
		MaxPayloadBytes:  20 << 20,
		Formats:          []string{".jpg", ".jpeg", ".png", ".gif", ".webp"},
		CredentialEnvVar: EnvVar,
		DefaultModel:     "gpt-4o-mini",
	}
}

// Describer calls the OpenAI chat completions API.
type Describer struct {
	descriptor provider.Descriptor
	opts       provider.Options
	endpoint   string
	client     *http.Client

	credOnce sync.Once
	cred     string
	credErr  error
}

var _ provider.Describer = (*Describer)(nil)

// New creates an OpenAI describer. The credential is not resolved here;
// see the package comment.
func New(_ context.Context, d provider.Descriptor, opts provider.Options) (provider.Describer, error) {
	endpoint := strings.TrimRight(opts.Endpoint, "/")
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

	return &Describer{descriptor: d, opts: opts, endpoint: endpoint, client: client}, nil
}

// Factory adapts New to the registry factory signature.
var Factory provider.Factory = New

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *apiError `json:"error"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

// Describe implements provider.Describer.
func (o *Describer) Describe(ctx context.Context, req provider.Request) (*provider.Description, error) {
	cred, err := o.credential()
	if err != nil {
		return nil, o.wrap(req.Identity, err)
	}

	payload, err := os.ReadFile(req.Path)
	if err != nil {
		return nil, o.wrap(req.Identity, &provider.ValidationError{
			Identity: req.Identity,
			Kind:     provider.ValidationUnreadable,
			Reason:   fmt.Sprintf("cannot read %s", req.Path),
			Err:      err,
		})
	}

	dataURL := fmt.Sprintf("data:%s;base64,%s", contentTypeFor(req.Path), base64.StdEncoding.EncodeToString(payload))
	body, err := json.Marshal(chatRequest{
		Model: req.Model,
		Messages: []chatMessage{{
			Role: "user",
			Content: []contentPart{
				{Type: "text", Text: req.Prompt},
				{Type: "image_url", ImageURL: &imageURL{URL: dataURL}},
			},
		}},
	})
	if err != nil {
		return nil, o.wrap(req.Identity, fmt.Errorf("encode request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpoint+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, o.wrap(req.Identity, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+cred)

	resp, err := o.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, o.wrap(req.Identity, err)
		}
		if errors.Is(err, context.DeadlineExceeded) || os.IsTimeout(err) {
			return nil, o.wrap(req.Identity, fmt.Errorf("%w: %v", provider.ErrTimeout, err))
		}
		// Cloud transport failures are worth retrying.
		return nil, o.wrap(req.Identity, fmt.Errorf("%w: %v", provider.ErrServer, err))
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, o.wrap(req.Identity, fmt.Errorf("%w: %v", provider.ErrMalformedResponse, err))
	}

	if resp.StatusCode != http.StatusOK {
		return nil, o.wrap(req.Identity, classifyStatus(resp.StatusCode, respBody))
	}

	var chat chatResponse
	if err := json.Unmarshal(respBody, &chat); err != nil {
		return nil, o.wrap(req.Identity, fmt.Errorf("%w: %v", provider.ErrMalformedResponse, err))
	}
	if chat.Error != nil {
		return nil, o.wrap(req.Identity, fmt.Errorf("%w: %s", provider.ErrServer, chat.Error.Message))
	}
	if len(chat.Choices) == 0 || chat.Choices[0].Message.Content == "" {
		return nil, o.wrap(req.Identity, fmt.Errorf("%w: no choices in response", provider.ErrMalformedResponse))
	}

	return &provider.Description{
		Identity:    req.Identity,
		Text:        chat.Choices[0].Message.Content,
		Provider:    o.descriptor.ID,
		Model:       req.Model,
		PromptStyle: req.PromptStyle,
		Usage: provider.Usage{
			InputTokens:  chat.Usage.PromptTokens,
			OutputTokens: chat.Usage.CompletionTokens,
		},
		CreatedAt: time.Now().UTC(),
	}, nil
}

// Close implements provider.Describer.
func (o *Describer) Close() error {
	o.client.CloseIdleConnections()
	return nil
}

// credential resolves once and caches the result, success or failure.
func (o *Describer) credential() (string, error) {
	o.credOnce.Do(func() {
		o.cred, o.credErr = provider.ResolveCredential(o.descriptor, o.opts)
	})
	return o.cred, o.credErr
}

func (o *Describer) wrap(identity string, err error) error {
	return &provider.Error{Op: "Describe", Provider: o.descriptor.ID, Identity: identity, Err: err}
}

// classifyStatus maps HTTP status codes to the error taxonomy.
func classifyStatus(status int, body []byte) error {
	var parsed struct {
		Error *apiError `json:"error"`
	}
	detail := strings.TrimSpace(string(body))
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error != nil {
		detail = parsed.Error.Message
		if parsed.Error.Code == "model_not_found" {
			return fmt.Errorf("%w: %s", provider.ErrUnsupportedModel, detail)
		}
	}
	if len(detail) > 200 {
		detail = detail[:200]
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w: %s", provider.ErrAuthFailed, detail)
	case status == http.StatusNotFound:
		return fmt.Errorf("%w: %s", provider.ErrUnsupportedModel, detail)
	case status == http.StatusTooManyRequests:
		// Rate limiting clears on its own; classify with server errors so
		// the retry layer backs off and tries again.
		return fmt.Errorf("%w: HTTP 429: %s", provider.ErrServer, detail)
	case status >= 500:
		return fmt.Errorf("%w: HTTP %d: %s", provider.ErrServer, status, detail)
	default:
		return fmt.Errorf("%w: HTTP %d: %s", provider.ErrInvalidRequest, status, detail)
	}
}

// contentTypeFor returns the MIME type for an image path.
func contentTypeFor(path string) string {
	if ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(path))); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
