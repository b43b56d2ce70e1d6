package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scribeworks/mediascribe/pkg/provider"
)

func writeImage(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "photo.png")
	require.NoError(t, os.WriteFile(path, []byte("png-bytes"), 0o644))
	return path
}

func newDescriber(t *testing.T, srv *httptest.Server, opts provider.Options) provider.Describer {
	t.Helper()
	opts.Endpoint = srv.URL
	if opts.HTTPClient == nil {
		opts.HTTPClient = srv.Client()
	}
	d, err := New(context.Background(), Descriptor(), opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func request(path string) provider.Request {
	return provider.Request{
		Identity:    "photo.png",
		Path:        path,
		Prompt:      "Describe this image.",
		PromptStyle: "narrative",
		Model:       "gpt-4o-mini",
	}
}

func successBody(text string) string {
	return `{
  "choices": [{"message": {"content": "` + text + `"}}],
  "usage": {"prompt_tokens": 900, "completion_tokens": 42}
}`
}

func TestDescribe_Success(t *testing.T) {
	path := writeImage(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4o-mini", req.Model)
		require.Len(t, req.Messages, 1)
		require.Len(t, req.Messages[0].Content, 2)
		assert.Equal(t, "Describe this image.", req.Messages[0].Content[0].Text)
		require.NotNil(t, req.Messages[0].Content[1].ImageURL)
		assert.True(t, strings.HasPrefix(req.Messages[0].Content[1].ImageURL.URL, "data:image/png;base64,"))

		_, _ = w.Write([]byte(successBody("a lighthouse at sunset")))
	}))
	defer srv.Close()

	d := newDescriber(t, srv, provider.Options{Credential: "sk-test"})
	desc, err := d.Describe(context.Background(), request(path))
	require.NoError(t, err)

	assert.Equal(t, "a lighthouse at sunset", desc.Text)
	assert.Equal(t, "openai", desc.Provider)
	assert.Equal(t, 900, desc.Usage.InputTokens)
	assert.Equal(t, 42, desc.Usage.OutputTokens)
}

func TestDescribe_CredentialResolution(t *testing.T) {
	path := writeImage(t)

	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(successBody("ok")))
	}))
	defer srv.Close()

	t.Run("credential file", func(t *testing.T) {
		credFile := filepath.Join(t.TempDir(), "key")
		require.NoError(t, os.WriteFile(credFile, []byte("sk-from-file\n"), 0o600))

		d := newDescriber(t, srv, provider.Options{CredentialFile: credFile})
		_, err := d.Describe(context.Background(), request(path))
		require.NoError(t, err)
		assert.Equal(t, "Bearer sk-from-file", gotAuth)
	})

	t.Run("environment", func(t *testing.T) {
		t.Setenv(EnvVar, "sk-from-env")
		d := newDescriber(t, srv, provider.Options{})
		_, err := d.Describe(context.Background(), request(path))
		require.NoError(t, err)
		assert.Equal(t, "Bearer sk-from-env", gotAuth)
	})
}

func TestDescribe_MissingCredentialFailsWithoutNetworkCall(t *testing.T) {
	path := writeImage(t)
	t.Setenv(EnvVar, "")

	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		calls++
	}))
	defer srv.Close()

	d := newDescriber(t, srv, provider.Options{})

	_, err := d.Describe(context.Background(), request(path))
	require.Error(t, err)
	assert.True(t, provider.IsCredentialMissing(err))
	assert.False(t, provider.IsTransient(err), "credential failures must not retry")
	assert.Zero(t, calls)

	// The resolution result is cached; a second call fails the same way.
	_, err = d.Describe(context.Background(), request(path))
	assert.True(t, provider.IsCredentialMissing(err))
	assert.Zero(t, calls)
}

func TestDescribe_StatusMapping(t *testing.T) {
	path := writeImage(t)

	tests := []struct {
		name      string
		status    int
		body      string
		check     func(t *testing.T, err error)
		transient bool
	}{
		{
			"unauthorized",
			http.StatusUnauthorized, `{"error":{"message":"bad key","type":"invalid_request_error"}}`,
			func(t *testing.T, err error) { assert.True(t, provider.IsAuthFailed(err)) },
			false,
		},
		{
			"model not found",
			http.StatusNotFound, `{"error":{"message":"model gone","code":"model_not_found"}}`,
			func(t *testing.T, err error) { assert.True(t, provider.IsUnsupportedModel(err)) },
			false,
		},
		{
			"rate limited",
			http.StatusTooManyRequests, `{"error":{"message":"slow down"}}`,
			func(t *testing.T, err error) { assert.ErrorIs(t, err, provider.ErrServer) },
			true,
		},
		{
			"server error",
			http.StatusBadGateway, "upstream died",
			func(t *testing.T, err error) { assert.ErrorIs(t, err, provider.ErrServer) },
			true,
		},
		{
			"unprocessable",
			http.StatusUnprocessableEntity, `{"error":{"message":"bad image"}}`,
			func(t *testing.T, err error) { assert.ErrorIs(t, err, provider.ErrInvalidRequest) },
			false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			d := newDescriber(t, srv, provider.Options{Credential: "sk-test"})
			_, err := d.Describe(context.Background(), request(path))
			require.Error(t, err)
			tt.check(t, err)
			assert.Equal(t, tt.transient, provider.IsTransient(err))
		})
	}
}

func TestDescribe_EmptyChoices(t *testing.T) {
	path := writeImage(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"choices": []}`))
	}))
	defer srv.Close()

	d := newDescriber(t, srv, provider.Options{Credential: "sk-test"})
	_, err := d.Describe(context.Background(), request(path))
	require.Error(t, err)
	assert.ErrorIs(t, err, provider.ErrMalformedResponse)
}

func TestDescriptor_Capabilities(t *testing.T) {
	d := Descriptor()
	assert.Equal(t, "openai", d.ID)
	assert.True(t, d.RequiresCredential)
	assert.Equal(t, EnvVar, d.CredentialEnvVar)
	assert.Equal(t, int64(20<<20), d.MaxPayloadBytes)
	assert.Equal(t, "gpt-4o-mini", d.DefaultModel)
}
