package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scribeworks/mediascribe/pkg/provider"
)

func writeImage(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "photo.jpg")
	require.NoError(t, os.WriteFile(path, []byte("jpeg-bytes"), 0o644))
	return path
}

func newDescriber(t *testing.T, srv *httptest.Server) provider.Describer {
	t.Helper()
	d, err := New(context.Background(), Descriptor(), provider.Options{
		Endpoint:   srv.URL,
		HTTPClient: srv.Client(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func request(path string) provider.Request {
	return provider.Request{
		Identity:    "photo.jpg",
		Path:        path,
		Prompt:      "Describe this image.",
		PromptStyle: "narrative",
		Model:       "llava",
	}
}

func TestDescribe_Success(t *testing.T) {
	path := writeImage(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/generate", r.URL.Path)

		var req generateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "llava", req.Model)
		assert.False(t, req.Stream)
		require.Len(t, req.Images, 1)
		assert.NotEmpty(t, req.Images[0], "payload is base64 in the request")

		_ = json.NewEncoder(w).Encode(generateResponse{
			Response:        "a gray cat on a windowsill",
			PromptEvalCount: 120,
			EvalCount:       18,
		})
	}))
	defer srv.Close()

	desc, err := newDescriber(t, srv).Describe(context.Background(), request(path))
	require.NoError(t, err)

	assert.Equal(t, "photo.jpg", desc.Identity)
	assert.Equal(t, "a gray cat on a windowsill", desc.Text)
	assert.Equal(t, "ollama", desc.Provider)
	assert.Equal(t, "llava", desc.Model)
	assert.Equal(t, 120, desc.Usage.InputTokens)
	assert.Equal(t, 18, desc.Usage.OutputTokens)
	assert.False(t, desc.CreatedAt.IsZero())
}

func TestDescribe_HostDown(t *testing.T) {
	path := writeImage(t)

	// A server that is immediately closed leaves a refused port behind.
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	d, err := New(context.Background(), Descriptor(), provider.Options{Endpoint: url})
	require.NoError(t, err)
	defer func() { _ = d.Close() }()

	_, err = d.Describe(context.Background(), request(path))
	require.Error(t, err)
	assert.True(t, provider.IsServiceUnavailable(err))
	assert.False(t, provider.IsTransient(err), "a stopped host will not fix itself mid-run")
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
			"unknown model",
			http.StatusNotFound, `{"error":"model 'nope' not found"}`,
			func(t *testing.T, err error) { assert.True(t, provider.IsUnsupportedModel(err)) },
			false,
		},
		{
			"bad request",
			http.StatusBadRequest, `{"error":"invalid request"}`,
			func(t *testing.T, err error) { assert.ErrorIs(t, err, provider.ErrInvalidRequest) },
			false,
		},
		{
			"server error",
			http.StatusInternalServerError, "boom",
			func(t *testing.T, err error) { assert.ErrorIs(t, err, provider.ErrServer) },
			true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := newDescriber(t, srv).Describe(context.Background(), request(path))
			require.Error(t, err)
			tt.check(t, err)
			assert.Equal(t, tt.transient, provider.IsTransient(err))
		})
	}
}

func TestDescribe_ErrorInBody(t *testing.T) {
	path := writeImage(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(generateResponse{Error: "out of memory"})
	}))
	defer srv.Close()

	_, err := newDescriber(t, srv).Describe(context.Background(), request(path))
	require.Error(t, err)
	assert.ErrorIs(t, err, provider.ErrServer)
}

func TestDescribe_MalformedResponse(t *testing.T) {
	path := writeImage(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer srv.Close()

	_, err := newDescriber(t, srv).Describe(context.Background(), request(path))
	require.Error(t, err)
	assert.ErrorIs(t, err, provider.ErrMalformedResponse)
	assert.True(t, provider.IsTransient(err), "truncated responses are retried")
}

func TestDescribe_UnreadablePayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("no network call should happen for an unreadable payload")
	}))
	defer srv.Close()

	req := request(filepath.Join(t.TempDir(), "gone.jpg"))
	_, err := newDescriber(t, srv).Describe(context.Background(), req)
	require.Error(t, err)
	assert.True(t, provider.IsValidation(err))
}

func TestDescriptor_Capabilities(t *testing.T) {
	d := Descriptor()
	assert.Equal(t, "ollama", d.ID)
	assert.False(t, d.RequiresCredential)
	assert.True(t, d.SupportsCustomPrompt)
	assert.True(t, d.ReportsTokens)
	assert.Equal(t, "llava", d.DefaultModel)
	assert.True(t, d.SupportsFormat(".jpg"))
	assert.False(t, d.SupportsFormat(".tiff"))
}
