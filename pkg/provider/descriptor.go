package provider

import (
	"context"
	"fmt"
	"sort"
)

// Descriptor is the static capability set for one backend.
//
// Every capability consumed anywhere in the pipeline is declared here,
// once; call sites query a Registry rather than keeping their own
// capability tables in sync.
type Descriptor struct {
	// ID is the stable backend identifier (e.g., "ollama", "openai").
	ID string

	// Name is a human-readable display name.
	Name string

	// RequiresCredential is true for backends that need an API key.
	RequiresCredential bool

	// SupportsCustomPrompt is true when the backend accepts caller-built
	// instruction text instead of a fixed prompt.
	SupportsCustomPrompt bool

	// SupportsChat is true when the backend exposes a multi-turn surface.
	SupportsChat bool

	// ReportsTokens is true when responses include token usage counts.
	ReportsTokens bool

	// MaxPayloadBytes is the backend's documented raw request limit.
	// Pre-flight validation applies an encoding safety margin below this.
	MaxPayloadBytes int64

	// Formats lists accepted payload extensions (lowercase, leading dot).
	Formats []string

	// CredentialEnvVar is the environment variable consulted last in the
	// credential resolution chain. Empty when RequiresCredential is false.
	CredentialEnvVar string

	// DefaultModel is used when the run configuration names no model.
	DefaultModel string
}

// SupportsFormat reports whether the backend accepts the extension
// (lowercase, leading dot). An empty Formats list accepts everything.
func (d Descriptor) SupportsFormat(ext string) bool {
	if len(d.Formats) == 0 {
		return true
	}
	for _, f := range d.Formats {
		if f == ext {
			return true
		}
	}
	return false
}

// Factory constructs a Describer for a backend.
type Factory func(ctx context.Context, d Descriptor, opts Options) (Describer, error)

// Registry holds backend descriptors and factories.
//
// A Registry is constructed once per run and passed explicitly; there is
// no ambient global registry. Adding a backend means one Register call.
type Registry struct {
	descriptors map[string]Descriptor
	factories   map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		descriptors: make(map[string]Descriptor),
		factories:   make(map[string]Factory),
	}
}

// Register adds a backend. Re-registering an id replaces the prior entry.
func (r *Registry) Register(d Descriptor, f Factory) {
	r.descriptors[d.ID] = d
	r.factories[d.ID] = f
}

// Lookup returns the descriptor for a backend id.
func (r *Registry) Lookup(id string) (Descriptor, error) {
	d, ok := r.descriptors[id]
	if !ok {
		return Descriptor{}, fmt.Errorf("unknown provider %q (known: %v)", id, r.IDs())
	}
	return d, nil
}

// New constructs a Describer for the backend id.
func (r *Registry) New(ctx context.Context, id string, opts Options) (Describer, error) {
	d, err := r.Lookup(id)
	if err != nil {
		return nil, err
	}
	return r.factories[id](ctx, d, opts)
}

// IDs returns registered backend ids, sorted.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.descriptors))
	for id := range r.descriptors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// List returns all descriptors, sorted by id.
func (r *Registry) List() []Descriptor {
	out := make([]Descriptor, 0, len(r.descriptors))
	for _, id := range r.IDs() {
		out = append(out, r.descriptors[id])
	}
	return out
}
