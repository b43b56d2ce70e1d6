// Package builtin assembles the registry of shipped backends.
//
// The registry is constructed per run and passed explicitly; there is no
// ambient global. Adding a backend means one Register call here.
package builtin

import (
	"github.com/scribeworks/mediascribe/pkg/provider"
	"github.com/scribeworks/mediascribe/pkg/provider/ollama"
	"github.com/scribeworks/mediascribe/pkg/provider/openai"
)

// Registry returns a registry holding all shipped backends.
func Registry() *provider.Registry {
	r := provider.NewRegistry()
	r.Register(ollama.Descriptor(), ollama.Factory)
	r.Register(openai.Descriptor(), openai.Factory)
	return r
}
