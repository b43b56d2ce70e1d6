// Package manifest provides loading and validation of mediascribe job
// manifests.
//
// A job manifest is a YAML or JSON file that configures one description
// run: the media source, the backend and model, prompt style, output
// location, and optional retry tuning overrides.
//
// Example manifest (YAML):
//
//	version: "1.0"
//	source:
//	  root: /photos/2024
//	  includes:
//	    - "**/*.jpg"
//	describe:
//	  provider: ollama
//	  model: llava
//	  prompt_style: narrative
//	output:
//	  root: /photos/2024-described
package manifest

import (
	"errors"
	"fmt"
	"time"

	"github.com/scribeworks/mediascribe/pkg/retry"
)

// SupportedVersion is the manifest schema version this build accepts.
const SupportedVersion = "1.0"

// Manifest represents a validated job manifest.
type Manifest struct {
	// Version is the manifest schema version. Must be "1.0".
	Version string `json:"version" yaml:"version"`

	// Source configures media discovery.
	Source SourceConfig `json:"source" yaml:"source"`

	// Describe configures the description backend.
	Describe DescribeConfig `json:"describe" yaml:"describe"`

	// Output configures the run output location.
	Output OutputConfig `json:"output" yaml:"output"`

	// Retry optionally overrides retry tuning (optional).
	Retry *RetryConfig `json:"retry,omitempty" yaml:"retry,omitempty"`
}

// SourceConfig configures media discovery.
//
// Root is either a local directory or an s3://bucket/prefix URI. The S3
// fields apply only to S3 roots.
type SourceConfig struct {
	// Root is the media root (required).
	Root string `json:"root" yaml:"root"`

	// Includes is a list of glob patterns for files to include.
	Includes []string `json:"includes,omitempty" yaml:"includes,omitempty"`

	// Excludes is a list of glob patterns for files to exclude.
	Excludes []string `json:"excludes,omitempty" yaml:"excludes,omitempty"`

	// Region is the AWS region for S3 roots.
	Region string `json:"region,omitempty" yaml:"region,omitempty"`

	// Endpoint is a custom endpoint URL for S3-compatible storage.
	Endpoint string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`

	// Profile is the AWS credential profile name for S3 roots.
	Profile string `json:"profile,omitempty" yaml:"profile,omitempty"`
}

// DescribeConfig configures the description backend.
type DescribeConfig struct {
	// Provider is the backend id (required). E.g. "ollama", "openai".
	Provider string `json:"provider" yaml:"provider"`

	// Model is the model identifier. Empty uses the backend default.
	Model string `json:"model,omitempty" yaml:"model,omitempty"`

	// PromptStyle names the instruction variant. Empty uses the default
	// style.
	PromptStyle string `json:"prompt_style,omitempty" yaml:"prompt_style,omitempty"`

	// Prompt is custom instruction text; requires a backend with the
	// custom-prompt capability.
	Prompt string `json:"prompt,omitempty" yaml:"prompt,omitempty"`

	// Endpoint overrides the backend's default base URL.
	Endpoint string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`

	// CredentialFile points at a file holding the backend credential.
	CredentialFile string `json:"credential_file,omitempty" yaml:"credential_file,omitempty"`

	// RateLimit caps provider calls per second. Zero means unlimited.
	RateLimit float64 `json:"rate_limit,omitempty" yaml:"rate_limit,omitempty"`
}

// OutputConfig configures the run output location.
type OutputConfig struct {
	// Root is the output directory; run directories are created under
	// <root>/runs (required).
	Root string `json:"root" yaml:"root"`
}

// RetryConfig overrides retry tuning for this job. Zero fields keep the
// configured defaults. Durations use Go syntax ("2s", "1m30s").
type RetryConfig struct {
	MaxRetries     *int    `json:"max_retries,omitempty" yaml:"max_retries,omitempty"`
	InitialDelay   string  `json:"initial_delay,omitempty" yaml:"initial_delay,omitempty"`
	MaxDelay       string  `json:"max_delay,omitempty" yaml:"max_delay,omitempty"`
	JitterFraction float64 `json:"jitter_fraction,omitempty" yaml:"jitter_fraction,omitempty"`
	AttemptTimeout string  `json:"attempt_timeout,omitempty" yaml:"attempt_timeout,omitempty"`
}

// Apply overlays the overrides onto a base policy.
func (r *RetryConfig) Apply(base retry.Policy) (retry.Policy, error) {
	if r == nil {
		return base, nil
	}
	if r.MaxRetries != nil {
		base.MaxRetries = *r.MaxRetries
	}
	if r.JitterFraction > 0 {
		base.JitterFraction = r.JitterFraction
	}
	for _, f := range []struct {
		raw string
		dst *time.Duration
	}{
		{r.InitialDelay, &base.InitialDelay},
		{r.MaxDelay, &base.MaxDelay},
		{r.AttemptTimeout, &base.AttemptTimeout},
	} {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return base, fmt.Errorf("manifest: invalid retry duration %q: %w", f.raw, err)
		}
		*f.dst = d
	}
	return base, nil
}

// ApplyDefaults fills optional fields with defaults.
func (m *Manifest) ApplyDefaults() {
	if m.Version == "" {
		m.Version = SupportedVersion
	}
	if m.Describe.PromptStyle == "" {
		m.Describe.PromptStyle = "narrative"
	}
}

// Validate checks required fields and version compatibility.
func (m *Manifest) Validate() error {
	if m.Version != SupportedVersion {
		return fmt.Errorf("unsupported manifest version %q (want %q)", m.Version, SupportedVersion)
	}
	if m.Source.Root == "" {
		return errors.New("manifest: source.root is required")
	}
	if m.Describe.Provider == "" {
		return errors.New("manifest: describe.provider is required")
	}
	if m.Output.Root == "" {
		return errors.New("manifest: output.root is required")
	}
	return nil
}
