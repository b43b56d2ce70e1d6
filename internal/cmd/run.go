package cmd

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/scribeworks/mediascribe/internal/observability"
	"github.com/scribeworks/mediascribe/pkg/manifest"
	"github.com/scribeworks/mediascribe/pkg/pipeline"
	"github.com/scribeworks/mediascribe/pkg/provider"
	"github.com/scribeworks/mediascribe/pkg/provider/builtin"
	"github.com/scribeworks/mediascribe/pkg/retry"
	"github.com/scribeworks/mediascribe/pkg/source"
	"github.com/scribeworks/mediascribe/pkg/source/local"
	"github.com/scribeworks/mediascribe/pkg/source/s3"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a description job",
	Long: `Run a description job over a media collection.

The source is a local directory or an s3://bucket/prefix URI. Job
configuration comes from flags, or from a manifest file via --job with
flags taking precedence.

Example:
  mediascribe run --source /photos/2024 --provider ollama --output /photos/2024-described
  mediascribe run --job describe.yaml
  mediascribe run --job describe.yaml --dry-run
  mediascribe run --source /photos/2024 --provider openai --output out --resume`,
	RunE: runRun,
}

var (
	runJobPath        string
	runSource         string
	runProvider       string
	runModel          string
	runPromptStyle    string
	runPrompt         string
	runOutput         string
	runIncludes       []string
	runExcludes       []string
	runEndpoint       string
	runCredential     string
	runCredentialFile string
	runRateLimit      float64
	runMaxRetries     int
	runResume         bool
	runDryRun         bool
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runJobPath, "job", "j", "", "Path to job manifest (YAML or JSON)")
	runCmd.Flags().StringVarP(&runSource, "source", "s", "", "Media root: directory or s3://bucket/prefix")
	runCmd.Flags().StringVarP(&runProvider, "provider", "p", "", "Description backend (see 'mediascribe providers')")
	runCmd.Flags().StringVarP(&runModel, "model", "m", "", "Model identifier (backend default if empty)")
	runCmd.Flags().StringVar(&runPromptStyle, "prompt-style", "", "Prompt style: "+strings.Join(pipeline.PromptStyles(), "|"))
	runCmd.Flags().StringVar(&runPrompt, "prompt", "", "Custom prompt text (capability-gated)")
	runCmd.Flags().StringVarP(&runOutput, "output", "o", "", "Output root for run directories")
	runCmd.Flags().StringSliceVar(&runIncludes, "include", nil, "Glob patterns to include")
	runCmd.Flags().StringSliceVar(&runExcludes, "exclude", nil, "Glob patterns to exclude")
	runCmd.Flags().StringVar(&runEndpoint, "endpoint", "", "Override backend endpoint URL")
	runCmd.Flags().StringVar(&runCredential, "credential", "", "Explicit backend credential")
	runCmd.Flags().StringVar(&runCredentialFile, "credential-file", "", "File holding the backend credential")
	runCmd.Flags().Float64Var(&runRateLimit, "rate-limit", 0, "Max provider calls per second (0 = unlimited)")
	runCmd.Flags().IntVar(&runMaxRetries, "max-retries", -1, "Retries per item after the first attempt (-1 = configured default)")
	runCmd.Flags().BoolVar(&runResume, "resume", false, "Resume the most recent run under the output root")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "Validate configuration and show the plan without executing")
}

// jobSpec is the merged job configuration: manifest values overlaid by
// explicit flags.
type jobSpec struct {
	SourceRoot     string
	Includes       []string
	Excludes       []string
	Region         string
	Endpoint       string
	Profile        string
	Provider       string
	Model          string
	PromptStyle    string
	Prompt         string
	BackendURL     string
	Credential     string
	CredentialFile string
	OutputRoot     string
	RateLimit      float64
	Retry          retry.Policy
}

func runRun(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	log := observability.CLILogger

	spec, err := buildJobSpec(cmd)
	if err != nil {
		return err
	}

	if runDryRun {
		return showRunPlan(spec)
	}

	src, err := buildSource(ctx, spec)
	if err != nil {
		log.Error("Failed to open source", zap.String("root", spec.SourceRoot), zap.Error(err))
		return err
	}
	defer func() { _ = src.Close() }()

	orch, err := pipeline.New(pipeline.Config{
		Source:      src,
		SourceRoot:  spec.SourceRoot,
		Provider:    spec.Provider,
		Model:       spec.Model,
		PromptStyle: spec.PromptStyle,
		Prompt:      spec.Prompt,
		OutputRoot:  spec.OutputRoot,
		Resume:      runResume,
		Registry:    builtin.Registry(),
		ProviderOpts: provider.Options{
			Credential:     spec.Credential,
			CredentialFile: spec.CredentialFile,
			Endpoint:       spec.BackendURL,
			HTTPClient:     http.DefaultClient,
		},
		Retry:          spec.Retry,
		RateLimit:      spec.RateLimit,
		StatusInterval: cfg.Status.Interval,
		Logger:         log,
	})
	if err != nil {
		return err
	}

	result, err := orch.Run(ctx)
	if err != nil {
		if ctx.Err() != nil && result != nil {
			log.Warn("Run interrupted; re-run with --resume to continue",
				zap.String("run_id", result.RunID),
				zap.Int("processed", result.Processed))
			return err
		}
		log.Error("Run failed", zap.Error(err))
		return err
	}

	printRunSummary(result, orch)
	if result.Failed > 0 {
		return fmt.Errorf("run %s completed with %d failed items", result.RunID, result.Failed)
	}
	return nil
}

// buildJobSpec merges the optional manifest with flags. Flags win.
func buildJobSpec(cmd *cobra.Command) (*jobSpec, error) {
	spec := &jobSpec{Retry: cfg.Retry.Policy(), RateLimit: cfg.RateLimit}

	if runJobPath != "" {
		m, err := manifest.Load(runJobPath)
		if err != nil {
			return nil, err
		}
		spec.SourceRoot = m.Source.Root
		spec.Includes = m.Source.Includes
		spec.Excludes = m.Source.Excludes
		spec.Region = m.Source.Region
		spec.Endpoint = m.Source.Endpoint
		spec.Profile = m.Source.Profile
		spec.Provider = m.Describe.Provider
		spec.Model = m.Describe.Model
		spec.PromptStyle = m.Describe.PromptStyle
		spec.Prompt = m.Describe.Prompt
		spec.BackendURL = m.Describe.Endpoint
		spec.CredentialFile = m.Describe.CredentialFile
		spec.OutputRoot = m.Output.Root
		if m.Describe.RateLimit > 0 {
			spec.RateLimit = m.Describe.RateLimit
		}
		policy, err := m.Retry.Apply(spec.Retry)
		if err != nil {
			return nil, err
		}
		spec.Retry = policy
	}

	if runSource != "" {
		spec.SourceRoot = runSource
	}
	if len(runIncludes) > 0 {
		spec.Includes = runIncludes
	}
	if len(runExcludes) > 0 {
		spec.Excludes = runExcludes
	}
	if runProvider != "" {
		spec.Provider = runProvider
	}
	if runModel != "" {
		spec.Model = runModel
	}
	if cmd.Flags().Changed("prompt-style") {
		spec.PromptStyle = runPromptStyle
	}
	if runPrompt != "" {
		spec.Prompt = runPrompt
	}
	if runEndpoint != "" {
		spec.BackendURL = runEndpoint
	}
	if runCredential != "" {
		spec.Credential = runCredential
	}
	if runCredentialFile != "" {
		spec.CredentialFile = runCredentialFile
	}
	if runOutput != "" {
		spec.OutputRoot = runOutput
	}
	if cmd.Flags().Changed("rate-limit") {
		spec.RateLimit = runRateLimit
	}
	if runMaxRetries >= 0 {
		spec.Retry.MaxRetries = runMaxRetries
	}

	if spec.SourceRoot == "" {
		return nil, fmt.Errorf("a source is required (--source or --job)")
	}
	if spec.Provider == "" {
		return nil, fmt.Errorf("a provider is required (--provider or --job)")
	}
	if spec.OutputRoot == "" {
		return nil, fmt.Errorf("an output root is required (--output or --job)")
	}
	return spec, nil
}

// buildSource opens the local or S3 source for the job's source root.
func buildSource(ctx context.Context, spec *jobSpec) (source.Source, error) {
	if bucket, prefix, ok := splitS3Root(spec.SourceRoot); ok {
		return s3.New(ctx, s3.Config{
			Bucket:   bucket,
			Prefix:   prefix,
			CacheDir: filepath.Join(spec.OutputRoot, "cache"),
			Region:   spec.Region,
			Endpoint: spec.Endpoint,
			Profile:  spec.Profile,
			// S3-compatible services (MinIO, moto) require path-style URLs.
			ForcePathStyle: spec.Endpoint != "",
		})
	}
	return local.New(local.Config{
		Root:     spec.SourceRoot,
		Includes: spec.Includes,
		Excludes: spec.Excludes,
	})
}

// splitS3Root parses s3://bucket/prefix into its parts.
func splitS3Root(root string) (bucket, prefix string, ok bool) {
	rest, found := strings.CutPrefix(root, "s3://")
	if !found {
		return "", "", false
	}
	bucket, prefix, _ = strings.Cut(rest, "/")
	return bucket, prefix, bucket != ""
}

// showRunPlan displays what would run without executing.
func showRunPlan(spec *jobSpec) error {
	reg := builtin.Registry()
	d, err := reg.Lookup(spec.Provider)
	if err != nil {
		return err
	}

	model := spec.Model
	if model == "" {
		model = d.DefaultModel
	}
	style := spec.PromptStyle
	if style == "" {
		style = pipeline.DefaultPromptStyle
	}

	fmt.Println("=== Run Plan (dry-run) ===")
	fmt.Println()
	fmt.Printf("Source:       %s\n", spec.SourceRoot)
	if len(spec.Includes) > 0 {
		fmt.Printf("Include:      %s\n", strings.Join(spec.Includes, ", "))
	}
	if len(spec.Excludes) > 0 {
		fmt.Printf("Exclude:      %s\n", strings.Join(spec.Excludes, ", "))
	}
	fmt.Printf("Provider:     %s (%s)\n", d.ID, d.Name)
	fmt.Printf("Model:        %s\n", model)
	fmt.Printf("Prompt style: %s\n", style)
	if spec.Prompt != "" {
		fmt.Printf("Prompt:       custom (%d chars)\n", len(spec.Prompt))
	}
	if spec.BackendURL != "" {
		fmt.Printf("Endpoint:     %s\n", spec.BackendURL)
	}
	fmt.Printf("Output:       %s\n", spec.OutputRoot)
	fmt.Printf("Retries:      %d (initial delay %s, cap %s)\n",
		spec.Retry.MaxRetries, spec.Retry.InitialDelay, spec.Retry.MaxDelay)
	if spec.RateLimit > 0 {
		fmt.Printf("Rate limit:   %.1f calls/s\n", spec.RateLimit)
	}
	if d.RequiresCredential {
		fmt.Printf("Credential:   required (env %s)\n", d.CredentialEnvVar)
	}
	fmt.Println()
	fmt.Println("Configuration validated. Remove --dry-run to execute.")
	return nil
}

// printRunSummary writes the end-of-run report to stdout.
func printRunSummary(result *pipeline.Result, orch *pipeline.Orchestrator) {
	fmt.Printf("Run %s complete\n", result.RunID)
	fmt.Printf("  discovered: %d\n", result.Discovered)
	fmt.Printf("  processed:  %d\n", result.Processed)
	fmt.Printf("  skipped:    %d\n", result.Skipped)
	fmt.Printf("  failed:     %d\n", result.Failed)
	fmt.Printf("  records:    %s\n", orch.Layout().Records())
	for _, line := range result.Failures.Lines() {
		fmt.Printf("  %s\n", line)
	}
}
