package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/scribeworks/mediascribe/pkg/provider/builtin"
)

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List available description backends",
	Long: `List the available description backends with their declared
capabilities: credential requirements, custom prompt support, token
reporting, payload limits, and supported formats.`,
	RunE: runProviders,
}

func init() {
	rootCmd.AddCommand(providersCmd)
}

func runProviders(_ *cobra.Command, _ []string) error {
	for _, d := range builtin.Registry().List() {
		fmt.Printf("%s  (%s)\n", d.ID, d.Name)
		fmt.Printf("  default model:  %s\n", d.DefaultModel)
		fmt.Printf("  credential:     %s\n", credentialNote(d.RequiresCredential, d.CredentialEnvVar))
		fmt.Printf("  custom prompt:  %v\n", d.SupportsCustomPrompt)
		fmt.Printf("  reports tokens: %v\n", d.ReportsTokens)
		fmt.Printf("  payload limit:  %d MiB\n", d.MaxPayloadBytes>>20)
		fmt.Printf("  formats:        %s\n", strings.Join(d.Formats, ", "))
		fmt.Println()
	}
	return nil
}

func credentialNote(required bool, envVar string) string {
	if !required {
		return "not required"
	}
	return "required (env " + envVar + ")"
}
