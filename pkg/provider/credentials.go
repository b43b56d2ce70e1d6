package provider

import (
	"fmt"
	"os"
	"strings"
)

// ResolveCredential resolves a backend credential in precedence order:
// explicit value, credential file, environment variable. Returns
// ErrCredentialMissing (wrapped with the backend id) when nothing
// resolves.
//
// A credential file holds the bare credential; surrounding whitespace and
// a trailing newline are tolerated.
func ResolveCredential(d Descriptor, opts Options) (string, error) {
	if !d.RequiresCredential {
		return "", nil
	}

	if opts.Credential != "" {
		return opts.Credential, nil
	}

	if opts.CredentialFile != "" {
		data, err := os.ReadFile(opts.CredentialFile)
		if err != nil {
			// Keep the read error so a permissions problem is
			// distinguishable from a missing file.
			return "", fmt.Errorf("%s: read credential file: %w: %w", d.ID, err, ErrCredentialMissing)
		}
		cred := strings.TrimSpace(string(data))
		if cred != "" {
			return cred, nil
		}
	}

	if d.CredentialEnvVar != "" {
		if cred := strings.TrimSpace(os.Getenv(d.CredentialEnvVar)); cred != "" {
			return cred, nil
		}
	}

	return "", fmt.Errorf("%s: no credential via parameter, file, or %s: %w", d.ID, d.CredentialEnvVar, ErrCredentialMissing)
}
