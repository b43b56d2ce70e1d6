package provider

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Base64 inflates binary payloads by 4/3 on the wire, so the usable raw
// budget is 3/4 of the documented request limit.
const encodedExpansionNum, encodedExpansionDen = 3, 4

// MaxRawPayload returns the largest raw payload the backend accepts once
// transmission encoding expansion is accounted for. Zero means unlimited.
func (d Descriptor) MaxRawPayload() int64 {
	if d.MaxPayloadBytes <= 0 {
		return 0
	}
	return d.MaxPayloadBytes * encodedExpansionNum / encodedExpansionDen
}

// Validate runs pre-flight checks for one payload against a backend's
// declared limits. It performs no network I/O; a non-nil result is always
// a *ValidationError, which the resilience layer must never retry.
func Validate(d Descriptor, identity, path string) error {
	fi, err := os.Stat(path)
	if err != nil {
		return &ValidationError{
			Identity: identity,
			Kind:     ValidationUnreadable,
			Reason:   fmt.Sprintf("cannot stat %s", path),
			Err:      err,
		}
	}
	if fi.IsDir() {
		return &ValidationError{
			Identity: identity,
			Kind:     ValidationUnreadable,
			Reason:   fmt.Sprintf("%s is a directory", path),
		}
	}

	// Open-and-close proves readability before the payload is loaded for
	// transmission; permission failures surface here, not mid-call.
	f, err := os.Open(path)
	if err != nil {
		return &ValidationError{
			Identity: identity,
			Kind:     ValidationUnreadable,
			Reason:   fmt.Sprintf("cannot open %s", path),
			Err:      err,
		}
	}
	_ = f.Close()

	ext := strings.ToLower(filepath.Ext(path))
	if !d.SupportsFormat(ext) {
		return &ValidationError{
			Identity: identity,
			Kind:     ValidationUnsupportedFormat,
			Reason:   fmt.Sprintf("%s does not accept %s payloads", d.ID, ext),
		}
	}

	if limit := d.MaxRawPayload(); limit > 0 && fi.Size() > limit {
		return &ValidationError{
			Identity: identity,
			Kind:     ValidationPayloadTooLarge,
			Reason: fmt.Sprintf("payload is %d bytes; %s accepts at most %d raw bytes (%d after encoding expansion)",
				fi.Size(), d.ID, limit, d.MaxPayloadBytes),
		}
	}

	return nil
}
