// Package source defines media discovery for description runs.
//
// A Source enumerates work items from some root (local directory, S3
// prefix). Discovery produces a flat, deterministically ordered list; the
// pipeline is agnostic to how the tree was walked.
package source

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Kind classifies a media file.
type Kind string

const (
	// KindImage is a still image describable directly.
	KindImage Kind = "image"

	// KindVideo is a video requiring frame extraction before description.
	KindVideo Kind = "video"
)

// WorkItem is one media file eligible for description.
//
// Identity is the original source path (or URI) and is stable for the
// lifetime of the item, even as stage-derived paths change. Path is the
// current local file to read, and may be rewritten by preparation stages.
type WorkItem struct {
	// Identity is the stable identifier: the original source path or URI.
	Identity string

	// Path is the local filesystem path to the current payload.
	// Empty until the item has been localized (remote sources).
	Path string

	// Kind is the declared media kind.
	Kind Kind

	// Size is the payload size in bytes, when known. Zero means unknown.
	Size int64
}

// Source enumerates work items from a media root.
type Source interface {
	// Discover returns all work items under the source root in a
	// deterministic order. Returns an *InputError if the root is
	// unreadable.
	Discover(ctx context.Context) ([]WorkItem, error)

	// Close releases any resources held by the source.
	Close() error
}

// Localizer is an optional source capability for remote backends that
// must fetch payloads to local disk before description.
//
// Detected by type assertion, like optional provider capabilities.
type Localizer interface {
	// Localize ensures item.Path points at a readable local file,
	// downloading the payload if necessary.
	Localize(ctx context.Context, item *WorkItem) error
}

// InputError indicates the source root itself is unusable. It halts the
// run; per-item problems are reported as validation failures instead.
type InputError struct {
	Root string
	Err  error
}

func (e *InputError) Error() string {
	return fmt.Sprintf("input root %s: %v", e.Root, e.Err)
}

func (e *InputError) Unwrap() error {
	return e.Err
}

// IsInputError reports whether err is an *InputError.
func IsInputError(err error) bool {
	var ie *InputError
	return errors.As(err, &ie)
}

// Image and video extensions recognized during discovery (lowercase,
// with leading dot).
var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
	".bmp":  true,
	".tiff": true,
	".heic": true,
}

var videoExtensions = map[string]bool{
	".mp4":  true,
	".mkv":  true,
	".mov":  true,
	".avi":  true,
	".m4v":  true,
	".webm": true,
	".wmv":  true,
	".mpg":  true,
	".mpeg": true,
}

// KindForPath returns the media kind for a path based on its extension,
// or "" if the extension is not a recognized media format.
func KindForPath(path string) Kind {
	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case imageExtensions[ext]:
		return KindImage
	case videoExtensions[ext]:
		return KindVideo
	default:
		return ""
	}
}
