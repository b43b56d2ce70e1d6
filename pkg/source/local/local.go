// Package local implements source.Source for a local directory tree.
package local

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/scribeworks/mediascribe/pkg/source"
)

// Config configures a local directory source.
type Config struct {
	// Root is the directory to walk (required).
	Root string

	// Includes is a list of doublestar glob patterns relative to Root.
	// Empty means include every recognized media file.
	Includes []string

	// Excludes is a list of doublestar glob patterns relative to Root.
	// A path matching any exclude is dropped even if it matched an include.
	Excludes []string
}

// Source walks a local directory for media files.
type Source struct {
	cfg Config
}

var _ source.Source = (*Source)(nil)

// New creates a local source. Pattern syntax errors are reported here
// rather than during discovery.
func New(cfg Config) (*Source, error) {
	for _, pat := range append(append([]string{}, cfg.Includes...), cfg.Excludes...) {
		if !doublestar.ValidatePattern(pat) {
			return nil, &source.InputError{Root: cfg.Root, Err: fmt.Errorf("invalid pattern %q: %w", pat, doublestar.ErrBadPattern)}
		}
	}
	return &Source{cfg: cfg}, nil
}

// Discover walks the root, collecting recognized media files that pass
// the include/exclude patterns. Results are sorted lexicographically by
// identity for deterministic processing order.
func (s *Source) Discover(ctx context.Context) ([]source.WorkItem, error) {
	root := s.cfg.Root

	info, err := os.Stat(root)
	if err != nil {
		return nil, &source.InputError{Root: root, Err: err}
	}
	if !info.IsDir() {
		return nil, &source.InputError{Root: root, Err: fs.ErrInvalid}
	}

	var items []source.WorkItem
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			return nil
		}

		kind := source.KindForPath(path)
		if kind == "" {
			return nil
		}

		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)

		if hidden(rel) {
			return nil
		}
		if !s.matches(rel) {
			return nil
		}

		fi, infoErr := d.Info()
		var size int64
		if infoErr == nil {
			size = fi.Size()
		}

		items = append(items, source.WorkItem{
			Identity: path,
			Path:     path,
			Kind:     kind,
			Size:     size,
		})
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, &source.InputError{Root: root, Err: err}
	}

	sort.Slice(items, func(i, j int) bool {
		return items[i].Identity < items[j].Identity
	})
	return items, nil
}

// Close implements source.Source. Local sources hold no resources.
func (s *Source) Close() error {
	return nil
}

// matches applies include then exclude patterns to a slash-separated
// relative path.
func (s *Source) matches(rel string) bool {
	included := len(s.cfg.Includes) == 0
	for _, pat := range s.cfg.Includes {
		if ok, _ := doublestar.Match(pat, rel); ok {
			included = true
			break
		}
	}
	if !included {
		return false
	}
	for _, pat := range s.cfg.Excludes {
		if ok, _ := doublestar.Match(pat, rel); ok {
			return false
		}
	}
	return true
}

// hidden reports whether any path segment is dot-prefixed.
func hidden(rel string) bool {
	for _, seg := range strings.Split(rel, "/") {
		if strings.HasPrefix(seg, ".") && seg != "." && seg != ".." {
			return true
		}
	}
	return false
}
