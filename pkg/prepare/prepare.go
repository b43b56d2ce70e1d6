// Package prepare defines the preparation-stage contract.
//
// Preparers transform discovered work items into describable payloads
// (frame extraction, format conversion) before the description stage.
// The pipeline treats them as opaque: the contract is success or failure,
// a produced count, and a processed-path → original-identity map for
// traceability. Item identity never changes; only the payload path does.
package prepare

import (
	"context"

	"github.com/scribeworks/mediascribe/pkg/source"
)

// Preparer converts one work item's payload into describable form.
type Preparer interface {
	// Name identifies the preparer in logs and state.
	Name() string

	// Supports reports whether this preparer handles the media kind.
	Supports(k source.Kind) bool

	// Prepare produces a describable payload for the item under outDir
	// and returns the item with Path updated. Identity is never changed.
	Prepare(ctx context.Context, item source.WorkItem, outDir string) (source.WorkItem, error)
}

// Result summarizes a completed preparation stage.
type Result struct {
	// Produced is the number of items with an on-disk payload at stage
	// end. Items a remote source localizes later are not counted.
	Produced int `json:"produced"`

	// PathMap maps processed payload path → original identity.
	PathMap map[string]string `json:"path_map"`
}

// Passthrough handles still images, which need no preparation.
type Passthrough struct{}

// NewPassthrough returns the image passthrough preparer.
func NewPassthrough() Passthrough {
	return Passthrough{}
}

// Name implements Preparer.
func (Passthrough) Name() string { return "passthrough" }

// Supports implements Preparer. Only images pass through untouched.
func (Passthrough) Supports(k source.Kind) bool { return k == source.KindImage }

// Prepare implements Preparer. The item is returned unchanged.
func (Passthrough) Prepare(_ context.Context, item source.WorkItem, _ string) (source.WorkItem, error) {
	return item, nil
}
