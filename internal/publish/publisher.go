// Package publish replaces the content of a hosting ref with an artifact tree.
//
// The replacement is atomic from the perspective of external readers: the
// hosting ref moves in a single update from the previous full tree to the new
// full tree, or not at all. A compare-and-swap push surfaces conflicting
// concurrent writers as errors instead of silently overwriting them, and a
// per-ref mutex serializes publishes within the process.
package publish

import "context"

// Outcome describes the result of a successful publish.
type Outcome struct {
	Ref      string `json:"ref"`
	Revision string `json:"revision"`
	Files    int    `json:"files"`
	NoChange bool   `json:"no_change"`
}

// Publisher replaces the hosting ref's tree with the effective artifact tree.
type Publisher interface {
	Publish(ctx context.Context, artifactPath string) (*Outcome, error)
}
