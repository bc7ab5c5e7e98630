// Package relocation hosts LocationRelocator implementations. The
// matching strategies that re-find drifted code live outside this
// module; NoopRelocator is the default wiring until one is plugged in.
package relocation

import (
	"context"

	"codetrail/application/ports"
	"codetrail/domain/core/model"
)

// NoopRelocator reports every location as unresolvable. It never
// suggests a move, so RelocateNode only annotates the node.
type NoopRelocator struct{}

// NewNoopRelocator creates the default relocator.
func NewNoopRelocator() *NoopRelocator {
	return &NoopRelocator{}
}

// Relocate always fails with a message; no relocation engine is wired.
func (n *NoopRelocator) Relocate(ctx context.Context, node *model.Node) (*ports.RelocationResult, error) {
	return &ports.RelocationResult{
		IsValid:    false,
		Confidence: ports.ConfidenceFailed,
		Message:    "no relocation engine is configured",
	}, nil
}
