package ports

import (
	"context"
	"time"

	"codetrail/domain/core/model"
)

// GraphProvider is the port through which every manager reads and writes
// the current graph. Implementations own durable persistence; the managers
// never hold a private copy across a save.
type GraphProvider interface {
	// GetCurrentGraph returns the active graph, or nil when none exists.
	GetCurrentGraph(ctx context.Context) (*model.Graph, error)

	// CreateGraph creates, persists and activates a new empty graph.
	CreateGraph(ctx context.Context, name string) (*model.Graph, error)

	// SaveGraph persists the graph state.
	SaveGraph(ctx context.Context, graph *model.Graph) error

	// SetCurrentGraph makes graph the active one, persisting it first.
	SetCurrentGraph(ctx context.Context, graph *model.Graph) error

	// LoadGraph fetches a graph by id without activating it.
	LoadGraph(ctx context.Context, id string) (*model.Graph, error)

	// DeleteGraph removes a graph; deleting the active graph clears it.
	DeleteGraph(ctx context.Context, id string) error

	// ListGraphs enumerates stored graphs.
	ListGraphs(ctx context.Context) ([]GraphSummary, error)
}

// GraphSummary is the listing projection of a stored graph.
type GraphSummary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	NodeCount int       `json:"nodeCount"`
	Current   bool      `json:"current"`
}

// Confidence grades a relocation result by the strategy that produced it.
type Confidence string

const (
	ConfidenceExact  Confidence = "exact"
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
	ConfidenceFailed Confidence = "failed"
)

// Location is a file position suggested by the relocation subsystem.
type Location struct {
	FilePath   string `json:"filePath"`
	LineNumber int    `json:"lineNumber"`
}

// RelocationResult is the contract consumed from the location-relocation
// collaborator. The engine surfaces it unchanged.
type RelocationResult struct {
	IsValid           bool       `json:"isValid"`
	Confidence        Confidence `json:"confidence"`
	SuggestedLocation *Location  `json:"suggestedLocation,omitempty"`
	Message           string     `json:"message,omitempty"`
}

// LocationRelocator re-matches a node against the codebase it annotates.
// The matching strategies live outside this module.
type LocationRelocator interface {
	Relocate(ctx context.Context, node *model.Node) (*RelocationResult, error)
}

// ClipboardSignal receives the boolean "clipboard has data" presence
// signal, used by UI layers for menu enablement.
type ClipboardSignal interface {
	ClipboardChanged(hasData bool)
}
