package memory

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"codetrail/application/ports"
	"codetrail/domain/core/model"
	pkgerrors "codetrail/pkg/errors"
)

// Store is an in-memory GraphProvider used in tests and throwaway
// sessions. Graphs are cloned on the way in and out so callers never
// share state with the store.
type Store struct {
	mu        sync.RWMutex
	graphs    map[string]*model.Graph
	currentID string
	logger    *zap.Logger
}

// NewStore creates an empty in-memory store.
func NewStore(logger *zap.Logger) *Store {
	return &Store{
		graphs: make(map[string]*model.Graph),
		logger: logger,
	}
}

// GetCurrentGraph returns a clone of the active graph, or nil.
func (s *Store) GetCurrentGraph(ctx context.Context) (*model.Graph, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.currentID == "" {
		return nil, nil
	}
	graph, ok := s.graphs[s.currentID]
	if !ok {
		return nil, nil
	}
	return graph.Clone(), nil
}

// CreateGraph creates, stores and activates an empty graph.
func (s *Store) CreateGraph(ctx context.Context, name string) (*model.Graph, error) {
	graph := model.NewGraph(name)

	s.mu.Lock()
	s.graphs[graph.ID] = graph.Clone()
	s.currentID = graph.ID
	s.mu.Unlock()

	s.logger.Info("Graph created",
		zap.String("graphID", graph.ID),
		zap.String("name", name),
	)
	return graph, nil
}

// SaveGraph stores a clone of graph.
func (s *Store) SaveGraph(ctx context.Context, graph *model.Graph) error {
	if graph == nil {
		return pkgerrors.NewValidationError("graph cannot be nil")
	}
	s.mu.Lock()
	s.graphs[graph.ID] = graph.Clone()
	s.mu.Unlock()
	return nil
}

// SetCurrentGraph persists graph and makes it the active one.
func (s *Store) SetCurrentGraph(ctx context.Context, graph *model.Graph) error {
	if graph == nil {
		return pkgerrors.NewValidationError("graph cannot be nil")
	}
	s.mu.Lock()
	s.graphs[graph.ID] = graph.Clone()
	s.currentID = graph.ID
	s.mu.Unlock()
	return nil
}

// LoadGraph fetches a stored graph by id.
func (s *Store) LoadGraph(ctx context.Context, id string) (*model.Graph, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	graph, ok := s.graphs[id]
	if !ok {
		return nil, pkgerrors.NewNotFoundError("graph")
	}
	return graph.Clone(), nil
}

// DeleteGraph removes a stored graph, clearing the active pointer when
// it referenced the deleted graph.
func (s *Store) DeleteGraph(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.graphs[id]; !ok {
		return pkgerrors.NewNotFoundError("graph")
	}
	delete(s.graphs, id)
	if s.currentID == id {
		s.currentID = ""
	}
	return nil
}

// ListGraphs enumerates stored graphs.
func (s *Store) ListGraphs(ctx context.Context) ([]ports.GraphSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summaries := make([]ports.GraphSummary, 0, len(s.graphs))
	for id, graph := range s.graphs {
		summaries = append(summaries, ports.GraphSummary{
			ID:        id,
			Name:      graph.Name,
			CreatedAt: graph.CreatedAt,
			UpdatedAt: graph.UpdatedAt,
			NodeCount: len(graph.Nodes),
			Current:   id == s.currentID,
		})
	}
	return summaries, nil
}
