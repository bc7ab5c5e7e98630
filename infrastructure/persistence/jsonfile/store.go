// Package jsonfile persists graphs as JSON documents on local disk, one
// file per graph plus a pointer file naming the active graph. Writes go
// through a temp file and rename so a crash never leaves a half-written
// document behind.
package jsonfile

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"codetrail/application/ports"
	"codetrail/domain/core/model"
	pkgerrors "codetrail/pkg/errors"
	"codetrail/pkg/observability"
)

const (
	graphsDirName   = "graphs"
	currentFileName = "current"

	// schemaVersion of documents this build writes. Version 1 documents
	// stored the graph bare at the top level and are migrated on read.
	schemaVersion = 2
)

// document is the on-disk envelope around a graph.
type document struct {
	SchemaVersion int          `json:"schemaVersion"`
	Graph         *model.Graph `json:"graph"`
}

// Store is a file-backed GraphProvider. A watcher on the graphs
// directory drops cached state when another process rewrites a file, so
// long-running sessions pick up external edits.
type Store struct {
	dir     string
	metrics *observability.Collector
	logger  *zap.Logger

	mu     sync.Mutex
	cache  map[string]*model.Graph
	closed bool

	// ownWrites suppresses watcher events caused by this process's own
	// saves, keyed by file path.
	ownWrites map[string]time.Time

	watcher *fsnotify.Watcher
	stopCh  chan struct{}
}

// NewStore opens (creating if needed) a store rooted at dataDir and
// starts watching the graphs directory.
func NewStore(dataDir string, metrics *observability.Collector, logger *zap.Logger) (*Store, error) {
	graphsDir := filepath.Join(dataDir, graphsDirName)
	if err := os.MkdirAll(graphsDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	s := &Store{
		dir:       dataDir,
		metrics:   metrics,
		logger:    logger,
		cache:     make(map[string]*model.Graph),
		ownWrites: make(map[string]time.Time),
		stopCh:    make(chan struct{}),
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := watcher.Add(graphsDir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch graphs directory: %w", err)
	}
	s.watcher = watcher
	go s.watchLoop()

	logger.Info("JSON file store opened",
		zap.String("dir", dataDir),
	)

	return s, nil
}

// GetCurrentGraph returns a clone of the active graph, or nil when the
// pointer file is absent or dangling.
func (s *Store) GetCurrentGraph(ctx context.Context) (*model.Graph, error) {
	id, err := s.readCurrentID()
	if err != nil {
		return nil, err
	}
	if id == "" {
		return nil, nil
	}

	graph, err := s.loadOrRead(id)
	if err != nil {
		if pkgerrors.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return graph.Clone(), nil
}

// CreateGraph creates, persists and activates an empty graph.
func (s *Store) CreateGraph(ctx context.Context, name string) (*model.Graph, error) {
	graph := model.NewGraph(name)
	if err := s.SetCurrentGraph(ctx, graph); err != nil {
		return nil, err
	}
	s.logger.Info("Graph created",
		zap.String("graphID", graph.ID),
		zap.String("name", name),
	)
	return graph, nil
}

// SaveGraph writes the graph document to disk.
func (s *Store) SaveGraph(ctx context.Context, graph *model.Graph) error {
	if graph == nil {
		return pkgerrors.NewValidationError("graph cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writeGraphLocked(graph); err != nil {
		return err
	}
	s.cache[graph.ID] = graph.Clone()
	return nil
}

// SetCurrentGraph persists graph and points the current file at it.
func (s *Store) SetCurrentGraph(ctx context.Context, graph *model.Graph) error {
	if graph == nil {
		return pkgerrors.NewValidationError("graph cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writeGraphLocked(graph); err != nil {
		return err
	}
	s.cache[graph.ID] = graph.Clone()

	path := filepath.Join(s.dir, currentFileName)
	if err := atomicWrite(path, []byte(graph.ID)); err != nil {
		return s.storageError("failed to write current graph pointer", err)
	}
	return nil
}

// LoadGraph fetches a stored graph by id without activating it.
func (s *Store) LoadGraph(ctx context.Context, id string) (*model.Graph, error) {
	graph, err := s.loadOrRead(id)
	if err != nil {
		return nil, err
	}
	return graph.Clone(), nil
}

// DeleteGraph removes a graph document. Deleting the active graph also
// clears the pointer file.
func (s *Store) DeleteGraph(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.graphPath(id)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return pkgerrors.NewNotFoundError("graph")
		}
		return s.storageError("failed to stat graph file", err)
	}
	if err := os.Remove(path); err != nil {
		return s.storageError("failed to delete graph file", err)
	}
	delete(s.cache, id)

	currentPath := filepath.Join(s.dir, currentFileName)
	if data, err := os.ReadFile(currentPath); err == nil && strings.TrimSpace(string(data)) == id {
		if err := os.Remove(currentPath); err != nil && !os.IsNotExist(err) {
			return s.storageError("failed to clear current graph pointer", err)
		}
	}

	s.logger.Info("Graph deleted", zap.String("graphID", id))
	return nil
}

// ListGraphs enumerates every graph document in the store.
func (s *Store) ListGraphs(ctx context.Context) ([]ports.GraphSummary, error) {
	entries, err := os.ReadDir(filepath.Join(s.dir, graphsDirName))
	if err != nil {
		return nil, s.storageError("failed to read graphs directory", err)
	}

	currentID, err := s.readCurrentID()
	if err != nil {
		return nil, err
	}

	summaries := make([]ports.GraphSummary, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		id := strings.TrimSuffix(entry.Name(), ".json")
		graph, err := s.loadOrRead(id)
		if err != nil {
			s.logger.Warn("Skipping unreadable graph file",
				zap.String("file", entry.Name()),
				zap.Error(err),
			)
			continue
		}
		summaries = append(summaries, ports.GraphSummary{
			ID:        graph.ID,
			Name:      graph.Name,
			CreatedAt: graph.CreatedAt,
			UpdatedAt: graph.UpdatedAt,
			NodeCount: len(graph.Nodes),
			Current:   graph.ID == currentID,
		})
	}
	return summaries, nil
}

// Close stops the directory watcher. Closing an already closed store is
// a no-op.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.stopCh)
	if s.watcher != nil {
		return s.watcher.Close()
	}
	return nil
}

func (s *Store) graphPath(id string) string {
	return filepath.Join(s.dir, graphsDirName, id+".json")
}

// storageError counts the failure before surfacing it as a typed error.
func (s *Store) storageError(message string, err error) error {
	s.metrics.StorageErrors.Inc()
	return pkgerrors.NewStorageError(message, err)
}

func (s *Store) readCurrentID() (string, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, currentFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", s.storageError("failed to read current graph pointer", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// loadOrRead returns the cached graph for id, reading and caching the
// document on a miss. The returned graph is the cache's copy; callers
// clone before handing it out.
func (s *Store) loadOrRead(id string) (*model.Graph, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if graph, ok := s.cache[id]; ok {
		return graph, nil
	}

	data, err := os.ReadFile(s.graphPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, pkgerrors.NewNotFoundError("graph")
		}
		return nil, s.storageError("failed to read graph file", err)
	}

	graph, err := decodeDocument(data)
	if err != nil {
		return nil, pkgerrors.NewCorruptedError(
			fmt.Sprintf("graph document %s is not readable", id), err)
	}
	if err := graph.Validate(); err != nil {
		return nil, pkgerrors.NewCorruptedError(
			fmt.Sprintf("graph document %s violates forest invariants", id), err)
	}

	s.cache[id] = graph
	return graph, nil
}

func (s *Store) writeGraphLocked(graph *model.Graph) error {
	doc := document{SchemaVersion: schemaVersion, Graph: graph}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return pkgerrors.NewInternalError(fmt.Sprintf("failed to encode graph: %v", err))
	}

	path := s.graphPath(graph.ID)
	s.ownWrites[path] = time.Now()
	if err := atomicWrite(path, data); err != nil {
		return s.storageError("failed to write graph file", err)
	}
	return nil
}

// decodeDocument parses a graph document at any known schema version.
func decodeDocument(data []byte) (*model.Graph, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	switch {
	case doc.SchemaVersion == 0:
		// Version 1 predates the envelope: the file is the graph itself.
		var graph model.Graph
		if err := json.Unmarshal(data, &graph); err != nil {
			return nil, err
		}
		if graph.ID == "" {
			return nil, fmt.Errorf("document has neither an envelope nor a graph id")
		}
		normalize(&graph)
		return &graph, nil
	case doc.SchemaVersion <= schemaVersion:
		if doc.Graph == nil {
			return nil, fmt.Errorf("document v%d has no graph payload", doc.SchemaVersion)
		}
		normalize(doc.Graph)
		return doc.Graph, nil
	default:
		return nil, fmt.Errorf("document schema v%d is newer than this build supports", doc.SchemaVersion)
	}
}

// normalize fills slices and maps JSON decoding may have left nil.
func normalize(graph *model.Graph) {
	if graph.Nodes == nil {
		graph.Nodes = make(map[string]*model.Node)
	}
	if graph.RootNodes == nil {
		graph.RootNodes = []string{}
	}
	for _, n := range graph.Nodes {
		if n.ChildIDs == nil {
			n.ChildIDs = []string{}
		}
	}
}

// atomicWrite writes data next to path and renames it into place.
func atomicWrite(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// watchLoop invalidates cached graphs when their files change outside
// this process. Events within a short window after our own save are
// ignored so every write does not immediately evict its own cache entry.
func (s *Store) watchLoop() {
	const ownWriteWindow = time.Second

	for {
		select {
		case <-s.stopCh:
			return
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if !strings.HasSuffix(event.Name, ".json") {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}

			s.mu.Lock()
			if at, ok := s.ownWrites[event.Name]; ok && time.Since(at) < ownWriteWindow {
				s.mu.Unlock()
				continue
			}
			id := strings.TrimSuffix(filepath.Base(event.Name), ".json")
			if _, cached := s.cache[id]; cached {
				delete(s.cache, id)
				s.logger.Info("Graph changed on disk, cache dropped",
					zap.String("graphID", id),
					zap.String("op", event.Op.String()),
				)
			}
			s.mu.Unlock()
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.Warn("Graph directory watcher error", zap.Error(err))
		}
	}
}
