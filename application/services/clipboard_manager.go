package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"codetrail/application/ports"
	"codetrail/domain/core/model"
	pkgerrors "codetrail/pkg/errors"
)

// ClipboardOp tags the pending clipboard operation.
type ClipboardOp string

const (
	ClipboardOpCopy ClipboardOp = "copy"
	ClipboardOpCut  ClipboardOp = "cut"
)

// NodeSnapshot is one node of a clipboard snapshot: plain value data,
// decoupled from the live graph so later mutation cannot corrupt a
// pending paste.
type NodeSnapshot struct {
	Name              string
	FilePath          string
	LineNumber        int
	CodeSnippet       string
	CodeHash          string
	Description       string
	ValidationWarning string
	Children          []*NodeSnapshot
}

// ClipboardInfo describes the pending clipboard entry.
type ClipboardInfo struct {
	Operation ClipboardOp `json:"operation"`
	NodeName  string      `json:"nodeName"`
	NodeCount int         `json:"nodeCount"`
	Timestamp time.Time   `json:"timestamp"`
}

type clipboardSlot struct {
	op        ClipboardOp
	snapshot  *NodeSnapshot
	sourceID  string
	nodeCount int
	timestamp time.Time
}

// ClipboardManager holds the single process-wide clipboard slot. Writing
// overwrites whatever was there; at most one entry lives at a time.
type ClipboardManager struct {
	mu     sync.Mutex
	slot   *clipboardSlot
	nodes  *NodeManager
	graphs ports.GraphProvider
	signal ports.ClipboardSignal
	logger *zap.Logger
}

// NewClipboardManager creates a clipboard manager. signal may be nil when
// no UI consumes the presence signal.
func NewClipboardManager(
	nodes *NodeManager,
	graphs ports.GraphProvider,
	signal ports.ClipboardSignal,
	logger *zap.Logger,
) *ClipboardManager {
	return &ClipboardManager{
		nodes:  nodes,
		graphs: graphs,
		signal: signal,
		logger: logger,
	}
}

// CopyNode snapshots the subtree rooted at nodeID into the clipboard.
func (c *ClipboardManager) CopyNode(ctx context.Context, nodeID string) error {
	return c.capture(ctx, nodeID, ClipboardOpCopy)
}

// CutNode snapshots the subtree tagged for removal. The original stays
// in the graph until a paste succeeds; clearing the clipboard first
// leaves the source untouched.
func (c *ClipboardManager) CutNode(ctx context.Context, nodeID string) error {
	return c.capture(ctx, nodeID, ClipboardOpCut)
}

func (c *ClipboardManager) capture(ctx context.Context, nodeID string, op ClipboardOp) error {
	if nodeID == "" {
		return pkgerrors.NewValidationError("nodeId cannot be empty")
	}

	graph, err := c.graphs.GetCurrentGraph(ctx)
	if err != nil {
		return fmt.Errorf("failed to load current graph: %w", err)
	}
	if graph == nil {
		return pkgerrors.NewNotFoundError("graph")
	}
	node, ok := graph.Node(nodeID)
	if !ok {
		return pkgerrors.NewNotFoundError("node")
	}

	snapshot, count, err := snapshotSubtree(graph, node, make(map[string]bool))
	if err != nil {
		return pkgerrors.NewCorruptedError("cannot snapshot subtree", err)
	}

	c.mu.Lock()
	c.slot = &clipboardSlot{
		op:        op,
		snapshot:  snapshot,
		sourceID:  nodeID,
		nodeCount: count,
		timestamp: time.Now().UTC(),
	}
	c.mu.Unlock()

	c.notify(true)
	c.logger.Info("Subtree captured to clipboard",
		zap.String("nodeID", nodeID),
		zap.String("operation", string(op)),
		zap.Int("nodes", count),
	)

	return nil
}

// PasteNode rebuilds the clipboard snapshot as brand-new nodes, in
// pre-order so every parent exists before its children. With a target
// the pasted root becomes its child, otherwise a new root. Returns every
// created node in creation order.
//
// Paste is not transactional: a mid-sequence failure leaves the nodes
// already created in place. The one exception runs the other way: after
// a cut pastes successfully, failure to delete the original subtree is
// swallowed so the caller keeps the pasted copy.
func (c *ClipboardManager) PasteNode(ctx context.Context, targetParentID string) ([]*model.Node, error) {
	c.mu.Lock()
	slot := c.slot
	c.mu.Unlock()

	if slot == nil {
		return nil, pkgerrors.NewValidationError("clipboard empty")
	}

	// A cut paste deletes the source subtree afterwards. A target inside
	// that subtree would be deleted along with it, taking the fresh
	// copies down too, so it is rejected up front.
	if slot.op == ClipboardOpCut && targetParentID != "" {
		if err := c.ensureTargetOutsideSource(ctx, slot.sourceID, targetParentID); err != nil {
			return nil, err
		}
	}

	created, err := c.rebuild(ctx, slot.snapshot, targetParentID)
	if err != nil {
		return nil, fmt.Errorf("failed to recreate node tree: %w", err)
	}

	if slot.op == ClipboardOpCut {
		if err := c.nodes.DeleteNodeWithChildren(ctx, slot.sourceID); err != nil {
			// The pasted copy is valid either way.
			c.logger.Warn("Failed to delete original subtree after cut paste",
				zap.String("nodeID", slot.sourceID),
				zap.Error(err),
			)
		}
		// The source is gone (or unrecoverable); further pastes behave
		// like pastes of a copy.
		c.mu.Lock()
		if c.slot == slot {
			c.slot.op = ClipboardOpCopy
		}
		c.mu.Unlock()
	}

	c.logger.Info("Clipboard pasted",
		zap.String("targetParentID", targetParentID),
		zap.Int("createdNodes", len(created)),
	)

	return created, nil
}

// rebuild creates the snapshot tree node by node. The root goes through
// CreateChildNode or CreateNode; descendants always through
// CreateChildNode against their newly created parents.
func (c *ClipboardManager) rebuild(ctx context.Context, snapshot *NodeSnapshot, targetParentID string) ([]*model.Node, error) {
	var created []*model.Node

	var build func(snap *NodeSnapshot, parentID string) error
	build = func(snap *NodeSnapshot, parentID string) error {
		var node *model.Node
		var err error
		if parentID != "" {
			node, err = c.nodes.CreateChildNode(ctx, parentID, snap.Name, snap.FilePath, snap.LineNumber)
		} else {
			node, err = c.nodes.CreateNode(ctx, snap.Name, snap.FilePath, snap.LineNumber, "")
		}
		if err != nil {
			return err
		}
		if node == nil || node.ID == "" {
			return pkgerrors.NewInternalError("node creation returned no usable id")
		}

		// Fields the creation calls do not accept.
		updates := map[string]interface{}{
			"description":       snap.Description,
			"validationWarning": snap.ValidationWarning,
			"codeSnippet":       snap.CodeSnippet,
			"codeHash":          snap.CodeHash,
		}
		updated, err := c.nodes.UpdateNode(ctx, node.ID, updates)
		if err != nil {
			return err
		}
		created = append(created, updated)

		for _, child := range snap.Children {
			if err := build(child, node.ID); err != nil {
				return err
			}
		}
		return nil
	}

	if err := build(snapshot, targetParentID); err != nil {
		return nil, err
	}
	return created, nil
}

// ensureTargetOutsideSource fails when targetID lies in the subtree
// rooted at sourceID. A source already gone from the graph passes; the
// deferred delete will fail and be swallowed as usual.
func (c *ClipboardManager) ensureTargetOutsideSource(ctx context.Context, sourceID, targetID string) error {
	graph, err := c.graphs.GetCurrentGraph(ctx)
	if err != nil {
		return fmt.Errorf("failed to load current graph: %w", err)
	}
	if graph == nil {
		return nil
	}
	if _, ok := graph.Node(sourceID); !ok {
		return nil
	}

	subtree, err := graph.Subtree(sourceID)
	if err != nil {
		return pkgerrors.NewCorruptedError("cannot resolve cut subtree", err)
	}
	for _, id := range subtree {
		if id == targetID {
			return pkgerrors.NewValidationError("cannot paste a cut subtree into itself")
		}
	}
	return nil
}

// Clear empties the clipboard slot.
func (c *ClipboardManager) Clear() {
	c.mu.Lock()
	had := c.slot != nil
	c.slot = nil
	c.mu.Unlock()

	if had {
		c.notify(false)
	}
}

// HasData reports whether a clipboard entry is pending.
func (c *ClipboardManager) HasData() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.slot != nil
}

// Info describes the pending entry, or nil when the clipboard is empty.
func (c *ClipboardManager) Info() *ClipboardInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.slot == nil {
		return nil
	}
	return &ClipboardInfo{
		Operation: c.slot.op,
		NodeName:  c.slot.snapshot.Name,
		NodeCount: c.slot.nodeCount,
		Timestamp: c.slot.timestamp,
	}
}

// Close drops any pending entry.
func (c *ClipboardManager) Close() error {
	c.Clear()
	return nil
}

func (c *ClipboardManager) notify(hasData bool) {
	if c.signal != nil {
		c.signal.ClipboardChanged(hasData)
	}
}

// snapshotSubtree deep-copies node and its descendants into plain value
// data. Child ids missing from the graph are skipped; a revisited id
// fails with ErrCycleDetected instead of recursing forever.
func snapshotSubtree(graph *model.Graph, node *model.Node, visited map[string]bool) (*NodeSnapshot, int, error) {
	if visited[node.ID] {
		return nil, 0, fmt.Errorf("%w: node %s revisited", model.ErrCycleDetected, node.ID)
	}
	visited[node.ID] = true

	snap := &NodeSnapshot{
		Name:              node.Name,
		FilePath:          node.FilePath,
		LineNumber:        node.LineNumber,
		CodeSnippet:       node.CodeSnippet,
		CodeHash:          node.CodeHash,
		Description:       node.Description,
		ValidationWarning: node.ValidationWarning,
	}

	count := 1
	for _, childID := range node.ChildIDs {
		child, ok := graph.Node(childID)
		if !ok {
			continue
		}
		childSnap, childCount, err := snapshotSubtree(graph, child, visited)
		if err != nil {
			return nil, 0, err
		}
		snap.Children = append(snap.Children, childSnap)
		count += childCount
	}

	return snap, count, nil
}
