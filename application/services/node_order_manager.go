package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"codetrail/application/ports"
	"codetrail/domain/core/model"
	pkgerrors "codetrail/pkg/errors"
)

// NodePosition is a 1-based position within a sibling group.
type NodePosition struct {
	Position int `json:"position"`
	Total    int `json:"total"`
}

// NodeOrderManager reorders nodes within their sibling group: the
// parent's childIds for a child, the graph's root order for a root.
// Mutating calls error on invalid input; the Can* predicates never do,
// degrading to false instead.
type NodeOrderManager struct {
	nodes  *NodeManager
	graphs ports.GraphProvider
	logger *zap.Logger
}

// NewNodeOrderManager creates a node order manager.
func NewNodeOrderManager(nodes *NodeManager, graphs ports.GraphProvider, logger *zap.Logger) *NodeOrderManager {
	return &NodeOrderManager{
		nodes:  nodes,
		graphs: graphs,
		logger: logger,
	}
}

// MoveNodeUp swaps the node with the sibling before it. Returns false
// with zero writes when the node is already first.
func (o *NodeOrderManager) MoveNodeUp(ctx context.Context, nodeID string) (bool, error) {
	moved, err := o.swapWithNeighbor(ctx, nodeID, -1)
	if err != nil {
		return false, fmt.Errorf("failed to move node up: %w", err)
	}
	return moved, nil
}

// MoveNodeDown swaps the node with the sibling after it. Returns false
// with zero writes when the node is already last.
func (o *NodeOrderManager) MoveNodeDown(ctx context.Context, nodeID string) (bool, error) {
	moved, err := o.swapWithNeighbor(ctx, nodeID, 1)
	if err != nil {
		return false, fmt.Errorf("failed to move node down: %w", err)
	}
	return moved, nil
}

// CanMoveUp reports whether MoveNodeUp would reorder anything. Internal
// failures yield false.
func (o *NodeOrderManager) CanMoveUp(ctx context.Context, nodeID string) bool {
	pos, err := o.GetNodePosition(ctx, nodeID)
	if err != nil || pos == nil {
		return false
	}
	return pos.Position > 1
}

// CanMoveDown reports whether MoveNodeDown would reorder anything.
// Internal failures yield false.
func (o *NodeOrderManager) CanMoveDown(ctx context.Context, nodeID string) bool {
	pos, err := o.GetNodePosition(ctx, nodeID)
	if err != nil || pos == nil {
		return false
	}
	return pos.Position < pos.Total
}

// GetNodePosition returns the node's 1-based position and sibling count,
// or nil when the node is absent.
func (o *NodeOrderManager) GetNodePosition(ctx context.Context, nodeID string) (*NodePosition, error) {
	graph, err := o.graphs.GetCurrentGraph(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load current graph: %w", err)
	}
	if graph == nil {
		return nil, nil
	}
	if _, ok := graph.Node(nodeID); !ok {
		return nil, nil
	}

	siblings, _, err := graph.SiblingIDs(nodeID)
	if err != nil {
		return nil, pkgerrors.NewCorruptedError("cannot resolve sibling group", err)
	}
	idx := indexOf(siblings, nodeID)
	if idx < 0 {
		return nil, pkgerrors.NewCorruptedError(
			fmt.Sprintf("node %s missing from its sibling group", nodeID), nil)
	}
	return &NodePosition{Position: idx + 1, Total: len(siblings)}, nil
}

// MoveToPosition splices the node out of its sibling group and reinserts
// it at targetPosition (1-based). Already being there is a no-op
// returning true with zero writes.
func (o *NodeOrderManager) MoveToPosition(ctx context.Context, nodeID string, targetPosition int) (bool, error) {
	graph, err := o.requireGraph(ctx)
	if err != nil {
		return false, err
	}
	if _, ok := graph.Node(nodeID); !ok {
		return false, pkgerrors.NewNotFoundError("node")
	}

	siblings, parent, err := graph.SiblingIDs(nodeID)
	if err != nil {
		return false, pkgerrors.NewCorruptedError("cannot resolve sibling group", err)
	}
	idx := indexOf(siblings, nodeID)
	if idx < 0 {
		return false, pkgerrors.NewCorruptedError(
			fmt.Sprintf("node %s missing from its sibling group", nodeID), nil)
	}
	if targetPosition < 1 || targetPosition > len(siblings) {
		return false, pkgerrors.NewValidationError(
			fmt.Sprintf("position must be between 1 and %d", len(siblings)))
	}
	if idx == targetPosition-1 {
		return true, nil
	}

	order := make([]string, 0, len(siblings))
	order = append(order, siblings...)
	order = append(order[:idx], order[idx+1:]...)
	target := targetPosition - 1
	order = append(order[:target], append([]string{nodeID}, order[target:]...)...)

	if err := o.persistOrder(ctx, graph, parent, order); err != nil {
		return false, fmt.Errorf("failed to move node to position: %w", err)
	}

	o.logger.Info("Node moved",
		zap.String("nodeID", nodeID),
		zap.Int("from", idx+1),
		zap.Int("to", targetPosition),
	)

	return true, nil
}

// swapWithNeighbor swaps nodeID with the sibling at offset ±1. Returns
// false without writing at a boundary.
func (o *NodeOrderManager) swapWithNeighbor(ctx context.Context, nodeID string, offset int) (bool, error) {
	graph, err := o.requireGraph(ctx)
	if err != nil {
		return false, err
	}
	if _, ok := graph.Node(nodeID); !ok {
		return false, pkgerrors.NewNotFoundError("node")
	}

	siblings, parent, err := graph.SiblingIDs(nodeID)
	if err != nil {
		return false, pkgerrors.NewCorruptedError("cannot resolve sibling group", err)
	}
	idx := indexOf(siblings, nodeID)
	if idx < 0 {
		return false, pkgerrors.NewCorruptedError(
			fmt.Sprintf("node %s missing from its sibling group", nodeID), nil)
	}

	neighbor := idx + offset
	if neighbor < 0 || neighbor >= len(siblings) {
		return false, nil
	}

	order := make([]string, len(siblings))
	copy(order, siblings)
	order[idx], order[neighbor] = order[neighbor], order[idx]

	if err := o.persistOrder(ctx, graph, parent, order); err != nil {
		return false, fmt.Errorf("failed to swap siblings: %w", err)
	}
	return true, nil
}

// persistOrder commits a new sibling order: through UpdateNode for a
// parented group so persistence stays in one place, through a full graph
// save for the root order.
func (o *NodeOrderManager) persistOrder(ctx context.Context, graph *model.Graph, parent *model.Node, order []string) error {
	if parent != nil {
		_, err := o.nodes.UpdateNode(ctx, parent.ID, map[string]interface{}{"childIds": order})
		return err
	}
	graph.RootNodes = order
	graph.Touch()
	return o.graphs.SaveGraph(ctx, graph)
}

func (o *NodeOrderManager) requireGraph(ctx context.Context) (*model.Graph, error) {
	graph, err := o.graphs.GetCurrentGraph(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load current graph: %w", err)
	}
	if graph == nil {
		return nil, pkgerrors.NewNotFoundError("graph")
	}
	return graph, nil
}

func indexOf(ids []string, id string) int {
	for i, v := range ids {
		if v == id {
			return i
		}
	}
	return -1
}
