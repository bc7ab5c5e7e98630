package services

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"codetrail/application/ports"
	domaincfg "codetrail/domain/config"
	"codetrail/domain/core/model"
	pkgerrors "codetrail/pkg/errors"
)

// Node fields accepted by UpdateNode. childIds is included so the
// clipboard and order managers can commit structural changes through the
// same persistence primitive.
var updatableNodeFields = map[string]bool{
	"name":              true,
	"filePath":          true,
	"lineNumber":        true,
	"codeSnippet":       true,
	"codeHash":          true,
	"description":       true,
	"validationWarning": true,
	"childIds":          true,
}

// NodeManager owns structural creation, deletion and update of trail
// nodes, plus current-node tracking and search. It reads the active graph
// from the provider before every operation and persists every completed
// mutation back through it.
type NodeManager struct {
	graphs    ports.GraphProvider
	relocator ports.LocationRelocator
	limits    *domaincfg.DomainConfig
	logger    *zap.Logger
}

// NewNodeManager creates a node manager.
func NewNodeManager(
	graphs ports.GraphProvider,
	relocator ports.LocationRelocator,
	limits *domaincfg.DomainConfig,
	logger *zap.Logger,
) *NodeManager {
	if limits == nil {
		limits = domaincfg.DefaultDomainConfig()
	}
	return &NodeManager{
		graphs:    graphs,
		relocator: relocator,
		limits:    limits,
		logger:    logger,
	}
}

// CreateNode creates a new root node. When no graph exists yet, one is
// created through the provider first. Hashing the snippet is best-effort
// and never fails the creation.
func (m *NodeManager) CreateNode(ctx context.Context, name, filePath string, lineNumber int, codeSnippet string) (*model.Node, error) {
	if err := m.validateNodeInput(name, filePath, lineNumber); err != nil {
		return nil, err
	}
	if len(codeSnippet) > m.limits.MaxSnippetLength {
		return nil, pkgerrors.NewValidationError(
			fmt.Sprintf("codeSnippet exceeds %d characters", m.limits.MaxSnippetLength))
	}

	graph, err := m.graphs.GetCurrentGraph(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load current graph: %w", err)
	}
	if graph == nil {
		graph, err = m.graphs.CreateGraph(ctx, m.limits.DefaultGraphName)
		if err != nil {
			return nil, fmt.Errorf("failed to create graph: %w", err)
		}
	}
	if len(graph.Nodes) >= m.limits.MaxNodesPerGraph {
		return nil, pkgerrors.NewConflictError(
			fmt.Sprintf("graph is full: %d nodes", m.limits.MaxNodesPerGraph))
	}

	node := model.NewNode(strings.TrimSpace(name), filePath, lineNumber)
	node.CodeSnippet = codeSnippet
	node.CodeHash = model.HashSnippet(codeSnippet)
	graph.AddRoot(node)

	if err := m.graphs.SaveGraph(ctx, graph); err != nil {
		return nil, fmt.Errorf("failed to save graph: %w", err)
	}

	m.logger.Info("Node created",
		zap.String("nodeID", node.ID),
		zap.String("name", node.Name),
		zap.String("filePath", node.FilePath),
		zap.Int("lineNumber", node.LineNumber),
	)

	return node, nil
}

// CreateChildNode creates a node under parentID, appended to the end of
// the parent's child order.
func (m *NodeManager) CreateChildNode(ctx context.Context, parentID, name, filePath string, lineNumber int) (*model.Node, error) {
	if err := m.validateNodeInput(name, filePath, lineNumber); err != nil {
		return nil, err
	}

	graph, err := m.requireGraph(ctx)
	if err != nil {
		return nil, err
	}
	parent, ok := graph.Node(parentID)
	if !ok {
		return nil, pkgerrors.NewNotFoundError("parent node")
	}
	if len(parent.ChildIDs) >= m.limits.MaxChildrenPerNode {
		return nil, pkgerrors.NewConflictError(
			fmt.Sprintf("node %s is full: %d children", parentID, m.limits.MaxChildrenPerNode))
	}

	node := model.NewNode(strings.TrimSpace(name), filePath, lineNumber)
	graph.AddChild(parent, node)

	if err := m.graphs.SaveGraph(ctx, graph); err != nil {
		return nil, fmt.Errorf("failed to save graph: %w", err)
	}

	m.logger.Info("Child node created",
		zap.String("nodeID", node.ID),
		zap.String("parentID", parentID),
	)

	return node, nil
}

// CreateParentNode inserts a new node above childID.
//
// When the child is a root, the new node simply takes its place in the
// root order and adopts it; nothing is duplicated.
//
// When the child already has a parent, the existing relationship must
// stay untouched, so the tree forks: the new node becomes a root, a
// duplicate of the child is created beneath it, and the child's entire
// subtree moves to the duplicate. The original child keeps its ancestry
// but ends up childless; the duplicate id carries the descendants
// forward. Downstream consumers track the duplicate after a fork.
func (m *NodeManager) CreateParentNode(ctx context.Context, childID, name, filePath string, lineNumber int) (*model.Node, error) {
	if err := m.validateNodeInput(name, filePath, lineNumber); err != nil {
		return nil, err
	}

	graph, err := m.requireGraph(ctx)
	if err != nil {
		return nil, err
	}
	child, ok := graph.Node(childID)
	if !ok {
		return nil, pkgerrors.NewNotFoundError("child node")
	}

	parent := model.NewNode(strings.TrimSpace(name), filePath, lineNumber)
	forked := !child.IsRoot()

	if child.IsRoot() {
		// Replace the child in the root order with the new parent.
		graph.RemoveRoot(childID)
		graph.AddRoot(parent)
		child.ParentID = &parent.ID
		parent.ChildIDs = []string{childID}
	} else {
		// Fork: keep the existing parent link intact and duplicate the
		// child under the new root.
		graph.AddRoot(parent)

		duplicate := model.NewNode(child.Name, child.FilePath, child.LineNumber)
		duplicate.CodeSnippet = child.CodeSnippet
		duplicate.CodeHash = child.CodeHash
		duplicate.Description = child.Description
		duplicate.ValidationWarning = child.ValidationWarning
		duplicate.ParentID = &parent.ID
		graph.Nodes[duplicate.ID] = duplicate

		// The duplicate takes over the child's entire subtree.
		duplicate.ChildIDs = child.ChildIDs
		for _, grandchildID := range duplicate.ChildIDs {
			if grandchild, ok := graph.Node(grandchildID); ok {
				grandchild.ParentID = &duplicate.ID
			}
		}
		child.ChildIDs = []string{}
		parent.ChildIDs = []string{duplicate.ID}
	}

	graph.Touch()
	if err := m.graphs.SaveGraph(ctx, graph); err != nil {
		return nil, fmt.Errorf("failed to save graph: %w", err)
	}

	m.logger.Info("Parent node created",
		zap.String("nodeID", parent.ID),
		zap.String("childID", childID),
		zap.Bool("forked", forked),
	)

	return parent, nil
}

// CreateSiblingNode creates a node in the current node's sibling group.
// The new node lands at the end of that group, not next to the current
// node.
func (m *NodeManager) CreateSiblingNode(ctx context.Context, name, filePath string, lineNumber int) (*model.Node, error) {
	current, err := m.GetCurrentNode(ctx)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, pkgerrors.NewNotFoundError("current node")
	}
	if current.ParentID != nil {
		return m.CreateChildNode(ctx, *current.ParentID, name, filePath, lineNumber)
	}
	return m.CreateNode(ctx, name, filePath, lineNumber, "")
}

// DeleteNode removes a single node. Surviving children are promoted to
// the deleted node's former parent, spliced in at its position; children
// of a deleted root become roots at its position.
func (m *NodeManager) DeleteNode(ctx context.Context, nodeID string) error {
	graph, err := m.requireGraph(ctx)
	if err != nil {
		return err
	}
	node, ok := graph.Node(nodeID)
	if !ok {
		return pkgerrors.NewNotFoundError("node")
	}

	promoted := make([]string, len(node.ChildIDs))
	copy(promoted, node.ChildIDs)

	if node.ParentID == nil {
		graph.RootNodes = spliceIDs(graph.RootNodes, nodeID, promoted)
		for _, childID := range promoted {
			if child, ok := graph.Node(childID); ok {
				child.ParentID = nil
			}
		}
	} else {
		parent, ok := graph.Node(*node.ParentID)
		if !ok {
			return pkgerrors.NewNotFoundError("parent node")
		}
		parent.ChildIDs = spliceIDs(parent.ChildIDs, nodeID, promoted)
		for _, childID := range promoted {
			if child, ok := graph.Node(childID); ok {
				child.ParentID = &parent.ID
			}
		}
	}

	delete(graph.Nodes, nodeID)
	if graph.CurrentNodeID != nil && *graph.CurrentNodeID == nodeID {
		graph.CurrentNodeID = nil
	}
	graph.Touch()

	if err := m.graphs.SaveGraph(ctx, graph); err != nil {
		return fmt.Errorf("failed to save graph: %w", err)
	}

	m.logger.Info("Node deleted",
		zap.String("nodeID", nodeID),
		zap.Int("promotedChildren", len(promoted)),
	)

	return nil
}

// DeleteNodeWithChildren removes a node and every descendant.
func (m *NodeManager) DeleteNodeWithChildren(ctx context.Context, nodeID string) error {
	graph, err := m.requireGraph(ctx)
	if err != nil {
		return err
	}
	node, ok := graph.Node(nodeID)
	if !ok {
		return pkgerrors.NewNotFoundError("node")
	}

	subtree, err := graph.Subtree(nodeID)
	if err != nil {
		return pkgerrors.NewCorruptedError("cannot delete subtree", err)
	}

	graph.DetachFromParent(node)
	for _, id := range subtree {
		delete(graph.Nodes, id)
		if graph.CurrentNodeID != nil && *graph.CurrentNodeID == id {
			graph.CurrentNodeID = nil
		}
	}
	graph.Touch()

	if err := m.graphs.SaveGraph(ctx, graph); err != nil {
		return fmt.Errorf("failed to save graph: %w", err)
	}

	m.logger.Info("Subtree deleted",
		zap.String("nodeID", nodeID),
		zap.Int("removedNodes", len(subtree)),
	)

	return nil
}

// GetNode returns the node by id from the current graph.
func (m *NodeManager) GetNode(ctx context.Context, nodeID string) (*model.Node, error) {
	graph, err := m.requireGraph(ctx)
	if err != nil {
		return nil, err
	}
	node, ok := graph.Node(nodeID)
	if !ok {
		return nil, pkgerrors.NewNotFoundError("node")
	}
	return node, nil
}

// UpdateNode applies a partial update. updates must be a non-nil map of
// whitelisted keys; anything else is rejected before touching state.
func (m *NodeManager) UpdateNode(ctx context.Context, nodeID string, updates map[string]interface{}) (*model.Node, error) {
	if updates == nil {
		return nil, pkgerrors.NewValidationError("updates must be a key/value object")
	}
	for key := range updates {
		if !updatableNodeFields[key] {
			return nil, pkgerrors.NewValidationError(fmt.Sprintf("field %q is not updatable", key))
		}
	}

	graph, err := m.requireGraph(ctx)
	if err != nil {
		return nil, err
	}
	node, ok := graph.Node(nodeID)
	if !ok {
		return nil, pkgerrors.NewNotFoundError("node")
	}

	if err := applyNodeUpdates(node, updates, m.limits); err != nil {
		return nil, err
	}
	graph.Touch()

	if err := m.graphs.SaveGraph(ctx, graph); err != nil {
		return nil, fmt.Errorf("failed to save graph: %w", err)
	}

	m.logger.Debug("Node updated",
		zap.String("nodeID", nodeID),
		zap.Int("fields", len(updates)),
	)

	return node, nil
}

// SetCurrentNode points the focus at nodeID, validated against the graph.
func (m *NodeManager) SetCurrentNode(ctx context.Context, nodeID string) error {
	graph, err := m.requireGraph(ctx)
	if err != nil {
		return err
	}
	if _, ok := graph.Node(nodeID); !ok {
		return pkgerrors.NewNotFoundError("node")
	}
	graph.CurrentNodeID = &nodeID
	graph.Touch()

	if err := m.graphs.SaveGraph(ctx, graph); err != nil {
		return fmt.Errorf("failed to save graph: %w", err)
	}
	return nil
}

// GetCurrentNode returns the focused node, or nil when none is set. A
// stale pointer to a removed node also yields nil.
func (m *NodeManager) GetCurrentNode(ctx context.Context) (*model.Node, error) {
	graph, err := m.graphs.GetCurrentGraph(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load current graph: %w", err)
	}
	if graph == nil || graph.CurrentNodeID == nil {
		return nil, nil
	}
	node, ok := graph.Node(*graph.CurrentNodeID)
	if !ok {
		return nil, nil
	}
	return node, nil
}

// ClearCurrentNode drops the focus pointer.
func (m *NodeManager) ClearCurrentNode(ctx context.Context) error {
	graph, err := m.requireGraph(ctx)
	if err != nil {
		return err
	}
	if graph.CurrentNodeID == nil {
		return nil
	}
	graph.CurrentNodeID = nil
	graph.Touch()

	if err := m.graphs.SaveGraph(ctx, graph); err != nil {
		return fmt.Errorf("failed to save graph: %w", err)
	}
	return nil
}

// FindNodesByName returns nodes whose name contains query,
// case-insensitively.
func (m *NodeManager) FindNodesByName(ctx context.Context, query string) ([]*model.Node, error) {
	graph, err := m.requireGraph(ctx)
	if err != nil {
		return nil, err
	}

	lowered := strings.ToLower(query)
	var matches []*model.Node
	for _, node := range graph.Nodes {
		if strings.Contains(strings.ToLower(node.Name), lowered) {
			matches = append(matches, node)
		}
	}
	sortNodesByName(matches)
	return clampResults(matches, m.limits.MaxSearchResults), nil
}

// FindNodesByLocation returns nodes at exactly (filePath, lineNumber).
func (m *NodeManager) FindNodesByLocation(ctx context.Context, filePath string, lineNumber int) ([]*model.Node, error) {
	graph, err := m.requireGraph(ctx)
	if err != nil {
		return nil, err
	}

	var matches []*model.Node
	for _, node := range graph.Nodes {
		if node.FilePath == filePath && node.LineNumber == lineNumber {
			matches = append(matches, node)
		}
	}
	sortNodesByName(matches)
	return clampResults(matches, m.limits.MaxSearchResults), nil
}

// FindNodesIntelligent ranks nodes for a navigation query: exact location
// matches come first, then name matches ordered by relevance (exact name,
// prefix, substring), ties broken by name.
func (m *NodeManager) FindNodesIntelligent(ctx context.Context, query, filePath string, lineNumber int) ([]*model.Node, error) {
	graph, err := m.requireGraph(ctx)
	if err != nil {
		return nil, err
	}

	type ranked struct {
		node  *model.Node
		score int
	}

	lowered := strings.ToLower(strings.TrimSpace(query))
	var results []ranked
	for _, node := range graph.Nodes {
		score := 0
		if filePath != "" && node.FilePath == filePath && node.LineNumber == lineNumber {
			score += 100
		}
		if lowered != "" {
			name := strings.ToLower(node.Name)
			switch {
			case name == lowered:
				score += 50
			case strings.HasPrefix(name, lowered):
				score += 25
			case strings.Contains(name, lowered):
				score += 10
			}
		}
		if score > 0 {
			results = append(results, ranked{node: node, score: score})
		}
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].score != results[j].score {
			return results[i].score > results[j].score
		}
		return results[i].node.Name < results[j].node.Name
	})

	nodes := make([]*model.Node, 0, len(results))
	for _, r := range results {
		nodes = append(nodes, r.node)
	}
	return clampResults(nodes, m.limits.MaxSearchResults), nil
}

// ValidateNodeLocation asks the relocation collaborator whether the
// node's recorded location still matches the code, surfacing its result
// unchanged.
func (m *NodeManager) ValidateNodeLocation(ctx context.Context, nodeID string) (*ports.RelocationResult, error) {
	graph, err := m.requireGraph(ctx)
	if err != nil {
		return nil, err
	}
	node, ok := graph.Node(nodeID)
	if !ok {
		return nil, pkgerrors.NewNotFoundError("node")
	}

	result, err := m.relocator.Relocate(ctx, node)
	if err != nil {
		return nil, fmt.Errorf("failed to validate node location: %w", err)
	}
	return result, nil
}

// RelocateNode applies the relocation collaborator's suggested location
// to the node. Without a suggestion the node is only annotated with the
// collaborator's message.
func (m *NodeManager) RelocateNode(ctx context.Context, nodeID string) (*model.Node, error) {
	result, err := m.ValidateNodeLocation(ctx, nodeID)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if result.SuggestedLocation != nil {
		updates["filePath"] = result.SuggestedLocation.FilePath
		updates["lineNumber"] = result.SuggestedLocation.LineNumber
		updates["validationWarning"] = ""
	} else {
		updates["validationWarning"] = result.Message
	}

	node, err := m.UpdateNode(ctx, nodeID, updates)
	if err != nil {
		return nil, fmt.Errorf("failed to relocate node: %w", err)
	}

	m.logger.Info("Node relocated",
		zap.String("nodeID", nodeID),
		zap.String("confidence", string(result.Confidence)),
		zap.Bool("moved", result.SuggestedLocation != nil),
	)

	return node, nil
}

// Close releases the manager. Present for the command layer's lifecycle;
// the manager holds no resources of its own.
func (m *NodeManager) Close() error {
	return nil
}

// requireGraph loads the current graph, failing when none exists.
func (m *NodeManager) requireGraph(ctx context.Context) (*model.Graph, error) {
	graph, err := m.graphs.GetCurrentGraph(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load current graph: %w", err)
	}
	if graph == nil {
		return nil, pkgerrors.NewNotFoundError("graph")
	}
	return graph, nil
}

func (m *NodeManager) validateNodeInput(name, filePath string, lineNumber int) error {
	if strings.TrimSpace(name) == "" {
		return pkgerrors.NewValidationError("name cannot be empty")
	}
	if len(name) > m.limits.MaxNameLength {
		return pkgerrors.NewValidationError(
			fmt.Sprintf("name exceeds %d characters", m.limits.MaxNameLength))
	}
	if filePath == "" {
		return pkgerrors.NewValidationError("filePath cannot be empty")
	}
	if lineNumber <= 0 {
		return pkgerrors.NewValidationError("lineNumber must be a positive integer")
	}
	return nil
}

// applyNodeUpdates mutates node in place after type-checking every value.
func applyNodeUpdates(node *model.Node, updates map[string]interface{}, limits *domaincfg.DomainConfig) error {
	for key, value := range updates {
		switch key {
		case "name":
			s, err := stringValue(key, value)
			if err != nil {
				return err
			}
			if strings.TrimSpace(s) == "" {
				return pkgerrors.NewValidationError("name cannot be empty")
			}
			node.Name = s
		case "filePath":
			s, err := stringValue(key, value)
			if err != nil {
				return err
			}
			if s == "" {
				return pkgerrors.NewValidationError("filePath cannot be empty")
			}
			node.FilePath = s
		case "lineNumber":
			n, err := intValue(key, value)
			if err != nil {
				return err
			}
			// Relocation flows may record unresolved locations as 0.
			node.LineNumber = n
		case "codeSnippet":
			s, err := stringValue(key, value)
			if err != nil {
				return err
			}
			if len(s) > limits.MaxSnippetLength {
				return pkgerrors.NewValidationError(
					fmt.Sprintf("codeSnippet exceeds %d characters", limits.MaxSnippetLength))
			}
			node.CodeSnippet = s
		case "codeHash":
			s, err := stringValue(key, value)
			if err != nil {
				return err
			}
			node.CodeHash = s
		case "description":
			s, err := stringValue(key, value)
			if err != nil {
				return err
			}
			node.Description = s
		case "validationWarning":
			s, err := stringValue(key, value)
			if err != nil {
				return err
			}
			node.ValidationWarning = s
		case "childIds":
			ids, err := stringSliceValue(key, value)
			if err != nil {
				return err
			}
			node.ChildIDs = ids
		}
	}
	return nil
}

func stringValue(key string, value interface{}) (string, error) {
	s, ok := value.(string)
	if !ok {
		return "", pkgerrors.NewValidationError(fmt.Sprintf("field %q must be a string", key))
	}
	return s, nil
}

// intValue accepts float64 alongside the integer types because JSON
// decoding hands numbers over as float64.
func intValue(key string, value interface{}) (int, error) {
	switch v := value.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		if v != float64(int(v)) {
			return 0, pkgerrors.NewValidationError(fmt.Sprintf("field %q must be an integer", key))
		}
		return int(v), nil
	default:
		return 0, pkgerrors.NewValidationError(fmt.Sprintf("field %q must be an integer", key))
	}
}

func stringSliceValue(key string, value interface{}) ([]string, error) {
	switch v := value.(type) {
	case []string:
		out := make([]string, len(v))
		copy(out, v)
		return out, nil
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, pkgerrors.NewValidationError(fmt.Sprintf("field %q must be a list of strings", key))
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, pkgerrors.NewValidationError(fmt.Sprintf("field %q must be a list of strings", key))
	}
}

// spliceIDs replaces target in ids with replacement, preserving order.
func spliceIDs(ids []string, target string, replacement []string) []string {
	out := make([]string, 0, len(ids)+len(replacement))
	for _, id := range ids {
		if id == target {
			out = append(out, replacement...)
			continue
		}
		out = append(out, id)
	}
	return out
}

func sortNodesByName(nodes []*model.Node) {
	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].Name != nodes[j].Name {
			return nodes[i].Name < nodes[j].Name
		}
		return nodes[i].ID < nodes[j].ID
	})
}

func clampResults(nodes []*model.Node, max int) []*model.Node {
	if max > 0 && len(nodes) > max {
		return nodes[:max]
	}
	return nodes
}
