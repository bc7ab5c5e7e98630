package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrCycleDetected is returned by traversals when a parentId or childIds
// chain revisits a node. A well-formed graph is a forest; this error only
// surfaces on corrupted data and replaces unbounded recursion.
var ErrCycleDetected = errors.New("cycle detected in node graph")

// Graph is a named forest of Nodes with an ordered root list and an
// optional "current" (focused) node pointer.
type Graph struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	CreatedAt time.Time        `json:"createdAt"`
	UpdatedAt time.Time        `json:"updatedAt"`
	Nodes     map[string]*Node `json:"nodes"`
	RootNodes []string         `json:"rootNodes"`

	// CurrentNodeID is nil when no node is focused.
	CurrentNodeID *string `json:"currentNodeId,omitempty"`
}

// NewGraph creates an empty graph.
func NewGraph(name string) *Graph {
	now := time.Now().UTC()
	return &Graph{
		ID:        uuid.New().String(),
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
		Nodes:     make(map[string]*Node),
		RootNodes: []string{},
	}
}

// Node returns the node for id, if present.
func (g *Graph) Node(id string) (*Node, bool) {
	n, ok := g.Nodes[id]
	return n, ok
}

// Touch bumps the modification timestamp.
func (g *Graph) Touch() {
	g.UpdatedAt = time.Now().UTC()
}

// AddRoot registers a parentless node, appending it to the root order.
func (g *Graph) AddRoot(n *Node) {
	n.ParentID = nil
	g.Nodes[n.ID] = n
	g.RootNodes = append(g.RootNodes, n.ID)
	g.Touch()
}

// AddChild registers a node under parent, appending it to the end of the
// parent's child order. New children are always last.
func (g *Graph) AddChild(parent *Node, n *Node) {
	pid := parent.ID
	n.ParentID = &pid
	g.Nodes[n.ID] = n
	parent.ChildIDs = append(parent.ChildIDs, n.ID)
	g.Touch()
}

// RemoveRoot drops id from the root order. The node itself is untouched.
func (g *Graph) RemoveRoot(id string) {
	g.RootNodes = removeID(g.RootNodes, id)
}

// DetachFromParent unlinks n from its sibling group: the parent's childIds
// for a child, the root order for a root. n keeps its own links.
func (g *Graph) DetachFromParent(n *Node) {
	if n.ParentID == nil {
		g.RemoveRoot(n.ID)
		return
	}
	if parent, ok := g.Nodes[*n.ParentID]; ok {
		parent.ChildIDs = removeID(parent.ChildIDs, n.ID)
	}
}

// SiblingIDs resolves the ordered sibling group containing id: the
// parent's childIds when the node has a parent, otherwise the root order.
// The returned parent is nil for the root group.
func (g *Graph) SiblingIDs(id string) ([]string, *Node, error) {
	n, ok := g.Nodes[id]
	if !ok {
		return nil, nil, fmt.Errorf("node %s not in graph", id)
	}
	if n.ParentID == nil {
		return g.RootNodes, nil, nil
	}
	parent, ok := g.Nodes[*n.ParentID]
	if !ok {
		return nil, nil, fmt.Errorf("parent %s of node %s not in graph", *n.ParentID, id)
	}
	return parent.ChildIDs, parent, nil
}

// Subtree collects id and every descendant in pre-order, following
// childIds. Ids missing from the node map are skipped; revisiting an id
// fails with ErrCycleDetected.
func (g *Graph) Subtree(id string) ([]string, error) {
	if _, ok := g.Nodes[id]; !ok {
		return nil, fmt.Errorf("node %s not in graph", id)
	}
	visited := make(map[string]bool)
	var out []string
	var walk func(string) error
	walk = func(cur string) error {
		if visited[cur] {
			return fmt.Errorf("%w: node %s revisited", ErrCycleDetected, cur)
		}
		visited[cur] = true
		out = append(out, cur)
		n := g.Nodes[cur]
		for _, childID := range n.ChildIDs {
			if _, ok := g.Nodes[childID]; !ok {
				continue
			}
			if err := walk(childID); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(id); err != nil {
		return nil, err
	}
	return out, nil
}

// Clone returns a deep copy of the graph. Stores hand out clones so a
// caller's mutations never leak into shared state before an explicit save.
func (g *Graph) Clone() *Graph {
	c := *g
	if g.CurrentNodeID != nil {
		id := *g.CurrentNodeID
		c.CurrentNodeID = &id
	}
	c.RootNodes = make([]string, len(g.RootNodes))
	copy(c.RootNodes, g.RootNodes)
	c.Nodes = make(map[string]*Node, len(g.Nodes))
	for id, n := range g.Nodes {
		c.Nodes[id] = n.Clone()
	}
	return &c
}

// Validate checks the forest invariants:
//  1. id is in rootNodes exactly once iff the node has no parent
//  2. a child appears exactly once in its parent's childIds
//  3. parentId chains terminate at a root without revisiting an id
//  4. childIds and rootNodes reference only known nodes
func (g *Graph) Validate() error {
	rootSeen := make(map[string]int)
	for _, id := range g.RootNodes {
		if _, ok := g.Nodes[id]; !ok {
			return fmt.Errorf("rootNodes references unknown node %s", id)
		}
		rootSeen[id]++
	}
	for id, count := range rootSeen {
		if count > 1 {
			return fmt.Errorf("node %s listed %d times in rootNodes", id, count)
		}
	}

	for id, n := range g.Nodes {
		if n.ID != id {
			return fmt.Errorf("node map key %s does not match node id %s", id, n.ID)
		}
		if n.ParentID == nil {
			if rootSeen[id] != 1 {
				return fmt.Errorf("root node %s missing from rootNodes", id)
			}
		} else {
			if rootSeen[id] != 0 {
				return fmt.Errorf("node %s has a parent but is listed in rootNodes", id)
			}
			parent, ok := g.Nodes[*n.ParentID]
			if !ok {
				return fmt.Errorf("node %s references unknown parent %s", id, *n.ParentID)
			}
			links := 0
			for _, childID := range parent.ChildIDs {
				if childID == id {
					links++
				}
			}
			if links != 1 {
				return fmt.Errorf("node %s appears %d times in childIds of parent %s", id, links, parent.ID)
			}
		}
		for _, childID := range n.ChildIDs {
			child, ok := g.Nodes[childID]
			if !ok {
				return fmt.Errorf("node %s references unknown child %s", id, childID)
			}
			if child.ParentID == nil || *child.ParentID != id {
				return fmt.Errorf("child %s of node %s does not link back to it", childID, id)
			}
		}
	}

	// Ancestry chains must reach a root without looping.
	for id := range g.Nodes {
		visited := make(map[string]bool)
		cur := g.Nodes[id]
		for cur.ParentID != nil {
			if visited[cur.ID] {
				return fmt.Errorf("%w: ancestry of node %s", ErrCycleDetected, id)
			}
			visited[cur.ID] = true
			next, ok := g.Nodes[*cur.ParentID]
			if !ok {
				return fmt.Errorf("node %s references unknown parent %s", cur.ID, *cur.ParentID)
			}
			cur = next
		}
	}

	return nil
}

func removeID(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
