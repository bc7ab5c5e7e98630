package model

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// Node is one tracked code location in a trail graph.
// Fields are exported and JSON-tagged so a graph round-trips losslessly
// through the storage layer.
type Node struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	FilePath          string    `json:"filePath"`
	LineNumber        int       `json:"lineNumber"`
	CodeSnippet       string    `json:"codeSnippet,omitempty"`
	CodeHash          string    `json:"codeHash,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
	Description       string    `json:"description,omitempty"`
	ValidationWarning string    `json:"validationWarning,omitempty"`

	// ParentID is nil for root nodes.
	ParentID *string  `json:"parentId"`
	ChildIDs []string `json:"childIds"`
}

// NewNode creates a node with a fresh id. Structural linkage (parent,
// children, root registration) is the graph's job, not the node's.
func NewNode(name, filePath string, lineNumber int) *Node {
	return &Node{
		ID:         uuid.New().String(),
		Name:       name,
		FilePath:   filePath,
		LineNumber: lineNumber,
		CreatedAt:  time.Now().UTC(),
		ChildIDs:   []string{},
	}
}

// IsRoot reports whether the node has no parent.
func (n *Node) IsRoot() bool {
	return n.ParentID == nil
}

// Clone returns a deep copy of the node.
func (n *Node) Clone() *Node {
	c := *n
	if n.ParentID != nil {
		p := *n.ParentID
		c.ParentID = &p
	}
	c.ChildIDs = make([]string, len(n.ChildIDs))
	copy(c.ChildIDs, n.ChildIDs)
	return &c
}

// HashSnippet computes the best-effort fingerprint stored in CodeHash.
// An empty snippet yields an empty hash; callers must treat a missing
// hash as "no fingerprint", never as an error.
func HashSnippet(snippet string) string {
	if snippet == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(snippet))
	return hex.EncodeToString(sum[:])
}
