package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"codetrail/application/ports"
	domaincfg "codetrail/domain/config"
	"codetrail/domain/core/model"
	"codetrail/infrastructure/persistence/memory"
	pkgerrors "codetrail/pkg/errors"
)

// countingProvider wraps a GraphProvider to count saves and optionally
// fail them past a threshold.
type countingProvider struct {
	ports.GraphProvider
	saves     int
	failAfter int // fail saves once this many succeeded; 0 disables
}

func (p *countingProvider) SaveGraph(ctx context.Context, graph *model.Graph) error {
	if p.failAfter > 0 && p.saves >= p.failAfter {
		return errors.New("disk full")
	}
	if err := p.GraphProvider.SaveGraph(ctx, graph); err != nil {
		return err
	}
	p.saves++
	return nil
}

type stubRelocator struct {
	result *ports.RelocationResult
	err    error
}

func (s *stubRelocator) Relocate(ctx context.Context, node *model.Node) (*ports.RelocationResult, error) {
	return s.result, s.err
}

func newTestEnv(t *testing.T) (*NodeManager, *countingProvider) {
	t.Helper()
	provider := &countingProvider{
		GraphProvider: memory.NewStore(zap.NewNop()),
	}
	manager := NewNodeManager(provider, &stubRelocator{}, domaincfg.DefaultDomainConfig(), zap.NewNop())
	return manager, provider
}

func TestCreateNode(t *testing.T) {
	ctx := context.Background()

	t.Run("creates graph on first node", func(t *testing.T) {
		manager, provider := newTestEnv(t)

		node, err := manager.CreateNode(ctx, "entry point", "cmd/api/main.go", 42, "func main() {")
		require.NoError(t, err)
		require.NotNil(t, node)
		assert.NotEmpty(t, node.ID)
		assert.Nil(t, node.ParentID)
		assert.NotEmpty(t, node.CodeHash)

		graph, err := provider.GetCurrentGraph(ctx)
		require.NoError(t, err)
		require.NotNil(t, graph)
		assert.Equal(t, []string{node.ID}, graph.RootNodes)
		require.NoError(t, graph.Validate())
	})

	t.Run("appends roots in creation order", func(t *testing.T) {
		manager, provider := newTestEnv(t)

		first, err := manager.CreateNode(ctx, "first", "a.go", 1, "")
		require.NoError(t, err)
		second, err := manager.CreateNode(ctx, "second", "b.go", 2, "")
		require.NoError(t, err)

		graph, err := provider.GetCurrentGraph(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{first.ID, second.ID}, graph.RootNodes)
	})

	t.Run("rejects invalid input", func(t *testing.T) {
		manager, _ := newTestEnv(t)

		tests := []struct {
			name       string
			nodeName   string
			filePath   string
			lineNumber int
		}{
			{"empty name", "", "a.go", 1},
			{"blank name", "   ", "a.go", 1},
			{"empty file path", "n", "", 1},
			{"zero line", "n", "a.go", 0},
			{"negative line", "n", "a.go", -3},
		}
		for _, tc := range tests {
			t.Run(tc.name, func(t *testing.T) {
				_, err := manager.CreateNode(ctx, tc.nodeName, tc.filePath, tc.lineNumber, "")
				require.Error(t, err)
				assert.True(t, pkgerrors.IsValidation(err))
			})
		}
	})

	t.Run("rejects oversized snippet", func(t *testing.T) {
		manager, _ := newTestEnv(t)
		snippet := strings.Repeat("x", domaincfg.DefaultDomainConfig().MaxSnippetLength+1)
		_, err := manager.CreateNode(ctx, "n", "a.go", 1, snippet)
		require.Error(t, err)
		assert.True(t, pkgerrors.IsValidation(err))
	})
}

func TestCreateChildNode(t *testing.T) {
	ctx := context.Background()
	manager, provider := newTestEnv(t)

	parent, err := manager.CreateNode(ctx, "parent", "a.go", 1, "")
	require.NoError(t, err)

	first, err := manager.CreateChildNode(ctx, parent.ID, "first child", "a.go", 2)
	require.NoError(t, err)
	second, err := manager.CreateChildNode(ctx, parent.ID, "second child", "a.go", 3)
	require.NoError(t, err)

	graph, err := provider.GetCurrentGraph(ctx)
	require.NoError(t, err)
	stored, ok := graph.Node(parent.ID)
	require.True(t, ok)
	assert.Equal(t, []string{first.ID, second.ID}, stored.ChildIDs)

	require.NotNil(t, second.ParentID)
	assert.Equal(t, parent.ID, *second.ParentID)
	require.NoError(t, graph.Validate())

	_, err = manager.CreateChildNode(ctx, "missing", "orphan", "a.go", 4)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestCreateParentNode(t *testing.T) {
	ctx := context.Background()

	t.Run("root child is adopted in place", func(t *testing.T) {
		manager, provider := newTestEnv(t)

		before, err := manager.CreateNode(ctx, "before", "a.go", 1, "")
		require.NoError(t, err)
		child, err := manager.CreateNode(ctx, "child", "a.go", 2, "")
		require.NoError(t, err)

		parent, err := manager.CreateParentNode(ctx, child.ID, "parent", "a.go", 3)
		require.NoError(t, err)

		graph, err := provider.GetCurrentGraph(ctx)
		require.NoError(t, err)
		// The child left the root order; the new parent joined it.
		assert.NotContains(t, graph.RootNodes, child.ID)
		assert.Contains(t, graph.RootNodes, parent.ID)
		assert.Contains(t, graph.RootNodes, before.ID)

		storedChild, ok := graph.Node(child.ID)
		require.True(t, ok)
		require.NotNil(t, storedChild.ParentID)
		assert.Equal(t, parent.ID, *storedChild.ParentID)

		storedParent, ok := graph.Node(parent.ID)
		require.True(t, ok)
		assert.Equal(t, []string{child.ID}, storedParent.ChildIDs)

		// No duplication: the two originals plus the new parent.
		assert.Len(t, graph.Nodes, 3)
		require.NoError(t, graph.Validate())
	})

	t.Run("parented child forks the tree", func(t *testing.T) {
		manager, provider := newTestEnv(t)

		root, err := manager.CreateNode(ctx, "root", "a.go", 1, "")
		require.NoError(t, err)
		child, err := manager.CreateChildNode(ctx, root.ID, "child", "a.go", 2)
		require.NoError(t, err)
		grandchild, err := manager.CreateChildNode(ctx, child.ID, "grandchild", "a.go", 3)
		require.NoError(t, err)

		_, err = manager.UpdateNode(ctx, child.ID, map[string]interface{}{
			"description": "annotated",
			"codeSnippet": "return nil",
		})
		require.NoError(t, err)

		parent, err := manager.CreateParentNode(ctx, child.ID, "new parent", "b.go", 10)
		require.NoError(t, err)

		graph, err := provider.GetCurrentGraph(ctx)
		require.NoError(t, err)
		require.NoError(t, graph.Validate())

		// The new parent is a root with exactly one child: the duplicate.
		assert.Contains(t, graph.RootNodes, parent.ID)
		storedParent, ok := graph.Node(parent.ID)
		require.True(t, ok)
		require.Len(t, storedParent.ChildIDs, 1)
		duplicateID := storedParent.ChildIDs[0]
		assert.NotEqual(t, child.ID, duplicateID)

		duplicate, ok := graph.Node(duplicateID)
		require.True(t, ok)
		assert.Equal(t, "child", duplicate.Name)
		assert.Equal(t, "annotated", duplicate.Description)
		assert.Equal(t, "return nil", duplicate.CodeSnippet)

		// The subtree moved to the duplicate.
		assert.Equal(t, []string{grandchild.ID}, duplicate.ChildIDs)
		storedGrandchild, ok := graph.Node(grandchild.ID)
		require.True(t, ok)
		assert.Equal(t, duplicateID, *storedGrandchild.ParentID)

		// The original keeps its ancestry but loses its children.
		storedChild, ok := graph.Node(child.ID)
		require.True(t, ok)
		assert.Equal(t, root.ID, *storedChild.ParentID)
		assert.Empty(t, storedChild.ChildIDs)

		// root, child, grandchild, new parent, duplicate.
		assert.Len(t, graph.Nodes, 5)
	})

	t.Run("unknown child fails", func(t *testing.T) {
		manager, _ := newTestEnv(t)
		_, err := manager.CreateNode(ctx, "n", "a.go", 1, "")
		require.NoError(t, err)
		_, err = manager.CreateParentNode(ctx, "missing", "parent", "a.go", 2)
		require.Error(t, err)
		assert.True(t, pkgerrors.IsNotFound(err))
	})
}

func TestCreateSiblingNode(t *testing.T) {
	ctx := context.Background()

	t.Run("sibling of a child lands at the end of the group", func(t *testing.T) {
		manager, provider := newTestEnv(t)

		root, err := manager.CreateNode(ctx, "root", "a.go", 1, "")
		require.NoError(t, err)
		first, err := manager.CreateChildNode(ctx, root.ID, "first", "a.go", 2)
		require.NoError(t, err)
		second, err := manager.CreateChildNode(ctx, root.ID, "second", "a.go", 3)
		require.NoError(t, err)

		require.NoError(t, manager.SetCurrentNode(ctx, first.ID))
		sibling, err := manager.CreateSiblingNode(ctx, "third", "a.go", 4)
		require.NoError(t, err)

		graph, err := provider.GetCurrentGraph(ctx)
		require.NoError(t, err)
		storedRoot, ok := graph.Node(root.ID)
		require.True(t, ok)
		assert.Equal(t, []string{first.ID, second.ID, sibling.ID}, storedRoot.ChildIDs)
	})

	t.Run("sibling of a root becomes a root", func(t *testing.T) {
		manager, provider := newTestEnv(t)

		root, err := manager.CreateNode(ctx, "root", "a.go", 1, "")
		require.NoError(t, err)
		require.NoError(t, manager.SetCurrentNode(ctx, root.ID))

		sibling, err := manager.CreateSiblingNode(ctx, "second root", "b.go", 1)
		require.NoError(t, err)

		graph, err := provider.GetCurrentGraph(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{root.ID, sibling.ID}, graph.RootNodes)
	})

	t.Run("no current node fails", func(t *testing.T) {
		manager, _ := newTestEnv(t)
		_, err := manager.CreateNode(ctx, "root", "a.go", 1, "")
		require.NoError(t, err)
		_, err = manager.CreateSiblingNode(ctx, "orphan", "a.go", 2)
		require.Error(t, err)
		assert.True(t, pkgerrors.IsNotFound(err))
	})
}

func TestDeleteNode(t *testing.T) {
	ctx := context.Background()

	t.Run("promotes children at the deleted position", func(t *testing.T) {
		manager, provider := newTestEnv(t)

		root, err := manager.CreateNode(ctx, "root", "a.go", 1, "")
		require.NoError(t, err)
		left, err := manager.CreateChildNode(ctx, root.ID, "left", "a.go", 2)
		require.NoError(t, err)
		middle, err := manager.CreateChildNode(ctx, root.ID, "middle", "a.go", 3)
		require.NoError(t, err)
		right, err := manager.CreateChildNode(ctx, root.ID, "right", "a.go", 4)
		require.NoError(t, err)
		grandA, err := manager.CreateChildNode(ctx, middle.ID, "grand a", "a.go", 5)
		require.NoError(t, err)
		grandB, err := manager.CreateChildNode(ctx, middle.ID, "grand b", "a.go", 6)
		require.NoError(t, err)

		require.NoError(t, manager.DeleteNode(ctx, middle.ID))

		graph, err := provider.GetCurrentGraph(ctx)
		require.NoError(t, err)
		_, ok := graph.Node(middle.ID)
		assert.False(t, ok)

		storedRoot, ok := graph.Node(root.ID)
		require.True(t, ok)
		assert.Equal(t, []string{left.ID, grandA.ID, grandB.ID, right.ID}, storedRoot.ChildIDs)

		promoted, ok := graph.Node(grandA.ID)
		require.True(t, ok)
		assert.Equal(t, root.ID, *promoted.ParentID)
		require.NoError(t, graph.Validate())
	})

	t.Run("children of a deleted root become roots", func(t *testing.T) {
		manager, provider := newTestEnv(t)

		first, err := manager.CreateNode(ctx, "first", "a.go", 1, "")
		require.NoError(t, err)
		second, err := manager.CreateNode(ctx, "second", "a.go", 2, "")
		require.NoError(t, err)
		child, err := manager.CreateChildNode(ctx, first.ID, "child", "a.go", 3)
		require.NoError(t, err)

		require.NoError(t, manager.DeleteNode(ctx, first.ID))

		graph, err := provider.GetCurrentGraph(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{child.ID, second.ID}, graph.RootNodes)
		promoted, ok := graph.Node(child.ID)
		require.True(t, ok)
		assert.Nil(t, promoted.ParentID)
		require.NoError(t, graph.Validate())
	})

	t.Run("clears a stale current pointer", func(t *testing.T) {
		manager, _ := newTestEnv(t)

		node, err := manager.CreateNode(ctx, "focused", "a.go", 1, "")
		require.NoError(t, err)
		require.NoError(t, manager.SetCurrentNode(ctx, node.ID))
		require.NoError(t, manager.DeleteNode(ctx, node.ID))

		current, err := manager.GetCurrentNode(ctx)
		require.NoError(t, err)
		assert.Nil(t, current)
	})

	t.Run("unknown node fails without writing", func(t *testing.T) {
		manager, provider := newTestEnv(t)
		_, err := manager.CreateNode(ctx, "n", "a.go", 1, "")
		require.NoError(t, err)

		before := provider.saves
		err = manager.DeleteNode(ctx, "missing")
		require.Error(t, err)
		assert.True(t, pkgerrors.IsNotFound(err))
		assert.Equal(t, before, provider.saves)
	})
}

func TestDeleteNodeWithChildren(t *testing.T) {
	ctx := context.Background()
	manager, provider := newTestEnv(t)

	root, err := manager.CreateNode(ctx, "root", "a.go", 1, "")
	require.NoError(t, err)
	doomed, err := manager.CreateChildNode(ctx, root.ID, "doomed", "a.go", 2)
	require.NoError(t, err)
	_, err = manager.CreateChildNode(ctx, doomed.ID, "descendant", "a.go", 3)
	require.NoError(t, err)
	survivor, err := manager.CreateChildNode(ctx, root.ID, "survivor", "a.go", 4)
	require.NoError(t, err)

	require.NoError(t, manager.DeleteNodeWithChildren(ctx, doomed.ID))

	graph, err := provider.GetCurrentGraph(ctx)
	require.NoError(t, err)
	assert.Len(t, graph.Nodes, 2)
	storedRoot, ok := graph.Node(root.ID)
	require.True(t, ok)
	assert.Equal(t, []string{survivor.ID}, storedRoot.ChildIDs)
	require.NoError(t, graph.Validate())
}

func TestUpdateNode(t *testing.T) {
	ctx := context.Background()

	t.Run("applies whitelisted fields", func(t *testing.T) {
		manager, _ := newTestEnv(t)
		node, err := manager.CreateNode(ctx, "original", "a.go", 1, "")
		require.NoError(t, err)

		updated, err := manager.UpdateNode(ctx, node.ID, map[string]interface{}{
			"name":        "renamed",
			"description": "now documented",
			"lineNumber":  float64(17), // JSON decoding hands ints over as float64
		})
		require.NoError(t, err)
		assert.Equal(t, "renamed", updated.Name)
		assert.Equal(t, "now documented", updated.Description)
		assert.Equal(t, 17, updated.LineNumber)
	})

	t.Run("rejects nil updates", func(t *testing.T) {
		manager, _ := newTestEnv(t)
		node, err := manager.CreateNode(ctx, "n", "a.go", 1, "")
		require.NoError(t, err)

		_, err = manager.UpdateNode(ctx, node.ID, nil)
		require.Error(t, err)
		assert.True(t, pkgerrors.IsValidation(err))
	})

	t.Run("rejects unknown fields before writing", func(t *testing.T) {
		manager, provider := newTestEnv(t)
		node, err := manager.CreateNode(ctx, "n", "a.go", 1, "")
		require.NoError(t, err)

		before := provider.saves
		_, err = manager.UpdateNode(ctx, node.ID, map[string]interface{}{"id": "hijack"})
		require.Error(t, err)
		assert.True(t, pkgerrors.IsValidation(err))
		assert.Equal(t, before, provider.saves)
	})

	t.Run("rejects wrong value types", func(t *testing.T) {
		manager, _ := newTestEnv(t)
		node, err := manager.CreateNode(ctx, "n", "a.go", 1, "")
		require.NoError(t, err)

		_, err = manager.UpdateNode(ctx, node.ID, map[string]interface{}{"lineNumber": "ten"})
		require.Error(t, err)
		assert.True(t, pkgerrors.IsValidation(err))

		_, err = manager.UpdateNode(ctx, node.ID, map[string]interface{}{"name": 12})
		require.Error(t, err)
		assert.True(t, pkgerrors.IsValidation(err))
	})

	t.Run("unknown node fails", func(t *testing.T) {
		manager, _ := newTestEnv(t)
		_, err := manager.CreateNode(ctx, "n", "a.go", 1, "")
		require.NoError(t, err)

		_, err = manager.UpdateNode(ctx, "missing", map[string]interface{}{"name": "x"})
		require.Error(t, err)
		assert.True(t, pkgerrors.IsNotFound(err))
	})
}

func TestCurrentNode(t *testing.T) {
	ctx := context.Background()
	manager, _ := newTestEnv(t)

	current, err := manager.GetCurrentNode(ctx)
	require.NoError(t, err)
	assert.Nil(t, current)

	node, err := manager.CreateNode(ctx, "focused", "a.go", 1, "")
	require.NoError(t, err)

	require.NoError(t, manager.SetCurrentNode(ctx, node.ID))
	current, err = manager.GetCurrentNode(ctx)
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, node.ID, current.ID)

	err = manager.SetCurrentNode(ctx, "missing")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsNotFound(err))

	require.NoError(t, manager.ClearCurrentNode(ctx))
	current, err = manager.GetCurrentNode(ctx)
	require.NoError(t, err)
	assert.Nil(t, current)
}

func TestFindNodes(t *testing.T) {
	ctx := context.Background()
	manager, _ := newTestEnv(t)

	_, err := manager.CreateNode(ctx, "Parse config", "config.go", 10, "")
	require.NoError(t, err)
	_, err = manager.CreateNode(ctx, "parse", "parser.go", 20, "")
	require.NoError(t, err)
	_, err = manager.CreateNode(ctx, "render output", "render.go", 30, "")
	require.NoError(t, err)

	t.Run("by name is case-insensitive", func(t *testing.T) {
		matches, err := manager.FindNodesByName(ctx, "PARSE")
		require.NoError(t, err)
		require.Len(t, matches, 2)
	})

	t.Run("by location is exact", func(t *testing.T) {
		matches, err := manager.FindNodesByLocation(ctx, "parser.go", 20)
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, "parse", matches[0].Name)

		matches, err = manager.FindNodesByLocation(ctx, "parser.go", 21)
		require.NoError(t, err)
		assert.Empty(t, matches)
	})

	t.Run("intelligent ranks location over name", func(t *testing.T) {
		matches, err := manager.FindNodesIntelligent(ctx, "parse", "config.go", 10)
		require.NoError(t, err)
		require.Len(t, matches, 2)
		// Location match outranks the exact name match.
		assert.Equal(t, "Parse config", matches[0].Name)
		assert.Equal(t, "parse", matches[1].Name)
	})

	t.Run("intelligent prefers exact name over prefix", func(t *testing.T) {
		matches, err := manager.FindNodesIntelligent(ctx, "parse", "", 0)
		require.NoError(t, err)
		require.Len(t, matches, 2)
		assert.Equal(t, "parse", matches[0].Name)
	})
}

func TestRelocateNode(t *testing.T) {
	ctx := context.Background()

	t.Run("applies the suggested location", func(t *testing.T) {
		provider := &countingProvider{GraphProvider: memory.NewStore(zap.NewNop())}
		relocator := &stubRelocator{result: &ports.RelocationResult{
			IsValid:    false,
			Confidence: ports.ConfidenceHigh,
			SuggestedLocation: &ports.Location{
				FilePath:   "moved.go",
				LineNumber: 99,
			},
		}}
		manager := NewNodeManager(provider, relocator, nil, zap.NewNop())

		node, err := manager.CreateNode(ctx, "n", "a.go", 1, "")
		require.NoError(t, err)

		relocated, err := manager.RelocateNode(ctx, node.ID)
		require.NoError(t, err)
		assert.Equal(t, "moved.go", relocated.FilePath)
		assert.Equal(t, 99, relocated.LineNumber)
		assert.Empty(t, relocated.ValidationWarning)
	})

	t.Run("annotates when relocation fails", func(t *testing.T) {
		provider := &countingProvider{GraphProvider: memory.NewStore(zap.NewNop())}
		relocator := &stubRelocator{result: &ports.RelocationResult{
			IsValid:    false,
			Confidence: ports.ConfidenceFailed,
			Message:    "code not found",
		}}
		manager := NewNodeManager(provider, relocator, nil, zap.NewNop())

		node, err := manager.CreateNode(ctx, "n", "a.go", 1, "")
		require.NoError(t, err)

		relocated, err := manager.RelocateNode(ctx, node.ID)
		require.NoError(t, err)
		assert.Equal(t, "a.go", relocated.FilePath)
		assert.Equal(t, "code not found", relocated.ValidationWarning)
	})
}
