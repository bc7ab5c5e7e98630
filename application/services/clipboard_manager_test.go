package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	domaincfg "codetrail/domain/config"
	"codetrail/infrastructure/persistence/memory"
	pkgerrors "codetrail/pkg/errors"
)

type recordingSignal struct {
	changes []bool
}

func (r *recordingSignal) ClipboardChanged(hasData bool) {
	r.changes = append(r.changes, hasData)
}

func newClipboardEnv(t *testing.T) (*ClipboardManager, *NodeManager, *countingProvider, *recordingSignal) {
	t.Helper()
	provider := &countingProvider{
		GraphProvider: memory.NewStore(zap.NewNop()),
	}
	nodes := NewNodeManager(provider, &stubRelocator{}, domaincfg.DefaultDomainConfig(), zap.NewNop())
	signal := &recordingSignal{}
	clipboard := NewClipboardManager(nodes, provider, signal, zap.NewNop())
	return clipboard, nodes, provider, signal
}

func TestCopyPasteLeaf(t *testing.T) {
	ctx := context.Background()
	clipboard, nodes, provider, _ := newClipboardEnv(t)

	source, err := nodes.CreateNode(ctx, "source", "a.go", 7, "x := 1")
	require.NoError(t, err)
	_, err = nodes.UpdateNode(ctx, source.ID, map[string]interface{}{
		"description": "kept on paste",
	})
	require.NoError(t, err)
	target, err := nodes.CreateNode(ctx, "target", "b.go", 1, "")
	require.NoError(t, err)

	require.NoError(t, clipboard.CopyNode(ctx, source.ID))
	created, err := clipboard.PasteNode(ctx, target.ID)
	require.NoError(t, err)
	require.Len(t, created, 1)

	pasted := created[0]
	assert.NotEqual(t, source.ID, pasted.ID)
	assert.Equal(t, "source", pasted.Name)
	assert.Equal(t, "a.go", pasted.FilePath)
	assert.Equal(t, 7, pasted.LineNumber)
	assert.Equal(t, "x := 1", pasted.CodeSnippet)
	assert.Equal(t, "kept on paste", pasted.Description)

	graph, err := provider.GetCurrentGraph(ctx)
	require.NoError(t, err)
	storedTarget, ok := graph.Node(target.ID)
	require.True(t, ok)
	assert.Equal(t, []string{pasted.ID}, storedTarget.ChildIDs)

	// The original is untouched by a copy paste.
	_, ok = graph.Node(source.ID)
	assert.True(t, ok)
	require.NoError(t, graph.Validate())
}

func TestCopyPasteSubtree(t *testing.T) {
	ctx := context.Background()
	clipboard, nodes, provider, _ := newClipboardEnv(t)

	root, err := nodes.CreateNode(ctx, "root", "a.go", 1, "")
	require.NoError(t, err)
	left, err := nodes.CreateChildNode(ctx, root.ID, "left", "a.go", 2)
	require.NoError(t, err)
	_, err = nodes.CreateChildNode(ctx, root.ID, "right", "a.go", 3)
	require.NoError(t, err)
	_, err = nodes.CreateChildNode(ctx, left.ID, "left leaf", "a.go", 4)
	require.NoError(t, err)

	require.NoError(t, clipboard.CopyNode(ctx, root.ID))

	info := clipboard.Info()
	require.NotNil(t, info)
	assert.Equal(t, ClipboardOpCopy, info.Operation)
	assert.Equal(t, "root", info.NodeName)
	assert.Equal(t, 4, info.NodeCount)

	created, err := clipboard.PasteNode(ctx, "")
	require.NoError(t, err)
	require.Len(t, created, 4)

	graph, err := provider.GetCurrentGraph(ctx)
	require.NoError(t, err)
	require.NoError(t, graph.Validate())

	// Every created node carries a fresh id.
	originals := map[string]bool{}
	for _, id := range []string{root.ID, left.ID} {
		originals[id] = true
	}
	for _, n := range created {
		assert.False(t, originals[n.ID])
	}

	// The pasted root mirrors the source shape: two children, the first
	// carrying one leaf.
	pastedRoot, ok := graph.Node(created[0].ID)
	require.True(t, ok)
	assert.Nil(t, pastedRoot.ParentID)
	require.Len(t, pastedRoot.ChildIDs, 2)
	pastedLeft, ok := graph.Node(pastedRoot.ChildIDs[0])
	require.True(t, ok)
	assert.Equal(t, "left", pastedLeft.Name)
	require.Len(t, pastedLeft.ChildIDs, 1)

	assert.Len(t, graph.Nodes, 8)
}

func TestPasteEmptyClipboard(t *testing.T) {
	ctx := context.Background()
	clipboard, nodes, _, _ := newClipboardEnv(t)

	_, err := nodes.CreateNode(ctx, "n", "a.go", 1, "")
	require.NoError(t, err)

	_, err = clipboard.PasteNode(ctx, "")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsValidation(err))
}

func TestCutPaste(t *testing.T) {
	ctx := context.Background()

	t.Run("deletes the original after a successful paste", func(t *testing.T) {
		clipboard, nodes, provider, _ := newClipboardEnv(t)

		doomed, err := nodes.CreateNode(ctx, "doomed", "a.go", 1, "")
		require.NoError(t, err)
		_, err = nodes.CreateChildNode(ctx, doomed.ID, "descendant", "a.go", 2)
		require.NoError(t, err)
		target, err := nodes.CreateNode(ctx, "target", "b.go", 1, "")
		require.NoError(t, err)

		require.NoError(t, clipboard.CutNode(ctx, doomed.ID))

		// Cut alone never removes anything.
		graph, err := provider.GetCurrentGraph(ctx)
		require.NoError(t, err)
		_, ok := graph.Node(doomed.ID)
		assert.True(t, ok)

		created, err := clipboard.PasteNode(ctx, target.ID)
		require.NoError(t, err)
		require.Len(t, created, 2)

		graph, err = provider.GetCurrentGraph(ctx)
		require.NoError(t, err)
		_, ok = graph.Node(doomed.ID)
		assert.False(t, ok)
		require.NoError(t, graph.Validate())

		// Repeat pastes behave like pastes of a copy.
		info := clipboard.Info()
		require.NotNil(t, info)
		assert.Equal(t, ClipboardOpCopy, info.Operation)

		again, err := clipboard.PasteNode(ctx, target.ID)
		require.NoError(t, err)
		require.Len(t, again, 2)
	})

	t.Run("rejects a target inside the cut subtree", func(t *testing.T) {
		clipboard, nodes, provider, _ := newClipboardEnv(t)

		root, err := nodes.CreateNode(ctx, "root", "a.go", 1, "")
		require.NoError(t, err)
		child, err := nodes.CreateChildNode(ctx, root.ID, "child", "a.go", 2)
		require.NoError(t, err)

		require.NoError(t, clipboard.CutNode(ctx, root.ID))

		for _, target := range []string{root.ID, child.ID} {
			_, err = clipboard.PasteNode(ctx, target)
			require.Error(t, err)
			assert.True(t, pkgerrors.IsValidation(err))
		}

		// Nothing was created or deleted, and the slot is still a cut.
		graph, err := provider.GetCurrentGraph(ctx)
		require.NoError(t, err)
		assert.Len(t, graph.Nodes, 2)
		info := clipboard.Info()
		require.NotNil(t, info)
		assert.Equal(t, ClipboardOpCut, info.Operation)
	})

	t.Run("keeps the original when the clipboard is cleared first", func(t *testing.T) {
		clipboard, nodes, provider, _ := newClipboardEnv(t)

		node, err := nodes.CreateNode(ctx, "kept", "a.go", 1, "")
		require.NoError(t, err)
		require.NoError(t, clipboard.CutNode(ctx, node.ID))
		clipboard.Clear()

		graph, err := provider.GetCurrentGraph(ctx)
		require.NoError(t, err)
		_, ok := graph.Node(node.ID)
		assert.True(t, ok)
	})

	t.Run("swallows a delete failure after the paste landed", func(t *testing.T) {
		clipboard, nodes, provider, _ := newClipboardEnv(t)

		doomed, err := nodes.CreateNode(ctx, "doomed", "a.go", 1, "")
		require.NoError(t, err)
		target, err := nodes.CreateNode(ctx, "target", "b.go", 1, "")
		require.NoError(t, err)
		require.NoError(t, clipboard.CutNode(ctx, doomed.ID))

		// Let the paste's create and update through, then fail the save
		// that would remove the original.
		provider.failAfter = provider.saves + 2

		created, err := clipboard.PasteNode(ctx, target.ID)
		require.NoError(t, err)
		require.Len(t, created, 1)

		provider.failAfter = 0
		graph, err := provider.GetCurrentGraph(ctx)
		require.NoError(t, err)
		_, ok := graph.Node(doomed.ID)
		assert.True(t, ok)
		_, ok = graph.Node(created[0].ID)
		assert.True(t, ok)
	})
}

func TestClipboardPresence(t *testing.T) {
	ctx := context.Background()
	clipboard, nodes, _, signal := newClipboardEnv(t)

	assert.False(t, clipboard.HasData())
	assert.Nil(t, clipboard.Info())

	node, err := nodes.CreateNode(ctx, "n", "a.go", 1, "")
	require.NoError(t, err)

	require.NoError(t, clipboard.CopyNode(ctx, node.ID))
	assert.True(t, clipboard.HasData())
	assert.Equal(t, []bool{true}, signal.changes)

	// A second capture overwrites the slot.
	require.NoError(t, clipboard.CutNode(ctx, node.ID))
	info := clipboard.Info()
	require.NotNil(t, info)
	assert.Equal(t, ClipboardOpCut, info.Operation)

	clipboard.Clear()
	assert.False(t, clipboard.HasData())
	assert.Equal(t, []bool{true, true, false}, signal.changes)

	// Clearing an already empty clipboard stays silent.
	clipboard.Clear()
	assert.Equal(t, []bool{true, true, false}, signal.changes)
}

func TestClipboardMissingNode(t *testing.T) {
	ctx := context.Background()
	clipboard, nodes, _, _ := newClipboardEnv(t)

	_, err := nodes.CreateNode(ctx, "n", "a.go", 1, "")
	require.NoError(t, err)

	err = clipboard.CopyNode(ctx, "missing")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsNotFound(err))
	assert.False(t, clipboard.HasData())
}
