package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"codetrail/application/services"
	domaincfg "codetrail/domain/config"
	"codetrail/infrastructure/config"
	"codetrail/infrastructure/persistence/memory"
	"codetrail/infrastructure/relocation"
	"codetrail/interfaces/http/rest"
	"codetrail/pkg/observability"
)

// newServer builds the full HTTP stack against the in-memory store.
func newServer(t *testing.T) *httptest.Server {
	t.Helper()

	logger := zap.NewNop()
	cfg := &config.Config{
		ServerAddress: ":0",
		Environment:   "test",
		StorageDriver: config.DriverMemory,
		EnableMetrics: true,
		EnableCORS:    false,
	}
	store := memory.NewStore(logger)
	nodes := services.NewNodeManager(store, relocation.NewNoopRelocator(), domaincfg.DefaultDomainConfig(), logger)
	clipboard := services.NewClipboardManager(nodes, store, nil, logger)
	order := services.NewNodeOrderManager(nodes, store, logger)
	metrics := observability.NewCollector("codetrail_test")

	router := rest.NewRouter(nodes, clipboard, order, store, metrics, cfg, logger)
	server := httptest.NewServer(router.Setup())
	t.Cleanup(server.Close)
	return server
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func do(t *testing.T, server *httptest.Server, method, path string, body interface{}) (int, envelope) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, server.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, env
}

type nodePayload struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	ParentID *string  `json:"parentId"`
	ChildIDs []string `json:"childIds"`
}

func createNode(t *testing.T, server *httptest.Server, name, filePath string, line int) nodePayload {
	t.Helper()
	status, env := do(t, server, http.MethodPost, "/api/v1/nodes", map[string]interface{}{
		"name":       name,
		"filePath":   filePath,
		"lineNumber": line,
	})
	require.Equal(t, http.StatusCreated, status)
	var node nodePayload
	require.NoError(t, json.Unmarshal(env.Data, &node))
	return node
}

func TestTrailLifecycle(t *testing.T) {
	server := newServer(t)

	// Health first.
	status, _ := do(t, server, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, status)

	// Build a small trail.
	root := createNode(t, server, "request entry", "api/server.go", 40)

	status, env := do(t, server, http.MethodPost,
		fmt.Sprintf("/api/v1/nodes/%s/children", root.ID),
		map[string]interface{}{"name": "parse body", "filePath": "api/decode.go", "lineNumber": 12})
	require.Equal(t, http.StatusCreated, status)
	var child nodePayload
	require.NoError(t, json.Unmarshal(env.Data, &child))

	// Update through the partial-update surface.
	status, env = do(t, server, http.MethodPatch, "/api/v1/nodes/"+child.ID,
		map[string]interface{}{"description": "the JSON decoding step"})
	require.Equal(t, http.StatusOK, status)

	// Unknown update fields are rejected.
	status, env = do(t, server, http.MethodPatch, "/api/v1/nodes/"+child.ID,
		map[string]interface{}{"id": "hijack"})
	require.Equal(t, http.StatusBadRequest, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "VALIDATION", env.Error.Code)

	// Current node tracking.
	status, _ = do(t, server, http.MethodPut, "/api/v1/nodes/current",
		map[string]interface{}{"nodeId": child.ID})
	require.Equal(t, http.StatusOK, status)

	status, env = do(t, server, http.MethodGet, "/api/v1/nodes/current", nil)
	require.Equal(t, http.StatusOK, status)
	var current nodePayload
	require.NoError(t, json.Unmarshal(env.Data, &current))
	assert.Equal(t, child.ID, current.ID)

	// Search.
	status, env = do(t, server, http.MethodGet, "/api/v1/nodes/search?q=parse", nil)
	require.Equal(t, http.StatusOK, status)
	var found []nodePayload
	require.NoError(t, json.Unmarshal(env.Data, &found))
	require.Len(t, found, 1)
	assert.Equal(t, child.ID, found[0].ID)

	// Inserting a parent above a parented child forks the tree.
	status, env = do(t, server, http.MethodPost,
		fmt.Sprintf("/api/v1/nodes/%s/parent", child.ID),
		map[string]interface{}{"name": "decoding overview", "filePath": "api/decode.go", "lineNumber": 1})
	require.Equal(t, http.StatusCreated, status)
	var fork nodePayload
	require.NoError(t, json.Unmarshal(env.Data, &fork))
	assert.Nil(t, fork.ParentID)
	require.Len(t, fork.ChildIDs, 1)
	assert.NotEqual(t, child.ID, fork.ChildIDs[0])

	// The original child is still under the root, now childless.
	status, env = do(t, server, http.MethodGet, "/api/v1/nodes/"+child.ID, nil)
	require.Equal(t, http.StatusOK, status)
	var original nodePayload
	require.NoError(t, json.Unmarshal(env.Data, &original))
	require.NotNil(t, original.ParentID)
	assert.Equal(t, root.ID, *original.ParentID)
	assert.Empty(t, original.ChildIDs)
}

func TestClipboardOverHTTP(t *testing.T) {
	server := newServer(t)

	source := createNode(t, server, "source", "a.go", 1)
	target := createNode(t, server, "target", "b.go", 1)

	status, env := do(t, server, http.MethodGet, "/api/v1/clipboard", nil)
	require.Equal(t, http.StatusOK, status)
	var info struct {
		HasData bool `json:"hasData"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &info))
	assert.False(t, info.HasData)

	status, _ = do(t, server, http.MethodPost, "/api/v1/clipboard/cut",
		map[string]interface{}{"nodeId": source.ID})
	require.Equal(t, http.StatusOK, status)

	status, env = do(t, server, http.MethodPost, "/api/v1/clipboard/paste",
		map[string]interface{}{"targetParentId": target.ID})
	require.Equal(t, http.StatusCreated, status)
	var created []nodePayload
	require.NoError(t, json.Unmarshal(env.Data, &created))
	require.Len(t, created, 1)
	assert.NotEqual(t, source.ID, created[0].ID)

	// The cut source is gone.
	status, _ = do(t, server, http.MethodGet, "/api/v1/nodes/"+source.ID, nil)
	require.Equal(t, http.StatusNotFound, status)

	// Pasting from an empty clipboard is rejected.
	status, _ = do(t, server, http.MethodDelete, "/api/v1/clipboard", nil)
	require.Equal(t, http.StatusOK, status)
	status, env = do(t, server, http.MethodPost, "/api/v1/clipboard/paste",
		map[string]interface{}{})
	require.Equal(t, http.StatusBadRequest, status)
	require.NotNil(t, env.Error)
}

func TestOrderingOverHTTP(t *testing.T) {
	server := newServer(t)

	root := createNode(t, server, "root", "a.go", 1)
	var children []nodePayload
	for i, name := range []string{"A", "B", "C"} {
		status, env := do(t, server, http.MethodPost,
			fmt.Sprintf("/api/v1/nodes/%s/children", root.ID),
			map[string]interface{}{"name": name, "filePath": "a.go", "lineNumber": i + 2})
		require.Equal(t, http.StatusCreated, status)
		var n nodePayload
		require.NoError(t, json.Unmarshal(env.Data, &n))
		children = append(children, n)
	}

	status, env := do(t, server, http.MethodPost,
		fmt.Sprintf("/api/v1/nodes/%s/order/up", children[2].ID), nil)
	require.Equal(t, http.StatusOK, status)
	var moved map[string]bool
	require.NoError(t, json.Unmarshal(env.Data, &moved))
	assert.True(t, moved["moved"])

	status, env = do(t, server, http.MethodGet,
		fmt.Sprintf("/api/v1/nodes/%s/order", children[2].ID), nil)
	require.Equal(t, http.StatusOK, status)
	var position struct {
		Position *struct {
			Position int `json:"position"`
			Total    int `json:"total"`
		} `json:"position"`
		CanMoveUp   bool `json:"canMoveUp"`
		CanMoveDown bool `json:"canMoveDown"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &position))
	require.NotNil(t, position.Position)
	assert.Equal(t, 2, position.Position.Position)
	assert.Equal(t, 3, position.Position.Total)
	assert.True(t, position.CanMoveUp)
	assert.True(t, position.CanMoveDown)

	// Move to an explicit position.
	status, env = do(t, server, http.MethodPut,
		fmt.Sprintf("/api/v1/nodes/%s/order", children[0].ID),
		map[string]interface{}{"position": 3})
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(env.Data, &moved))
	assert.True(t, moved["moved"])

	status, env = do(t, server, http.MethodGet, "/api/v1/nodes/"+root.ID, nil)
	require.Equal(t, http.StatusOK, status)
	var storedRoot nodePayload
	require.NoError(t, json.Unmarshal(env.Data, &storedRoot))
	assert.Equal(t, []string{children[2].ID, children[1].ID, children[0].ID}, storedRoot.ChildIDs)
}

func TestGraphEndpoints(t *testing.T) {
	server := newServer(t)

	createNode(t, server, "seed", "a.go", 1)

	status, env := do(t, server, http.MethodGet, "/api/v1/graphs", nil)
	require.Equal(t, http.StatusOK, status)
	var summaries []struct {
		ID        string `json:"id"`
		Name      string `json:"name"`
		NodeCount int    `json:"nodeCount"`
		Current   bool   `json:"current"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &summaries))
	require.Len(t, summaries, 1)
	assert.True(t, summaries[0].Current)
	assert.Equal(t, 1, summaries[0].NodeCount)

	status, env = do(t, server, http.MethodPost, "/api/v1/graphs",
		map[string]interface{}{"name": "another trail"})
	require.Equal(t, http.StatusCreated, status)

	status, env = do(t, server, http.MethodGet, "/api/v1/graphs", nil)
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(env.Data, &summaries))
	assert.Len(t, summaries, 2)
}
