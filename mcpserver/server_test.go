package mcpserver_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cos-systems/cos/approval"
	"github.com/cos-systems/cos/executor"
	"github.com/cos-systems/cos/manifest"
	"github.com/cos-systems/cos/marketplace"
	"github.com/cos-systems/cos/mcpclient"
	"github.com/cos-systems/cos/mcpserver"
	"github.com/cos-systems/cos/store/memory"
	"github.com/cos-systems/cos/telemetry"
	"github.com/cos-systems/cos/value"
)

func newTestMarketplace(t *testing.T) *marketplace.Marketplace {
	t.Helper()
	mp := marketplace.New(telemetry.NewNoopLogger())
	mp.RegisterExecutor(manifest.ProviderLocal, executor.NewLocal())
	require.NoError(t, mp.RegisterLocal("cos.echo", "echo", "echoes its named arguments back", executor.LocalHandlerFunc(
		func(ctx context.Context, args []value.Value) (value.Value, error) {
			if len(args) == 0 {
				return value.EmptyMap(), nil
			}
			return args[0], nil
		},
	)))
	return mp
}

func TestServerInitializeThenToolsCallRoundTrips(t *testing.T) {
	mp := newTestMarketplace(t)
	queue := approval.New(memory.New())
	srv := mcpserver.New(mp, queue)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	client := mcpclient.New(ts.URL+"/mcp", mcpclient.Options{})
	require.NoError(t, client.Initialize(context.Background(), mcpclient.Options{}))

	tools, err := client.ListTools(context.Background())
	require.NoError(t, err)
	require.Len(t, tools, 1)
	assert.Equal(t, "cos.echo", tools[0].Name)

	resp, err := client.CallTool(context.Background(), "cos.echo", map[string]any{"hello": "world"})
	require.NoError(t, err)
	assert.False(t, resp.IsError)
	assert.JSONEq(t, `{"hello":"world"}`, string(resp.Result))
}

func TestServerToolsCallWithoutSessionFails(t *testing.T) {
	mp := newTestMarketplace(t)
	srv := mcpserver.New(mp, nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	client := mcpclient.New(ts.URL+"/mcp", mcpclient.Options{})
	_, err := client.ListTools(context.Background())
	require.Error(t, err)
}

func TestServerHealth(t *testing.T) {
	mp := newTestMarketplace(t)
	srv := mcpserver.New(mp, nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(1), body["capabilities"])
}

func TestServerApprovalDecideRoundTrips(t *testing.T) {
	mp := newTestMarketplace(t)
	queue := approval.New(memory.New())
	id, err := queue.Enqueue(context.Background(), approval.Request{
		Category: approval.CategoryPlanGate,
		Reason:   "test",
	})
	require.NoError(t, err)

	srv := mcpserver.New(mp, queue)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/approvals")
	require.NoError(t, err)
	defer resp.Body.Close()
	var pending []approval.Request
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&pending))
	require.Len(t, pending, 1)
	assert.Equal(t, id, pending[0].ApprovalID)

	decideResp, err := http.Post(ts.URL+"/api/approvals/"+id+"/approve", "application/json", nil)
	require.NoError(t, err)
	defer decideResp.Body.Close()
	assert.Equal(t, http.StatusNoContent, decideResp.StatusCode)

	req, err := queue.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, approval.StatusApproved, req.Status)
}

func TestServerTerminateUnknownSessionNotFound(t *testing.T) {
	mp := newTestMarketplace(t)
	srv := mcpserver.New(mp, nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/mcp", nil)
	require.NoError(t, err)
	req.Header.Set("Mcp-Session-Id", "does-not-exist")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
