package executor_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cos-systems/cos/executor"
	"github.com/cos-systems/cos/manifest"
	"github.com/cos-systems/cos/microvm"
	"github.com/cos-systems/cos/value"
)

func TestLocalExecutor(t *testing.T) {
	l := executor.NewLocal()
	handler := executor.LocalHandlerFunc(func(ctx context.Context, args []value.Value) (value.Value, error) {
		return value.Int(args[0].AsInt() + args[1].AsInt()), nil
	})
	result, err := l.Execute(context.Background(), manifest.ProviderType{Kind: manifest.ProviderLocal, Handler: handler}, []value.Value{value.Int(2), value.Int(3)})
	require.NoError(t, err)
	assert.Equal(t, int64(5), result.AsInt())
}

func TestHTTPExecutorPositionalArgsAndBaseURLFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	h := executor.NewHTTP()
	provider := manifest.ProviderType{Kind: manifest.ProviderHTTP, BaseURL: srv.URL, AuthBearer: "tok"}
	result, err := h.Execute(context.Background(), provider, nil)
	require.NoError(t, err)
	require.Equal(t, value.TagMap, result.Tag())
	status, ok := result.MapGet(value.StringKey("status"))
	require.True(t, ok)
	assert.Equal(t, int64(200), status.AsInt())
}

func TestMicroVMPermissionEnforcement(t *testing.T) {
	mock := microvm.NewMock(nil)
	_, err := mock.ExecuteProgram(context.Background(), microvm.ExecutionContext{
		CapabilityID:          "ccos.system.shutdown",
		CapabilityPermissions: []string{"ccos.math.add"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Security violation")
}
