package statusapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelav/streamcore/internal/config"
	"github.com/kestrelav/streamcore/internal/orchestrator"
)

func TestServer_GetStatus_ReflectsPipelineState(t *testing.T) {
	pipeline := orchestrator.New(nil, nil)
	srv := New(config.ServerConfig{Host: "127.0.0.1", Port: 0}, pipeline, nil, "test")

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		State       string `json:"state"`
		IsOpen      bool   `json:"is_open"`
		IsStreaming bool   `json:"is_streaming"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "idle", body.State)
	assert.False(t, body.IsOpen)
	assert.False(t, body.IsStreaming)
}
