package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentcouncil/roundtable/agent"
	"github.com/agentcouncil/roundtable/config"
	"github.com/agentcouncil/roundtable/deliberation"
)

func newTestServer(t *testing.T, mutate func(*config.Config)) (*httptest.Server, *agent.Registry) {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.API.RateLimit.Enabled = false
	if mutate != nil {
		mutate(cfg)
	}

	registry := agent.NewRegistry(nil, agent.WithPersistPath(""))
	local, err := agent.NewLocalAgent(agent.LocalConfig{Name: "sec", Domain: "security"}, nil, nil)
	require.NoError(t, err)
	require.NoError(t, registry.RegisterLocal(local, []string{"code-review"}))

	dcfg := deliberation.DefaultConfig()
	dcfg.DisableCoreAgents = true
	table := deliberation.NewRoundTable(registry, nil, dcfg, nil)

	srv := NewServer(cfg, registry, table, nil, nil, nil, nil)
	ts := httptest.NewServer(srv.Handler(context.Background()))
	t.Cleanup(ts.Close)
	return ts, registry
}

func getJSON(t *testing.T, ts *httptest.Server, path string, out any) int {
	t.Helper()
	resp, err := http.Get(ts.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func postJSON(t *testing.T, ts *httptest.Server, path, body string, out any) int {
	t.Helper()
	resp, err := http.Post(ts.URL+path, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestServer_Healthz(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	var body map[string]any
	status := getJSON(t, ts, "/healthz", &body)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])
	assert.EqualValues(t, 1, body["agents"])
}

func TestServer_RunRound(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	t.Run("missing content rejected", func(t *testing.T) {
		status := postJSON(t, ts, "/api/v1/rounds", `{"content":"  "}`, nil)
		assert.Equal(t, http.StatusBadRequest, status)
	})

	t.Run("round completes without a backend", func(t *testing.T) {
		var result deliberation.RoundResult
		status := postJSON(t, ts, "/api/v1/rounds", `{"content":"ship the migration?"}`, &result)
		require.Equal(t, http.StatusOK, status)

		assert.NotEmpty(t, result.TaskID)
		require.Len(t, result.Analyses, 1)
		assert.Equal(t, "sec", result.Analyses[0].AgentName)
		// Placeholder mode dissents, so no consensus.
		assert.False(t, result.ConsensusReached)
	})

	t.Run("unknown capability gives empty pool conflict", func(t *testing.T) {
		status := postJSON(t, ts, "/api/v1/rounds", `{"content":"x","capabilities":["nonexistent"]}`, nil)
		assert.Equal(t, http.StatusConflict, status)
	})
}

func TestServer_RunRound_CapabilityIntersection(t *testing.T) {
	ts, registry := newTestServer(t, nil)

	ops, err := agent.NewLocalAgent(agent.LocalConfig{Name: "ops", Domain: "operations"}, nil, nil)
	require.NoError(t, err)
	require.NoError(t, registry.RegisterLocal(ops, []string{"code-review", "deployment"}))

	t.Run("shared tag selects both agents", func(t *testing.T) {
		var result deliberation.RoundResult
		status := postJSON(t, ts, "/api/v1/rounds", `{"content":"x","capabilities":["code-review"]}`, &result)
		require.Equal(t, http.StatusOK, status)
		assert.Len(t, result.Analyses, 2)
	})

	t.Run("all tags narrow the pool", func(t *testing.T) {
		var result deliberation.RoundResult
		status := postJSON(t, ts, "/api/v1/rounds", `{"content":"x","capabilities":["code-review","deployment"]}`, &result)
		require.Equal(t, http.StatusOK, status)
		require.Len(t, result.Analyses, 1)
		assert.Equal(t, "ops", result.Analyses[0].AgentName)
	})

	t.Run("one unmatched tag empties the pool", func(t *testing.T) {
		status := postJSON(t, ts, "/api/v1/rounds", `{"content":"x","capabilities":["code-review","nonexistent"]}`, nil)
		assert.Equal(t, http.StatusConflict, status)
	})
}

func TestServer_AgentEndpoints(t *testing.T) {
	ts, registry := newTestServer(t, nil)

	t.Run("list", func(t *testing.T) {
		var body struct {
			Agents []map[string]any `json:"agents"`
			Count  int              `json:"count"`
		}
		status := getJSON(t, ts, "/api/v1/agents", &body)
		require.Equal(t, http.StatusOK, status)
		require.Equal(t, 1, body.Count)
		assert.Equal(t, "sec", body.Agents[0]["name"])
	})

	t.Run("register remote", func(t *testing.T) {
		status := postJSON(t, ts, "/api/v1/agents",
			`{"name":"reviewer","domain":"code review","base_url":"http://reviewer:9000","capabilities":["code-review"]}`, nil)
		assert.Equal(t, http.StatusCreated, status)
		assert.Equal(t, 1, registry.RemoteCount())
	})

	t.Run("register without base_url rejected", func(t *testing.T) {
		status := postJSON(t, ts, "/api/v1/agents", `{"name":"x","domain":"y"}`, nil)
		assert.Equal(t, http.StatusBadRequest, status)
	})

	t.Run("unregister", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodDelete, ts.URL+"/api/v1/agents/reviewer", nil)
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)

		resp, err = http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("health report", func(t *testing.T) {
		var body struct {
			Agents map[string]bool `json:"agents"`
		}
		status := getJSON(t, ts, "/api/v1/agents/health", &body)
		require.Equal(t, http.StatusOK, status)
		assert.True(t, body.Agents["sec"])
	})
}

func TestServer_DisabledBackends(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	assert.Equal(t, http.StatusServiceUnavailable, postJSON(t, ts, "/api/v1/sessions", `{}`, nil))
	assert.Equal(t, http.StatusServiceUnavailable, getJSON(t, ts, "/api/v1/sessions/session_x", nil))
	assert.Equal(t, http.StatusServiceUnavailable, getJSON(t, ts, "/api/v1/rounds/task-1", nil))
	assert.Equal(t, http.StatusServiceUnavailable, getJSON(t, ts, "/api/v1/rounds", nil))
}

func TestServer_APIKeyAuth(t *testing.T) {
	ts, _ := newTestServer(t, func(cfg *config.Config) {
		cfg.API.APIKeys = []string{"valid-key"}
	})

	t.Run("health is exempt", func(t *testing.T) {
		assert.Equal(t, http.StatusOK, getJSON(t, ts, "/healthz", nil))
	})

	t.Run("missing key rejected", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, getJSON(t, ts, "/api/v1/agents", nil))
	})

	t.Run("valid key accepted", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/v1/agents", nil)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer valid-key")
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
}

func TestServer_RequestIDPropagation(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/healthz", nil)
	require.NoError(t, err)
	req.Header.Set("X-Request-ID", "caller-supplied-id")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "caller-supplied-id", resp.Header.Get("X-Request-ID"))

	resp2, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	resp2.Body.Close()
	assert.NotEmpty(t, resp2.Header.Get("X-Request-ID"))
}
