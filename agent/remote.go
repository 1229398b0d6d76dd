package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Mode selects how remote phase calls are invoked.
type Mode string

const (
	// ModeSync 一次请求直接返回结果
	ModeSync Mode = "sync"
	// ModeAsync 提交后轮询任务状态直到完成
	ModeAsync Mode = "async"
)

// DefaultRemoteTimeout bounds each remote phase call.
const DefaultRemoteTimeout = 120 * time.Second

// asyncPollInterval is the delay between task-status polls in async mode.
const asyncPollInterval = 2 * time.Second

// RemoteConfig configures a remote agent adapter.
type RemoteConfig struct {
	Name         string
	Domain       string
	BaseURL      string
	APIKey       string
	APIKeyEnv    string // env var holding the key; persisted instead of the key
	Capabilities []string
	Mode         Mode
	Timeout      time.Duration
}

// RemoteAgent adapts the [Agent] contract onto an HTTP boundary. Each phase
// call serializes the task plus phase context into one request and
// deserializes the typed result. Transport failures surface as errors; the
// orchestrator records the agent absent for that phase.
//
// Wire surface expected from the remote service:
//
//	POST {base}/analyze    {task}                      -> Analysis
//	POST {base}/challenge  {task, other_analyses}      -> Challenge
//	POST {base}/vote       {task, synthesis}           -> Vote
//	GET  {base}/health                                 -> 2xx when alive
//	GET  {base}/tasks/{id}  (async mode poll)          -> {status, result}
type RemoteAgent struct {
	name      string
	domain    string
	baseURL   string
	apiKey    string
	apiKeyEnv string
	mode      Mode
	timeout   time.Duration
	client    *http.Client
	logger    *zap.Logger
}

// NewRemoteAgent creates a remote adapter from config.
func NewRemoteAgent(cfg RemoteConfig, logger *zap.Logger) *RemoteAgent {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultRemoteTimeout
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeSync
	}
	if cfg.APIKeyEnv == "" {
		cfg.APIKeyEnv = DefaultAPIKeyEnv(cfg.Name)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv(cfg.APIKeyEnv)
	}
	return &RemoteAgent{
		name:      cfg.Name,
		domain:    cfg.Domain,
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:    cfg.APIKey,
		apiKeyEnv: cfg.APIKeyEnv,
		mode:      cfg.Mode,
		timeout:   cfg.Timeout,
		client:    &http.Client{Timeout: cfg.Timeout},
		logger:    logger.With(zap.String("component", "remote_agent"), zap.String("agent", cfg.Name)),
	}
}

// DefaultAPIKeyEnv returns the conventional env var name for an agent's
// credential: AGENT_{NAME}_API_KEY.
func DefaultAPIKeyEnv(name string) string {
	upper := strings.ToUpper(strings.NewReplacer("-", "_", " ", "_", ".", "_").Replace(name))
	return "AGENT_" + upper + "_API_KEY"
}

func (r *RemoteAgent) Name() string   { return r.name }
func (r *RemoteAgent) Domain() string { return r.domain }

// BaseURL returns the adapter's endpoint.
func (r *RemoteAgent) BaseURL() string { return r.baseURL }

// Analyze runs the Phase 1 call over the wire.
func (r *RemoteAgent) Analyze(ctx context.Context, task *Task) (*Analysis, error) {
	var out Analysis
	if err := r.phaseCall(ctx, "analyze", map[string]any{"task": task}, &out); err != nil {
		return nil, err
	}
	if out.AgentName == "" {
		out.AgentName = r.name
	}
	if out.Domain == "" {
		out.Domain = r.domain
	}
	return &out, nil
}

// Challenge runs the Phase 2 call with every agent's analysis as context.
func (r *RemoteAgent) Challenge(ctx context.Context, task *Task, analyses []*Analysis) (*Challenge, error) {
	var out Challenge
	body := map[string]any{"task": task, "other_analyses": analyses}
	if err := r.phaseCall(ctx, "challenge", body, &out); err != nil {
		return nil, err
	}
	if out.AgentName == "" {
		out.AgentName = r.name
	}
	return &out, nil
}

// Vote runs the Phase 3 call with the round synthesis as context.
func (r *RemoteAgent) Vote(ctx context.Context, task *Task, synthesis *Synthesis) (*Vote, error) {
	var out Vote
	body := map[string]any{"task": task, "synthesis": synthesis}
	if err := r.phaseCall(ctx, "vote", body, &out); err != nil {
		return nil, err
	}
	if out.AgentName == "" {
		out.AgentName = r.name
	}
	return &out, nil
}

// phaseCall dispatches one phase request in the configured mode.
func (r *RemoteAgent) phaseCall(ctx context.Context, phase string, body map[string]any, out any) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if r.mode == ModeAsync {
		return r.asyncCall(ctx, phase, body, out)
	}
	return r.post(ctx, "/"+phase, body, out)
}

// asyncCall submits the phase request and polls the task endpoint until the
// remote side reports completion or the timeout expires.
func (r *RemoteAgent) asyncCall(ctx context.Context, phase string, body map[string]any, out any) error {
	var submitted struct {
		TaskID string `json:"task_id"`
	}
	if err := r.post(ctx, "/"+phase, body, &submitted); err != nil {
		return err
	}
	if submitted.TaskID == "" {
		return fmt.Errorf("%s: async submit returned no task_id", phase)
	}

	ticker := time.NewTicker(asyncPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s: %w", phase, ErrAsyncTimeout)
		case <-ticker.C:
			var status struct {
				Status string          `json:"status"`
				Result json.RawMessage `json:"result"`
				Error  string          `json:"error"`
			}
			if err := r.get(ctx, "/tasks/"+submitted.TaskID, &status); err != nil {
				return err
			}
			switch status.Status {
			case "completed":
				return json.Unmarshal(status.Result, out)
			case "failed":
				return fmt.Errorf("%s: remote task failed: %s", phase, status.Error)
			}
			// pending/running: keep polling
		}
	}
}

func (r *RemoteAgent) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	r.authorize(req)
	return r.do(req, out)
}

func (r *RemoteAgent) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+path, nil)
	if err != nil {
		return err
	}
	r.authorize(req)
	return r.do(req, out)
}

func (r *RemoteAgent) authorize(req *http.Request) {
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}
}

func (r *RemoteAgent) do(req *http.Request, out any) error {
	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("remote call %s: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return fmt.Errorf("read remote response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: %s %d", ErrRemoteStatus, req.URL.Path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode remote response from %s: %w", req.URL.Path, err)
	}
	return nil
}

// HealthCheck performs a lightweight liveness probe. Advisory only: an
// unhealthy agent still joins rounds unless policy excludes it, so one
// transient probe failure never silently drops a participant.
func (r *RemoteAgent) HealthCheck(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	r.authorize(req)

	resp, err := r.client.Do(req)
	if err != nil {
		r.logger.Debug("health check failed", zap.Error(err))
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// persistedRemote is the persistence-safe projection of a remote agent.
// The credential itself is never written; only the env var that holds it.
type persistedRemote struct {
	Name         string   `json:"name"`
	Domain       string   `json:"domain"`
	BaseURL      string   `json:"base_url"`
	APIKeyEnv    string   `json:"api_key_env"`
	TimeoutSecs  float64  `json:"timeout"`
	Mode         Mode     `json:"mode"`
	Capabilities []string `json:"capabilities"`
}

// snapshot returns the persistence-safe projection.
func (r *RemoteAgent) snapshot() persistedRemote {
	return persistedRemote{
		Name:        r.name,
		Domain:      r.domain,
		BaseURL:     r.baseURL,
		APIKeyEnv:   r.apiKeyEnv,
		TimeoutSecs: r.timeout.Seconds(),
		Mode:        r.mode,
	}
}
