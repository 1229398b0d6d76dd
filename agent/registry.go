package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// AgentType tags how a registry entry participates.
type AgentType string

const (
	TypeLocal  AgentType = "local"
	TypeRemote AgentType = "remote"
)

// Visibility controls which tenants can see an entry.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityTeam    Visibility = "team"
	VisibilityPrivate Visibility = "private"
)

// DefaultTenant is used when a registration carries no tenant.
const DefaultTenant = "default"

// DefaultPersistPath is where remote registrations are stored.
const DefaultPersistPath = ".roundtable/agents.json"

// Entry wraps a registered agent with registry-owned metadata. The registry
// exclusively owns entries; rounds only borrow the agent reference.
type Entry struct {
	Agent        Agent      `json:"-"`
	Type         AgentType  `json:"agent_type"`
	Capabilities []string   `json:"capabilities"`
	Healthy      bool       `json:"healthy"`
	Visibility   Visibility `json:"visibility"`
	TenantID     string     `json:"tenant_id"`
}

// Info returns a serializable view of the entry for API responses.
func (e *Entry) Info() map[string]any {
	info := map[string]any{
		"name":         e.Agent.Name(),
		"domain":       e.Agent.Domain(),
		"agent_type":   e.Type,
		"capabilities": e.Capabilities,
		"healthy":      e.Healthy,
		"visibility":   e.Visibility,
		"tenant_id":    e.TenantID,
	}
	if remote, ok := e.Agent.(*RemoteAgent); ok {
		info["base_url"] = remote.baseURL
		info["mode"] = remote.mode
	}
	return info
}

// Registry owns the name -> entry mapping for all participants.
//
// Remote registrations persist to JSON so they survive restarts; local
// agents are in-process objects and must be re-registered on startup.
// Reads are safe against concurrently running rounds; a round captures its
// pool once and is unaffected by later mutations.
type Registry struct {
	mu          sync.RWMutex
	entries     map[string]*Entry
	order       []string // insertion order fixes report order in rounds
	persistPath string
	logger      *zap.Logger
}

// RegistryOption customizes registry construction.
type RegistryOption func(*Registry)

// WithPersistPath overrides the remote-registration persistence file. An
// empty path disables persistence entirely.
func WithPersistPath(path string) RegistryOption {
	return func(r *Registry) { r.persistPath = path }
}

// NewRegistry creates a registry and loads any persisted remote
// registrations. Credentials are resolved from their named environment
// variables at load time, never from the file; an unset variable registers
// the agent with an empty credential instead of failing startup.
func NewRegistry(logger *zap.Logger, opts ...RegistryOption) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{
		entries:     make(map[string]*Entry),
		persistPath: DefaultPersistPath,
		logger:      logger.With(zap.String("component", "agent_registry")),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.loadRemoteAgents()
	return r
}

// persistFile is the on-disk format for remote registrations.
type persistFile struct {
	RemoteAgents []persistedRemote `json:"remote_agents"`
}

func (r *Registry) loadRemoteAgents() {
	if r.persistPath == "" {
		return
	}
	raw, err := os.ReadFile(r.persistPath)
	if err != nil {
		if !os.IsNotExist(err) {
			r.logger.Warn("failed to read persisted agents", zap.Error(err))
		}
		return
	}

	var file persistFile
	if err := json.Unmarshal(raw, &file); err != nil {
		r.logger.Warn("failed to parse persisted agents", zap.Error(err))
		return
	}

	for _, p := range file.RemoteAgents {
		keyEnv := p.APIKeyEnv
		if keyEnv == "" {
			keyEnv = DefaultAPIKeyEnv(p.Name)
		}
		timeout := time.Duration(p.TimeoutSecs * float64(time.Second))

		remote := NewRemoteAgent(RemoteConfig{
			Name:      p.Name,
			Domain:    p.Domain,
			BaseURL:   p.BaseURL,
			APIKeyEnv: keyEnv,
			Mode:      p.Mode,
			Timeout:   timeout,
		}, r.logger)

		r.put(p.Name, &Entry{
			Agent:        remote,
			Type:         TypeRemote,
			Capabilities: p.Capabilities,
			Healthy:      true,
			Visibility:   VisibilityPublic,
			TenantID:     DefaultTenant,
		})
	}

	r.logger.Info("loaded persisted remote agents",
		zap.Int("count", len(file.RemoteAgents)),
		zap.String("path", r.persistPath),
	)
}

// saveRemoteAgents rewrites the persistence file in full. Caller must hold
// the write lock.
func (r *Registry) saveRemoteAgents() error {
	if r.persistPath == "" {
		return nil
	}
	var file persistFile
	for _, name := range r.order {
		entry := r.entries[name]
		if entry.Type != TypeRemote {
			continue
		}
		remote, ok := entry.Agent.(*RemoteAgent)
		if !ok {
			continue
		}
		p := remote.snapshot()
		p.Capabilities = entry.Capabilities
		file.RemoteAgents = append(file.RemoteAgents, p)
	}

	raw, err := json.MarshalIndent(&file, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal persisted agents: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(r.persistPath), 0o755); err != nil {
		return fmt.Errorf("create persist dir: %w", err)
	}
	if err := os.WriteFile(r.persistPath, raw, 0o600); err != nil {
		return fmt.Errorf("write persisted agents: %w", err)
	}

	r.logger.Debug("saved remote agents", zap.Int("count", len(file.RemoteAgents)))
	return nil
}

// put inserts or replaces an entry, preserving insertion order. Re-using a
// name keeps the original position. Caller must hold the write lock (or be
// in single-threaded construction).
func (r *Registry) put(name string, entry *Entry) {
	if _, exists := r.entries[name]; !exists {
		r.order = append(r.order, name)
	}
	r.entries[name] = entry
}

// RegisterLocal adds an in-process participant. Registration is not
// persisted. Re-registering an existing name replaces the prior entry and
// logs a warning.
func (r *Registry) RegisterLocal(a Agent, capabilities []string) error {
	if a == nil || a.Name() == "" || a.Domain() == "" {
		return ErrMissingIdentity
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	name := a.Name()
	if _, exists := r.entries[name]; exists {
		r.logger.Warn("replacing existing agent", zap.String("agent", name))
	}
	r.put(name, &Entry{
		Agent:        a,
		Type:         TypeLocal,
		Capabilities: capabilities,
		Healthy:      true,
		Visibility:   VisibilityPublic,
		TenantID:     DefaultTenant,
	})

	r.logger.Info("registered local agent", zap.String("agent", name))
	return nil
}

// RegisterRemote constructs a remote adapter, stores it, and persists the
// registration with the credential replaced by its env var reference.
func (r *Registry) RegisterRemote(cfg RemoteConfig) (*RemoteAgent, error) {
	if cfg.Name == "" || cfg.Domain == "" {
		return nil, ErrMissingIdentity
	}

	remote := NewRemoteAgent(cfg, r.logger)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[cfg.Name]; exists {
		r.logger.Warn("replacing existing agent", zap.String("agent", cfg.Name))
	}
	r.put(cfg.Name, &Entry{
		Agent:        remote,
		Type:         TypeRemote,
		Capabilities: cfg.Capabilities,
		Healthy:      true,
		Visibility:   VisibilityPublic,
		TenantID:     DefaultTenant,
	})

	if err := r.saveRemoteAgents(); err != nil {
		r.logger.Warn("failed to persist remote agents", zap.Error(err))
	}

	r.logger.Info("registered remote agent",
		zap.String("agent", cfg.Name),
		zap.String("base_url", cfg.BaseURL),
	)
	return remote, nil
}

// Unregister removes an entry and reports whether anything was removed.
// The persistence file is rewritten only when a remote entry was removed.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, exists := r.entries[name]
	if !exists {
		return false
	}
	delete(r.entries, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}

	if entry.Type == TypeRemote {
		if err := r.saveRemoteAgents(); err != nil {
			r.logger.Warn("failed to persist remote agents", zap.Error(err))
		}
	}

	r.logger.Info("unregistered agent", zap.String("agent", name))
	return true
}

// Get returns the agent registered under name, or nil.
func (r *Registry) Get(name string) Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if entry, ok := r.entries[name]; ok {
		return entry.Agent
	}
	return nil
}

// GetEntry returns the full entry for name, or nil.
func (r *Registry) GetEntry(name string) *Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entries[name]
}

// GetAll returns every registered agent in registration order. The slice is
// a snapshot; later registry mutations do not affect it.
func (r *Registry) GetAll() []Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	agents := make([]Agent, 0, len(r.order))
	for _, name := range r.order {
		agents = append(agents, r.entries[name].Agent)
	}
	return agents
}

// GetAllEntries returns every entry in registration order.
func (r *Registry) GetAllEntries() []*Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]*Entry, 0, len(r.order))
	for _, name := range r.order {
		entries = append(entries, r.entries[name])
	}
	return entries
}

// GetByCapability returns agents declaring the given capability tag, in
// registration order.
func (r *Registry) GetByCapability(tag string) []Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var agents []Agent
	for _, name := range r.order {
		entry := r.entries[name]
		for _, c := range entry.Capabilities {
			if c == tag {
				agents = append(agents, entry.Agent)
				break
			}
		}
	}
	return agents
}

// GetByCapabilities returns agents declaring every one of the given tags,
// in registration order. An empty tag list matches no agents.
func (r *Registry) GetByCapabilities(tags []string) []Agent {
	if len(tags) == 0 {
		return nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var agents []Agent
	for _, name := range r.order {
		entry := r.entries[name]
		declared := make(map[string]bool, len(entry.Capabilities))
		for _, c := range entry.Capabilities {
			declared[c] = true
		}
		matched := true
		for _, tag := range tags {
			if !declared[tag] {
				matched = false
				break
			}
		}
		if matched {
			agents = append(agents, entry.Agent)
		}
	}
	return agents
}

// ListForTenant returns entries visible to the tenant: public entries plus
// entries registered by the same tenant. Private visibility is not filtered
// at this layer; callers must additionally check requesting-user identity.
func (r *Registry) ListForTenant(tenantID string) []*Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var entries []*Entry
	for _, name := range r.order {
		entry := r.entries[name]
		if entry.Visibility == VisibilityPublic || entry.TenantID == tenantID {
			entries = append(entries, entry)
		}
	}
	return entries
}

// SetVisibility updates an entry's tenancy scope. Returns false when the
// name is not registered.
func (r *Registry) SetVisibility(name string, visibility Visibility, tenantID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[name]
	if !ok {
		return false
	}
	entry.Visibility = visibility
	if tenantID != "" {
		entry.TenantID = tenantID
	}
	return true
}

// HealthCheckAll probes every remote entry concurrently, updates Healthy,
// and returns a name -> healthy map. Local entries always report healthy.
func (r *Registry) HealthCheckAll(ctx context.Context) map[string]bool {
	r.mu.RLock()
	type probe struct {
		name  string
		agent *RemoteAgent
	}
	results := make(map[string]bool, len(r.order))
	var probes []probe
	for _, name := range r.order {
		entry := r.entries[name]
		if remote, ok := entry.Agent.(*RemoteAgent); ok {
			probes = append(probes, probe{name: name, agent: remote})
		} else {
			results[name] = true
		}
	}
	r.mu.RUnlock()

	healthy := make([]bool, len(probes))
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range probes {
		g.Go(func() error {
			healthy[i] = p.agent.HealthCheck(gctx)
			return nil
		})
	}
	g.Wait()

	r.mu.Lock()
	for i, p := range probes {
		results[p.name] = healthy[i]
		if entry, ok := r.entries[p.name]; ok {
			entry.Healthy = healthy[i]
		}
	}
	r.mu.Unlock()

	return results
}

// Count returns the number of registered agents.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// RemoteCount returns the number of remote entries.
func (r *Registry) RemoteCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, e := range r.entries {
		if e.Type == TypeRemote {
			n++
		}
	}
	return n
}

// LocalCount returns the number of local entries.
func (r *Registry) LocalCount() int {
	return r.Count() - r.RemoteCount()
}
