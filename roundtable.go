// Package roundtable provides a top-level convenience entry point for
// running deliberation rounds with minimal boilerplate.
//
// Usage:
//
//	import "github.com/agentcouncil/roundtable"
//
//	rt, err := roundtable.New(roundtable.WithOpenAI("gpt-4o-mini"))
//	result, err := rt.Run(ctx, &agent.Task{Content: "ship the migration?"})
//
// The returned table carries the three built-in review agents plus whatever
// was registered on the registry; pass [WithRegistry] to share one.
package roundtable

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/agentcouncil/roundtable/agent"
	"github.com/agentcouncil/roundtable/deliberation"
	"github.com/agentcouncil/roundtable/llm"
)

// Option configures the table created by [New].
type Option func(*options)

type options struct {
	client   llm.Client
	registry *agent.Registry
	cfg      deliberation.Config
	logger   *zap.Logger

	// Client shortcut fields, used when client is nil.
	model  string
	apiKey string
}

// WithClient sets a pre-built reasoning client.
func WithClient(c llm.Client) Option {
	return func(o *options) { o.client = c }
}

// WithOpenAI creates an OpenAI-compatible client using the given model.
// API key is read from OPENAI_API_KEY environment variable.
func WithOpenAI(model string) Option {
	return func(o *options) {
		o.model = model
		if o.apiKey == "" {
			o.apiKey = os.Getenv("OPENAI_API_KEY")
		}
	}
}

// WithAPIKey overrides the API key for [WithOpenAI].
func WithAPIKey(key string) Option {
	return func(o *options) { o.apiKey = key }
}

// WithRegistry shares an existing agent registry. Defaults to a fresh,
// non-persisting one.
func WithRegistry(r *agent.Registry) Option {
	return func(o *options) { o.registry = r }
}

// WithConfig overrides the round configuration.
func WithConfig(cfg deliberation.Config) Option {
	return func(o *options) { o.cfg = cfg }
}

// WithLogger sets a custom zap logger. Defaults to zap.NewNop().
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// New creates a ready-to-run [deliberation.RoundTable].
func New(opts ...Option) (*deliberation.RoundTable, error) {
	o := &options{cfg: deliberation.DefaultConfig()}
	for _, opt := range opts {
		opt(o)
	}

	c := o.client
	if c == nil {
		if o.model == "" {
			return nil, fmt.Errorf("client is required: use WithClient or WithOpenAI")
		}
		if o.apiKey == "" {
			return nil, fmt.Errorf("API key is required: set OPENAI_API_KEY or use WithAPIKey")
		}
		cfg := llm.DefaultOpenAIConfig()
		cfg.Model = o.model
		cfg.APIKey = o.apiKey
		c = llm.NewOpenAIClient(cfg, o.logger)
	}

	registry := o.registry
	if registry == nil {
		registry = agent.NewRegistry(o.logger, agent.WithPersistPath(""))
	}

	return deliberation.NewRoundTable(registry, c, o.cfg, o.logger), nil
}
