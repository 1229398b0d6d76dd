package deliberation

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/agentcouncil/roundtable/agent"
	"github.com/agentcouncil/roundtable/agent/core"
	"github.com/agentcouncil/roundtable/llm"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// ErrEmptyPool rejects rounds with zero agents at Init.
var ErrEmptyPool = errors.New("no agents available for round")

// Phase labels the orchestrator states.
type Phase string

const (
	PhaseInit      Phase = "init"
	PhaseAnalysis  Phase = "analysis"
	PhaseChallenge Phase = "challenge"
	PhaseSynthesis Phase = "synthesis"
	PhaseVoting    Phase = "voting"
	PhaseTerminal  Phase = "terminal"
)

// Config controls round behavior.
type Config struct {
	// ApprovalThreshold: consensus requires approval_rate strictly above
	// this value. Zero is meaningful (any approval passes); a negative
	// value falls back to the default 0.5 (strict majority).
	ApprovalThreshold float64 `yaml:"approval_threshold" json:"approval_threshold"`

	// DissentTolerance: number of dissenting votes tolerated before
	// consensus is blocked regardless of approval rate. Default 0:
	// dissent overrides count.
	DissentTolerance int `yaml:"dissent_tolerance" json:"dissent_tolerance"`

	// PhaseTimeout bounds each phase's fan-out barrier.
	PhaseTimeout time.Duration `yaml:"phase_timeout" json:"phase_timeout"`

	// MaxConcurrency caps in-flight agent calls per phase. 0 means
	// unlimited.
	MaxConcurrency int64 `yaml:"max_concurrency" json:"max_concurrency"`

	// DisableCoreAgents drops the built-in safety agents from the pool.
	DisableCoreAgents bool `yaml:"disable_core_agents" json:"disable_core_agents"`

	// CapabilityFilter restricts the registry pool to agents declaring the
	// tag. Empty means the full pool.
	CapabilityFilter string `yaml:"capability_filter" json:"capability_filter"`

	// MinSeverity is the synthesis floor: observations below it are left
	// out of the key findings.
	MinSeverity agent.Severity `yaml:"min_severity" json:"min_severity"`
}

// DefaultConfig returns the default round configuration.
func DefaultConfig() Config {
	return Config{
		ApprovalThreshold: 0.5,
		DissentTolerance:  0,
		PhaseTimeout:      120 * time.Second,
		MinSeverity:       agent.SeverityInfo,
	}
}

// RoundResult is the terminal, immutable record of one round.
type RoundResult struct {
	TaskID           string             `json:"task_id"`
	Task             *agent.Task        `json:"task"`
	Analyses         []*agent.Analysis  `json:"analyses"`
	Challenges       []*agent.Challenge `json:"challenges"`
	Votes            []*agent.Vote      `json:"votes"`
	Synthesis        *agent.Synthesis   `json:"synthesis"`
	ConsensusReached bool               `json:"consensus_reached"`
	ApprovalRate     float64            `json:"approval_rate"`
	Duration         time.Duration      `json:"duration"`
	StartedAt        time.Time          `json:"started_at"`
}

// RoundTable orchestrates the four-phase protocol. A single control
// goroutine drives the state machine; all suspension happens inside
// individual agent calls.
type RoundTable struct {
	registry *agent.Registry
	coreSet  []agent.Agent
	cfg      Config
	synth    Synthesizer
	observer Observer
	logger   *zap.Logger
}

// Observer receives absence events for monitoring. Satisfied by the metrics
// collector.
type Observer interface {
	RecordAbsent(phase string)
}

// Option customizes a RoundTable.
type Option func(*RoundTable)

// WithSynthesizer replaces the default rule-based synthesizer.
func WithSynthesizer(s Synthesizer) Option {
	return func(rt *RoundTable) { rt.synth = s }
}

// WithObserver installs an absence observer.
func WithObserver(o Observer) Option {
	return func(rt *RoundTable) { rt.observer = o }
}

// NewRoundTable creates an orchestrator over the registry's agent pool.
// client backs the built-in safety agents; nil puts them in placeholder
// mode.
func NewRoundTable(registry *agent.Registry, client llm.Client, cfg Config, logger *zap.Logger, opts ...Option) *RoundTable {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ApprovalThreshold < 0 {
		cfg.ApprovalThreshold = DefaultConfig().ApprovalThreshold
	}
	if cfg.PhaseTimeout <= 0 {
		cfg.PhaseTimeout = DefaultConfig().PhaseTimeout
	}
	if cfg.MinSeverity == "" {
		cfg.MinSeverity = agent.SeverityInfo
	}

	rt := &RoundTable{
		registry: registry,
		cfg:      cfg,
		synth:    &RuleSynthesizer{MinSeverity: cfg.MinSeverity},
		logger:   logger.With(zap.String("component", "round_table")),
	}
	if !cfg.DisableCoreAgents {
		rt.coreSet = core.All(client, logger)
	}
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

// resolvePool captures the round's agent set: registry agents in
// registration order (optionally capability-filtered), then the core set.
func (rt *RoundTable) resolvePool() []agent.Agent {
	var pool []agent.Agent
	if rt.registry != nil {
		if rt.cfg.CapabilityFilter != "" {
			pool = rt.registry.GetByCapability(rt.cfg.CapabilityFilter)
		} else {
			pool = rt.registry.GetAll()
		}
	}
	return append(pool, rt.coreSet...)
}

// Run deliberates one task through all phases and emits the RoundResult.
// Once Init succeeds a result is always returned, even if every phase lost
// agents to failures.
func (rt *RoundTable) Run(ctx context.Context, task *agent.Task) (*RoundResult, error) {
	return rt.RunWithPool(ctx, task, rt.resolvePool())
}

// RunWithPool deliberates over an explicit agent pool, bypassing pool
// resolution. The pool's order fixes the report order of the result.
func (rt *RoundTable) RunWithPool(ctx context.Context, task *agent.Task, pool []agent.Agent) (*RoundResult, error) {
	if len(pool) == 0 {
		return nil, ErrEmptyPool
	}

	// Task is immutable once submitted; assign the ID on a copy.
	if task.ID == "" {
		t := *task
		t.ID = uuid.NewString()
		task = &t
	}

	start := time.Now()
	rt.logger.Info("round started",
		zap.String("task_id", task.ID),
		zap.Int("agents", len(pool)),
	)

	// Phase 1: Analysis.
	analysisSlots := fanOut(ctx, rt, pool, PhaseAnalysis, func(ctx context.Context, a agent.Agent) (*agent.Analysis, error) {
		out, err := a.Analyze(ctx, task)
		if err == nil && out != nil {
			out.AgentName = a.Name()
		}
		return out, err
	})
	analyses := compact(analysisSlots)

	// Phase 2: Challenge. Every agent sees the full analysis set, its own
	// included; excluding self-references is the agent's business.
	challengeSlots := fanOut(ctx, rt, pool, PhaseChallenge, func(ctx context.Context, a agent.Agent) (*agent.Challenge, error) {
		out, err := a.Challenge(ctx, task, analyses)
		if err == nil && out != nil {
			out.AgentName = a.Name()
		}
		return out, err
	})
	challenges := compact(challengeSlots)

	// Phase 3: Synthesis. A single aggregation step, pure over the round's
	// analyses and challenges.
	synthesis := rt.synth.Synthesize(task, analyses, challenges)

	// Phase 4: Voting. Only agents that produced an analysis vote; the rest
	// have no basis to judge the synthesis.
	voters := make([]agent.Agent, 0, len(pool))
	for i, a := range pool {
		if analysisSlots[i] != nil {
			voters = append(voters, a)
		}
	}
	voteSlots := fanOut(ctx, rt, voters, PhaseVoting, func(ctx context.Context, a agent.Agent) (*agent.Vote, error) {
		out, err := a.Vote(ctx, task, synthesis)
		if err == nil && out != nil {
			out.AgentName = a.Name()
		}
		return out, err
	})
	votes := compact(voteSlots)

	approvals, dissents := 0, 0
	for _, v := range votes {
		if v.Approve {
			approvals++
		}
		if v.DissentReason != "" {
			dissents++
		}
	}
	rate := 0.0
	if len(votes) > 0 {
		rate = float64(approvals) / float64(len(votes))
	}
	consensus := len(votes) > 0 &&
		rate > rt.cfg.ApprovalThreshold &&
		dissents <= rt.cfg.DissentTolerance

	result := &RoundResult{
		TaskID:           task.ID,
		Task:             task,
		Analyses:         analyses,
		Challenges:       challenges,
		Votes:            votes,
		Synthesis:        synthesis,
		ConsensusReached: consensus,
		ApprovalRate:     rate,
		Duration:         time.Since(start),
		StartedAt:        start,
	}

	rt.logger.Info("round completed",
		zap.String("task_id", task.ID),
		zap.Bool("consensus", consensus),
		zap.Float64("approval_rate", rate),
		zap.Int("dissents", dissents),
		zap.Duration("duration", result.Duration),
	)
	return result, nil
}

// fanOut invokes fn concurrently for every agent and fans back in at the
// phase barrier. The returned slice is aligned with pool order: a nil slot
// means the agent was absent for the phase (error or timeout). The barrier
// never waits past the phase timeout; stragglers are abandoned and their
// late writes discarded.
func fanOut[T any](ctx context.Context, rt *RoundTable, pool []agent.Agent, phase Phase, fn func(context.Context, agent.Agent) (*T, error)) []*T {
	phaseCtx, cancel := context.WithTimeout(ctx, rt.cfg.PhaseTimeout)
	defer cancel()

	maxConc := rt.cfg.MaxConcurrency
	if maxConc <= 0 {
		maxConc = int64(len(pool))
	}
	sem := semaphore.NewWeighted(maxConc)

	var mu sync.Mutex
	slots := make([]*T, len(pool))

	var wg sync.WaitGroup
	for i, a := range pool {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := sem.Acquire(phaseCtx, 1); err != nil {
				return
			}
			defer sem.Release(1)

			out, err := fn(phaseCtx, a)
			if err != nil {
				rt.logger.Warn("agent absent for phase",
					zap.String("phase", string(phase)),
					zap.String("agent", a.Name()),
					zap.Error(err),
				)
				return
			}
			mu.Lock()
			slots[i] = out
			mu.Unlock()
		}()
	}

	barrier := make(chan struct{})
	go func() {
		wg.Wait()
		close(barrier)
	}()

	select {
	case <-barrier:
	case <-phaseCtx.Done():
		rt.logger.Warn("phase timeout, abandoning stragglers",
			zap.String("phase", string(phase)),
		)
	}

	// Snapshot under the lock; writes landing after this point count as
	// absent.
	mu.Lock()
	out := make([]*T, len(slots))
	copy(out, slots)
	mu.Unlock()

	if rt.observer != nil {
		for _, s := range out {
			if s == nil {
				rt.observer.RecordAbsent(string(phase))
			}
		}
	}
	return out
}

// compact drops absent slots, preserving pool order.
func compact[T any](slots []*T) []*T {
	out := make([]*T, 0, len(slots))
	for _, s := range slots {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}
