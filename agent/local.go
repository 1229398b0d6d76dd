package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/agentcouncil/roundtable/llm"
	"go.uber.org/zap"
)

// LocalConfig configures a generic in-process agent.
type LocalConfig struct {
	Name         string `yaml:"name" json:"name"`
	Domain       string `yaml:"domain" json:"domain"`
	SystemPrompt string `yaml:"system_prompt" json:"system_prompt"`
}

// LocalAgent is a generic in-process participant backed by a reasoning
// client. The evaluative focus comes entirely from configuration, so domain
// agents can be fielded without writing code.
//
// With a nil client every phase degrades to a deterministic placeholder
// rather than failing, which keeps no-backend smoke tests usable.
type LocalAgent struct {
	cfg    LocalConfig
	client llm.Client
	logger *zap.Logger
}

// NewLocalAgent creates a local agent. Returns ErrMissingIdentity when the
// config lacks a name or domain.
func NewLocalAgent(cfg LocalConfig, client llm.Client, logger *zap.Logger) (*LocalAgent, error) {
	if cfg.Name == "" || cfg.Domain == "" {
		return nil, ErrMissingIdentity
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LocalAgent{
		cfg:    cfg,
		client: client,
		logger: logger.With(zap.String("component", "local_agent"), zap.String("agent", cfg.Name)),
	}, nil
}

func (a *LocalAgent) Name() string   { return a.cfg.Name }
func (a *LocalAgent) Domain() string { return a.cfg.Domain }

func (a *LocalAgent) systemPreamble() string {
	if a.cfg.SystemPrompt != "" {
		return a.cfg.SystemPrompt
	}
	return fmt.Sprintf("You are %q, an expert reviewer focused on %s. Always return valid JSON.", a.cfg.Name, a.cfg.Domain)
}

// analysisPayload mirrors the JSON shape agents are prompted to return in
// Phase 1.
type analysisPayload struct {
	Observations    []Observation `json:"observations"`
	Recommendations []string      `json:"recommendations"`
}

// Analyze asks the client for observations and recommendations on the task.
func (a *LocalAgent) Analyze(ctx context.Context, task *Task) (*Analysis, error) {
	if a.client == nil {
		return a.placeholderAnalysis("no reasoning backend configured"), nil
	}

	var sb strings.Builder
	sb.WriteString(a.systemPreamble())
	sb.WriteString("\n\nAnalyze this task from your domain perspective:\n\n")
	sb.WriteString(task.Content)
	if len(task.Constraints) > 0 {
		constraints, _ := json.Marshal(task.Constraints)
		sb.WriteString("\n\nConstraints:\n")
		sb.Write(constraints)
	}
	sb.WriteString("\n\nReturn JSON: {\"observations\": [{\"finding\": ..., \"evidence\": ..., " +
		"\"severity\": \"info|warning|critical\", \"confidence\": 0.0-1.0}], \"recommendations\": [...]}")

	response, err := a.client.Call(ctx, sb.String())
	if err != nil {
		return nil, fmt.Errorf("analysis call: %w", err)
	}

	payload, ok := llm.ExtractInto[analysisPayload](response)
	if !ok {
		// Malformed output degrades to a raw-text observation, not a failure.
		a.logger.Warn("analysis response was not parseable, keeping raw text")
		return &Analysis{
			AgentName: a.cfg.Name,
			Domain:    a.cfg.Domain,
			Observations: []Observation{{
				Finding:    truncateFinding(response),
				Evidence:   "raw model response",
				Severity:   SeverityInfo,
				Confidence: 0.5,
			}},
		}, nil
	}

	return &Analysis{
		AgentName:       a.cfg.Name,
		Domain:          a.cfg.Domain,
		Observations:    payload.Observations,
		Recommendations: payload.Recommendations,
	}, nil
}

// challengePayload mirrors the JSON shape agents return in Phase 2.
type challengePayload struct {
	Challenges  []ChallengeItem `json:"challenges"`
	Concessions []Concession    `json:"concessions"`
}

// Challenge reviews the other agents' analyses and pushes back where the
// evidence is weak. Self-references are excluded from the prompt.
func (a *LocalAgent) Challenge(ctx context.Context, task *Task, analyses []*Analysis) (*Challenge, error) {
	if a.client == nil || len(analyses) == 0 {
		return &Challenge{AgentName: a.cfg.Name}, nil
	}

	others := make([]*Analysis, 0, len(analyses))
	for _, an := range analyses {
		if an != nil && an.AgentName != a.cfg.Name {
			others = append(others, an)
		}
	}
	if len(others) == 0 {
		return &Challenge{AgentName: a.cfg.Name}, nil
	}
	summary, _ := json.MarshalIndent(others, "", "  ")

	var sb strings.Builder
	sb.WriteString(a.systemPreamble())
	sb.WriteString("\n\nOther agents analyzed this task:\n\n")
	sb.Write(summary)
	sb.WriteString("\n\nChallenge findings you disagree with and concede the ones you accept.\n")
	sb.WriteString("Return JSON: {\"challenges\": [{\"target_agent\": ..., \"finding_challenged\": ..., " +
		"\"counter_evidence\": ...}], \"concessions\": [{\"target_agent\": ..., \"finding_accepted\": ..., \"reason\": ...}]}")

	response, err := a.client.Call(ctx, sb.String())
	if err != nil {
		return nil, fmt.Errorf("challenge call: %w", err)
	}

	payload, ok := llm.ExtractInto[challengePayload](response)
	if !ok {
		a.logger.Warn("challenge response was not parseable, recording empty challenge")
		return &Challenge{AgentName: a.cfg.Name}, nil
	}
	return &Challenge{
		AgentName:   a.cfg.Name,
		Challenges:  payload.Challenges,
		Concessions: payload.Concessions,
	}, nil
}

// votePayload mirrors the JSON shape agents return in Phase 3.
type votePayload struct {
	Approve       bool     `json:"approve"`
	Conditions    []string `json:"conditions"`
	DissentReason string   `json:"dissent_reason"`
}

// Vote judges the synthesis from the agent's domain perspective.
func (a *LocalAgent) Vote(ctx context.Context, task *Task, synthesis *Synthesis) (*Vote, error) {
	if a.client == nil {
		return &Vote{
			AgentName:     a.cfg.Name,
			Approve:       false,
			DissentReason: "cannot evaluate synthesis without a reasoning backend",
		}, nil
	}

	findings, _ := json.Marshal(synthesis.KeyFindings)

	var sb strings.Builder
	sb.WriteString(a.systemPreamble())
	sb.WriteString("\n\nThe round produced this synthesis:\n\nRecommendation: ")
	sb.WriteString(synthesis.RecommendedDirection)
	sb.WriteString("\nKey findings: ")
	sb.Write(findings)
	sb.WriteString("\n\nVote approve only if the recommendation is sound from your domain perspective.\n")
	sb.WriteString("Return JSON: {\"approve\": true/false, \"conditions\": [...], \"dissent_reason\": \"...\"}")

	response, err := a.client.Call(ctx, sb.String())
	if err != nil {
		return nil, fmt.Errorf("vote call: %w", err)
	}

	payload, ok := llm.ExtractInto[votePayload](response)
	if !ok {
		return &Vote{
			AgentName:     a.cfg.Name,
			Approve:       false,
			DissentReason: "could not evaluate synthesis: unparseable vote response",
		}, nil
	}
	return &Vote{
		AgentName:     a.cfg.Name,
		Approve:       payload.Approve,
		Conditions:    payload.Conditions,
		DissentReason: payload.DissentReason,
	}, nil
}

func (a *LocalAgent) placeholderAnalysis(reason string) *Analysis {
	return &Analysis{
		AgentName: a.cfg.Name,
		Domain:    a.cfg.Domain,
		Observations: []Observation{{
			Finding:    fmt.Sprintf("task accepted without review (%s)", reason),
			Evidence:   "placeholder observation",
			Severity:   SeverityWarning,
			Confidence: 0.5,
		}},
	}
}

func truncateFinding(s string) string {
	const limit = 500
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
