package agent

import "context"

// Severity grades how serious an observation is.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Rank maps severity to an ordering value; unknown values rank lowest.
func (s Severity) Rank() int {
	switch s {
	case SeverityInfo:
		return 1
	case SeverityWarning:
		return 2
	case SeverityCritical:
		return 3
	default:
		return 0
	}
}

// Task is the unit of work a round deliberates over. Immutable once
// submitted.
type Task struct {
	ID          string         `json:"id"`
	Content     string         `json:"content"`
	Constraints map[string]any `json:"constraints,omitempty"`
}

// Observation is a single finding produced during Analysis.
type Observation struct {
	Finding    string   `json:"finding"`
	Evidence   string   `json:"evidence"`
	Severity   Severity `json:"severity"`
	Confidence float64  `json:"confidence"` // [0,1]
}

// Analysis is one agent's Phase 1 output: observations plus
// recommendations, in the order the agent produced them.
type Analysis struct {
	AgentName       string        `json:"agent_name"`
	Domain          string        `json:"domain"`
	Observations    []Observation `json:"observations"`
	Recommendations []string      `json:"recommendations,omitempty"`
}

// ChallengeItem disputes another agent's finding with counter-evidence.
type ChallengeItem struct {
	TargetAgent       string `json:"target_agent"`
	FindingChallenged string `json:"finding_challenged"`
	CounterEvidence   string `json:"counter_evidence"`
}

// Concession accepts another agent's finding.
type Concession struct {
	TargetAgent     string `json:"target_agent"`
	FindingAccepted string `json:"finding_accepted"`
	Reason          string `json:"reason"`
}

// Challenge is one agent's Phase 2 output. References to agents absent from
// the round are tolerated and ignored during aggregation.
type Challenge struct {
	AgentName   string          `json:"agent_name"`
	Challenges  []ChallengeItem `json:"challenges,omitempty"`
	Concessions []Concession    `json:"concessions,omitempty"`
}

// Synthesis is the single aggregated recommendation for a round. It is
// produced by the orchestrator's aggregation step, not by any one agent.
type Synthesis struct {
	RecommendedDirection string   `json:"recommended_direction"`
	KeyFindings          []string `json:"key_findings"`
}

// Vote is one agent's Phase 3 verdict on the synthesis.
type Vote struct {
	AgentName     string   `json:"agent_name"`
	Approve       bool     `json:"approve"`
	Conditions    []string `json:"conditions,omitempty"`
	DissentReason string   `json:"dissent_reason,omitempty"`
}

// Agent is the capability contract every participant implements, local or
// remote. Calls within a phase carry no ordering guarantee relative to other
// agents; inputs passed in (other analyses, the synthesis) are read-only.
type Agent interface {
	// Name returns the stable identifier, unique within a registry.
	Name() string

	// Domain returns a one-line description of the agent's evaluative focus.
	Domain() string

	// Analyze produces the agent's independent take on the task.
	Analyze(ctx context.Context, task *Task) (*Analysis, error)

	// Challenge reviews every agent's analysis, including the caller's own.
	Challenge(ctx context.Context, task *Task, analyses []*Analysis) (*Challenge, error)

	// Vote judges the aggregated synthesis.
	Vote(ctx context.Context, task *Task, synthesis *Synthesis) (*Vote, error)
}
