package deliberation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentcouncil/roundtable/agent"
)

func obs(finding string, sev agent.Severity, conf float64) agent.Observation {
	return agent.Observation{Finding: finding, Evidence: "test evidence", Severity: sev, Confidence: conf}
}

func TestRuleSynthesizer_KeyFindings(t *testing.T) {
	s := &RuleSynthesizer{MinSeverity: agent.SeverityWarning}

	analyses := []*agent.Analysis{
		{
			AgentName: "sec",
			Observations: []agent.Observation{
				obs("sql injection in search", agent.SeverityCritical, 0.9),
				obs("verbose logging", agent.SeverityInfo, 0.6),
			},
		},
		{
			AgentName: "perf",
			Observations: []agent.Observation{
				obs("n+1 query on listing", agent.SeverityWarning, 0.7),
			},
		},
	}

	out := s.Synthesize(&agent.Task{ID: "t1"}, analyses, nil)
	require.NotNil(t, out)
	// Info-severity observations fall below the floor.
	assert.Equal(t, []string{
		"[sec] sql injection in search",
		"[perf] n+1 query on listing",
	}, out.KeyFindings)
}

func TestRuleSynthesizer_ChallengedFindingsAnnotated(t *testing.T) {
	s := &RuleSynthesizer{MinSeverity: agent.SeverityInfo}

	analyses := []*agent.Analysis{
		{AgentName: "sec", Observations: []agent.Observation{obs("weak cipher", agent.SeverityWarning, 0.8)}},
		{AgentName: "perf", Observations: []agent.Observation{obs("slow path", agent.SeverityWarning, 0.8)}},
	}
	challenges := []*agent.Challenge{
		{
			AgentName: "perf",
			Challenges: []agent.ChallengeItem{
				{TargetAgent: "sec", FindingChallenged: "weak cipher", CounterEvidence: "TLS config pins AES-GCM"},
			},
		},
	}

	out := s.Synthesize(&agent.Task{ID: "t1"}, analyses, challenges)
	require.Len(t, out.KeyFindings, 2)
	// Conflicting findings are both kept, the challenged one annotated.
	assert.Equal(t, "[sec] weak cipher (challenged by perf)", out.KeyFindings[0])
	assert.Equal(t, "[perf] slow path", out.KeyFindings[1])
}

func TestRuleSynthesizer_DanglingChallengeIgnored(t *testing.T) {
	s := &RuleSynthesizer{MinSeverity: agent.SeverityInfo}

	analyses := []*agent.Analysis{
		{AgentName: "sec", Observations: []agent.Observation{obs("finding", agent.SeverityInfo, 0.8)},
			Recommendations: []string{"do it"}},
	}
	challenges := []*agent.Challenge{
		{AgentName: "sec", Challenges: []agent.ChallengeItem{
			{TargetAgent: "ghost", FindingChallenged: "finding", CounterEvidence: "x"},
		}},
	}

	out := s.Synthesize(&agent.Task{ID: "t1"}, analyses, challenges)
	assert.Equal(t, []string{"[sec] finding"}, out.KeyFindings)
	assert.Equal(t, "do it", out.RecommendedDirection)
}

func TestRuleSynthesizer_RecommendDirection(t *testing.T) {
	s := &RuleSynthesizer{MinSeverity: agent.SeverityInfo}

	t.Run("highest confidence wins", func(t *testing.T) {
		analyses := []*agent.Analysis{
			{AgentName: "low", Observations: []agent.Observation{obs("a", agent.SeverityInfo, 0.4)},
				Recommendations: []string{"low direction"}},
			{AgentName: "high", Observations: []agent.Observation{obs("b", agent.SeverityInfo, 0.9)},
				Recommendations: []string{"high direction"}},
		}
		out := s.Synthesize(&agent.Task{ID: "t1"}, analyses, nil)
		assert.Equal(t, "high direction", out.RecommendedDirection)
	})

	t.Run("challenges discount the score", func(t *testing.T) {
		analyses := []*agent.Analysis{
			{AgentName: "steady", Observations: []agent.Observation{obs("a", agent.SeverityInfo, 0.7)},
				Recommendations: []string{"steady direction"}},
			{AgentName: "contested", Observations: []agent.Observation{obs("b", agent.SeverityInfo, 0.8)},
				Recommendations: []string{"contested direction"}},
		}
		challenges := []*agent.Challenge{
			{AgentName: "steady", Challenges: []agent.ChallengeItem{
				{TargetAgent: "contested", FindingChallenged: "b", CounterEvidence: "x"},
			}},
		}
		out := s.Synthesize(&agent.Task{ID: "t1"}, analyses, challenges)
		// 0.8 - 0.2 = 0.6 loses to an unchallenged 0.7.
		assert.Equal(t, "steady direction", out.RecommendedDirection)
	})

	t.Run("ties break by pool order", func(t *testing.T) {
		analyses := []*agent.Analysis{
			{AgentName: "first", Observations: []agent.Observation{obs("a", agent.SeverityInfo, 0.7)},
				Recommendations: []string{"first direction"}},
			{AgentName: "second", Observations: []agent.Observation{obs("b", agent.SeverityInfo, 0.7)},
				Recommendations: []string{"second direction"}},
		}
		out := s.Synthesize(&agent.Task{ID: "t1"}, analyses, nil)
		assert.Equal(t, "first direction", out.RecommendedDirection)
	})

	t.Run("no recommendations yields fallback", func(t *testing.T) {
		analyses := []*agent.Analysis{
			{AgentName: "quiet", Observations: []agent.Observation{obs("a", agent.SeverityInfo, 0.9)}},
		}
		out := s.Synthesize(&agent.Task{ID: "t1"}, analyses, nil)
		assert.Equal(t, "No recommendation emerged from this round; review the key findings.", out.RecommendedDirection)
	})
}

func TestRuleSynthesizer_Deterministic(t *testing.T) {
	s := &RuleSynthesizer{MinSeverity: agent.SeverityInfo}
	analyses := []*agent.Analysis{
		{AgentName: "a", Observations: []agent.Observation{obs("x", agent.SeverityWarning, 0.6)},
			Recommendations: []string{"go left"}},
		{AgentName: "b", Observations: []agent.Observation{obs("y", agent.SeverityCritical, 0.8)},
			Recommendations: []string{"go right"}},
	}
	challenges := []*agent.Challenge{
		{AgentName: "a", Challenges: []agent.ChallengeItem{
			{TargetAgent: "b", FindingChallenged: "y", CounterEvidence: "z"},
		}},
	}

	first := s.Synthesize(&agent.Task{ID: "t1"}, analyses, challenges)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, s.Synthesize(&agent.Task{ID: "t1"}, analyses, challenges))
	}
}
