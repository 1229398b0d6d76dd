package deliberation

import (
	"fmt"
	"strings"

	"github.com/agentcouncil/roundtable/agent"
)

// Synthesizer collapses a round's analyses and challenges into one
// Synthesis. Implementations must be pure over their inputs so rounds stay
// deterministic and reproducible.
type Synthesizer interface {
	Synthesize(task *agent.Task, analyses []*agent.Analysis, challenges []*agent.Challenge) *agent.Synthesis
}

// challengePenalty discounts a recommendation for each standing challenge
// against its author.
const challengePenalty = 0.2

// RuleSynthesizer is the deterministic default aggregation policy:
//
//   - key findings are the union of observations at or above MinSeverity,
//     in analysis order; conflicting findings are both kept, each annotated
//     with its challenger
//   - the recommended direction comes from the highest-confidence,
//     least-challenged agent that produced recommendations, ties broken by
//     pool order
//
// Challenges referencing agents absent from the round are ignored.
type RuleSynthesizer struct {
	MinSeverity agent.Severity
}

func (s *RuleSynthesizer) Synthesize(task *agent.Task, analyses []*agent.Analysis, challenges []*agent.Challenge) *agent.Synthesis {
	present := make(map[string]bool, len(analyses))
	for _, a := range analyses {
		present[a.AgentName] = true
	}

	// Standing challenges per target agent, and challengers per finding.
	challengedBy := make(map[string][]string)       // target agent -> challengers
	findingChallengers := make(map[string][]string) // target\x00finding -> challengers
	for _, ch := range challenges {
		for _, item := range ch.Challenges {
			if !present[item.TargetAgent] {
				continue // dangling reference, tolerated
			}
			challengedBy[item.TargetAgent] = append(challengedBy[item.TargetAgent], ch.AgentName)
			key := item.TargetAgent + "\x00" + item.FindingChallenged
			findingChallengers[key] = append(findingChallengers[key], ch.AgentName)
		}
	}

	minRank := s.MinSeverity.Rank()
	var findings []string
	for _, a := range analyses {
		for _, obs := range a.Observations {
			if obs.Severity.Rank() < minRank {
				continue
			}
			line := fmt.Sprintf("[%s] %s", a.AgentName, obs.Finding)
			if challengers := findingChallengers[a.AgentName+"\x00"+obs.Finding]; len(challengers) > 0 {
				line += fmt.Sprintf(" (challenged by %s)", strings.Join(challengers, ", "))
			}
			findings = append(findings, line)
		}
	}

	return &agent.Synthesis{
		RecommendedDirection: s.recommendDirection(analyses, challengedBy),
		KeyFindings:          findings,
	}
}

// recommendDirection scores each analysis by mean observation confidence
// minus a penalty per standing challenge, and returns the first
// recommendation of the best-scoring agent. Pool order breaks ties, which
// keeps the choice stable across runs.
func (s *RuleSynthesizer) recommendDirection(analyses []*agent.Analysis, challengedBy map[string][]string) string {
	best := -1
	bestScore := 0.0
	for i, a := range analyses {
		if len(a.Recommendations) == 0 {
			continue
		}
		score := meanConfidence(a.Observations) - challengePenalty*float64(len(challengedBy[a.AgentName]))
		if best == -1 || score > bestScore {
			best = i
			bestScore = score
		}
	}
	if best == -1 {
		return "No recommendation emerged from this round; review the key findings."
	}
	return analyses[best].Recommendations[0]
}

func meanConfidence(obs []agent.Observation) float64 {
	if len(obs) == 0 {
		return 0
	}
	total := 0.0
	for _, o := range obs {
		total += o.Confidence
	}
	return total / float64(len(obs))
}
