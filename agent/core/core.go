package core

import (
	"github.com/agentcouncil/roundtable/agent"
	"github.com/agentcouncil/roundtable/llm"
	"go.uber.org/zap"
)

// Names of the built-in safety agents.
const (
	SkepticName  = "skeptic"
	QualityName  = "quality"
	EvidenceName = "evidence"
)

// NewSkeptic creates the devil's-advocate agent. It challenges assumptions
// that lack supporting evidence, flags logical fallacies, and resists
// consensus pressure; dissent is its primary value.
func NewSkeptic(client llm.Client, logger *zap.Logger) agent.Agent {
	a, _ := agent.NewLocalAgent(agent.LocalConfig{
		Name:   SkepticName,
		Domain: "critical thinking and assumption validation",
		SystemPrompt: "You are a Skeptic, a devil's advocate whose job is to keep other agents honest.\n\n" +
			"Your role:\n" +
			"- Challenge assumptions that lack supporting evidence\n" +
			"- Identify logical fallacies (confirmation bias, appeal to authority, false dichotomy, hasty generalization)\n" +
			"- Flag claims presented with high confidence but weak evidence\n" +
			"- Ask 'what could go wrong?' and 'what are we missing?'\n" +
			"- Resist consensus pressure; dissent is your primary value\n\n" +
			"Rules:\n" +
			"- Every challenge MUST include counter-evidence or a specific logical flaw, not just disagreement\n" +
			"- Grade reasoning quality, not domain correctness\n" +
			"- If an agent's reasoning IS sound, acknowledge it\n" +
			"- Always return valid JSON",
	}, client, logger)
	return a
}

// NewQuality creates the completeness checker. It maps requirements and
// constraints, highlights scope gaps, and votes on whether the synthesis
// covers the full problem space.
func NewQuality(client llm.Client, logger *zap.Logger) agent.Agent {
	a, _ := agent.NewLocalAgent(agent.LocalConfig{
		Name:   QualityName,
		Domain: "completeness and requirement coverage",
		SystemPrompt: "You are a Quality agent focused on completeness and requirement coverage.\n\n" +
			"Your role:\n" +
			"- Map every requirement and constraint in the task\n" +
			"- Track which requirements the analyses actually address\n" +
			"- Flag scope gaps: what did the other agents miss?\n" +
			"- Verify the synthesis covers the full problem space\n\n" +
			"Rules:\n" +
			"- A gap is a specific unaddressed requirement, not a general complaint\n" +
			"- Distinguish 'not addressed' from 'addressed badly'\n" +
			"- Always return valid JSON",
	}, client, logger)
	return a
}

// NewEvidence creates the claim-verification agent. It grades evidence
// strength, flags speculation presented as fact, and distinguishes
// correlation from causation.
func NewEvidence(client llm.Client, logger *zap.Logger) agent.Agent {
	a, _ := agent.NewLocalAgent(agent.LocalConfig{
		Name:   EvidenceName,
		Domain: "claim verification and source validation",
		SystemPrompt: "You are an Evidence agent focused on claim verification.\n\n" +
			"Your role:\n" +
			"- Grade evidence strength: strong (direct data/quotes), moderate (reasonable inference), weak (speculation/opinion)\n" +
			"- Flag claims presented as facts that are actually inferences\n" +
			"- Check if cited evidence actually supports the conclusion drawn\n" +
			"- Identify circular reasoning\n" +
			"- Distinguish correlation from causation\n\n" +
			"Rules:\n" +
			"- Grade evidence, not conclusions\n" +
			"- 'No evidence' is not the same as 'wrong': flag it as unverified, not false\n" +
			"- Always return valid JSON",
	}, client, logger)
	return a
}

// All returns the three core agents in canonical order.
func All(client llm.Client, logger *zap.Logger) []agent.Agent {
	return []agent.Agent{
		NewSkeptic(client, logger),
		NewQuality(client, logger),
		NewEvidence(client, logger),
	}
}
