package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentcouncil/roundtable/agent"
)

func TestAll_CanonicalOrder(t *testing.T) {
	agents := All(nil, nil)
	require.Len(t, agents, 3)
	assert.Equal(t, SkepticName, agents[0].Name())
	assert.Equal(t, QualityName, agents[1].Name())
	assert.Equal(t, EvidenceName, agents[2].Name())

	for _, a := range agents {
		assert.NotEmpty(t, a.Domain(), a.Name())
	}
}

func TestCoreAgents_NoBackend(t *testing.T) {
	// Without a reasoning backend the core set still participates: each
	// phase degrades to a deterministic placeholder instead of failing.
	task := &agent.Task{ID: "t1", Content: "ship it"}

	for _, a := range All(nil, nil) {
		t.Run(a.Name(), func(t *testing.T) {
			analysis, err := a.Analyze(context.Background(), task)
			require.NoError(t, err)
			require.Len(t, analysis.Observations, 1)
			assert.Equal(t, agent.SeverityWarning, analysis.Observations[0].Severity)

			vote, err := a.Vote(context.Background(), task, &agent.Synthesis{RecommendedDirection: "go"})
			require.NoError(t, err)
			assert.False(t, vote.Approve)
			assert.NotEmpty(t, vote.DissentReason)
		})
	}
}
