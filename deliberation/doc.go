/*
Package deliberation drives the round-table protocol: a single forward pass
of Analysis, Challenge, Synthesis, and Voting over a fixed agent pool,
producing an immutable RoundResult with a recorded consensus verdict.

# Protocol

A round captures its pool at Init (registry agents in registration order,
plus the three built-in safety agents unless disabled) and is unaffected by
registry mutations afterwards. Each phase fans out to every agent
concurrently and fans back in at a phase barrier bounded by the phase
timeout. Agents that error or time out are simply absent from that phase's
results; the round always reaches Terminal once Init succeeds. A
consensus_reached of false is itself the signal of a degraded or
inconclusive round, not the absence of a result.

# Consensus

approval_rate is approvals over votes cast (0 when no votes). Consensus
requires the rate to exceed the configured threshold and the number of
dissenting votes to stay within the configured tolerance; by default any
single dissent blocks consensus regardless of the approval rate.

# Synthesis

The Synthesis step is a pure function of the round's analyses and
challenges, not farmed out to agents. [RuleSynthesizer] is the deterministic
default; any [Synthesizer] can be substituted, including model-driven ones.
*/
package deliberation
