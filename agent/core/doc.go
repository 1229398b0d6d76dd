// Package core provides the three always-on safety agents injected into
// every round-table pool by default: Skeptic, Quality, and Evidence.
//
// They audit process quality rather than content: Skeptic challenges
// unsupported claims and logical fallacies, Quality tracks requirement and
// constraint coverage gaps, Evidence grades claim-to-evidence strength.
// With no reasoning backend configured each degrades to a single placeholder
// observation and a dissenting vote, so a pool of core agents alone still
// produces a complete (non-consensus) round.
package core
