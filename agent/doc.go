/*
Package agent defines the capability contract every deliberation participant
implements, the typed phase results exchanged between participants, and the
registry that owns participant lifecycle.

# Contract

An [Agent] exposes a stable Name, a one-line Domain, and three independent
phase operations: Analyze, Challenge, and Vote. Each takes a context and may
legitimately run up to the phase timeout; a call that errors is recorded as
absent for the phase, never as a round failure.

Two variants ship with the package:

  - [LocalAgent]: in-process, backed by an [llm.Client] reasoning call.
  - [RemoteAgent]: the contract adapted onto an HTTP boundary, with
    health checking, per-call timeout, and sync or async invocation.

# Registry

[Registry] maps names to entries, persists remote registrations to JSON
(credentials stored only as environment-variable references), and hands the
orchestrator its agent pool in registration order. The registry is safe for
concurrent reads while rounds run; register/unregister are serialized.

Built-in safety agents live in the core subpackage.
*/
package agent
