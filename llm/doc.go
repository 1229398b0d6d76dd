// Package llm defines the reasoning-call boundary used by deliberation
// agents, plus the tolerant JSON extraction layer every phase depends on.
//
// The core contract is [Client]: a single synchronous Call(prompt) that
// returns raw model text. Concrete agents turn that text into typed phase
// results through [ExtractInto]; malformed output degrades to an absence
// or a placeholder instead of failing the round.
//
// An OpenAI-compatible chat-completions implementation is provided in
// [OpenAIClient]; any endpoint speaking that wire format works. A nil
// Client is a supported configuration: built-in agents fall back to
// deterministic placeholder results so the system stays usable in
// smoke-test mode with no backend at all.
package llm
