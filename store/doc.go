// Package store provides the persistence collaborators around the
// deliberation core: a redis-backed session/turn store consumed by the API
// layer, and a sqlite archive of terminal RoundResults for downstream
// indexing. The core itself never touches either.
package store
