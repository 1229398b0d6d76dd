package agent

import "errors"

var (
	// ErrMissingIdentity 本地 Agent 缺少 name/domain 标识
	ErrMissingIdentity = errors.New("agent must have non-empty name and domain")

	// ErrAgentNotFound 注册表中不存在该 Agent
	ErrAgentNotFound = errors.New("agent not found")

	// ErrRemoteStatus 远程 Agent 返回非成功状态
	ErrRemoteStatus = errors.New("remote agent returned non-success status")

	// ErrAsyncTimeout 异步轮询在超时前未完成
	ErrAsyncTimeout = errors.New("async remote call did not complete before timeout")
)
