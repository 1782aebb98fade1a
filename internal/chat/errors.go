package chat

import "errors"

// Precondition failures become structured error responses, never panics.
var (
	ErrBusy            = errors.New("chat: user already has a turn in flight")
	ErrSessionNotFound = errors.New("chat: session not exist")
	ErrLLMNotFound     = errors.New("chat: llm not exist")
	ErrSessionListFull = errors.New("chat: session list full")
	ErrInitFailed      = errors.New("chat: init failed")
)
