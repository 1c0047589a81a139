package domain

import "errors"

// ErrSessionNotFound is returned when a user has no active session.
var ErrSessionNotFound = errors.New("session not found")

// ErrBotNotFound is returned when no published bot matches an account.
var ErrBotNotFound = errors.New("bot not found")

// ErrFlowNotFound is returned when a flow ID cannot be resolved.
var ErrFlowNotFound = errors.New("flow not found")

// ErrSessionConflict is returned when another unit of work already holds
// the active-session claim for a user.
var ErrSessionConflict = errors.New("user already has an active session")
