// Package core defines the fundamental types and errors for SENTIENCE.
package core

import "errors"

// Core errors that can occur across the system
var (
	// Validation errors
	ErrEmptyPrompt     = errors.New("prompt is required")
	ErrInvalidInput    = errors.New("invalid input")
	ErrMissingRequired = errors.New("missing required field")

	// Storage errors
	ErrMigrationFailed      = errors.New("migration failed")
	ErrRecordNotFound       = errors.New("record not found")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrTaskNotFound         = errors.New("task not found")
	ErrVaultItemNotFound    = errors.New("vault item not found")
	ErrFactNotFound         = errors.New("fact not found")

	// Routing errors
	ErrUnknownMode       = errors.New("unknown mode")
	ErrInvalidExpression = errors.New("invalid expression")

	// Provider errors
	ErrLLMUnavailable = errors.New("LLM service unavailable")
	ErrStreamClosed   = errors.New("stream closed")

	// Search errors
	ErrNoResults = errors.New("no results")

	// Simulation errors
	ErrSessionNotFound = errors.New("session not found")
	ErrUnknownScenario = errors.New("unknown simulation type")
)
