package ai

import "errors"

// Common errors returned by Completer and ImageAnalyzer implementations
var (
	// ErrCompletionFailed is returned when a completion fails for any general reason
	ErrCompletionFailed = errors.New("failed to generate completion")

	// ErrInvalidResponse is returned when the model response cannot be parsed or is malformed
	ErrInvalidResponse = errors.New("invalid response from language model")

	// ErrContentBlocked is returned when the model blocks the content due to safety filters
	ErrContentBlocked = errors.New("content blocked by language model safety filters")

	// ErrTransientFailure is returned for temporary errors that might resolve on retry
	ErrTransientFailure = errors.New("transient error during completion")

	// ErrInvalidConfig is returned when the provider configuration is invalid
	ErrInvalidConfig = errors.New("invalid completer configuration")
)
