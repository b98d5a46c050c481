// Package ai defines the interfaces through which the engine consumes
// external language-model capabilities: text completion and image analysis.
// It serves as a boundary between the orchestration core and external AI
// services, following the hexagonal architecture pattern.
package ai
