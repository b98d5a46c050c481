package ai

import "context"

// Completer defines the interface for text completion against an external
// language model. This interface is the boundary between the orchestration
// core and whichever AI provider backs it; prompt construction and response
// parsing belong to the caller.
type Completer interface {
	// Complete sends the prompt to the model and returns the raw response
	// text. The context can be used for cancellation; implementations are
	// expected to retry transient provider failures internally.
	Complete(ctx context.Context, prompt string) (string, error)
}

// ImageAnalyzer defines the interface for extracting structured information
// from an image file, such as a statistics-site screenshot.
type ImageAnalyzer interface {
	// AnalyzeImage runs the prompt against the image at path and returns
	// the model's textual answer.
	AnalyzeImage(ctx context.Context, path, prompt string) (string, error)
}
