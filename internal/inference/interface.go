// internal/inference/interface.go
package inference

import "github.com/SyedDaiam9101/forecast-service/internal/window"

// Engine is an inference-only sequence model.
// This abstraction allows for easy mocking in tests and swapping implementations.
type Engine interface {
	// Forward maps a [batch, P, C, H, W] window to the next P frames.
	Forward(x *window.Window) (*window.Window, error)

	// Train and Eval satisfy the runner's mode switch. Inference engines
	// behave identically in both modes.
	Train()
	Eval()

	// Close releases any resources held by the engine.
	Close() error
}
