// internal/inference/mock.go
package inference

import (
	"fmt"

	"github.com/SyedDaiam9101/forecast-service/internal/window"
)

// MockEngine is a mock implementation of Engine for testing.
// It returns deterministic frames without requiring the ONNX shared library:
// every output element is the matching input element plus Offset.
type MockEngine struct {
	// Frames is the native sequence length the mock accepts
	Frames int
	// Offset is added to every input element
	Offset float32
	// ShouldError if true, Forward will return an error
	ShouldError bool
	// ErrorMessage is the error message to return when ShouldError is true
	ErrorMessage string
	// CallCount tracks the number of times Forward was called
	CallCount int
	// Training reports the last mode switch
	Training bool
}

// NewMock creates a new MockEngine for frames-long windows with offset 1
func NewMock(frames int) *MockEngine {
	return &MockEngine{
		Frames: frames,
		Offset: 1,
	}
}

// Forward validates x and returns it shifted by Offset.
func (m *MockEngine) Forward(x *window.Window) (*window.Window, error) {
	m.CallCount++

	if m.ShouldError {
		if m.ErrorMessage != "" {
			return nil, fmt.Errorf("%s", m.ErrorMessage)
		}
		return nil, fmt.Errorf("mock inference error")
	}

	if x.Batch() == 0 {
		return nil, fmt.Errorf("empty input batch")
	}
	if x.Frames() != m.Frames {
		return nil, fmt.Errorf("input has wrong size: got %d frames, expected %d: %w", x.Frames(), m.Frames, window.ErrShapeMismatch)
	}

	out := x.Detach().To(x.Device())
	for i := range out.Data {
		out.Data[i] += m.Offset
	}
	return out, nil
}

func (m *MockEngine) Train() { m.Training = true }
func (m *MockEngine) Eval()  { m.Training = false }

// Close is a no-op for the mock implementation
func (m *MockEngine) Close() error {
	return nil
}

// SetError configures the mock to return an error on the next Forward call
func (m *MockEngine) SetError(msg string) {
	m.ShouldError = true
	m.ErrorMessage = msg
}

// ClearError clears any configured error
func (m *MockEngine) ClearError() {
	m.ShouldError = false
	m.ErrorMessage = ""
}

// Ensure MockEngine implements Engine at compile time
var _ Engine = (*MockEngine)(nil)
