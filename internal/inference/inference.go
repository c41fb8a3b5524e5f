// internal/inference/inference.go
package inference

import (
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/SyedDaiam9101/forecast-service/internal/window"
)

// Options describe how to open an exported sequence model.
type Options struct {
	// Path to the .onnx file.
	ModelPath string
	// SharedLibrary overrides the onnxruntime shared library location.
	SharedLibrary string
	// InputName and OutputName are the graph's tensor names.
	InputName  string
	OutputName string
	// Frames is the model's native sequence length P.
	Frames int
}

// Session wraps an ONNX runtime session for thread-safe inference.
// It implements the Engine interface.
type Session struct {
	mu      sync.Mutex
	session *ort.DynamicAdvancedSession
	frames  int
}

// New creates a new Session by loading the ONNX model described by opts
func New(opts Options) (*Session, error) {
	if opts.Frames <= 0 {
		return nil, fmt.Errorf("invalid frame count %d", opts.Frames)
	}
	if opts.InputName == "" {
		opts.InputName = "x"
	}
	if opts.OutputName == "" {
		opts.OutputName = "y"
	}
	if opts.SharedLibrary != "" {
		ort.SetSharedLibraryPath(opts.SharedLibrary)
	}

	// Initialize the ONNX runtime environment
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
		}
	}

	// Create a dynamic session that supports variable batch sizes
	session, err := ort.NewDynamicAdvancedSession(
		opts.ModelPath,
		[]string{opts.InputName},
		[]string{opts.OutputName},
		nil, // Use default session options
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return &Session{
		session: session,
		frames:  opts.Frames,
	}, nil
}

// Forward runs the exported model on x, a [batch, P, C, H, W] window, and
// returns the next P frames.
func (s *Session) Forward(x *window.Window) (*window.Window, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		return nil, fmt.Errorf("inference session is nil")
	}
	if x.Batch() == 0 {
		return nil, fmt.Errorf("empty input batch")
	}
	if x.Frames() != s.frames {
		return nil, fmt.Errorf("input has wrong size: got %d frames, expected %d: %w", x.Frames(), s.frames, window.ErrShapeMismatch)
	}

	shape := x.Shape()
	dims := ort.NewShape(int64(shape[0]), int64(shape[1]), int64(shape[2]), int64(shape[3]), int64(shape[4]))

	// The runtime only reads from the input buffer.
	inputTensor, err := ort.NewTensor(dims, x.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer inputTensor.Destroy()

	out := window.New(shape[0], shape[1], shape[2], shape[3], shape[4])
	outputTensor, err := ort.NewTensor(ort.NewShape(dims...), out.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}
	defer outputTensor.Destroy()

	// Run inference
	err = s.session.Run(
		[]ort.ArbitraryTensor{inputTensor},
		[]ort.ArbitraryTensor{outputTensor},
	)
	if err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	return out.To(x.Device()), nil
}

// Train is a no-op; exported graphs are frozen.
func (s *Session) Train() {}

// Eval is a no-op; exported graphs are frozen.
func (s *Session) Eval() {}

// Close releases the ONNX session resources
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session != nil {
		err := s.session.Destroy()
		s.session = nil
		if err != nil {
			return fmt.Errorf("failed to destroy session: %w", err)
		}
	}

	return ort.DestroyEnvironment()
}

// Ensure Session implements Engine at compile time
var _ Engine = (*Session)(nil)
