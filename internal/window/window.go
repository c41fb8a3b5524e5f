// Package window provides the dense frame tensor shared by the predictor, the
// epoch runner and the models.
//
// A Window is laid out row-major as [batch, time, channels, height, width].
package window

import (
	"errors"
	"fmt"
)

// HostDevice is the device name of host memory.
const HostDevice = "cpu"

var (
	// ErrShapeMismatch is returned when two windows cannot be combined.
	ErrShapeMismatch = errors.New("window shape mismatch")
	// ErrEmptyConcat is returned when a concatenation receives no windows.
	ErrEmptyConcat = errors.New("nothing to concatenate")
	// ErrTooLarge is returned when a shape holds more than MaxElements values.
	ErrTooLarge = errors.New("window too large")
)

// MaxElements bounds the number of values a window built from external
// data may hold.
const MaxElements = 1 << 30

// Elements returns the product of dims. It fails on negative dimensions and
// when the product exceeds limit, checking before each multiplication so the
// product never overflows.
func Elements(limit int, dims ...int) (int, error) {
	n := 1
	for _, d := range dims {
		if d < 0 {
			return 0, fmt.Errorf("negative dimension in shape %v", dims)
		}
		if d == 0 {
			n = 0
			continue
		}
		if n > limit/d {
			return 0, fmt.Errorf("shape %v exceeds %d elements: %w", dims, limit, ErrTooLarge)
		}
		n *= d
	}
	if n > limit {
		return 0, fmt.Errorf("shape %v exceeds %d elements: %w", dims, limit, ErrTooLarge)
	}
	return n, nil
}

// Window holds a batch of frame sequences.
type Window struct {
	Data   []float32
	shape  [5]int
	device string

	// autograd state, see autograd.go
	requiresGrad bool
	grad         []float32
	parents      []*Window
	backward     func(grad []float32)
}

// New allocates a zeroed window on the host device.
func New(batch, frames, channels, height, width int) *Window {
	return &Window{
		Data:   make([]float32, batch*frames*channels*height*width),
		shape:  [5]int{batch, frames, channels, height, width},
		device: HostDevice,
	}
}

// FromData wraps data (without copying) as a window of the given shape.
func FromData(data []float32, batch, frames, channels, height, width int) (*Window, error) {
	n, err := Elements(MaxElements, batch, frames, channels, height, width)
	if err != nil {
		return nil, err
	}
	if len(data) != n {
		return nil, fmt.Errorf("shape [%d %d %d %d %d] has %d elements, data has %d: %w",
			batch, frames, channels, height, width, n, len(data), ErrShapeMismatch)
	}
	return &Window{
		Data:   data,
		shape:  [5]int{batch, frames, channels, height, width},
		device: HostDevice,
	}, nil
}

// Shape returns [batch, time, channels, height, width].
func (w *Window) Shape() [5]int { return w.shape }

// Batch returns the size of the batch axis.
func (w *Window) Batch() int { return w.shape[0] }

// Frames returns the length of the time axis.
func (w *Window) Frames() int { return w.shape[1] }

// Channels returns the number of channels per frame.
func (w *Window) Channels() int { return w.shape[2] }

// Height returns the frame height.
func (w *Window) Height() int { return w.shape[3] }

// Width returns the frame width.
func (w *Window) Width() int { return w.shape[4] }

// FrameSize is the number of elements in one frame (C*H*W).
func (w *Window) FrameSize() int { return w.shape[2] * w.shape[3] * w.shape[4] }

// Len is the total number of elements.
func (w *Window) Len() int { return len(w.Data) }

// Device returns the name of the device the window resides on.
func (w *Window) Device() string { return w.device }

// Frame returns the storage of frame t of sample b. The slice aliases w.Data.
func (w *Window) Frame(b, t int) []float32 {
	fs := w.FrameSize()
	off := (b*w.shape[1] + t) * fs
	return w.Data[off : off+fs]
}

// Sample returns a window holding a copy of sample b.
func (w *Window) Sample(b int) *Window {
	n := w.shape[1] * w.FrameSize()
	data := make([]float32, n)
	copy(data, w.Data[b*n:(b+1)*n])
	return &Window{
		Data:   data,
		shape:  [5]int{1, w.shape[1], w.shape[2], w.shape[3], w.shape[4]},
		device: w.device,
	}
}

// Clone returns a copy of w. Gradients flow from the copy back into w.
func (w *Window) Clone() *Window {
	out := &Window{
		Data:   make([]float32, len(w.Data)),
		shape:  w.shape,
		device: w.device,
	}
	copy(out.Data, w.Data)
	if w.requiresGrad {
		out.Attach(func(grad []float32) {
			w.AccumulateGrad(grad)
		}, w)
	}
	return out
}

// To returns w relabelled for device. If w already resides there it is
// returned as is.
func (w *Window) To(device string) *Window {
	if w.device == device {
		return w
	}
	out := w.Clone()
	out.device = device
	return out
}

// Detach returns a host copy of w that carries no gradient history.
func (w *Window) Detach() *Window {
	out := &Window{
		Data:   make([]float32, len(w.Data)),
		shape:  w.shape,
		device: HostDevice,
	}
	copy(out.Data, w.Data)
	return out
}

// SliceTime returns frames [start, end) of every sample as a new window.
func (w *Window) SliceTime(start, end int) (*Window, error) {
	if start < 0 || end < start || end > w.shape[1] {
		return nil, fmt.Errorf("time slice [%d:%d] out of range for %d frames: %w",
			start, end, w.shape[1], ErrShapeMismatch)
	}
	b, t, fs := w.shape[0], w.shape[1], w.FrameSize()
	n := end - start
	out := &Window{
		Data:   make([]float32, b*n*fs),
		shape:  [5]int{b, n, w.shape[2], w.shape[3], w.shape[4]},
		device: w.device,
	}
	for i := 0; i < b; i++ {
		src := w.Data[(i*t+start)*fs : (i*t+end)*fs]
		copy(out.Data[i*n*fs:(i+1)*n*fs], src)
	}
	if w.requiresGrad {
		out.Attach(func(grad []float32) {
			g := make([]float32, len(w.Data))
			for i := 0; i < b; i++ {
				copy(g[(i*t+start)*fs:(i*t+end)*fs], grad[i*n*fs:(i+1)*n*fs])
			}
			w.AccumulateGrad(g)
		}, w)
	}
	return out, nil
}

// ConcatTime joins windows along the time axis. All windows must agree on
// batch, channels, height, width and device.
func ConcatTime(ws ...*Window) (*Window, error) {
	if len(ws) == 0 {
		return nil, ErrEmptyConcat
	}
	first := ws[0]
	total := 0
	tracked := false
	for i, w := range ws {
		s := w.shape
		if s[0] != first.shape[0] || s[2] != first.shape[2] || s[3] != first.shape[3] || s[4] != first.shape[4] {
			return nil, fmt.Errorf("window %d has shape %v, expected %v on all but the time axis: %w",
				i, s, first.shape, ErrShapeMismatch)
		}
		if w.device != first.device {
			return nil, fmt.Errorf("window %d is on %q, expected %q: %w", i, w.device, first.device, ErrShapeMismatch)
		}
		total += s[1]
		tracked = tracked || w.requiresGrad
	}
	b, fs := first.shape[0], first.FrameSize()
	out := &Window{
		Data:   make([]float32, b*total*fs),
		shape:  [5]int{b, total, first.shape[2], first.shape[3], first.shape[4]},
		device: first.device,
	}
	offsets := make([]int, len(ws))
	off := 0
	for k, w := range ws {
		offsets[k] = off
		n := w.shape[1]
		for i := 0; i < b; i++ {
			copy(out.Data[(i*total+off)*fs:(i*total+off+n)*fs], w.Data[i*n*fs:(i+1)*n*fs])
		}
		off += n
	}
	if tracked {
		out.Attach(func(grad []float32) {
			for k, w := range ws {
				if !w.requiresGrad {
					continue
				}
				n := w.shape[1]
				g := make([]float32, len(w.Data))
				for i := 0; i < b; i++ {
					copy(g[i*n*fs:(i+1)*n*fs], grad[(i*total+offsets[k])*fs:(i*total+offsets[k]+n)*fs])
				}
				w.AccumulateGrad(g)
			}
		}, ws...)
	}
	return out, nil
}

// ConcatBatch joins windows along the batch axis. The result is detached.
func ConcatBatch(ws ...*Window) (*Window, error) {
	if len(ws) == 0 {
		return nil, ErrEmptyConcat
	}
	first := ws[0]
	total, n := 0, 0
	for i, w := range ws {
		s := w.shape
		if s[1] != first.shape[1] || s[2] != first.shape[2] || s[3] != first.shape[3] || s[4] != first.shape[4] {
			return nil, fmt.Errorf("window %d has shape %v, expected %v on all but the batch axis: %w",
				i, s, first.shape, ErrShapeMismatch)
		}
		if w.device != first.device {
			return nil, fmt.Errorf("window %d is on %q, expected %q: %w", i, w.device, first.device, ErrShapeMismatch)
		}
		total += s[0]
		n += len(w.Data)
	}
	data := make([]float32, 0, n)
	for _, w := range ws {
		data = append(data, w.Data...)
	}
	return &Window{
		Data:   data,
		shape:  [5]int{total, first.shape[1], first.shape[2], first.shape[3], first.shape[4]},
		device: first.device,
	}, nil
}

// SplitBatch cuts w into consecutive windows of at most size samples.
func SplitBatch(w *Window, size int) ([]*Window, error) {
	if size <= 0 {
		return nil, fmt.Errorf("invalid split size %d", size)
	}
	per := w.shape[1] * w.FrameSize()
	var out []*Window
	for start := 0; start < w.shape[0]; start += size {
		end := start + size
		if end > w.shape[0] {
			end = w.shape[0]
		}
		data := make([]float32, (end-start)*per)
		copy(data, w.Data[start*per:end*per])
		out = append(out, &Window{
			Data:   data,
			shape:  [5]int{end - start, w.shape[1], w.shape[2], w.shape[3], w.shape[4]},
			device: w.device,
		})
	}
	return out, nil
}

// Equal reports whether a and b have the same shape and identical values.
func Equal(a, b *Window) bool {
	if a.shape != b.shape || len(a.Data) != len(b.Data) {
		return false
	}
	for i := range a.Data {
		if a.Data[i] != b.Data[i] {
			return false
		}
	}
	return true
}

func (w *Window) String() string {
	return fmt.Sprintf("Window%v@%s", w.shape, w.device)
}
