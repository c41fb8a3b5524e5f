package window

import (
	"errors"
	"testing"
)

func seq(b, t, c, h, w int) *Window {
	win := New(b, t, c, h, w)
	for i := range win.Data {
		win.Data[i] = float32(i)
	}
	return win
}

func TestFromDataShapeMismatch(t *testing.T) {
	_, err := FromData(make([]float32, 5), 1, 2, 1, 1, 2)
	if !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("Expected ErrShapeMismatch, got %v", err)
	}
}

func TestFromDataRejectsOverflowingShape(t *testing.T) {
	// 65536^4 wraps to 0 in int64 arithmetic
	const d = 1 << 16
	_, err := FromData(nil, d, 1, d, d, d)
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("Expected ErrTooLarge, got %v", err)
	}
}

func TestElements(t *testing.T) {
	tests := []struct {
		name string
		dims []int
		want int
		err  bool
	}{
		{"product", []int{2, 3, 4}, 24, false},
		{"zero dim", []int{0, 1 << 20, 1 << 20}, 0, false},
		{"at limit", []int{10, 10}, 100, false},
		{"over limit", []int{10, 11}, 0, true},
		{"overflow", []int{1 << 16, 1 << 16, 1 << 16, 1 << 16}, 0, true},
		{"negative", []int{2, -1}, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Elements(100, tt.dims...)
			if (err != nil) != tt.err {
				t.Fatalf("Elements(%v) error = %v, want error %v", tt.dims, err, tt.err)
			}
			if got != tt.want {
				t.Errorf("Elements(%v) = %d, want %d", tt.dims, got, tt.want)
			}
		})
	}
}

func TestSliceTime(t *testing.T) {
	w := seq(2, 4, 1, 1, 2)

	out, err := w.SliceTime(1, 3)
	if err != nil {
		t.Fatalf("SliceTime failed: %v", err)
	}
	if out.Shape() != [5]int{2, 2, 1, 1, 2} {
		t.Fatalf("Unexpected shape %v", out.Shape())
	}
	// sample 0 frames 1..2 are elements 2..5, sample 1 frames 1..2 are 10..13
	expected := []float32{2, 3, 4, 5, 10, 11, 12, 13}
	for i, v := range expected {
		if out.Data[i] != v {
			t.Errorf("Data[%d] = %f, expected %f", i, out.Data[i], v)
		}
	}

	if _, err := w.SliceTime(2, 5); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("Expected out of range error, got %v", err)
	}
}

func TestSliceTimeEmpty(t *testing.T) {
	w := seq(3, 4, 1, 1, 1)
	out, err := w.SliceTime(0, 0)
	if err != nil {
		t.Fatalf("SliceTime failed: %v", err)
	}
	if out.Frames() != 0 || out.Batch() != 3 || out.Len() != 0 {
		t.Errorf("Expected empty window with batch 3, got %v", out)
	}
}

func TestConcatTimeRoundTrip(t *testing.T) {
	w := seq(2, 5, 2, 1, 1)
	a, _ := w.SliceTime(0, 2)
	b, _ := w.SliceTime(2, 5)

	out, err := ConcatTime(a, b)
	if err != nil {
		t.Fatalf("ConcatTime failed: %v", err)
	}
	if !Equal(out, w) {
		t.Errorf("Concatenated slices differ from source: %v vs %v", out.Data, w.Data)
	}
}

func TestConcatTimeRejectsMismatch(t *testing.T) {
	a := New(2, 1, 1, 2, 2)
	b := New(3, 1, 1, 2, 2)
	if _, err := ConcatTime(a, b); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("Expected ErrShapeMismatch, got %v", err)
	}
	if _, err := ConcatTime(); !errors.Is(err, ErrEmptyConcat) {
		t.Errorf("Expected ErrEmptyConcat, got %v", err)
	}
}

func TestConcatBatchRejectsMixedDevices(t *testing.T) {
	a := New(1, 2, 1, 2, 2)
	b := New(1, 2, 1, 2, 2).To("accel")
	if _, err := ConcatBatch(a, b); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("Expected ErrShapeMismatch for mixed devices, got %v", err)
	}
	if _, err := ConcatBatch(b, b.Clone()); err != nil {
		t.Errorf("Same-device concat failed: %v", err)
	}
}

func TestConcatBatchAndSplit(t *testing.T) {
	w := seq(5, 2, 1, 1, 2)
	parts, err := SplitBatch(w, 2)
	if err != nil {
		t.Fatalf("SplitBatch failed: %v", err)
	}
	if len(parts) != 3 {
		t.Fatalf("Expected 3 parts, got %d", len(parts))
	}
	if parts[2].Batch() != 1 {
		t.Errorf("Expected last part batch 1, got %d", parts[2].Batch())
	}

	joined, err := ConcatBatch(parts...)
	if err != nil {
		t.Fatalf("ConcatBatch failed: %v", err)
	}
	if !Equal(joined, w) {
		t.Error("ConcatBatch(SplitBatch(w)) != w")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	w := seq(1, 2, 1, 1, 1)
	c := w.Clone()
	c.Data[0] = 42
	if w.Data[0] != 0 {
		t.Errorf("Clone aliases source data")
	}
}

func TestToAndDetach(t *testing.T) {
	w := seq(1, 1, 1, 1, 2)
	if w.To(HostDevice) != w {
		t.Error("To on the resident device should return the same window")
	}
	moved := w.To("accel0")
	if moved.Device() != "accel0" {
		t.Errorf("Expected device accel0, got %s", moved.Device())
	}
	back := moved.Detach()
	if back.Device() != HostDevice || back.RequiresGrad() {
		t.Errorf("Detach should produce an untracked host copy, got %v", back)
	}
}

func TestBackwardThroughSliceAndConcat(t *testing.T) {
	leaf := seq(1, 3, 1, 1, 1)
	leaf.SetRequiresGrad(true)

	a, _ := leaf.SliceTime(0, 2)
	b, _ := leaf.SliceTime(1, 3)
	out, err := ConcatTime(a, b)
	if err != nil {
		t.Fatalf("ConcatTime failed: %v", err)
	}

	if err := Backward(out, []float32{1, 1, 1, 1}); err != nil {
		t.Fatalf("Backward failed: %v", err)
	}
	// frame 1 is used twice
	expected := []float32{1, 2, 1}
	for i, v := range expected {
		if leaf.Grad()[i] != v {
			t.Errorf("Grad[%d] = %f, expected %f", i, leaf.Grad()[i], v)
		}
	}
}

func TestBackwardRequiresGrad(t *testing.T) {
	w := New(1, 1, 1, 1, 1)
	if err := Backward(w, []float32{1}); !errors.Is(err, ErrNoGrad) {
		t.Errorf("Expected ErrNoGrad, got %v", err)
	}
}
