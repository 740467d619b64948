package tensor

import (
	"testing"
)

func TestNewTensor(t *testing.T) {
	tensor, err := New([]int{2, 3}, []float32{1, 2, 3, 4, 5, 6})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if tensor.NumElems != 6 {
		t.Errorf("Expected 6 elements, got %d", tensor.NumElems)
	}

	if tensor.Strides[0] != 3 || tensor.Strides[1] != 1 {
		t.Errorf("Expected strides [3 1], got %v", tensor.Strides)
	}
}

func TestNewTensorInvalid(t *testing.T) {
	tests := []struct {
		name  string
		shape []int
		data  []float32
	}{
		{"empty shape", []int{}, []float32{}},
		{"zero dimension", []int{2, 0}, []float32{}},
		{"negative dimension", []int{-1}, []float32{1}},
		{"data length mismatch", []int{2, 2}, []float32{1, 2, 3}},
	}

	for _, tt := range tests {
		if _, err := New(tt.shape, tt.data); err == nil {
			t.Errorf("%s: expected error, got nil", tt.name)
		}
	}
}

func TestAt(t *testing.T) {
	tensor, _ := New([]int{2, 3}, []float32{1, 2, 3, 4, 5, 6})

	v, err := tensor.At(1, 2)
	if err != nil {
		t.Fatalf("At failed: %v", err)
	}
	if v != 6 {
		t.Errorf("Expected 6, got %f", v)
	}

	if _, err := tensor.At(2, 0); err == nil {
		t.Error("Expected out-of-range error, got nil")
	}
	if _, err := tensor.At(0); err == nil {
		t.Error("Expected index count error, got nil")
	}
}

func TestClone(t *testing.T) {
	tensor, _ := New([]int{2, 2}, []float32{1, 2, 3, 4})
	clone := tensor.Clone()

	clone.Data[0] = 99
	if tensor.Data[0] != 1 {
		t.Error("Clone shares data with original")
	}

	if !tensor.Equal(tensor.Clone(), 0) {
		t.Error("Clone should be equal to original")
	}
}

func TestEqual(t *testing.T) {
	a, _ := New([]int{2}, []float32{1.0, 2.0})
	b, _ := New([]int{2}, []float32{1.0, 2.0000001})
	c, _ := New([]int{2}, []float32{1.0, 3.0})
	d, _ := New([]int{1, 2}, []float32{1.0, 2.0})

	if !a.Equal(b, 1e-5) {
		t.Error("Expected a == b within tolerance")
	}
	if a.Equal(c, 1e-5) {
		t.Error("Expected a != c")
	}
	if a.Equal(d, 1e-5) {
		t.Error("Expected shape mismatch to compare unequal")
	}
}

func TestArgmaxLastDim(t *testing.T) {
	// [1, 2, 3]: two positions over three classes
	tensor, _ := New([]int{1, 2, 3}, []float32{
		0.1, 0.7, 0.2,
		0.5, 0.1, 0.4,
	})

	seq, err := tensor.ArgmaxLastDim()
	if err != nil {
		t.Fatalf("ArgmaxLastDim failed: %v", err)
	}

	if seq[0][0] != 1 || seq[0][1] != 0 {
		t.Errorf("Expected [1 0], got %v", seq[0])
	}

	flat, _ := New([]int{2, 3}, []float32{1, 2, 3, 4, 5, 6})
	if _, err := flat.ArgmaxLastDim(); err == nil {
		t.Error("Expected error for 2D tensor, got nil")
	}
}
