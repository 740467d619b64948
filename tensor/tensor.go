package tensor

import (
	"fmt"
	"math"
)

// Tensor is a dense, row-major float32 tensor kept in host memory.
// Image batches and model output distributions are carried in this form.
type Tensor struct {
	Shape    []int
	Strides  []int
	Data     []float32
	NumElems int
}

func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor(shape=%v, elements=%d)", t.Shape, t.NumElems)
}

func calculateStrides(shape []int) []int {
	if len(shape) == 0 {
		return []int{}
	}

	strides := make([]int, len(shape))
	stride := 1
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = stride
		stride *= shape[i]
	}
	return strides
}

func calculateNumElements(shape []int) int {
	if len(shape) == 0 {
		return 0
	}

	elements := 1
	for _, dim := range shape {
		elements *= dim
	}
	return elements
}

func validateShape(shape []int) error {
	if len(shape) == 0 {
		return fmt.Errorf("invalid shape: must have at least one dimension")
	}
	for i, dim := range shape {
		if dim <= 0 {
			return fmt.Errorf("invalid shape: dimension %d has size %d, must be positive", i, dim)
		}
	}
	return nil
}

// New creates a tensor with the given shape backed by data. The data slice
// is retained, not copied; its length must match the shape exactly.
func New(shape []int, data []float32) (*Tensor, error) {
	if err := validateShape(shape); err != nil {
		return nil, err
	}

	numElems := calculateNumElements(shape)
	if len(data) != numElems {
		return nil, fmt.Errorf("data length %d does not match shape %v (%d elements)", len(data), shape, numElems)
	}

	return &Tensor{
		Shape:    append([]int(nil), shape...),
		Strides:  calculateStrides(shape),
		Data:     data,
		NumElems: numElems,
	}, nil
}

// Zeros creates a zero-filled tensor with the given shape.
func Zeros(shape []int) (*Tensor, error) {
	if err := validateShape(shape); err != nil {
		return nil, err
	}
	numElems := calculateNumElements(shape)
	return New(shape, make([]float32, numElems))
}

// Dim returns the size of dimension i.
func (t *Tensor) Dim(i int) int {
	return t.Shape[i]
}

// At returns the element at the given multi-dimensional index.
func (t *Tensor) At(indices ...int) (float32, error) {
	if len(indices) != len(t.Shape) {
		return 0, fmt.Errorf("expected %d indices, got %d", len(t.Shape), len(indices))
	}

	offset := 0
	for i, idx := range indices {
		if idx < 0 || idx >= t.Shape[i] {
			return 0, fmt.Errorf("index %d out of range for dimension %d (size %d)", idx, i, t.Shape[i])
		}
		offset += idx * t.Strides[i]
	}
	return t.Data[offset], nil
}

// Clone returns a deep copy of the tensor.
func (t *Tensor) Clone() *Tensor {
	data := make([]float32, len(t.Data))
	copy(data, t.Data)

	return &Tensor{
		Shape:    append([]int(nil), t.Shape...),
		Strides:  append([]int(nil), t.Strides...),
		Data:     data,
		NumElems: t.NumElems,
	}
}

// Equal reports whether two tensors have the same shape and elementwise
// values within tol.
func (t *Tensor) Equal(other *Tensor, tol float64) bool {
	if other == nil || len(t.Shape) != len(other.Shape) {
		return false
	}
	for i, dim := range t.Shape {
		if dim != other.Shape[i] {
			return false
		}
	}
	for i, v := range t.Data {
		if math.Abs(float64(v)-float64(other.Data[i])) > tol {
			return false
		}
	}
	return true
}

// ArgmaxLastDim treats the tensor as [batch, steps, classes] and returns,
// per batch element and step, the index of the highest-scoring class.
func (t *Tensor) ArgmaxLastDim() ([][]int, error) {
	if len(t.Shape) != 3 {
		return nil, fmt.Errorf("argmax requires a 3D tensor, got shape %v", t.Shape)
	}

	batch, steps, classes := t.Shape[0], t.Shape[1], t.Shape[2]
	result := make([][]int, batch)

	for b := 0; b < batch; b++ {
		row := make([]int, steps)
		for s := 0; s < steps; s++ {
			base := b*t.Strides[0] + s*t.Strides[1]
			maxIdx := 0
			maxVal := t.Data[base]
			for c := 1; c < classes; c++ {
				if t.Data[base+c] > maxVal {
					maxVal = t.Data[base+c]
					maxIdx = c
				}
			}
			row[s] = maxIdx
		}
		result[b] = row
	}

	return result, nil
}
