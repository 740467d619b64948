package optimizer

import (
	"fmt"
)

// Parameter is a named, flat slice of trainable values together with its
// gradient buffer. The model owns the slices; optimizers update Data in
// place and read Grad.
type Parameter struct {
	Name  string
	Shape []int
	Data  []float32
	Grad  []float32
}

// NewParameter allocates a zero-initialized parameter with a matching
// gradient buffer.
func NewParameter(name string, shape []int) *Parameter {
	size := 1
	for _, dim := range shape {
		size *= dim
	}
	return &Parameter{
		Name:  name,
		Shape: append([]int(nil), shape...),
		Data:  make([]float32, size),
		Grad:  make([]float32, size),
	}
}

// Optimizer defines the methods that all optimizers must implement.
type Optimizer interface {
	Step() error      // Updates model parameters based on gradients
	ZeroGrad()        // Resets gradients to zero for all parameters
	GetLR() float64   // Gets current learning rate
	SetLR(lr float64) // Sets learning rate
	Name() string     // Optimizer type name for checkpoints

	// State snapshots the optimizer's internal buffers for checkpointing;
	// LoadState restores a previously snapshotted state.
	State() *State
	LoadState(state *State) error
}

// State is a serializable snapshot of optimizer internals: the step counter
// and one slot buffer per parameter per slot kind (momentum, variance, ...).
type State struct {
	Type      string                          `json:"type"`
	StepCount uint64                          `json:"step_count"`
	Slots     map[string]map[string][]float32 `json:"slots"`
}

// New constructs the optimizer selected by name. Unrecognized names are an
// error; there is no fallback.
func New(name string, params []*Parameter, lr float64, weightDecay float64) (Optimizer, error) {
	switch name {
	case "Adam":
		cfg := DefaultAdamConfig()
		cfg.LearningRate = lr
		cfg.WeightDecay = weightDecay
		return NewAdam(params, cfg), nil
	case "AdamW":
		cfg := DefaultAdamWConfig()
		cfg.LearningRate = lr
		cfg.WeightDecay = weightDecay
		return NewAdamW(params, cfg), nil
	case "Adadelta":
		cfg := DefaultAdadeltaConfig()
		cfg.LearningRate = lr
		cfg.WeightDecay = weightDecay
		return NewAdadelta(params, cfg), nil
	default:
		return nil, fmt.Errorf("unsupported optimizer: %s", name)
	}
}

// zeroGrads clears the gradient buffers of every parameter.
func zeroGrads(params []*Parameter) {
	for _, p := range params {
		for i := range p.Grad {
			p.Grad[i] = 0
		}
	}
}

// snapshotSlots copies per-parameter slot buffers into a state map.
func snapshotSlots(params []*Parameter, slots map[string][]([]float32)) map[string]map[string][]float32 {
	out := make(map[string]map[string][]float32, len(params))
	for i, p := range params {
		entry := make(map[string][]float32, len(slots))
		for slot, buffers := range slots {
			data := make([]float32, len(buffers[i]))
			copy(data, buffers[i])
			entry[slot] = data
		}
		out[p.Name] = entry
	}
	return out
}

// restoreSlots loads slot buffers for every parameter from a state map.
func restoreSlots(params []*Parameter, slots map[string][]([]float32), saved map[string]map[string][]float32) error {
	for i, p := range params {
		entry, ok := saved[p.Name]
		if !ok {
			return fmt.Errorf("state is missing parameter %q", p.Name)
		}
		for slot, buffers := range slots {
			data, ok := entry[slot]
			if !ok {
				return fmt.Errorf("state for parameter %q is missing slot %q", p.Name, slot)
			}
			if len(data) != len(buffers[i]) {
				return fmt.Errorf("slot %q size mismatch for parameter %q: %d vs %d",
					slot, p.Name, len(data), len(buffers[i]))
			}
			copy(buffers[i], data)
		}
	}
	return nil
}
