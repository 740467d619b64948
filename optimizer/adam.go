package optimizer

import (
	"fmt"
	"math"
)

// AdamConfig holds configuration for the Adam optimizer.
type AdamConfig struct {
	LearningRate float64
	Beta1        float64 // Momentum decay (typically 0.9)
	Beta2        float64 // Variance decay (typically 0.999)
	Epsilon      float64 // Small constant to prevent division by zero
	WeightDecay  float64 // L2 regularization coefficient
}

// DefaultAdamConfig returns default Adam optimizer configuration.
func DefaultAdamConfig() AdamConfig {
	return AdamConfig{
		LearningRate: 0.001,
		Beta1:        0.9,
		Beta2:        0.999,
		Epsilon:      1e-8,
		WeightDecay:  0.0,
	}
}

// Adam implements the Adam optimizer with bias correction.
type Adam struct {
	params    []*Parameter
	config    AdamConfig
	momentum  [][]float32 // First moment per parameter
	variance  [][]float32 // Second moment per parameter
	stepCount uint64
	decoupled bool // AdamW-style decoupled weight decay
	name      string
}

// NewAdam creates an Adam optimizer over the given parameters.
func NewAdam(params []*Parameter, config AdamConfig) *Adam {
	adam := &Adam{
		params:   params,
		config:   config,
		momentum: make([][]float32, len(params)),
		variance: make([][]float32, len(params)),
		name:     "Adam",
	}
	for i, p := range params {
		adam.momentum[i] = make([]float32, len(p.Data))
		adam.variance[i] = make([]float32, len(p.Data))
	}
	return adam
}

// AdamWConfig is the configuration for AdamW; it shares Adam's fields.
type AdamWConfig = AdamConfig

// DefaultAdamWConfig returns default AdamW optimizer configuration.
func DefaultAdamWConfig() AdamWConfig {
	cfg := DefaultAdamConfig()
	cfg.WeightDecay = 0.01
	return cfg
}

// NewAdamW creates an Adam optimizer with decoupled weight decay.
func NewAdamW(params []*Parameter, config AdamWConfig) *Adam {
	adam := NewAdam(params, config)
	adam.decoupled = true
	adam.name = "AdamW"
	return adam
}

// Step performs a single optimization step.
func (adam *Adam) Step() error {
	adam.stepCount++

	beta1 := adam.config.Beta1
	beta2 := adam.config.Beta2
	lr := adam.config.LearningRate

	// Bias correction terms for the current step
	correction1 := 1.0 - math.Pow(beta1, float64(adam.stepCount))
	correction2 := 1.0 - math.Pow(beta2, float64(adam.stepCount))

	for i, p := range adam.params {
		m := adam.momentum[i]
		v := adam.variance[i]

		for j := range p.Data {
			grad := float64(p.Grad[j])

			if adam.config.WeightDecay != 0 && !adam.decoupled {
				grad += adam.config.WeightDecay * float64(p.Data[j])
			}

			mj := beta1*float64(m[j]) + (1-beta1)*grad
			vj := beta2*float64(v[j]) + (1-beta2)*grad*grad
			m[j] = float32(mj)
			v[j] = float32(vj)

			mHat := mj / correction1
			vHat := vj / correction2

			update := lr * mHat / (math.Sqrt(vHat) + adam.config.Epsilon)
			if adam.decoupled && adam.config.WeightDecay != 0 {
				update += lr * adam.config.WeightDecay * float64(p.Data[j])
			}

			p.Data[j] = float32(float64(p.Data[j]) - update)
		}
	}

	return nil
}

// ZeroGrad resets all parameter gradients.
func (adam *Adam) ZeroGrad() {
	zeroGrads(adam.params)
}

func (adam *Adam) GetLR() float64 {
	return adam.config.LearningRate
}

func (adam *Adam) SetLR(lr float64) {
	adam.config.LearningRate = lr
}

func (adam *Adam) Name() string {
	return adam.name
}

// State snapshots the momentum and variance buffers.
func (adam *Adam) State() *State {
	return &State{
		Type:      adam.name,
		StepCount: adam.stepCount,
		Slots: snapshotSlots(adam.params, map[string][][]float32{
			"m": adam.momentum,
			"v": adam.variance,
		}),
	}
}

// LoadState restores momentum, variance and the step counter.
func (adam *Adam) LoadState(state *State) error {
	if state.Type != adam.name {
		return fmt.Errorf("state type %q does not match optimizer %q", state.Type, adam.name)
	}
	if err := restoreSlots(adam.params, map[string][][]float32{
		"m": adam.momentum,
		"v": adam.variance,
	}, state.Slots); err != nil {
		return err
	}
	adam.stepCount = state.StepCount
	return nil
}
