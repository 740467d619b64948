package optimizer

import (
	"fmt"
	"math"
)

// AdadeltaConfig holds configuration for the Adadelta optimizer.
type AdadeltaConfig struct {
	LearningRate float64 // Scaling factor applied to the computed delta
	Rho          float64 // Decay rate for the running averages
	Epsilon      float64 // Small constant to prevent division by zero
	WeightDecay  float64 // L2 regularization coefficient
}

// DefaultAdadeltaConfig returns default Adadelta optimizer configuration.
func DefaultAdadeltaConfig() AdadeltaConfig {
	return AdadeltaConfig{
		LearningRate: 1.0,
		Rho:          0.9,
		Epsilon:      1e-6,
		WeightDecay:  0.0,
	}
}

// Adadelta implements the Adadelta optimizer, which adapts step sizes from
// running averages of squared gradients and squared updates.
type Adadelta struct {
	params    []*Parameter
	config    AdadeltaConfig
	squareAvg [][]float32 // Running average of squared gradients
	accDelta  [][]float32 // Running average of squared updates
	stepCount uint64
}

// NewAdadelta creates an Adadelta optimizer over the given parameters.
func NewAdadelta(params []*Parameter, config AdadeltaConfig) *Adadelta {
	ad := &Adadelta{
		params:    params,
		config:    config,
		squareAvg: make([][]float32, len(params)),
		accDelta:  make([][]float32, len(params)),
	}
	for i, p := range params {
		ad.squareAvg[i] = make([]float32, len(p.Data))
		ad.accDelta[i] = make([]float32, len(p.Data))
	}
	return ad
}

// Step performs a single optimization step.
func (ad *Adadelta) Step() error {
	ad.stepCount++

	rho := ad.config.Rho
	eps := ad.config.Epsilon

	for i, p := range ad.params {
		sq := ad.squareAvg[i]
		acc := ad.accDelta[i]

		for j := range p.Data {
			grad := float64(p.Grad[j])

			if ad.config.WeightDecay != 0 {
				grad += ad.config.WeightDecay * float64(p.Data[j])
			}

			sqj := rho*float64(sq[j]) + (1-rho)*grad*grad
			sq[j] = float32(sqj)

			delta := math.Sqrt(float64(acc[j])+eps) / math.Sqrt(sqj+eps) * grad
			acc[j] = float32(rho*float64(acc[j]) + (1-rho)*delta*delta)

			p.Data[j] = float32(float64(p.Data[j]) - ad.config.LearningRate*delta)
		}
	}

	return nil
}

// ZeroGrad resets all parameter gradients.
func (ad *Adadelta) ZeroGrad() {
	zeroGrads(ad.params)
}

func (ad *Adadelta) GetLR() float64 {
	return ad.config.LearningRate
}

func (ad *Adadelta) SetLR(lr float64) {
	ad.config.LearningRate = lr
}

func (ad *Adadelta) Name() string {
	return "Adadelta"
}

// State snapshots the running-average buffers.
func (ad *Adadelta) State() *State {
	return &State{
		Type:      "Adadelta",
		StepCount: ad.stepCount,
		Slots: snapshotSlots(ad.params, map[string][][]float32{
			"square_avg": ad.squareAvg,
			"acc_delta":  ad.accDelta,
		}),
	}
}

// LoadState restores the running averages and the step counter.
func (ad *Adadelta) LoadState(state *State) error {
	if state.Type != "Adadelta" {
		return fmt.Errorf("state type %q does not match optimizer %q", state.Type, "Adadelta")
	}
	if err := restoreSlots(ad.params, map[string][][]float32{
		"square_avg": ad.squareAvg,
		"acc_delta":  ad.accDelta,
	}, state.Slots); err != nil {
		return err
	}
	ad.stepCount = state.StepCount
	return nil
}
