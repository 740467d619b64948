package training

import (
	"math"

	"github.com/doritos0812/p4-fr-sorry-math-but-love-you/optimizer"
)

// GradScaler implements loss scaling for mixed precision training. The
// loss is multiplied by the scale factor before the backward pass so
// small gradients survive reduced precision; gradients are divided back
// before clipping and the optimizer step. A batch whose unscaled
// gradients contain non-finite values skips the optimizer step and
// halves the scale factor; after a window of clean steps the factor
// grows again.
type GradScaler struct {
	scale          float64
	growthFactor   float64
	backoffFactor  float64
	growthInterval int

	growthTracker int
	foundInf      bool
}

// GradScalerConfig holds the scaler's tuning knobs.
type GradScalerConfig struct {
	InitScale      float64
	GrowthFactor   float64
	BackoffFactor  float64
	GrowthInterval int
}

// DefaultGradScalerConfig returns the standard scaler configuration.
func DefaultGradScalerConfig() GradScalerConfig {
	return GradScalerConfig{
		InitScale:      65536.0,
		GrowthFactor:   2.0,
		BackoffFactor:  0.5,
		GrowthInterval: 2000,
	}
}

// NewGradScaler creates a gradient scaler from the given configuration.
func NewGradScaler(config GradScalerConfig) *GradScaler {
	return &GradScaler{
		scale:          config.InitScale,
		growthFactor:   config.GrowthFactor,
		backoffFactor:  config.BackoffFactor,
		growthInterval: config.GrowthInterval,
	}
}

// ScaleFactor returns the current loss scale. The backward pass is
// seeded with this value.
func (s *GradScaler) ScaleFactor() float64 {
	return s.scale
}

// Unscale divides every parameter gradient by the scale factor and
// records whether any unscaled gradient is non-finite. Must be called
// after the backward pass and before gradient clipping.
func (s *GradScaler) Unscale(params []*optimizer.Parameter) {
	inv := float32(1.0 / s.scale)
	s.foundInf = false

	for _, p := range params {
		for i, g := range p.Grad {
			v := g * inv
			p.Grad[i] = v
			if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
				s.foundInf = true
			}
		}
	}
}

// StepOptimizer applies the optimizer step unless the last Unscale
// found non-finite gradients, in which case the step is skipped for
// this batch.
func (s *GradScaler) StepOptimizer(opt optimizer.Optimizer) error {
	if s.foundInf {
		return nil
	}
	return opt.Step()
}

// Stepped reports whether the last StepOptimizer actually stepped.
func (s *GradScaler) Stepped() bool {
	return !s.foundInf
}

// Update adjusts the scale factor after a batch: backoff on non-finite
// gradients, growth after growthInterval consecutive clean batches.
func (s *GradScaler) Update() {
	if s.foundInf {
		s.scale *= s.backoffFactor
		s.growthTracker = 0
		s.foundInf = false
		return
	}

	s.growthTracker++
	if s.growthTracker >= s.growthInterval {
		s.scale *= s.growthFactor
		s.growthTracker = 0
	}
}

// ClipGradNorm clips the global gradient norm of all parameters to
// maxNorm and returns the total norm before clipping. Gradients must
// already be unscaled.
func ClipGradNorm(params []*optimizer.Parameter, maxNorm float64) float64 {
	var sumSquares float64
	for _, p := range params {
		for _, g := range p.Grad {
			sumSquares += float64(g) * float64(g)
		}
	}
	totalNorm := math.Sqrt(sumSquares)

	if totalNorm > maxNorm {
		clipCoef := float32(maxNorm / (totalNorm + 1e-6))
		for _, p := range params {
			for i := range p.Grad {
				p.Grad[i] *= clipCoef
			}
		}
	}

	return totalNorm
}
