package training

import (
	"fmt"
	"math"

	"github.com/doritos0812/p4-fr-sorry-math-but-love-you/config"
)

// Schedule is the uniform contract every learning rate schedule
// exposes: advance one step, report the current rate. Cyclical and
// cosine schedules advance once per training batch; plateau and step
// schedules advance once per epoch.
type Schedule interface {
	// Step consumes one scheduler step.
	Step()

	// Rate returns the learning rate for the current step. It is
	// applied to the optimizer as a direct scalar assignment.
	Rate() float64

	// Name returns the schedule name for logging and checkpoints.
	Name() string

	// PerBatch reports whether Step is to be called once per batch
	// rather than once per epoch.
	PerBatch() bool
}

// CyclicalSchedule implements a triangular one-cycle policy. The rate
// rises from peak/divider to the peak over the cut fraction of the
// cycle, then falls back over the remainder. Each time the cycle wraps
// the peak is reduced by the decay pair, alternating between its two
// factors.
type CyclicalSchedule struct {
	peak       float64
	divider    float64
	cutFrac    float64
	cycleSteps int
	decay      [2]float64

	step  int
	cycle int
}

// NewCyclicalSchedule creates a cyclical triangular schedule. cutFrac
// is the fraction of the cycle spent rising; 0.5 gives a symmetric
// triangle.
func NewCyclicalSchedule(maxRate float64, divider float64, cutFrac float64, cycleSteps int, decay [2]float64) (*CyclicalSchedule, error) {
	if maxRate <= 0 {
		return nil, fmt.Errorf("cyclical schedule requires a positive max rate, got %f", maxRate)
	}
	if divider <= 0 {
		return nil, fmt.Errorf("cyclical schedule requires a positive divider, got %f", divider)
	}
	if cutFrac <= 0 || cutFrac >= 1 {
		return nil, fmt.Errorf("cyclical schedule cut fraction must be in (0, 1), got %f", cutFrac)
	}
	if cycleSteps < 2 {
		return nil, fmt.Errorf("cyclical schedule requires at least 2 steps per cycle, got %d", cycleSteps)
	}
	return &CyclicalSchedule{
		peak:       maxRate,
		divider:    divider,
		cutFrac:    cutFrac,
		cycleSteps: cycleSteps,
		decay:      decay,
	}, nil
}

func (s *CyclicalSchedule) Step() {
	s.step++
	if s.step >= s.cycleSteps {
		s.step = 0
		s.peak *= s.decay[s.cycle%2]
		s.cycle++
	}
}

func (s *CyclicalSchedule) Rate() float64 {
	up := s.cutFrac * float64(s.cycleSteps)
	low := s.peak / s.divider

	var frac float64
	if float64(s.step) <= up {
		frac = float64(s.step) / up
	} else {
		frac = 1 - (float64(s.step)-up)/(float64(s.cycleSteps)-up)
	}
	return low + (s.peak-low)*frac
}

func (s *CyclicalSchedule) Name() string {
	return "Cycle"
}

func (s *CyclicalSchedule) PerBatch() bool {
	return true
}

// CosineWarmRestartSchedule implements cosine annealing with linear
// warm-up and periodic restarts. Within a restart window of length
// tCur: for t < tUp the rate ramps linearly from 0 to etaMax, then
// decays along a cosine to 0. On crossing the window boundary t resets,
// the window length is multiplied by tMult and etaMax by gamma.
type CosineWarmRestartSchedule struct {
	etaMax float64
	tUp    int
	tMult  int
	gamma  float64

	t    int
	tCur int
}

// NewCosineWarmRestartSchedule creates a warm-up restart schedule with
// initial window t0. tMult = 1 keeps every window the same length;
// gamma = 1 keeps every restart's peak unchanged.
func NewCosineWarmRestartSchedule(t0 int, tMult int, etaMax float64, tUp int, gamma float64) (*CosineWarmRestartSchedule, error) {
	if t0 <= 0 {
		return nil, fmt.Errorf("cosine schedule requires a positive initial window, got %d", t0)
	}
	if tMult < 1 {
		return nil, fmt.Errorf("cosine schedule window multiplier must be >= 1, got %d", tMult)
	}
	if tUp < 0 || tUp >= t0 {
		return nil, fmt.Errorf("cosine schedule warm-up length %d must be in [0, %d)", tUp, t0)
	}
	if etaMax <= 0 {
		return nil, fmt.Errorf("cosine schedule requires a positive peak rate, got %f", etaMax)
	}
	return &CosineWarmRestartSchedule{
		etaMax: etaMax,
		tUp:    tUp,
		tMult:  tMult,
		gamma:  gamma,
		tCur:   t0,
	}, nil
}

func (s *CosineWarmRestartSchedule) Step() {
	s.t++
	if s.t >= s.tCur {
		s.t = 0
		s.tCur *= s.tMult
		s.etaMax *= s.gamma
	}
}

func (s *CosineWarmRestartSchedule) Rate() float64 {
	if s.t < s.tUp {
		if s.tUp == 0 {
			return s.etaMax
		}
		return s.etaMax * float64(s.t) / float64(s.tUp)
	}
	return s.etaMax * (1 + math.Cos(math.Pi*float64(s.t-s.tUp)/float64(s.tCur-s.tUp))) / 2
}

func (s *CosineWarmRestartSchedule) Name() string {
	return "CustomCosine"
}

func (s *CosineWarmRestartSchedule) PerBatch() bool {
	return true
}

// StepDecaySchedule multiplies the base rate by gamma every stepSize
// epochs. It advances once per epoch.
type StepDecaySchedule struct {
	baseRate float64
	stepSize int
	gamma    float64

	epoch int
}

// NewStepDecaySchedule creates a step decay schedule.
func NewStepDecaySchedule(baseRate float64, stepSize int, gamma float64) (*StepDecaySchedule, error) {
	if stepSize <= 0 {
		return nil, fmt.Errorf("step schedule requires a positive step size, got %d", stepSize)
	}
	if gamma <= 0 || gamma > 1 {
		return nil, fmt.Errorf("step schedule decay factor must be in (0, 1], got %f", gamma)
	}
	return &StepDecaySchedule{
		baseRate: baseRate,
		stepSize: stepSize,
		gamma:    gamma,
	}, nil
}

func (s *StepDecaySchedule) Step() {
	s.epoch++
}

func (s *StepDecaySchedule) Rate() float64 {
	times := s.epoch / s.stepSize
	return s.baseRate * math.Pow(s.gamma, float64(times))
}

func (s *StepDecaySchedule) Name() string {
	return "StepLR"
}

func (s *StepDecaySchedule) PerBatch() bool {
	return false
}

// PlateauSchedule reduces the rate by a factor once the observed metric
// has stopped improving for patience consecutive epochs. Observe must
// be called with the validation metric before each epoch-level Step.
type PlateauSchedule struct {
	factor    float64
	patience  int
	threshold float64

	rate        float64
	bestMetric  float64
	badEpochs   int
	initialized bool
}

// NewPlateauSchedule creates a plateau schedule minimizing the observed
// metric.
func NewPlateauSchedule(baseRate float64, factor float64, patience int) (*PlateauSchedule, error) {
	if factor <= 0 || factor >= 1 {
		return nil, fmt.Errorf("plateau schedule factor must be in (0, 1), got %f", factor)
	}
	if patience <= 0 {
		return nil, fmt.Errorf("plateau schedule requires a positive patience, got %d", patience)
	}
	return &PlateauSchedule{
		factor:    factor,
		patience:  patience,
		threshold: 1e-4,
		rate:      baseRate,
	}, nil
}

// Observe records the epoch's validation metric. The rate reduction
// decision happens here; Step is a no-op kept for interface symmetry.
func (s *PlateauSchedule) Observe(metric float64) {
	if !s.initialized {
		s.bestMetric = metric
		s.initialized = true
		return
	}

	if metric < s.bestMetric-s.threshold {
		s.bestMetric = metric
		s.badEpochs = 0
		return
	}

	s.badEpochs++
	if s.badEpochs >= s.patience {
		s.rate *= s.factor
		s.badEpochs = 0
	}
}

func (s *PlateauSchedule) Step() {}

func (s *PlateauSchedule) Rate() float64 {
	return s.rate
}

func (s *PlateauSchedule) Name() string {
	return "ReduceLROnPlateau"
}

func (s *PlateauSchedule) PerBatch() bool {
	return false
}

// ConstantSchedule keeps the learning rate fixed.
type ConstantSchedule struct {
	rate float64
}

// NewConstantSchedule creates a schedule that never changes the rate.
func NewConstantSchedule(rate float64) *ConstantSchedule {
	return &ConstantSchedule{rate: rate}
}

func (s *ConstantSchedule) Step() {}

func (s *ConstantSchedule) Rate() float64 {
	return s.rate
}

func (s *ConstantSchedule) Name() string {
	return "None"
}

func (s *ConstantSchedule) PerBatch() bool {
	return false
}

// NewSchedule builds the schedule selected in the run options, wired
// with fixed parameters for each kind: the cyclical schedule
// cycles over every batch of the whole run with a 10x amplitude and
// the 0.95/0.85 decay pair; the cosine schedule restarts every
// NumEpochs steps with a 2-step warm-up and no peak decay.
func NewSchedule(options *config.Options, batchesPerEpoch int) (Schedule, error) {
	lr := options.Optimizer.LR

	switch options.SchedulerKind() {
	case config.SchedulerCycle:
		cycle := batchesPerEpoch * options.NumEpochs
		return NewCyclicalSchedule(lr, 10, 0.1, cycle, [2]float64{0.95, 0.85})
	case config.SchedulerCosineWarmRestart:
		return NewCosineWarmRestartSchedule(options.NumEpochs, 1, lr, 2, 1.0)
	case config.SchedulerPlateau:
		return NewPlateauSchedule(lr, 0.1, options.Scheduler.Patience)
	case config.SchedulerStep:
		return NewStepDecaySchedule(lr, options.Optimizer.LREpochs, options.Optimizer.LRFactor)
	case config.SchedulerNone:
		return NewConstantSchedule(lr), nil
	default:
		return nil, fmt.Errorf("unrecognized scheduler: %s", options.Scheduler.Scheduler)
	}
}
