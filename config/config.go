package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SchedulerKind is the closed set of learning-rate schedules a run may
// select. The kind is resolved once, before training starts; an
// unrecognized name in the configuration is a fatal error.
type SchedulerKind int

const (
	SchedulerNone SchedulerKind = iota
	SchedulerCycle
	SchedulerCosineWarmRestart
	SchedulerPlateau
	SchedulerStep
)

func (k SchedulerKind) String() string {
	switch k {
	case SchedulerNone:
		return "None"
	case SchedulerCycle:
		return "Cycle"
	case SchedulerCosineWarmRestart:
		return "CustomCosine"
	case SchedulerPlateau:
		return "ReduceLROnPlateau"
	case SchedulerStep:
		return "StepLR"
	default:
		return fmt.Sprintf("Unknown(%d)", int(k))
	}
}

// ParseSchedulerKind resolves a configured scheduler name.
func ParseSchedulerKind(name string) (SchedulerKind, error) {
	switch name {
	case "", "None":
		return SchedulerNone, nil
	case "Cycle":
		return SchedulerCycle, nil
	case "CustomCosine":
		return SchedulerCosineWarmRestart, nil
	case "ReduceLROnPlateau":
		return SchedulerPlateau, nil
	case "StepLR":
		return SchedulerStep, nil
	default:
		return SchedulerNone, fmt.Errorf("unrecognized scheduler: %s", name)
	}
}

var optimizerNames = map[string]bool{
	"Adam":     true,
	"AdamW":    true,
	"Adadelta": true,
}

// OptimizerOptions selects and parameterizes the optimizer.
type OptimizerOptions struct {
	Optimizer   string  `yaml:"optimizer"`
	LR          float64 `yaml:"lr"`
	WeightDecay float64 `yaml:"weight_decay"`
	LREpochs    int     `yaml:"lr_epochs"` // StepLR: epochs between reductions
	LRFactor    float64 `yaml:"lr_factor"` // StepLR: multiplicative decay
}

// SchedulerOptions selects and parameterizes the learning-rate schedule.
type SchedulerOptions struct {
	Scheduler string `yaml:"scheduler"`
	Patience  int    `yaml:"patience"` // ReduceLROnPlateau only
}

// ScoreOptions weights the composite checkpoint-selection score.
type ScoreOptions struct {
	SentenceAccWeight float64 `yaml:"sentence_acc_weight"`
	WERWeight         float64 `yaml:"wer_weight"`
}

// TelemetryOptions configures the structured metric sinks.
type TelemetryOptions struct {
	DBPath     string `yaml:"db_path"`     // SQLite metrics store, empty disables
	ReportPath string `yaml:"report_path"` // Training-curve HTML report, empty disables
}

// Options is the full run configuration.
type Options struct {
	Network             string           `yaml:"network"`
	Seed                int64            `yaml:"seed"`
	NumEpochs           int              `yaml:"num_epochs"`
	MaxGradNorm         float64          `yaml:"max_grad_norm"`
	TeacherForcingRatio float64          `yaml:"teacher_forcing_ratio"`
	PrintEpochs         int              `yaml:"print_epochs"`
	Checkpoint          string           `yaml:"checkpoint"` // Resume path, empty starts fresh
	Prefix              string           `yaml:"prefix"`     // Output root for checkpoints and logs
	Optimizer           OptimizerOptions `yaml:"optimizer"`
	Scheduler           SchedulerOptions `yaml:"scheduler"`
	Score               ScoreOptions     `yaml:"score"`
	Telemetry           TelemetryOptions `yaml:"telemetry"`
}

// Load reads a YAML run configuration. It returns the parsed options plus
// the raw mapping, which is stored verbatim in every checkpoint produced by
// the run. The options are validated before being returned.
func Load(path string) (*Options, map[string]interface{}, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read config file: %v", err)
	}

	var options Options
	if err := yaml.Unmarshal(data, &options); err != nil {
		return nil, nil, fmt.Errorf("failed to parse config file: %v", err)
	}

	raw := map[string]interface{}{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, nil, fmt.Errorf("failed to parse config file: %v", err)
	}

	options.ApplyDefaults()
	if err := options.Validate(); err != nil {
		return nil, nil, err
	}

	return &options, raw, nil
}

// ApplyDefaults fills unset optional fields.
func (o *Options) ApplyDefaults() {
	if o.PrintEpochs <= 0 {
		o.PrintEpochs = o.NumEpochs
	}
	if o.Score.SentenceAccWeight == 0 && o.Score.WERWeight == 0 {
		o.Score.SentenceAccWeight = 0.9
		o.Score.WERWeight = 0.1
	}
	if o.Prefix == "" {
		o.Prefix = "."
	}
}

// Validate fails fast on impossible configurations so that nothing is
// discovered mid-run.
func (o *Options) Validate() error {
	if o.Network == "" {
		return fmt.Errorf("network must be set")
	}
	if o.NumEpochs <= 0 {
		return fmt.Errorf("num_epochs must be positive, got %d", o.NumEpochs)
	}
	if o.MaxGradNorm <= 0 {
		return fmt.Errorf("max_grad_norm must be positive, got %f", o.MaxGradNorm)
	}
	if o.TeacherForcingRatio < 0 || o.TeacherForcingRatio > 1 {
		return fmt.Errorf("teacher_forcing_ratio must be in [0, 1], got %f", o.TeacherForcingRatio)
	}
	if !optimizerNames[o.Optimizer.Optimizer] {
		return fmt.Errorf("unrecognized optimizer: %s", o.Optimizer.Optimizer)
	}
	if o.Optimizer.LR <= 0 {
		return fmt.Errorf("lr must be positive, got %f", o.Optimizer.LR)
	}
	if _, err := ParseSchedulerKind(o.Scheduler.Scheduler); err != nil {
		return err
	}
	return nil
}

// SchedulerKind returns the resolved scheduler kind. Validate must have
// succeeded first.
func (o *Options) SchedulerKind() SchedulerKind {
	kind, _ := ParseSchedulerKind(o.Scheduler.Scheduler)
	return kind
}
