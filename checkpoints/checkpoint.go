package checkpoints

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/doritos0812/p4-fr-sorry-math-but-love-you/optimizer"
)

// Device marks where a weight tensor's values are expected to live. Weights
// loaded without an accelerator are relocated to the host.
const (
	DeviceAccelerator = "accelerator"
	DeviceHost        = "host"
)

// WeightTensor is a model parameter snapshot with its data.
type WeightTensor struct {
	Name   string    `json:"name"`
	Shape  []int     `json:"shape"`
	Data   []float32 `json:"data"`
	Device string    `json:"device,omitempty"`
}

// Checkpoint is the durable record of a training run: the epoch counter,
// the per-epoch history sequences, the model and optimizer snapshots, the
// raw run configuration and the vocabulary the dataset was encoded with.
// One file exists per network type and each save overwrites the previous
// best for that network.
type Checkpoint struct {
	Epoch int `json:"epoch"`

	TrainLosses                []float64 `json:"train_losses"`
	TrainSymbolAccuracy        []float64 `json:"train_symbol_accuracy"`
	TrainSentenceAccuracy      []float64 `json:"train_sentence_accuracy"`
	TrainWER                   []float64 `json:"train_wer"`
	ValidationLosses           []float64 `json:"validation_losses"`
	ValidationSymbolAccuracy   []float64 `json:"validation_symbol_accuracy"`
	ValidationSentenceAccuracy []float64 `json:"validation_sentence_accuracy"`
	ValidationWER              []float64 `json:"validation_wer"`
	LearningRates              []float64 `json:"lr"`
	GradNorms                  []float64 `json:"grad_norm"`

	Weights        []WeightTensor         `json:"model"`
	OptimizerState *optimizer.State       `json:"optimizer,omitempty"`
	Configs        map[string]interface{} `json:"configs"`
	TokenToID      map[string]int         `json:"token_to_id"`
	IDToToken      map[int]string         `json:"id_to_token"`
	Network        string                 `json:"network"`
	SchedulerName  string                 `json:"scheduler_name"`
}

// Default returns an empty checkpoint for a fresh run.
func Default() *Checkpoint {
	return &Checkpoint{
		TrainLosses:                []float64{},
		TrainSymbolAccuracy:        []float64{},
		TrainSentenceAccuracy:      []float64{},
		TrainWER:                   []float64{},
		ValidationLosses:           []float64{},
		ValidationSymbolAccuracy:   []float64{},
		ValidationSentenceAccuracy: []float64{},
		ValidationWER:              []float64{},
		LearningRates:              []float64{},
		GradNorms:                  []float64{},
		Weights:                    []WeightTensor{},
		Configs:                    map[string]interface{}{},
		TokenToID:                  map[string]int{},
		IDToToken:                  map[int]string{},
	}
}

// Filename derives the checkpoint filename from the network type name.
func Filename(network string) string {
	return fmt.Sprintf("%s_best_model.json", network)
}

// Save writes the checkpoint under <prefix>/checkpoints/, creating the
// directory tree when missing. The file for the checkpoint's network type
// is fully overwritten; there is no versioning.
func Save(checkpoint *Checkpoint, prefix string) error {
	if checkpoint.Network == "" {
		return fmt.Errorf("checkpoint has no network type name")
	}

	dir := filepath.Join(prefix, "checkpoints")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create checkpoint directory: %v", err)
	}

	path := filepath.Join(dir, Filename(checkpoint.Network))
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create checkpoint file: %v", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	if err := encoder.Encode(checkpoint); err != nil {
		return fmt.Errorf("failed to encode checkpoint: %v", err)
	}

	return nil
}

// Load reads a checkpoint from path. When no accelerator is available the
// weight tensors are relocated to host memory.
func Load(path string, useAccelerator bool) (*Checkpoint, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint file: %v", err)
	}
	defer file.Close()

	var checkpoint Checkpoint
	decoder := json.NewDecoder(file)
	if err := decoder.Decode(&checkpoint); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint: %v", err)
	}

	if !useAccelerator {
		for i := range checkpoint.Weights {
			checkpoint.Weights[i].Device = DeviceHost
		}
	}

	return &checkpoint, nil
}

// ExtractWeights snapshots the current parameter values into weight
// tensors. Data is copied so the snapshot stays stable while training
// continues to mutate the parameters.
func ExtractWeights(params []*optimizer.Parameter, device string) []WeightTensor {
	weights := make([]WeightTensor, len(params))
	for i, p := range params {
		data := make([]float32, len(p.Data))
		copy(data, p.Data)
		weights[i] = WeightTensor{
			Name:   p.Name,
			Shape:  append([]int(nil), p.Shape...),
			Data:   data,
			Device: device,
		}
	}
	return weights
}

// LoadWeights copies saved weight data back into model parameters, matching
// by parameter name.
func LoadWeights(weights []WeightTensor, params []*optimizer.Parameter) error {
	byName := make(map[string]WeightTensor, len(weights))
	for _, w := range weights {
		byName[w.Name] = w
	}

	for _, p := range params {
		w, ok := byName[p.Name]
		if !ok {
			return fmt.Errorf("checkpoint is missing weights for parameter %q", p.Name)
		}
		if len(w.Data) != len(p.Data) {
			return fmt.Errorf("weight size mismatch for parameter %q: %d vs %d", p.Name, len(w.Data), len(p.Data))
		}
		copy(p.Data, w.Data)
	}

	return nil
}
