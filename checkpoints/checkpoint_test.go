package checkpoints

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/doritos0812/p4-fr-sorry-math-but-love-you/optimizer"
)

func sampleCheckpoint() *Checkpoint {
	cp := Default()
	cp.Network = "SATRN"
	cp.Epoch = 2
	cp.TrainLosses = []float64{1.5, 0.9}
	cp.TrainSymbolAccuracy = []float64{0.4, 0.6}
	cp.TrainSentenceAccuracy = []float64{0.1, 0.3}
	cp.TrainWER = []float64{0.8, 0.5}
	cp.ValidationLosses = []float64{1.7, 1.1}
	cp.ValidationSymbolAccuracy = []float64{0.35, 0.55}
	cp.ValidationSentenceAccuracy = []float64{0.05, 0.25}
	cp.ValidationWER = []float64{0.9, 0.6}
	cp.LearningRates = []float64{0.001, 0.0008}
	cp.GradNorms = []float64{2.5, 1.9}
	cp.Weights = []WeightTensor{
		{Name: "encoder.weight", Shape: []int{2, 2}, Data: []float32{0.1, -0.2, 0.3, -0.4}, Device: DeviceAccelerator},
	}
	cp.Configs = map[string]interface{}{"network": "SATRN"}
	cp.TokenToID = map[string]int{"<PAD>": 0, "a": 3}
	cp.IDToToken = map[int]string{0: "<PAD>", 3: "a"}
	cp.SchedulerName = "CustomCosine"
	return cp
}

func TestSaveLoadRoundTrip(t *testing.T) {
	prefix := t.TempDir()
	original := sampleCheckpoint()

	if err := Save(original, prefix); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	path := filepath.Join(prefix, "checkpoints", "SATRN_best_model.json")
	loaded, err := Load(path, true)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if loaded.Epoch != original.Epoch {
		t.Errorf("Expected epoch %d, got %d", original.Epoch, loaded.Epoch)
	}
	if len(loaded.TrainLosses) != 2 || loaded.TrainLosses[1] != 0.9 {
		t.Errorf("Train losses not preserved: %v", loaded.TrainLosses)
	}
	if len(loaded.ValidationWER) != 2 || loaded.ValidationWER[0] != 0.9 {
		t.Errorf("Validation WER not preserved: %v", loaded.ValidationWER)
	}
	if loaded.TokenToID["a"] != 3 || loaded.IDToToken[3] != "a" {
		t.Errorf("Vocabulary mappings not preserved: %v / %v", loaded.TokenToID, loaded.IDToToken)
	}
	if loaded.SchedulerName != "CustomCosine" {
		t.Errorf("Expected scheduler name CustomCosine, got %q", loaded.SchedulerName)
	}

	for i, v := range original.Weights[0].Data {
		if math.Abs(float64(loaded.Weights[0].Data[i])-float64(v)) > 1e-7 {
			t.Errorf("Weight %d: expected %f, got %f", i, v, loaded.Weights[0].Data[i])
		}
	}
}

func TestSaveOverwritesPriorBest(t *testing.T) {
	prefix := t.TempDir()

	first := sampleCheckpoint()
	if err := Save(first, prefix); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	second := sampleCheckpoint()
	second.Epoch = 7
	if err := Save(second, prefix); err != nil {
		t.Fatalf("Second save failed: %v", err)
	}

	path := filepath.Join(prefix, "checkpoints", Filename("SATRN"))
	loaded, err := Load(path, true)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Epoch != 7 {
		t.Errorf("Expected overwritten checkpoint with epoch 7, got %d", loaded.Epoch)
	}
}

func TestSaveWithoutNetworkName(t *testing.T) {
	if err := Save(Default(), t.TempDir()); err == nil {
		t.Error("Expected error for missing network name, got nil")
	}
}

func TestLoadRelocatesToHost(t *testing.T) {
	prefix := t.TempDir()
	if err := Save(sampleCheckpoint(), prefix); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	path := filepath.Join(prefix, "checkpoints", Filename("SATRN"))
	loaded, err := Load(path, false)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Weights[0].Device != DeviceHost {
		t.Errorf("Expected weights relocated to host, got %q", loaded.Weights[0].Device)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.json"), true); err == nil {
		t.Error("Expected error for missing file, got nil")
	}
}

func TestLoadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corrupt.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if _, err := Load(path, true); err == nil {
		t.Error("Expected error for corrupt file, got nil")
	}
}

func TestExtractAndLoadWeights(t *testing.T) {
	param := optimizer.NewParameter("decoder.weight", []int{3})
	copy(param.Data, []float32{1, 2, 3})

	weights := ExtractWeights([]*optimizer.Parameter{param}, DeviceHost)

	// The snapshot must not alias the live parameter.
	param.Data[0] = 99
	if weights[0].Data[0] != 1 {
		t.Error("Extracted weights alias the live parameter")
	}

	restored := optimizer.NewParameter("decoder.weight", []int{3})
	if err := LoadWeights(weights, []*optimizer.Parameter{restored}); err != nil {
		t.Fatalf("LoadWeights failed: %v", err)
	}
	if restored.Data[0] != 1 || restored.Data[2] != 3 {
		t.Errorf("Expected restored [1 2 3], got %v", restored.Data)
	}

	// Mismatched names are an error.
	other := optimizer.NewParameter("encoder.weight", []int{3})
	if err := LoadWeights(weights, []*optimizer.Parameter{other}); err == nil {
		t.Error("Expected error for missing parameter, got nil")
	}
}
