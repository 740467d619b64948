package optimizer

import (
	"math"
	"testing"
)

func testParams() []*Parameter {
	p := NewParameter("decoder.weight", []int{2})
	p.Data[0] = 1.0
	p.Data[1] = -1.0
	p.Grad[0] = 0.5
	p.Grad[1] = -0.5
	return []*Parameter{p}
}

func TestNewFactory(t *testing.T) {
	tests := []struct {
		name     string
		expected string
	}{
		{"Adam", "Adam"},
		{"AdamW", "AdamW"},
		{"Adadelta", "Adadelta"},
	}

	for _, tt := range tests {
		opt, err := New(tt.name, testParams(), 0.01, 0.0)
		if err != nil {
			t.Fatalf("New(%s) failed: %v", tt.name, err)
		}
		if opt.Name() != tt.expected {
			t.Errorf("Expected name %s, got %s", tt.expected, opt.Name())
		}
	}
}

func TestNewFactoryUnknown(t *testing.T) {
	if _, err := New("SGD", testParams(), 0.01, 0.0); err == nil {
		t.Error("Expected error for unsupported optimizer, got nil")
	}
}

func TestAdamStep(t *testing.T) {
	params := testParams()
	cfg := DefaultAdamConfig()
	cfg.LearningRate = 0.1
	adam := NewAdam(params, cfg)

	if err := adam.Step(); err != nil {
		t.Fatalf("Step failed: %v", err)
	}

	// On the first step the bias-corrected update is lr * g / (|g| + eps),
	// so both elements move by almost exactly lr against their gradient sign.
	if math.Abs(float64(params[0].Data[0])-0.9) > 1e-4 {
		t.Errorf("Expected ~0.9, got %f", params[0].Data[0])
	}
	if math.Abs(float64(params[0].Data[1])+0.9) > 1e-4 {
		t.Errorf("Expected ~-0.9, got %f", params[0].Data[1])
	}
}

func TestAdamWDecoupledDecay(t *testing.T) {
	// With a zero gradient plain Adam leaves the weight alone, while AdamW
	// still shrinks it by lr * wd * w.
	adamParams := testParams()
	adamParams[0].Grad[0] = 0
	adamParams[0].Grad[1] = 0

	adamwParams := testParams()
	adamwParams[0].Grad[0] = 0
	adamwParams[0].Grad[1] = 0

	cfg := DefaultAdamConfig()
	cfg.LearningRate = 0.1
	cfg.WeightDecay = 0.1

	adamw := NewAdamW(adamwParams, cfg)
	if err := adamw.Step(); err != nil {
		t.Fatalf("AdamW step failed: %v", err)
	}

	expected := 1.0 - 0.1*0.1*1.0
	if math.Abs(float64(adamwParams[0].Data[0])-expected) > 1e-5 {
		t.Errorf("Expected %f, got %f", expected, adamwParams[0].Data[0])
	}
}

func TestAdadeltaStep(t *testing.T) {
	params := testParams()
	ad := NewAdadelta(params, DefaultAdadeltaConfig())

	before := params[0].Data[0]
	if err := ad.Step(); err != nil {
		t.Fatalf("Step failed: %v", err)
	}

	// The update must oppose the gradient sign.
	if params[0].Data[0] >= before {
		t.Errorf("Expected parameter to decrease from %f, got %f", before, params[0].Data[0])
	}
}

func TestZeroGrad(t *testing.T) {
	params := testParams()
	adam := NewAdam(params, DefaultAdamConfig())

	adam.ZeroGrad()
	if params[0].Grad[0] != 0 || params[0].Grad[1] != 0 {
		t.Errorf("Expected zeroed gradients, got %v", params[0].Grad)
	}
}

func TestStateRoundTrip(t *testing.T) {
	params := testParams()
	cfg := DefaultAdamConfig()
	cfg.LearningRate = 0.1
	adam := NewAdam(params, cfg)

	for i := 0; i < 3; i++ {
		if err := adam.Step(); err != nil {
			t.Fatalf("Step failed: %v", err)
		}
	}
	state := adam.State()

	restoredParams := testParams()
	restored := NewAdam(restoredParams, cfg)
	if err := restored.LoadState(state); err != nil {
		t.Fatalf("LoadState failed: %v", err)
	}

	if restored.stepCount != 3 {
		t.Errorf("Expected step count 3, got %d", restored.stepCount)
	}
	for j := range adam.momentum[0] {
		if adam.momentum[0][j] != restored.momentum[0][j] {
			t.Errorf("Momentum mismatch at %d: %f vs %f", j, adam.momentum[0][j], restored.momentum[0][j])
		}
		if adam.variance[0][j] != restored.variance[0][j] {
			t.Errorf("Variance mismatch at %d: %f vs %f", j, adam.variance[0][j], restored.variance[0][j])
		}
	}
}

func TestLoadStateMismatch(t *testing.T) {
	adam := NewAdam(testParams(), DefaultAdamConfig())

	if err := adam.LoadState(&State{Type: "Adadelta"}); err == nil {
		t.Error("Expected type mismatch error, got nil")
	}

	ad := NewAdadelta(testParams(), DefaultAdadeltaConfig())
	if err := ad.LoadState(&State{Type: "Adadelta", Slots: map[string]map[string][]float32{}}); err == nil {
		t.Error("Expected missing parameter error, got nil")
	}
}

func TestSetLR(t *testing.T) {
	adam := NewAdam(testParams(), DefaultAdamConfig())
	adam.SetLR(0.5)
	if adam.GetLR() != 0.5 {
		t.Errorf("Expected lr 0.5, got %f", adam.GetLR())
	}
}
