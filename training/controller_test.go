package training

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/doritos0812/p4-fr-sorry-math-but-love-you/checkpoints"
	"github.com/doritos0812/p4-fr-sorry-math-but-love-you/config"
	"github.com/doritos0812/p4-fr-sorry-math-but-love-you/optimizer"
	"github.com/doritos0812/p4-fr-sorry-math-but-love-you/tensor"
	"github.com/doritos0812/p4-fr-sorry-math-but-love-you/telemetry"
)

// scriptedModel predicts every training sample correctly and matches a
// scripted number of samples on each validation pass, driving the
// composite score sequence from the outside.
type scriptedModel struct {
	t            *testing.T
	params       []*optimizer.Parameter
	classes      int
	validMatches []int
	validCall    int
}

func (m *scriptedModel) Forward(images *tensor.Tensor, expected [][]int, train bool, tf float64) (*tensor.Tensor, error) {
	n := len(expected)
	match := n
	if !train {
		match = m.validMatches[m.validCall]
		m.validCall++
	}

	predictions := make([][]int, n)
	for i := range predictions {
		if i < match {
			predictions[i] = []int{3, 2} // a EOS
		} else {
			predictions[i] = []int{4, 2} // b EOS
		}
	}
	return oneHotOutput(m.t, predictions, m.classes), nil
}

func (m *scriptedModel) Parameters() []*optimizer.Parameter { return m.params }
func (m *scriptedModel) Train()                             {}
func (m *scriptedModel) Eval()                              {}

type recordingSink struct {
	records []telemetry.Record
}

func (s *recordingSink) Write(record telemetry.Record) error {
	s.records = append(s.records, record)
	return nil
}

func (s *recordingSink) Close() error { return nil }

func controllerOptions(prefix string, numEpochs int, printEpochs int) *config.Options {
	return &config.Options{
		Network:             "SATRN",
		Seed:                42,
		NumEpochs:           numEpochs,
		MaxGradNorm:         10.0,
		TeacherForcingRatio: 0.5,
		PrintEpochs:         printEpochs,
		Prefix:              prefix,
		Optimizer: config.OptimizerOptions{
			Optimizer: "Adam",
			LR:        0.001,
		},
		Scheduler: config.SchedulerOptions{Scheduler: "None"},
		Score:     config.ScoreOptions{SentenceAccWeight: 1.0, WERWeight: 0.0},
	}
}

func controllerFixture(t *testing.T, options *config.Options, validMatches []int) (*Controller, *bytes.Buffer, *bytes.Buffer, *recordingSink, *TrainingState) {
	t.Helper()
	v := testVocab()

	// Ten samples, one batch: SOS a EOS each.
	targets := make([][]int, 10)
	for i := range targets {
		targets[i] = []int{v.StartID(), 3, v.EndID()}
	}
	loader := singleBatchLoader(t, targets)

	param := optimizer.NewParameter("w", []int{2})
	model := &scriptedModel{
		t:            t,
		params:       []*optimizer.Parameter{param},
		classes:      v.Len(),
		validMatches: validMatches,
	}
	criterion := &fakeCriterion{loss: &fakeLoss{
		value: 0.5,
		gradFunc: func(seed float64) {
			param.Grad[0] = float32(seed)
			param.Grad[1] = float32(seed)
		},
	}}

	state := NewTrainingState(options.Network, "None", v, map[string]interface{}{"network": "SATRN"})

	var stdout, logFile bytes.Buffer
	sink := &recordingSink{}
	ctx := NewRunContext(options.Seed, &stdout, &logFile, sink)

	controller, err := NewController(options, model, criterion, loader, loader, state, ctx)
	if err != nil {
		t.Fatalf("NewController failed: %v", err)
	}
	return controller, &stdout, &logFile, sink, state
}

func TestControllerSaveIfImproved(t *testing.T) {
	prefix := t.TempDir()
	options := controllerOptions(prefix, 5, 1)
	options.Telemetry.ReportPath = filepath.Join(prefix, "report.html")

	// Validation sentence accuracy per epoch: 0.5, 0.4, 0.6, 0.6, 0.7.
	// With the score weighing sentence accuracy alone, saves happen at
	// epochs 1, 3 and 5 only: strict improvement, ties skipped.
	controller, stdout, logFile, sink, state := controllerFixture(t, options, []int{5, 4, 6, 6, 7})

	if err := controller.Run(); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if saves := strings.Count(stdout.String(), "model is saved"); saves != 3 {
		t.Errorf("expected 3 saves, got %d", saves)
	}
	if math.Abs(controller.BestScore()-0.7) > 1e-9 {
		t.Errorf("expected best score 0.7, got %f", controller.BestScore())
	}

	// The final save overwrote the file with the full 5-epoch history.
	path := filepath.Join(prefix, "checkpoints", checkpoints.Filename("SATRN"))
	saved, err := checkpoints.Load(path, false)
	if err != nil {
		t.Fatalf("failed to load saved checkpoint: %v", err)
	}
	if saved.Epoch != 5 {
		t.Errorf("expected saved epoch 5, got %d", saved.Epoch)
	}
	if len(saved.TrainLosses) != 5 || len(saved.ValidationLosses) != 5 {
		t.Errorf("expected 5 history entries, got %d/%d", len(saved.TrainLosses), len(saved.ValidationLosses))
	}

	// One history entry per epoch on every sequence.
	if err := state.Validate(); err != nil {
		t.Errorf("state invariant broken: %v", err)
	}
	if len(state.TrainLosses) != 5 {
		t.Errorf("expected 5 epochs of history, got %d", len(state.TrainLosses))
	}

	// PrintEpochs 1 emits a summary every epoch, mirrored to the log
	// file and the telemetry sink.
	if len(sink.records) != 5 {
		t.Errorf("expected 5 telemetry records, got %d", len(sink.records))
	}
	if got := strings.Count(logFile.String(), "Train Symbol Accuracy"); got != 5 {
		t.Errorf("expected 5 summary lines in log file, got %d", got)
	}
	if math.Abs(sink.records[4].ValidationSentenceAccuracy-0.7) > 1e-9 {
		t.Errorf("expected final validation sentence accuracy 0.7, got %f", sink.records[4].ValidationSentenceAccuracy)
	}

	if _, err := os.Stat(options.Telemetry.ReportPath); err != nil {
		t.Errorf("expected training report rendered: %v", err)
	}
}

func TestControllerSummaryCadence(t *testing.T) {
	options := controllerOptions(t.TempDir(), 5, 2)
	controller, _, _, sink, _ := controllerFixture(t, options, []int{5, 5, 5, 5, 5})

	if err := controller.Run(); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// Epoch indices 0, 2 and 4 hit the cadence; the final epoch is
	// always included.
	if len(sink.records) != 3 {
		t.Fatalf("expected 3 telemetry records, got %d", len(sink.records))
	}
	expected := []int{1, 3, 5}
	for i, rec := range sink.records {
		if rec.Epoch != expected[i] {
			t.Errorf("record %d: expected epoch %d, got %d", i, expected[i], rec.Epoch)
		}
	}
}

func TestControllerResumeBanner(t *testing.T) {
	options := controllerOptions(t.TempDir(), 1, 1)
	controller, stdout, _, _, state := controllerFixture(t, options, []int{5})

	// Simulate a resumed run with one epoch of prior history.
	state.Epoch = 1
	state.TrainLosses = []float64{1.0}
	state.TrainSymbolAccuracy = []float64{0.5}
	state.TrainSentenceAccuracy = []float64{0.3}
	state.TrainWER = []float64{0.6}
	state.ValidationLosses = []float64{1.2}
	state.ValidationSymbolAccuracy = []float64{0.4}
	state.ValidationSentenceAccuracy = []float64{0.2}
	state.ValidationWER = []float64{0.7}
	state.LearningRates = []float64{0.001}
	state.GradNorms = []float64{2.0}

	if err := controller.Run(); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	out := stdout.String()
	if !strings.Contains(out, "[+] Checkpoint") {
		t.Error("expected resume banner")
	}
	if !strings.Contains(out, "Resuming from epoch : 1") {
		t.Error("expected resume epoch in banner")
	}
	// The epoch label continues from the resumed counter.
	if !strings.Contains(out, "Epoch 2") {
		t.Error("expected epoch label continued from checkpoint")
	}

	// A resumed run's best score starts from zero, so the first epoch
	// saves even when worse than the historical best.
	if !strings.Contains(out, "model is saved") {
		t.Error("expected first improved epoch of a resumed run to save")
	}

	if len(state.TrainLosses) != 2 {
		t.Errorf("expected history extended to 2 entries, got %d", len(state.TrainLosses))
	}
}
