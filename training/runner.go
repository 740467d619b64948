package training

import (
	"fmt"
	"io"

	"github.com/doritos0812/p4-fr-sorry-math-but-love-you/optimizer"
	"github.com/doritos0812/p4-fr-sorry-math-but-love-you/vocab"
)

// EpochRunner executes one full pass over a batch source. In train mode
// it applies the optimization step under mixed precision; in validation
// mode it only evaluates. The fixed per-batch order in train mode is:
// scale loss, backward, unscale, clip gradient norm, conditional
// optimizer step, scaler update, schedule advance.
type EpochRunner struct {
	Model      Model
	Criterion  Criterion
	Vocabulary *vocab.Vocab

	Optimizer optimizer.Optimizer
	Schedule  Schedule
	Scaler    *GradScaler

	TeacherForcingRatio float64
	MaxGradNorm         float64

	// Out receives the progress bar; nil disables progress output.
	Out io.Writer
}

// Run performs one pass over loader and returns the accumulated epoch
// metrics. epochText labels the progress bar.
func (r *EpochRunner) Run(loader DataLoader, epochText string, train bool) (EpochResult, error) {
	if train {
		r.Model.Train()
	} else {
		r.Model.Eval()
	}

	mode := "Validation"
	if train {
		mode = "Train"
	}

	var progress *ProgressBar
	if r.Out != nil {
		progress = NewProgressBar(fmt.Sprintf("%s (%s)", epochText, mode), loader.NumSamples(), r.Out)
	}

	var result EpochResult
	var lossSum float64
	var gradNormSum float64
	numBatches := 0
	seen := 0

	for batch := range loader.Batches() {
		padded := padTargets(batch.Targets, r.Vocabulary.PadID())

		output, err := r.Model.Forward(batch.Images, padded, train, r.TeacherForcingRatio)
		if err != nil {
			return EpochResult{}, fmt.Errorf("model forward pass failed: %v", err)
		}

		sequence, err := output.ArgmaxLastDim()
		if err != nil {
			return EpochResult{}, fmt.Errorf("failed to decode model output: %v", err)
		}

		// The first reference token is never a prediction target.
		shifted := shiftTargets(padded)

		loss, err := r.Criterion.Forward(output, shifted)
		if err != nil {
			return EpochResult{}, fmt.Errorf("criterion failed: %v", err)
		}

		if train {
			r.Optimizer.ZeroGrad()
			if err := loss.Backward(r.Scaler.ScaleFactor()); err != nil {
				return EpochResult{}, fmt.Errorf("backward pass failed: %v", err)
			}

			params := r.Model.Parameters()
			r.Scaler.Unscale(params)
			gradNormSum += ClipGradNorm(params, r.MaxGradNorm)

			if err := r.Scaler.StepOptimizer(r.Optimizer); err != nil {
				return EpochResult{}, fmt.Errorf("optimizer step failed: %v", err)
			}
			r.Scaler.Update()

			if r.Schedule != nil && r.Schedule.PerBatch() {
				r.Schedule.Step()
				r.Optimizer.SetLR(r.Schedule.Rate())
			}
		}

		lossSum += loss.Value()
		numBatches++

		// Pad positions return to the sentinel before string metrics so
		// they drop out of WER and sentence accuracy. Symbol accuracy
		// still compares the pad-id-filled tensors, skipping only
		// positions whose reference is the sentinel.
		expectedStr := r.Vocabulary.DecodeBatch(batch.Targets, true)
		sequenceStr := r.Vocabulary.DecodeBatch(sequence, true)

		result.WERSum += WordErrorRate(sequenceStr, expectedStr)
		result.NumWER++
		result.SentAccSum += SentenceAcc(sequenceStr, expectedStr)
		result.NumSentAcc++

		correct, total := countSymbols(sequence, shifted, batch.Targets)
		result.CorrectSymbols += correct
		result.TotalSymbols += total

		seen += len(batch.Targets)
		if progress != nil {
			progress.Update(seen, map[string]float64{"loss": loss.Value()})
		}
	}

	if progress != nil {
		progress.Finish()
	}

	if numBatches == 0 {
		return EpochResult{}, fmt.Errorf("data loader produced no batches")
	}

	result.Loss = lossSum / float64(numBatches)
	if train {
		result.GradNorm = gradNormSum / float64(numBatches)
	}

	return result, nil
}

// padTargets copies the targets with the -1 sentinel replaced by the
// vocabulary pad id. The model must never see -1 as a token id.
func padTargets(targets [][]int, padID int) [][]int {
	padded := make([][]int, len(targets))
	for i, row := range targets {
		padded[i] = make([]int, len(row))
		for j, id := range row {
			if id == -1 {
				padded[i][j] = padID
			} else {
				padded[i][j] = id
			}
		}
	}
	return padded
}

// shiftTargets drops the first token of every row.
func shiftTargets(targets [][]int) [][]int {
	shifted := make([][]int, len(targets))
	for i, row := range targets {
		if len(row) > 0 {
			shifted[i] = row[1:]
		} else {
			shifted[i] = row
		}
	}
	return shifted
}

// countSymbols compares predictions against the shifted pad-id-filled
// references, counting only positions whose raw reference is not the
// padding sentinel.
func countSymbols(sequence [][]int, shifted [][]int, raw [][]int) (correct int, total int) {
	for i := range shifted {
		for j := range shifted[i] {
			if j+1 >= len(raw[i]) || raw[i][j+1] == -1 {
				continue
			}
			total++
			if i < len(sequence) && j < len(sequence[i]) && sequence[i][j] == shifted[i][j] {
				correct++
			}
		}
	}
	return correct, total
}
