package training

import (
	"fmt"
	"io"
	"math/rand"
	"time"

	"github.com/doritos0812/p4-fr-sorry-math-but-love-you/checkpoints"
	"github.com/doritos0812/p4-fr-sorry-math-but-love-you/config"
	"github.com/doritos0812/p4-fr-sorry-math-but-love-you/optimizer"
	"github.com/doritos0812/p4-fr-sorry-math-but-love-you/telemetry"
)

// RunContext carries the run's environment explicitly: the random
// source, the output writers and the telemetry sink. Nothing is read
// from ambient process state.
type RunContext struct {
	Rand    *rand.Rand
	Stdout  io.Writer
	LogFile io.Writer
	Sink    telemetry.Sink
}

// NewRunContext builds a context seeded from the run options, writing
// to stdout and logFile and reporting to sink. Nil writers are replaced
// with io.Discard and a nil sink with a no-op sink.
func NewRunContext(seed int64, stdout io.Writer, logFile io.Writer, sink telemetry.Sink) *RunContext {
	if stdout == nil {
		stdout = io.Discard
	}
	if logFile == nil {
		logFile = io.Discard
	}
	if sink == nil {
		sink = telemetry.NopSink{}
	}
	return &RunContext{
		Rand:    rand.New(rand.NewSource(seed)),
		Stdout:  stdout,
		LogFile: logFile,
		Sink:    sink,
	}
}

// Controller drives the epoch loop: train pass, validation pass,
// history update, conditional checkpoint save, summary emission. An
// error in any pass terminates the run; no partial-epoch recovery is
// attempted.
type Controller struct {
	options          *config.Options
	model            Model
	criterion        Criterion
	trainLoader      DataLoader
	validationLoader DataLoader
	state            *TrainingState

	optimizer optimizer.Optimizer
	schedule  Schedule
	scaler    *GradScaler
	weights   ScoreWeights
	ctx       *RunContext

	// bestScore starts at zero on every process start, never restored
	// from a resumed checkpoint's history. A resumed run's first
	// improved epoch therefore always saves, even below a historical
	// best.
	bestScore float64
}

// NewController wires the run: it builds the schedule and optimizer
// from the options and restores model weights and optimizer state from
// the given state when resuming.
func NewController(
	options *config.Options,
	model Model,
	criterion Criterion,
	trainLoader DataLoader,
	validationLoader DataLoader,
	state *TrainingState,
	ctx *RunContext,
) (*Controller, error) {
	schedule, err := NewSchedule(options, trainLoader.NumBatches())
	if err != nil {
		return nil, err
	}

	// The cosine schedule warms up from zero; every other schedule
	// starts the optimizer at the configured rate.
	initialLR := options.Optimizer.LR
	if options.SchedulerKind() == config.SchedulerCosineWarmRestart {
		initialLR = 0
	}

	opt, err := optimizer.New(options.Optimizer.Optimizer, model.Parameters(), initialLR, options.Optimizer.WeightDecay)
	if err != nil {
		return nil, err
	}

	if len(state.Weights) > 0 {
		if err := checkpoints.LoadWeights(state.Weights, model.Parameters()); err != nil {
			return nil, fmt.Errorf("failed to restore model weights: %v", err)
		}
	}
	if state.OptimizerState != nil {
		if err := opt.LoadState(state.OptimizerState); err != nil {
			return nil, fmt.Errorf("failed to restore optimizer state: %v", err)
		}
	}

	return &Controller{
		options:          options,
		model:            model,
		criterion:        criterion,
		trainLoader:      trainLoader,
		validationLoader: validationLoader,
		state:            state,
		optimizer:        opt,
		schedule:         schedule,
		scaler:           NewGradScaler(DefaultGradScalerConfig()),
		weights: ScoreWeights{
			SentenceAcc: options.Score.SentenceAccWeight,
			WER:         options.Score.WERWeight,
		},
		ctx: ctx,
	}, nil
}

// Run executes the configured number of epochs.
func (c *Controller) Run() error {
	if c.state.Epoch > 0 {
		c.printResumeBanner()
	}

	runner := &EpochRunner{
		Model:               c.model,
		Criterion:           c.criterion,
		Vocabulary:          c.state.Vocabulary,
		Optimizer:           c.optimizer,
		Schedule:            c.schedule,
		Scaler:              c.scaler,
		TeacherForcingRatio: c.options.TeacherForcingRatio,
		MaxGradNorm:         c.options.MaxGradNorm,
		Out:                 c.ctx.Stdout,
	}

	startEpoch := c.state.Epoch
	numEpochs := c.options.NumEpochs
	pad := len(fmt.Sprintf("%d", numEpochs))

	for epoch := 0; epoch < numEpochs; epoch++ {
		startTime := time.Now()

		epochText := fmt.Sprintf("[%*d/%d] Epoch %d", pad, epoch+1, numEpochs, startEpoch+epoch+1)

		trainResult, err := runner.Run(c.trainLoader, epochText, true)
		if err != nil {
			return fmt.Errorf("epoch %d train pass: %v", startEpoch+epoch+1, err)
		}

		validationResult, err := runner.Run(c.validationLoader, epochText, false)
		if err != nil {
			return fmt.Errorf("epoch %d validation pass: %v", startEpoch+epoch+1, err)
		}

		if !c.schedule.PerBatch() {
			if plateau, ok := c.schedule.(*PlateauSchedule); ok {
				plateau.Observe(validationResult.Loss)
			}
			c.schedule.Step()
			c.optimizer.SetLR(c.schedule.Rate())
		}
		epochLR := c.schedule.Rate()

		if err := c.state.AppendEpoch(trainResult, validationResult, epochLR); err != nil {
			return err
		}

		score := c.weights.Score(validationResult.SentenceAccuracy(), validationResult.WER())
		if score > c.bestScore {
			if err := c.saveCheckpoint(); err != nil {
				return err
			}
			c.bestScore = score
			fmt.Fprintf(c.ctx.Stdout, "best validation score: %.5f\n", c.bestScore)
			fmt.Fprintln(c.ctx.Stdout, "model is saved")
		}

		elapsed := formatElapsed(time.Since(startTime))
		if epoch%c.options.PrintEpochs == 0 || epoch == numEpochs-1 {
			if err := c.emitSummary(epochText, startEpoch+epoch+1, trainResult, validationResult, epochLR, elapsed); err != nil {
				return err
			}
		}
	}

	if c.options.Telemetry.ReportPath != "" {
		if err := telemetry.RenderReport(c.reportHistory(), c.options.Telemetry.ReportPath); err != nil {
			return fmt.Errorf("failed to render training report: %v", err)
		}
	}

	return nil
}

// BestScore returns the best composite score seen this process.
func (c *Controller) BestScore() float64 {
	return c.bestScore
}

func (c *Controller) saveCheckpoint() error {
	weights := checkpoints.ExtractWeights(c.model.Parameters(), checkpoints.DeviceHost)
	checkpoint := c.state.ToCheckpoint(weights, c.optimizer.State())
	if err := checkpoints.Save(checkpoint, c.options.Prefix); err != nil {
		return fmt.Errorf("failed to save checkpoint: %v", err)
	}
	return nil
}

func (c *Controller) emitSummary(
	epochText string,
	epoch int,
	train EpochResult,
	validation EpochResult,
	lr float64,
	elapsed string,
) error {
	trainSymbolAcc, err := train.SymbolAccuracy()
	if err != nil {
		return err
	}
	validationSymbolAcc, err := validation.SymbolAccuracy()
	if err != nil {
		return err
	}

	line := fmt.Sprintf(
		"%s: "+
			"Train Symbol Accuracy = %.5f, "+
			"Train Sentence Accuracy = %.5f, "+
			"Train WER = %.5f, "+
			"Train Loss = %.5f, "+
			"Validation Symbol Accuracy = %.5f, "+
			"Validation Sentence Accuracy = %.5f, "+
			"Validation WER = %.5f, "+
			"Validation Loss = %.5f, "+
			"lr = %g "+
			"(time elapsed %s)",
		epochText,
		trainSymbolAcc,
		train.SentenceAccuracy(),
		train.WER(),
		train.Loss,
		validationSymbolAcc,
		validation.SentenceAccuracy(),
		validation.WER(),
		validation.Loss,
		lr,
		elapsed,
	)

	fmt.Fprintln(c.ctx.Stdout, line)
	fmt.Fprintln(c.ctx.LogFile, line)

	record := telemetry.Record{
		Epoch:                      epoch,
		TrainLoss:                  train.Loss,
		TrainSymbolAccuracy:        trainSymbolAcc,
		TrainSentenceAccuracy:      train.SentenceAccuracy(),
		TrainWER:                   train.WER(),
		TrainScore:                 c.weights.Score(train.SentenceAccuracy(), train.WER()),
		ValidationLoss:             validation.Loss,
		ValidationSymbolAccuracy:   validationSymbolAcc,
		ValidationSentenceAccuracy: validation.SentenceAccuracy(),
		ValidationWER:              validation.WER(),
		ValidationScore:            c.weights.Score(validation.SentenceAccuracy(), validation.WER()),
		GradNorm:                   train.GradNorm,
		LearningRate:               lr,
	}
	if err := c.ctx.Sink.Write(record); err != nil {
		return fmt.Errorf("failed to write telemetry record: %v", err)
	}

	return nil
}

func (c *Controller) printResumeBanner() {
	s := c.state
	last := len(s.TrainLosses) - 1
	if last < 0 {
		return
	}

	fmt.Fprintln(c.ctx.Stdout, "[+] Checkpoint")
	fmt.Fprintf(c.ctx.Stdout, " Resuming from epoch : %d\n", s.Epoch)
	fmt.Fprintf(c.ctx.Stdout, " Train Symbol Accuracy : %.5f\n", s.TrainSymbolAccuracy[last])
	fmt.Fprintf(c.ctx.Stdout, " Train Sentence Accuracy : %.5f\n", s.TrainSentenceAccuracy[last])
	fmt.Fprintf(c.ctx.Stdout, " Train WER : %.5f\n", s.TrainWER[last])
	fmt.Fprintf(c.ctx.Stdout, " Train Loss : %.5f\n", s.TrainLosses[last])
	fmt.Fprintf(c.ctx.Stdout, " Validation Symbol Accuracy : %.5f\n", s.ValidationSymbolAccuracy[last])
	fmt.Fprintf(c.ctx.Stdout, " Validation Sentence Accuracy : %.5f\n", s.ValidationSentenceAccuracy[last])
	fmt.Fprintf(c.ctx.Stdout, " Validation WER : %.5f\n", s.ValidationWER[last])
	fmt.Fprintf(c.ctx.Stdout, " Validation Loss : %.5f\n", s.ValidationLosses[last])
}

func (c *Controller) reportHistory() telemetry.History {
	return telemetry.History{
		TrainLosses:                  c.state.TrainLosses,
		TrainSymbolAccuracies:        c.state.TrainSymbolAccuracy,
		TrainSentenceAccuracies:      c.state.TrainSentenceAccuracy,
		TrainWERs:                    c.state.TrainWER,
		ValidationLosses:             c.state.ValidationLosses,
		ValidationSymbolAccuracies:   c.state.ValidationSymbolAccuracy,
		ValidationSentenceAccuracies: c.state.ValidationSentenceAccuracy,
		ValidationWERs:               c.state.ValidationWER,
		LearningRates:                c.state.LearningRates,
		GradNorms:                    c.state.GradNorms,
	}
}
