package training

import (
	"fmt"

	"github.com/doritos0812/p4-fr-sorry-math-but-love-you/checkpoints"
	"github.com/doritos0812/p4-fr-sorry-math-but-love-you/optimizer"
	"github.com/doritos0812/p4-fr-sorry-math-but-love-you/vocab"
)

// TrainingState is the evolving record of a run: the epoch counter and
// the per-epoch history sequences, plus the vocabulary and run
// identity needed to produce a checkpoint. The controller owns and
// mutates it; every completed epoch appends exactly one entry to each
// history sequence.
type TrainingState struct {
	Epoch int

	TrainLosses                []float64
	TrainSymbolAccuracy        []float64
	TrainSentenceAccuracy      []float64
	TrainWER                   []float64
	ValidationLosses           []float64
	ValidationSymbolAccuracy   []float64
	ValidationSentenceAccuracy []float64
	ValidationWER              []float64
	LearningRates              []float64
	GradNorms                  []float64

	Vocabulary     *vocab.Vocab
	Configs        map[string]interface{}
	Network        string
	SchedulerName  string
	Weights        []checkpoints.WeightTensor
	OptimizerState *optimizer.State
}

// NewTrainingState creates an empty state for a fresh run.
func NewTrainingState(network string, schedulerName string, vocabulary *vocab.Vocab, configs map[string]interface{}) *TrainingState {
	return &TrainingState{
		Vocabulary:    vocabulary,
		Configs:       configs,
		Network:       network,
		SchedulerName: schedulerName,
	}
}

// StateFromCheckpoint rebuilds a TrainingState from a loaded
// checkpoint so a run can resume where it stopped.
func StateFromCheckpoint(checkpoint *checkpoints.Checkpoint) (*TrainingState, error) {
	vocabulary, err := vocab.FromMappings(checkpoint.TokenToID, checkpoint.IDToToken)
	if err != nil {
		return nil, fmt.Errorf("checkpoint carries an invalid vocabulary: %v", err)
	}

	state := &TrainingState{
		Epoch:                      checkpoint.Epoch,
		TrainLosses:                checkpoint.TrainLosses,
		TrainSymbolAccuracy:        checkpoint.TrainSymbolAccuracy,
		TrainSentenceAccuracy:      checkpoint.TrainSentenceAccuracy,
		TrainWER:                   checkpoint.TrainWER,
		ValidationLosses:           checkpoint.ValidationLosses,
		ValidationSymbolAccuracy:   checkpoint.ValidationSymbolAccuracy,
		ValidationSentenceAccuracy: checkpoint.ValidationSentenceAccuracy,
		ValidationWER:              checkpoint.ValidationWER,
		LearningRates:              checkpoint.LearningRates,
		GradNorms:                  checkpoint.GradNorms,
		Vocabulary:                 vocabulary,
		Configs:                    checkpoint.Configs,
		Network:                    checkpoint.Network,
		SchedulerName:              checkpoint.SchedulerName,
		Weights:                    checkpoint.Weights,
		OptimizerState:             checkpoint.OptimizerState,
	}

	if err := state.Validate(); err != nil {
		return nil, err
	}
	return state, nil
}

// Validate checks that every history sequence has the same length.
func (s *TrainingState) Validate() error {
	n := len(s.TrainLosses)
	lengths := map[string]int{
		"train_symbol_accuracy":        len(s.TrainSymbolAccuracy),
		"train_sentence_accuracy":      len(s.TrainSentenceAccuracy),
		"train_wer":                    len(s.TrainWER),
		"validation_losses":            len(s.ValidationLosses),
		"validation_symbol_accuracy":   len(s.ValidationSymbolAccuracy),
		"validation_sentence_accuracy": len(s.ValidationSentenceAccuracy),
		"validation_wer":               len(s.ValidationWER),
		"lr":                           len(s.LearningRates),
		"grad_norm":                    len(s.GradNorms),
	}
	for name, l := range lengths {
		if l != n {
			return fmt.Errorf("history length mismatch: train_losses has %d entries, %s has %d", n, name, l)
		}
	}
	return nil
}

// AppendEpoch folds one completed epoch's train and validation results
// into the history sequences and advances the epoch counter.
func (s *TrainingState) AppendEpoch(train EpochResult, validation EpochResult, lr float64) error {
	trainSymbolAcc, err := train.SymbolAccuracy()
	if err != nil {
		return fmt.Errorf("train pass: %v", err)
	}
	validationSymbolAcc, err := validation.SymbolAccuracy()
	if err != nil {
		return fmt.Errorf("validation pass: %v", err)
	}

	s.TrainLosses = append(s.TrainLosses, train.Loss)
	s.TrainSymbolAccuracy = append(s.TrainSymbolAccuracy, trainSymbolAcc)
	s.TrainSentenceAccuracy = append(s.TrainSentenceAccuracy, train.SentenceAccuracy())
	s.TrainWER = append(s.TrainWER, train.WER())
	s.ValidationLosses = append(s.ValidationLosses, validation.Loss)
	s.ValidationSymbolAccuracy = append(s.ValidationSymbolAccuracy, validationSymbolAcc)
	s.ValidationSentenceAccuracy = append(s.ValidationSentenceAccuracy, validation.SentenceAccuracy())
	s.ValidationWER = append(s.ValidationWER, validation.WER())
	s.LearningRates = append(s.LearningRates, lr)
	s.GradNorms = append(s.GradNorms, train.GradNorm)
	s.Epoch++

	return s.Validate()
}

// ToCheckpoint snapshots the state with the given model weights and
// optimizer state. The checkpoint owns no live reference to the state;
// the history slices keep evolving in the controller afterwards.
func (s *TrainingState) ToCheckpoint(weights []checkpoints.WeightTensor, optimizerState *optimizer.State) *checkpoints.Checkpoint {
	return &checkpoints.Checkpoint{
		Epoch:                      s.Epoch,
		TrainLosses:                append([]float64{}, s.TrainLosses...),
		TrainSymbolAccuracy:        append([]float64{}, s.TrainSymbolAccuracy...),
		TrainSentenceAccuracy:      append([]float64{}, s.TrainSentenceAccuracy...),
		TrainWER:                   append([]float64{}, s.TrainWER...),
		ValidationLosses:           append([]float64{}, s.ValidationLosses...),
		ValidationSymbolAccuracy:   append([]float64{}, s.ValidationSymbolAccuracy...),
		ValidationSentenceAccuracy: append([]float64{}, s.ValidationSentenceAccuracy...),
		ValidationWER:              append([]float64{}, s.ValidationWER...),
		LearningRates:              append([]float64{}, s.LearningRates...),
		GradNorms:                  append([]float64{}, s.GradNorms...),
		Weights:                    weights,
		OptimizerState:             optimizerState,
		Configs:                    s.Configs,
		TokenToID:                  s.Vocabulary.TokenToID,
		IDToToken:                  s.Vocabulary.IDToToken,
		Network:                    s.Network,
		SchedulerName:              s.SchedulerName,
	}
}
