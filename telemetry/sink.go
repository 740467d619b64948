package telemetry

import (
	"fmt"
	"io"
)

// Record is the flat per-epoch summary emitted to every sink.
type Record struct {
	Epoch int

	TrainLoss             float64
	TrainSymbolAccuracy   float64
	TrainSentenceAccuracy float64
	TrainWER              float64
	TrainScore            float64

	ValidationLoss             float64
	ValidationSymbolAccuracy   float64
	ValidationSentenceAccuracy float64
	ValidationWER              float64
	ValidationScore            float64

	GradNorm     float64
	LearningRate float64
}

// Sink receives structured per-epoch metric records.
type Sink interface {
	Write(record Record) error
	Close() error
}

// WriterSink renders each record as a single key=value line on an
// io.Writer.
type WriterSink struct {
	out io.Writer
}

// NewWriterSink creates a sink that writes to out.
func NewWriterSink(out io.Writer) *WriterSink {
	return &WriterSink{out: out}
}

func (s *WriterSink) Write(record Record) error {
	_, err := fmt.Fprintf(s.out,
		"epoch=%d train_loss=%.5f train_symbol_accuracy=%.5f train_sentence_accuracy=%.5f train_wer=%.5f train_score=%.5f "+
			"validation_loss=%.5f validation_symbol_accuracy=%.5f validation_sentence_accuracy=%.5f validation_wer=%.5f validation_score=%.5f "+
			"grad_norm=%.5f lr=%g\n",
		record.Epoch,
		record.TrainLoss, record.TrainSymbolAccuracy, record.TrainSentenceAccuracy, record.TrainWER, record.TrainScore,
		record.ValidationLoss, record.ValidationSymbolAccuracy, record.ValidationSentenceAccuracy, record.ValidationWER, record.ValidationScore,
		record.GradNorm, record.LearningRate,
	)
	return err
}

func (s *WriterSink) Close() error {
	return nil
}

// MultiSink fans a record out to several sinks.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink creates a sink writing to every given sink in order.
func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

func (m *MultiSink) Write(record Record) error {
	for _, s := range m.sinks {
		if err := s.Write(record); err != nil {
			return err
		}
	}
	return nil
}

func (m *MultiSink) Close() error {
	var firstErr error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// NopSink discards every record.
type NopSink struct{}

func (NopSink) Write(Record) error { return nil }
func (NopSink) Close() error       { return nil }
