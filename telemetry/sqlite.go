package telemetry

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

const createEpochMetricsTable = `
CREATE TABLE IF NOT EXISTS epoch_metrics (
	epoch INTEGER PRIMARY KEY,
	train_loss REAL,
	train_symbol_accuracy REAL,
	train_sentence_accuracy REAL,
	train_wer REAL,
	train_score REAL,
	validation_loss REAL,
	validation_symbol_accuracy REAL,
	validation_sentence_accuracy REAL,
	validation_wer REAL,
	validation_score REAL,
	grad_norm REAL,
	lr REAL
)`

// SQLiteSink persists per-epoch records in a local SQLite database so
// runs can be inspected after the process exits.
type SQLiteSink struct {
	db *sql.DB
}

// NewSQLiteSink opens (or creates) the database at path and ensures the
// epoch_metrics table exists.
func NewSQLiteSink(path string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open metrics database: %v", err)
	}

	if _, err := db.Exec(createEpochMetricsTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create epoch_metrics table: %v", err)
	}

	return &SQLiteSink{db: db}, nil
}

func (s *SQLiteSink) Write(record Record) error {
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO epoch_metrics (
			epoch,
			train_loss, train_symbol_accuracy, train_sentence_accuracy, train_wer, train_score,
			validation_loss, validation_symbol_accuracy, validation_sentence_accuracy, validation_wer, validation_score,
			grad_norm, lr
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.Epoch,
		record.TrainLoss, record.TrainSymbolAccuracy, record.TrainSentenceAccuracy, record.TrainWER, record.TrainScore,
		record.ValidationLoss, record.ValidationSymbolAccuracy, record.ValidationSentenceAccuracy, record.ValidationWER, record.ValidationScore,
		record.GradNorm, record.LearningRate,
	)
	if err != nil {
		return fmt.Errorf("failed to insert epoch metrics: %v", err)
	}
	return nil
}

func (s *SQLiteSink) Close() error {
	return s.db.Close()
}

// Epochs returns the number of recorded epochs. Used mostly in tests
// and post-run inspection tooling.
func (s *SQLiteSink) Epochs() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM epoch_metrics`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count epoch metrics: %v", err)
	}
	return n, nil
}

// Epoch loads the record stored for a single epoch.
func (s *SQLiteSink) Epoch(epoch int) (Record, error) {
	var r Record
	err := s.db.QueryRow(
		`SELECT epoch,
			train_loss, train_symbol_accuracy, train_sentence_accuracy, train_wer, train_score,
			validation_loss, validation_symbol_accuracy, validation_sentence_accuracy, validation_wer, validation_score,
			grad_norm, lr
		FROM epoch_metrics WHERE epoch = ?`, epoch,
	).Scan(
		&r.Epoch,
		&r.TrainLoss, &r.TrainSymbolAccuracy, &r.TrainSentenceAccuracy, &r.TrainWER, &r.TrainScore,
		&r.ValidationLoss, &r.ValidationSymbolAccuracy, &r.ValidationSentenceAccuracy, &r.ValidationWER, &r.ValidationScore,
		&r.GradNorm, &r.LearningRate,
	)
	if err != nil {
		return Record{}, fmt.Errorf("failed to load epoch %d metrics: %v", epoch, err)
	}
	return r, nil
}
