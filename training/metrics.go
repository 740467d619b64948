package training

import (
	"fmt"
	"strings"
)

// WordErrorRate returns the mean edit-distance-based error rate between
// predicted and reference strings. Each string is tokenized on
// whitespace; the per-example rate is the word-level edit distance
// divided by the reference length. Every example contributes equally to
// the mean.
func WordErrorRate(predicted []string, reference []string) float64 {
	if len(predicted) == 0 {
		return 0
	}

	var sum float64
	for i := range predicted {
		predWords := strings.Fields(predicted[i])
		refWords := strings.Fields(reference[i])

		denom := len(refWords)
		if denom == 0 {
			denom = 1
		}
		sum += float64(editDistance(predWords, refWords)) / float64(denom)
	}
	return sum / float64(len(predicted))
}

// SentenceAcc returns the fraction of examples whose predicted string
// exactly matches the reference string.
func SentenceAcc(predicted []string, reference []string) float64 {
	if len(predicted) == 0 {
		return 0
	}

	correct := 0
	for i := range predicted {
		if predicted[i] == reference[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(predicted))
}

// editDistance computes the Levenshtein distance between two word
// sequences.
func editDistance(a []string, b []string) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := 0; j <= len(b); j++ {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min3(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}

// ScoreWeights holds the composite score weights. The default policy
// weighs sentence accuracy 0.9 against 0.1 for the inverted word error
// rate.
type ScoreWeights struct {
	SentenceAcc float64
	WER         float64
}

// DefaultScoreWeights returns the standard 0.9/0.1 weighting.
func DefaultScoreWeights() ScoreWeights {
	return ScoreWeights{SentenceAcc: 0.9, WER: 0.1}
}

// Score computes the weighted combination of sentence accuracy and the
// complement of the word error rate. It ranks checkpoints for the
// save-if-improved decision.
func (w ScoreWeights) Score(sentenceAcc float64, wordErrorRate float64) float64 {
	return w.SentenceAcc*sentenceAcc + w.WER*(1-wordErrorRate)
}

// FinalMetric computes the composite score with the default weights.
func FinalMetric(sentenceAcc float64, wordErrorRate float64) float64 {
	return DefaultScoreWeights().Score(sentenceAcc, wordErrorRate)
}

// EpochResult accumulates the metrics of one pass over a dataset.
// Symbol accuracy keeps raw correct/total counts so the epoch value is
// sample-weighted; WER and sentence accuracy keep per-batch sums and
// batch counts so every batch contributes equally regardless of size.
type EpochResult struct {
	Loss           float64
	CorrectSymbols int
	TotalSymbols   int
	WERSum         float64
	NumWER         int
	SentAccSum     float64
	NumSentAcc     int
	GradNorm       float64
}

// SymbolAccuracy returns correct/total over all non-pad positions of
// the epoch. A zero total is a configuration error, not a zero rate.
func (r EpochResult) SymbolAccuracy() (float64, error) {
	if r.TotalSymbols == 0 {
		return 0, fmt.Errorf("epoch contributed zero valid symbols, symbol accuracy is undefined")
	}
	return float64(r.CorrectSymbols) / float64(r.TotalSymbols), nil
}

// WER returns the batch-averaged word error rate of the epoch.
func (r EpochResult) WER() float64 {
	if r.NumWER == 0 {
		return 0
	}
	return r.WERSum / float64(r.NumWER)
}

// SentenceAccuracy returns the batch-averaged sentence accuracy of the
// epoch.
func (r EpochResult) SentenceAccuracy() float64 {
	if r.NumSentAcc == 0 {
		return 0
	}
	return r.SentAccSum / float64(r.NumSentAcc)
}
