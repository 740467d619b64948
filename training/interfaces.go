package training

import (
	"github.com/doritos0812/p4-fr-sorry-math-but-love-you/optimizer"
	"github.com/doritos0812/p4-fr-sorry-math-but-love-you/tensor"
)

// Batch is one fully-materialized unit of work from a data source: the
// input images and the encoded target sequences. Targets use -1 as the
// padding sentinel; the runner swaps it for the vocabulary's pad id
// before the model ever sees the batch.
type Batch struct {
	Images  *tensor.Tensor
	Targets [][]int
}

// DataLoader supplies batches for one pass over a dataset. Iteration
// must be deterministic for a fixed seed; prefetching or shuffling is
// the loader's concern, not the runner's.
type DataLoader interface {
	// Batches returns a channel yielding every batch exactly once.
	Batches() <-chan Batch

	// NumBatches returns how many batches one pass produces.
	NumBatches() int

	// NumSamples returns the total number of samples in the dataset.
	NumSamples() int
}

// Model is the external sequence model under training. Forward consumes
// the image tensor and the pad-id-filled target sequences and returns a
// token-distribution tensor of shape [batch, steps, classes], where
// steps is the target length minus one (the first target token is never
// a prediction target).
type Model interface {
	Forward(images *tensor.Tensor, expected [][]int, train bool, teacherForcingRatio float64) (*tensor.Tensor, error)

	// Parameters exposes the trainable parameters for the optimizer,
	// gradient clipping and checkpointing.
	Parameters() []*optimizer.Parameter

	// Train and Eval switch the model between gradient-tracking and
	// inference behavior.
	Train()
	Eval()
}

// Loss is the result of one criterion evaluation.
type Loss interface {
	// Value returns the scalar loss for the batch.
	Value() float64

	// Backward runs the backward pass seeded with the given scale
	// factor. Under mixed precision the seed is the gradient scale;
	// without scaling it is 1.
	Backward(seed float64) error
}

// Criterion computes the loss between the model's output distributions
// and the reference sequences shifted by one position.
type Criterion interface {
	Forward(output *tensor.Tensor, expected [][]int) (Loss, error)
}
