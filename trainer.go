package headlinese

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"os"
	"time"

	"github.com/unixpickle/essentials"
	"github.com/unixpickle/serializer"
)

// A Model is a trainable sequence network.
type Model interface {
	serializer.Serializer

	// Step consumes one batch. When forwardOnly is false
	// it applies a single gradient update; when true it
	// leaves the parameters untouched and fills in
	// per-position logits for decoding.
	Step(b *Batch, forwardOnly bool) (*StepResult, error)

	// LearningRate returns the current learning rate.
	LearningRate() float64

	// SetLearningRate overwrites the learning rate used
	// by future Steps, decoupled from any optimizer
	// state.
	SetLearningRate(rate float64)
}

// A StepResult reports what one Step produced.
type StepResult struct {
	// Loss is the masked cross-entropy for the batch,
	// averaged over batch columns.
	Loss float64

	// Logits holds one row-major score matrix per decode
	// position, populated on forward-only steps. Row i of
	// Logits[t] scores every vocabulary word for the i-th
	// present sequence at position t.
	Logits [][][]float64
}

// A Status describes one checkpoint boundary.
type Status struct {
	Step         int
	LearningRate float64

	// StepTime is the average seconds per step since the
	// previous boundary.
	StepTime float64

	// Loss is the average training loss since the
	// previous boundary.
	Loss float64

	Perplexity float64
}

// Perplexity converts an average loss to a perplexity,
// reporting +Inf once the exponential would overflow.
func Perplexity(loss float64) float64 {
	if loss >= 300 {
		return math.Inf(1)
	}
	return math.Exp(loss)
}

// A Trainer drives the sample, step, checkpoint, decay
// loop for a Model. Fields other than Model and Data may
// be left zero for defaults where noted.
type Trainer struct {
	Model Model
	Data  Sampler

	// BatchSize is the number of examples per step.
	BatchSize int

	// StepsPerCheckpoint is the step interval between
	// checkpoint boundaries. Zero disables the step
	// cadence, leaving CheckpointInterval in charge.
	StepsPerCheckpoint int

	// CheckpointInterval, when positive, also makes a
	// boundary once this much wall time has passed since
	// the previous one.
	CheckpointInterval time.Duration

	// CheckpointDir and CheckpointPrefix name the saved
	// checkpoint files.
	CheckpointDir    string
	CheckpointPrefix string

	// DecayFactor scales the learning rate whenever the
	// latest boundary loss exceeds the worst of the three
	// before it. A factor of 1 effectively disables
	// decay.
	DecayFactor float64

	// MaxSteps stops training once Step reaches it. Zero
	// means no step limit.
	MaxSteps int

	// MaxRuntime stops training once the wall clock
	// budget is spent. It is only checked at checkpoint
	// boundaries, so the final period may overrun it.
	MaxRuntime time.Duration

	// MetricsPath, if non-empty, names a file to append
	// one "step;lr;steptime;perplexity" line to per
	// boundary.
	MetricsPath string

	// StatusFunc, if non-nil, is called at every
	// boundary, before any decay takes effect.
	StatusFunc func(s *Status)

	// Step is the global step counter. Callers set it
	// when resuming from a checkpoint.
	Step int

	// Rand drives bucket and example sampling. A nil
	// Rand uses a time-seeded source.
	Rand *rand.Rand

	// lossHistory holds boundary losses for the decay
	// rule. Only the most recent few are kept.
	lossHistory []float64
}

// Run trains until a budget expires or stop is closed.
// The stop channel is polled between steps, so closing it
// never interrupts a step in flight.
//
// Training state is durably saved at every checkpoint
// boundary; after a crash or stop, a new Trainer resumed
// from the latest checkpoint replays at most one period.
func (t *Trainer) Run(stop <-chan struct{}) error {
	if t.BatchSize <= 0 {
		return errors.New("train: batch size must be positive")
	}
	if t.StepsPerCheckpoint <= 0 && t.CheckpointInterval <= 0 {
		return errors.New("train: a checkpoint cadence is required")
	}
	rng := t.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	scale, err := BucketScale(t.Data.Counts())
	if err != nil {
		return essentials.AddCtx("train", err)
	}

	start := time.Now()
	lastBoundary := start
	var lossSum float64
	var timeSum time.Duration
	var periodSteps int
	for {
		select {
		case <-stop:
			return nil
		default:
		}
		if t.MaxSteps > 0 && t.Step >= t.MaxSteps {
			return nil
		}

		bucket := scale.Sample(rng)
		batch := t.Data.Batch(bucket, t.BatchSize, rng)
		stepStart := time.Now()
		res, err := t.Model.Step(batch, false)
		if err != nil {
			return essentials.AddCtx("train", err)
		}
		timeSum += time.Since(stepStart)
		lossSum += res.Loss
		t.Step++
		periodSteps++

		boundary := t.StepsPerCheckpoint > 0 && t.Step%t.StepsPerCheckpoint == 0
		if !boundary && t.CheckpointInterval > 0 {
			boundary = time.Since(lastBoundary) >= t.CheckpointInterval
		}
		if !boundary {
			continue
		}

		avgLoss := lossSum / float64(periodSteps)
		if t.StatusFunc != nil {
			t.StatusFunc(&Status{
				Step:         t.Step,
				LearningRate: t.Model.LearningRate(),
				StepTime:     timeSum.Seconds() / float64(periodSteps),
				Loss:         avgLoss,
				Perplexity:   Perplexity(avgLoss),
			})
		}
		if t.MetricsPath != "" {
			if err := t.appendMetrics(avgLoss, timeSum.Seconds()/float64(periodSteps)); err != nil {
				return err
			}
		}
		t.maybeDecay(avgLoss)
		if err := SaveCheckpoint(t.CheckpointDir, t.CheckpointPrefix, t.Step, t.Model); err != nil {
			return err
		}
		lossSum, timeSum, periodSteps = 0, 0, 0
		lastBoundary = time.Now()

		if t.MaxRuntime != 0 && time.Since(start) >= t.MaxRuntime {
			return nil
		}
	}
}

// maybeDecay applies the decay rule: shrink the learning
// rate when the newest boundary loss exceeds the maximum
// of the previous three.
func (t *Trainer) maybeDecay(loss float64) {
	if h := t.lossHistory; len(h) >= 3 {
		worst := h[len(h)-3]
		for _, x := range h[len(h)-2:] {
			if x > worst {
				worst = x
			}
		}
		if loss > worst {
			t.Model.SetLearningRate(t.Model.LearningRate() * t.DecayFactor)
		}
	}
	t.lossHistory = append(t.lossHistory, loss)
	if len(t.lossHistory) > 3 {
		t.lossHistory = t.lossHistory[len(t.lossHistory)-3:]
	}
}

func (t *Trainer) appendMetrics(loss, stepTime float64) error {
	f, err := os.OpenFile(t.MetricsPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return essentials.AddCtx("append metrics", err)
	}
	defer f.Close()
	_, err = fmt.Fprintf(f, "%d;%.4f;%.4f;%.4f\n",
		t.Step, t.Model.LearningRate(), stepTime, Perplexity(loss))
	if err != nil {
		return essentials.AddCtx("append metrics", err)
	}
	return nil
}
