package headlinese

import (
	"errors"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/unixpickle/serializer"
)

func init() {
	var s stubModel
	serializer.RegisterTypedDeserializer(s.SerializerType(), DeserializeStubModel)
}

// stubModel replays a scripted loss sequence, repeating
// the final loss once the script runs out.
type stubModel struct {
	lr     float64
	value  float64
	losses []float64
	calls  int
}

func DeserializeStubModel(d []byte) (*stubModel, error) {
	var lr, value serializer.Float64
	if err := serializer.DeserializeAny(d, &lr, &value); err != nil {
		return nil, err
	}
	return &stubModel{lr: float64(lr), value: float64(value)}, nil
}

func (s *stubModel) Step(b *Batch, forwardOnly bool) (*StepResult, error) {
	if forwardOnly {
		return nil, errors.New("forward-only step not supported")
	}
	loss := 1.0
	if s.calls < len(s.losses) {
		loss = s.losses[s.calls]
	} else if len(s.losses) > 0 {
		loss = s.losses[len(s.losses)-1]
	}
	s.calls++
	return &StepResult{Loss: loss}, nil
}

func (s *stubModel) LearningRate() float64 {
	return s.lr
}

func (s *stubModel) SetLearningRate(rate float64) {
	s.lr = rate
}

func (s *stubModel) SerializerType() string {
	return "github.com/unixpickle/headlinese.stubModel"
}

func (s *stubModel) Serialize() ([]byte, error) {
	return serializer.SerializeAny(serializer.Float64(s.lr),
		serializer.Float64(s.value))
}

func trainerData() *PairSet {
	return &PairSet{
		Buckets: []Bucket{{3, 3}},
		Data:    [][]Example{{{Source: []int{4}, Target: []int{5, EOSID}}}},
	}
}

func TestTrainerDecay(t *testing.T) {
	// The rate decays exactly when a boundary loss beats
	// the worst of the three before it.
	model := &stubModel{lr: 1, losses: []float64{5, 4, 3, 2, 6, 1}}
	var statuses []*Status
	tr := &Trainer{
		Model:              model,
		Data:               trainerData(),
		BatchSize:          2,
		StepsPerCheckpoint: 1,
		CheckpointDir:      t.TempDir(),
		CheckpointPrefix:   "m.ckpt",
		DecayFactor:        0.5,
		MaxSteps:           6,
		StatusFunc: func(s *Status) {
			statuses = append(statuses, s)
		},
		Rand: rand.New(rand.NewSource(1337)),
	}
	if err := tr.Run(nil); err != nil {
		t.Fatal(err)
	}

	if model.calls != 6 {
		t.Errorf("expected 6 steps got %d", model.calls)
	}
	if model.lr != 0.5 {
		t.Errorf("expected final rate 0.5 got %v", model.lr)
	}
	if len(statuses) != 6 {
		t.Fatalf("expected 6 statuses got %d", len(statuses))
	}
	for i, s := range statuses {
		if s.Step != i+1 {
			t.Errorf("status %d: expected step %d got %d", i, i+1, s.Step)
		}
		if s.Loss != model.losses[i] {
			t.Errorf("status %d: expected loss %v got %v", i,
				model.losses[i], s.Loss)
		}
	}
	if statuses[4].LearningRate != 1 {
		t.Errorf("status 4: expected pre-decay rate 1 got %v",
			statuses[4].LearningRate)
	}
	if statuses[5].LearningRate != 0.5 {
		t.Errorf("status 5: expected rate 0.5 got %v",
			statuses[5].LearningRate)
	}

	path, step, err := LatestCheckpoint(tr.CheckpointDir, tr.CheckpointPrefix)
	if err != nil {
		t.Fatal(err)
	}
	if step != 6 {
		t.Errorf("expected checkpoint at step 6 got %d", step)
	}
	var restored *stubModel
	if step, err = RestoreCheckpoint(path, &restored); err != nil {
		t.Fatal(err)
	} else if step != 6 || restored.lr != 0.5 {
		t.Errorf("restored step %d rate %v", step, restored.lr)
	}
}

func TestTrainerFlatLoss(t *testing.T) {
	model := &stubModel{lr: 1, losses: []float64{3}}
	tr := &Trainer{
		Model:              model,
		Data:               trainerData(),
		BatchSize:          2,
		StepsPerCheckpoint: 1,
		CheckpointDir:      t.TempDir(),
		CheckpointPrefix:   "m.ckpt",
		DecayFactor:        0.5,
		MaxSteps:           5,
		Rand:               rand.New(rand.NewSource(1337)),
	}
	if err := tr.Run(nil); err != nil {
		t.Fatal(err)
	}
	if model.lr != 1 {
		t.Errorf("expected rate 1 got %v", model.lr)
	}
}

func TestTrainerStop(t *testing.T) {
	model := &stubModel{lr: 1}
	tr := &Trainer{
		Model:              model,
		Data:               trainerData(),
		BatchSize:          2,
		StepsPerCheckpoint: 1,
		CheckpointDir:      t.TempDir(),
		CheckpointPrefix:   "m.ckpt",
		DecayFactor:        0.5,
		Rand:               rand.New(rand.NewSource(1337)),
	}
	stop := make(chan struct{})
	close(stop)
	if err := tr.Run(stop); err != nil {
		t.Fatal(err)
	}
	if model.calls != 0 {
		t.Errorf("expected no steps got %d", model.calls)
	}
}

func TestTrainerMetrics(t *testing.T) {
	dir := t.TempDir()
	metrics := filepath.Join(dir, "metrics.txt")
	model := &stubModel{lr: 1, losses: []float64{2}}
	tr := &Trainer{
		Model:              model,
		Data:               trainerData(),
		BatchSize:          2,
		StepsPerCheckpoint: 2,
		CheckpointDir:      dir,
		CheckpointPrefix:   "m.ckpt",
		DecayFactor:        0.5,
		MaxSteps:           4,
		MetricsPath:        metrics,
		Rand:               rand.New(rand.NewSource(1337)),
	}
	if err := tr.Run(nil); err != nil {
		t.Fatal(err)
	}

	contents, err := os.ReadFile(metrics)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSuffix(string(contents), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines got %d", len(lines))
	}
	for i, line := range lines {
		fields := strings.Split(line, ";")
		if len(fields) != 4 {
			t.Fatalf("line %d: expected 4 fields got %q", i, line)
		}
		if expected := []string{"2", "4"}[i]; fields[0] != expected {
			t.Errorf("line %d: expected step %s got %s", i, expected,
				fields[0])
		}
		if fields[1] != "1.0000" {
			t.Errorf("line %d: expected rate 1.0000 got %s", i, fields[1])
		}
		if fields[3] != "7.3891" {
			t.Errorf("line %d: expected perplexity 7.3891 got %s", i,
				fields[3])
		}
	}
}

func TestTrainerResume(t *testing.T) {
	model := &stubModel{lr: 1}
	tr := &Trainer{
		Model:              model,
		Data:               trainerData(),
		BatchSize:          2,
		StepsPerCheckpoint: 5,
		CheckpointDir:      t.TempDir(),
		CheckpointPrefix:   "m.ckpt",
		DecayFactor:        0.5,
		MaxSteps:           5,
		Step:               3,
		Rand:               rand.New(rand.NewSource(1337)),
	}
	if err := tr.Run(nil); err != nil {
		t.Fatal(err)
	}
	if model.calls != 2 {
		t.Errorf("expected 2 steps got %d", model.calls)
	}
	if _, step, err := LatestCheckpoint(tr.CheckpointDir,
		tr.CheckpointPrefix); err != nil {
		t.Fatal(err)
	} else if step != 5 {
		t.Errorf("expected checkpoint at step 5 got %d", step)
	}
}

func TestTrainerInterval(t *testing.T) {
	model := &stubModel{lr: 1}
	var statuses []*Status
	tr := &Trainer{
		Model:              model,
		Data:               trainerData(),
		BatchSize:          2,
		CheckpointInterval: time.Nanosecond,
		CheckpointDir:      t.TempDir(),
		CheckpointPrefix:   "m.ckpt",
		DecayFactor:        0.5,
		MaxSteps:           3,
		StatusFunc: func(s *Status) {
			statuses = append(statuses, s)
		},
		Rand: rand.New(rand.NewSource(1337)),
	}
	if err := tr.Run(nil); err != nil {
		t.Fatal(err)
	}
	if len(statuses) != 3 {
		t.Errorf("expected 3 statuses got %d", len(statuses))
	}
}

func TestTrainerValidation(t *testing.T) {
	tr := &Trainer{
		Model:     &stubModel{lr: 1},
		Data:      trainerData(),
		BatchSize: 2,
	}
	if err := tr.Run(nil); err == nil {
		t.Error("expected error with no checkpoint cadence")
	}
	tr.StepsPerCheckpoint = 1
	tr.BatchSize = 0
	if err := tr.Run(nil); err == nil {
		t.Error("expected error with no batch size")
	}
}

func TestPerplexity(t *testing.T) {
	if p := Perplexity(0); p != 1 {
		t.Errorf("expected 1 got %v", p)
	}
	if p := Perplexity(2); math.Abs(p-math.Exp(2)) > 1e-9 {
		t.Errorf("expected %v got %v", math.Exp(2), p)
	}
	if p := Perplexity(300); !math.IsInf(p, 1) {
		t.Errorf("expected +Inf got %v", p)
	}
}
