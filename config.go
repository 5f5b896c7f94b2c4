package headlinese

import "time"

// A Config enumerates every option shared by the training
// commands. Commands bind the relevant subset to flags;
// fields a variant does not use are simply ignored.
type Config struct {
	// LearningRate is the initial learning rate.
	LearningRate float64

	// DecayFactor multiplies the learning rate when the
	// loss stops improving.
	DecayFactor float64

	// Clip bounds the global gradient norm. Zero disables
	// clipping.
	Clip float64

	BatchSize int

	// Size is the hidden dimension of every recurrent
	// layer, and the embedding dimension unless EmbedSize
	// overrides it.
	Size int

	// EmbedSize is the word embedding dimension for the
	// language model. Zero falls back to Size.
	EmbedSize int

	Layers int

	SourceVocabSize int
	TargetVocabSize int

	// DataDir holds the token id and vocabulary files.
	DataDir string

	// TrainDir receives checkpoints.
	TrainDir string

	// MaxTrainData caps how many examples are read. Zero
	// reads everything.
	MaxTrainData int

	StepsPerCheckpoint int

	// MaxRuntime is a wall clock training budget, checked
	// at checkpoint boundaries. Zero means no budget.
	MaxRuntime time.Duration

	// Epochs bounds training by full passes over the
	// data. Zero means no bound.
	Epochs int

	// MaxSeqLen bounds language model sequences.
	MaxSeqLen int

	// MaxSentenceLen bounds each sentence row in the
	// hierarchical pipeline.
	MaxSentenceLen int

	// Decode switches a command from training to
	// generation.
	Decode bool

	// GloVe optionally names a pretrained embedding file
	// used to initialize source embeddings.
	GloVe string

	// Adam selects the Adam optimizer over plain
	// gradient descent.
	Adam bool

	// MetricsPath optionally names a perplexity log file.
	MetricsPath string

	// Temperature enables sampled decoding. Zero decodes
	// greedily.
	Temperature float64
}

// DefaultConfig mirrors the stock hyperparameters the
// models were originally tuned with.
func DefaultConfig() *Config {
	return &Config{
		LearningRate:       0.5,
		DecayFactor:        0.99,
		Clip:               5,
		BatchSize:          64,
		Size:               1024,
		EmbedSize:          300,
		Layers:             3,
		SourceVocabSize:    40000,
		TargetVocabSize:    40000,
		DataDir:            "data",
		TrainDir:           "train",
		StepsPerCheckpoint: 200,
		MaxSeqLen:          50,
		MaxSentenceLen:     48,
	}
}
