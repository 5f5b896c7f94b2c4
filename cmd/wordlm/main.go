// Command wordlm trains a word-level recurrent language
// model, one corpus line per training sequence, on an
// epoch schedule with per-epoch learning rate decay. Run
// with -decode to sample text from the latest checkpoint
// instead.
package main

import (
	"flag"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/unixpickle/anyvec/anyvec32"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/headlinese"
	"github.com/unixpickle/headlinese/lstm"
	"github.com/unixpickle/rip"
	"k8s.io/klog/v2"
)

const checkpointPrefix = "wordlm.ckpt"

func main() {
	klog.InitFlags(nil)
	conf := headlinese.DefaultConfig()
	conf.LearningRate = 1
	conf.DecayFactor = 0.5
	conf.BatchSize = 20
	conf.Size = 200
	conf.EmbedSize = 200
	conf.SourceVocabSize = 10000
	conf.Epochs = 13
	conf.Temperature = 1
	var file string
	var decayStart, decodeCount int
	flag.Float64Var(&conf.LearningRate, "lr", conf.LearningRate, "initial learning rate")
	flag.Float64Var(&conf.DecayFactor, "lr-decay", conf.DecayFactor, "per-epoch learning rate decay factor")
	flag.IntVar(&decayStart, "decay-start", 4, "epoch after which the learning rate starts decaying")
	flag.Float64Var(&conf.Clip, "clip", conf.Clip, "gradient norm clipping threshold")
	flag.IntVar(&conf.BatchSize, "batch", conf.BatchSize, "training batch size")
	flag.IntVar(&conf.Size, "size", conf.Size, "hidden layer size")
	flag.IntVar(&conf.EmbedSize, "embed", conf.EmbedSize, "word embedding size")
	flag.IntVar(&conf.Layers, "layers", conf.Layers, "number of recurrent layers")
	flag.IntVar(&conf.SourceVocabSize, "vocab", conf.SourceVocabSize, "vocabulary size")
	flag.IntVar(&conf.Epochs, "epochs", conf.Epochs, "training epochs")
	flag.IntVar(&conf.MaxSeqLen, "max-seq-len", conf.MaxSeqLen, "maximum words per sequence")
	flag.StringVar(&conf.DataDir, "data-dir", conf.DataDir, "data directory")
	flag.StringVar(&conf.TrainDir, "train-dir", conf.TrainDir, "checkpoint directory")
	flag.StringVar(&file, "file", "train.txt", "training corpus inside the data directory")
	flag.IntVar(&conf.MaxTrainData, "max-train-data", 0, "limit on training sequences (0 for no limit)")
	flag.BoolVar(&conf.Adam, "adam", false, "use the Adam optimizer instead of SGD")
	flag.BoolVar(&conf.Decode, "decode", false, "sample text instead of training")
	flag.IntVar(&decodeCount, "count", 10, "sequences to sample with -decode")
	flag.Float64Var(&conf.Temperature, "temperature", conf.Temperature,
		"sampling temperature with -decode (0 for greedy)")
	flag.Parse()

	if conf.Decode {
		generate(conf, decodeCount)
	} else {
		train(conf, file, decayStart)
	}
}

func train(conf *headlinese.Config, file string, decayStart int) {
	_, idsPath := prepareData(conf, file)
	if err := os.MkdirAll(conf.TrainDir, 0755); err != nil {
		essentials.Die(err)
	}
	model, step := loadModel(conf)

	klog.Infof("Reading training data (limit: %d).", conf.MaxTrainData)
	buckets := []headlinese.Bucket{{Source: conf.MaxSeqLen, Target: conf.MaxSeqLen}}
	set, err := headlinese.ReadLines(idsPath, buckets, headlinese.ReadOptions{
		MaxExamples: conf.MaxTrainData,
		Progress: func(n int) {
			klog.Infof("  reading line %d", n)
		},
	})
	if err != nil {
		essentials.Die(err)
	}
	var total int
	for _, n := range set.Counts() {
		total += n
	}
	stepsPerEpoch := essentials.MaxInt(1, total/conf.BatchSize)

	trainer := &headlinese.Trainer{
		Model:              model,
		Data:               set,
		BatchSize:          conf.BatchSize,
		StepsPerCheckpoint: stepsPerEpoch,
		CheckpointDir:      conf.TrainDir,
		CheckpointPrefix:   checkpointPrefix,
		DecayFactor:        1,
		StatusFunc:         logStatus,
		Step:               step,
	}
	stop := rip.NewRIP().Chan()
	for epoch := step / stepsPerEpoch; epoch < conf.Epochs; epoch++ {
		lr := conf.LearningRate
		if epoch > decayStart {
			lr *= math.Pow(conf.DecayFactor, float64(epoch-decayStart))
		}
		model.SetLearningRate(lr)
		klog.Infof("Epoch %d of %d: learning rate %.4f", epoch+1, conf.Epochs, lr)
		trainer.MaxSteps = (epoch + 1) * stepsPerEpoch
		if err := trainer.Run(stop); err != nil {
			essentials.Die(err)
		}
		select {
		case <-stop:
			return
		default:
		}
	}
}

func generate(conf *headlinese.Config, count int) {
	vocab, _ := prepareData(conf, "")
	model, step := loadModel(conf)
	if step == 0 {
		klog.Warningf("No checkpoint in %s; sampling with fresh parameters.", conf.TrainDir)
	}
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	for i := 0; i < count; i++ {
		ids := model.Generate(rng, conf.MaxSeqLen, conf.Temperature)
		fmt.Println(vocab.Decode(ids))
	}
}

func prepareData(conf *headlinese.Config, file string) (*headlinese.Vocabulary, string) {
	vocabPath := filepath.Join(conf.DataDir, fmt.Sprintf("vocab%d.lm", conf.SourceVocabSize))
	idsPath := filepath.Join(conf.DataDir, fmt.Sprintf("ids%d.lm", conf.SourceVocabSize))
	if file == "" {
		vocab, err := headlinese.ReadVocabulary(vocabPath)
		if err != nil {
			essentials.Die(err)
		}
		return vocab, idsPath
	}
	klog.Infof("Preparing corpus in %s", conf.DataDir)
	vocab, err := headlinese.PrepareData(filepath.Join(conf.DataDir, file),
		vocabPath, idsPath, conf.SourceVocabSize)
	if err != nil {
		essentials.Die(err)
	}
	return vocab, idsPath
}

func loadModel(conf *headlinese.Config) (*lstm.WordLM, int) {
	path, _, err := headlinese.LatestCheckpoint(conf.TrainDir, checkpointPrefix)
	if err == headlinese.ErrNoCheckpoint {
		klog.Infof("Creating %d layers of %d units with fresh parameters.", conf.Layers, conf.Size)
		return lstm.NewWordLM(anyvec32.CurrentCreator(), lstm.WordLMConfig{
			Vocab:        conf.SourceVocabSize,
			EmbedSize:    conf.EmbedSize,
			HiddenSize:   conf.Size,
			Layers:       conf.Layers,
			Clip:         conf.Clip,
			LearningRate: conf.LearningRate,
			Adam:         conf.Adam,
		}), 0
	} else if err != nil {
		essentials.Die(err)
	}
	klog.Infof("Reading model parameters from %s", path)
	var model *lstm.WordLM
	step, err := headlinese.RestoreCheckpoint(path, &model)
	if err != nil {
		essentials.Die(err)
	}
	return model, step
}

func logStatus(s *headlinese.Status) {
	klog.Infof("global step %d learning rate %.4f step-time %.2f perplexity %.2f",
		s.Step, s.LearningRate, s.StepTime, s.Perplexity)
}
