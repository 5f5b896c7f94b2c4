// Command seq2title trains a sequence-to-sequence headline
// model on line-aligned article/title corpora. Run with
// -decode to generate headlines from the latest checkpoint
// instead.
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/unixpickle/anyvec/anyvec32"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/headlinese"
	"github.com/unixpickle/headlinese/lstm"
	"github.com/unixpickle/rip"
	"k8s.io/klog/v2"
)

const checkpointPrefix = "seq2title.ckpt"

// Articles and titles are padded to a single bucket; title
// and article lengths showed no correlation worth more
// buckets.
var buckets = []headlinese.Bucket{{Source: 200, Target: 48}}

func main() {
	klog.InitFlags(nil)
	conf := headlinese.DefaultConfig()
	var articleFile, titleFile string
	flag.Float64Var(&conf.LearningRate, "lr", conf.LearningRate, "initial learning rate")
	flag.Float64Var(&conf.DecayFactor, "lr-decay", conf.DecayFactor, "learning rate decay factor")
	flag.Float64Var(&conf.Clip, "clip", conf.Clip, "gradient norm clipping threshold")
	flag.IntVar(&conf.BatchSize, "batch", conf.BatchSize, "training batch size")
	flag.IntVar(&conf.Size, "size", conf.Size, "hidden and embedding size")
	flag.IntVar(&conf.Layers, "layers", conf.Layers, "number of recurrent layers")
	flag.IntVar(&conf.SourceVocabSize, "article-vocab", conf.SourceVocabSize, "article vocabulary size")
	flag.IntVar(&conf.TargetVocabSize, "title-vocab", conf.TargetVocabSize, "title vocabulary size")
	flag.StringVar(&conf.DataDir, "data-dir", conf.DataDir, "data directory")
	flag.StringVar(&conf.TrainDir, "train-dir", conf.TrainDir, "checkpoint directory")
	flag.StringVar(&articleFile, "article-file", "articles.txt", "article corpus inside the data directory")
	flag.StringVar(&titleFile, "title-file", "titles.txt", "title corpus inside the data directory")
	flag.IntVar(&conf.MaxTrainData, "max-train-data", 0, "limit on training examples (0 for no limit)")
	flag.IntVar(&conf.StepsPerCheckpoint, "steps-per-checkpoint", conf.StepsPerCheckpoint,
		"training steps per checkpoint")
	flag.DurationVar(&conf.MaxRuntime, "max-runtime", 0, "wall clock training budget (0 for no budget)")
	flag.StringVar(&conf.GloVe, "glove", "", "GloVe vector file (inside the data directory) for fresh embeddings")
	flag.BoolVar(&conf.Adam, "adam", false, "use the Adam optimizer instead of SGD")
	flag.StringVar(&conf.MetricsPath, "perplexity-log", "", "perplexity log file inside the train directory")
	flag.BoolVar(&conf.Decode, "decode", false, "generate headlines instead of training")
	flag.Float64Var(&conf.Temperature, "temperature", 0, "decode sampling temperature (0 for greedy)")
	flag.Parse()

	if conf.Decode {
		decode(conf, articleFile, titleFile)
	} else {
		train(conf, articleFile, titleFile)
	}
}

func train(conf *headlinese.Config, articleFile, titleFile string) {
	articleVocab, titleVocab, articleIDs, titleIDs := prepareData(conf, articleFile, titleFile)
	if err := os.MkdirAll(conf.TrainDir, 0755); err != nil {
		essentials.Die(err)
	}
	model, step := loadModel(conf)
	if step == 0 && conf.GloVe != "" {
		glovePath := filepath.Join(conf.DataDir, conf.GloVe)
		n, err := lstm.LoadGloVe(model.SourceEmbed, articleVocab, glovePath)
		if err != nil {
			essentials.Die(err)
		}
		m, err := lstm.LoadGloVe(model.TargetEmbed, titleVocab, glovePath)
		if err != nil {
			essentials.Die(err)
		}
		klog.Infof("Loaded GloVe vectors for %d article and %d title words.", n, m)
	}

	klog.Infof("Reading training data (limit: %d).", conf.MaxTrainData)
	set, err := headlinese.ReadPairs(articleIDs, titleIDs, buckets, headlinese.ReadOptions{
		MaxExamples: conf.MaxTrainData,
		Progress: func(n int) {
			klog.Infof("  reading data line %d", n)
		},
	})
	if err != nil {
		essentials.Die(err)
	}
	set.Reverse = true

	var metrics string
	if conf.MetricsPath != "" {
		metrics = filepath.Join(conf.TrainDir, conf.MetricsPath)
	}
	trainer := &headlinese.Trainer{
		Model:              model,
		Data:               set,
		BatchSize:          conf.BatchSize,
		StepsPerCheckpoint: conf.StepsPerCheckpoint,
		CheckpointDir:      conf.TrainDir,
		CheckpointPrefix:   checkpointPrefix,
		DecayFactor:        conf.DecayFactor,
		MaxRuntime:         conf.MaxRuntime,
		MetricsPath:        metrics,
		StatusFunc:         logStatus,
		Step:               step,
	}
	if err := trainer.Run(rip.NewRIP().Chan()); err != nil {
		essentials.Die(err)
	}
}

func decode(conf *headlinese.Config, articleFile, titleFile string) {
	_, titleVocab, articleIDs, titleIDs := prepareData(conf, articleFile, titleFile)
	model, step := loadModel(conf)
	if step == 0 {
		klog.Warningf("No checkpoint in %s; decoding with fresh parameters.", conf.TrainDir)
	}
	set, err := headlinese.ReadPairs(articleIDs, titleIDs, buckets, headlinese.ReadOptions{
		MaxExamples: conf.MaxTrainData,
	})
	if err != nil {
		essentials.Die(err)
	}
	var examples []headlinese.Example
	for _, list := range set.Data {
		examples = append(examples, list...)
	}
	if len(examples) == 0 {
		essentials.Die("no examples to decode")
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	dec := &headlinese.Decoder{
		Model:       model,
		Buckets:     buckets,
		Reverse:     true,
		Temperature: conf.Temperature,
		Rand:        rng,
	}
	rule := strings.Repeat("-", 80)
	fmt.Println(rule)
	count := essentials.MinInt(conf.BatchSize, len(examples))
	for _, i := range rng.Perm(len(examples))[:count] {
		ex := examples[i]
		out, err := dec.Decode(ex.Source)
		if err != nil {
			essentials.Die(err)
		}
		fmt.Println("Generated: " + titleVocab.Decode(out))
		fmt.Println("     True: " + titleVocab.Decode(trimEOS(ex.Target)))
	}
	fmt.Println(rule)
}

func prepareData(conf *headlinese.Config, articleFile, titleFile string) (articleVocab, titleVocab *headlinese.Vocabulary, articleIDs, titleIDs string) {
	klog.Infof("Preparing news data in %s", conf.DataDir)
	articleIDs = filepath.Join(conf.DataDir, fmt.Sprintf("ids%d.article", conf.SourceVocabSize))
	titleIDs = filepath.Join(conf.DataDir, fmt.Sprintf("ids%d.title", conf.TargetVocabSize))
	var err error
	articleVocab, err = headlinese.PrepareData(
		filepath.Join(conf.DataDir, articleFile),
		filepath.Join(conf.DataDir, fmt.Sprintf("vocab%d.article", conf.SourceVocabSize)),
		articleIDs, conf.SourceVocabSize)
	if err != nil {
		essentials.Die(err)
	}
	titleVocab, err = headlinese.PrepareData(
		filepath.Join(conf.DataDir, titleFile),
		filepath.Join(conf.DataDir, fmt.Sprintf("vocab%d.title", conf.TargetVocabSize)),
		titleIDs, conf.TargetVocabSize)
	if err != nil {
		essentials.Die(err)
	}
	return
}

func loadModel(conf *headlinese.Config) (*lstm.Seq2Seq, int) {
	path, _, err := headlinese.LatestCheckpoint(conf.TrainDir, checkpointPrefix)
	if err == headlinese.ErrNoCheckpoint {
		klog.Infof("Creating %d layers of %d units with fresh parameters.", conf.Layers, conf.Size)
		return lstm.NewSeq2Seq(anyvec32.CurrentCreator(), lstm.Seq2SeqConfig{
			SourceVocab:  conf.SourceVocabSize,
			TargetVocab:  conf.TargetVocabSize,
			Size:         conf.Size,
			Layers:       conf.Layers,
			Clip:         conf.Clip,
			LearningRate: conf.LearningRate,
			Adam:         conf.Adam,
		}), 0
	} else if err != nil {
		essentials.Die(err)
	}
	klog.Infof("Reading model parameters from %s", path)
	var model *lstm.Seq2Seq
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

func trimEOS(ids []int) []int {
	for i, id := range ids {
		if id == headlinese.EOSID {
			return ids[:i]
		}
	}
	return ids
}
