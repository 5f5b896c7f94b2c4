// Command sent2title trains the hierarchical headline
// model: articles are split into sentences, each sentence
// is encoded by a word-level network, and a document-level
// network reads the sentence vectors before decoding a
// title. Run with -decode to generate headlines from the
// latest checkpoint instead.
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

const checkpointPrefix = "sent2title.ckpt"

// Bucket capacities count sentences, not words. Documents
// land in the largest bucket they overflow and are trimmed
// to its capacity.
var buckets = []headlinese.Bucket{
	{Source: 1, Target: 48},
	{Source: 5, Target: 48},
	{Source: 7, Target: 48},
	{Source: 10, Target: 48},
	{Source: 15, Target: 48},
	{Source: 20, Target: 48},
}

func main() {
	klog.InitFlags(nil)
	conf := headlinese.DefaultConfig()
	conf.BatchSize = 6
	conf.Size = 300
	conf.SourceVocabSize = 20000
	conf.TargetVocabSize = 20000
	conf.MaxSentenceLen = 250
	var articleFile, titleFile string
	var checkpointEvery time.Duration
	var decodeCount int
	flag.Float64Var(&conf.LearningRate, "lr", conf.LearningRate, "initial learning rate")
	flag.Float64Var(&conf.DecayFactor, "lr-decay", conf.DecayFactor, "learning rate decay factor")
	flag.Float64Var(&conf.Clip, "clip", conf.Clip, "gradient norm clipping threshold")
	flag.IntVar(&conf.BatchSize, "batch", conf.BatchSize, "training batch size")
	flag.IntVar(&conf.Size, "size", conf.Size, "hidden and embedding size")
	flag.IntVar(&conf.Layers, "layers", conf.Layers, "number of recurrent layers per stage")
	flag.IntVar(&conf.SourceVocabSize, "article-vocab", conf.SourceVocabSize, "article vocabulary size")
	flag.IntVar(&conf.TargetVocabSize, "title-vocab", conf.TargetVocabSize, "title vocabulary size")
	flag.StringVar(&conf.DataDir, "data-dir", conf.DataDir, "data directory")
	flag.StringVar(&conf.TrainDir, "train-dir", conf.TrainDir, "checkpoint directory")
	flag.StringVar(&articleFile, "article-file", "articles.txt", "article corpus inside the data directory")
	flag.StringVar(&titleFile, "title-file", "titles.txt", "title corpus inside the data directory")
	flag.IntVar(&conf.MaxTrainData, "max-train-data", 0, "limit on training examples (0 for no limit)")
	flag.IntVar(&conf.MaxSentenceLen, "max-sent", conf.MaxSentenceLen, "maximum words per sentence")
	flag.IntVar(&conf.StepsPerCheckpoint, "steps-per-checkpoint", 0,
		"training steps per checkpoint (0 to checkpoint on time alone)")
	flag.DurationVar(&checkpointEvery, "checkpoint-every", time.Hour, "wall clock time between checkpoints")
	flag.DurationVar(&conf.MaxRuntime, "max-runtime", 0, "wall clock training budget (0 for no budget)")
	flag.BoolVar(&conf.Decode, "decode", false, "generate headlines instead of training")
	flag.IntVar(&decodeCount, "count", 50, "articles to decode with -decode")
	flag.Float64Var(&conf.Temperature, "temperature", 0, "decode sampling temperature (0 for greedy)")
	flag.Parse()

	if conf.Decode {
		decode(conf, articleFile, titleFile, decodeCount)
	} else {
		train(conf, articleFile, titleFile, checkpointEvery)
	}
}

func train(conf *headlinese.Config, articleFile, titleFile string, checkpointEvery time.Duration) {
	_, _, articleIDs, titleIDs := prepareData(conf, articleFile, titleFile)
	if err := os.MkdirAll(conf.TrainDir, 0755); err != nil {
		essentials.Die(err)
	}
	model, step := loadModel(conf)

	klog.Infof("Reading training data (limit: %d).", conf.MaxTrainData)
	set, err := headlinese.ReadDocs(articleIDs, titleIDs, buckets, conf.MaxSentenceLen,
		headlinese.ReadOptions{
			MaxExamples: conf.MaxTrainData,
			Progress: func(n int) {
				klog.Infof("  reading article %d", n)
			},
		})
	if err != nil {
		essentials.Die(err)
	}

	trainer := &headlinese.Trainer{
		Model:              model,
		Data:               set,
		BatchSize:          conf.BatchSize,
		StepsPerCheckpoint: conf.StepsPerCheckpoint,
		CheckpointInterval: checkpointEvery,
		CheckpointDir:      conf.TrainDir,
		CheckpointPrefix:   checkpointPrefix,
		DecayFactor:        conf.DecayFactor,
		MaxRuntime:         conf.MaxRuntime,
		StatusFunc:         logStatus,
		Step:               step,
	}
	if err := trainer.Run(rip.NewRIP().Chan()); err != nil {
		essentials.Die(err)
	}
}

func decode(conf *headlinese.Config, articleFile, titleFile string, count int) {
	_, titleVocab, articleIDs, titleIDs := prepareData(conf, articleFile, titleFile)
	model, step := loadModel(conf)
	if step == 0 {
		klog.Warningf("No checkpoint in %s; decoding with fresh parameters.", conf.TrainDir)
	}
	set, err := headlinese.ReadDocs(articleIDs, titleIDs, buckets, conf.MaxSentenceLen,
		headlinese.ReadOptions{MaxExamples: conf.MaxTrainData})
	if err != nil {
		essentials.Die(err)
	}
	var docs []headlinese.DocExample
	for _, list := range set.Data {
		docs = append(docs, list...)
	}
	if len(docs) == 0 {
		essentials.Die("no articles to decode")
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	dec := &headlinese.Decoder{
		Model:       model,
		Buckets:     buckets,
		SentenceLen: conf.MaxSentenceLen,
		Temperature: conf.Temperature,
		Rand:        rng,
	}
	rule := strings.Repeat("-", 80)
	for _, i := range rng.Perm(len(docs))[:essentials.MinInt(count, len(docs))] {
		doc := docs[i]
		out, err := dec.DecodeDoc(doc.Sentences)
		if err != nil {
			essentials.Die(err)
		}
		fmt.Println(rule)
		fmt.Println("Generated: " + titleVocab.Decode(out))
		fmt.Println("     True: " + titleVocab.Decode(trimEOS(doc.Target)))
		fmt.Println(rule)
	}
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

func loadModel(conf *headlinese.Config) (*lstm.Hier, int) {
	path, _, err := headlinese.LatestCheckpoint(conf.TrainDir, checkpointPrefix)
	if err == headlinese.ErrNoCheckpoint {
		klog.Infof("Creating %d layers of %d units with fresh parameters.", conf.Layers, conf.Size)
		return lstm.NewHier(anyvec32.CurrentCreator(), lstm.HierConfig{
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
	var model *lstm.Hier
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
