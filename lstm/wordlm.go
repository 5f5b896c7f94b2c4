package lstm

import (
	"errors"
	"math/rand"
	"time"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anynet"
	"github.com/unixpickle/anynet/anyrnn"
	"github.com/unixpickle/anynet/anysgd"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/headlinese"
	"github.com/unixpickle/serializer"
)

func init() {
	var w WordLM
	serializer.RegisterTypedDeserializer(w.SerializerType(), DeserializeWordLM)
}

// WordLMConfig fixes the hyperparameters of a WordLM at
// construction time.
type WordLMConfig struct {
	Vocab      int
	EmbedSize  int
	HiddenSize int
	Layers     int

	// Clip bounds the global gradient norm. Zero disables
	// clipping.
	Clip float64

	LearningRate float64

	// Adam selects the Adam optimizer over plain gradient
	// descent.
	Adam bool
}

// A WordLM is a word-level recurrent language model:
// embedded words feed a recurrent stack whose states are
// projected to next-word logits. Batches may mix sequence
// lengths; finished sequences drop out of the computation
// instead of running over padding.
type WordLM struct {
	Embed *Embedding
	Cell  anyrnn.Stack
	Out   anynet.Net

	// Clip bounds the global gradient norm.
	Clip float64

	lr    float64
	adam  bool
	trans anysgd.Transformer
}

// NewWordLM creates a randomly initialized model.
func NewWordLM(c anyvec.Creator, conf WordLMConfig) *WordLM {
	cell := anyrnn.Stack{anyrnn.NewLSTM(c, conf.EmbedSize, conf.HiddenSize)}
	for i := 1; i < conf.Layers; i++ {
		cell = append(cell, anyrnn.NewLSTM(c, conf.HiddenSize, conf.HiddenSize))
	}
	res := &WordLM{
		Embed: NewEmbedding(c, conf.Vocab, conf.EmbedSize),
		Cell:  cell,
		Out:   anynet.Net{anynet.NewFC(c, conf.HiddenSize, conf.Vocab)},
		Clip:  conf.Clip,
		lr:    conf.LearningRate,
		adam:  conf.Adam,
	}
	if conf.Adam {
		res.trans = &anysgd.Adam{}
	}
	return res
}

// DeserializeWordLM deserializes a WordLM.
func DeserializeWordLM(d []byte) (*WordLM, error) {
	var res WordLM
	var clip, lr serializer.Float64
	var adam serializer.Int
	err := serializer.DeserializeAny(d, &res.Embed, &res.Cell, &res.Out,
		&clip, &lr, &adam)
	if err != nil {
		return nil, essentials.AddCtx("deserialize WordLM", err)
	}
	res.Clip = float64(clip)
	res.lr = float64(lr)
	if adam != 0 {
		res.adam = true
		res.trans = &anysgd.Adam{}
	}
	return &res, nil
}

// Parameters returns every trainable variable.
func (w *WordLM) Parameters() []*anydiff.Var {
	res := []*anydiff.Var{w.Embed.Matrix}
	return append(res, anynet.AllParameters(w.Cell, w.Out)...)
}

// LearningRate returns the current learning rate.
func (w *WordLM) LearningRate() float64 {
	return w.lr
}

// SetLearningRate overwrites the learning rate used by
// future Steps.
func (w *WordLM) SetLearningRate(rate float64) {
	w.lr = rate
}

// Step runs one batch through the network, updating the
// parameters unless forwardOnly is set.
//
// Logits rows at timestep t cover only the sequences
// whose length exceeds t, in column order.
func (w *WordLM) Step(b *headlinese.Batch, forwardOnly bool) (*headlinese.StepResult, error) {
	if forwardOnly {
		g, err := w.forward(b)
		if err != nil {
			return nil, err
		}
		return forwardResult(g.loss, g.proj.Logits, w.Embed.Rows), nil
	}
	grad, loss, err := w.gradient(b)
	if err != nil {
		return nil, err
	}
	applyGradient(grad, w.creator(), w.Clip, w.lr, w.trans)
	return &headlinese.StepResult{Loss: loss}, nil
}

// Generate samples a fresh sequence from the model,
// stopping at EOSID or after maxLen words. A non-positive
// temperature takes the argmax at every step instead of
// sampling.
func (w *WordLM) Generate(rng *rand.Rand, maxLen int, temperature float64) []int {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	state := w.Cell.Start(1)
	last := headlinese.GoID
	var out []int
	for len(out) < maxLen {
		in := w.Embed.Lookup([]int{last})
		res := w.Cell.Step(state, in.Output())
		state = res.State()
		logits := w.Out.Apply(anydiff.NewConst(res.Output()), 1)
		next := headlinese.PickToken(vectorData(logits.Output()), temperature, rng)
		if next == headlinese.EOSID {
			break
		}
		out = append(out, next)
		last = next
	}
	return out
}

// SerializerType returns the unique ID used to serialize
// a WordLM.
func (w *WordLM) SerializerType() string {
	return "github.com/unixpickle/headlinese/lstm.WordLM"
}

// Serialize serializes the WordLM.
func (w *WordLM) Serialize() ([]byte, error) {
	adam := serializer.Int(0)
	if w.adam {
		adam = 1
	}
	return serializer.SerializeAny(w.Embed, w.Cell, w.Out,
		serializer.Float64(w.Clip), serializer.Float64(w.lr), adam)
}

type lmGraph struct {
	u    *unrolled
	proj *projected
	loss anydiff.Res
}

func (w *WordLM) forward(b *headlinese.Batch) (*lmGraph, error) {
	if len(b.Lengths) != b.Size {
		return nil, errors.New("wordlm: batch needs per-column lengths")
	}
	var maxLen int
	for _, l := range b.Lengths {
		if l > maxLen {
			maxLen = l
		}
	}
	if maxLen == 0 {
		return nil, errors.New("wordlm: empty batch")
	}
	if maxLen > len(b.Encoder) {
		return nil, errors.New("wordlm: length exceeds batch rows")
	}

	ins := make([]anydiff.Res, maxLen)
	presents := make([]anyrnn.PresentMap, maxLen)
	targets := make([][]int, maxLen)
	weights := make([][]float64, maxLen)
	for t := 0; t < maxLen; t++ {
		pres := make(anyrnn.PresentMap, b.Size)
		var ids, tgt []int
		var wts []float64
		for i, l := range b.Lengths {
			if t < l {
				pres[i] = true
				ids = append(ids, b.Encoder[t][i])
				tgt = append(tgt, b.Decoder[t][i])
				wts = append(wts, b.Weights[t][i])
			}
		}
		presents[t] = pres
		ins[t] = w.Embed.Lookup(ids)
		targets[t] = tgt
		weights[t] = wts
	}
	u := unroll(w.Cell, w.Cell.Start(b.Size), ins, presents)
	proj := project(w.Out, u)
	loss := crossEntropy(proj.Logits, targets, weights, w.Embed.Rows, b.Size)
	return &lmGraph{u: u, proj: proj, loss: loss}, nil
}

// gradient computes the parameter gradient and loss for a
// batch without applying an update.
func (w *WordLM) gradient(b *headlinese.Batch) (anydiff.Grad, float64, error) {
	g, err := w.forward(b)
	if err != nil {
		return nil, 0, err
	}
	c := w.creator()
	grad := anydiff.NewGrad(w.Parameters()...)
	g.proj.register(grad)
	one := c.MakeVectorData(c.MakeNumericList([]float64{1}))
	g.loss.Propagate(one, grad)

	ups := g.proj.upstreams(grad)
	_, stateGrad := g.u.propagate(ups, nil, grad)
	if stateGrad != nil {
		w.Cell.PropagateStart(stateGrad, grad)
	}
	return grad, lossValue(g.loss), nil
}

func (w *WordLM) creator() anyvec.Creator {
	return w.Embed.Matrix.Vector.Creator()
}
