package lstm

import (
	"errors"

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
	var s Seq2Seq
	serializer.RegisterTypedDeserializer(s.SerializerType(), DeserializeSeq2Seq)
}

// Seq2SeqConfig fixes the hyperparameters of a Seq2Seq at
// construction time.
type Seq2SeqConfig struct {
	SourceVocab int
	TargetVocab int

	// Size is both the embedding and the hidden
	// dimension.
	Size   int
	Layers int

	// Clip bounds the global gradient norm. Zero disables
	// clipping.
	Clip float64

	LearningRate float64

	// Adam selects the Adam optimizer over plain gradient
	// descent.
	Adam bool
}

// A Seq2Seq maps a source word sequence to a target word
// sequence: both sides are embedded separately, run
// through one shared recurrent stack, and the decoder
// states are projected to target vocabulary logits. The
// decoder picks up the recurrent state left behind by the
// encoder.
type Seq2Seq struct {
	SourceEmbed *Embedding
	TargetEmbed *Embedding
	Cell        anyrnn.Stack
	Out         anynet.Net

	// Clip bounds the global gradient norm.
	Clip float64

	lr    float64
	adam  bool
	trans anysgd.Transformer
}

// NewSeq2Seq creates a randomly initialized model.
func NewSeq2Seq(c anyvec.Creator, conf Seq2SeqConfig) *Seq2Seq {
	cell := make(anyrnn.Stack, 0, conf.Layers)
	for i := 0; i < conf.Layers; i++ {
		cell = append(cell, anyrnn.NewLSTM(c, conf.Size, conf.Size))
	}
	res := &Seq2Seq{
		SourceEmbed: NewEmbedding(c, conf.SourceVocab, conf.Size),
		TargetEmbed: NewEmbedding(c, conf.TargetVocab, conf.Size),
		Cell:        cell,
		Out:         anynet.Net{anynet.NewFC(c, conf.Size, conf.TargetVocab)},
		Clip:        conf.Clip,
		lr:          conf.LearningRate,
		adam:        conf.Adam,
	}
	if conf.Adam {
		res.trans = &anysgd.Adam{}
	}
	return res
}

// DeserializeSeq2Seq deserializes a Seq2Seq.
func DeserializeSeq2Seq(d []byte) (*Seq2Seq, error) {
	var res Seq2Seq
	var clip, lr serializer.Float64
	var adam serializer.Int
	err := serializer.DeserializeAny(d, &res.SourceEmbed, &res.TargetEmbed,
		&res.Cell, &res.Out, &clip, &lr, &adam)
	if err != nil {
		return nil, essentials.AddCtx("deserialize Seq2Seq", err)
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
func (s *Seq2Seq) Parameters() []*anydiff.Var {
	res := []*anydiff.Var{s.SourceEmbed.Matrix, s.TargetEmbed.Matrix}
	return append(res, anynet.AllParameters(s.Cell, s.Out)...)
}

// LearningRate returns the current learning rate.
func (s *Seq2Seq) LearningRate() float64 {
	return s.lr
}

// SetLearningRate overwrites the learning rate used by
// future Steps.
func (s *Seq2Seq) SetLearningRate(rate float64) {
	s.lr = rate
}

// Step runs one batch through the network, updating the
// parameters unless forwardOnly is set.
func (s *Seq2Seq) Step(b *headlinese.Batch, forwardOnly bool) (*headlinese.StepResult, error) {
	if forwardOnly {
		g, err := s.forward(b)
		if err != nil {
			return nil, err
		}
		return forwardResult(g.loss, g.proj.Logits, s.TargetEmbed.Rows), nil
	}
	grad, loss, err := s.gradient(b)
	if err != nil {
		return nil, err
	}
	applyGradient(grad, s.creator(), s.Clip, s.lr, s.trans)
	return &headlinese.StepResult{Loss: loss}, nil
}

// SerializerType returns the unique ID used to serialize
// a Seq2Seq.
func (s *Seq2Seq) SerializerType() string {
	return "github.com/unixpickle/headlinese/lstm.Seq2Seq"
}

// Serialize serializes the Seq2Seq.
func (s *Seq2Seq) Serialize() ([]byte, error) {
	adam := serializer.Int(0)
	if s.adam {
		adam = 1
	}
	return serializer.SerializeAny(s.SourceEmbed, s.TargetEmbed, s.Cell,
		s.Out, serializer.Float64(s.Clip), serializer.Float64(s.lr), adam)
}

type seqGraph struct {
	enc  *unrolled
	dec  *unrolled
	proj *projected
	loss anydiff.Res
}

func (s *Seq2Seq) forward(b *headlinese.Batch) (*seqGraph, error) {
	if len(b.Encoder) == 0 || len(b.Decoder) == 0 {
		return nil, errors.New("seq2seq: batch needs encoder and decoder rows")
	}
	encIns := make([]anydiff.Res, len(b.Encoder))
	for t, ids := range b.Encoder {
		encIns[t] = s.SourceEmbed.Lookup(ids)
	}
	enc := unroll(s.Cell, s.Cell.Start(b.Size), encIns, nil)

	decIns := make([]anydiff.Res, len(b.Decoder))
	for t, ids := range b.Decoder {
		decIns[t] = s.TargetEmbed.Lookup(ids)
	}
	dec := unroll(s.Cell, enc.Final, decIns, nil)

	proj := project(s.Out, dec)
	targets := shiftTargets(b.Decoder, b.Size)
	loss := crossEntropy(proj.Logits, targets, b.Weights, s.TargetEmbed.Rows, b.Size)
	return &seqGraph{enc: enc, dec: dec, proj: proj, loss: loss}, nil
}

// gradient computes the parameter gradient and loss for a
// batch without applying an update.
func (s *Seq2Seq) gradient(b *headlinese.Batch) (anydiff.Grad, float64, error) {
	g, err := s.forward(b)
	if err != nil {
		return nil, 0, err
	}
	c := s.creator()
	grad := anydiff.NewGrad(s.Parameters()...)
	g.proj.register(grad)
	one := c.MakeVectorData(c.MakeNumericList([]float64{1}))
	g.loss.Propagate(one, grad)

	ups := g.proj.upstreams(grad)
	_, stateGrad := g.dec.propagate(ups, nil, grad)
	_, stateGrad = g.enc.propagate(make([]anyvec.Vector, len(g.enc.Reses)), stateGrad, grad)
	if stateGrad != nil {
		s.Cell.PropagateStart(stateGrad, grad)
	}
	return grad, lossValue(g.loss), nil
}

func (s *Seq2Seq) creator() anyvec.Creator {
	return s.SourceEmbed.Matrix.Vector.Creator()
}
