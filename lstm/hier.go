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
	var h Hier
	serializer.RegisterTypedDeserializer(h.SerializerType(), DeserializeHier)
}

// HierConfig fixes the hyperparameters of a Hier at
// construction time.
type HierConfig struct {
	SourceVocab int
	TargetVocab int

	// Size is the embedding, sentence vector, and hidden
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

// A Hier summarizes documents in three stages, each with
// its own recurrent stack. A word-level stack reads every
// sentence on its own and its last output becomes the
// sentence vector. A document-level stack reads the
// sentence vectors in order, and a decoder stack seeded
// with the document stack's final state generates the
// headline.
//
// All sentences of a batch run through the word stack as
// one flat batch of lanes; empty padding sentences
// contribute a zero vector instead of a lane.
type Hier struct {
	WordEmbed   *Embedding
	TargetEmbed *Embedding
	WordCell    anyrnn.Stack
	DocCell     anyrnn.Stack
	DecCell     anyrnn.Stack
	Out         anynet.Net

	// Clip bounds the global gradient norm.
	Clip float64

	lr    float64
	adam  bool
	trans anysgd.Transformer
}

// NewHier creates a randomly initialized model.
func NewHier(c anyvec.Creator, conf HierConfig) *Hier {
	newStack := func() anyrnn.Stack {
		s := make(anyrnn.Stack, 0, conf.Layers)
		for i := 0; i < conf.Layers; i++ {
			s = append(s, anyrnn.NewLSTM(c, conf.Size, conf.Size))
		}
		return s
	}
	res := &Hier{
		WordEmbed:   NewEmbedding(c, conf.SourceVocab, conf.Size),
		TargetEmbed: NewEmbedding(c, conf.TargetVocab, conf.Size),
		WordCell:    newStack(),
		DocCell:     newStack(),
		DecCell:     newStack(),
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

// DeserializeHier deserializes a Hier.
func DeserializeHier(d []byte) (*Hier, error) {
	var res Hier
	var clip, lr serializer.Float64
	var adam serializer.Int
	err := serializer.DeserializeAny(d, &res.WordEmbed, &res.TargetEmbed,
		&res.WordCell, &res.DocCell, &res.DecCell, &res.Out, &clip, &lr, &adam)
	if err != nil {
		return nil, essentials.AddCtx("deserialize Hier", err)
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
func (h *Hier) Parameters() []*anydiff.Var {
	res := []*anydiff.Var{h.WordEmbed.Matrix, h.TargetEmbed.Matrix}
	return append(res, anynet.AllParameters(h.WordCell, h.DocCell, h.DecCell, h.Out)...)
}

// LearningRate returns the current learning rate.
func (h *Hier) LearningRate() float64 {
	return h.lr
}

// SetLearningRate overwrites the learning rate used by
// future Steps.
func (h *Hier) SetLearningRate(rate float64) {
	h.lr = rate
}

// Step runs one batch through the network, updating the
// parameters unless forwardOnly is set.
func (h *Hier) Step(b *headlinese.Batch, forwardOnly bool) (*headlinese.StepResult, error) {
	if forwardOnly {
		g, err := h.forward(b)
		if err != nil {
			return nil, err
		}
		return forwardResult(g.loss, g.proj.Logits, h.TargetEmbed.Rows), nil
	}
	grad, loss, err := h.gradient(b)
	if err != nil {
		return nil, err
	}
	applyGradient(grad, h.creator(), h.Clip, h.lr, h.trans)
	return &headlinese.StepResult{Loss: loss}, nil
}

// SerializerType returns the unique ID used to serialize
// a Hier.
func (h *Hier) SerializerType() string {
	return "github.com/unixpickle/headlinese/lstm.Hier"
}

// Serialize serializes the Hier.
func (h *Hier) Serialize() ([]byte, error) {
	adam := serializer.Int(0)
	if h.adam {
		adam = 1
	}
	return serializer.SerializeAny(h.WordEmbed, h.TargetEmbed, h.WordCell,
		h.DocCell, h.DecCell, h.Out, serializer.Float64(h.Clip),
		serializer.Float64(h.lr), adam)
}

type hierGraph struct {
	// word is nil when every sentence in the batch is
	// empty.
	word *unrolled
	doc  *unrolled
	dec  *unrolled
	proj *projected
	loss anydiff.Res

	// tailStep[lane] is the word timestep holding the
	// lane's sentence vector, or -1 for empty sentences.
	tailStep    []int
	sentsPerDoc int
	size        int
}

func (h *Hier) forward(b *headlinese.Batch) (*hierGraph, error) {
	if len(b.Docs) != b.Size || b.Size == 0 {
		return nil, errors.New("hier: batch needs documents")
	}
	if len(b.Decoder) == 0 {
		return nil, errors.New("hier: batch needs decoder rows")
	}
	sentsPerDoc := len(b.Docs[0])
	if sentsPerDoc == 0 {
		return nil, errors.New("hier: batch needs sentences")
	}
	c := h.creator()
	size := h.WordEmbed.Cols
	lanes := b.Size * sentsPerDoc

	laneSent := func(lane int) headlinese.Sentence {
		return b.Docs[lane/sentsPerDoc][lane%sentsPerDoc]
	}
	var maxWordLen int
	for lane := 0; lane < lanes; lane++ {
		if l := laneSent(lane).Len; l > maxWordLen {
			maxWordLen = l
		}
	}

	g := &hierGraph{
		tailStep:    make([]int, lanes),
		sentsPerDoc: sentsPerDoc,
		size:        size,
	}

	// Word stage: every sentence is a lane, dropping out
	// once its words run out.
	if maxWordLen > 0 {
		ins := make([]anydiff.Res, maxWordLen)
		presents := make([]anyrnn.PresentMap, maxWordLen)
		for t := 0; t < maxWordLen; t++ {
			pres := make(anyrnn.PresentMap, lanes)
			var ids []int
			for lane := 0; lane < lanes; lane++ {
				if sent := laneSent(lane); t < sent.Len {
					pres[lane] = true
					ids = append(ids, sent.IDs[t])
				}
			}
			presents[t] = pres
			ins[t] = h.WordEmbed.Lookup(ids)
		}
		g.word = unroll(h.WordCell, h.WordCell.Start(lanes), ins, presents)
	}

	tails := make([]anyvec.Vector, lanes)
	for lane := 0; lane < lanes; lane++ {
		sent := laneSent(lane)
		if sent.Len == 0 {
			tails[lane] = c.MakeVector(size)
			g.tailStep[lane] = -1
			continue
		}
		step := g.word.Reses[sent.Len-1]
		start, end := laneRange(step.State().Present(), lane, size)
		tails[lane] = step.Output().Slice(start, end)
		g.tailStep[lane] = sent.Len - 1
	}

	// Document stage: one timestep per sentence slot, all
	// documents present throughout.
	docIns := make([]anydiff.Res, sentsPerDoc)
	for s := 0; s < sentsPerDoc; s++ {
		rows := make([]anyvec.Vector, b.Size)
		for i := range rows {
			rows[i] = tails[i*sentsPerDoc+s]
		}
		docIns[s] = anydiff.NewConst(c.Concat(rows...))
	}
	g.doc = unroll(h.DocCell, h.DocCell.Start(b.Size), docIns, nil)

	decIns := make([]anydiff.Res, len(b.Decoder))
	for t, ids := range b.Decoder {
		decIns[t] = h.TargetEmbed.Lookup(ids)
	}
	g.dec = unroll(h.DecCell, g.doc.Final, decIns, nil)

	g.proj = project(h.Out, g.dec)
	targets := shiftTargets(b.Decoder, b.Size)
	g.loss = crossEntropy(g.proj.Logits, targets, b.Weights, h.TargetEmbed.Rows, b.Size)
	return g, nil
}

// gradient computes the parameter gradient and loss for a
// batch without applying an update.
func (h *Hier) gradient(b *headlinese.Batch) (anydiff.Grad, float64, error) {
	g, err := h.forward(b)
	if err != nil {
		return nil, 0, err
	}
	c := h.creator()
	grad := anydiff.NewGrad(h.Parameters()...)
	g.proj.register(grad)
	one := c.MakeVectorData(c.MakeNumericList([]float64{1}))
	g.loss.Propagate(one, grad)

	ups := g.proj.upstreams(grad)
	_, stateGrad := g.dec.propagate(ups, nil, grad)
	docDowns, stateGrad := g.doc.propagate(make([]anyvec.Vector, len(g.doc.Reses)), stateGrad, grad)
	if stateGrad != nil {
		h.DocCell.PropagateStart(stateGrad, grad)
	}

	if g.word != nil {
		// Route each sentence vector's gradient back to
		// the word timestep and lane it came from.
		wordUps := make([]anyvec.Vector, len(g.word.Reses))
		for lane, tl := range g.tailStep {
			if tl < 0 {
				continue
			}
			doc, s := lane/g.sentsPerDoc, lane%g.sentsPerDoc
			row := docDowns[s].Slice(doc*g.size, (doc+1)*g.size)
			step := g.word.Reses[tl]
			if wordUps[tl] == nil {
				wordUps[tl] = c.MakeVector(step.Output().Len())
			}
			start, end := laneRange(step.State().Present(), lane, g.size)
			wordUps[tl].Slice(start, end).Set(row)
		}
		_, wordGrad := g.word.propagate(wordUps, nil, grad)
		if wordGrad != nil {
			h.WordCell.PropagateStart(wordGrad, grad)
		}
	}
	return grad, lossValue(g.loss), nil
}

func (h *Hier) creator() anyvec.Creator {
	return h.WordEmbed.Matrix.Vector.Creator()
}
