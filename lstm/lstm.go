// Package lstm implements the recurrent networks behind
// the headline pipelines: a word-level language model, a
// sequence-to-sequence summarizer, and a hierarchical
// sentence-aware summarizer.
//
// All three satisfy headlinese.Model: feed a batch, get a
// loss and gradient update, or per-position logits on a
// forward-only step. The numerical heavy lifting is
// delegated to anydiff and anynet; this package wires
// embeddings, recurrent stacks, and output projections
// together and drives back-propagation through time by
// hand so that encoder and decoder gradients land in one
// update.
package lstm

import (
	"math"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anynet/anysgd"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/headlinese"
)

// clipGradient scales g down so that its global L2 norm
// never exceeds clip. A non-positive clip disables
// clipping.
func clipGradient(g anydiff.Grad, clip float64) {
	if clip <= 0 {
		return
	}
	var sum float64
	var c anyvec.Creator
	for _, v := range g {
		c = v.Creator()
		sum += numericFloat(v.Dot(v))
	}
	if sum <= clip*clip || sum == 0 {
		return
	}
	g.Scale(c.MakeNumeric(clip / math.Sqrt(sum)))
}

// applyGradient performs one parameter update: clip the
// global norm, optionally transform the gradient, then
// take a step scaled by the learning rate.
func applyGradient(g anydiff.Grad, c anyvec.Creator, clip, lr float64, trans anysgd.Transformer) {
	clipGradient(g, clip)
	if trans != nil {
		g = trans.Transform(g)
	}
	g.Scale(c.MakeNumeric(-lr))
	g.AddToVars()
}

// shiftTargets derives per-position prediction targets
// from decoder inputs: position t predicts input t+1, and
// the final position predicts padding, which the weight
// mask already zeroes.
func shiftTargets(decoder [][]int, batch int) [][]int {
	res := make([][]int, len(decoder))
	for t := range decoder {
		if t+1 < len(decoder) {
			res[t] = decoder[t+1]
		} else {
			res[t] = make([]int, batch)
		}
	}
	return res
}

// forwardResult extracts the loss and per-position logit
// rows from a forward-only computation.
func forwardResult(loss anydiff.Res, logits []anydiff.Res, vocab int) *headlinese.StepResult {
	res := &headlinese.StepResult{
		Loss:   lossValue(loss),
		Logits: make([][][]float64, len(logits)),
	}
	for t, l := range logits {
		res.Logits[t] = splitRows(vectorData(l.Output()), vocab)
	}
	return res
}

func lossValue(loss anydiff.Res) float64 {
	return vectorData(loss.Output())[0]
}
