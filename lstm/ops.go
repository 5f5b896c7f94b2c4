package lstm

import (
	"fmt"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec"
)

// crossEntropy reduces per-position logits to a masked
// negative log-likelihood, averaged over batch columns.
// Rows of targets and weights line up with the rows of the
// corresponding logit matrix.
func crossEntropy(logits []anydiff.Res, targets [][]int, weights [][]float64, vocab, batchSize int) anydiff.Res {
	c := logits[0].Output().Creator()
	var total anydiff.Res
	for t, l := range logits {
		lp := anydiff.LogSoftmax(l, vocab)
		picked := weightedPick(lp, targets[t], weights[t], vocab)
		if total == nil {
			total = picked
		} else {
			total = anydiff.Add(total, picked)
		}
	}
	return anydiff.Scale(total, c.MakeNumeric(-1/float64(batchSize)))
}

// weightedPick sums one weighted component per row of a
// packed row-major matrix:
//
//	out = sum_i weights[i] * in[i*cols+ids[i]]
//
// With log-probabilities as input, this is the reduction
// step of masked cross-entropy.
func weightedPick(in anydiff.Res, ids []int, weights []float64, cols int) anydiff.Res {
	if len(ids) != len(weights) {
		panic("length mismatch between ids and weights")
	}
	if len(ids)*cols != in.Output().Len() {
		panic("row count mismatch")
	}
	c := in.Output().Creator()
	data := vectorData(in.Output())
	var total float64
	for i, id := range ids {
		if id < 0 || id >= cols {
			panic(fmt.Sprintf("picked id out of range: %d", id))
		}
		total += weights[i] * data[i*cols+id]
	}
	return &weightedPickRes{
		In:      in,
		IDs:     append([]int{}, ids...),
		Weights: append([]float64{}, weights...),
		Cols:    cols,
		Out:     c.MakeVectorData(c.MakeNumericList([]float64{total})),
	}
}

type weightedPickRes struct {
	In      anydiff.Res
	IDs     []int
	Weights []float64
	Cols    int
	Out     anyvec.Vector
}

func (w *weightedPickRes) Output() anyvec.Vector {
	return w.Out
}

func (w *weightedPickRes) Vars() anydiff.VarSet {
	return w.In.Vars()
}

func (w *weightedPickRes) Propagate(u anyvec.Vector, g anydiff.Grad) {
	c := u.Creator()
	uVal := vectorData(u)[0]
	down := make([]float64, len(w.IDs)*w.Cols)
	for i, id := range w.IDs {
		down[i*w.Cols+id] = uVal * w.Weights[i]
	}
	w.In.Propagate(c.MakeVectorData(c.MakeNumericList(down)), g)
}

// vectorData reads a vector out into float64s, regardless
// of the creator's numeric type.
func vectorData(v anyvec.Vector) []float64 {
	switch data := v.Data().(type) {
	case []float64:
		return data
	case []float32:
		res := make([]float64, len(data))
		for i, x := range data {
			res[i] = float64(x)
		}
		return res
	default:
		panic(fmt.Sprintf("unsupported numeric list: %T", data))
	}
}

func numericFloat(n anyvec.Numeric) float64 {
	switch n := n.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	default:
		panic(fmt.Sprintf("unsupported numeric: %T", n))
	}
}

func splitRows(data []float64, cols int) [][]float64 {
	res := make([][]float64, 0, len(data)/cols)
	for i := 0; i+cols <= len(data); i += cols {
		res = append(res, data[i:i+cols])
	}
	return res
}
