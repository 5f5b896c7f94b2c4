package lstm

import (
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anynet/anyrnn"
	"github.com/unixpickle/anyvec"
)

// An unrolled is one application of a recurrent block over
// a fixed number of timesteps, retaining what
// back-propagation through time needs.
type unrolled struct {
	Block anyrnn.Block
	Ins   []anydiff.Res
	Reses []anyrnn.Res

	// Final is the state after the last timestep.
	Final anyrnn.State
}

// unroll steps block over ins from the start state.
//
// presents[t], when non-nil, narrows the batch at timestep
// t; ins[t] must then be packed down to the present rows.
// A sequence that goes absent must stay absent.
func unroll(block anyrnn.Block, start anyrnn.State, ins []anydiff.Res, presents []anyrnn.PresentMap) *unrolled {
	res := &unrolled{Block: block, Final: start}
	state := start
	for t, in := range ins {
		if presents != nil && presents[t].NumPresent() != state.Present().NumPresent() {
			state = state.Reduce(presents[t])
		}
		step := block.Step(state, in.Output())
		res.Ins = append(res.Ins, in)
		res.Reses = append(res.Reses, step)
		state = step.State()
	}
	res.Final = state
	return res
}

// propagate runs back-propagation through time.
//
// upstreams[t] is the gradient for the block output at
// timestep t; nil entries stand for zero. upState is the
// incoming gradient for the final state and may be nil.
//
// The returned vectors are the per-timestep input
// gradients, and the returned StateGrad is for the start
// state; passing it to the block's PropagateStart is the
// caller's job.
func (u *unrolled) propagate(upstreams []anyvec.Vector, upState anyrnn.StateGrad, g anydiff.Grad) ([]anyvec.Vector, anyrnn.StateGrad) {
	downs := make([]anyvec.Vector, len(u.Reses))
	nextGrad := upState
	for t := len(u.Reses) - 1; t >= 0; t-- {
		res := u.Reses[t]
		pres := res.State().Present()
		if nextGrad != nil && nextGrad.Present().NumPresent() != pres.NumPresent() {
			nextGrad = nextGrad.Expand(pres)
		}
		up := upstreams[t]
		if up == nil {
			up = res.Output().Creator().MakeVector(res.Output().Len())
		}
		var inDown anyvec.Vector
		inDown, nextGrad = res.Propagate(up, nextGrad, g)
		downs[t] = inDown
		if len(u.Ins[t].Vars()) > 0 {
			u.Ins[t].Propagate(inDown, g)
		}
	}
	return downs, nextGrad
}

// laneRange locates one lane's row inside a packed batch
// vector whose rows are the present lanes in order.
func laneRange(pres anyrnn.PresentMap, lane, size int) (start, end int) {
	for _, p := range pres[:lane] {
		if p {
			start += size
		}
	}
	return start, start + size
}
