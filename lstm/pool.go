package lstm

import (
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anynet"
	"github.com/unixpickle/anyvec"
)

// A projected bridges recurrent outputs into the anydiff
// graph. Each timestep's output is pooled behind a fresh
// variable so the projection and loss propagate into it
// exactly once; the pooled gradients then become the
// upstream vectors for back-propagation through time.
type projected struct {
	Pools  []*anydiff.Var
	Logits []anydiff.Res
}

// project applies the output network to every timestep of
// u.
func project(out anynet.Net, u *unrolled) *projected {
	res := &projected{}
	for _, step := range u.Reses {
		pool := anydiff.NewVar(step.Output())
		n := step.State().Present().NumPresent()
		res.Pools = append(res.Pools, pool)
		res.Logits = append(res.Logits, out.Apply(pool, n))
	}
	return res
}

// register adds zeroed gradient slots for every pool
// variable.
func (p *projected) register(g anydiff.Grad) {
	for _, pool := range p.Pools {
		g[pool] = pool.Vector.Creator().MakeVector(pool.Vector.Len())
	}
}

// upstreams removes the pool variables from g and returns
// their accumulated gradients in timestep order.
func (p *projected) upstreams(g anydiff.Grad) []anyvec.Vector {
	res := make([]anyvec.Vector, len(p.Pools))
	for i, pool := range p.Pools {
		res[i] = g[pool]
		delete(g, pool)
	}
	return res
}
