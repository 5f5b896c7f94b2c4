package lstm

import (
	"math"
	"math/rand"
	"testing"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/headlinese"
)

// addToEntry nudges one component of a vector in place.
func addToEntry(v anyvec.Vector, idx int, delta float64) {
	c := v.Creator()
	data := v.Data().([]float64)
	data[idx] += delta
	v.Set(c.MakeVectorData(c.MakeNumericList(data)))
}

// batchLoss runs a forward-only step and returns the loss.
func batchLoss(t *testing.T, m headlinese.Model, b *headlinese.Batch) float64 {
	t.Helper()
	res, err := m.Step(b, true)
	if err != nil {
		t.Fatal(err)
	}
	return res.Loss
}

// checkGradient compares an analytic gradient against
// central finite differences at a handful of entries of
// every parameter.
func checkGradient(t *testing.T, m headlinese.Model, params []*anydiff.Var,
	grad anydiff.Grad, b *headlinese.Batch) {
	t.Helper()
	const h = 1e-5
	rng := rand.New(rand.NewSource(1337))
	for pi, v := range params {
		gradVec, ok := grad[v]
		if !ok {
			t.Errorf("parameter %d: no gradient", pi)
			continue
		}
		gradData := gradVec.Data().([]float64)
		for _, idx := range checkIndices(rng, v.Vector.Len()) {
			addToEntry(v.Vector, idx, h)
			plus := batchLoss(t, m, b)
			addToEntry(v.Vector, idx, -2*h)
			minus := batchLoss(t, m, b)
			addToEntry(v.Vector, idx, h)
			expected := (plus - minus) / (2 * h)
			if actual := gradData[idx]; math.Abs(actual-expected) > 1e-4 {
				t.Errorf("parameter %d entry %d: expected %v got %v",
					pi, idx, expected, actual)
			}
		}
	}
}

func checkIndices(rng *rand.Rand, size int) []int {
	if size <= 6 {
		res := make([]int, size)
		for i := range res {
			res[i] = i
		}
		return res
	}
	seen := map[int]bool{}
	var res []int
	for len(res) < 6 {
		idx := rng.Intn(size)
		if !seen[idx] {
			seen[idx] = true
			res = append(res, idx)
		}
	}
	return res
}

func snapshotParams(params []*anydiff.Var) [][]float64 {
	res := make([][]float64, len(params))
	for i, v := range params {
		res[i] = v.Vector.Data().([]float64)
	}
	return res
}

func paramsEqual(a, b [][]float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i, x := range a {
		if len(x) != len(b[i]) {
			return false
		}
		for j, y := range x {
			if y != b[i][j] {
				return false
			}
		}
	}
	return true
}
