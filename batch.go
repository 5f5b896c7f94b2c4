package headlinese

import "math/rand"

// A Batch is a fixed-size sample of examples from one
// bucket, padded into rectangular arrays. Arrays are time
// major: Encoder[t][i] is the t-th token of the i-th
// sequence in the batch.
type Batch struct {
	Bucket Bucket
	Size   int

	// Encoder holds source ids, or language model inputs.
	// It is nil for the hierarchical variant.
	Encoder [][]int

	// Docs holds sentence-split sources for the
	// hierarchical variant, one row of sentences per
	// batch column.
	Docs [][]Sentence

	// Decoder holds target ids prefixed with GoID. For
	// the language model it instead holds next-word
	// targets aligned with Encoder.
	Decoder [][]int

	// Weights is the per-position loss mask: 1 at
	// positions whose prediction target is a real token
	// (end marker included), 0 at padding.
	Weights [][]float64

	// Lengths holds per-column true input lengths for the
	// language model.
	Lengths []int
}

// A Sampler owns bucketed training examples and assembles
// padded batches from them.
type Sampler interface {
	// Counts reports the number of examples per bucket.
	Counts() []int

	// Batch samples size examples with replacement from
	// the given bucket.
	Batch(bucket, size int, rng *rand.Rand) *Batch
}

// A PairSet holds bucketed source/target pairs for the
// sequence-to-sequence pipeline.
type PairSet struct {
	Buckets []Bucket
	Data    [][]Example

	// Reverse lays encoder inputs out back to front, the
	// order the summarizer is trained with.
	Reverse bool
}

// Counts reports the number of examples per bucket.
func (p *PairSet) Counts() []int {
	return dataCounts(len(p.Buckets), func(i int) int { return len(p.Data[i]) })
}

// Batch samples size examples with replacement from the
// given bucket and pads them into a batch.
//
// Encoder columns are front-padded (and reversed when
// Reverse is set) so that real tokens sit next to the
// final encoder state. Decoder columns start with GoID.
func (p *PairSet) Batch(bucket, size int, rng *rand.Rand) *Batch {
	b := p.Buckets[bucket]
	res := newPairBatch(b, size)
	res.Encoder = emptyRows(b.Source, size)
	for i := 0; i < size; i++ {
		ex := p.Data[bucket][rng.Intn(len(p.Data[bucket]))]
		if p.Reverse {
			for j, id := range ex.Source {
				res.Encoder[b.Source-1-j][i] = id
			}
		} else {
			pad := b.Source - len(ex.Source)
			for j, id := range ex.Source {
				res.Encoder[pad+j][i] = id
			}
		}
		fillDecoder(res, i, ex.Target)
	}
	return res
}

// A DocSet holds bucketed document/target pairs for the
// hierarchical pipeline.
type DocSet struct {
	Buckets []Bucket
	Data    [][]DocExample

	// SentenceLen is the fixed width of every sentence
	// row.
	SentenceLen int
}

// Counts reports the number of documents per bucket.
func (d *DocSet) Counts() []int {
	return dataCounts(len(d.Buckets), func(i int) int { return len(d.Data[i]) })
}

// Batch samples size documents with replacement from the
// given bucket. Documents with fewer sentences than the
// bucket capacity are padded with empty sentences.
func (d *DocSet) Batch(bucket, size int, rng *rand.Rand) *Batch {
	b := d.Buckets[bucket]
	res := newPairBatch(b, size)
	res.Docs = make([][]Sentence, size)
	for i := 0; i < size; i++ {
		ex := d.Data[bucket][rng.Intn(len(d.Data[bucket]))]
		row := append([]Sentence{}, ex.Sentences...)
		for len(row) < b.Source {
			row = append(row, Sentence{IDs: make([]int, d.SentenceLen)})
		}
		res.Docs[i] = row
		fillDecoder(res, i, ex.Target)
	}
	return res
}

// A LineSet holds bucketed single sequences for language
// model training.
type LineSet struct {
	Buckets []Bucket
	Data    [][]Example
}

// Counts reports the number of lines per bucket.
func (l *LineSet) Counts() []int {
	return dataCounts(len(l.Buckets), func(i int) int { return len(l.Data[i]) })
}

// Batch samples size lines with replacement from the given
// bucket. Inputs and targets are end-padded and aligned,
// with Lengths recording each column's true length.
func (l *LineSet) Batch(bucket, size int, rng *rand.Rand) *Batch {
	b := l.Buckets[bucket]
	res := &Batch{
		Bucket:  b,
		Size:    size,
		Encoder: emptyRows(b.Source, size),
		Decoder: emptyRows(b.Target, size),
		Weights: emptyWeightRows(b.Target, size),
		Lengths: make([]int, size),
	}
	for i := 0; i < size; i++ {
		ex := l.Data[bucket][rng.Intn(len(l.Data[bucket]))]
		for t, id := range ex.Source {
			res.Encoder[t][i] = id
		}
		for t, id := range ex.Target {
			res.Decoder[t][i] = id
			res.Weights[t][i] = 1
		}
		res.Lengths[i] = len(ex.Source)
	}
	return res
}

func newPairBatch(b Bucket, size int) *Batch {
	return &Batch{
		Bucket:  b,
		Size:    size,
		Decoder: emptyRows(b.Target, size),
		Weights: emptyWeightRows(b.Target, size),
	}
}

// fillDecoder writes one GO-prefixed target column and its
// weight mask.
func fillDecoder(res *Batch, col int, target []int) {
	res.Decoder[0][col] = GoID
	for j, id := range target {
		res.Decoder[j+1][col] = id
		res.Weights[j][col] = 1
	}
}

func emptyRows(rows, cols int) [][]int {
	res := make([][]int, rows)
	for i := range res {
		res[i] = make([]int, cols)
	}
	return res
}

func emptyWeightRows(rows, cols int) [][]float64 {
	res := make([][]float64, rows)
	for i := range res {
		res[i] = make([]float64, cols)
	}
	return res
}

func dataCounts(n int, f func(i int) int) []int {
	res := make([]int, n)
	for i := range res {
		res[i] = f(i)
	}
	return res
}
