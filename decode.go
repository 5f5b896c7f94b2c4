package headlinese

import (
	"math"
	"math/rand"
	"time"
)

// A Decoder generates target sequences from a trained
// Model using forward-only steps.
type Decoder struct {
	Model   Model
	Buckets []Bucket

	// Reverse must mirror the encoder layout the model
	// was trained with.
	Reverse bool

	// SentenceLen is the sentence row width for DecodeDoc
	// and is unused otherwise.
	SentenceLen int

	// Temperature selects sampled decoding: zero or less
	// takes the argmax token, anything else draws from
	// the temperature-scaled output distribution.
	Temperature float64

	// Rand drives sampled decoding. A nil Rand uses a
	// time-seeded source.
	Rand *rand.Rand
}

// Decode generates ids for one source sequence,
// autoregressively feeding each generated token back in
// as the next decoder input. The result is truncated
// before the first EOSID.
//
// Decode fails when the source fits no bucket.
func (d *Decoder) Decode(source []int) ([]int, error) {
	bucket, err := BucketForSource(d.Buckets, len(source))
	if err != nil {
		return nil, err
	}
	set := &PairSet{
		Buckets: d.Buckets,
		Data:    make([][]Example, len(d.Buckets)),
		Reverse: d.Reverse,
	}
	set.Data[bucket] = []Example{{Source: source}}
	return d.run(set, bucket)
}

// DecodeDoc generates ids for one sentence-split document.
// Documents with fewer sentences than the chosen bucket
// are padded with empty sentences.
func (d *Decoder) DecodeDoc(sentences []Sentence) ([]int, error) {
	bucket, err := BucketForSource(d.Buckets, len(sentences))
	if err != nil {
		return nil, err
	}
	set := &DocSet{
		Buckets:     d.Buckets,
		Data:        make([][]DocExample, len(d.Buckets)),
		SentenceLen: d.SentenceLen,
	}
	set.Data[bucket] = []DocExample{{Sentences: sentences}}
	return d.run(set, bucket)
}

func (d *Decoder) run(data Sampler, bucket int) ([]int, error) {
	rng := d.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	batch := data.Batch(bucket, 1, rng)
	capacity := d.Buckets[bucket].Target
	var out []int
	for len(out) < capacity {
		res, err := d.Model.Step(batch, true)
		if err != nil {
			return nil, err
		}
		next := PickToken(res.Logits[len(out)][0], d.Temperature, rng)
		if next == EOSID {
			break
		}
		out = append(out, next)
		if len(out) >= capacity {
			break
		}
		batch.Decoder[len(out)][0] = next
	}
	return out, nil
}

// PickToken selects an output token from a row of logits:
// the argmax when temperature is non-positive, otherwise a
// draw from softmax(logits/temperature).
func PickToken(logits []float64, temperature float64, rng *rand.Rand) int {
	if temperature <= 0 {
		best := 0
		for i, x := range logits {
			if x > logits[best] {
				best = i
			}
		}
		return best
	}

	max := math.Inf(-1)
	for _, x := range logits {
		if x > max {
			max = x
		}
	}
	probs := make([]float64, len(logits))
	var sum float64
	for i, x := range logits {
		p := math.Exp((x - max) / temperature)
		probs[i] = p
		sum += p
	}
	r := rng.Float64() * sum
	for i, p := range probs {
		r -= p
		if r < 0 {
			return i
		}
	}
	return len(logits) - 1
}
