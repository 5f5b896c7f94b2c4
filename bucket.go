package headlinese

import (
	"errors"
	"fmt"
	"math/rand"
)

// A Bucket is a capacity class for batching variable
// length sequences. Source and Target bound the padded
// shapes of encoder and decoder inputs. In the
// hierarchical pipeline, Source counts sentences rather
// than words.
type Bucket struct {
	Source int
	Target int
}

// StrictBucket returns the index of the first bucket whose
// capacities strictly bound the given lengths, or -1 when
// no bucket fits. Buckets must be ordered by increasing
// capacity.
func StrictBucket(buckets []Bucket, sourceLen, targetLen int) int {
	for i, b := range buckets {
		if sourceLen < b.Source && targetLen < b.Target {
			return i
		}
	}
	return -1
}

// OverflowBucket returns the index of the largest bucket
// whose source capacity the source overflows while the
// target still fits, or -1 when there is none. The caller
// truncates the source down to the capacity of the chosen
// bucket.
func OverflowBucket(buckets []Bucket, sourceLen, targetLen int) int {
	for i := len(buckets) - 1; i >= 0; i-- {
		b := buckets[i]
		if sourceLen > b.Source && targetLen < b.Target {
			return i
		}
	}
	return -1
}

// BucketForSource returns the index of the smallest bucket
// whose source capacity strictly bounds sourceLen. It is
// used for decoding, where no target exists yet.
func BucketForSource(buckets []Bucket, sourceLen int) (int, error) {
	for i, b := range buckets {
		if sourceLen < b.Source {
			return i, nil
		}
	}
	return 0, fmt.Errorf("no bucket for source of length %d", sourceLen)
}

// A Scale is a cumulative distribution over buckets,
// proportional to the number of examples each bucket
// holds.
type Scale []float64

// BucketScale computes, for each bucket, the fraction of
// all examples living in that bucket or an earlier one.
func BucketScale(counts []int) (Scale, error) {
	var total int
	for _, c := range counts {
		total += c
	}
	if total == 0 {
		return nil, errors.New("bucket scale: no examples")
	}
	res := make(Scale, len(counts))
	var sum int
	for i, c := range counts {
		sum += c
		res[i] = float64(sum) / float64(total)
	}
	return res, nil
}

// Choose returns the smallest bucket index whose
// cumulative fraction exceeds r, where r is in [0, 1).
func (s Scale) Choose(r float64) int {
	for i, x := range s {
		if x > r {
			return i
		}
	}
	return len(s) - 1
}

// Sample draws a bucket index at random, weighted by the
// number of examples per bucket. Empty buckets are never
// chosen.
func (s Scale) Sample(rng *rand.Rand) int {
	return s.Choose(rng.Float64())
}
