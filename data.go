package headlinese

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/unixpickle/essentials"
)

const progressInterval = 25000

// An Example is one source/target pair of token ids, ready
// for batching. Loaders always terminate the target with
// EOSID.
type Example struct {
	Source []int
	Target []int
}

// A Sentence is a fixed-width row of token ids plus the
// number of leading ids that are real words.
type Sentence struct {
	Len int
	IDs []int
}

// A DocExample pairs a sentence-split article with its
// title. The target ends with EOSID.
type DocExample struct {
	Sentences []Sentence
	Target    []int
}

// ReadOptions control the data loaders.
type ReadOptions struct {
	// MaxExamples caps the number of examples read. Zero
	// reads everything.
	MaxExamples int

	// Progress, if non-nil, is called once per 25000
	// examples with the running count.
	Progress func(count int)
}

// ReadPairs reads two line-aligned token id files and
// partitions the pairs into buckets using the strict fit
// policy. Sources and targets longer than the largest
// bucket allows are truncated first, so no pair is dropped
// for its length.
//
// Reading stops at the end of the shorter file. A trailing
// line with no newline terminator is skipped.
func ReadPairs(sourcePath, targetPath string, buckets []Bucket, opts ReadOptions) (*PairSet, error) {
	if len(buckets) == 0 {
		return nil, errors.New("read pairs: no buckets")
	}
	srcLimit := buckets[len(buckets)-1].Source - 1
	tgtLimit := buckets[len(buckets)-1].Target - 2

	res := &PairSet{
		Buckets: buckets,
		Data:    make([][]Example, len(buckets)),
	}
	err := eachPair(sourcePath, targetPath, opts, func(src, tgt []int) {
		src = truncate(src, srcLimit)
		tgt = truncate(tgt, tgtLimit)
		tgt = append(tgt, EOSID)
		if b := StrictBucket(buckets, len(src), len(tgt)); b >= 0 {
			res.Data[b] = append(res.Data[b], Example{Source: src, Target: tgt})
		}
	})
	if err != nil {
		return nil, essentials.AddCtx("read pairs", err)
	}
	return res, nil
}

// ReadDocs reads two line-aligned token id files, splits
// every source into sentences at EOSID, and places each
// document in the largest bucket whose sentence capacity
// it overflows, truncating the document to that capacity.
// Documents that overflow no bucket are dropped.
func ReadDocs(sourcePath, targetPath string, buckets []Bucket, sentenceLen int, opts ReadOptions) (*DocSet, error) {
	if len(buckets) == 0 {
		return nil, errors.New("read docs: no buckets")
	}
	if sentenceLen <= 0 {
		return nil, errors.New("read docs: non-positive sentence length")
	}
	tgtLimit := buckets[len(buckets)-1].Target - 2

	res := &DocSet{
		Buckets:     buckets,
		Data:        make([][]DocExample, len(buckets)),
		SentenceLen: sentenceLen,
	}
	err := eachPair(sourcePath, targetPath, opts, func(src, tgt []int) {
		sents := SplitSentences(src, sentenceLen)
		tgt = truncate(tgt, tgtLimit)
		tgt = append(tgt, EOSID)
		b := OverflowBucket(buckets, len(sents), len(tgt))
		if b < 0 {
			return
		}
		res.Data[b] = append(res.Data[b], DocExample{
			Sentences: sents[:buckets[b].Source],
			Target:    tgt,
		})
	})
	if err != nil {
		return nil, essentials.AddCtx("read docs", err)
	}
	return res, nil
}

// ReadLines reads a single token id file for language
// model training. Every line becomes an example whose
// input is the line prefixed with GoID and whose target is
// the line suffixed with EOSID, bucketed by the strict fit
// policy on the common length.
func ReadLines(path string, buckets []Bucket, opts ReadOptions) (*LineSet, error) {
	if len(buckets) == 0 {
		return nil, errors.New("read lines: no buckets")
	}
	limit := buckets[len(buckets)-1].Source - 2

	f, err := os.Open(path)
	if err != nil {
		return nil, essentials.AddCtx("read lines", err)
	}
	defer f.Close()

	res := &LineSet{
		Buckets: buckets,
		Data:    make([][]Example, len(buckets)),
	}
	r := bufio.NewReader(f)
	var count int
	for opts.MaxExamples == 0 || count < opts.MaxExamples {
		ids, ok, err := readIDLine(r)
		if err != nil {
			return nil, essentials.AddCtx("read lines", err)
		}
		if !ok {
			break
		}
		count++
		if opts.Progress != nil && count%progressInterval == 0 {
			opts.Progress(count)
		}
		ids = truncate(ids, limit)
		input := append([]int{GoID}, ids...)
		target := append(append([]int{}, ids...), EOSID)
		if b := StrictBucket(buckets, len(input), len(target)); b >= 0 {
			res.Data[b] = append(res.Data[b], Example{Source: input, Target: target})
		}
	}
	return res, nil
}

// SplitSentences cuts a flat id sequence into fixed-width
// sentence rows at every EOSID, clipping sentences longer
// than width and dropping empty ones.
func SplitSentences(ids []int, width int) []Sentence {
	var res []Sentence
	var cur []int
	flush := func() {
		if len(cur) == 0 {
			return
		}
		s := Sentence{Len: len(cur), IDs: make([]int, width)}
		if s.Len > width {
			s.Len = width
		}
		copy(s.IDs, cur[:s.Len])
		res = append(res, s)
		cur = nil
	}
	for _, id := range ids {
		if id == EOSID {
			flush()
		} else {
			cur = append(cur, id)
		}
	}
	flush()
	return res
}

func eachPair(sourcePath, targetPath string, opts ReadOptions, f func(src, tgt []int)) error {
	srcF, err := os.Open(sourcePath)
	if err != nil {
		return err
	}
	defer srcF.Close()
	tgtF, err := os.Open(targetPath)
	if err != nil {
		return err
	}
	defer tgtF.Close()

	src := bufio.NewReader(srcF)
	tgt := bufio.NewReader(tgtF)
	var count int
	for opts.MaxExamples == 0 || count < opts.MaxExamples {
		srcIDs, srcOK, err := readIDLine(src)
		if err != nil {
			return err
		}
		tgtIDs, tgtOK, err := readIDLine(tgt)
		if err != nil {
			return err
		}
		if !srcOK || !tgtOK {
			return nil
		}
		count++
		if opts.Progress != nil && count%progressInterval == 0 {
			opts.Progress(count)
		}
		f(srcIDs, tgtIDs)
	}
	return nil
}

// readIDLine reads one newline-terminated line of ids. A
// trailing line without its newline is discarded.
func readIDLine(r *bufio.Reader) (ids []int, ok bool, err error) {
	line, err := r.ReadString('\n')
	if err == io.EOF {
		return nil, false, nil
	} else if err != nil {
		return nil, false, err
	}
	fields := strings.Fields(line)
	ids = make([]int, len(fields))
	for i, f := range fields {
		id, err := strconv.Atoi(f)
		if err != nil {
			return nil, false, fmt.Errorf("invalid token id %q", f)
		}
		ids[i] = id
	}
	return ids, true, nil
}

func truncate(ids []int, limit int) []int {
	if limit < 0 {
		limit = 0
	}
	if len(ids) > limit {
		return ids[:limit]
	}
	return ids
}
