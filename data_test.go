package headlinese

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func writeFile(t *testing.T, dir, name, contents string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestReadPairs(t *testing.T) {
	dir := t.TempDir()
	srcPath := writeFile(t, dir, "src.txt", "4 5 6\n")
	tgtPath := writeFile(t, dir, "tgt.txt", "7 8\n")

	set, err := ReadPairs(srcPath, tgtPath, []Bucket{{200, 48}}, ReadOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(set.Data[0]) != 1 {
		t.Fatalf("expected 1 example got %d", len(set.Data[0]))
	}
	ex := set.Data[0][0]
	if !reflect.DeepEqual(ex.Source, []int{4, 5, 6}) {
		t.Errorf("source: expected [4 5 6] got %v", ex.Source)
	}
	if !reflect.DeepEqual(ex.Target, []int{7, 8, EOSID}) {
		t.Errorf("target: expected [7 8 %d] got %v", EOSID, ex.Target)
	}
}

func TestReadPairsTruncation(t *testing.T) {
	dir := t.TempDir()
	srcPath := writeFile(t, dir, "src.txt", "1 2 3 4 5\n")
	tgtPath := writeFile(t, dir, "tgt.txt", "6 7 8 9\n")

	set, err := ReadPairs(srcPath, tgtPath, []Bucket{{4, 5}}, ReadOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(set.Data[0]) != 1 {
		t.Fatalf("expected 1 example got %d", len(set.Data[0]))
	}
	ex := set.Data[0][0]
	if !reflect.DeepEqual(ex.Source, []int{1, 2, 3}) {
		t.Errorf("source: expected [1 2 3] got %v", ex.Source)
	}
	if !reflect.DeepEqual(ex.Target, []int{6, 7, 8, EOSID}) {
		t.Errorf("target: expected [6 7 8 %d] got %v", EOSID, ex.Target)
	}
}

func TestReadPairsTrailingLine(t *testing.T) {
	dir := t.TempDir()
	srcPath := writeFile(t, dir, "src.txt", "4 5 6\n9 9")
	tgtPath := writeFile(t, dir, "tgt.txt", "7 8\n5\n")

	set, err := ReadPairs(srcPath, tgtPath, []Bucket{{200, 48}}, ReadOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(set.Data[0]) != 1 {
		t.Errorf("expected unterminated line to be skipped, got %d examples",
			len(set.Data[0]))
	}
}

func TestReadPairsMaxExamples(t *testing.T) {
	dir := t.TempDir()
	srcPath := writeFile(t, dir, "src.txt", "4\n5\n6\n")
	tgtPath := writeFile(t, dir, "tgt.txt", "7\n8\n9\n")

	set, err := ReadPairs(srcPath, tgtPath, []Bucket{{200, 48}},
		ReadOptions{MaxExamples: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(set.Data[0]) != 2 {
		t.Errorf("expected 2 examples got %d", len(set.Data[0]))
	}
}

func TestReadPairsPartition(t *testing.T) {
	rng := rand.New(rand.NewSource(1337))
	const numPairs = 200

	var srcLines, tgtLines []string
	for i := 0; i < numPairs; i++ {
		srcLines = append(srcLines, randomIDLine(rng, rng.Intn(30)))
		tgtLines = append(tgtLines, randomIDLine(rng, rng.Intn(30)))
	}
	dir := t.TempDir()
	srcPath := writeFile(t, dir, "src.txt", strings.Join(srcLines, "\n")+"\n")
	tgtPath := writeFile(t, dir, "tgt.txt", strings.Join(tgtLines, "\n")+"\n")

	buckets := []Bucket{{5, 10}, {10, 15}, {20, 25}}
	set, err := ReadPairs(srcPath, tgtPath, buckets, ReadOptions{})
	if err != nil {
		t.Fatal(err)
	}

	var total int
	for b, examples := range set.Data {
		total += len(examples)
		for _, ex := range examples {
			if actual := StrictBucket(buckets, len(ex.Source),
				len(ex.Target)); actual != b {
				t.Errorf("lengths (%d, %d): in bucket %d but belongs in %d",
					len(ex.Source), len(ex.Target), b, actual)
			}
		}
	}
	if total != numPairs {
		t.Errorf("expected %d examples after truncation got %d", numPairs,
			total)
	}
}

func randomIDLine(rng *rand.Rand, size int) string {
	fields := make([]string, size)
	for i := range fields {
		fields[i] = fmt.Sprintf("%d", 4+rng.Intn(96))
	}
	return strings.Join(fields, " ")
}

func TestSplitSentences(t *testing.T) {
	sents := SplitSentences([]int{4, 5, EOSID, 6, EOSID, 7}, 3)
	expected := []Sentence{
		{Len: 2, IDs: []int{4, 5, 0}},
		{Len: 1, IDs: []int{6, 0, 0}},
		{Len: 1, IDs: []int{7, 0, 0}},
	}
	if !reflect.DeepEqual(sents, expected) {
		t.Errorf("expected %v got %v", expected, sents)
	}

	sents = SplitSentences([]int{1, 3, 4, 5, 6}, 3)
	expected = []Sentence{{Len: 3, IDs: []int{1, 3, 4}}}
	if !reflect.DeepEqual(sents, expected) {
		t.Errorf("clipped: expected %v got %v", expected, sents)
	}

	sents = SplitSentences([]int{EOSID, EOSID, 4, EOSID, EOSID, 5}, 3)
	expected = []Sentence{
		{Len: 1, IDs: []int{4, 0, 0}},
		{Len: 1, IDs: []int{5, 0, 0}},
	}
	if !reflect.DeepEqual(sents, expected) {
		t.Errorf("empties: expected %v got %v", expected, sents)
	}

	if sents := SplitSentences(nil, 3); len(sents) != 0 {
		t.Errorf("expected no sentences got %v", sents)
	}
}

func TestReadDocs(t *testing.T) {
	dir := t.TempDir()
	srcPath := writeFile(t, dir, "src.txt", "4 5 2 6 2 7\n4 5\n")
	tgtPath := writeFile(t, dir, "tgt.txt", "9\n9\n")

	buckets := []Bucket{{1, 48}, {2, 48}, {5, 48}}
	set, err := ReadDocs(srcPath, tgtPath, buckets, 4, ReadOptions{})
	if err != nil {
		t.Fatal(err)
	}

	var total int
	for _, docs := range set.Data {
		total += len(docs)
	}
	if total != 1 {
		t.Fatalf("expected 1 document got %d", total)
	}
	if len(set.Data[1]) != 1 {
		t.Fatalf("expected document in bucket 1 got %v", set.Data)
	}

	doc := set.Data[1][0]
	expected := []Sentence{
		{Len: 2, IDs: []int{4, 5, 0, 0}},
		{Len: 1, IDs: []int{6, 0, 0, 0}},
	}
	if !reflect.DeepEqual(doc.Sentences, expected) {
		t.Errorf("sentences: expected %v got %v", expected, doc.Sentences)
	}
	if !reflect.DeepEqual(doc.Target, []int{9, EOSID}) {
		t.Errorf("target: expected [9 %d] got %v", EOSID, doc.Target)
	}
}

func TestReadLines(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "ids.txt", "4 5\n6\n")

	set, err := ReadLines(path, []Bucket{{10, 10}}, ReadOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(set.Data[0]) != 2 {
		t.Fatalf("expected 2 examples got %d", len(set.Data[0]))
	}

	ex := set.Data[0][0]
	if !reflect.DeepEqual(ex.Source, []int{GoID, 4, 5}) {
		t.Errorf("input: expected [%d 4 5] got %v", GoID, ex.Source)
	}
	if !reflect.DeepEqual(ex.Target, []int{4, 5, EOSID}) {
		t.Errorf("target: expected [4 5 %d] got %v", EOSID, ex.Target)
	}

	ex = set.Data[0][1]
	if !reflect.DeepEqual(ex.Source, []int{GoID, 6}) {
		t.Errorf("input: expected [%d 6] got %v", GoID, ex.Source)
	}
	if !reflect.DeepEqual(ex.Target, []int{6, EOSID}) {
		t.Errorf("target: expected [6 %d] got %v", EOSID, ex.Target)
	}
}

func TestReadLinesTruncation(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "ids.txt", "7 8 9\n")

	set, err := ReadLines(path, []Bucket{{4, 4}}, ReadOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(set.Data[0]) != 1 {
		t.Fatalf("expected 1 example got %d", len(set.Data[0]))
	}
	ex := set.Data[0][0]
	if !reflect.DeepEqual(ex.Source, []int{GoID, 7, 8}) {
		t.Errorf("input: expected [%d 7 8] got %v", GoID, ex.Source)
	}
	if !reflect.DeepEqual(ex.Target, []int{7, 8, EOSID}) {
		t.Errorf("target: expected [7 8 %d] got %v", EOSID, ex.Target)
	}
}

func TestReadBadID(t *testing.T) {
	dir := t.TempDir()
	srcPath := writeFile(t, dir, "src.txt", "4 x 6\n")
	tgtPath := writeFile(t, dir, "tgt.txt", "7 8\n")

	if _, err := ReadPairs(srcPath, tgtPath, []Bucket{{200, 48}},
		ReadOptions{}); err == nil {
		t.Error("expected error for malformed id")
	}
}
