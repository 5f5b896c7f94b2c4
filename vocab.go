package headlinese

import (
	"bufio"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/unixpickle/essentials"
)

// A Vocabulary maps between surface tokens and dense token
// ids. The id of a word is its line number in the
// vocabulary file, so the first four entries should be the
// reserved tokens.
type Vocabulary struct {
	Words []string
	ids   map[string]int
}

// NewVocabulary builds a Vocabulary from an ordered word
// list.
func NewVocabulary(words []string) *Vocabulary {
	res := &Vocabulary{Words: words, ids: map[string]int{}}
	for i, w := range words {
		if _, ok := res.ids[w]; !ok {
			res.ids[w] = i
		}
	}
	return res
}

// ReadVocabulary reads a vocabulary file with one word per
// line, ordered by id.
func ReadVocabulary(path string) (*Vocabulary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, essentials.AddCtx("read vocabulary", err)
	}
	defer f.Close()

	var words []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		words = append(words, strings.TrimSpace(sc.Text()))
	}
	if err := sc.Err(); err != nil {
		return nil, essentials.AddCtx("read vocabulary", err)
	}
	return NewVocabulary(words), nil
}

// BuildVocabulary scans whitespace-tokenized text files
// and keeps the most frequent words, up to maxSize entries
// including the reserved tokens.
func BuildVocabulary(paths []string, maxSize int) (*Vocabulary, error) {
	counts := map[string]int{}
	for _, path := range paths {
		if err := countWords(path, counts); err != nil {
			return nil, essentials.AddCtx("build vocabulary", err)
		}
	}

	words := make([]string, 0, len(counts))
	for w := range counts {
		words = append(words, w)
	}
	sort.Slice(words, func(i, j int) bool {
		if counts[words[i]] != counts[words[j]] {
			return counts[words[i]] > counts[words[j]]
		}
		return words[i] < words[j]
	})

	all := append([]string{PadToken, GoToken, EOSToken, UnkToken}, words...)
	if maxSize > 0 && len(all) > maxSize {
		all = all[:maxSize]
	}
	return NewVocabulary(all), nil
}

func countWords(path string, counts map[string]int) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Split(bufio.ScanWords)
	for sc.Scan() {
		counts[sc.Text()]++
	}
	return sc.Err()
}

// PrepareData derives the vocabulary and token id files
// for a raw text corpus, building whichever of the two are
// missing, and returns the vocabulary.
func PrepareData(textPath, vocabPath, idsPath string, vocabSize int) (*Vocabulary, error) {
	var vocab *Vocabulary
	if _, err := os.Stat(vocabPath); err == nil {
		if vocab, err = ReadVocabulary(vocabPath); err != nil {
			return nil, err
		}
	} else {
		var err error
		if vocab, err = BuildVocabulary([]string{textPath}, vocabSize); err != nil {
			return nil, err
		}
		if err := vocab.WriteFile(vocabPath); err != nil {
			return nil, err
		}
	}
	if _, err := os.Stat(idsPath); err != nil {
		if err := vocab.EncodeFile(textPath, idsPath); err != nil {
			return nil, err
		}
	}
	return vocab, nil
}

// WriteFile stores the vocabulary, one word per line.
func (v *Vocabulary) WriteFile(path string) error {
	data := strings.Join(v.Words, "\n") + "\n"
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		return essentials.AddCtx("write vocabulary", err)
	}
	return nil
}

// Len returns the number of words.
func (v *Vocabulary) Len() int {
	return len(v.Words)
}

// Lookup finds the id for a word.
func (v *Vocabulary) Lookup(word string) (id int, ok bool) {
	id, ok = v.ids[word]
	return
}

// ID returns the id for a word, or UnkID for words outside
// the vocabulary.
func (v *Vocabulary) ID(word string) int {
	if id, ok := v.ids[word]; ok {
		return id
	}
	return UnkID
}

// Token returns the word for an id, or UnkToken for ids
// out of range.
func (v *Vocabulary) Token(id int) string {
	if id < 0 || id >= len(v.Words) {
		return UnkToken
	}
	return v.Words[id]
}

// Encode tokenizes a whitespace-separated sentence into
// ids.
func (v *Vocabulary) Encode(sentence string) []int {
	fields := strings.Fields(sentence)
	res := make([]int, len(fields))
	for i, f := range fields {
		res[i] = v.ID(f)
	}
	return res
}

// Decode joins the words for a sequence of ids.
func (v *Vocabulary) Decode(ids []int) string {
	words := make([]string, len(ids))
	for i, id := range ids {
		words[i] = v.Token(id)
	}
	return strings.Join(words, " ")
}

// EncodeFile tokenizes every line of a text file and
// writes the resulting ids to outPath, one space-separated
// line per input line.
func (v *Vocabulary) EncodeFile(inPath, outPath string) error {
	in, err := os.Open(inPath)
	if err != nil {
		return essentials.AddCtx("encode file", err)
	}
	defer in.Close()

	out, err := os.Create(outPath)
	if err != nil {
		return essentials.AddCtx("encode file", err)
	}
	defer out.Close()

	w := bufio.NewWriter(out)
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, bufio.MaxScanTokenSize), 1<<24)
	for sc.Scan() {
		ids := v.Encode(sc.Text())
		for i, id := range ids {
			if i > 0 {
				w.WriteByte(' ')
			}
			w.WriteString(strconv.Itoa(id))
		}
		w.WriteByte('\n')
	}
	if err := sc.Err(); err != nil {
		return essentials.AddCtx("encode file", err)
	}
	if err := w.Flush(); err != nil {
		return essentials.AddCtx("encode file", err)
	}
	return nil
}
