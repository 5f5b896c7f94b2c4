package lstm

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/unixpickle/essentials"
	"github.com/unixpickle/headlinese"
)

// LoadGloVe overwrites embedding rows with pretrained
// vectors from a GloVe text file, one "word v1 v2 ..."
// line per word. Words missing from the vocabulary are
// skipped. The number of rows replaced is returned.
func LoadGloVe(e *Embedding, vocab *headlinese.Vocabulary, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, essentials.AddCtx("load GloVe", err)
	}
	defer f.Close()

	var count int
	var lineNum int
	s := bufio.NewScanner(f)
	for s.Scan() {
		lineNum++
		fields := strings.Fields(s.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) != e.Cols+1 {
			return count, fmt.Errorf("load GloVe: line %d: have %d components, want %d",
				lineNum, len(fields)-1, e.Cols)
		}
		id, ok := vocab.Lookup(fields[0])
		if !ok || id >= e.Rows {
			continue
		}
		row := make([]float64, e.Cols)
		for i, field := range fields[1:] {
			row[i], err = strconv.ParseFloat(field, 64)
			if err != nil {
				return count, fmt.Errorf("load GloVe: line %d: %s", lineNum, err)
			}
		}
		e.SetRow(id, row)
		count++
	}
	if err := s.Err(); err != nil {
		return count, essentials.AddCtx("load GloVe", err)
	}
	return count, nil
}
