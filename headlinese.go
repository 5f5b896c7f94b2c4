// Package headlinese provides the data plumbing and
// control flow for training headline-generation models: a
// word-level language model, a sequence-to-sequence
// summarizer that maps article bodies to titles, and a
// hierarchical variant that reads articles sentence by
// sentence.
//
// The package owns token id files, bucketing, batch
// assembly, checkpoints, the training loop, and decoding.
// The networks themselves live in the lstm sub-package and
// are reached through the Model interface.
package headlinese

// Reserved token ids, fixed across every data file.
//
// Real words start at id 4. PadID doubles as the numeric
// zero value, so freshly allocated batch rows are already
// padded.
const (
	PadID = 0
	GoID  = 1
	EOSID = 2
	UnkID = 3
)

// Surface forms of the reserved ids, as they appear in
// vocabulary files.
const (
	PadToken = "_PAD"
	GoToken  = "_GO"
	EOSToken = "_EOS"
	UnkToken = "_UNK"
)
