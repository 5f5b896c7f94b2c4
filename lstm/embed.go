package lstm

import (
	"math"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/anyvec/anyvecsave"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/serializer"
)

func init() {
	var e Embedding
	serializer.RegisterTypedDeserializer(e.SerializerType(), DeserializeEmbedding)
}

// An Embedding is a trainable lookup table mapping token
// ids to dense row vectors.
type Embedding struct {
	Rows   int
	Cols   int
	Matrix *anydiff.Var
}

// NewEmbedding creates a randomly initialized Embedding
// with one row per vocabulary entry.
func NewEmbedding(c anyvec.Creator, rows, cols int) *Embedding {
	data := c.MakeVector(rows * cols)
	anyvec.Rand(data, anyvec.Normal, nil)
	data.Scale(c.MakeNumeric(1 / math.Sqrt(float64(cols))))
	return &Embedding{Rows: rows, Cols: cols, Matrix: anydiff.NewVar(data)}
}

// DeserializeEmbedding deserializes an Embedding.
func DeserializeEmbedding(d []byte) (*Embedding, error) {
	var rows, cols serializer.Int
	var vec *anyvecsave.S
	if err := serializer.DeserializeAny(d, &rows, &cols, &vec); err != nil {
		return nil, essentials.AddCtx("deserialize Embedding", err)
	}
	return &Embedding{
		Rows:   int(rows),
		Cols:   int(cols),
		Matrix: anydiff.NewVar(vec.Vector),
	}, nil
}

// Lookup embeds one id per sequence, producing a packed
// batch of len(ids) rows.
func (e *Embedding) Lookup(ids []int) anydiff.Res {
	c := e.Matrix.Vector.Creator()
	rows := make([]anyvec.Vector, len(ids))
	for i, id := range ids {
		if id < 0 || id >= e.Rows {
			panic("token id out of range")
		}
		rows[i] = e.Matrix.Vector.Slice(id*e.Cols, (id+1)*e.Cols)
	}
	return &lookupRes{
		Emb: e,
		IDs: append([]int{}, ids...),
		Out: c.Concat(rows...),
	}
}

// SetRow overwrites one embedding row, e.g. with a
// pretrained vector.
func (e *Embedding) SetRow(id int, row []float64) {
	if len(row) != e.Cols {
		panic("row size mismatch")
	}
	c := e.Matrix.Vector.Creator()
	vec := c.MakeVectorData(c.MakeNumericList(row))
	e.Matrix.Vector.Slice(id*e.Cols, (id+1)*e.Cols).Set(vec)
}

// SerializerType returns the unique ID used to serialize
// an Embedding.
func (e *Embedding) SerializerType() string {
	return "github.com/unixpickle/headlinese/lstm.Embedding"
}

// Serialize serializes the Embedding.
func (e *Embedding) Serialize() ([]byte, error) {
	return serializer.SerializeAny(
		serializer.Int(e.Rows),
		serializer.Int(e.Cols),
		&anyvecsave.S{Vector: e.Matrix.Vector},
	)
}

type lookupRes struct {
	Emb *Embedding
	IDs []int
	Out anyvec.Vector
}

func (l *lookupRes) Output() anyvec.Vector {
	return l.Out
}

func (l *lookupRes) Vars() anydiff.VarSet {
	return anydiff.NewVarSet(l.Emb.Matrix)
}

func (l *lookupRes) Propagate(u anyvec.Vector, g anydiff.Grad) {
	matGrad, ok := g[l.Emb.Matrix]
	if !ok {
		return
	}
	cols := l.Emb.Cols
	for i, id := range l.IDs {
		row := matGrad.Slice(id*cols, (id+1)*cols)
		row.Add(u.Slice(i*cols, (i+1)*cols))
	}
}
