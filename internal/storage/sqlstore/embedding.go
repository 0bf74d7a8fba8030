package sqlstore

import (
	"database/sql/driver"

	pgvector "github.com/pgvector/pgvector-go"
)

// Embeddings are persisted in pgvector's text form ("[0.1,0.2,...]") in every
// backend, so the same column round-trips on sqlite and mysql as well as in a
// postgres vector column.

// embeddingValue returns the driver value for v, or nil for an empty vector.
func embeddingValue(v []float32) (driver.Value, error) {
	if len(v) == 0 {
		return nil, nil
	}
	return pgvector.NewVector(v).Value()
}

// nullVector scans a nullable embedding column.
type nullVector struct {
	vec   pgvector.Vector
	valid bool
}

// Scan implements sql.Scanner.
func (n *nullVector) Scan(src interface{}) error {
	if src == nil {
		n.valid = false
		return nil
	}
	if err := n.vec.Scan(src); err != nil {
		return err
	}
	n.valid = true
	return nil
}

// Slice returns the decoded vector, or nil when the column was NULL.
func (n *nullVector) Slice() []float32 {
	if !n.valid {
		return nil
	}
	s := n.vec.Slice()
	if len(s) == 0 {
		return nil
	}
	return s
}
