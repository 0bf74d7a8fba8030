// Package sqlstore implements storage.MemoryStore on top of database/sql.
//
// The sqlite, postgres and mysql backends differ only in placeholder style,
// row locking, DDL and how the optional vector column is written; those
// differences live in a Dialect and everything else is shared.
package sqlstore

import (
	"strconv"
	"strings"

	"github.com/scrypster/memvault/internal/storage"
)

// Dialect describes the SQL differences between backends.
type Dialect struct {
	// Name identifies the backend in errors and logs ("sqlite", "postgres", "mysql").
	Name string

	// NumberedPlaceholders switches "?" to "$1, $2, ..." (postgres).
	NumberedPlaceholders bool

	// LockClause is appended to the SELECT that precedes an update, e.g.
	// " FOR UPDATE". Empty when the backend serializes writers itself.
	LockClause string

	// Migrations is the ordered schema history for this backend.
	Migrations []storage.Migration

	// VectorColumn, when set, names an additional column that receives the
	// embedding in the backend's native vector type.
	VectorColumn string
}

// Rebind rewrites "?" placeholders into the dialect's style.
func (d Dialect) Rebind(query string) string {
	if !d.NumberedPlaceholders {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}
