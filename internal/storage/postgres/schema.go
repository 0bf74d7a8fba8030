package postgres

import "github.com/scrypster/memvault/internal/storage"

var migrations = []storage.Migration{
	{
		Version: 1,
		Name:    "create_memories",
		Up: []string{
			`CREATE TABLE IF NOT EXISTS memories (
				id TEXT PRIMARY KEY,
				user_id TEXT NOT NULL,
				conversation_id TEXT NOT NULL DEFAULT '',
				content TEXT NOT NULL,
				importance DOUBLE PRECISION NOT NULL DEFAULT 0,
				memory_type TEXT NOT NULL,
				tags TEXT,
				created_at BIGINT NOT NULL,
				updated_at BIGINT NOT NULL,
				expires_at BIGINT,
				archived_at BIGINT,
				archive_reason TEXT NOT NULL DEFAULT ''
			)`,
			`CREATE INDEX IF NOT EXISTS idx_memories_user_created ON memories(user_id, created_at)`,
			`CREATE INDEX IF NOT EXISTS idx_memories_user_type ON memories(user_id, memory_type)`,
			`CREATE INDEX IF NOT EXISTS idx_memories_expires ON memories(expires_at)`,
		},
		Down: []string{`DROP TABLE IF EXISTS memories`},
	},
	{
		Version: 2,
		Name:    "add_embeddings",
		Up: []string{
			`ALTER TABLE memories ADD COLUMN IF NOT EXISTS embedding TEXT`,
			`ALTER TABLE memories ADD COLUMN IF NOT EXISTS embedding_model TEXT NOT NULL DEFAULT ''`,
		},
		Down: []string{
			`ALTER TABLE memories DROP COLUMN IF EXISTS embedding_model`,
			`ALTER TABLE memories DROP COLUMN IF EXISTS embedding`,
		},
	},
}

// MigrationPgvector adds the native vector column. It is applied outside the
// versioned history because it depends on the extension being installable.
// The column is dimension-less so models of any size can be stored.
const MigrationPgvector = `ALTER TABLE memories ADD COLUMN IF NOT EXISTS embedding_vec vector`
