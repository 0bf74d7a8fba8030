package sqlite

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
				importance REAL NOT NULL DEFAULT 0,
				memory_type TEXT NOT NULL,
				tags TEXT,
				created_at INTEGER NOT NULL,
				updated_at INTEGER NOT NULL,
				expires_at INTEGER,
				archived_at INTEGER,
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
			`ALTER TABLE memories ADD COLUMN embedding TEXT`,
			`ALTER TABLE memories ADD COLUMN embedding_model TEXT NOT NULL DEFAULT ''`,
		},
		Down: []string{
			`ALTER TABLE memories DROP COLUMN embedding_model`,
			`ALTER TABLE memories DROP COLUMN embedding`,
		},
	},
}
