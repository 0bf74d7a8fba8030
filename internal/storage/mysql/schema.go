package mysql

import "github.com/scrypster/memvault/internal/storage"

// MySQL cannot index TEXT without a prefix length, so key columns are VARCHAR
// and indexes are declared inline.
var migrations = []storage.Migration{
	{
		Version: 1,
		Name:    "create_memories",
		Up: []string{
			`CREATE TABLE IF NOT EXISTS memories (
				id VARCHAR(64) NOT NULL PRIMARY KEY,
				user_id VARCHAR(191) NOT NULL,
				conversation_id VARCHAR(191) NOT NULL DEFAULT '',
				content LONGTEXT NOT NULL,
				importance DOUBLE NOT NULL DEFAULT 0,
				memory_type VARCHAR(32) NOT NULL,
				tags TEXT,
				created_at BIGINT NOT NULL,
				updated_at BIGINT NOT NULL,
				expires_at BIGINT NULL,
				archived_at BIGINT NULL,
				archive_reason VARCHAR(1024) NOT NULL DEFAULT '',
				INDEX idx_memories_user_created (user_id, created_at),
				INDEX idx_memories_user_type (user_id, memory_type),
				INDEX idx_memories_expires (expires_at)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
		},
		Down: []string{`DROP TABLE IF EXISTS memories`},
	},
	{
		Version: 2,
		Name:    "add_embeddings",
		Up: []string{
			`ALTER TABLE memories ADD COLUMN embedding LONGTEXT NULL`,
			`ALTER TABLE memories ADD COLUMN embedding_model VARCHAR(191) NOT NULL DEFAULT ''`,
		},
		Down: []string{
			`ALTER TABLE memories DROP COLUMN embedding_model`,
			`ALTER TABLE memories DROP COLUMN embedding`,
		},
	},
}
