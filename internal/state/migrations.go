package state

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS trigger_entries (
	state_key     TEXT NOT NULL,
	uri           TEXT NOT NULL,
	version       TEXT NOT NULL DEFAULT '',
	first_seen_at DATETIME NOT NULL,
	last_seen_at  DATETIME NOT NULL,
	PRIMARY KEY (state_key, uri)
);

CREATE INDEX IF NOT EXISTS idx_trigger_entries_last_seen
	ON trigger_entries(state_key, last_seen_at);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
}
