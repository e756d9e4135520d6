package store

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

CREATE TABLE IF NOT EXISTS auto_reply_setting (
	id                    INTEGER PRIMARY KEY CHECK (id = 1),
	subject               TEXT NOT NULL DEFAULT '',
	body                  TEXT NOT NULL DEFAULT '',
	raw_body              TEXT,
	mode                  TEXT NOT NULL DEFAULT 'editor',
	reply_time            TEXT NOT NULL DEFAULT '',
	is_using_latest_image INTEGER NOT NULL DEFAULT 0,
	image_url             TEXT,
	attachment_url        TEXT,
	is_active             INTEGER NOT NULL DEFAULT 0,
	updated_at            DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
}
