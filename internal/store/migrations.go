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

CREATE TABLE IF NOT EXISTS email_threads (
	id                 TEXT PRIMARY KEY,
	user_email         TEXT NOT NULL,
	provider_thread_id TEXT NOT NULL,
	last_message_id    TEXT NOT NULL DEFAULT '',
	subject            TEXT NOT NULL DEFAULT '',
	participants       TEXT NOT NULL DEFAULT '[]',
	last_message_at    DATETIME NOT NULL,
	message_count      INTEGER NOT NULL DEFAULT 1,
	labels             TEXT NOT NULL DEFAULT '[]',
	is_unread          INTEGER NOT NULL DEFAULT 0 CHECK(is_unread IN (0, 1)),
	created_at         DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at         DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE(user_email, provider_thread_id)
);

CREATE TABLE IF NOT EXISTS email_insights (
	id                TEXT PRIMARY KEY,
	user_email        TEXT NOT NULL,
	thread_id         TEXT NOT NULL REFERENCES email_threads(id) ON DELETE CASCADE,
	category          TEXT NOT NULL CHECK(category IN ('IMPORTANT', 'FOLLOW_UP', 'NOISE', 'FYI')),
	importance_score  REAL NOT NULL DEFAULT 0.5,
	importance_level  TEXT NOT NULL DEFAULT 'medium',
	requires_reply    INTEGER NOT NULL DEFAULT 0 CHECK(requires_reply IN (0, 1)),
	waiting_for_reply INTEGER NOT NULL DEFAULT 0 CHECK(waiting_for_reply IN (0, 1)),
	has_deadline      INTEGER NOT NULL DEFAULT 0 CHECK(has_deadline IN (0, 1)),
	deadline_at       DATETIME,
	summary           TEXT NOT NULL DEFAULT '',
	reason            TEXT NOT NULL DEFAULT '',
	model_used        TEXT NOT NULL DEFAULT '',
	evaluated_at      DATETIME NOT NULL,
	UNIQUE(user_email, thread_id)
);

CREATE INDEX IF NOT EXISTS idx_email_threads_user ON email_threads(user_email);
CREATE INDEX IF NOT EXISTS idx_email_threads_last_message_at ON email_threads(last_message_at);
CREATE INDEX IF NOT EXISTS idx_email_insights_user ON email_insights(user_email);
CREATE INDEX IF NOT EXISTS idx_email_insights_category ON email_insights(category);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
	{
		version: 2,
		sql: `
CREATE INDEX IF NOT EXISTS idx_email_insights_user_category_evaluated
	ON email_insights(user_email, category, evaluated_at);

CREATE INDEX IF NOT EXISTS idx_email_insights_deadline
	ON email_insights(deadline_at) WHERE has_deadline = 1;

INSERT INTO schema_version (version) VALUES (2);
`,
	},
}
