package postgres

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            TEXT PRIMARY KEY,
	display_name  TEXT NOT NULL DEFAULT '',
	username      TEXT NOT NULL DEFAULT '',
	email         TEXT NOT NULL DEFAULT '',
	avatar_url    TEXT NOT NULL DEFAULT '',
	total_score   BIGINT NOT NULL DEFAULT 0,
	highest_score BIGINT NOT NULL DEFAULT 0,
	games_played  BIGINT NOT NULL DEFAULT 0,
	last_score    BIGINT,
	last_played   TIMESTAMPTZ,
	last_login    TIMESTAMPTZ NOT NULL DEFAULT clock_timestamp(),
	created_at    TIMESTAMPTZ NOT NULL DEFAULT clock_timestamp()
);

CREATE TABLE IF NOT EXISTS score_entries (
	id         UUID PRIMARY KEY,
	seq        BIGSERIAL UNIQUE,
	user_id    TEXT NOT NULL REFERENCES users (id),
	username   TEXT NOT NULL DEFAULT '',
	avatar_url TEXT NOT NULL DEFAULT '',
	score      BIGINT NOT NULL CHECK (score >= 0),
	extra      JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT clock_timestamp()
);

CREATE INDEX IF NOT EXISTS score_entries_rank_idx
	ON score_entries (score DESC, created_at ASC, seq ASC);

CREATE INDEX IF NOT EXISTS score_entries_user_rank_idx
	ON score_entries (user_id, score DESC, created_at ASC, seq ASC);

CREATE TABLE IF NOT EXISTS device_tokens (
	token      TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL REFERENCES users (id),
	platform   TEXT NOT NULL DEFAULT '',
	updated_at TIMESTAMPTZ NOT NULL DEFAULT clock_timestamp()
);
`
