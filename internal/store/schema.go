package store

import "strings"

// schema is applied on every open; statements must stay idempotent.
// {{id}} and {{ts}} are replaced per dialect.
const schema = `
CREATE TABLE IF NOT EXISTS legislatures (
	id INTEGER PRIMARY KEY,
	start_date {{ts}} NOT NULL,
	end_date {{ts}} NOT NULL,
	created_at {{ts}} NOT NULL
);

CREATE TABLE IF NOT EXISTS parties (
	id {{id}},
	abbreviation TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL DEFAULT '',
	uri TEXT NOT NULL DEFAULT '',
	created_at {{ts}} NOT NULL,
	updated_at {{ts}} NOT NULL
);

CREATE TABLE IF NOT EXISTS deputies (
	id BIGINT PRIMARY KEY,
	legal_name TEXT NOT NULL DEFAULT '',
	parliamentary_name TEXT NOT NULL,
	state TEXT NOT NULL DEFAULT '',
	photo_url TEXT NOT NULL DEFAULT '',
	email TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT '',
	uri TEXT NOT NULL DEFAULT '',
	party_id BIGINT NOT NULL REFERENCES parties(id),
	legislature_id INTEGER NOT NULL REFERENCES legislatures(id),
	created_at {{ts}} NOT NULL,
	updated_at {{ts}} NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_deputies_party ON deputies(party_id);
CREATE INDEX IF NOT EXISTS idx_deputies_state ON deputies(state);

CREATE TABLE IF NOT EXISTS bills (
	id {{id}},
	upstream_id BIGINT NOT NULL DEFAULT 0,
	code TEXT NOT NULL UNIQUE,
	title TEXT NOT NULL DEFAULT '',
	summary TEXT NOT NULL DEFAULT '',
	type TEXT NOT NULL,
	number INTEGER NOT NULL,
	year INTEGER NOT NULL,
	uri TEXT NOT NULL DEFAULT '',
	relevance TEXT NOT NULL DEFAULT 'baixa',
	monitored BOOLEAN NOT NULL DEFAULT FALSE,
	created_at {{ts}} NOT NULL,
	updated_at {{ts}} NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_bills_relevance ON bills(relevance);

CREATE TABLE IF NOT EXISTS voting_sessions (
	id {{id}},
	upstream_id TEXT NOT NULL UNIQUE,
	bill_id BIGINT NOT NULL REFERENCES bills(id) ON DELETE CASCADE,
	occurred_at {{ts}} NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	organ TEXT NOT NULL DEFAULT '',
	outcome TEXT NOT NULL DEFAULT 'pendente',
	kind TEXT NOT NULL DEFAULT 'nominal',
	created_at {{ts}} NOT NULL,
	updated_at {{ts}} NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_voting_sessions_bill ON voting_sessions(bill_id);
CREATE INDEX IF NOT EXISTS idx_voting_sessions_occurred ON voting_sessions(occurred_at);

CREATE TABLE IF NOT EXISTS bill_sessions (
	bill_id BIGINT NOT NULL REFERENCES bills(id) ON DELETE CASCADE,
	session_id BIGINT NOT NULL REFERENCES voting_sessions(id) ON DELETE CASCADE,
	PRIMARY KEY (bill_id, session_id)
);

CREATE INDEX IF NOT EXISTS idx_bill_sessions_session ON bill_sessions(session_id);

INSERT INTO bill_sessions (bill_id, session_id)
	SELECT bill_id, id FROM voting_sessions WHERE TRUE
	ON CONFLICT DO NOTHING;

CREATE TABLE IF NOT EXISTS votes (
	id {{id}},
	deputy_id BIGINT NOT NULL REFERENCES deputies(id),
	session_id BIGINT NOT NULL REFERENCES voting_sessions(id) ON DELETE CASCADE,
	value TEXT NOT NULL,
	created_at {{ts}} NOT NULL,
	updated_at {{ts}} NOT NULL,
	UNIQUE (deputy_id, session_id)
);

CREATE INDEX IF NOT EXISTS idx_votes_session ON votes(session_id);

CREATE TABLE IF NOT EXISTS deputy_statistics (
	id {{id}},
	deputy_id BIGINT NOT NULL UNIQUE REFERENCES deputies(id),
	total_analyzed INTEGER NOT NULL DEFAULT 0,
	favorable INTEGER NOT NULL DEFAULT 0,
	contrary INTEGER NOT NULL DEFAULT 0,
	abstentions INTEGER NOT NULL DEFAULT 0,
	obstructions INTEGER NOT NULL DEFAULT 0,
	absences INTEGER NOT NULL DEFAULT 0,
	attendance DOUBLE PRECISION NOT NULL DEFAULT 0,
	bills_analyzed INTEGER NOT NULL DEFAULT 0,
	bills_attempted INTEGER NOT NULL DEFAULT 0,
	success_rate DOUBLE PRECISION NOT NULL DEFAULT 0,
	include_all BOOLEAN NOT NULL DEFAULT FALSE,
	history TEXT NOT NULL DEFAULT '[]',
	computed_at {{ts}} NOT NULL
);

CREATE TABLE IF NOT EXISTS cache_ledger (
	cache_key TEXT PRIMARY KEY,
	category TEXT NOT NULL,
	expires_at {{ts}} NOT NULL,
	created_at {{ts}} NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_cache_ledger_expires ON cache_ledger(expires_at);
`

func schemaFor(d Dialect) string {
	r := strings.NewReplacer(
		"{{id}}", "BIGSERIAL PRIMARY KEY",
		"{{ts}}", "TIMESTAMPTZ",
	)
	if d == DialectSQLite {
		r = strings.NewReplacer(
			"{{id}}", "INTEGER PRIMARY KEY AUTOINCREMENT",
			"{{ts}}", "TIMESTAMP",
		)
	}
	return r.Replace(schema)
}
