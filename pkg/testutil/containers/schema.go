//go:build integration

package containers

// Schema is the DDL the integration suites apply to a fresh container. It
// mirrors the production migrations.
const Schema = `
CREATE TABLE IF NOT EXISTS identities (
	subject          TEXT PRIMARY KEY,
	commitment       TEXT NOT NULL,
	registered_at    TIMESTAMPTZ NOT NULL,
	active           BOOLEAN NOT NULL,
	face_verified    BOOLEAN NOT NULL DEFAULT FALSE,
	gov_id_verified  BOOLEAN NOT NULL DEFAULT FALSE,
	income_verified  BOOLEAN NOT NULL DEFAULT FALSE,
	level            INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS consumed_commitments (
	commitment  TEXT PRIMARY KEY,
	subject     TEXT NOT NULL,
	consumed_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS outbox (
	id             UUID PRIMARY KEY,
	aggregate_type TEXT NOT NULL,
	aggregate_id   TEXT NOT NULL,
	event_type     TEXT NOT NULL,
	payload        JSONB NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_outbox_aggregate
	ON outbox (aggregate_type, aggregate_id, created_at);

CREATE TABLE IF NOT EXISTS escrow_entries (
	id         UUID PRIMARY KEY,
	account    TEXT NOT NULL,
	amount     BIGINT NOT NULL,
	dispute_id BIGINT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_escrow_entries_account
	ON escrow_entries (account);
`
