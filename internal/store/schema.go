package store

// schemaVersionV1 holds the model catalog only.
const schemaVersionV1 = 1

// schemaVersionV2 adds the archive fetch log.
const schemaVersionV2 = 2

// schemaV1 is the catalog-only DDL (kept for migration tests).
var schemaV1 = `
CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL);
CREATE TABLE IF NOT EXISTS models (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	name        TEXT NOT NULL UNIQUE,
	description TEXT,
	data_url    TEXT,
	data_sha256 TEXT,
	layers      INTEGER NOT NULL,
	params      INTEGER NOT NULL,
	source      BLOB NOT NULL,
	created_at  TEXT NOT NULL,
	updated_at  TEXT NOT NULL
);
`

// fetchesDDL is shared by the fresh install and the v1 migration.
const fetchesDDL = `
CREATE TABLE IF NOT EXISTS fetches (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	url         TEXT NOT NULL,
	sha256      TEXT NOT NULL,
	path        TEXT NOT NULL,
	size        INTEGER NOT NULL,
	verified_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_fetches_sha256 ON fetches(sha256);
`

// schemaV2 is the fresh-install DDL.
var schemaV2 = schemaV1 + fetchesDDL

// migrationV1ToV2 adds the fetch log to a catalog-only database.
var migrationV1ToV2 = fetchesDDL + `
UPDATE schema_version SET version = 2;
`
