package storage

// Portable across SQLite and PostgreSQL: TEXT ids and timestamps as TEXT in
// RFC 3339.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS taxonomies (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		taxonomy_id TEXT NOT NULL,
		asv TEXT,
		domain TEXT,
		phylum TEXT,
		class_name TEXT,
		"order" TEXT,
		family TEXT,
		genus TEXT,
		species TEXT,
		full_taxonomy TEXT,
		classification_confidence DOUBLE PRECISION,
		created_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_taxonomies_owner ON taxonomies (owner_id)`,
	`CREATE TABLE IF NOT EXISTS abundance_records (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		source TEXT NOT NULL,
		position INTEGER NOT NULL,
		subject_id TEXT NOT NULL,
		taxon_id TEXT NOT NULL,
		timepoint_values TEXT NOT NULL,
		deltas TEXT NOT NULL,
		created_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_abundance_owner_source ON abundance_records (owner_id, source)`,
}
