package store

const schema = `
CREATE TABLE IF NOT EXISTS snapshots (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL UNIQUE,
	created_at INTEGER NOT NULL,
	generation INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS classes (
	snapshot TEXT NOT NULL,
	position INTEGER NOT NULL,
	name     TEXT NOT NULL,
	class_id TEXT NOT NULL,
	mro      TEXT NOT NULL,
	PRIMARY KEY (snapshot, name)
);

CREATE TABLE IF NOT EXISTS parents (
	snapshot TEXT NOT NULL,
	class    TEXT NOT NULL,
	position INTEGER NOT NULL,
	parent   TEXT NOT NULL,
	PRIMARY KEY (snapshot, class, position)
);

CREATE TABLE IF NOT EXISTS methods (
	snapshot TEXT NOT NULL,
	class    TEXT NOT NULL,
	name     TEXT NOT NULL,
	kind     TEXT NOT NULL,
	value    TEXT NOT NULL,
	PRIMARY KEY (snapshot, class, name)
);
`

// Method value kinds as stored in methods.kind.
const (
	kindBuiltin = "builtin"
	kindStub    = "stub"
	kindMethod  = "method"
	kindUndef   = "undef"
	kindBool    = "bool"
	kindInt     = "int"
	kindFloat   = "float"
	kindString  = "string"
)
