package storage

import (
	"database/sql"
)

// The persisted layout is two logical groups: the edit log table
// (flo_edit_log) and the entity snapshot tables (flo_layer,
// flo_layer_keyframe, flo_element) that allow fast range loads without a
// full log replay. Serialized blobs carry their own format version; the
// format column mirrors it for schema migrations that need to scan
// without decoding.
const animationSchema = `
CREATE TABLE IF NOT EXISTS flo_animation (
    id         TEXT PRIMARY KEY,
    properties TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS flo_edit_log (
    seq        INTEGER PRIMARY KEY,
    created_at INTEGER NOT NULL,
    op         BLOB NOT NULL,
    inverse    BLOB NOT NULL,
    active     INTEGER NOT NULL DEFAULT 1,
    format     INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS flo_layer (
    layer_id INTEGER PRIMARY KEY,
    name     TEXT NOT NULL DEFAULT '',
    ordinal  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS flo_layer_keyframe (
    layer_id INTEGER NOT NULL REFERENCES flo_layer(layer_id) ON DELETE CASCADE,
    at_time  INTEGER NOT NULL,
    PRIMARY KEY (layer_id, at_time)
);

CREATE TABLE IF NOT EXISTS flo_element (
    element_id INTEGER PRIMARY KEY,
    layer_id   INTEGER NOT NULL REFERENCES flo_layer(layer_id) ON DELETE CASCADE,
    at_time    INTEGER NOT NULL,
    state      BLOB NOT NULL,
    format     INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_flo_element_frame ON flo_element(layer_id, at_time);
`

// EnsureSchema creates the animation tables in the provided database if
// they do not already exist.
func EnsureSchema(db *sql.DB) error {
	_, err := db.Exec(animationSchema)
	return err
}
