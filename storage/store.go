package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/happydpc/flowbetween/edit"
	"github.com/happydpc/flowbetween/editlog"
	"github.com/happydpc/flowbetween/internal/cache"
	"github.com/happydpc/flowbetween/vector"
)

// Properties is the document-level state stored in the flo_animation row.
type Properties struct {
	ID           string  `json:"id"`
	CanvasWidth  float32 `json:"canvas_width,omitempty"`
	CanvasHeight float32 `json:"canvas_height,omitempty"`
}

// Options configures a Store.
type Options struct {
	// CacheCapacity bounds the keyframe cache; 0 selects the default.
	CacheCapacity int

	// StrictLoad makes loads fail on the first corrupt record instead
	// of skipping it.
	StrictLoad bool

	// Logger receives structured log output; nil selects slog.Default().
	Logger *slog.Logger
}

// LayerRow is the persisted form of a layer.
type LayerRow struct {
	ID      edit.LayerID
	Name    string
	Ordinal int
}

// Keyframe is a loaded keyframe: its time point and the elements visible
// from that time.
type Keyframe struct {
	At       edit.Time
	Elements []vector.Element
}

// frameKey addresses one keyframe in the cache.
type frameKey struct {
	layer edit.LayerID
	at    edit.Time
}

// Store persists one animation document. The database handle is owned by
// the caller (typically the session); the Store never closes it, and no
// external writes may bypass the commit methods.
type Store struct {
	db     *sql.DB
	props  Properties
	strict bool
	logger *slog.Logger

	frames *cache.Cache[frameKey, []vector.Element]
	group  singleflight.Group

	// beforeCommit runs inside the transaction just before it commits;
	// a non-nil error aborts the transaction. Used by tests to simulate
	// mid-write failures.
	beforeCommit func() error
}

// Open prepares a store over db, creating the schema and the animation
// properties row (with a fresh document UUID) on first use.
func Open(ctx context.Context, db *sql.DB, opts Options) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("storage: db is nil")
	}
	if err := EnsureSchema(db); err != nil {
		return nil, fail("ensure schema", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Store{
		db:     db,
		strict: opts.StrictLoad,
		logger: logger.With(slog.String("component", "storage")),
		frames: cache.New[frameKey, []vector.Element](opts.CacheCapacity),
	}

	var raw string
	err := db.QueryRowContext(ctx, `SELECT properties FROM flo_animation LIMIT 1`).Scan(&raw)
	switch {
	case err == sql.ErrNoRows:
		s.props = Properties{ID: uuid.NewString()}
		blob, _ := json.Marshal(s.props)
		if _, err := db.ExecContext(ctx, `INSERT INTO flo_animation(id, properties) VALUES(?, ?)`, s.props.ID, string(blob)); err != nil {
			return nil, fail("create animation row", err)
		}
		s.logger.Info("initialized animation store", slog.String("document_id", s.props.ID))
	case err != nil:
		return nil, fail("read animation row", err)
	default:
		if err := json.Unmarshal([]byte(raw), &s.props); err != nil {
			return nil, fmt.Errorf("storage: decode animation properties: %v: %w", err, ErrCorruptRecord)
		}
		s.logger.Info("opened animation store", slog.String("document_id", s.props.ID))
	}
	return s, nil
}

// DocumentID returns the stable UUID assigned when the store was
// initialized.
func (s *Store) DocumentID() string { return s.props.ID }

// Properties returns the current document properties.
func (s *Store) Properties() Properties { return s.props }

// CacheStats exposes keyframe cache counters.
func (s *Store) CacheStats() cache.Stats { return s.frames.Stats() }

// CommitAppend durably persists a new log entry and its entity deltas in
// one transaction. Log rows at or beyond the entry's sequence number are
// deleted first: they are a redo tail made unreachable by the fork.
func (s *Store) CommitAppend(ctx context.Context, entry editlog.Entry, deltas []Delta) error {
	opBlob, err := edit.Encode(entry.Op)
	if err != nil {
		return fail("encode op", err)
	}
	invBlob, err := edit.Encode(entry.Inverse)
	if err != nil {
		return fail("encode inverse", err)
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM flo_edit_log WHERE seq >= ?`, entry.Seq); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO flo_edit_log(seq, created_at, op, inverse, active, format) VALUES(?, ?, ?, ?, 1, ?)`,
			entry.Seq, entry.Timestamp.UnixMicro(), opBlob, invBlob, edit.FormatVersion)
		if err != nil {
			return err
		}
		return s.applyDeltas(ctx, tx, deltas)
	})
	if err != nil {
		return err
	}

	s.afterCommit(deltas)
	s.logger.Debug("committed edit",
		slog.Int64("seq", entry.Seq),
		slog.String("kind", string(entry.Op.Kind())),
		slog.Int("deltas", len(deltas)))
	return nil
}

// CommitUndo marks the entry inactive and persists the deltas produced by
// applying its inverse, in one transaction.
func (s *Store) CommitUndo(ctx context.Context, seq int64, deltas []Delta) error {
	return s.commitToggle(ctx, seq, 0, deltas)
}

// CommitRedo re-activates the entry and persists the deltas produced by
// re-applying its operation, in one transaction.
func (s *Store) CommitRedo(ctx context.Context, seq int64, deltas []Delta) error {
	return s.commitToggle(ctx, seq, 1, deltas)
}

func (s *Store) commitToggle(ctx context.Context, seq int64, active int, deltas []Delta) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `UPDATE flo_edit_log SET active = ? WHERE seq = ?`, active, seq); err != nil {
			return err
		}
		return s.applyDeltas(ctx, tx, deltas)
	})
	if err != nil {
		return err
	}
	s.afterCommit(deltas)
	return nil
}

func (s *Store) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fail("begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return fail("write", err)
	}
	if s.beforeCommit != nil {
		if err := s.beforeCommit(); err != nil {
			return fail("write", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fail("commit", err)
	}
	return nil
}

func (s *Store) applyDeltas(ctx context.Context, tx *sql.Tx, deltas []Delta) error {
	for _, d := range deltas {
		var err error
		switch d.Kind {
		case PutLayer:
			_, err = tx.ExecContext(ctx,
				`INSERT INTO flo_layer(layer_id, name, ordinal) VALUES(?, ?, ?)
				 ON CONFLICT(layer_id) DO UPDATE SET name = excluded.name, ordinal = excluded.ordinal`,
				d.Layer, d.Name, d.Ordinal)
		case DeleteLayer:
			_, err = tx.ExecContext(ctx, `DELETE FROM flo_layer WHERE layer_id = ?`, d.Layer)
		case PutKeyframe:
			_, err = tx.ExecContext(ctx,
				`INSERT INTO flo_layer_keyframe(layer_id, at_time) VALUES(?, ?) ON CONFLICT DO NOTHING`,
				d.Layer, d.At)
		case DeleteKeyframe:
			if _, err = tx.ExecContext(ctx,
				`DELETE FROM flo_element WHERE layer_id = ? AND at_time = ?`, d.Layer, d.At); err != nil {
				break
			}
			_, err = tx.ExecContext(ctx,
				`DELETE FROM flo_layer_keyframe WHERE layer_id = ? AND at_time = ?`, d.Layer, d.At)
		case PutElement:
			var state []byte
			state, err = vector.EncodeElement(d.Element)
			if err != nil {
				break
			}
			_, err = tx.ExecContext(ctx,
				`INSERT INTO flo_element(element_id, layer_id, at_time, state, format) VALUES(?, ?, ?, ?, ?)
				 ON CONFLICT(element_id) DO UPDATE SET layer_id = excluded.layer_id, at_time = excluded.at_time, state = excluded.state, format = excluded.format`,
				d.ElementID, d.Layer, d.At, state, vector.ElementFormatVersion)
		case DeleteElement:
			_, err = tx.ExecContext(ctx, `DELETE FROM flo_element WHERE element_id = ?`, d.ElementID)
		case PutProperties:
			var blob []byte
			blob, err = json.Marshal(d.Properties)
			if err != nil {
				break
			}
			_, err = tx.ExecContext(ctx, `UPDATE flo_animation SET properties = ? WHERE id = ?`, string(blob), d.Properties.ID)
		default:
			err = fmt.Errorf("unknown delta kind %d", d.Kind)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// afterCommit drops exactly the cached keyframes a committed delta set
// touched and folds property changes into the in-memory copy. Layer
// removal clears the whole cache: the cache is keyed by keyframe, and a
// removed layer may have any number of frames cached.
func (s *Store) afterCommit(deltas []Delta) {
	for _, d := range deltas {
		switch d.Kind {
		case PutKeyframe, DeleteKeyframe, PutElement, DeleteElement:
			s.frames.Delete(frameKey{layer: d.Layer, at: d.At})
		case DeleteLayer:
			s.frames.Clear()
		case PutProperties:
			s.props = d.Properties
		}
	}
}

// LoadLayerRange materializes the keyframes of a layer whose time falls
// within [from, to], plus the nearest keyframe preceding the window (the
// frame visible when the window opens). Only those keyframes are read;
// recently used frames come from the cache. The caller owns the returned
// elements outright.
func (s *Store) LoadLayerRange(ctx context.Context, layer edit.LayerID, from, to edit.Time) ([]Keyframe, error) {
	var times []edit.Time

	// Nearest keyframe at or before the window start.
	var preceding edit.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT at_time FROM flo_layer_keyframe WHERE layer_id = ? AND at_time <= ? ORDER BY at_time DESC LIMIT 1`,
		layer, from).Scan(&preceding)
	switch {
	case err == sql.ErrNoRows:
		// No frame visible before the window; nothing to include.
	case err != nil:
		return nil, fail("load preceding keyframe", err)
	default:
		times = append(times, preceding)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT at_time FROM flo_layer_keyframe WHERE layer_id = ? AND at_time > ? AND at_time <= ? ORDER BY at_time`,
		layer, from, to)
	if err != nil {
		return nil, fail("load keyframe window", err)
	}
	defer rows.Close()
	for rows.Next() {
		var at edit.Time
		if err := rows.Scan(&at); err != nil {
			return nil, fail("scan keyframe", err)
		}
		times = append(times, at)
	}
	if err := rows.Err(); err != nil {
		return nil, fail("load keyframe window", err)
	}

	out := make([]Keyframe, 0, len(times))
	for _, at := range times {
		elems, err := s.loadFrame(ctx, layer, at)
		if err != nil {
			return nil, err
		}
		out = append(out, Keyframe{At: at, Elements: elems})
	}
	return out, nil
}

// loadFrame returns the elements of one keyframe, consulting the cache
// first. Concurrent misses for the same frame collapse into a single
// database read. Every caller gets its own clones; the cached copy is
// never aliased, so later edits cannot reach into a slice a reader
// already holds.
func (s *Store) loadFrame(ctx context.Context, layer edit.LayerID, at edit.Time) ([]vector.Element, error) {
	key := frameKey{layer: layer, at: at}
	if elems, ok := s.frames.Get(key); ok {
		return cloneElements(elems), nil
	}

	v, err, _ := s.group.Do(fmt.Sprintf("%d@%d", layer, at), func() (any, error) {
		rows, err := s.db.QueryContext(ctx,
			`SELECT element_id, state FROM flo_element WHERE layer_id = ? AND at_time = ? ORDER BY element_id`,
			layer, at)
		if err != nil {
			return nil, fail("load frame", err)
		}
		defer rows.Close()

		var elems []vector.Element
		for rows.Next() {
			var id int64
			var state []byte
			if err := rows.Scan(&id, &state); err != nil {
				return nil, fail("scan element", err)
			}
			elem, err := vector.DecodeElement(state)
			if err != nil {
				if s.strict {
					return nil, fmt.Errorf("storage: element %d: %w: %w", id, ErrCorruptRecord, err)
				}
				s.logger.Warn("skipping corrupt element",
					slog.Int64("element_id", id), slog.String("error", err.Error()))
				continue
			}
			elems = append(elems, elem)
		}
		if err := rows.Err(); err != nil {
			return nil, fail("load frame", err)
		}
		s.frames.Set(key, cloneElements(elems))
		return elems, nil
	})
	if err != nil {
		return nil, err
	}
	// The singleflight result is shared by every waiting caller.
	return cloneElements(v.([]vector.Element)), nil
}

func cloneElements(elems []vector.Element) []vector.Element {
	out := make([]vector.Element, len(elems))
	for i, e := range elems {
		out[i] = e.Clone()
	}
	return out
}

// LoadLayers returns all layer rows in creation (ordinal) order.
func (s *Store) LoadLayers(ctx context.Context) ([]LayerRow, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT layer_id, name, ordinal FROM flo_layer ORDER BY ordinal`)
	if err != nil {
		return nil, fail("load layers", err)
	}
	defer rows.Close()

	var out []LayerRow
	for rows.Next() {
		var l LayerRow
		if err := rows.Scan(&l.ID, &l.Name, &l.Ordinal); err != nil {
			return nil, fail("scan layer", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// LoadKeyframeTimes returns every keyframe time of a layer in order.
// Times alone are cheap; element payloads stay on disk until a range
// load asks for them.
func (s *Store) LoadKeyframeTimes(ctx context.Context, layer edit.LayerID) ([]edit.Time, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT at_time FROM flo_layer_keyframe WHERE layer_id = ? ORDER BY at_time`, layer)
	if err != nil {
		return nil, fail("load keyframe times", err)
	}
	defer rows.Close()

	var out []edit.Time
	for rows.Next() {
		var at edit.Time
		if err := rows.Scan(&at); err != nil {
			return nil, fail("scan keyframe time", err)
		}
		out = append(out, at)
	}
	return out, rows.Err()
}

// LoadEditLog reads the full persisted edit history in sequence order and
// returns it with the number of active entries (the undo/redo position).
// Corrupt rows fail the load under strict loading and are skipped (and
// logged) otherwise.
func (s *Store) LoadEditLog(ctx context.Context) ([]editlog.Entry, int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, created_at, op, inverse, active FROM flo_edit_log ORDER BY seq`)
	if err != nil {
		return nil, 0, fail("load edit log", err)
	}
	defer rows.Close()

	var entries []editlog.Entry
	pos := 0
	for rows.Next() {
		var seq, createdAt int64
		var opBlob, invBlob []byte
		var active int
		if err := rows.Scan(&seq, &createdAt, &opBlob, &invBlob, &active); err != nil {
			return nil, 0, fail("scan edit log row", err)
		}

		op, err := edit.Decode(opBlob)
		if err == nil {
			var inv edit.Op
			inv, err = edit.Decode(invBlob)
			if err == nil {
				entries = append(entries, editlog.Entry{
					Seq:       seq,
					Timestamp: time.UnixMicro(createdAt),
					Op:        op,
					Inverse:   inv,
				})
				if active != 0 {
					pos = len(entries)
				}
				continue
			}
		}
		if s.strict {
			return nil, 0, fmt.Errorf("storage: edit %d: %w: %w", seq, ErrCorruptRecord, err)
		}
		s.logger.Warn("skipping corrupt edit", slog.Int64("seq", seq), slog.String("error", err.Error()))
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fail("load edit log", err)
	}
	return entries, pos, nil
}

// MaxElementID returns the highest persisted element id, or 0 when there
// are none. Used on open to resume id assignment.
func (s *Store) MaxElementID(ctx context.Context) (vector.ElementID, error) {
	var id sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(element_id) FROM flo_element`).Scan(&id); err != nil {
		return 0, fail("max element id", err)
	}
	return vector.ElementID(id.Int64), nil
}

// MaxLayerID returns the highest persisted layer id, or 0.
func (s *Store) MaxLayerID(ctx context.Context) (edit.LayerID, error) {
	var id sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(layer_id) FROM flo_layer`).Scan(&id); err != nil {
		return 0, fail("max layer id", err)
	}
	return edit.LayerID(id.Int64), nil
}

func fail(op string, err error) error {
	return fmt.Errorf("storage: %s: %w: %w", op, err, ErrStorageFailure)
}
