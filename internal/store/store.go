// Package store saves class tables to SQLite and loads them back.
//
// A snapshot records the structure of every class: its parents, its MRO
// kind and its own method map. Host functions cannot be serialized, so
// callables are stored by the classdef.Registry key they were bound from
// and rebound through a registry on load. Fallback indicators and
// method-name overload entries are stored by value.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/funvibe/amagic/internal/classdef"
	"github.com/funvibe/amagic/internal/object"
	"github.com/funvibe/amagic/internal/symbols"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

var (
	ErrSnapshotNotFound = errors.New("snapshot not found")
	ErrNotPersistable   = errors.New("value cannot be persisted")
)

// ValueError reports a method value that Save could not encode.
type ValueError struct {
	Class  string
	Method string
	Value  object.Object
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("%s::%s: %s (%s)", e.Class, e.Method, ErrNotPersistable, e.Value.Inspect())
}

func (e *ValueError) Unwrap() error { return ErrNotPersistable }

// Info describes a stored snapshot.
type Info struct {
	ID         uuid.UUID
	Name       string
	Created    time.Time
	Generation uint64
	Classes    int
}

// Store is a snapshot database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at dsn. ":memory:" is
// accepted and lives as long as the Store.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", dsn, err)
	}
	// An in-memory database is private to its connection.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

type classRow struct {
	name    string
	id      string
	mro     string
	parents []string
	methods []methodRow
}

type methodRow struct {
	name, kind, value string
}

// Save writes the current state of t under name, replacing any snapshot
// with the same name.
func (s *Store) Save(ctx context.Context, name string, t *symbols.Table, reg *classdef.Registry) (*Info, error) {
	var rows []classRow
	var encErr error
	gen := t.Generation()
	t.View(func(r symbols.Reader) {
		for _, cn := range r.ClassNames() {
			c, _ := r.Lookup(cn)
			row := classRow{
				name:    cn,
				id:      c.ID().String(),
				mro:     r.MRO(c).String(),
				parents: r.Parents(c),
			}
			methods := r.OwnMethods(c)
			names := make([]string, 0, len(methods))
			for mn := range methods {
				names = append(names, mn)
			}
			sort.Strings(names)
			for _, mn := range names {
				kind, value, ok := encode(methods[mn], reg)
				if !ok {
					encErr = &ValueError{Class: cn, Method: mn, Value: methods[mn]}
					return
				}
				row.methods = append(row.methods, methodRow{name: mn, kind: kind, value: value})
			}
			rows = append(rows, row)
		}
	})
	if encErr != nil {
		return nil, encErr
	}

	info := &Info{ID: uuid.New(), Name: name, Created: time.Now().UTC(), Generation: gen, Classes: len(rows)}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if err := deleteSnapshot(ctx, tx, name); err != nil && !errors.Is(err, ErrSnapshotNotFound) {
		return nil, err
	}
	id := info.ID.String()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO snapshots (id, name, created_at, generation) VALUES (?, ?, ?, ?)`,
		id, name, info.Created.UnixNano(), int64(gen)); err != nil {
		return nil, fmt.Errorf("saving snapshot %s: %w", name, err)
	}
	for i, row := range rows {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO classes (snapshot, position, name, class_id, mro) VALUES (?, ?, ?, ?, ?)`,
			id, i, row.name, row.id, row.mro); err != nil {
			return nil, fmt.Errorf("saving class %s: %w", row.name, err)
		}
		for j, p := range row.parents {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO parents (snapshot, class, position, parent) VALUES (?, ?, ?, ?)`,
				id, row.name, j, p); err != nil {
				return nil, fmt.Errorf("saving parents of %s: %w", row.name, err)
			}
		}
		for _, m := range row.methods {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO methods (snapshot, class, name, kind, value) VALUES (?, ?, ?, ?, ?)`,
				id, row.name, m.name, m.kind, m.value); err != nil {
				return nil, fmt.Errorf("saving %s::%s: %w", row.name, m.name, err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return info, nil
}

// Load declares every class of snapshot name in t. Existing classes are
// updated in place; classes not in the snapshot are left alone.
func (s *Store) Load(ctx context.Context, name string, t *symbols.Table, reg *classdef.Registry) (*Info, error) {
	info, err := s.info(ctx, name)
	if err != nil {
		return nil, err
	}
	id := info.ID.String()
	rows, err := s.readClasses(ctx, id)
	if err != nil {
		return nil, err
	}

	// Decode everything first so a failure leaves t untouched.
	kinds := make([]symbols.MROKind, len(rows))
	values := make([][]object.Object, len(rows))
	for i, row := range rows {
		kind, err := symbols.ParseMROKind(row.mro)
		if err != nil {
			return nil, fmt.Errorf("loading class %s: %w", row.name, err)
		}
		kinds[i] = kind
		values[i] = make([]object.Object, len(row.methods))
		for j, m := range row.methods {
			v, err := decode(m, row.name, reg)
			if err != nil {
				return nil, err
			}
			values[i][j] = v
		}
	}

	for i, row := range rows {
		if err := t.SetParents(row.name, row.parents...); err != nil {
			return nil, fmt.Errorf("loading class %s: %w", row.name, err)
		}
		if err := t.SetMRO(row.name, kinds[i]); err != nil {
			return nil, err
		}
	}
	for i, row := range rows {
		for j, m := range row.methods {
			if err := t.DefineMethod(row.name, m.name, values[i][j]); err != nil {
				return nil, fmt.Errorf("loading %s::%s: %w", row.name, m.name, err)
			}
		}
	}
	return info, nil
}

// List returns every stored snapshot, oldest first.
func (s *Store) List(ctx context.Context) ([]Info, error) {
	rs, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.name, s.created_at, s.generation,
		       (SELECT COUNT(*) FROM classes c WHERE c.snapshot = s.id)
		FROM snapshots s ORDER BY s.created_at, s.name`)
	if err != nil {
		return nil, err
	}
	defer rs.Close()

	var out []Info
	for rs.Next() {
		info, err := scanInfo(rs)
		if err != nil {
			return nil, err
		}
		out = append(out, *info)
	}
	return out, rs.Err()
}

// Keys returns the registry keys snapshot name refers to, sorted. A
// registry must provide all of them before Load.
func (s *Store) Keys(ctx context.Context, name string) ([]string, error) {
	info, err := s.info(ctx, name)
	if err != nil {
		return nil, err
	}
	rs, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT value FROM methods WHERE snapshot = ? AND kind IN (?, ?) ORDER BY value`,
		info.ID.String(), kindBuiltin, kindStub)
	if err != nil {
		return nil, err
	}
	defer rs.Close()
	var keys []string
	for rs.Next() {
		var k string
		if err := rs.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rs.Err()
}

// Delete removes snapshot name.
func (s *Store) Delete(ctx context.Context, name string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := deleteSnapshot(ctx, tx, name); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) info(ctx context.Context, name string) (*Info, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT s.id, s.name, s.created_at, s.generation,
		       (SELECT COUNT(*) FROM classes c WHERE c.snapshot = s.id)
		FROM snapshots s WHERE s.name = ?`, name)
	info, err := scanInfo(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", name, ErrSnapshotNotFound)
	}
	return info, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanInfo(sc scanner) (*Info, error) {
	var (
		id, name   string
		created    int64
		generation int64
		classes    int
	)
	if err := sc.Scan(&id, &name, &created, &generation, &classes); err != nil {
		return nil, err
	}
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: bad id: %w", name, err)
	}
	return &Info{
		ID:         uid,
		Name:       name,
		Created:    time.Unix(0, created).UTC(),
		Generation: uint64(generation),
		Classes:    classes,
	}, nil
}

func (s *Store) readClasses(ctx context.Context, id string) ([]classRow, error) {
	rs, err := s.db.QueryContext(ctx,
		`SELECT name, class_id, mro FROM classes WHERE snapshot = ? ORDER BY position`, id)
	if err != nil {
		return nil, err
	}
	var rows []classRow
	index := make(map[string]int)
	for rs.Next() {
		var row classRow
		if err := rs.Scan(&row.name, &row.id, &row.mro); err != nil {
			rs.Close()
			return nil, err
		}
		index[row.name] = len(rows)
		rows = append(rows, row)
	}
	rs.Close()
	if err := rs.Err(); err != nil {
		return nil, err
	}

	rs, err = s.db.QueryContext(ctx,
		`SELECT class, parent FROM parents WHERE snapshot = ? ORDER BY class, position`, id)
	if err != nil {
		return nil, err
	}
	for rs.Next() {
		var class, parent string
		if err := rs.Scan(&class, &parent); err != nil {
			rs.Close()
			return nil, err
		}
		if i, ok := index[class]; ok {
			rows[i].parents = append(rows[i].parents, parent)
		}
	}
	rs.Close()
	if err := rs.Err(); err != nil {
		return nil, err
	}

	rs, err = s.db.QueryContext(ctx,
		`SELECT class, name, kind, value FROM methods WHERE snapshot = ? ORDER BY class, name`, id)
	if err != nil {
		return nil, err
	}
	defer rs.Close()
	for rs.Next() {
		var class string
		var m methodRow
		if err := rs.Scan(&class, &m.name, &m.kind, &m.value); err != nil {
			return nil, err
		}
		if i, ok := index[class]; ok {
			rows[i].methods = append(rows[i].methods, m)
		}
	}
	return rows, rs.Err()
}

func deleteSnapshot(ctx context.Context, tx *sql.Tx, name string) error {
	var id string
	err := tx.QueryRowContext(ctx, `SELECT id FROM snapshots WHERE name = ?`, name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", name, ErrSnapshotNotFound)
	}
	if err != nil {
		return err
	}
	for _, q := range []string{
		`DELETE FROM methods WHERE snapshot = ?`,
		`DELETE FROM parents WHERE snapshot = ?`,
		`DELETE FROM classes WHERE snapshot = ?`,
		`DELETE FROM snapshots WHERE id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, id); err != nil {
			return err
		}
	}
	return nil
}

func encode(v object.Object, reg *classdef.Registry) (kind, value string, ok bool) {
	if reg != nil {
		if key, lazy, found := reg.KeyOf(v); found {
			if lazy {
				return kindStub, key, true
			}
			return kindBuiltin, key, true
		}
	}
	switch v := v.(type) {
	case *object.MethodName:
		return kindMethod, v.Name, true
	case *object.UndefValue:
		return kindUndef, "", true
	case *object.Boolean:
		return kindBool, strconv.FormatBool(v.Value), true
	case *object.Integer:
		return kindInt, strconv.FormatInt(v.Value, 10), true
	case *object.Float:
		return kindFloat, strconv.FormatFloat(v.Value, 'g', -1, 64), true
	case *object.String:
		return kindString, v.Value, true
	}
	return "", "", false
}

func decode(m methodRow, class string, reg *classdef.Registry) (object.Object, error) {
	qualified := class + "::" + m.name
	switch m.kind {
	case kindBuiltin, kindStub:
		if reg == nil {
			return nil, fmt.Errorf("%s: builtin %q needs a registry", qualified, m.value)
		}
		if m.kind == kindStub {
			return reg.Stub(m.value, qualified), nil
		}
		return reg.Builtin(m.value, qualified)
	case kindMethod:
		return &object.MethodName{Name: m.value}, nil
	case kindUndef:
		return object.Undef, nil
	case kindBool:
		b, err := strconv.ParseBool(m.value)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", qualified, err)
		}
		return object.NativeBool(b), nil
	case kindInt:
		i, err := strconv.ParseInt(m.value, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", qualified, err)
		}
		return object.Int(i), nil
	case kindFloat:
		f, err := strconv.ParseFloat(m.value, 64)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", qualified, err)
		}
		return &object.Float{Value: f}, nil
	case kindString:
		return object.Str(m.value), nil
	}
	return nil, fmt.Errorf("%s: unknown stored kind %q", qualified, m.kind)
}
