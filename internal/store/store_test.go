package store

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/funvibe/amagic/internal/classdef"
	"github.com/funvibe/amagic/internal/config"
	"github.com/funvibe/amagic/internal/method"
	"github.com/funvibe/amagic/internal/object"
	"github.com/funvibe/amagic/internal/overload"
	"github.com/funvibe/amagic/internal/symbols"
)

const manifest = `
classes:
  - name: Base
    methods:
      subtract: base.subtract
  - name: Vector
    parents: [Base]
    mro: c3
    methods:
      norm: {builtin: vector.norm, lazy: true}
    overload:
      fallback: ~
      ops:
        "+": vector.add
        "-": {method: subtract}
`

func registry() *classdef.Registry {
	reg := classdef.NewRegistry()
	for _, key := range []string{"vector.add", "vector.norm", "base.subtract"} {
		key := key
		reg.Register(key, func(args ...object.Object) (object.Object, error) {
			return object.Str(key), nil
		})
	}
	return reg
}

func populated(t *testing.T, reg *classdef.Registry) *symbols.Table {
	t.Helper()
	m, err := classdef.ParseManifest([]byte(manifest), "test.yaml")
	if err != nil {
		t.Fatalf("ParseManifest: %v", err)
	}
	tbl := symbols.NewTable()
	if err := m.Apply(tbl, reg); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	return tbl
}

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "classes.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	reg := registry()
	src := populated(t, reg)

	info, err := s.Save(ctx, "v1", src, reg)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if info.Classes != 3 {
		t.Errorf("saved %d classes, want 3 (Base, UNIVERSAL, Vector)", info.Classes)
	}

	dst := symbols.NewTable()
	loaded, err := s.Load(ctx, "v1", dst, reg)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.ID != info.ID {
		t.Errorf("loaded id %s, saved %s", loaded.ID, info.ID)
	}

	v, err := dst.Get("Vector")
	if err != nil {
		t.Fatalf("Vector: %v", err)
	}
	if !reflect.DeepEqual(v.Parents(), []string{"Base"}) || v.MRO() != symbols.MROC3 {
		t.Errorf("Vector parents=%v mro=%s", v.Parents(), v.MRO())
	}
	if fb, ok := v.OwnMethod(config.FallbackKey); !ok || fb != object.Undef {
		t.Errorf("fallback = %v, %v", fb, ok)
	}
	if norm, _ := v.OwnMethod("norm"); norm == nil {
		t.Errorf("norm lost")
	} else if _, isStub := norm.(*object.Stub); !isStub {
		t.Errorf("norm restored as %T, want a stub", norm)
	}
	if mn, _ := v.OwnMethod("(-"); mn == nil {
		t.Errorf("method-name entry lost")
	} else if name, ok := mn.(*object.MethodName); !ok || name.Name != "subtract" {
		t.Errorf("(- restored as %v", mn)
	}

	// The restored table dispatches like the original.
	upd := overload.NewUpdater(method.New(dst, nil))
	ot, err := upd.Ensure(v)
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if ot.Fallback() != overload.FallbackNo {
		t.Errorf("fallback level = %s", ot.Fallback())
	}
	res, err := ot.Handler(overload.Sub).(object.Callable).Call(nil)
	if err != nil || res.(*object.String).Value != "base.subtract" {
		t.Errorf("restored - handler = %v, %v", res, err)
	}
}

func TestKeys(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	reg := registry()
	if _, err := s.Save(ctx, "v1", populated(t, reg), reg); err != nil {
		t.Fatalf("Save: %v", err)
	}
	keys, err := s.Keys(ctx, "v1")
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	if want := []string{"base.subtract", "vector.add", "vector.norm"}; !reflect.DeepEqual(keys, want) {
		t.Errorf("keys = %v, want %v", keys, want)
	}
}

func TestSaveReplacesByName(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	reg := registry()
	tbl := populated(t, reg)

	first, err := s.Save(ctx, "snap", tbl, reg)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	second, err := s.Save(ctx, "snap", tbl, reg)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if first.ID == second.ID {
		t.Errorf("resave kept the old id")
	}
	list, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 || list[0].ID != second.ID {
		t.Errorf("list = %+v", list)
	}
}

func TestListAndDelete(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	reg := registry()
	tbl := populated(t, reg)

	for _, name := range []string{"a", "b"} {
		if _, err := s.Save(ctx, name, tbl, reg); err != nil {
			t.Fatalf("Save(%s): %v", name, err)
		}
	}
	if err := s.Delete(ctx, "a"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	list, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 || list[0].Name != "b" || list[0].Classes != 3 {
		t.Errorf("list = %+v", list)
	}
	if err := s.Delete(ctx, "a"); !errors.Is(err, ErrSnapshotNotFound) {
		t.Errorf("second delete: %v", err)
	}
	if _, err := s.Load(ctx, "a", symbols.NewTable(), reg); !errors.Is(err, ErrSnapshotNotFound) {
		t.Errorf("load deleted: %v", err)
	}
}

func TestLoadMissingKeyLeavesTableUntouched(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	if _, err := s.Save(ctx, "v1", populated(t, registry()), registry()); err != nil {
		t.Fatalf("Save: %v", err)
	}

	partial := classdef.NewRegistry()
	partial.Register("base.subtract", func(args ...object.Object) (object.Object, error) {
		return object.Undef, nil
	})
	dst := symbols.NewTable()
	gen := dst.Generation()
	if _, err := s.Load(ctx, "v1", dst, partial); err == nil {
		t.Fatalf("expected an error for the unregistered vector.add")
	}
	if _, ok := dst.Lookup("Base"); ok {
		t.Errorf("Base was declared by a failed load")
	}
	if _, ok := dst.Lookup("Vector"); ok {
		t.Errorf("Vector was declared by a failed load")
	}
	if dst.Generation() != gen {
		t.Errorf("generation moved from %d to %d after a failed load", gen, dst.Generation())
	}
}

func TestSaveRejectsForeignCallable(t *testing.T) {
	s := openStore(t)
	tbl := symbols.NewTable()
	tbl.Declare("A")
	tbl.DefineMethod("A", "m", &object.Builtin{Name: "A::m"})

	_, err := s.Save(context.Background(), "x", tbl, classdef.NewRegistry())
	var ve *ValueError
	if !errors.As(err, &ve) || ve.Class != "A" || ve.Method != "m" {
		t.Fatalf("expected ValueError for A::m, got %v", err)
	}
	if !errors.Is(err, ErrNotPersistable) {
		t.Errorf("ValueError must match ErrNotPersistable")
	}
}

func TestScalarValues(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, ":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	values := map[string]object.Object{
		"b": object.TRUE,
		"i": object.Int(-7),
		"f": &object.Float{Value: 2.5},
		"s": object.Str("nomethod"),
		"u": object.Undef,
	}
	tbl := symbols.NewTable()
	tbl.Declare("S")
	for name, v := range values {
		tbl.DefineMethod("S", name, v)
	}
	if _, err := s.Save(ctx, "scalars", tbl, nil); err != nil {
		t.Fatalf("Save: %v", err)
	}

	dst := symbols.NewTable()
	if _, err := s.Load(ctx, "scalars", dst, nil); err != nil {
		t.Fatalf("Load: %v", err)
	}
	c, _ := dst.Lookup("S")
	for name, want := range values {
		got, ok := c.OwnMethod(name)
		if !ok {
			t.Errorf("%s missing", name)
			continue
		}
		if got.Type() != want.Type() || got.Inspect() != want.Inspect() {
			t.Errorf("%s = %s, want %s", name, got.Inspect(), want.Inspect())
		}
	}
}
