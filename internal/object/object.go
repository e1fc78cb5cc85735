// Package object defines the values the dispatch engine moves around:
// plain scalars, containers, blessed instance references and the
// callables stored in class method maps.
package object

import "hash/fnv"

type ObjectType string

const (
	INTEGER_OBJ     = "INTEGER"
	FLOAT_OBJ       = "FLOAT"
	STRING_OBJ      = "STRING"
	BOOLEAN_OBJ     = "BOOLEAN"
	UNDEF_OBJ       = "UNDEF"
	ARRAY_OBJ       = "ARRAY"
	HASH_OBJ        = "HASH"
	REF_OBJ         = "REF"
	SCALAR_OBJ      = "SCALAR"
	BUILTIN_OBJ     = "BUILTIN"
	STUB_OBJ        = "STUB"
	METHOD_NAME_OBJ = "METHOD_NAME"
)

type Object interface {
	Type() ObjectType
	Inspect() string
	Hash() uint32
}

// Callable is anything a method map may hold that can be invoked.
type Callable interface {
	Object
	Call(args []Object) (Object, error)
}

// Stash is the class an instance is blessed into.
type Stash interface {
	Name() string
}

// Helper for hashing strings
func hashString(s string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(s))
	return h.Sum32()
}
