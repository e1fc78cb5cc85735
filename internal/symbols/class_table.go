// symbols/class_table.go - Class table entry point
//
// The class table is split into focused files:
// - class_table_core.go: Class struct, MRO kinds, cache entry types
// - class_table_operations.go: Table struct, declaration and mutation
// - class_table_caches.go: per-class cache slots used by the resolver layers
//
// Table is the runtime context object. It owns the global generation
// counter; every resolver and dispatcher works against exactly one Table,
// so independent runtimes (and tests) never share cache state.

package symbols
