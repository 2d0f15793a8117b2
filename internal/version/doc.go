// Package version holds the file version graph.
//
// Every document in a session is a File with an append-only lineage of
// immutable Versions. Exactly one Version per file is the leaf (the head
// the user sees); undo and redo move the leaf pointer without discarding
// any Version.
//
// The Store is the single owner of File and Version records. Everything it
// hands out is a copy, so callers cannot mutate graph state behind its back.
// An optional Persister receives each mutation before it takes effect in
// memory; a failing Persister aborts the mutation.
package version
