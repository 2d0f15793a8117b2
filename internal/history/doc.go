// Package history provides undo/redo over the version graph.
//
// History does not store document state. Every applied Operation records,
// per affected file, the leaf version before and after it ran; undo and
// redo move leaf pointers back and forth through a LeafMover, normally a
// *version.Store:
//
//	h := history.New(store, 1000)
//	h.Push(op)       // op.Status must be StatusApplied
//	h.Undo()         // every file of op returns to its Before leaf
//	h.Redo()         // and forward again
//
// Leaf changes of one operation are applied in a single SetLeaves call, so
// an operation touching several files is undone for all of them or for
// none.
//
// # Checkpoints
//
// A Checkpoint marks a history position; UndoToCheckpoint and
// RedoToCheckpoint walk the stack back to it.
package history
