// Package dispatcher runs document operations and keeps them undoable.
//
// An Engine takes a Request naming an operation kind, its input files, an
// optional page selection and typed parameters. It validates the request,
// holds every input file for the duration of the call, resolves the
// selection against each file's leaf version, hands immutable snapshots to
// a processor.Processor and commits what comes back as new versions.
// Applied operations are pushed onto a history.History so Undo and Redo
// can move the affected leaves back and forth as one atomic step.
//
// Basic usage:
//
//	engine := dispatcher.New(store, proc, history.New(store, 0), dispatcher.DefaultConfig())
//	op, err := engine.Execute(ctx, dispatcher.Request{
//	    Kind:      operation.Rotate,
//	    FileIDs:   []string{fileID},
//	    Selection: "odd",
//	    Params:    operation.RotateParams{Angle: 90},
//	})
//
// Only one operation, undo or redo may hold a file at a time. A second
// request for a busy file fails at once with a *ConflictError; requests
// for different files run concurrently.
//
// Pre-execute hooks can veto a request after validation. Post-execute
// hooks, the event bus and Prometheus metrics observe every outcome.
package dispatcher
