package engine

import "fmt"

// The engine's error taxonomy. Each type maps to a distinct outcome in the
// pipeline: user-visible reply, per-fill abort, or attempt abort.

// BadCommandError is a malformed exchange command (bad date). The message
// is still marked processed after the error reply.
type BadCommandError struct {
	Input string
}

func (e *BadCommandError) Error() string {
	return fmt.Sprintf("bad command date: %q", e.Input)
}

// ParseError is a brokerage notification that matched the template header
// but has a missing or unreadable field.
type ParseError struct {
	Field string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("notification parse: field %s missing or invalid", e.Field)
}

// UnknownTargetError is a parsed symbol with no targets-file entry.
// Distinct from ParseError: the message was well-formed.
type UnknownTargetError struct {
	Symbol string
}

func (e *UnknownTargetError) Error() string {
	return fmt.Sprintf("no spreadsheet mapped for symbol %s", e.Symbol)
}

// MissingReferenceCellError means a reference cell or the sheet layout
// could not be located. Fatal to the single fill, not to the batch.
type MissingReferenceCellError struct {
	Cell string
	Err  error
}

func (e *MissingReferenceCellError) Error() string {
	return fmt.Sprintf("missing reference cell %s: %v", e.Cell, e.Err)
}

func (e *MissingReferenceCellError) Unwrap() error { return e.Err }

// BackupError aborts the entire attempt before any write.
type BackupError struct {
	Err error
}

func (e *BackupError) Error() string {
	return fmt.Sprintf("backup failed: %v", e.Err)
}

func (e *BackupError) Unwrap() error { return e.Err }
