package gitrepo

import (
	"fmt"

	"github.com/go-git/go-git/v5/plumbing"
)

// ObjectError wraps a failure reading or writing an object, generalizing
// the donor's CommandError{VCS, Command, Args, Stderr, Err} (errors.go)
// from "a git subprocess failed" to "the object store returned an error",
// since this package talks to go-git directly instead of exec.Cmd.
type ObjectError struct {
	Op  string
	OID plumbing.Hash
	Err error
}

func (e *ObjectError) Error() string {
	if e.OID.IsZero() {
		return fmt.Sprintf("gitrepo: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("gitrepo: %s %s: %v", e.Op, e.OID, e.Err)
}

func (e *ObjectError) Unwrap() error { return e.Err }

// RefTxnError wraps a failed reference transaction, carrying which ref
// in the batch failed so RefTxn can report a precise rollback point.
type RefTxnError struct {
	Ref string
	Err error
}

func (e *RefTxnError) Error() string {
	return fmt.Sprintf("gitrepo: ref transaction failed on %s: %v", e.Ref, e.Err)
}

func (e *RefTxnError) Unwrap() error { return e.Err }
