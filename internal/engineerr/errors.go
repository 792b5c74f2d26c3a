// Package engineerr collects the structured error taxonomy shared by the
// workspace engine's components, plus the warning indirection used for
// non-fatal, data-shape anomalies reported by upstream Git.
package engineerr

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced to callers (spec §6 "Operation error codes").
var (
	// ErrSymbolicBranchRefused is returned when apply() is asked to act on
	// a symbolic ref (e.g. a detached alias, not a concrete branch).
	ErrSymbolicBranchRefused = errors.New("engine: refusing to operate on a symbolic ref")

	// ErrTargetIsItsOwnWorkspace is returned when the branch being applied
	// is the target branch or its local tracking counterpart.
	ErrTargetIsItsOwnWorkspace = errors.New("engine: branch is the target branch")

	// ErrBranchAlreadyInWorkspace signals a no-op apply: the branch is
	// already fully visible in the workspace.
	ErrBranchAlreadyInWorkspace = errors.New("engine: branch is already in the workspace")

	// ErrBranchAlreadyWorkspaceRef is returned when applying a ref that
	// already carries Workspace metadata.
	ErrBranchAlreadyWorkspaceRef = errors.New("engine: ref already has workspace metadata")

	// ErrUnbornHead is returned when HEAD has no commit yet.
	ErrUnbornHead = errors.New("engine: HEAD is unborn")

	// ErrWorkspaceCommitNotAtHead is returned when the managed workspace
	// ref does not point at the commit HEAD is currently on.
	ErrWorkspaceCommitNotAtHead = errors.New("engine: workspace ref is not at HEAD")

	// ErrMergeMissingStacks is returned when one or more requested stacks
	// could not be placed in the projected workspace after a retry.
	ErrMergeMissingStacks = errors.New("engine: one or more stacks could not be merged")

	// ErrUncommittedChangesWouldBeOverwritten guards the safe-checkout step.
	ErrUncommittedChangesWouldBeOverwritten = errors.New("engine: uncommitted changes would be overwritten")

	// ErrWorkspaceRequiresAtLeastOneStack is returned by refmeta.SetWorkspace
	// when asked to persist a managed workspace with no stacks at all.
	ErrWorkspaceRequiresAtLeastOneStack = errors.New("engine: a managed workspace requires at least one stack")
)

// ConflictingStack names one stack the Merge Kernel could not include.
type ConflictingStack struct {
	StackID string
	RefName string
	Reason  string
}

// ApplyConflictsError is returned when OnWorkspaceMergeConflict is Abort and
// at least one stack conflicted while building the synthetic workspace
// commit. It is a typed outcome, not an invariant violation (spec §7).
type ApplyConflictsError struct {
	Stacks []ConflictingStack
}

func (e *ApplyConflictsError) Error() string {
	return fmt.Sprintf("engine: apply conflicts in %d stack(s)", len(e.Stacks))
}

// Is lets callers match with errors.Is(err, ErrMergeMissingStacks)-style
// sentinels even through the typed wrapper, the way CommandError.Unwrap
// lets callers compare against ErrCommandFailed in the donor tree.
func (e *ApplyConflictsError) Is(target error) bool {
	return target == ErrMergeMissingStacks
}

// Warnf reports a non-fatal, data-shape anomaly: stale metadata pointing at
// a missing object, a remote-tracking branch configured without a matching
// refspec, and similar upstream inconsistencies that spec §7 says to skip
// and report rather than abort on. It is a package-level func var, like the
// donor's direct log.Printf calls, so tests can capture or silence it.
var Warnf = func(format string, args ...any) {
	defaultLogger.Printf(format, args...)
}
