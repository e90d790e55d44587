package column

import "errors"

// ErrCorruption reports a structural inconsistency discovered at
// runtime: a log action references an unknown index table, or a value
// table cannot reconstruct a stored key during reindex. Non-recoverable
// at this layer; propagated to the caller.
var ErrCorruption = errors.New("column: corruption")

// ErrInvariantViolation reports an enact_plan/validate_plan call that
// received a LogAction kind this column does not handle. Treated as a
// programming error, never retried.
var ErrInvariantViolation = errors.New("column: invariant violation")

// ErrClosed reports an operation attempted on a closed column.
var ErrClosed = errors.New("column: closed")
