package indextable

import "errors"

// ErrCorrupt reports an index table whose header fails its structural
// checks. Callers should use errors.Is(err, ErrCorrupt).
var ErrCorrupt = errors.New("indextable: corrupt")

// ErrSubIndexOutOfRange reports a sub_index greater than entriesPerChunk.
// Get accepts entriesPerChunk itself and treats it as an exhausted chunk.
var ErrSubIndexOutOfRange = errors.New("indextable: sub_index out of range")

// ErrChunkOutOfRange reports a chunk_index outside [0, chunk_count).
var ErrChunkOutOfRange = errors.New("indextable: chunk_index out of range")
