package wal

import "errors"

// ErrCorrupt reports a log record that failed its checksum or shape
// validation during replay. Callers should use errors.Is(err, ErrCorrupt).
var ErrCorrupt = errors.New("wal: corrupt record")

// ErrClosed reports an operation attempted after Close.
var ErrClosed = errors.New("wal: closed")
