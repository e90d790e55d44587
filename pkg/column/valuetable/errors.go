package valuetable

import "errors"

// ErrCorrupt reports a value table whose header or a record it was asked
// to trust fails its structural checks. Callers should use
// errors.Is(err, ErrCorrupt).
var ErrCorrupt = errors.New("valuetable: corrupt")

// ErrKeyTooLong reports an insert whose key suffix exceeds maxKeySuffixLen.
var ErrKeyTooLong = errors.New("valuetable: key suffix too long")

// ErrOffsetOutOfRange reports an offset that does not address a record in
// this table's current extent.
var ErrOffsetOutOfRange = errors.New("valuetable: offset out of range")
