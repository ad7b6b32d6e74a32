package device

import "errors"

// ErrNotFound indicates a named device or room is absent from the latest
// bridge snapshot.
var ErrNotFound = errors.New("not found")
