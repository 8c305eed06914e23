package repository

import "errors"

// ErrStaleToken is returned by SetToken when another writer replaced the
// token first.
var ErrStaleToken = errors.New("access token changed concurrently")
