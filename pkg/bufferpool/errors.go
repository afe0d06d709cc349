package bufferpool

import "errors"

// ErrNoFreeFrame is returned when an instance has no free frame and every
// resident frame is pinned, so nothing can be evicted to make room.
var ErrNoFreeFrame = errors.New("bufferpool: no free frame available")

// ErrPageNotResident is returned when an operation that requires a page to
// already be resident in this instance (unpin, flush) targets a page id that
// is not currently resident.
var ErrPageNotResident = errors.New("bufferpool: page not resident in this instance")
