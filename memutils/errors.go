package memutils

import "github.com/cockroachdb/errors"

// PowerOfTwoError is the error returned from CheckPow2 or other methods if the number being tested is not a power of two
var PowerOfTwoError error = errors.New("number must be a power of two")

// ErrOutOfMemory is returned when a heap, block, surface or job could not be allocated or resized
var ErrOutOfMemory error = errors.New("out of memory")

// ErrInvalidOutput indicates that the attachments bound to a frame builder do not describe a renderable output
var ErrInvalidOutput error = errors.New("invalid output configuration")

// ErrCallbackRejected is returned when a callback cannot be attached to the current frame because the frame
// will never execute it
var ErrCallbackRejected error = errors.New("callback rejected by frame")
