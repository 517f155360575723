package common

import (
	"errors"
	"fmt"
)

// ErrorKind classifies an EngineError into one of the taxonomies the
// engine's collaborators need to branch on (e.g. "was this a surface loss
// that should trigger swapchain recreation, or a fatal submission error").
type ErrorKind int

const (
	// Device errors.
	KindDeviceLost ErrorKind = iota
	KindOutOfMemory
	KindUnsupportedStage
	KindQueueUnavailable

	// Surface errors.
	KindSurfaceOutOfDate
	KindSurfaceSuboptimal
	KindSurfaceLost

	// Submission errors.
	KindQueueSubmitFailed
	KindPresentFailed
	KindSemaphoreWaitFailed
	KindFenceWaitFailed

	// Resource errors.
	KindSizeMismatch
	KindIncompatibleImage
	KindAllocationFailed
	KindMemoryMapFailed

	// Graph errors.
	KindDuplicateNodeName
	KindDuplicateEdge
	KindNodeHasEdges
	KindNotFound
	KindSemaphoreAlreadyRegistered

	// Builder errors.
	KindIllegalBuilderTransition
)

// String returns the human-readable name of the ErrorKind.
func (k ErrorKind) String() string {
	switch k {
	case KindDeviceLost:
		return "DeviceLost"
	case KindOutOfMemory:
		return "OutOfMemory"
	case KindUnsupportedStage:
		return "UnsupportedStage"
	case KindQueueUnavailable:
		return "QueueUnavailable"
	case KindSurfaceOutOfDate:
		return "SurfaceOutOfDate"
	case KindSurfaceSuboptimal:
		return "SurfaceSuboptimal"
	case KindSurfaceLost:
		return "SurfaceLost"
	case KindQueueSubmitFailed:
		return "QueueSubmitFailed"
	case KindPresentFailed:
		return "PresentFailed"
	case KindSemaphoreWaitFailed:
		return "SemaphoreWaitFailed"
	case KindFenceWaitFailed:
		return "FenceWaitFailed"
	case KindSizeMismatch:
		return "SizeMismatch"
	case KindIncompatibleImage:
		return "IncompatibleImage"
	case KindAllocationFailed:
		return "AllocationFailed"
	case KindMemoryMapFailed:
		return "MemoryMapFailed"
	case KindDuplicateNodeName:
		return "DuplicateNodeName"
	case KindDuplicateEdge:
		return "DuplicateEdge"
	case KindNodeHasEdges:
		return "NodeHasEdges"
	case KindNotFound:
		return "NotFound"
	case KindSemaphoreAlreadyRegistered:
		return "SemaphoreAlreadyRegistered"
	case KindIllegalBuilderTransition:
		return "IllegalBuilderTransition"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// EngineError wraps an underlying error with the kind and operation that
// produced it, giving callers a stable switch target without parsing error
// strings.
type EngineError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *EngineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *EngineError) Unwrap() error {
	return e.Err
}

// NewError builds an EngineError for op failing with kind, wrapping cause
// (which may be nil).
func NewError(op string, kind ErrorKind, cause error) error {
	return &EngineError{Op: op, Kind: kind, Err: cause}
}

// KindOf extracts the ErrorKind from err if it (or something it wraps) is an
// *EngineError, returning ok=false otherwise.
func KindOf(err error) (ErrorKind, bool) {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Kind, true
	}
	return 0, false
}

// IsKind reports whether err is an EngineError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
