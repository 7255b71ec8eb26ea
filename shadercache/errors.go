package shadercache

import "fmt"

// ErrCompileFailed wraps a MaterialCompiler failure for a given key. The
// cache's policy on this error is spec.md §7's: the miss stays a miss, any
// previously cached entry for the key is left untouched, and the failure is
// surfaced as a per-frame warning rather than propagated as fatal.
type ErrCompileFailed struct {
	Key    Key
	Reason string
}

func (e *ErrCompileFailed) Error() string {
	return fmt.Sprintf("shadercache: compile failed for aov=%d features=%#x material=%#x: %s",
		e.Key.AOV, uint32(e.Key.Features), uint64(e.Key.Material), e.Reason)
}
