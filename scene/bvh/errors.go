package bvh

import "fmt"

// ErrStackOverflow is returned by the reference traversal when the
// node/face-group stack would grow past MaxStackSize.
type ErrStackOverflow struct {
	MaxStackSize int
}

func (e *ErrStackOverflow) Error() string {
	return fmt.Sprintf("bvh: traversal stack overflowed MAX_STACK_SIZE=%d", e.MaxStackSize)
}
