package symex

import (
	"errors"
	"fmt"
)

// Standard widths.
const (
	WidthBool = 1
	Width8    = 8
	Width16   = 16
	Width32   = 32
	Width64   = 64
)

var (
	ErrSolverTimeout       = errors.New("solver timeout")
	ErrSolverCanceled      = errors.New("solver canceled")
	ErrSolverResourceLimit = errors.New("solver resource limit")
	ErrSolverUnknown       = errors.New("solver unknown error")

	ErrNoStateAvailable       = errors.New("no runnable state available")
	ErrNoInstructionAvailable = errors.New("no instruction available")
)

// assert panics if condition is false. Reserved for invariant violations
// that indicate a bug in this package, never for conditions a caller
// should handle (those are reported through TerminationError instead).
func assert(condition bool, format string, args ...interface{}) {
	if !condition {
		panic(fmt.Sprintf("assert: "+format, args...))
	}
}
