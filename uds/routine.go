package uds

import "fmt"

// RoutineFunc executes a registered routine. controlType is the routine
// control sub-function (start, stop, request results) and params carries the
// request bytes after the routine identifier. The returned bytes are
// appended to the positive response.
type RoutineFunc func(controlType byte, params []byte) ([]byte, error)

// runRoutine invokes fn, converting a panic into an error so one broken
// routine cannot take the dispatcher down.
func runRoutine(fn RoutineFunc, controlType byte, params []byte) (result []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = routinePanicError{value: r}
		}
	}()
	return fn(controlType, params)
}

type routinePanicError struct {
	value any
}

func (e routinePanicError) Error() string {
	return fmt.Sprintf("routine panic: %v", e.value)
}
