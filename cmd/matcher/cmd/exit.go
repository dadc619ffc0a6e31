package cmd

import "fmt"

// matchExit is returned by match to signal a specific exit code.
// 0 = events found, 1 = no events, 2 = error.
type matchExit struct{ code int }

func (e matchExit) Error() string {
	switch e.code {
	case 0:
		return ""
	case 1:
		return "no match"
	default:
		return fmt.Sprintf("match error (exit %d)", e.code)
	}
}

// ExitCode extracts the exit code from a matchExit error.
// Returns -1 if the error is not a matchExit.
func ExitCode(err error) int {
	if me, ok := err.(matchExit); ok {
		return me.code
	}
	return -1
}
