package reliability

import "fmt"

type FailureStrategy string

const (
	FailOpen   FailureStrategy = "fail_open"
	FailClosed FailureStrategy = "fail_closed"
)

// ParseStrategy rejects anything but the two known strategies.
func ParseStrategy(s string) error {
	switch FailureStrategy(s) {
	case FailOpen, FailClosed:
		return nil
	}
	return fmt.Errorf("unknown failure strategy %q", s)
}

// ShouldAllow determines if we should proceed given an error and a strategy.
// Anything other than FailOpen blocks on error.
func ShouldAllow(strategy FailureStrategy, err error) bool {
	if err == nil {
		return true
	}
	return strategy == FailOpen
}
