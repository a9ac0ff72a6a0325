package llm

import "fmt"

// Error wraps provider failures with the provider name and operation so
// callers and logs can tell which configured provider misbehaved.
type Error struct {
	Provider string
	Op       string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("llm provider %q: %s: %v", e.Provider, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
