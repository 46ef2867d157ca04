package transform

import "fmt"

// Error wraps a failure inside a chain with the code of the failing entry
// and, for structural mappers, the target property being written.
type Error struct {
	Code     string
	Property string
	Err      error
}

func (e *Error) Error() string {
	switch {
	case e.Property != "" && e.Code != "":
		return fmt.Sprintf("transformer %q, property %q: %v", e.Code, e.Property, e.Err)
	case e.Property != "":
		return fmt.Sprintf("property %q: %v", e.Property, e.Err)
	}
	return fmt.Sprintf("transformer %q: %v", e.Code, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
