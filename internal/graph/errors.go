package graph

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidGraph = errors.New("invalid process graph")
	ErrCycle        = errors.New("cycle detected")
)

// GraphError wraps process graph validation failures.
type GraphError struct {
	Kind    error
	Process string
	Msg     string
}

func (e *GraphError) Error() string {
	if e == nil {
		return ""
	}
	prefix := e.Kind.Error()
	if e.Process != "" {
		prefix = fmt.Sprintf("process %q: %s", e.Process, prefix)
	}
	if e.Msg == "" {
		return prefix
	}
	return prefix + ": " + e.Msg
}

func (e *GraphError) Unwrap() error { return e.Kind }

func invalidf(process, format string, args ...any) error {
	return &GraphError{Kind: ErrInvalidGraph, Process: process, Msg: fmt.Sprintf(format, args...)}
}

func cycleError(process string, codes []string) error {
	return &GraphError{Kind: ErrCycle, Process: process, Msg: "between " + strings.Join(codes, ", ")}
}
