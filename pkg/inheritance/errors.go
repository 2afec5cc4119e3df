package inheritance

import (
	"fmt"
	"strings"
)

// CycleError is returned when an edge would make a theme its own ancestor.
// Path is the ancestor walk that closes the loop, starting at Child.
type CycleError struct {
	Child  string
	Parent string
	Path   []string
}

func (e *CycleError) Error() string {
	if e.Child == e.Parent {
		return fmt.Sprintf("theme %q cannot inherit from itself", e.Child)
	}
	return fmt.Sprintf("inheriting %q from %q would create a cycle: %s", e.Child, e.Parent, strings.Join(e.Path, " -> "))
}

// DepthExceededError is returned when an edge would push some theme past
// the maximum inheritance depth.
type DepthExceededError struct {
	Child  string
	Parent string
	Depth  int
	Max    int
}

func (e *DepthExceededError) Error() string {
	return fmt.Sprintf("inheriting %q from %q would reach depth %d (max %d)", e.Child, e.Parent, e.Depth, e.Max)
}
