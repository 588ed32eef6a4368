package hierarchy

import (
	"errors"
	"path"
	"path/filepath"
)

// ErrAtTop is returned when ascending from an empty stack.
var ErrAtTop = errors.New("already at top of hierarchy")

// NavigationContext is the cursor into the hierarchy: the ids of the opened
// records and the matching directory relative to the base path. It is a value;
// Descend and Ascend return new contexts and never modify the receiver.
type NavigationContext struct {
	Base  string
	Dir   string
	Stack []string
}

// NewNavigationContext returns a context positioned at the top of base.
func NewNavigationContext(base string) NavigationContext {
	return NavigationContext{Base: base}
}

// Descend opens the record id whose directory is dirName below the current directory.
func (n NavigationContext) Descend(id, dirName string) NavigationContext {
	stack := make([]string, len(n.Stack), len(n.Stack)+1)
	copy(stack, n.Stack)
	return NavigationContext{
		Base:  n.Base,
		Dir:   path.Join(n.Dir, dirName),
		Stack: append(stack, id),
	}
}

// Ascend closes the innermost record.
func (n NavigationContext) Ascend() (NavigationContext, error) {
	if len(n.Stack) == 0 {
		return n, ErrAtTop
	}
	stack := make([]string, len(n.Stack)-1)
	copy(stack, n.Stack)
	return NavigationContext{
		Base:  n.Base,
		Dir:   Parent(n.Dir),
		Stack: stack,
	}, nil
}

// Root returns the id of the opened project, or "" when nothing is open.
func (n NavigationContext) Root() string {
	if len(n.Stack) == 0 {
		return ""
	}
	return n.Stack[0]
}

// Current returns the id of the innermost opened record.
func (n NavigationContext) Current() string {
	if len(n.Stack) == 0 {
		return ""
	}
	return n.Stack[len(n.Stack)-1]
}

// Abs converts a relative slash path to an absolute path below Base.
func (n NavigationContext) Abs(rel string) string {
	return filepath.Join(n.Base, filepath.FromSlash(rel))
}

// AbsDir returns the absolute current directory.
func (n NavigationContext) AbsDir() string {
	return n.Abs(n.Dir)
}
