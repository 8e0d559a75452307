package compiler

import (
	"fmt"
	"strings"
)

// Locals is the flat, ordered list of a function's local variables while
// the function is being parsed. Blocks do not open scopes.
//
// Lookup scans from the most recent declaration backwards, so a
// redeclared name resolves to its newest Obj while the older Obj stays in
// the list and keeps its own frame slot.
type Locals struct {
	vars []*Obj
}

// Declare appends a new variable. It never fails: redeclaration shadows.
func (l *Locals) Declare(name string, ty *Type) *Obj {
	v := &Obj{Name: name, Ty: ty}
	l.vars = append(l.vars, v)
	return v
}

// Lookup returns the newest variable called name.
func (l *Locals) Lookup(name string) (*Obj, bool) {
	for i := len(l.vars) - 1; i >= 0; i-- {
		if l.vars[i].Name == name {
			return l.vars[i], true
		}
	}
	return nil, false
}

// Len returns the number of declared variables.
func (l *Locals) Len() int { return len(l.vars) }

// Slice returns the variables in declaration order.
func (l *Locals) Slice() []*Obj { return l.vars }

// FrameLayout returns a deterministic dump of a function's frame.
func FrameLayout(fn *Function) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s (frame %d bytes):\n", fn.Name, fn.StackSize)
	if len(fn.Locals) == 0 {
		sb.WriteString("  (no locals)\n")
		return sb.String()
	}
	params := make(map[*Obj]bool, len(fn.Params))
	for _, p := range fn.Params {
		params[p] = true
	}
	for _, v := range fn.Locals {
		kind := "local"
		if params[v] {
			kind = "param"
		}
		fmt.Fprintf(&sb, "  %-20s  Offset: %d (Type: %s, %s)\n", v.Name, v.Offset, v.Ty, kind)
	}
	return sb.String()
}
