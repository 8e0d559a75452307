package compiler

import "sort"

// Externs returns the sorted names of functions that prog calls but does
// not define. They must be supplied by the linker or the emulator.
func Externs(prog *Program) []string {
	defined := make(map[string]bool, len(prog.Funcs))
	for _, fn := range prog.Funcs {
		defined[fn.Name] = true
	}

	calls := make(map[string]bool)
	for _, fn := range prog.Funcs {
		findCallsStmt(fn.Body, calls)
	}

	var ext []string
	for name := range calls {
		if !defined[name] {
			ext = append(ext, name)
		}
	}
	sort.Strings(ext)
	return ext
}

// Unreachable returns, in source order, the defined functions that cannot
// be reached by calls starting from root.
func Unreachable(prog *Program, root string) []string {
	funcs := make(map[string]*Function, len(prog.Funcs))
	for _, fn := range prog.Funcs {
		funcs[fn.Name] = fn
	}

	reachable := make(map[string]bool)
	var worklist []string
	mark := func(name string) {
		if !reachable[name] {
			reachable[name] = true
			worklist = append(worklist, name)
		}
	}
	if _, ok := funcs[root]; ok {
		mark(root)
	}

	for len(worklist) > 0 {
		curr := worklist[0]
		worklist = worklist[1:]

		fn, ok := funcs[curr]
		if !ok {
			// external
			continue
		}
		calls := make(map[string]bool)
		findCallsStmt(fn.Body, calls)
		for call := range calls {
			mark(call)
		}
	}

	var dead []string
	for _, fn := range prog.Funcs {
		if !reachable[fn.Name] {
			dead = append(dead, fn.Name)
		}
	}
	return dead
}

// findCallsExpr records the names of every function called within e.
func findCallsExpr(e Expr, calls map[string]bool) {
	if e == nil {
		return
	}
	switch n := e.(type) {
	case *FuncCall:
		calls[n.Name] = true
		for _, arg := range n.Args {
			findCallsExpr(arg, calls)
		}
	case *BinaryExpr:
		findCallsExpr(n.LHS, calls)
		findCallsExpr(n.RHS, calls)
	case *UnaryExpr:
		findCallsExpr(n.Operand, calls)
	case *NumLit, *VarRef:
		// leaves
	}
}

// findCallsStmt records the names of every function called within s.
func findCallsStmt(s Stmt, calls map[string]bool) {
	if s == nil {
		return
	}
	switch n := s.(type) {
	case *BlockStmt:
		for _, child := range n.Body {
			findCallsStmt(child, calls)
		}
	case *ExprStmt:
		findCallsExpr(n.X, calls)
	case *ReturnStmt:
		findCallsExpr(n.Value, calls)
	case *IfStmt:
		findCallsExpr(n.Cond, calls)
		findCallsStmt(n.Then, calls)
		findCallsStmt(n.Else, calls)
	case *ForStmt:
		findCallsStmt(n.Init, calls)
		findCallsExpr(n.Cond, calls)
		findCallsExpr(n.Inc, calls)
		findCallsStmt(n.Body, calls)
	}
}
