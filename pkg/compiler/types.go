package compiler

import "strings"

// TypeKind is the closed set of types the language knows about.
type TypeKind int

const (
	TyInt TypeKind = iota
	TyPtr
	TyFunc
)

// wordSize is the size in bytes of an int, a pointer, and every stack slot.
const wordSize = 8

// Type describes an int, a pointer, or a function.
type Type struct {
	Kind TypeKind

	// Base is the pointee of a pointer or the return type of a function.
	Base *Type

	// Params holds a function's parameter types in declaration order.
	// Each parameter type carries its name in Name.
	Params []*Type

	// Name is the declarator's identifier once the type is bound to one.
	Name *Token
}

var tyInt = &Type{Kind: TyInt}

func pointerTo(base *Type) *Type {
	return &Type{Kind: TyPtr, Base: base}
}

func funcType(ret *Type) *Type {
	return &Type{Kind: TyFunc, Base: ret}
}

// withName returns a shallow copy of ty bound to the declarator name.
func (ty *Type) withName(name *Token) *Type {
	c := *ty
	c.Name = name
	return &c
}

func (ty *Type) IsInteger() bool { return ty != nil && ty.Kind == TyInt }
func (ty *Type) IsPointer() bool { return ty != nil && ty.Kind == TyPtr }

// Size is the storage size of a value of this type.
func (ty *Type) Size() int { return wordSize }

func (ty *Type) String() string {
	switch ty.Kind {
	case TyInt:
		return "int"
	case TyPtr:
		return ty.Base.String() + "*"
	case TyFunc:
		params := make([]string, len(ty.Params))
		for i, p := range ty.Params {
			params[i] = p.String()
		}
		return ty.Base.String() + "(" + strings.Join(params, ", ") + ")"
	}
	return "?"
}

// addType annotates an expression tree bottom-up. Nodes that already carry
// a type are left alone, so repeated calls are cheap.
func addType(e Expr) {
	if e == nil || e.Type() != nil {
		return
	}

	switch n := e.(type) {
	case *NumLit:
		n.Ty = tyInt

	case *VarRef:
		n.Ty = n.Var.Ty

	case *FuncCall:
		for _, arg := range n.Args {
			addType(arg)
		}
		n.Ty = tyInt

	case *UnaryExpr:
		addType(n.Operand)
		switch n.Op {
		case OpNeg:
			n.Ty = n.Operand.Type()
		case OpAddr:
			n.Ty = pointerTo(n.Operand.Type())
		case OpDeref:
			if n.Operand.Type().IsPointer() {
				n.Ty = n.Operand.Type().Base
			} else {
				n.Ty = tyInt
			}
		}

	case *BinaryExpr:
		addType(n.LHS)
		addType(n.RHS)
		switch n.Op {
		case OpAdd, OpSub, OpMul, OpDiv, OpAssign:
			n.Ty = n.LHS.Type()
		case OpEq, OpNe, OpLt, OpLe:
			n.Ty = tyInt
		}
	}
}

// addStmtTypes annotates every expression reachable from s.
func addStmtTypes(s Stmt) {
	switch n := s.(type) {
	case *BlockStmt:
		for _, child := range n.Body {
			addStmtTypes(child)
		}
	case *ExprStmt:
		addType(n.X)
	case *ReturnStmt:
		addType(n.Value)
	case *IfStmt:
		addType(n.Cond)
		addStmtTypes(n.Then)
		if n.Else != nil {
			addStmtTypes(n.Else)
		}
	case *ForStmt:
		if n.Init != nil {
			addStmtTypes(n.Init)
		}
		addType(n.Cond)
		addType(n.Inc)
		addStmtTypes(n.Body)
	}
}
