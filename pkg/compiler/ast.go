package compiler

import (
	"fmt"
	"strings"
)

//  Variables and functions

// Obj is a local variable or parameter.
type Obj struct {
	Name string
	Ty   *Type

	// Offset is the frame-pointer-relative offset of the variable's slot.
	// It is 0 until AssignLocalOffsets runs and negative afterwards.
	Offset int
}

func (o *Obj) String() string {
	return fmt.Sprintf("%s %s @ %d", o.Ty, o.Name, o.Offset)
}

// Function is a parsed function definition.
type Function struct {
	Name string
	Body *BlockStmt

	// Locals holds every local of the function in declaration order,
	// parameters first. Redeclared names appear once per declaration.
	Locals []*Obj

	// Params is the ordered parameter sublist of Locals.
	Params []*Obj

	// StackSize is the frame size in bytes, set by AssignLocalOffsets.
	StackSize int
}

func (f *Function) String() string {
	return fmt.Sprintf("Function(%s, params=%d, locals=%d, stack=%d, body=%s)",
		f.Name, len(f.Params), len(f.Locals), f.StackSize, f.Body)
}

// Program is the parsed translation unit.
type Program struct {
	Funcs []*Function
}

//  Expression nodes

// Expr is implemented by every node that produces a value.
// genExpr always leaves the result in rax.
type Expr interface {
	exprNode()
	Tok() *Token
	Type() *Type
	String() string
}

// exprBase carries the fields shared by every expression node.
type exprBase struct {
	At *Token // representative source token
	Ty *Type  // resolved by addType
}

func (*exprBase) exprNode()     {}
func (b *exprBase) Tok() *Token { return b.At }
func (b *exprBase) Type() *Type { return b.Ty }

// NumLit is an integer constant.
//
//	return 42;
//	       ^^  NumLit{Val: 42}
type NumLit struct {
	exprBase
	Val int64
}

func (n *NumLit) String() string { return fmt.Sprintf("%d", n.Val) }

// VarRef is a use of a local variable. Var points into the enclosing
// function's Locals; it is a lookup, not ownership.
type VarRef struct {
	exprBase
	Var *Obj
}

func (v *VarRef) String() string { return v.Var.Name }

// UnaryOp is the operator of a UnaryExpr.
type UnaryOp int

const (
	OpNeg   UnaryOp = iota // -x
	OpAddr                 // &x
	OpDeref                // *x
)

var unaryOpNames = [...]string{OpNeg: "-", OpAddr: "&", OpDeref: "*"}

func (op UnaryOp) String() string { return unaryOpNames[op] }

// UnaryExpr represents Op Operand.
type UnaryExpr struct {
	exprBase
	Op      UnaryOp
	Operand Expr
}

func (u *UnaryExpr) String() string { return fmt.Sprintf("(%s%s)", u.Op, u.Operand) }

// BinaryOp is the operator of a BinaryExpr. There is no > or >=: the
// parser rewrites them into < and <= with swapped operands.
type BinaryOp int

const (
	OpAdd    BinaryOp = iota // +
	OpSub                    // -
	OpMul                    // *
	OpDiv                    // /
	OpEq                     // ==
	OpNe                     // !=
	OpLt                     // <
	OpLe                     // <=
	OpAssign                 // =
)

var binaryOpNames = [...]string{
	OpAdd:    "+",
	OpSub:    "-",
	OpMul:    "*",
	OpDiv:    "/",
	OpEq:     "==",
	OpNe:     "!=",
	OpLt:     "<",
	OpLe:     "<=",
	OpAssign: "=",
}

func (op BinaryOp) String() string { return binaryOpNames[op] }

// BinaryExpr represents LHS Op RHS.
//
//	a + 1
//	^ ^ ^
//	| | RHS
//	| Op
//	LHS
type BinaryExpr struct {
	exprBase
	Op  BinaryOp
	LHS Expr
	RHS Expr
}

func (b *BinaryExpr) String() string {
	return fmt.Sprintf("(%s %s %s)", b.LHS, b.Op, b.RHS)
}

// FuncCall represents Name(Args...).
type FuncCall struct {
	exprBase
	Name string
	Args []Expr
}

func (c *FuncCall) String() string {
	args := make([]string, len(c.Args))
	for i, a := range c.Args {
		args[i] = a.String()
	}
	return fmt.Sprintf("%s(%s)", c.Name, strings.Join(args, ", "))
}

//  Statement nodes

// Stmt is implemented by every node that does not produce a value.
type Stmt interface {
	stmtNode()
	Tok() *Token
	String() string
}

type stmtBase struct {
	At *Token
}

func (*stmtBase) stmtNode()     {}
func (b *stmtBase) Tok() *Token { return b.At }

// BlockStmt represents { stmt... }. It does not open a scope.
type BlockStmt struct {
	stmtBase
	Body []Stmt
}

func (b *BlockStmt) String() string {
	return fmt.Sprintf("BlockStmt(len=%d)", len(b.Body))
}

// ExprStmt is an expression evaluated for its side effects.
type ExprStmt struct {
	stmtBase
	X Expr
}

func (e *ExprStmt) String() string { return fmt.Sprintf("ExprStmt(%s)", e.X) }

// ReturnStmt represents return Value;
type ReturnStmt struct {
	stmtBase
	Value Expr
}

func (r *ReturnStmt) String() string { return fmt.Sprintf("ReturnStmt(%s)", r.Value) }

// IfStmt represents if (Cond) Then [else Else].
type IfStmt struct {
	stmtBase
	Cond Expr
	Then Stmt
	Else Stmt // may be nil
}

func (i *IfStmt) String() string {
	if i.Else != nil {
		return fmt.Sprintf("IfStmt(if %s then %s else %s)", i.Cond, i.Then, i.Else)
	}
	return fmt.Sprintf("IfStmt(if %s then %s)", i.Cond, i.Then)
}

// ForStmt represents for (Init; Cond; Inc) Body. A while loop is a ForStmt
// with only Cond set. A nil Cond never exits on its own.
type ForStmt struct {
	stmtBase
	Init Stmt // may be nil
	Cond Expr // may be nil
	Inc  Expr // may be nil
	Body Stmt
}

func (f *ForStmt) String() string {
	return fmt.Sprintf("ForStmt(init=%v, cond=%v, inc=%v, body=%s)", f.Init, f.Cond, f.Inc, f.Body)
}
