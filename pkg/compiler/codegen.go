package compiler

import (
	"fmt"
	"strings"

	"modernc.org/mathutil"
)

// argRegs are the System V integer argument registers, in order.
var argRegs = [...]string{"rdi", "rsi", "rdx", "rcx", "r8", "r9"}

// CodeGen walks a typed Program and emits x86-64 assembly in Intel syntax.
//
// Every expression leaves its value in rax. Intermediate values are spilled
// with push/pop and depth tracks how many are outstanding; it must be zero
// whenever a statement finishes.
type CodeGen struct {
	out strings.Builder
	src string // source text, for diagnostics only

	depth    int
	maxDepth int
	labelSeq int
	fn       *Function
}

func newCodeGen(src string) *CodeGen {
	return &CodeGen{src: src}
}

// Generate emits assembly for prog. Offsets must already be assigned.
func Generate(prog *Program) (string, error) {
	return newCodeGen("").generate(prog)
}

func (cg *CodeGen) line(format string, args ...any) {
	fmt.Fprintf(&cg.out, format+"\n", args...)
}

// ins emits one indented instruction.
func (cg *CodeGen) ins(format string, args ...any) {
	cg.line("  "+format, args...)
}

func (cg *CodeGen) push() {
	cg.ins("push rax")
	cg.depth++
	cg.maxDepth = mathutil.Max(cg.maxDepth, cg.depth)
}

func (cg *CodeGen) pop(reg string) {
	cg.ins("pop %s", reg)
	cg.depth--
}

// newLabel returns the next id for .L.* labels. Ids start at 1 and are
// unique within one generator.
func (cg *CodeGen) newLabel() int {
	cg.labelSeq++
	return cg.labelSeq
}

func (cg *CodeGen) fmtError(kind error, tok *Token, format string, args ...any) error {
	return errorAt(kind, cg.src, tok, format, args...)
}

func (cg *CodeGen) generate(prog *Program) (string, error) {
	cg.line(".intel_syntax noprefix")
	for _, fn := range prog.Funcs {
		if err := cg.genFunction(fn); err != nil {
			return "", err
		}
	}
	return cg.out.String(), nil
}

func (cg *CodeGen) genFunction(fn *Function) error {
	if len(fn.Params) > len(argRegs) {
		return cg.fmtError(ErrSemantic, fn.Params[len(argRegs)].Ty.Name, "too many parameters")
	}
	cg.fn = fn
	cg.depth = 0

	cg.ins(".globl %s", fn.Name)
	cg.line("%s:", fn.Name)

	// Prologue
	cg.ins("push rbp")
	cg.ins("mov rbp, rsp")
	cg.ins("sub rsp, %d", fn.StackSize)

	for i, p := range fn.Params {
		if p.Offset >= 0 {
			return cg.fmtError(ErrInternal, p.Ty.Name, "parameter %s has no frame slot", p.Name)
		}
		cg.ins("mov [rbp%d], %s", p.Offset, argRegs[i])
	}

	if err := cg.genStmt(fn.Body); err != nil {
		return err
	}

	// Epilogue
	cg.line(".L.return.%s:", fn.Name)
	cg.ins("mov rsp, rbp")
	cg.ins("pop rbp")
	cg.ins("ret")
	return nil
}

// genAddr computes the address of an lvalue into rax.
func (cg *CodeGen) genAddr(e Expr) error {
	switch n := e.(type) {
	case *VarRef:
		if n.Var.Offset >= 0 {
			return cg.fmtError(ErrInternal, n.Tok(), "variable %s has no frame slot", n.Var.Name)
		}
		cg.ins("lea rax, [rbp%d]", n.Var.Offset)
		return nil
	case *UnaryExpr:
		if n.Op == OpDeref {
			return cg.genExpr(n.Operand)
		}
	}
	return cg.fmtError(ErrInternal, e.Tok(), "not an lvalue")
}

// genExpr evaluates e into rax.
func (cg *CodeGen) genExpr(e Expr) error {
	switch n := e.(type) {
	case *NumLit:
		cg.ins("mov rax, %d", n.Val)
		return nil

	case *VarRef:
		if err := cg.genAddr(n); err != nil {
			return err
		}
		cg.ins("mov rax, [rax]")
		return nil

	case *UnaryExpr:
		switch n.Op {
		case OpNeg:
			if err := cg.genExpr(n.Operand); err != nil {
				return err
			}
			cg.ins("neg rax")
			return nil
		case OpAddr:
			return cg.genAddr(n.Operand)
		case OpDeref:
			if err := cg.genExpr(n.Operand); err != nil {
				return err
			}
			cg.ins("mov rax, [rax]")
			return nil
		}

	case *FuncCall:
		return cg.genCall(n)

	case *BinaryExpr:
		if n.Op == OpAssign {
			return cg.genAssign(n)
		}
		return cg.genBinary(n)
	}

	return cg.fmtError(ErrInternal, e.Tok(), "invalid expression")
}

func (cg *CodeGen) genAssign(n *BinaryExpr) error {
	if err := cg.genAddr(n.LHS); err != nil {
		return err
	}
	cg.push()
	if err := cg.genExpr(n.RHS); err != nil {
		return err
	}
	cg.pop("rdi")
	cg.ins("mov [rdi], rax")
	return nil
}

func (cg *CodeGen) genBinary(n *BinaryExpr) error {
	if err := cg.genExpr(n.LHS); err != nil {
		return err
	}
	cg.push()
	if err := cg.genExpr(n.RHS); err != nil {
		return err
	}
	cg.push()
	cg.pop("rdi")
	cg.pop("rax")

	switch n.Op {
	case OpAdd:
		cg.ins("add rax, rdi")
	case OpSub:
		cg.ins("sub rax, rdi")
	case OpMul:
		cg.ins("imul rax, rdi")
	case OpDiv:
		cg.ins("cqo")
		cg.ins("idiv rdi")
	case OpEq, OpNe, OpLt, OpLe:
		cg.ins("cmp rax, rdi")
		switch n.Op {
		case OpEq:
			cg.ins("sete al")
		case OpNe:
			cg.ins("setne al")
		case OpLt:
			cg.ins("setl al")
		case OpLe:
			cg.ins("setle al")
		}
		cg.ins("movzb rax, al")
	default:
		return cg.fmtError(ErrInternal, n.Tok(), "invalid binary operator %s", n.Op)
	}
	return nil
}

// genCall evaluates arguments left to right onto the stack, then pops them
// into the argument registers last to first.
func (cg *CodeGen) genCall(n *FuncCall) error {
	if len(n.Args) > len(argRegs) {
		return cg.fmtError(ErrSemantic, n.Tok(), "too many arguments")
	}

	for _, arg := range n.Args {
		if err := cg.genExpr(arg); err != nil {
			return err
		}
		cg.push()
	}
	for i := len(n.Args) - 1; i >= 0; i-- {
		cg.pop(argRegs[i])
	}

	cg.ins("mov rax, 0")
	// rsp is 16-byte aligned at depth 0; pad when an odd number of
	// values is outstanding.
	if cg.depth%2 == 1 {
		cg.ins("sub rsp, 8")
		cg.ins("call %s", n.Name)
		cg.ins("add rsp, 8")
		return nil
	}
	cg.ins("call %s", n.Name)
	return nil
}

// genStmt emits s and then checks that every push was matched by a pop.
func (cg *CodeGen) genStmt(s Stmt) error {
	if err := cg.genStmtBody(s); err != nil {
		return err
	}
	if cg.depth != 0 {
		return cg.fmtError(ErrInternal, s.Tok(), "stack depth %d after statement", cg.depth)
	}
	return nil
}

func (cg *CodeGen) genStmtBody(s Stmt) error {
	switch n := s.(type) {
	case *BlockStmt:
		for _, child := range n.Body {
			if err := cg.genStmt(child); err != nil {
				return err
			}
		}
		return nil

	case *ExprStmt:
		return cg.genExpr(n.X)

	case *ReturnStmt:
		if err := cg.genExpr(n.Value); err != nil {
			return err
		}
		cg.ins("jmp .L.return.%s", cg.fn.Name)
		return nil

	case *IfStmt:
		c := cg.newLabel()
		if err := cg.genExpr(n.Cond); err != nil {
			return err
		}
		cg.ins("cmp rax, 0")
		cg.ins("je .L.else.%d", c)
		if err := cg.genStmt(n.Then); err != nil {
			return err
		}
		cg.ins("jmp .L.end.%d", c)
		cg.line(".L.else.%d:", c)
		if n.Else != nil {
			if err := cg.genStmt(n.Else); err != nil {
				return err
			}
		}
		cg.line(".L.end.%d:", c)
		return nil

	case *ForStmt:
		c := cg.newLabel()
		if n.Init != nil {
			if err := cg.genStmt(n.Init); err != nil {
				return err
			}
		}
		cg.line(".L.begin.%d:", c)
		if n.Cond != nil {
			if err := cg.genExpr(n.Cond); err != nil {
				return err
			}
			cg.ins("cmp rax, 0")
			cg.ins("je .L.end.%d", c)
		}
		if err := cg.genStmt(n.Body); err != nil {
			return err
		}
		if n.Inc != nil {
			if err := cg.genExpr(n.Inc); err != nil {
				return err
			}
		}
		cg.ins("jmp .L.begin.%d", c)
		cg.line(".L.end.%d:", c)
		return nil
	}

	return cg.fmtError(ErrInternal, s.Tok(), "invalid statement")
}
