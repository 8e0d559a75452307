package cpu

import (
	"fmt"
	"strings"
)

// Op is an instruction of the x86-64 subset the compiler emits.
type Op int

const (
	OpMOV Op = iota
	OpMOVZB
	OpLEA
	OpPUSH
	OpPOP
	OpADD
	OpSUB
	OpIMUL
	OpCQO
	OpIDIV
	OpNEG
	OpCMP
	OpSETE
	OpSETNE
	OpSETL
	OpSETLE
	OpJE
	OpJMP
	OpCALL
	OpRET
)

var opNames = [...]string{
	OpMOV:   "mov",
	OpMOVZB: "movzb",
	OpLEA:   "lea",
	OpPUSH:  "push",
	OpPOP:   "pop",
	OpADD:   "add",
	OpSUB:   "sub",
	OpIMUL:  "imul",
	OpCQO:   "cqo",
	OpIDIV:  "idiv",
	OpNEG:   "neg",
	OpCMP:   "cmp",
	OpSETE:  "sete",
	OpSETNE: "setne",
	OpSETL:  "setl",
	OpSETLE: "setle",
	OpJE:    "je",
	OpJMP:   "jmp",
	OpCALL:  "call",
	OpRET:   "ret",
}

func (op Op) String() string {
	if op >= 0 && int(op) < len(opNames) {
		return opNames[op]
	}
	return fmt.Sprintf("Op(%d)", int(op))
}

// Reg is a 64-bit general purpose register.
type Reg int

const (
	RAX Reg = iota
	RDI
	RSI
	RDX
	RCX
	R8
	R9
	RBP
	RSP
	NumRegs
)

var regNames = [...]string{
	RAX: "rax",
	RDI: "rdi",
	RSI: "rsi",
	RDX: "rdx",
	RCX: "rcx",
	R8:  "r8",
	R9:  "r9",
	RBP: "rbp",
	RSP: "rsp",
}

func (r Reg) String() string {
	if r >= 0 && r < NumRegs {
		return regNames[r]
	}
	return fmt.Sprintf("Reg(%d)", int(r))
}

// ArgRegs are the System V integer argument registers, in order.
var ArgRegs = [6]Reg{RDI, RSI, RDX, RCX, R8, R9}

// OperandKind says how an Operand is read and written.
type OperandKind int

const (
	KindReg   OperandKind = iota // full 64-bit register
	KindReg8                     // low byte of a register (al)
	KindImm                      // immediate
	KindMem                      // qword at [Reg + Disp]
	KindLabel                    // jump or call target
)

// Operand is one decoded instruction operand.
type Operand struct {
	Kind  OperandKind
	Reg   Reg
	Imm   int64  // immediate value, or displacement for KindMem
	Label string // KindLabel only

	// Target is the instruction index of a label, or -1 for a call to a
	// symbol the program does not define.
	Target int
}

func (o Operand) String() string {
	switch o.Kind {
	case KindReg:
		return o.Reg.String()
	case KindReg8:
		return "al"
	case KindImm:
		return fmt.Sprintf("%d", o.Imm)
	case KindMem:
		switch {
		case o.Imm < 0:
			return fmt.Sprintf("[%s%d]", o.Reg, o.Imm)
		case o.Imm > 0:
			return fmt.Sprintf("[%s+%d]", o.Reg, o.Imm)
		}
		return fmt.Sprintf("[%s]", o.Reg)
	case KindLabel:
		return o.Label
	}
	return "?"
}

// Instruction is one decoded instruction.
type Instruction struct {
	Op   Op
	Args []Operand
	Line int // 1-based source line, for fault messages
}

func (in Instruction) String() string {
	if len(in.Args) == 0 {
		return in.Op.String()
	}
	args := make([]string, len(in.Args))
	for i, a := range in.Args {
		args[i] = a.String()
	}
	return in.Op.String() + " " + strings.Join(args, ", ")
}

// Program is an assembled unit ready to run.
type Program struct {
	Instrs []Instruction

	// Labels maps every label to the index of the instruction it precedes.
	Labels map[string]int

	// Globals lists the .globl symbols in declaration order.
	Globals []string

	// Externs lists, sorted, the call targets the program does not define.
	Externs []string
}
