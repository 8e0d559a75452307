package cpu

import (
	"errors"
	"math"
	"strings"
	"testing"
)

func reg(r Reg) Operand { return Operand{Kind: KindReg, Reg: r} }

func imm(v int64) Operand { return Operand{Kind: KindImm, Imm: v} }

func mem(r Reg, d int64) Operand { return Operand{Kind: KindMem, Reg: r, Imm: d} }

func target(name string, idx int) Operand {
	return Operand{Kind: KindLabel, Label: name, Target: idx}
}

var al = Operand{Kind: KindReg8, Reg: RAX}

func ins(op Op, args ...Operand) Instruction { return Instruction{Op: op, Args: args} }

// loadProgram builds a Program whose entry "main" is the first instruction.
func loadProgram(instrs ...Instruction) *Program {
	for i := range instrs {
		instrs[i].Line = i + 1
	}
	return &Program{Instrs: instrs, Labels: map[string]int{"main": 0}}
}

func run(t *testing.T, prog *Program, opts ...Option) int64 {
	t.Helper()
	rax, err := New(prog, opts...).Run("main")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	return rax
}

func TestALU(t *testing.T) {
	tests := []struct {
		name string
		op   Op
		a, b int64
		want int64
	}{
		{"Add", OpADD, 10, 20, 30},
		{"Sub", OpSUB, 10, 25, -15},
		{"Imul", OpIMUL, -6, 7, -42},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prog := loadProgram(
				ins(OpMOV, reg(RAX), imm(tt.a)),
				ins(OpMOV, reg(RDI), imm(tt.b)),
				ins(tt.op, reg(RAX), reg(RDI)),
				ins(OpRET),
			)
			if got := run(t, prog); got != tt.want {
				t.Errorf("expected %d, got %d", tt.want, got)
			}
		})
	}
}

func TestDivision(t *testing.T) {
	tests := []struct {
		a, b int64
		q, r int64
	}{
		{7, 2, 3, 1},
		{-7, 2, -3, -1},
		{7, -2, -3, 1},
		{42, 6, 7, 0},
	}
	for _, tt := range tests {
		prog := loadProgram(
			ins(OpMOV, reg(RAX), imm(tt.a)),
			ins(OpMOV, reg(RDI), imm(tt.b)),
			ins(OpCQO),
			ins(OpIDIV, reg(RDI)),
			ins(OpRET),
		)
		c := New(prog)
		q, err := c.Run("main")
		if err != nil {
			t.Fatalf("%d/%d: %v", tt.a, tt.b, err)
		}
		if q != tt.q || c.Regs[RDX] != tt.r {
			t.Errorf("%d/%d: got q=%d r=%d, want q=%d r=%d", tt.a, tt.b, q, c.Regs[RDX], tt.q, tt.r)
		}
	}
}

func TestDivisionByZero(t *testing.T) {
	prog := loadProgram(
		ins(OpMOV, reg(RAX), imm(1)),
		ins(OpMOV, reg(RDI), imm(0)),
		ins(OpCQO),
		ins(OpIDIV, reg(RDI)),
		ins(OpRET),
	)
	_, err := New(prog).Run("main")
	if !errors.Is(err, ErrDivideByZero) {
		t.Fatalf("expected ErrDivideByZero, got %v", err)
	}
	if !strings.HasPrefix(err.Error(), "line 4:") {
		t.Errorf("fault should carry the source line, got %q", err)
	}
}

func TestCompareAndSet(t *testing.T) {
	tests := []struct {
		name string
		op   Op
		a, b int64
		want int64
	}{
		{"EqTrue", OpSETE, 5, 5, 1},
		{"EqFalse", OpSETE, 5, 6, 0},
		{"NeTrue", OpSETNE, 5, 6, 1},
		{"LtTrue", OpSETL, -1, 0, 1},
		{"LtFalse", OpSETL, 3, 3, 0},
		{"LeEqual", OpSETLE, 3, 3, 1},
		{"LeFalse", OpSETLE, 4, 3, 0},
		{"LtOverflow", OpSETL, math.MinInt64, 1, 1},
		{"LtOverflowFalse", OpSETL, math.MaxInt64, -1, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prog := loadProgram(
				ins(OpMOV, reg(RAX), imm(tt.a)),
				ins(OpMOV, reg(RDI), imm(tt.b)),
				ins(OpCMP, reg(RAX), reg(RDI)),
				ins(OpMOV, reg(RAX), imm(-1)), // movzb must clear the upper bits
				ins(tt.op, al),
				ins(OpMOVZB, reg(RAX), al),
				ins(OpRET),
			)
			if got := run(t, prog); got != tt.want {
				t.Errorf("expected %d, got %d", tt.want, got)
			}
		})
	}
}

func TestJumps(t *testing.T) {
	// rax = 0; for rdi = 5; rdi != 0; rdi-- { rax += rdi }
	prog := loadProgram(
		ins(OpMOV, reg(RAX), imm(0)),
		ins(OpMOV, reg(RDI), imm(5)),
		ins(OpCMP, reg(RDI), imm(0)), // 2: loop
		ins(OpJE, target("done", 7)),
		ins(OpADD, reg(RAX), reg(RDI)),
		ins(OpSUB, reg(RDI), imm(1)),
		ins(OpJMP, target("loop", 2)),
		ins(OpRET), // 7: done
	)
	if got := run(t, prog); got != 15 {
		t.Errorf("expected 15, got %d", got)
	}
}

func TestStackAndMemory(t *testing.T) {
	prog := loadProgram(
		ins(OpPUSH, reg(RBP)),
		ins(OpMOV, reg(RBP), reg(RSP)),
		ins(OpSUB, reg(RSP), imm(16)),
		ins(OpMOV, reg(RAX), imm(99)),
		ins(OpMOV, mem(RBP, -8), reg(RAX)),
		ins(OpLEA, reg(RDI), mem(RBP, -8)),
		ins(OpMOV, reg(RAX), mem(RDI, 0)),
		ins(OpNEG, reg(RAX)),
		ins(OpPUSH, reg(RAX)),
		ins(OpPOP, reg(RSI)),
		ins(OpMOV, reg(RAX), reg(RSI)),
		ins(OpMOV, reg(RSP), reg(RBP)),
		ins(OpPOP, reg(RBP)),
		ins(OpRET),
	)
	if got := run(t, prog); got != -99 {
		t.Errorf("expected -99, got %d", got)
	}
}

func TestSubroutine(t *testing.T) {
	// main calls double(21) with an aligned stack.
	prog := &Program{
		Instrs: []Instruction{
			ins(OpSUB, reg(RSP), imm(8)),
			ins(OpMOV, reg(RDI), imm(21)),
			ins(OpCALL, target("double", 5)),
			ins(OpADD, reg(RSP), imm(8)),
			ins(OpRET),
			ins(OpMOV, reg(RAX), reg(RDI)), // 5: double
			ins(OpADD, reg(RAX), reg(RDI)),
			ins(OpRET),
		},
		Labels: map[string]int{"main": 0, "double": 5},
	}
	if got := run(t, prog); got != 42 {
		t.Errorf("expected 42, got %d", got)
	}

	c := New(prog)
	got, err := c.Run("double", 8)
	if err != nil {
		t.Fatalf("Run(double) failed: %v", err)
	}
	if got != 16 {
		t.Errorf("double(8): expected 16, got %d", got)
	}
}

func TestMisalignedCall(t *testing.T) {
	prog := loadProgram(
		ins(OpCALL, target("main", 0)),
	)
	_, err := New(prog).Run("main")
	if err == nil || !strings.Contains(err.Error(), "misaligned stack at call to main") {
		t.Fatalf("expected misaligned stack fault, got %v", err)
	}
}

func TestExtern(t *testing.T) {
	prog := loadProgram(
		ins(OpSUB, reg(RSP), imm(8)),
		ins(OpMOV, reg(RDI), imm(1)),
		ins(OpMOV, reg(RSI), imm(2)),
		ins(OpMOV, reg(RDX), imm(3)),
		ins(OpMOV, reg(RAX), imm(0)),
		ins(OpCALL, target("sum3", -1)),
		ins(OpADD, reg(RSP), imm(8)),
		ins(OpRET),
	)
	var seen [6]int64
	sum3 := func(args [6]int64) (int64, error) {
		seen = args
		return args[0] + args[1] + args[2], nil
	}
	if got := run(t, prog, WithExtern("sum3", sum3)); got != 6 {
		t.Errorf("expected 6, got %d", got)
	}
	if seen[0] != 1 || seen[1] != 2 || seen[2] != 3 {
		t.Errorf("extern saw %v", seen)
	}

	_, err := New(prog).Run("main")
	if err == nil || !strings.Contains(err.Error(), "call to undefined function sum3") {
		t.Errorf("expected undefined function fault, got %v", err)
	}

	boom := errors.New("boom")
	_, err = New(prog, WithExtern("sum3", func([6]int64) (int64, error) { return 0, boom })).Run("main")
	if !errors.Is(err, boom) {
		t.Errorf("expected extern error to be wrapped, got %v", err)
	}
}

func TestStepLimit(t *testing.T) {
	prog := loadProgram(
		ins(OpJMP, target("main", 0)),
	)
	_, err := New(prog, WithStepLimit(1000)).Run("main")
	if !errors.Is(err, ErrStepLimit) {
		t.Fatalf("expected ErrStepLimit, got %v", err)
	}
}

func TestStackOverflow(t *testing.T) {
	prog := loadProgram(
		ins(OpPUSH, reg(RAX)),
		ins(OpJMP, target("main", 0)),
	)
	_, err := New(prog, WithStackSize(256)).Run("main")
	if !errors.Is(err, ErrStackOverflow) {
		t.Fatalf("expected ErrStackOverflow, got %v", err)
	}
}

func TestInvalidMemory(t *testing.T) {
	prog := loadProgram(
		ins(OpMOV, reg(RAX), imm(0)),
		ins(OpMOV, reg(RAX), mem(RAX, 0)),
		ins(OpRET),
	)
	_, err := New(prog).Run("main")
	if err == nil || !strings.Contains(err.Error(), "invalid memory read at 0x0") {
		t.Fatalf("expected invalid read fault, got %v", err)
	}
}

func TestUndefinedEntry(t *testing.T) {
	_, err := New(loadProgram(ins(OpRET))).Run("start")
	if err == nil || !strings.Contains(err.Error(), `undefined entry point "start"`) {
		t.Fatalf("expected undefined entry error, got %v", err)
	}
}
