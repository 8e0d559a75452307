package cpu

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"modernc.org/mathutil"
)

const (
	// DefaultStackSize is the size in bytes of the emulated stack.
	DefaultStackSize = 1 << 20

	// StackBase is the lowest stack address. Keeping it away from zero
	// makes a null dereference fault instead of hitting the stack.
	StackBase = 0x10000

	// haltAddr is the return address pushed by Run. Returning to it halts.
	haltAddr = -1
)

var (
	ErrDivideByZero  = errors.New("division by zero")
	ErrStackOverflow = errors.New("stack overflow")
	ErrStepLimit     = errors.New("step limit exceeded")
)

// ExternFunc implements a function the program calls but does not define.
// It receives rdi, rsi, rdx, rcx, r8 and r9 and returns the new rax.
type ExternFunc func(args [6]int64) (int64, error)

// Option configures a CPU.
type Option func(*CPU)

// WithStackSize sets the stack size in bytes. It is rounded up to 16.
func WithStackSize(n int) Option {
	return func(c *CPU) {
		c.stackSize = (n + 15) &^ 15
	}
}

// WithStepLimit bounds the number of instructions Run may execute.
func WithStepLimit(n int) Option {
	return func(c *CPU) {
		c.stepLimit = n
	}
}

// WithExtern registers fn as the implementation of the external symbol name.
func WithExtern(name string, fn ExternFunc) Option {
	return func(c *CPU) {
		c.externs[name] = fn
	}
}

// CPU executes a Program. It is not safe for concurrent use.
type CPU struct {
	Regs [NumRegs]int64

	ZF bool
	SF bool
	OF bool

	PC     int // index into prog.Instrs
	Halted bool
	Steps  int

	Memory []byte // the stack, mapped at StackBase

	prog      *Program
	stackSize int
	stepLimit int
	externs   map[string]ExternFunc
}

func New(prog *Program, opts ...Option) *CPU {
	c := &CPU{
		prog:      prog,
		stackSize: DefaultStackSize,
		stepLimit: mathutil.MaxInt,
		externs:   make(map[string]ExternFunc),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.Memory = make([]byte, c.stackSize)
	return c
}

// stackTop is one past the highest stack address.
func (c *CPU) stackTop() int64 {
	return StackBase + int64(len(c.Memory))
}

func (c *CPU) fault(format string, args ...any) error {
	line := 0
	if c.PC >= 0 && c.PC < len(c.prog.Instrs) {
		line = c.prog.Instrs[c.PC].Line
	}
	return fmt.Errorf("line %d: %w", line, fmt.Errorf(format, args...))
}

// Read64 reads a little-endian qword.
func (c *CPU) Read64(addr int64) (int64, error) {
	if addr < StackBase || addr+8 > c.stackTop() {
		return 0, c.fault("invalid memory read at %#x", addr)
	}
	off := addr - StackBase
	return int64(binary.LittleEndian.Uint64(c.Memory[off : off+8])), nil
}

// Write64 writes a little-endian qword.
func (c *CPU) Write64(addr, val int64) error {
	if addr < StackBase || addr+8 > c.stackTop() {
		return c.fault("invalid memory write at %#x", addr)
	}
	off := addr - StackBase
	binary.LittleEndian.PutUint64(c.Memory[off:off+8], uint64(val))
	return nil
}

func (c *CPU) push(val int64) error {
	sp := c.Regs[RSP] - 8
	if sp < StackBase {
		return c.fault("%w", ErrStackOverflow)
	}
	if err := c.Write64(sp, val); err != nil {
		return err
	}
	c.Regs[RSP] = sp
	return nil
}

func (c *CPU) pop() (int64, error) {
	sp := c.Regs[RSP]
	if sp+8 > c.stackTop() {
		return 0, c.fault("stack underflow")
	}
	val, err := c.Read64(sp)
	if err != nil {
		return 0, err
	}
	c.Regs[RSP] = sp + 8
	return val, nil
}

func (c *CPU) addr(o Operand) (int64, error) {
	if o.Kind != KindMem {
		return 0, c.fault("expected a memory operand, got %s", o)
	}
	return c.Regs[o.Reg] + o.Imm, nil
}

func (c *CPU) get(o Operand) (int64, error) {
	switch o.Kind {
	case KindReg:
		return c.Regs[o.Reg], nil
	case KindReg8:
		return c.Regs[o.Reg] & 0xff, nil
	case KindImm:
		return o.Imm, nil
	case KindMem:
		a, _ := c.addr(o)
		return c.Read64(a)
	}
	return 0, c.fault("cannot read operand %s", o)
}

func (c *CPU) set(o Operand, val int64) error {
	switch o.Kind {
	case KindReg:
		c.Regs[o.Reg] = val
		return nil
	case KindReg8:
		c.Regs[o.Reg] = c.Regs[o.Reg]&^0xff | val&0xff
		return nil
	case KindMem:
		a, _ := c.addr(o)
		return c.Write64(a, val)
	}
	return c.fault("cannot write operand %s", o)
}

func (c *CPU) updateFlags(result int64) {
	c.ZF = result == 0
	c.SF = result < 0
}

// Step executes one instruction.
func (c *CPU) Step() error {
	if c.Halted {
		return nil
	}
	if c.Steps >= c.stepLimit {
		return c.fault("%w", ErrStepLimit)
	}
	if c.PC < 0 || c.PC >= len(c.prog.Instrs) {
		return fmt.Errorf("pc %d outside program", c.PC)
	}
	c.Steps++

	in := c.prog.Instrs[c.PC]
	next := c.PC + 1
	args := in.Args

	switch in.Op {
	case OpMOV:
		v, err := c.get(args[1])
		if err != nil {
			return err
		}
		if err := c.set(args[0], v); err != nil {
			return err
		}

	case OpMOVZB:
		v, err := c.get(args[1])
		if err != nil {
			return err
		}
		if err := c.set(args[0], v&0xff); err != nil {
			return err
		}

	case OpLEA:
		a, err := c.addr(args[1])
		if err != nil {
			return err
		}
		if err := c.set(args[0], a); err != nil {
			return err
		}

	case OpPUSH:
		v, err := c.get(args[0])
		if err != nil {
			return err
		}
		if err := c.push(v); err != nil {
			return err
		}

	case OpPOP:
		v, err := c.pop()
		if err != nil {
			return err
		}
		if err := c.set(args[0], v); err != nil {
			return err
		}

	case OpADD, OpSUB, OpIMUL, OpCMP:
		a, err := c.get(args[0])
		if err != nil {
			return err
		}
		b, err := c.get(args[1])
		if err != nil {
			return err
		}
		var result int64
		switch in.Op {
		case OpADD:
			result = a + b
			c.OF = (a >= 0) == (b >= 0) && (result >= 0) != (a >= 0)
		case OpSUB, OpCMP:
			result = a - b
			c.OF = (a >= 0) != (b >= 0) && (result >= 0) != (a >= 0)
		case OpIMUL:
			result = a * b
			c.OF = a != 0 && (result/a != b || (a == -1 && b == math.MinInt64))
		}
		c.updateFlags(result)
		if in.Op != OpCMP {
			if err := c.set(args[0], result); err != nil {
				return err
			}
		}

	case OpCQO:
		c.Regs[RDX] = c.Regs[RAX] >> 63

	case OpIDIV:
		d, err := c.get(args[0])
		if err != nil {
			return err
		}
		if d == 0 {
			return c.fault("%w", ErrDivideByZero)
		}
		n := c.Regs[RAX]
		if c.Regs[RDX] != n>>63 {
			return c.fault("rdx is not the sign extension of rax")
		}
		if n == math.MinInt64 && d == -1 {
			return c.fault("division overflow")
		}
		c.Regs[RAX] = n / d
		c.Regs[RDX] = n % d

	case OpNEG:
		v, err := c.get(args[0])
		if err != nil {
			return err
		}
		c.OF = v == math.MinInt64
		c.updateFlags(-v)
		if err := c.set(args[0], -v); err != nil {
			return err
		}

	case OpSETE, OpSETNE, OpSETL, OpSETLE:
		var cond bool
		switch in.Op {
		case OpSETE:
			cond = c.ZF
		case OpSETNE:
			cond = !c.ZF
		case OpSETL:
			cond = c.SF != c.OF
		case OpSETLE:
			cond = c.ZF || c.SF != c.OF
		}
		var v int64
		if cond {
			v = 1
		}
		if err := c.set(args[0], v); err != nil {
			return err
		}

	case OpJE:
		if c.ZF {
			next = args[0].Target
		}

	case OpJMP:
		next = args[0].Target

	case OpCALL:
		if c.Regs[RSP]%16 != 0 {
			return c.fault("misaligned stack at call to %s", args[0].Label)
		}
		target := args[0]
		if target.Target < 0 {
			if err := c.callExtern(target.Label); err != nil {
				return err
			}
			break
		}
		if err := c.push(int64(next)); err != nil {
			return err
		}
		next = target.Target

	case OpRET:
		ret, err := c.pop()
		if err != nil {
			return err
		}
		if ret == haltAddr {
			c.Halted = true
			return nil
		}
		next = int(ret)

	default:
		return c.fault("unknown instruction %s", in.Op)
	}

	c.PC = next
	return nil
}

func (c *CPU) callExtern(name string) error {
	fn, ok := c.externs[name]
	if !ok {
		return c.fault("call to undefined function %s", name)
	}
	var args [6]int64
	for i, r := range ArgRegs {
		args[i] = c.Regs[r]
	}
	rax, err := fn(args)
	if err != nil {
		return c.fault("%s: %w", name, err)
	}
	c.Regs[RAX] = rax
	return nil
}

// Run calls entry with the given arguments and executes until it returns.
// It returns the final rax.
func (c *CPU) Run(entry string, args ...int64) (int64, error) {
	pc, ok := c.prog.Labels[entry]
	if !ok {
		return 0, fmt.Errorf("undefined entry point %q", entry)
	}
	if len(args) > len(ArgRegs) {
		return 0, fmt.Errorf("too many arguments for %s: %d", entry, len(args))
	}

	c.Regs = [NumRegs]int64{}
	for i, v := range args {
		c.Regs[ArgRegs[i]] = v
	}
	c.Regs[RSP] = c.stackTop()
	c.Halted = false
	c.Steps = 0
	c.PC = pc

	// The entry sees the stack as if it had been called from aligned code.
	if err := c.push(haltAddr); err != nil {
		return 0, err
	}

	for !c.Halted {
		if err := c.Step(); err != nil {
			return 0, err
		}
	}
	return c.Regs[RAX], nil
}
