// Package asm reads the Intel-syntax assembly produced by the compiler into
// a cpu.Program.
package asm

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"ktcc/pkg/cpu"
)

// opInfo describes the operand count of a mnemonic.
type opInfo struct {
	op    cpu.Op
	nargs int
}

var mnemonics = map[string]opInfo{
	"mov":   {cpu.OpMOV, 2},
	"movzb": {cpu.OpMOVZB, 2},
	"lea":   {cpu.OpLEA, 2},
	"push":  {cpu.OpPUSH, 1},
	"pop":   {cpu.OpPOP, 1},
	"add":   {cpu.OpADD, 2},
	"sub":   {cpu.OpSUB, 2},
	"imul":  {cpu.OpIMUL, 2},
	"cqo":   {cpu.OpCQO, 0},
	"idiv":  {cpu.OpIDIV, 1},
	"neg":   {cpu.OpNEG, 1},
	"cmp":   {cpu.OpCMP, 2},
	"sete":  {cpu.OpSETE, 1},
	"setne": {cpu.OpSETNE, 1},
	"setl":  {cpu.OpSETL, 1},
	"setle": {cpu.OpSETLE, 1},
	"je":    {cpu.OpJE, 1},
	"jmp":   {cpu.OpJMP, 1},
	"call":  {cpu.OpCALL, 1},
	"ret":   {cpu.OpRET, 0},
}

var registers = map[string]cpu.Reg{
	"rax": cpu.RAX,
	"rdi": cpu.RDI,
	"rsi": cpu.RSI,
	"rdx": cpu.RDX,
	"rcx": cpu.RCX,
	"r8":  cpu.R8,
	"r9":  cpu.R9,
	"rbp": cpu.RBP,
	"rsp": cpu.RSP,
}

type Assembler struct {
	labels  map[string]int
	globals []string
}

type parsedLine struct {
	lineNo   int
	labels   []string
	mnemonic string
	operands []string
}

func NewAssembler() *Assembler {
	return &Assembler{
		labels: make(map[string]int),
	}
}

func Assemble(code string) (*cpu.Program, error) {
	return NewAssembler().Assemble(code)
}

func (a *Assembler) Assemble(code string) (*cpu.Program, error) {
	lines := strings.Split(code, "\n")

	if err := a.pass1(lines); err != nil {
		return nil, err
	}

	return a.pass2(lines)
}

// pass1 assigns every label the index of the next instruction and handles
// directives.
func (a *Assembler) pass1(lines []string) error {
	index := 0

	for i, raw := range lines {
		lineNo := i + 1
		p, err := parseLine(raw, lineNo)
		if err != nil {
			return err
		}

		for _, lbl := range p.labels {
			if _, exists := a.labels[lbl]; exists {
				return fmt.Errorf("duplicate label '%s' on line %d", lbl, lineNo)
			}
			a.labels[lbl] = index
		}

		if p.mnemonic == "" {
			continue
		}

		if strings.HasPrefix(p.mnemonic, ".") {
			if err := a.directive(p); err != nil {
				return err
			}
			continue
		}

		if _, ok := mnemonics[p.mnemonic]; !ok {
			return fmt.Errorf("unknown instruction on line %d: %s", lineNo, p.mnemonic)
		}
		index++
	}

	for _, g := range a.globals {
		if _, ok := a.labels[g]; !ok {
			return fmt.Errorf("global symbol '%s' is not defined", g)
		}
	}
	return nil
}

func (a *Assembler) directive(p parsedLine) error {
	switch p.mnemonic {
	case ".intel_syntax":
		if len(p.operands) != 1 || p.operands[0] != "noprefix" {
			return fmt.Errorf(".intel_syntax expects noprefix on line %d", p.lineNo)
		}
	case ".globl":
		if len(p.operands) != 1 || !isIdentifier(p.operands[0]) {
			return fmt.Errorf(".globl expects one symbol on line %d", p.lineNo)
		}
		a.globals = append(a.globals, p.operands[0])
	case ".text":
	default:
		return fmt.Errorf("unknown directive on line %d: %s", p.lineNo, p.mnemonic)
	}
	return nil
}

// pass2 decodes instructions and resolves label operands.
func (a *Assembler) pass2(lines []string) (*cpu.Program, error) {
	prog := &cpu.Program{
		Labels:  a.labels,
		Globals: a.globals,
	}
	externs := make(map[string]bool)

	for i, raw := range lines {
		lineNo := i + 1
		p, err := parseLine(raw, lineNo)
		if err != nil {
			return nil, err
		}
		if p.mnemonic == "" || strings.HasPrefix(p.mnemonic, ".") {
			continue
		}

		info := mnemonics[p.mnemonic]
		if len(p.operands) != info.nargs {
			return nil, fmt.Errorf("%s expects %d operands on line %d", p.mnemonic, info.nargs, lineNo)
		}

		in := cpu.Instruction{Op: info.op, Line: lineNo}
		for _, tok := range p.operands {
			var o cpu.Operand
			switch info.op {
			case cpu.OpJE, cpu.OpJMP, cpu.OpCALL:
				o, err = a.parseTarget(tok, info.op, lineNo)
				if err == nil && o.Target < 0 {
					externs[o.Label] = true
				}
			default:
				o, err = parseOperand(tok, lineNo)
			}
			if err != nil {
				return nil, err
			}
			in.Args = append(in.Args, o)
		}

		if err := checkOperands(in, p.mnemonic); err != nil {
			return nil, err
		}
		prog.Instrs = append(prog.Instrs, in)
	}

	for name := range externs {
		prog.Externs = append(prog.Externs, name)
	}
	sort.Strings(prog.Externs)
	return prog, nil
}

// checkOperands rejects operand shapes the emulator cannot execute.
func checkOperands(in cpu.Instruction, mnemonic string) error {
	args := in.Args
	switch in.Op {
	case cpu.OpLEA:
		if args[0].Kind != cpu.KindReg || args[1].Kind != cpu.KindMem {
			return fmt.Errorf("lea expects a register and a memory operand on line %d", in.Line)
		}
	case cpu.OpSETE, cpu.OpSETNE, cpu.OpSETL, cpu.OpSETLE:
		if args[0].Kind != cpu.KindReg8 {
			return fmt.Errorf("%s expects a byte register on line %d", mnemonic, in.Line)
		}
	}
	if len(args) == 2 {
		if args[0].Kind == cpu.KindImm {
			return fmt.Errorf("%s cannot write to an immediate on line %d", mnemonic, in.Line)
		}
		if args[0].Kind == cpu.KindMem && args[1].Kind == cpu.KindMem {
			return fmt.Errorf("%s cannot take two memory operands on line %d", mnemonic, in.Line)
		}
	}
	if len(args) == 1 && (in.Op == cpu.OpPOP || in.Op == cpu.OpNEG) && args[0].Kind == cpu.KindImm {
		return fmt.Errorf("%s cannot write to an immediate on line %d", mnemonic, in.Line)
	}
	return nil
}

func parseLine(raw string, lineNo int) (parsedLine, error) {
	p := parsedLine{lineNo: lineNo}

	line := strings.TrimSpace(stripComments(raw))
	if line == "" {
		return p, nil
	}

	for {
		colon := strings.IndexByte(line, ':')
		if colon <= 0 {
			break
		}

		beforeColon := strings.TrimSpace(line[:colon])
		if strings.ContainsAny(beforeColon, " \t,[") {
			break
		}
		if !isIdentifier(beforeColon) {
			return p, fmt.Errorf("invalid label '%s' on line %d", beforeColon, lineNo)
		}

		p.labels = append(p.labels, beforeColon)
		line = strings.TrimSpace(line[colon+1:])
		if line == "" {
			return p, nil
		}
	}

	mnemonic, rest := line, ""
	if sp := strings.IndexAny(line, " \t"); sp >= 0 {
		mnemonic, rest = line[:sp], strings.TrimSpace(line[sp:])
	}
	p.mnemonic = strings.ToLower(mnemonic)
	if rest != "" {
		for _, op := range strings.Split(rest, ",") {
			op = strings.TrimSpace(op)
			if op == "" {
				return p, fmt.Errorf("empty operand on line %d", lineNo)
			}
			p.operands = append(p.operands, op)
		}
	}
	return p, nil
}

// stripComments removes a trailing # or // comment.
func stripComments(line string) string {
	hash := strings.Index(line, "#")
	doubleSlash := strings.Index(line, "//")

	cut := -1
	if hash >= 0 {
		cut = hash
	}
	if doubleSlash >= 0 && (cut == -1 || doubleSlash < cut) {
		cut = doubleSlash
	}
	if cut >= 0 {
		return line[:cut]
	}
	return line
}

// parseOperand decodes a register, the byte register al, an immediate, or
// a [reg], [reg+disp] or [reg-disp] memory reference.
func parseOperand(token string, lineNo int) (cpu.Operand, error) {
	if token == "al" {
		return cpu.Operand{Kind: cpu.KindReg8, Reg: cpu.RAX}, nil
	}
	if r, ok := registers[token]; ok {
		return cpu.Operand{Kind: cpu.KindReg, Reg: r}, nil
	}

	if strings.HasPrefix(token, "[") {
		if !strings.HasSuffix(token, "]") {
			return cpu.Operand{}, fmt.Errorf("unterminated memory operand '%s' on line %d", token, lineNo)
		}
		inner := strings.ReplaceAll(token[1:len(token)-1], " ", "")
		base, disp := inner, ""
		if i := strings.IndexAny(inner, "+-"); i > 0 {
			base, disp = inner[:i], inner[i:]
		}
		r, ok := registers[base]
		if !ok {
			return cpu.Operand{}, fmt.Errorf("invalid base register '%s' on line %d", base, lineNo)
		}
		o := cpu.Operand{Kind: cpu.KindMem, Reg: r}
		if disp != "" {
			v, err := strconv.ParseInt(strings.TrimPrefix(disp, "+"), 0, 64)
			if err != nil {
				return cpu.Operand{}, fmt.Errorf("invalid displacement '%s' on line %d", disp, lineNo)
			}
			o.Imm = v
		}
		return o, nil
	}

	if v, err := strconv.ParseInt(token, 0, 64); err == nil {
		return cpu.Operand{Kind: cpu.KindImm, Imm: v}, nil
	}

	return cpu.Operand{}, fmt.Errorf("invalid operand '%s' on line %d", token, lineNo)
}

// parseTarget resolves a jump or call target. Jumps must land on a label
// defined in this unit; calls to unknown symbols become externals.
func (a *Assembler) parseTarget(token string, op cpu.Op, lineNo int) (cpu.Operand, error) {
	if !isIdentifier(token) {
		return cpu.Operand{}, fmt.Errorf("invalid label '%s' on line %d", token, lineNo)
	}
	o := cpu.Operand{Kind: cpu.KindLabel, Label: token, Target: -1}
	if idx, ok := a.labels[token]; ok {
		o.Target = idx
		return o, nil
	}
	if op != cpu.OpCALL {
		return cpu.Operand{}, fmt.Errorf("undefined label '%s' on line %d", token, lineNo)
	}
	return o, nil
}

// isIdentifier reports whether s is a valid symbol: letters, digits, '_'
// and '.', not starting with a digit.
func isIdentifier(s string) bool {
	if s == "" {
		return false
	}

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '_' || c == '.':
		case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z':
		case '0' <= c && c <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}

	return true
}
