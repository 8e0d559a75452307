package main

import (
	"testing"

	"ktcc/pkg/asm"
	"ktcc/pkg/compiler"
	"ktcc/pkg/cpu"
)

func TestCompilerAndCPU(t *testing.T) {
	// 1. Define C source
	source := `
int fib(int n) {
    if (n == 0) { return 0; }
    if (n == 1) { return 1; }
    return fib(n - 1) + fib(n - 2);
}

int main() {
    int limit = 6;
    int result = fib(limit);
    int *out = &result;
    *out = *out * 2;
    return result;
}
`

	// 2. Tokenize and Parse
	tokens, err := compiler.Tokenize(source)
	if err != nil {
		t.Fatalf("Tokenizing failed: %v", err)
	}

	prog, err := compiler.Parse(tokens, source)
	if err != nil {
		t.Fatalf("Parsing failed: %v", err)
	}

	// 3. Lay out frames and generate assembly
	compiler.AssignLocalOffsets(prog)
	assembly, err := compiler.Generate(prog)
	if err != nil {
		t.Fatalf("Code generation failed: %v", err)
	}

	t.Logf("Generated Assembly:\n%s", assembly)

	// 4. Assemble
	code, err := asm.Assemble(assembly)
	if err != nil {
		t.Fatalf("Assembly failed: %v", err)
	}

	// 5. Run
	vm := cpu.New(code, cpu.WithStackSize(4096), cpu.WithStepLimit(100_000))
	rax, err := vm.Run("main")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// 6. Assertions
	top := int64(cpu.StackBase + 4096)

	// fib(6) = 8, doubled through the pointer
	if rax != 16 {
		t.Errorf("Expected rax to be 16, got %d", rax)
	}

	// main's frame starts below the halt address and saved rbp; result is its second slot
	got, err := vm.Read64(top - 16 - 16)
	if err != nil {
		t.Fatalf("Read64 failed: %v", err)
	}
	if got != 16 {
		t.Errorf("Expected result slot to hold 16, got %d", got)
	}

	// Stack fully unwound, caller's rbp restored
	if vm.Regs[cpu.RSP] != top {
		t.Errorf("Expected rsp to be %#x, got %#x", top, vm.Regs[cpu.RSP])
	}
	if vm.Regs[cpu.RBP] != 0 {
		t.Errorf("Expected rbp to be 0, got %#x", vm.Regs[cpu.RBP])
	}
}

func TestCompilerAndCPU_Externs(t *testing.T) {
	source := `int main() { int x = 5; return report(x, x * 2) + 1; }`

	tokens, err := compiler.Tokenize(source)
	if err != nil {
		t.Fatalf("Tokenizing failed: %v", err)
	}
	prog, err := compiler.Parse(tokens, source)
	if err != nil {
		t.Fatalf("Parsing failed: %v", err)
	}
	if ext := compiler.Externs(prog); len(ext) != 1 || ext[0] != "report" {
		t.Fatalf("Expected report to be external, got %v", ext)
	}

	compiler.AssignLocalOffsets(prog)
	assembly, err := compiler.Generate(prog)
	if err != nil {
		t.Fatalf("Code generation failed: %v", err)
	}
	code, err := asm.Assemble(assembly)
	if err != nil {
		t.Fatalf("Assembly failed: %v", err)
	}

	var seen []int64
	report := func(args [6]int64) (int64, error) {
		seen = append(seen, args[0], args[1])
		return args[0] + args[1], nil
	}
	rax, err := cpu.New(code, cpu.WithExtern("report", report)).Run("main")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if rax != 16 {
		t.Errorf("Expected rax to be 16, got %d", rax)
	}
	if len(seen) != 2 || seen[0] != 5 || seen[1] != 10 {
		t.Errorf("Expected report(5, 10), got %v", seen)
	}
}
