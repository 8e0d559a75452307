package asm

import (
	"fmt"
	"strings"
	"testing"
)

// smallProgram is a counting loop in the shape the compiler emits.
const smallProgram = `.intel_syntax noprefix
  .globl main
main:
  push rbp
  mov rbp, rsp
  sub rsp, 16
  lea rax, [rbp-8]
  push rax
  mov rax, 0
  pop rdi
  mov [rdi], rax
.L.begin.1:
  lea rax, [rbp-8]
  mov rax, [rax]
  push rax
  mov rax, 10
  push rax
  pop rdi
  pop rax
  cmp rax, rdi
  setl al
  movzb rax, al
  cmp rax, 0
  je .L.end.1
  jmp .L.begin.1
.L.end.1:
  lea rax, [rbp-8]
  mov rax, [rax]
  jmp .L.return.main
.L.return.main:
  mov rsp, rbp
  pop rbp
  ret
`

// largeProgram repeats a function body many times under distinct names.
var largeProgram = func() string {
	var sb strings.Builder
	sb.WriteString(".intel_syntax noprefix\n")
	for i := 0; i < 200; i++ {
		fmt.Fprintf(&sb, "  .globl f%d\nf%d:\n", i, i)
		sb.WriteString("  push rbp\n  mov rbp, rsp\n  sub rsp, 16\n  mov [rbp-8], rdi\n")
		sb.WriteString("  lea rax, [rbp-8]\n  mov rax, [rax]\n  push rax\n  mov rax, 2\n  push rax\n")
		sb.WriteString("  pop rdi\n  pop rax\n  imul rax, rdi\n")
		fmt.Fprintf(&sb, "  jmp .L.return.f%d\n.L.return.f%d:\n", i, i)
		sb.WriteString("  mov rsp, rbp\n  pop rbp\n  ret\n")
	}
	return sb.String()
}()

func BenchmarkAssemble_Small(b *testing.B) {
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := Assemble(smallProgram); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkAssemble_Large(b *testing.B) {
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := Assemble(largeProgram); err != nil {
			b.Fatal(err)
		}
	}
}
