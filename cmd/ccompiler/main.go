// Command ccompiler compiles the program given as its only argument and
// prints the assembly on stdout.
//
//	ccompiler 'int main() { return 42; }' > out.s
package main

import (
	"fmt"
	"os"

	"ktcc/pkg/compiler"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintf(os.Stderr, "usage: %s '<source>'\n", os.Args[0])
		os.Exit(1)
	}

	asm, err := compiler.Compile(os.Args[1])
	if err != nil {
		fmt.Fprintln(os.Stderr, compiler.Diagnostic(err))
		os.Exit(1)
	}

	fmt.Print(asm)
}
