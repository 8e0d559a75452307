// Command ktcc compiles C source files to x86-64 assembly and can run the
// result on the built-in emulator.
//
//	ktcc [-o out.s] [-run] [-locals] [-stats] [-j N] file.c ...
//	ktcc -e 'int main() { return 42; }' -run
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"

	"ktcc/pkg/asm"
	"ktcc/pkg/compiler"
	"ktcc/pkg/cpu"
)

// unit is one compilation input and its result.
type unit struct {
	name    string // file path, or "<arg>" for -e
	src     string
	outPath string // "-" for stdout

	asm     string
	session *compiler.Session
}

type options struct {
	run       bool
	locals    bool
	stats     bool
	stepLimit int
}

func main() {
	log.SetFlags(0)
	log.SetPrefix("ktcc: ")

	outPath := flag.String("o", "", "output path for a single input (- for stdout)")
	expr := flag.String("e", "", "compile source text given on the command line")
	runProgram := flag.Bool("run", false, "run main on the emulator after compiling")
	showLocals := flag.Bool("locals", false, "log each function's frame layout")
	showStats := flag.Bool("stats", false, "log compilation statistics")
	jobs := flag.Int("j", runtime.NumCPU(), "number of inputs compiled in parallel")
	stepLimit := flag.Int("steps", 0, "emulator step limit (0 for none)")
	flag.Parse()

	units, err := loadUnits(*expr, *outPath, flag.Args())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		flag.Usage()
		os.Exit(2)
	}

	if err := compileAll(context.Background(), units, *jobs); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	opts := options{run: *runProgram, locals: *showLocals, stats: *showStats, stepLimit: *stepLimit}
	for _, u := range units {
		if err := finish(u, opts); err != nil {
			log.Fatalf("%s: %v", u.name, err)
		}
	}
}

// loadUnits reads the inputs named on the command line.
func loadUnits(expr, outPath string, args []string) ([]*unit, error) {
	if expr != "" {
		if len(args) > 0 {
			return nil, fmt.Errorf("use either -e or input files, not both")
		}
		if outPath == "" {
			outPath = "-"
		}
		return []*unit{{name: "<arg>", src: expr, outPath: outPath}}, nil
	}

	if len(args) == 0 {
		return nil, fmt.Errorf("nothing to do: provide input files or -e")
	}
	if outPath != "" && len(args) > 1 {
		return nil, fmt.Errorf("-o requires a single input")
	}

	units := make([]*unit, 0, len(args))
	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read input file %q: %w", path, err)
		}
		out := outPath
		if out == "" {
			out = defaultOutputPath(path)
		}
		units = append(units, &unit{name: path, src: string(data), outPath: out})
	}
	return units, nil
}

// compileAll compiles every unit in its own session, at most jobs at a
// time. The first failure cancels the units that have not started yet.
func compileAll(ctx context.Context, units []*unit, jobs int) error {
	g, ctx := errgroup.WithContext(ctx)
	if jobs > 0 {
		g.SetLimit(jobs)
	}

	for _, u := range units {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			s := compiler.NewSession()
			out, err := s.Compile(u.src)
			if err != nil {
				return fmt.Errorf("%s:%v\n%s", u.name, err, compiler.Diagnostic(err))
			}
			u.asm, u.session = out, s
			return nil
		})
	}
	return g.Wait()
}

// finish writes a compiled unit and runs the optional reports.
func finish(u *unit, opts options) error {
	if err := writeOutput(u.outPath, u.asm); err != nil {
		return fmt.Errorf("failed to write %q: %w", u.outPath, err)
	}

	prog := u.session.Program()
	for _, name := range compiler.Unreachable(prog, "main") {
		log.Printf("%s: warning: function %s is never called", u.name, name)
	}
	if opts.locals {
		for _, fn := range prog.Funcs {
			log.Printf("%s: %s", u.name, strings.TrimRight(compiler.FrameLayout(fn), "\n"))
		}
	}
	if opts.stats {
		st := u.session.Stats()
		log.Printf("%s: %d functions, %d labels, max stack depth %d", u.name, st.Functions, st.Labels, st.MaxDepth)
	}

	if !opts.run {
		return nil
	}
	if ext := compiler.Externs(prog); len(ext) > 0 {
		return fmt.Errorf("cannot run: undefined functions %s", strings.Join(ext, ", "))
	}
	rax, err := runMain(u.asm, opts.stepLimit)
	if err != nil {
		return fmt.Errorf("run failed: %w", err)
	}
	log.Printf("%s: main returned %d", u.name, rax)
	return nil
}

func runMain(text string, stepLimit int) (int64, error) {
	prog, err := asm.Assemble(text)
	if err != nil {
		return 0, err
	}
	var opts []cpu.Option
	if stepLimit > 0 {
		opts = append(opts, cpu.WithStepLimit(stepLimit))
	}
	return cpu.New(prog, opts...).Run("main")
}

func defaultOutputPath(inPath string) string {
	ext := filepath.Ext(inPath)
	if ext == "" {
		return inPath + ".s"
	}
	return strings.TrimSuffix(inPath, ext) + ".s"
}

func writeOutput(path, text string) error {
	if path == "-" {
		_, err := fmt.Print(text)
		return err
	}
	return os.WriteFile(path, []byte(text), 0o644)
}
