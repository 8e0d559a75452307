package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeSource(t *testing.T, dir, name, src string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatalf("Failed to write source: %v", err)
	}
	return path
}

func TestDriverCompilesFiles(t *testing.T) {
	dir := t.TempDir()
	a := writeSource(t, dir, "a.c", "int main() { return 42; }")
	b := writeSource(t, dir, "b", "int sq(int n) { return n * n; } int main() { return sq(7); }")

	units, err := loadUnits("", "", []string{a, b})
	if err != nil {
		t.Fatalf("loadUnits failed: %v", err)
	}
	if err := compileAll(context.Background(), units, 2); err != nil {
		t.Fatalf("compileAll failed: %v", err)
	}
	for _, u := range units {
		if err := finish(u, options{run: true, stepLimit: 10_000}); err != nil {
			t.Fatalf("finish %s failed: %v", u.name, err)
		}
	}

	out, err := os.ReadFile(filepath.Join(dir, "a.s"))
	if err != nil {
		t.Fatalf("Expected a.s to be written: %v", err)
	}
	if !strings.HasPrefix(string(out), ".intel_syntax noprefix\n") {
		t.Errorf("unexpected output:\n%s", out)
	}
	if _, err := os.Stat(filepath.Join(dir, "b.s")); err != nil {
		t.Errorf("Expected b.s to be written: %v", err)
	}
}

func TestDriverReportsCompileErrors(t *testing.T) {
	dir := t.TempDir()
	good := writeSource(t, dir, "good.c", "int main() { return 0; }")
	bad := writeSource(t, dir, "bad.c", "int main() {\n  return y;\n}")

	units, err := loadUnits("", "", []string{good, bad})
	if err != nil {
		t.Fatalf("loadUnits failed: %v", err)
	}
	err = compileAll(context.Background(), units, 1)
	if err == nil {
		t.Fatal("expected a compile error")
	}
	msg := err.Error()
	if !strings.Contains(msg, "bad.c:2:10: undefined variable") {
		t.Errorf("error should name the file and position, got:\n%s", msg)
	}
	if !strings.Contains(msg, "  return y;\n         ^ undefined variable") {
		t.Errorf("error should carry a caret diagnostic, got:\n%s", msg)
	}
}

func TestDriverRefusesToRunWithExterns(t *testing.T) {
	units, err := loadUnits("int main() { return ext(); }", filepath.Join(t.TempDir(), "out.s"), nil)
	if err != nil {
		t.Fatalf("loadUnits failed: %v", err)
	}
	if err := compileAll(context.Background(), units, 1); err != nil {
		t.Fatalf("compileAll failed: %v", err)
	}
	err = finish(units[0], options{run: true})
	if err == nil || !strings.Contains(err.Error(), "undefined functions ext") {
		t.Errorf("expected undefined function error, got %v", err)
	}
}

func TestLoadUnitsErrors(t *testing.T) {
	tests := []struct {
		name    string
		expr    string
		outPath string
		args    []string
	}{
		{"Nothing", "", "", nil},
		{"ExprAndFiles", "int main() { return 0; }", "", []string{"x.c"}},
		{"OutWithManyInputs", "", "out.s", []string{"a.c", "b.c"}},
		{"MissingFile", "", "", []string{filepath.Join(t.TempDir(), "missing.c")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := loadUnits(tt.expr, tt.outPath, tt.args); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestDefaultOutputPath(t *testing.T) {
	tests := map[string]string{
		"prog.c":       "prog.s",
		"dir/prog.c":   "dir/prog.s",
		"noext":        "noext.s",
		"a.b/prog.txt": "a.b/prog.s",
	}
	for in, want := range tests {
		if got := defaultOutputPath(in); got != want {
			t.Errorf("defaultOutputPath(%q) = %q, want %q", in, got, want)
		}
	}
}
