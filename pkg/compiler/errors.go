package compiler

import (
	"errors"
	"fmt"
	"strings"
)

// Error categories. Every *Error wraps exactly one of these, so callers can
// classify a failure with errors.Is.
var (
	ErrLex      = errors.New("lexical error")
	ErrSyntax   = errors.New("syntax error")
	ErrSemantic = errors.New("semantic error")
	ErrInternal = errors.New("internal error")
)

// Error is a fatal compilation error anchored to a position in the source.
type Error struct {
	Kind error  // one of ErrLex, ErrSyntax, ErrSemantic, ErrInternal
	Msg  string // human readable message
	Pos  int    // byte offset into Src, or -1 when no location is known
	Line int    // 1-based line of Pos
	Col  int    // 0-based column of Pos within its line
	Src  string // the full source text
}

func (e *Error) Error() string {
	if e.Pos < 0 {
		return e.Msg
	}
	return fmt.Sprintf("%d:%d: %s", e.Line, e.Col+1, e.Msg)
}

func (e *Error) Unwrap() error { return e.Kind }

// Diagnostic renders the offending source line with a caret under the
// failing column, followed by the message:
//
//	int main() { return x; }
//	                    ^ undefined variable
func (e *Error) Diagnostic() string {
	if e.Pos < 0 {
		return e.Msg
	}
	var sb strings.Builder
	sb.WriteString(lineAt(e.Src, e.Pos))
	sb.WriteByte('\n')
	sb.WriteString(strings.Repeat(" ", e.Col))
	sb.WriteString("^ ")
	sb.WriteString(e.Msg)
	return sb.String()
}

// newError builds an *Error at byte offset pos of src.
func newError(kind error, src string, pos int, format string, args ...any) *Error {
	e := &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Pos: pos, Src: src}
	if pos >= 0 {
		if pos > len(src) {
			pos = len(src)
			e.Pos = pos
		}
		e.Line = strings.Count(src[:pos], "\n") + 1
		e.Col = pos - (strings.LastIndexByte(src[:pos], '\n') + 1)
	}
	return e
}

// errorAt builds an *Error located at tok.
func errorAt(kind error, src string, tok *Token, format string, args ...any) *Error {
	if tok == nil {
		return newError(kind, src, -1, format, args...)
	}
	return newError(kind, src, tok.Pos, format, args...)
}

// lineAt returns the full source line containing byte offset pos.
func lineAt(src string, pos int) string {
	start := strings.LastIndexByte(src[:pos], '\n') + 1
	end := strings.IndexByte(src[pos:], '\n')
	if end < 0 {
		return src[start:]
	}
	return src[start : pos+end]
}

// Diagnostic renders err for a terminal: compiler errors get the source
// line and caret, anything else is returned verbatim.
func Diagnostic(err error) string {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Diagnostic()
	}
	return err.Error()
}
