package compiler

// Stats describes what a Session has compiled so far.
type Stats struct {
	Functions int // function definitions emitted
	Labels    int // .L.* label ids allocated
	MaxDepth  int // deepest evaluation stack seen
}

// Session owns the state of one compilation run. The zero value is ready
// to use. A Session must not be shared between goroutines, but separate
// Sessions are independent.
type Session struct {
	prog  *Program
	stats Stats
}

func NewSession() *Session {
	return &Session{}
}

// Compile runs the whole pipeline on src and returns the assembly text.
// On failure it returns an empty string and the first error.
func (s *Session) Compile(src string) (string, error) {
	tokens, err := Tokenize(src)
	if err != nil {
		return "", err
	}

	prog, err := Parse(tokens, src)
	if err != nil {
		return "", err
	}

	AssignLocalOffsets(prog)

	cg := newCodeGen(src)
	out, err := cg.generate(prog)
	if err != nil {
		return "", err
	}

	s.prog = prog
	s.stats.Functions += len(prog.Funcs)
	s.stats.Labels += cg.labelSeq
	if cg.maxDepth > s.stats.MaxDepth {
		s.stats.MaxDepth = cg.maxDepth
	}
	return out, nil
}

// Program returns the program from the last successful Compile, with
// offsets assigned. It is nil before the first success.
func (s *Session) Program() *Program { return s.prog }

func (s *Session) Stats() Stats { return s.stats }

// Compile compiles src in a fresh Session.
func Compile(src string) (string, error) {
	return NewSession().Compile(src)
}
