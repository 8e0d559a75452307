package compiler

import "fmt"

// TokenKind identifies the category of a lexed token.
type TokenKind int

const (
	EOF     TokenKind = iota // sentinel: end of input
	IDENT                    // identifier
	NUM                      // decimal integer literal
	KEYWORD                  // reserved word
	PUNCT                    // punctuator
)

// tokenNames is indexed by TokenKind.
var tokenNames = [...]string{
	EOF:     "EOF",
	IDENT:   "IDENT",
	NUM:     "NUM",
	KEYWORD: "KEYWORD",
	PUNCT:   "PUNCT",
}

func (k TokenKind) String() string {
	if int(k) >= 0 && int(k) < len(tokenNames) {
		return tokenNames[k]
	}
	return fmt.Sprintf("TokenKind(%d)", int(k))
}

// Token is a single lexical unit produced by Tokenize.
//
// Lexeme is a substring of the source text, so it shares the source's
// backing memory and is never modified.
type Token struct {
	Kind   TokenKind
	Val    int64  // value of a NUM token
	Lexeme string // the exact source text that was matched
	Pos    int    // byte offset of the first character
	Line   int    // 1-based source line
}

// Len returns the token's length in bytes.
func (t *Token) Len() int { return len(t.Lexeme) }

// Is reports whether the token is a punctuator or keyword spelled s.
func (t *Token) Is(s string) bool {
	return (t.Kind == PUNCT || t.Kind == KEYWORD) && t.Lexeme == s
}

func (t Token) String() string {
	return fmt.Sprintf("%-8s %-10q  offset %d", t.Kind, t.Lexeme, t.Pos)
}
