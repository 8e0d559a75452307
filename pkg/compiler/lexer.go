package compiler

import (
	"strconv"
	"strings"
)

// keywords is the fixed set of reserved words. Identifiers spelled exactly
// like one of these are reclassified as KEYWORD after scanning.
var keywords = map[string]bool{
	"return": true,
	"if":     true,
	"else":   true,
	"for":    true,
	"while":  true,
	"int":    true,
}

// twoCharPuncts are matched before any single-character punctuator.
var twoCharPuncts = []string{"==", "!=", "<=", ">="}

// Lexer holds all mutable state for a single scanning pass over src.
type Lexer struct {
	src  string
	pos  int // index of the next byte to consume
	line int // current 1-based source line
}

func newLexer(src string) *Lexer {
	return &Lexer{src: src, line: 1}
}

func (l *Lexer) peek() byte {
	if l.pos >= len(l.src) {
		return 0
	}
	return l.src[l.pos]
}

func (l *Lexer) advance() byte {
	c := l.peek()
	if l.pos < len(l.src) {
		l.pos++
		if c == '\n' {
			l.line++
		}
	}
	return c
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\v' || c == '\f'
}

func isDigit(c byte) bool { return '0' <= c && c <= '9' }

// isIdent1 reports whether c may start an identifier.
func isIdent1(c byte) bool {
	return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || c == '_'
}

// isIdent2 reports whether c may continue an identifier.
func isIdent2(c byte) bool { return isIdent1(c) || isDigit(c) }

// isPunct reports whether c is printable, non-space ASCII that cannot be
// part of an identifier.
func isPunct(c byte) bool {
	return c > ' ' && c < 0x7f && !isIdent2(c)
}

func (l *Lexer) skipWhitespace() {
	for l.pos < len(l.src) && isSpace(l.peek()) {
		l.advance()
	}
}

// scanNumber collects a decimal integer literal.
// The first digit must still be at l.peek().
func (l *Lexer) scanNumber() (Token, error) {
	start, line := l.pos, l.line
	for isDigit(l.peek()) {
		l.advance()
	}
	lexeme := l.src[start:l.pos]
	val, err := strconv.ParseInt(lexeme, 10, 64)
	if err != nil {
		return Token{}, newError(ErrLex, l.src, start, "number out of range")
	}
	return Token{Kind: NUM, Val: val, Lexeme: lexeme, Pos: start, Line: line}, nil
}

// scanIdent collects a full identifier. Keyword classification happens
// later in convertKeywords.
func (l *Lexer) scanIdent() Token {
	start, line := l.pos, l.line
	for isIdent2(l.peek()) {
		l.advance()
	}
	return Token{Kind: IDENT, Lexeme: l.src[start:l.pos], Pos: start, Line: line}
}

// readPunct returns the length of the punctuator at the current position,
// or 0 if there is none.
func (l *Lexer) readPunct() int {
	rest := l.src[l.pos:]
	for _, p := range twoCharPuncts {
		if strings.HasPrefix(rest, p) {
			return len(p)
		}
	}
	if isPunct(l.peek()) {
		return 1
	}
	return 0
}

// nextToken skips whitespace and returns the next Token.
func (l *Lexer) nextToken() (Token, error) {
	l.skipWhitespace()
	if l.pos >= len(l.src) {
		return Token{Kind: EOF, Pos: l.pos, Line: l.line}, nil
	}

	c := l.peek()
	if isDigit(c) {
		return l.scanNumber()
	}
	if isIdent1(c) {
		return l.scanIdent(), nil
	}
	if n := l.readPunct(); n > 0 {
		tok := Token{Kind: PUNCT, Lexeme: l.src[l.pos : l.pos+n], Pos: l.pos, Line: l.line}
		for i := 0; i < n; i++ {
			l.advance()
		}
		return tok, nil
	}
	return Token{}, newError(ErrLex, l.src, l.pos, "invalid token")
}

// convertKeywords reclassifies identifiers that spell a reserved word.
func convertKeywords(tokens []Token) {
	for i := range tokens {
		if tokens[i].Kind == IDENT && keywords[tokens[i].Lexeme] {
			tokens[i].Kind = KEYWORD
		}
	}
}

// Tokenize scans src and returns all tokens including the final EOF token.
// It returns a nil slice and an *Error (kind ErrLex) on the first character
// that cannot start a token.
func Tokenize(src string) ([]Token, error) {
	l := newLexer(src)
	var tokens []Token
	for {
		tok, err := l.nextToken()
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
		if tok.Kind == EOF {
			break
		}
	}
	convertKeywords(tokens)
	return tokens, nil
}
