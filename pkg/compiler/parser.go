package compiler

// Parser consumes the token slice produced by Tokenize and builds the
// program, resolving types as it goes.
//
// Grammar:
//
//	program       = function-def* EOF
//	function-def  = declspec declarator "{" compound-stmt
//	declspec      = "int"
//	declarator    = "*"* ident type-suffix
//	type-suffix   = ("(" func-params)?
//	func-params   = (param ("," param)*)? ")"
//	param         = declspec declarator
//	compound-stmt = (declaration | stmt)* "}"
//	declaration   = declspec (declarator ("=" expr)? ("," declarator ("=" expr)?)*)? ";"
//	stmt          = "return" expr ";"
//	              | "if" "(" expr ")" stmt ("else" stmt)?
//	              | "for" "(" (declaration | expr-stmt) expr? ";" expr? ")" stmt
//	              | "while" "(" expr ")" stmt
//	              | "{" compound-stmt
//	              | expr-stmt
//	expr-stmt     = expr? ";"
//	expr          = assign
//	assign        = equality ("=" assign)?
//	equality      = relational ("==" relational | "!=" relational)*
//	relational    = add ("<" add | "<=" add | ">" add | ">=" add)*
//	add           = mul ("+" mul | "-" mul)*
//	mul           = unary ("*" unary | "/" unary)*
//	unary         = ("+" | "-" | "*" | "&") unary | primary
//	primary       = "(" expr ")" | ident ("(" (assign ("," assign)*)? ")")? | num
type Parser struct {
	tokens []Token
	pos    int
	src    string

	// locals of the function currently being parsed
	locals *Locals
}

func NewParser(tokens []Token, src string) *Parser {
	return &Parser{tokens: tokens, src: src}
}

// Parse builds a Program from tokens. src must be the text the tokens were
// produced from; it is only used for diagnostics.
func Parse(tokens []Token, src string) (*Program, error) {
	if len(tokens) == 0 || tokens[len(tokens)-1].Kind != EOF {
		return nil, newError(ErrInternal, src, -1, "token stream is not EOF-terminated")
	}
	return NewParser(tokens, src).parseProgram()
}

func (p *Parser) fmtError(kind error, tok *Token, format string, args ...any) error {
	return errorAt(kind, p.src, tok, format, args...)
}

// peek returns the current token without consuming it. The cursor never
// moves past the EOF token.
func (p *Parser) peek() *Token {
	return &p.tokens[p.pos]
}

// peekNext returns the token after the current one.
func (p *Parser) peekNext() *Token {
	if p.pos+1 >= len(p.tokens) {
		return &p.tokens[len(p.tokens)-1]
	}
	return &p.tokens[p.pos+1]
}

// advance consumes and returns the current token.
func (p *Parser) advance() *Token {
	tok := p.peek()
	if tok.Kind != EOF {
		p.pos++
	}
	return tok
}

func (p *Parser) equal(s string) bool { return p.peek().Is(s) }

// consume advances past the current token if it is s.
func (p *Parser) consume(s string) bool {
	if p.equal(s) {
		p.advance()
		return true
	}
	return false
}

// expect consumes the current token if it is s, otherwise returns an error.
func (p *Parser) expect(s string) (*Token, error) {
	if !p.equal(s) {
		return nil, p.fmtError(ErrSyntax, p.peek(), "expected '%s'", s)
	}
	return p.advance(), nil
}

func (p *Parser) parseProgram() (*Program, error) {
	prog := &Program{}
	for p.peek().Kind != EOF {
		fn, err := p.parseFunction()
		if err != nil {
			return nil, err
		}
		prog.Funcs = append(prog.Funcs, fn)
	}
	return prog, nil
}

// parseFunction parses a function definition. Parameters are registered as
// locals before the body so the body can refer to them.
func (p *Parser) parseFunction() (*Function, error) {
	base, err := p.declspec()
	if err != nil {
		return nil, err
	}
	ty, err := p.declarator(base)
	if err != nil {
		return nil, err
	}
	if ty.Kind != TyFunc {
		return nil, p.fmtError(ErrSyntax, ty.Name, "expected a function definition")
	}

	p.locals = &Locals{}
	params := make([]*Obj, 0, len(ty.Params))
	for _, pt := range ty.Params {
		params = append(params, p.locals.Declare(pt.Name.Lexeme, pt))
	}

	lbrace, err := p.expect("{")
	if err != nil {
		return nil, err
	}
	body, err := p.compoundStmt(lbrace)
	if err != nil {
		return nil, err
	}

	fn := &Function{
		Name:   ty.Name.Lexeme,
		Body:   body,
		Locals: p.locals.Slice(),
		Params: params,
	}
	p.locals = nil
	return fn, nil
}

// declspec = "int"
func (p *Parser) declspec() (*Type, error) {
	if _, err := p.expect("int"); err != nil {
		return nil, err
	}
	return tyInt, nil
}

// declarator = "*"* ident type-suffix
func (p *Parser) declarator(ty *Type) (*Type, error) {
	for p.consume("*") {
		ty = pointerTo(ty)
	}

	name := p.peek()
	if name.Kind != IDENT {
		return nil, p.fmtError(ErrSyntax, name, "expected a variable name")
	}
	p.advance()

	ty, err := p.typeSuffix(ty)
	if err != nil {
		return nil, err
	}
	return ty.withName(name), nil
}

// type-suffix = ("(" func-params)?
func (p *Parser) typeSuffix(ty *Type) (*Type, error) {
	if p.consume("(") {
		return p.funcParams(ty)
	}
	return ty, nil
}

// func-params = (param ("," param)*)? ")"
// param       = declspec declarator
func (p *Parser) funcParams(ret *Type) (*Type, error) {
	var params []*Type
	for !p.equal(")") {
		if len(params) > 0 {
			if _, err := p.expect(","); err != nil {
				return nil, err
			}
		}
		base, err := p.declspec()
		if err != nil {
			return nil, err
		}
		pt, err := p.declarator(base)
		if err != nil {
			return nil, err
		}
		params = append(params, pt)
	}
	p.advance() // )

	fn := funcType(ret)
	fn.Params = params
	return fn, nil
}

// compoundStmt parses the statements of a block. The leading "{" has
// already been consumed and is passed in for diagnostics.
func (p *Parser) compoundStmt(lbrace *Token) (*BlockStmt, error) {
	block := &BlockStmt{stmtBase: stmtBase{At: lbrace}}
	for !p.equal("}") {
		if p.peek().Kind == EOF {
			return nil, p.fmtError(ErrSyntax, p.peek(), "expected '}'")
		}

		var s Stmt
		var err error
		if p.equal("int") {
			s, err = p.declaration()
		} else {
			s, err = p.stmt()
		}
		if err != nil {
			return nil, err
		}
		addStmtTypes(s)
		block.Body = append(block.Body, s)
	}
	p.advance() // }
	return block, nil
}

// declaration desugars into a block of assignments, one per initialised
// declarator. Each declarator appends a new local, even when the name is
// already taken.
func (p *Parser) declaration() (Stmt, error) {
	start := p.peek()
	base, err := p.declspec()
	if err != nil {
		return nil, err
	}

	block := &BlockStmt{stmtBase: stmtBase{At: start}}
	for i := 0; !p.equal(";"); i++ {
		if i > 0 {
			if _, err := p.expect(","); err != nil {
				return nil, err
			}
		}

		ty, err := p.declarator(base)
		if err != nil {
			return nil, err
		}
		v := p.locals.Declare(ty.Name.Lexeme, ty)

		if !p.equal("=") {
			continue
		}
		assignTok := p.advance()
		rhs, err := p.assign()
		if err != nil {
			return nil, err
		}
		lhs := &VarRef{exprBase: exprBase{At: ty.Name}, Var: v}
		node := newBinary(OpAssign, lhs, rhs, assignTok)
		block.Body = append(block.Body, &ExprStmt{stmtBase: stmtBase{At: assignTok}, X: node})
	}
	p.advance() // ;
	return block, nil
}

// stmt dispatches on the leading token.
func (p *Parser) stmt() (Stmt, error) {
	tok := p.peek()

	switch {
	case tok.Is("return"):
		p.advance()
		val, err := p.expr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(";"); err != nil {
			return nil, err
		}
		return &ReturnStmt{stmtBase: stmtBase{At: tok}, Value: val}, nil

	case tok.Is("if"):
		return p.parseIf()

	case tok.Is("for"):
		return p.parseFor()

	case tok.Is("while"):
		return p.parseWhile()

	case tok.Is("{"):
		p.advance()
		return p.compoundStmt(tok)
	}

	return p.exprStmt()
}

// parseIf parses if ( cond ) then [ else els ]
func (p *Parser) parseIf() (Stmt, error) {
	tok := p.advance()
	if _, err := p.expect("("); err != nil {
		return nil, err
	}
	cond, err := p.expr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(")"); err != nil {
		return nil, err
	}
	then, err := p.stmt()
	if err != nil {
		return nil, err
	}

	node := &IfStmt{stmtBase: stmtBase{At: tok}, Cond: cond, Then: then}
	if p.consume("else") {
		node.Else, err = p.stmt()
		if err != nil {
			return nil, err
		}
	}
	return node, nil
}

// parseFor parses for ( init cond? ; inc? ) body
func (p *Parser) parseFor() (Stmt, error) {
	tok := p.advance()
	if _, err := p.expect("("); err != nil {
		return nil, err
	}

	node := &ForStmt{stmtBase: stmtBase{At: tok}}
	var err error
	if p.equal("int") {
		node.Init, err = p.declaration()
	} else {
		node.Init, err = p.exprStmt()
	}
	if err != nil {
		return nil, err
	}

	if !p.equal(";") {
		if node.Cond, err = p.expr(); err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(";"); err != nil {
		return nil, err
	}

	if !p.equal(")") {
		if node.Inc, err = p.expr(); err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(")"); err != nil {
		return nil, err
	}

	if node.Body, err = p.stmt(); err != nil {
		return nil, err
	}
	return node, nil
}

// parseWhile parses while ( cond ) body as a for loop without init or inc.
func (p *Parser) parseWhile() (Stmt, error) {
	tok := p.advance()
	if _, err := p.expect("("); err != nil {
		return nil, err
	}
	cond, err := p.expr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(")"); err != nil {
		return nil, err
	}
	body, err := p.stmt()
	if err != nil {
		return nil, err
	}
	return &ForStmt{stmtBase: stmtBase{At: tok}, Cond: cond, Body: body}, nil
}

// exprStmt = expr? ";"
// An empty statement becomes an empty block.
func (p *Parser) exprStmt() (Stmt, error) {
	tok := p.peek()
	if p.consume(";") {
		return &BlockStmt{stmtBase: stmtBase{At: tok}}, nil
	}
	e, err := p.expr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(";"); err != nil {
		return nil, err
	}
	return &ExprStmt{stmtBase: stmtBase{At: tok}, X: e}, nil
}

// expr = assign
func (p *Parser) expr() (Expr, error) {
	return p.assign()
}

// assign = equality ("=" assign)?
// Assignment is right-associative.
func (p *Parser) assign() (Expr, error) {
	node, err := p.equality()
	if err != nil {
		return nil, err
	}
	if p.equal("=") {
		tok := p.advance()
		rhs, err := p.assign()
		if err != nil {
			return nil, err
		}
		return newBinary(OpAssign, node, rhs, tok), nil
	}
	return node, nil
}

// equality = relational ("==" relational | "!=" relational)*
func (p *Parser) equality() (Expr, error) {
	node, err := p.relational()
	if err != nil {
		return nil, err
	}

	for {
		tok := p.peek()
		var op BinaryOp
		switch {
		case tok.Is("=="):
			op = OpEq
		case tok.Is("!="):
			op = OpNe
		default:
			return node, nil
		}
		p.advance()
		rhs, err := p.relational()
		if err != nil {
			return nil, err
		}
		node = newBinary(op, node, rhs, tok)
	}
}

// relational = add ("<" add | "<=" add | ">" add | ">=" add)*
// a > b is built as b < a, and a >= b as b <= a.
func (p *Parser) relational() (Expr, error) {
	node, err := p.add()
	if err != nil {
		return nil, err
	}

	for {
		tok := p.peek()
		if !tok.Is("<") && !tok.Is("<=") && !tok.Is(">") && !tok.Is(">=") {
			return node, nil
		}
		p.advance()
		rhs, err := p.add()
		if err != nil {
			return nil, err
		}

		switch tok.Lexeme {
		case "<":
			node = newBinary(OpLt, node, rhs, tok)
		case "<=":
			node = newBinary(OpLe, node, rhs, tok)
		case ">":
			node = newBinary(OpLt, rhs, node, tok)
		case ">=":
			node = newBinary(OpLe, rhs, node, tok)
		}
	}
}

// add = mul ("+" mul | "-" mul)*
func (p *Parser) add() (Expr, error) {
	node, err := p.mul()
	if err != nil {
		return nil, err
	}

	for {
		tok := p.peek()
		if !tok.Is("+") && !tok.Is("-") {
			return node, nil
		}
		p.advance()
		rhs, err := p.mul()
		if err != nil {
			return nil, err
		}

		if tok.Is("+") {
			node, err = p.newAdd(node, rhs, tok)
		} else {
			node, err = p.newSub(node, rhs, tok)
		}
		if err != nil {
			return nil, err
		}
	}
}

// mul = unary ("*" unary | "/" unary)*
func (p *Parser) mul() (Expr, error) {
	node, err := p.unary()
	if err != nil {
		return nil, err
	}

	for {
		tok := p.peek()
		var op BinaryOp
		switch {
		case tok.Is("*"):
			op = OpMul
		case tok.Is("/"):
			op = OpDiv
		default:
			return node, nil
		}
		p.advance()
		rhs, err := p.unary()
		if err != nil {
			return nil, err
		}
		node = newBinary(op, node, rhs, tok)
	}
}

// unary = ("+" | "-" | "*" | "&") unary | primary
func (p *Parser) unary() (Expr, error) {
	tok := p.peek()

	var op UnaryOp
	switch {
	case tok.Is("+"):
		p.advance()
		return p.unary()
	case tok.Is("-"):
		op = OpNeg
	case tok.Is("&"):
		op = OpAddr
	case tok.Is("*"):
		op = OpDeref
	default:
		return p.primary()
	}

	p.advance()
	operand, err := p.unary()
	if err != nil {
		return nil, err
	}
	return &UnaryExpr{exprBase: exprBase{At: tok}, Op: op, Operand: operand}, nil
}

// primary = "(" expr ")" | ident ("(" args ")")? | num
func (p *Parser) primary() (Expr, error) {
	tok := p.peek()

	switch tok.Kind {
	case PUNCT:
		if tok.Is("(") {
			p.advance()
			node, err := p.expr()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(")"); err != nil {
				return nil, err
			}
			return node, nil
		}

	case IDENT:
		if p.peekNext().Is("(") {
			return p.funcall()
		}
		p.advance()
		v, ok := p.locals.Lookup(tok.Lexeme)
		if !ok {
			return nil, p.fmtError(ErrSemantic, tok, "undefined variable")
		}
		return &VarRef{exprBase: exprBase{At: tok}, Var: v}, nil

	case NUM:
		p.advance()
		return newNum(tok.Val, tok), nil
	}

	return nil, p.fmtError(ErrSyntax, tok, "expected an expression")
}

// funcall = ident "(" (assign ("," assign)*)? ")"
func (p *Parser) funcall() (Expr, error) {
	name := p.advance()
	p.advance() // (

	call := &FuncCall{exprBase: exprBase{At: name}, Name: name.Lexeme}
	for !p.equal(")") {
		if len(call.Args) > 0 {
			if _, err := p.expect(","); err != nil {
				return nil, err
			}
		}
		arg, err := p.assign()
		if err != nil {
			return nil, err
		}
		call.Args = append(call.Args, arg)
	}
	p.advance() // )
	return call, nil
}

func newNum(val int64, tok *Token) *NumLit {
	return &NumLit{exprBase: exprBase{At: tok}, Val: val}
}

func newBinary(op BinaryOp, lhs, rhs Expr, tok *Token) *BinaryExpr {
	return &BinaryExpr{exprBase: exprBase{At: tok}, Op: op, LHS: lhs, RHS: rhs}
}

// newAdd builds lhs + rhs. With a pointer operand the integer operand is
// scaled by the pointee size and the pointer is always the left operand.
func (p *Parser) newAdd(lhs, rhs Expr, tok *Token) (Expr, error) {
	addType(lhs)
	addType(rhs)
	lt, rt := lhs.Type(), rhs.Type()

	switch {
	case lt.IsInteger() && rt.IsInteger():
		return newBinary(OpAdd, lhs, rhs, tok), nil
	case lt.IsInteger() && rt.IsPointer():
		lhs, rhs = rhs, lhs
		lt = rt
	case !(lt.IsPointer() && rt.IsInteger()):
		return nil, p.fmtError(ErrSemantic, tok, "invalid operands")
	}

	// ptr + num
	scaled := newBinary(OpMul, rhs, newNum(int64(lt.Base.Size()), tok), tok)
	node := newBinary(OpAdd, lhs, scaled, tok)
	addType(node)
	return node, nil
}

// newSub builds lhs - rhs. ptr - num scales num by the pointee size;
// ptr - ptr yields the number of elements between the two pointers.
func (p *Parser) newSub(lhs, rhs Expr, tok *Token) (Expr, error) {
	addType(lhs)
	addType(rhs)
	lt, rt := lhs.Type(), rhs.Type()

	switch {
	case lt.IsInteger() && rt.IsInteger():
		return newBinary(OpSub, lhs, rhs, tok), nil

	case lt.IsPointer() && rt.IsInteger():
		scaled := newBinary(OpMul, rhs, newNum(int64(lt.Base.Size()), tok), tok)
		node := newBinary(OpSub, lhs, scaled, tok)
		addType(node)
		return node, nil

	case lt.IsPointer() && rt.IsPointer():
		diff := newBinary(OpSub, lhs, rhs, tok)
		diff.Ty = tyInt
		node := newBinary(OpDiv, diff, newNum(int64(lt.Base.Size()), tok), tok)
		addType(node)
		return node, nil
	}

	return nil, p.fmtError(ErrSemantic, tok, "invalid operands")
}
