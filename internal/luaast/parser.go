package luaast

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"lua51.dev/vm/internal/lualex"
)

// depthLimit bounds recursion through nested expressions, statements,
// and function bodies, mirroring upstream Lua's LUAI_MAXCCALLS.
const depthLimit = 200

var errDepthExceeded = errors.New("recursion depth exceeded")

// Source identifies the origin of a parsed chunk, used in error
// messages and stored on the resulting chunk's FunctionBody.
type Source string

func (src Source) String() string {
	if src == "" {
		return "?"
	}
	return string(src)
}

// DisplayName formats src for an error-message prefix: "@file" and
// "=name" sources display without their marker byte.
func (src Source) DisplayName() string {
	s := src.String()
	if len(s) > 0 && (s[0] == '@' || s[0] == '=') {
		return s[1:]
	}
	return s
}

// SyntaxError is a single parse error, associated with the token that
// triggered it.
type SyntaxError struct {
	Source   Source
	Position lualex.Position
	Msg      string
}

func (e *SyntaxError) Error() string {
	sb := new(strings.Builder)
	sb.WriteString(e.Source.DisplayName())
	if e.Position.IsValid() {
		sb.WriteString(":")
		sb.WriteString(e.Position.String())
	}
	sb.WriteString(": ")
	sb.WriteString(e.Msg)
	return sb.String()
}

// Parse converts Lua 5.1 source into an AST for the main chunk, which
// is always vararg. Parse recovers from syntax errors by synchronizing
// at statement boundaries, so it can return both a (partial) chunk and
// a non-nil error describing every problem found; callers that only
// care about the first error can stop at err.
func Parse(name Source, r io.ByteScanner) (*FunctionBody, error) {
	p := &parser{
		source: name,
		ls:     lualex.NewScanner(r),
	}
	p.advance()

	body := &FunctionBody{IsVararg: true}
	body.Body, _ = p.block()
	if p.curr.Kind != lualex.EOFToken {
		p.errorAt(p.curr, "'<eof>' expected")
	}
	body.EndLine = p.curr.Position.Line

	if len(p.errs) > 0 {
		return body, errors.Join(p.errs...)
	}
	return body, nil
}

// parser is the in-progress state of a single Parse call.
type parser struct {
	source  Source
	ls      *lualex.Scanner
	curr    lualex.Token
	next    lualex.Token
	hasNext bool
	lexErr  error

	depth int
	errs  []error
}

func (p *parser) advance() {
	if p.hasNext {
		p.curr = p.next
		p.hasNext = false
		return
	}
	tok, err := p.ls.Scan()
	if err != nil {
		p.lexErr = err
		p.curr = lualex.Token{Kind: lualex.ErrorToken, Position: tok.Position}
		p.errorAt(p.curr, err.Error())
		return
	}
	p.curr = tok
}

func (p *parser) peek() lualex.Token {
	if !p.hasNext {
		tok, err := p.ls.Scan()
		if err != nil {
			p.lexErr = err
			tok = lualex.Token{Kind: lualex.ErrorToken, Position: tok.Position}
		}
		p.next = tok
		p.hasNext = true
	}
	return p.next
}

func (p *parser) errorAt(tok lualex.Token, format string, args ...any) {
	p.errs = append(p.errs, &SyntaxError{
		Source:   p.source,
		Position: tok.Position,
		Msg:      fmt.Sprintf(format, args...),
	})
}

func (p *parser) check(k lualex.TokenKind) bool {
	return p.curr.Kind == k
}

// expect reports an error if the current token is not k, and advances
// past the current token only when it is k.
func (p *parser) expect(k lualex.TokenKind) lualex.Token {
	tok := p.curr
	if p.curr.Kind != k {
		p.errorAt(p.curr, "%v expected near %v", k, p.curr)
	} else {
		p.advance()
	}
	return tok
}

func (p *parser) accept(k lualex.TokenKind) bool {
	if p.curr.Kind != k {
		return false
	}
	p.advance()
	return true
}

var blockFollowSet = map[lualex.TokenKind]bool{
	lualex.EOFToken:    true,
	lualex.EndToken:    true,
	lualex.ElseToken:   true,
	lualex.ElseifToken: true,
	lualex.UntilToken:  true,
}

func isBlockFollow(k lualex.TokenKind) bool {
	return blockFollowSet[k]
}

// statementStartSet names the tokens isBlockFollow doesn't cover that
// legitimately start a new statement; used for error-recovery
// synchronization.
var statementStartSet = map[lualex.TokenKind]bool{
	lualex.FunctionToken: true,
	lualex.LocalToken:    true,
	lualex.IfToken:       true,
	lualex.WhileToken:    true,
	lualex.ForToken:      true,
	lualex.RepeatToken:   true,
	lualex.ReturnToken:   true,
	lualex.BreakToken:    true,
	lualex.DoToken:       true,
}

// synchronize skips tokens until a likely statement boundary, after a
// statement-level parse error. It never consumes EOF.
func (p *parser) synchronize() {
	for {
		if p.curr.Kind == lualex.EOFToken {
			return
		}
		if isBlockFollow(p.curr.Kind) || statementStartSet[p.curr.Kind] {
			return
		}
		if p.curr.Kind == lualex.SemiToken {
			p.advance()
			return
		}
		p.advance()
	}
}

func (p *parser) enter() bool {
	p.depth++
	if p.depth > depthLimit {
		p.errorAt(p.curr, "%v", errDepthExceeded)
		return false
	}
	return true
}

func (p *parser) leave() {
	p.depth--
}

// ---- Blocks and statements ----

func (p *parser) block() (*Block, error) {
	if !p.enter() {
		return &Block{}, errDepthExceeded
	}
	defer p.leave()

	b := &Block{}
	for !isBlockFollow(p.curr.Kind) {
		if p.curr.Kind == lualex.ReturnToken {
			s, err := p.returnStatement()
			if s != nil {
				b.Stmts = append(b.Stmts, s)
			}
			if err != nil {
				p.synchronize()
			}
			break
		}
		s, err := p.statement()
		if err != nil {
			p.synchronize()
			continue
		}
		if s != nil {
			b.Stmts = append(b.Stmts, s)
		}
	}
	return b, nil
}

func (p *parser) statement() (Stmt, error) {
	switch p.curr.Kind {
	case lualex.SemiToken:
		p.advance()
		return nil, nil
	case lualex.IfToken:
		return p.ifStatement()
	case lualex.WhileToken:
		return p.whileStatement()
	case lualex.DoToken:
		pos := p.curr.Position
		p.advance()
		body, err := p.block()
		p.expect(lualex.EndToken)
		return &DoStmt{Position: pos, Body: body}, err
	case lualex.ForToken:
		return p.forStatement()
	case lualex.RepeatToken:
		return p.repeatStatement()
	case lualex.FunctionToken:
		return p.functionStatement()
	case lualex.LocalToken:
		return p.localStatement()
	case lualex.BreakToken:
		pos := p.curr.Position
		p.advance()
		return &BreakStmt{Position: pos}, nil
	default:
		return p.exprStatement()
	}
}

func (p *parser) ifStatement() (Stmt, error) {
	pos := p.curr.Position
	p.advance() // 'if'
	cond, err := p.expr()
	if err != nil {
		return nil, err
	}
	p.expect(lualex.ThenToken)
	then, err := p.block()
	if err != nil {
		return nil, err
	}
	stmt := &IfStmt{Position: pos, Cond: cond, Then: then}

	switch p.curr.Kind {
	case lualex.ElseifToken:
		elseif, err := p.ifStatement()
		stmt.Else = elseif
		return stmt, err
	case lualex.ElseToken:
		elsePos := p.curr.Position
		p.advance()
		elseBlock, err := p.block()
		stmt.Else = &ElseBlock{Position: elsePos, Body: elseBlock}
		p.expect(lualex.EndToken)
		return stmt, err
	default:
		p.expect(lualex.EndToken)
		return stmt, nil
	}
}

func (p *parser) whileStatement() (Stmt, error) {
	pos := p.curr.Position
	p.advance()
	cond, err := p.expr()
	if err != nil {
		return nil, err
	}
	p.expect(lualex.DoToken)
	body, err := p.block()
	p.expect(lualex.EndToken)
	return &WhileStmt{Position: pos, Cond: cond, Body: body}, err
}

func (p *parser) repeatStatement() (Stmt, error) {
	pos := p.curr.Position
	p.advance()
	body, err := p.block()
	if err != nil {
		return nil, err
	}
	p.expect(lualex.UntilToken)
	cond, err := p.expr()
	return &RepeatStmt{Position: pos, Body: body, Cond: cond}, err
}

func (p *parser) forStatement() (Stmt, error) {
	pos := p.curr.Position
	p.advance() // 'for'
	firstName := p.expect(lualex.IdentifierToken)

	if p.curr.Kind == lualex.AssignToken {
		p.advance()
		start, err := p.expr()
		if err != nil {
			return nil, err
		}
		p.expect(lualex.CommaToken)
		stop, err := p.expr()
		if err != nil {
			return nil, err
		}
		var step Expr
		if p.accept(lualex.CommaToken) {
			step, err = p.expr()
			if err != nil {
				return nil, err
			}
		}
		p.expect(lualex.DoToken)
		body, err := p.block()
		p.expect(lualex.EndToken)
		return &NumericForStmt{
			Position: pos,
			Name:     firstName.Value,
			Start:    start,
			Stop:     stop,
			Step:     step,
			Body:     body,
		}, err
	}

	names := []string{firstName.Value}
	for p.accept(lualex.CommaToken) {
		names = append(names, p.expect(lualex.IdentifierToken).Value)
	}
	p.expect(lualex.InToken)
	exprs, err := p.exprList()
	if err != nil {
		return nil, err
	}
	p.expect(lualex.DoToken)
	body, err := p.block()
	p.expect(lualex.EndToken)
	return &GenericForStmt{Position: pos, Names: names, Exprs: exprs, Body: body}, err
}

func (p *parser) functionStatement() (Stmt, error) {
	pos := p.curr.Position
	p.advance() // 'function'
	target := []string{p.expect(lualex.IdentifierToken).Value}
	for p.accept(lualex.DotToken) {
		target = append(target, p.expect(lualex.IdentifierToken).Value)
	}
	method := ""
	if p.accept(lualex.ColonToken) {
		method = p.expect(lualex.IdentifierToken).Value
	}
	body, err := p.functionBody(pos, method != "")
	return &FunctionStmt{Position: pos, Target: target, Method: method, Body: body}, err
}

func (p *parser) localStatement() (Stmt, error) {
	pos := p.curr.Position
	p.advance() // 'local'
	if p.accept(lualex.FunctionToken) {
		name := p.expect(lualex.IdentifierToken).Value
		body, err := p.functionBody(pos, false)
		return &LocalFunctionStmt{Position: pos, Name: name, Body: body}, err
	}

	names := []string{p.expect(lualex.IdentifierToken).Value}
	for p.accept(lualex.CommaToken) {
		names = append(names, p.expect(lualex.IdentifierToken).Value)
	}
	var init []Expr
	var err error
	if p.accept(lualex.AssignToken) {
		init, err = p.exprList()
	}
	return &LocalStmt{Position: pos, Names: names, Init: init}, err
}

func (p *parser) returnStatement() (Stmt, error) {
	pos := p.curr.Position
	p.advance() // 'return'
	var exprs []Expr
	var err error
	if !isBlockFollow(p.curr.Kind) && p.curr.Kind != lualex.SemiToken {
		exprs, err = p.exprList()
	}
	p.accept(lualex.SemiToken)
	return &ReturnStmt{Position: pos, Exprs: exprs}, err
}

// exprStatement parses either an assignment or a standalone call.
func (p *parser) exprStatement() (Stmt, error) {
	pos := p.curr.Position
	first, err := p.suffixedExpr()
	if err != nil {
		return nil, err
	}

	if p.curr.Kind != lualex.AssignToken && p.curr.Kind != lualex.CommaToken {
		call, ok := first.(*CallExpr)
		if !ok {
			p.errorAt(p.curr, "syntax error (expression used as a statement)")
			return nil, errors.New("syntax error")
		}
		return &CallStmt{Position: pos, Call: call}, nil
	}

	lhs := []Expr{first}
	for p.accept(lualex.CommaToken) {
		next, err := p.suffixedExpr()
		if err != nil {
			return nil, err
		}
		lhs = append(lhs, next)
	}
	for _, target := range lhs {
		switch target.(type) {
		case *NameExpr, *IndexExpr:
		default:
			p.errorAt(lualex.Token{Position: target.Pos()}, "cannot assign to this expression")
		}
	}
	p.expect(lualex.AssignToken)
	rhs, err := p.exprList()
	return &AssignStmt{Position: pos, LHS: lhs, RHS: rhs}, err
}

func (p *parser) functionBody(pos lualex.Position, isMethod bool) (*FunctionBody, error) {
	if !p.enter() {
		return &FunctionBody{Position: pos}, errDepthExceeded
	}
	defer p.leave()

	p.expect(lualex.LParenToken)
	var params []string
	if isMethod {
		params = append(params, "self")
	}
	isVararg := false
	if p.curr.Kind != lualex.RParenToken {
		for {
			if p.accept(lualex.VarargToken) {
				isVararg = true
				break
			}
			params = append(params, p.expect(lualex.IdentifierToken).Value)
			if !p.accept(lualex.CommaToken) {
				break
			}
		}
	}
	p.expect(lualex.RParenToken)
	body, err := p.block()
	endLine := p.curr.Position.Line
	p.expect(lualex.EndToken)
	return &FunctionBody{
		Position: pos,
		EndLine:  endLine,
		Params:   params,
		IsVararg: isVararg,
		Body:     body,
	}, err
}

// ---- Expressions ----

// exprList parses a comma-separated, non-empty list of expressions.
func (p *parser) exprList() ([]Expr, error) {
	first, err := p.expr()
	if err != nil {
		return nil, err
	}
	exprs := []Expr{first}
	for p.accept(lualex.CommaToken) {
		next, err := p.expr()
		if err != nil {
			return exprs, err
		}
		exprs = append(exprs, next)
	}
	return exprs, nil
}

// binaryPrecedence holds (left, right) binding powers per spec §4.2's
// precedence table. Right-associative operators (`..`, `^`) have a
// right power one less than their left power.
type precPair struct{ left, right int }

var binaryPrec = map[lualex.TokenKind]struct {
	op   BinaryOp
	prec precPair
}{
	lualex.OrToken:           {OpOr, precPair{1, 1}},
	lualex.AndToken:          {OpAnd, precPair{2, 2}},
	lualex.LessToken:         {OpLess, precPair{3, 3}},
	lualex.GreaterToken:      {OpGreater, precPair{3, 3}},
	lualex.LessEqualToken:    {OpLessEq, precPair{3, 3}},
	lualex.GreaterEqualToken: {OpGreaterEq, precPair{3, 3}},
	lualex.NotEqualToken:     {OpNotEq, precPair{3, 3}},
	lualex.EqualToken:        {OpEq, precPair{3, 3}},
	lualex.ConcatToken:       {OpConcat, precPair{4, 3}}, // right-associative
	lualex.AddToken:          {OpAdd, precPair{5, 5}},
	lualex.SubToken:          {OpSub, precPair{5, 5}},
	lualex.MulToken:          {OpMul, precPair{6, 6}},
	lualex.DivToken:          {OpDiv, precPair{6, 6}},
	lualex.ModToken:          {OpMod, precPair{6, 6}},
	lualex.PowToken:          {OpPow, precPair{9, 8}}, // right-associative, binds tighter than unary
}

const unaryPrec = 7

// expr parses a full expression using precedence climbing, per spec
// §4.2's table (or, and, comparisons, .. , +-, */%, unary, ^, primary).
func (p *parser) expr() (Expr, error) {
	return p.subExpr(0)
}

func (p *parser) subExpr(limit int) (Expr, error) {
	if !p.enter() {
		return &NilExpr{Position: p.curr.Position}, errDepthExceeded
	}
	defer p.leave()

	var left Expr
	var err error
	switch p.curr.Kind {
	case lualex.NotToken, lualex.SubToken, lualex.LenToken:
		pos := p.curr.Position
		var op UnaryOp
		switch p.curr.Kind {
		case lualex.NotToken:
			op = OpNot
		case lualex.SubToken:
			op = OpNeg
		case lualex.LenToken:
			op = OpLen
		}
		p.advance()
		operand, operr := p.subExpr(unaryPrec)
		left, err = &UnaryExpr{Position: pos, Op: op, Operand: operand}, operr
	default:
		left, err = p.simpleExpr()
	}
	if err != nil {
		return left, err
	}

	for {
		info, ok := binaryPrec[p.curr.Kind]
		if !ok || info.prec.left <= limit {
			break
		}
		pos := p.curr.Position
		p.advance()
		right, rerr := p.subExpr(info.prec.right)
		left = &BinaryExpr{Position: pos, Op: info.op, Left: left, Right: right}
		if rerr != nil {
			return left, rerr
		}
	}
	return left, nil
}

func (p *parser) simpleExpr() (Expr, error) {
	pos := p.curr.Position
	switch p.curr.Kind {
	case lualex.NumeralToken:
		v := p.curr.Value
		p.advance()
		return &NumberExpr{Position: pos, Text: v}, nil
	case lualex.StringToken:
		v := p.curr.Value
		p.advance()
		return &StringExpr{Position: pos, Value: v}, nil
	case lualex.NilToken:
		p.advance()
		return &NilExpr{Position: pos}, nil
	case lualex.TrueToken:
		p.advance()
		return &TrueExpr{Position: pos}, nil
	case lualex.FalseToken:
		p.advance()
		return &FalseExpr{Position: pos}, nil
	case lualex.VarargToken:
		p.advance()
		return &VarargExpr{Position: pos}, nil
	case lualex.LBraceToken:
		return p.tableConstructor()
	case lualex.FunctionToken:
		p.advance()
		body, err := p.functionBody(pos, false)
		return &FunctionExpr{Body: body}, err
	default:
		return p.suffixedExpr()
	}
}

// primaryExpr parses a name or a parenthesized expression: the base of
// a chain of indexing/call suffixes.
func (p *parser) primaryExpr() (Expr, error) {
	pos := p.curr.Position
	switch p.curr.Kind {
	case lualex.IdentifierToken:
		name := p.curr.Value
		p.advance()
		return &NameExpr{Position: pos, Name: name}, nil
	case lualex.LParenToken:
		p.advance()
		inner, err := p.expr()
		if err != nil {
			return inner, err
		}
		p.expect(lualex.RParenToken)
		return &ParenExpr{Position: pos, Inner: inner}, nil
	default:
		p.errorAt(p.curr, "unexpected symbol near %v", p.curr)
		return &NilExpr{Position: pos}, errors.New("syntax error")
	}
}

// suffixedExpr parses a primary expression followed by any number of
// `.field`, `[expr]`, `:method(args)`, and call suffixes.
func (p *parser) suffixedExpr() (Expr, error) {
	e, err := p.primaryExpr()
	if err != nil {
		return e, err
	}
	for {
		pos := p.curr.Position
		switch p.curr.Kind {
		case lualex.DotToken:
			p.advance()
			field := p.expect(lualex.IdentifierToken)
			e = &IndexExpr{Position: pos, Object: e, Key: &StringExpr{Position: field.Position, Value: field.Value}}
		case lualex.LBracketToken:
			p.advance()
			key, kerr := p.expr()
			p.expect(lualex.RBracketToken)
			e = &IndexExpr{Position: pos, Object: e, Key: key}
			if kerr != nil {
				return e, kerr
			}
		case lualex.ColonToken:
			p.advance()
			method := p.expect(lualex.IdentifierToken).Value
			args, aerr := p.callArgs()
			e = &CallExpr{Position: pos, Fn: e, Method: method, Args: args}
			if aerr != nil {
				return e, aerr
			}
		case lualex.LParenToken, lualex.StringToken, lualex.LBraceToken:
			args, aerr := p.callArgs()
			e = &CallExpr{Position: pos, Fn: e, Args: args}
			if aerr != nil {
				return e, aerr
			}
		default:
			return e, nil
		}
	}
}

func (p *parser) callArgs() ([]Expr, error) {
	switch p.curr.Kind {
	case lualex.StringToken:
		pos := p.curr.Position
		v := p.curr.Value
		p.advance()
		return []Expr{&StringExpr{Position: pos, Value: v}}, nil
	case lualex.LBraceToken:
		t, err := p.tableConstructor()
		return []Expr{t}, err
	default:
		p.expect(lualex.LParenToken)
		var args []Expr
		var err error
		if p.curr.Kind != lualex.RParenToken {
			args, err = p.exprList()
		}
		p.expect(lualex.RParenToken)
		return args, err
	}
}

func (p *parser) tableConstructor() (Expr, error) {
	pos := p.curr.Position
	p.expect(lualex.LBraceToken)
	t := &TableExpr{Position: pos}
	for p.curr.Kind != lualex.RBraceToken {
		var field TableField
		var err error
		switch {
		case p.curr.Kind == lualex.LBracketToken:
			p.advance()
			field.Key, err = p.expr()
			p.expect(lualex.RBracketToken)
			if err == nil {
				p.expect(lualex.AssignToken)
				field.Value, err = p.expr()
			}
		case p.curr.Kind == lualex.IdentifierToken && p.peek().Kind == lualex.AssignToken:
			namePos := p.curr.Position
			name := p.curr.Value
			p.advance()
			p.advance() // '='
			field.Key = &StringExpr{Position: namePos, Value: name}
			field.Value, err = p.expr()
		default:
			field.Value, err = p.expr()
		}
		t.Fields = append(t.Fields, field)
		if err != nil {
			return t, err
		}
		if !p.accept(lualex.CommaToken) && !p.accept(lualex.SemiToken) {
			break
		}
	}
	p.expect(lualex.RBraceToken)
	return t, nil
}
