package luaast

import (
	"fmt"
	"strings"

	"lua51.dev/vm/internal/lualex"
)

// Format renders a parsed chunk back to Lua source. The output
// reparses to an equivalent tree: a formatted-then-reparsed chunk
// formats to the same text again, which is the property the printer
// is tested against.
func Format(body *FunctionBody) string {
	p := &printer{}
	p.block(body.Body)
	return p.sb.String()
}

type printer struct {
	sb     strings.Builder
	indent int
}

func (p *printer) line(format string, args ...any) {
	p.sb.WriteString(strings.Repeat("\t", p.indent))
	fmt.Fprintf(&p.sb, format, args...)
	p.sb.WriteByte('\n')
}

func (p *printer) block(b *Block) {
	for _, stmt := range b.Stmts {
		p.stmt(stmt)
	}
}

func (p *printer) indented(b *Block) {
	p.indent++
	p.block(b)
	p.indent--
}

func (p *printer) stmt(stmt Stmt) {
	switch s := stmt.(type) {
	case *LocalStmt:
		if len(s.Init) == 0 {
			p.line("local %s", strings.Join(s.Names, ", "))
		} else {
			p.line("local %s = %s", strings.Join(s.Names, ", "), p.exprList(s.Init))
		}
	case *AssignStmt:
		p.line("%s = %s", p.exprList(s.LHS), p.exprList(s.RHS))
	case *CallStmt:
		p.line("%s", p.expr(s.Call, 0))
	case *DoStmt:
		p.line("do")
		p.indented(s.Body)
		p.line("end")
	case *WhileStmt:
		p.line("while %s do", p.expr(s.Cond, 0))
		p.indented(s.Body)
		p.line("end")
	case *RepeatStmt:
		p.line("repeat")
		p.indented(s.Body)
		p.line("until %s", p.expr(s.Cond, 0))
	case *IfStmt:
		p.ifChain(s, "if")
		p.line("end")
	case *NumericForStmt:
		if s.Step != nil {
			p.line("for %s = %s, %s, %s do", s.Name, p.expr(s.Start, 0), p.expr(s.Stop, 0), p.expr(s.Step, 0))
		} else {
			p.line("for %s = %s, %s do", s.Name, p.expr(s.Start, 0), p.expr(s.Stop, 0))
		}
		p.indented(s.Body)
		p.line("end")
	case *GenericForStmt:
		p.line("for %s in %s do", strings.Join(s.Names, ", "), p.exprList(s.Exprs))
		p.indented(s.Body)
		p.line("end")
	case *FunctionStmt:
		name := strings.Join(s.Target, ".")
		params := s.Body.Params
		if s.Method != "" {
			name += ":" + s.Method
			params = params[1:] // the implicit self
		}
		p.line("function %s(%s)", name, p.paramList(params, s.Body.IsVararg))
		p.indented(s.Body.Body)
		p.line("end")
	case *LocalFunctionStmt:
		p.line("local function %s(%s)", s.Name, p.paramList(s.Body.Params, s.Body.IsVararg))
		p.indented(s.Body.Body)
		p.line("end")
	case *ReturnStmt:
		if len(s.Exprs) == 0 {
			p.line("return")
		} else {
			p.line("return %s", p.exprList(s.Exprs))
		}
	case *BreakStmt:
		p.line("break")
	case *ElseBlock:
		p.block(s.Body)
	}
}

// ifChain prints an IfStmt, rendering a nested IfStmt in the else
// position as an elseif clause so the sugar survives a round trip.
func (p *printer) ifChain(s *IfStmt, keyword string) {
	p.line("%s %s then", keyword, p.expr(s.Cond, 0))
	p.indented(s.Then)
	switch e := s.Else.(type) {
	case nil:
	case *IfStmt:
		p.ifChain(e, "elseif")
	case *ElseBlock:
		p.line("else")
		p.indented(e.Body)
	}
}

func (p *printer) paramList(params []string, isVararg bool) string {
	parts := append([]string(nil), params...)
	if isVararg {
		parts = append(parts, "...")
	}
	return strings.Join(parts, ", ")
}

func (p *printer) exprList(exprs []Expr) string {
	parts := make([]string, len(exprs))
	for i, e := range exprs {
		parts[i] = p.expr(e, 0)
	}
	return strings.Join(parts, ", ")
}

// Binding powers per the parser's precedence table; atoms rank above
// every operator.
const atomPrec = 10

func exprPrec(e Expr) int {
	switch e := e.(type) {
	case *BinaryExpr:
		return binaryOpPrec(e.Op)
	case *UnaryExpr:
		return 7
	default:
		return atomPrec
	}
}

func binaryOpPrec(op BinaryOp) int {
	switch op {
	case OpOr:
		return 1
	case OpAnd:
		return 2
	case OpEq, OpNotEq, OpLess, OpLessEq, OpGreater, OpGreaterEq:
		return 3
	case OpConcat:
		return 4
	case OpAdd, OpSub:
		return 5
	case OpMul, OpDiv, OpMod:
		return 6
	case OpPow:
		return 9
	default:
		return atomPrec
	}
}

func binaryOpText(op BinaryOp) string {
	switch op {
	case OpAdd:
		return "+"
	case OpSub:
		return "-"
	case OpMul:
		return "*"
	case OpDiv:
		return "/"
	case OpMod:
		return "%"
	case OpPow:
		return "^"
	case OpConcat:
		return ".."
	case OpEq:
		return "=="
	case OpNotEq:
		return "~="
	case OpLess:
		return "<"
	case OpLessEq:
		return "<="
	case OpGreater:
		return ">"
	case OpGreaterEq:
		return ">="
	case OpAnd:
		return "and"
	case OpOr:
		return "or"
	default:
		return "?"
	}
}

func isRightAssociative(op BinaryOp) bool {
	return op == OpConcat || op == OpPow
}

// expr renders e, parenthesizing it if its precedence is below limit.
func (p *printer) expr(e Expr, limit int) string {
	out := p.exprText(e)
	if exprPrec(e) < limit {
		return "(" + out + ")"
	}
	return out
}

func (p *printer) exprText(e Expr) string {
	switch e := e.(type) {
	case *NilExpr:
		return "nil"
	case *TrueExpr:
		return "true"
	case *FalseExpr:
		return "false"
	case *VarargExpr:
		return "..."
	case *NumberExpr:
		return e.Text
	case *StringExpr:
		return lualex.Quote(e.Value)
	case *NameExpr:
		return e.Name
	case *ParenExpr:
		return "(" + p.expr(e.Inner, 0) + ")"
	case *UnaryExpr:
		op := map[UnaryOp]string{OpNeg: "-", OpNot: "not ", OpLen: "#"}[e.Op]
		// A unary operand below pow-level needs parens; a '-' before
		// another '-' needs a space to avoid forming a comment.
		operand := p.expr(e.Operand, 8)
		if e.Op == OpNeg && strings.HasPrefix(operand, "-") {
			operand = " " + operand
		}
		return op + operand
	case *BinaryExpr:
		prec := binaryOpPrec(e.Op)
		leftLimit, rightLimit := prec, prec+1
		if isRightAssociative(e.Op) {
			leftLimit, rightLimit = prec+1, prec
		}
		return p.expr(e.Left, leftLimit) + " " + binaryOpText(e.Op) + " " + p.expr(e.Right, rightLimit)
	case *IndexExpr:
		obj := p.prefixExpr(e.Object)
		if name, ok := fieldName(e.Key); ok {
			return obj + "." + name
		}
		return obj + "[" + p.expr(e.Key, 0) + "]"
	case *CallExpr:
		fn := p.prefixExpr(e.Fn)
		if e.Method != "" {
			fn += ":" + e.Method
		}
		return fn + "(" + p.exprList(e.Args) + ")"
	case *FunctionExpr:
		// Function literals print on one line; bodies nest rarely
		// enough in printed form that readability is secondary to a
		// faithful reparse.
		sub := &printer{}
		sub.block(e.Body.Body)
		body := strings.TrimSuffix(sub.sb.String(), "\n")
		body = strings.ReplaceAll(body, "\n", " ")
		body = strings.ReplaceAll(body, "\t", "")
		if body != "" {
			body = " " + body
		}
		return fmt.Sprintf("function(%s)%s end", p.paramList(e.Body.Params, e.Body.IsVararg), body)
	case *TableExpr:
		parts := make([]string, len(e.Fields))
		for i, f := range e.Fields {
			switch {
			case f.Key == nil:
				parts[i] = p.expr(f.Value, 0)
			default:
				if name, ok := fieldName(f.Key); ok {
					parts[i] = name + " = " + p.expr(f.Value, 0)
				} else {
					parts[i] = "[" + p.expr(f.Key, 0) + "] = " + p.expr(f.Value, 0)
				}
			}
		}
		return "{" + strings.Join(parts, ", ") + "}"
	default:
		return "nil"
	}
}

// prefixExpr renders the base of a call or index chain, which the
// grammar restricts to names, parenthesized expressions, and other
// suffixed expressions; anything else gains parentheses.
func (p *printer) prefixExpr(e Expr) string {
	switch e.(type) {
	case *NameExpr, *IndexExpr, *CallExpr, *ParenExpr:
		return p.exprText(e)
	default:
		return "(" + p.exprText(e) + ")"
	}
}

// fieldName reports whether key is a string literal usable as a bare
// identifier in field position.
func fieldName(key Expr) (string, bool) {
	s, ok := key.(*StringExpr)
	if !ok || s.Value == "" {
		return "", false
	}
	for i := 0; i < len(s.Value); i++ {
		c := s.Value[i]
		alpha := c == '_' || 'a' <= c && c <= 'z' || 'A' <= c && c <= 'Z'
		if !alpha && (i == 0 || c < '0' || c > '9') {
			return "", false
		}
	}
	if _, isKeyword := keywordNames[s.Value]; isKeyword {
		return "", false
	}
	return s.Value, true
}

var keywordNames = func() map[string]struct{} {
	words := []string{
		"and", "break", "do", "else", "elseif", "end", "false", "for",
		"function", "if", "in", "local", "nil", "not", "or", "repeat",
		"return", "then", "true", "until", "while",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}()
