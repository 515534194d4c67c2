// Package luaast defines the abstract syntax tree produced by parsing
// Lua 5.1 source and the recursive-descent parser that builds it.
//
// Expr and Stmt are modeled as sum types: a small marker method closes
// each interface to the set of node types declared in this file, and
// tree walkers are a type switch over the concrete type rather than a
// virtual dispatch through an inheritance hierarchy.
package luaast

import "lua51.dev/vm/internal/lualex"

// Position is the source location of a node, taken from the token
// that introduced it.
type Position = lualex.Position

// Block is a sequence of statements executed in their own local scope.
type Block struct {
	Stmts []Stmt
}

// Stmt is a Lua statement.
type Stmt interface {
	stmtNode()
	Pos() Position
}

// Expr is a Lua expression.
type Expr interface {
	exprNode()
	Pos() Position
}

// FunctionBody is the shared representation of a function literal,
// whether introduced by `function`, `local function`, or an anonymous
// `function(...) ... end` expression.
type FunctionBody struct {
	Position Position
	EndLine  int
	Params   []string
	IsVararg bool
	Body     *Block
}

// ---- Statements ----

// LocalStmt is `local name1, name2, ... = expr1, expr2, ...`.
// The number of names and the number of init expressions are kept
// exactly as written; arity adjustment (padding with nil, discarding
// extras) is the compiler's job, not the parser's.
type LocalStmt struct {
	Position Position
	Names    []string
	Init     []Expr
}

func (s *LocalStmt) stmtNode()     {}
func (s *LocalStmt) Pos() Position { return s.Position }

// AssignStmt is `lhs1, lhs2, ... = rhs1, rhs2, ...`. Each entry in LHS
// is either a *NameExpr or an *IndexExpr; the parser rejects any other
// expression form as an assignment target.
type AssignStmt struct {
	Position Position
	LHS      []Expr
	RHS      []Expr
}

func (s *AssignStmt) stmtNode()     {}
func (s *AssignStmt) Pos() Position { return s.Position }

// CallStmt wraps a call used as a standalone statement, e.g. `print(x)`.
type CallStmt struct {
	Position Position
	Call     Expr // always a *CallExpr
}

func (s *CallStmt) stmtNode()     {}
func (s *CallStmt) Pos() Position { return s.Position }

// DoStmt is `do block end`, introducing a fresh scope with no other
// control-flow effect.
type DoStmt struct {
	Position Position
	Body     *Block
}

func (s *DoStmt) stmtNode()     {}
func (s *DoStmt) Pos() Position { return s.Position }

// WhileStmt is `while cond do body end`.
type WhileStmt struct {
	Position Position
	Cond     Expr
	Body     *Block
}

func (s *WhileStmt) stmtNode()     {}
func (s *WhileStmt) Pos() Position { return s.Position }

// RepeatStmt is `repeat body until cond`. Cond is evaluated in the
// scope of Body, so locals declared in Body are visible to Cond.
type RepeatStmt struct {
	Position Position
	Body     *Block
	Cond     Expr
}

func (s *RepeatStmt) stmtNode()     {}
func (s *RepeatStmt) Pos() Position { return s.Position }

// IfStmt is always two-way: `elseif` chains are rewritten at parse
// time into a nested IfStmt stored in Else, so the compiler only ever
// sees `if cond then Then else Else end`.
type IfStmt struct {
	Position Position
	Cond     Expr
	Then     *Block
	// Else holds either a *Block (for a final `else`), an *IfStmt (for
	// a rewritten `elseif`), or nil (no else clause).
	Else Stmt
}

func (s *IfStmt) stmtNode()     {}
func (s *IfStmt) Pos() Position { return s.Position }

// ElseBlock adapts a *Block to the Stmt interface so it can be stored
// in IfStmt.Else alongside a nested *IfStmt.
type ElseBlock struct {
	Position Position
	Body     *Block
}

func (s *ElseBlock) stmtNode()     {}
func (s *ElseBlock) Pos() Position { return s.Position }

// NumericForStmt is `for Name = Start, Stop[, Step] do Body end`.
type NumericForStmt struct {
	Position Position
	Name     string
	Start    Expr
	Stop     Expr
	Step     Expr // nil if the step clause was omitted (implies 1)
	Body     *Block
}

func (s *NumericForStmt) stmtNode()     {}
func (s *NumericForStmt) Pos() Position { return s.Position }

// GenericForStmt is `for Names... in Exprs... do Body end`.
type GenericForStmt struct {
	Position Position
	Names    []string
	Exprs    []Expr
	Body     *Block
}

func (s *GenericForStmt) stmtNode()     {}
func (s *GenericForStmt) Pos() Position { return s.Position }

// FunctionStmt is a named function declaration: `function Name.a.b(...) ... end`
// or `function Name.a:b(...) ... end`. Target names the path of dotted
// fields from the outermost name; Method holds the final `:`-sugared
// name, if any.
//
// Method sugar is resolved here rather than into a raw AssignStmt: the
// parser records that `self` must be prepended to Body.Params, and the
// compiler lowers this into the equivalent assignment per the method
// sugar invariant.
type FunctionStmt struct {
	Position Position
	Target   []string // dotted path, e.g. ["a", "b"] for a.b
	Method   string   // non-empty for obj:method sugar
	Body     *FunctionBody
}

func (s *FunctionStmt) stmtNode()     {}
func (s *FunctionStmt) Pos() Position { return s.Position }

// LocalFunctionStmt is `local function Name(...) ... end`. Unlike a
// plain `local Name = function() end`, Name is in scope inside Body,
// enabling direct recursion.
type LocalFunctionStmt struct {
	Position Position
	Name     string
	Body     *FunctionBody
}

func (s *LocalFunctionStmt) stmtNode()     {}
func (s *LocalFunctionStmt) Pos() Position { return s.Position }

// ReturnStmt is `return expr1, expr2, ...`. It must be the last
// statement in its block (the parser enforces this during recovery).
type ReturnStmt struct {
	Position Position
	Exprs    []Expr
}

func (s *ReturnStmt) stmtNode()     {}
func (s *ReturnStmt) Pos() Position { return s.Position }

// BreakStmt is `break`.
type BreakStmt struct {
	Position Position
}

func (s *BreakStmt) stmtNode()     {}
func (s *BreakStmt) Pos() Position { return s.Position }

// ---- Expressions ----

// NilExpr is the literal `nil`.
type NilExpr struct{ Position Position }

func (e *NilExpr) exprNode()     {}
func (e *NilExpr) Pos() Position { return e.Position }

// TrueExpr is the literal `true`.
type TrueExpr struct{ Position Position }

func (e *TrueExpr) exprNode()     {}
func (e *TrueExpr) Pos() Position { return e.Position }

// FalseExpr is the literal `false`.
type FalseExpr struct{ Position Position }

func (e *FalseExpr) exprNode()     {}
func (e *FalseExpr) Pos() Position { return e.Position }

// VarargExpr is `...`, valid only inside a vararg function body.
type VarargExpr struct{ Position Position }

func (e *VarargExpr) exprNode()     {}
func (e *VarargExpr) Pos() Position { return e.Position }

// NumberExpr is a numeric literal. Text preserves the token exactly as
// written (e.g. "0x1A", "3.", "1e10"); the compiler is responsible for
// deciding between an integer and a float representation.
type NumberExpr struct {
	Position Position
	Text     string
}

func (e *NumberExpr) exprNode()     {}
func (e *NumberExpr) Pos() Position { return e.Position }

// StringExpr is a string literal, already unescaped by the lexer.
type StringExpr struct {
	Position Position
	Value    string
}

func (e *StringExpr) exprNode()     {}
func (e *StringExpr) Pos() Position { return e.Position }

// NameExpr is a bare identifier reference. Resolving it to a local
// slot, an upvalue, or a global constant happens later, during
// compilation.
type NameExpr struct {
	Position Position
	Name     string
}

func (e *NameExpr) exprNode()     {}
func (e *NameExpr) Pos() Position { return e.Position }

// IndexExpr is `Object[Key]` or, for the `Object.Key` sugar, Key is a
// *StringExpr holding the field name.
type IndexExpr struct {
	Position Position
	Object   Expr
	Key      Expr
}

func (e *IndexExpr) exprNode()     {}
func (e *IndexExpr) Pos() Position { return e.Position }

// CallExpr is `Fn(Args...)`, or, when Method is non-empty,
// `Fn:Method(Args...)` — the receiver Fn is evaluated once and passed
// as the implicit first argument.
type CallExpr struct {
	Position Position
	Fn       Expr
	Method   string
	Args     []Expr
}

func (e *CallExpr) exprNode()     {}
func (e *CallExpr) Pos() Position { return e.Position }

// FunctionExpr is an anonymous function literal.
type FunctionExpr struct {
	Body *FunctionBody
}

func (e *FunctionExpr) exprNode()     {}
func (e *FunctionExpr) Pos() Position { return e.Body.Position }

// TableField is one entry of a table constructor.
//
// An array-style entry (`v`) has Key == nil. A record-style entry
// (`name = v`) has Key set to a *StringExpr. A computed-key entry
// (`[k] = v`) has Key set to the arbitrary key expression.
type TableField struct {
	Key   Expr
	Value Expr
}

// TableExpr is a table constructor `{ ... }`.
type TableExpr struct {
	Position Position
	Fields   []TableField
}

func (e *TableExpr) exprNode()     {}
func (e *TableExpr) Pos() Position { return e.Position }

// BinaryOp enumerates Lua 5.1 binary operators.
type BinaryOp int

const (
	OpAdd BinaryOp = iota
	OpSub
	OpMul
	OpDiv
	OpMod
	OpPow
	OpConcat
	OpEq
	OpNotEq
	OpLess
	OpLessEq
	OpGreater
	OpGreaterEq
	OpAnd
	OpOr
)

// BinaryExpr is a binary operator application. `and`/`or` are
// represented here too (rather than as control flow nodes); the
// compiler lowers their short-circuit evaluation.
type BinaryExpr struct {
	Position Position
	Op       BinaryOp
	Left     Expr
	Right    Expr
}

func (e *BinaryExpr) exprNode()     {}
func (e *BinaryExpr) Pos() Position { return e.Position }

// UnaryOp enumerates Lua 5.1 unary operators.
type UnaryOp int

const (
	OpNeg UnaryOp = iota
	OpNot
	OpLen
)

// UnaryExpr is a unary operator application.
type UnaryExpr struct {
	Position Position
	Op       UnaryOp
	Operand  Expr
}

func (e *UnaryExpr) exprNode()     {}
func (e *UnaryExpr) Pos() Position { return e.Position }

// ParenExpr is `(Inner)`. Parentheses are significant in Lua: they
// truncate a multiple-value expression (a call or `...`) to exactly
// one value, so they are preserved as their own node rather than
// discarded during parsing.
type ParenExpr struct {
	Position Position
	Inner    Expr
}

func (e *ParenExpr) exprNode()     {}
func (e *ParenExpr) Pos() Position { return e.Position }
