package query

import (
	"reflect"
)

// Expr is a scalar expression evaluated per element.
type Expr interface {
	expr()
}

// Var references a lambda parameter.
type Var struct {
	Name string
}

// Member reads a property, navigation or computed member of Target.
type Member struct {
	Target Expr
	Name   string
}

// Const is a value known when the query is built. It is inlined into the
// statement as a literal.
type Const struct {
	Value any
	// Type is the declared type; nil means the dynamic type of Value.
	Type reflect.Type
}

// Param is a value bound per execution. It becomes a named placeholder and
// its value never enters the statement.
type Param struct {
	Name string
	Type reflect.Type
}

// BinaryOp is a binary operator.
type BinaryOp int

const (
	OpEq BinaryOp = iota
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
	OpAnd
	OpOr
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpCoalesce
)

var binaryOpNames = [...]string{"==", "!=", "<", "<=", ">", ">=", "&&", "||", "+", "-", "*", "/", "%", "??"}

func (op BinaryOp) String() string {
	if int(op) < len(binaryOpNames) {
		return binaryOpNames[op]
	}
	return "?"
}

// Binary applies Op to Left and Right.
type Binary struct {
	Op    BinaryOp
	Left  Expr
	Right Expr
}

// UnaryOp is a unary operator.
type UnaryOp int

const (
	OpNot UnaryOp = iota
	OpNegate
)

// Unary applies Op to Operand.
type Unary struct {
	Op      UnaryOp
	Operand Expr
}

// Call invokes Method on Target. A nil Target is a static function such as
// Abs or Now.
type Call struct {
	Method string
	Target Expr
	Args   []Expr
}

// TypeIs tests whether an entity is of type Entity (or derives from it
// unless Exact is set).
type TypeIs struct {
	Operand Expr
	Entity  string
	Exact   bool
}

// Conditional is Test ? Then : Else.
type Conditional struct {
	Test Expr
	Then Expr
	Else Expr
}

// Lambda binds Params in Body.
type Lambda struct {
	Params []string
	Body   Expr
}

// SubqueryMode selects what a Subquery yields.
type SubqueryMode int

const (
	// First yields the first element, or null when there is none.
	First SubqueryMode = iota
	// Exists yields whether any element exists.
	Exists
	// Count yields the number of elements.
	Count
	// Aggregate folds Selector over the elements with Aggregate.
	Aggregate
)

// Subquery evaluates a nested query per outer element. Outer lambda
// parameters are visible inside Query.
type Subquery struct {
	Query Node
	Mode  SubqueryMode
	// Aggregate is Sum, Min, Max or Average.
	Aggregate string
	Selector  *Lambda
}

// In tests membership of Value in List, or in the array Collection.
type In struct {
	Value      Expr
	List       []Expr
	Collection Expr
}

// Cast converts Operand to the store type mapped for Type.
type Cast struct {
	Operand Expr
	Type    reflect.Type
}

// Field is one member of a New record.
type Field struct {
	Name  string
	Value Expr
}

// New builds an anonymous record.
type New struct {
	Fields []Field
}

func (Var) expr()         {}
func (Member) expr()      {}
func (Const) expr()       {}
func (Param) expr()       {}
func (Binary) expr()      {}
func (Unary) expr()       {}
func (Call) expr()        {}
func (TypeIs) expr()      {}
func (Conditional) expr() {}
func (*Lambda) expr()     {}
func (Subquery) expr()    {}
func (In) expr()          {}
func (Cast) expr()        {}
func (New) expr()         {}
