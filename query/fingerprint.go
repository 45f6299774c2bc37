package query

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// Fingerprint renders the structure of n as a cache key. Constants
// contribute their values, parameters only their names and types, so two
// executions of one query shape with different parameter values share a key.
func Fingerprint(n Node) string {
	var f fingerprinter
	f.node(n)
	return f.b.String()
}

// Format renders e in the notation Fingerprint uses.
func Format(e Expr) string {
	var f fingerprinter
	f.expr(e)
	return f.b.String()
}

type fingerprinter struct {
	b strings.Builder
}

func (f *fingerprinter) w(parts ...string) {
	for _, p := range parts {
		f.b.WriteString(p)
	}
}

func (f *fingerprinter) node(n Node) {
	switch n := n.(type) {
	case nil:
		f.w("_")
	case Query:
		f.node(n.root)
	case Source:
		f.w("Source(", strconv.Quote(n.Entity))
		if n.Of != nil {
			f.w(",")
			f.expr(n.Of)
		}
		f.w(")")
	case Filter:
		f.w("Filter(")
		f.node(n.Input)
		f.w(",")
		f.lambda(n.Pred)
		f.w(")")
	case Project:
		f.w("Project(")
		f.node(n.Input)
		f.w(",")
		f.lambda(n.Selector)
		f.w(")")
	case Join:
		f.w("Join", strconv.Itoa(int(n.Kind)), "(")
		f.node(n.Left)
		f.w(",")
		f.node(n.Right)
		f.w(",")
		f.lambda(n.LeftKey)
		f.w(",")
		f.lambda(n.RightKey)
		f.w(",")
		f.lambda(n.Result)
		f.w(")")
	case SetOperation:
		f.w(n.Kind.String(), "(")
		f.node(n.Left)
		f.w(",")
		f.node(n.Right)
		f.w(")")
	case GroupBy:
		f.w("GroupBy(")
		f.node(n.Input)
		f.w(",")
		f.lambda(n.Key)
		f.w(")")
	case OrderBy:
		f.w("OrderBy(")
		f.node(n.Input)
		for _, k := range n.Keys {
			f.w(",")
			if k.Desc {
				f.w("desc ")
			}
			f.lambda(k.Key)
		}
		f.w(")")
	case Page:
		f.w("Page(")
		f.node(n.Input)
		f.w(",")
		f.expr(n.Skip)
		f.w(",")
		f.expr(n.Take)
		f.w(")")
	case Distinct:
		f.w("Distinct(")
		f.node(n.Input)
		f.w(")")
	case OfType:
		f.w("OfType(")
		f.node(n.Input)
		f.w(",", strconv.Quote(n.Entity), ")")
	case SelectMany:
		f.w("SelectMany(")
		f.node(n.Input)
		f.w(",")
		f.lambda(n.Collection)
		f.w(",")
		f.lambda(n.Result)
		f.w(")")
	default:
		f.w(fmt.Sprintf("%T", n))
	}
}

func (f *fingerprinter) lambda(l *Lambda) {
	if l == nil {
		f.w("_")
		return
	}
	f.expr(l)
}

func (f *fingerprinter) exprs(es []Expr) {
	for i, e := range es {
		if i > 0 {
			f.w(",")
		}
		f.expr(e)
	}
}

func (f *fingerprinter) expr(e Expr) {
	switch e := e.(type) {
	case nil:
		f.w("_")
	case Var:
		f.w("$", e.Name)
	case Member:
		f.expr(e.Target)
		f.w(".", e.Name)
	case Const:
		f.w("C(", constant(e), ")")
	case Param:
		f.w("@", e.Name)
		if e.Type != nil {
			f.w(":", e.Type.String())
		}
	case Binary:
		f.w("(")
		f.expr(e.Left)
		f.w(" ", e.Op.String(), " ")
		f.expr(e.Right)
		f.w(")")
	case Unary:
		f.w("U", strconv.Itoa(int(e.Op)), "(")
		f.expr(e.Operand)
		f.w(")")
	case Call:
		f.expr(e.Target)
		f.w(".", e.Method, "(")
		f.exprs(e.Args)
		f.w(")")
	case TypeIs:
		f.w("Is(")
		f.expr(e.Operand)
		f.w(",", strconv.Quote(e.Entity), ",", strconv.FormatBool(e.Exact), ")")
	case Conditional:
		f.w("If(")
		f.exprs([]Expr{e.Test, e.Then, e.Else})
		f.w(")")
	case *Lambda:
		f.w("\\", strings.Join(e.Params, ","), ".")
		f.expr(e.Body)
	case Subquery:
		f.w("Q", strconv.Itoa(int(e.Mode)), e.Aggregate, "(")
		f.node(e.Query)
		f.w(",")
		f.lambda(e.Selector)
		f.w(")")
	case In:
		f.w("In(")
		f.expr(e.Value)
		f.w(";")
		f.exprs(e.List)
		f.w(";")
		f.expr(e.Collection)
		f.w(")")
	case Cast:
		f.w("Cast(")
		f.expr(e.Operand)
		if e.Type != nil {
			f.w(",", e.Type.String())
		}
		f.w(")")
	case New:
		f.w("New(")
		for i, fl := range e.Fields {
			if i > 0 {
				f.w(",")
			}
			f.w(fl.Name, ":")
			f.expr(fl.Value)
		}
		f.w(")")
	default:
		f.w(fmt.Sprintf("%T", e))
	}
}

// constant renders a constant with its type. Pointers are followed so the
// key never depends on an address.
func constant(c Const) string {
	v := reflect.ValueOf(c.Value)
	for v.IsValid() && v.Kind() == reflect.Pointer {
		if v.IsNil() {
			v = reflect.Value{}
			break
		}
		v = v.Elem()
	}
	t := "nil"
	if c.Type != nil {
		t = c.Type.String()
	} else if c.Value != nil {
		t = reflect.TypeOf(c.Value).String()
	}
	if !v.IsValid() {
		return t + ":nil"
	}
	return t + ":" + strconv.Quote(fmt.Sprintf("%v", v.Interface()))
}
