// Package query is the logical query tree the translator lowers to SQL:
// relational operators (Node) over scalar expressions (Expr).
//
// Trees are plain values. Build them with the fluent constructors:
//
//	q := query.From("Animal").
//		Where(query.Fn("a", query.Eq(query.P("a", "Name"), query.C("Kiwi")))).
//		OrderBy(query.Fn("a", query.P("a", "Id"))).
//		Take(query.C(10))
package query

// Node is a relational operator producing a sequence of elements.
type Node interface {
	node()
}

// Source is an entity set, or the elements of a collection-valued
// expression (a collection navigation, an owned collection or an array)
// when Of is set.
type Source struct {
	Entity string
	Of     Expr
}

// Filter keeps elements for which Pred holds.
type Filter struct {
	Input Node
	Pred  *Lambda
}

// Project maps each element through Selector.
type Project struct {
	Input    Node
	Selector *Lambda
}

// JoinKind selects inner or left outer join semantics.
type JoinKind int

const (
	InnerJoin JoinKind = iota
	LeftJoin
)

// Join correlates Left and Right on equal keys. Result takes the left and
// right elements; a nil Result yields the right element.
type Join struct {
	Kind     JoinKind
	Left     Node
	Right    Node
	LeftKey  *Lambda
	RightKey *Lambda
	Result   *Lambda
}

// SetKind is the set operator of a SetOperation.
type SetKind int

const (
	// Concat keeps duplicates (UNION ALL).
	Concat SetKind = iota
	Union
	Intersect
	Except
)

func (k SetKind) String() string {
	switch k {
	case Union:
		return "Union"
	case Intersect:
		return "Intersect"
	case Except:
		return "Except"
	default:
		return "Concat"
	}
}

// SetOperation combines two sequences of the same element shape.
type SetOperation struct {
	Kind  SetKind
	Left  Node
	Right Node
}

// GroupBy groups elements by Key. Downstream lambdas see a grouping whose
// Key member is the key and whose Count, Sum, Min, Max and Average methods
// aggregate the group.
type GroupBy struct {
	Input Node
	Key   *Lambda
}

// SortKey is one ordering key.
type SortKey struct {
	Key  *Lambda
	Desc bool
}

// OrderBy sorts by Keys, replacing any earlier ordering.
type OrderBy struct {
	Input Node
	Keys  []SortKey
}

// Page skips and then takes elements. Either bound may be nil.
type Page struct {
	Input Node
	Skip  Expr
	Take  Expr
}

// Distinct removes duplicate elements.
type Distinct struct {
	Input Node
}

// OfType keeps entity elements of Entity or its subtypes.
type OfType struct {
	Input  Node
	Entity string
}

// SelectMany flattens the collection each element yields. Result takes the
// outer and inner elements; a nil Result yields the inner element.
type SelectMany struct {
	Input      Node
	Collection *Lambda
	Result     *Lambda
}

func (Source) node()       {}
func (Filter) node()       {}
func (Project) node()      {}
func (Join) node()         {}
func (SetOperation) node() {}
func (GroupBy) node()      {}
func (OrderBy) node()      {}
func (Page) node()         {}
func (Distinct) node()     {}
func (OfType) node()       {}
func (SelectMany) node()   {}
