package celfilter

import (
	"strings"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"

	"github.com/spandigital/pgtranslate/model"
	"github.com/spandigital/pgtranslate/sqltypes"
	"github.com/spandigital/pgtranslate/typemap"
)

// modelProvider exposes model entities as CEL object types. An entity is
// named by its entity name; owned types by the owner's name followed by the
// navigation path, as in Customer.Address.
type modelProvider struct {
	m *model.Model
}

var _ types.Provider = (*modelProvider)(nil)

// member is one field of an entity or owned type.
type member struct {
	name string
	typ  *cel.Type
}

func (p *modelProvider) EnumValue(enumName string) ref.Val {
	return types.NewErr("unknown enum name '%s'", enumName)
}

func (p *modelProvider) FindIdent(_ string) (ref.Val, bool) {
	return nil, false
}

// members lists the fields of the named type.
func (p *modelProvider) members(typeName string) ([]member, bool) {
	names := strings.Split(typeName, ".")
	e, ok := p.m.Entity(names[0])
	if !ok {
		return nil, false
	}
	if len(names) == 1 {
		return entityMembers(e), true
	}
	o, ok := e.OwnedNavigation(names[1])
	if !ok {
		return nil, false
	}
	for _, n := range names[2:] {
		if o, ok = o.Navigation(n); !ok {
			return nil, false
		}
	}
	return ownedMembers(o), true
}

func entityMembers(e *model.Entity) []member {
	var out []member
	for _, prop := range e.AllProperties() {
		out = append(out, member{name: prop.Name, typ: propertyType(prop)})
	}
	for _, t := range e.Ancestors() {
		for _, n := range t.Navigations {
			typ := cel.ObjectType(n.Target)
			if n.Collection {
				typ = cel.ListType(typ)
			}
			out = append(out, member{name: n.Name, typ: typ})
		}
	}
	for _, o := range e.AllOwned() {
		out = append(out, member{name: o.Name, typ: ownedType(o)})
	}
	return out
}

func ownedMembers(o *model.Owned) []member {
	var out []member
	for _, prop := range o.Properties {
		out = append(out, member{name: prop.Name, typ: propertyType(prop)})
	}
	for _, n := range o.Owned {
		out = append(out, member{name: n.Name, typ: ownedType(n)})
	}
	return out
}

func ownedTypeName(o *model.Owned) string {
	return o.Owner().Name + "." + strings.Join(o.Path(), ".")
}

func ownedType(o *model.Owned) *cel.Type {
	t := cel.ObjectType(ownedTypeName(o))
	if o.Collection {
		return cel.ListType(t)
	}
	return t
}

func propertyType(p *model.Property) *cel.Type {
	return mappingType(p.Mapping())
}

// mappingType is the CEL type values of a store type are checked as.
func mappingType(m *typemap.Mapping) *cel.Type {
	if m == nil {
		return cel.DynType
	}
	switch m.Kind {
	case typemap.KindBool:
		return cel.BoolType
	case typemap.KindInt:
		return cel.IntType
	case typemap.KindFloat, typemap.KindNumeric:
		return cel.DoubleType
	case typemap.KindText, typemap.KindUUID, typemap.KindEnum, typemap.KindNetwork, typemap.KindMacAddr:
		return cel.StringType
	case typemap.KindBytes:
		return cel.BytesType
	case typemap.KindTimestamp, typemap.KindTimestampTz:
		return cel.TimestampType
	case typemap.KindDate:
		return sqltypes.Date
	case typemap.KindTime:
		return sqltypes.Time
	case typemap.KindInterval:
		return cel.DurationType
	case typemap.KindArray:
		return cel.ListType(mappingType(m.Element))
	case typemap.KindRange:
		return sqltypes.Range(mappingType(m.Element))
	case typemap.KindHstore:
		return cel.MapType(cel.StringType, cel.StringType)
	}
	return cel.DynType
}

func (p *modelProvider) FindStructType(structType string) (*types.Type, bool) {
	if _, ok := p.members(structType); !ok {
		return nil, false
	}
	return types.NewObjectType(structType), true
}

func (p *modelProvider) FindStructFieldNames(structType string) ([]string, bool) {
	ms, ok := p.members(structType)
	if !ok {
		return nil, false
	}
	names := make([]string, len(ms))
	for i, m := range ms {
		names[i] = m.name
	}
	return names, true
}

func (p *modelProvider) FindStructFieldType(structType, fieldName string) (*types.FieldType, bool) {
	ms, ok := p.members(structType)
	if !ok {
		return nil, false
	}
	for _, m := range ms {
		if m.name == fieldName {
			return &types.FieldType{Type: m.typ}, true
		}
	}
	return nil, false
}

func (p *modelProvider) NewValue(structType string, _ map[string]ref.Val) ref.Val {
	return types.NewErr("unknown type '%s'", structType)
}
