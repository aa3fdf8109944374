// Package edm bridges the engine's native column types and the OData Entity Data Model.
package edm

import (
	"fmt"
	"strings"

	"github.com/nlstn/go-odata-sql/internal/schema"
)

// EDM primitive type names.
const (
	TypeBoolean        = "Edm.Boolean"
	TypeInt32          = "Edm.Int32"
	TypeInt64          = "Edm.Int64"
	TypeSingle         = "Edm.Single"
	TypeDouble         = "Edm.Double"
	TypeDecimal        = "Edm.Decimal"
	TypeString         = "Edm.String"
	TypeBinary         = "Edm.Binary"
	TypeGuid           = "Edm.Guid"
	TypeDate           = "Edm.Date"
	TypeTimeOfDay      = "Edm.TimeOfDay"
	TypeDateTimeOffset = "Edm.DateTimeOffset"

	// TypeNull tags the null literal; it is never a property type.
	TypeNull = "null"
)

// IsNumeric reports whether typeName is one of the numeric EDM types.
func IsNumeric(typeName string) bool {
	switch typeName {
	case TypeInt32, TypeInt64, TypeSingle, TypeDouble, TypeDecimal:
		return true
	}
	return false
}

// IsTemporal reports whether typeName carries a date or time.
func IsTemporal(typeName string) bool {
	switch typeName {
	case TypeDate, TypeTimeOfDay, TypeDateTimeOffset:
		return true
	}
	return false
}

// Property is a structural property of an entity type.
type Property struct {
	Name     string
	Type     string
	Nullable bool
	Facets   Facets
	// Native is the engine column type the property was derived from.
	Native schema.DataType
}

// EntityType describes one exposed entity set.
type EntityType struct {
	Name       string
	Namespace  string
	Key        []string
	Properties []Property
}

// QualifiedName returns Namespace.Name.
func (e *EntityType) QualifiedName() string {
	if e.Namespace == "" {
		return e.Name
	}
	return e.Namespace + "." + e.Name
}

// Property looks up a property by name. Names are case-sensitive.
func (e *EntityType) Property(name string) (*Property, bool) {
	for i := range e.Properties {
		if e.Properties[i].Name == name {
			return &e.Properties[i], true
		}
	}
	return nil, false
}

// IsKey reports whether name is one of the key properties.
func (e *EntityType) IsKey(name string) bool {
	for _, k := range e.Key {
		if k == name {
			return true
		}
	}
	return false
}

// KeyProperties returns the key properties in key order.
func (e *EntityType) KeyProperties() []Property {
	out := make([]Property, 0, len(e.Key))
	for _, k := range e.Key {
		if p, ok := e.Property(k); ok {
			out = append(out, *p)
		}
	}
	return out
}

// PropertyNames returns property names in declaration order.
func (e *EntityType) PropertyNames() []string {
	names := make([]string, len(e.Properties))
	for i, p := range e.Properties {
		names[i] = p.Name
	}
	return names
}

func (e *EntityType) String() string {
	var b strings.Builder
	b.WriteString(e.QualifiedName())
	b.WriteString("(")
	for i, p := range e.Properties {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s %s", p.Name, p.Type)
		if e.IsKey(p.Name) {
			b.WriteString(" key")
		}
	}
	b.WriteString(")")
	return b.String()
}
