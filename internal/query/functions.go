package query

import (
	"strings"

	"github.com/nlstn/go-odata-sql/internal/edm"
)

// argClass constrains the EDM type of a function argument.
type argClass int

const (
	argString argClass = iota
	// argDate accepts Edm.Date and Edm.DateTimeOffset.
	argDate
	// argTime accepts Edm.TimeOfDay and Edm.DateTimeOffset.
	argTime
)

func (c argClass) accepts(typeName string) bool {
	switch c {
	case argString:
		return typeName == edm.TypeString
	case argDate:
		return typeName == edm.TypeDate || typeName == edm.TypeDateTimeOffset
	case argTime:
		return typeName == edm.TypeTimeOfDay || typeName == edm.TypeDateTimeOffset
	}
	return false
}

func (c argClass) String() string {
	switch c {
	case argDate:
		return "Edm.Date or Edm.DateTimeOffset"
	case argTime:
		return "Edm.TimeOfDay or Edm.DateTimeOffset"
	}
	return edm.TypeString
}

// functionDef describes one member of the closed filter function set.
type functionDef struct {
	Name string
	Args []argClass
	// Result is the EDM type of the function value.
	Result string
	// Engine is the canonical engine function name; pattern functions have none.
	Engine string
	// Pattern marks functions lowered to LIKE.
	Pattern bool
}

// IsPredicate reports whether the function yields a boolean.
func (f *functionDef) IsPredicate() bool {
	return f.Result == edm.TypeBoolean
}

var functions = map[string]*functionDef{
	"contains":    {Name: "contains", Args: []argClass{argString, argString}, Result: edm.TypeBoolean, Pattern: true},
	"startswith":  {Name: "startswith", Args: []argClass{argString, argString}, Result: edm.TypeBoolean, Pattern: true},
	"endswith":    {Name: "endswith", Args: []argClass{argString, argString}, Result: edm.TypeBoolean, Pattern: true},
	"substringof": {Name: "substringof", Args: []argClass{argString, argString}, Result: edm.TypeBoolean, Pattern: true},
	"length":      {Name: "length", Args: []argClass{argString}, Result: edm.TypeInt32, Engine: "length"},
	"indexof":     {Name: "indexof", Args: []argClass{argString, argString}, Result: edm.TypeInt32, Engine: "indexof"},
	"tolower":     {Name: "tolower", Args: []argClass{argString}, Result: edm.TypeString, Engine: "lower"},
	"toupper":     {Name: "toupper", Args: []argClass{argString}, Result: edm.TypeString, Engine: "upper"},
	"trim":        {Name: "trim", Args: []argClass{argString}, Result: edm.TypeString, Engine: "trim"},
	"concat":      {Name: "concat", Args: []argClass{argString, argString}, Result: edm.TypeString, Engine: "concat"},
	"year":        {Name: "year", Args: []argClass{argDate}, Result: edm.TypeInt32, Engine: "year"},
	"month":       {Name: "month", Args: []argClass{argDate}, Result: edm.TypeInt32, Engine: "month"},
	"day":         {Name: "day", Args: []argClass{argDate}, Result: edm.TypeInt32, Engine: "day"},
	"hour":        {Name: "hour", Args: []argClass{argTime}, Result: edm.TypeInt32, Engine: "hour"},
	"minute":      {Name: "minute", Args: []argClass{argTime}, Result: edm.TypeInt32, Engine: "minute"},
	"second":      {Name: "second", Args: []argClass{argTime}, Result: edm.TypeInt32, Engine: "second"},
}

// lookupFunction resolves a function name. Function names are case-sensitive in
// OData; a differently cased known name is still reported as unsupported.
func lookupFunction(name string) (*functionDef, error) {
	if def, ok := functions[name]; ok {
		return def, nil
	}
	if _, ok := functions[strings.ToLower(name)]; ok {
		return nil, unsupported("", "function '%s' is not supported, function names are lower case", name)
	}
	return nil, unsupported("", "function '%s' is not supported", name)
}
