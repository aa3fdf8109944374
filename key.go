package odata

import (
	"fmt"
	"strings"

	"github.com/nlstn/go-odata-sql/internal/edm"
	"github.com/nlstn/go-odata-sql/internal/engine"
	"github.com/nlstn/go-odata-sql/internal/query"
)

type keyPart struct {
	name    string
	literal string
}

// splitKey splits a key predicate on the commas and equals signs outside string literals.
// An unnamed single key yields one part with an empty name.
func splitKey(text string) ([]keyPart, error) {
	var (
		parts   []keyPart
		start   int
		eq      = -1
		inQuote bool
	)
	flush := func(end int) error {
		segment := text[start:end]
		part := keyPart{literal: strings.TrimSpace(segment)}
		if eq >= 0 {
			part.name = strings.TrimSpace(text[start:eq])
			part.literal = strings.TrimSpace(text[eq+1 : end])
			if part.name == "" {
				return fmt.Errorf("%w: missing property name in '%s'", ErrInvalidKey, segment)
			}
		}
		if part.literal == "" {
			return fmt.Errorf("%w: empty key value in '%s'", ErrInvalidKey, text)
		}
		parts = append(parts, part)
		return nil
	}

	for i := 0; i < len(text); i++ {
		switch c := text[i]; {
		case c == '\'':
			inQuote = !inQuote
		case inQuote:
		case c == '=' && eq < 0:
			eq = i
		case c == ',':
			if err := flush(i); err != nil {
				return nil, err
			}
			start, eq = i+1, -1
		}
	}
	if inQuote {
		return nil, fmt.Errorf("%w: unterminated string in '%s'", ErrInvalidKey, text)
	}
	if err := flush(len(text)); err != nil {
		return nil, err
	}
	if len(parts) > 1 {
		for _, p := range parts {
			if p.name == "" {
				return nil, fmt.Errorf("%w: composite keys must name every property", ErrInvalidKey)
			}
		}
	}
	return parts, nil
}

// keyFilter parses a key predicate against et and returns the equality conjunction that
// selects the entity. Values are coerced to the key property types.
func keyFilter(et *edm.EntityType, text string) (engine.Expr, error) {
	parts, err := splitKey(text)
	if err != nil {
		return nil, err
	}

	if len(parts) == 1 && parts[0].name == "" {
		if len(et.Key) != 1 {
			return nil, fmt.Errorf("%w: %s has a composite key of %d properties", ErrInvalidKey, et.Name, len(et.Key))
		}
		parts[0].name = et.Key[0]
	}
	if len(parts) != len(et.Key) {
		return nil, fmt.Errorf("%w: %s has %d key properties, got %d", ErrInvalidKey, et.Name, len(et.Key), len(parts))
	}

	byName := make(map[string]string, len(parts))
	for _, p := range parts {
		if !et.IsKey(p.name) {
			return nil, fmt.Errorf("%w: '%s' is not a key property of %s", ErrInvalidKey, p.name, et.Name)
		}
		if _, dup := byName[p.name]; dup {
			return nil, fmt.Errorf("%w: key property '%s' given twice", ErrInvalidKey, p.name)
		}
		byName[p.name] = p.literal
	}

	terms := make([]engine.Expr, 0, len(et.Key))
	for _, name := range et.Key {
		prop, _ := et.Property(name)
		lit, err := query.ParseLiteral(byName[name])
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidKey, name, err)
		}
		if lit.IsNull() {
			return nil, fmt.Errorf("%w: key property '%s' cannot be null", ErrInvalidKey, name)
		}
		value, err := edm.CoerceLiteral(lit, prop)
		if err != nil {
			return nil, err
		}
		terms = append(terms, &engine.Compare{
			Op:    engine.Eq,
			Left:  &engine.Column{Name: name},
			Right: &engine.Literal{Value: value},
		})
	}
	if len(terms) == 1 {
		return terms[0], nil
	}
	return &engine.And{Terms: terms}, nil
}
