package edm

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nlstn/go-odata-sql/internal/schema"
)

// OnUnsupported selects what derivation does with columns that have no EDM type.
type OnUnsupported string

const (
	// OnUnsupportedError fails derivation.
	OnUnsupportedError OnUnsupported = "error"
	// OnUnsupportedWarn drops the column and logs a warning.
	OnUnsupportedWarn OnUnsupported = "warn"
)

// ParseOnUnsupported parses a policy name; the empty string selects OnUnsupportedError.
func ParseOnUnsupported(s string) (OnUnsupported, error) {
	switch OnUnsupported(strings.ToLower(strings.TrimSpace(s))) {
	case "", OnUnsupportedError:
		return OnUnsupportedError, nil
	case OnUnsupportedWarn:
		return OnUnsupportedWarn, nil
	}
	return "", fmt.Errorf("invalid unsupported-type policy %q, expected 'error' or 'warn'", s)
}

// Derivation errors.
var (
	ErrNoKey        = errors.New("entity type has no key properties")
	ErrKeyNotFound  = errors.New("key property not found")
	ErrKeyNullable  = errors.New("key property is nullable")
	ErrKeyDuplicate = errors.New("duplicate key property")
)

// DeriveOptions controls DeriveEntityType.
type DeriveOptions struct {
	Namespace string
	// Keys overrides the schema's primary key when non-empty.
	Keys          []string
	OnUnsupported OnUnsupported
	Logger        *slog.Logger
}

// DeriveEntityType builds the entity type for a table schema. Properties keep schema order.
func DeriveEntityType(name string, sch schema.Schema, opts DeriveOptions) (*EntityType, error) {
	if name == "" {
		return nil, errors.New("entity type name is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	keys := opts.Keys
	if len(keys) == 0 {
		keys = sch.PrimaryKey
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("%s: %w", name, ErrNoKey)
	}
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if _, dup := seen[k]; dup {
			return nil, fmt.Errorf("%s: %w: %s", name, ErrKeyDuplicate, k)
		}
		seen[k] = struct{}{}
		f, ok := sch.Field(k)
		if !ok {
			return nil, fmt.Errorf("%s: %w: %s", name, ErrKeyNotFound, k)
		}
		if f.Nullable {
			return nil, fmt.Errorf("%s: %w: %s", name, ErrKeyNullable, k)
		}
	}

	et := &EntityType{
		Name:       name,
		Namespace:  opts.Namespace,
		Key:        append([]string(nil), keys...),
		Properties: make([]Property, 0, len(sch.Fields)),
	}
	for _, f := range sch.Fields {
		typeName, facets, err := FromNative(f.Type)
		if err != nil {
			_, isKey := seen[f.Name]
			if isKey || opts.OnUnsupported != OnUnsupportedWarn {
				return nil, fmt.Errorf("%s.%s: %w", name, f.Name, err)
			}
			logger.Warn("Unsupported field type - skipping",
				"entity_type", name,
				"field", f.Name,
				"type", f.Type.String())
			continue
		}
		et.Properties = append(et.Properties, Property{
			Name:     f.Name,
			Type:     typeName,
			Nullable: f.Nullable,
			Facets:   facets,
			Native:   f.Type,
		})
	}
	return et, nil
}
