package response

import (
	"fmt"
	"strings"
	"time"

	"github.com/nlstn/go-odata-sql/internal/edm"
	"github.com/nlstn/go-odata-sql/internal/engine"
)

// Page is the input of the feed and entry writers. The entry writers serialize Rows[0].
type Page struct {
	// ServiceRoot is the absolute service URL ending in '/'.
	ServiceRoot string
	EntitySet   string
	Type        *edm.EntityType
	// Columns names the row values in row order.
	Columns []string
	// Output lists the properties to serialize in response order.
	Output []string
	// Select is the $select list as sent by the client, nil when absent.
	Select   []string
	Rows     []engine.Row
	Count    *int64
	NextLink string
	Updated  time.Time
}

type column struct {
	prop  *edm.Property
	index int
}

// layout resolves output and key properties to row positions.
type layout struct {
	output []column
	keys   []column
}

func newLayout(p *Page) (*layout, error) {
	if p.Type == nil {
		return nil, fmt.Errorf("%w: no entity type for %s", edm.ErrSerialization, p.EntitySet)
	}
	index := make(map[string]int, len(p.Columns))
	for i, c := range p.Columns {
		index[c] = i
	}
	resolve := func(names []string) ([]column, error) {
		cols := make([]column, 0, len(names))
		for _, name := range names {
			prop, ok := p.Type.Property(name)
			if !ok {
				return nil, fmt.Errorf("%w: unknown property '%s'", edm.ErrSerialization, name)
			}
			i, ok := index[name]
			if !ok {
				return nil, fmt.Errorf("%w: property '%s' was not fetched", edm.ErrSerialization, name)
			}
			cols = append(cols, column{prop: prop, index: i})
		}
		return cols, nil
	}

	output, err := resolve(p.Output)
	if err != nil {
		return nil, err
	}
	keys, err := resolve(p.Type.Key)
	if err != nil {
		return nil, err
	}
	return &layout{output: output, keys: keys}, nil
}

func (l *layout) value(row engine.Row, c column) (any, error) {
	if c.index >= len(row) {
		return nil, fmt.Errorf("%w: row has %d values, want at least %d", edm.ErrSerialization, len(row), c.index+1)
	}
	return row[c.index], nil
}

// keySegment renders the key predicate of a row: (1), ('a') or (A=1,B='x'). Literals are
// path-escaped.
func (l *layout) keySegment(row engine.Row) (string, error) {
	var b strings.Builder
	b.WriteByte('(')
	for i, k := range l.keys {
		v, err := l.value(row, k)
		if err != nil {
			return "", err
		}
		if v == nil {
			return "", fmt.Errorf("%w: key property '%s' is null", edm.ErrSerialization, k.prop.Name)
		}
		lit, err := edm.FormatLiteral(v, k.prop)
		if err != nil {
			return "", err
		}
		if i > 0 {
			b.WriteByte(',')
		}
		if len(l.keys) > 1 {
			b.WriteString(k.prop.Name)
			b.WriteByte('=')
		}
		b.WriteString(escapeKeyLiteral(lit))
	}
	b.WriteByte(')')
	return b.String(), nil
}

const upperhex = "0123456789ABCDEF"

// escapeKeyLiteral percent-encodes the bytes of a literal that are not RFC 3986 path
// characters. Quotes and parentheses stay readable.
func escapeKeyLiteral(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isPathChar(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperhex[c>>4])
		b.WriteByte(upperhex[c&15])
	}
	return b.String()
}

func isPathChar(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	return strings.IndexByte("-._~!$&'()*+,;=:@", c) >= 0
}

// contextURL returns the @odata.context value of a feed or entity.
func contextURL(p *Page, entity bool) string {
	var b strings.Builder
	b.WriteString(p.ServiceRoot)
	b.WriteString("$metadata#")
	b.WriteString(p.EntitySet)
	if p.Select != nil {
		b.WriteByte('(')
		b.WriteString(strings.Join(p.Select, ","))
		b.WriteByte(')')
	}
	if entity {
		b.WriteString("/$entity")
	}
	return b.String()
}

func singleRow(p *Page) (engine.Row, error) {
	if len(p.Rows) != 1 {
		return nil, fmt.Errorf("%w: entity response with %d rows", edm.ErrSerialization, len(p.Rows))
	}
	return p.Rows[0], nil
}
