package response

import (
	"encoding/json"
	"io"

	"github.com/nlstn/go-odata-sql/internal/edm"
	"github.com/nlstn/go-odata-sql/internal/engine"
)

// WriteJSONFeed writes a collection response:
// {"@odata.context", "@odata.count"?, "value": [...], "@odata.nextLink"?}.
func WriteJSONFeed(w io.Writer, p *Page) error {
	l, err := newLayout(p)
	if err != nil {
		return err
	}

	values := make([]*OrderedMap, 0, len(p.Rows))
	for _, row := range p.Rows {
		entity, err := jsonEntity(l, row, len(l.output))
		if err != nil {
			return err
		}
		values = append(values, entity)
	}

	body := newOrderedMapSize(4)
	body.Set("@odata.context", contextURL(p, false))
	if p.Count != nil {
		body.Set("@odata.count", *p.Count)
	}
	body.Set("value", values)
	if p.NextLink != "" {
		body.Set("@odata.nextLink", p.NextLink)
	}
	return encodeJSON(w, body)
}

// WriteJSONEntry writes a single entity with its context annotation.
func WriteJSONEntry(w io.Writer, p *Page) error {
	l, err := newLayout(p)
	if err != nil {
		return err
	}
	row, err := singleRow(p)
	if err != nil {
		return err
	}

	entity := newOrderedMapSize(len(l.output) + 1)
	entity.Set("@odata.context", contextURL(p, true))
	if err := fillJSON(entity, l, row); err != nil {
		return err
	}
	return encodeJSON(w, entity)
}

func jsonEntity(l *layout, row engine.Row, size int) (*OrderedMap, error) {
	entity := newOrderedMapSize(size)
	if err := fillJSON(entity, l, row); err != nil {
		return nil, err
	}
	return entity, nil
}

// fillJSON sets every output property. Nulls are written explicitly.
func fillJSON(entity *OrderedMap, l *layout, row engine.Row) error {
	for _, c := range l.output {
		raw, err := l.value(row, c)
		if err != nil {
			return err
		}
		v, err := edm.JSONValue(raw, c.prop)
		if err != nil {
			return err
		}
		entity.Set(c.prop.Name, v)
	}
	return nil
}

// EntitySetInfo describes one entry of the service document.
type EntitySetInfo struct {
	Name string
	URL  string
}

// WriteJSONServiceDocument writes the JSON service document.
func WriteJSONServiceDocument(w io.Writer, serviceRoot string, sets []EntitySetInfo) error {
	entities := make([]*OrderedMap, 0, len(sets))
	for _, s := range sets {
		entry := newOrderedMapSize(3)
		entry.Set("name", s.Name)
		entry.Set("kind", "EntitySet")
		entry.Set("url", s.URL)
		entities = append(entities, entry)
	}

	serviceDoc := newOrderedMapSize(2)
	serviceDoc.Set("@odata.context", serviceRoot+"$metadata")
	serviceDoc.Set("value", entities)
	return encodeJSON(w, serviceDoc)
}

func encodeJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)
	return encoder.Encode(v)
}
