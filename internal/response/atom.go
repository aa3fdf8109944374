package response

import (
	"io"
	"strconv"
	"time"

	"github.com/nlstn/go-odata-sql/internal/edm"
	"github.com/nlstn/go-odata-sql/internal/engine"
)

func formatUpdated(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func rootAttrs(serviceRoot string) []string {
	return []string{
		"xml:base", serviceRoot,
		"xmlns", nsAtom,
		"xmlns:d", nsData,
		"xmlns:m", nsMetadata,
	}
}

// WriteAtomFeed writes a collection response as an Atom feed.
func WriteAtomFeed(w io.Writer, p *Page) error {
	l, err := newLayout(p)
	if err != nil {
		return err
	}
	updated := formatUpdated(p.Updated)

	x := newXMLWriter(w)
	x.start("feed", rootAttrs(p.ServiceRoot)...)
	x.textElement("id", p.ServiceRoot+p.EntitySet)
	x.textElement("title", p.EntitySet, "type", "text")
	x.textElement("updated", updated)
	x.empty("link", "rel", "self", "title", p.EntitySet, "href", p.EntitySet)
	if p.Count != nil {
		x.textElement("m:count", strconv.FormatInt(*p.Count, 10))
	}

	for _, row := range p.Rows {
		x.start("entry")
		if err := writeEntryBody(x, p, l, row, updated); err != nil {
			return err
		}
		x.end()
	}

	if p.NextLink != "" {
		x.empty("link", "rel", "next", "href", p.NextLink)
	}
	x.end()
	return x.flush()
}

// WriteAtomEntry writes a single entity as a standalone Atom entry.
func WriteAtomEntry(w io.Writer, p *Page) error {
	l, err := newLayout(p)
	if err != nil {
		return err
	}
	row, err := singleRow(p)
	if err != nil {
		return err
	}

	x := newXMLWriter(w)
	x.start("entry", rootAttrs(p.ServiceRoot)...)
	if err := writeEntryBody(x, p, l, row, formatUpdated(p.Updated)); err != nil {
		return err
	}
	x.end()
	return x.flush()
}

func writeEntryBody(x *xmlWriter, p *Page, l *layout, row engine.Row, updated string) error {
	key, err := l.keySegment(row)
	if err != nil {
		return err
	}
	href := p.EntitySet + key

	x.textElement("id", p.ServiceRoot+href)
	x.empty("category", "term", p.Type.QualifiedName(), "scheme", nsScheme)
	x.empty("link", "rel", "edit", "title", p.EntitySet, "href", href)
	x.empty("title")
	x.textElement("updated", updated)
	x.start("author")
	x.empty("name")
	x.end()

	x.start("content", "type", "application/xml")
	x.start("m:properties")
	for _, c := range l.output {
		raw, err := l.value(row, c)
		if err != nil {
			return err
		}
		tag := "d:" + c.prop.Name
		if raw == nil {
			x.empty(tag, "m:type", c.prop.Type, "m:null", "true")
			continue
		}
		text, err := edm.XMLText(raw, c.prop)
		if err != nil {
			return err
		}
		x.textElement(tag, text, "m:type", c.prop.Type)
	}
	x.end()
	x.end()
	return nil
}

// WriteAtomServiceDocument writes the AtomPub service document with one workspace.
func WriteAtomServiceDocument(w io.Writer, serviceRoot, workspace string, sets []EntitySetInfo) error {
	x := newXMLWriter(w)
	x.start("service", "xml:base", serviceRoot, "xmlns", nsApp, "xmlns:atom", nsAtom)
	x.start("workspace")
	x.textElement("atom:title", workspace)
	for _, s := range sets {
		x.start("collection", "href", s.URL)
		x.textElement("atom:title", s.Name)
		x.end()
	}
	x.end()
	x.end()
	return x.flush()
}
