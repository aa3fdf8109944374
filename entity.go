package odata

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	"github.com/nlstn/go-odata-sql/internal/catalog"
	"github.com/nlstn/go-odata-sql/internal/engine"
	"github.com/nlstn/go-odata-sql/internal/query"
	"github.com/nlstn/go-odata-sql/internal/response"
)

// readEntity serves Set(key). Only $select and $format apply to a single entity.
func (s *Service) readEntity(ctx context.Context, c *call, entry *catalog.Entry, opts *query.QueryOptions) (*Response, error) {
	if err := rejectOptions(opts, "a single entity", "$filter", "$orderby", "$top", "$skip", "$count"); err != nil {
		return nil, err
	}
	et, table := entry.Type, entry.Binding.Table
	ctx, span := s.tracer.StartEntityRead(ctx, c.req.EntitySet, table, c.req.Key)
	defer span.End()

	filter, err := keyFilter(et, c.req.Key)
	if err != nil {
		return nil, err
	}
	output, projection, err := query.ResolveSelect(et, opts.Select)
	if err != nil {
		return nil, err
	}

	// Two rows are fetched so that a key matching several rows is detected.
	res, err := s.execute(ctx, engine.Query{
		Table:      table,
		Projection: projection,
		Filter:     filter,
		Limit:      2,
	})
	if err != nil {
		return nil, err
	}
	rows := res.Rows()
	switch len(rows) {
	case 0:
		return nil, fmt.Errorf("%w: %s(%s)", ErrEntityNotFound, c.req.EntitySet, c.req.Key)
	case 1:
	default:
		return nil, fmt.Errorf("%w: key (%s) of %s matched more than one row", ErrEngineExecution, c.req.Key, table)
	}

	page := &response.Page{
		ServiceRoot: c.root,
		EntitySet:   c.req.EntitySet,
		Type:        et,
		Columns:     projection,
		Output:      output,
		Select:      opts.Select,
		Rows:        rows,
		Updated:     s.clock(),
	}

	format := response.Negotiate(opts.Format, c.req.Accept, query.FormatAtom)
	c.format = format
	var buf bytes.Buffer
	resp := &Response{Status: http.StatusOK}
	if response.IsXML(format) {
		resp.ContentType = response.ContentTypeAtomEntry
		err = response.WriteAtomEntry(&buf, page)
	} else {
		resp.ContentType = response.ContentTypeJSON
		err = response.WriteJSONEntry(&buf, page)
	}
	if err != nil {
		return nil, err
	}
	resp.Body = buf.Bytes()
	return resp, nil
}
