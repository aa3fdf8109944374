package odata

import (
	"bytes"
	"context"
	"net/http"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/nlstn/go-odata-sql/internal/catalog"
	"github.com/nlstn/go-odata-sql/internal/engine"
	"github.com/nlstn/go-odata-sql/internal/observability"
	"github.com/nlstn/go-odata-sql/internal/query"
	"github.com/nlstn/go-odata-sql/internal/response"
)

// pageSize returns min(top ?? default, max), or -1 when the page is unbounded.
func (s *Service) pageSize(top *int64) int64 {
	size := int64(-1)
	switch {
	case top != nil:
		size = *top
	case s.defaultPageSize > 0:
		size = s.defaultPageSize
	}
	if s.maxPageSize > 0 && (size < 0 || size > s.maxPageSize) {
		size = s.maxPageSize
	}
	return size
}

// readCollection serves one page of an entity set. One row past the page is fetched to
// decide whether a next link is needed; the count query runs concurrently.
func (s *Service) readCollection(ctx context.Context, c *call, entry *catalog.Entry, opts *query.QueryOptions) (*Response, error) {
	et, table := entry.Type, entry.Binding.Table
	ctx, span := s.tracer.StartEntityRead(ctx, c.req.EntitySet, table, "")
	defer span.End()

	plan, err := query.Translate(et, table, opts)
	if err != nil {
		return nil, err
	}

	top := s.pageSize(opts.Top)
	var skip int64
	if opts.Skip != nil {
		skip = *opts.Skip
	}
	q := plan.Query
	q.Offset = skip
	switch {
	case top == 0:
		q.Limit = 0
	case top > 0:
		q.Limit = top + 1
	}

	var (
		result *engine.Result
		total  *int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		res, err := s.execute(gctx, q)
		result = res
		return err
	})
	if opts.Count {
		g.Go(func() error {
			n, err := s.count(gctx, plan.Count)
			total = &n
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	rows := result.Rows()
	var nextLink string
	if top > 0 && int64(len(rows)) > top {
		rows = rows[:top]
		nextLink = c.root + c.req.EntitySet + "?" + opts.NextLinkQuery(skip+top)
	}
	span.SetAttributes(
		observability.ResultCountAttr(int64(len(rows))),
		observability.HasNextLinkAttr(nextLink != ""),
	)
	s.metrics.RecordResultCount(ctx, c.req.EntitySet, int64(len(rows)))

	page := &response.Page{
		ServiceRoot: c.root,
		EntitySet:   c.req.EntitySet,
		Type:        et,
		Columns:     q.Projection,
		Output:      plan.Output,
		Select:      opts.Select,
		Rows:        rows,
		Count:       total,
		NextLink:    nextLink,
		Updated:     s.clock(),
	}

	format := response.Negotiate(opts.Format, c.req.Accept, query.FormatAtom)
	c.format = format
	var buf bytes.Buffer
	resp := &Response{Status: http.StatusOK}
	if response.IsXML(format) {
		resp.ContentType = response.ContentTypeAtomFeed
		err = response.WriteAtomFeed(&buf, page)
	} else {
		resp.ContentType = response.ContentTypeJSON
		err = response.WriteJSONFeed(&buf, page)
	}
	if err != nil {
		return nil, err
	}
	resp.Body = buf.Bytes()
	return resp, nil
}

// countCollection serves /Set/$count as plain text. Only $filter applies.
func (s *Service) countCollection(ctx context.Context, c *call, entry *catalog.Entry, opts *query.QueryOptions) (*Response, error) {
	if err := rejectOptions(opts, "$count", "$select", "$orderby", "$top", "$skip", "$count"); err != nil {
		return nil, err
	}
	ctx, span := s.tracer.StartEntityRead(ctx, c.req.EntitySet, entry.Binding.Table, "")
	defer span.End()

	filter, err := query.TranslateFilter(entry.Type, opts.Filter)
	if err != nil {
		return nil, err
	}
	n, err := s.count(ctx, engine.CountQuery{Table: entry.Binding.Table, Filter: filter})
	if err != nil {
		return nil, err
	}
	return &Response{
		Status:      http.StatusOK,
		ContentType: response.ContentTypeText,
		Body:        []byte(strconv.FormatInt(n, 10)),
	}, nil
}
