package odata

import (
	"bytes"
	"context"
	"net/http"
	"strings"

	"github.com/nlstn/go-odata-sql/internal/query"
	"github.com/nlstn/go-odata-sql/internal/response"
)

var dataOptions = []string{"$filter", "$select", "$orderby", "$top", "$skip", "$count"}

// metadataDocument serves $metadata as EDMX XML, or as JSON CSDL when JSON is requested.
// The weak ETag allows conditional requests.
func (s *Service) metadataDocument(ctx context.Context, c *call, opts *query.QueryOptions) (*Response, error) {
	if err := rejectOptions(opts, MetadataSegment, dataOptions...); err != nil {
		return nil, err
	}
	doc, err := s.metadata.Get(ctx)
	if err != nil {
		return nil, err
	}

	headers := make(http.Header)
	headers.Set("ETag", doc.ETag)
	if etagMatches(c.req.IfNoneMatch, doc.ETag) {
		return &Response{Status: http.StatusNotModified, Headers: headers}, nil
	}

	format := response.Negotiate(opts.Format, c.req.Accept, query.FormatXML)
	c.format = format
	if format == query.FormatJSON {
		return &Response{Status: http.StatusOK, ContentType: "application/json", Headers: headers, Body: doc.JSON}, nil
	}
	return &Response{Status: http.StatusOK, ContentType: response.ContentTypeXML, Headers: headers, Body: doc.XML}, nil
}

// etagMatches applies the weak comparison of If-None-Match.
func etagMatches(header, etag string) bool {
	if header == "" {
		return false
	}
	want := strings.TrimPrefix(etag, "W/")
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || strings.TrimPrefix(candidate, "W/") == want {
			return true
		}
	}
	return false
}

// serviceDocument lists the entity sets, as JSON or as an AtomPub service document.
func (s *Service) serviceDocument(ctx context.Context, c *call, opts *query.QueryOptions) (*Response, error) {
	if err := rejectOptions(opts, "the service document", dataOptions...); err != nil {
		return nil, err
	}
	names := s.EntitySets()
	sets := make([]response.EntitySetInfo, len(names))
	for i, name := range names {
		sets[i] = response.EntitySetInfo{Name: name, URL: name}
	}

	format := response.Negotiate(opts.Format, c.req.Accept, query.FormatAtom)
	c.format = format
	var (
		buf bytes.Buffer
		err error
	)
	resp := &Response{Status: http.StatusOK}
	if response.IsXML(format) {
		resp.ContentType = "application/atomsvc+xml;charset=utf-8"
		err = response.WriteAtomServiceDocument(&buf, c.root, s.namespace, sets)
	} else {
		resp.ContentType = response.ContentTypeJSON
		err = response.WriteJSONServiceDocument(&buf, c.root, sets)
	}
	if err != nil {
		return nil, err
	}
	resp.Body = buf.Bytes()
	return resp, nil
}
