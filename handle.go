package odata

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/nlstn/go-odata-sql/internal/engine"
	"github.com/nlstn/go-odata-sql/internal/observability"
	"github.com/nlstn/go-odata-sql/internal/query"
	"github.com/nlstn/go-odata-sql/internal/response"
)

// MetadataSegment is the EntitySet value that addresses the metadata document.
const MetadataSegment = "$metadata"

// Request is one read addressed to the service, already split out of the URL.
type Request struct {
	// Method is GET or HEAD; empty means GET.
	Method string
	// EntitySet is empty for the service document and MetadataSegment for the metadata.
	EntitySet string
	// Key is the decoded key predicate between the parentheses, e.g. "1" or "A=1,B='x'".
	// Empty addresses the collection.
	Key string
	// Count addresses the /$count segment of a collection.
	Count bool
	// RawQuery is the undecoded query string.
	RawQuery string
	Accept   string
	// BaseURL is the service root ending in '/'. Config.ServiceRoot takes precedence.
	BaseURL     string
	IfNoneMatch string
}

// Response is the outcome of a request. Status is always set.
type Response struct {
	Status      int
	ContentType string
	Headers     http.Header
	Body        []byte
}

// call carries what a request has resolved so far, for error reporting.
type call struct {
	req       *Request
	root      string
	operation string
	format    query.Format
}

func (s *Service) operationOf(req *Request) string {
	switch {
	case req.EntitySet == "":
		return observability.OpServiceDoc
	case req.EntitySet == MetadataSegment:
		return observability.OpMetadata
	case req.Count:
		return observability.OpCount
	case req.Key != "":
		return observability.OpReadEntity
	}
	return observability.OpReadCollection
}

// Handle serves one request. Failures are turned into OData error documents; Handle
// never returns a nil response.
func (s *Service) Handle(ctx context.Context, req *Request) *Response {
	start := time.Now()
	c := &call{
		req:       req,
		root:      s.rootFor(req),
		operation: s.operationOf(req),
	}

	ctx, span := s.tracer.StartSpan(ctx, "odata."+c.operation,
		observability.OperationAttr(c.operation),
		observability.EntitySetAttr(req.EntitySet),
	)
	defer span.End()

	resp, err := s.dispatch(ctx, span, c)
	if err != nil {
		s.tracer.RecordError(span, err)
		resp = s.errorResponse(ctx, c, err)
	}
	if resp.Headers == nil {
		resp.Headers = make(http.Header)
	}
	resp.Headers.Set(response.HeaderODataVersion, response.ODataVersionValue)

	s.tracer.SetHTTPStatus(ctx, resp.Status)
	s.metrics.RecordRequest(ctx, req.EntitySet, c.operation, resp.Status, time.Since(start))
	return resp
}

func (s *Service) rootFor(req *Request) string {
	if s.serviceRoot != "" {
		return s.serviceRoot
	}
	return normalizeRoot(req.BaseURL)
}

func (s *Service) dispatch(ctx context.Context, span trace.Span, c *call) (*Response, error) {
	req := c.req
	switch req.Method {
	case "", http.MethodGet, http.MethodHead:
	default:
		return nil, fmt.Errorf("%w: %s", ErrMethodNotAllowed, req.Method)
	}

	opts, err := query.ParseRawQuery(req.RawQuery)
	if err != nil {
		return nil, err
	}
	c.format = opts.Format
	if s.observability != nil && s.observability.EnableQueryOptionTracing {
		s.tracer.AddQueryOptions(span, queryOptionText(opts))
	}

	switch req.EntitySet {
	case "":
		return s.serviceDocument(ctx, c, opts)
	case MetadataSegment:
		return s.metadataDocument(ctx, c, opts)
	}

	entry, err := s.types.Get(ctx, req.EntitySet)
	if err != nil {
		return nil, err
	}
	switch {
	case req.Count:
		return s.countCollection(ctx, c, entry, opts)
	case req.Key != "":
		return s.readEntity(ctx, c, entry, opts)
	}
	return s.readCollection(ctx, c, entry, opts)
}

func queryOptionText(opts *query.QueryOptions) observability.QueryOptionText {
	text := observability.QueryOptionText{Top: opts.Top, Skip: opts.Skip, Count: opts.Count}
	text.Filter, _ = opts.Raw("$filter")
	text.Select, _ = opts.Raw("$select")
	text.OrderBy, _ = opts.Raw("$orderby")
	text.Format, _ = opts.Raw("$format")
	return text
}

// rejectOptions fails when any of the named options was sent.
func rejectOptions(opts *query.QueryOptions, resource string, names ...string) error {
	for _, name := range names {
		if _, ok := opts.Raw(name); ok {
			return &query.Error{
				Kind:    query.KindInvalidQueryOption,
				Option:  name,
				Message: "not allowed on " + resource,
			}
		}
	}
	return nil
}

// execute runs a page query inside an engine span.
func (s *Service) execute(ctx context.Context, q engine.Query) (*engine.Result, error) {
	ctx, span := s.tracer.StartEngineCall(ctx, "execute", q.Table)
	defer span.End()
	timing := observability.StartServerTimingWithDesc(ctx, "engine", q.Table)
	defer timing.Stop()

	start := time.Now()
	res, err := s.engine.Execute(ctx, q)
	s.metrics.RecordEngineCall(ctx, "execute", q.Table, time.Since(start))
	if err != nil {
		s.tracer.RecordError(span, err)
		return nil, engineError("execute", err)
	}
	span.SetAttributes(observability.ResultCountAttr(int64(res.NumRows())))
	return res, nil
}

// count runs a count query inside an engine span.
func (s *Service) count(ctx context.Context, q engine.CountQuery) (int64, error) {
	ctx, span := s.tracer.StartEngineCall(ctx, "count", q.Table)
	defer span.End()
	timing := observability.StartServerTimingWithDesc(ctx, "count", q.Table)
	defer timing.Stop()

	start := time.Now()
	n, err := s.engine.Count(ctx, q)
	s.metrics.RecordEngineCall(ctx, "count", q.Table, time.Since(start))
	if err != nil {
		s.tracer.RecordError(span, err)
		return 0, engineError("count", err)
	}
	return n, nil
}

// errorResponse renders err as an error document. Server errors are logged with their
// cause; the document only carries a generic message.
func (s *Service) errorResponse(ctx context.Context, c *call, err error) *Response {
	odataErr := asODataError(err)
	logger := observability.LoggerWithTrace(ctx, s.logger).With(
		observability.LogFieldEntitySet, c.req.EntitySet,
		observability.LogFieldOperation, c.operation,
	)
	if odataErr.StatusCode >= http.StatusInternalServerError {
		logger.Error("Request failed", "code", string(odataErr.Code), observability.LogFieldError, err)
	} else {
		logger.Debug("Request rejected", "code", string(odataErr.Code), "status", odataErr.StatusCode, observability.LogFieldError, err)
	}
	s.metrics.RecordError(ctx, c.req.EntitySet, c.operation, string(odataErr.Code))

	doc := &response.ODataError{
		Code:    string(odataErr.Code),
		Message: odataErr.Message,
		Target:  odataErr.Target,
	}
	var buf bytes.Buffer
	resp := &Response{Status: odataErr.StatusCode, Headers: make(http.Header)}
	if response.IsXML(response.Negotiate(c.format, c.req.Accept, query.FormatAtom)) {
		resp.ContentType = response.ContentTypeXML
		err = response.WriteXMLError(&buf, doc)
	} else {
		resp.ContentType = "application/json"
		err = response.WriteJSONError(&buf, doc)
	}
	if err != nil {
		logger.Error("Failed to write error document", observability.LogFieldError, err)
	}
	resp.Body = buf.Bytes()
	if odataErr.StatusCode == http.StatusMethodNotAllowed {
		resp.Headers.Set("Allow", "GET, HEAD")
	}
	return resp
}
