package odata

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// ServeHTTP implements http.Handler. Unless Config.ServiceRoot is set, the service root
// in context URLs and next links is derived from the request, including the prefix
// removed by http.StripPrefix.
func (s *Service) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Service) serveHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, span := s.tracer.StartRequest(r.Context(), r)
	defer span.End()

	req := &Request{
		Method:      r.Method,
		RawQuery:    r.URL.RawQuery,
		Accept:      r.Header.Get("Accept"),
		BaseURL:     baseURL(r),
		IfNoneMatch: r.Header.Get("If-None-Match"),
	}

	var resp *Response
	if err := parsePath(r.URL.EscapedPath(), req); err != nil {
		c := &call{req: req, root: s.rootFor(req), operation: s.operationOf(req)}
		resp = s.errorResponse(ctx, c, err)
		s.tracer.SetHTTPStatus(ctx, resp.Status)
	} else {
		resp = s.Handle(ctx, req)
	}

	header := w.Header()
	for name, values := range resp.Headers {
		header[name] = values
	}
	if resp.ContentType != "" {
		header.Set("Content-Type", resp.ContentType)
	}
	if resp.Status != http.StatusNotModified {
		header.Set("Content-Length", strconv.Itoa(len(resp.Body)))
	}
	w.WriteHeader(resp.Status)
	if r.Method != http.MethodHead && len(resp.Body) > 0 {
		if _, err := w.Write(resp.Body); err != nil {
			s.logger.Debug("Failed to write response body", "error", err)
		}
	}
}

// parsePath splits an escaped request path into entity set, key and $count segments.
// Recognized forms: "/", "/$metadata", "/Set", "/Set/$count", "/Set(key)".
func parsePath(escaped string, req *Request) error {
	path := strings.Trim(escaped, "/")
	if path == "" {
		return nil
	}
	if path == MetadataSegment {
		req.EntitySet = MetadataSegment
		return nil
	}

	segments := strings.Split(path, "/")
	if len(segments) > 2 {
		return fmt.Errorf("%w: /%s", ErrEntitySetNotFound, path)
	}
	head := segments[0]

	name := head
	if open := strings.IndexByte(head, '('); open >= 0 {
		if !strings.HasSuffix(head, ")") {
			return fmt.Errorf("%w: unbalanced parentheses in '%s'", ErrInvalidKey, head)
		}
		name = head[:open]
		key, err := url.PathUnescape(head[open+1 : len(head)-1])
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidKey, err)
		}
		if strings.TrimSpace(key) == "" {
			return fmt.Errorf("%w: empty key predicate", ErrInvalidKey)
		}
		req.Key = key
	}
	entitySet, err := url.PathUnescape(name)
	if err != nil || entitySet == "" || entitySet == MetadataSegment {
		return fmt.Errorf("%w: /%s", ErrEntitySetNotFound, path)
	}
	req.EntitySet = entitySet

	if len(segments) == 2 {
		if segments[1] != "$count" || req.Key != "" {
			return fmt.Errorf("%w: /%s", ErrEntitySetNotFound, path)
		}
		req.Count = true
	}
	return nil
}

// baseURL derives the service root from the request, honoring X-Forwarded-Proto and
// any prefix removed by http.StripPrefix.
func baseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = strings.ToLower(strings.TrimSpace(strings.Split(proto, ",")[0]))
	}
	return scheme + "://" + r.Host + mountPrefix(r) + "/"
}

// mountPrefix returns the part of the original request path that precedes r.URL.Path,
// without a trailing slash.
func mountPrefix(r *http.Request) string {
	if r.RequestURI == "" {
		return ""
	}
	original, err := url.ParseRequestURI(r.RequestURI)
	if err != nil {
		return ""
	}
	full, stripped := original.EscapedPath(), r.URL.EscapedPath()
	if len(full) <= len(stripped) || !strings.HasSuffix(full, stripped) {
		return ""
	}
	return strings.TrimSuffix(strings.TrimSuffix(full, stripped), "/")
}

// ListenAndServe starts the OData service on the specified address.
func (s *Service) ListenAndServe(addr string) error {
	s.logger.Info("Starting OData service", "addr", addr)
	return http.ListenAndServe(addr, s)
}
