// Package response writes OData payloads: JSON and Atom feeds and entries, the service
// document and error documents.
package response

import (
	"encoding/json"
	"encoding/xml"
	"io"
)

const (
	ODataVersionValue  = "4.0"
	HeaderODataVersion = "OData-Version"
)

// Content types of the payloads written by this package.
const (
	ContentTypeJSON      = "application/json;odata.metadata=minimal"
	ContentTypeAtomFeed  = "application/atom+xml;type=feed;charset=utf-8"
	ContentTypeAtomEntry = "application/atom+xml;type=entry;charset=utf-8"
	ContentTypeXML       = "application/xml;charset=utf-8"
	ContentTypeText      = "text/plain;charset=utf-8"
)

// XML namespaces of the Atom payloads.
const (
	nsAtom     = "http://www.w3.org/2005/Atom"
	nsApp      = "http://www.w3.org/2007/app"
	nsData     = "http://schemas.microsoft.com/ado/2007/08/dataservices"
	nsMetadata = "http://schemas.microsoft.com/ado/2007/08/dataservices/metadata"
	nsScheme   = "http://schemas.microsoft.com/ado/2007/08/dataservices/scheme"
)

// ODataErrorDetail represents an additional error detail in an OData error response.
type ODataErrorDetail struct {
	Code    string `json:"code,omitempty"`
	Target  string `json:"target,omitempty"`
	Message string `json:"message"`
}

// ODataError represents the OData v4 compliant error structure.
type ODataError struct {
	Code    string             `json:"code"`
	Message string             `json:"message"`
	Target  string             `json:"target,omitempty"`
	Details []ODataErrorDetail `json:"details,omitempty"`
}

// WriteJSONError writes {"error": {...}}.
func WriteJSONError(w io.Writer, odataError *ODataError) error {
	errorResponse := map[string]any{
		"error": odataError,
	}
	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)
	return encoder.Encode(errorResponse)
}

// WriteXMLError writes the m:error document served alongside Atom payloads.
func WriteXMLError(w io.Writer, odataError *ODataError) error {
	x := newXMLWriter(w)
	x.start("m:error", "xmlns:m", nsMetadata)
	x.textElement("m:code", odataError.Code)
	x.textElement("m:message", odataError.Message)
	if odataError.Target != "" {
		x.textElement("m:target", odataError.Target)
	}
	if len(odataError.Details) > 0 {
		x.start("m:details")
		for _, d := range odataError.Details {
			x.start("m:detail")
			x.textElement("m:code", d.Code)
			x.textElement("m:message", d.Message)
			if d.Target != "" {
				x.textElement("m:target", d.Target)
			}
			x.end()
		}
		x.end()
	}
	x.end()
	return x.flush()
}

// xmlWriter emits prefixed elements through encoding/xml, which escapes text and
// attribute values. The first error is sticky.
type xmlWriter struct {
	enc   *xml.Encoder
	stack []string
	err   error
}

func newXMLWriter(w io.Writer) *xmlWriter {
	x := &xmlWriter{enc: xml.NewEncoder(w)}
	if _, err := io.WriteString(w, xml.Header); err != nil {
		x.err = err
	}
	return x
}

func attrs(kv []string) []xml.Attr {
	out := make([]xml.Attr, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, xml.Attr{Name: xml.Name{Local: kv[i]}, Value: kv[i+1]})
	}
	return out
}

func (x *xmlWriter) token(t xml.Token) {
	if x.err == nil {
		x.err = x.enc.EncodeToken(t)
	}
}

// start opens an element; kv lists attribute names and values alternately.
func (x *xmlWriter) start(name string, kv ...string) {
	x.token(xml.StartElement{Name: xml.Name{Local: name}, Attr: attrs(kv)})
	x.stack = append(x.stack, name)
}

func (x *xmlWriter) end() {
	name := x.stack[len(x.stack)-1]
	x.stack = x.stack[:len(x.stack)-1]
	x.token(xml.EndElement{Name: xml.Name{Local: name}})
}

func (x *xmlWriter) empty(name string, kv ...string) {
	x.start(name, kv...)
	x.end()
}

func (x *xmlWriter) textElement(name, text string, kv ...string) {
	x.start(name, kv...)
	if text != "" {
		x.token(xml.CharData(text))
	}
	x.end()
}

func (x *xmlWriter) flush() error {
	if x.err != nil {
		return x.err
	}
	return x.enc.Flush()
}
