package response

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nlstn/go-odata-sql/internal/edm"
	"github.com/nlstn/go-odata-sql/internal/engine"
	"github.com/nlstn/go-odata-sql/internal/query"
	"github.com/nlstn/go-odata-sql/internal/schema"
)

var updated = time.Date(2024, 3, 10, 0, 36, 45, 0, time.UTC)

func peopleType(t *testing.T) *edm.EntityType {
	t.Helper()
	sch := schema.Schema{
		Fields: []schema.Field{
			{Name: "ID", Type: schema.DataType{Kind: schema.Int64}},
			{Name: "Name", Type: schema.DataType{Kind: schema.Utf8}, Nullable: true},
			{Name: "Balance", Type: schema.DataType{Kind: schema.Decimal, Precision: 10, Scale: 2}, Nullable: true},
			{Name: "Joined", Type: schema.DataType{Kind: schema.Timestamp, Unit: schema.Millisecond, TimeZone: "UTC"}, Nullable: true},
		},
		PrimaryKey: []string{"ID"},
	}
	et, err := edm.DeriveEntityType("People", sch, edm.DeriveOptions{Namespace: "default"})
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	return et
}

func peoplePage(t *testing.T) *Page {
	return &Page{
		ServiceRoot: "http://host/odata/",
		EntitySet:   "People",
		Type:        peopleType(t),
		Columns:     []string{"ID", "Name", "Balance", "Joined"},
		Output:      []string{"ID", "Name", "Balance", "Joined"},
		Rows: []engine.Row{
			{int64(1), "Alice <&>", decimal.RequireFromString("10.5"), time.Date(2024, 1, 2, 3, 4, 5, 6000000, time.UTC)},
			{int64(2), nil, nil, nil},
		},
		Updated: updated,
	}
}

func TestNegotiate(t *testing.T) {
	tests := []struct {
		name     string
		explicit query.Format
		accept   string
		fallback query.Format
		want     query.Format
	}{
		{"no accept header uses fallback", query.FormatDefault, "", query.FormatAtom, query.FormatAtom},
		{"wildcard uses fallback", query.FormatDefault, "*/*", query.FormatAtom, query.FormatAtom},
		{"json", query.FormatDefault, "application/json", query.FormatAtom, query.FormatJSON},
		{"json with parameters", query.FormatDefault, "application/json;odata.metadata=minimal", query.FormatAtom, query.FormatJSON},
		{"atom", query.FormatDefault, "application/atom+xml", query.FormatXML, query.FormatAtom},
		{"xml", query.FormatDefault, "application/xml", query.FormatAtom, query.FormatXML},
		{"quality wins", query.FormatDefault, "application/json;q=0.5, application/atom+xml;q=0.9", query.FormatXML, query.FormatAtom},
		{"tie goes to fallback", query.FormatDefault, "application/json, application/atom+xml", query.FormatAtom, query.FormatAtom},
		{"unsupported type uses fallback", query.FormatDefault, "text/html", query.FormatXML, query.FormatXML},
		{"explicit format overrides accept", query.FormatXML, "application/json", query.FormatAtom, query.FormatXML},
		{"zero quality is ignored", query.FormatDefault, "application/json;q=0", query.FormatAtom, query.FormatAtom},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Negotiate(tt.explicit, tt.accept, tt.fallback); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestWriteJSONFeed(t *testing.T) {
	p := peoplePage(t)
	count := int64(7)
	p.Count = &count
	p.NextLink = "http://host/odata/People?$skip=2"

	var buf bytes.Buffer
	if err := WriteJSONFeed(&buf, p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := `{"@odata.context":"http://host/odata/$metadata#People","@odata.count":7,"value":[` +
		`{"ID":1,"Name":"Alice <&>","Balance":10.50,"Joined":"2024-01-02T03:04:05.006Z"},` +
		`{"ID":2,"Name":null,"Balance":null,"Joined":null}],` +
		`"@odata.nextLink":"http://host/odata/People?$skip=2"}` + "\n"
	if buf.String() != expected {
		t.Errorf("unexpected body:\n%s\nwant:\n%s", buf.String(), expected)
	}
}

func TestWriteJSONFeedSelect(t *testing.T) {
	p := peoplePage(t)
	p.Output = []string{"Name"}
	p.Select = []string{"Name"}

	var buf bytes.Buffer
	if err := WriteJSONFeed(&buf, p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var body map[string]any
	if err := json.Unmarshal(buf.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if body["@odata.context"] != "http://host/odata/$metadata#People(Name)" {
		t.Errorf("unexpected context %v", body["@odata.context"])
	}
	first := body["value"].([]any)[0].(map[string]any)
	if len(first) != 1 || first["Name"] != "Alice <&>" {
		t.Errorf("expected only Name, got %v", first)
	}
	if _, ok := body["@odata.count"]; ok {
		t.Error("count should be absent without $count")
	}
}

func TestWriteJSONEntry(t *testing.T) {
	p := peoplePage(t)
	p.Rows = p.Rows[:1]

	var buf bytes.Buffer
	if err := WriteJSONEntry(&buf, p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(buf.String(), `{"@odata.context":"http://host/odata/$metadata#People/$entity","ID":1,`) {
		t.Errorf("unexpected body %s", buf.String())
	}

	p.Rows = nil
	if err := WriteJSONEntry(&buf, p); !errors.Is(err, edm.ErrSerialization) {
		t.Errorf("expected serialization error, got %v", err)
	}
}

type atomFeed struct {
	XMLName xml.Name `xml:"feed"`
	Base    string   `xml:"base,attr"`
	ID      string   `xml:"id"`
	Title   string   `xml:"title"`
	Updated string   `xml:"updated"`
	Count   string   `xml:"count"`
	Links   []struct {
		Rel  string `xml:"rel,attr"`
		Href string `xml:"href,attr"`
	} `xml:"link"`
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	ID       string `xml:"id"`
	Category struct {
		Term string `xml:"term,attr"`
	} `xml:"category"`
	Link struct {
		Rel  string `xml:"rel,attr"`
		Href string `xml:"href,attr"`
	} `xml:"link"`
	Content struct {
		Type       string `xml:"type,attr"`
		Properties struct {
			Values []struct {
				XMLName xml.Name
				Type    string `xml:"type,attr"`
				Null    string `xml:"null,attr"`
				Text    string `xml:",chardata"`
			} `xml:",any"`
		} `xml:"properties"`
	} `xml:"content"`
}

func TestWriteAtomFeed(t *testing.T) {
	p := peoplePage(t)
	count := int64(2)
	p.Count = &count
	p.NextLink = "http://host/odata/People?$top=1&$skip=1"

	var buf bytes.Buffer
	if err := WriteAtomFeed(&buf, p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(buf.String(), xml.Header) {
		t.Error("expected XML declaration")
	}

	var feed atomFeed
	if err := xml.Unmarshal(buf.Bytes(), &feed); err != nil {
		t.Fatalf("feed does not parse: %v\n%s", err, buf.String())
	}
	if feed.Base != "http://host/odata/" || feed.ID != "http://host/odata/People" || feed.Title != "People" {
		t.Errorf("unexpected feed header: %+v", feed)
	}
	if feed.Updated != "2024-03-10T00:36:45Z" {
		t.Errorf("unexpected updated %s", feed.Updated)
	}
	if feed.Count != "2" {
		t.Errorf("expected m:count 2, got %q", feed.Count)
	}
	if len(feed.Links) != 2 || feed.Links[0].Rel != "self" || feed.Links[1].Rel != "next" || feed.Links[1].Href != p.NextLink {
		t.Errorf("unexpected links: %+v", feed.Links)
	}
	if len(feed.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(feed.Entries))
	}

	first := feed.Entries[0]
	if first.ID != "http://host/odata/People(1)" || first.Link.Href != "People(1)" || first.Link.Rel != "edit" {
		t.Errorf("unexpected entry identity: %+v", first)
	}
	if first.Category.Term != "default.People" {
		t.Errorf("unexpected category %s", first.Category.Term)
	}
	if first.Content.Type != "application/xml" {
		t.Errorf("unexpected content type %s", first.Content.Type)
	}
	values := first.Content.Properties.Values
	if len(values) != 4 {
		t.Fatalf("expected 4 properties, got %d", len(values))
	}
	if values[1].XMLName.Local != "Name" || values[1].Text != "Alice <&>" || values[1].Type != edm.TypeString {
		t.Errorf("unexpected Name property: %+v", values[1])
	}
	if values[2].Text != "10.50" {
		t.Errorf("expected decimal at declared scale, got %s", values[2].Text)
	}

	for _, v := range feed.Entries[1].Content.Properties.Values[1:] {
		if v.Null != "true" || v.Text != "" {
			t.Errorf("expected explicit null for %s, got %+v", v.XMLName.Local, v)
		}
	}
}

func TestWriteAtomEntry(t *testing.T) {
	et := &edm.EntityType{
		Name:      "Orders",
		Namespace: "default",
		Key:       []string{"Region", "Number"},
		Properties: []edm.Property{
			{Name: "Region", Type: edm.TypeString, Native: schema.DataType{Kind: schema.Utf8}},
			{Name: "Number", Type: edm.TypeInt32, Native: schema.DataType{Kind: schema.Int32}},
		},
	}
	p := &Page{
		ServiceRoot: "http://host/",
		EntitySet:   "Orders",
		Type:        et,
		Columns:     []string{"Region", "Number"},
		Output:      []string{"Number"},
		Rows:        []engine.Row{{"it's eu/west", int32(7)}},
		Updated:     updated,
	}

	var buf bytes.Buffer
	if err := WriteAtomEntry(&buf, p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var entry atomEntry
	if err := xml.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("entry does not parse: %v", err)
	}
	if entry.Link.Href != "Orders(Region='it''s%20eu%2Fwest',Number=7)" {
		t.Errorf("unexpected edit link %s", entry.Link.Href)
	}
	if len(entry.Content.Properties.Values) != 1 || entry.Content.Properties.Values[0].Text != "7" {
		t.Errorf("unexpected properties %+v", entry.Content.Properties.Values)
	}
}

func TestWriteServiceDocuments(t *testing.T) {
	sets := []EntitySetInfo{{Name: "Orders", URL: "Orders"}, {Name: "People", URL: "People"}}

	var buf bytes.Buffer
	if err := WriteJSONServiceDocument(&buf, "http://host/", sets); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := `{"@odata.context":"http://host/$metadata","value":[` +
		`{"name":"Orders","kind":"EntitySet","url":"Orders"},{"name":"People","kind":"EntitySet","url":"People"}]}` + "\n"
	if buf.String() != expected {
		t.Errorf("unexpected JSON service document %s", buf.String())
	}

	buf.Reset()
	if err := WriteAtomServiceDocument(&buf, "http://host/", "default", sets); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var svc struct {
		XMLName   xml.Name `xml:"service"`
		Workspace struct {
			Title       string `xml:"title"`
			Collections []struct {
				Href  string `xml:"href,attr"`
				Title string `xml:"title"`
			} `xml:"collection"`
		} `xml:"workspace"`
	}
	if err := xml.Unmarshal(buf.Bytes(), &svc); err != nil {
		t.Fatalf("service document does not parse: %v", err)
	}
	if svc.Workspace.Title != "default" || len(svc.Workspace.Collections) != 2 || svc.Workspace.Collections[1].Href != "People" {
		t.Errorf("unexpected service document %+v", svc)
	}
}

func TestWriteErrors(t *testing.T) {
	odataErr := &ODataError{Code: "UnknownField", Message: "property 'Bogus' <not> found", Target: "Bogus"}

	var buf bytes.Buffer
	if err := WriteJSONError(&buf, odataErr); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := `{"error":{"code":"UnknownField","message":"property 'Bogus' <not> found","target":"Bogus"}}` + "\n"
	if buf.String() != expected {
		t.Errorf("unexpected JSON error %s", buf.String())
	}

	buf.Reset()
	if err := WriteXMLError(&buf, odataErr); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var doc struct {
		XMLName xml.Name `xml:"error"`
		Code    string   `xml:"code"`
		Message string   `xml:"message"`
		Target  string   `xml:"target"`
	}
	if err := xml.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("XML error does not parse: %v", err)
	}
	if doc.Code != odataErr.Code || doc.Message != odataErr.Message || doc.Target != "Bogus" {
		t.Errorf("unexpected XML error %+v", doc)
	}
}

func TestLayoutErrors(t *testing.T) {
	p := peoplePage(t)
	p.Output = []string{"Missing"}
	if err := WriteJSONFeed(&bytes.Buffer{}, p); !errors.Is(err, edm.ErrSerialization) {
		t.Errorf("expected serialization error for unknown property, got %v", err)
	}

	p = peoplePage(t)
	p.Columns = []string{"Name"}
	p.Output = []string{"Name"}
	if err := WriteAtomFeed(&bytes.Buffer{}, p); !errors.Is(err, edm.ErrSerialization) {
		t.Errorf("expected serialization error for unfetched key, got %v", err)
	}

	p = peoplePage(t)
	p.Rows = []engine.Row{{"not an int", nil, nil, nil}}
	if err := WriteJSONFeed(&bytes.Buffer{}, p); !errors.Is(err, edm.ErrSerialization) {
		t.Errorf("expected serialization error for mistyped value, got %v", err)
	}
}
