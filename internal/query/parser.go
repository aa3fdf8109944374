package query

import (
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// Format is the response format requested through $format.
type Format string

const (
	FormatDefault Format = ""
	FormatJSON    Format = "json"
	FormatAtom    Format = "atom"
	// FormatXML is application/xml, served for metadata and the service document.
	FormatXML Format = "xml"
)

// QueryOptions represents parsed OData query options
type QueryOptions struct {
	Filter Predicate
	// Select lists properties in client order; nil selects every property.
	Select  []string
	OrderBy []OrderByItem
	Top     *int64
	Skip    *int64
	Count   bool
	Format  Format

	// raw holds the decoded text of each recognized option, keyed by option name.
	raw map[string]string
}

// OrderByItem represents a single orderby clause
type OrderByItem struct {
	Property   string
	Descending bool
}

// Raw returns the decoded text of a recognized option as sent by the client.
func (o *QueryOptions) Raw(option string) (string, bool) {
	v, ok := o.raw[option]
	return v, ok
}

// recognizedOptions are the system query options understood by the parser.
var recognizedOptions = map[string]bool{
	"$filter":  true,
	"$select":  true,
	"$orderby": true,
	"$top":     true,
	"$skip":    true,
	"$count":   true,
	"$format":  true,
}

// unsupportedOptions are valid OData system query options that this service rejects.
var unsupportedOptions = map[string]bool{
	"$expand":        true,
	"$search":        true,
	"$apply":         true,
	"$compute":       true,
	"$levels":        true,
	"$skiptoken":     true,
	"$deltatoken":    true,
	"$schemaversion": true,
	"$index":         true,
}

// ParseRawQuery parses an undecoded URL query string.
func ParseRawQuery(rawQuery string) (*QueryOptions, error) {
	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		return nil, newError(KindInvalidQueryOption, "", "malformed query string: %v", err)
	}
	return ParseQueryOptions(values)
}

// ParseQueryOptions parses OData query options from the URL. Option names are matched
// case-insensitively; options without a '$' prefix are custom options and ignored.
func ParseQueryOptions(queryParams url.Values) (*QueryOptions, error) {
	options := &QueryOptions{raw: make(map[string]string)}

	names := make([]string, 0, len(queryParams))
	for name := range queryParams {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if !strings.HasPrefix(name, "$") {
			continue
		}
		option := strings.ToLower(name)
		if unsupportedOptions[option] {
			return nil, unsupported(option, "%s is not supported", option)
		}
		if !recognizedOptions[option] {
			return nil, newError(KindInvalidQueryOption, "", "unknown system query option '%s'", name)
		}
		values := queryParams[name]
		if _, seen := options.raw[option]; seen || len(values) > 1 {
			return nil, newError(KindInvalidQueryOption, option, "option specified more than once")
		}
		options.raw[option] = values[0]
	}

	if err := parseFilterOption(options); err != nil {
		return nil, err
	}
	if err := parseSelectOption(options); err != nil {
		return nil, err
	}
	if err := parseOrderByOption(options); err != nil {
		return nil, err
	}
	if err := parseTopOption(options); err != nil {
		return nil, err
	}
	if err := parseSkipOption(options); err != nil {
		return nil, err
	}
	if err := parseCountOption(options); err != nil {
		return nil, err
	}
	if err := parseFormatOption(options); err != nil {
		return nil, err
	}

	return options, nil
}

// parseFilterOption parses the $filter query parameter
func parseFilterOption(options *QueryOptions) error {
	filterStr, ok := options.raw["$filter"]
	if !ok {
		return nil
	}
	filter, err := ParseFilter(filterStr)
	if err != nil {
		return err
	}
	options.Filter = filter
	return nil
}

// parseSelectOption parses the $select query parameter
func parseSelectOption(options *QueryOptions) error {
	selectStr, ok := options.raw["$select"]
	if !ok {
		return nil
	}
	sel, err := parseSelect(selectStr)
	if err != nil {
		return withOption(err, "$select")
	}
	options.Select = sel
	return nil
}

// parseSelect splits a $select list. '*' anywhere selects every property and yields nil.
func parseSelect(selectStr string) ([]string, error) {
	parts := strings.Split(selectStr, ",")
	result := make([]string, 0, len(parts))
	seen := make(map[string]bool, len(parts))
	wildcard := false

	for _, part := range parts {
		name := strings.TrimSpace(part)
		switch {
		case name == "":
			return nil, parseError("", "empty property name")
		case name == "*":
			wildcard = true
			continue
		case strings.ContainsAny(name, "/("):
			return nil, unsupported("", "'%s' is not a structural property", name)
		case !isPropertyName(name):
			return nil, parseError("", "invalid property name '%s'", name)
		case seen[name]:
			return nil, &Error{Kind: KindInvalidProperty, Message: "property '" + name + "' is selected more than once", Target: name}
		}
		seen[name] = true
		result = append(result, name)
	}

	if wildcard {
		return nil, nil
	}
	return result, nil
}

func isPropertyName(s string) bool {
	for i, r := range s {
		if r == '_' || isLetter(r) || (i > 0 && r >= '0' && r <= '9') {
			continue
		}
		return false
	}
	return s != ""
}

func isLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r > 0x7f
}

// parseOrderByOption parses the $orderby query parameter
func parseOrderByOption(options *QueryOptions) error {
	orderByStr, ok := options.raw["$orderby"]
	if !ok {
		return nil
	}
	orderBy, err := parseOrderBy(orderByStr)
	if err != nil {
		return withOption(err, "$orderby")
	}
	options.OrderBy = orderBy
	return nil
}

// parseOrderBy parses the $orderby query option. Only property names can be ordered by.
func parseOrderBy(orderByStr string) ([]OrderByItem, error) {
	parts := strings.Split(orderByStr, ",")
	result := make([]OrderByItem, 0, len(parts))

	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			return nil, parseError("", "empty order by item")
		}
		if strings.ContainsAny(trimmed, "()/") {
			return nil, unsupported("", "ordering by expressions is not supported: '%s'", trimmed)
		}

		// Check for "desc" or "asc" suffix
		tokens := strings.Fields(trimmed)
		if len(tokens) > 2 {
			return nil, parseError("", "unexpected text after '%s %s'", tokens[0], tokens[1])
		}
		item := OrderByItem{
			Property:   tokens[0],
			Descending: false,
		}
		if !isPropertyName(item.Property) {
			return nil, parseError("", "invalid property name '%s'", item.Property)
		}

		if len(tokens) > 1 {
			direction := strings.ToLower(tokens[1])
			if direction == "desc" {
				item.Descending = true
			} else if direction != "asc" {
				return nil, parseError("", "invalid direction '%s', expected 'asc' or 'desc'", tokens[1])
			}
		}

		result = append(result, item)
	}

	return result, nil
}

// parseTopOption parses the $top query parameter
func parseTopOption(options *QueryOptions) error {
	topStr, ok := options.raw["$top"]
	if !ok {
		return nil
	}
	top, err := parseNonNegativeInt(topStr, "$top")
	if err != nil {
		return err
	}
	options.Top = &top
	return nil
}

// parseSkipOption parses the $skip query parameter
func parseSkipOption(options *QueryOptions) error {
	skipStr, ok := options.raw["$skip"]
	if !ok {
		return nil
	}
	skip, err := parseNonNegativeInt(skipStr, "$skip")
	if err != nil {
		return err
	}
	options.Skip = &skip
	return nil
}

// parseCountOption parses the $count query parameter
func parseCountOption(options *QueryOptions) error {
	countStr, ok := options.raw["$count"]
	if !ok {
		return nil
	}
	switch strings.ToLower(countStr) {
	case "true":
		options.Count = true
	case "false":
	default:
		return newError(KindInvalidQueryOption, "$count", "must be 'true' or 'false'")
	}
	return nil
}

// parseFormatOption parses $format. Media type parameters are ignored.
func parseFormatOption(options *QueryOptions) error {
	formatStr, ok := options.raw["$format"]
	if !ok {
		return nil
	}
	mediaType := strings.ToLower(strings.TrimSpace(strings.SplitN(formatStr, ";", 2)[0]))
	switch mediaType {
	case "json", "application/json":
		options.Format = FormatJSON
	case "atom", "application/atom+xml":
		options.Format = FormatAtom
	case "xml", "application/xml":
		options.Format = FormatXML
	default:
		return newError(KindInvalidQueryOption, "$format", "unsupported format '%s'", formatStr)
	}
	return nil
}

// parseNonNegativeInt parses a string of decimal digits that fits in an int64.
func parseNonNegativeInt(str, paramName string) (int64, error) {
	if str == "" || strings.TrimLeft(str, "0123456789") != "" {
		return 0, newError(KindInvalidQueryOption, paramName, "must be a non-negative integer")
	}
	value, err := strconv.ParseInt(str, 10, 64)
	if err != nil {
		return 0, newError(KindInvalidQueryOption, paramName, "must be a non-negative integer")
	}
	return value, nil
}

// nextLinkOrder fixes the option order in next-links.
var nextLinkOrder = []string{"$filter", "$select", "$orderby", "$top", "$count", "$format"}

// NextLinkQuery encodes the query string of the page starting at skip. It carries the
// same filter, select, orderby, top, count and format as the client sent.
func (o *QueryOptions) NextLinkQuery(skip int64) string {
	var b strings.Builder
	for _, option := range nextLinkOrder {
		v, ok := o.raw[option]
		if !ok {
			continue
		}
		writeParam(&b, option, v)
	}
	writeParam(&b, "$skip", strconv.FormatInt(skip, 10))
	return b.String()
}

func writeParam(b *strings.Builder, name, value string) {
	if b.Len() > 0 {
		b.WriteByte('&')
	}
	b.WriteString(name)
	b.WriteByte('=')
	b.WriteString(escapeQueryValue(value))
}

// escapeQueryValue percent-encodes a query value, writing spaces as %20 so that a '+'
// in a datetime offset is never confused with an encoded space.
func escapeQueryValue(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
