package query

import (
	"net/url"
	"testing"
)

func TestParseQueryOptions(t *testing.T) {
	t.Run("all recognized options", func(t *testing.T) {
		opts, err := ParseRawQuery("$filter=Age%20gt%2010&$select=Name,Age&$orderby=Age%20desc,Name&$top=5&$skip=10&$count=true&$format=json")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if opts.Filter == nil {
			t.Fatal("expected a filter")
		}
		if len(opts.Select) != 2 || opts.Select[0] != "Name" || opts.Select[1] != "Age" {
			t.Errorf("expected select [Name Age], got %v", opts.Select)
		}
		if len(opts.OrderBy) != 2 || !opts.OrderBy[0].Descending || opts.OrderBy[1].Descending {
			t.Errorf("unexpected orderby %+v", opts.OrderBy)
		}
		if opts.Top == nil || *opts.Top != 5 {
			t.Errorf("expected top 5, got %v", opts.Top)
		}
		if opts.Skip == nil || *opts.Skip != 10 {
			t.Errorf("expected skip 10, got %v", opts.Skip)
		}
		if !opts.Count {
			t.Error("expected count")
		}
		if opts.Format != FormatJSON {
			t.Errorf("expected json format, got %q", opts.Format)
		}
	})

	t.Run("empty query", func(t *testing.T) {
		opts, err := ParseRawQuery("")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if opts.Filter != nil || opts.Select != nil || opts.Top != nil || opts.Skip != nil || opts.Count {
			t.Errorf("expected zero options, got %+v", opts)
		}
	})

	t.Run("option names are case-insensitive", func(t *testing.T) {
		opts, err := ParseQueryOptions(url.Values{"$TOP": {"3"}})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if opts.Top == nil || *opts.Top != 3 {
			t.Errorf("expected top 3, got %v", opts.Top)
		}
	})

	t.Run("custom options are ignored", func(t *testing.T) {
		if _, err := ParseRawQuery("debug=1&$top=1"); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("select wildcard", func(t *testing.T) {
		opts, err := ParseRawQuery("$select=Name,*")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if opts.Select != nil {
			t.Errorf("expected wildcard select, got %v", opts.Select)
		}
	})
}

func TestParseQueryOptionsErrors(t *testing.T) {
	tests := []struct {
		name  string
		query string
		kind  ErrorKind
	}{
		{"negative top", "$top=-1", KindInvalidQueryOption},
		{"non-numeric skip", "$skip=abc", KindInvalidQueryOption},
		{"top overflow", "$top=99999999999999999999", KindInvalidQueryOption},
		{"signed top", "$top=%2B5", KindInvalidQueryOption},
		{"bad count", "$count=yes", KindInvalidQueryOption},
		{"bad format", "$format=csv", KindInvalidQueryOption},
		{"unknown option", "$foo=1", KindInvalidQueryOption},
		{"duplicate option", "$top=1&$top=2", KindInvalidQueryOption},
		{"duplicate option with different case", "$top=1&$Top=2", KindInvalidQueryOption},
		{"expand", "$expand=Orders", KindUnsupportedOperation},
		{"search", "$search=blue", KindUnsupportedOperation},
		{"apply", "$apply=groupby((Name))", KindUnsupportedOperation},
		{"skiptoken", "$skiptoken=abc", KindUnsupportedOperation},
		{"duplicate select", "$select=Name,Name", KindInvalidProperty},
		{"empty select item", "$select=Name,", KindParse},
		{"select navigation", "$select=Orders/Total", KindUnsupportedOperation},
		{"orderby direction", "$orderby=Name%20up", KindParse},
		{"orderby expression", "$orderby=length(Name)", KindUnsupportedOperation},
		{"empty filter", "$filter=", KindParse},
		{"unbalanced filter", "$filter=(Age%20gt%201", KindParse},
		{"malformed escape", "$filter=%zz", KindInvalidQueryOption},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRawQuery(tt.query)
			if err == nil {
				t.Fatal("expected an error")
			}
			if KindOf(err) != tt.kind {
				t.Errorf("expected %s, got %s (%v)", tt.kind, KindOf(err), err)
			}
		})
	}
}

func TestOrderByDirectionMessage(t *testing.T) {
	_, err := ParseRawQuery("$orderby=Name%20sideways")
	if err == nil {
		t.Fatal("expected an error")
	}
	expected := "invalid $orderby: invalid direction 'sideways', expected 'asc' or 'desc'"
	if err.Error() != expected {
		t.Errorf("expected %q, got %q", expected, err.Error())
	}
}

func TestNextLinkQuery(t *testing.T) {
	opts, err := ParseRawQuery("$count=true&$filter=Joined%20gt%202024-01-01T00:00:00%2B02:00&$top=2&$skip=4&$select=Name&custom=x")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := opts.NextLinkQuery(6)
	expected := "$filter=Joined%20gt%202024-01-01T00%3A00%3A00%2B02%3A00&$select=Name&$top=2&$count=true&$skip=6"
	if got != expected {
		t.Errorf("expected\n%s\ngot\n%s", expected, got)
	}

	again, err := ParseRawQuery(got)
	if err != nil {
		t.Fatalf("next link does not parse: %v", err)
	}
	if again.Filter.String() != opts.Filter.String() {
		t.Errorf("filter changed: %s vs %s", again.Filter, opts.Filter)
	}
	if *again.Skip != 6 || *again.Top != 2 || !again.Count {
		t.Errorf("unexpected options %+v", again)
	}
}
