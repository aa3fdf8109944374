package response

import (
	"strconv"
	"strings"

	"github.com/nlstn/go-odata-sql/internal/query"
)

type mediaRange struct {
	mimeType string
	quality  float64
}

// parseAccept splits an Accept header into media ranges. Malformed quality values count
// as 1.
func parseAccept(accept string) []mediaRange {
	parts := strings.Split(accept, ",")
	ranges := make([]mediaRange, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		subparts := strings.Split(part, ";")
		mimeType := strings.ToLower(strings.TrimSpace(subparts[0]))
		quality := 1.0

		for _, param := range subparts[1:] {
			param = strings.TrimSpace(param)
			if strings.HasPrefix(param, "q=") {
				if q, err := strconv.ParseFloat(param[2:], 64); err == nil && q >= 0 && q <= 1 {
					quality = q
				}
			}
		}

		ranges = append(ranges, mediaRange{mimeType: mimeType, quality: quality})
	}
	return ranges
}

// Negotiate picks the response format. An explicit $format wins over the Accept header.
// Otherwise the supported media type with the highest quality is chosen, and ties go to
// fallback. Wildcards, an absent header and unsupported media types yield fallback.
func Negotiate(explicit query.Format, accept string, fallback query.Format) query.Format {
	if explicit != query.FormatDefault {
		return explicit
	}

	var bestJSON, bestAtom, bestXML float64
	for _, mr := range parseAccept(accept) {
		switch mr.mimeType {
		case "application/json":
			bestJSON = max(bestJSON, mr.quality)
		case "application/atom+xml":
			bestAtom = max(bestAtom, mr.quality)
		case "application/xml", "text/xml":
			bestXML = max(bestXML, mr.quality)
		}
	}

	best := map[query.Format]float64{
		query.FormatJSON: bestJSON,
		query.FormatAtom: bestAtom,
		query.FormatXML:  bestXML,
	}
	chosen, quality := fallback, best[fallback]
	for _, f := range []query.Format{query.FormatJSON, query.FormatAtom, query.FormatXML} {
		if best[f] > quality {
			chosen, quality = f, best[f]
		}
	}
	return chosen
}

// IsXML reports whether f selects one of the XML payload families.
func IsXML(f query.Format) bool {
	return f == query.FormatAtom || f == query.FormatXML
}
