package filter

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/gorilla/schema"
)

// The URL query string is the only persisted copy of filter intent, so
// encoding and decoding must be lossless for every reachable state:
// Decode(Encode(s)) == Normalize(s). Defaults are omitted to keep shared
// URLs minimal, and decoding never fails on unknown or malformed input.

var decoder = newDecoder()

func newDecoder() *schema.Decoder {
	d := schema.NewDecoder()
	d.IgnoreUnknownKeys(true)
	return d
}

// Encode writes the state into query values, omitting every field that
// holds its default.
func Encode(s State) url.Values {
	s = Normalize(s)
	q := url.Values{}
	if s.Category != "" {
		q.Set("category", s.Category)
	}
	for _, st := range s.States {
		q.Add("state", st)
	}
	if s.Zip != "" {
		q.Set("zip", s.Zip)
	}
	if s.HasCoordinates() {
		q.Set("lat", formatCoord(*s.Lat))
		q.Set("lng", formatCoord(*s.Lng))
	}
	if s.RadiusMiles > 0 {
		q.Set("radius", strconv.Itoa(s.RadiusMiles))
	}
	if len(s.Tags) > 0 {
		q.Set("tags", strings.Join(s.Tags, ","))
	}
	if s.Scope != ScopeAll {
		q.Set("scope", string(s.Scope))
	}
	if s.Sort != DefaultSort {
		q.Set("sort", string(s.Sort))
	}
	if s.Query != "" {
		q.Set("q", s.Query)
	}
	return q
}

// EncodeQuery returns the canonical query-string form of the state, keys
// sorted as url.Values.Encode does.
func EncodeQuery(s State) string {
	return Encode(s).Encode()
}

// Decode parses query values into a normalized state. Unrecognized keys
// are ignored, malformed values are dropped and empty list entries
// collapse to the empty set.
func Decode(q url.Values) State {
	var s State
	// Errors from individual fields are deliberately discarded; a bad
	// value degrades to the zero field and normalization cleans up.
	_ = decoder.Decode(&s, dropEmpty(q))
	s.Tags = splitList(q.Get("tags"))
	return Normalize(s)
}

// DecodeQuery parses a raw query string, tolerating malformed escapes by
// treating an unparseable string as empty.
func DecodeQuery(raw string) State {
	q, err := url.ParseQuery(raw)
	if err != nil {
		q = url.Values{}
	}
	return Decode(q)
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// dropEmpty removes empty values so that "state=" decodes to no states
// instead of one empty entry, and "radius=" does not fail the whole
// decode pass.
func dropEmpty(q url.Values) url.Values {
	out := url.Values{}
	for k, vs := range q {
		for _, v := range vs {
			if v != "" {
				out.Add(k, v)
			}
		}
	}
	return out
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
