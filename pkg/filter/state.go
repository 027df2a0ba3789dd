package filter

import (
	"slices"
	"strings"
)

// Scope narrows the catalog to entries of a given reach.
type Scope string

const (
	ScopeAll      Scope = "all"
	ScopeNational Scope = "national"
	ScopeState    Scope = "state"
)

// Sort selects the ordering applied inside each result section.
type Sort string

const (
	SortOfficial  Sort = "official"
	SortRelevance Sort = "relevance"
	SortDistance  Sort = "distance"
	SortNewest    Sort = "newest"
	SortAlpha     Sort = "alpha"
	SortShuffle   Sort = "shuffle"
)

const DefaultSort = SortNewest

var validSorts = map[Sort]struct{}{
	SortOfficial:  {},
	SortRelevance: {},
	SortDistance:  {},
	SortNewest:    {},
	SortAlpha:     {},
	SortShuffle:   {},
}

// State is the canonical representation of every active filter dimension.
// All mutation goes through Apply so the invariants hold at every
// transition: at most one of zip, device coordinates and state codes is
// authoritative, tags only exist while their owning category is selected,
// and the sort order never references a location or query that is absent.
type State struct {
	Category    string   `json:"category,omitempty" schema:"category"`
	States      []string `json:"states,omitempty" schema:"state"`
	Zip         string   `json:"zip,omitempty" schema:"zip"`
	RadiusMiles int      `json:"radius,omitempty" schema:"radius"`
	Lat         *float64 `json:"lat,omitempty" schema:"lat"`
	Lng         *float64 `json:"lng,omitempty" schema:"lng"`
	Tags        []string `json:"tags,omitempty" schema:"-"`
	Scope       Scope    `json:"scope,omitempty" schema:"scope"`
	Sort        Sort     `json:"sort,omitempty" schema:"sort"`
	Query       string   `json:"query,omitempty" schema:"q"`
}

// Update is a partial change to a State. Nil fields are untouched. When
// more than one location field is present in a single update, zip wins
// over coordinates, coordinates win over states.
type Update struct {
	Category *string
	States   *[]string
	Zip      *string
	Radius   *int
	Lat      *float64
	Lng      *float64
	Tags     *[]string
	Scope    *Scope
	Sort     *Sort
	Query    *string
}

// ValidZip reports whether s is a complete 5-digit ZIP code. Partial
// input, as typed digit by digit, is not valid and never reaches the
// network.
func ValidZip(s string) bool {
	if len(s) != 5 {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func (s State) HasCoordinates() bool {
	return s.Lat != nil && s.Lng != nil
}

// HasLocation reports whether a distance reference can be resolved, via
// either a complete ZIP or device coordinates.
func (s State) HasLocation() bool {
	return ValidZip(s.Zip) || s.HasCoordinates()
}

// Apply merges a partial update into the state and normalizes the result.
// It never fails; conflicting combinations are resolved by clearing the
// older fields, so the most recently set one wins.
func (s State) Apply(u Update) State {
	if u.Category != nil && *u.Category != s.Category {
		s.Category = *u.Category
		s.Tags = nil
	}
	if u.Tags != nil {
		s.Tags = slices.Clone(*u.Tags)
	}
	if u.Zip != nil {
		s.Zip = *u.Zip
		s.Lat, s.Lng = nil, nil
		s.States = nil
	} else if u.Lat != nil && u.Lng != nil {
		s.Lat, s.Lng = u.Lat, u.Lng
		s.Zip = ""
		s.States = nil
	} else if u.States != nil {
		s.States = slices.Clone(*u.States)
		if len(s.States) > 0 {
			s.Zip = ""
			s.Lat, s.Lng = nil, nil
		}
	}
	if u.Radius != nil {
		s.RadiusMiles = *u.Radius
	}
	if u.Scope != nil {
		s.Scope = *u.Scope
	}
	if u.Sort != nil {
		s.Sort = *u.Sort
	}
	if u.Query != nil {
		s.Query = *u.Query
	}
	return Normalize(s)
}

// Normalize resolves any combination of fields into a state that
// satisfies the invariants. Invalid input is dropped silently, never
// reported as an error.
func Normalize(s State) State {
	if s.Zip != "" && !ValidZip(s.Zip) {
		s.Zip = ""
	}
	if (s.Lat == nil) != (s.Lng == nil) {
		s.Lat, s.Lng = nil, nil
	}

	// Location exclusivity. A decoded URL can carry several location
	// fields at once; zip wins over coordinates, coordinates over states.
	if s.Zip != "" {
		s.Lat, s.Lng = nil, nil
		s.States = nil
	} else if s.HasCoordinates() {
		s.States = nil
	}
	s.States = normalizeStates(s.States)

	if s.RadiusMiles < 0 || !s.HasLocation() {
		s.RadiusMiles = 0
	}

	if s.Category == "" {
		s.Tags = nil
	} else {
		s.Tags = normalizeSet(s.Tags)
	}

	switch s.Scope {
	case ScopeNational, ScopeState:
	default:
		s.Scope = ScopeAll
	}

	if _, ok := validSorts[s.Sort]; !ok {
		s.Sort = DefaultSort
	}
	if s.Sort == SortDistance && !s.HasLocation() {
		s.Sort = DefaultSort
	}
	if s.Sort == SortRelevance && s.Query == "" {
		s.Sort = DefaultSort
	}
	return s
}

func normalizeStates(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.ToUpper(strings.TrimSpace(v))
		if v != "" {
			out = append(out, v)
		}
	}
	return dedupeSorted(out)
}

func normalizeSet(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v != "" {
			out = append(out, v)
		}
	}
	return dedupeSorted(out)
}

func dedupeSorted(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	slices.Sort(in)
	return slices.Compact(in)
}

// ActiveFilterCount is the number of independently clearable selections,
// driving the filter badge. A ZIP (with its radius) or a device location
// counts as one unit, each selected state and tag counts on its own, and
// a narrowed scope or free-text query each add one.
func (s State) ActiveFilterCount() int {
	n := 0
	if s.Category != "" {
		n++
	}
	n += len(s.States)
	if s.Zip != "" || s.HasCoordinates() {
		n++
	}
	n += len(s.Tags)
	if s.Scope != ScopeAll && s.Scope != "" {
		n++
	}
	if s.Query != "" {
		n++
	}
	return n
}

// Signature is a stable key for the normalized state, used for cache
// scoping and the per-session shuffle seed.
func (s State) Signature() string {
	return EncodeQuery(Normalize(s))
}

// Equal compares two states field by field. Nil and empty slices compare
// equal so that normalized states round-tripped through the codec match.
func (s State) Equal(o State) bool {
	if s.Category != o.Category || s.Zip != o.Zip || s.RadiusMiles != o.RadiusMiles ||
		s.Scope != o.Scope || s.Sort != o.Sort || s.Query != o.Query {
		return false
	}
	if !slices.Equal(s.States, o.States) || !slices.Equal(s.Tags, o.Tags) {
		return false
	}
	if s.HasCoordinates() != o.HasCoordinates() {
		return false
	}
	if s.HasCoordinates() && (*s.Lat != *o.Lat || *s.Lng != *o.Lng) {
		return false
	}
	return true
}
