package types

import "time"

// ResourceScope tells how wide a catalog entry applies. Entries marked
// national are shown in the "nationwide" section, everything else is
// considered near the user.
type ResourceScope string

const (
	ScopeNational ResourceScope = "national"
	ScopeState    ResourceScope = "state"
	ScopeLocal    ResourceScope = "local"
)

// Resource is one catalog entry as delivered by the backend. The finder
// treats its content as opaque apart from the fields needed for
// sectioning, sorting and distance calculation.
type Resource struct {
	Id        string        `json:"id"`
	Name      string        `json:"name"`
	Category  string        `json:"category,omitempty"`
	Scope     ResourceScope `json:"scope"`
	States    []string      `json:"states,omitempty"`
	Zip       string        `json:"zip,omitempty"`
	Lat       *float64      `json:"lat,omitempty"`
	Lng       *float64      `json:"lng,omitempty"`
	Tags      []string      `json:"tags,omitempty"`
	Rank      int           `json:"rank,omitempty"`
	Score     float64       `json:"score,omitempty"`
	CreatedAt time.Time     `json:"created_at,omitempty"`
}

func (r *Resource) HasCoordinates() bool {
	return r.Lat != nil && r.Lng != nil
}

// ReferencePoint is the resolved geographic coordinate distances are
// computed from, either device coordinates or a geocoded ZIP.
type ReferencePoint struct {
	Lat    float64 `json:"lat"`
	Lng    float64 `json:"lng"`
	Source string  `json:"source,omitempty"`
}

// Tag is one selectable tag inside a taxonomy group, with the number of
// matching resources under the current scope.
type Tag struct {
	Id    string `json:"id"`
	Label string `json:"label"`
	Count int    `json:"count,omitempty"`
}

// TagGroup is a named cluster of tags as returned by the taxonomy backend.
type TagGroup struct {
	Name string `json:"name"`
	Tags []Tag  `json:"tags"`
}

// Feedback is a user-submitted message forwarded verbatim to the backend.
type Feedback struct {
	Id         string `json:"id"`
	ResourceId string `json:"resource_id,omitempty"`
	Message    string `json:"message"`
	Contact    string `json:"contact,omitempty"`
}
