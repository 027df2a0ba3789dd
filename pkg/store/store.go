package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/vetnav/resource-finder/pkg/fetch"
	"github.com/vetnav/resource-finder/pkg/filter"
	"github.com/vetnav/resource-finder/pkg/geo"
	"github.com/vetnav/resource-finder/pkg/section"
	"github.com/vetnav/resource-finder/pkg/taxonomy"
	"github.com/vetnav/resource-finder/pkg/types"
)

// Catalog is the slice of the backend the store consumes.
type Catalog interface {
	ListResources(ctx context.Context, s filter.State) ([]types.Resource, error)
	CountResources(ctx context.Context, s filter.State) (int, error)
	GetResource(ctx context.Context, id string) (*types.Resource, error)
}

// SearchResult is what the presentation layer renders: the sectioned
// list, the total before sectioning, and the resolved reference point
// when one exists.
type SearchResult struct {
	Sections  section.Sections      `json:"sections"`
	Total     int                   `json:"total"`
	Reference *types.ReferencePoint `json:"reference,omitempty"`
	Query     string                `json:"query"`
}

// DebounceWindow is how long keystroke-driven input must stay quiet
// before it reaches the network.
const DebounceWindow = 300 * time.Millisecond

// SessionStore owns one session's filter state. It is the only mutation
// path: every change goes through Apply, so the invariants hold at every
// transition, and every network lookup the change triggers runs under
// the orchestrator so a stale response can never clobber fresh state.
type SessionStore struct {
	mu        sync.Mutex
	sessionId int
	state     filter.State
	message   string

	orch     *fetch.Orchestrator
	debounce *fetch.Debouncer
	catalog  Catalog
	resolver *geo.Resolver
	tags     *taxonomy.Cache
}

func NewSessionStore(sessionId int, catalog Catalog, geocoder geo.Geocoder, tagSource taxonomy.Source) *SessionStore {
	orch := fetch.NewOrchestrator()
	return &SessionStore{
		sessionId: sessionId,
		state:     filter.Normalize(filter.State{}),
		orch:      orch,
		debounce:  fetch.NewDebouncer(DebounceWindow),
		catalog:   catalog,
		resolver:  geo.NewResolver(geocoder, orch),
		tags:      taxonomy.NewCache(tagSource, orch, taxonomy.DefaultTTL),
	}
}

// TagCache exposes the cache for wiring a shared Redis layer.
func (s *SessionStore) TagCache() *taxonomy.Cache { return s.tags }

// Apply merges a partial update and returns the normalized state. The
// caller rewrites the address bar from Query() right after.
func (s *SessionStore) Apply(u filter.Update) filter.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = s.state.Apply(u)
	return s.state
}

// Restore replaces the state from a decoded URL, e.g. when the user
// arrives with a shared link.
func (s *SessionStore) Restore(state filter.State) filter.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = filter.Normalize(state)
	return s.state
}

func (s *SessionStore) State() filter.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Query is the canonical URL encoding of the current state; the address
// bar always shows exactly this.
func (s *SessionStore) Query() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return filter.EncodeQuery(s.state)
}

// Message returns and clears the pending user-facing location message.
func (s *SessionStore) Message() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.message
	s.message = ""
	return m
}

// TypeZip handles keystroke-driven ZIP entry. Complete five-digit
// values update the state and URL immediately; partial input stays out
// of the state and only resets the quiet timer. onSettled fires once
// the input has been quiet for the debounce window, so partial values
// never reach the network.
func (s *SessionStore) TypeZip(zip string, onSettled func(filter.State)) filter.State {
	s.mu.Lock()
	if filter.ValidZip(zip) {
		s.state = s.state.Apply(filter.Update{Zip: &zip})
	}
	state := s.state
	s.mu.Unlock()

	s.debounce.Trigger("zip", func() {
		if onSettled != nil {
			onSettled(s.State())
		}
	})
	return state
}

// ErrBadZip reports ZIP input that is not five digits.
var ErrBadZip = errors.New("zip must be five digits")

// GeocodeZip is the service-surface form of ZIP entry: it runs the
// keystroke through TypeZip and resolves the settled value to a
// reference point under request class "zip", so a newer keystroke
// supersedes the wait instead of racing it.
func (s *SessionStore) GeocodeZip(ctx context.Context, zip string) (*types.ReferencePoint, error) {
	settled := make(chan filter.State, 1)
	s.TypeZip(zip, func(st filter.State) { settled <- st })
	if !filter.ValidZip(zip) {
		return nil, ErrBadZip
	}
	return fetch.Issue(s.orch, ctx, "zip", func(ctx context.Context) (*types.ReferencePoint, error) {
		select {
		case st := <-settled:
			return s.resolver.ResolveReference(ctx, st)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
}

// ReportDeviceLocation applies coordinates delivered by the platform.
func (s *SessionStore) ReportDeviceLocation(lat, lng float64) filter.State {
	return s.Apply(filter.Update{Lat: &lat, Lng: &lng})
}

// ReportDeviceFailure downgrades to "no location" and records the
// user-facing message. ZIP entry remains the available path; nothing
// here is fatal.
func (s *SessionStore) ReportDeviceFailure(kind string) (filter.State, string) {
	err := geo.DeviceFailure(kind)
	msg := geo.FailureMessage(err)
	s.mu.Lock()
	st := s.state
	st.Lat, st.Lng = nil, nil
	s.state = filter.Normalize(st)
	s.message = msg
	state := s.state
	s.mu.Unlock()
	return state, msg
}

// SelectTag adds a tag scoped to its owning category. Selecting a tag
// whose category is no longer the active one is a no-op, not an error.
func (s *SessionStore) SelectTag(category, tag string) filter.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if category == "" || category != s.state.Category {
		return s.state
	}
	tags := append(append([]string{}, s.state.Tags...), tag)
	s.state = s.state.Apply(filter.Update{Tags: &tags})
	return s.state
}

// Count fetches the result count for the current filters under request
// class "count". Superseded calls report fetch.ErrSuperseded, which the
// caller treats as a no-op.
func (s *SessionStore) Count(ctx context.Context) (int, error) {
	state := s.State()
	return fetch.Issue(s.orch, ctx, "count", func(ctx context.Context) (int, error) {
		return s.catalog.CountResources(ctx, state)
	})
}

// Search runs the full pipeline: resolve the reference point, fetch the
// matching resources, compute distances and build the sectioned, sorted
// result. Only the most recently issued search can produce a result.
func (s *SessionStore) Search(ctx context.Context) (*SearchResult, error) {
	state := s.State()
	type listing struct {
		resources []types.Resource
		ref       *types.ReferencePoint
	}
	got, err := fetch.Issue(s.orch, ctx, "list", func(ctx context.Context) (listing, error) {
		ref, err := s.resolver.ResolveReference(ctx, state)
		if err != nil {
			return listing{}, err
		}
		resources, err := s.catalog.ListResources(ctx, state)
		if err != nil {
			return listing{}, err
		}
		return listing{resources: resources, ref: ref}, nil
	})
	if err != nil {
		return nil, err
	}

	opt := section.Options{
		Seed: section.ShuffleSeed(s.sessionId, state.Signature()),
	}
	if got.ref != nil {
		opt.Distances = geo.ComputeDistances(*got.ref, got.resources)
	}
	return &SearchResult{
		Sections:  section.Build(got.resources, state.Sort, opt),
		Total:     len(got.resources),
		Reference: got.ref,
		Query:     filter.EncodeQuery(state),
	}, nil
}

// Detail fetches one resource under request class "detail", so opening
// another item cancels the previous lookup.
func (s *SessionStore) Detail(ctx context.Context, id string) (*types.Resource, error) {
	return fetch.Issue(s.orch, ctx, "detail", func(ctx context.Context) (*types.Resource, error) {
		return s.catalog.GetResource(ctx, id)
	})
}

// Tags returns the tag vocabulary for the active category under the
// current scope key, served from cache when fresh.
func (s *SessionStore) Tags(ctx context.Context) ([]types.TagGroup, error) {
	state := s.State()
	return s.tags.GetTags(ctx, state.Category, taxonomy.KeyFrom(state))
}

// Close releases pending work. Safe to call more than once.
func (s *SessionStore) Close() {
	s.debounce.Stop()
	s.orch.Cancel("list")
	s.orch.Cancel("count")
	s.orch.Cancel("detail")
	s.orch.Cancel("zip")
	s.orch.Cancel("geocode")
}

// IsSuperseded reports whether an error is just a superseded request,
// which must never be surfaced.
func IsSuperseded(err error) bool {
	return errors.Is(err, fetch.ErrSuperseded)
}
