package geo

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/vetnav/resource-finder/pkg/fetch"
	"github.com/vetnav/resource-finder/pkg/filter"
	"github.com/vetnav/resource-finder/pkg/types"
)

// Geocoder turns a complete ZIP code into coordinates. The actual
// geocoding lives in the backend; this side only guards the call.
type Geocoder interface {
	GeocodeZip(ctx context.Context, zip string) (types.ReferencePoint, error)
}

// Device geolocation failures as reported by the client platform. None
// of them is fatal; the flow downgrades to "no location" and ZIP entry
// stays available.
var (
	ErrPermissionDenied = errors.New("geolocation permission denied")
	ErrPositionTimeout  = errors.New("geolocation timed out")
	ErrUnavailable      = errors.New("geolocation unavailable")
)

// FailureMessage maps a device geolocation failure to the short message
// shown to the user. Unknown failures get the generic unavailable text.
func FailureMessage(err error) string {
	switch {
	case errors.Is(err, ErrPermissionDenied):
		return "Location access was denied. Enter a ZIP code to see nearby resources."
	case errors.Is(err, ErrPositionTimeout):
		return "Finding your location took too long. Enter a ZIP code instead."
	default:
		return "Your location could not be determined. Enter a ZIP code instead."
	}
}

// DeviceFailure parses the failure kind reported by the client into one
// of the geolocation sentinels.
func DeviceFailure(kind string) error {
	switch kind {
	case "denied", "permission_denied":
		return ErrPermissionDenied
	case "timeout":
		return ErrPositionTimeout
	default:
		return ErrUnavailable
	}
}

// Resolver produces the reference point distances are computed from.
// ZIP resolution goes through the orchestrator because the user may edit
// the ZIP digit by digit; only the latest complete value wins.
type Resolver struct {
	geocoder Geocoder
	orch     *fetch.Orchestrator
}

func NewResolver(geocoder Geocoder, orch *fetch.Orchestrator) *Resolver {
	return &Resolver{geocoder: geocoder, orch: orch}
}

// ResolveReference returns the reference point for the state, or nil when
// no location is set. Device coordinates are returned directly; a
// complete ZIP is geocoded under request class "geocode". An incomplete
// ZIP resolves to nil without touching the network.
func (r *Resolver) ResolveReference(ctx context.Context, s filter.State) (*types.ReferencePoint, error) {
	if s.HasCoordinates() {
		return &types.ReferencePoint{Lat: *s.Lat, Lng: *s.Lng, Source: "device"}, nil
	}
	if !filter.ValidZip(s.Zip) {
		return nil, nil
	}
	zip := s.Zip
	ref, err := fetch.Issue(r.orch, ctx, "geocode", func(ctx context.Context) (types.ReferencePoint, error) {
		return r.geocoder.GeocodeZip(ctx, zip)
	})
	if err != nil {
		if errors.Is(err, fetch.ErrSuperseded) {
			return nil, err
		}
		return nil, fmt.Errorf("geocoding zip %s: %w", zip, err)
	}
	ref.Source = "zip"
	return &ref, nil
}

const earthRadiusMiles = 3958.8

// Distance returns the great-circle distance in miles between two
// coordinates.
func Distance(lat1, lng1, lat2, lng2 float64) float64 {
	rad := func(deg float64) float64 { return deg * math.Pi / 180 }
	dLat := rad(lat2 - lat1)
	dLng := rad(lng2 - lng1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rad(lat1))*math.Cos(rad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusMiles * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// ComputeDistances returns per-resource miles from the reference point.
// Resources without coordinates are absent from the result. Pure; no
// network involved once the reference point is known.
func ComputeDistances(ref types.ReferencePoint, resources []types.Resource) map[string]float64 {
	out := make(map[string]float64, len(resources))
	for i := range resources {
		r := &resources[i]
		if !r.HasCoordinates() {
			continue
		}
		out[r.Id] = Distance(ref.Lat, ref.Lng, *r.Lat, *r.Lng)
	}
	return out
}
