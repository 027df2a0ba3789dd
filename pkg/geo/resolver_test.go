package geo

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/vetnav/resource-finder/pkg/fetch"
	"github.com/vetnav/resource-finder/pkg/filter"
	"github.com/vetnav/resource-finder/pkg/types"
)

type fakeGeocoder struct {
	calls int
	point types.ReferencePoint
	err   error
}

func (f *fakeGeocoder) GeocodeZip(ctx context.Context, zip string) (types.ReferencePoint, error) {
	f.calls++
	return f.point, f.err
}

func ptr(v float64) *float64 { return &v }

func TestResolveDeviceCoordinatesDirect(t *testing.T) {
	g := &fakeGeocoder{}
	r := NewResolver(g, fetch.NewOrchestrator())
	s := filter.State{Lat: ptr(38.8), Lng: ptr(-77.05)}
	ref, err := r.ResolveReference(context.Background(), s)
	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if ref == nil || ref.Lat != 38.8 || ref.Lng != -77.05 {
		t.Errorf("Expected device coordinates, got %v", ref)
	}
	if g.calls != 0 {
		t.Errorf("Expected no geocoder call for device coordinates, got %d", g.calls)
	}
}

func TestResolveZipUsesGeocoder(t *testing.T) {
	g := &fakeGeocoder{point: types.ReferencePoint{Lat: 38.81, Lng: -77.06}}
	r := NewResolver(g, fetch.NewOrchestrator())
	ref, err := r.ResolveReference(context.Background(), filter.State{Zip: "22301"})
	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if ref == nil || ref.Source != "zip" {
		t.Errorf("Expected zip reference, got %v", ref)
	}
	if g.calls != 1 {
		t.Errorf("Expected one geocoder call, got %d", g.calls)
	}
}

func TestIncompleteZipSkipsNetwork(t *testing.T) {
	g := &fakeGeocoder{}
	r := NewResolver(g, fetch.NewOrchestrator())
	ref, err := r.ResolveReference(context.Background(), filter.State{Zip: "223"})
	if err != nil || ref != nil {
		t.Errorf("Expected nil reference without error, got %v %v", ref, err)
	}
	if g.calls != 0 {
		t.Errorf("Expected no geocoder call for partial zip, got %d", g.calls)
	}
}

func TestNoLocationResolvesNil(t *testing.T) {
	r := NewResolver(&fakeGeocoder{}, fetch.NewOrchestrator())
	ref, err := r.ResolveReference(context.Background(), filter.State{States: []string{"VA"}})
	if err != nil || ref != nil {
		t.Errorf("Expected nil reference without error, got %v %v", ref, err)
	}
}

func TestGeocoderFailureWrapped(t *testing.T) {
	boom := errors.New("service down")
	r := NewResolver(&fakeGeocoder{err: boom}, fetch.NewOrchestrator())
	_, err := r.ResolveReference(context.Background(), filter.State{Zip: "22301"})
	if !errors.Is(err, boom) {
		t.Errorf("Expected wrapped geocoder error, got %v", err)
	}
}

func TestDeviceFailureMessages(t *testing.T) {
	if !errors.Is(DeviceFailure("denied"), ErrPermissionDenied) {
		t.Errorf("Expected permission denied sentinel")
	}
	if !errors.Is(DeviceFailure("timeout"), ErrPositionTimeout) {
		t.Errorf("Expected timeout sentinel")
	}
	if !errors.Is(DeviceFailure("weird"), ErrUnavailable) {
		t.Errorf("Expected unavailable sentinel for unknown kind")
	}
	if FailureMessage(ErrPermissionDenied) == FailureMessage(ErrPositionTimeout) {
		t.Errorf("Expected distinct messages per failure kind")
	}
}

func TestDistanceKnownPair(t *testing.T) {
	// Alexandria, VA to Washington, DC is a bit under 7 miles.
	d := Distance(38.8048, -77.0469, 38.9072, -77.0369)
	if d < 6 || d > 8 {
		t.Errorf("Expected roughly 7 miles, got %v", d)
	}
	if Distance(38.8, -77.0, 38.8, -77.0) != 0 {
		t.Errorf("Expected zero distance for identical points")
	}
}

func TestComputeDistancesSkipsMissingCoordinates(t *testing.T) {
	ref := types.ReferencePoint{Lat: 38.8, Lng: -77.0}
	resources := []types.Resource{
		{Id: "a", Lat: ptr(38.9), Lng: ptr(-77.0)},
		{Id: "b"},
		{Id: "c", Lat: ptr(38.8), Lng: ptr(-77.0)},
	}
	d := ComputeDistances(ref, resources)
	if len(d) != 2 {
		t.Errorf("Expected 2 distances, got %v", d)
	}
	if _, ok := d["b"]; ok {
		t.Errorf("Expected no distance for resource without coordinates")
	}
	if math.Abs(d["c"]) > 1e-9 {
		t.Errorf("Expected zero distance for c, got %v", d["c"])
	}
}
