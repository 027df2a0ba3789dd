package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/vetnav/resource-finder/pkg/filter"
	"github.com/vetnav/resource-finder/pkg/taxonomy"
	"github.com/vetnav/resource-finder/pkg/types"
)

func TestListResourcesSendsCanonicalQuery(t *testing.T) {
	var gotQuery string
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		json.NewEncoder(w).Encode([]types.Resource{{Id: "a", Name: "A"}})
	}))
	defer backend.Close()

	c := NewCatalog(backend.URL)
	s := filter.State{Category: "housing", Zip: "22301", RadiusMiles: 25}
	out, err := c.ListResources(context.Background(), s)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(out) != 1 || out[0].Id != "a" {
		t.Errorf("Expected one resource, got %v", out)
	}
	if gotQuery != "category=housing&radius=25&zip=22301" {
		t.Errorf("Expected canonical query, got %v", gotQuery)
	}
}

func TestCountResources(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/resources/count" {
			t.Errorf("Expected count path, got %v", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]int{"count": 17})
	}))
	defer backend.Close()

	n, err := NewCatalog(backend.URL).CountResources(context.Background(), filter.State{})
	if err != nil || n != 17 {
		t.Errorf("Expected 17, got %v %v", n, err)
	}
}

func TestStatusErrorSurfaced(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer backend.Close()

	_, err := NewCatalog(backend.URL).ListResources(context.Background(), filter.State{})
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusBadGateway {
		t.Errorf("Expected StatusError 502, got %v", err)
	}
}

func TestFetchTagsQuery(t *testing.T) {
	var got map[string][]string
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.URL.Query()
		json.NewEncoder(w).Encode([]types.TagGroup{{Name: "Access"}})
	}))
	defer backend.Close()

	key := taxonomy.KeyFrom(filter.Normalize(filter.State{States: []string{"VA"}, Scope: filter.ScopeState}))
	groups, err := NewCatalog(backend.URL).FetchTags(context.Background(), "food", key)
	if err != nil || len(groups) != 1 {
		t.Fatalf("Expected one group, got %v %v", groups, err)
	}
	if got["category"][0] != "food" || got["state"][0] != "VA" || got["scope"][0] != "state" {
		t.Errorf("Expected scoped tag query, got %v", got)
	}
}

func TestSubmitFeedbackAssignsId(t *testing.T) {
	var received types.Feedback
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&received)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer backend.Close()

	err := NewCatalog(backend.URL).SubmitFeedback(context.Background(), types.Feedback{Message: "hello"})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if received.Id == "" {
		t.Errorf("Expected an assigned feedback id")
	}
	if received.Message != "hello" {
		t.Errorf("Expected message forwarded, got %v", received.Message)
	}
}

func TestGeocodeZip(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("zip") != "22301" {
			t.Errorf("Expected zip param, got %v", r.URL.RawQuery)
		}
		json.NewEncoder(w).Encode(types.ReferencePoint{Lat: 38.81, Lng: -77.06})
	}))
	defer backend.Close()

	ref, err := NewZipGeocoder(backend.URL).GeocodeZip(context.Background(), "22301")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if ref.Lat != 38.81 || ref.Lng != -77.06 {
		t.Errorf("Expected coordinates, got %v", ref)
	}
}
