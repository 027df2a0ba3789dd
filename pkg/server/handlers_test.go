package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/vetnav/resource-finder/pkg/filter"
	"github.com/vetnav/resource-finder/pkg/taxonomy"
	"github.com/vetnav/resource-finder/pkg/types"
)

type fakeCatalog struct {
	resources []types.Resource
	feedback  []types.Feedback
}

func (f *fakeCatalog) ListResources(ctx context.Context, s filter.State) ([]types.Resource, error) {
	return f.resources, nil
}

func (f *fakeCatalog) CountResources(ctx context.Context, s filter.State) (int, error) {
	return len(f.resources), nil
}

func (f *fakeCatalog) GetResource(ctx context.Context, id string) (*types.Resource, error) {
	for i := range f.resources {
		if f.resources[i].Id == id {
			return &f.resources[i], nil
		}
	}
	return nil, context.Canceled
}

func (f *fakeCatalog) FetchTags(ctx context.Context, category string, key taxonomy.ScopeKey) ([]types.TagGroup, error) {
	return []types.TagGroup{{Name: category, Tags: []types.Tag{{Id: "t", Label: "T"}}}}, nil
}

func (f *fakeCatalog) SubmitFeedback(ctx context.Context, fb types.Feedback) error {
	f.feedback = append(f.feedback, fb)
	return nil
}

func jsonBody(s string) io.Reader { return strings.NewReader(s) }

type fakeGeocoder struct{}

func (fakeGeocoder) GeocodeZip(ctx context.Context, zip string) (types.ReferencePoint, error) {
	return types.ReferencePoint{Lat: 38.81, Lng: -77.06}, nil
}

func newTestServer(cat *fakeCatalog) *WebServer {
	return &WebServer{
		Catalog:   cat,
		TagSource: cat,
		Geocoder:  fakeGeocoder{},
		Feedback:  cat,
	}
}

func TestSearchEndpoint(t *testing.T) {
	cat := &fakeCatalog{resources: []types.Resource{
		{Id: "n1", Name: "Helpline", Scope: types.ScopeNational},
		{Id: "l1", Name: "Shelter", Scope: types.ScopeLocal},
	}}
	ws := newTestServer(cat)
	defer ws.Stop()

	req := httptest.NewRequest(http.MethodGet, "/api/search?category=housing&zip=22301&radius=25", nil)
	rec := httptest.NewRecorder()
	ws.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var resp SearchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Expected valid JSON, got %v", err)
	}
	if resp.Total != 2 || resp.Sections.Total() != 2 {
		t.Errorf("Expected 2 results, got %d and %d", resp.Total, resp.Sections.Total())
	}
	if len(resp.Sections.Nationwide) != 1 {
		t.Errorf("Expected 1 nationwide, got %v", resp.Sections.Nationwide)
	}
	// Category plus the zip location unit.
	if resp.ActiveFilters != 2 {
		t.Errorf("Expected 2 active filters, got %d", resp.ActiveFilters)
	}
	if resp.Query != "category=housing&radius=25&zip=22301" {
		t.Errorf("Expected canonical query echoed, got %v", resp.Query)
	}
}

func TestCountEndpoint(t *testing.T) {
	cat := &fakeCatalog{resources: []types.Resource{{Id: "a"}, {Id: "b"}, {Id: "c"}}}
	ws := newTestServer(cat)
	defer ws.Stop()

	req := httptest.NewRequest(http.MethodGet, "/api/search/count?category=food", nil)
	rec := httptest.NewRecorder()
	ws.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var resp map[string]int
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp["count"] != 3 {
		t.Errorf("Expected count 3, got %d", resp["count"])
	}
}

func TestTagsEndpointEmptyWithoutCategory(t *testing.T) {
	ws := newTestServer(&fakeCatalog{})
	defer ws.Stop()

	req := httptest.NewRequest(http.MethodGet, "/api/tags", nil)
	rec := httptest.NewRecorder()
	ws.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var groups []types.TagGroup
	json.Unmarshal(rec.Body.Bytes(), &groups)
	if len(groups) != 0 {
		t.Errorf("Expected no groups without category, got %v", groups)
	}
}

func TestDeviceFailureEndpoint(t *testing.T) {
	ws := newTestServer(&fakeCatalog{})
	defer ws.Stop()

	req := httptest.NewRequest(http.MethodPost, "/api/location/failure?kind=denied", nil)
	rec := httptest.NewRecorder()
	ws.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var resp map[string]string
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp["message"] == "" {
		t.Errorf("Expected a user-facing message")
	}
}

func TestWizardEndpointDistinctCategoryKey(t *testing.T) {
	ws := newTestServer(&fakeCatalog{})
	defer ws.Stop()

	req := httptest.NewRequest(http.MethodGet, "/api/wizard?age_bracket=25-34&housing_status=renting&zip=22301&wizard_category=food", nil)
	rec := httptest.NewRecorder()
	ws.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var resp struct {
		Query    string `json:"query"`
		Complete bool   `json:"complete"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if !resp.Complete {
		t.Errorf("Expected wizard complete with location, age and housing")
	}
	if resp.Query == "" {
		t.Errorf("Expected canonical wizard query, got empty")
	}
}

func TestFeedbackEndpoint(t *testing.T) {
	cat := &fakeCatalog{}
	ws := newTestServer(cat)
	defer ws.Stop()

	body := `{"message":"broken link on resource page","resource_id":"l1"}`
	req := httptest.NewRequest(http.MethodPost, "/api/feedback", jsonBody(body))
	rec := httptest.NewRecorder()
	ws.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d", rec.Code)
	}
	if len(cat.feedback) != 1 || cat.feedback[0].Message == "" {
		t.Errorf("Expected feedback forwarded, got %v", cat.feedback)
	}
}

func TestFeedbackRequiresMessage(t *testing.T) {
	ws := newTestServer(&fakeCatalog{})
	defer ws.Stop()

	req := httptest.NewRequest(http.MethodPost, "/api/feedback", jsonBody(`{"message":""}`))
	rec := httptest.NewRecorder()
	ws.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", rec.Code)
	}
}

func TestGeocodeEndpoint(t *testing.T) {
	ws := newTestServer(&fakeCatalog{})
	defer ws.Stop()

	req := httptest.NewRequest(http.MethodGet, "/api/geocode?zip=22301", nil)
	rec := httptest.NewRecorder()
	ws.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var resp struct {
		Query     string                `json:"query"`
		Reference *types.ReferencePoint `json:"reference"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Reference == nil || resp.Reference.Lat != 38.81 {
		t.Errorf("Expected resolved reference, got %v", resp.Reference)
	}
	if resp.Query != "zip=22301" {
		t.Errorf("Expected canonical query, got %v", resp.Query)
	}
}

func TestGeocodeEndpointRejectsPartialZip(t *testing.T) {
	ws := newTestServer(&fakeCatalog{})
	defer ws.Stop()

	req := httptest.NewRequest(http.MethodGet, "/api/geocode?zip=223", nil)
	rec := httptest.NewRecorder()
	ws.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", rec.Code)
	}
}
