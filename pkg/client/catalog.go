package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/google/uuid"

	"github.com/vetnav/resource-finder/pkg/filter"
	"github.com/vetnav/resource-finder/pkg/taxonomy"
	"github.com/vetnav/resource-finder/pkg/types"
)

// StatusError is a non-2xx response from a backend collaborator. It is
// recoverable: the caller surfaces it inline and a retry is simply a
// fresh request.
type StatusError struct {
	Code int
	Url  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend returned %d for %s", e.Code, e.Url)
}

// Catalog talks to the resource catalog backend. The catalog's data
// model is opaque here; requests are encoded with the same query codec
// the address bar uses.
type Catalog struct {
	BaseUrl string
	Client  *http.Client
}

func NewCatalog(baseUrl string) *Catalog {
	return &Catalog{BaseUrl: baseUrl, Client: http.DefaultClient}
}

func (c *Catalog) get(ctx context.Context, path string, query url.Values, out any) error {
	u := c.BaseUrl + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	res, err := c.Client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		io.Copy(io.Discard, res.Body)
		return &StatusError{Code: res.StatusCode, Url: u}
	}
	return json.NewDecoder(res.Body).Decode(out)
}

// ListResources fetches the resources matching the filter state.
func (c *Catalog) ListResources(ctx context.Context, s filter.State) ([]types.Resource, error) {
	var out []types.Resource
	if err := c.get(ctx, "/resources", filter.Encode(s), &out); err != nil {
		return nil, fmt.Errorf("listing resources: %w", err)
	}
	return out, nil
}

// CountResources fetches only the number of matching resources, used for
// the result count badge while filters are being edited.
func (c *Catalog) CountResources(ctx context.Context, s filter.State) (int, error) {
	var out struct {
		Count int `json:"count"`
	}
	if err := c.get(ctx, "/resources/count", filter.Encode(s), &out); err != nil {
		return 0, fmt.Errorf("counting resources: %w", err)
	}
	return out.Count, nil
}

// GetResource fetches one resource by id.
func (c *Catalog) GetResource(ctx context.Context, id string) (*types.Resource, error) {
	var out types.Resource
	if err := c.get(ctx, "/resources/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, fmt.Errorf("fetching resource %s: %w", id, err)
	}
	return &out, nil
}

// FetchTags implements taxonomy.Source against the catalog backend.
func (c *Catalog) FetchTags(ctx context.Context, category string, key taxonomy.ScopeKey) ([]types.TagGroup, error) {
	q := url.Values{}
	q.Set("category", category)
	for _, st := range key.States {
		q.Add("state", st)
	}
	if key.Zip != "" {
		q.Set("zip", key.Zip)
	}
	if key.Radius > 0 {
		q.Set("radius", strconv.Itoa(key.Radius))
	}
	if key.Scope != filter.ScopeAll && key.Scope != "" {
		q.Set("scope", string(key.Scope))
	}
	var out []types.TagGroup
	if err := c.get(ctx, "/tags", q, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SubmitFeedback forwards a feedback message, assigning it an id when
// the caller did not.
func (c *Catalog) SubmitFeedback(ctx context.Context, fb types.Feedback) error {
	if fb.Id == "" {
		fb.Id = uuid.NewString()
	}
	body, err := json.Marshal(fb)
	if err != nil {
		return err
	}
	u := c.BaseUrl + "/feedback"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := c.Client.Do(req)
	if err != nil {
		return fmt.Errorf("submitting feedback: %w", err)
	}
	defer res.Body.Close()
	io.Copy(io.Discard, res.Body)
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return &StatusError{Code: res.StatusCode, Url: u}
	}
	return nil
}
