package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/vetnav/resource-finder/pkg/types"
)

// ZipGeocoder resolves ZIP codes to coordinates through the backend's
// geocoding endpoint.
type ZipGeocoder struct {
	BaseUrl string
	Client  *http.Client
}

func NewZipGeocoder(baseUrl string) *ZipGeocoder {
	return &ZipGeocoder{BaseUrl: baseUrl, Client: http.DefaultClient}
}

func (g *ZipGeocoder) GeocodeZip(ctx context.Context, zip string) (types.ReferencePoint, error) {
	var out types.ReferencePoint
	u := g.BaseUrl + "/geocode?" + url.Values{"zip": {zip}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return out, err
	}
	res, err := g.Client.Do(req)
	if err != nil {
		return out, err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		io.Copy(io.Discard, res.Body)
		return out, &StatusError{Code: res.StatusCode, Url: u}
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return out, fmt.Errorf("decoding geocode response: %w", err)
	}
	return out, nil
}
