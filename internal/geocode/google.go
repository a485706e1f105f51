package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/homepin/mapsession/pkg/core"
)

const (
	// geocodeAPIURL is the Google Geocoding API JSON endpoint.
	geocodeAPIURL = "https://maps.googleapis.com/maps/api/geocode/json"

	// scriptURL is the Maps JavaScript API loader a browser renderer includes.
	scriptURL = "https://maps.googleapis.com/maps/api/js"

	httpMaxIdleConns    = 10
	httpIdleConnTimeout = 30 * time.Second
)

// GoogleConfig configures the Google Geocoding client.
type GoogleConfig struct {
	APIKey   string
	URL      string // empty means the public endpoint
	Language string
	Region   string
}

// Google implements Resolver using the Google Geocoding API.
type Google struct {
	apiKey     string
	apiURL     string
	language   string
	region     string
	httpClient *http.Client
}

// NewGoogle creates a Google geocoder. It fails with ErrNoAPIKey if cfg has no key.
func NewGoogle(cfg GoogleConfig) (*Google, error) {
	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	if cfg.URL == "" {
		cfg.URL = geocodeAPIURL
	}
	transport := &http.Transport{
		MaxIdleConns:        httpMaxIdleConns,
		MaxIdleConnsPerHost: httpMaxIdleConns,
		IdleConnTimeout:     httpIdleConnTimeout,
	}
	return &Google{
		apiKey:   cfg.APIKey,
		apiURL:   cfg.URL,
		language: cfg.Language,
		region:   cfg.Region,
		httpClient: &http.Client{
			Transport: transport,
		},
	}, nil
}

// ReverseGeocode looks up the address at a coordinate. The request is bounded
// only by ctx; the session sets the deadline.
func (g *Google) ReverseGeocode(ctx context.Context, at core.Coordinate) (Response, error) {
	u, err := url.Parse(g.apiURL)
	if err != nil {
		return Response{}, fmt.Errorf("geocode: google: parse url: %w", err)
	}
	q := u.Query()
	q.Set("latlng", strconv.FormatFloat(at.Lat, 'f', -1, 64)+","+strconv.FormatFloat(at.Lng, 'f', -1, 64))
	q.Set("key", g.apiKey)
	if g.language != "" {
		q.Set("language", g.language)
	}
	if g.region != "" {
		q.Set("region", g.region)
	}
	u.RawQuery = q.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Response{}, fmt.Errorf("geocode: google: create request: %w", err)
	}

	httpResp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("geocode: google: http: %w", err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return Response{}, fmt.Errorf("geocode: google: read response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return Response{}, fmt.Errorf("geocode: google: status %d: %s", httpResp.StatusCode, string(body))
	}

	var resp Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return Response{}, fmt.Errorf("geocode: google: unmarshal response: %w", err)
	}
	if resp.Status == "" {
		resp.Status = StatusUnknownError
	}
	return resp, nil
}

// ScriptURL returns the Maps JavaScript loader URL for a browser renderer.
func ScriptURL(apiKey string) string {
	q := url.Values{}
	q.Set("key", apiKey)
	q.Set("libraries", "places,geometry")
	q.Set("language", "en")
	q.Set("region", "us")
	q.Set("v", "quarterly")
	return scriptURL + "?" + q.Encode()
}
