// Package geocode resolves fire-event coordinates to administrative regions
// through a Nominatim-compatible reverse geocoding API, with an LRU cache in
// front so clustered detections cost one lookup.
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/airshedlab/airward/internal/domain"
	"github.com/airshedlab/airward/internal/observability"
)

// Client implements domain.RegionResolver against a Nominatim-compatible
// reverse geocoding endpoint.
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewClient creates a reverse geocoding client.
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: baseURL,
		logger:  logger,
		metrics: metrics,
	}
}

// Resolve converts coordinates to the administrative region and district
// they fall in. An address the API cannot resolve yields an empty RegionInfo
// and no error.
func (c *Client) Resolve(ctx context.Context, lat, lon float64) (domain.RegionInfo, error) {
	params := url.Values{
		"format": {"jsonv2"},
		"lat":    {fmt.Sprintf("%.6f", lat)},
		"lon":    {fmt.Sprintf("%.6f", lon)},
		// Zoom 8 resolves to district level, which is as fine as the
		// correlation grouping needs.
		"zoom": {"8"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/reverse?"+params.Encode(), nil)
	if err != nil {
		return domain.RegionInfo{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "airward/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.GeocodeRequests.WithLabelValues("error").Inc()
		return domain.RegionInfo{}, fmt.Errorf("reverse geocode request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.metrics.GeocodeRequests.WithLabelValues("error").Inc()
		body, _ := io.ReadAll(resp.Body)
		return domain.RegionInfo{}, fmt.Errorf("geocoding API error: status %d: %s", resp.StatusCode, body)
	}

	var geocodeResp response
	if err := json.NewDecoder(resp.Body).Decode(&geocodeResp); err != nil {
		c.metrics.GeocodeRequests.WithLabelValues("error").Inc()
		return domain.RegionInfo{}, fmt.Errorf("decode response: %w", err)
	}

	info := domain.RegionInfo{
		Region:   geocodeResp.Address.State,
		District: firstNonEmpty(geocodeResp.Address.StateDistrict, geocodeResp.Address.County),
	}
	if info.Region == "" {
		c.metrics.GeocodeRequests.WithLabelValues("empty").Inc()
		return domain.RegionInfo{}, nil
	}

	c.metrics.GeocodeRequests.WithLabelValues("success").Inc()
	return info, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// Nominatim reverse geocoding response types.

type response struct {
	Address address `json:"address"`
}

type address struct {
	State         string `json:"state"`
	StateDistrict string `json:"state_district"`
	County        string `json:"county"`
}
