package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/couchcryptid/phototrack/internal/config"
	"github.com/couchcryptid/phototrack/internal/domain"
	"github.com/couchcryptid/phototrack/internal/observability"
)

// zoomLevels is the reverse-geocoding fallback chain: street-level first,
// then city/region, then country. A coordinate in open terrain often has no
// street-level address but still resolves at a coarser zoom.
var zoomLevels = []int{18, 12, 5}

// Client calls the Nominatim geocoding API. Requests are issued strictly one
// at a time with a minimum spacing between them; Nominatim's usage policy
// caps clients at one request per second, and exceeding it gets the
// User-Agent banned.
type Client struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	limiter    *rate.Limiter
	retries    int
	backoff    time.Duration
	logger     *slog.Logger
	metrics    *observability.Metrics

	// mu serializes requests so retries and the zoom chain of one
	// resolution cannot interleave with another caller.
	mu sync.Mutex
}

// NewClient creates a Nominatim client from config.
func NewClient(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) *Client {
	return &Client{
		baseURL:    cfg.NominatimBaseURL,
		userAgent:  cfg.GeocodeUserAgent,
		httpClient: &http.Client{Timeout: cfg.GeocodeTimeout},
		limiter:    rate.NewLimiter(rate.Every(cfg.GeocodeMinInterval), 1),
		retries:    cfg.GeocodeRetries,
		backoff:    500 * time.Millisecond,
		logger:     logger,
		metrics:    metrics,
	}
}

// ReverseGeocode resolves a coordinate to a place, walking the zoom fallback
// chain until a city-level name appears. A nil error with an unresolved
// PlaceInfo means the service answered but knows nothing about the location.
func (c *Client) ReverseGeocode(ctx context.Context, coord domain.Coordinate) (domain.PlaceInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var place domain.PlaceInfo
	for _, zoom := range zoomLevels {
		params := url.Values{
			"lat":             {strconv.FormatFloat(coord.Lat, 'f', 6, 64)},
			"lon":             {strconv.FormatFloat(coord.Lon, 'f', 6, 64)},
			"format":          {"json"},
			"accept-language": {"en"},
			"zoom":            {strconv.Itoa(zoom)},
		}

		body, err := c.get(ctx, c.baseURL+"/reverse?"+params.Encode(), "reverse")
		if err != nil {
			return domain.PlaceInfo{}, fmt.Errorf("reverse geocode %s: %w", coord, err)
		}

		var resp reverseResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return domain.PlaceInfo{}, fmt.Errorf("decode reverse response: %w", err)
		}

		place = resp.Address.toPlace()
		if place.Resolved() {
			c.metrics.GeocodeRequests.WithLabelValues("reverse", "success").Inc()
			return place, nil
		}
		c.metrics.GeocodeRequests.WithLabelValues("reverse", "empty").Inc()
	}

	// Keep whatever partial fields the coarsest zoom produced.
	return place, nil
}

// SearchPlace looks up the representative center coordinate of a place,
// used when anonymizing trackpoints. The found flag is false when the
// service has no match.
func (c *Client) SearchPlace(ctx context.Context, place domain.PlaceInfo) (domain.Coordinate, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	query := place.City
	if place.State != "" {
		query += ", " + place.State
	}
	if place.Country != "" {
		query += ", " + place.Country
	}

	params := url.Values{
		"q":      {query},
		"format": {"json"},
		"limit":  {"1"},
	}

	body, err := c.get(ctx, c.baseURL+"/search?"+params.Encode(), "search")
	if err != nil {
		return domain.Coordinate{}, false, fmt.Errorf("search place %q: %w", query, err)
	}

	var results []searchResult
	if err := json.Unmarshal(body, &results); err != nil {
		return domain.Coordinate{}, false, fmt.Errorf("decode search response: %w", err)
	}
	if len(results) == 0 {
		c.metrics.GeocodeRequests.WithLabelValues("search", "empty").Inc()
		return domain.Coordinate{}, false, nil
	}

	lat, errLat := strconv.ParseFloat(results[0].Lat, 64)
	lon, errLon := strconv.ParseFloat(results[0].Lon, 64)
	if errLat != nil || errLon != nil {
		return domain.Coordinate{}, false, fmt.Errorf("search place %q: malformed coordinates in response", query)
	}

	c.metrics.GeocodeRequests.WithLabelValues("search", "success").Inc()
	return domain.Coordinate{Lat: lat, Lon: lon}, true, nil
}

// get performs one rate-limited GET with bounded retries and doubling
// backoff. Only transport errors, 429 and 5xx responses are retried.
func (c *Client) get(ctx context.Context, fullURL, endpoint string) ([]byte, error) {
	var lastErr error
	backoff := c.backoff

	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			if !sleepWithContext(ctx, backoff) {
				return nil, ctx.Err()
			}
			backoff *= 2
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		body, retryable, err := c.doOnce(ctx, fullURL, endpoint)
		if err == nil {
			return body, nil
		}
		if !retryable {
			return nil, err
		}
		lastErr = err
		c.logger.Warn("geocode request failed, retrying",
			"endpoint", endpoint,
			"attempt", attempt+1,
			"error", err,
		)
	}

	c.metrics.GeocodeRequests.WithLabelValues(endpoint, "error").Inc()
	return nil, fmt.Errorf("retries exhausted: %w", lastErr)
}

func (c *Client) doOnce(ctx context.Context, fullURL, endpoint string) (body []byte, retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, false, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	start := domain.Clock().Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("%s request: %w", endpoint, err)
	}
	defer resp.Body.Close()
	c.metrics.GeocodeAPIDuration.Observe(domain.Clock().Since(start).Seconds())

	body, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("read %s response: %w", endpoint, err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, false, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, true, fmt.Errorf("nominatim status %d: %s", resp.StatusCode, body)
	default:
		return nil, false, fmt.Errorf("nominatim status %d: %s", resp.StatusCode, body)
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-ctx.Done():
		return false
	case <-domain.Clock().After(d):
		return true
	}
}

// Nominatim API response types.

type reverseResponse struct {
	Address address `json:"address"`
}

type address struct {
	City          string `json:"city"`
	Town          string `json:"town"`
	Village       string `json:"village"`
	Municipality  string `json:"municipality"`
	County        string `json:"county"`
	StateDistrict string `json:"state_district"`
	State         string `json:"state"`
	Country       string `json:"country"`
	CountryCode   string `json:"country_code"`
}

// toPlace picks the most specific populated-place name available. Nominatim
// spreads it across several keys depending on the locality's size.
func (a address) toPlace() domain.PlaceInfo {
	city := a.City
	for _, candidate := range []string{a.Town, a.Village, a.Municipality, a.County, a.StateDistrict} {
		if city != "" {
			break
		}
		city = candidate
	}
	return domain.PlaceInfo{
		City:        city,
		State:       a.State,
		Country:     a.Country,
		CountryCode: strings.ToUpper(a.CountryCode),
	}
}

type searchResult struct {
	Lat string `json:"lat"`
	Lon string `json:"lon"`
}
