package geocode

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/phototrack/internal/config"
	"github.com/couchcryptid/phototrack/internal/domain"
	"github.com/couchcryptid/phototrack/internal/observability"
)

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	c := NewClient(&config.Config{
		NominatimBaseURL:   baseURL,
		GeocodeUserAgent:   "phototrack-test/1.0",
		GeocodeMinInterval: time.Millisecond,
		GeocodeTimeout:     5 * time.Second,
		GeocodeRetries:     2,
	}, testLogger(), observability.NewMetricsForTesting())
	c.backoff = time.Millisecond
	return c
}

func TestClient_ReverseGeocode(t *testing.T) {
	var gotUA string
	var gotZooms []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/reverse", r.URL.Path)
		gotUA = r.Header.Get("User-Agent")
		gotZooms = append(gotZooms, r.URL.Query().Get("zoom"))
		w.Write([]byte(`{"address":{"city":"Paris","state":"Ile-de-France","country":"France","country_code":"fr"}}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	place, err := c.ReverseGeocode(context.Background(), domain.Coordinate{Lat: 48.8566, Lon: 2.3522})
	require.NoError(t, err)

	assert.Equal(t, domain.PlaceInfo{
		City:        "Paris",
		State:       "Ile-de-France",
		Country:     "France",
		CountryCode: "FR",
	}, place)
	assert.Equal(t, "phototrack-test/1.0", gotUA)
	assert.Equal(t, []string{"18"}, gotZooms, "street-level answer stops the zoom chain")
}

func TestClient_ReverseGeocode_CityFallbackChain(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"town", `{"address":{"town":"Giverny","country":"France","country_code":"fr"}}`, "Giverny"},
		{"village", `{"address":{"village":"Oia","country":"Greece","country_code":"gr"}}`, "Oia"},
		{"municipality", `{"address":{"municipality":"Somero","country":"Finland","country_code":"fi"}}`, "Somero"},
		{"county", `{"address":{"county":"Clare","country":"Ireland","country_code":"ie"}}`, "Clare"},
		{"state district", `{"address":{"state_district":"Oberbayern","country":"Germany","country_code":"de"}}`, "Oberbayern"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			place, err := newTestClient(t, srv.URL).ReverseGeocode(context.Background(), domain.Coordinate{Lat: 1, Lon: 2})
			require.NoError(t, err)
			assert.Equal(t, tt.want, place.City)
		})
	}
}

func TestClient_ReverseGeocode_ZoomFallback(t *testing.T) {
	var gotZooms []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		zoom := r.URL.Query().Get("zoom")
		gotZooms = append(gotZooms, zoom)
		if zoom == "5" {
			w.Write([]byte(`{"address":{"county":"Svalbard","country":"Norway","country_code":"no"}}`))
			return
		}
		w.Write([]byte(`{"address":{}}`))
	}))
	defer srv.Close()

	place, err := newTestClient(t, srv.URL).ReverseGeocode(context.Background(), domain.Coordinate{Lat: 78.92, Lon: 11.93})
	require.NoError(t, err)

	assert.Equal(t, []string{"18", "12", "5"}, gotZooms)
	assert.Equal(t, "Svalbard", place.City)
}

func TestClient_ReverseGeocode_Unresolvable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"address":{"country":"France","country_code":"fr"}}`))
	}))
	defer srv.Close()

	place, err := newTestClient(t, srv.URL).ReverseGeocode(context.Background(), domain.Coordinate{Lat: 1, Lon: 2})
	require.NoError(t, err)

	// No error, but partial country-level fields survive for the placeholder.
	assert.False(t, place.Resolved())
	assert.Equal(t, "France", place.Country)
	assert.Equal(t, "FR", place.CountryCode)
}

func TestClient_RetriesTransientErrors(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"address":{"city":"Paris","country":"France","country_code":"fr"}}`))
	}))
	defer srv.Close()

	place, err := newTestClient(t, srv.URL).ReverseGeocode(context.Background(), domain.Coordinate{Lat: 1, Lon: 2})
	require.NoError(t, err)
	assert.Equal(t, "Paris", place.City)
	assert.Equal(t, 2, calls)
}

func TestClient_DoesNotRetryClientErrors(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).ReverseGeocode(context.Background(), domain.Coordinate{Lat: 1, Lon: 2})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestClient_RetriesExhausted(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).ReverseGeocode(context.Background(), domain.Coordinate{Lat: 1, Lon: 2})
	require.Error(t, err)
	assert.ErrorContains(t, err, "retries exhausted")
	assert.Equal(t, 3, calls, "initial attempt plus two retries")
}

func TestClient_SearchPlace(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/search", r.URL.Path)
		gotQuery = r.URL.Query().Get("q")
		w.Write([]byte(`[{"lat":"48.8534951","lon":"2.3483915"}]`))
	}))
	defer srv.Close()

	coord, found, err := newTestClient(t, srv.URL).SearchPlace(context.Background(), domain.PlaceInfo{
		City: "Paris", State: "Ile-de-France", Country: "France",
	})
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "Paris, Ile-de-France, France", gotQuery)
	assert.InDelta(t, 48.8534951, coord.Lat, 1e-7)
	assert.InDelta(t, 2.3483915, coord.Lon, 1e-7)
}

func TestClient_SearchPlace_NoMatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	_, found, err := newTestClient(t, srv.URL).SearchPlace(context.Background(), domain.PlaceInfo{City: "Nowhereville"})
	require.NoError(t, err)
	assert.False(t, found)
}
