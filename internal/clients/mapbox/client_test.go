package mapbox

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/deliverymap/server/internal/lib/geo"
	"github.com/deliverymap/server/internal/lib/route"
)

// MockHTTPDoer is a mock implementation of HTTPDoer
type MockHTTPDoer struct {
	mock.Mock
	lastRequest *http.Request
}

func (m *MockHTTPDoer) Do(req *http.Request) (*http.Response, error) {
	m.lastRequest = req
	args := m.Called(req)
	return args.Get(0).(*http.Response), args.Error(1)
}

func createMockResponse(statusCode int, body string) *http.Response {
	return &http.Response{
		StatusCode: statusCode,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     make(http.Header),
	}
}

// Two-point geometry at precision 5: (38.5, -120.2) then (40.7, -120.95).
const routeFixture = `{
	"code": "Ok",
	"routes": [{
		"distance": 820.5,
		"duration": 132.0,
		"geometry": "_p~iF~ps|U_ulLnnqC",
		"legs": [{
			"steps": [
				{
					"distance": 520.5,
					"duration": 82.0,
					"name": "Gojo Street",
					"maneuver": {
						"location": [135.758, 34.9962],
						"type": "turn",
						"modifier": "right",
						"instruction": "Turn right onto Gojo Street"
					}
				},
				{
					"distance": 300.0,
					"duration": 50.0,
					"name": "",
					"maneuver": {
						"location": [135.7601, 34.998],
						"type": "arrive",
						"instruction": "You have arrived at your destination"
					}
				}
			]
		}]
	}]
}`

func TestFetchRoute_ParsesSteps(t *testing.T) {
	mockHTTP := &MockHTTPDoer{}
	mockHTTP.On("Do", mock.AnythingOfType("*http.Request")).Return(
		createMockResponse(200, routeFixture), nil)

	client := NewClientWithHTTPDoer("test-token", "https://api.example.com", "ja", mockHTTP, nil)

	origin := geo.Point{Latitude: 34.9948, Longitude: 135.758}
	destination := geo.Point{Latitude: 34.998, Longitude: 135.7601}

	r, err := client.FetchRoute(context.Background(), origin, destination, false)
	require.NoError(t, err)
	require.NotNil(t, r)

	assert.Equal(t, 820.5, r.TotalDistanceMeters)
	assert.Equal(t, 132.0, r.TotalDurationSeconds)

	require.Len(t, r.Steps, 2)
	first := r.Steps[0]
	assert.Equal(t, route.ManeuverTurnRight, first.Maneuver)
	assert.Equal(t, "Turn right onto Gojo Street", first.Instruction)
	assert.InDelta(t, 34.9962, first.Anchor.Latitude, 1e-9)
	assert.InDelta(t, 135.758, first.Anchor.Longitude, 1e-9)
	assert.Equal(t, route.ManeuverArrive, r.Steps[1].Maneuver)

	require.Len(t, r.Geometry, 2)
	assert.InDelta(t, 38.5, r.Geometry[0].Latitude, 0.001)
	assert.InDelta(t, -120.2, r.Geometry[0].Longitude, 0.001)

	// Request shape: coordinates as lng,lat pairs, steps requested.
	q := mockHTTP.lastRequest.URL.Query()
	assert.Equal(t, "true", q.Get("steps"))
	assert.Equal(t, "ja", q.Get("language"))
	assert.Empty(t, q.Get("exclude"))
	assert.Contains(t, mockHTTP.lastRequest.URL.Path, "135.758,34.9948;135.7601,34.998")
}

func TestFetchRoute_AvoidTollsExcludesTollRoads(t *testing.T) {
	mockHTTP := &MockHTTPDoer{}
	mockHTTP.On("Do", mock.AnythingOfType("*http.Request")).Return(
		createMockResponse(200, routeFixture), nil)

	client := NewClientWithHTTPDoer("test-token", "https://api.example.com", "ja", mockHTTP, nil)

	_, err := client.FetchRoute(context.Background(),
		geo.Point{Latitude: 34.9948, Longitude: 135.758},
		geo.Point{Latitude: 34.998, Longitude: 135.7601}, true)
	require.NoError(t, err)

	assert.Equal(t, "toll", mockHTTP.lastRequest.URL.Query().Get("exclude"))
}

func TestFetchRoute_NoRoutesIsAnError(t *testing.T) {
	mockHTTP := &MockHTTPDoer{}
	mockHTTP.On("Do", mock.AnythingOfType("*http.Request")).Return(
		createMockResponse(200, `{"code": "Ok", "routes": []}`), nil)

	client := NewClientWithHTTPDoer("test-token", "https://api.example.com", "ja", mockHTTP, nil)

	_, err := client.FetchRoute(context.Background(),
		geo.Point{Latitude: 34.9948, Longitude: 135.758},
		geo.Point{Latitude: 34.998, Longitude: 135.7601}, false)
	assert.ErrorIs(t, err, ErrNoRoutes)
}

func TestFetchRoute_ProviderErrorCode(t *testing.T) {
	mockHTTP := &MockHTTPDoer{}
	mockHTTP.On("Do", mock.AnythingOfType("*http.Request")).Return(
		createMockResponse(200, `{"code": "NoRoute", "message": "No route found", "routes": []}`), nil)

	client := NewClientWithHTTPDoer("test-token", "https://api.example.com", "ja", mockHTTP, nil)

	_, err := client.FetchRoute(context.Background(),
		geo.Point{Latitude: 34.9948, Longitude: 135.758},
		geo.Point{Latitude: 90.0, Longitude: 0.0}, false)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoRoutes)
	assert.Contains(t, err.Error(), "NoRoute")
}

func TestFetchRoute_HTTPError(t *testing.T) {
	mockHTTP := &MockHTTPDoer{}
	mockHTTP.On("Do", mock.AnythingOfType("*http.Request")).Return(
		createMockResponse(401, `{"message": "Not Authorized"}`), nil)

	client := NewClientWithHTTPDoer("bad-token", "https://api.example.com", "ja", mockHTTP, nil)

	_, err := client.FetchRoute(context.Background(),
		geo.Point{Latitude: 34.9948, Longitude: 135.758},
		geo.Point{Latitude: 34.998, Longitude: 135.7601}, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}
