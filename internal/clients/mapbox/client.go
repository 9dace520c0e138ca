package mapbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/deliverymap/server/internal/lib/geo"
	"github.com/deliverymap/server/internal/lib/route"
)

// ErrNoRoutes is returned when the directions provider finds no route
// between origin and destination. Callers must not start navigation in
// that case.
var ErrNoRoutes = errors.New("no routes found in response")

// HTTPDoer executes HTTP requests; satisfied by *http.Client and by
// test doubles.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client provides access to the Mapbox Directions API v5 (driving
// profile), the external directions provider of the navigation core.
type Client struct {
	accessToken string
	baseURL     string
	language    string
	httpClient  HTTPDoer
	logger      *zap.SugaredLogger
}

// NewClient creates a Mapbox Directions client.
func NewClient(accessToken, language string, logger *zap.SugaredLogger) *Client {
	return NewClientWithHTTPDoer(accessToken, "https://api.mapbox.com", language, &http.Client{
		Timeout: 30 * time.Second,
	}, logger)
}

// NewClientWithHTTPDoer creates a client with a custom HTTP doer and
// base URL, used by tests.
func NewClientWithHTTPDoer(accessToken, baseURL, language string, doer HTTPDoer, logger *zap.SugaredLogger) *Client {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Client{
		accessToken: accessToken,
		baseURL:     baseURL,
		language:    language,
		httpClient:  doer,
		logger:      logger,
	}
}

// FetchRoute requests a driving route from origin to destination.
// Absence of a route is an error: navigation must fail closed rather
// than start without steps.
func (c *Client) FetchRoute(ctx context.Context, origin, destination geo.Point, avoidTolls bool) (*route.Route, error) {
	endpoint := fmt.Sprintf("%s/directions/v5/mapbox/driving/%s,%s;%s,%s",
		c.baseURL,
		formatCoord(origin.Longitude), formatCoord(origin.Latitude),
		formatCoord(destination.Longitude), formatCoord(destination.Latitude))

	params := url.Values{}
	params.Set("access_token", c.accessToken)
	params.Set("steps", "true")
	params.Set("geometries", "polyline")
	params.Set("overview", "full")
	params.Set("alternatives", "false")
	if c.language != "" {
		params.Set("language", c.language)
	}
	if avoidTolls {
		params.Set("exclude", "toll")
	}

	req, err := http.NewRequestWithContext(ctx, "GET", endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == 429 {
		return nil, fmt.Errorf("rate limit exceeded")
	}
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API error %d: %s", resp.StatusCode, string(body))
	}

	var response directionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if response.Code != "" && response.Code != "Ok" {
		return nil, fmt.Errorf("directions request failed: %s %s: %w",
			response.Code, response.Message, ErrNoRoutes)
	}
	if len(response.Routes) == 0 {
		return nil, ErrNoRoutes
	}

	c.logger.Debugw("route fetched",
		"distance_m", response.Routes[0].Distance,
		"duration_s", response.Routes[0].Duration,
		"avoid_tolls", avoidTolls)

	return convertRoute(response.Routes[0])
}

// convertRoute converts a Mapbox directions route to the core model.
func convertRoute(r directionsRoute) (*route.Route, error) {
	points, err := geo.DecodePolyline(r.Geometry)
	if err != nil {
		return nil, fmt.Errorf("failed to decode route geometry: %w", err)
	}

	var steps []route.Step
	for _, leg := range r.Legs {
		for _, s := range leg.Steps {
			steps = append(steps, route.Step{
				Maneuver: route.ParseManeuver(s.Maneuver.Type, s.Maneuver.Modifier),
				Anchor: geo.Point{
					Latitude:  s.Maneuver.Location[1],
					Longitude: s.Maneuver.Location[0],
				},
				DistanceMeters:  s.Distance,
				DurationSeconds: s.Duration,
				Instruction:     s.Maneuver.Instruction,
			})
		}
	}
	if len(steps) == 0 {
		return nil, fmt.Errorf("route has no steps: %w", ErrNoRoutes)
	}

	return &route.Route{
		Steps:                steps,
		TotalDistanceMeters:  r.Distance,
		TotalDurationSeconds: r.Duration,
		Geometry:             points,
	}, nil
}

// formatCoord renders a coordinate without trailing zeros.
func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// directionsResponse represents the API response structure
type directionsResponse struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Routes  []directionsRoute `json:"routes"`
}

// directionsRoute represents a single route in the response
type directionsRoute struct {
	Distance float64         `json:"distance"`
	Duration float64         `json:"duration"`
	Geometry string          `json:"geometry"`
	Legs     []directionsLeg `json:"legs"`
}

// directionsLeg represents one origin-destination leg
type directionsLeg struct {
	Steps []directionsStep `json:"steps"`
}

// directionsStep represents a single maneuver step
type directionsStep struct {
	Distance float64      `json:"distance"`
	Duration float64      `json:"duration"`
	Name     string       `json:"name"`
	Maneuver stepManeuver `json:"maneuver"`
}

// stepManeuver carries the maneuver location and instruction text.
// Location is [longitude, latitude] per the provider's convention.
type stepManeuver struct {
	Location    [2]float64 `json:"location"`
	Type        string     `json:"type"`
	Modifier    string     `json:"modifier"`
	Instruction string     `json:"instruction"`
}
