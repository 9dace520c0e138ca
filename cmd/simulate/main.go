package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/peterbourgon/ff"
	"go.uber.org/zap"

	"github.com/deliverymap/server/internal/clients/mapbox"
	"github.com/deliverymap/server/internal/lib/geo"
)

// simulate drives the navigation server through a real route: it
// fetches directions for the given origin and destination, starts
// navigation on the server, then replays the route geometry as a
// position stream.
func main() {
	fs := flag.NewFlagSet("deliverymap-simulate", flag.ExitOnError)
	var (
		server   = fs.String("server", "http://localhost:8080", "navigation server base URL")
		token    = fs.String("token", "", "directions provider access token")
		language = fs.String("language", "ja", "instruction language")
		from     = fs.String("from", "", "origin as lat,lng")
		to       = fs.String("to", "", "destination as lat,lng")
		name     = fs.String("name", "", "destination name")
		interval = fs.Duration("interval", time.Second, "delay between replayed fixes")
	)
	if err := ff.Parse(fs, os.Args[1:], ff.WithEnvVarPrefix("DELIVERYMAP")); err != nil {
		os.Exit(2)
	}

	zlog, err := zap.NewDevelopment()
	if err != nil {
		os.Exit(1)
	}
	defer zlog.Sync()
	logger := zlog.Sugar()

	origin, err := parsePoint(*from)
	if err != nil {
		logger.Fatalw("invalid -from", "error", err)
	}
	destination, err := parsePoint(*to)
	if err != nil {
		logger.Fatalw("invalid -to", "error", err)
	}

	client := mapbox.NewClient(*token, *language, logger)
	r, err := client.FetchRoute(context.Background(), origin, destination, false)
	if err != nil {
		logger.Fatalw("failed to fetch route", "error", err)
	}
	logger.Infow("route fetched",
		"points", len(r.Geometry), "steps", len(r.Steps), "distance_m", r.TotalDistanceMeters)

	if err := postPosition(*server, origin); err != nil {
		logger.Fatalw("failed to post initial position", "error", err)
	}

	startBody := fmt.Sprintf(
		`{"destination": {"point": {"lat": %f, "lng": %f}, "name": %q}}`,
		destination.Latitude, destination.Longitude, *name)
	resp, err := http.Post(*server+"/api/v1/navigation/start", "application/json",
		strings.NewReader(startBody))
	if err != nil {
		logger.Fatalw("failed to start navigation", "error", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		logger.Fatalw("server rejected navigation start", "status", resp.StatusCode)
	}

	for i, p := range r.Geometry {
		time.Sleep(*interval)
		if err := postPosition(*server, p); err != nil {
			logger.Fatalw("failed to post position", "error", err, "index", i)
		}
		logger.Infow("fix replayed", "index", i, "lat", p.Latitude, "lng", p.Longitude)
	}

	logger.Infow("replay complete")
}

func postPosition(server string, p geo.Point) error {
	body := fmt.Sprintf(`{"lat": %f, "lng": %f}`, p.Latitude, p.Longitude)
	resp, err := http.Post(server+"/api/v1/position", "application/json",
		bytes.NewReader([]byte(body)))
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

func parsePoint(s string) (geo.Point, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return geo.Point{}, fmt.Errorf("expected lat,lng, got %q", s)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return geo.Point{}, fmt.Errorf("invalid latitude: %w", err)
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return geo.Point{}, fmt.Errorf("invalid longitude: %w", err)
	}
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return geo.Point{}, fmt.Errorf("coordinates out of range: %s", s)
	}
	return geo.Point{Latitude: lat, Longitude: lng}, nil
}
