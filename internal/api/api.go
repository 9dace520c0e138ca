package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/deliverymap/server/internal/clients/mapbox"
	"github.com/deliverymap/server/internal/lib/geo"
	"github.com/deliverymap/server/internal/lib/nav"
	"github.com/deliverymap/server/internal/lib/visits"
	"github.com/deliverymap/server/internal/services"
)

// Handler serves the HTTP API in front of the navigator. The companion
// app posts its position and heading streams here and drives navigation
// through the /navigation endpoints.
type Handler struct {
	navigator *services.Navigator
	visits    *visits.Store
	logger    *zap.SugaredLogger
}

// NewHandler creates the API handler.
func NewHandler(navigator *services.Navigator, visitStore *visits.Store, logger *zap.SugaredLogger) *Handler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Handler{navigator: navigator, visits: visitStore, logger: logger}
}

// Router builds the API route table.
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	api := r.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/position", h.postPosition).Methods("POST")
	api.HandleFunc("/heading", h.postHeading).Methods("POST")

	api.HandleFunc("/navigation", h.getNavigation).Methods("GET")
	api.HandleFunc("/navigation/start", h.postStart).Methods("POST")
	api.HandleFunc("/navigation/stop", h.postStop).Methods("POST")
	api.HandleFunc("/navigation/overview", h.postOverview).Methods("POST")
	api.HandleFunc("/navigation/recenter", h.postRecenter).Methods("POST")
	api.HandleFunc("/navigation/pan", h.postPan).Methods("POST")

	api.HandleFunc("/visits", h.getVisits).Methods("GET")
	api.HandleFunc("/visits/kml", h.getVisitsKML).Methods("GET")

	api.HandleFunc("/preferences", h.getPreferences).Methods("GET")
	api.HandleFunc("/preferences", h.putPreferences).Methods("PUT")

	api.HandleFunc("/routes/history", h.getRouteHistory).Methods("GET")

	return r
}

// positionRequest is one GPS sample from the companion app. Timestamp
// is optional; absent means now.
type positionRequest struct {
	Latitude       float64    `json:"lat"`
	Longitude      float64    `json:"lng"`
	AccuracyMeters float64    `json:"accuracy,omitempty"`
	Timestamp      *time.Time `json:"timestamp,omitempty"`
}

func (h *Handler) postPosition(w http.ResponseWriter, r *http.Request) {
	var req positionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid position payload")
		return
	}
	if req.Latitude < -90 || req.Latitude > 90 || req.Longitude < -180 || req.Longitude > 180 {
		writeError(w, http.StatusBadRequest, "coordinates out of range")
		return
	}

	at := time.Now()
	if req.Timestamp != nil {
		at = *req.Timestamp
	}
	h.navigator.HandlePosition(geo.Point{Latitude: req.Latitude, Longitude: req.Longitude}, at)
	w.WriteHeader(http.StatusNoContent)
}

type headingRequest struct {
	Degrees float64 `json:"degrees"`
}

func (h *Handler) postHeading(w http.ResponseWriter, r *http.Request) {
	var req headingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid heading payload")
		return
	}
	h.navigator.HandleHeading(req.Degrees, time.Now())
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) getNavigation(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.navigator.Status())
}

type startRequest struct {
	Destination nav.Destination `json:"destination"`
}

func (h *Handler) postStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid start payload")
		return
	}
	p := req.Destination.Point
	if p.Latitude < -90 || p.Latitude > 90 || p.Longitude < -180 || p.Longitude > 180 {
		writeError(w, http.StatusBadRequest, "destination out of range")
		return
	}

	if err := h.navigator.StartNavigation(r.Context(), req.Destination); err != nil {
		h.logger.Warnw("navigation start rejected", "error", err)
		switch {
		case errors.Is(err, nav.ErrNoPosition) || errors.Is(err, nav.ErrNoRoute):
			writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, services.ErrSuperseded):
			writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, mapbox.ErrNoRoutes):
			writeError(w, http.StatusUnprocessableEntity, "no route to destination")
		default:
			writeError(w, http.StatusBadGateway, "route fetch failed")
		}
		return
	}
	writeJSON(w, http.StatusOK, h.navigator.Status())
}

func (h *Handler) postStop(w http.ResponseWriter, r *http.Request) {
	h.navigator.StopNavigation()
	writeJSON(w, http.StatusOK, h.navigator.Status())
}

func (h *Handler) postOverview(w http.ResponseWriter, r *http.Request) {
	h.navigator.ToggleOverview()
	writeJSON(w, http.StatusOK, h.navigator.Status())
}

func (h *Handler) postRecenter(w http.ResponseWriter, r *http.Request) {
	h.navigator.Recenter()
	writeJSON(w, http.StatusOK, h.navigator.Status())
}

func (h *Handler) postPan(w http.ResponseWriter, r *http.Request) {
	overridden := h.navigator.UserPanned()
	writeJSON(w, http.StatusOK, map[string]bool{"show_recenter": overridden})
}

func (h *Handler) getVisits(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"locations": h.visits.List(limit),
		"total":     h.visits.Len(),
	})
}

func (h *Handler) getVisitsKML(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/vnd.google-earth.kml+xml")
	w.Header().Set("Content-Disposition", `attachment; filename="visited-locations.kml"`)
	if err := h.visits.WriteKML(w); err != nil {
		h.logger.Errorw("failed to write KML export", "error", err)
	}
}

func (h *Handler) getPreferences(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.navigator.Preferences())
}

func (h *Handler) putPreferences(w http.ResponseWriter, r *http.Request) {
	var prefs services.Prefs
	if err := json.NewDecoder(r.Body).Decode(&prefs); err != nil {
		writeError(w, http.StatusBadRequest, "invalid preferences payload")
		return
	}
	h.navigator.SetPreferences(prefs)
	writeJSON(w, http.StatusOK, h.navigator.Preferences())
}

func (h *Handler) getRouteHistory(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"routes": h.navigator.RouteHistory(),
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
