package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"fleetops/internal/engine"
	"fleetops/internal/metrics"
	"fleetops/internal/model"
	"fleetops/internal/store"
)

// TripsHandler handles POST/GET /v1/trips
func (s *Server) TripsHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req model.TripCreateInput
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		p := s.getPrincipal(r)
		trip, err := s.Engine.CreateTrip(r.Context(), req, p.UserID)
		if err != nil {
			metrics.TripCreations.WithLabelValues("rejected").Inc()
			writeEngineError(w, err, r.URL.Path)
			return
		}
		metrics.TripCreations.WithLabelValues("created").Inc()
		writeJSON(w, http.StatusCreated, trip)
	case http.MethodGet:
		status := r.URL.Query().Get("status")
		driverID := r.URL.Query().Get("driver")
		p := s.getPrincipal(r)
		if p.Role == model.RoleDriver {
			driverID = p.UserID
		}
		items, err := s.Engine.ListTrips(r.Context(), status, driverID)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "List trips failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// TripByIDHandler handles /v1/trips/{id} and its status, validate-start, and
// cost subresources.
func (s *Server) TripByIDHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/trips/")
	if rest == r.URL.Path || rest == "" {
		writeProblem(w, http.StatusNotFound, "Not Found", "missing id", r.URL.Path)
		return
	}
	parts := strings.Split(rest, "/")
	id := parts[0]

	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		trip, err := s.Engine.GetTrip(r.Context(), id)
		if err != nil {
			writeEngineError(w, err, r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, trip)
		return
	}

	switch parts[1] {
	case "status":
		if r.Method != http.MethodPost && r.Method != http.MethodPatch {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var req model.TripStatusUpdate
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		p := s.getPrincipal(r)
		trip, err := s.Engine.UpdateTripStatus(r.Context(), id, req, p.UserID)
		if err != nil {
			metrics.TripTransitions.WithLabelValues(req.Status, "rejected").Inc()
			writeEngineError(w, err, r.URL.Path)
			return
		}
		metrics.TripTransitions.WithLabelValues(req.Status, "applied").Inc()
		writeJSON(w, http.StatusOK, trip)
	case "validate-start":
		if r.Method != http.MethodPost && r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		check, err := s.Engine.ValidateTripStart(r.Context(), id)
		if err != nil {
			writeEngineError(w, err, r.URL.Path)
			return
		}
		for range check.Warnings {
			metrics.SafetyCheckFailures.WithLabelValues("validate-start").Inc()
		}
		writeJSON(w, http.StatusOK, check)
	case "cost":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		price := 1.0
		if v := r.URL.Query().Get("fuelPrice"); v != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				price = f
			}
		}
		cost, err := s.Engine.CalculateTripCost(r.Context(), id, price)
		if err != nil {
			writeEngineError(w, err, r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"tripId": id, "fuelPricePerLiter": price, "cost": cost})
	default:
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
	}
}

// TrucksHandler handles POST/GET /v1/trucks
func (s *Server) TrucksHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		p := s.getPrincipal(r)
		if !p.IsAdmin() {
			writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path)
			return
		}
		var t model.Truck
		if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if t.Status == "" {
			t.Status = model.VehicleAvailable
		}
		created, err := s.Store.CreateTruck(r.Context(), t)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Create truck failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	case http.MethodGet:
		items, err := s.Store.ListTrucks(r.Context())
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "List trucks failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// TruckByIDHandler handles /v1/trucks/{id} and its tires, maintenance,
// engine-temp, and fuel-level subresources.
func (s *Server) TruckByIDHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/trucks/")
	if rest == r.URL.Path || rest == "" {
		writeProblem(w, http.StatusNotFound, "Not Found", "missing id", r.URL.Path)
		return
	}
	parts := strings.Split(rest, "/")
	id := parts[0]

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			t, err := s.Store.GetTruck(r.Context(), id)
			if errors.Is(err, store.ErrNotFound) {
				writeProblem(w, 404, "Truck not found", "", r.URL.Path)
				return
			} else if err != nil {
				writeProblem(w, 500, "Get truck failed", err.Error(), r.URL.Path)
				return
			}
			writeJSON(w, http.StatusOK, t)
		case http.MethodPatch:
			p := s.getPrincipal(r)
			if !p.IsAdmin() {
				writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path)
				return
			}
			t, err := s.Store.GetTruck(r.Context(), id)
			if errors.Is(err, store.ErrNotFound) {
				writeProblem(w, 404, "Truck not found", "", r.URL.Path)
				return
			} else if err != nil {
				writeProblem(w, 500, "Get truck failed", err.Error(), r.URL.Path)
				return
			}
			if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
				writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
				return
			}
			t.ID = id
			if err := s.Store.UpdateTruck(r.Context(), t); err != nil {
				writeProblem(w, 500, "Update truck failed", err.Error(), r.URL.Path)
				return
			}
			writeJSON(w, http.StatusOK, t)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
		return
	}

	switch parts[1] {
	case "tires":
		s.vehicleTires(w, r, id, model.VehicleTruck)
	case "maintenance":
		s.vehicleMaintenance(w, r, id, model.VehicleTruck)
	case "engine-temp":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			Temp float64 `json:"temp"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if err := s.Engine.ReportEngineTemperature(r.Context(), id, req.Temp); err != nil {
			metrics.SafetyCheckFailures.WithLabelValues("engine-temp").Inc()
			writeEngineError(w, err, r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	case "fuel-level":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			Level float64 `json:"level"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		t, err := s.Store.GetTruck(r.Context(), id)
		if errors.Is(err, store.ErrNotFound) {
			writeProblem(w, 404, "Truck not found", "", r.URL.Path)
			return
		} else if err != nil {
			writeProblem(w, 500, "Get truck failed", err.Error(), r.URL.Path)
			return
		}
		t.CurrentFuelLevel = req.Level
		if err := s.Store.UpdateTruck(r.Context(), t); err != nil {
			writeProblem(w, 500, "Update truck failed", err.Error(), r.URL.Path)
			return
		}
		if err := s.Engine.CheckFuelLevel(r.Context(), id); err != nil {
			metrics.SafetyCheckFailures.WithLabelValues("fuel-level").Inc()
			writeEngineError(w, err, r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	default:
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
	}
}

// TrailersHandler handles POST/GET /v1/trailers
func (s *Server) TrailersHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		p := s.getPrincipal(r)
		if !p.IsAdmin() {
			writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path)
			return
		}
		var t model.Trailer
		if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if t.Status == "" {
			t.Status = model.VehicleAvailable
		}
		created, err := s.Store.CreateTrailer(r.Context(), t)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Create trailer failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	case http.MethodGet:
		items, err := s.Store.ListTrailers(r.Context())
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "List trailers failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// TrailerByIDHandler handles /v1/trailers/{id} and its tires and
// maintenance subresources.
func (s *Server) TrailerByIDHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/trailers/")
	if rest == r.URL.Path || rest == "" {
		writeProblem(w, http.StatusNotFound, "Not Found", "missing id", r.URL.Path)
		return
	}
	parts := strings.Split(rest, "/")
	id := parts[0]

	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		t, err := s.Store.GetTrailer(r.Context(), id)
		if errors.Is(err, store.ErrNotFound) {
			writeProblem(w, 404, "Trailer not found", "", r.URL.Path)
			return
		} else if err != nil {
			writeProblem(w, 500, "Get trailer failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, t)
		return
	}

	switch parts[1] {
	case "tires":
		s.vehicleTires(w, r, id, model.VehicleTrailer)
	case "maintenance":
		s.vehicleMaintenance(w, r, id, model.VehicleTrailer)
	default:
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
	}
}

func (s *Server) vehicleTires(w http.ResponseWriter, r *http.Request, vehicleID string, vt model.VehicleType) {
	switch r.Method {
	case http.MethodPost:
		p := s.getPrincipal(r)
		if !p.IsAdmin() {
			writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path)
			return
		}
		var t model.Tire
		if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		t.VehicleID = vehicleID
		t.VehicleType = vt
		if t.Status == "" {
			t.Status = model.TireGood
		}
		if !t.IsSpare {
			t.IsActive = true
		}
		created, err := s.Store.CreateTire(r.Context(), t)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Create tire failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	case http.MethodGet:
		items, err := s.Store.TiresByVehicle(r.Context(), vehicleID, vt)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "List tires failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) vehicleMaintenance(w http.ResponseWriter, r *http.Request, vehicleID string, vt model.VehicleType) {
	switch r.Method {
	case http.MethodPost:
		p := s.getPrincipal(r)
		if !p.IsAdmin() {
			writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path)
			return
		}
		var rec model.MaintenanceRecord
		if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		rec.VehicleID = vehicleID
		rec.VehicleType = vt
		created, err := s.Engine.RecordMaintenance(r.Context(), rec)
		if err != nil {
			writeEngineError(w, err, r.URL.Path)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	case http.MethodGet:
		items, err := s.Engine.MaintenanceHistory(r.Context(), vehicleID, vt)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "List maintenance failed", err.Error(), r.URL.Path)
			return
		}
		remaining, err := s.Engine.RemainingKmBeforeMaintenance(r.Context(), vehicleID, vt)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Maintenance lookup failed", err.Error(), r.URL.Path)
			return
		}
		resp := map[string]any{"items": items}
		if remaining != engine.UnboundedMaintenance {
			resp["remainingKm"] = remaining
		}
		writeJSON(w, http.StatusOK, resp)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// UsersHandler handles POST /v1/users
func (s *Server) UsersHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p := s.getPrincipal(r)
	if !p.IsAdmin() {
		writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path)
		return
	}
	var u model.User
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if u.Role != model.RoleAdmin && u.Role != model.RoleDriver {
		writeProblem(w, http.StatusBadRequest, "Invalid role", fmt.Sprintf("unknown role %q", u.Role), r.URL.Path)
		return
	}
	created, err := s.Store.CreateUser(r.Context(), u)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Create user failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// AlertsHandler handles GET /v1/alerts
func (s *Server) AlertsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	onlyUnacked := r.URL.Query().Get("unacked") == "true"
	severity := r.URL.Query().Get("severity")
	vehicleID := r.URL.Query().Get("vehicle")
	items, err := s.Store.ListAlerts(r.Context(), onlyUnacked, severity, vehicleID)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "List alerts failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// AlertByIDHandler handles POST /v1/alerts/{id}/ack and GET /v1/alerts/stream
func (s *Server) AlertByIDHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/alerts/")
	if rest == r.URL.Path || rest == "" {
		writeProblem(w, http.StatusNotFound, "Not Found", "missing id", r.URL.Path)
		return
	}
	if rest == "stream" {
		s.alertStreamSSE(w, r)
		return
	}
	if rest == "ws" {
		s.AlertsWSHandler(w, r)
		return
	}
	parts := strings.Split(rest, "/")
	if len(parts) == 2 && parts[1] == "ack" {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		p := s.getPrincipal(r)
		a, err := s.Store.AcknowledgeAlert(r.Context(), parts[0], p.UserID)
		if errors.Is(err, store.ErrNotFound) {
			writeProblem(w, 404, "Alert not found", "", r.URL.Path)
			return
		} else if err != nil {
			writeProblem(w, 500, "Acknowledge failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, a)
		return
	}
	writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
}

// SubscriptionsHandler handles POST/GET /v1/subscriptions
func (s *Server) SubscriptionsHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req model.SubscriptionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if req.URL == "" || len(req.Events) == 0 {
			writeProblem(w, http.StatusBadRequest, "Invalid subscription", "url and events required", r.URL.Path)
			return
		}
		sub, err := s.Store.CreateSubscription(r.Context(), req)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Create subscription failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusCreated, sub)
	case http.MethodGet:
		items, err := s.Store.ListSubscriptions(r.Context())
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "List subscriptions failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// SubscriptionByIDHandler handles DELETE /v1/subscriptions/{id}
func (s *Server) SubscriptionByIDHandler(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/v1/subscriptions/")
	if id == "" {
		writeProblem(w, http.StatusNotFound, "Not Found", "missing id", r.URL.Path)
		return
	}
	if r.Method != http.MethodDelete {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := s.Store.DeleteSubscription(r.Context(), id); err != nil {
		writeProblem(w, http.StatusInternalServerError, "Delete subscription failed", err.Error(), r.URL.Path)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HealthHandler reports liveness.
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ReadyHandler reports readiness.
func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
