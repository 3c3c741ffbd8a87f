package store

import (
	"context"
	"errors"
	"time"

	"fleetops/internal/model"
)

// Store is the persistence interface used by the engine and the API server.
type Store interface {
	// Users
	CreateUser(ctx context.Context, u model.User) (model.User, error)
	GetUser(ctx context.Context, id string) (model.User, error)

	// Trucks
	CreateTruck(ctx context.Context, t model.Truck) (model.Truck, error)
	GetTruck(ctx context.Context, id string) (model.Truck, error)
	ListTrucks(ctx context.Context) ([]model.Truck, error)
	UpdateTruck(ctx context.Context, t model.Truck) error

	// Trailers
	CreateTrailer(ctx context.Context, t model.Trailer) (model.Trailer, error)
	GetTrailer(ctx context.Context, id string) (model.Trailer, error)
	ListTrailers(ctx context.Context) ([]model.Trailer, error)
	UpdateTrailer(ctx context.Context, t model.Trailer) error

	// Tires
	CreateTire(ctx context.Context, t model.Tire) (model.Tire, error)
	TiresByVehicle(ctx context.Context, vehicleID string, vt model.VehicleType) ([]model.Tire, error)
	UpdateTire(ctx context.Context, t model.Tire) error

	// Maintenance records
	CreateMaintenance(ctx context.Context, m model.MaintenanceRecord) (model.MaintenanceRecord, error)
	// LatestMaintenanceWithNextDue returns the most recent record carrying a
	// nextDueKm for the vehicle; ok=false when none exists.
	LatestMaintenanceWithNextDue(ctx context.Context, vehicleID string, vt model.VehicleType) (rec model.MaintenanceRecord, ok bool, err error)
	MaintenanceHistory(ctx context.Context, vehicleID string, vt model.VehicleType) ([]model.MaintenanceRecord, error)

	// Trips
	//
	// CreateTripReserving is the atomic reservation primitive: in a single
	// transaction (or under the memory store's lock) it re-verifies that the
	// code is unused, that truck and trailer are AVAILABLE, and that driver,
	// truck and trailer have no trip in {PLANNED, IN_PROGRESS}; then inserts
	// the PLANNED trip and flips both vehicles to IN_USE. A lost race
	// returns ErrConflict. Two concurrent creations against the same
	// resource can therefore never both succeed.
	CreateTripReserving(ctx context.Context, t model.Trip) (model.Trip, error)
	GetTrip(ctx context.Context, id string) (model.Trip, error)
	GetTripByCode(ctx context.Context, code string) (model.Trip, error)
	ActiveTripForDriver(ctx context.Context, driverID string) (model.Trip, bool, error)
	ActiveTripForTruck(ctx context.Context, truckID string) (model.Trip, bool, error)
	ActiveTripForTrailer(ctx context.Context, trailerID string) (model.Trip, bool, error)
	UpdateTrip(ctx context.Context, t model.Trip) error
	ListTrips(ctx context.Context, status, driverID string) ([]model.Trip, error)

	// Alerts (append-only; acknowledge is the only mutation)
	CreateAlert(ctx context.Context, a model.Alert) (model.Alert, error)
	ListAlerts(ctx context.Context, onlyUnacked bool, severity, vehicleID string) ([]model.Alert, error)
	AcknowledgeAlert(ctx context.Context, id, userID string) (model.Alert, error)

	// Alert webhook subscriptions and deliveries
	CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error)
	GetSubscriptionsForEvent(ctx context.Context, eventType string) ([]model.Subscription, error)
	ListSubscriptions(ctx context.Context) ([]model.Subscription, error)
	DeleteSubscription(ctx context.Context, id string) error
	EnqueueWebhook(ctx context.Context, subscriptionID, eventType, url, secret string, payload []byte) (string, error)
	FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error)
	MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error
	FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error
}

// WebhookDelivery is one pending alert delivery.
type WebhookDelivery struct {
	ID             string
	SubscriptionID string
	EventType      string
	URL            string
	Secret         string
	Payload        []byte
	Status         string
	Attempts       int
}

var ErrNotFound = errors.New("not found")

// ErrConflict is returned by CreateTripReserving when a concurrent request
// reserved one of the resources first.
var ErrConflict = errors.New("resource conflict")
