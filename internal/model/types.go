package model

import "time"

// VehicleType discriminates trucks from trailers. Tires and maintenance
// records reference vehicles by (id, type) pairs so the same tables serve
// both fleets.
type VehicleType string

const (
	VehicleTruck   VehicleType = "TRUCK"
	VehicleTrailer VehicleType = "TRAILER"
)

// Vehicle availability states shared by trucks and trailers.
const (
	VehicleAvailable    = "AVAILABLE"
	VehicleInUse        = "IN_USE"
	VehicleMaintenance  = "MAINTENANCE"
	VehicleOutOfService = "OUT_OF_SERVICE"
)

// Trip lifecycle states.
const (
	TripPlanned    = "PLANNED"
	TripInProgress = "IN_PROGRESS"
	TripCompleted  = "COMPLETED"
	TripCancelled  = "CANCELLED"
)

// Tire wear states.
const (
	TireGood             = "GOOD"
	TireWorn             = "WORN"
	TireNeedsReplacement = "NEEDS_REPLACEMENT"
)

// User roles.
const (
	RoleAdmin  = "ADMIN"
	RoleDriver = "DRIVER"
)

type Truck struct {
	ID               string  `json:"id"`
	Registration     string  `json:"registration"`
	Brand            string  `json:"brand,omitempty"`
	Model            string  `json:"model,omitempty"`
	Year             int     `json:"year,omitempty"`
	FuelCapacity     float64 `json:"fuelCapacity"`
	CurrentFuelLevel float64 `json:"currentFuelLevel"`
	EngineTemp       float64 `json:"engineTemp,omitempty"`
	KmSinceLastOil   int64   `json:"kmSinceLastOil"`
	LastOilChangeKm  int64   `json:"lastOilChangeKm"`
	CurrentKm        int64   `json:"currentKm"`
	Status           string  `json:"status"` // AVAILABLE, IN_USE, MAINTENANCE, OUT_OF_SERVICE
}

type Trailer struct {
	ID           string `json:"id"`
	Registration string `json:"registration"`
	Type         string `json:"type,omitempty"`
	// Capacity is the maximum load weight in kg.
	Capacity  float64 `json:"capacity"`
	CurrentKm int64   `json:"currentKm"`
	Status    string  `json:"status"`
}

type Tire struct {
	ID          string      `json:"id"`
	VehicleID   string      `json:"vehicleId"`
	VehicleType VehicleType `json:"vehicleType"`
	Position    string      `json:"position"`
	Brand       string      `json:"brand,omitempty"`
	InstallKm   int64       `json:"installKm"`
	CurrentKm   int64       `json:"currentKm"`
	MaxLifeKm   int64       `json:"maxLifeKm"`
	Status      string      `json:"status"` // GOOD, WORN, NEEDS_REPLACEMENT
	IsSpare     bool        `json:"isSpare"`
	IsActive    bool        `json:"isActive"`
	// ExplosionDetected is set from telemetry when a blowout is reported;
	// the next condition check triggers spare activation.
	ExplosionDetected bool       `json:"explosionDetected,omitempty"`
	ActivatedAt       *time.Time `json:"activatedAt,omitempty"`
}

// RemainingLife returns installKm + maxLifeKm - currentKm.
func (t Tire) RemainingLife() int64 { return t.InstallKm + t.MaxLifeKm - t.CurrentKm }

// Maintenance types.
const (
	MaintenanceOilChange    = "OIL_CHANGE"
	MaintenanceTireRotation = "TIRE_ROTATION"
	MaintenanceInspection   = "INSPECTION"
	MaintenanceRepair       = "REPAIR"
)

type MaintenanceRecord struct {
	ID          string      `json:"id"`
	VehicleID   string      `json:"vehicleId"`
	VehicleType VehicleType `json:"vehicleType"`
	Type        string      `json:"type"`
	Description string      `json:"description,omitempty"`
	CurrentKm   int64       `json:"currentKm"`
	NextDueKm   *int64      `json:"nextDueKm,omitempty"`
	Cost        float64     `json:"cost,omitempty"`
	PerformedAt time.Time   `json:"performedAt"`
}

type User struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Role     string `json:"role"` // ADMIN, DRIVER
	IsActive bool   `json:"isActive"`
}

type Trip struct {
	ID          string `json:"id"`
	Code        string `json:"code"`
	DriverID    string `json:"driverId"`
	TruckID     string `json:"truckId"`
	TrailerID   string `json:"trailerId,omitempty"`
	Origin      string `json:"origin"`
	Destination string `json:"destination"`
	// Distance is the planned trip distance in km.
	Distance     int64    `json:"distance"`
	StartKm      int64    `json:"startKm"`
	EndKm        *int64   `json:"endKm,omitempty"`
	FuelConsumed *float64 `json:"fuelConsumed,omitempty"`
	LoadWeight   *float64 `json:"loadWeight,omitempty"`
	DrivingHours *float64 `json:"drivingHours,omitempty"`
	// EstimatedFuelConsumption is persisted by start validation once a load
	// weight is known.
	EstimatedFuelConsumption *float64   `json:"estimatedFuelConsumption,omitempty"`
	Status                   string     `json:"status"` // PLANNED, IN_PROGRESS, COMPLETED, CANCELLED
	StartedAt                *time.Time `json:"startedAt,omitempty"`
	CompletedAt              *time.Time `json:"completedAt,omitempty"`
	CreatedAt                time.Time  `json:"createdAt"`
}

// Active reports whether the trip currently holds its resources.
func (t Trip) Active() bool { return t.Status == TripPlanned || t.Status == TripInProgress }

// TripCreateInput is the candidate checked by the eligibility validator.
type TripCreateInput struct {
	Code        string   `json:"code"`
	DriverID    string   `json:"driverId"`
	TruckID     string   `json:"truckId"`
	TrailerID   string   `json:"trailerId,omitempty"`
	Origin      string   `json:"origin"`
	Destination string   `json:"destination"`
	Distance    int64    `json:"distance"`
	StartKm     int64    `json:"startKm"`
	LoadWeight  *float64 `json:"loadWeight,omitempty"`
}

// TripStatusUpdate carries the target state and optional completion readings.
type TripStatusUpdate struct {
	Status       string   `json:"status"`
	EndKm        *int64   `json:"endKm,omitempty"`
	FuelConsumed *float64 `json:"fuelConsumed,omitempty"`
}

// StartCheck is the aggregated pre-departure report: every failed safety
// check as a warning, and whether the trip may roll.
type StartCheck struct {
	Warnings []string `json:"warnings"`
	CanStart bool     `json:"canStart"`
}

// Alert types.
const (
	AlertTireWarning    = "TIRE_WARNING"
	AlertTireCritical   = "TIRE_CRITICAL"
	AlertTireExplosion  = "TIRE_EXPLOSION"
	AlertOilMaintenance = "OIL_MAINTENANCE"
	AlertEngineTemp     = "ENGINE_TEMP"
	AlertFuelLow        = "FUEL_LOW"
	AlertFuelCritical   = "FUEL_CRITICAL"
	AlertOverload       = "OVERLOAD"
	AlertDriverRest     = "DRIVER_REST"
	AlertSpareTireLimit = "SPARE_TIRE_LIMIT"
)

// Alert severities.
const (
	SeverityInfo      = "INFO"
	SeverityWarning   = "WARNING"
	SeverityCritical  = "CRITICAL"
	SeverityEmergency = "EMERGENCY"
)

type Alert struct {
	ID             string      `json:"id"`
	Type           string      `json:"type"`
	Severity       string      `json:"severity"`
	Message        string      `json:"message"`
	VehicleID      string      `json:"vehicleId,omitempty"`
	VehicleType    VehicleType `json:"vehicleType,omitempty"`
	TripID         string      `json:"tripId,omitempty"`
	DriverID       string      `json:"driverId,omitempty"`
	Acknowledged   bool        `json:"acknowledged"`
	AcknowledgedBy string      `json:"acknowledgedBy,omitempty"`
	AcknowledgedAt *time.Time  `json:"acknowledgedAt,omitempty"`
	CreatedAt      time.Time   `json:"createdAt"`
}

// Subscription registers a webhook endpoint for alert events.
type Subscription struct {
	ID     string   `json:"id"`
	URL    string   `json:"url"`
	Events []string `json:"events"`
	Secret string   `json:"secret,omitempty"`
}

type SubscriptionRequest struct {
	URL    string   `json:"url"`
	Events []string `json:"events"`
	Secret string   `json:"secret"`
}
