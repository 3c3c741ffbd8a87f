package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"fleetops/internal/model"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
// A single mutex guards every operation, so CreateTripReserving is atomic
// by construction.
type Memory struct {
	mu       sync.Mutex
	users    map[string]model.User
	trucks   map[string]model.Truck
	trailers map[string]model.Trailer
	tires    map[string]model.Tire
	maint    []model.MaintenanceRecord
	trips    map[string]model.Trip
	tripCode map[string]string // code -> trip id
	alerts   map[string]model.Alert
	alertIDs []string // insertion order
	subs     []model.Subscription
	// Webhook queue state
	deliveries map[string]*memDelivery
}

func NewMemory() *Memory {
	return &Memory{
		users:      map[string]model.User{},
		trucks:     map[string]model.Truck{},
		trailers:   map[string]model.Trailer{},
		tires:      map[string]model.Tire{},
		trips:      map[string]model.Trip{},
		tripCode:   map[string]string{},
		alerts:     map[string]model.Alert{},
		deliveries: map[string]*memDelivery{},
	}
}

// memDelivery augments WebhookDelivery with scheduling/metrics state.
type memDelivery struct {
	WebhookDelivery
	NextAttemptAt time.Time
	LastError     string
	ResponseCode  int
	LatencyMs     int
	DeliveredAt   *time.Time
}

func (m *Memory) CreateUser(ctx context.Context, u model.User) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	m.users[u.ID] = u
	return u, nil
}

func (m *Memory) GetUser(ctx context.Context, id string) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return model.User{}, ErrNotFound
	}
	return u, nil
}

func (m *Memory) CreateTruck(ctx context.Context, t model.Truck) (model.Truck, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.Status == "" {
		t.Status = model.VehicleAvailable
	}
	m.trucks[t.ID] = t
	return t, nil
}

func (m *Memory) GetTruck(ctx context.Context, id string) (model.Truck, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trucks[id]
	if !ok {
		return model.Truck{}, ErrNotFound
	}
	return t, nil
}

func (m *Memory) ListTrucks(ctx context.Context) ([]model.Truck, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Truck, 0, len(m.trucks))
	for _, t := range m.trucks {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Registration < out[j].Registration })
	return out, nil
}

func (m *Memory) UpdateTruck(ctx context.Context, t model.Truck) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.trucks[t.ID]; !ok {
		return ErrNotFound
	}
	m.trucks[t.ID] = t
	return nil
}

func (m *Memory) CreateTrailer(ctx context.Context, t model.Trailer) (model.Trailer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.Status == "" {
		t.Status = model.VehicleAvailable
	}
	m.trailers[t.ID] = t
	return t, nil
}

func (m *Memory) GetTrailer(ctx context.Context, id string) (model.Trailer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trailers[id]
	if !ok {
		return model.Trailer{}, ErrNotFound
	}
	return t, nil
}

func (m *Memory) ListTrailers(ctx context.Context) ([]model.Trailer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Trailer, 0, len(m.trailers))
	for _, t := range m.trailers {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Registration < out[j].Registration })
	return out, nil
}

func (m *Memory) UpdateTrailer(ctx context.Context, t model.Trailer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.trailers[t.ID]; !ok {
		return ErrNotFound
	}
	m.trailers[t.ID] = t
	return nil
}

func (m *Memory) CreateTire(ctx context.Context, t model.Tire) (model.Tire, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.Status == "" {
		t.Status = model.TireGood
	}
	m.tires[t.ID] = t
	return t, nil
}

func (m *Memory) TiresByVehicle(ctx context.Context, vehicleID string, vt model.VehicleType) ([]model.Tire, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tiresByVehicleLocked(vehicleID, vt), nil
}

func (m *Memory) tiresByVehicleLocked(vehicleID string, vt model.VehicleType) []model.Tire {
	out := []model.Tire{}
	for _, t := range m.tires {
		if t.VehicleID == vehicleID && t.VehicleType == vt {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
}

func (m *Memory) UpdateTire(ctx context.Context, t model.Tire) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tires[t.ID]; !ok {
		return ErrNotFound
	}
	m.tires[t.ID] = t
	return nil
}

func (m *Memory) CreateMaintenance(ctx context.Context, rec model.MaintenanceRecord) (model.MaintenanceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.PerformedAt.IsZero() {
		rec.PerformedAt = time.Now().UTC()
	}
	m.maint = append(m.maint, rec)
	return rec, nil
}

func (m *Memory) LatestMaintenanceWithNextDue(ctx context.Context, vehicleID string, vt model.VehicleType) (model.MaintenanceRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var best model.MaintenanceRecord
	found := false
	for _, rec := range m.maint {
		if rec.VehicleID != vehicleID || rec.VehicleType != vt || rec.NextDueKm == nil {
			continue
		}
		if !found || rec.PerformedAt.After(best.PerformedAt) {
			best = rec
			found = true
		}
	}
	return best, found, nil
}

func (m *Memory) MaintenanceHistory(ctx context.Context, vehicleID string, vt model.VehicleType) ([]model.MaintenanceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.MaintenanceRecord{}
	for _, rec := range m.maint {
		if rec.VehicleID == vehicleID && rec.VehicleType == vt {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PerformedAt.After(out[j].PerformedAt) })
	return out, nil
}

func (m *Memory) CreateTripReserving(ctx context.Context, t model.Trip) (model.Trip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, taken := m.tripCode[t.Code]; taken {
		return model.Trip{}, ErrConflict
	}
	truck, ok := m.trucks[t.TruckID]
	if !ok {
		return model.Trip{}, ErrNotFound
	}
	if truck.Status != model.VehicleAvailable {
		return model.Trip{}, ErrConflict
	}
	var trailer model.Trailer
	if t.TrailerID != "" {
		trailer, ok = m.trailers[t.TrailerID]
		if !ok {
			return model.Trip{}, ErrNotFound
		}
		if trailer.Status != model.VehicleAvailable {
			return model.Trip{}, ErrConflict
		}
	}
	for _, tr := range m.trips {
		if !tr.Active() {
			continue
		}
		if tr.DriverID == t.DriverID || tr.TruckID == t.TruckID || (t.TrailerID != "" && tr.TrailerID == t.TrailerID) {
			return model.Trip{}, ErrConflict
		}
	}

	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	t.Status = model.TripPlanned
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	m.trips[t.ID] = t
	m.tripCode[t.Code] = t.ID
	truck.Status = model.VehicleInUse
	m.trucks[truck.ID] = truck
	if t.TrailerID != "" {
		trailer.Status = model.VehicleInUse
		m.trailers[trailer.ID] = trailer
	}
	return t, nil
}

func (m *Memory) GetTrip(ctx context.Context, id string) (model.Trip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trips[id]
	if !ok {
		return model.Trip{}, ErrNotFound
	}
	return t, nil
}

func (m *Memory) GetTripByCode(ctx context.Context, code string) (model.Trip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.tripCode[code]
	if !ok {
		return model.Trip{}, ErrNotFound
	}
	return m.trips[id], nil
}

func (m *Memory) activeTripWhere(match func(model.Trip) bool) (model.Trip, bool) {
	for _, t := range m.trips {
		if t.Active() && match(t) {
			return t, true
		}
	}
	return model.Trip{}, false
}

func (m *Memory) ActiveTripForDriver(ctx context.Context, driverID string) (model.Trip, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.activeTripWhere(func(t model.Trip) bool { return t.DriverID == driverID })
	return t, ok, nil
}

func (m *Memory) ActiveTripForTruck(ctx context.Context, truckID string) (model.Trip, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.activeTripWhere(func(t model.Trip) bool { return t.TruckID == truckID })
	return t, ok, nil
}

func (m *Memory) ActiveTripForTrailer(ctx context.Context, trailerID string) (model.Trip, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.activeTripWhere(func(t model.Trip) bool { return t.TrailerID == trailerID })
	return t, ok, nil
}

func (m *Memory) UpdateTrip(ctx context.Context, t model.Trip) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.trips[t.ID]; !ok {
		return ErrNotFound
	}
	m.trips[t.ID] = t
	return nil
}

func (m *Memory) ListTrips(ctx context.Context, status, driverID string) ([]model.Trip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Trip{}
	for _, t := range m.trips {
		if status != "" && t.Status != status {
			continue
		}
		if driverID != "" && t.DriverID != driverID {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) CreateAlert(ctx context.Context, a model.Alert) (model.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	m.alerts[a.ID] = a
	m.alertIDs = append(m.alertIDs, a.ID)
	return a, nil
}

func (m *Memory) ListAlerts(ctx context.Context, onlyUnacked bool, severity, vehicleID string) ([]model.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Alert{}
	// newest first
	for i := len(m.alertIDs) - 1; i >= 0; i-- {
		a := m.alerts[m.alertIDs[i]]
		if onlyUnacked && a.Acknowledged {
			continue
		}
		if severity != "" && a.Severity != severity {
			continue
		}
		if vehicleID != "" && a.VehicleID != vehicleID {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (m *Memory) AcknowledgeAlert(ctx context.Context, id, userID string) (model.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.alerts[id]
	if !ok {
		return model.Alert{}, ErrNotFound
	}
	now := time.Now().UTC()
	a.Acknowledged = true
	a.AcknowledgedBy = userID
	a.AcknowledgedAt = &now
	m.alerts[id] = a
	return a, nil
}

func (m *Memory) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := model.Subscription{ID: uuid.New().String(), URL: req.URL, Events: req.Events, Secret: req.Secret}
	m.subs = append(m.subs, s)
	return s, nil
}

func (m *Memory) GetSubscriptionsForEvent(ctx context.Context, eventType string) ([]model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Subscription
	for _, s := range m.subs {
		for _, e := range s.Events {
			if e == eventType || e == "*" {
				out = append(out, s)
				break
			}
		}
	}
	return out, nil
}

func (m *Memory) ListSubscriptions(ctx context.Context) ([]model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Subscription(nil), m.subs...), nil
}

func (m *Memory) DeleteSubscription(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Subscription, 0, len(m.subs))
	for _, s := range m.subs {
		if s.ID != id {
			out = append(out, s)
		}
	}
	m.subs = out
	return nil
}

func (m *Memory) EnqueueWebhook(ctx context.Context, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New().String()
	m.deliveries[id] = &memDelivery{
		WebhookDelivery: WebhookDelivery{
			ID: id, SubscriptionID: subscriptionID, EventType: eventType,
			URL: url, Secret: secret, Payload: payload, Status: "pending",
		},
		NextAttemptAt: time.Now(),
	}
	return id, nil
}

func (m *Memory) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	out := []WebhookDelivery{}
	for _, d := range m.deliveries {
		if d.Status != "pending" || d.NextAttemptAt.After(now) {
			continue
		}
		out = append(out, d.WebhookDelivery)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deliveries[id]
	if !ok {
		return ErrNotFound
	}
	d.Attempts++
	d.LastError = lastError
	d.ResponseCode = responseCode
	d.LatencyMs = latencyMs
	if success {
		d.Status = "delivered"
		now := time.Now()
		d.DeliveredAt = &now
	} else if nextAttemptAt != nil {
		d.NextAttemptAt = *nextAttemptAt
	}
	return nil
}

func (m *Memory) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deliveries[id]
	if !ok {
		return ErrNotFound
	}
	d.Attempts++
	d.Status = "failed"
	d.LastError = lastError
	d.ResponseCode = responseCode
	d.LatencyMs = latencyMs
	return nil
}
