package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"fleetops/internal/model"
)

type Postgres struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &Postgres{db: db}, nil
}

// MigrateDir applies every .sql file in dir in lexical order. Dev helper;
// production deployments run migrations out of band.
func (p *Postgres) MigrateDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	names := []string{}
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, n := range names {
		b, err := os.ReadFile(filepath.Join(dir, n))
		if err != nil {
			return err
		}
		if _, err := p.db.Exec(string(b)); err != nil {
			return err
		}
	}
	return nil
}

func (p *Postgres) CreateUser(ctx context.Context, u model.User) (model.User, error) {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	_, err := p.db.ExecContext(ctx, `INSERT INTO users (id, name, role, is_active) VALUES ($1,$2,$3,$4)`,
		u.ID, u.Name, u.Role, u.IsActive)
	return u, err
}

func (p *Postgres) GetUser(ctx context.Context, id string) (model.User, error) {
	var u model.User
	err := p.db.QueryRowContext(ctx, `SELECT id::text, name, role, is_active FROM users WHERE id=$1`, id).
		Scan(&u.ID, &u.Name, &u.Role, &u.IsActive)
	if errors.Is(err, sql.ErrNoRows) {
		return u, ErrNotFound
	}
	return u, err
}

const truckCols = `id::text, registration, brand, model, year, fuel_capacity, current_fuel_level, engine_temp, km_since_last_oil, last_oil_change_km, current_km, status`

func scanTruck(row interface{ Scan(...any) error }) (model.Truck, error) {
	var t model.Truck
	err := row.Scan(&t.ID, &t.Registration, &t.Brand, &t.Model, &t.Year, &t.FuelCapacity,
		&t.CurrentFuelLevel, &t.EngineTemp, &t.KmSinceLastOil, &t.LastOilChangeKm, &t.CurrentKm, &t.Status)
	return t, err
}

func (p *Postgres) CreateTruck(ctx context.Context, t model.Truck) (model.Truck, error) {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.Status == "" {
		t.Status = model.VehicleAvailable
	}
	_, err := p.db.ExecContext(ctx, `INSERT INTO trucks (id, registration, brand, model, year, fuel_capacity, current_fuel_level, engine_temp, km_since_last_oil, last_oil_change_km, current_km, status)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		t.ID, t.Registration, t.Brand, t.Model, t.Year, t.FuelCapacity, t.CurrentFuelLevel,
		t.EngineTemp, t.KmSinceLastOil, t.LastOilChangeKm, t.CurrentKm, t.Status)
	return t, err
}

func (p *Postgres) GetTruck(ctx context.Context, id string) (model.Truck, error) {
	t, err := scanTruck(p.db.QueryRowContext(ctx, `SELECT `+truckCols+` FROM trucks WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return t, ErrNotFound
	}
	return t, err
}

func (p *Postgres) ListTrucks(ctx context.Context) ([]model.Truck, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT `+truckCols+` FROM trucks ORDER BY registration`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Truck{}
	for rows.Next() {
		t, err := scanTruck(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (p *Postgres) UpdateTruck(ctx context.Context, t model.Truck) error {
	res, err := p.db.ExecContext(ctx, `UPDATE trucks SET registration=$2, brand=$3, model=$4, year=$5, fuel_capacity=$6, current_fuel_level=$7, engine_temp=$8, km_since_last_oil=$9, last_oil_change_km=$10, current_km=$11, status=$12 WHERE id=$1`,
		t.ID, t.Registration, t.Brand, t.Model, t.Year, t.FuelCapacity, t.CurrentFuelLevel,
		t.EngineTemp, t.KmSinceLastOil, t.LastOilChangeKm, t.CurrentKm, t.Status)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

const trailerCols = `id::text, registration, type, capacity, current_km, status`

func scanTrailer(row interface{ Scan(...any) error }) (model.Trailer, error) {
	var t model.Trailer
	err := row.Scan(&t.ID, &t.Registration, &t.Type, &t.Capacity, &t.CurrentKm, &t.Status)
	return t, err
}

func (p *Postgres) CreateTrailer(ctx context.Context, t model.Trailer) (model.Trailer, error) {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.Status == "" {
		t.Status = model.VehicleAvailable
	}
	_, err := p.db.ExecContext(ctx, `INSERT INTO trailers (id, registration, type, capacity, current_km, status) VALUES ($1,$2,$3,$4,$5,$6)`,
		t.ID, t.Registration, t.Type, t.Capacity, t.CurrentKm, t.Status)
	return t, err
}

func (p *Postgres) GetTrailer(ctx context.Context, id string) (model.Trailer, error) {
	t, err := scanTrailer(p.db.QueryRowContext(ctx, `SELECT `+trailerCols+` FROM trailers WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return t, ErrNotFound
	}
	return t, err
}

func (p *Postgres) ListTrailers(ctx context.Context) ([]model.Trailer, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT `+trailerCols+` FROM trailers ORDER BY registration`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Trailer{}
	for rows.Next() {
		t, err := scanTrailer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (p *Postgres) UpdateTrailer(ctx context.Context, t model.Trailer) error {
	res, err := p.db.ExecContext(ctx, `UPDATE trailers SET registration=$2, type=$3, capacity=$4, current_km=$5, status=$6 WHERE id=$1`,
		t.ID, t.Registration, t.Type, t.Capacity, t.CurrentKm, t.Status)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

const tireCols = `id::text, vehicle_id::text, vehicle_type, position, brand, install_km, current_km, max_life_km, status, is_spare, is_active, explosion_detected, activated_at`

func scanTire(row interface{ Scan(...any) error }) (model.Tire, error) {
	var t model.Tire
	var activatedAt sql.NullTime
	err := row.Scan(&t.ID, &t.VehicleID, &t.VehicleType, &t.Position, &t.Brand, &t.InstallKm,
		&t.CurrentKm, &t.MaxLifeKm, &t.Status, &t.IsSpare, &t.IsActive, &t.ExplosionDetected, &activatedAt)
	if activatedAt.Valid {
		t.ActivatedAt = &activatedAt.Time
	}
	return t, err
}

func (p *Postgres) CreateTire(ctx context.Context, t model.Tire) (model.Tire, error) {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.Status == "" {
		t.Status = model.TireGood
	}
	_, err := p.db.ExecContext(ctx, `INSERT INTO tires (id, vehicle_id, vehicle_type, position, brand, install_km, current_km, max_life_km, status, is_spare, is_active, explosion_detected, activated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		t.ID, t.VehicleID, t.VehicleType, t.Position, t.Brand, t.InstallKm, t.CurrentKm,
		t.MaxLifeKm, t.Status, t.IsSpare, t.IsActive, t.ExplosionDetected, nullTime(t.ActivatedAt))
	return t, err
}

func (p *Postgres) TiresByVehicle(ctx context.Context, vehicleID string, vt model.VehicleType) ([]model.Tire, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT `+tireCols+` FROM tires WHERE vehicle_id=$1 AND vehicle_type=$2 ORDER BY position`, vehicleID, vt)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Tire{}
	for rows.Next() {
		t, err := scanTire(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (p *Postgres) UpdateTire(ctx context.Context, t model.Tire) error {
	res, err := p.db.ExecContext(ctx, `UPDATE tires SET position=$2, brand=$3, install_km=$4, current_km=$5, max_life_km=$6, status=$7, is_spare=$8, is_active=$9, explosion_detected=$10, activated_at=$11 WHERE id=$1`,
		t.ID, t.Position, t.Brand, t.InstallKm, t.CurrentKm, t.MaxLifeKm, t.Status,
		t.IsSpare, t.IsActive, t.ExplosionDetected, nullTime(t.ActivatedAt))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) CreateMaintenance(ctx context.Context, rec model.MaintenanceRecord) (model.MaintenanceRecord, error) {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.PerformedAt.IsZero() {
		rec.PerformedAt = time.Now().UTC()
	}
	_, err := p.db.ExecContext(ctx, `INSERT INTO maintenance_records (id, vehicle_id, vehicle_type, type, description, current_km, next_due_km, cost, performed_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		rec.ID, rec.VehicleID, rec.VehicleType, rec.Type, rec.Description, rec.CurrentKm,
		nullInt(rec.NextDueKm), rec.Cost, rec.PerformedAt)
	return rec, err
}

func (p *Postgres) LatestMaintenanceWithNextDue(ctx context.Context, vehicleID string, vt model.VehicleType) (model.MaintenanceRecord, bool, error) {
	var rec model.MaintenanceRecord
	var nextDue int64
	err := p.db.QueryRowContext(ctx, `SELECT id::text, vehicle_id::text, vehicle_type, type, description, current_km, next_due_km, cost, performed_at
FROM maintenance_records WHERE vehicle_id=$1 AND vehicle_type=$2 AND next_due_km IS NOT NULL
ORDER BY performed_at DESC LIMIT 1`, vehicleID, vt).
		Scan(&rec.ID, &rec.VehicleID, &rec.VehicleType, &rec.Type, &rec.Description,
			&rec.CurrentKm, &nextDue, &rec.Cost, &rec.PerformedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return rec, false, nil
	}
	if err != nil {
		return rec, false, err
	}
	rec.NextDueKm = &nextDue
	return rec, true, nil
}

func (p *Postgres) MaintenanceHistory(ctx context.Context, vehicleID string, vt model.VehicleType) ([]model.MaintenanceRecord, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id::text, vehicle_id::text, vehicle_type, type, description, current_km, next_due_km, cost, performed_at
FROM maintenance_records WHERE vehicle_id=$1 AND vehicle_type=$2 ORDER BY performed_at DESC`, vehicleID, vt)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.MaintenanceRecord{}
	for rows.Next() {
		var rec model.MaintenanceRecord
		var nextDue sql.NullInt64
		if err := rows.Scan(&rec.ID, &rec.VehicleID, &rec.VehicleType, &rec.Type, &rec.Description,
			&rec.CurrentKm, &nextDue, &rec.Cost, &rec.PerformedAt); err != nil {
			return nil, err
		}
		if nextDue.Valid {
			rec.NextDueKm = &nextDue.Int64
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

const tripCols = `id::text, code, driver_id::text, truck_id::text, trailer_id::text, origin, destination, distance, start_km, end_km, fuel_consumed, load_weight, driving_hours, estimated_fuel, status, started_at, completed_at, created_at`

func scanTrip(row interface{ Scan(...any) error }) (model.Trip, error) {
	var t model.Trip
	var trailerID sql.NullString
	var endKm sql.NullInt64
	var fuel, load, hours, estFuel sql.NullFloat64
	var startedAt, completedAt sql.NullTime
	err := row.Scan(&t.ID, &t.Code, &t.DriverID, &t.TruckID, &trailerID, &t.Origin, &t.Destination,
		&t.Distance, &t.StartKm, &endKm, &fuel, &load, &hours, &estFuel, &t.Status,
		&startedAt, &completedAt, &t.CreatedAt)
	if err != nil {
		return t, err
	}
	t.TrailerID = trailerID.String
	if endKm.Valid {
		t.EndKm = &endKm.Int64
	}
	if fuel.Valid {
		t.FuelConsumed = &fuel.Float64
	}
	if load.Valid {
		t.LoadWeight = &load.Float64
	}
	if hours.Valid {
		t.DrivingHours = &hours.Float64
	}
	if estFuel.Valid {
		t.EstimatedFuelConsumption = &estFuel.Float64
	}
	if startedAt.Valid {
		t.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		t.CompletedAt = &completedAt.Time
	}
	return t, nil
}

// CreateTripReserving verifies and reserves in one transaction. The
// conditional status UPDATEs plus the partial unique indexes on active
// trips (see db/migrations) make the one-active-trip invariant hold even
// against concurrent requests.
func (p *Postgres) CreateTripReserving(ctx context.Context, t model.Trip) (model.Trip, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Trip{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var exists string
	err = tx.QueryRowContext(ctx, `SELECT id::text FROM trips WHERE code=$1`, t.Code).Scan(&exists)
	if err == nil {
		return model.Trip{}, ErrConflict
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return model.Trip{}, err
	}

	err = tx.QueryRowContext(ctx, `SELECT id::text FROM trips
WHERE status IN ('PLANNED','IN_PROGRESS') AND (driver_id=$1 OR truck_id=$2 OR ($3::uuid IS NOT NULL AND trailer_id=$3))`,
		t.DriverID, t.TruckID, nullIfEmpty(t.TrailerID)).Scan(&exists)
	if err == nil {
		return model.Trip{}, ErrConflict
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return model.Trip{}, err
	}

	res, err := tx.ExecContext(ctx, `UPDATE trucks SET status=$2 WHERE id=$1 AND status=$3`,
		t.TruckID, model.VehicleInUse, model.VehicleAvailable)
	if err != nil {
		return model.Trip{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.Trip{}, ErrConflict
	}
	if t.TrailerID != "" {
		res, err = tx.ExecContext(ctx, `UPDATE trailers SET status=$2 WHERE id=$1 AND status=$3`,
			t.TrailerID, model.VehicleInUse, model.VehicleAvailable)
		if err != nil {
			return model.Trip{}, err
		}
		if n, _ := res.RowsAffected(); n == 0 {
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
	_, err = tx.ExecContext(ctx, `INSERT INTO trips (id, code, driver_id, truck_id, trailer_id, origin, destination, distance, start_km, load_weight, status, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		t.ID, t.Code, t.DriverID, t.TruckID, nullIfEmpty(t.TrailerID), t.Origin, t.Destination,
		t.Distance, t.StartKm, nullFloat(t.LoadWeight), t.Status, t.CreatedAt)
	if err != nil {
		return model.Trip{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.Trip{}, err
	}
	return t, nil
}

func (p *Postgres) GetTrip(ctx context.Context, id string) (model.Trip, error) {
	t, err := scanTrip(p.db.QueryRowContext(ctx, `SELECT `+tripCols+` FROM trips WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return t, ErrNotFound
	}
	return t, err
}

func (p *Postgres) GetTripByCode(ctx context.Context, code string) (model.Trip, error) {
	t, err := scanTrip(p.db.QueryRowContext(ctx, `SELECT `+tripCols+` FROM trips WHERE code=$1`, code))
	if errors.Is(err, sql.ErrNoRows) {
		return t, ErrNotFound
	}
	return t, err
}

func (p *Postgres) activeTripWhere(ctx context.Context, clause string, arg any) (model.Trip, bool, error) {
	t, err := scanTrip(p.db.QueryRowContext(ctx, `SELECT `+tripCols+` FROM trips
WHERE status IN ('PLANNED','IN_PROGRESS') AND `+clause+` LIMIT 1`, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Trip{}, false, nil
	}
	if err != nil {
		return model.Trip{}, false, err
	}
	return t, true, nil
}

func (p *Postgres) ActiveTripForDriver(ctx context.Context, driverID string) (model.Trip, bool, error) {
	return p.activeTripWhere(ctx, `driver_id=$1`, driverID)
}

func (p *Postgres) ActiveTripForTruck(ctx context.Context, truckID string) (model.Trip, bool, error) {
	return p.activeTripWhere(ctx, `truck_id=$1`, truckID)
}

func (p *Postgres) ActiveTripForTrailer(ctx context.Context, trailerID string) (model.Trip, bool, error) {
	return p.activeTripWhere(ctx, `trailer_id=$1`, trailerID)
}

func (p *Postgres) UpdateTrip(ctx context.Context, t model.Trip) error {
	res, err := p.db.ExecContext(ctx, `UPDATE trips SET end_km=$2, fuel_consumed=$3, load_weight=$4, driving_hours=$5, estimated_fuel=$6, status=$7, started_at=$8, completed_at=$9 WHERE id=$1`,
		t.ID, nullInt(t.EndKm), nullFloat(t.FuelConsumed), nullFloat(t.LoadWeight),
		nullFloat(t.DrivingHours), nullFloat(t.EstimatedFuelConsumption), t.Status,
		nullTime(t.StartedAt), nullTime(t.CompletedAt))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) ListTrips(ctx context.Context, status, driverID string) ([]model.Trip, error) {
	q := `SELECT ` + tripCols + ` FROM trips WHERE ($1='' OR status=$1) AND ($2='' OR driver_id::text=$2) ORDER BY created_at DESC`
	rows, err := p.db.QueryContext(ctx, q, status, driverID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Trip{}
	for rows.Next() {
		t, err := scanTrip(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (p *Postgres) CreateAlert(ctx context.Context, a model.Alert) (model.Alert, error) {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	_, err := p.db.ExecContext(ctx, `INSERT INTO alerts (id, type, severity, message, vehicle_id, vehicle_type, trip_id, driver_id, acknowledged, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,false,$9)`,
		a.ID, a.Type, a.Severity, a.Message, nullIfEmpty(a.VehicleID), nullIfEmpty(string(a.VehicleType)),
		nullIfEmpty(a.TripID), nullIfEmpty(a.DriverID), a.CreatedAt)
	return a, err
}

func (p *Postgres) ListAlerts(ctx context.Context, onlyUnacked bool, severity, vehicleID string) ([]model.Alert, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id::text, type, severity, message, vehicle_id::text, vehicle_type, trip_id::text, driver_id::text, acknowledged, acknowledged_by::text, acknowledged_at, created_at
FROM alerts WHERE ($1=false OR acknowledged=false) AND ($2='' OR severity=$2) AND ($3='' OR vehicle_id::text=$3)
ORDER BY created_at DESC`, onlyUnacked, severity, vehicleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Alert{}
	for rows.Next() {
		var a model.Alert
		var vehicleID, vehicleType, tripID, driverID, ackBy sql.NullString
		var ackAt sql.NullTime
		if err := rows.Scan(&a.ID, &a.Type, &a.Severity, &a.Message, &vehicleID, &vehicleType,
			&tripID, &driverID, &a.Acknowledged, &ackBy, &ackAt, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.VehicleID = vehicleID.String
		a.VehicleType = model.VehicleType(vehicleType.String)
		a.TripID = tripID.String
		a.DriverID = driverID.String
		a.AcknowledgedBy = ackBy.String
		if ackAt.Valid {
			a.AcknowledgedAt = &ackAt.Time
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (p *Postgres) AcknowledgeAlert(ctx context.Context, id, userID string) (model.Alert, error) {
	res, err := p.db.ExecContext(ctx, `UPDATE alerts SET acknowledged=true, acknowledged_by=$2, acknowledged_at=now() WHERE id=$1`, id, nullIfEmpty(userID))
	if err != nil {
		return model.Alert{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.Alert{}, ErrNotFound
	}
	alerts, err := p.ListAlerts(ctx, false, "", "")
	if err != nil {
		return model.Alert{}, err
	}
	for _, a := range alerts {
		if a.ID == id {
			return a, nil
		}
	}
	return model.Alert{}, ErrNotFound
}

func (p *Postgres) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
	s := model.Subscription{ID: uuid.New().String(), URL: req.URL, Events: req.Events, Secret: req.Secret}
	_, err := p.db.ExecContext(ctx, `INSERT INTO subscriptions (id, url, events, secret) VALUES ($1,$2,$3,$4)`,
		s.ID, s.URL, strings.Join(s.Events, ","), s.Secret)
	return s, err
}

func (p *Postgres) GetSubscriptionsForEvent(ctx context.Context, eventType string) ([]model.Subscription, error) {
	all, err := p.ListSubscriptions(ctx)
	if err != nil {
		return nil, err
	}
	var out []model.Subscription
	for _, s := range all {
		for _, e := range s.Events {
			if e == eventType || e == "*" {
				out = append(out, s)
				break
			}
		}
	}
	return out, nil
}

func (p *Postgres) ListSubscriptions(ctx context.Context) ([]model.Subscription, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id::text, url, events, secret FROM subscriptions ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Subscription{}
	for rows.Next() {
		var s model.Subscription
		var events string
		if err := rows.Scan(&s.ID, &s.URL, &events, &s.Secret); err != nil {
			return nil, err
		}
		if events != "" {
			s.Events = strings.Split(events, ",")
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *Postgres) DeleteSubscription(ctx context.Context, id string) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE id=$1`, id)
	return err
}

func (p *Postgres) EnqueueWebhook(ctx context.Context, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
	id := uuid.New().String()
	_, err := p.db.ExecContext(ctx, `INSERT INTO webhook_deliveries (id, subscription_id, event_type, url, secret, payload, status, attempts, next_attempt_at)
VALUES ($1,$2,$3,$4,$5,$6,'pending',0,now())`,
		id, nullIfEmpty(subscriptionID), eventType, url, secret, payload)
	return id, err
}

func (p *Postgres) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id::text, COALESCE(subscription_id::text,''), event_type, url, secret, payload, status, attempts
FROM webhook_deliveries WHERE status='pending' AND next_attempt_at <= now() ORDER BY next_attempt_at LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []WebhookDelivery{}
	for rows.Next() {
		var d WebhookDelivery
		if err := rows.Scan(&d.ID, &d.SubscriptionID, &d.EventType, &d.URL, &d.Secret, &d.Payload, &d.Status, &d.Attempts); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (p *Postgres) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	if success {
		_, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET status='delivered', attempts=attempts+1, last_error=$2, response_code=$3, latency_ms=$4, delivered_at=now() WHERE id=$1`,
			id, lastError, responseCode, latencyMs)
		return err
	}
	_, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, next_attempt_at=$2, last_error=$3, response_code=$4, latency_ms=$5 WHERE id=$1`,
		id, nullTime(nextAttemptAt), lastError, responseCode, latencyMs)
	return err
}

func (p *Postgres) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	_, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET status='failed', attempts=attempts+1, last_error=$2, response_code=$3, latency_ms=$4 WHERE id=$1`,
		id, lastError, responseCode, latencyMs)
	return err
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullInt(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
