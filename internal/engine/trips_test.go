package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"fleetops/internal/model"
	"fleetops/internal/store"
)

type captureSink struct {
	mu     sync.Mutex
	alerts []model.Alert
}

func (c *captureSink) Emit(_ context.Context, a model.Alert) {
	c.mu.Lock()
	c.alerts = append(c.alerts, a)
	c.mu.Unlock()
}

func (c *captureSink) bySeverity(sev string) []model.Alert {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []model.Alert
	for _, a := range c.alerts {
		if a.Severity == sev {
			out = append(out, a)
		}
	}
	return out
}

func newTestEngine(t *testing.T) (*Engine, *store.Memory, *captureSink) {
	t.Helper()
	m := store.NewMemory()
	sink := &captureSink{}
	return New(m, sink, DefaultThresholds()), m, sink
}

type fleet struct {
	admin   model.User
	driver  model.User
	truck   model.Truck
	trailer model.Trailer
}

// seedFleet creates an admin, an active driver, an available truck at
// 100000km with healthy tires, and an available trailer with healthy tires.
func seedFleet(t *testing.T, m *store.Memory) fleet {
	t.Helper()
	ctx := context.Background()
	admin, err := m.CreateUser(ctx, model.User{Name: "Dispatch", Role: model.RoleAdmin, IsActive: true})
	if err != nil {
		t.Fatalf("create admin: %v", err)
	}
	driver, err := m.CreateUser(ctx, model.User{Name: "Driver One", Role: model.RoleDriver, IsActive: true})
	if err != nil {
		t.Fatalf("create driver: %v", err)
	}
	truck, err := m.CreateTruck(ctx, model.Truck{
		Registration: "TRK-100", FuelCapacity: 400, CurrentFuelLevel: 300,
		CurrentKm: 100000, Status: model.VehicleAvailable,
	})
	if err != nil {
		t.Fatalf("create truck: %v", err)
	}
	trailer, err := m.CreateTrailer(ctx, model.Trailer{
		Registration: "TRL-200", Capacity: 25000, CurrentKm: 80000, Status: model.VehicleAvailable,
	})
	if err != nil {
		t.Fatalf("create trailer: %v", err)
	}
	for _, pos := range []string{"FL", "FR", "RL", "RR"} {
		if _, err := m.CreateTire(ctx, model.Tire{
			VehicleID: truck.ID, VehicleType: model.VehicleTruck, Position: pos,
			InstallKm: 60000, CurrentKm: 100000, MaxLifeKm: 80000,
			Status: model.TireGood, IsActive: true,
		}); err != nil {
			t.Fatalf("create truck tire: %v", err)
		}
	}
	for _, pos := range []string{"L1", "R1"} {
		if _, err := m.CreateTire(ctx, model.Tire{
			VehicleID: trailer.ID, VehicleType: model.VehicleTrailer, Position: pos,
			InstallKm: 50000, CurrentKm: 80000, MaxLifeKm: 90000,
			Status: model.TireGood, IsActive: true,
		}); err != nil {
			t.Fatalf("create trailer tire: %v", err)
		}
	}
	return fleet{admin: admin, driver: driver, truck: truck, trailer: trailer}
}

func candidateFor(f fleet) model.TripCreateInput {
	return model.TripCreateInput{
		Code: "TRIP-001", DriverID: f.driver.ID, TruckID: f.truck.ID, TrailerID: f.trailer.ID,
		Origin: "Madrid", Destination: "Valencia", Distance: 350, StartKm: 100000,
	}
}

func TestCreateTripSuccess(t *testing.T) {
	e, m, _ := newTestEngine(t)
	f := seedFleet(t, m)
	ctx := context.Background()

	trip, err := e.CreateTrip(ctx, candidateFor(f), f.admin.ID)
	if err != nil {
		t.Fatalf("create trip: %v", err)
	}
	if trip.Status != model.TripPlanned {
		t.Fatalf("status: got %s, want PLANNED", trip.Status)
	}
	truck, _ := m.GetTruck(ctx, f.truck.ID)
	if truck.Status != model.VehicleInUse {
		t.Fatalf("truck status: got %s, want IN_USE", truck.Status)
	}
	trailer, _ := m.GetTrailer(ctx, f.trailer.ID)
	if trailer.Status != model.VehicleInUse {
		t.Fatalf("trailer status: got %s, want IN_USE", trailer.Status)
	}
}

func TestCreateTripRejections(t *testing.T) {
	ctx := context.Background()

	cases := []struct {
		name    string
		mutate  func(t *testing.T, m *store.Memory, f *fleet, c *model.TripCreateInput, asUser *string)
		wantMsg string
		wantErr string // validation, notfound, forbidden
	}{
		{
			name: "duplicate code",
			mutate: func(t *testing.T, m *store.Memory, f *fleet, c *model.TripCreateInput, _ *string) {
				e := New(m, nil, DefaultThresholds())
				if _, err := e.CreateTrip(ctx, *c, f.admin.ID); err != nil {
					t.Fatalf("seed trip: %v", err)
				}
			},
			wantMsg: "already exists", wantErr: "validation",
		},
		{
			name: "non-admin requester",
			mutate: func(_ *testing.T, _ *store.Memory, f *fleet, _ *model.TripCreateInput, asUser *string) {
				*asUser = f.driver.ID
			},
			wantMsg: "Only ADMIN can assign trips", wantErr: "forbidden",
		},
		{
			name: "requester missing",
			mutate: func(_ *testing.T, _ *store.Memory, _ *fleet, _ *model.TripCreateInput, asUser *string) {
				*asUser = "nope"
			},
			wantMsg: "Current user not found", wantErr: "notfound",
		},
		{
			name: "assignee is not a driver",
			mutate: func(t *testing.T, m *store.Memory, _ *fleet, c *model.TripCreateInput, _ *string) {
				u, err := m.CreateUser(ctx, model.User{Name: "Second Admin", Role: model.RoleAdmin, IsActive: true})
				if err != nil {
					t.Fatal(err)
				}
				c.DriverID = u.ID
			},
			wantMsg: "Selected user is not a driver", wantErr: "validation",
		},
		{
			name: "inactive driver",
			mutate: func(t *testing.T, m *store.Memory, _ *fleet, c *model.TripCreateInput, _ *string) {
				u, err := m.CreateUser(ctx, model.User{Name: "Benched", Role: model.RoleDriver, IsActive: false})
				if err != nil {
					t.Fatal(err)
				}
				c.DriverID = u.ID
			},
			wantMsg: "Driver is not active", wantErr: "validation",
		},
		{
			name: "truck unavailable",
			mutate: func(t *testing.T, m *store.Memory, f *fleet, _ *model.TripCreateInput, _ *string) {
				truck, _ := m.GetTruck(ctx, f.truck.ID)
				truck.Status = model.VehicleMaintenance
				if err := m.UpdateTruck(ctx, truck); err != nil {
					t.Fatal(err)
				}
			},
			wantMsg: "Truck is not available. Current status: MAINTENANCE", wantErr: "validation",
		},
		{
			name: "odometer mismatch",
			mutate: func(_ *testing.T, _ *store.Memory, _ *fleet, c *model.TripCreateInput, _ *string) {
				c.StartKm = 99500
			},
			wantMsg: "does not match trip startKm", wantErr: "validation",
		},
		{
			name: "maintenance due soon",
			mutate: func(t *testing.T, m *store.Memory, f *fleet, _ *model.TripCreateInput, _ *string) {
				due := int64(100400)
				if _, err := m.CreateMaintenance(ctx, model.MaintenanceRecord{
					VehicleID: f.truck.ID, VehicleType: model.VehicleTruck,
					Type: model.MaintenanceOilChange, CurrentKm: 90400, NextDueKm: &due,
				}); err != nil {
					t.Fatal(err)
				}
			},
			wantMsg: "Only 400km remaining before required maintenance", wantErr: "validation",
		},
		{
			name: "tire below minimum",
			mutate: func(t *testing.T, m *store.Memory, f *fleet, _ *model.TripCreateInput, _ *string) {
				tires, _ := m.TiresByVehicle(ctx, f.truck.ID, model.VehicleTruck)
				tire := tires[0]
				tire.InstallKm, tire.MaxLifeKm, tire.CurrentKm = 90000, 40000, 129500
				if err := m.UpdateTire(ctx, tire); err != nil {
					t.Fatal(err)
				}
			},
			wantMsg: "has only 500km remaining", wantErr: "validation",
		},
		{
			name: "tire cannot cover distance",
			mutate: func(t *testing.T, m *store.Memory, f *fleet, c *model.TripCreateInput, _ *string) {
				c.Distance = 2500
				tires, _ := m.TiresByVehicle(ctx, f.truck.ID, model.VehicleTruck)
				tire := tires[0]
				tire.InstallKm, tire.MaxLifeKm, tire.CurrentKm = 90000, 12000, 100000
				if err := m.UpdateTire(ctx, tire); err != nil {
					t.Fatal(err)
				}
			},
			wantMsg: "cannot complete trip", wantErr: "validation",
		},
		{
			name: "distance exceeds maintenance headroom",
			mutate: func(t *testing.T, m *store.Memory, f *fleet, c *model.TripCreateInput, _ *string) {
				c.Distance = 900
				due := int64(100800)
				if _, err := m.CreateMaintenance(ctx, model.MaintenanceRecord{
					VehicleID: f.truck.ID, VehicleType: model.VehicleTruck,
					Type: model.MaintenanceOilChange, CurrentKm: 90800, NextDueKm: &due,
				}); err != nil {
					t.Fatal(err)
				}
			},
			wantMsg: "exceeds truck's remaining km before maintenance", wantErr: "validation",
		},
		{
			name: "trailer unavailable",
			mutate: func(t *testing.T, m *store.Memory, f *fleet, _ *model.TripCreateInput, _ *string) {
				trailer, _ := m.GetTrailer(ctx, f.trailer.ID)
				trailer.Status = model.VehicleOutOfService
				if err := m.UpdateTrailer(ctx, trailer); err != nil {
					t.Fatal(err)
				}
			},
			wantMsg: "Trailer is not available. Current status: OUT_OF_SERVICE", wantErr: "validation",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e, m, _ := newTestEngine(t)
			f := seedFleet(t, m)
			c := candidateFor(f)
			asUser := f.admin.ID
			tc.mutate(t, m, &f, &c, &asUser)

			_, err := e.CreateTrip(ctx, c, asUser)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.wantMsg) {
				t.Fatalf("message: got %q, want contains %q", err.Error(), tc.wantMsg)
			}
			var ve *ValidationError
			var nfe *NotFoundError
			var fe *ForbiddenError
			switch tc.wantErr {
			case "validation":
				if !errors.As(err, &ve) {
					t.Fatalf("expected ValidationError, got %T", err)
				}
			case "notfound":
				if !errors.As(err, &nfe) {
					t.Fatalf("expected NotFoundError, got %T", err)
				}
			case "forbidden":
				if !errors.As(err, &fe) {
					t.Fatalf("expected ForbiddenError, got %T", err)
				}
			}
		})
	}
}

func TestCreateTripDriverAlreadyBusy(t *testing.T) {
	e, m, _ := newTestEngine(t)
	f := seedFleet(t, m)
	ctx := context.Background()

	if _, err := e.CreateTrip(ctx, candidateFor(f), f.admin.ID); err != nil {
		t.Fatalf("first trip: %v", err)
	}

	// second truck+trailer so only the driver is contended
	truck2, _ := m.CreateTruck(ctx, model.Truck{Registration: "TRK-101", FuelCapacity: 400, CurrentFuelLevel: 300, CurrentKm: 50000, Status: model.VehicleAvailable})
	_, _ = m.CreateTire(ctx, model.Tire{VehicleID: truck2.ID, VehicleType: model.VehicleTruck, Position: "FL", InstallKm: 40000, CurrentKm: 50000, MaxLifeKm: 80000, Status: model.TireGood, IsActive: true})

	c := model.TripCreateInput{
		Code: "TRIP-002", DriverID: f.driver.ID, TruckID: truck2.ID,
		Origin: "Madrid", Destination: "Sevilla", Distance: 500, StartKm: 50000,
	}
	_, err := e.CreateTrip(ctx, c, f.admin.ID)
	if err == nil || !strings.Contains(err.Error(), "Driver already has an active trip") {
		t.Fatalf("got %v, want driver-busy error", err)
	}
}

func TestTripLifecycleCompletion(t *testing.T) {
	e, m, _ := newTestEngine(t)
	f := seedFleet(t, m)
	ctx := context.Background()

	trip, err := e.CreateTrip(ctx, candidateFor(f), f.admin.ID)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// completing a planned trip is rejected
	endKm := int64(100500)
	if _, err := e.UpdateTripStatus(ctx, trip.ID, model.TripStatusUpdate{Status: model.TripCompleted, EndKm: &endKm}, f.admin.ID); err == nil ||
		!strings.Contains(err.Error(), "Can only complete an in-progress trip") {
		t.Fatalf("complete from PLANNED: got %v", err)
	}

	started, err := e.UpdateTripStatus(ctx, trip.ID, model.TripStatusUpdate{Status: model.TripInProgress}, f.driver.ID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if started.StartedAt == nil {
		t.Fatal("startedAt not set")
	}

	// starting twice is rejected
	if _, err := e.UpdateTripStatus(ctx, trip.ID, model.TripStatusUpdate{Status: model.TripInProgress}, f.driver.ID); err == nil ||
		!strings.Contains(err.Error(), "Can only start a planned trip") {
		t.Fatalf("double start: got %v", err)
	}

	fuel := 42.5
	done, err := e.UpdateTripStatus(ctx, trip.ID, model.TripStatusUpdate{Status: model.TripCompleted, EndKm: &endKm, FuelConsumed: &fuel}, f.driver.ID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.CompletedAt == nil || done.EndKm == nil || *done.EndKm != 100500 {
		t.Fatalf("completion fields: %+v", done)
	}

	truck, _ := m.GetTruck(ctx, f.truck.ID)
	if truck.Status != model.VehicleAvailable {
		t.Fatalf("truck status: got %s, want AVAILABLE", truck.Status)
	}
	if truck.CurrentKm != 100500 {
		t.Fatalf("truck km: got %d, want 100500", truck.CurrentKm)
	}
	if truck.KmSinceLastOil != 500 {
		t.Fatalf("kmSinceLastOil: got %d, want 500", truck.KmSinceLastOil)
	}
	trailer, _ := m.GetTrailer(ctx, f.trailer.ID)
	if trailer.Status != model.VehicleAvailable || trailer.CurrentKm != 80500 {
		t.Fatalf("trailer: status=%s km=%d", trailer.Status, trailer.CurrentKm)
	}
	for _, vt := range []struct {
		id string
		vt model.VehicleType
		km int64
	}{{f.truck.ID, model.VehicleTruck, 100500}, {f.trailer.ID, model.VehicleTrailer, 80500}} {
		tires, _ := m.TiresByVehicle(ctx, vt.id, vt.vt)
		for _, tire := range tires {
			if tire.CurrentKm != vt.km {
				t.Fatalf("%s tire %s km: got %d, want %d", vt.vt, tire.Position, tire.CurrentKm, vt.km)
			}
		}
	}
}

func TestTripCancellationReleasesVehicles(t *testing.T) {
	e, m, _ := newTestEngine(t)
	f := seedFleet(t, m)
	ctx := context.Background()

	trip, err := e.CreateTrip(ctx, candidateFor(f), f.admin.ID)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := e.UpdateTripStatus(ctx, trip.ID, model.TripStatusUpdate{Status: model.TripCancelled}, f.admin.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	truck, _ := m.GetTruck(ctx, f.truck.ID)
	trailer, _ := m.GetTrailer(ctx, f.trailer.ID)
	if truck.Status != model.VehicleAvailable || trailer.Status != model.VehicleAvailable {
		t.Fatalf("vehicles not released: truck=%s trailer=%s", truck.Status, trailer.Status)
	}
	if truck.CurrentKm != 100000 {
		t.Fatalf("cancel must not touch the odometer: got %d", truck.CurrentKm)
	}

	// terminal states reject further transitions
	if _, err := e.UpdateTripStatus(ctx, trip.ID, model.TripStatusUpdate{Status: model.TripCancelled}, f.admin.ID); err == nil {
		t.Fatal("cancelling a cancelled trip should fail")
	}
}

func TestUpdateTripStatusForbiddenForOtherDriver(t *testing.T) {
	e, m, _ := newTestEngine(t)
	f := seedFleet(t, m)
	ctx := context.Background()

	other, err := m.CreateUser(ctx, model.User{Name: "Driver Two", Role: model.RoleDriver, IsActive: true})
	if err != nil {
		t.Fatal(err)
	}
	trip, err := e.CreateTrip(ctx, candidateFor(f), f.admin.ID)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	_, err = e.UpdateTripStatus(ctx, trip.ID, model.TripStatusUpdate{Status: model.TripInProgress}, other.ID)
	var fe *ForbiddenError
	if !errors.As(err, &fe) {
		t.Fatalf("expected ForbiddenError, got %v", err)
	}
	// an admin may drive any trip's lifecycle
	if _, err := e.UpdateTripStatus(ctx, trip.ID, model.TripStatusUpdate{Status: model.TripInProgress}, f.admin.ID); err != nil {
		t.Fatalf("admin start: %v", err)
	}
}

func TestCalculateTripCost(t *testing.T) {
	e, m, _ := newTestEngine(t)
	f := seedFleet(t, m)
	ctx := context.Background()

	trip, err := e.CreateTrip(ctx, candidateFor(f), f.admin.ID)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := e.CalculateTripCost(ctx, trip.ID, 1.5); err == nil ||
		!strings.Contains(err.Error(), "Can only calculate cost for completed trips") {
		t.Fatalf("cost before completion: got %v", err)
	}

	if _, err := e.UpdateTripStatus(ctx, trip.ID, model.TripStatusUpdate{Status: model.TripInProgress}, f.driver.ID); err != nil {
		t.Fatal(err)
	}
	endKm := int64(100350)
	fuel := 20.0
	if _, err := e.UpdateTripStatus(ctx, trip.ID, model.TripStatusUpdate{Status: model.TripCompleted, EndKm: &endKm, FuelConsumed: &fuel}, f.driver.ID); err != nil {
		t.Fatal(err)
	}

	cost, err := e.CalculateTripCost(ctx, trip.ID, 1.5)
	if err != nil {
		t.Fatalf("cost: %v", err)
	}
	if cost != 30 {
		t.Fatalf("cost: got %v, want 30", cost)
	}
}

func TestRemainingKmBeforeMaintenance(t *testing.T) {
	e, m, _ := newTestEngine(t)
	f := seedFleet(t, m)
	ctx := context.Background()

	got, err := e.RemainingKmBeforeMaintenance(ctx, f.truck.ID, model.VehicleTruck)
	if err != nil {
		t.Fatal(err)
	}
	if got != UnboundedMaintenance {
		t.Fatalf("no record: got %d, want unbounded", got)
	}

	due := int64(100400)
	if _, err := m.CreateMaintenance(ctx, model.MaintenanceRecord{
		VehicleID: f.truck.ID, VehicleType: model.VehicleTruck,
		Type: model.MaintenanceOilChange, CurrentKm: 90400, NextDueKm: &due,
	}); err != nil {
		t.Fatal(err)
	}
	got, err = e.RemainingKmBeforeMaintenance(ctx, f.truck.ID, model.VehicleTruck)
	if err != nil {
		t.Fatal(err)
	}
	if got != 400 {
		t.Fatalf("got %d, want 400", got)
	}

	// clamp at zero when overdue
	overdue := int64(99000)
	if _, err := m.CreateMaintenance(ctx, model.MaintenanceRecord{
		VehicleID: f.truck.ID, VehicleType: model.VehicleTruck,
		Type: model.MaintenanceInspection, CurrentKm: 95000, NextDueKm: &overdue,
	}); err != nil {
		t.Fatal(err)
	}
	got, err = e.RemainingKmBeforeMaintenance(ctx, f.truck.ID, model.VehicleTruck)
	if err != nil {
		t.Fatal(err)
	}
	if got != 0 {
		t.Fatalf("overdue: got %d, want 0", got)
	}
}

func TestRecordMaintenanceOilChange(t *testing.T) {
	e, m, _ := newTestEngine(t)
	f := seedFleet(t, m)
	ctx := context.Background()

	truck, _ := m.GetTruck(ctx, f.truck.ID)
	truck.KmSinceLastOil = 9800
	if err := m.UpdateTruck(ctx, truck); err != nil {
		t.Fatal(err)
	}

	rec, err := e.RecordMaintenance(ctx, model.MaintenanceRecord{
		VehicleID: f.truck.ID, VehicleType: model.VehicleTruck,
		Type: model.MaintenanceOilChange, CurrentKm: 100000, Cost: 180,
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if rec.NextDueKm == nil || *rec.NextDueKm != 110000 {
		t.Fatalf("nextDueKm: got %v, want 110000", rec.NextDueKm)
	}
	truck, _ = m.GetTruck(ctx, f.truck.ID)
	if truck.KmSinceLastOil != 0 || truck.LastOilChangeKm != 100000 {
		t.Fatalf("oil counters: since=%d lastAt=%d", truck.KmSinceLastOil, truck.LastOilChangeKm)
	}

	// a repair schedules nothing
	rec, err = e.RecordMaintenance(ctx, model.MaintenanceRecord{
		VehicleID: f.truck.ID, VehicleType: model.VehicleTruck,
		Type: model.MaintenanceRepair, CurrentKm: 100000, Cost: 90,
	})
	if err != nil {
		t.Fatal(err)
	}
	if rec.NextDueKm != nil {
		t.Fatalf("repair nextDueKm: got %v, want nil", *rec.NextDueKm)
	}
}
