package engine

import (
	"context"
	"errors"
	"strings"
	"testing"

	"fleetops/internal/model"
)

func TestCalculateFuelConsumption(t *testing.T) {
	e, _, _ := newTestEngine(t)

	// load equals the reference load, so consumption equals the base rate
	if got := e.CalculateFuelConsumption(300, 20000, 30); got != 30 {
		t.Fatalf("reference load: got %v, want 30", got)
	}
	// empty truck burns 70% of base
	if got := e.CalculateFuelConsumption(300, 0, 30); got != 21 {
		t.Fatalf("empty: got %v, want 21", got)
	}
}

func TestCheckFuelLevel(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		name     string
		level    float64 // of a 100L tank
		wantErr  string
		severity string
	}{
		{"critical at 8%", 8, "CRITICAL: Only 8.0% fuel. Trip blocked!", model.SeverityCritical},
		{"warning at 12%", 12, "Low fuel: 12.0%. Refuel required.", model.SeverityWarning},
		{"passes at 20%", 20, "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e, m, sink := newTestEngine(t)
			truck, err := m.CreateTruck(ctx, model.Truck{Registration: "T", FuelCapacity: 100, CurrentFuelLevel: tc.level})
			if err != nil {
				t.Fatal(err)
			}
			err = e.CheckFuelLevel(ctx, truck.ID)
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("expected pass, got %v", err)
				}
				if len(sink.alerts) != 0 {
					t.Fatalf("unexpected alerts: %+v", sink.alerts)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("got %v, want %q", err, tc.wantErr)
			}
			if got := sink.bySeverity(tc.severity); len(got) != 1 {
				t.Fatalf("alerts with severity %s: got %d, want 1", tc.severity, len(got))
			}
		})
	}
}

func TestCheckOilMaintenance(t *testing.T) {
	e, m, sink := newTestEngine(t)
	ctx := context.Background()
	truck, _ := m.CreateTruck(ctx, model.Truck{Registration: "T", FuelCapacity: 100, CurrentFuelLevel: 80, KmSinceLastOil: 12000})

	err := e.CheckOilMaintenance(ctx, truck.ID)
	if err == nil || !strings.Contains(err.Error(), "Oil change required! 12000km since last change.") {
		t.Fatalf("got %v", err)
	}
	if got := sink.bySeverity(model.SeverityCritical); len(got) != 1 || got[0].Type != model.AlertOilMaintenance {
		t.Fatalf("alerts: %+v", sink.alerts)
	}

	truck.KmSinceLastOil = 9999
	_ = m.UpdateTruck(ctx, truck)
	if err := e.CheckOilMaintenance(ctx, truck.ID); err != nil {
		t.Fatalf("below interval: %v", err)
	}
}

func TestReportEngineTemperatureForcesMaintenance(t *testing.T) {
	e, m, sink := newTestEngine(t)
	ctx := context.Background()
	truck, _ := m.CreateTruck(ctx, model.Truck{Registration: "T", FuelCapacity: 100, CurrentFuelLevel: 80, Status: model.VehicleAvailable})

	if err := e.ReportEngineTemperature(ctx, truck.ID, 95); err != nil {
		t.Fatalf("safe reading: %v", err)
	}
	got, _ := m.GetTruck(ctx, truck.ID)
	if got.EngineTemp != 95 || got.Status != model.VehicleAvailable {
		t.Fatalf("after safe reading: %+v", got)
	}

	err := e.ReportEngineTemperature(ctx, truck.ID, 121)
	if err == nil || !strings.Contains(err.Error(), "Stop engine immediately!") {
		t.Fatalf("got %v", err)
	}
	got, _ = m.GetTruck(ctx, truck.ID)
	if got.Status != model.VehicleMaintenance {
		t.Fatalf("truck not forced into MAINTENANCE: %s", got.Status)
	}
	if alerts := sink.bySeverity(model.SeverityEmergency); len(alerts) != 1 || alerts[0].Type != model.AlertEngineTemp {
		t.Fatalf("alerts: %+v", sink.alerts)
	}
}

func TestCheckTrailerLoad(t *testing.T) {
	e, m, sink := newTestEngine(t)
	ctx := context.Background()
	trailer, _ := m.CreateTrailer(ctx, model.Trailer{Registration: "TRL", Capacity: 24000})

	if err := e.CheckTrailerLoad(ctx, trailer.ID, 20000); err != nil {
		t.Fatalf("under capacity: %v", err)
	}
	err := e.CheckTrailerLoad(ctx, trailer.ID, 26000)
	if err == nil || !strings.Contains(err.Error(), "exceeds capacity") {
		t.Fatalf("got %v", err)
	}
	if alerts := sink.bySeverity(model.SeverityEmergency); len(alerts) != 1 || alerts[0].Type != model.AlertOverload {
		t.Fatalf("alerts: %+v", sink.alerts)
	}
}

func TestCheckDriverRest(t *testing.T) {
	e, m, _ := newTestEngine(t)
	f := seedFleet(t, m)
	ctx := context.Background()

	trip, err := e.CreateTrip(ctx, candidateFor(f), f.admin.ID)
	if err != nil {
		t.Fatal(err)
	}
	if err := e.CheckDriverRest(ctx, trip.ID); err != nil {
		t.Fatalf("no hours recorded: %v", err)
	}

	hours := 4.5
	trip.DrivingHours = &hours
	if err := m.UpdateTrip(ctx, trip); err != nil {
		t.Fatal(err)
	}
	err = e.CheckDriverRest(ctx, trip.ID)
	if err == nil || !strings.Contains(err.Error(), "Rest required!") {
		t.Fatalf("got %v", err)
	}
}

func TestCheckTireConditionWornAndCritical(t *testing.T) {
	e, m, sink := newTestEngine(t)
	ctx := context.Background()
	truck, _ := m.CreateTruck(ctx, model.Truck{Registration: "T", FuelCapacity: 100, CurrentFuelLevel: 80})

	// 10000km of an 80000km life remaining: at the 85% warning threshold
	worn, _ := m.CreateTire(ctx, model.Tire{
		VehicleID: truck.ID, VehicleType: model.VehicleTruck, Position: "FL",
		InstallKm: 30000, CurrentKm: 100000, MaxLifeKm: 80000,
		Status: model.TireGood, IsActive: true,
	})
	if err := e.CheckTireCondition(ctx, truck.ID, model.VehicleTruck); err != nil {
		t.Fatalf("worn tire must not block: %v", err)
	}
	got, _ := m.TiresByVehicle(ctx, truck.ID, model.VehicleTruck)
	if got[0].Status != model.TireWorn {
		t.Fatalf("status: got %s, want WORN", got[0].Status)
	}
	if alerts := sink.bySeverity(model.SeverityWarning); len(alerts) != 1 || alerts[0].Type != model.AlertTireWarning {
		t.Fatalf("alerts: %+v", sink.alerts)
	}

	// exhausted tire blocks
	worn.CurrentKm = 110000
	if err := m.UpdateTire(ctx, worn); err != nil {
		t.Fatal(err)
	}
	err := e.CheckTireCondition(ctx, truck.ID, model.VehicleTruck)
	if err == nil || !strings.Contains(err.Error(), "must be changed immediately") {
		t.Fatalf("got %v", err)
	}
	got, _ = m.TiresByVehicle(ctx, truck.ID, model.VehicleTruck)
	if got[0].Status != model.TireNeedsReplacement {
		t.Fatalf("status: got %s, want NEEDS_REPLACEMENT", got[0].Status)
	}
}

func TestActivateSpareTire(t *testing.T) {
	e, m, sink := newTestEngine(t)
	ctx := context.Background()
	truck, _ := m.CreateTruck(ctx, model.Truck{Registration: "T", FuelCapacity: 100, CurrentFuelLevel: 80})

	_, _ = m.CreateTire(ctx, model.Tire{
		VehicleID: truck.ID, VehicleType: model.VehicleTruck, Position: "RL",
		InstallKm: 60000, CurrentKm: 70000, MaxLifeKm: 80000,
		Status: model.TireGood, IsActive: true,
	})

	// no spare mounted: permanent failure
	err := e.ActivateSpareTire(ctx, truck.ID, model.VehicleTruck, "RL")
	if err == nil || !strings.Contains(err.Error(), "No spare tire available") {
		t.Fatalf("got %v", err)
	}
	if alerts := sink.bySeverity(model.SeverityEmergency); len(alerts) != 1 || alerts[0].Type != model.AlertTireExplosion {
		t.Fatalf("alerts: %+v", sink.alerts)
	}

	// with a spare: activation succeeds but the caller must stop
	_, _ = m.CreateTire(ctx, model.Tire{
		VehicleID: truck.ID, VehicleType: model.VehicleTruck, Position: "SPARE",
		InstallKm: 0, CurrentKm: 0, MaxLifeKm: 80000,
		Status: model.TireGood, IsSpare: true, IsActive: false,
	})
	err = e.ActivateSpareTire(ctx, truck.ID, model.VehicleTruck, "RL")
	if err == nil || !strings.Contains(err.Error(), "Safe mode enabled. Maximum 30km allowed.") {
		t.Fatalf("got %v", err)
	}

	tires, _ := m.TiresByVehicle(ctx, truck.ID, model.VehicleTruck)
	var failed, spare *model.Tire
	for i := range tires {
		if tires[i].IsSpare {
			spare = &tires[i]
		} else {
			failed = &tires[i]
		}
	}
	if failed == nil || failed.IsActive || failed.Status != model.TireNeedsReplacement {
		t.Fatalf("failed tire: %+v", failed)
	}
	if spare == nil || !spare.IsActive || spare.Position != "RL" || spare.ActivatedAt == nil {
		t.Fatalf("spare tire: %+v", spare)
	}
}

func TestCheckSpareTireDistance(t *testing.T) {
	e, m, _ := newTestEngine(t)
	f := seedFleet(t, m)
	ctx := context.Background()

	trip, err := e.CreateTrip(ctx, candidateFor(f), f.admin.ID)
	if err != nil {
		t.Fatal(err)
	}
	if err := e.CheckSpareTireDistance(ctx, trip.ID); err != nil {
		t.Fatalf("no active spare: %v", err)
	}

	_, _ = m.CreateTire(ctx, model.Tire{
		VehicleID: f.truck.ID, VehicleType: model.VehicleTruck, Position: "RR",
		InstallKm: 100000, CurrentKm: 100000, MaxLifeKm: 80000,
		Status: model.TireGood, IsSpare: true, IsActive: true,
	})
	err = e.CheckSpareTireDistance(ctx, trip.ID)
	if err == nil || !strings.Contains(err.Error(), "Maximum 30km allowed. Workshop required!") {
		t.Fatalf("got %v", err)
	}
}

func TestValidateTripStart(t *testing.T) {
	e, m, _ := newTestEngine(t)
	f := seedFleet(t, m)
	ctx := context.Background()

	load := 20000.0
	c := candidateFor(f)
	c.LoadWeight = &load
	trip, err := e.CreateTrip(ctx, c, f.admin.ID)
	if err != nil {
		t.Fatal(err)
	}

	check, err := e.ValidateTripStart(ctx, trip.ID)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !check.CanStart || len(check.Warnings) != 0 {
		t.Fatalf("healthy fleet: %+v", check)
	}
	got, _ := m.GetTrip(ctx, trip.ID)
	if got.EstimatedFuelConsumption == nil || *got.EstimatedFuelConsumption != 35 {
		t.Fatalf("estimated fuel: got %v, want 35", got.EstimatedFuelConsumption)
	}

	// degrade oil and fuel; both failures must be collected
	truck, _ := m.GetTruck(ctx, f.truck.ID)
	truck.KmSinceLastOil = 11000
	truck.CurrentFuelLevel = 40 // 10% of 400L
	if err := m.UpdateTruck(ctx, truck); err != nil {
		t.Fatal(err)
	}
	check, err = e.ValidateTripStart(ctx, trip.ID)
	if err != nil {
		t.Fatalf("validate degraded: %v", err)
	}
	if check.CanStart {
		t.Fatal("degraded fleet must not start")
	}
	if len(check.Warnings) != 2 {
		t.Fatalf("warnings: got %d (%v), want 2", len(check.Warnings), check.Warnings)
	}
	if !strings.Contains(check.Warnings[0], "Oil change required!") {
		t.Fatalf("first warning: %q", check.Warnings[0])
	}
	if !strings.Contains(check.Warnings[1], "Low fuel") {
		t.Fatalf("second warning: %q", check.Warnings[1])
	}
}

func TestSafetyChecksMapMissingTripToNotFound(t *testing.T) {
	e, _, _ := newTestEngine(t)
	ctx := context.Background()

	var nfe *NotFoundError
	if err := e.CheckSpareTireDistance(ctx, "missing"); !errors.As(err, &nfe) {
		t.Fatalf("spare distance: got %v", err)
	}
	if err := e.CheckDriverRest(ctx, "missing"); !errors.As(err, &nfe) {
		t.Fatalf("driver rest: got %v", err)
	}
	if _, err := e.ValidateTripStart(ctx, "missing"); !errors.As(err, &nfe) {
		t.Fatalf("validate start: got %v", err)
	}
}
