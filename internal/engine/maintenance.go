package engine

import (
	"context"
	"math"

	"fleetops/internal/model"
)

// UnboundedMaintenance is returned when a vehicle has no scheduled
// maintenance; callers treat it as effectively infinite headroom.
const UnboundedMaintenance = int64(math.MaxInt64)

// RemainingKmBeforeMaintenance reports how far the vehicle may still travel
// before its next mandatory maintenance, based on the most recent record
// that carries a nextDueKm. Clamped at zero.
func (e *Engine) RemainingKmBeforeMaintenance(ctx context.Context, vehicleID string, vt model.VehicleType) (int64, error) {
	rec, ok, err := e.store.LatestMaintenanceWithNextDue(ctx, vehicleID, vt)
	if err != nil {
		return 0, err
	}
	if !ok || rec.NextDueKm == nil {
		return UnboundedMaintenance, nil
	}

	var currentKm int64
	switch vt {
	case model.VehicleTruck:
		truck, err := e.store.GetTruck(ctx, vehicleID)
		if err != nil {
			return 0, err
		}
		currentKm = truck.CurrentKm
	case model.VehicleTrailer:
		trailer, err := e.store.GetTrailer(ctx, vehicleID)
		if err != nil {
			return 0, err
		}
		currentKm = trailer.CurrentKm
	}

	remaining := *rec.NextDueKm - currentKm
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// RecordMaintenance persists a maintenance record. Oil changes schedule the
// next due odometer reading and reset the truck's oil counters.
func (e *Engine) RecordMaintenance(ctx context.Context, rec model.MaintenanceRecord) (model.MaintenanceRecord, error) {
	if rec.Type == model.MaintenanceOilChange {
		nextDue := rec.CurrentKm + e.th.OilChangeIntervalKm
		rec.NextDueKm = &nextDue
	}
	rec, err := e.store.CreateMaintenance(ctx, rec)
	if err != nil {
		return model.MaintenanceRecord{}, err
	}

	if rec.Type == model.MaintenanceOilChange && rec.VehicleType == model.VehicleTruck {
		truck, err := e.store.GetTruck(ctx, rec.VehicleID)
		if err != nil {
			return model.MaintenanceRecord{}, err
		}
		truck.KmSinceLastOil = 0
		truck.LastOilChangeKm = rec.CurrentKm
		if err := e.store.UpdateTruck(ctx, truck); err != nil {
			return model.MaintenanceRecord{}, err
		}
	}
	return rec, nil
}

func (e *Engine) MaintenanceHistory(ctx context.Context, vehicleID string, vt model.VehicleType) ([]model.MaintenanceRecord, error) {
	return e.store.MaintenanceHistory(ctx, vehicleID, vt)
}
