package engine

import (
	"context"
	"errors"
	"fmt"

	"fleetops/internal/model"
)

// CheckOilMaintenance blocks when the truck has run past its oil change
// interval.
func (e *Engine) CheckOilMaintenance(ctx context.Context, truckID string) error {
	truck, err := e.store.GetTruck(ctx, truckID)
	if err != nil {
		return err
	}
	if truck.KmSinceLastOil >= e.th.OilChangeIntervalKm {
		msg := fmt.Sprintf("Oil change required! %dkm since last change.", truck.KmSinceLastOil)
		e.alerts.Emit(ctx, model.Alert{
			Type:        model.AlertOilMaintenance,
			Severity:    model.SeverityCritical,
			Message:     msg,
			VehicleID:   truckID,
			VehicleType: model.VehicleTruck,
		})
		return validationf("%s", msg)
	}
	return nil
}

// CheckEngineTemperature blocks when the stored engine temperature exceeds
// the limit.
func (e *Engine) CheckEngineTemperature(ctx context.Context, truckID string) error {
	truck, err := e.store.GetTruck(ctx, truckID)
	if err != nil {
		return err
	}
	if truck.EngineTemp > e.th.MaxEngineTemp {
		msg := fmt.Sprintf("CRITICAL: Engine temp %g°C. Stop engine immediately!", truck.EngineTemp)
		e.alerts.Emit(ctx, model.Alert{
			Type:        model.AlertEngineTemp,
			Severity:    model.SeverityEmergency,
			Message:     msg,
			VehicleID:   truckID,
			VehicleType: model.VehicleTruck,
		})
		return validationf("%s", msg)
	}
	return nil
}

// ReportEngineTemperature records a live temperature probe. A reading over
// the limit forces the truck into MAINTENANCE before the alert goes out;
// a safe reading just updates the stored temperature.
func (e *Engine) ReportEngineTemperature(ctx context.Context, truckID string, currentTemp float64) error {
	truck, err := e.store.GetTruck(ctx, truckID)
	if err != nil {
		return err
	}
	if currentTemp > e.th.MaxEngineTemp {
		truck.Status = model.VehicleMaintenance
		truck.EngineTemp = currentTemp
		if err := e.store.UpdateTruck(ctx, truck); err != nil {
			return err
		}
		e.alerts.Emit(ctx, model.Alert{
			Type:        model.AlertEngineTemp,
			Severity:    model.SeverityEmergency,
			Message:     fmt.Sprintf("CRITICAL: Engine temp %g°C exceeds %g°C. Stop engine immediately!", currentTemp, e.th.MaxEngineTemp),
			VehicleID:   truckID,
			VehicleType: model.VehicleTruck,
		})
		return validationf("CRITICAL: Engine temp %g°C. Stop engine immediately!", currentTemp)
	}
	truck.EngineTemp = currentTemp
	return e.store.UpdateTruck(ctx, truck)
}

// CheckTrailerLoad blocks when the declared load exceeds trailer capacity.
func (e *Engine) CheckTrailerLoad(ctx context.Context, trailerID string, loadWeight float64) error {
	trailer, err := e.store.GetTrailer(ctx, trailerID)
	if err != nil {
		return err
	}
	if loadWeight > trailer.Capacity {
		msg := fmt.Sprintf("STOP! Load %gkg exceeds capacity %gkg. Fine risk!", loadWeight, trailer.Capacity)
		e.alerts.Emit(ctx, model.Alert{
			Type:        model.AlertOverload,
			Severity:    model.SeverityEmergency,
			Message:     msg,
			VehicleID:   trailerID,
			VehicleType: model.VehicleTrailer,
		})
		return validationf("%s", msg)
	}
	return nil
}

// CheckFuelLevel blocks under 10% with a critical alert, and between 10 and
// 15% with a warning that clears after refueling.
func (e *Engine) CheckFuelLevel(ctx context.Context, truckID string) error {
	truck, err := e.store.GetTruck(ctx, truckID)
	if err != nil {
		return err
	}
	if truck.FuelCapacity <= 0 {
		return validationf("Truck fuel capacity is invalid")
	}
	fuelPercentage := (truck.CurrentFuelLevel / truck.FuelCapacity) * 100

	if fuelPercentage < e.th.CriticalFuelThreshold {
		msg := fmt.Sprintf("CRITICAL: Only %.1f%% fuel. Trip blocked!", fuelPercentage)
		e.alerts.Emit(ctx, model.Alert{
			Type:        model.AlertFuelCritical,
			Severity:    model.SeverityCritical,
			Message:     msg,
			VehicleID:   truckID,
			VehicleType: model.VehicleTruck,
		})
		return validationf("%s", msg)
	}
	if fuelPercentage < e.th.LowFuelThreshold {
		msg := fmt.Sprintf("Low fuel: %.1f%%. Refuel required.", fuelPercentage)
		e.alerts.Emit(ctx, model.Alert{
			Type:        model.AlertFuelLow,
			Severity:    model.SeverityWarning,
			Message:     msg,
			VehicleID:   truckID,
			VehicleType: model.VehicleTruck,
		})
		return validationf("%s", msg)
	}
	return nil
}

// CheckDriverRest blocks when the trip's accumulated driving hours hit the
// legal limit.
func (e *Engine) CheckDriverRest(ctx context.Context, tripID string) error {
	trip, err := e.GetTrip(ctx, tripID)
	if err != nil {
		return err
	}
	if trip.DrivingHours != nil && *trip.DrivingHours >= e.th.MaxDrivingHours {
		msg := fmt.Sprintf("Driver has been driving for %g hours. Rest required!", *trip.DrivingHours)
		e.alerts.Emit(ctx, model.Alert{
			Type:     model.AlertDriverRest,
			Severity: model.SeverityWarning,
			Message:  msg,
			TripID:   tripID,
			DriverID: trip.DriverID,
		})
		return validationf("%s", msg)
	}
	return nil
}

// CalculateFuelConsumption estimates liters for a trip. Consumption scales
// linearly with load around the reference load: an empty truck burns 70% of
// the base rate, a truck at twice the reference load burns 130%.
func (e *Engine) CalculateFuelConsumption(distance int64, loadWeight, baseConsumption float64) float64 {
	baseFuelPerKm := baseConsumption / 300
	loadFactor := loadWeight / e.th.BaseLoadKg
	adjustedFuelPerKm := baseFuelPerKm * (0.7 + 0.3*loadFactor)
	return adjustedFuelPerKm * float64(distance)
}

// ValidateTripStart runs every pre-departure safety check, collecting each
// failure into a warnings list instead of stopping at the first, so a
// dispatcher sees the full set of blocking issues at once. If the trip has
// a load weight the estimated fuel consumption is computed and persisted.
func (e *Engine) ValidateTripStart(ctx context.Context, tripID string) (model.StartCheck, error) {
	trip, err := e.GetTrip(ctx, tripID)
	if err != nil {
		return model.StartCheck{}, err
	}

	var warnings []string
	collect := func(err error) error {
		if err == nil {
			return nil
		}
		var ve *ValidationError
		if errors.As(err, &ve) {
			warnings = append(warnings, ve.Msg)
			return nil
		}
		return err
	}

	if err := collect(e.CheckOilMaintenance(ctx, trip.TruckID)); err != nil {
		return model.StartCheck{}, err
	}
	if err := collect(e.CheckEngineTemperature(ctx, trip.TruckID)); err != nil {
		return model.StartCheck{}, err
	}
	if err := collect(e.CheckFuelLevel(ctx, trip.TruckID)); err != nil {
		return model.StartCheck{}, err
	}

	tireErr := e.CheckTireCondition(ctx, trip.TruckID, model.VehicleTruck)
	if tireErr == nil && trip.TrailerID != "" {
		tireErr = e.CheckTireCondition(ctx, trip.TrailerID, model.VehicleTrailer)
	}
	if err := collect(tireErr); err != nil {
		return model.StartCheck{}, err
	}

	if trip.TrailerID != "" && trip.LoadWeight != nil {
		if err := collect(e.CheckTrailerLoad(ctx, trip.TrailerID, *trip.LoadWeight)); err != nil {
			return model.StartCheck{}, err
		}
	}
	if err := collect(e.CheckSpareTireDistance(ctx, tripID)); err != nil {
		return model.StartCheck{}, err
	}

	if trip.LoadWeight != nil {
		estimated := e.CalculateFuelConsumption(trip.Distance, *trip.LoadWeight, e.th.BaseFuelConsumption)
		trip.EstimatedFuelConsumption = &estimated
		if err := e.store.UpdateTrip(ctx, trip); err != nil {
			return model.StartCheck{}, err
		}
	}

	return model.StartCheck{Warnings: warnings, CanStart: len(warnings) == 0}, nil
}
