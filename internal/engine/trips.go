package engine

import (
	"context"
	"errors"
	"strings"
	"time"

	"fleetops/internal/model"
	"fleetops/internal/store"
)

// CreateTrip validates a trip candidate against the fleet and, on success,
// persists it as PLANNED with the truck and trailer reserved. Checks run in
// a fixed order so the first failure identifies its cause; the store then
// re-verifies and reserves atomically, which closes the window where two
// concurrent requests both observe an AVAILABLE vehicle.
func (e *Engine) CreateTrip(ctx context.Context, candidate model.TripCreateInput, requestingUserID string) (model.Trip, error) {
	if _, err := e.store.GetTripByCode(ctx, candidate.Code); err == nil {
		return model.Trip{}, validationf("Trip with this code already exists")
	} else if !errors.Is(err, store.ErrNotFound) {
		return model.Trip{}, err
	}

	currentUser, err := e.store.GetUser(ctx, requestingUserID)
	if errors.Is(err, store.ErrNotFound) {
		return model.Trip{}, notFoundf("Current user not found")
	} else if err != nil {
		return model.Trip{}, err
	}
	if currentUser.Role != model.RoleAdmin {
		return model.Trip{}, forbiddenf("Only ADMIN can assign trips")
	}

	driver, err := e.store.GetUser(ctx, candidate.DriverID)
	if errors.Is(err, store.ErrNotFound) {
		return model.Trip{}, notFoundf("Driver not found")
	} else if err != nil {
		return model.Trip{}, err
	}
	if driver.Role != model.RoleDriver {
		return model.Trip{}, validationf("Selected user is not a driver")
	}
	if !driver.IsActive {
		return model.Trip{}, validationf("Driver is not active")
	}
	if _, active, err := e.store.ActiveTripForDriver(ctx, candidate.DriverID); err != nil {
		return model.Trip{}, err
	} else if active {
		return model.Trip{}, validationf("Driver already has an active trip")
	}

	truck, err := e.store.GetTruck(ctx, candidate.TruckID)
	if errors.Is(err, store.ErrNotFound) {
		return model.Trip{}, notFoundf("Truck not found")
	} else if err != nil {
		return model.Trip{}, err
	}
	if truck.Status != model.VehicleAvailable {
		return model.Trip{}, validationf("Truck is not available. Current status: %s", truck.Status)
	}
	if truck.CurrentKm < 0 {
		return model.Trip{}, validationf("Truck currentKm is invalid")
	}
	if truck.CurrentKm != candidate.StartKm {
		return model.Trip{}, validationf("Truck currentKm (%d) does not match trip startKm (%d)", truck.CurrentKm, candidate.StartKm)
	}
	if _, active, err := e.store.ActiveTripForTruck(ctx, candidate.TruckID); err != nil {
		return model.Trip{}, err
	} else if active {
		return model.Trip{}, validationf("Truck already has an active trip")
	}

	truckRemainingKm, err := e.RemainingKmBeforeMaintenance(ctx, candidate.TruckID, model.VehicleTruck)
	if err != nil {
		return model.Trip{}, err
	}
	if truckRemainingKm < e.th.MinRequiredMaintenanceDistance {
		return model.Trip{}, validationf("Truck needs maintenance soon. Only %dkm remaining before required maintenance.", truckRemainingKm)
	}

	if err := e.validateVehicleTires(ctx, candidate.TruckID, model.VehicleTruck, candidate.Distance); err != nil {
		return model.Trip{}, err
	}

	var trailerRemainingKm int64 = UnboundedMaintenance
	if candidate.TrailerID != "" {
		trailer, err := e.store.GetTrailer(ctx, candidate.TrailerID)
		if errors.Is(err, store.ErrNotFound) {
			return model.Trip{}, notFoundf("Trailer not found")
		} else if err != nil {
			return model.Trip{}, err
		}
		if trailer.Status != model.VehicleAvailable {
			return model.Trip{}, validationf("Trailer is not available. Current status: %s", trailer.Status)
		}
		if trailer.CurrentKm < 0 {
			return model.Trip{}, validationf("Trailer currentKm is invalid")
		}
		if _, active, err := e.store.ActiveTripForTrailer(ctx, candidate.TrailerID); err != nil {
			return model.Trip{}, err
		} else if active {
			return model.Trip{}, validationf("Trailer already has an active trip")
		}

		trailerRemainingKm, err = e.RemainingKmBeforeMaintenance(ctx, candidate.TrailerID, model.VehicleTrailer)
		if err != nil {
			return model.Trip{}, err
		}
		if trailerRemainingKm < e.th.MinRequiredMaintenanceDistance {
			return model.Trip{}, validationf("Trailer needs maintenance soon. Only %dkm remaining before required maintenance.", trailerRemainingKm)
		}

		if err := e.validateVehicleTires(ctx, candidate.TrailerID, model.VehicleTrailer, candidate.Distance); err != nil {
			return model.Trip{}, err
		}
	}

	if truckRemainingKm < candidate.Distance {
		return model.Trip{}, validationf("Trip distance (%dkm) exceeds truck's remaining km before maintenance (%dkm)", candidate.Distance, truckRemainingKm)
	}
	if candidate.TrailerID != "" && trailerRemainingKm < candidate.Distance {
		return model.Trip{}, validationf("Trip distance (%dkm) exceeds trailer's remaining km before maintenance (%dkm)", candidate.Distance, trailerRemainingKm)
	}

	trip := model.Trip{
		Code:        candidate.Code,
		DriverID:    candidate.DriverID,
		TruckID:     candidate.TruckID,
		TrailerID:   candidate.TrailerID,
		Origin:      candidate.Origin,
		Destination: candidate.Destination,
		Distance:    candidate.Distance,
		StartKm:     candidate.StartKm,
		LoadWeight:  candidate.LoadWeight,
	}
	created, err := e.store.CreateTripReserving(ctx, trip)
	if errors.Is(err, store.ErrConflict) {
		return model.Trip{}, validationf("Trip resources were reserved by a concurrent request")
	} else if err != nil {
		return model.Trip{}, err
	}
	return created, nil
}

func (e *Engine) validateVehicleTires(ctx context.Context, vehicleID string, vt model.VehicleType, tripDistance int64) error {
	tires, err := e.store.TiresByVehicle(ctx, vehicleID, vt)
	if err != nil {
		return err
	}

	mounted := 0
	for _, tire := range tires {
		if tire.IsSpare || !tire.IsActive {
			continue
		}
		mounted++

		if tire.Status == model.TireWorn || tire.Status == model.TireNeedsReplacement {
			return validationf("%s tire at position %s has status %q and needs replacement", vt, tire.Position, tire.Status)
		}

		remainingTireLife := tire.RemainingLife()
		if remainingTireLife < e.th.MinRequiredTireDistance {
			return validationf("%s tire at position %s has only %dkm remaining (minimum required: %dkm)",
				vt, tire.Position, remainingTireLife, e.th.MinRequiredTireDistance)
		}
		if remainingTireLife < tripDistance {
			return validationf("%s tire at position %s cannot complete trip. Remaining life: %dkm, Trip distance: %dkm",
				vt, tire.Position, remainingTireLife, tripDistance)
		}
	}

	if mounted == 0 {
		return validationf("No tires found for %s", strings.ToLower(string(vt)))
	}
	return nil
}

// UpdateTripStatus transitions a trip through its lifecycle. PLANNED may
// start or cancel; IN_PROGRESS may complete or cancel; COMPLETED and
// CANCELLED are terminal. Completion releases both vehicles, rolls the
// odometers forward, and ages every tire by the distance traveled.
func (e *Engine) UpdateTripStatus(ctx context.Context, tripID string, upd model.TripStatusUpdate, requestingUserID string) (model.Trip, error) {
	trip, err := e.store.GetTrip(ctx, tripID)
	if errors.Is(err, store.ErrNotFound) {
		return model.Trip{}, notFoundf("Trip not found")
	} else if err != nil {
		return model.Trip{}, err
	}

	currentUser, err := e.store.GetUser(ctx, requestingUserID)
	if errors.Is(err, store.ErrNotFound) {
		return model.Trip{}, notFoundf("Current user not found")
	} else if err != nil {
		return model.Trip{}, err
	}
	if currentUser.Role == model.RoleDriver && trip.DriverID != requestingUserID {
		return model.Trip{}, forbiddenf("You can only update your own trips")
	}

	now := time.Now().UTC()
	switch upd.Status {
	case model.TripInProgress:
		if trip.Status != model.TripPlanned {
			return model.Trip{}, validationf("Can only start a planned trip")
		}
		trip.Status = model.TripInProgress
		trip.StartedAt = &now

	case model.TripCompleted:
		if trip.Status != model.TripInProgress {
			return model.Trip{}, validationf("Can only complete an in-progress trip")
		}
		if upd.FuelConsumed != nil && *upd.FuelConsumed < 0 {
			return model.Trip{}, validationf("Fuel consumed cannot be negative")
		}
		if upd.EndKm != nil && *upd.EndKm <= trip.StartKm {
			return model.Trip{}, validationf("End km (%d) must be greater than start km (%d)", *upd.EndKm, trip.StartKm)
		}
		trip.Status = model.TripCompleted
		trip.CompletedAt = &now
		trip.EndKm = upd.EndKm
		if upd.FuelConsumed != nil {
			trip.FuelConsumed = upd.FuelConsumed
		}

		if err := e.releaseVehicles(ctx, trip); err != nil {
			return model.Trip{}, err
		}

		if upd.EndKm != nil {
			distanceTraveled := *upd.EndKm - trip.StartKm

			truck, err := e.store.GetTruck(ctx, trip.TruckID)
			if err != nil {
				return model.Trip{}, err
			}
			truck.CurrentKm = *upd.EndKm
			truck.KmSinceLastOil += distanceTraveled
			if err := e.store.UpdateTruck(ctx, truck); err != nil {
				return model.Trip{}, err
			}

			if trip.TrailerID != "" {
				trailer, err := e.store.GetTrailer(ctx, trip.TrailerID)
				if err != nil {
					return model.Trip{}, err
				}
				trailer.CurrentKm += distanceTraveled
				if err := e.store.UpdateTrailer(ctx, trailer); err != nil {
					return model.Trip{}, err
				}
			}

			if err := e.advanceVehicleTires(ctx, trip.TruckID, model.VehicleTruck, distanceTraveled); err != nil {
				return model.Trip{}, err
			}
			if trip.TrailerID != "" {
				if err := e.advanceVehicleTires(ctx, trip.TrailerID, model.VehicleTrailer, distanceTraveled); err != nil {
					return model.Trip{}, err
				}
			}
		}

	case model.TripCancelled:
		if trip.Status != model.TripPlanned && trip.Status != model.TripInProgress {
			return model.Trip{}, validationf("Cannot cancel a %s trip", trip.Status)
		}
		trip.Status = model.TripCancelled
		if err := e.releaseVehicles(ctx, trip); err != nil {
			return model.Trip{}, err
		}

	default:
		return model.Trip{}, validationf("Unknown trip status: %s", upd.Status)
	}

	if err := e.store.UpdateTrip(ctx, trip); err != nil {
		return model.Trip{}, err
	}
	return trip, nil
}

// releaseVehicles returns the trip's truck and trailer to AVAILABLE. A
// truck forced into MAINTENANCE stays there.
func (e *Engine) releaseVehicles(ctx context.Context, trip model.Trip) error {
	truck, err := e.store.GetTruck(ctx, trip.TruckID)
	if err != nil {
		return err
	}
	if truck.Status == model.VehicleInUse {
		truck.Status = model.VehicleAvailable
		if err := e.store.UpdateTruck(ctx, truck); err != nil {
			return err
		}
	}
	if trip.TrailerID != "" {
		trailer, err := e.store.GetTrailer(ctx, trip.TrailerID)
		if err != nil {
			return err
		}
		if trailer.Status == model.VehicleInUse {
			trailer.Status = model.VehicleAvailable
			if err := e.store.UpdateTrailer(ctx, trailer); err != nil {
				return err
			}
		}
	}
	return nil
}

// CalculateTripCost prices a completed trip by its recorded fuel burn.
func (e *Engine) CalculateTripCost(ctx context.Context, tripID string, fuelPricePerLiter float64) (float64, error) {
	trip, err := e.GetTrip(ctx, tripID)
	if err != nil {
		return 0, err
	}
	if trip.Status != model.TripCompleted {
		return 0, validationf("Can only calculate cost for completed trips")
	}
	if trip.FuelConsumed == nil {
		return 0, validationf("Fuel consumption data not available")
	}
	return *trip.FuelConsumed * fuelPricePerLiter, nil
}

func (e *Engine) GetTrip(ctx context.Context, tripID string) (model.Trip, error) {
	trip, err := e.store.GetTrip(ctx, tripID)
	if errors.Is(err, store.ErrNotFound) {
		return model.Trip{}, notFoundf("Trip not found")
	}
	return trip, err
}

func (e *Engine) ListTrips(ctx context.Context, status, driverID string) ([]model.Trip, error) {
	return e.store.ListTrips(ctx, status, driverID)
}
