package engine

import (
	"context"
	"fmt"
	"time"

	"fleetops/internal/model"
)

// deriveTireStatus maps remaining life onto a wear state. GOOD tires stay
// GOOD until they cross a threshold; status never improves on its own.
func (e *Engine) deriveTireStatus(current string, remainingLife int64) string {
	if remainingLife <= 0 {
		return model.TireNeedsReplacement
	}
	if remainingLife < e.th.MinRequiredTireDistance {
		return model.TireWorn
	}
	return current
}

// CheckTireCondition inspects every active, non-spare tire on the vehicle.
// A tire at the end of its life blocks travel; a tire past the warning
// threshold is marked WORN and alerted but does not block. A tire with a
// detected explosion triggers spare activation.
func (e *Engine) CheckTireCondition(ctx context.Context, vehicleID string, vt model.VehicleType) error {
	tires, err := e.store.TiresByVehicle(ctx, vehicleID, vt)
	if err != nil {
		return err
	}

	for _, tire := range tires {
		if !tire.IsActive || tire.IsSpare {
			continue
		}
		remainingKm := tire.RemainingLife()
		warningThreshold := float64(tire.MaxLifeKm) * e.th.TireWarningThreshold

		if tire.CurrentKm >= tire.InstallKm+tire.MaxLifeKm {
			tire.Status = model.TireNeedsReplacement
			if err := e.store.UpdateTire(ctx, tire); err != nil {
				return err
			}
			e.alerts.Emit(ctx, model.Alert{
				Type:        model.AlertTireCritical,
				Severity:    model.SeverityCritical,
				Message:     "Tire at position " + tire.Position + " must be changed immediately",
				VehicleID:   vehicleID,
				VehicleType: vt,
			})
			return validationf("Tire at position %s must be changed immediately", tire.Position)
		}

		if float64(remainingKm) <= float64(tire.MaxLifeKm)-warningThreshold {
			tire.Status = model.TireWorn
			if err := e.store.UpdateTire(ctx, tire); err != nil {
				return err
			}
			e.alerts.Emit(ctx, model.Alert{
				Type:        model.AlertTireWarning,
				Severity:    model.SeverityWarning,
				Message:     fmt.Sprintf("Tire %s at 85%% life - %dkm remaining", tire.Position, remainingKm),
				VehicleID:   vehicleID,
				VehicleType: vt,
			})
		}

		if tire.ExplosionDetected {
			if err := e.ActivateSpareTire(ctx, vehicleID, vt, tire.Position); err != nil {
				return err
			}
		}
	}
	return nil
}

// ActivateSpareTire retires the failed tire at the given position and
// swaps in an inactive spare. With no spare available travel is over and
// the error is permanent. With a spare mounted the vehicle enters safe
// mode: activation succeeds but the caller must stop, so an error is
// still returned stating the distance cap.
func (e *Engine) ActivateSpareTire(ctx context.Context, vehicleID string, vt model.VehicleType, position string) error {
	tires, err := e.store.TiresByVehicle(ctx, vehicleID, vt)
	if err != nil {
		return err
	}

	for _, tire := range tires {
		if tire.Position == position && !tire.IsSpare {
			tire.IsActive = false
			tire.Status = model.TireNeedsReplacement
			if err := e.store.UpdateTire(ctx, tire); err != nil {
				return err
			}
			break
		}
	}

	var spare *model.Tire
	for i := range tires {
		if tires[i].IsSpare && !tires[i].IsActive {
			spare = &tires[i]
			break
		}
	}

	if spare == nil {
		e.alerts.Emit(ctx, model.Alert{
			Type:        model.AlertTireExplosion,
			Severity:    model.SeverityEmergency,
			Message:     "No spare tire available. Workshop required immediately!",
			VehicleID:   vehicleID,
			VehicleType: vt,
		})
		return validationf("No spare tire available. Workshop required immediately!")
	}

	now := time.Now().UTC()
	spare.IsActive = true
	spare.Position = position
	spare.ActivatedAt = &now
	if err := e.store.UpdateTire(ctx, *spare); err != nil {
		return err
	}

	msg := fmt.Sprintf("Spare tire activated at position %s. Safe mode enabled. Maximum %dkm allowed.", position, e.th.MaxSpareTireDistance)
	e.alerts.Emit(ctx, model.Alert{
		Type:        model.AlertSpareTireLimit,
		Severity:    model.SeverityWarning,
		Message:     msg,
		VehicleID:   vehicleID,
		VehicleType: vt,
	})
	return validationf("%s", msg)
}

// CheckSpareTireDistance blocks trips whose planned distance exceeds the
// safe-mode cap while the truck is running on an active spare.
func (e *Engine) CheckSpareTireDistance(ctx context.Context, tripID string) error {
	trip, err := e.GetTrip(ctx, tripID)
	if err != nil {
		return err
	}

	tires, err := e.store.TiresByVehicle(ctx, trip.TruckID, model.VehicleTruck)
	if err != nil {
		return err
	}

	activeSpare := false
	for _, tire := range tires {
		if tire.IsSpare && tire.IsActive {
			activeSpare = true
			break
		}
	}
	if activeSpare && trip.Distance > e.th.MaxSpareTireDistance {
		return validationf("Spare tire active. Maximum %dkm allowed. Workshop required!", e.th.MaxSpareTireDistance)
	}
	return nil
}

// advanceVehicleTires ages every tire on the vehicle by the distance
// traveled and re-derives wear status.
func (e *Engine) advanceVehicleTires(ctx context.Context, vehicleID string, vt model.VehicleType, distanceTraveled int64) error {
	tires, err := e.store.TiresByVehicle(ctx, vehicleID, vt)
	if err != nil {
		return err
	}
	for _, tire := range tires {
		tire.CurrentKm += distanceTraveled
		tire.Status = e.deriveTireStatus(tire.Status, tire.RemainingLife())
		if err := e.store.UpdateTire(ctx, tire); err != nil {
			return err
		}
	}
	return nil
}
