package engine

import (
	"context"

	"fleetops/internal/model"
	"fleetops/internal/store"
)

// AlertSink receives safety and maintenance alerts. Emission is
// best-effort: implementations log failures and never return them, so a
// failed alert write cannot roll back the state mutation it accompanies.
type AlertSink interface {
	Emit(ctx context.Context, a model.Alert)
}

type noopSink struct{}

func (noopSink) Emit(context.Context, model.Alert) {}

// Engine owns trip eligibility, the trip lifecycle, and the fleet safety
// checks. All fleet state lives in the store; the engine itself is
// stateless apart from its thresholds.
type Engine struct {
	store  store.Store
	alerts AlertSink
	th     Thresholds
}

func New(st store.Store, alerts AlertSink, th Thresholds) *Engine {
	if alerts == nil {
		alerts = noopSink{}
	}
	return &Engine{store: st, alerts: alerts, th: th}
}
