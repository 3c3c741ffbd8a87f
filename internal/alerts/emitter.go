package alerts

import (
	"context"
	"log"

	"fleetops/internal/metrics"
	"fleetops/internal/model"
	"fleetops/internal/store"
	"fleetops/internal/webhooks"
)

// Emitter persists alerts and fans them out to the live stream and webhook
// subscribers. Every path is best-effort: a failed write is logged and the
// caller's state mutation stands.
type Emitter struct {
	Store     store.Store
	Publisher *webhooks.Publisher
	// Notify pushes the alert to connected stream clients. Optional.
	Notify func(a model.Alert)
}

func NewEmitter(s store.Store, pub *webhooks.Publisher, notify func(model.Alert)) *Emitter {
	return &Emitter{Store: s, Publisher: pub, Notify: notify}
}

func (e *Emitter) Emit(ctx context.Context, a model.Alert) {
	saved, err := e.Store.CreateAlert(ctx, a)
	if err != nil {
		log.Printf("alert write failed type=%s: %v", a.Type, err)
		saved = a
	}
	metrics.AlertsEmitted.WithLabelValues(a.Type, a.Severity).Inc()
	if e.Notify != nil {
		e.Notify(saved)
	}
	if e.Publisher != nil {
		e.Publisher.Emit(ctx, "alert."+saved.Type, saved)
	}
}
