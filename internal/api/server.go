package api

import (
	"log"
	"os"
	"strings"

	"fleetops/internal/alerts"
	"fleetops/internal/auth"
	"fleetops/internal/engine"
	"fleetops/internal/model"
	"fleetops/internal/store"
	"fleetops/internal/webhooks"
)

type Server struct {
	Store   store.Store
	Engine  *engine.Engine
	Pub     *webhooks.Publisher
	Auth    *auth.Verifier
	Broker  EventBroker
	limiter *clientLimiter
}

// NewServer creates a Server. If DATABASE_URL is unset, uses in-memory store.
func NewServer() (*Server, error) {
	dsn := os.Getenv("DATABASE_URL")
	var s store.Store
	if strings.TrimSpace(dsn) == "" {
		s = store.NewMemory()
	} else {
		sp, err := store.NewPostgres(dsn)
		if err != nil {
			return nil, err
		}
		// Run migrations (dev helper)
		if os.Getenv("DB_MIGRATE") != "false" {
			_ = sp.MigrateDir("db/migrations")
		}
		s = sp
	}

	// Broker selection
	var broker EventBroker
	if os.Getenv("REDIS_URL") != "" {
		if rb, err := NewRedisBroker(); err == nil {
			broker = rb
		} else {
			broker = NewBroker()
		}
	} else {
		broker = NewBroker()
	}

	th := engine.DefaultThresholds()
	if path := os.Getenv("THRESHOLDS_FILE"); path != "" {
		loaded, err := engine.LoadThresholds(path)
		if err != nil {
			log.Printf("thresholds file %s: %v, using defaults", path, err)
		} else {
			th = loaded
		}
	}

	pub := webhooks.NewPublisher(s)
	emitter := alerts.NewEmitter(s, pub, func(a model.Alert) {
		broker.Publish("alerts", Event{Type: a.Type, Data: map[string]any{
			"id":        a.ID,
			"severity":  a.Severity,
			"message":   a.Message,
			"vehicleId": a.VehicleID,
			"tripId":    a.TripID,
		}})
	})

	return &Server{
		Store:   s,
		Engine:  engine.New(s, emitter, th),
		Pub:     pub,
		Auth:    auth.NewVerifierFromEnv(),
		Broker:  broker,
		limiter: newClientLimiter(),
	}, nil
}

// NewWebhookWorker creates a background worker for webhook deliveries.
func (s *Server) NewWebhookWorker() *webhooks.Worker {
	return webhooks.NewWorker(s.Store)
}
