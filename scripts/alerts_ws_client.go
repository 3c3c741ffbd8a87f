// Package main runs a demo WebSocket client for fleet alerts.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

type wsMessage struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data,omitempty"`
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	base := fmt.Sprintf("http://localhost:%s", port)

	// Register a truck
	body := []byte(`{"registration":"DEMO-001","fuelCapacity":400,"currentFuelLevel":300}`)
	req, _ := http.NewRequest(http.MethodPost, base+"/v1/trucks", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Role", "ADMIN")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	var truck struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&truck); err != nil {
		log.Fatal(err)
	}
	log.Printf("Truck ID: %s", truck.ID)

	// Connect WS
	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/alerts/ws"}
	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = c.Close() }()

	go func() {
		for {
			var msg wsMessage
			if err := c.ReadJSON(&msg); err != nil {
				log.Printf("read: %v", err)
				return
			}
			log.Printf("alert %s: %v", msg.Type, msg.Data)
		}
	}()

	// Report an over-limit engine temperature to trigger an alert
	time.Sleep(500 * time.Millisecond)
	probe := []byte(`{"temp":121}`)
	preq, _ := http.NewRequest(http.MethodPost, base+"/v1/trucks/"+truck.ID+"/engine-temp", bytes.NewReader(probe))
	preq.Header.Set("Content-Type", "application/json")
	preq.Header.Set("X-Role", "ADMIN")
	presp, err := http.DefaultClient.Do(preq)
	if err != nil {
		log.Fatal(err)
	}
	_ = presp.Body.Close()
	log.Printf("engine-temp probe status: %d", presp.StatusCode)

	time.Sleep(3 * time.Second)
}
