package relay

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"soartrack/pkg/config"
	"soartrack/pkg/model"
)

func collectorServer(t *testing.T) (*httptest.Server, chan message) {
	t.Helper()
	received := make(chan message, 32)

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var msg message
			if err := json.Unmarshal(data, &msg); err != nil {
				t.Errorf("bad message: %v", err)
				return
			}
			received <- msg
		}
	}))
	return srv, received
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func recv(t *testing.T, ch chan message) message {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for relay message")
		return message{}
	}
}

func TestRelayLifecycle(t *testing.T) {
	srv, received := collectorServer(t)
	defer srv.Close()

	r := New(config.RelayConfig{Enabled: true, URL: wsURL(srv)})
	defer r.Close()

	f := &model.TrackedFlight{
		ID:              "flight-1",
		UserID:          "pilot-1",
		TakeoffSiteName: "Test Launch",
		TakeoffTime:     time.Date(2026, 5, 10, 11, 0, 0, 0, time.UTC),
		TakeoffLat:      46.96,
		TakeoffLon:      8.55,
		TakeoffAlt:      1820,
	}
	r.OnFlightStarted(f)

	msg := recv(t, received)
	if msg.Type != "start" || msg.FlightID != "flight-1" || msg.Site != "Test Launch" {
		t.Fatalf("Unexpected start message: %+v", msg)
	}

	r.OnSample("pilot-1", model.PositionSample{
		Timestamp: f.TakeoffTime.Add(time.Second),
		Lat:       46.961,
		Lon:       8.55,
		Altitude:  1825,
	})
	msg = recv(t, received)
	if msg.Type != "position" || msg.Altitude != 1825 {
		t.Fatalf("Unexpected position message: %+v", msg)
	}

	f.LandingSiteName = "Test LZ"
	f.LandingTime = f.TakeoffTime.Add(20 * time.Minute)
	r.OnFlightEnded(f)
	msg = recv(t, received)
	if msg.Type != "end" || msg.Site != "Test LZ" {
		t.Fatalf("Unexpected end message: %+v", msg)
	}
}

func TestDisabledRelayIgnoresEverything(t *testing.T) {
	r := New(config.RelayConfig{Enabled: false})
	defer r.Close()

	r.OnFlightStarted(&model.TrackedFlight{ID: "flight-1"})
	r.OnSample("pilot-1", model.PositionSample{Lat: 46.9, Lon: 8.5})
	r.OnFlightEnded(&model.TrackedFlight{ID: "flight-1"})
	if r.Connected() {
		t.Error("Disabled relay opened a connection")
	}
}

func TestUnreachableEndpointDegrades(t *testing.T) {
	r := New(config.RelayConfig{Enabled: true, URL: "ws://127.0.0.1:1/ws"})
	defer r.Close()

	r.OnFlightStarted(&model.TrackedFlight{ID: "flight-1"})
	r.OnSample("pilot-1", model.PositionSample{Lat: 46.9, Lon: 8.5})

	// Give the worker time to fail the dial; the relay must stay dormant
	time.Sleep(200 * time.Millisecond)
	if r.Connected() {
		t.Error("Relay kept a connection to an unreachable endpoint")
	}
}

// A stalled endpoint (TCP accepts, websocket handshake never completes)
// must not slow the listener callbacks down: they only enqueue, the worker
// eats the stall.
func TestStalledEndpointDoesNotBlockCallers(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	defer ln.Close()
	var heldMu sync.Mutex
	var held []net.Conn
	t.Cleanup(func() {
		heldMu.Lock()
		defer heldMu.Unlock()
		for _, c := range held {
			c.Close()
		}
	})
	go func() {
		for {
			// Hold connections open without ever answering the handshake
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			heldMu.Lock()
			held = append(held, conn)
			heldMu.Unlock()
		}
	}()

	r := New(config.RelayConfig{Enabled: true, URL: "ws://" + ln.Addr().String()})
	defer r.Close()

	start := time.Now()
	r.OnFlightStarted(&model.TrackedFlight{ID: "flight-1", UserID: "pilot-1"})
	for i := 0; i < 10; i++ {
		r.OnSample("pilot-1", model.PositionSample{
			Timestamp: time.Now(),
			Lat:       46.9,
			Lon:       8.5,
			Altitude:  1800 + float64(i),
		})
	}
	r.OnFlightEnded(&model.TrackedFlight{ID: "flight-1"})
	elapsed := time.Since(start)

	if elapsed > 500*time.Millisecond {
		t.Fatalf("Listener callbacks blocked for %v behind a stalled endpoint", elapsed)
	}
}
