// Package relay pushes live positions of an open flight to a companion
// endpoint over websocket, so retrieve/follow services can watch a pilot in
// near real time. The relay is strictly best-effort: a dead endpoint never
// affects sample processing.
package relay

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"soartrack/pkg/config"
	"soartrack/pkg/geo"
	"soartrack/pkg/model"
)

const (
	writeTimeout = 5 * time.Second
	dialTimeout  = 10 * time.Second
	headingWin   = 5
	queueDepth   = 64
)

var dialer = &websocket.Dialer{HandshakeTimeout: dialTimeout}

// Relay is a session listener forwarding accepted samples while a flight
// is open. Listener callbacks never touch the network: they hand frames to
// a worker goroutine over a bounded channel, dropping frames when the
// worker falls behind, so a stalled endpoint cannot slow sample ingestion.
type Relay struct {
	cfg config.RelayConfig

	frames    chan frame
	quit      chan struct{}
	closeOnce sync.Once
	done      sync.WaitGroup

	mu   sync.Mutex
	conn *websocket.Conn

	// Worker-goroutine state; never touched from listener callbacks.
	flightID string
	track    *geo.TrackBuffer
}

type frameKind int

const (
	frameStart frameKind = iota
	framePosition
	frameEnd
)

type frame struct {
	kind   frameKind
	flight *model.TrackedFlight
	sample model.PositionSample
}

// New creates a relay and starts its worker. A disabled config yields a
// relay that ignores all notifications.
func New(cfg config.RelayConfig) *Relay {
	r := &Relay{
		cfg:    cfg,
		frames: make(chan frame, queueDepth),
		quit:   make(chan struct{}),
		track:  geo.NewTrackBuffer(headingWin),
	}
	if cfg.Enabled && cfg.URL != "" {
		r.done.Add(1)
		go r.run()
	}
	return r
}

type message struct {
	Type     string  `json:"type"` // start | position | end
	FlightID string  `json:"flight_id"`
	UserID   string  `json:"user_id,omitempty"`
	Site     string  `json:"site,omitempty"`
	Time     string  `json:"time,omitempty"`
	Lat      float64 `json:"lat,omitempty"`
	Lon      float64 `json:"lon,omitempty"`
	Altitude float64 `json:"altitude,omitempty"`
	Heading  float64 `json:"heading,omitempty"`
	VSpeed   float64 `json:"vspeed,omitempty"`
}

// OnFlightStarted schedules a dial and the flight announcement. The record
// is copied; the worker must not share it with the session manager.
func (r *Relay) OnFlightStarted(f *model.TrackedFlight) {
	fl := *f
	r.enqueue(frame{kind: frameStart, flight: &fl})
}

// OnSample forwards one accepted position fix.
func (r *Relay) OnSample(_ string, s model.PositionSample) {
	r.enqueue(frame{kind: framePosition, sample: s})
}

// OnFlightEnded schedules the end announcement and teardown.
func (r *Relay) OnFlightEnded(f *model.TrackedFlight) {
	fl := *f
	r.enqueue(frame{kind: frameEnd, flight: &fl})
}

// OnEvent is part of the session listener interface; the relay keys off
// lifecycle callbacks.
func (r *Relay) OnEvent(_ model.FlightEvent) {}

// Connected reports whether the relay currently holds a live connection.
func (r *Relay) Connected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conn != nil
}

// Close stops the worker and drops any connection. Idempotent.
func (r *Relay) Close() {
	r.closeOnce.Do(func() { close(r.quit) })
	r.done.Wait()
}

func (r *Relay) enqueue(f frame) {
	if !r.cfg.Enabled || r.cfg.URL == "" {
		return
	}
	select {
	case r.frames <- f:
	default:
		// The worker is stuck on a slow endpoint; live data beats old data
		slog.Debug("Relay: queue full, frame dropped")
	}
}

func (r *Relay) run() {
	defer r.done.Done()
	for {
		select {
		case <-r.quit:
			r.disconnect()
			return
		case f := <-r.frames:
			r.handle(f)
		}
	}
}

func (r *Relay) handle(f frame) {
	switch f.kind {
	case frameStart:
		r.handleStart(f.flight)
	case framePosition:
		r.handlePosition(f.sample)
	case frameEnd:
		r.handleEnd(f.flight)
	}
}

// handleStart dials the endpoint and announces the flight. Dial failure
// leaves the relay dormant for this flight.
func (r *Relay) handleStart(f *model.TrackedFlight) {
	r.disconnect()

	conn, _, err := dialer.Dial(r.cfg.URL, nil)
	if err != nil {
		slog.Warn("Relay: dial failed, relay disabled for this flight", "url", r.cfg.URL, "error", err)
		return
	}

	r.mu.Lock()
	r.conn = conn
	r.mu.Unlock()
	r.flightID = f.ID
	r.track.Reset()

	r.send(message{
		Type:     "start",
		FlightID: f.ID,
		UserID:   f.UserID,
		Site:     f.TakeoffSiteName,
		Time:     f.TakeoffTime.Format(time.RFC3339),
		Lat:      f.TakeoffLat,
		Lon:      f.TakeoffLon,
		Altitude: f.TakeoffAlt,
	})
	slog.Info("Relay: flight announced", "flight", f.ID)
}

func (r *Relay) handlePosition(s model.PositionSample) {
	if !r.Connected() {
		return
	}

	heading := s.Heading
	if heading == 0 {
		heading = r.track.Push(geo.Point{Lat: s.Lat, Lon: s.Lon}, 0)
	}

	r.send(message{
		Type:     "position",
		FlightID: r.flightID,
		Time:     s.Timestamp.Format(time.RFC3339),
		Lat:      s.Lat,
		Lon:      s.Lon,
		Altitude: s.Altitude,
		Heading:  heading,
		VSpeed:   s.VerticalSpeed,
	})
}

func (r *Relay) handleEnd(f *model.TrackedFlight) {
	if !r.Connected() {
		return
	}

	r.send(message{
		Type:     "end",
		FlightID: f.ID,
		Site:     f.LandingSiteName,
		Time:     f.LandingTime.Format(time.RFC3339),
	})
	r.disconnect()
	slog.Info("Relay: flight closed", "flight", f.ID)
}

func (r *Relay) send(msg message) {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("Relay: marshal failed", "error", err)
		return
	}

	r.mu.Lock()
	conn := r.conn
	r.mu.Unlock()
	if conn == nil {
		return
	}

	conn.SetWriteDeadline(time.Now().Add(writeTimeout)) //nolint:errcheck
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		// Best effort: drop the connection, the next flight redials
		slog.Warn("Relay: write failed, dropping connection", "error", err)
		r.disconnect()
	}
}

func (r *Relay) disconnect() {
	r.mu.Lock()
	conn := r.conn
	r.conn = nil
	r.mu.Unlock()

	if conn != nil {
		conn.Close() //nolint:errcheck
	}
	r.flightID = ""
	r.track.Reset()
}
