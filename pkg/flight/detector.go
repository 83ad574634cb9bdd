package flight

import (
	"log/slog"
	"time"

	"soartrack/pkg/config"
	"soartrack/pkg/geo"
	"soartrack/pkg/model"
)

// Detector turns a time-ordered stream of position samples into one-shot
// takeoff/landing events. All timing decisions use sample timestamps, not
// wall clock, so a replayed track produces identical events.
type Detector struct {
	cfg config.DetectorConfig

	window   []model.PositionSample
	inertial []model.InertialSample

	inFlight      bool
	groundAlt     float64
	hasGroundAlt  bool
	lowSpeedStart time.Time
}

// NewDetector creates a detector with the given thresholds.
func NewDetector(cfg config.DetectorConfig) *Detector {
	return &Detector{cfg: cfg}
}

// ProcessSample advances the detector by one position fix. It returns a
// takeoff or landing event on the sample that triggers the transition,
// nil otherwise.
func (d *Detector) ProcessSample(s model.PositionSample) *model.FlightEvent {
	d.window = append(d.window, s)
	if len(d.window) > d.cfg.WindowSize {
		d.window = d.window[len(d.window)-d.cfg.WindowSize:]
	}

	if !d.inFlight {
		return d.detectTakeoff(s)
	}
	return d.detectLanding(s)
}

// ProcessInertial records an advisory accel/gyro reading. Inertial data
// never triggers events on its own; the window is kept for callers that
// want to inspect recent sensor activity.
func (d *Detector) ProcessInertial(s model.InertialSample) {
	d.inertial = append(d.inertial, s)
	if max := d.cfg.InertialWindowSize; max > 0 && len(d.inertial) > max {
		d.inertial = d.inertial[len(d.inertial)-max:]
	}
}

// Reset clears all detector state. Must be called when a session is
// closed or cancelled so stale samples cannot feed the next detection.
func (d *Detector) Reset() {
	d.window = nil
	d.inertial = nil
	d.inFlight = false
	d.groundAlt = 0
	d.hasGroundAlt = false
	d.lowSpeedStart = time.Time{}
}

// InFlight reports whether a takeoff has been detected without a
// subsequent landing.
func (d *Detector) InFlight() bool {
	return d.inFlight
}

// GroundAltitude returns the altitude baseline recorded at the last
// landing, and whether one has been recorded.
func (d *Detector) GroundAltitude() (float64, bool) {
	return d.groundAlt, d.hasGroundAlt
}

func (d *Detector) detectTakeoff(s model.PositionSample) *model.FlightEvent {
	hs := d.horizontalSpeed()
	if hs < d.cfg.TakeoffSpeed {
		return nil
	}

	d.inFlight = true
	d.lowSpeedStart = time.Time{}

	// The speed threshold trips a few seconds after the pilot actually
	// left the ground. The lowest point in the window is the better
	// estimate of the true launch.
	origin := d.minAltitudeSample(s)
	vs := d.verticalSpeed()

	slog.Info("Detector: takeoff detected",
		"speed", hs, "vspeed", vs,
		"lat", origin.Lat, "lon", origin.Lon, "alt", origin.Altitude)

	return &model.FlightEvent{
		Type:          model.EventTakeoff,
		Timestamp:     origin.Timestamp,
		Lat:           origin.Lat,
		Lon:           origin.Lon,
		Altitude:      origin.Altitude,
		GroundSpeed:   hs,
		VerticalSpeed: vs,
	}
}

func (d *Detector) detectLanding(s model.PositionSample) *model.FlightEvent {
	hs := d.horizontalSpeed()
	vs := d.verticalSpeed()

	if hs >= d.cfg.LandingSpeed || vs > d.cfg.LandingDescent || vs < -d.cfg.LandingDescent {
		d.lowSpeedStart = time.Time{}
		return nil
	}

	if d.lowSpeedStart.IsZero() {
		d.lowSpeedStart = s.Timestamp
		return nil
	}
	if s.Timestamp.Sub(d.lowSpeedStart) < time.Duration(d.cfg.LandingConfirm) {
		return nil
	}

	// Touchdown happened when the glider first went quiet, not when the
	// confirmation window ran out.
	landedAt := d.lowSpeedStart

	d.inFlight = false
	d.lowSpeedStart = time.Time{}
	d.groundAlt = s.Altitude
	d.hasGroundAlt = true

	slog.Info("Detector: landing detected",
		"speed", hs, "vspeed", vs,
		"lat", s.Lat, "lon", s.Lon, "alt", s.Altitude)

	return &model.FlightEvent{
		Type:          model.EventLanding,
		Timestamp:     landedAt,
		Lat:           s.Lat,
		Lon:           s.Lon,
		Altitude:      s.Altitude,
		GroundSpeed:   hs,
		VerticalSpeed: vs,
	}
}

// horizontalSpeed averages the per-step great-circle speed over the most
// recent smoothing span. Fewer samples than the span is the cold-start
// case and reports zero.
func (d *Detector) horizontalSpeed() float64 {
	n := d.cfg.SmoothingSize
	if n < 2 || len(d.window) < n {
		return 0
	}

	recent := d.window[len(d.window)-n:]
	var dist, secs float64
	for i := 1; i < len(recent); i++ {
		a, b := recent[i-1], recent[i]
		dt := b.Timestamp.Sub(a.Timestamp).Seconds()
		if dt <= 0 {
			continue
		}
		dist += geo.Distance(geo.Point{Lat: a.Lat, Lon: a.Lon}, geo.Point{Lat: b.Lat, Lon: b.Lon})
		secs += dt
	}
	if secs <= 0 {
		return 0
	}
	return dist / secs
}

// verticalSpeed fits altitude against elapsed seconds by ordinary least
// squares over the whole window. A two-point delta would amplify GPS
// altitude jitter; the regression slope damps it.
func (d *Detector) verticalSpeed() float64 {
	if len(d.window) < d.cfg.SmoothingSize {
		return 0
	}

	t0 := d.window[0].Timestamp
	n := float64(len(d.window))

	var sumT, sumA, sumTT, sumTA float64
	for _, s := range d.window {
		t := s.Timestamp.Sub(t0).Seconds()
		sumT += t
		sumA += s.Altitude
		sumTT += t * t
		sumTA += t * s.Altitude
	}

	denom := n*sumTT - sumT*sumT
	if denom < 1e-9 {
		return 0
	}
	return (n*sumTA - sumT*sumA) / denom
}

// minAltitudeSample returns the lowest sample in the window, falling back
// to the given sample when the window is empty.
func (d *Detector) minAltitudeSample(fallback model.PositionSample) model.PositionSample {
	if len(d.window) == 0 {
		return fallback
	}
	best := d.window[0]
	for _, s := range d.window[1:] {
		if s.Altitude < best.Altitude {
			best = s
		}
	}
	return best
}
