package flight

import (
	"testing"
	"time"

	"soartrack/pkg/config"
	"soartrack/pkg/model"
)

// metersPerDegLat is close enough for test tracks near the equator of a degree.
const metersPerDegLat = 111195.0

func testDetector() *Detector {
	return NewDetector(config.DefaultConfig().Detector)
}

// movingSamples produces 1 Hz samples heading north at the given speed.
func movingSamples(start time.Time, lat, lon, alt, speedMS float64, n int) []model.PositionSample {
	samples := make([]model.PositionSample, 0, n)
	for i := 0; i < n; i++ {
		samples = append(samples, model.PositionSample{
			Timestamp: start.Add(time.Duration(i) * time.Second),
			Lat:       lat + float64(i)*speedMS/metersPerDegLat,
			Lon:       lon,
			Altitude:  alt,
		})
	}
	return samples
}

// stationarySamples produces 1 Hz samples frozen at one position.
func stationarySamples(start time.Time, lat, lon, alt float64, n int) []model.PositionSample {
	samples := make([]model.PositionSample, 0, n)
	for i := 0; i < n; i++ {
		samples = append(samples, model.PositionSample{
			Timestamp: start.Add(time.Duration(i) * time.Second),
			Lat:       lat,
			Lon:       lon,
			Altitude:  alt,
		})
	}
	return samples
}

func feed(d *Detector, samples []model.PositionSample) []*model.FlightEvent {
	var events []*model.FlightEvent
	for _, s := range samples {
		if ev := d.ProcessSample(s); ev != nil {
			events = append(events, ev)
		}
	}
	return events
}

func TestColdStartReportsNothing(t *testing.T) {
	d := testDetector()
	start := time.Date(2026, 5, 10, 11, 0, 0, 0, time.UTC)

	// Fewer samples than the smoothing span: speeds are zero by definition
	for _, s := range movingSamples(start, 46.5, 8.0, 1200, 10.0, 4) {
		if ev := d.ProcessSample(s); ev != nil {
			t.Fatalf("Cold start emitted %v", ev.Type)
		}
	}
	if d.InFlight() {
		t.Error("Detector in flight after cold start")
	}
}

func TestTakeoffEmittedOnce(t *testing.T) {
	d := testDetector()
	start := time.Date(2026, 5, 10, 11, 0, 0, 0, time.UTC)

	// Sustained 3 m/s, well over the 2 m/s threshold
	events := feed(d, movingSamples(start, 46.5, 8.0, 1200, 3.0, 30))

	var takeoffs int
	for _, ev := range events {
		if ev.Type == model.EventTakeoff {
			takeoffs++
		}
	}
	if takeoffs != 1 {
		t.Fatalf("Expected exactly 1 takeoff, got %d", takeoffs)
	}
	if !d.InFlight() {
		t.Error("Detector not in flight after takeoff")
	}
}

func TestTakeoffBackdatedToLowestSample(t *testing.T) {
	d := testDetector()
	start := time.Date(2026, 5, 10, 11, 0, 0, 0, time.UTC)

	samples := movingSamples(start, 46.5, 8.0, 1200, 3.0, 10)
	// The launch point sits below the rest of the track
	samples[0].Altitude = 1180

	events := feed(d, samples)
	if len(events) == 0 || events[0].Type != model.EventTakeoff {
		t.Fatal("Expected a takeoff event")
	}
	ev := events[0]
	if !ev.Timestamp.Equal(samples[0].Timestamp) {
		t.Errorf("Takeoff not backdated: got %v, want %v", ev.Timestamp, samples[0].Timestamp)
	}
	if ev.Altitude != 1180 {
		t.Errorf("Takeoff altitude = %.0f, want 1180", ev.Altitude)
	}
}

func TestLandingRequiresSustainedQuiet(t *testing.T) {
	d := testDetector()
	start := time.Date(2026, 5, 10, 11, 0, 0, 0, time.UTC)

	moving := movingSamples(start, 46.5, 8.0, 1200, 3.0, 10)
	feed(d, moving)
	if !d.InFlight() {
		t.Fatal("Setup: detector should be in flight")
	}

	last := moving[len(moving)-1]
	quiet := stationarySamples(last.Timestamp.Add(time.Second), last.Lat, last.Lon, last.Altitude, 3)
	if events := feed(d, quiet); len(events) != 0 {
		t.Fatalf("Landing emitted before confirmation window elapsed: %v", events)
	}
	if !d.InFlight() {
		t.Error("Detector left flight without a confirmed landing")
	}
}

func TestLandingTimestampIsQuietWindowStart(t *testing.T) {
	d := testDetector()
	start := time.Date(2026, 5, 10, 11, 0, 0, 0, time.UTC)

	moving := movingSamples(start, 46.5, 8.0, 1200, 3.0, 10)
	feed(d, moving)

	last := moving[len(moving)-1]
	quiet := stationarySamples(last.Timestamp.Add(time.Second), last.Lat, last.Lon, last.Altitude, 20)
	events := feed(d, quiet)

	var landings []*model.FlightEvent
	for _, ev := range events {
		if ev.Type == model.EventLanding {
			landings = append(landings, ev)
		}
	}
	if len(landings) != 1 {
		t.Fatalf("Expected exactly 1 landing, got %d", len(landings))
	}

	ev := landings[0]
	if d.InFlight() {
		t.Error("Detector still in flight after landing")
	}
	// The event carries the moment the glider first went quiet, which is
	// at least the confirmation duration before the confirming sample.
	lastQuiet := quiet[len(quiet)-1]
	if !ev.Timestamp.Before(lastQuiet.Timestamp) {
		t.Errorf("Landing timestamp %v not backdated before %v", ev.Timestamp, lastQuiet.Timestamp)
	}
	if ev.Timestamp.Before(quiet[0].Timestamp) {
		t.Errorf("Landing timestamp %v predates the quiet window start %v", ev.Timestamp, quiet[0].Timestamp)
	}
	if alt, ok := d.GroundAltitude(); !ok || alt != last.Altitude {
		t.Errorf("Ground baseline = %.0f/%v, want %.0f", alt, ok, last.Altitude)
	}
}

func TestBriefMovementResetsLandingTimer(t *testing.T) {
	d := testDetector()
	start := time.Date(2026, 5, 10, 11, 0, 0, 0, time.UTC)

	moving := movingSamples(start, 46.5, 8.0, 1200, 3.0, 10)
	feed(d, moving)
	last := moving[len(moving)-1]

	ts := last.Timestamp
	next := func(lat, lon float64) model.PositionSample {
		ts = ts.Add(time.Second)
		return model.PositionSample{Timestamp: ts, Lat: lat, Lon: lon, Altitude: last.Altitude}
	}

	// Almost quiet long enough, then a gust of movement
	for i := 0; i < 6; i++ {
		if ev := d.ProcessSample(next(last.Lat, last.Lon)); ev != nil && ev.Type == model.EventLanding {
			t.Fatalf("Unexpected landing at sample %d", i)
		}
	}
	gustLat := last.Lat + 30.0/metersPerDegLat
	for i := 0; i < 3; i++ {
		d.ProcessSample(next(gustLat+float64(i)*5.0/metersPerDegLat, last.Lon))
	}
	if !d.InFlight() {
		t.Fatal("Movement burst should have kept the flight open")
	}
}

func TestSecondAccelerationBurstDoesNotRetrigger(t *testing.T) {
	d := testDetector()
	start := time.Date(2026, 5, 10, 11, 0, 0, 0, time.UTC)

	first := movingSamples(start, 46.5, 8.0, 1200, 3.0, 15)
	events := feed(d, first)

	// A second burst at higher speed while still airborne
	last := first[len(first)-1]
	second := movingSamples(last.Timestamp.Add(time.Second), last.Lat, last.Lon, 1300, 8.0, 15)
	events = append(events, feed(d, second)...)

	var takeoffs int
	for _, ev := range events {
		if ev.Type == model.EventTakeoff {
			takeoffs++
		}
	}
	if takeoffs != 1 {
		t.Errorf("Expected 1 takeoff across both bursts, got %d", takeoffs)
	}
}

func TestResetMatchesFreshDetector(t *testing.T) {
	start := time.Date(2026, 5, 10, 11, 0, 0, 0, time.UTC)
	track := movingSamples(start, 46.5, 8.0, 1200, 3.0, 12)

	fresh := testDetector()
	want := feed(fresh, track)

	reused := testDetector()
	feed(reused, movingSamples(start.Add(-time.Hour), 10.0, 20.0, 500, 6.0, 40))
	reused.Reset()
	got := feed(reused, track)

	if len(got) != len(want) {
		t.Fatalf("Event count after reset = %d, fresh = %d", len(got), len(want))
	}
	for i := range want {
		if got[i].Type != want[i].Type || !got[i].Timestamp.Equal(want[i].Timestamp) {
			t.Errorf("Event %d differs after reset: %+v vs %+v", i, got[i], want[i])
		}
	}
}

func TestProcessInertialAcceptedWithoutEvents(t *testing.T) {
	d := testDetector()
	start := time.Date(2026, 5, 10, 11, 0, 0, 0, time.UTC)

	for i := 0; i < 100; i++ {
		d.ProcessInertial(model.InertialSample{
			Timestamp: start.Add(time.Duration(i) * 100 * time.Millisecond),
			Accel:     &model.Vector3{X: 0.1, Y: 0.2, Z: 9.8},
		})
	}
	if d.InFlight() {
		t.Error("Inertial samples alone must not trigger detection")
	}
	if len(d.inertial) > d.cfg.InertialWindowSize {
		t.Errorf("Inertial window grew to %d, cap is %d", len(d.inertial), d.cfg.InertialWindowSize)
	}
}
