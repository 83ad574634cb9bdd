package remote

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"soartrack/pkg/config"
)

func testConfig(baseURL string) config.RemoteConfig {
	return config.RemoteConfig{
		BaseURL:     baseURL,
		Timeout:     config.Duration(2 * time.Second),
		BackoffBase: config.Duration(time.Millisecond),
		BackoffMax:  config.Duration(10 * time.Millisecond),
	}
}

type recordedRequest struct {
	method string
	path   string
	auth   string
}

func recordingServer(status int) (*httptest.Server, func() []recordedRequest) {
	var mu sync.Mutex
	var reqs []recordedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		reqs = append(reqs, recordedRequest{
			method: r.Method,
			path:   r.URL.Path,
			auth:   r.Header.Get("Authorization"),
		})
		mu.Unlock()
		w.WriteHeader(status)
	}))
	return srv, func() []recordedRequest {
		mu.Lock()
		defer mu.Unlock()
		return append([]recordedRequest(nil), reqs...)
	}
}

func TestCreateAndMergeVerbs(t *testing.T) {
	srv, requests := recordingServer(http.StatusOK)
	defer srv.Close()

	mon := NewMonitor(false)
	c := NewClient(testConfig(srv.URL), mon)
	c.SetAPIKey("test-key")
	ctx := context.Background()

	if err := c.Create(ctx, "alerts", "doc-1", []byte(`{}`)); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := c.Merge(ctx, "alerts", "doc-1", []byte(`{}`)); err != nil {
		t.Fatalf("Merge failed: %v", err)
	}

	reqs := requests()
	if len(reqs) != 2 {
		t.Fatalf("Expected 2 requests, got %d", len(reqs))
	}
	if reqs[0].method != http.MethodPut || reqs[0].path != "/alerts/doc-1" {
		t.Errorf("Create: got %s %s", reqs[0].method, reqs[0].path)
	}
	if reqs[1].method != http.MethodPatch {
		t.Errorf("Merge: got %s", reqs[1].method)
	}
	if reqs[0].auth != "Bearer test-key" {
		t.Errorf("Missing bearer token, got %q", reqs[0].auth)
	}
	if !mon.Online() {
		t.Error("Successful write did not mark the monitor online")
	}
}

func TestUnauthorizedIsNotUnreachable(t *testing.T) {
	srv, _ := recordingServer(http.StatusUnauthorized)
	defer srv.Close()

	mon := NewMonitor(false)
	c := NewClient(testConfig(srv.URL), mon)

	err := c.Create(context.Background(), "alerts", "doc-1", []byte(`{}`))
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("Expected ErrUnauthorized, got %v", err)
	}
	if errors.Is(err, ErrUnreachable) {
		t.Error("Rejected credentials must not look like a dead network")
	}
	// The server answered, so the network is up
	if !mon.Online() {
		t.Error("401 response should still mark the monitor online")
	}
}

func TestTransportFailureIsUnreachable(t *testing.T) {
	mon := NewMonitor(true)
	c := NewClient(testConfig("http://127.0.0.1:1"), mon)

	err := c.Create(context.Background(), "alerts", "doc-1", []byte(`{}`))
	if !errors.Is(err, ErrUnreachable) {
		t.Fatalf("Expected ErrUnreachable, got %v", err)
	}
	if mon.Online() {
		t.Error("Transport failure should mark the monitor offline")
	}
}

func TestNoBaseURLIsUnreachable(t *testing.T) {
	c := NewClient(testConfig(""), nil)

	if err := c.Create(context.Background(), "alerts", "d", nil); !errors.Is(err, ErrUnreachable) {
		t.Errorf("Expected ErrUnreachable, got %v", err)
	}
	if err := c.Probe(context.Background()); !errors.Is(err, ErrUnreachable) {
		t.Errorf("Probe: expected ErrUnreachable, got %v", err)
	}
}

func TestProbeHealthEndpoint(t *testing.T) {
	srv, requests := recordingServer(http.StatusOK)
	defer srv.Close()

	c := NewClient(testConfig(srv.URL), nil)
	if err := c.Probe(context.Background()); err != nil {
		t.Fatalf("Probe failed: %v", err)
	}

	reqs := requests()
	if len(reqs) != 1 || reqs[0].path != "/health" {
		t.Errorf("Expected one GET /health, got %+v", reqs)
	}
}

func TestBackoffGrowsAndRecovers(t *testing.T) {
	b := NewBackoff(100*time.Millisecond, time.Second)

	if d := b.Delay(); d != 0 {
		t.Errorf("Fresh backoff should be open, got %v", d)
	}

	b.RecordFailure()
	first := b.Delay()
	if first <= 0 {
		t.Fatal("Delay after failure should be positive")
	}

	b.RecordFailure()
	b.RecordFailure()
	// 3 failures: 400ms base + jitter, clearly above the first delay
	if d := b.Delay(); d <= first {
		t.Errorf("Delay should grow with failures: first %v, now %v", first, d)
	}

	b.RecordSuccess()
	b.RecordSuccess()
	b.RecordSuccess()
	if d := b.Delay(); d != 0 {
		t.Errorf("Full recovery should reset the delay, got %v", d)
	}
}

func TestBackoffCapped(t *testing.T) {
	b := NewBackoff(100*time.Millisecond, 500*time.Millisecond)
	for i := 0; i < 10; i++ {
		b.RecordFailure()
	}
	// Cap 500ms + 10% jitter
	if d := b.Delay(); d > 550*time.Millisecond {
		t.Errorf("Delay exceeds cap: %v", d)
	}
}

func TestMonitorRestoreFiresOncePerEdge(t *testing.T) {
	mon := NewMonitor(false)
	fired := 0
	mon.OnRestore(func() { fired++ })

	mon.SetOnline(true)
	mon.SetOnline(true) // no edge
	mon.SetOnline(false)
	mon.SetOnline(true)

	if fired != 2 {
		t.Errorf("Expected 2 restore callbacks, got %d", fired)
	}
}
