package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"soartrack/internal/api"
	"soartrack/pkg/airspace"
	"soartrack/pkg/config"
	"soartrack/pkg/db"
	"soartrack/pkg/db/maintenance"
	"soartrack/pkg/flight"
	"soartrack/pkg/logging"
	"soartrack/pkg/model"
	"soartrack/pkg/probe"
	"soartrack/pkg/queue"
	"soartrack/pkg/relay"
	"soartrack/pkg/remote"
	"soartrack/pkg/safety"
	"soartrack/pkg/session"
	"soartrack/pkg/sites"
	"soartrack/pkg/store"
	"soartrack/pkg/tracker"
	"soartrack/pkg/version"
)

var initConfig = flag.Bool("init-config", false, "Generate default config file and exit")

func main() {
	// Optional .env for SOARTRACK_* overrides; absence is fine
	_ = godotenv.Load()

	flag.Parse()

	// Handle --init-config flag
	if *initConfig {
		if err := config.GenerateDefault("configs/soartrack.yaml"); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to generate config: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Config file generated: configs/soartrack.yaml")
		return
	}

	if err := run(context.Background(), "configs/soartrack.yaml"); err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL ERROR: Application failed: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	appCfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	cleanupLogs, err := logging.Init(&appCfg.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer cleanupLogs()

	slog.Info("SoarTrack Started", "version", version.Version)

	dbConn, st, err := initDB(appCfg)
	if err != nil {
		return err
	}
	defer dbConn.Close()

	if err := maintenance.Run(ctx, st, dbConn); err != nil {
		slog.Error("Maintenance tasks failed", "error", err)
	}

	// Static datasets; both degrade to empty when missing
	eval := airspace.Load(appCfg.Airspace.Path, appCfg.Airspace.CellResolution)
	siteDir := sites.Load(appCfg.Sites.Path)

	tr := tracker.New()
	svcs := initEngine(appCfg, st, eval, siteDir, tr)
	defer svcs.Relay.Close()

	go svcs.Queue.Run(ctx)
	if appCfg.Remote.BaseURL != "" {
		go svcs.Client.RunProbe(ctx, time.Duration(appCfg.Remote.ProbeInterval), svcs.ConnMonitor)
	}

	restoreUser(ctx, appCfg, st, svcs)

	// Startup Probes
	probes := []probe.Probe{
		probe.Database(dbConn),
		probe.ZoneDataset(eval),
		probe.SiteDirectory(siteDir),
	}
	if appCfg.Remote.BaseURL != "" {
		probes = append(probes, probe.Remote(svcs.Client, appCfg.Remote.BaseURL))
	}
	results := probe.Run(ctx, probes)
	if err := probe.AnalyzeResults(results); err != nil {
		return fmt.Errorf("startup checks failed: %w", err)
	}

	return runServer(ctx, appCfg, svcs, eval, st, tr, cancel)
}

func initDB(appCfg *config.Config) (*db.DB, store.Store, error) {
	dbConn, err := db.Init(appCfg.DB.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return dbConn, store.NewSQLiteStore(dbConn), nil
}

// EngineServices bundles the long-lived engine components.
type EngineServices struct {
	Manager     *session.Manager
	Replayer    *session.Replayer
	Safety      *safety.Monitor
	Queue       *queue.Queue
	Client      *remote.Client
	ConnMonitor *remote.Monitor
	Relay       *relay.Relay
}

func initEngine(cfg *config.Config, st store.Store, eval *airspace.Evaluator, siteDir *sites.Directory, tr *tracker.Tracker) *EngineServices {
	connMon := remote.NewMonitor(false)
	client := remote.NewClient(cfg.Remote, connMon)
	if key := os.Getenv("SOARTRACK_API_KEY"); key != "" {
		client.SetAPIKey(key)
	}

	q := queue.New(st, client, connMon, cfg.Sync)
	if err := q.Restore(context.Background()); err != nil {
		slog.Error("Failed to restore pending operations", "error", err)
	}

	det := flight.NewDetector(cfg.Detector)
	mgr := session.NewManager(cfg.Session, det, siteDir, st)

	safetyMon := safety.NewMonitor(cfg.Alerts, eval, st, q)
	safetyMon.OnAlertCreated(func(a model.AlertRecord) {
		tr.TrackAlert(a.UserID)
	})
	safetyMon.OnZoneEntry(func(userID string, _ model.ZoneEntry) {
		tr.TrackZoneEntry(userID)
	})
	q.OnResult(syncResultHook(tr, safetyMon))

	// Drain the queue the moment connectivity comes back, granting a fresh
	// retry budget to ops that exhausted theirs against a dead network
	connMon.OnRestore(func() {
		go q.Resync(context.Background())
	})

	mgr.AddListener(safetyMon)
	mgr.AddListener(&statsListener{tr: tr})

	rl := relay.New(cfg.Relay)
	mgr.AddListener(rl)

	return &EngineServices{
		Manager:     mgr,
		Replayer:    session.NewReplayer(mgr),
		Safety:      safetyMon,
		Queue:       q,
		Client:      client,
		ConnMonitor: connMon,
		Relay:       rl,
	}
}

// syncResultHook feeds sync outcomes into the activity counters and turns
// a rejected credential into a visible alert instead of a silent retry.
func syncResultHook(tr *tracker.Tracker, mon *safety.Monitor) func(op model.PendingOperation, err error) {
	return func(op model.PendingOperation, err error) {
		// Ops carry no user; counters go to the active user's bucket
		if err == nil {
			tr.TrackSyncSuccess(currentUser)
			return
		}
		tr.TrackSyncFailure(currentUser)
		if errors.Is(err, remote.ErrUnauthorized) {
			mon.NotifyCredentialFailure(context.Background(), err.Error())
		}
	}
}

// currentUser mirrors the session manager's active user for counters that
// fire outside a listener callback. Written only from restoreUser and the
// user endpoint path, which do not race in practice.
var currentUser = "default"

// restoreUser reactivates the last active user so flight history and
// pending alerts survive a restart without a new login.
func restoreUser(ctx context.Context, cfg *config.Config, st store.Store, svcs *EngineServices) {
	userID := "default"
	if v := os.Getenv("SOARTRACK_USER"); v != "" {
		userID = v
	} else if data, ok := st.Get(ctx, "last_user"); ok && len(data) > 0 {
		userID = string(data)
	}
	currentUser = userID

	svcs.Manager.SetUser(ctx, userID)
	svcs.Safety.SetUser(ctx, userID, "", "")
	svcs.Manager.EnableTracking()
	slog.Info("Session restored", "user", userID)
}

// statsListener feeds session events into the activity counters.
type statsListener struct {
	tr *tracker.Tracker
}

func (s *statsListener) OnFlightStarted(f *model.TrackedFlight) { s.tr.TrackFlightOpened(f.UserID) }
func (s *statsListener) OnFlightEnded(f *model.TrackedFlight)   { s.tr.TrackFlightClosed(f.UserID) }
func (s *statsListener) OnSample(userID string, _ model.PositionSample) {
	s.tr.TrackSample(userID)
}
func (s *statsListener) OnEvent(_ model.FlightEvent) {}

func runServer(ctx context.Context, cfg *config.Config, svcs *EngineServices, eval *airspace.Evaluator, st store.Store, tr *tracker.Tracker, cancel context.CancelFunc) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	shutdownFunc := func() { quit <- syscall.SIGTERM }

	statusH := api.NewStatusHandler(svcs.Manager, svcs.Safety, svcs.ConnMonitor, svcs.Queue)
	flightsH := api.NewFlightHandler(svcs.Manager, st)
	alertsH := api.NewAlertHandler(svcs.Safety)
	zonesH := api.NewZoneHandler(eval, float64(cfg.Airspace.NearbyRadius)/1000)
	replayH := api.NewReplayHandler(svcs.Replayer, st)
	statsH := api.NewStatsHandler(tr, svcs.Queue)

	srv := api.NewServer(cfg.Server.Address,
		statusH,
		flightsH,
		alertsH,
		zonesH,
		replayH,
		statsH,
		shutdownFunc,
	)

	srv.Handler = loggingMiddleware(srv.Handler)

	err := runServerLifecycle(ctx, srv, quit)

	// Stop feeding samples, close any open flight, flush the queue once
	cancel()
	svcs.Replayer.Stop()
	svcs.Manager.DisableTracking()
	persistUser(st, svcs.Manager.UserID())
	return err
}

func persistUser(st store.Store, userID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := st.Set(ctx, "last_user", []byte(userID)); err != nil {
		slog.Error("Failed to persist active user", "error", err)
	}
}

func runServerLifecycle(ctx context.Context, srv *http.Server, quit chan os.Signal) error {
	slog.Info("Starting server", "addr", srv.Addr)
	serverErrors := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- err
		}
	}()
	select {
	case <-quit:
		slog.Info("Shutting down server...")
	case <-ctx.Done():
		slog.Info("Context cancelled, shutting down...")
	case err := <-serverErrors:
		return fmt.Errorf("server failed: %w", err)
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("Request Processed", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}
