package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"flight_tracks/internal/api"
	"flight_tracks/internal/config"
	"flight_tracks/internal/database"
	"flight_tracks/internal/opensky"
	"flight_tracks/internal/scheduler"
	"flight_tracks/internal/tasks"
)

const shutdownTimeout = 10 * time.Second

// Daemon owns the long-lived parts of the service
type Daemon struct {
	ctx        context.Context
	cancel     context.CancelFunc
	listenAddr string
	scheduler  *scheduler.Scheduler
	server     *echo.Echo
	database   *database.DB // nil when the registry is disabled
	serveErr   chan error
}

// New wires the OpenSky client, optional aircraft registry, watch tasks and HTTP server
func New(cfg *config.Config) (*Daemon, error) {
	client, err := opensky.NewClient(opensky.Config{
		BaseURL:     cfg.OpenSky.BaseURL,
		Timeout:     cfg.OpenSky.Timeout,
		UserAgent:   cfg.OpenSky.UserAgent,
		Username:    cfg.OpenSky.Username,
		Password:    cfg.OpenSky.Password,
		MaxRetries:  cfg.OpenSky.MaxRetries,
		RetryDelays: cfg.OpenSky.RetryDelays,
		RateLimit:   cfg.OpenSky.RateLimit,
		RateBurst:   cfg.OpenSky.RateBurst,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create OpenSky client: %w", err)
	}

	var db *database.DB
	var registry api.AircraftLookup
	if cfg.DBPath != "" {
		db, err = openRegistry(cfg)
		if err != nil {
			return nil, err
		}
		registry = db.AircraftRepository()
	} else {
		slog.Info("Aircraft registry disabled")
	}

	ctx, cancel := context.WithCancel(context.Background())

	sched := scheduler.New(ctx)
	if len(cfg.Watch.Aircraft) > 0 {
		sched.AddTask(tasks.NewTrackWatcher(client, cfg.Watch.Aircraft, cfg.Watch.Interval))
		slog.Info("Watching aircraft", "aircraft", cfg.Watch.Aircraft, "interval", cfg.Watch.Interval)
	}

	return &Daemon{
		ctx:        ctx,
		cancel:     cancel,
		listenAddr: cfg.ListenAddr,
		scheduler:  sched,
		server:     api.NewServer(api.NewTrackHandler(client, registry)),
		database:   db,
		serveErr:   make(chan error, 1),
	}, nil
}

// openRegistry opens the registry database and loads the CSV export into an empty table
func openRegistry(cfg *config.Config) (*database.DB, error) {
	db, err := database.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	repo := db.AircraftRepository()
	populated, err := repo.IsTablePopulated()
	if err != nil {
		db.Close()
		return nil, err
	}

	switch {
	case populated:
		slog.Info("Aircraft table is already populated", "db_path", cfg.DBPath)
	case len(cfg.AircraftCSVPaths) == 0:
		slog.Warn("Aircraft table is empty and no CSV files are configured", "db_path", cfg.DBPath)
	default:
		slog.Info("Aircraft table is empty, loading from CSV files", "csv_paths", cfg.AircraftCSVPaths)
		if err := repo.LoadFromMultipleCSV(cfg.AircraftCSVPaths, cfg.CSVBatchSize); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to load aircraft from CSV: %w", err)
		}
		slog.Info("Loaded aircraft database from CSV")
	}

	return db, nil
}

// Start runs the scheduler and begins serving HTTP in the background
func (d *Daemon) Start() error {
	d.scheduler.Start()

	go func() {
		slog.Info("Starting HTTP server", "listen_addr", d.listenAddr)
		if err := d.server.Start(d.listenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			d.serveErr <- err
		}
		close(d.serveErr)
	}()

	return nil
}

// Errors reports a fatal HTTP server error; it is closed once the server stops
func (d *Daemon) Errors() <-chan error {
	return d.serveErr
}

// Stop gracefully stops the daemon
func (d *Daemon) Stop() error {
	slog.Info("Stopping daemon")
	d.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if err := d.server.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to shut down HTTP server: %w", err))
	}

	d.scheduler.Stop()

	if d.database != nil {
		if err := d.database.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		}
	}

	slog.Info("Daemon stopped")
	return errors.Join(errs...)
}
