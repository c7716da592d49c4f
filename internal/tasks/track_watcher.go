package tasks

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"flight_tracks/internal/models"
	"flight_tracks/internal/opensky"
)

// TrackWatcher fetches the latest track of each watched aircraft on every run
// and logs where it is. Tracks are not kept between runs.
type TrackWatcher struct {
	fetcher  opensky.TrackFetcher
	aircraft []models.ICAO24
	interval time.Duration
}

func NewTrackWatcher(fetcher opensky.TrackFetcher, aircraft []models.ICAO24, interval time.Duration) *TrackWatcher {
	return &TrackWatcher{
		fetcher:  fetcher,
		aircraft: aircraft,
		interval: interval,
	}
}

func (w *TrackWatcher) Name() string {
	return "track_watcher"
}

func (w *TrackWatcher) Interval() time.Duration {
	return w.interval
}

// Run fetches every watched aircraft once. A failure for one aircraft does not
// skip the others; the returned error joins all failures.
func (w *TrackWatcher) Run(ctx context.Context) error {
	var errs []error

	for _, icao24 := range w.aircraft {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		track, err := w.fetcher.FetchTrack(ctx, icao24, 0)
		if err != nil {
			var fe *opensky.FetchError
			if errors.As(err, &fe) && fe.Kind == opensky.KindRemoteError && fe.StatusCode == 404 {
				slog.Info("No recent track for watched aircraft", "icao24", icao24)
				continue
			}
			slog.Warn("Failed to fetch watched aircraft", "icao24", icao24, "error", err)
			errs = append(errs, err)
			continue
		}

		attrs := []any{
			"icao24", icao24,
			"points", len(track.Path),
			"in_flight", track.InFlight(),
		}
		if track.Callsign != nil {
			attrs = append(attrs, "callsign", *track.Callsign)
		}
		if p, ok := track.LastPosition(); ok {
			attrs = append(attrs,
				"last_seen", time.Unix(p.Time, 0).UTC().Format(time.RFC3339),
				"latitude", *p.Latitude,
				"longitude", *p.Longitude,
			)
			if p.BaroAltitude != nil {
				attrs = append(attrs, "baro_altitude", *p.BaroAltitude)
			}
		}
		slog.Info("Watched aircraft track", attrs...)
	}

	return errors.Join(errs...)
}
