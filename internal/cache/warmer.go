package cache

import (
	"context"
	"log/slog"
	"time"
)

// StationRefresher reloads the station list from the provider into the
// station cache and reports how many stations were stored.
type StationRefresher interface {
	RefreshStations(ctx context.Context) (int, error)
}

type Warmer struct {
	refresher StationRefresher
	location  *time.Location
	logger    *slog.Logger
}

// NewWarmer refreshes in loc's calendar day; THSR publishes station
// changes on Taiwan dates.
func NewWarmer(refresher StationRefresher, loc *time.Location, logger *slog.Logger) *Warmer {
	return &Warmer{
		refresher: refresher,
		location:  loc,
		logger:    logger.With("component", "cache_warmer"),
	}
}

func (w *Warmer) WarmAll(ctx context.Context) error {
	start := time.Now()
	w.logger.Info("starting cache warming")

	n, err := w.refresher.RefreshStations(ctx)
	if err != nil {
		w.logger.Error("failed to warm stations", "error", err)
		return err
	}

	w.logger.Info("cache warming completed",
		"stations", n,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// NextRefresh returns 00:05 of the day after now, in the warmer's location.
func (w *Warmer) NextRefresh(now time.Time) time.Time {
	local := now.In(w.location)
	return time.Date(local.Year(), local.Month(), local.Day()+1, 0, 5, 0, 0, w.location)
}

func (w *Warmer) ScheduleMidnightRefresh(ctx context.Context) {
	for {
		now := time.Now()
		next := w.NextRefresh(now)
		waitDuration := next.Sub(now)

		w.logger.Info("scheduled next cache refresh", "at", next, "in", waitDuration)

		timer := time.NewTimer(waitDuration)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			w.logger.Info("midnight cache refresh starting")
			if err := w.WarmAll(ctx); err != nil {
				w.logger.Error("midnight cache refresh failed", "error", err)
			}
		}
	}
}
