package aggregator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"sync/atomic"
	"time"

	"github.com/bluele/gcache"
	"golang.org/x/sync/errgroup"

	"thsrquery/internal/auth"
	"thsrquery/internal/cache"
	"thsrquery/internal/domain"
	"thsrquery/internal/fixtures"
	"thsrquery/pkg/tdx"
)

// Provider is the upstream read surface. *tdx.Client implements it.
type Provider interface {
	ListStations(ctx context.Context, token string) ([]domain.Station, error)
	ListDailyTrains(ctx context.Context, token, originID, destID, date string) ([]domain.DailyTrain, error)
	ListSeatStatus(ctx context.Context, token, stationID string) ([]domain.SeatStatus, error)
	ListGeneralTimetable(ctx context.Context, token, trainNo string) ([]domain.GeneralTimetableStop, error)
}

// TokenSource is implemented by *auth.Manager.
type TokenSource interface {
	Token(ctx context.Context, creds auth.Credentials) (string, error)
	Invalidate()
}

// Mode selects fixtures or the live provider for one request.
type Mode struct {
	Mock        bool
	Credentials auth.Credentials
}

func (m Mode) String() string {
	if m.Mock {
		return "mock"
	}
	return "live"
}

// ModeFor returns live mode for a complete credential pair, mock otherwise.
func ModeFor(creds auth.Credentials) Mode {
	if creds.Empty() {
		return Mode{Mock: true}
	}
	return Mode{Credentials: creds}
}

type TrainQuery struct {
	Origin      string
	Destination string
	Date        string
}

type RoundTripQuery struct {
	Origin       string
	Destination  string
	OutboundDate string
	ReturnDate   string
}

type Options struct {
	StationTTL         time.Duration
	TimetableCacheSize int
	TimetableTTL       time.Duration
}

func DefaultOptions() Options {
	return Options{
		StationTTL:         24 * time.Hour,
		TimetableCacheSize: 512,
		TimetableTTL:       6 * time.Hour,
	}
}

type Service struct {
	provider   Provider
	tokens     TokenSource
	stations   cache.Store
	timetables gcache.Cache
	fixtures   *fixtures.Set
	opts       Options
	logger     *slog.Logger

	counters counters
}

type counters struct {
	upstreamCalls        atomic.Int64
	upstreamErrors       atomic.Int64
	stationCacheHits     atomic.Int64
	stationCacheMisses   atomic.Int64
	timetableCacheHits   atomic.Int64
	timetableCacheMisses atomic.Int64
	tokenInvalidations   atomic.Int64
}

// New builds the service. stations may be nil to disable station caching.
func New(provider Provider, tokens TokenSource, stations cache.Store, fx *fixtures.Set, opts Options, logger *slog.Logger) *Service {
	if opts.TimetableCacheSize <= 0 {
		opts.TimetableCacheSize = DefaultOptions().TimetableCacheSize
	}
	if opts.TimetableTTL <= 0 {
		opts.TimetableTTL = DefaultOptions().TimetableTTL
	}
	if opts.StationTTL <= 0 {
		opts.StationTTL = DefaultOptions().StationTTL
	}

	return &Service{
		provider: provider,
		tokens:   tokens,
		stations: stations,
		timetables: gcache.New(opts.TimetableCacheSize).
			LRU().
			Expiration(opts.TimetableTTL).
			Build(),
		fixtures: fx,
		opts:     opts,
		logger:   logger.With("component", "aggregator"),
	}
}

// Stations returns the station list, read through the station cache in
// live mode.
func (s *Service) Stations(ctx context.Context, mode Mode) ([]domain.Station, error) {
	if mode.Mock {
		return s.fixtures.Stations(), nil
	}

	if s.stations != nil {
		var cached []domain.Station
		found, err := s.stations.GetJSON(ctx, cache.KeyStations, &cached)
		if err != nil {
			s.logger.Warn("station cache read failed", "error", err)
		} else if found {
			s.counters.stationCacheHits.Add(1)
			return cached, nil
		}
		s.counters.stationCacheMisses.Add(1)
	}

	return s.fetchStations(ctx, mode.Credentials)
}

func (s *Service) fetchStations(ctx context.Context, creds auth.Credentials) ([]domain.Station, error) {
	token, err := s.token(ctx, creds)
	if err != nil {
		return nil, err
	}

	stations, err := s.provider.ListStations(ctx, token)
	if err = s.observe(err); err != nil {
		return nil, err
	}
	if stations == nil {
		stations = []domain.Station{}
	}

	if s.stations != nil {
		if err := s.stations.SetJSON(ctx, cache.KeyStations, stations, s.opts.StationTTL); err != nil {
			s.logger.Warn("station cache write failed", "error", err)
		}
	}
	return stations, nil
}

// Trains returns the departures of q joined with the seat status listed
// for the origin station. The timetable and seat-status calls run
// concurrently; either failing fails the whole call.
func (s *Service) Trains(ctx context.Context, mode Mode, q TrainQuery) ([]domain.EnrichedTrain, error) {
	if mode.Mock {
		return s.fixtures.Trains(), nil
	}

	token, err := s.token(ctx, mode.Credentials)
	if err != nil {
		return nil, err
	}

	var (
		trains []domain.DailyTrain
		seats  []domain.SeatStatus
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		trains, err = s.provider.ListDailyTrains(gctx, token, q.Origin, q.Destination, q.Date)
		return s.observe(err)
	})
	g.Go(func() error {
		var err error
		// Seat status is listed per departing station, so only the
		// origin's list describes this leg.
		seats, err = s.provider.ListSeatStatus(gctx, token, q.Origin)
		return s.observe(err)
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return JoinSeatStatus(trains, seats, q.Origin), nil
}

// RoundTrip runs the outbound query and the reversed return query
// concurrently.
func (s *Service) RoundTrip(ctx context.Context, mode Mode, q RoundTripQuery) (domain.RoundTrip, error) {
	var trip domain.RoundTrip

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		trip.Outbound, err = s.Trains(gctx, mode, TrainQuery{
			Origin:      q.Origin,
			Destination: q.Destination,
			Date:        q.OutboundDate,
		})
		if err != nil {
			return fmt.Errorf("outbound: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		trip.Return, err = s.Trains(gctx, mode, TrainQuery{
			Origin:      q.Destination,
			Destination: q.Origin,
			Date:        q.ReturnDate,
		})
		if err != nil {
			return fmt.Errorf("return: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return domain.RoundTrip{}, err
	}
	return trip, nil
}

// TimetableByTrain returns the normalized static stop list of trainNo. An
// unknown train yields an empty slice, not an error.
func (s *Service) TimetableByTrain(ctx context.Context, mode Mode, trainNo string) ([]domain.TrainStop, error) {
	if mode.Mock {
		return NormalizeStops(s.fixtures.Timetable(trainNo)), nil
	}

	key := cache.KeyTimetable(trainNo)
	if v, err := s.timetables.Get(key); err == nil {
		if stops, ok := v.([]domain.TrainStop); ok {
			s.counters.timetableCacheHits.Add(1)
			return slices.Clone(stops), nil
		}
	}
	s.counters.timetableCacheMisses.Add(1)

	token, err := s.token(ctx, mode.Credentials)
	if err != nil {
		return nil, err
	}

	raw, err := s.provider.ListGeneralTimetable(ctx, token, trainNo)
	if err = s.observe(err); err != nil {
		return nil, err
	}

	stops := NormalizeStops(raw)
	if err := s.timetables.Set(key, slices.Clone(stops)); err != nil {
		s.logger.Warn("timetable cache write failed", "train_no", trainNo, "error", err)
	}
	return stops, nil
}

// SeatStatusByStation returns every train passing stationID, split by
// running direction.
func (s *Service) SeatStatusByStation(ctx context.Context, mode Mode, stationID string) (domain.StationSeatStatus, error) {
	if mode.Mock {
		return s.fixtures.SeatStatus(), nil
	}

	token, err := s.token(ctx, mode.Credentials)
	if err != nil {
		return domain.StationSeatStatus{}, err
	}

	records, err := s.provider.ListSeatStatus(ctx, token, stationID)
	if err = s.observe(err); err != nil {
		return domain.StationSeatStatus{}, err
	}

	return PartitionByDirection(records)
}

func (s *Service) token(ctx context.Context, creds auth.Credentials) (string, error) {
	token, err := s.tokens.Token(ctx, creds)
	if err != nil {
		return "", fmt.Errorf("acquiring token: %w", err)
	}
	return token, nil
}

// observe counts an upstream call and drops the cached token when the
// provider rejects it.
func (s *Service) observe(err error) error {
	s.counters.upstreamCalls.Add(1)
	if err == nil {
		return nil
	}
	s.counters.upstreamErrors.Add(1)

	var upErr *tdx.UpstreamError
	if errors.As(err, &upErr) && upErr.Status == http.StatusUnauthorized {
		s.counters.tokenInvalidations.Add(1)
		s.tokens.Invalidate()
	}
	return err
}

// stationRefresher feeds the cache warmer. It does nothing while no
// credentials are configured.
type stationRefresher struct {
	svc         *Service
	credentials func() (auth.Credentials, bool)
}

func (r stationRefresher) RefreshStations(ctx context.Context) (int, error) {
	creds, ok := r.credentials()
	if !ok {
		r.svc.logger.Debug("skipping station refresh in mock mode")
		return 0, nil
	}
	stations, err := r.svc.fetchStations(ctx, creds)
	if err != nil {
		return 0, err
	}
	return len(stations), nil
}

// StationRefresher returns a refresher that fetches stations with the
// credentials reported by lookup.
func (s *Service) StationRefresher(lookup func() (auth.Credentials, bool)) cache.StationRefresher {
	return stationRefresher{svc: s, credentials: lookup}
}

type Stats struct {
	UpstreamCalls         int64 `json:"upstream_calls"`
	UpstreamErrors        int64 `json:"upstream_errors"`
	StationCacheHits      int64 `json:"station_cache_hits"`
	StationCacheMisses    int64 `json:"station_cache_misses"`
	TimetableCacheHits    int64 `json:"timetable_cache_hits"`
	TimetableCacheMisses  int64 `json:"timetable_cache_misses"`
	TimetableCacheEntries int   `json:"timetable_cache_entries"`
	TokenInvalidations    int64 `json:"token_invalidations"`
}

func (s *Service) Stats() Stats {
	return Stats{
		UpstreamCalls:         s.counters.upstreamCalls.Load(),
		UpstreamErrors:        s.counters.upstreamErrors.Load(),
		StationCacheHits:      s.counters.stationCacheHits.Load(),
		StationCacheMisses:    s.counters.stationCacheMisses.Load(),
		TimetableCacheHits:    s.counters.timetableCacheHits.Load(),
		TimetableCacheMisses:  s.counters.timetableCacheMisses.Load(),
		TimetableCacheEntries: s.timetables.Len(false),
		TokenInvalidations:    s.counters.tokenInvalidations.Load(),
	}
}
