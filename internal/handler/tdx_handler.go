package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"thsrquery/internal/aggregator"
	"thsrquery/internal/auth"
	"thsrquery/internal/domain"
	"thsrquery/internal/middleware"
	"thsrquery/pkg/tdx"
)

// Aggregator is the read surface served by TDXHandler. *aggregator.Service
// implements it.
type Aggregator interface {
	Stations(ctx context.Context, mode aggregator.Mode) ([]domain.Station, error)
	Trains(ctx context.Context, mode aggregator.Mode, q aggregator.TrainQuery) ([]domain.EnrichedTrain, error)
	RoundTrip(ctx context.Context, mode aggregator.Mode, q aggregator.RoundTripQuery) (domain.RoundTrip, error)
	TimetableByTrain(ctx context.Context, mode aggregator.Mode, trainNo string) ([]domain.TrainStop, error)
	SeatStatusByStation(ctx context.Context, mode aggregator.Mode, stationID string) (domain.StationSeatStatus, error)
}

// CredentialLookup reports the provider credentials currently configured.
type CredentialLookup func() (auth.Credentials, bool)

const (
	stationsCacheControl = "public, max-age=86400"
	dynamicCacheControl  = "no-store"
)

// TDXHandler serves the THSR query endpoints. Each request resolves its
// data mode once, before any other work.
type TDXHandler struct {
	agg         Aggregator
	credentials CredentialLookup
	validate    *validator.Validate
	logger      *slog.Logger
}

func NewTDXHandler(agg Aggregator, credentials CredentialLookup, logger *slog.Logger) *TDXHandler {
	return &TDXHandler{
		agg:         agg,
		credentials: credentials,
		validate:    newValidator(),
		logger:      logger.With("handler", "tdx"),
	}
}

func (h *TDXHandler) mode() aggregator.Mode {
	creds, _ := h.credentials()
	return aggregator.ModeFor(creds)
}

func (h *TDXHandler) Stations(w http.ResponseWriter, r *http.Request) {
	mode := h.mode()
	start := time.Now()

	stations, err := h.agg.Stations(r.Context(), mode)
	if err != nil {
		h.fail(w, r, "stations", "failed to fetch station data", err, mode)
		return
	}

	h.logger.Debug("stations served", "mode", mode.String(), "count", len(stations), "duration_ms", time.Since(start).Milliseconds())
	h.respond(w, mode, stationsCacheControl, stations)
}

func (h *TDXHandler) Trains(w http.ResponseWriter, r *http.Request) {
	var q trainsQuery
	if msg := bindQuery(h.validate, r.URL.Query(), &q); msg != "" {
		respondError(w, http.StatusBadRequest, msg)
		return
	}

	mode := h.mode()
	start := time.Now()

	trains, err := h.agg.Trains(r.Context(), mode, aggregator.TrainQuery{
		Origin:      q.Origin,
		Destination: q.Destination,
		Date:        q.Date,
	})
	if err != nil {
		h.fail(w, r, "trains", "failed to fetch train data from TDX", err, mode,
			"origin", q.Origin, "destination", q.Destination, "date", q.Date)
		return
	}

	h.logger.Debug("trains served",
		"mode", mode.String(),
		"origin", q.Origin,
		"destination", q.Destination,
		"date", q.Date,
		"count", len(trains),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	h.respond(w, mode, dynamicCacheControl, trains)
}

func (h *TDXHandler) RoundTrip(w http.ResponseWriter, r *http.Request) {
	var q roundTripQuery
	if msg := bindQuery(h.validate, r.URL.Query(), &q); msg != "" {
		respondError(w, http.StatusBadRequest, msg)
		return
	}

	mode := h.mode()

	trip, err := h.agg.RoundTrip(r.Context(), mode, aggregator.RoundTripQuery{
		Origin:       q.Origin,
		Destination:  q.Destination,
		OutboundDate: q.OutboundDate,
		ReturnDate:   q.ReturnDate,
	})
	if err != nil {
		h.fail(w, r, "round_trip", "failed to fetch round trip data from TDX", err, mode,
			"origin", q.Origin, "destination", q.Destination,
			"outbound_date", q.OutboundDate, "return_date", q.ReturnDate)
		return
	}

	h.respond(w, mode, dynamicCacheControl, trip)
}

func (h *TDXHandler) TimetableByTrain(w http.ResponseWriter, r *http.Request) {
	var q timetableQuery
	if msg := bindQuery(h.validate, r.URL.Query(), &q); msg != "" {
		respondError(w, http.StatusBadRequest, msg)
		return
	}

	mode := h.mode()

	stops, err := h.agg.TimetableByTrain(r.Context(), mode, q.TrainNo)
	if err != nil {
		h.fail(w, r, "timetable_by_train", "failed to fetch timetable from TDX", err, mode,
			"train_no", q.TrainNo)
		return
	}

	h.respond(w, mode, dynamicCacheControl, stops)
}

func (h *TDXHandler) SeatStatus(w http.ResponseWriter, r *http.Request) {
	var q seatStatusQuery
	if msg := bindQuery(h.validate, r.URL.Query(), &q); msg != "" {
		respondError(w, http.StatusBadRequest, msg)
		return
	}

	mode := h.mode()

	status, err := h.agg.SeatStatusByStation(r.Context(), mode, q.StationID)
	if err != nil {
		h.fail(w, r, "seat_status", "failed to fetch seat status from TDX", err, mode,
			"station_id", q.StationID)
		return
	}

	h.respond(w, mode, dynamicCacheControl, status)
}

func (h *TDXHandler) respond(w http.ResponseWriter, mode aggregator.Mode, cacheControl string, data interface{}) {
	w.Header().Set("Cache-Control", cacheControl)
	w.Header().Set("X-Data-Mode", mode.String())
	respondJSON(w, http.StatusOK, data)
}

// fail logs err with its context and answers 502 with a fixed message.
// The error text itself never reaches the client.
func (h *TDXHandler) fail(w http.ResponseWriter, r *http.Request, op, message string, err error, mode aggregator.Mode, attrs ...any) {
	attrs = append(attrs,
		"op", op,
		"mode", mode.String(),
		"kind", errorKind(r.Context(), err),
		"request_id", middleware.RequestIDFrom(r.Context()),
		"error", err,
	)

	var upErr *tdx.UpstreamError
	if errors.As(err, &upErr) {
		attrs = append(attrs, "upstream_status", upErr.Status)
	}
	var authErr *auth.Error
	if errors.As(err, &authErr) {
		attrs = append(attrs, "auth_status", authErr.Status)
	}

	h.logger.Error("request failed", attrs...)
	respondError(w, http.StatusBadGateway, message)
}

func errorKind(ctx context.Context, err error) string {
	var (
		upErr   *tdx.UpstreamError
		authErr *auth.Error
	)
	switch {
	case errors.As(err, &authErr):
		return "auth"
	case errors.As(err, &upErr):
		return "upstream"
	case ctx.Err() != nil:
		return "canceled"
	default:
		return "transport"
	}
}
