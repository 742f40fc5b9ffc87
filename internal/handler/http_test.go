package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync/atomic"
	"testing"

	"thsrquery/internal/aggregator"
	"thsrquery/internal/auth"
	"thsrquery/internal/domain"
	"thsrquery/internal/fixtures"
	"thsrquery/internal/middleware"
	"thsrquery/pkg/tdx"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubTokens struct {
	err error
}

func (s *stubTokens) Token(ctx context.Context, creds auth.Credentials) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return "token", nil
}

func (s *stubTokens) Invalidate() {}

// liveProvider serves one train of each shape. Every call fails with err
// when it is set.
type liveProvider struct {
	calls atomic.Int64
	err   error
}

var (
	nangang = domain.LocalizedName{ZhTw: "南港", En: "Nangang"}
	zuoying = domain.LocalizedName{ZhTw: "左營", En: "Zuoying"}
)

func (p *liveProvider) ListStations(ctx context.Context, token string) ([]domain.Station, error) {
	p.calls.Add(1)
	if p.err != nil {
		return nil, p.err
	}
	return []domain.Station{{StationUID: "THSR-1", StationID: "1", StationName: nangang}}, nil
}

func (p *liveProvider) ListDailyTrains(ctx context.Context, token, originID, destID, date string) ([]domain.DailyTrain, error) {
	p.calls.Add(1)
	if p.err != nil {
		return nil, p.err
	}
	return []domain.DailyTrain{{
		TrainDate:           date,
		DailyTrainInfo:      domain.DailyTrainInfo{TrainNo: "0643"},
		OriginStopTime:      domain.StopTime{StationID: originID, DepartureTime: "18:30"},
		DestinationStopTime: domain.StopTime{StationID: destID, ArrivalTime: "20:15"},
	}}, nil
}

func (p *liveProvider) ListSeatStatus(ctx context.Context, token, stationID string) ([]domain.SeatStatus, error) {
	p.calls.Add(1)
	if p.err != nil {
		return nil, p.err
	}
	return []domain.SeatStatus{
		{
			TrainNo:   "0643",
			Direction: domain.DirectionSouthbound,
			StopStations: []domain.SeatStopStation{
				{StationID: stationID, StationName: nangang, StandardSeatStatus: domain.SeatLimited, BusinessSeatStatus: domain.SeatAvailable},
			},
		},
		{
			TrainNo:   "0644",
			Direction: domain.DirectionNorthbound,
			StopStations: []domain.SeatStopStation{
				{StationID: stationID, StationName: zuoying, StandardSeatStatus: domain.SeatSoldOut, BusinessSeatStatus: domain.SeatLimited},
			},
		},
	}, nil
}

func (p *liveProvider) ListGeneralTimetable(ctx context.Context, token, trainNo string) ([]domain.GeneralTimetableStop, error) {
	p.calls.Add(1)
	if p.err != nil {
		return nil, p.err
	}
	if trainNo != "0643" {
		return []domain.GeneralTimetableStop{}, nil
	}
	return []domain.GeneralTimetableStop{
		{StopSequence: 1, StationID: "1", StationName: nangang, DepartureTime: "18:30"},
		{StopSequence: 2, StationID: "12", StationName: zuoying, ArrivalTime: "20:15"},
	}, nil
}

func mockCredentials() (auth.Credentials, bool) { return auth.Credentials{}, false }

func liveCredentials() (auth.Credentials, bool) {
	return auth.Credentials{ClientID: "client", ClientSecret: "secret"}, true
}

func newMux(provider aggregator.Provider, tokens aggregator.TokenSource, creds CredentialLookup) *http.ServeMux {
	logger := discardLogger()
	svc := aggregator.New(provider, tokens, nil, fixtures.MustLoad(), aggregator.DefaultOptions(), logger)

	mux := http.NewServeMux()
	RegisterRoutes(mux,
		NewTDXHandler(svc, creds, logger),
		NewHealthHandler(creds, "memory"),
		NewStatsHandler(NewStats(), svc.Stats, func() auth.Stats { return auth.Stats{} }, func() middleware.Stats { return middleware.Stats{} }),
	)
	return mux
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body errorResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body.Error
}

func TestTrainsMockEndToEnd(t *testing.T) {
	p := &liveProvider{}
	mux := newMux(p, &stubTokens{}, mockCredentials)

	rec := get(t, mux, "/trains?origin=1&destination=12&date=2026-02-19")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Data-Mode") != "mock" {
		t.Errorf("X-Data-Mode = %q", rec.Header().Get("X-Data-Mode"))
	}
	if rec.Header().Get("Cache-Control") != "no-store" {
		t.Errorf("Cache-Control = %q", rec.Header().Get("Cache-Control"))
	}

	raw := rec.Body.String()
	if !strings.Contains(raw, `"businessSeat":null`) {
		t.Error("missing business seat should encode as null")
	}

	var trains []domain.EnrichedTrain
	if err := json.Unmarshal([]byte(raw), &trains); err != nil {
		t.Fatalf("decode: %v", err)
	}

	want := []string{"0101", "0103", "0105", "0107", "0109", "0111", "0113", "0115"}
	got := make([]string, 0, len(trains))
	for _, tr := range trains {
		got = append(got, tr.TrainNo)
	}
	if !slices.Equal(got, want) {
		t.Errorf("train order = %v, want %v", got, want)
	}

	if p.calls.Load() != 0 {
		t.Error("mock request reached the provider")
	}
}

func TestMissingParameters(t *testing.T) {
	p := &liveProvider{}
	mux := newMux(p, &stubTokens{}, liveCredentials)

	tests := []struct {
		target string
		want   []string
	}{
		{"/trains", []string{"origin", "destination", "date"}},
		{"/trains?origin=1&destination=12", []string{"date"}},
		{"/trains?origin=1&date=2026-02-19", []string{"destination"}},
		{"/timetable-by-train", []string{"trainNo"}},
		{"/timetable-by-train?trainNo=%20%20", []string{"trainNo"}},
		{"/seat-status", []string{"stationId"}},
		{"/round-trip?origin=1&destination=12&outboundDate=2026-02-19", []string{"returnDate"}},
		{"/api/tdx/trains?destination=12&date=2026-02-19", []string{"origin"}},
	}

	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			rec := get(t, mux, tt.target)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status %d", rec.Code)
			}
			msg := decodeError(t, rec)
			if !strings.HasPrefix(msg, "missing required parameter") {
				t.Errorf("message %q", msg)
			}
			for _, name := range tt.want {
				if !strings.Contains(msg, name) {
					t.Errorf("message %q does not name %s", msg, name)
				}
			}
		})
	}

	if p.calls.Load() != 0 {
		t.Errorf("invalid requests made %d provider calls", p.calls.Load())
	}
}

func TestInvalidDate(t *testing.T) {
	p := &liveProvider{}
	mux := newMux(p, &stubTokens{}, liveCredentials)

	for _, target := range []string{
		"/trains?origin=1&destination=12&date=2026/02/19",
		"/trains?origin=1&destination=12&date=2026-02-30",
		"/round-trip?origin=1&destination=12&outboundDate=2026-02-19&returnDate=tomorrow",
	} {
		rec := get(t, mux, target)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status %d", target, rec.Code)
			continue
		}
		if msg := decodeError(t, rec); !strings.Contains(msg, "must be YYYY-MM-DD") {
			t.Errorf("%s: message %q", target, msg)
		}
	}

	if p.calls.Load() != 0 {
		t.Error("invalid dates reached the provider")
	}
}

func TestUnknownTrainIsEmpty(t *testing.T) {
	for name, creds := range map[string]CredentialLookup{"mock": mockCredentials, "live": liveCredentials} {
		t.Run(name, func(t *testing.T) {
			mux := newMux(&liveProvider{}, &stubTokens{}, creds)

			rec := get(t, mux, "/timetable-by-train?trainNo=9999")
			if rec.Code != http.StatusOK {
				t.Fatalf("status %d", rec.Code)
			}
			if body := strings.TrimSpace(rec.Body.String()); body != "[]" {
				t.Errorf("body = %s, want []", body)
			}
		})
	}
}

func TestFailuresMapToBadGateway(t *testing.T) {
	upstream := &tdx.UpstreamError{Status: http.StatusInternalServerError, Message: "daily timetable: secret upstream detail"}
	authFail := &auth.Error{Status: http.StatusUnauthorized, Message: "invalid_client"}

	tests := []struct {
		name    string
		target  string
		tokens  *stubTokens
		perr    error
		message string
	}{
		{"stations upstream", "/stations", &stubTokens{}, upstream, "failed to fetch station data"},
		{"trains upstream", "/trains?origin=1&destination=12&date=2026-02-19", &stubTokens{}, upstream, "failed to fetch train data from TDX"},
		{"trains auth", "/trains?origin=1&destination=12&date=2026-02-19", &stubTokens{err: authFail}, nil, "failed to fetch train data from TDX"},
		{"timetable upstream", "/timetable-by-train?trainNo=0643", &stubTokens{}, upstream, "failed to fetch timetable from TDX"},
		{"seat status auth", "/seat-status?stationId=1", &stubTokens{err: authFail}, nil, "failed to fetch seat status from TDX"},
		{"round trip upstream", "/round-trip?origin=1&destination=12&outboundDate=2026-02-19&returnDate=2026-02-20", &stubTokens{}, upstream, "failed to fetch round trip data from TDX"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := newMux(&liveProvider{err: tt.perr}, tt.tokens, liveCredentials)

			rec := get(t, mux, tt.target)
			if rec.Code != http.StatusBadGateway {
				t.Fatalf("status %d", rec.Code)
			}
			msg := decodeError(t, rec)
			if msg != tt.message {
				t.Errorf("message %q, want %q", msg, tt.message)
			}
			if strings.Contains(rec.Body.String(), "secret") || strings.Contains(rec.Body.String(), "invalid_client") {
				t.Error("error detail leaked to the client")
			}
		})
	}
}

func TestStationsCacheControl(t *testing.T) {
	mux := newMux(&liveProvider{}, &stubTokens{}, mockCredentials)

	rec := get(t, mux, "/api/tdx/stations")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	if got := rec.Header().Get("Cache-Control"); got != "public, max-age=86400" {
		t.Errorf("Cache-Control = %q", got)
	}

	var stations []domain.Station
	if err := json.NewDecoder(rec.Body).Decode(&stations); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(stations) != 12 {
		t.Errorf("expected 12 stations, got %d", len(stations))
	}
}

// fieldSet returns the keys of the first object found in body, descending
// into arrays and into field when it is set.
func fieldSet(t *testing.T, body []byte, field string) []string {
	t.Helper()

	var v interface{}
	if err := json.Unmarshal(body, &v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if field != "" {
		v = v.(map[string]interface{})[field]
	}
	if arr, ok := v.([]interface{}); ok {
		if len(arr) == 0 {
			t.Fatal("empty array")
		}
		v = arr[0]
	}

	obj, ok := v.(map[string]interface{})
	if !ok {
		t.Fatalf("expected object, got %T", v)
	}
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func TestMockAndLiveShareShape(t *testing.T) {
	mockMux := newMux(&liveProvider{}, &stubTokens{}, mockCredentials)
	liveMux := newMux(&liveProvider{}, &stubTokens{}, liveCredentials)

	tests := []struct {
		target string
		field  string
	}{
		{"/stations", ""},
		{"/trains?origin=1&destination=12&date=2026-02-19", ""},
		{"/timetable-by-train?trainNo=0101", ""},
		{"/seat-status?stationId=1", ""},
		{"/seat-status?stationId=1", "northbound"},
		{"/seat-status?stationId=1", "southbound"},
		{"/round-trip?origin=1&destination=12&outboundDate=2026-02-19&returnDate=2026-02-20", ""},
		{"/round-trip?origin=1&destination=12&outboundDate=2026-02-19&returnDate=2026-02-20", "return"},
	}

	for _, tt := range tests {
		t.Run(tt.target+"#"+tt.field, func(t *testing.T) {
			target := tt.target
			mockRec := get(t, mockMux, target)

			// The live stub only knows train 0643.
			if strings.HasPrefix(target, "/timetable-by-train") {
				target = "/timetable-by-train?trainNo=0643"
			}
			liveRec := get(t, liveMux, target)

			if mockRec.Code != http.StatusOK || liveRec.Code != http.StatusOK {
				t.Fatalf("status mock=%d live=%d", mockRec.Code, liveRec.Code)
			}

			mockKeys := fieldSet(t, mockRec.Body.Bytes(), tt.field)
			liveKeys := fieldSet(t, liveRec.Body.Bytes(), tt.field)
			if !slices.Equal(mockKeys, liveKeys) {
				t.Errorf("field sets differ:\nmock %v\nlive %v", mockKeys, liveKeys)
			}
		})
	}
}

func TestLiveTrainsJoin(t *testing.T) {
	mux := newMux(&liveProvider{}, &stubTokens{}, liveCredentials)

	rec := get(t, mux, "/trains?origin=1&destination=12&date=2026-02-19")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	if rec.Header().Get("X-Data-Mode") != "live" {
		t.Errorf("X-Data-Mode = %q", rec.Header().Get("X-Data-Mode"))
	}

	var trains []domain.EnrichedTrain
	if err := json.NewDecoder(rec.Body).Decode(&trains); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(trains) != 1 || trains[0].TrainNo != "0643" {
		t.Fatalf("unexpected trains %+v", trains)
	}
	if trains[0].StandardSeat == nil || *trains[0].StandardSeat != domain.SeatLimited {
		t.Errorf("standard seat = %v", trains[0].StandardSeat)
	}
}

func TestHealthEndpoints(t *testing.T) {
	mux := newMux(&liveProvider{}, &stubTokens{}, mockCredentials)

	if rec := get(t, mux, "/healthz"); rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Errorf("healthz = %d %q", rec.Code, rec.Body.String())
	}

	rec := get(t, mux, "/readyz")
	var ready ReadyResponse
	if err := json.NewDecoder(rec.Body).Decode(&ready); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !ready.Ready || ready.Mode != "mock" || ready.CacheBackend != "memory" {
		t.Errorf("unexpected readyz %+v", ready)
	}
}

func TestStatsEndpoint(t *testing.T) {
	mux := newMux(&liveProvider{}, &stubTokens{}, liveCredentials)
	get(t, mux, "/seat-status?stationId=1")

	rec := get(t, mux, "/stats")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}

	var stats StatsResponse
	if err := json.NewDecoder(rec.Body).Decode(&stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stats.Upstream.UpstreamCalls != 1 {
		t.Errorf("upstream calls = %d", stats.Upstream.UpstreamCalls)
	}
	if stats.Server.Version == "" || stats.Go.GoVersion == "" {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestBindQueryTrims(t *testing.T) {
	var q trainsQuery
	values := map[string][]string{
		"origin":      {" 1 "},
		"destination": {"12"},
		"date":        {"2026-02-19"},
	}
	if msg := bindQuery(newValidator(), values, &q); msg != "" {
		t.Fatalf("unexpected message %q", msg)
	}
	if q.Origin != "1" {
		t.Errorf("origin = %q", q.Origin)
	}
}
