package tdx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"thsrquery/internal/domain"
)

const DefaultBaseURL = "https://tdx.transportdata.tw/api/basic/v2/Rail/THSR"

// UpstreamError is returned when TDX answers a read call with a non-2xx
// status. Message never contains the upstream response body.
type UpstreamError struct {
	Status  int
	Message string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("tdx upstream error: %d %s", e.Status, e.Message)
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListStations returns every THSR station.
func (c *Client) ListStations(ctx context.Context, token string) ([]domain.Station, error) {
	raw, err := c.get(ctx, token, "stations", "Station")
	if err != nil {
		return nil, err
	}

	var stations []domain.Station
	if err := decodeList(raw, "Stations", &stations); err != nil {
		return nil, fmt.Errorf("decoding stations: %w", err)
	}
	return stations, nil
}

// ListDailyTrains returns the departures from originID to destID on date
// (YYYY-MM-DD), in the upstream's departure order.
func (c *Client) ListDailyTrains(ctx context.Context, token, originID, destID, date string) ([]domain.DailyTrain, error) {
	raw, err := c.get(ctx, token, "daily timetable",
		"DailyTimetable", "OD", originID, "to", destID, date)
	if err != nil {
		return nil, err
	}

	var trains []domain.DailyTrain
	if err := json.Unmarshal(raw, &trains); err != nil {
		return nil, fmt.Errorf("decoding daily timetable: %w", err)
	}
	return trains, nil
}

// ListSeatStatus returns the seat status of every train passing stationID,
// in both directions.
func (c *Client) ListSeatStatus(ctx context.Context, token, stationID string) ([]domain.SeatStatus, error) {
	raw, err := c.get(ctx, token, "seat status", "AvailableSeatStatusList", stationID)
	if err != nil {
		return nil, err
	}

	var seats []domain.SeatStatus
	if err := decodeList(raw, "AvailableSeats", &seats); err != nil {
		return nil, fmt.Errorf("decoding seat status: %w", err)
	}
	return seats, nil
}

type generalTimetableEntry struct {
	GeneralTimetable struct {
		GeneralTrainInfo struct {
			TrainNo   string           `json:"TrainNo"`
			Direction domain.Direction `json:"Direction"`
		} `json:"GeneralTrainInfo"`
		StopTimes []domain.GeneralTimetableStop `json:"StopTimes"`
	} `json:"GeneralTimetable"`
}

// ListGeneralTimetable returns the static stop list of trainNo. An unknown
// train yields an empty slice.
func (c *Client) ListGeneralTimetable(ctx context.Context, token, trainNo string) ([]domain.GeneralTimetableStop, error) {
	raw, err := c.get(ctx, token, "general timetable", "GeneralTimetable", "TrainNo", trainNo)
	if err != nil {
		return nil, err
	}

	var entries []generalTimetableEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("decoding general timetable: %w", err)
	}
	if len(entries) == 0 {
		return []domain.GeneralTimetableStop{}, nil
	}

	stops := entries[0].GeneralTimetable.StopTimes
	if stops == nil {
		stops = []domain.GeneralTimetableStop{}
	}
	return stops, nil
}

func (c *Client) get(ctx context.Context, token, op string, segments ...string) (json.RawMessage, error) {
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(s)
	}
	reqURL := c.baseURL + "/" + strings.Join(escaped, "/") + "?%24format=JSON"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating %s request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing %s request: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &UpstreamError{
			Status:  resp.StatusCode,
			Message: op + ": " + http.StatusText(resp.StatusCode),
		}
	}

	var raw json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decoding %s response: %w", op, err)
	}
	return raw, nil
}

// decodeList accepts either a bare JSON array or an object carrying the
// array under wrapperKey.
func decodeList(raw json.RawMessage, wrapperKey string, dest interface{}) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return json.Unmarshal(trimmed, dest)
	}

	var wrapper map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &wrapper); err != nil {
		return err
	}
	list, ok := wrapper[wrapperKey]
	if !ok {
		return fmt.Errorf("response has no %q field", wrapperKey)
	}
	return json.Unmarshal(list, dest)
}
