// Package fixtures holds the data served in mock mode, when no TDX
// credentials are configured.
package fixtures

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"slices"

	"gopkg.in/yaml.v3"

	"thsrquery/internal/domain"
)

//go:embed tdx.yaml
var tdxYAML []byte

// Set is the decoded fixture data. Values are decoded through the same
// JSON types the live client produces so both paths share one shape.
type Set struct {
	stations   []domain.Station
	trains     []domain.EnrichedTrain
	timetables map[string][]domain.GeneralTimetableStop
	seatStatus domain.StationSeatStatus
}

type document struct {
	Stations   []domain.Station                         `json:"stations"`
	Trains     []domain.EnrichedTrain                   `json:"trains"`
	Timetables map[string][]domain.GeneralTimetableStop `json:"timetables"`
	SeatStatus domain.StationSeatStatus                 `json:"seatStatus"`
}

// Load decodes the embedded fixture file.
func Load() (*Set, error) {
	return Parse(tdxYAML)
}

// Parse decodes fixture YAML. The YAML tree is re-encoded as JSON and then
// decoded with encoding/json, which applies the enum validation of the
// domain types.
func Parse(data []byte) (*Set, error) {
	var tree interface{}
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("parsing fixtures: %w", err)
	}

	asJSON, err := json.Marshal(tree)
	if err != nil {
		return nil, fmt.Errorf("re-encoding fixtures: %w", err)
	}

	var doc document
	if err := json.Unmarshal(asJSON, &doc); err != nil {
		return nil, fmt.Errorf("decoding fixtures: %w", err)
	}

	return &Set{
		stations:   nonNil(doc.Stations),
		trains:     nonNil(doc.Trains),
		timetables: doc.Timetables,
		seatStatus: domain.StationSeatStatus{
			Northbound: nonNil(doc.SeatStatus.Northbound),
			Southbound: nonNil(doc.SeatStatus.Southbound),
		},
	}, nil
}

// MustLoad is Load for program start-up and tests.
func MustLoad() *Set {
	s, err := Load()
	if err != nil {
		panic(err)
	}
	return s
}

func (s *Set) Stations() []domain.Station {
	return slices.Clone(s.stations)
}

// Trains returns the enriched trains regardless of the queried pair.
func (s *Set) Trains() []domain.EnrichedTrain {
	return slices.Clone(s.trains)
}

// Timetable returns the raw stops of trainNo, or an empty slice.
func (s *Set) Timetable(trainNo string) []domain.GeneralTimetableStop {
	stops, ok := s.timetables[trainNo]
	if !ok {
		return []domain.GeneralTimetableStop{}
	}
	return slices.Clone(stops)
}

// SeatStatus returns the pre-split seat status regardless of station.
func (s *Set) SeatStatus() domain.StationSeatStatus {
	return domain.StationSeatStatus{
		Northbound: slices.Clone(s.seatStatus.Northbound),
		Southbound: slices.Clone(s.seatStatus.Southbound),
	}
}

func nonNil[T any](v []T) []T {
	if v == nil {
		return []T{}
	}
	return v
}
