package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Direction is the running direction of a THSR train as reported by TDX.
type Direction int

const (
	DirectionSouthbound Direction = 0
	DirectionNorthbound Direction = 1
)

func (d Direction) String() string {
	switch d {
	case DirectionSouthbound:
		return "southbound"
	case DirectionNorthbound:
		return "northbound"
	default:
		return "unknown"
	}
}

// Valid reports whether d is one of the two running directions.
func (d Direction) Valid() bool {
	switch d {
	case DirectionSouthbound, DirectionNorthbound:
		return true
	default:
		return false
	}
}

func (d *Direction) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return errors.New("direction: missing value")
	}
	var v int
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("direction: %w", err)
	}
	dir := Direction(v)
	if !dir.Valid() {
		return fmt.Errorf("direction: unknown value %d", v)
	}
	*d = dir
	return nil
}

// SeatCode is the availability of one seat class on one train leg.
type SeatCode string

const (
	SeatAvailable SeatCode = "O"
	SeatLimited   SeatCode = "L"
	SeatSoldOut   SeatCode = "X"
)

func (c SeatCode) String() string {
	switch c {
	case SeatAvailable:
		return "available"
	case SeatLimited:
		return "limited"
	case SeatSoldOut:
		return "sold_out"
	default:
		return "unknown"
	}
}

func (c SeatCode) Valid() bool {
	switch c {
	case SeatAvailable, SeatLimited, SeatSoldOut:
		return true
	default:
		return false
	}
}

// UnmarshalJSON decodes null and "" to the zero SeatCode, which callers
// report as no code. Any other value outside O, L and X is an error.
func (c *SeatCode) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*c = ""
		return nil
	}
	var v string
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("seat code: %w", err)
	}
	if v == "" {
		*c = ""
		return nil
	}
	code := SeatCode(v)
	if !code.Valid() {
		return fmt.Errorf("seat code: unknown value %q", v)
	}
	*c = code
	return nil
}
