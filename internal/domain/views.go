package domain

// EnrichedTrain is a timetable leg joined with the seat availability of the
// leg's origin stop. Seat fields are nil when the train has no seat record
// or the record has no entry for the origin station.
type EnrichedTrain struct {
	TrainNo       string    `json:"trainNo"`
	DepartureTime string    `json:"departureTime"`
	ArrivalTime   string    `json:"arrivalTime"`
	StandardSeat  *SeatCode `json:"standardSeat"`
	BusinessSeat  *SeatCode `json:"businessSeat"`
}

// TrainStop is a normalized GeneralTimetableStop.
type TrainStop struct {
	Sequence      int    `json:"sequence"`
	StationID     string `json:"stationId"`
	StationName   string `json:"stationName"`
	ArrivalTime   string `json:"arrivalTime"`
	DepartureTime string `json:"departureTime"`
}

// StationSeatStatus splits a station's seat-status list by direction.
type StationSeatStatus struct {
	Northbound []SeatStatus `json:"northbound"`
	Southbound []SeatStatus `json:"southbound"`
}

// RoundTrip holds the enriched trains of both legs of a return journey.
type RoundTrip struct {
	Outbound []EnrichedTrain `json:"outbound"`
	Return   []EnrichedTrain `json:"return"`
}
