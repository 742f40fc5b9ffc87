package domain

// Field names on the upstream types mirror the TDX THSR v2 payloads so they
// can be passed through to clients unmodified.

// LocalizedName carries the Chinese and English display names of a station.
type LocalizedName struct {
	ZhTw string `json:"Zh_tw"`
	En   string `json:"En"`
}

type Position struct {
	PositionLat float64 `json:"PositionLat"`
	PositionLon float64 `json:"PositionLon"`
}

// Station is one THSR station. StationID is opaque: "1".."12" today, but
// callers must not rely on it being numeric or contiguous.
type Station struct {
	StationUID         string        `json:"StationUID"`
	StationID          string        `json:"StationID"`
	StationName        LocalizedName `json:"StationName"`
	StationPosition    Position      `json:"StationPosition"`
	StationAddress     string        `json:"StationAddress"`
	BikeAllowOnHoliday bool          `json:"BikeAllowOnHoliday"`
	SrcUpdateTime      string        `json:"SrcUpdateTime"`
	UpdateTime         string        `json:"UpdateTime"`
	VersionID          int           `json:"VersionID"`
}

// DailyTrainInfo identifies the train running a DailyTrain leg.
type DailyTrainInfo struct {
	TrainNo             string        `json:"TrainNo"`
	Direction           Direction     `json:"Direction"`
	StartingStationID   string        `json:"StartingStationID"`
	StartingStationName LocalizedName `json:"StartingStationName"`
	EndingStationID     string        `json:"EndingStationID"`
	EndingStationName   LocalizedName `json:"EndingStationName"`
	Note                LocalizedName `json:"Note"`
}

// StopTime is a train's call at one station. Times are "HH:MM".
type StopTime struct {
	StopSequence  int           `json:"StopSequence"`
	StationID     string        `json:"StationID"`
	StationName   LocalizedName `json:"StationName"`
	ArrivalTime   string        `json:"ArrivalTime"`
	DepartureTime string        `json:"DepartureTime"`
}

// DailyTrain is one scheduled departure between an origin and a
// destination on a given date.
type DailyTrain struct {
	TrainDate           string         `json:"TrainDate"`
	DailyTrainInfo      DailyTrainInfo `json:"DailyTrainInfo"`
	OriginStopTime      StopTime       `json:"OriginStopTime"`
	DestinationStopTime StopTime       `json:"DestinationStopTime"`
	UpdateTime          string         `json:"UpdateTime"`
	VersionID           int            `json:"VersionID"`
}

// SeatStopStation is the seat availability of a train for the leg that
// starts at StationID.
type SeatStopStation struct {
	StopSequence       int           `json:"StopSequence"`
	StationID          string        `json:"StationID"`
	StationName        LocalizedName `json:"StationName"`
	NextStationID      string        `json:"NextStationID"`
	StandardSeatStatus SeatCode      `json:"StandardSeatStatus"`
	BusinessSeatStatus SeatCode      `json:"BusinessSeatStatus"`
}

// SeatStatus is the real-time seat availability of one train across all
// of its remaining stops, as listed for a queried station.
type SeatStatus struct {
	TrainNo             string            `json:"TrainNo"`
	Direction           Direction         `json:"Direction"`
	StartingStationID   string            `json:"StartingStationID"`
	StartingStationName LocalizedName     `json:"StartingStationName"`
	EndingStationID     string            `json:"EndingStationID"`
	EndingStationName   LocalizedName     `json:"EndingStationName"`
	StopStations        []SeatStopStation `json:"StopStations"`
}

// StopAt returns the stop entry for stationID, if the train lists one.
func (s *SeatStatus) StopAt(stationID string) (SeatStopStation, bool) {
	for _, stop := range s.StopStations {
		if stop.StationID == stationID {
			return stop, true
		}
	}
	return SeatStopStation{}, false
}

// GeneralTimetableStop is one stop of a train's static schedule. The first
// stop has an empty ArrivalTime and the last an empty DepartureTime.
type GeneralTimetableStop struct {
	StopSequence  int           `json:"StopSequence"`
	StationID     string        `json:"StationID"`
	StationName   LocalizedName `json:"StationName"`
	ArrivalTime   string        `json:"ArrivalTime"`
	DepartureTime string        `json:"DepartureTime"`
}
