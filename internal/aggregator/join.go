package aggregator

import (
	"fmt"

	"thsrquery/internal/domain"
)

// JoinSeatStatus enriches each timetable leg with the seat availability
// listed for originID. The timetable drives the join: seat records for
// trains absent from trains are ignored, and the output keeps the
// timetable's order. A leg gets seat codes only when its train has a seat
// record and that record has a stop at originID.
func JoinSeatStatus(trains []domain.DailyTrain, seats []domain.SeatStatus, originID string) []domain.EnrichedTrain {
	byTrain := make(map[string]*domain.SeatStatus, len(seats))
	for i := range seats {
		byTrain[seats[i].TrainNo] = &seats[i]
	}

	enriched := make([]domain.EnrichedTrain, 0, len(trains))
	for _, t := range trains {
		e := domain.EnrichedTrain{
			TrainNo:       t.DailyTrainInfo.TrainNo,
			DepartureTime: t.OriginStopTime.DepartureTime,
			ArrivalTime:   t.DestinationStopTime.ArrivalTime,
		}

		if record, ok := byTrain[e.TrainNo]; ok {
			if stop, ok := record.StopAt(originID); ok {
				e.StandardSeat = seatCode(stop.StandardSeatStatus)
				e.BusinessSeat = seatCode(stop.BusinessSeatStatus)
			}
		}

		enriched = append(enriched, e)
	}
	return enriched
}

// seatCode returns nil for a code the upstream left empty.
func seatCode(c domain.SeatCode) *domain.SeatCode {
	if !c.Valid() {
		return nil
	}
	return &c
}

// PartitionByDirection splits records into northbound and southbound,
// preserving their relative order. Both partitions are non-nil.
func PartitionByDirection(records []domain.SeatStatus) (domain.StationSeatStatus, error) {
	out := domain.StationSeatStatus{
		Northbound: []domain.SeatStatus{},
		Southbound: []domain.SeatStatus{},
	}

	for _, r := range records {
		switch r.Direction {
		case domain.DirectionNorthbound:
			out.Northbound = append(out.Northbound, r)
		case domain.DirectionSouthbound:
			out.Southbound = append(out.Southbound, r)
		default:
			return domain.StationSeatStatus{}, fmt.Errorf("train %s has unknown direction %d", r.TrainNo, int(r.Direction))
		}
	}
	return out, nil
}

// NormalizeStops maps raw timetable stops to the client shape. Sequence
// numbers and time strings pass through untouched, including the empty
// arrival of the first stop and the empty departure of the last.
func NormalizeStops(raw []domain.GeneralTimetableStop) []domain.TrainStop {
	stops := make([]domain.TrainStop, 0, len(raw))
	for _, s := range raw {
		stops = append(stops, domain.TrainStop{
			Sequence:      s.StopSequence,
			StationID:     s.StationID,
			StationName:   s.StationName.ZhTw,
			ArrivalTime:   s.ArrivalTime,
			DepartureTime: s.DepartureTime,
		})
	}
	return stops
}
