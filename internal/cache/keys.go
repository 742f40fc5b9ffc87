package cache

import "fmt"

const KeyStations = "stations"

func KeyTimetable(trainNo string) string {
	return fmt.Sprintf("timetable:%s", trainNo)
}
