package handler

import "net/http"

// DataPrefix mounts the data routes a second time for clients that call
// the /api/tdx paths.
const DataPrefix = "/api/tdx"

func RegisterRoutes(mux *http.ServeMux, tdxHandler *TDXHandler, health *HealthHandler, stats *StatsHandler) {
	for _, prefix := range []string{"", DataPrefix} {
		mux.HandleFunc("GET "+prefix+"/stations", tdxHandler.Stations)
		mux.HandleFunc("GET "+prefix+"/trains", tdxHandler.Trains)
		mux.HandleFunc("GET "+prefix+"/timetable-by-train", tdxHandler.TimetableByTrain)
		mux.HandleFunc("GET "+prefix+"/seat-status", tdxHandler.SeatStatus)
		mux.HandleFunc("GET "+prefix+"/round-trip", tdxHandler.RoundTrip)
	}

	mux.HandleFunc("GET /healthz", health.Healthz)
	mux.HandleFunc("GET /readyz", health.Readyz)
	mux.HandleFunc("GET /stats", stats.GetStats)
}
