package models

import "time"

// BatchForecast is a consolidated view of forecasts for several symbols.
// Note: no transport (json/http) concerns here.
type BatchForecast struct {
	Timeframe string
	Horizon   int
	Timestamp time.Time
	Forecasts map[string]*Forecast
	Errors    map[string]string
}
