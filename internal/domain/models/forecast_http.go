package models

// Requests for forecast HTTP endpoints. Defined in domain for consistency and reuse.

type ForecastRequest struct {
	Symbol   string  `query:"symbol" json:"symbol" validate:"required,ticker"`
	Horizon  int     `query:"horizon" json:"horizon" default:"12" validate:"gte=1,lte=500"`
	TF       string  `query:"tf" json:"tf" default:"5m" validate:"oneof=1m 5m 15m 1h 1d"`
	N        int     `query:"n" json:"n" validate:"gte=0,lte=5000"`
	RefPrice float64 `query:"ref_price" json:"ref_price" validate:"gte=0"`
	Anchor   string  `query:"anchor" json:"anchor"`
}

type BatchForecastRequest struct {
	Symbols []string `json:"symbols" validate:"required,min=1,max=50,dive,required,ticker"`
	Horizon int      `json:"horizon" default:"12" validate:"gte=1,lte=500"`
	TF      string   `json:"tf" default:"5m" validate:"oneof=1m 5m 15m 1h 1d"`
}

type BackfillHTTPRequest struct {
	Symbol  string `json:"symbol" validate:"required,ticker"`
	TF      string `json:"tf" default:"5m" validate:"oneof=1m 5m 15m 1h 1d"`
	Anchor  string `json:"anchor" validate:"required"`
	Horizon int    `json:"horizon" default:"12" validate:"gte=1,lte=500"`
}

type ScheduleRequest struct {
	Start   string `query:"start" json:"start"`
	Horizon int    `query:"horizon" json:"horizon" default:"12" validate:"gte=1,lte=2000"`
	TF      string `query:"tf" json:"tf" default:"5m" validate:"oneof=1m 5m 15m 1h 1d"`
}

type LatestForecastRequest struct {
	Symbol string `query:"symbol" json:"symbol" validate:"required,ticker"`
	TF     string `query:"tf" json:"tf" default:"5m" validate:"oneof=1m 5m 15m 1h 1d"`
}

type SymbolsRequest struct {
	TF string `query:"tf" json:"tf" default:"5m" validate:"oneof=1m 5m 15m 1h 1d"`
}
