package model

import "time"

// MetricRow mirrors one asset_metrics row, keyed by symbol.
// Zero PreviousClose / PreviousCloseCorrected / Open mean "unknown" and are
// stored as NULL.
type MetricRow struct {
	Symbol                 string
	LastPrice              float64
	PreviousClose          float64
	PreviousCloseCorrected float64
	PriceChange            float64
	PriceChangePercent     float64
	Volume                 float64
	Open                   float64
	High                   float64
	Low                    float64
	UpdatedAt              time.Time
}

// Default instrument type for catalog rows created by the worker.
const DefaultTickerType = "STOCK"

// NullIfUnknown maps a non-positive price to a SQL NULL argument.
func NullIfUnknown(v float64) any {
	if v <= 0 {
		return nil
	}
	return v
}
