package domain

import (
	"strings"
	"time"
)

// Source tags where a quote came from.
type Source string

const (
	SourceRealtime   Source = "mt5_realtime"
	SourceM1Fallback Source = "M1_fallback"
)

// Timeframe identifies a bar aggregation window on the provider side.
type Timeframe string

const (
	TimeframeM1 Timeframe = "M1"
	TimeframeD1 Timeframe = "D1"
)

// Tick is a point-in-time bid/ask/last snapshot from the terminal.
type Tick struct {
	Bid        float64
	Ask        float64
	Last       float64
	Volume     int64
	VolumeReal float64
	Flags      uint32
	Time       time.Time
}

// Bar is an OHLC aggregate. Bars returned by the provider are ordered oldest first.
type Bar struct {
	Time       time.Time
	Open       float64
	High       float64
	Low        float64
	Close      float64
	TickVolume int64
}

// Quote is the normalized price event produced once per symbol per tick.
type Quote struct {
	Symbol        string    `json:"symbol"`
	Bid           float64   `json:"bid"`
	Ask           float64   `json:"ask"`
	Last          float64   `json:"last"`
	Price         float64   `json:"price"`
	Volume        int64     `json:"volume"`
	VolumeReal    float64   `json:"volume_real"`
	Flags         uint32    `json:"flags"`
	Time          time.Time `json:"time"`
	Source        Source    `json:"source"`
	IsRealtime    bool      `json:"is_realtime"`
	Open          float64   `json:"open"`
	High          float64   `json:"high"`
	Low           float64   `json:"low"`
	PreviousClose float64   `json:"previous_close"`
}

// NewTickQuote builds a realtime quote. Price is last when traded, otherwise bid.
func NewTickQuote(symbol string, t Tick) Quote {
	price := t.Last
	if price <= 0 {
		price = t.Bid
	}
	return Quote{
		Symbol:     symbol,
		Bid:        t.Bid,
		Ask:        t.Ask,
		Last:       t.Last,
		Price:      price,
		Volume:     t.Volume,
		VolumeReal: t.VolumeReal,
		Flags:      t.Flags,
		Time:       t.Time,
		Source:     SourceRealtime,
		IsRealtime: true,
	}
}

// NewBarQuote synthesizes a degraded quote from a historical bar close.
func NewBarQuote(symbol string, b Bar, source Source) Quote {
	return Quote{
		Symbol:     symbol,
		Bid:        b.Close,
		Ask:        b.Close,
		Last:       b.Close,
		Price:      b.Close,
		Volume:     b.TickVolume,
		Time:       b.Time,
		Source:     source,
		IsRealtime: false,
	}
}

// ApplyDaily fills open/high/low and previous close from the last daily bars.
// With two bars the older close is the previous close; with one bar previous
// close stays unknown.
func (q *Quote) ApplyDaily(bars []Bar) {
	switch {
	case len(bars) >= 2:
		prev, today := bars[len(bars)-2], bars[len(bars)-1]
		q.PreviousClose = prev.Close
		q.Open, q.High, q.Low = today.Open, today.High, today.Low
	case len(bars) == 1:
		q.Open, q.High, q.Low = bars[0].Open, bars[0].High, bars[0].Low
	}
}

// PriceChange returns the absolute and percent change of last against the
// previous close. An unknown (<= 0) previous close falls back to open; when
// neither is known the change is zero.
func PriceChange(last, previousClose, open float64) (change, percent float64) {
	ref := previousClose
	if ref <= 0 {
		ref = open
	}
	if ref <= 0 || last <= 0 {
		return 0, 0
	}
	change = last - ref
	return change, change / ref * 100
}

// NormalizeSymbol trims and upper-cases an instrument identifier.
func NormalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// NormalizeSymbols normalizes, drops blanks and dedupes while keeping order.
func NormalizeSymbols(in []string) []string {
	out := make([]string, 0, len(in))
	seen := map[string]struct{}{}
	for _, s := range in {
		u := NormalizeSymbol(s)
		if u == "" {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}
