package models

import "time"

// Counters are the raw additive fields of a metric row. Anything derived
// from them must be computed from sums, never averaged across rows.
type Counters struct {
	Impressions int64   `json:"impressions"`
	Clicks      int64   `json:"clicks"`
	Spend       float64 `json:"spend"`
	Conversions float64 `json:"conversions"`
	Revenue     float64 `json:"revenue"`
}

func (c Counters) Add(o Counters) Counters {
	return Counters{
		Impressions: c.Impressions + o.Impressions,
		Clicks:      c.Clicks + o.Clicks,
		Spend:       c.Spend + o.Spend,
		Conversions: c.Conversions + o.Conversions,
		Revenue:     c.Revenue + o.Revenue,
	}
}

// Clamp drops negative values some platforms report for refunded spend.
func (c Counters) Clamp() Counters {
	return Counters{
		Impressions: max0(c.Impressions),
		Clicks:      max0(c.Clicks),
		Spend:       maxf(c.Spend),
		Conversions: maxf(c.Conversions),
		Revenue:     maxf(c.Revenue),
	}
}

// Ratios are derived from Counters. CTR is a percentage.
type Ratios struct {
	CTR  float64 `json:"ctr"`
	CPC  float64 `json:"cpc"`
	CPM  float64 `json:"cpm"`
	ROAS float64 `json:"roas"`
}

func Derive(c Counters) Ratios {
	return Ratios{
		CTR:  safeDivF(float64(c.Clicks), float64(c.Impressions)) * 100,
		CPC:  safeDivF(c.Spend, float64(c.Clicks)),
		CPM:  safeDivF(c.Spend, float64(c.Impressions)) * 1000,
		ROAS: safeDivF(c.Revenue, c.Spend),
	}
}

// NewMetricData builds an adapter row with ratios recomputed from counters.
func NewMetricData(day time.Time, c Counters) MetricData {
	c = c.Clamp()
	return MetricData{Date: DayUTC(day), Counters: c, Ratios: Derive(c)}
}

func safeDivF(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return a / b
}

func max0(i int64) int64 {
	if i < 0 {
		return 0
	}
	return i
}

func maxf(f float64) float64 {
	if f < 0 {
		return 0
	}
	return f
}
