package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDeriveRatios(t *testing.T) {
	r := Derive(Counters{Impressions: 10000, Clicks: 250, Spend: 500, Conversions: 10, Revenue: 1500})
	assert.InDelta(t, 2.5, r.CTR, 1e-9)
	assert.InDelta(t, 2.0, r.CPC, 1e-9)
	assert.InDelta(t, 50.0, r.CPM, 1e-9)
	assert.InDelta(t, 3.0, r.ROAS, 1e-9)
}

func TestDeriveZeroDenominators(t *testing.T) {
	assert.Equal(t, Ratios{}, Derive(Counters{}))
	assert.Equal(t, Ratios{}, Derive(Counters{Revenue: 100}))
}

// Averaging per-row CTRs overweights small rows; sums must be derived once.
func TestSumThenDerive(t *testing.T) {
	rows := []Counters{
		{Impressions: 10000, Clicks: 500},
		{Impressions: 100, Clicks: 50},
	}
	var sum Counters
	var naive float64
	for _, r := range rows {
		sum = sum.Add(r)
		naive += Derive(r).CTR
	}
	naive /= float64(len(rows))

	assert.InDelta(t, 5.4455, Derive(sum).CTR, 1e-4)
	assert.InDelta(t, 27.5, naive, 1e-9)
}

func TestNewMetricDataClampsAndTruncates(t *testing.T) {
	md := NewMetricData(time.Date(2024, 1, 2, 15, 4, 0, 0, time.UTC), Counters{Impressions: 200, Clicks: 10, Spend: -3})
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), md.Date)
	assert.Zero(t, md.Spend)
	assert.InDelta(t, 5.0, md.CTR, 1e-9)
	assert.Zero(t, md.CPC)
}
