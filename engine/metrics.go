package engine

import "github.com/paynet/simcash/ids"

// TickSummary is returned by every call to Tick.
type TickSummary struct {
	Tick            ids.Tick
	NumArrivals     int
	NumSettlements  int
	NumLSMReleases  int
	TotalCostThisTick int64
}

// SystemMetrics aggregates whole-run totals, reconstructed from the
// event log so they agree with what a replay consumer would compute
// independently (the replay-identity property).
type SystemMetrics struct {
	TotalArrivals    int
	TotalSettlements int
	SettlementRate   float64
	TotalCostAccrued int64
}
