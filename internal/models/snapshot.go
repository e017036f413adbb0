package models

// Snapshot is one consistent, timestamped bundle of totals and positions
// produced by one aggregator run. PositionsValue is always the local sum
// over Positions (see SumCurrentValue); a nil total means that fetcher
// failed, never that the value was zero.
type Snapshot struct {
	PositionsValue *float64   `json:"positionsValue"`
	CashValue      *float64   `json:"cashValue"`
	Positions      []Position `json:"positions"`
	UpdatedAt      int64      `json:"updatedAt"`
	Error          string     `json:"error,omitempty"`
}

// TotalValue returns the displayed total: the available subset summed, with
// missing components treated as zero for display purposes only.
func (s *Snapshot) TotalValue() float64 {
	return floatOrZero(s.PositionsValue) + floatOrZero(s.CashValue)
}
