package models

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
)

// RawPosition is the loosely-typed shape returned by the positions endpoint.
// It exists only at the fetch boundary; NormalizePosition converts it into
// the strict Position record immediately.
type RawPosition struct {
	Asset        FlexString `json:"asset"`
	Slug         FlexString `json:"slug"`
	Outcome      FlexString `json:"outcome"`
	ConditionID  FlexString `json:"conditionId"`
	Title        FlexString `json:"title"`
	EventSlug    FlexString `json:"eventSlug"`
	Icon         FlexString `json:"icon"`
	EndDate      FlexString `json:"endDate"`
	Size         FlexFloat  `json:"size"`
	AvgPrice     FlexFloat  `json:"avgPrice"`
	CurPrice     FlexFloat  `json:"curPrice"`
	InitialValue FlexFloat  `json:"initialValue"`
	CurrentValue FlexFloat  `json:"currentValue"`
	CashPnl      FlexFloat  `json:"cashPnl"`
	PercentPnl   FlexFloat  `json:"percentPnl"`
	RealizedPnl  FlexFloat  `json:"realizedPnl"`
}

// Position is one open market stake for a wallet. Numeric fields are nil
// when the upstream value was missing or malformed, never NaN or Inf.
type Position struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Outcome      string   `json:"outcome"`
	Slug         string   `json:"slug"`
	EventSlug    string   `json:"eventSlug"`
	Icon         string   `json:"icon"`
	EndDate      string   `json:"endDate"`
	Size         *float64 `json:"size"`
	AvgPrice     *float64 `json:"avgPrice"`
	CurPrice     *float64 `json:"curPrice"`
	InitialValue *float64 `json:"initialValue"`
	CurrentValue *float64 `json:"currentValue"`
	CashPnl      *float64 `json:"cashPnl"`
	PercentPnl   *float64 `json:"percentPnl"`
	RealizedPnl  *float64 `json:"realizedPnl"`
}

// NormalizePosition converts a raw record into a strict Position.
// The id prefers the asset id, then slug+outcome, then conditionId, then
// title. A position with none of those gets a random id and is treated as
// new on every refresh.
func NormalizePosition(raw RawPosition) Position {
	id := raw.Asset.String()
	if id == "" && raw.Slug.String() != "" && raw.Outcome.String() != "" {
		id = fmt.Sprintf("%s-%s", raw.Slug.String(), raw.Outcome.String())
	}
	if id == "" {
		id = raw.ConditionID.String()
	}
	if id == "" {
		id = raw.Title.String()
	}
	if id == "" {
		id = "pos-" + uuid.NewString()
	}

	title := raw.Title.String()
	if title == "" {
		title = raw.Slug.String()
	}
	if title == "" {
		title = "Unnamed market"
	}

	return Position{
		ID:           id,
		Title:        title,
		Outcome:      raw.Outcome.String(),
		Slug:         raw.Slug.String(),
		EventSlug:    raw.EventSlug.String(),
		Icon:         raw.Icon.String(),
		EndDate:      raw.EndDate.String(),
		Size:         raw.Size.Float(),
		AvgPrice:     raw.AvgPrice.Float(),
		CurPrice:     raw.CurPrice.Float(),
		InitialValue: raw.InitialValue.Float(),
		CurrentValue: raw.CurrentValue.Float(),
		CashPnl:      raw.CashPnl.Float(),
		PercentPnl:   raw.PercentPnl.Float(),
		RealizedPnl:  raw.RealizedPnl.Float(),
	}
}

// NormalizePositions maps every raw record into a Position. The returned
// slice fully replaces any previous set; positions are never merged.
func NormalizePositions(raws []RawPosition) []Position {
	positions := make([]Position, 0, len(raws))
	for _, raw := range raws {
		positions = append(positions, NormalizePosition(raw))
	}
	return positions
}

// SortPositions orders positions descending by current value, nil treated
// as zero. The sort is stable so equal-value positions keep payload order.
func SortPositions(positions []Position) {
	sort.SliceStable(positions, func(i, j int) bool {
		return floatOrZero(positions[i].CurrentValue) > floatOrZero(positions[j].CurrentValue)
	})
}

// SumCurrentValue returns the positions total: the sum of current values
// with nil treated as zero. The displayed total is always this sum, never a
// separately-reported API figure, so the list and the total cannot drift.
func SumCurrentValue(positions []Position) float64 {
	var sum float64
	for _, p := range positions {
		sum += floatOrZero(p.CurrentValue)
	}
	return sum
}

func floatOrZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
