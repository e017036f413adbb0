package models

import (
	"sort"
	"strings"

	"github.com/google/uuid"
)

// netPositionTolerance is the epsilon below which a per-outcome net size is
// considered flat when deriving HasActivePosition.
const netPositionTolerance = 1e-6

// RawTrade is the loosely-typed shape returned by the trades endpoint.
// Market status arrives in several overlapping flag and string fields; the
// closed heuristic folds them into a single boolean.
type RawTrade struct {
	TransactionHash FlexString `json:"transactionHash"`
	Asset           FlexString `json:"asset"`
	Title           FlexString `json:"title"`
	Slug            FlexString `json:"slug"`
	EventSlug       FlexString `json:"eventSlug"`
	Icon            FlexString `json:"icon"`
	Outcome         FlexString `json:"outcome"`
	Side            FlexString `json:"side"`
	Size            FlexFloat  `json:"size"`
	Price           FlexFloat  `json:"price"`
	Timestamp       FlexFloat  `json:"timestamp"`
	Closed          FlexBool   `json:"closed"`
	MarketClosed    FlexBool   `json:"marketClosed"`
	Resolved        FlexBool   `json:"resolved"`
	Status          FlexString `json:"status"`
	MarketStatus    FlexString `json:"marketStatus"`
	State           FlexString `json:"state"`
}

// Trade is one execution record for a wallet
type Trade struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Outcome   string   `json:"outcome"`
	Slug      string   `json:"slug"`
	EventSlug string   `json:"eventSlug"`
	Icon      string   `json:"icon"`
	Side      string   `json:"side"`
	Size      *float64 `json:"size"`
	Price     *float64 `json:"price"`
	Timestamp int64    `json:"timestamp"`
	IsClosed  bool     `json:"isClosed"`
}

// TradeGroup is one market's worth of trades, newest first
type TradeGroup struct {
	Key               string  `json:"key"`
	Title             string  `json:"title"`
	Slug              string  `json:"slug"`
	EventSlug         string  `json:"eventSlug"`
	Icon              string  `json:"icon"`
	LatestTimestamp   int64   `json:"latestTimestamp"`
	Closed            bool    `json:"closed"`
	HasActivePosition bool    `json:"hasActivePosition"`
	Trades            []Trade `json:"trades"`
}

// marketClosed folds the loosely-overlapping status fields of a raw trade
// into a single best-effort flag. The heuristics live here, isolated from
// grouping and aggregation, so they can be revised in one place.
func marketClosed(raw RawTrade) bool {
	if raw.Closed.Bool() || raw.MarketClosed.Bool() || raw.Resolved.Bool() {
		return true
	}

	for _, status := range []string{raw.Status.String(), raw.MarketStatus.String(), raw.State.String()} {
		switch strings.ToLower(strings.TrimSpace(status)) {
		case "closed", "resolved", "finalized", "settled":
			return true
		}
	}
	return false
}

// NormalizeTrade converts a raw record into a strict Trade. The source
// reports timestamps in seconds; stored timestamps are milliseconds.
func NormalizeTrade(raw RawTrade) Trade {
	id := raw.TransactionHash.String()
	if id == "" {
		id = raw.Asset.String()
	}
	if id == "" {
		id = "trade-" + uuid.NewString()
	}

	title := raw.Title.String()
	if title == "" {
		title = raw.Slug.String()
	}
	if title == "" {
		title = "Unnamed market"
	}

	var timestamp int64
	if ts := raw.Timestamp.Float(); ts != nil {
		timestamp = int64(*ts) * 1000
	}

	return Trade{
		ID:        id,
		Title:     title,
		Outcome:   raw.Outcome.String(),
		Slug:      raw.Slug.String(),
		EventSlug: raw.EventSlug.String(),
		Icon:      raw.Icon.String(),
		Side:      strings.ToUpper(raw.Side.String()),
		Size:      raw.Size.Float(),
		Price:     raw.Price.Float(),
		Timestamp: timestamp,
		IsClosed:  marketClosed(raw),
	}
}

// NormalizeTrades maps every raw record into a Trade
func NormalizeTrades(raws []RawTrade) []Trade {
	trades := make([]Trade, 0, len(raws))
	for _, raw := range raws {
		trades = append(trades, NormalizeTrade(raw))
	}
	return trades
}

// GroupTrades buckets trades by market and derives per-group state. The
// group key is the first non-empty of slug, eventSlug, title, id. Within a
// group the signed net size per outcome is accumulated (BUY adds, SELL
// subtracts); a group has an active position when any outcome's net
// magnitude exceeds the tolerance. Groups come back newest first.
func GroupTrades(trades []Trade) []TradeGroup {
	groupsMap := make(map[string]*TradeGroup)
	netByOutcome := make(map[string]map[string]float64)
	var order []string

	for _, trade := range trades {
		key := trade.Slug
		if key == "" {
			key = trade.EventSlug
		}
		if key == "" {
			key = trade.Title
		}
		if key == "" {
			key = trade.ID
		}

		group, ok := groupsMap[key]
		if !ok {
			group = &TradeGroup{
				Key:             key,
				Title:           trade.Title,
				Slug:            trade.Slug,
				EventSlug:       trade.EventSlug,
				Icon:            trade.Icon,
				LatestTimestamp: trade.Timestamp,
				Closed:          true,
			}
			groupsMap[key] = group
			netByOutcome[key] = make(map[string]float64)
			order = append(order, key)
		}

		if group.Icon == "" && trade.Icon != "" {
			group.Icon = trade.Icon
		}
		if trade.Timestamp > group.LatestTimestamp {
			group.LatestTimestamp = trade.Timestamp
		}
		group.Closed = group.Closed && trade.IsClosed

		if trade.Size != nil && *trade.Size != 0 {
			outcomeKey := trade.Outcome
			if outcomeKey == "" {
				outcomeKey = "__default__"
			}
			signed := *trade.Size
			if trade.Side == "SELL" {
				signed = -signed
			}
			netByOutcome[key][outcomeKey] += signed
		}

		group.Trades = append(group.Trades, trade)
	}

	groups := make([]TradeGroup, 0, len(order))
	for _, key := range order {
		group := groupsMap[key]

		sort.SliceStable(group.Trades, func(i, j int) bool {
			return group.Trades[i].Timestamp > group.Trades[j].Timestamp
		})

		for _, net := range netByOutcome[key] {
			if net > netPositionTolerance || net < -netPositionTolerance {
				group.HasActivePosition = true
				break
			}
		}

		groups = append(groups, *group)
	}

	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].LatestTimestamp > groups[j].LatestTimestamp
	})

	return groups
}
