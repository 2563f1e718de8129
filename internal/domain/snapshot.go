package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// SpotTicker is a point-in-time top-of-book quote for a spot symbol.
type SpotTicker struct {
	Symbol    string
	Bid       float64
	Ask       float64
	Last      float64
	Volume24h float64
	Timestamp time.Time
	Stale     bool // served past the primary TTL from the fallback window
}

// Mid returns the bid/ask midpoint.
func (t SpotTicker) Mid() float64 { return (t.Bid + t.Ask) / 2 }

// BookLevel is a single (price, size) level of an L2 order book.
type BookLevel struct {
	Price float64
	Size  float64
}

// OrderBook is an L2 snapshot: bids descending by price, asks ascending.
type OrderBook struct {
	Symbol    string
	Bids      []BookLevel
	Asks      []BookLevel
	Timestamp time.Time
	Stale     bool
}

// DepthUSD sums notional on one side down to the given number of levels.
func (b OrderBook) DepthUSD(side []BookLevel, levels int) float64 {
	if levels > len(side) {
		levels = len(side)
	}
	var total float64
	for _, lvl := range side[:levels] {
		total += lvl.Price * lvl.Size
	}
	return total
}

// BidDepthUSD is the notional resting on the bid side across all levels.
func (b OrderBook) BidDepthUSD() float64 { return b.DepthUSD(b.Bids, len(b.Bids)) }

// AskDepthUSD is the notional resting on the ask side across all levels.
func (b OrderBook) AskDepthUSD() float64 { return b.DepthUSD(b.Asks, len(b.Asks)) }

// FundingRateSample is one funding observation for a perpetual.
// Rate is the signed fraction paid per funding interval.
type FundingRateSample struct {
	Symbol          string
	Rate            float64
	IntervalHours   float64
	NextFundingTime time.Time
	MarkPrice       float64
	IndexPrice      float64
	Stale           bool
}

// FundingsPerYear annualizes the funding cadence (1095 for 8h intervals).
func (f FundingRateSample) FundingsPerYear() float64 {
	if f.IntervalHours <= 0 {
		return 365 * 24 / 8
	}
	return 365 * 24 / f.IntervalHours
}

// FuturesBasis captures the spot/futures spread for one instrument.
type FuturesBasis struct {
	Symbol       string
	SpotPrice    float64
	FuturesPrice float64
	Expiry       time.Time // zero for perpetuals
	Basis        float64   // (futures - spot) / spot
	Stale        bool
}

// IsPerp reports whether the futures leg is a perpetual.
func (b FuturesBasis) IsPerp() bool { return b.Expiry.IsZero() }

// P2PSide distinguishes ads buying vs selling the asset.
type P2PSide string

const (
	P2PBuy  P2PSide = "BUY"
	P2PSell P2PSide = "SELL"
)

// P2PAd is a peer-to-peer offer in a local fiat market. Prices carry exact
// decimal precision because fiat rails quote to the cent.
type P2PAd struct {
	Asset           string
	Fiat            string
	Side            P2PSide
	Price           decimal.Decimal // fiat per asset unit
	MinQty          float64
	MaxQty          float64
	MerchantScore   float64 // 0..100
	CompletedTrades int
	PaymentMethods  []string
	Stale           bool
}

// FiatRate is one cross-fiat quote from a named source.
type FiatRate struct {
	Base      string
	Quote     string
	Rate      decimal.Decimal
	Source    string
	Timestamp time.Time
	Stale     bool // served past primary TTL from fallback cache
	Anomalous bool // cross-source divergence above the validation bound
}

// PricePoint is one close in a symbol's price history.
type PricePoint struct {
	Symbol    string
	Close     float64
	Timestamp time.Time
}

// Snapshot is the pinned view of market data one scan reads from. All
// detectors in a run share the same snapshot so no opportunity mixes data
// from different instants.
type Snapshot struct {
	PinnedAt time.Time

	Tickers        map[string]SpotTicker
	Books          map[string]OrderBook
	Funding        map[string]FundingRateSample
	FundingHistory map[string][]float64 // past funding rates, oldest first, when the venue provides them
	Basis          map[string]FuturesBasis
	BasisHistory   map[string][]float64 // past basis readings for half-life estimation
	P2P            map[string][]P2PAd   // key: asset/fiat/side, see P2PKey
	Fiat           map[string]FiatRate  // key: base/quote, see FiatKey
	History        map[string][]PricePoint
	TakerFee       map[string]float64 // venue symbol -> taker fee fraction
}

// P2PKey builds the snapshot map key for a P2P market slice.
func P2PKey(asset, fiat string, side P2PSide) string {
	return asset + "/" + fiat + "/" + string(side)
}

// FiatKey builds the snapshot map key for a fiat cross.
func FiatKey(base, quote string) string { return base + "/" + quote }

// Empty reports whether the snapshot carries no market data at all.
func (s *Snapshot) Empty() bool {
	return len(s.Tickers) == 0 && len(s.Funding) == 0 && len(s.Basis) == 0 &&
		len(s.P2P) == 0 && len(s.Fiat) == 0 && len(s.History) == 0
}

// Fee returns the taker fee for a symbol, falling back to def when the
// snapshot has no venue-specific figure.
func (s *Snapshot) Fee(symbol string, def float64) float64 {
	if f, ok := s.TakerFee[symbol]; ok {
		return f
	}
	return def
}
