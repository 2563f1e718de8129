package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// Priority buckets an opportunity by composite score.
type Priority string

const (
	PriorityHigh Priority = "HIGH"
	PriorityMed  Priority = "MED"
	PriorityLow  Priority = "LOW"
)

// Recommendation is the human-facing verdict derived from score, risk and
// confidence.
type Recommendation string

const (
	StrongBuy Recommendation = "STRONG_BUY"
	Buy       Recommendation = "BUY"
	Hold      Recommendation = "HOLD"
	Avoid     Recommendation = "AVOID"
)

// Leg is one step of an opportunity's execution plan.
type Leg struct {
	Venue  Venue
	Action Action
	Symbol string
	Size   float64 // base units
	Price  float64 // quote per base
	Notes  string
}

// Notional is the leg's gross quote-currency value.
func (l Leg) Notional() float64 { return l.Size * l.Price }

// SignedNotional is positive for longs (BUY) and negative for shorts (SELL);
// transfer-style actions contribute zero delta.
func (l Leg) SignedNotional() float64 {
	switch l.Action {
	case ActionBuy, ActionBorrow:
		return l.Notional()
	case ActionSell, ActionRepay:
		return -l.Notional()
	}
	return 0
}

// Opportunity is the unified record every detector output is normalized to.
type Opportunity struct {
	ID             string
	Strategy       Strategy
	Legs           []Leg
	ExpectedReturn float64  // net of fees and slippage, fraction
	ExpectedAPY    *float64 // funding/basis strategies only
	Horizon        time.Duration
	RiskScore      float64 // 0..100
	Confidence     float64 // 0..100
	Sharpe         *float64
	LiquidityUSD   float64 // min leg liquidity, USD equivalent
	SlippageEst    float64 // fraction
	FeesEst        float64 // fraction
	Score          float64 // 0..100 composite
	Priority       Priority
	Recommendation Recommendation
	Fingerprint    string
	SemiManual     bool // P2P legs require manual execution
	Anomalous      bool // built on a rate flagged by cross-source validation
	CreatedAt      time.Time
	TTL            time.Duration
}

// GrossNotional sums absolute notional across legs.
func (o *Opportunity) GrossNotional() float64 {
	var gross float64
	for _, l := range o.Legs {
		gross += math.Abs(l.Notional())
	}
	return gross
}

// NetExposure sums signed notional by underlying and returns the largest
// absolute residual. Delta-neutral strategies keep this within epsilon of
// zero relative to gross notional.
func (o *Opportunity) NetExposure() float64 {
	byUnderlying := map[string]float64{}
	for _, l := range o.Legs {
		byUnderlying[underlying(l.Symbol)] += l.SignedNotional()
	}
	var worst float64
	for _, net := range byUnderlying {
		if math.Abs(net) > worst {
			worst = math.Abs(net)
		}
	}
	return worst
}

// IsCycle reports whether the first leg's source currency matches the last
// leg's destination, the closure invariant for triangle strategies.
func (o *Opportunity) IsCycle() bool {
	if len(o.Legs) < 2 {
		return false
	}
	first := strings.SplitN(o.Legs[0].Symbol, "/", 2)
	last := strings.SplitN(o.Legs[len(o.Legs)-1].Symbol, "/", 2)
	if len(first) != 2 || len(last) != 2 {
		return false
	}
	// Leg symbols are FROM/TO pairs along the conversion path.
	return first[0] == last[1]
}

// Expired reports whether the opportunity is past its TTL at time now.
func (o *Opportunity) Expired(now time.Time) bool {
	return o.TTL > 0 && now.After(o.CreatedAt.Add(o.TTL))
}

// ComputeFingerprint derives the stable identity hash over the strategy, the
// normalized leg tuple, and a rounded notional bucket. Two overlapping scans
// that materialize the same trade collide here and dedup in the ranker.
func ComputeFingerprint(strategy Strategy, legs []Leg) string {
	parts := make([]string, 0, len(legs)+2)
	parts = append(parts, string(strategy))

	var gross float64
	keys := make([]string, 0, len(legs))
	for _, l := range legs {
		keys = append(keys, fmt.Sprintf("%s|%s|%s", l.Venue, l.Action, l.Symbol))
		gross += math.Abs(l.Notional())
	}
	sort.Strings(keys)
	parts = append(parts, keys...)

	// Bucket notional to the nearest power-of-two band so size jitter between
	// scans does not defeat dedup.
	bucket := 0
	if gross > 1 {
		bucket = int(math.Round(math.Log2(gross)))
	}
	parts = append(parts, fmt.Sprintf("n%d", bucket))

	sum := sha256.Sum256([]byte(strings.Join(parts, ";")))
	return hex.EncodeToString(sum[:16])
}

// underlying strips venue decoration from a symbol: "BTC/USDT" and
// "BTCUSDT-PERP" both map to their base asset key.
func underlying(symbol string) string {
	s := strings.TrimSuffix(symbol, "-PERP")
	if i := strings.IndexByte(s, '/'); i > 0 {
		return s[:i]
	}
	// Venue-concatenated form: peel a known quote suffix.
	for _, q := range []string{"USDT", "USDC", "USD"} {
		if strings.HasSuffix(s, q) && len(s) > len(q) {
			return s[:len(s)-len(q)]
		}
	}
	return s
}
