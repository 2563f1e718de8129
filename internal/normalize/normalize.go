// Package normalize projects detector output onto the unified opportunity
// shape and computes the composite score every downstream stage sorts and
// allocates on.
package normalize

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/quantavo/arbscan/internal/config"
	"github.com/quantavo/arbscan/internal/domain"
)

// Normalizer applies the scoring weights and strategy risk mapping from
// configuration. Weights are data, not code.
type Normalizer struct {
	cfg config.NormalizerConfig
	log zerolog.Logger
}

func New(cfg config.NormalizerConfig, log zerolog.Logger) *Normalizer {
	return &Normalizer{cfg: cfg, log: log.With().Str("component", "normalizer").Logger()}
}

// Normalize nets out costs, maps risk onto the shared scale, fills defaults,
// scores, and stamps identity on every opportunity. Input records are
// detector-native; output records carry expected return net of fees and
// slippage, with risk and confidence on the shared 0..100 scale.
func (n *Normalizer) Normalize(opps []domain.Opportunity) []domain.Opportunity {
	out := make([]domain.Opportunity, 0, len(opps))
	for _, o := range opps {
		// Detectors report gross; the pipeline trades on net. The APY takes
		// the same cost haircut so sizing works from net carry.
		gross := o.ExpectedReturn
		o.ExpectedReturn = gross - o.FeesEst - o.SlippageEst
		if o.ExpectedAPY != nil && gross > 0 {
			apy := *o.ExpectedAPY * o.ExpectedReturn / gross
			o.ExpectedAPY = &apy
		}

		mult := 1.0
		if m, ok := n.cfg.RiskWeights[string(o.Strategy)]; ok {
			mult = m
		}
		o.RiskScore = clamp(o.RiskScore*mult, 0, 100)

		if o.Confidence == 0 {
			o.Confidence = 50 // no history, neutral conviction
		}
		o.Confidence = clamp(o.Confidence, 0, 100)

		o.Score = n.score(o)
		o.Priority = priorityFor(o.Score)
		o.Recommendation = recommendationFor(o.Score, o.RiskScore, o.Confidence)

		o.Fingerprint = domain.ComputeFingerprint(o.Strategy, o.Legs)
		if o.ID == "" {
			o.ID = fmt.Sprintf("%s-%s", o.Strategy, o.Fingerprint[:12])
		}
		out = append(out, o)
	}
	return out
}

// score is the weighted composite on 0..100:
//
//	w_r·σ(ret/r_ref) + w_l·σ(liq/l_ref) + w_c·conf − w_k·risk + w_s·sharpe
//
// where σ is the saturating map x/(1+|x|).
func (n *Normalizer) score(o domain.Opportunity) float64 {
	c := n.cfg
	s := c.WReturn*saturate(o.ExpectedReturn/c.ReturnRef) +
		c.WLiquidity*saturate(o.LiquidityUSD/c.LiquidityRef) +
		c.WConfidence*o.Confidence/100 -
		c.WRisk*o.RiskScore/100
	if o.Sharpe != nil && c.SharpeCap > 0 {
		s += c.WSharpe * clamp(*o.Sharpe, 0, c.SharpeCap) / c.SharpeCap
	}
	return clamp(100*s, 0, 100)
}

func saturate(x float64) float64 { return x / (1 + math.Abs(x)) }

func priorityFor(score float64) domain.Priority {
	switch {
	case score >= 75:
		return domain.PriorityHigh
	case score >= 50:
		return domain.PriorityMed
	}
	return domain.PriorityLow
}

func recommendationFor(score, risk, confidence float64) domain.Recommendation {
	switch {
	case score >= 80 && confidence >= 70 && risk <= 40:
		return domain.StrongBuy
	case score >= 60:
		return domain.Buy
	case score >= 40:
		return domain.Hold
	}
	return domain.Avoid
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
