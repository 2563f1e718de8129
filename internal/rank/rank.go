// Package rank orders normalized opportunities under one of four policies
// with deterministic tie-breaking and fingerprint dedup.
package rank

import (
	"sort"

	"github.com/quantavo/arbscan/internal/domain"
)

// Policy selects the sort key.
type Policy string

const (
	ByReturn       Policy = "BY_RETURN"
	ByRiskAdjusted Policy = "BY_RISK_ADJUSTED"
	BySharpe       Policy = "BY_SHARPE"
	ByScore        Policy = "BY_SCORE"
)

// Valid reports whether p names a known policy.
func (p Policy) Valid() bool {
	switch p {
	case ByReturn, ByRiskAdjusted, BySharpe, ByScore:
		return true
	}
	return false
}

const riskEpsilon = 1e-6

// Rank dedups by fingerprint (highest score wins), sorts by policy, and
// truncates to k. k <= 0 means no truncation.
func Rank(opps []domain.Opportunity, policy Policy, k int) []domain.Opportunity {
	deduped := dedup(opps)
	sort.SliceStable(deduped, func(i, j int) bool {
		return less(&deduped[i], &deduped[j], policy)
	})
	if k > 0 && len(deduped) > k {
		deduped = deduped[:k]
	}
	return deduped
}

func dedup(opps []domain.Opportunity) []domain.Opportunity {
	best := make(map[string]int, len(opps))
	out := make([]domain.Opportunity, 0, len(opps))
	for _, o := range opps {
		if o.Fingerprint == "" {
			out = append(out, o)
			continue
		}
		if idx, ok := best[o.Fingerprint]; ok {
			if o.Score > out[idx].Score {
				out[idx] = o
			}
			continue
		}
		best[o.Fingerprint] = len(out)
		out = append(out, o)
	}
	return out
}

// less orders i before j. Higher key value ranks first for every policy;
// ties fall through to liquidity, then shorter horizon, then creation time.
func less(a, b *domain.Opportunity, policy Policy) bool {
	switch policy {
	case ByReturn:
		if a.ExpectedReturn != b.ExpectedReturn {
			return a.ExpectedReturn > b.ExpectedReturn
		}
	case ByRiskAdjusted:
		ra, rb := riskAdjusted(a), riskAdjusted(b)
		if ra != rb {
			return ra > rb
		}
	case BySharpe:
		// Nulls last; among non-null, higher Sharpe first.
		switch {
		case a.Sharpe == nil && b.Sharpe != nil:
			return false
		case a.Sharpe != nil && b.Sharpe == nil:
			return true
		case a.Sharpe != nil && b.Sharpe != nil && *a.Sharpe != *b.Sharpe:
			return *a.Sharpe > *b.Sharpe
		}
	default: // ByScore
		if a.Score != b.Score {
			return a.Score > b.Score
		}
	}

	if a.LiquidityUSD != b.LiquidityUSD {
		return a.LiquidityUSD > b.LiquidityUSD
	}
	if a.Horizon != b.Horizon {
		return a.Horizon < b.Horizon
	}
	return a.CreatedAt.Before(b.CreatedAt)
}

func riskAdjusted(o *domain.Opportunity) float64 {
	denom := o.RiskScore / 100
	if denom < riskEpsilon {
		denom = riskEpsilon
	}
	return o.ExpectedReturn / denom
}
