package detect

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/quantavo/arbscan/internal/config"
	"github.com/quantavo/arbscan/internal/domain"
)

// SpotP2PDetector compares the spot ask against the best peer-to-peer bids in
// local fiat. When the effective P2P exit beats the official rate by the
// configured margin, it emits a semi-manual opportunity: P2P legs have no
// execution API.
type SpotP2PDetector struct {
	Log zerolog.Logger
}

func NewSpotP2PDetector(log zerolog.Logger) *SpotP2PDetector {
	return &SpotP2PDetector{Log: log.With().Str("detector", "spot_p2p").Logger()}
}

func (d *SpotP2PDetector) Name() domain.Strategy { return domain.StrategySpotP2P }

func (d *SpotP2PDetector) Scan(ctx context.Context, snap *domain.Snapshot, cfg *config.Config) ([]domain.Opportunity, error) {
	var out []domain.Opportunity
	for _, market := range cfg.Universe.P2PMarkets {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		asset, fiat := market[0], market[1]

		// Merchant BUY ads are our exit bids.
		ads := snap.P2P[domain.P2PKey(asset, fiat, domain.P2PBuy)]
		bids := reputableBids(ads, cfg.SpotP2P)
		if len(bids) == 0 {
			continue
		}

		official, ok := snap.Fiat[domain.FiatKey("USD", fiat)]
		if !ok || official.Rate.Sign() <= 0 {
			continue
		}

		spotSym := asset + "/USDT"
		spotAsk := decimal.NewFromInt(1) // stables trade at par with USDT
		if asset != "USDT" {
			t, ok := snap.Tickers[spotSym]
			if !ok || t.Ask <= 0 {
				continue
			}
			spotAsk = decimal.NewFromFloat(t.Ask)
		}

		bestBid := bids[0]
		fee := decimal.NewFromFloat(cfg.SpotP2P.P2PFee)
		effective := bestBid.Price.Mul(decimal.NewFromInt(1).Sub(fee))

		// profit = effective / (spot_ask * official) - 1, exact decimal.
		denom := spotAsk.Mul(official.Rate)
		if denom.Sign() <= 0 {
			continue
		}
		profit, _ := effective.Div(denom).Sub(decimal.NewFromInt(1)).Float64()

		margin := cfg.SpotP2P.P2PMarginFor(fiat)
		if profit < margin {
			continue
		}

		price, _ := bestBid.Price.Float64()
		ask, _ := spotAsk.Float64()
		size := bestBid.MaxQty
		if maxUSD := cfg.Scanning.NotionalCapUSD; size*ask > maxUSD {
			size = maxUSD / ask
		}

		liq := depthOfBids(bids, ask)

		out = append(out, domain.Opportunity{
			Strategy: domain.StrategySpotP2P,
			Legs: []domain.Leg{
				{Venue: domain.VenueSpot, Action: domain.ActionBuy, Symbol: spotSym, Size: size, Price: ask},
				{Venue: domain.VenueP2P, Action: domain.ActionSell, Symbol: asset + "/" + fiat, Size: size, Price: price,
					Notes: "semi-manual: P2P settlement is off-exchange"},
			},
			ExpectedReturn: profit + cfg.SpotP2P.P2PFee, // gross of the P2P fee already applied
			Horizon:        2 * time.Hour, // payment-rail settlement
			RiskScore:      p2pRisk(bestBid),
			Confidence:     p2pConfidence(bids),
			LiquidityUSD:   liq,
			SlippageEst:    0,
			FeesEst:        cfg.SpotP2P.P2PFee,
			SemiManual:     true,
			Anomalous:      official.Anomalous,
			CreatedAt:      snap.PinnedAt,
			TTL:            cfg.Scanning.OpportunityTTL,
		})
	}
	return out, nil
}

// reputableBids filters by merchant score, trade count and payment methods,
// returning the top-K by price descending.
func reputableBids(ads []domain.P2PAd, cfg config.SpotP2PConfig) []domain.P2PAd {
	whitelist := map[string]bool{}
	for _, m := range cfg.PaymentWhitelist {
		whitelist[m] = true
	}
	var ok []domain.P2PAd
	for _, ad := range ads {
		if ad.MerchantScore < cfg.MerchantMinScore || ad.CompletedTrades < cfg.MerchantMinTrades {
			continue
		}
		if len(whitelist) > 0 && !anyWhitelisted(ad.PaymentMethods, whitelist) {
			continue
		}
		ok = append(ok, ad)
	}
	sort.Slice(ok, func(i, j int) bool { return ok[i].Price.GreaterThan(ok[j].Price) })
	if len(ok) > cfg.TopBids {
		ok = ok[:cfg.TopBids]
	}
	return ok
}

func anyWhitelisted(methods []string, whitelist map[string]bool) bool {
	for _, m := range methods {
		if whitelist[m] {
			return true
		}
	}
	return false
}

// depthOfBids sums USD-equivalent quantity across the filtered bids.
func depthOfBids(bids []domain.P2PAd, assetUSD float64) float64 {
	var total float64
	for _, b := range bids {
		total += b.MaxQty * assetUSD
	}
	return total
}

// p2pRisk reflects counterparty and settlement exposure: even the best
// merchants move money over rails the venue does not guarantee.
func p2pRisk(best domain.P2PAd) float64 {
	risk := 45.0
	risk -= clamp((best.MerchantScore-90)*2, 0, 15)
	if best.CompletedTrades > 1000 {
		risk -= 5
	}
	return clamp(risk, 0, 100)
}

func p2pConfidence(bids []domain.P2PAd) float64 {
	// More independent reputable bids at similar prices means the exit is real.
	conf := 40.0 + float64(len(bids))*8
	return clamp(conf, 0, 100)
}
