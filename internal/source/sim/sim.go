// Package sim provides a deterministic in-process market data source. It
// backs the dry-run CLI commands and the pipeline tests: same seed, same
// snapshot, same scan output.
package sim

import (
	"context"
	"hash/fnv"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantavo/arbscan/internal/domain"
)

// Source synthesizes plausible market data from a seed. All methods are safe
// for concurrent use: state is derived, never mutated.
type Source struct {
	seed int64
	now  time.Time
}

func New(seed int64) *Source {
	return &Source{seed: seed, now: time.Now().UTC()}
}

func (s *Source) Name() string { return "sim" }

// rng returns a generator keyed by the seed and a label, so each instrument
// gets its own stable stream.
func (s *Source) rng(label string) *rand.Rand {
	h := fnv.New64a()
	h.Write([]byte(label))
	return rand.New(rand.NewSource(s.seed ^ int64(h.Sum64())))
}

// basePrice assigns each symbol a stable reference level.
func (s *Source) basePrice(symbol string) float64 {
	switch {
	case strings.HasPrefix(symbol, "BTC"):
		return 64_000
	case strings.HasPrefix(symbol, "ETH"):
		return 3_200
	case strings.HasPrefix(symbol, "SOL"):
		return 145
	case strings.HasPrefix(symbol, "USDT"), strings.HasPrefix(symbol, "USDC"):
		return 1
	}
	r := s.rng("base:" + symbol)
	return 1 + 99*r.Float64()
}

func (s *Source) SpotTicker(ctx context.Context, symbol string) (domain.SpotTicker, error) {
	if err := ctx.Err(); err != nil {
		return domain.SpotTicker{}, err
	}
	r := s.rng("tick:" + symbol)
	mid := s.basePrice(symbol) * (1 + 0.01*(r.Float64()-0.5))
	spread := mid * (0.0002 + 0.0003*r.Float64())
	return domain.SpotTicker{
		Symbol:    symbol,
		Bid:       mid - spread/2,
		Ask:       mid + spread/2,
		Last:      mid,
		Volume24h: (5e6 + 95e6*r.Float64()) / mid, // base units
		Timestamp: s.now,
	}, nil
}

func (s *Source) OrderBook(ctx context.Context, symbol string, depth int) (domain.OrderBook, error) {
	if err := ctx.Err(); err != nil {
		return domain.OrderBook{}, err
	}
	t, _ := s.SpotTicker(ctx, symbol)
	r := s.rng("book:" + symbol)
	book := domain.OrderBook{Symbol: symbol, Timestamp: s.now}
	for i := 0; i < depth; i++ {
		step := float64(i+1) * t.Mid() * 0.0005
		size := (2 + 8*r.Float64()) * 50_000 / t.Mid()
		book.Bids = append(book.Bids, domain.BookLevel{Price: t.Bid - step, Size: size})
		book.Asks = append(book.Asks, domain.BookLevel{Price: t.Ask + step, Size: size})
	}
	return book, nil
}

func (s *Source) FundingRates(ctx context.Context) ([]domain.FundingRateSample, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	perps := []string{"BTCUSDT-PERP", "ETHUSDT-PERP"}
	out := make([]domain.FundingRateSample, 0, len(perps))
	for _, p := range perps {
		r := s.rng("funding:" + p)
		mark := s.basePrice(p)
		out = append(out, domain.FundingRateSample{
			Symbol:          p,
			Rate:            0.0001 + 0.0004*r.Float64(), // persistent positive carry
			IntervalHours:   8,
			NextFundingTime: s.now.Add(4 * time.Hour),
			MarkPrice:       mark * (1 + 0.0005*r.NormFloat64()),
			IndexPrice:      mark,
		})
	}
	return out, nil
}

func (s *Source) FuturesBasis(ctx context.Context, symbol string) (domain.FuturesBasis, error) {
	if err := ctx.Err(); err != nil {
		return domain.FuturesBasis{}, err
	}
	spot := s.basePrice(symbol)
	r := s.rng("basis:" + symbol)
	basis := 0.001 + 0.006*r.Float64()
	return domain.FuturesBasis{
		Symbol:       symbol,
		SpotPrice:    spot,
		FuturesPrice: spot * (1 + basis),
		Basis:        basis,
	}, nil
}

func (s *Source) P2PAds(ctx context.Context, asset, fiat string, side domain.P2PSide) ([]domain.P2PAd, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r := s.rng("p2p:" + asset + ":" + fiat + ":" + string(side))
	official := s.officialRate(fiat)
	// Parallel-market premium over the official rate.
	premium := 1.04 + 0.04*r.Float64()
	if side == domain.P2PSell {
		premium += 0.01
	}
	ads := make([]domain.P2PAd, 0, 8)
	for i := 0; i < 8; i++ {
		px := official * premium * (1 - 0.002*float64(i))
		ads = append(ads, domain.P2PAd{
			Asset:           asset,
			Fiat:            fiat,
			Side:            side,
			Price:           decimal.NewFromFloat(px).Round(4),
			MinQty:          100,
			MaxQty:          2_000 + 8_000*r.Float64(),
			MerchantScore:   88 + 12*r.Float64(),
			CompletedTrades: 50 + r.Intn(5000),
			PaymentMethods:  []string{"bank_transfer", "nequi"},
		})
	}
	return ads, nil
}

func (s *Source) PriceHistory(ctx context.Context, symbol string, window int) ([]domain.PricePoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r := s.rng("hist:" + symbol)
	base := s.basePrice(symbol)
	out := make([]domain.PricePoint, window)
	px := base
	for i := 0; i < window; i++ {
		// Mean-reverting walk around the base level.
		px += 0.05*(base-px) + base*0.004*r.NormFloat64()
		out[i] = domain.PricePoint{
			Symbol:    symbol,
			Close:     px,
			Timestamp: s.now.Add(-time.Duration(window-i) * time.Hour),
		}
	}
	return out, nil
}

// FundingHistory and BasisHistory make the sim a RateHistorian.

func (s *Source) FundingHistory(ctx context.Context, symbol string, n int) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r := s.rng("fhist:" + symbol)
	out := make([]float64, n)
	for i := range out {
		out[i] = 0.0002 + 0.0002*r.NormFloat64()
	}
	return out, nil
}

func (s *Source) BasisHistory(ctx context.Context, symbol string, n int) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r := s.rng("bhist:" + symbol)
	out := make([]float64, n)
	b := 0.004
	for i := range out {
		b = math.Max(0, b+0.0005*r.NormFloat64())
		out[i] = b
	}
	return out, nil
}

func (s *Source) officialRate(fiat string) float64 {
	switch fiat {
	case "COP":
		return 4_100
	case "VES":
		return 44
	case "USD":
		return 1
	}
	r := s.rng("fx:" + fiat)
	return 1 + 50*r.Float64()
}

// Rate implements the fiat source interface on the same seed, so the CLI
// can register the sim as both venue and fiat oracle.
func (s *Source) Rate(ctx context.Context, base, quote string) (domain.FiatRate, error) {
	if err := ctx.Err(); err != nil {
		return domain.FiatRate{}, err
	}
	rate := s.officialRate(quote) / s.officialRate(base)
	return domain.FiatRate{
		Base:      base,
		Quote:     quote,
		Rate:      decimal.NewFromFloat(rate).Round(6),
		Source:    "sim",
		Timestamp: s.now,
	}, nil
}
