package sim

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantavo/arbscan/internal/domain"
)

func TestSameSeedSameData(t *testing.T) {
	ctx := context.Background()
	a, b := New(99), New(99)

	ta, err := a.SpotTicker(ctx, "BTC/USDT")
	require.NoError(t, err)
	tb, err := b.SpotTicker(ctx, "BTC/USDT")
	require.NoError(t, err)
	assert.Equal(t, ta.Bid, tb.Bid)
	assert.Equal(t, ta.Ask, tb.Ask)

	other, err := New(100).SpotTicker(ctx, "BTC/USDT")
	require.NoError(t, err)
	assert.NotEqual(t, ta.Bid, other.Bid)
}

func TestQuotesAreSane(t *testing.T) {
	ctx := context.Background()
	s := New(1)

	for _, sym := range []string{"BTC/USDT", "ETH/USDT", "SOL/USDT"} {
		tk, err := s.SpotTicker(ctx, sym)
		require.NoError(t, err)
		assert.Positive(t, tk.Bid)
		assert.Greater(t, tk.Ask, tk.Bid)
		assert.Positive(t, tk.Volume24h)
	}

	book, err := s.OrderBook(ctx, "BTC/USDT", 10)
	require.NoError(t, err)
	assert.Len(t, book.Bids, 10)
	assert.Len(t, book.Asks, 10)
	assert.Less(t, book.Bids[0].Price, book.Asks[0].Price)
}

func TestFundingRatesCoverPerps(t *testing.T) {
	rates, err := New(1).FundingRates(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, rates)
	for _, r := range rates {
		assert.Equal(t, 8.0, r.IntervalHours)
		assert.GreaterOrEqual(t, r.Rate, 0.0001)
		assert.LessOrEqual(t, r.Rate, 0.0005)
	}
}

func TestP2PAdsCarryParallelPremium(t *testing.T) {
	s := New(1)
	ads, err := s.P2PAds(context.Background(), "USDT", "COP", domain.P2PSell)
	require.NoError(t, err)
	require.NotEmpty(t, ads)

	official := 4100.0
	for _, ad := range ads {
		px, _ := ad.Price.Float64()
		assert.Greater(t, px, official) // street rate above the official anchor
	}
}

func TestFiatRateChains(t *testing.T) {
	s := New(1)
	r, err := s.Rate(context.Background(), "USD", "COP")
	require.NoError(t, err)
	v, _ := r.Rate.Float64()
	assert.Equal(t, 4100.0, v)

	cross, err := s.Rate(context.Background(), "VES", "COP")
	require.NoError(t, err)
	cv, _ := cross.Rate.Float64()
	assert.InDelta(t, 4100.0/44.0, cv, 1e-5) // quotes are rounded to 6 dp
}
