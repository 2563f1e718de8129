package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the closed set of recognized knobs for the discovery engine.
// Defaults live in Default(); a yaml file overrides field by field.
type Config struct {
	Universe   UniverseConfig   `yaml:"universe"`
	Scanning   ScanningConfig   `yaml:"scanning"`
	Funding    FundingConfig    `yaml:"funding"`
	StatArb    StatArbConfig    `yaml:"stat_arb"`
	DeltaNeut  DeltaConfig      `yaml:"delta_neutral"`
	Triangle   TriangleConfig   `yaml:"triangle"`
	SpotP2P    SpotP2PConfig    `yaml:"spot_p2p"`
	Risk       RiskConfig       `yaml:"risk"`
	Optimizer  OptimizerConfig  `yaml:"optimizer"`
	Normalizer NormalizerConfig `yaml:"normalizer"`
	Gateway    GatewayConfig    `yaml:"gateway"`
}

// UniverseConfig enumerates the instruments one scan covers.
type UniverseConfig struct {
	SpotSymbols []string    `yaml:"spot_symbols"`
	PerpSymbols []string    `yaml:"perp_symbols"`
	P2PMarkets  [][2]string `yaml:"p2p_markets"`  // (asset, fiat)
	FiatCrosses [][2]string `yaml:"fiat_crosses"` // (base, quote)
	BookDepth   int         `yaml:"book_depth"`
}

type ScanningConfig struct {
	MinReturn           float64       `yaml:"min_return"`
	MaxRiskScore        float64       `yaml:"max_risk_score"`
	MinConfidence       float64       `yaml:"min_confidence"`
	MinLiquidityUSD     float64       `yaml:"min_liquidity_usd"`
	MaxCandidates       int           `yaml:"max_candidates"`
	PerDetectorDeadline time.Duration `yaml:"per_detector_deadline"`
	ScanDeadline        time.Duration `yaml:"scan_deadline"`
	OpportunityTTL      time.Duration `yaml:"opportunity_ttl"`
	NotionalCapUSD      float64       `yaml:"notional_cap_usd"`
}

// Duration accepts "10s"-style yaml scalars; bare numbers are seconds.
// yaml.v3 has no native time.Duration decoding, so the duration-bearing
// sections unmarshal through shadows typed with this.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	var s string
	if err := n.Decode(&s); err == nil {
		v, perr := time.ParseDuration(s)
		if perr != nil {
			return fmt.Errorf("invalid duration %q: %w", s, perr)
		}
		*d = Duration(v)
		return nil
	}
	var secs float64
	if err := n.Decode(&secs); err != nil {
		return fmt.Errorf("invalid duration value at line %d", n.Line)
	}
	*d = Duration(time.Duration(secs * float64(time.Second)))
	return nil
}

func (s *ScanningConfig) UnmarshalYAML(n *yaml.Node) error {
	type shadow struct {
		MinReturn           float64  `yaml:"min_return"`
		MaxRiskScore        float64  `yaml:"max_risk_score"`
		MinConfidence       float64  `yaml:"min_confidence"`
		MinLiquidityUSD     float64  `yaml:"min_liquidity_usd"`
		MaxCandidates       int      `yaml:"max_candidates"`
		PerDetectorDeadline Duration `yaml:"per_detector_deadline"`
		ScanDeadline        Duration `yaml:"scan_deadline"`
		OpportunityTTL      Duration `yaml:"opportunity_ttl"`
		NotionalCapUSD      float64  `yaml:"notional_cap_usd"`
	}
	sh := shadow{
		MinReturn:           s.MinReturn,
		MaxRiskScore:        s.MaxRiskScore,
		MinConfidence:       s.MinConfidence,
		MinLiquidityUSD:     s.MinLiquidityUSD,
		MaxCandidates:       s.MaxCandidates,
		PerDetectorDeadline: Duration(s.PerDetectorDeadline),
		ScanDeadline:        Duration(s.ScanDeadline),
		OpportunityTTL:      Duration(s.OpportunityTTL),
		NotionalCapUSD:      s.NotionalCapUSD,
	}
	if err := n.Decode(&sh); err != nil {
		return err
	}
	*s = ScanningConfig{
		MinReturn:           sh.MinReturn,
		MaxRiskScore:        sh.MaxRiskScore,
		MinConfidence:       sh.MinConfidence,
		MinLiquidityUSD:     sh.MinLiquidityUSD,
		MaxCandidates:       sh.MaxCandidates,
		PerDetectorDeadline: time.Duration(sh.PerDetectorDeadline),
		ScanDeadline:        time.Duration(sh.ScanDeadline),
		OpportunityTTL:      time.Duration(sh.OpportunityTTL),
		NotionalCapUSD:      sh.NotionalCapUSD,
	}
	return nil
}

type FundingConfig struct {
	MinAPY           float64 `yaml:"min_apy"`            // fraction/yr
	MinHistorySharpe int     `yaml:"min_history_sharpe"` // samples required before Sharpe
}

type StatArbConfig struct {
	ZEntry   float64     `yaml:"z_entry"`
	ZExit    float64     `yaml:"z_exit"`
	Window   int         `yaml:"window"`
	Lookback int         `yaml:"lookback"`
	Pairs    [][2]string `yaml:"pairs"`
}

type DeltaConfig struct {
	MinBasis           float64 `yaml:"min_basis"`
	CaptureTarget      float64 `yaml:"capture_target"` // fraction of basis to harvest
	DefaultHoldingDays int     `yaml:"default_holding_days"`
}

type TriangleConfig struct {
	MaxHops          int      `yaml:"max_hops"`
	MinEdgeLiquidity float64  `yaml:"min_edge_liquidity"`
	StartAssets      []string `yaml:"start_assets"`
	HopPenalty       float64  `yaml:"hop_penalty"` // score deduction per hop
}

type SpotP2PConfig struct {
	MinMarginCOP      float64  `yaml:"min_margin_cop"`
	MinMarginVES      float64  `yaml:"min_margin_ves"`
	MinMarginDefault  float64  `yaml:"min_margin_default"`
	MerchantMinScore  float64  `yaml:"merchant_min_score"`
	MerchantMinTrades int      `yaml:"merchant_min_trades"`
	TopBids           int      `yaml:"top_bids"`
	P2PFee            float64  `yaml:"p2p_fee"`
	PaymentWhitelist  []string `yaml:"payment_whitelist"`
	Allocatable       bool     `yaml:"allocatable"` // semi-manual opportunities may take portfolio capital
}

type RiskConfig struct {
	RiskFreeRate            float64            `yaml:"risk_free_rate"`
	MaxPortfolioVaRPct      float64            `yaml:"max_portfolio_var_pct"`
	MaxStrategyAllocation   float64            `yaml:"max_strategy_allocation"`
	MinDiversificationRatio float64            `yaml:"min_diversification_ratio"`
	MaxConcentration        float64            `yaml:"max_concentration"`
	KellyCap                float64            `yaml:"kelly_cap"`
	LiquidityFactor         float64            `yaml:"liquidity_factor"`
	StrategyVol             map[string]float64 `yaml:"strategy_vol"`     // annualized base vol per strategy
	StrategyBeta            map[string]float64 `yaml:"strategy_beta"`    // market beta per strategy
	BaseCorrelation         float64            `yaml:"base_correlation"` // off-diagonal default
}

type OptimizerConfig struct {
	RiskAversionLambda float64 `yaml:"risk_aversion_lambda"`
	MinWeight          float64 `yaml:"min_weight"`
	MaxPositions       int     `yaml:"max_positions"`
	SolverTolerance    float64 `yaml:"solver_tolerance"`
	SolverMaxIters     int     `yaml:"solver_max_iters"`
}

type NormalizerConfig struct {
	WReturn      float64            `yaml:"w_return"`
	WLiquidity   float64            `yaml:"w_liquidity"`
	WConfidence  float64            `yaml:"w_confidence"`
	WRisk        float64            `yaml:"w_risk"`
	WSharpe      float64            `yaml:"w_sharpe"`
	ReturnRef    float64            `yaml:"return_ref"`    // return scale, fraction
	LiquidityRef float64            `yaml:"liquidity_ref"` // USD scale
	SharpeCap    float64            `yaml:"sharpe_cap"`
	RiskWeights  map[string]float64 `yaml:"risk_weights"` // per-strategy risk multiplier
}

type GatewayConfig struct {
	SpotTTL    time.Duration `yaml:"spot_ttl"`
	BookTTL    time.Duration `yaml:"book_ttl"`
	FundingTTL time.Duration `yaml:"funding_ttl"`
	BasisTTL   time.Duration `yaml:"basis_ttl"`
	P2PTTL     time.Duration `yaml:"p2p_ttl"`
	FiatTTL    time.Duration `yaml:"fiat_ttl"`
	HistoryTTL time.Duration `yaml:"history_ttl"`

	StaleFactor     float64       `yaml:"stale_factor"` // fallback bound as a multiple of TTL
	CallDeadline    time.Duration `yaml:"call_deadline"`
	Retries         int           `yaml:"retries"`
	BreakerFailures uint32        `yaml:"breaker_failures"`
	BreakerOpenFor  time.Duration `yaml:"breaker_open_for"`
	RatePerSecond   float64       `yaml:"rate_per_second"`
	RateBurst       int           `yaml:"rate_burst"`
	FiatDivergence  float64       `yaml:"fiat_divergence"` // anomaly threshold, fraction
}

func (g *GatewayConfig) UnmarshalYAML(n *yaml.Node) error {
	type shadow struct {
		SpotTTL    Duration `yaml:"spot_ttl"`
		BookTTL    Duration `yaml:"book_ttl"`
		FundingTTL Duration `yaml:"funding_ttl"`
		BasisTTL   Duration `yaml:"basis_ttl"`
		P2PTTL     Duration `yaml:"p2p_ttl"`
		FiatTTL    Duration `yaml:"fiat_ttl"`
		HistoryTTL Duration `yaml:"history_ttl"`

		StaleFactor     float64  `yaml:"stale_factor"`
		CallDeadline    Duration `yaml:"call_deadline"`
		Retries         int      `yaml:"retries"`
		BreakerFailures uint32   `yaml:"breaker_failures"`
		BreakerOpenFor  Duration `yaml:"breaker_open_for"`
		RatePerSecond   float64  `yaml:"rate_per_second"`
		RateBurst       int      `yaml:"rate_burst"`
		FiatDivergence  float64  `yaml:"fiat_divergence"`
	}
	sh := shadow{
		SpotTTL:         Duration(g.SpotTTL),
		BookTTL:         Duration(g.BookTTL),
		FundingTTL:      Duration(g.FundingTTL),
		BasisTTL:        Duration(g.BasisTTL),
		P2PTTL:          Duration(g.P2PTTL),
		FiatTTL:         Duration(g.FiatTTL),
		HistoryTTL:      Duration(g.HistoryTTL),
		StaleFactor:     g.StaleFactor,
		CallDeadline:    Duration(g.CallDeadline),
		Retries:         g.Retries,
		BreakerFailures: g.BreakerFailures,
		BreakerOpenFor:  Duration(g.BreakerOpenFor),
		RatePerSecond:   g.RatePerSecond,
		RateBurst:       g.RateBurst,
		FiatDivergence:  g.FiatDivergence,
	}
	if err := n.Decode(&sh); err != nil {
		return err
	}
	*g = GatewayConfig{
		SpotTTL:         time.Duration(sh.SpotTTL),
		BookTTL:         time.Duration(sh.BookTTL),
		FundingTTL:      time.Duration(sh.FundingTTL),
		BasisTTL:        time.Duration(sh.BasisTTL),
		P2PTTL:          time.Duration(sh.P2PTTL),
		FiatTTL:         time.Duration(sh.FiatTTL),
		HistoryTTL:      time.Duration(sh.HistoryTTL),
		StaleFactor:     sh.StaleFactor,
		CallDeadline:    time.Duration(sh.CallDeadline),
		Retries:         sh.Retries,
		BreakerFailures: sh.BreakerFailures,
		BreakerOpenFor:  time.Duration(sh.BreakerOpenFor),
		RatePerSecond:   sh.RatePerSecond,
		RateBurst:       sh.RateBurst,
		FiatDivergence:  sh.FiatDivergence,
	}
	return nil
}

// Default returns the built-in configuration. Values mirror the production
// defaults the scanner ships with.
func Default() *Config {
	return &Config{
		Universe: UniverseConfig{
			SpotSymbols: []string{"BTC/USDT", "ETH/USDT"},
			PerpSymbols: []string{"BTCUSDT-PERP", "ETHUSDT-PERP"},
			P2PMarkets:  [][2]string{{"USDT", "COP"}, {"USDT", "VES"}},
			FiatCrosses: [][2]string{{"USD", "COP"}, {"USD", "VES"}, {"COP", "VES"}, {"VES", "COP"}},
			BookDepth:   20,
		},
		Scanning: ScanningConfig{
			MinReturn:           0.001,
			MaxRiskScore:        80,
			MinConfidence:       30,
			MinLiquidityUSD:     10_000,
			MaxCandidates:       20,
			PerDetectorDeadline: 10 * time.Second,
			ScanDeadline:        15 * time.Second,
			OpportunityTTL:      5 * time.Minute,
			NotionalCapUSD:      250_000,
		},
		Funding: FundingConfig{
			MinAPY:           0.05,
			MinHistorySharpe: 20,
		},
		StatArb: StatArbConfig{
			ZEntry:   2.0,
			ZExit:    0.5,
			Window:   60,
			Lookback: 200,
			Pairs:    [][2]string{{"ETH/USDT", "BTC/USDT"}},
		},
		DeltaNeut: DeltaConfig{
			MinBasis:           0.002,
			CaptureTarget:      0.8,
			DefaultHoldingDays: 7,
		},
		Triangle: TriangleConfig{
			MaxHops:          5,
			MinEdgeLiquidity: 5_000,
			StartAssets:      []string{"USDT"},
			HopPenalty:       10,
		},
		SpotP2P: SpotP2PConfig{
			MinMarginCOP:      0.025,
			MinMarginVES:      0.03,
			MinMarginDefault:  0.03,
			MerchantMinScore:  90,
			MerchantMinTrades: 100,
			TopBids:           5,
			P2PFee:            0.0035,
			PaymentWhitelist:  []string{"bank_transfer", "nequi", "pago_movil"},
			Allocatable:       false,
		},
		Risk: RiskConfig{
			RiskFreeRate:            0.04,
			MaxPortfolioVaRPct:      0.10,
			MaxStrategyAllocation:   0.40,
			MinDiversificationRatio: 1.2,
			MaxConcentration:        0.60,
			KellyCap:                0.25,
			LiquidityFactor:         0.10,
			StrategyVol: map[string]float64{
				"FUNDING":       0.08,
				"STAT_ARB":      0.15,
				"DELTA_NEUTRAL": 0.10,
				"TRIANGLE":      0.05,
				"SPOT_P2P":      0.20,
				"CROSS_FIAT":    0.12,
			},
			StrategyBeta: map[string]float64{
				"FUNDING":       0.1,
				"STAT_ARB":      0.3,
				"DELTA_NEUTRAL": 0.1,
				"TRIANGLE":      0.05,
				"SPOT_P2P":      0.5,
				"CROSS_FIAT":    0.4,
			},
			BaseCorrelation: 0.2,
		},
		Optimizer: OptimizerConfig{
			RiskAversionLambda: 0.5,
			MinWeight:          0.02,
			MaxPositions:       5,
			SolverTolerance:    1e-4,
			SolverMaxIters:     500,
		},
		Normalizer: NormalizerConfig{
			WReturn:      0.35,
			WLiquidity:   0.20,
			WConfidence:  0.15,
			WRisk:        0.20,
			WSharpe:      0.10,
			ReturnRef:    0.01,
			LiquidityRef: 100_000,
			SharpeCap:    3.0,
			RiskWeights: map[string]float64{
				"FUNDING":       0.8,
				"STAT_ARB":      1.2,
				"DELTA_NEUTRAL": 0.9,
				"TRIANGLE":      0.7,
				"SPOT_P2P":      1.5,
				"CROSS_FIAT":    1.3,
			},
		},
		Gateway: GatewayConfig{
			SpotTTL:         10 * time.Second,
			BookTTL:         5 * time.Second,
			FundingTTL:      60 * time.Second,
			BasisTTL:        30 * time.Second,
			P2PTTL:          15 * time.Second,
			FiatTTL:         300 * time.Second,
			HistoryTTL:      300 * time.Second,
			StaleFactor:     3,
			CallDeadline:    3 * time.Second,
			Retries:         2,
			BreakerFailures: 5,
			BreakerOpenFor:  60 * time.Second,
			RatePerSecond:   10,
			RateBurst:       20,
			FiatDivergence:  0.02,
		},
	}
}

// Load reads a yaml file and overlays it onto the defaults. A missing path
// is not an error: the defaults are returned as-is.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, cfg.Validate()
}

// Validate rejects configurations the scan cannot run under.
func (c *Config) Validate() error {
	n := c.Normalizer
	sum := n.WReturn + n.WLiquidity + n.WConfidence + n.WSharpe
	if sum <= 0 {
		return fmt.Errorf("normalizer weights sum to %.3f, need > 0", sum)
	}
	if c.Optimizer.RiskAversionLambda < 0 {
		return fmt.Errorf("risk_aversion_lambda must be >= 0")
	}
	if c.Scanning.MaxCandidates <= 0 {
		return fmt.Errorf("max_candidates must be positive")
	}
	if c.Triangle.MaxHops < 3 {
		return fmt.Errorf("triangle.max_hops must be >= 3")
	}
	if c.Risk.KellyCap <= 0 || c.Risk.KellyCap > 1 {
		return fmt.Errorf("kelly_cap must be in (0,1]")
	}
	return nil
}

// StrategyVolFor returns the configured base volatility for a strategy, with
// a conservative fallback for unknown families.
func (c *Config) StrategyVolFor(s string) float64 {
	if v, ok := c.Risk.StrategyVol[s]; ok {
		return v
	}
	return 0.25
}

// P2PMarginFor picks the per-fiat minimum margin threshold.
func (c *SpotP2PConfig) P2PMarginFor(fiat string) float64 {
	switch fiat {
	case "COP":
		return c.MinMarginCOP
	case "VES":
		return c.MinMarginVES
	}
	return c.MinMarginDefault
}
