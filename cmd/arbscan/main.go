package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const (
	appName = "arbscan"
	version = "v1.3.0"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Cross-venue arbitrage and quant strategy scanner",
		Version: version,
		Long: `arbscan discovers arbitrage and quantitative strategy opportunities across
spot, perpetual, P2P and fiat markets: funding capture, pairs stat-arb,
cash-and-carry basis, triangular cycles, spot/P2P premia and cross-fiat
corridors. One scan pins a consistent market snapshot, runs every detector
concurrently, scores the output on a shared scale, and proposes a
risk-limited capital allocation.`,
	}
	rootCmd.PersistentFlags().String("config", "config/scanner.yaml", "Path to yaml config (missing file uses built-in defaults)")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (trace|debug|info|warn|error)")

	scanCmd := &cobra.Command{
		Use:   "scan",
		Short: "Run one discovery scan",
		Long:  "Pins a market snapshot, runs all detectors, ranks the results and proposes an allocation",
		RunE:  runScan,
	}
	scanCmd.Flags().String("policy", "BY_SCORE", "Ranking policy (BY_RETURN|BY_RISK_ADJUSTED|BY_SHARPE|BY_SCORE)")
	scanCmd.Flags().Float64("capital", 100_000, "Capital to allocate in USD")
	scanCmd.Flags().Int("top", 0, "Override max candidates (0 uses config)")
	scanCmd.Flags().String("output", "table", "Output format (table|json)")
	scanCmd.Flags().Int64("seed", 42, "Simulated data seed")
	scanCmd.Flags().String("redis", "", "Redis address for the warm cache tier (empty disables)")

	strategiesCmd := &cobra.Command{
		Use:   "strategies",
		Short: "Compare strategy families over one scan",
		Long:  "Runs a scan and aggregates count, return and risk statistics per strategy",
		RunE:  runStrategies,
	}
	strategiesCmd.Flags().Int64("seed", 42, "Simulated data seed")
	strategiesCmd.Flags().String("output", "table", "Output format (table|json)")

	riskCmd := &cobra.Command{
		Use:   "risk",
		Short: "Show the risk report for the proposed allocation",
		Long:  "Runs a scan and prints the portfolio risk metrics, limit checks and stress scenarios",
		RunE:  runRisk,
	}
	riskCmd.Flags().Float64("capital", 100_000, "Capital to allocate in USD")
	riskCmd.Flags().Int64("seed", 42, "Simulated data seed")
	riskCmd.Flags().String("output", "table", "Output format (table|json)")

	rootCmd.AddCommand(scanCmd, strategiesCmd, riskCmd)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}
