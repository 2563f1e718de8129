package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/quantavo/arbscan/internal/config"
	"github.com/quantavo/arbscan/internal/gateway"
	"github.com/quantavo/arbscan/internal/rank"
	"github.com/quantavo/arbscan/internal/scan"
	"github.com/quantavo/arbscan/internal/source/sim"
)

// buildPipeline assembles the gateway and orchestrator from flags. The data
// source is the deterministic simulator; venue adapters plug in through the
// same interfaces.
func buildPipeline(cmd *cobra.Command) (*scan.Orchestrator, *gateway.Gateway, *config.Config, error) {
	cfgPath, _ := cmd.Flags().GetString("config")
	level, _ := cmd.Flags().GetString("log-level")
	if lvl, err := zerolog.ParseLevel(level); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, nil, err
	}

	seed, _ := cmd.Flags().GetInt64("seed")
	src := sim.New(seed)

	var opts []gateway.Option
	if addr, _ := cmd.Flags().GetString("redis"); addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: addr})
		opts = append(opts, gateway.WithWarmTier(gateway.NewWarmTier(rdb, "arbscan")))
	}

	gw := gateway.New(src, []gateway.FiatSource{src}, cfg.Gateway, log.Logger, opts...)
	orch := scan.New(gw, cfg, log.Logger)
	return orch, gw, cfg, nil
}

func runScan(cmd *cobra.Command, args []string) error {
	orch, gw, cfg, err := buildPipeline(cmd)
	if err != nil {
		return err
	}
	defer gw.Close()

	if top, _ := cmd.Flags().GetInt("top"); top > 0 {
		cfg.Scanning.MaxCandidates = top
	}
	policyStr, _ := cmd.Flags().GetString("policy")
	capital, _ := cmd.Flags().GetFloat64("capital")

	res, err := orch.Scan(cmd.Context(), rank.Policy(policyStr), capital)
	if err != nil {
		return err
	}

	if format, _ := cmd.Flags().GetString("output"); format == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	fmt.Printf("scan %s  status=%s  took=%s  opportunities=%d\n\n",
		res.ScanID, res.Status, res.Duration.Round(time.Millisecond), len(res.Opportunities))

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "#\tSTRATEGY\tRETURN\tRISK\tCONF\tSCORE\tPRIORITY\tREC\tLIQUIDITY")
	for i, o := range res.Opportunities {
		fmt.Fprintf(w, "%d\t%s\t%.3f%%\t%.0f\t%.0f\t%.1f\t%s\t%s\t$%.0f\n",
			i+1, o.Strategy, 100*o.ExpectedReturn, o.RiskScore, o.Confidence,
			o.Score, o.Priority, o.Recommendation, o.LiquidityUSD)
	}
	w.Flush()

	if p := res.Portfolio; p != nil && len(p.Allocations) > 0 {
		fmt.Printf("\nallocation  tier=%s  rating=%s  expected=%.3f%%  var95=$%.0f\n",
			p.Tier, p.Rating, 100*p.ExpectedReturn, p.Risk.VaR95)
		aw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(aw, "ID\tSTRATEGY\tWEIGHT\tCAPITAL")
		for _, a := range p.Allocations {
			fmt.Fprintf(aw, "%s\t%s\t%.1f%%\t$%.0f\n", a.OpportunityID, a.Strategy, 100*a.Weight, a.CapitalUSD)
		}
		aw.Flush()
	}
	return nil
}
