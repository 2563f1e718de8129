package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/quantavo/arbscan/internal/rank"
)

func runRisk(cmd *cobra.Command, args []string) error {
	orch, gw, _, err := buildPipeline(cmd)
	if err != nil {
		return err
	}
	defer gw.Close()

	capital, _ := cmd.Flags().GetFloat64("capital")
	res, err := orch.Scan(cmd.Context(), rank.ByScore, capital)
	if err != nil {
		return err
	}
	p := res.Portfolio
	if p == nil || len(p.Allocations) == 0 {
		fmt.Println("no feasible allocation")
		return nil
	}

	if format, _ := cmd.Flags().GetString("output"); format == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(p)
	}

	r := p.Risk
	fmt.Printf("portfolio  tier=%s  rating=%s  positions=%d  capital=$%.0f\n\n",
		p.Tier, p.Rating, len(p.Allocations), p.CapitalUSD)
	fmt.Printf("sigma            %.2f%%\n", 100*r.Sigma)
	fmt.Printf("var95            $%.0f\n", r.VaR95)
	fmt.Printf("var99            $%.0f\n", r.VaR99)
	fmt.Printf("sharpe           %.2f\n", r.Sharpe)
	fmt.Printf("concentration    %.3f\n", r.Concentration)
	fmt.Printf("diversification  %.2f\n", r.DiversificationRatio)
	fmt.Printf("risk parity      %.2f\n", r.RiskParityScore)

	if len(r.LimitBreaches) > 0 {
		fmt.Println("\nlimit breaches:")
		for _, b := range r.LimitBreaches {
			fmt.Printf("  - %s\n", b)
		}
	}

	fmt.Println("\nstress scenarios:")
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SCENARIO\tPNL\tPNL %\tWORST POSITION")
	for _, s := range p.Stress {
		worst := s.WorstLeg
		if worst == "" {
			worst = "-"
		}
		fmt.Fprintf(w, "%s\t$%.0f\t%.2f%%\t%s\n", s.Scenario, s.PnLUSD, 100*s.PnLPct, worst)
	}
	return w.Flush()
}
