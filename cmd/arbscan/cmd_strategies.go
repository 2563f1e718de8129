package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/quantavo/arbscan/internal/rank"
	"github.com/quantavo/arbscan/internal/scan"
)

func runStrategies(cmd *cobra.Command, args []string) error {
	orch, gw, _, err := buildPipeline(cmd)
	if err != nil {
		return err
	}
	defer gw.Close()

	res, err := orch.Scan(cmd.Context(), rank.ByScore, 0)
	if err != nil {
		return err
	}
	stats := scan.CompareStrategies(res.Opportunities)

	if format, _ := cmd.Flags().GetString("output"); format == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "STRATEGY\tCOUNT\tAVG RETURN\tBEST RETURN\tAVG RISK\tAVG SHARPE")
	for _, s := range stats {
		sharpe := "-"
		if s.AvgSharpe != nil {
			sharpe = fmt.Sprintf("%.2f", *s.AvgSharpe)
		}
		fmt.Fprintf(w, "%s\t%d\t%.3f%%\t%.3f%%\t%.0f\t%s\n",
			s.Strategy, s.Count, 100*s.AvgReturn, 100*s.BestReturn, s.AvgRisk, sharpe)
	}
	return w.Flush()
}
