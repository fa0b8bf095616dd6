package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var (
	hotspotsSortBy string
	hotspotsLimit  int
)

var hotspotsCmd = &cobra.Command{
	Use:   "hotspots <repo-id>",
	Short: "List a repository's highest-risk files",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hotspots, err := svc.GetHotspots(context.Background(), args[0], hotspotsSortBy, hotspotsLimit)
		if err != nil {
			return err
		}
		tbl := table.NewWriter()
		tbl.SetOutputMirror(os.Stdout)
		tbl.SetStyle(table.StyleLight)
		tbl.AppendHeader(table.Row{"path", "risk", "commits", "authors", "churn", "max_coupling"})
		for _, h := range hotspots {
			tbl.AppendRow(table.Row{h.Path, fmt.Sprintf("%.1f", h.RiskScore), h.TotalCommits, h.AuthorsCount, h.Churn, fmt.Sprintf("%.2f", h.MaxCoupling)})
		}
		tbl.Render()
		return nil
	},
}

func init() {
	hotspotsCmd.Flags().StringVar(&hotspotsSortBy, "sort-by", "risk", "sort field: risk, commits, churn, coupling")
	hotspotsCmd.Flags().IntVar(&hotspotsLimit, "limit", 20, "maximum rows to show")
}
