package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var (
	couplingMetric    string
	couplingMinWeight float64
	couplingLimit     int
)

var couplingCmd = &cobra.Command{
	Use:   "coupling <repo-id> <path>",
	Short: "List a file's top logically coupled neighbors",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		center, err := store.GetEntityByPath(ctx, args[0], args[1])
		if err != nil {
			return err
		}

		rels, err := svc.GetCoupling(ctx, args[0], args[1], couplingMetric, couplingMinWeight, couplingLimit)
		if err != nil {
			return err
		}

		entities := map[int64]string{}
		resolve := func(id int64) string {
			if name, ok := entities[id]; ok {
				return name
			}
			e, err := store.GetEntity(ctx, id)
			if err != nil {
				return fmt.Sprintf("#%d", id)
			}
			entities[id] = e.QualifiedName
			return e.QualifiedName
		}

		tbl := table.NewWriter()
		tbl.SetOutputMirror(os.Stdout)
		tbl.SetStyle(table.StyleLight)
		tbl.AppendHeader(table.Row{"neighbor", "jaccard", "jaccard_weighted", "p_dst_given_src", "p_src_given_dst", "pair_count"})
		for _, r := range rels {
			other := r.Dst
			if other == center.EntityID {
				other = r.Src
			}
			tbl.AppendRow(table.Row{
				resolve(other), r.Properties.Jaccard, r.Properties.JaccardWeighted,
				r.Properties.PDstGivenSrc, r.Properties.PSrcGivenDst, r.Properties.PairCount,
			})
		}
		tbl.Render()
		return nil
	},
}

func init() {
	couplingCmd.Flags().StringVar(&couplingMetric, "metric", "jaccard", "ranking metric: jaccard, jaccard_weighted, p_dst_given_src, p_src_given_dst, pair_count")
	couplingCmd.Flags().Float64Var(&couplingMinWeight, "min-weight", 0, "drop neighbors below this metric value")
	couplingCmd.Flags().IntVar(&couplingLimit, "limit", 20, "maximum neighbors to show")
}
