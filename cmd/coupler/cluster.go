package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/coderisk/coupler/internal/apperrors"
	"github.com/coderisk/coupler/internal/cluster"
)

var registry = cluster.NewRegistry()

var (
	clusterParams []string
)

var clusterCmd = &cobra.Command{
	Use:   "cluster",
	Short: "Run and inspect clustering over the coupling graph",
}

var clusterRunCmd = &cobra.Command{
	Use:   "run <repo-id> <algorithm>",
	Short: fmt.Sprintf("Run a clustering algorithm (%s)", strings.Join(registry.Names(), ", ")),
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		repoID, algoName := args[0], args[1]

		params, err := parseParams(clusterParams)
		if err != nil {
			return err
		}

		run, err := svc.RunClustering(context.Background(), repoID, algoName, params)
		if err != nil {
			return err
		}

		fmt.Printf("run %s: %d clusters\n", run.RunID, run.ClusterCount)
		return nil
	},
}

var clusterListCmd = &cobra.Command{
	Use:   "list <repo-id>",
	Short: "List clustering runs for a repository",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		runs, err := store.ListClusterRuns(context.Background(), args[0])
		if err != nil {
			return err
		}
		tbl := table.NewWriter()
		tbl.SetOutputMirror(os.Stdout)
		tbl.SetStyle(table.StyleLight)
		tbl.AppendHeader(table.Row{"run_id", "algorithm", "clusters", "created_at"})
		for _, r := range runs {
			tbl.AppendRow(table.Row{r.RunID, r.Algorithm, r.ClusterCount, r.CreatedAt.Format("2006-01-02 15:04")})
		}
		tbl.Render()
		return nil
	},
}

// parseParams turns "key=value" flags into a clustering parameter map,
// coercing each value to a float64/bool when it parses as one so numeric
// ParameterSchema defaults (e.g. min_weight, max_iterations) round-trip
// without extra caller-side conversion.
func parseParams(raw []string) (map[string]interface{}, error) {
	out := map[string]interface{}{}
	for _, kv := range raw {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 {
			return nil, apperrors.InputErrorf("cluster: invalid --param %q, expected key=value", kv)
		}
		key, val := parts[0], parts[1]
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			out[key] = f
			continue
		}
		if b, err := strconv.ParseBool(val); err == nil {
			out[key] = b
			continue
		}
		out[key] = val
	}
	return out, nil
}

func init() {
	clusterRunCmd.Flags().StringArrayVar(&clusterParams, "param", nil, "algorithm parameter as key=value, repeatable")
	clusterCmd.AddCommand(clusterRunCmd)
	clusterCmd.AddCommand(clusterListCmd)
}
