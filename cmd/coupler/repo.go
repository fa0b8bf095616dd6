package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var repoCmd = &cobra.Command{
	Use:   "repo",
	Short: "Manage registered repositories",
}

var repoAddCmd = &cobra.Command{
	Use:   "add <source-path> <name>",
	Short: "Register a repository and seed its default configuration",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, err := svc.CreateRepository(context.Background(), args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Printf("registered repository %s (%s)\n", repo.Name, repo.RepoID)
		return nil
	},
}

var repoListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered repositories",
	RunE: func(cmd *cobra.Command, args []string) error {
		repos, err := svc.ListRepositories(context.Background())
		if err != nil {
			return err
		}
		tbl := table.NewWriter()
		tbl.SetOutputMirror(os.Stdout)
		tbl.SetStyle(table.StyleLight)
		tbl.AppendHeader(table.Row{"repo_id", "name", "source_path", "created_at"})
		for _, r := range repos {
			tbl.AppendRow(table.Row{r.RepoID, r.Name, r.SourcePath, r.CreatedAt.Format("2006-01-02 15:04")})
		}
		tbl.Render()
		return nil
	},
}

var repoRmCmd = &cobra.Command{
	Use:   "rm <repo-id>",
	Short: "Remove a repository and its stored state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := svc.DeleteRepository(context.Background(), args[0]); err != nil {
			return err
		}
		fmt.Printf("removed repository %s\n", args[0])
		return nil
	},
}

func init() {
	repoCmd.AddCommand(repoAddCmd)
	repoCmd.AddCommand(repoListCmd)
	repoCmd.AddCommand(repoRmCmd)
}
