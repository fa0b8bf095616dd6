package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/coderisk/coupler/internal/orchestrator"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run and manage analysis tasks",
}

var analyzeConfigID string

var analyzeRunCmd = &cobra.Command{
	Use:   "run <repo-id>",
	Short: "Enqueue an analysis task for a repository",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		taskID, err := svc.EnqueueAnalysis(context.Background(), args[0], analyzeConfigID)
		if err != nil {
			return err
		}
		fmt.Println(taskID)
		return nil
	},
}

var analyzeCancelCmd = &cobra.Command{
	Use:   "cancel <task-id>",
	Short: "Cancel a running analysis task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return svc.CancelAnalysis(args[0])
	},
}

var analyzeWatchCmd = &cobra.Command{
	Use:   "watch <task-id>",
	Short: "Stream progress for a running analysis task until it finishes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ch, err := svc.SubscribeProgress(args[0])
		if err != nil {
			return err
		}
		// An interactive terminal redraws the progress line in place; a
		// pipe or log file gets one line per snapshot instead.
		interactive := term.IsTerminal(int(os.Stdout.Fd()))
		var last orchestrator.ProgressSnapshot
		for snap := range ch {
			last = snap
			line := fmt.Sprintf("[%s] %s %.0f%% %s", snap.State, snap.Stage, snap.Percent, snap.Message)
			if interactive {
				fmt.Printf("\r\033[K%s", line)
			} else {
				fmt.Println(line)
			}
		}
		if interactive {
			fmt.Println()
		}
		fmt.Printf("final state: %s (entities=%d relationships=%d)\n", last.State, last.EntityCount, last.RelationshipCount)
		return nil
	},
}

func init() {
	analyzeRunCmd.Flags().StringVar(&analyzeConfigID, "config-id", "", "configuration to run (default: repository's active configuration)")
	analyzeCmd.AddCommand(analyzeRunCmd)
	analyzeCmd.AddCommand(analyzeCancelCmd)
	analyzeCmd.AddCommand(analyzeWatchCmd)
}
