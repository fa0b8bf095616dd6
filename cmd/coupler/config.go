package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage per-repository analysis configurations",
}

var configFromFile string

var configSetCmd = &cobra.Command{
	Use:   "set <repo-id> <name>",
	Short: "Save a new analysis configuration version from a YAML options file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw := map[string]interface{}{}
		if configFromFile != "" {
			data, err := os.ReadFile(configFromFile)
			if err != nil {
				return fmt.Errorf("read options file: %w", err)
			}
			if err := yaml.Unmarshal(data, &raw); err != nil {
				return fmt.Errorf("parse options file: %w", err)
			}
		}

		opts, err := decodeOptions(raw)
		if err != nil {
			return err
		}

		configID, err := svc.UpsertConfiguration(context.Background(), args[0], args[1], opts)
		if err != nil {
			return err
		}
		fmt.Printf("saved configuration %s (%s)\n", args[1], configID)
		return nil
	},
}

var configActivateCmd = &cobra.Command{
	Use:   "activate <repo-id> <config-id>",
	Short: "Make a saved configuration the active one for a repository",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := svc.ActivateConfiguration(context.Background(), args[0], args[1]); err != nil {
			return err
		}
		fmt.Printf("activated configuration %s for %s\n", args[1], args[0])
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show <repo-id>",
	Short: "List a repository's configuration versions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		configs, err := store.ListConfigurations(context.Background(), args[0])
		if err != nil {
			return err
		}
		tbl := table.NewWriter()
		tbl.SetOutputMirror(os.Stdout)
		tbl.SetStyle(table.StyleLight)
		tbl.AppendHeader(table.Row{"config_id", "name", "version", "active"})
		for _, c := range configs {
			tbl.AppendRow(table.Row{c.ConfigID, c.Name, c.Version, c.Active})
		}
		tbl.Render()
		return nil
	},
}

func init() {
	configSetCmd.Flags().StringVar(&configFromFile, "from-file", "", "YAML file of analysis options (unset keys use documented defaults)")
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configActivateCmd)
	configCmd.AddCommand(configShowCmd)
}
