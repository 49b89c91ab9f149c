package main

import (
	"fmt"

	"github.com/ethpandaops/promotoor/pkg/config"
	"github.com/spf13/cobra"
)

var configInitOutput string

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration helpers",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Default()

		if err := cfg.WriteFile(configInitOutput); err != nil {
			return err
		}

		fmt.Printf("Wrote %s\n", configInitOutput)

		return nil
	},
}

func init() {
	configInitCmd.Flags().StringVar(&configInitOutput, "output",
		"promotoor.yaml", "output file path")

	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}
