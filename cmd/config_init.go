package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/andre-sav/HADES-sub001/internal/config"
)

var (
	configInitPath  string
	configInitForce bool
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a commented default config.yaml",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.WriteTemplate(configInitPath, configInitForce); err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "wrote %s\n", configInitPath)
		return nil
	},
}

func init() {
	configInitCmd.Flags().StringVar(&configInitPath, "path", "config.yaml", "where to write the template")
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "overwrite an existing file")
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}
