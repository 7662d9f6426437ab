package main

import "github.com/spf13/cobra"

var rootCmd = &cobra.Command{
	Use:   "retrato-api",
	Short: "Photo transformation job service",
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(runCmd)
}
