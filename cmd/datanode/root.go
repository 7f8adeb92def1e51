package main

import (
	"github.com/spf13/cobra"
)

var flagConfigPath string

var rootCmd = &cobra.Command{
	Use:     "datanode",
	Short:   "datanode is a multi-tenant document-data node",
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfigPath, "config", ".", "directory containing config.yaml")
	rootCmd.AddCommand(serveCmd)
}
