package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the airouter version",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Version needs no component graph.
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("airouter %s\n", Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
