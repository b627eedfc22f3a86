package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "flotilla",
	Short: "Flotilla is a mission orchestration CLI",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("Welcome to Flotilla! Use --help to see available commands.")
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
