package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var plannersCmd = &cobra.Command{
	Use:   "planners",
	Short: "List discovered planners and their reliability",
	Run: func(cmd *cobra.Command, args []string) {
		a, err := newApp(configPath, nil)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer a.Close()

		names := a.registry.ListNames()
		if len(names) == 0 {
			fmt.Println("No planners discovered")
			return
		}
		for _, name := range names {
			entry, _ := a.registry.Lookup(name)
			selections, instantiations := a.profiler.HistoryLen(name)
			fmt.Printf("%-12s  %-8s  v%-8s  reliability=%.2f  history=%d/%d  %s\n",
				name, entry.Kind, entry.Version, a.profiler.Reliability(name),
				selections, instantiations, shortHash(entry.Fingerprint.SHA256))
		}
	},
}

func shortHash(sum string) string {
	if len(sum) > 12 {
		return sum[:12]
	}
	return sum
}

func init() {
	rootCmd.AddCommand(plannersCmd)
	plannersCmd.Flags().StringVarP(&configPath, "config", "c", ".", "Path to config file or directory")
}
