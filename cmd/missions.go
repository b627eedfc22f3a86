package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var missionLimit int

var missionsCmd = &cobra.Command{
	Use:   "missions",
	Short: "Inspect stored missions",
}

var missionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent missions",
	Run: func(cmd *cobra.Command, args []string) {
		a, err := newApp(configPath, nil)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer a.Close()

		missions, err := a.stores.Missions.ListMissions(missionLimit)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if len(missions) == 0 {
			fmt.Println("No missions recorded")
			return
		}
		for _, m := range missions {
			summary := ""
			if m.ResultSummary != nil {
				summary = *m.ResultSummary
			}
			fmt.Printf("%s  %-8s  cycles=%d  cost=$%.4f  %s\n",
				m.ID, m.Status, m.AdaptiveCycles, m.TotalCost, m.Objective)
			if summary != "" {
				fmt.Printf("    %s\n", summary)
			}
		}
	},
}

var missionsEventsCmd = &cobra.Command{
	Use:   "events [mission_id]",
	Short: "Show the event log for a mission",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a, err := newApp(configPath, nil)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer a.Close()

		events, err := a.stores.Events.GetEventsByMission(args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		for _, e := range events {
			line := fmt.Sprintf("%4d  %s  %s", e.Seq, e.CreatedAt.Format("15:04:05.000"), e.EventType)
			if e.Note != "" {
				line += "  " + e.Note
			}
			fmt.Println(line)
		}
	},
}

func init() {
	rootCmd.AddCommand(missionsCmd)
	missionsCmd.AddCommand(missionsListCmd)
	missionsCmd.AddCommand(missionsEventsCmd)
	missionsCmd.PersistentFlags().StringVarP(&configPath, "config", "c", ".", "Path to config file or directory")
	missionsListCmd.Flags().IntVarP(&missionLimit, "limit", "n", 20, "Maximum missions to list")
}
