package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"flotilla/mission"
	"flotilla/streamers/cli"
)

var resourceClass string

var runCmd = &cobra.Command{
	Use:   "run [objective]",
	Short: "Run a mission",
	Long:  `Create a mission for the given objective and drive it to completion. The orchestrator selects a planner, executes the plan with parallel independent tasks, and replans on failure up to the adaptive cycle limit.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		objective := args[0]

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		streamer := cli.NewMissionHandler()
		a, err := newApp(configPath, streamer)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer a.Close()

		missionID, err := a.stores.Missions.CreateMission(objective, resourceClass)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating mission: %v\n", err)
			os.Exit(1)
		}

		final, err := a.orch.Run(ctx, missionID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "\nMission failed to run: %v\n", err)
			os.Exit(1)
		}
		if final.Status != mission.MissionSuccess {
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVarP(&configPath, "config", "c", ".", "Path to config file or directory")
	runCmd.Flags().StringVarP(&resourceClass, "resource-class", "r", "default", "Resource class the mission competes in")
}
