package main

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/trackerkit/perkwatch/src/eventservices"
	"github.com/trackerkit/perkwatch/src/utils"
)

var runCmd = &cobra.Command{
	Use:   "go run src/cmd/export_events/main.go --journal events/automation_events_2025-01-01_00-00-00.csv",
	Short: "Summarize a recorded automation event journal",
	Run: func(cmd *cobra.Command, args []string) {
		journalPath, err := cmd.Flags().GetString("journal")
		if err != nil {
			log.Fatalf("error getting journal: %v", err)
		}

		if journalPath == "" {
			log.Fatal("missing --journal flag")
		}

		if err := Run(journalPath); err != nil {
			log.Fatalf("Error: %v", err)
		}
	},
}

func Run(journalPath string) error {
	events, err := utils.ImportFromCsv(journalPath)
	if err != nil {
		return fmt.Errorf("Run: %w", err)
	}

	report, err := eventservices.BuildDonationReport(events)
	if err != nil {
		return fmt.Errorf("Run: %w", err)
	}

	outcomes := make(map[string]int)
	for _, event := range events {
		outcomes[string(event.Outcome)]++
	}

	fmt.Printf("%d events in journal\n", len(events))
	for outcome, count := range outcomes {
		fmt.Printf("  %s: %d\n", outcome, count)
	}
	fmt.Println(report.String())

	return nil
}

func main() {
	runCmd.PersistentFlags().String("journal", "", "Path to an automation events CSV written by the scheduler")

	if err := runCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
