package main

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/trackerkit/perkwatch/src/configstore"
	"github.com/trackerkit/perkwatch/src/eventconsumers"
	"github.com/trackerkit/perkwatch/src/eventservices"
	"github.com/trackerkit/perkwatch/src/utils"
)

var runCmd = &cobra.Command{
	Use:   "go run src/cmd/sessions/main.go",
	Short: "Print session and perk automation status",
	Run: func(cmd *cobra.Command, args []string) {
		goEnv, err := cmd.Flags().GetString("go-env")
		if err != nil {
			log.Fatalf("error getting go-env: %v", err)
		}

		configPath, err := cmd.Flags().GetString("config")
		if err != nil {
			log.Fatalf("error getting config: %v", err)
		}

		if err := Run(goEnv, configPath); err != nil {
			log.Fatalf("Error: %v", err)
		}
	},
}

func Run(goEnv, configPath string) error {
	projectDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("Run: failed to get working directory: %w", err)
	}

	if err := utils.InitEnvironmentVariables(projectDir, goEnv); err != nil {
		log.Warnf("Run: %v", err)
	}

	if configPath == "" {
		configPath = os.Getenv("SESSIONS_CONFIG_PATH")
	}
	if configPath == "" {
		return fmt.Errorf("Run: missing SESSIONS_CONFIG_PATH environment variable")
	}

	store := configstore.NewYAMLSessionStore(configPath)

	config, err := store.LoadSessions()
	if err != nil {
		return fmt.Errorf("Run: failed to load sessions: %w", err)
	}

	guardrails := eventconsumers.NewGuardrailRegistry()
	guardrails.Seed(config.Sessions)

	fmt.Println(eventservices.RenderSessionsTable(config, guardrails))

	return nil
}

func main() {
	runCmd.PersistentFlags().String("go-env", "development", "The go environment to run the command in")
	runCmd.PersistentFlags().String("config", "", "Path to the sessions config file (defaults to SESSIONS_CONFIG_PATH)")

	if err := runCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
