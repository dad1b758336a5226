package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/uptrace/opentelemetry-go-extra/otellogrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdk_trace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/trackerkit/perkwatch/src/configstore"
	"github.com/trackerkit/perkwatch/src/eventconsumers"
	"github.com/trackerkit/perkwatch/src/eventpubsub"
	"github.com/trackerkit/perkwatch/src/utils"
)

type RunArgs struct {
	GoEnv      string
	ConfigPath string
}

var runCmd = &cobra.Command{
	Use:   "go run src/cmd/scheduler/main.go",
	Short: "Run the perk automation scheduler",
	Run: func(cmd *cobra.Command, args []string) {
		goEnv, err := cmd.Flags().GetString("go-env")
		if err != nil {
			log.Fatalf("error getting go-env: %v", err)
		}

		configPath, err := cmd.Flags().GetString("config")
		if err != nil {
			log.Fatalf("error getting config: %v", err)
		}

		if err := Run(RunArgs{GoEnv: goEnv, ConfigPath: configPath}); err != nil {
			log.Fatalf("Error: %v", err)
		}
	},
}

// setupOTelSDK bootstraps the trace pipeline when an OTLP endpoint is
// configured. Returns a shutdown function for cleanup.
func setupOTelSDK(ctx context.Context) (func(context.Context) error, error) {
	if os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") == "" {
		return func(context.Context) error { return nil }, nil
	}

	prop := propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	)
	otel.SetTextMapPropagator(prop)

	traceExporter, err := otlptrace.New(ctx, otlptracehttp.NewClient())
	if err != nil {
		return nil, err
	}

	res, _ := resource.New(ctx, resource.WithAttributes(attribute.String("service.name", "perkwatch")))

	tracerProvider := sdk_trace.NewTracerProvider(
		sdk_trace.WithBatcher(traceExporter),
		sdk_trace.WithResource(res),
	)
	otel.SetTracerProvider(tracerProvider)

	log.AddHook(otellogrus.NewHook(otellogrus.WithLevels(
		log.PanicLevel,
		log.FatalLevel,
		log.ErrorLevel,
		log.WarnLevel,
	)))

	return tracerProvider.Shutdown, nil
}

func envDuration(key string, unit time.Duration, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}

	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		log.Warnf("invalid %s value %q, using default %v", key, raw, fallback)
		return fallback
	}

	return time.Duration(value) * unit
}

func vaultTotalFromFile(path string) eventconsumers.VaultTotalFunc {
	return func(ctx context.Context) (uint64, error) {
		bytes, err := os.ReadFile(path)
		if err != nil {
			return 0, fmt.Errorf("vaultTotalFromFile: failed to read %s: %w", path, err)
		}

		total, err := strconv.ParseUint(strings.TrimSpace(string(bytes)), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("vaultTotalFromFile: failed to parse %s: %w", path, err)
		}

		return total, nil
	}
}

func Run(args RunArgs) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	projectDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("Run: failed to get working directory: %w", err)
	}

	if err := utils.InitEnvironmentVariables(projectDir, args.GoEnv); err != nil {
		log.Warnf("Run: %v", err)
	}

	otelShutdown, err := setupOTelSDK(ctx)
	if err != nil {
		return fmt.Errorf("Run: failed to set up telemetry: %w", err)
	}

	configPath := args.ConfigPath
	if configPath == "" {
		configPath = os.Getenv("SESSIONS_CONFIG_PATH")
	}
	if configPath == "" {
		return errors.New("Run: missing SESSIONS_CONFIG_PATH environment variable")
	}

	vaultTotalPath := os.Getenv("VAULT_TOTAL_FILE")
	if vaultTotalPath == "" {
		return errors.New("Run: missing VAULT_TOTAL_FILE environment variable")
	}

	eventsOutDir := os.Getenv("EVENTS_OUT_DIR")
	if eventsOutDir == "" {
		eventsOutDir = "events"
	}

	tickInterval := envDuration("CHECK_INTERVAL_MINUTES", time.Minute, 15*time.Minute)
	resultTimeout := envDuration("EXECUTOR_RESULT_TIMEOUT_SECONDS", time.Second, 5*time.Minute)

	eventpubsub.Init()

	store := configstore.NewYAMLSessionStore(configPath)

	config, err := store.LoadSessions()
	if err != nil {
		return fmt.Errorf("Run: failed to load sessions: %w", err)
	}

	guardrails := eventconsumers.NewGuardrailRegistry()
	guardrails.Seed(config.Sessions)

	potTracker := eventconsumers.NewPotCycleTracker(vaultTotalFromFile(vaultTotalPath), config.PotTracking)

	wg := sync.WaitGroup{}

	journal := eventconsumers.NewEventJournal(&wg, eventsOutDir)
	journal.Start(ctx)

	executor := eventconsumers.NewStubExecutor(&wg, 2*time.Second)
	executor.Start(ctx)

	worker := eventconsumers.NewPerkAutomationWorker(&wg, store, guardrails, potTracker, tickInterval, resultTimeout)
	worker.Start(ctx)

	log.Infof("scheduler started: %d sessions, tick interval %v", len(config.Sessions), tickInterval)

	worker.Tick(ctx)

	<-ctx.Done()

	log.Info("shutdown signal received, waiting for workers")
	wg.Wait()

	if err := otelShutdown(context.Background()); err != nil {
		log.Errorf("Run: telemetry shutdown: %v", err)
	}

	return nil
}

func main() {
	runCmd.PersistentFlags().String("go-env", "development", "The go environment to run the command in")
	runCmd.PersistentFlags().String("config", "", "Path to the sessions config file (defaults to SESSIONS_CONFIG_PATH)")

	if err := runCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
