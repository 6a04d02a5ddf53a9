package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	_ "modernc.org/sqlite"

	"github.com/versioned-streams/eventstore-go/aggregate"
	"github.com/versioned-streams/eventstore-go/eventstore"
	"github.com/versioned-streams/eventstore-go/eventstore/memoryengine"
	"github.com/versioned-streams/eventstore-go/eventstore/oteladapters"
	"github.com/versioned-streams/eventstore-go/eventstore/postgresengine"
	"github.com/versioned-streams/eventstore-go/eventstore/sqliteengine"
	"github.com/versioned-streams/eventstore-go/example/shared/core"
	"github.com/versioned-streams/eventstore-go/example/shared/shell"
	"github.com/versioned-streams/eventstore-go/snapshots"
)

const (
	defaultRate             = 10
	defaultTasksPerWorkflow = 3
	defaultScenarioWeights  = "80,10,10" // complete, fail, cancel
)

// Config holds the command-line configuration of the load generator.
// The engine and its connection settings come from the environment,
// see shell.DemoConfig.
type Config struct {
	Rate                 int
	TasksPerWorkflow     int
	ScenarioWeights      []int
	ObservabilityEnabled bool
}

// Store is what the demo needs from an engine: events plus snapshots.
// All three engines satisfy it.
type Store interface {
	aggregate.EventStore
	aggregate.SnapshotStore
}

func main() {
	cfg := parseFlags()

	demoCfg, err := shell.DemoConfigFromEnv()
	if err != nil {
		log.Fatalf("Invalid demo configuration: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	obsConfig := cfg.NewObservabilityConfig()

	store, cleanup, err := buildEventStore(ctx, demoCfg, obsConfig)
	if err != nil {
		log.Fatalf("Failed to create event store: %v", err)
	}
	defer cleanup()

	registry, err := shell.NewWorkflowRegistry()
	if err != nil {
		log.Fatalf("Failed to create event registry: %v", err)
	}

	policy, err := snapshots.NewPolicy(demoCfg.SnapshotFrequency)
	if err != nil {
		log.Fatalf("Invalid snapshot frequency %d: %v", demoCfg.SnapshotFrequency, err)
	}

	repository, err := aggregate.NewRepository(
		store, registry, core.NewWorkflow,
		aggregate.WithSnapshotting(store, policy),
	)
	if err != nil {
		log.Fatalf("Failed to create repository: %v", err)
	}

	loadGen := NewLoadGenerator(repository, cfg, obsConfig)

	errChan := make(chan error, 1)
	go func() {
		if runErr := loadGen.Start(ctx); runErr != nil {
			errChan <- fmt.Errorf("load generator failed: %w", runErr)
		}
	}()

	log.Printf("Workflow load generator started")
	log.Printf("Configuration: engine=%s, rate=%d req/s, tasks_per_workflow=%d, scenario_weights=%v",
		demoCfg.Engine, cfg.Rate, cfg.TasksPerWorkflow, cfg.ScenarioWeights)
	log.Printf("Press Ctrl+C to stop...")

	select {
	case sig := <-sigChan:
		log.Printf("Received signal %v, initiating graceful shutdown...", sig)
		cancel()
	case err := <-errChan:
		log.Printf("Error occurred: %v", err)
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := loadGen.Stop(shutdownCtx); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}

	log.Printf("Load generator stopped")
}

// buildEventStore creates the engine selected by the environment and returns
// it together with a cleanup function for its resources.
func buildEventStore(ctx context.Context, demoCfg shell.DemoConfig, obsConfig ObservabilityConfig) (Store, func(), error) {
	noop := func() {}

	switch demoCfg.Engine {
	case shell.EngineMemory:
		return memoryengine.NewEventStore(), noop, nil

	case shell.EngineSQLite:
		db, err := sql.Open("sqlite", demoCfg.SQLiteDSN)
		if err != nil {
			return nil, noop, fmt.Errorf("open sqlite database: %w", err)
		}
		if demoCfg.SQLiteDSN == ":memory:" {
			// every pooled connection of an in-memory DSN sees its own database
			db.SetMaxOpenConns(1)
		}

		es, err := sqliteengine.NewEventStore(db)
		if err != nil {
			return nil, noop, err
		}
		if err := es.InitSchema(ctx); err != nil {
			return nil, noop, fmt.Errorf("init sqlite schema: %w", err)
		}

		return es, func() { _ = db.Close() }, nil

	case shell.EnginePostgres:
		pool, err := pgxpool.New(ctx, demoCfg.PostgresDSN)
		if err != nil {
			return nil, noop, fmt.Errorf("create pgx pool: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, noop, fmt.Errorf("connect to postgres: %w", err)
		}

		var options []postgresengine.Option
		if obsConfig.ContextualLogger != nil {
			options = append(options, postgresengine.WithContextualLogger(obsConfig.ContextualLogger))
		}
		if obsConfig.MetricsCollector != nil {
			options = append(options, postgresengine.WithMetrics(obsConfig.MetricsCollector))
		}
		if obsConfig.TracingCollector != nil {
			options = append(options, postgresengine.WithTracing(obsConfig.TracingCollector))
		}

		es, err := postgresengine.NewEventStoreFromPGXPool(pool, options...)
		if err != nil {
			pool.Close()
			return nil, noop, err
		}

		return es, pool.Close, nil

	default:
		return nil, noop, fmt.Errorf("unknown engine %q", demoCfg.Engine)
	}
}

func parseFlags() Config {
	var (
		rate            = flag.Int("rate", defaultRate, "Workflow scenarios per second")
		tasks           = flag.Int("tasks-per-workflow", defaultTasksPerWorkflow, "Tasks per workflow lifecycle")
		scenarioWeights = flag.String("scenario-weights", defaultScenarioWeights, "Comma-separated weights for complete,fail,cancel scenarios")
		observability   = flag.Bool("observability-enabled", false, "Enable OpenTelemetry observability")
	)

	flag.Parse()

	weights, err := parseScenarioWeights(*scenarioWeights)
	if err != nil {
		log.Fatalf("Invalid scenario weights '%s': %v", *scenarioWeights, err)
	}

	return Config{
		Rate:                 *rate,
		TasksPerWorkflow:     *tasks,
		ScenarioWeights:      weights,
		ObservabilityEnabled: *observability,
	}
}

func parseScenarioWeights(weightsStr string) ([]int, error) {
	parts := strings.Split(weightsStr, ",")
	if len(parts) != 3 {
		return nil, fmt.Errorf("expected 3 weights, got %d", len(parts))
	}

	weights := make([]int, 3)
	total := 0
	for i, part := range parts {
		weight, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("invalid weight '%s': %w", part, err)
		}
		if weight < 0 || weight > 100 {
			return nil, fmt.Errorf("weight %d out of range [0, 100]", weight)
		}
		weights[i] = weight
		total += weight
	}

	if total != 100 {
		return nil, fmt.Errorf("weights must sum to 100, got %d", total)
	}

	return weights, nil
}

// ObservabilityConfig holds the observability adapters shared by the engine
// and the command handlers.
type ObservabilityConfig struct {
	ContextualLogger eventstore.ContextualLogger
	MetricsCollector eventstore.MetricsCollector
	TracingCollector eventstore.TracingCollector
}

// NewObservabilityConfig creates OpenTelemetry adapters from the global
// providers when observability is enabled.
func (c Config) NewObservabilityConfig() ObservabilityConfig {
	if !c.ObservabilityEnabled {
		return ObservabilityConfig{}
	}

	tracer := otel.Tracer("workflow-load-generator")
	meter := otel.Meter("workflow-load-generator")

	return ObservabilityConfig{
		ContextualLogger: oteladapters.NewSlogBridgeLogger("workflow-load-generator"),
		MetricsCollector: oteladapters.NewMetricsCollector(meter),
		TracingCollector: oteladapters.NewTracingCollector(tracer),
	}
}
