// Package main implements a load generator that drives realistic research
// workflow lifecycles against a configurable event store engine.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/versioned-streams/eventstore-go/aggregate"
	"github.com/versioned-streams/eventstore-go/example/features/command/completeexecution"
	"github.com/versioned-streams/eventstore-go/example/features/command/completetask"
	"github.com/versioned-streams/eventstore-go/example/features/command/createtask"
	"github.com/versioned-streams/eventstore-go/example/features/command/createworkflow"
	"github.com/versioned-streams/eventstore-go/example/features/command/startexecution"
	"github.com/versioned-streams/eventstore-go/example/shared/core"
	"github.com/versioned-streams/eventstore-go/example/shared/shell"
)

const scenarioTimeout = 10 * time.Second

// LoadGenerator runs weighted workflow scenarios at a configured rate.
// Each scenario is one full workflow lifecycle, so a single scenario produces
// a burst of commands against the same stream.
type LoadGenerator struct {
	repository *aggregate.Repository[*core.Workflow]
	config     Config

	createWorkflowHandler    createworkflow.CommandHandler
	startExecutionHandler    startexecution.CommandHandler
	createTaskHandler        createtask.CommandHandler
	completeTaskHandler      completetask.CommandHandler
	completeExecutionHandler completeexecution.CommandHandler

	ticker   *time.Ticker
	stopChan chan struct{}
	wg       sync.WaitGroup

	requestCount int64
	errorCount   int64
	startTime    time.Time
	mu           sync.RWMutex
}

// NewLoadGenerator creates a LoadGenerator with command handlers wired to the
// provided repository.
func NewLoadGenerator(
	repository *aggregate.Repository[*core.Workflow],
	config Config,
	obsConfig ObservabilityConfig,
) *LoadGenerator {

	return &LoadGenerator{
		repository: repository,
		config:     config,
		stopChan:   make(chan struct{}),

		createWorkflowHandler: mustCreateCommandHandler(
			createworkflow.NewCommandHandler(repository, buildCreateWorkflowOptions(obsConfig)...)),
		startExecutionHandler: mustCreateCommandHandler(
			startexecution.NewCommandHandler(repository, buildStartExecutionOptions(obsConfig)...)),
		createTaskHandler: mustCreateCommandHandler(
			createtask.NewCommandHandler(repository, buildCreateTaskOptions(obsConfig)...)),
		completeTaskHandler: mustCreateCommandHandler(
			completetask.NewCommandHandler(repository, buildCompleteTaskOptions(obsConfig)...)),
		completeExecutionHandler: mustCreateCommandHandler(
			completeexecution.NewCommandHandler(repository, buildCompleteExecutionOptions(obsConfig)...)),
	}
}

func buildCreateWorkflowOptions(obsConfig ObservabilityConfig) []createworkflow.Option {
	if obsConfig.MetricsCollector == nil {
		return nil
	}
	return []createworkflow.Option{createworkflow.WithRetryOptions(
		shell.WithRetryMetrics(obsConfig.MetricsCollector, core.CommandCreateWorkflow),
	)}
}

func buildStartExecutionOptions(obsConfig ObservabilityConfig) []startexecution.Option {
	if obsConfig.MetricsCollector == nil {
		return nil
	}
	return []startexecution.Option{startexecution.WithRetryOptions(
		shell.WithRetryMetrics(obsConfig.MetricsCollector, core.CommandStartExecution),
	)}
}

func buildCreateTaskOptions(obsConfig ObservabilityConfig) []createtask.Option {
	if obsConfig.MetricsCollector == nil {
		return nil
	}
	return []createtask.Option{createtask.WithRetryOptions(
		shell.WithRetryMetrics(obsConfig.MetricsCollector, core.CommandCreateTask),
	)}
}

func buildCompleteTaskOptions(obsConfig ObservabilityConfig) []completetask.Option {
	if obsConfig.MetricsCollector == nil {
		return nil
	}
	return []completetask.Option{completetask.WithRetryOptions(
		shell.WithRetryMetrics(obsConfig.MetricsCollector, core.CommandCompleteTask),
	)}
}

func buildCompleteExecutionOptions(obsConfig ObservabilityConfig) []completeexecution.Option {
	if obsConfig.MetricsCollector == nil {
		return nil
	}
	return []completeexecution.Option{completeexecution.WithRetryOptions(
		shell.WithRetryMetrics(obsConfig.MetricsCollector, core.CommandCompleteExecution),
	)}
}

// Start begins load generation with the configured scenario rate.
// It runs until the context is cancelled or Stop() is called.
func (lg *LoadGenerator) Start(ctx context.Context) error {
	lg.mu.Lock()
	lg.startTime = time.Now()
	lg.requestCount = 0
	lg.errorCount = 0
	lg.mu.Unlock()

	interval := time.Second / time.Duration(lg.config.Rate)
	lg.ticker = time.NewTicker(interval)
	defer lg.ticker.Stop()

	log.Printf("Load generator starting with %d scenarios/second (interval: %v), initial goroutines: %d",
		lg.config.Rate, interval, runtime.NumGoroutine())

	lg.wg.Add(1)
	go lg.metricsReporter(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Printf("Load generator stopping due to context cancellation")
			return ctx.Err()

		case <-lg.stopChan:
			log.Printf("Load generator stopping due to stop signal")
			return nil

		case <-lg.ticker.C:
			lg.wg.Add(1)
			go lg.executeScenario(ctx)
		}
	}
}

// Stop gracefully shuts down the load generator.
func (lg *LoadGenerator) Stop(ctx context.Context) error {
	close(lg.stopChan)

	done := make(chan struct{})
	go func() {
		lg.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		lg.logFinalStats()
		return nil
	case <-ctx.Done():
		lg.logFinalStats()
		return fmt.Errorf("shutdown timeout exceeded")
	}
}

// executeScenario runs a single workflow lifecycle based on configured weights.
func (lg *LoadGenerator) executeScenario(ctx context.Context) {
	defer lg.wg.Done()

	scenarioType := lg.selectScenario()

	var err error
	switch scenarioType {
	case "complete":
		err = lg.runCompleteScenario(ctx)
	case "fail":
		err = lg.runFailScenario(ctx)
	case "cancel":
		err = lg.runCancelScenario(ctx)
	default:
		err = fmt.Errorf("unknown scenario type: %s", scenarioType)
	}

	lg.mu.Lock()
	lg.requestCount++
	if err != nil {
		lg.errorCount++
		log.Printf("Scenario error (%s): %v", scenarioType, err)
	}
	lg.mu.Unlock()
}

// selectScenario chooses a scenario type based on configured weights.
func (lg *LoadGenerator) selectScenario() string {
	r := rand.Intn(100) //nolint:gosec // Test code - weak random is acceptable

	// Weights: [complete, fail, cancel]
	// Example: [80, 10, 10] -> complete: 0-79, fail: 80-89, cancel: 90-99
	if r < lg.config.ScenarioWeights[0] {
		return "complete"
	}
	if r < lg.config.ScenarioWeights[0]+lg.config.ScenarioWeights[1] {
		return "fail"
	}

	return "cancel"
}

// runCompleteScenario drives one workflow from creation through task
// execution to successful completion.
func (lg *LoadGenerator) runCompleteScenario(ctx context.Context) error {
	opCtx, cancel := context.WithTimeout(ctx, scenarioTimeout)
	defer cancel()

	workflowID := uuid.New()

	if err := lg.startWorkflow(opCtx, workflowID); err != nil {
		return err
	}

	for i := 0; i < lg.config.TasksPerWorkflow; i++ {
		taskID := uuid.New()

		if err := lg.createTaskHandler.Handle(opCtx,
			createtask.BuildCommand(workflowID, taskID, "web_search", "researcher", time.Now())); err != nil {
			return err
		}

		result := json.RawMessage(fmt.Sprintf(`{"task": %d, "sources": %d}`, i, rand.Intn(10))) //nolint:gosec
		if err := lg.completeTaskHandler.Handle(opCtx,
			completetask.BuildCommand(workflowID, taskID, result, time.Now())); err != nil {
			return err
		}
	}

	results := core.Results{
		Summary:         "load test run",
		ConfidenceScore: rand.Float64(), //nolint:gosec // Test code - weak random is acceptable
	}

	return lg.completeExecutionHandler.Handle(opCtx,
		completeexecution.BuildCommand(workflowID, results, time.Now()))
}

// runFailScenario drives one workflow into execution and then fails it.
func (lg *LoadGenerator) runFailScenario(ctx context.Context) error {
	opCtx, cancel := context.WithTimeout(ctx, scenarioTimeout)
	defer cancel()

	workflowID := uuid.New()

	if err := lg.startWorkflow(opCtx, workflowID); err != nil {
		return err
	}

	return shell.RetryWithExponentialBackoff(opCtx, func(retryCtx context.Context) error {
		workflow, err := lg.repository.Load(retryCtx, core.WorkflowStreamID(workflowID))
		if err != nil {
			return err
		}

		if err := workflow.FailExecution("injected failure", time.Now()); err != nil {
			return err
		}

		_, err = lg.repository.Save(retryCtx, workflow, shell.NewCommandMetadata())

		return err
	})
}

// runCancelScenario creates one workflow and cancels it.
func (lg *LoadGenerator) runCancelScenario(ctx context.Context) error {
	opCtx, cancel := context.WithTimeout(ctx, scenarioTimeout)
	defer cancel()

	workflowID := uuid.New()

	if err := lg.createWorkflowHandler.Handle(opCtx, buildCreateCommand(workflowID)); err != nil {
		return err
	}

	return shell.RetryWithExponentialBackoff(opCtx, func(retryCtx context.Context) error {
		workflow, err := lg.repository.Load(retryCtx, core.WorkflowStreamID(workflowID))
		if err != nil {
			return err
		}

		if err := workflow.Cancel("load test cancellation", time.Now()); err != nil {
			return err
		}

		_, err = lg.repository.Save(retryCtx, workflow, shell.NewCommandMetadata())

		return err
	})
}

// startWorkflow creates a workflow and starts its execution.
func (lg *LoadGenerator) startWorkflow(ctx context.Context, workflowID uuid.UUID) error {
	if err := lg.createWorkflowHandler.Handle(ctx, buildCreateCommand(workflowID)); err != nil {
		return err
	}

	return lg.startExecutionHandler.Handle(ctx, startexecution.BuildCommand(workflowID, time.Now()))
}

func buildCreateCommand(workflowID uuid.UUID) createworkflow.Command {
	return createworkflow.BuildCommand(
		workflowID,
		fmt.Sprintf("load-test-%s", workflowID.String()[:8]),
		"What does the load look like?",
		core.Methodology{
			Name:                     "deep research",
			Steps:                    []string{"search", "analyze", "summarize"},
			AgentTypes:               []string{"researcher"},
			EstimatedDurationMinutes: 5,
		},
		time.Now(),
	)
}

// metricsReporter logs statistics periodically.
func (lg *LoadGenerator) metricsReporter(ctx context.Context) {
	defer lg.wg.Done()

	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-lg.stopChan:
			return
		case <-ticker.C:
			lg.logCurrentStats()
		}
	}
}

func (lg *LoadGenerator) logCurrentStats() {
	lg.mu.RLock()
	duration := time.Since(lg.startTime)
	requests := lg.requestCount
	errors := lg.errorCount
	lg.mu.RUnlock()

	if duration > 0 && requests > 0 {
		rps := float64(requests) / duration.Seconds()
		errorRate := float64(errors) / float64(requests) * 100
		log.Printf("Stats: %d scenarios in %v (%.1f/s), %d errors (%.1f%%), %d goroutines",
			requests, duration.Truncate(time.Second), rps, errors, errorRate, runtime.NumGoroutine())
	}
}

func (lg *LoadGenerator) logFinalStats() {
	lg.mu.RLock()
	duration := time.Since(lg.startTime)
	requests := lg.requestCount
	errors := lg.errorCount
	lg.mu.RUnlock()

	if duration > 0 && requests > 0 {
		rps := float64(requests) / duration.Seconds()
		errorRate := float64(errors) / float64(requests) * 100
		log.Printf("Final Stats: %d scenarios in %v (%.1f/s), %d errors (%.1f%%), %d goroutines",
			requests, duration.Truncate(time.Second), rps, errors, errorRate, runtime.NumGoroutine())
	}
}

// mustCreateCommandHandler panics if command handler creation fails. The load
// generator cannot continue without its handlers.
func mustCreateCommandHandler[T any](handler T, err error) T {
	if err != nil {
		panic(fmt.Sprintf("Failed to create command handler: %v", err))
	}
	return handler
}
