// Command worker runs the engine's background processing: the
// Orchestrator (consuming run_start), a configurable number of node-task
// consumers per node-task queue (ingest/ai/actions), and the Completion Coordinator
// (consuming node_completed signals). Each runs in its own goroutine
// racing a shared error channel, so any one's fatal error brings the
// whole process down rather than leaving the others running half-wired.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/lyzr/dagrunner/common/bootstrap"
	"github.com/lyzr/dagrunner/common/repository"
	"github.com/lyzr/dagrunner/internal/actionprovider"
	"github.com/lyzr/dagrunner/internal/aiprovider"
	"github.com/lyzr/dagrunner/internal/broker"
	"github.com/lyzr/dagrunner/internal/coordinator"
	"github.com/lyzr/dagrunner/internal/domain"
	"github.com/lyzr/dagrunner/internal/nodehandler"
	"github.com/lyzr/dagrunner/internal/orchestrator"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	components, err := bootstrap.Setup(ctx, "worker")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to bootstrap worker: %v\n", err)
		os.Exit(1)
	}
	defer components.Shutdown(ctx)

	components.Logger.Info("worker starting")

	workflows := repository.NewWorkflowRepository(components.DB)
	runs := repository.NewRunRepository(components.DB)
	runLogs := repository.NewRunLogRepository(components.DB)
	documents := repository.NewDocumentRepository(components.DB)
	uploadedFiles := repository.NewUploadedFileRepository(components.DB)

	queues := []string{domain.QueueDefault, domain.QueueIngest, domain.QueueAI, domain.QueueActions}
	if err := components.Broker.EnsureGroups(ctx, queues); err != nil {
		components.Logger.Error("failed to ensure consumer groups", "error", err)
		os.Exit(1)
	}

	orch := orchestrator.New(runs, workflows, runLogs, components.Broker, components.Logger)
	coord := coordinator.New(runs, runLogs, components.Broker, components.Logger)

	deps := &nodehandler.Dependencies{
		Documents:     documents,
		UploadedFiles: uploadedFiles,
		AI:            aiprovider.New(components.Config.Providers.AnthropicAPIKey),
		Slack:         actionprovider.NewSlackProvider(components.Config.Providers.SlackToken),
		Sheets:        actionprovider.NewSheetsProvider(ctx, components.Config.Providers.GoogleSheetsCredential),
		Email:         actionprovider.NewEmailProvider(components.Config.Providers.SendGridAPIKey, components.Config.Providers.SendGridFromAddress),
		Notion:        actionprovider.NewNotionProvider(components.Config.Providers.NotionAPIKey),
		Twilio: actionprovider.NewTwilioProvider(
			components.Config.Providers.TwilioAccountSID,
			components.Config.Providers.TwilioAuthToken,
			components.Config.Providers.TwilioFromNumber,
		),
	}
	dispatcher := nodehandler.NewDispatcher(deps)
	worker := nodehandler.NewWorker(dispatcher, runLogs, components.Broker, components.Logger)

	errChan := make(chan error, 2+len(queues))

	go func() {
		components.Logger.Info("starting orchestrator consumer")
		if err := components.Broker.ConsumeRunStart(ctx, "orchestrator", func(ctx context.Context, msg broker.RunStartMessage) error {
			return orch.Start(ctx, msg.RunID)
		}); err != nil && ctx.Err() == nil {
			errChan <- fmt.Errorf("orchestrator consumer: %w", err)
		}
	}()

	go func() {
		components.Logger.Info("starting coordinator consumer")
		if err := components.Broker.ConsumeCompletions(ctx, "coordinator", coord.HandleCompletion); err != nil && ctx.Err() == nil {
			errChan <- fmt.Errorf("coordinator consumer: %w", err)
		}
	}()

	taskQueues := []string{domain.QueueIngest, domain.QueueAI, domain.QueueActions}
	for _, q := range taskQueues {
		concurrency := queueConcurrency(components, q)
		for i := 0; i < concurrency; i++ {
			queue, consumerName := q, fmt.Sprintf("%s-worker-%d", q, i)
			go func() {
				components.Logger.Info("starting node task consumer", "queue", queue, "consumer", consumerName)
				if err := components.Broker.ConsumeNodeTasks(ctx, queue, consumerName, worker.HandleTask); err != nil && ctx.Err() == nil {
					errChan <- fmt.Errorf("node task consumer %s/%s: %w", queue, consumerName, err)
				}
			}()
		}
	}

	components.Logger.Info("worker started successfully", "queues", queues)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		components.Logger.Error("component failed", "error", err)
		cancel()
		os.Exit(1)
	case sig := <-sigChan:
		components.Logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}

	components.Logger.Info("worker shutting down gracefully")
}

// queueConcurrency resolves the configured worker count for queue q. Any
// other queue name gets 1; main only calls it for ingest/ai/actions, so no
// node-task consumer runs on the default queue.
func queueConcurrency(components *bootstrap.Components, queue string) int {
	switch queue {
	case domain.QueueIngest:
		return components.Config.Broker.ConcurrencyIngest
	case domain.QueueAI:
		return components.Config.Broker.ConcurrencyAI
	case domain.QueueActions:
		return components.Config.Broker.ConcurrencyActions
	default:
		return 1
	}
}
