package scheduler

import (
	"context"
	"fmt"

	"leadflow_backend/platform/config"
	"leadflow_backend/platform/logger"

	"github.com/hibiken/asynq"
)

// AgentLookupRetrier runs a delayed agent lookup attempt.
type AgentLookupRetrier interface {
	RetryLookup(ctx context.Context, leadID int64, attempt int) error
}

type Worker struct {
	server  *asynq.Server
	mux     *asynq.ServeMux
	retrier AgentLookupRetrier
	log     *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, retrier AgentLookupRetrier, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queueName(cfg): 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server:  server,
		mux:     mux,
		retrier: retrier,
		log:     log,
	}

	mux.HandleFunc(TaskAgentLookupRetry, w.handleAgentLookupRetry)

	return w, nil
}

func (w *Worker) handleAgentLookupRetry(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseAgentLookupRetryPayload(task)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	if payload.LeadID <= 0 || payload.Attempt < 1 {
		return fmt.Errorf("invalid agent lookup payload %+v: %w", payload, asynq.SkipRetry)
	}

	return w.retrier.RetryLookup(ctx, payload.LeadID, payload.Attempt)
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}
