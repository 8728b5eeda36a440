package main

import (
	"context"
	"os"
	"strconv"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/wolfman30/lead-qualifier/internal/app/bootstrap"
	appconfig "github.com/wolfman30/lead-qualifier/internal/config"
	"github.com/wolfman30/lead-qualifier/internal/conversation"
	"github.com/wolfman30/lead-qualifier/internal/observability/metrics"
	"github.com/wolfman30/lead-qualifier/pkg/logging"
)

// deliverer is satisfied by conversation.DeliveryHandler.
type deliverer interface {
	Deliver(ctx context.Context, body string, attempt int) bool
}

func main() {
	cfg := appconfig.Load()
	logger := logging.NewWithOptions(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})

	ctx := context.Background()
	rt := bootstrap.NewRuntime(cfg, logger)
	m := metrics.NewQualificationMetrics(prometheus.NewRegistry())
	comp, err := bootstrap.BuildEngine(ctx, rt, m)
	if err != nil {
		logger.Error("failed to build engine", "error", err)
		os.Exit(1)
	}
	replies, err := bootstrap.BuildReplyPublisher(ctx, rt)
	if err != nil {
		logger.Error("failed to build reply publisher", "error", err)
		os.Exit(1)
	}
	delivery := conversation.NewDeliveryHandler(comp.Engine, replies, logger, bootstrap.WorkerOptions(rt, m)...)

	lambda.Start(func(ctx context.Context, evt events.SQSEvent) (events.SQSEventResponse, error) {
		return handle(ctx, delivery, evt), nil
	})
}

// handle reports messages that must be redelivered as batch item failures so
// the rest of the batch is deleted.
func handle(ctx context.Context, d deliverer, evt events.SQSEvent) events.SQSEventResponse {
	var resp events.SQSEventResponse
	for _, record := range evt.Records {
		if !d.Deliver(ctx, record.Body, receiveCount(record)) {
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{
				ItemIdentifier: record.MessageId,
			})
		}
	}
	return resp
}

func receiveCount(record events.SQSMessage) int {
	n, err := strconv.Atoi(record.Attributes["ApproximateReceiveCount"])
	if err != nil || n < 1 {
		return 1
	}
	return n
}
