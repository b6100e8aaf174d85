package bounce

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"luach/internal/types"
)

// SQSAPI is the slice of the SQS client the worker uses.
type SQSAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// Suppressor marks one address undeliverable in a subscriber store. Both the
// anniversary and digest repositories satisfy it; the worker fans each event
// out to all of them because an address that hard-bounced for one engine is
// dead for the other too.
type Suppressor interface {
	MarkBounced(ctx context.Context, email string) (int64, error)
}

// Worker drains the feedback queue.
type Worker struct {
	client   SQSAPI
	queueURL string
	targets  []Suppressor
	log      types.Logger
}

// NewWorker creates a Worker.
func NewWorker(client SQSAPI, queueURL string, targets []Suppressor, logger types.Logger) *Worker {
	return &Worker{client: client, queueURL: queueURL, targets: targets, log: logger}
}

// Run long-polls the queue until ctx is canceled. Receive errors are logged
// and retried; the loop only exits on cancellation.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info("bounce worker started", "queue", w.queueURL)
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		out, err := w.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(w.queueURL),
			MaxNumberOfMessages: 10,
			WaitTimeSeconds:     20,
		})
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return nil
			}
			w.log.Error("failed to receive feedback messages", "error", err.Error())
			continue
		}

		for _, msg := range out.Messages {
			if w.processMessage(ctx, aws.ToString(msg.Body)) {
				_, err := w.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
					QueueUrl:      aws.String(w.queueURL),
					ReceiptHandle: msg.ReceiptHandle,
				})
				if err != nil {
					w.log.Error("failed to delete feedback message", "error", err.Error())
				}
			}
		}
	}
}

// processMessage handles one queue message and reports whether it should be
// deleted. Unparseable payloads are deleted after logging, since redelivery
// cannot fix them; suppression failures leave the message for redelivery.
func (w *Worker) processMessage(ctx context.Context, body string) bool {
	events, err := ParseFeedback([]byte(body))
	if err != nil {
		w.log.Warn("dropping unparseable feedback message", "error", err.Error())
		return true
	}

	ok := true
	for _, ev := range events {
		suppressed := int64(0)
		for _, target := range w.targets {
			n, err := target.MarkBounced(ctx, ev.EmailAddress)
			if err != nil {
				w.log.Error("failed to suppress address",
					"type", string(ev.Type), "error", err.Error())
				ok = false
				continue
			}
			suppressed += n
		}
		w.log.Info("processed feedback event",
			"type", string(ev.Type),
			"provider_message_id", ev.ProviderMessageID,
			"subscriptions_suppressed", suppressed)
	}
	return ok
}
