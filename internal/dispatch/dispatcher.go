// Package dispatch sends composed messages strictly one at a time, in the
// caller's order, committing each success to its send recorder before moving
// on. A crash partway through a run therefore leaves already-sent
// occurrences marked and only unsent ones eligible for retry.
package dispatch

import (
	"context"
	"time"

	"luach/internal/external"
	"luach/internal/types"
)

// Sendable is the minimal shape of a dispatchable item.
type Sendable interface {
	Recipient() string
}

// Composer turns an eligible item into a transport-ready message. The
// dispatcher never inspects the result beyond copying it onto the wire.
type Composer[T Sendable] interface {
	Compose(ctx context.Context, item T) (types.Message, error)
}

// Recorder commits one successful send. The anniversary engine records into
// the relational dedup ledger; the weekly digest appends to its flat-file
// ledger.
type Recorder[T Sendable] interface {
	RecordSent(ctx context.Context, item T, providerMsgID string) error
}

// RunMetrics receives the end-of-run tally. Implementations must not fail
// the run; metric emission is best effort.
type RunMetrics interface {
	RecordRun(ctx context.Context, engine string, sent, failed int)
}

// NoopMetrics discards tallies.
type NoopMetrics struct{}

func (NoopMetrics) RecordRun(context.Context, string, int, int) {}

// Result tallies one dispatch run.
type Result struct {
	Sent   int
	Failed int
	Errors []error
}

// Dispatcher processes candidates sequentially. There is no internal
// parallelism; total run time scales with subscriber count times transport
// latency.
type Dispatcher[T Sendable] struct {
	engine   string // tally label, e.g. "yahrzeit" or "shabbat"
	from     types.EmailAddress
	composer Composer[T]
	provider external.EmailProvider
	recorder Recorder[T]
	metrics  RunMetrics
	delay    time.Duration
	dryRun   bool
	log      types.Logger
}

// Config bundles the dispatcher dependencies.
type Config[T Sendable] struct {
	Engine   string
	From     types.EmailAddress
	Composer Composer[T]
	Provider external.EmailProvider
	Recorder Recorder[T]
	Metrics  RunMetrics
	// Delay is the optional inter-message pause. Zero disables it.
	Delay time.Duration
	// DryRun composes and logs without touching the transport or any
	// ledger.
	DryRun bool
	Logger types.Logger
}

// New creates a Dispatcher.
func New[T Sendable](cfg Config[T]) *Dispatcher[T] {
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	return &Dispatcher[T]{
		engine:   cfg.Engine,
		from:     cfg.From,
		composer: cfg.Composer,
		provider: cfg.Provider,
		recorder: cfg.Recorder,
		metrics:  metrics,
		delay:    cfg.Delay,
		dryRun:   cfg.DryRun,
		log:      cfg.Logger,
	}
}

// Dispatch processes the candidates in the order given. Every per-candidate
// failure (composition or transport) is logged, tallied and isolated; the
// loop always continues. A failed candidate gets no send record, so it
// remains eligible on the next run.
func (d *Dispatcher[T]) Dispatch(ctx context.Context, candidates []T) Result {
	var res Result

	for i, cand := range candidates {
		if i > 0 && d.delay > 0 && !d.dryRun {
			time.Sleep(d.delay)
		}

		log := d.log.With("recipient", cand.Recipient(), "engine", d.engine)

		msg, err := d.composer.Compose(ctx, cand)
		if err != nil {
			log.Error("composition failed", "error", err.Error())
			res.Failed++
			res.Errors = append(res.Errors, err)
			continue
		}

		if d.dryRun {
			log.Info("dry run: would send", "subject", msg.Subject)
			res.Sent++
			continue
		}

		msgID, err := d.provider.Send(ctx, types.SendInput{
			From:        d.from,
			To:          msg.Recipient,
			Subject:     msg.Subject,
			BodyText:    msg.BodyText,
			BodyHTML:    msg.BodyHTML,
			Headers:     msg.Headers,
			ICS:         msg.ICS,
			ReferenceID: referenceID(msg),
		})
		if err != nil {
			log.Error("send failed", "error", err.Error())
			res.Failed++
			res.Errors = append(res.Errors, err)
			continue
		}

		// Commit immediately, before the next candidate, so an interrupted
		// run never re-sends what already went out.
		if err := d.recorder.RecordSent(ctx, cand, msgID); err != nil {
			// The message went out but the commit failed; the next run may
			// resend. Loud log, keep going.
			log.Error("send succeeded but ledger commit failed",
				"provider_message_id", msgID, "error", err.Error())
			res.Errors = append(res.Errors, err)
		}
		res.Sent++
		log.Info("sent", "provider_message_id", msgID)
	}

	d.metrics.RecordRun(ctx, d.engine, res.Sent, res.Failed)
	return res
}

func referenceID(msg types.Message) string {
	if id, ok := msg.Headers["X-Reference-ID"]; ok {
		return id
	}
	return ""
}
