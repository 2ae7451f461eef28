package extractor

import (
	"context"
	"errors"
	"time"

	"github.com/jmylchreest/distill/internal/logger"
	"github.com/jmylchreest/distill/pkg/fidelity"
	"github.com/jmylchreest/distill/pkg/llm"
	"github.com/jmylchreest/distill/pkg/news"
	"github.com/jmylchreest/distill/pkg/repair"
)

// Generator issues one generation request. *llm.Client implements it.
type Generator interface {
	Generate(ctx context.Context, prompt, resourceID string) llm.Outcome
}

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// TaskResult is the terminal state of one task.
type TaskResult struct {
	State State
	Label string
	Depth int
	// Records are the records that cover at least one of the task's items.
	Records []news.Record
	// Residual holds items still missing after an accepted attempt.
	Residual []news.SourceItem
	// Children holds the halves of a split task.
	Children [][]news.SourceItem
	// Failed holds items the task gave up on, with Reason.
	Failed   []news.SourceItem
	Reason   string
	Attempts int
	Waits    int
	Tokens   int
	Salvaged int
	Err      error
}

// Worker runs single tasks through the extraction state machine. It holds
// no per-task state and may run tasks concurrently.
type Worker struct {
	gen   Generator
	cfg   Config
	total int
	sleep Sleeper
}

// NewWorker creates a worker. total is the number of root chunks, used in
// prompts.
func NewWorker(gen Generator, cfg Config, total int, sleep Sleeper) *Worker {
	if sleep == nil {
		sleep = sleepContext
	}
	return &Worker{gen: gen, cfg: cfg, total: total, sleep: sleep}
}

func (w *Worker) prompt(task Task, items []news.SourceItem) string {
	return Prompt(PromptInput{Label: task.Label, Total: w.total, Items: items, Context: w.cfg.Context})
}

func (w *Worker) step(task Task, from, to State) State {
	logger.Debug("extractor transition", "task", task.Label, "from", from.String(), "to", to.String())
	return to
}

// Run drives task until it is accepted, split or failed. A prompt over the
// resource token ceiling fails a single-item task; with more items pending
// the task is split instead. It only returns a non-nil Err when ctx is done.
func (w *Worker) Run(ctx context.Context, task Task) TaskResult {
	res := TaskResult{State: StateDrafting, Label: task.Label, Depth: task.Depth}
	state := StateDrafting
	pending := task.Items
	prompt := w.prompt(task, pending)
	var raws []string

	for res.Attempts < w.cfg.MaxAttempts {
		if err := ctx.Err(); err != nil {
			return w.cancelled(res, pending, err)
		}

		state = w.step(task, state, StateRequesting)
		out := w.gen.Generate(ctx, prompt, w.cfg.Resource)

		switch out.Kind {
		case llm.KindRateLimited:
			if out.Wait > 0 {
				res.Waits++
				if res.Waits > w.cfg.MaxWaits {
					res.Reason = "rate limit wait budget exhausted"
					return w.finish(task, res, w.step(task, state, StateFailed), pending)
				}
				if err := w.sleep(ctx, w.clampWait(out.Wait)); err != nil {
					return w.cancelled(res, pending, err)
				}
				state = w.step(task, state, StateRetrying)
				continue
			}
			res.Attempts++
			res.Reason = "rate limited by service"
			state = w.step(task, state, StateRetrying)
			continue

		case llm.KindTooLarge:
			if len(pending) > 1 {
				res.Children = bisect(pending)
				return w.finish(task, res, w.step(task, state, StateSplitting), nil)
			}
			res.Reason = "item exceeds the resource token ceiling"
			return w.finish(task, res, w.step(task, state, StateFailed), pending)

		case llm.KindNoCredential:
			res.Reason = out.Message
			return w.finish(task, res, w.step(task, state, StateFailed), pending)

		case llm.KindServiceError, llm.KindTransportError:
			res.Attempts++
			res.Reason = out.Message
			logger.Debug("extractor attempt failed", "task", task.Label, "attempt", res.Attempts, "outcome", out.Kind.String(), "error", out.Message)
			if err := w.sleep(ctx, w.cfg.Backoff); err != nil {
				return w.cancelled(res, pending, err)
			}
			state = w.step(task, state, StateRetrying)
			continue
		}

		res.Attempts++
		res.Tokens += out.Tokens
		raws = append(raws, out.Text)

		state = w.step(task, state, StateParsing)
		records, method, err := repair.Decode(out.Text)
		if err != nil {
			logger.Debug("extractor payload unusable", "task", task.Label, "error", err)
		}
		if method == repair.MethodSalvaged {
			res.Salvaged += len(records)
		}

		state = w.step(task, state, StateValidating)
		relevant := fidelity.Relevant(pending, records)
		res.Records = append(res.Records, relevant...)
		missing := fidelity.Missing(pending, relevant)
		report := fidelity.Measure(task.Items, res.Records)

		logger.Debug("extractor coverage",
			"task", task.Label,
			"attempt", res.Attempts,
			"method", method.String(),
			"records", len(records),
			"covered", report.Covered,
			"total", report.Total)

		switch {
		case len(missing) == 0:
			return w.finish(task, res, w.step(task, state, StateAccepted), nil)
		case report.Accepted():
			res.Residual = missing
			return w.finish(task, res, w.step(task, state, StateAccepted), nil)
		case len(missing) < len(pending):
			pending = missing
			prompt = w.prompt(task, pending)
			res.Reason = "partial coverage"
		case len(pending) > 1:
			res.Children = bisect(pending)
			return w.finish(task, res, w.step(task, state, StateSplitting), nil)
		default:
			res.Reason = "no record matched the headline"
		}
		state = w.step(task, state, StateRetrying)
	}

	// Out of attempts: give every raw payload one more pass through salvage
	// before reporting the rest as failed.
	for _, raw := range raws {
		salvaged, _ := repair.Salvage(raw)
		relevant := fidelity.Relevant(pending, salvaged)
		if len(relevant) == 0 {
			continue
		}
		res.Salvaged += len(relevant)
		res.Records = append(res.Records, relevant...)
		pending = fidelity.Missing(pending, relevant)
	}
	if len(pending) == 0 {
		return w.finish(task, res, w.step(task, state, StateAccepted), nil)
	}
	if res.Reason == "" {
		res.Reason = "attempt budget exhausted"
	}
	return w.finish(task, res, w.step(task, state, StateFailed), pending)
}

func (w *Worker) clampWait(d time.Duration) time.Duration {
	if d < w.cfg.MinWait {
		d = w.cfg.MinWait
	}
	if w.cfg.MaxWait > 0 && d > w.cfg.MaxWait {
		d = w.cfg.MaxWait
	}
	return d
}

func (w *Worker) cancelled(res TaskResult, pending []news.SourceItem, err error) TaskResult {
	res.State = StateFailed
	res.Failed = pending
	res.Reason = "cancelled"
	if errors.Is(err, context.DeadlineExceeded) {
		res.Reason = "deadline exceeded"
	}
	res.Err = err
	return res
}

func (w *Worker) finish(task Task, res TaskResult, state State, failed []news.SourceItem) TaskResult {
	res.State = state
	res.Failed = failed

	switch state {
	case StateAccepted:
		logger.Info("chunk accepted",
			"task", task.Label,
			"items", len(task.Items),
			"records", len(res.Records),
			"residual", len(res.Residual),
			"attempts", res.Attempts)
	case StateSplitting:
		logger.Info("chunk split", "task", task.Label, "items", len(task.Items))
	case StateFailed:
		logger.Warn("chunk failed",
			"task", task.Label,
			"items", len(task.Items),
			"failed", len(failed),
			"attempts", res.Attempts,
			"reason", res.Reason)
	}
	return res
}

func bisect(items []news.SourceItem) [][]news.SourceItem {
	mid := len(items) / 2
	return [][]news.SourceItem{items[:mid:mid], items[mid:]}
}
