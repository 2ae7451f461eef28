package extractor

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jmylchreest/distill/internal/logger"
	"github.com/jmylchreest/distill/internal/validate"
	"github.com/jmylchreest/distill/pkg/chunker"
	"github.com/jmylchreest/distill/pkg/fidelity"
	"github.com/jmylchreest/distill/pkg/news"
	"github.com/jmylchreest/distill/pkg/quota"
)

// Config controls an extraction run.
type Config struct {
	Resource    string `mapstructure:"resource" yaml:"resource" validate:"required"`
	ChunkBudget int    `mapstructure:"chunk_budget" yaml:"chunk_budget" validate:"gt=0"`
	MaxWorkers  int    `mapstructure:"max_workers" yaml:"max_workers" validate:"gt=0"`
	MaxAttempts int    `mapstructure:"max_attempts" yaml:"max_attempts" validate:"gt=0"`
	MaxDepth    int    `mapstructure:"max_depth" yaml:"max_depth" validate:"gte=0"`
	// MaxTasks caps the total number of tasks in a run. Zero allows
	// TasksPerChunk tasks for every root chunk.
	MaxTasks int `mapstructure:"max_tasks" yaml:"max_tasks" validate:"gte=0"`
	// MaxWaits caps pool waits per task. Waits do not use attempts.
	MaxWaits int           `mapstructure:"max_waits" yaml:"max_waits" validate:"gte=0"`
	Backoff  time.Duration `mapstructure:"backoff" yaml:"backoff" validate:"gte=0"`
	MinWait  time.Duration `mapstructure:"min_wait" yaml:"min_wait" validate:"gte=0"`
	MaxWait  time.Duration `mapstructure:"max_wait" yaml:"max_wait" validate:"gte=0"`
	// Context is optional extra guidance appended to every prompt.
	Context string `mapstructure:"context" yaml:"context,omitempty"`
}

// TasksPerChunk is the default task allowance per root chunk.
const TasksPerChunk = 16

// DefaultConfig returns the stock run settings.
func DefaultConfig() Config {
	return Config{
		Resource:    quota.DefaultResource,
		ChunkBudget: chunker.DefaultBudget,
		MaxWorkers:  15,
		MaxAttempts: 5,
		MaxDepth:    6,
		MaxWaits:    30,
		Backoff:     2 * time.Second,
		MinWait:     time.Second,
		MaxWait:     65 * time.Second,
	}
}

// Failure is an item no record covers at the end of a run.
type Failure struct {
	Title  string `json:"title" yaml:"title"`
	Reason string `json:"reason" yaml:"reason"`
	Task   string `json:"task,omitempty" yaml:"task,omitempty"`
}

// Stats counts the work a run did.
type Stats struct {
	Chunks    int           `json:"chunks" yaml:"chunks"`
	Tasks     int           `json:"tasks" yaml:"tasks"`
	Attempts  int           `json:"attempts" yaml:"attempts"`
	Waits     int           `json:"waits" yaml:"waits"`
	Splits    int           `json:"splits" yaml:"splits"`
	Residuals int           `json:"residuals" yaml:"residuals"`
	Salvaged  int           `json:"salvaged" yaml:"salvaged"`
	Tokens    int           `json:"tokens" yaml:"tokens"`
	Duration  time.Duration `json:"duration" yaml:"duration"`
}

// Result is the outcome of a run.
type Result struct {
	RunID   string          `json:"run_id" yaml:"run_id"`
	Records []news.Record   `json:"records" yaml:"records"`
	Report  fidelity.Report `json:"report" yaml:"report"`
	Failed  []Failure       `json:"failed,omitempty" yaml:"failed,omitempty"`
	Stats   Stats           `json:"stats" yaml:"stats"`
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithSleeper replaces the timer used for backoff and pool waits.
func WithSleeper(s Sleeper) Option {
	return func(o *Orchestrator) {
		o.sleep = s
	}
}

// Orchestrator fans chunks out to workers and feeds split and residual
// tasks back into the queue until it drains.
type Orchestrator struct {
	gen   Generator
	cfg   Config
	sleep Sleeper
}

// New creates an orchestrator.
func New(gen Generator, cfg Config, opts ...Option) (*Orchestrator, error) {
	if gen == nil {
		return nil, fmt.Errorf("extractor: generator is required")
	}
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid extractor config: %w", err)
	}
	o := &Orchestrator{gen: gen, cfg: cfg}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// run holds the mutable state of one Run call.
type run struct {
	cfg      Config
	queue    *TaskQueue
	maxTasks int

	mu      sync.Mutex
	records []news.Record
	failed  map[string]Failure
	stats   Stats
}

// Run extracts records for items. The returned result is always usable;
// the error is non-nil only when ctx ended the run early.
func (o *Orchestrator) Run(ctx context.Context, items []news.SourceItem) (*Result, error) {
	start := time.Now()
	runID := uuid.NewString()
	log := logger.With("run", runID)

	chunks := chunker.Chunks(items, o.cfg.ChunkBudget)
	var flat []news.SourceItem
	for _, c := range chunks {
		flat = append(flat, c.Items...)
	}

	r := &run{
		cfg:      o.cfg,
		queue:    NewTaskQueue(),
		maxTasks: o.cfg.MaxTasks,
		failed:   make(map[string]Failure),
	}
	if r.maxTasks == 0 {
		r.maxTasks = TasksPerChunk * max(len(chunks), 1)
	}
	r.stats.Chunks = len(chunks)

	for _, c := range chunks {
		r.queue.Add(Task{Label: fmt.Sprintf("%d", c.Index+1), Items: c.Items})
	}

	log.Info("extraction started",
		"items", len(items),
		"chunks", len(chunks),
		"resource", o.cfg.Resource)

	worker := NewWorker(o.gen, o.cfg, len(chunks), o.sleep)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(max(len(chunks), 1), o.cfg.MaxWorkers))

	var inflight atomic.Int64
	notify := make(chan struct{}, 1)
	wake := func() {
		select {
		case notify <- struct{}{}:
		default:
		}
	}

dispatch:
	for {
		if ctx.Err() != nil {
			break
		}
		task, ok := r.queue.Pop()
		if ok {
			inflight.Add(1)
			g.Go(func() error {
				res := worker.Run(gctx, task)
				r.collect(task, res)
				inflight.Add(-1)
				wake()
				return nil
			})
			continue
		}
		if inflight.Load() == 0 {
			// A worker may have queued follow-ups after the Pop above.
			if r.queue.Len() > 0 {
				continue
			}
			break
		}
		select {
		case <-notify:
		case <-ctx.Done():
			break dispatch
		}
	}
	_ = g.Wait()

	for {
		task, ok := r.queue.Pop()
		if !ok {
			break
		}
		r.fail(task.Label, task.Items, "cancelled")
	}

	res := r.result(runID, flat)
	res.Stats.Duration = time.Since(start)

	log.Info("extraction finished",
		"records", len(res.Records),
		"covered", res.Report.Covered,
		"total", res.Report.Total,
		"tasks", res.Stats.Tasks,
		"duration", res.Stats.Duration)

	if err := ctx.Err(); err != nil {
		return res, err
	}
	return res, nil
}

// collect folds a task result into the run and enqueues follow-up tasks.
// It runs before the worker releases its inflight slot so the dispatcher
// never sees an empty queue with work still pending.
func (r *run) collect(task Task, res TaskResult) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stats.Tasks++
	r.stats.Attempts += res.Attempts
	r.stats.Waits += res.Waits
	r.stats.Tokens += res.Tokens
	r.stats.Salvaged += res.Salvaged
	r.records = append(r.records, res.Records...)

	for _, it := range res.Failed {
		r.failed[it.Title] = Failure{Title: it.Title, Reason: res.Reason, Task: task.Label}
	}

	switch res.State {
	case StateSplitting:
		r.stats.Splits++
		for i, half := range res.Children {
			r.enqueue(task, fmt.Sprintf("%s.%d", task.Label, i+1), half)
		}
	case StateAccepted:
		if len(res.Residual) > 0 {
			r.stats.Residuals++
			r.enqueue(task, task.Label+"r", res.Residual)
		}
	}
}

// enqueue adds a follow-up task within the depth and task budgets. The
// caller holds r.mu.
func (r *run) enqueue(parent Task, label string, items []news.SourceItem) {
	switch {
	case parent.Depth+1 > r.cfg.MaxDepth:
		r.failLocked(label, items, "depth budget exhausted")
	case r.queue.Added() >= r.maxTasks:
		r.failLocked(label, items, "task budget exhausted")
	case !r.queue.Add(Task{Label: label, Items: items, Depth: parent.Depth + 1, Parent: parent.Label}):
		r.failLocked(label, items, "no progress on repeated item set")
	default:
		logger.Debug("extractor task queued", "task", label, "parent", parent.Label, "items", len(items))
	}
}

func (r *run) fail(label string, items []news.SourceItem, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failLocked(label, items, reason)
}

func (r *run) failLocked(label string, items []news.SourceItem, reason string) {
	for _, it := range items {
		r.failed[it.Title] = Failure{Title: it.Title, Reason: reason, Task: label}
	}
}

// result recomputes coverage over every flat item and orders records by the
// first item they cover.
func (r *run) result(runID string, flat []news.SourceItem) *Result {
	r.mu.Lock()
	defer r.mu.Unlock()

	records := orderRecords(flat, r.records)
	report := fidelity.Measure(flat, records)

	var failed []Failure
	for _, title := range report.Missing {
		f, ok := r.failed[title]
		if !ok {
			f = Failure{Title: title, Reason: "not covered"}
		}
		failed = append(failed, f)
	}

	return &Result{
		RunID:   runID,
		Records: records,
		Report:  report,
		Failed:  failed,
		Stats:   r.stats,
	}
}

func orderRecords(items []news.SourceItem, records []news.Record) []news.Record {
	pos := make([]int, len(records))
	for i, rec := range records {
		pos[i] = len(items)
		idx := fidelity.NewIndex([]news.Record{rec})
		for j, it := range items {
			if idx.Covers(it.Title) {
				pos[i] = j
				break
			}
		}
	}
	order := make([]int, len(records))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return pos[order[a]] < pos[order[b]] })

	out := make([]news.Record, len(records))
	for i, k := range order {
		out[i] = records[k]
	}
	return out
}
