// Package tasks runs background LLM jobs, once or on a fixed interval.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/sentience/sentience/internal/core"
	"github.com/sentience/sentience/internal/llm"
	"github.com/sentience/sentience/internal/logging"
	"github.com/sentience/sentience/internal/metrics"
	"github.com/sentience/sentience/internal/storage"
)

const (
	systemPrompt = "You are SENTIENCE autonomous task engine. Execute the following background task concisely and return a structured result."
	emptyResult  = "Task completed with no output."

	taskMaxTokens   = 512
	taskTemperature = 0.5
	runningProgress = 30
)

// Completer runs a single-shot model call
type Completer interface {
	Complete(ctx context.Context, req llm.Request) (*llm.Response, error)
}

// EventLog receives human-readable system events
type EventLog interface {
	Append(msg string)
}

// Config configures the engine
type Config struct {
	Store   *storage.TaskStore
	LLM     Completer
	Model   string        // model for every task run
	Timeout time.Duration // per run (default: 2m)
	Journal EventLog
	Logger  *logging.Logger
}

// Engine executes tasks and keeps recurring ones on a cron schedule
type Engine struct {
	store   *storage.TaskStore
	llm     Completer
	model   string
	timeout time.Duration
	journal EventLog
	logger  *logging.Logger

	cron    *cron.Cron
	mu      sync.Mutex
	entries map[string]cron.EntryID
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
}

// NewEngine creates an engine. Start must be called before recurring
// tasks fire; one-shot runs work either way.
func NewEngine(cfg Config) *Engine {
	if cfg.Timeout == 0 {
		cfg.Timeout = 2 * time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		store:   cfg.Store,
		llm:     cfg.LLM,
		model:   cfg.Model,
		timeout: cfg.Timeout,
		journal: cfg.Journal,
		logger:  cfg.Logger.WithField("component", "tasks"),
		cron:    cron.New(),
		entries: make(map[string]cron.EntryID),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start starts the cron loop and re-schedules stored recurring tasks
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return errors.New("task engine already started")
	}
	e.started = true
	e.mu.Unlock()

	stored, err := e.store.List(ctx)
	if err != nil {
		return fmt.Errorf("load tasks: %w", err)
	}
	for _, t := range stored {
		if t.Status == core.TaskCancelled {
			continue
		}
		if err := e.schedule(t); err != nil {
			e.logger.WithField("task_id", t.ID).WithError(err).Warn("Failed to resume task")
		}
	}

	// Catch up on recurring runs missed while the process was down
	due, err := e.store.Due(ctx, time.Now())
	if err != nil {
		return fmt.Errorf("load due tasks: %w", err)
	}
	for _, t := range due {
		e.dispatch(t.ID)
	}

	e.cron.Start()
	return nil
}

// Stop halts scheduling and waits for in-flight runs
func (e *Engine) Stop() {
	e.cancel()
	<-e.cron.Stop().Done()
	e.wg.Wait()
}

// Wait blocks until every dispatched run has finished
func (e *Engine) Wait() {
	e.wg.Wait()
}

// CreateRequest describes a new task
type CreateRequest struct {
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Type        core.TaskType `json:"type"`
	IntervalMs  int64         `json:"intervalMs"`
}

// Create stores a task, runs it immediately and schedules it when it recurs
func (e *Engine) Create(ctx context.Context, req CreateRequest) (*core.Task, error) {
	if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.Description) == "" {
		return nil, fmt.Errorf("%w: name and description required", core.ErrMissingRequired)
	}
	if req.Type == "" {
		req.Type = core.TaskOnce
	}
	if req.Type != core.TaskOnce && req.Type != core.TaskRecurring {
		return nil, fmt.Errorf("%w: unknown task type %q", core.ErrInvalidInput, req.Type)
	}

	t := &core.Task{
		Name:        req.Name,
		Description: req.Description,
		Type:        req.Type,
		IntervalMs:  req.IntervalMs,
	}
	if err := e.store.Create(ctx, t); err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	e.logEvent("Task created: " + t.Name)

	e.dispatch(t.ID)
	if err := e.schedule(t); err != nil {
		e.logger.WithField("task_id", t.ID).WithError(err).Warn("Failed to schedule task")
	}
	return t, nil
}

// Run triggers a task now
func (e *Engine) Run(ctx context.Context, id string) error {
	if _, err := e.store.Get(ctx, id); err != nil {
		return err
	}
	e.dispatch(id)
	return nil
}

// Delete unschedules, cancels and removes a task
func (e *Engine) Delete(ctx context.Context, id string) error {
	e.unschedule(id)

	t, err := e.store.Get(ctx, id)
	if err != nil {
		return err
	}
	t.Status = core.TaskCancelled
	if err := e.store.Update(ctx, t); err != nil {
		return fmt.Errorf("cancel task: %w", err)
	}
	return e.store.Delete(ctx, id)
}

// List returns every stored task, newest first
func (e *Engine) List(ctx context.Context) ([]*core.Task, error) {
	return e.store.List(ctx)
}

// Scheduled returns how many tasks are on the cron schedule
func (e *Engine) Scheduled() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.entries)
}

func (e *Engine) schedule(t *core.Task) error {
	interval := time.Duration(t.IntervalMs) * time.Millisecond
	if t.Type != core.TaskRecurring || interval < core.MinTaskInterval {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.entries[t.ID]; ok {
		return nil
	}

	id := t.ID
	entry, err := e.cron.AddFunc(fmt.Sprintf("@every %s", interval), func() {
		e.execute(e.ctx, id)
	})
	if err != nil {
		return err
	}
	e.entries[id] = entry
	return nil
}

func (e *Engine) unschedule(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if entry, ok := e.entries[id]; ok {
		e.cron.Remove(entry)
		delete(e.entries, id)
	}
}

func (e *Engine) dispatch(id string) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.execute(e.ctx, id)
	}()
}

// execute runs one task through the model and stores the outcome
func (e *Engine) execute(ctx context.Context, id string) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	log := e.logger.WithField("task_id", id)

	t, err := e.store.Get(ctx, id)
	if err != nil {
		if !errors.Is(err, core.ErrTaskNotFound) {
			log.WithError(err).Warn("Failed to load task")
		}
		return
	}
	if t.Status == core.TaskCancelled {
		return
	}

	t.Status = core.TaskRunning
	t.Progress = runningProgress
	if err := e.store.Update(ctx, t); err != nil {
		if !errors.Is(err, core.ErrTaskNotFound) {
			log.WithError(err).Warn("Failed to mark task running")
		}
		return
	}

	resp, callErr := e.llm.Complete(ctx, llm.Request{
		Model:       e.model,
		System:      systemPrompt,
		Messages:    []llm.Message{{Role: "user", Content: t.Description}},
		MaxTokens:   taskMaxTokens,
		Temperature: taskTemperature,
	})

	// The task may have been deleted while the model was working
	t, err = e.store.Get(ctx, id)
	if err != nil {
		return
	}

	if callErr != nil {
		t.Status = core.TaskFailed
		t.Progress = 0
		t.Result = "Error: " + callErr.Error()
		log.WithError(callErr).Warn("Task failed")
	} else {
		result := strings.TrimSpace(resp.Content)
		if result == "" {
			result = emptyResult
		}
		t.Status = core.TaskCompleted
		t.Progress = 100
		t.Result = result
		t.RunCount++
		if t.Type == core.TaskRecurring && t.IntervalMs > 0 {
			next := time.Now().UTC().Add(time.Duration(t.IntervalMs) * time.Millisecond)
			t.NextRun = &next
		}
	}

	if err := e.store.Update(ctx, t); err != nil {
		if !errors.Is(err, core.ErrTaskNotFound) {
			log.WithError(err).Warn("Failed to store task result")
		}
		return
	}
	metrics.TaskRuns.WithLabelValues(string(t.Status)).Inc()
	e.logEvent(fmt.Sprintf("Task %s: %s", t.Status, t.Name))
}

func (e *Engine) logEvent(msg string) {
	if e.journal != nil {
		e.journal.Append(msg)
	}
}
