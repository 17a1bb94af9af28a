// Package orchestrator implements the Task Orchestrator (Module J): a
// persistent, cron-like scheduler with template-based execution, failure
// accounting, and crash recovery across process restarts.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"assistantcore/internal/logging"
	"assistantcore/internal/schedule"
	"assistantcore/internal/types"
)

// ErrorKind classifies a task-execution failure.
type ErrorKind int

const (
	UnknownTemplate ErrorKind = iota
	ExecutionFailure
	Timeout
	InputError
)

func (k ErrorKind) String() string {
	switch k {
	case UnknownTemplate:
		return "unknown_template"
	case ExecutionFailure:
		return "execution_failure"
	case Timeout:
		return "timeout"
	case InputError:
		return "input_error"
	default:
		return "unknown"
	}
}

// Error is returned by orchestrator operations; it never aborts the tick
// loop (see Tick), only the one task execution it describes.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("orchestrator: %s: %s: %v", e.Kind, e.Op, e.Err)
	}
	return fmt.Sprintf("orchestrator: %s: %s", e.Kind, e.Op)
}

func (e *Error) Unwrap() error { return e.Err }

// Template is the external collaborator contract from spec.md §6: a named
// unit of work the orchestrator treats as an opaque black box.
type Template func(config map[string]string) (output string, err error)

// Backend is the persistence surface the orchestrator drives; satisfied by
// *store.Store.
type Backend interface {
	InsertTask(t types.ScheduledTask) error
	GetTask(id string) (types.ScheduledTask, error)
	ListTasks() ([]types.ScheduledTask, error)
	DeleteTask(id string) error
	DueTasks(now time.Time) ([]types.ScheduledTask, error)
	UpdateTaskSchedule(t types.ScheduledTask) error
	SetTaskEnabled(id string, enabled bool) error
	InsertTaskExecution(e types.TaskExecution) error
	CompleteTaskExecution(e types.TaskExecution) error
	InterruptedExecutions() ([]types.TaskExecution, error)
	ResetInterruptedExecution(id string, at time.Time) error
}

// MemoryInjector is the seam into the Hierarchical Memory Manager: every
// task execution's result becomes a normal memory exchange, per spec.md
// §4.J step 8.
type MemoryInjector interface {
	RecordExchange(userText, agentText string) (string, error)
}

// Config bundles the orchestrator's constructor dependencies.
type Config struct {
	Backend         Backend
	Memory          MemoryInjector
	Timezone        string
	TickInterval    time.Duration
	TemplateTimeout time.Duration
	IDSeq           func() string
	Now             func() time.Time
}

// Orchestrator is the Task Orchestrator (Module J).
type Orchestrator struct {
	backend Backend
	memory  MemoryInjector

	tz              string
	tickInterval    time.Duration
	templateTimeout time.Duration
	idSeq           func() string
	now             func() time.Time

	templatesMu sync.RWMutex
	templates   map[string]Template

	runMu   sync.Mutex // serializes task execution within the orchestrator
	loopMu  sync.Mutex
	cancel  context.CancelFunc
	doneCh  chan struct{}
}

// New constructs an Orchestrator. Call RegisterTemplate for every template
// name tasks may reference before Start.
func New(cfg Config) *Orchestrator {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	tick := cfg.TickInterval
	if tick <= 0 {
		tick = 30 * time.Second
	}
	timeout := cfg.TemplateTimeout
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	tz := cfg.Timezone
	if tz == "" {
		tz = "UTC"
	}
	return &Orchestrator{
		backend:         cfg.Backend,
		memory:          cfg.Memory,
		tz:              tz,
		tickInterval:    tick,
		templateTimeout: timeout,
		idSeq:           cfg.IDSeq,
		now:             now,
		templates:       map[string]Template{},
	}
}

// RegisterTemplate registers a named template. Safe to call concurrently
// with Tick.
func (o *Orchestrator) RegisterTemplate(name string, tmpl Template) {
	o.templatesMu.Lock()
	defer o.templatesMu.Unlock()
	o.templates[name] = tmpl
}

func (o *Orchestrator) template(name string) (Template, bool) {
	o.templatesMu.RLock()
	defer o.templatesMu.RUnlock()
	t, ok := o.templates[name]
	return t, ok
}

// Recover resets any TaskExecution rows left mid-flight by a prior process
// crash (no completed_at) to success=false/error_message="interrupted",
// and increments each owning task's failure_count, per spec.md §4.J's
// recovery contract and testable property 7.
func (o *Orchestrator) Recover() error {
	interrupted, err := o.backend.InterruptedExecutions()
	if err != nil {
		return fmt.Errorf("orchestrator recover: %w", err)
	}
	now := o.now()
	for _, exec := range interrupted {
		if err := o.backend.ResetInterruptedExecution(exec.ID, now); err != nil {
			logging.Get(logging.CategoryOrchestrator).Warn("failed to reset interrupted execution %s: %v", exec.ID, err)
			continue
		}
		task, err := o.backend.GetTask(exec.TaskID)
		if err != nil {
			logging.Get(logging.CategoryOrchestrator).Warn("interrupted execution %s references missing task %s: %v", exec.ID, exec.TaskID, err)
			continue
		}
		task.FailureCount++
		if err := o.backend.UpdateTaskSchedule(task); err != nil {
			logging.Get(logging.CategoryOrchestrator).Warn("failed to record interrupted-execution failure for task %s: %v", task.ID, err)
		}
		logging.Get(logging.CategoryOrchestrator).Info("recovered interrupted execution %s for task %s", exec.ID, exec.TaskID)
	}
	return nil
}

// ensureNextRun computes next_run for any enabled task whose next_run is
// null or in the past, used both at startup and whenever a task's schedule
// changes.
func (o *Orchestrator) ensureNextRun(t types.ScheduledTask) (types.ScheduledTask, error) {
	if !t.Enabled {
		return t, nil
	}
	if t.NextRun != nil && t.NextRun.After(o.now()) {
		return t, nil
	}
	trigger, err := schedule.Parse(t.ScheduleExpression, o.tz)
	if err != nil || trigger == nil {
		return t, nil // unschedulable: leave next_run null per spec.md §4.I
	}
	next, err := schedule.NextRun(trigger, o.now())
	if err != nil {
		return t, err
	}
	t.NextRun = &next
	return t, nil
}

// Start recovers crashed executions, computes next_run for every enabled
// task that needs it, and launches the background tick loop.
func (o *Orchestrator) Start(ctx context.Context) error {
	if err := o.Recover(); err != nil {
		return err
	}

	tasks, err := o.backend.ListTasks()
	if err != nil {
		return fmt.Errorf("orchestrator start: %w", err)
	}
	for _, t := range tasks {
		updated, err := o.ensureNextRun(t)
		if err != nil {
			logging.Get(logging.CategoryOrchestrator).Warn("failed to compute next_run for task %s: %v", t.ID, err)
			continue
		}
		if updated.NextRun != t.NextRun {
			if err := o.backend.UpdateTaskSchedule(updated); err != nil {
				logging.Get(logging.CategoryOrchestrator).Warn("failed to persist next_run for task %s: %v", t.ID, err)
			}
		}
	}

	loopCtx, cancel := context.WithCancel(ctx)
	o.loopMu.Lock()
	o.cancel = cancel
	o.doneCh = make(chan struct{})
	o.loopMu.Unlock()

	go o.loop(loopCtx)
	return nil
}

// Stop cancels the tick loop and blocks until it has exited.
func (o *Orchestrator) Stop() {
	o.loopMu.Lock()
	cancel := o.cancel
	done := o.doneCh
	o.loopMu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	if done != nil {
		<-done
	}
}

// loop is the Scheduler Tick worker: ticks at tickInterval, backs off to
// 60s after a tick-level error, and never lets a single tick's panic or
// error bring down the process.
func (o *Orchestrator) loop(ctx context.Context) {
	defer close(o.doneCh)

	interval := o.tickInterval
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			if err := o.safeTick(); err != nil {
				logging.Get(logging.CategoryOrchestrator).Error("tick failed, backing off: %v", err)
				interval = 60 * time.Second
			} else {
				interval = o.tickInterval
			}
			timer.Reset(interval)
		}
	}
}

// safeTick recovers a panicking tick so the loop keeps running.
func (o *Orchestrator) safeTick() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tick panic: %v", r)
		}
	}()
	return o.Tick(o.now())
}

// Tick runs every enabled task whose next_run has passed, serially.
func (o *Orchestrator) Tick(now time.Time) error {
	due, err := o.backend.DueTasks(now)
	if err != nil {
		return fmt.Errorf("orchestrator tick: %w", err)
	}
	for _, t := range due {
		o.Execute(t, now)
	}
	return nil
}

// Execute runs the per-task execution contract from spec.md §4.J,
// regardless of whether it was invoked from the tick loop or a force-run:
// begin execution record, bump run_count/last_run, look up and invoke the
// template under a timeout, record success or failure without aborting,
// recompute next_run, persist, and inject a memory record.
func (o *Orchestrator) Execute(t types.ScheduledTask, startedAt time.Time) types.TaskExecution {
	o.runMu.Lock()
	defer o.runMu.Unlock()

	exec := types.TaskExecution{
		ID:        o.idSeq(),
		TaskID:    t.ID,
		StartedAt: startedAt,
	}
	if err := o.backend.InsertTaskExecution(exec); err != nil {
		logging.Get(logging.CategoryOrchestrator).Warn("failed to persist execution start for task %s: %v", t.ID, err)
	}

	t.RunCount++
	t.LastRun = &startedAt

	output, execErr := o.invoke(t)

	completed := o.now()
	duration := completed.Sub(startedAt).Seconds()
	exec.CompletedAt = &completed
	exec.DurationSeconds = duration

	if execErr == nil {
		t.SuccessCount++
		exec.Success = true
		exec.Output = output
	} else {
		t.FailureCount++
		exec.Success = false
		exec.ErrorMessage = execErr.Error()
		exec.Output = output
	}

	t.NextRun = nil
	updated, err := o.ensureNextRun(t)
	if err != nil {
		logging.Get(logging.CategoryOrchestrator).Warn("failed to recompute next_run for task %s: %v", t.ID, err)
	}
	t.NextRun = updated.NextRun

	if err := o.backend.UpdateTaskSchedule(t); err != nil {
		logging.Get(logging.CategoryOrchestrator).Warn("failed to persist task schedule for %s: %v", t.ID, err)
	}
	if err := o.backend.CompleteTaskExecution(exec); err != nil {
		logging.Get(logging.CategoryOrchestrator).Warn("failed to persist execution completion for task %s: %v", t.ID, err)
	}

	if o.memory != nil {
		summary := output
		if execErr != nil {
			summary = fmt.Sprintf("failed: %s", execErr.Error())
		}
		if _, err := o.memory.RecordExchange(
			fmt.Sprintf("[AUTONOMOUS TASK: %s] %s", t.DisplayName, t.ScheduleExpression),
			summary,
		); err != nil {
			logging.Get(logging.CategoryOrchestrator).Warn("failed to inject task-result memory for %s: %v", t.ID, err)
		}
	}

	return exec
}

// invoke looks up and runs a task's template under templateTimeout,
// translating an unknown template, a template panic/error, or a timeout
// into the three TemplateError cases from spec.md §7.
func (o *Orchestrator) invoke(t types.ScheduledTask) (string, error) {
	tmpl, ok := o.template(t.TemplateName)
	if !ok {
		return "", &Error{Kind: UnknownTemplate, Op: t.TemplateName}
	}

	type result struct {
		output string
		err    error
	}
	resultCh := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				resultCh <- result{err: &Error{Kind: ExecutionFailure, Op: t.TemplateName, Err: fmt.Errorf("panic: %v", r)}}
			}
		}()
		out, err := tmpl(t.TemplateConfig)
		if err != nil {
			resultCh <- result{output: out, err: &Error{Kind: ExecutionFailure, Op: t.TemplateName, Err: err}}
			return
		}
		resultCh <- result{output: out}
	}()

	select {
	case r := <-resultCh:
		return r.output, r.err
	case <-time.After(o.templateTimeout):
		return "", &Error{Kind: Timeout, Op: t.TemplateName, Err: fmt.Errorf("exceeded %s", o.templateTimeout)}
	}
}

// CreateTask validates the schedule expression, computes an initial
// next_run, and persists a new ScheduledTask. An unparseable schedule
// still creates the task (disabled-equivalent: next_run stays null), per
// spec.md §4.I's "undefined input ⇒ null".
func (o *Orchestrator) CreateTask(displayName, scheduleExpr, templateName string, config map[string]string) (types.ScheduledTask, error) {
	t := types.ScheduledTask{
		ID:                 o.idSeq(),
		DisplayName:        displayName,
		ScheduleExpression: scheduleExpr,
		TemplateName:       templateName,
		TemplateConfig:     config,
		Enabled:            true,
		CreatedAt:          o.now(),
	}
	updated, err := o.ensureNextRun(t)
	if err != nil {
		return types.ScheduledTask{}, &Error{Kind: InputError, Op: "CreateTask", Err: err}
	}
	t = updated
	if err := o.backend.InsertTask(t); err != nil {
		return types.ScheduledTask{}, err
	}
	return t, nil
}

// ListTasks returns every task, next_run already annotated.
func (o *Orchestrator) ListTasks() ([]types.ScheduledTask, error) {
	return o.backend.ListTasks()
}

// DeleteTask removes a task and cascades its execution history.
func (o *Orchestrator) DeleteTask(id string) error {
	return o.backend.DeleteTask(id)
}

// ForceRun executes a task synchronously, ignoring next_run, while still
// writing every record a normal tick-triggered run would.
func (o *Orchestrator) ForceRun(id string) (types.TaskExecution, error) {
	t, err := o.backend.GetTask(id)
	if err != nil {
		return types.TaskExecution{}, err
	}
	return o.Execute(t, o.now()), nil
}

// SetEnabled toggles a task between the Idle-eligible and Disabled states.
func (o *Orchestrator) SetEnabled(id string, enabled bool) error {
	return o.backend.SetTaskEnabled(id, enabled)
}
