package store

import (
	"database/sql"
	"encoding/json"
	"time"

	"assistantcore/internal/types"
)

// InsertTask creates a new scheduled task.
func (s *Store) InsertTask(t types.ScheduledTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, err := json.Marshal(t.TemplateConfig)
	if err != nil {
		return &Error{Kind: Unavailable, Op: "InsertTask", Err: err}
	}
	_, err = s.db.Exec(
		`INSERT INTO scheduled_tasks
			(id, display_name, schedule_expression, template_name, template_config,
			 enabled, created_at, last_run, next_run, run_count, success_count, failure_count)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.DisplayName, t.ScheduleExpression, t.TemplateName, string(cfg),
		t.Enabled, t.CreatedAt, t.LastRun, t.NextRun, t.RunCount, t.SuccessCount, t.FailureCount,
	)
	if err != nil {
		return &Error{Kind: Unavailable, Op: "InsertTask", Err: err}
	}
	return nil
}

// DeleteTask removes a scheduled task and its execution history.
func (s *Store) DeleteTask(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.WithTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM task_executions WHERE task_id = ?`, id); err != nil {
			return &Error{Kind: Unavailable, Op: "DeleteTask", Err: err}
		}
		if _, err := tx.Exec(`DELETE FROM scheduled_tasks WHERE id = ?`, id); err != nil {
			return &Error{Kind: Unavailable, Op: "DeleteTask", Err: err}
		}
		return nil
	})
}

// GetTask fetches a task by id.
func (s *Store) GetTask(id string) (types.ScheduledTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scanTask(s.db.QueryRow(
		`SELECT id, display_name, schedule_expression, template_name, template_config,
			enabled, created_at, last_run, next_run, run_count, success_count, failure_count
		 FROM scheduled_tasks WHERE id = ?`, id,
	))
}

// ListTasks returns every scheduled task.
func (s *Store) ListTasks() ([]types.ScheduledTask, error) {
	s.mu.RLock()
	rows, err := s.db.Query(
		`SELECT id, display_name, schedule_expression, template_name, template_config,
			enabled, created_at, last_run, next_run, run_count, success_count, failure_count
		 FROM scheduled_tasks ORDER BY created_at ASC`,
	)
	s.mu.RUnlock()
	if err != nil {
		return nil, &Error{Kind: Unavailable, Op: "ListTasks", Err: err}
	}
	defer rows.Close()

	var out []types.ScheduledTask
	for rows.Next() {
		t, err := s.scanTaskRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// DueTasks returns enabled tasks whose next_run has passed, for the
// orchestrator tick loop.
func (s *Store) DueTasks(now time.Time) ([]types.ScheduledTask, error) {
	s.mu.RLock()
	rows, err := s.db.Query(
		`SELECT id, display_name, schedule_expression, template_name, template_config,
			enabled, created_at, last_run, next_run, run_count, success_count, failure_count
		 FROM scheduled_tasks WHERE enabled = 1 AND next_run IS NOT NULL AND next_run <= ?`,
		now,
	)
	s.mu.RUnlock()
	if err != nil {
		return nil, &Error{Kind: Unavailable, Op: "DueTasks", Err: err}
	}
	defer rows.Close()

	var out []types.ScheduledTask
	for rows.Next() {
		t, err := s.scanTaskRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// UpdateTaskSchedule updates the bookkeeping columns after a run: last_run,
// next_run, run_count, success_count/failure_count.
func (s *Store) UpdateTaskSchedule(t types.ScheduledTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`UPDATE scheduled_tasks
		 SET last_run = ?, next_run = ?, run_count = ?, success_count = ?, failure_count = ?
		 WHERE id = ?`,
		t.LastRun, t.NextRun, t.RunCount, t.SuccessCount, t.FailureCount, t.ID,
	)
	if err != nil {
		return &Error{Kind: Unavailable, Op: "UpdateTaskSchedule", Err: err}
	}
	return nil
}

// SetTaskEnabled toggles whether a task participates in the tick loop.
func (s *Store) SetTaskEnabled(id string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`UPDATE scheduled_tasks SET enabled = ? WHERE id = ?`, enabled, id)
	if err != nil {
		return &Error{Kind: Unavailable, Op: "SetTaskEnabled", Err: err}
	}
	return nil
}

func (s *Store) scanTask(row *sql.Row) (types.ScheduledTask, error) {
	var t types.ScheduledTask
	var cfgJSON string
	err := row.Scan(
		&t.ID, &t.DisplayName, &t.ScheduleExpression, &t.TemplateName, &cfgJSON,
		&t.Enabled, &t.CreatedAt, &t.LastRun, &t.NextRun, &t.RunCount, &t.SuccessCount, &t.FailureCount,
	)
	if err == sql.ErrNoRows {
		return types.ScheduledTask{}, &Error{Kind: NotFound, Op: "scanTask"}
	}
	if err != nil {
		return types.ScheduledTask{}, &Error{Kind: Unavailable, Op: "scanTask", Err: err}
	}
	_ = json.Unmarshal([]byte(cfgJSON), &t.TemplateConfig)
	return t, nil
}

func (s *Store) scanTaskRow(rows *sql.Rows) (types.ScheduledTask, error) {
	var t types.ScheduledTask
	var cfgJSON string
	if err := rows.Scan(
		&t.ID, &t.DisplayName, &t.ScheduleExpression, &t.TemplateName, &cfgJSON,
		&t.Enabled, &t.CreatedAt, &t.LastRun, &t.NextRun, &t.RunCount, &t.SuccessCount, &t.FailureCount,
	); err != nil {
		return types.ScheduledTask{}, &Error{Kind: Unavailable, Op: "scanTaskRow", Err: err}
	}
	_ = json.Unmarshal([]byte(cfgJSON), &t.TemplateConfig)
	return t, nil
}

// InsertTaskExecution logs the start of a task run.
func (s *Store) InsertTaskExecution(e types.TaskExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT INTO task_executions (id, task_id, started_at, completed_at, success, error_message, output, duration_seconds)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.TaskID, e.StartedAt, e.CompletedAt, e.Success, e.ErrorMessage, e.Output, e.DurationSeconds,
	)
	if err != nil {
		return &Error{Kind: Unavailable, Op: "InsertTaskExecution", Err: err}
	}
	return nil
}

// CompleteTaskExecution records the outcome of a finished run.
func (s *Store) CompleteTaskExecution(e types.TaskExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`UPDATE task_executions
		 SET completed_at = ?, success = ?, error_message = ?, output = ?, duration_seconds = ?
		 WHERE id = ?`,
		e.CompletedAt, e.Success, e.ErrorMessage, e.Output, e.DurationSeconds, e.ID,
	)
	if err != nil {
		return &Error{Kind: Unavailable, Op: "CompleteTaskExecution", Err: err}
	}
	return nil
}

// InterruptedExecutions returns task_executions with no completed_at,
// i.e. runs that were mid-flight when the process last exited - the
// crash-recovery surface the orchestrator resets on startup.
func (s *Store) InterruptedExecutions() ([]types.TaskExecution, error) {
	s.mu.RLock()
	rows, err := s.db.Query(
		`SELECT id, task_id, started_at, completed_at, success, error_message, output, duration_seconds
		 FROM task_executions WHERE completed_at IS NULL`,
	)
	s.mu.RUnlock()
	if err != nil {
		return nil, &Error{Kind: Unavailable, Op: "InterruptedExecutions", Err: err}
	}
	defer rows.Close()

	var out []types.TaskExecution
	for rows.Next() {
		var e types.TaskExecution
		if err := rows.Scan(&e.ID, &e.TaskID, &e.StartedAt, &e.CompletedAt, &e.Success, &e.ErrorMessage, &e.Output, &e.DurationSeconds); err != nil {
			return nil, &Error{Kind: Unavailable, Op: "InterruptedExecutions", Err: err}
		}
		out = append(out, e)
	}
	return out, nil
}

// ResetInterruptedExecution marks an orphaned execution as a failed,
// interrupted run so it no longer shows up as in-progress. Grounded on the
// teacher's resetInProgress crash-recovery step.
func (s *Store) ResetInterruptedExecution(id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`UPDATE task_executions SET completed_at = ?, success = 0, error_message = 'interrupted' WHERE id = ?`,
		at, id,
	)
	if err != nil {
		return &Error{Kind: Unavailable, Op: "ResetInterruptedExecution", Err: err}
	}
	return nil
}
