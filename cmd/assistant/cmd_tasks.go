package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "Create, list, delete, and force-run scheduled tasks",
}

var (
	taskTemplate string
	taskConfig   []string
)

var tasksCreateCmd = &cobra.Command{
	Use:   "create <display-name> <schedule-expression>",
	Short: "Create a scheduled task",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := map[string]string{}
		for _, kv := range taskConfig {
			parts := strings.SplitN(kv, "=", 2)
			if len(parts) != 2 {
				fmt.Printf("ignoring malformed --config %q (want key=value)\n", kv)
				continue
			}
			cfg[parts[0]] = parts[1]
		}
		task, err := runtime.Orchestrator.CreateTask(args[0], args[1], taskTemplate, cfg)
		if err != nil {
			fmt.Println("create failed:", err)
			return nil
		}
		fmt.Printf("created task %s (next_run=%s)\n", task.ID, formatNextRun(task.NextRun))
		return nil
	},
}

var tasksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every scheduled task with its next_run",
	RunE: func(cmd *cobra.Command, args []string) error {
		tasks, err := runtime.Orchestrator.ListTasks()
		if err != nil {
			fmt.Println("list failed:", err)
			return nil
		}
		if len(tasks) == 0 {
			fmt.Println("no scheduled tasks")
			return nil
		}
		for _, t := range tasks {
			fmt.Printf("%s  %-24s  %-24s  enabled=%v  runs=%d  ok=%d  fail=%d  next_run=%s\n",
				t.ID, t.DisplayName, t.ScheduleExpression, t.Enabled, t.RunCount, t.SuccessCount, t.FailureCount,
				formatNextRun(t.NextRun))
		}
		return nil
	},
}

var tasksDeleteCmd = &cobra.Command{
	Use:   "delete <task-id>",
	Short: "Delete a task and cascade its execution history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := runtime.Orchestrator.DeleteTask(args[0]); err != nil {
			fmt.Println("delete failed:", err)
			return nil
		}
		fmt.Println("deleted", args[0])
		return nil
	},
}

var tasksRunCmd = &cobra.Command{
	Use:   "run <task-id>",
	Short: "Force-run a task synchronously, ignoring next_run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		exec, err := runtime.Orchestrator.ForceRun(args[0])
		if err != nil {
			// Only a missing task is a CLI-level error; a template failure
			// is a recorded execution outcome, not a command failure
			// (spec.md §7: never non-zero merely because a task failed).
			fmt.Println("run failed:", err)
			return nil
		}
		if exec.Success {
			fmt.Printf("success: %s\n", exec.Output)
		} else {
			fmt.Printf("failed: %s\n", exec.ErrorMessage)
		}
		return nil
	},
}

func formatNextRun(t *time.Time) string {
	if t == nil {
		return "(none)"
	}
	return t.Format("2006-01-02T15:04:05Z07:00")
}

func init() {
	tasksCreateCmd.Flags().StringVar(&taskTemplate, "template", "echo", "template name to invoke")
	tasksCreateCmd.Flags().StringArrayVar(&taskConfig, "config", nil, "template config entries as key=value")

	tasksCmd.AddCommand(tasksCreateCmd)
	tasksCmd.AddCommand(tasksListCmd)
	tasksCmd.AddCommand(tasksDeleteCmd)
	tasksCmd.AddCommand(tasksRunCmd)
}
