package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/hilops/titleflow/internal/types"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Manage workflow tasks",
}

var taskAddCmd = &cobra.Command{
	Use:   "add <workflow-id>",
	Short: "Add a task to a workflow",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		name, _ := cmd.Flags().GetString("name")
		executor, _ := cmd.Flags().GetString("executor")
		slaHours, _ := cmd.Flags().GetFloat64("sla-hours")

		task := &types.Task{
			WorkflowID:   args[0],
			Name:         name,
			ExecutorType: types.ExecutorType(executor),
		}
		if slaHours > 0 {
			task.SLAHours = &slaHours
		}
		if err := store.CreateTask(ctx, task); err != nil {
			return err
		}
		fmt.Printf("Created task %s (%s)\n", task.ID, task.Name)
		return nil
	},
}

var taskStartCmd = &cobra.Command{
	Use:   "start <task-id>",
	Short: "Start a task and stamp its SLA clock",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		task, err := buildEngine(store, nil).StartTask(ctx, args[0], cfg.Actor)
		if err != nil {
			return err
		}
		if task.SLADueAt != nil {
			fmt.Printf("Task %s started, SLA due %s\n", task.ID, task.SLADueAt.Format(time.RFC3339))
		} else {
			fmt.Printf("Task %s started (no configured SLA, default window applies)\n", task.ID)
		}
		return nil
	},
}

var taskCompleteCmd = &cobra.Command{
	Use:   "complete <task-id>",
	Short: "Mark a task completed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		if err := buildEngine(store, nil).CompleteTask(ctx, args[0], cfg.Actor); err != nil {
			return err
		}
		fmt.Printf("Task %s completed\n", args[0])
		return nil
	},
}

var taskInterruptCmd = &cobra.Command{
	Use:   "interrupt <task-id>",
	Short: "Park a task for human input",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		interruptType, _ := cmd.Flags().GetString("type")
		if err := buildEngine(store, nil).InterruptTask(ctx, args[0], cfg.Actor, interruptType); err != nil {
			return err
		}
		fmt.Printf("Task %s awaiting review (%s)\n", args[0], interruptType)
		return nil
	},
}

var taskFailCmd = &cobra.Command{
	Use:   "fail <task-id>",
	Short: "Mark a task failed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		reason, _ := cmd.Flags().GetString("reason")
		if err := buildEngine(store, nil).FailTask(ctx, args[0], cfg.Actor, reason); err != nil {
			return err
		}
		fmt.Printf("Task %s failed\n", args[0])
		return nil
	},
}

var taskRetryCmd = &cobra.Command{
	Use:   "retry <task-id>",
	Short: "Reset a task for another attempt",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		task, err := buildEngine(store, nil).RetryTask(ctx, args[0], cfg.Actor)
		if err != nil {
			return err
		}
		fmt.Printf("Task %s reset to %s (attempt %d)\n", task.ID, task.Status, task.RetryCount+1)
		return nil
	},
}

var taskListCmd = &cobra.Command{
	Use:   "list <workflow-id>",
	Short: "List a workflow's tasks",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		tasks, err := store.ListTasks(ctx, types.TaskFilter{WorkflowID: &args[0]})
		if err != nil {
			return err
		}
		if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
			return json.NewEncoder(os.Stdout).Encode(tasks)
		}
		for _, task := range tasks {
			fmt.Printf("%s  %-30s  %-15s  sla=%s\n", task.ID, task.Name, task.Status, task.SLAStatus)
		}
		return nil
	},
}

func init() {
	taskAddCmd.Flags().String("name", "", "Task name")
	taskAddCmd.Flags().String("executor", string(types.ExecutorAI), "Executor type (ai|human)")
	taskAddCmd.Flags().Float64("sla-hours", 0, "SLA hours (0 leaves the task on the default window)")
	_ = taskAddCmd.MarkFlagRequired("name")
	taskInterruptCmd.Flags().String("type", "human_review", "Interrupt type recorded on the task")
	taskFailCmd.Flags().String("reason", "", "Failure reason")
	taskListCmd.Flags().Bool("json", false, "Output JSON")

	taskCmd.AddCommand(taskAddCmd, taskStartCmd, taskInterruptCmd, taskCompleteCmd,
		taskFailCmd, taskRetryCmd, taskListCmd)
	rootCmd.AddCommand(taskCmd)
}
