package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/hilops/titleflow/internal/lifecycle"
	"github.com/hilops/titleflow/internal/types"
)

var workflowCmd = &cobra.Command{
	Use:     "workflow",
	Aliases: []string{"wf"},
	Short:   "Manage title workflows",
}

var workflowCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a workflow",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		wfType, _ := cmd.Flags().GetString("type")
		priority, _ := cmd.Flags().GetString("priority")
		assignee, _ := cmd.Flags().GetString("assignee")
		dueFlag, _ := cmd.Flags().GetString("due")

		w := &types.Workflow{
			Type:       types.WorkflowType(wfType),
			Priority:   types.Priority(priority),
			AssignedTo: assignee,
			CreatedBy:  cfg.Actor,
		}
		if dueFlag != "" {
			due, err := time.Parse(time.RFC3339, dueFlag)
			if err != nil {
				return fmt.Errorf("invalid --due, want RFC3339: %w", err)
			}
			w.DueDate = &due
		}

		if err := buildEngine(store, nil).CreateWorkflow(ctx, w, cfg.Actor); err != nil {
			return err
		}
		fmt.Printf("Created workflow %s (%s, %s)\n", w.ID, w.Type, w.Status)
		return nil
	},
}

var workflowActionCmd = &cobra.Command{
	Use:   "action <workflow-id> <action>",
	Short: "Apply a lifecycle action (start|pause|resume|complete|cancel|retry)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		id, action := args[0], types.WorkflowAction(args[1])
		if !action.IsValid() {
			return fmt.Errorf("unknown action %q", args[1])
		}

		w, err := buildEngine(store, nil).RequestAction(ctx, id, action, cfg.Actor)
		if err != nil {
			var verr *lifecycle.ValidationError
			if errors.As(err, &verr) {
				return fmt.Errorf("%w (allowed from %s: %v)", verr, verr.Status, lifecycle.Allowed(verr.Status))
			}
			return err
		}
		fmt.Printf("Workflow %s is now %s\n", w.ID, w.Status)
		return nil
	},
}

var workflowShowCmd = &cobra.Command{
	Use:   "show <workflow-id>",
	Short: "Show a workflow and its tasks",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		w, err := store.GetWorkflow(ctx, args[0])
		if err != nil {
			return err
		}
		tasks, err := store.ListTasks(ctx, types.TaskFilter{WorkflowID: &w.ID})
		if err != nil {
			return err
		}

		if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
			return json.NewEncoder(os.Stdout).Encode(map[string]any{
				"workflow": w,
				"tasks":    tasks,
			})
		}

		fmt.Printf("%s  %s  %s  priority=%s", w.ID, w.Type, w.Status, w.Priority)
		if w.Cancelled {
			fmt.Print("  (cancelled)")
		}
		fmt.Println()
		if w.AssignedTo != "" {
			fmt.Printf("  assigned to %s\n", w.AssignedTo)
		}
		for _, task := range tasks {
			fmt.Printf("  - %s  %s  %s  sla=%s", task.ID, task.Name, task.Status, task.SLAStatus)
			if task.SLADueAt != nil {
				fmt.Printf("  due=%s", task.SLADueAt.Format(time.RFC3339))
			}
			fmt.Println()
		}
		return nil
	},
}

var workflowListCmd = &cobra.Command{
	Use:   "list",
	Short: "List workflows",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		filter := types.WorkflowFilter{}
		if s, _ := cmd.Flags().GetString("status"); s != "" {
			status := types.WorkflowStatus(s)
			if !status.IsValid() {
				return fmt.Errorf("unknown status %q", s)
			}
			filter.Status = &status
		}
		if limit, _ := cmd.Flags().GetInt("limit"); limit > 0 {
			filter.Limit = limit
		}

		workflows, err := store.ListWorkflows(ctx, filter)
		if err != nil {
			return err
		}
		if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
			return json.NewEncoder(os.Stdout).Encode(workflows)
		}
		for _, w := range workflows {
			fmt.Printf("%s  %-16s  %-15s  %s\n", w.ID, w.Type, w.Status, w.Priority)
		}
		return nil
	},
}

func init() {
	workflowCreateCmd.Flags().String("type", string(types.TypePayoff), "Workflow type (payoff|hoa_acquisition|lien_search)")
	workflowCreateCmd.Flags().String("priority", string(types.PriorityNormal), "Priority (low|normal|high|urgent)")
	workflowCreateCmd.Flags().String("assignee", "", "Assigned user")
	workflowCreateCmd.Flags().String("due", "", "Due date (RFC3339)")
	workflowShowCmd.Flags().Bool("json", false, "Output JSON")
	workflowListCmd.Flags().Bool("json", false, "Output JSON")
	workflowListCmd.Flags().String("status", "", "Filter by status")
	workflowListCmd.Flags().Int("limit", 0, "Limit results")

	workflowCmd.AddCommand(workflowCreateCmd, workflowActionCmd, workflowShowCmd, workflowListCmd)
	rootCmd.AddCommand(workflowCmd)
}
