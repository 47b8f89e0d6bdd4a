package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/kgforge/internal/client"
	"github.com/raphaelgruber/kgforge/internal/models"
)

var (
	tasksStatus string
	tasksPage   int
	tasksLimit  int
)

var tasksCmd = &cobra.Command{
	Use:   "tasks [task-id]",
	Short: "List or inspect construction tasks",
	Long: `List construction tasks or inspect a specific task by ID.

Examples:
  kgforge tasks                    # List recent tasks
  kgforge tasks --status running   # Only running tasks
  kgforge tasks 3f2a...            # Show details for one task
  kgforge tasks cancel 3f2a...
  kgforge tasks delete 3f2a...`,
	Args: cobra.MaximumNArgs(1),
	RunE: runTasks,
}

var tasksCancelCmd = &cobra.Command{
	Use:   "cancel <task-id>",
	Short: "Cancel a running task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := apiClient.CancelTask(context.Background(), args[0]); err != nil {
			return fmt.Errorf("cancel task: %w", err)
		}
		fmt.Printf("Cancelled task: %s\n", args[0])
		return nil
	},
}

var tasksDeleteCmd = &cobra.Command{
	Use:   "delete <task-id>",
	Short: "Delete a task and its uploaded files",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := apiClient.DeleteTask(context.Background(), args[0]); err != nil {
			return fmt.Errorf("delete task: %w", err)
		}
		fmt.Printf("Deleted task: %s\n", args[0])
		return nil
	},
}

func init() {
	tasksCmd.Flags().StringVar(&tasksStatus, "status", "", "filter by status (pending, running, completed, failed, cancelled)")
	tasksCmd.Flags().IntVar(&tasksPage, "page", 1, "page number")
	tasksCmd.Flags().IntVarP(&tasksLimit, "limit", "n", 10, "tasks per page")

	tasksCmd.AddCommand(tasksCancelCmd)
	tasksCmd.AddCommand(tasksDeleteCmd)
}

func runTasks(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	if len(args) == 1 {
		return showTask(ctx, args[0])
	}
	return listTasks(ctx)
}

func listTasks(ctx context.Context) error {
	page, err := apiClient.Tasks(ctx, client.TaskQuery{
		UserID: userID,
		Status: tasksStatus,
		Page:   tasksPage,
		Limit:  tasksLimit,
	})
	if err != nil {
		return fmt.Errorf("list tasks: %w", err)
	}

	if len(page.Tasks) == 0 {
		fmt.Println("No tasks found")
		return nil
	}

	fmt.Printf("%-32s %-10s %-8s %-6s %-16s %s\n", "ID", "STATUS", "PROGRESS", "FILES", "SPACE", "CREATED")
	fmt.Println("----------------------------------------------------------------------------------------------")
	for _, t := range page.Tasks {
		fmt.Printf("%-32s %-10s %7.1f%% %-6d %-16s %s\n",
			t.ID, t.Status, t.Progress, t.TotalFiles, t.GraphSpace, t.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	if page.Total > len(page.Tasks) {
		fmt.Printf("\nPage %d, %d of %d tasks\n", page.Page, len(page.Tasks), page.Total)
	}
	return nil
}

func showTask(ctx context.Context, id string) error {
	t, err := apiClient.Task(ctx, id)
	if err != nil {
		if client.IsNotFound(err) {
			return fmt.Errorf("task not found: %s", id)
		}
		return fmt.Errorf("get task: %w", err)
	}
	printTask(t)
	return nil
}

func printTask(t *models.Task) {
	fmt.Printf("Task: %s\n", t.ID)
	fmt.Printf("  Status: %s\n", t.Status)
	fmt.Printf("  Progress: %.1f%%\n", t.Progress)
	if t.CurrentStep != "" {
		fmt.Printf("  Step: %s\n", t.CurrentStep)
	}
	fmt.Printf("  Space: %s\n", t.GraphSpace)
	fmt.Printf("  Mode: %s\n", t.Mode)
	fmt.Printf("  User: %s\n", t.UserID)
	fmt.Printf("  Created: %s\n", t.CreatedAt.Format(time.RFC3339))
	if t.CompletedAt != nil {
		fmt.Printf("  Completed: %s\n", t.CompletedAt.Format(time.RFC3339))
		fmt.Printf("  Duration: %s\n", t.CompletedAt.Sub(t.CreatedAt).Round(time.Second))
	}
	if t.Status == models.TaskStatusCompleted {
		fmt.Printf("  Relations: %d\n", t.RelationsCount)
		fmt.Printf("  Entities: %d\n", t.EntitiesCount)
	}
	if t.ErrorMessage != "" {
		fmt.Printf("  Error: %s\n", t.ErrorMessage)
	}

	if len(t.Files) > 0 {
		fmt.Printf("\nFiles (%d):\n", len(t.Files))
		for _, f := range t.Files {
			fmt.Printf("  - %s (%s, %d bytes) %s\n", f.Name, f.Type, f.Size, f.Status)
		}
	}
}
