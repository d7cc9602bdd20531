package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalambet/taskrank/internal/api"
	"github.com/kalambet/taskrank/internal/config"
	"github.com/kalambet/taskrank/internal/task"
)

// --- prioritize ---

var prioritizeCmd = &cobra.Command{
	Use:   "prioritize <query>",
	Short: "Rank tasks relevant to a natural-language query",
	Long: `Rank tasks relevant to a natural-language query.

Examples:
  taskrank prioritize "what should I work on today" --user u123
  taskrank prioritize "release blockers" --user u123 --project p42 --summary`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")
		userID, _ := cmd.Flags().GetString("user")
		projectID, _ := cmd.Flags().GetString("project")
		withSummary, _ := cmd.Flags().GetBool("summary")
		asJSON, _ := cmd.Flags().GetBool("json")

		req := api.PrioritizeRequest{
			Query:          query,
			Scope:          api.Scope{UserID: userID},
			IncludeSummary: withSummary,
		}
		if projectID != "" {
			req.Scope.Filter = &task.Filter{ProjectID: projectID}
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/v1/prioritize", req)
		if err != nil {
			return err
		}

		var result api.PrioritizeResponse
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		}

		if len(result.Tasks) == 0 {
			fmt.Println("No matching tasks found.")
			return nil
		}

		for i, t := range result.Tasks {
			fmt.Printf("\n%s %s [score: %.0f]\n",
				colorize(colorBold, fmt.Sprintf("%d.", i+1)), t.Name, t.PriorityScore)
			if t.DueDate != "" {
				fmt.Printf("   Due: %s\n", t.DueDate)
			}
			if len(t.PriorityReasons) > 0 {
				fmt.Printf("   %s\n", strings.Join(t.PriorityReasons, "; "))
			}
		}
		if result.Summary != "" {
			fmt.Printf("\n%s\n%s\n", colorize(colorBold, "Summary"), result.Summary)
		}
		return nil
	},
}

func init() {
	prioritizeCmd.Flags().String("user", "", "rank tasks assigned to this user")
	prioritizeCmd.Flags().String("project", "", "restrict results to one project")
	prioritizeCmd.Flags().Bool("summary", false, "include a prose summary")
	prioritizeCmd.Flags().Bool("json", false, "print the raw JSON response")
}

// --- task ---

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Manage indexed tasks",
}

var taskAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Index a task",
	Long: `Index a task.

Examples:
  taskrank task add "Fix login timeout" --due 2026-09-05 --tags urgent,backend
  taskrank task add "Write Q4 plan" --description "Draft the roadmap" --assignee u123`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		description, _ := cmd.Flags().GetString("description")
		due, _ := cmd.Flags().GetString("due")
		project, _ := cmd.Flags().GetString("project")
		assignee, _ := cmd.Flags().GetString("assignee")
		tagsStr, _ := cmd.Flags().GetString("tags")

		var tags []string
		if tagsStr != "" {
			tags = strings.Split(tagsStr, ",")
			for i := range tags {
				tags[i] = strings.TrimSpace(tags[i])
			}
		}

		req := api.IngestTaskRequest{
			Name:        args[0],
			Description: description,
			DueDate:     due,
			ProjectID:   project,
			AssigneeID:  assignee,
			Tags:        tags,
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/v1/tasks", req)
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Indexed task %s", result["id"])
		return nil
	},
}

var taskImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Index a JSON file of tasks in one batch",
	Long: `Index a JSON file of tasks in one batch.

The file holds a JSON array of task objects:
  [{"name": "Fix login", "due_date": "2026-09-05", "tags": ["urgent"]}, ...]`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading file: %w", err)
		}

		var tasks []api.IngestTaskRequest
		if err := json.Unmarshal(data, &tasks); err != nil {
			return fmt.Errorf("invalid JSON: %w", err)
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/v1/tasks/batch", api.IngestBatchRequest{Tasks: tasks})
		if err != nil {
			return err
		}

		var result struct {
			IDs []string `json:"ids"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Indexed %d tasks", len(result.IDs))
		return nil
	},
}

var taskGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show an indexed task as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/v1/tasks/"+args[0])
		if err != nil {
			return err
		}

		var rec task.Record
		if err := decodeJSON(resp, &rec); err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	},
}

var taskCountCmd = &cobra.Command{
	Use:   "count",
	Short: "Show the number of indexed tasks",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/v1/tasks/count")
		if err != nil {
			return err
		}

		var result map[string]int64
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		fmt.Println(result["count"])
		return nil
	},
}

func init() {
	taskAddCmd.Flags().String("description", "", "task description")
	taskAddCmd.Flags().String("due", "", "due date (YYYY-MM-DD)")
	taskAddCmd.Flags().String("project", "", "project ID")
	taskAddCmd.Flags().String("assignee", "", "assignee user ID")
	taskAddCmd.Flags().String("tags", "", "comma-separated tags")
	taskCmd.AddCommand(taskAddCmd)
	taskCmd.AddCommand(taskImportCmd)
	taskCmd.AddCommand(taskGetCmd)
	taskCmd.AddCommand(taskCountCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
