package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/kgforge/internal/client"
	"github.com/raphaelgruber/kgforge/internal/models"
)

var promptsCmd = &cobra.Command{
	Use:   "prompts",
	Short: "Manage extraction prompt templates",
	Long: `Manage prompt templates used as custom extraction prompts.

System templates are shared and read-only; templates you add belong to
the user given with --user.

Subcommands:
  list    List templates
  show    Show template content
  add     Add a template from a file
  delete  Delete one of your templates

Examples:
  kgforge prompts list
  kgforge prompts show <id>
  kgforge prompts add ./finance.txt --name "Finance triples" -u alice
  kgforge prompts delete <id> -u alice`,
}

var promptsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List templates",
	RunE:  runPromptsList,
}

var promptsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show template content",
	Args:  cobra.ExactArgs(1),
	RunE:  runPromptsShow,
}

var promptsAddCmd = &cobra.Command{
	Use:   "add <file>",
	Short: "Add a template from a file",
	Args:  cobra.ExactArgs(1),
	RunE:  runPromptsAdd,
}

var promptsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a template",
	Args:  cobra.ExactArgs(1),
	RunE:  runPromptsDelete,
}

var (
	promptName        string
	promptDescription string
)

func init() {
	promptsAddCmd.Flags().StringVarP(&promptName, "name", "n", "", "template name (required)")
	promptsAddCmd.Flags().StringVarP(&promptDescription, "description", "d", "", "template description")
	_ = promptsAddCmd.MarkFlagRequired("name")

	promptsCmd.AddCommand(promptsListCmd)
	promptsCmd.AddCommand(promptsShowCmd)
	promptsCmd.AddCommand(promptsAddCmd)
	promptsCmd.AddCommand(promptsDeleteCmd)
}

func runPromptsList(cmd *cobra.Command, args []string) error {
	templates, err := apiClient.Prompts(context.Background(), userID)
	if err != nil {
		return fmt.Errorf("list templates: %w", err)
	}
	if len(templates) == 0 {
		fmt.Println("No templates found")
		return nil
	}

	fmt.Printf("Templates (%d):\n\n", len(templates))
	for _, t := range templates {
		owner := "system"
		if !t.IsSystem {
			owner = t.UserID
		}
		desc := ""
		if t.Description != nil {
			desc = " - " + *t.Description
		}
		fmt.Printf("- %s [%s] %s%s\n", t.ID, owner, t.Name, desc)
	}
	return nil
}

func runPromptsShow(cmd *cobra.Command, args []string) error {
	t, err := apiClient.Prompt(context.Background(), args[0])
	if err != nil {
		if client.IsNotFound(err) {
			return fmt.Errorf("template not found: %s", args[0])
		}
		return fmt.Errorf("get template: %w", err)
	}

	fmt.Printf("# %s\n", t.Name)
	if t.Description != nil {
		fmt.Println(*t.Description)
	}
	if len(t.Variables) > 0 {
		fmt.Println("\nVariables:")
		for _, v := range t.Variables {
			fmt.Printf("  {%s} %s", v.Name, v.Type)
			if len(v.Options) > 0 {
				fmt.Printf(" %v", v.Options)
			}
			fmt.Println()
		}
	}
	fmt.Printf("\n---\n\n")
	fmt.Println(t.PromptContent)
	return nil
}

func runPromptsAdd(cmd *cobra.Command, args []string) error {
	content, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	in := models.TemplateInput{Name: promptName, PromptContent: string(content)}
	if promptDescription != "" {
		in.Description = &promptDescription
	}

	t, err := apiClient.CreatePrompt(context.Background(), userID, in)
	if err != nil {
		return fmt.Errorf("create template: %w", err)
	}
	fmt.Printf("Created template: %s (%s)\n", t.Name, t.ID)
	return nil
}

func runPromptsDelete(cmd *cobra.Command, args []string) error {
	if err := apiClient.DeletePrompt(context.Background(), userID, args[0]); err != nil {
		return fmt.Errorf("delete template: %w", err)
	}
	fmt.Printf("Deleted template: %s\n", args[0])
	return nil
}
