package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/kgforge/internal/client"
)

var (
	uploadSpace      string
	uploadMode       string
	uploadPrompt     string
	uploadTemplateID string
	uploadMapping    string
	uploadWorkflow   string
	uploadWait       bool
)

var uploadCmd = &cobra.Command{
	Use:   "upload <file>...",
	Short: "Upload documents and start building a knowledge graph",
	Long: `Upload one or more files to the server and start a construction task.

Text documents are read by the language model. Spreadsheets can instead be
mapped to triples with a column mapping file (--mapping).

Examples:
  kgforge upload notes.txt --space companies
  kgforge upload people.xlsx --mode mapping --mapping people.json --wait
  kgforge upload report.md --template <prompt-id>`,
	Args: cobra.MinimumNArgs(1),
	RunE: runUpload,
}

func init() {
	uploadCmd.Flags().StringVarP(&uploadSpace, "space", "s", "", "graph space to import into (server default if empty)")
	uploadCmd.Flags().StringVarP(&uploadMode, "mode", "m", "auto", "extraction mode: auto, text or mapping")
	uploadCmd.Flags().StringVarP(&uploadPrompt, "prompt", "p", "", "custom extraction prompt")
	uploadCmd.Flags().StringVar(&uploadTemplateID, "template", "", "use a stored prompt template as the custom prompt")
	uploadCmd.Flags().StringVar(&uploadMapping, "mapping", "", "JSON file with the column mapping")
	uploadCmd.Flags().StringVar(&uploadWorkflow, "workflow", "", "JSON file with workflow settings")
	uploadCmd.Flags().BoolVarP(&uploadWait, "wait", "w", false, "follow progress until the task finishes")
	uploadCmd.MarkFlagsMutuallyExclusive("prompt", "template")
}

func runUpload(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	opts := client.UploadOptions{
		Space:        uploadSpace,
		Mode:         uploadMode,
		CustomPrompt: uploadPrompt,
		UserID:       userID,
	}

	if uploadTemplateID != "" {
		tpl, err := apiClient.Prompt(ctx, uploadTemplateID)
		if err != nil {
			return fmt.Errorf("get template: %w", err)
		}
		opts.CustomPrompt = tpl.PromptContent
	}

	var err error
	if opts.ColumnMapping, err = readJSONFile(uploadMapping); err != nil {
		return fmt.Errorf("read mapping: %w", err)
	}
	if opts.WorkflowConfig, err = readJSONFile(uploadWorkflow); err != nil {
		return fmt.Errorf("read workflow: %w", err)
	}

	task, err := apiClient.Upload(ctx, args, opts)
	if err != nil {
		return fmt.Errorf("upload: %w", err)
	}

	fmt.Printf("Created task: %s (%d files, space %s)\n", task.ID, task.TotalFiles, task.GraphSpace)
	if !uploadWait {
		fmt.Printf("Use 'kgforge watch %s' to follow progress.\n", task.ID)
		return nil
	}
	return followTask(ctx, task.ID)
}

// readJSONFile returns the file's content after checking it is valid JSON.
// An empty path yields "".
func readJSONFile(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if !json.Valid(b) {
		return "", fmt.Errorf("%s is not valid JSON", path)
	}
	return string(b), nil
}
