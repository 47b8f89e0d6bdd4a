package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	spaceVectorType  string
	spaceDescription string
)

var spacesCmd = &cobra.Command{
	Use:   "spaces",
	Short: "Manage graph spaces",
	Long: `List or create the graph spaces triples are imported into.

Examples:
  kgforge spaces
  kgforge spaces create companies --description "company facts"`,
	RunE: runSpacesList,
}

var spacesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List graph spaces",
	RunE:  runSpacesList,
}

var spacesCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a graph space",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		err := apiClient.CreateSpace(context.Background(), args[0], spaceVectorType, spaceDescription)
		if err != nil {
			return fmt.Errorf("create space: %w", err)
		}
		fmt.Printf("Created space: %s\n", args[0])
		return nil
	},
}

func init() {
	spacesCreateCmd.Flags().StringVar(&spaceVectorType, "vector-type", "", "space type (default KnowledgeGraph)")
	spacesCreateCmd.Flags().StringVarP(&spaceDescription, "description", "d", "", "space description")

	spacesCmd.AddCommand(spacesListCmd)
	spacesCmd.AddCommand(spacesCreateCmd)
}

func runSpacesList(cmd *cobra.Command, args []string) error {
	spaces, err := apiClient.Spaces(context.Background())
	if err != nil {
		return fmt.Errorf("list spaces: %w", err)
	}
	for _, s := range spaces {
		fmt.Println(s)
	}
	return nil
}
