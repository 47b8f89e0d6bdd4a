package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var searchLimit int

var searchCmd = &cobra.Command{
	Use:   "search <space> <query...>",
	Short: "Search stored chunks of a space",
	Long: `Find the chunks of a graph space most similar to a query.

Examples:
  kgforge search companies "who founded tencent"
  kgforge search companies shenzhen --limit 10`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args[1:], " ")
		hits, err := apiClient.Search(context.Background(), args[0], query, searchLimit)
		if err != nil {
			return fmt.Errorf("search: %w", err)
		}
		if len(hits) == 0 {
			fmt.Println("No matches.")
			return nil
		}
		for i, h := range hits {
			source, _ := h.Metadata["doc_name"].(string)
			fmt.Printf("%d. [%.3f] %s\n", i+1, h.Score, source)
			fmt.Printf("   %s\n", preview(h.Content, 160))
		}
		return nil
	},
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 5, "maximum number of matches")
}

func preview(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > n {
		return string(r[:n]) + "..."
	}
	return s
}
