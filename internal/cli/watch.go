package cli

import "github.com/spf13/cobra"

var watchCmd = &cobra.Command{
	Use:   "watch <task-id>",
	Short: "Follow the progress of a task",
	Long: `Stream progress events for a task until it completes, fails or is
cancelled. Shows a progress bar on a terminal and one line per event
otherwise.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return followTask(cmd.Context(), args[0])
	},
}
