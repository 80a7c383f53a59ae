package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var askUser string

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a question against the ingested corpus",
	Long: `Answers a question from the ingested documents with citations.

Follow-up questions in the same session resolve references against the
recent conversation ("what about X?", "and him?").`,
	Args: cobra.ExactArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVar(&askUser, "user", "cli", "session identifier for conversation context")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.close()

	answer, err := a.askService.Ask(cmd.Context(), askUser, args[0])
	if err != nil {
		// The answer text is still presentable on failure.
		cmd.Println(answer.Text)
		return err
	}

	cmd.Println(answer.Text)
	if len(answer.Citations) > 0 {
		cmd.Println()
		cmd.Println("Sources:")
		for _, c := range answer.Citations {
			var parts []string
			if c.Section != "" {
				parts = append(parts, c.Section)
			}
			if c.Page > 0 {
				parts = append(parts, fmt.Sprintf("p. %d", c.Page))
			}
			if len(parts) > 0 {
				cmd.Printf("  [%d] %s (%s)\n", c.Marker, c.DocumentTitle, strings.Join(parts, ", "))
			} else {
				cmd.Printf("  [%d] %s\n", c.Marker, c.DocumentTitle)
			}
		}
	}
	return nil
}
