package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"channel-quiz-service/internal/csvbank"
	"channel-quiz-service/internal/domain"
	"github.com/spf13/cobra"
)

// NewParseCmd reports how a CSV file would be imported without storing it.
func NewParseCmd() *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "parse <file.csv>",
		Short: "Dry-run a CSV question bank and report kept and dropped rows",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			return writeParseReport(cmd.OutOrStdout(), string(raw), verbose)
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "print every kept question")
	return cmd
}

func writeParseReport(w io.Writer, raw string, verbose bool) error {
	res, err := csvbank.Parse(raw)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "headers: %s\n", strings.Join(res.Meta.Headers, ", "))
	fmt.Fprintf(w, "rows: %d kept: %d dropped: %d\n", res.Meta.Rows, len(res.Items), res.Meta.Rows-len(res.Items))
	if !verbose {
		return nil
	}
	for i, q := range res.Items {
		fmt.Fprintf(w, "%d. [%s] %s (answer %s)\n", i+1, q.Kind, q.Prompt, domain.Letters(q.Correct))
	}
	return nil
}
