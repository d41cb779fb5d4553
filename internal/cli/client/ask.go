package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cloo-solutions/clarify/internal/api"
	"github.com/cloo-solutions/clarify/internal/api/handlers"
)

const snippetChars = 120

// AskCmd creates the ask command.
func AskCmd() *cobra.Command {
	var showSources bool

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a question about the ingested document",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			question := strings.Join(args, " ")
			return runAsk(cmd.Context(), NewAPIClientWithCmd(cmd), question, showSources, outputJSON, cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolVarP(&showSources, "sources", "s", false, "Print the retrieved snippets")

	return cmd
}

func runAsk(ctx context.Context, c *APIClient, question string, showSources, outputJSON bool, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var resp handlers.QueryResponse
	if err := c.Post(ctx, "/api/query", handlers.QueryRequest{Question: &question}, &resp); err != nil {
		if IsStatus(err, http.StatusBadRequest) {
			return err
		}
		fmt.Fprintln(out, api.GenericQueryError)
		return err
	}

	if outputJSON {
		data, err := json.MarshalIndent(resp, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to format output: %w", err)
		}
		fmt.Fprintln(out, string(data))
		return nil
	}

	fmt.Fprintln(out, resp.Answer)
	if showSources && len(resp.Sources) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Sources:")
		for i, s := range resp.Sources {
			fmt.Fprintf(out, "  %d. [%.3f] %s\n", i+1, s.Score, snippet(s.Text))
		}
	}
	return nil
}

func snippet(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= snippetChars {
		return text
	}
	return string(runes[:snippetChars]) + "..."
}
