package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cloo-solutions/clarify/internal/api/handlers"
	"github.com/cloo-solutions/clarify/internal/chunker"
	"github.com/cloo-solutions/clarify/internal/extract"
)

// TextExtractor turns a binary document into plain text.
type TextExtractor interface {
	ExtractText(ctx context.Context, filename string, r io.Reader) (string, error)
}

type ingestOptions struct {
	path       string
	chunker    chunker.Config
	outputJSON bool
}

// IngestCmd creates the ingest command.
func IngestCmd() *cobra.Command {
	var opts ingestOptions

	cmd := &cobra.Command{
		Use:   "ingest <file>",
		Short: "Ingest a document",
		Long: `Reads a document, splits it into chunks and sends them to the server.

PDF files are converted to text by the extraction service first
(--extractor-url, or CLARIFY_EXTRACTOR_URL). Any other file is read as UTF-8 text.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.path = args[0]
			opts.outputJSON, _ = cmd.Flags().GetBool("output")
			api := NewAPIClientWithCmd(cmd)
			ex := extract.NewClient(resolve(cmd.Flags(), "extractor-url", envExtractorURL, extract.DefaultURL))
			return runIngest(cmd.Context(), api, ex, opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.chunker.Strategy, "strategy", chunker.StrategyParagraph, "Chunking strategy: paragraph or fixed")
	cmd.Flags().IntVar(&opts.chunker.MaxChars, "max-chars", chunker.DefaultMaxChars, "Window size for the fixed strategy")
	cmd.Flags().IntVar(&opts.chunker.Overlap, "overlap", 0, "Window overlap for the fixed strategy")
	cmd.Flags().String("extractor-url", "", "PDF extraction service URL (overrides env)")

	return cmd
}

func runIngest(ctx context.Context, api *APIClient, ex TextExtractor, opts ingestOptions, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	ch, err := chunker.New(opts.chunker)
	if err != nil {
		return err
	}

	text, err := readDocument(ctx, ex, opts.path)
	if err != nil {
		return err
	}

	var chunks []string
	for c := range ch.Chunks(text) {
		chunks = append(chunks, c.Text)
	}
	if len(chunks) == 0 {
		return fmt.Errorf("%s contains no text to ingest", opts.path)
	}

	var resp handlers.IngestResponse
	err = api.Post(ctx, "/api/ingest", handlers.IngestRequest{Chunks: chunks}, &resp)
	if err != nil && !IsStatus(err, http.StatusBadGateway) {
		return fmt.Errorf("ingest failed: %w", err)
	}

	if opts.outputJSON {
		data, mErr := json.MarshalIndent(resp, "", "  ")
		if mErr != nil {
			return fmt.Errorf("failed to format output: %w", mErr)
		}
		fmt.Fprintln(out, string(data))
	} else {
		printReport(out, opts.path, resp)
	}

	if err != nil {
		return fmt.Errorf("ingest failed: no batch was stored")
	}
	return nil
}

func readDocument(ctx context.Context, ex TextExtractor, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	if !strings.EqualFold(filepath.Ext(path), ".pdf") {
		return string(data), nil
	}
	text, err := ex.ExtractText(ctx, path, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to extract text from %s: %w", path, err)
	}
	return text, nil
}

func printReport(out io.Writer, path string, resp handlers.IngestResponse) {
	r := resp.Report
	fmt.Fprintf(out, "%s: %s\n", path, resp.Status)
	fmt.Fprintf(out, "  chunks:  %d in %d batches\n", r.Chunks, r.Batches)
	fmt.Fprintf(out, "  stored:  %d\n", r.Written)
	if r.Dropped > 0 {
		fmt.Fprintf(out, "  dropped: %d (%d failed, %d abandoned batches)\n", r.Dropped, r.Failed, r.Abandoned)
	}
	for _, e := range r.Errors {
		reason := e.Error
		if e.Abandoned {
			reason = "abandoned"
		}
		fmt.Fprintf(out, "  batch %d [%d..%d): %s\n", e.Batch, e.Start, e.Start+e.Size, reason)
	}
}
