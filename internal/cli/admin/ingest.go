package admin

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cloo-solutions/clarify/internal/domain"
)

// IngestCmd returns the ingest command
func IngestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest <file>",
		Short: "Ingest a text file without going through the API",
		Long: `Split a plain text file with the configured chunk strategy, embed it and
write it to the configured vector store. Useful to seed a Postgres store
before starting the server.`,
		Args: cobra.ExactArgs(1),
		RunE: runIngest,
	}

	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations")

	return cmd
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", args[0], err)
	}

	cfg, log, cleanup, err := setup()
	if err != nil {
		return err
	}
	defer cleanup()

	noMigrate, _ := cmd.Flags().GetBool("no-migrate")
	a, err := buildApp(ctx, cfg, log, appOptions{migrate: !noMigrate})
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := a.ingest.IngestText(ctx, string(data))
	if report != nil {
		printReport(cmd.OutOrStdout(), args[0], report)
	}
	if err != nil {
		log.Error("ingest failed", zap.String("file", args[0]), zap.Error(err))
		return err
	}
	return nil
}

func printReport(out io.Writer, name string, r *domain.IngestReport) {
	fmt.Fprintf(out, "%s: %s\n", name, r.Status())
	fmt.Fprintf(out, "  chunks:  %d in %d batches\n", r.Chunks, r.Batches)
	fmt.Fprintf(out, "  stored:  %d\n", r.Written)
	if r.Dropped > 0 {
		fmt.Fprintf(out, "  dropped: %d (%d failed, %d abandoned batches)\n", r.Dropped, r.Failed, r.Abandoned)
	}
	for _, o := range r.Outcomes {
		if o.OK() {
			continue
		}
		reason := "abandoned"
		if o.Err != nil {
			reason = o.Err.Error()
		}
		fmt.Fprintf(out, "  batch %d [%d..%d): %s\n", o.Index, o.Start, o.Start+o.Size, reason)
	}
}
