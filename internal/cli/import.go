package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/propertydigital/pdimport/internal/config"
	"github.com/propertydigital/pdimport/internal/parse"
	"github.com/propertydigital/pdimport/internal/resolve"
	"github.com/propertydigital/pdimport/internal/upload"
	"github.com/propertydigital/pdimport/pkg/core"
)

// ImportOptions holds options for the import command.
type ImportOptions struct {
	Entity     string
	ServerURL  string
	ChunkSize  int
	ImportedBy string
}

// NewImportCommand creates the import command.
func NewImportCommand() *cobra.Command {
	opts := &ImportOptions{}

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import a CSV or XLSX file",
		Long: `Parse a spreadsheet, normalize its rows and upload them to the import
server in chunks. The run keeps going past failed chunks; Ctrl-C cancels
cooperatively, keeping chunks that were already accepted.`,
		Example: `  # Import payments from a Hebrew spreadsheet
  pdimport import payments.csv --entity Payment

  # Against a remote server with smaller chunks
  pdimport import tenants.xlsx --entity Tenant --server https://import.example.com --chunk-size 50`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd, args[0], opts)
		},
	}

	cmd.Flags().StringVar(&opts.Entity, "entity", "", "Entity type: Property, Tenant or Payment (required)")
	cmd.Flags().StringVar(&opts.ServerURL, "server", "", "Import server base URL")
	cmd.Flags().IntVar(&opts.ChunkSize, "chunk-size", 0, "Records per chunk")
	cmd.Flags().StringVar(&opts.ImportedBy, "imported-by", "", "Actor recorded on imported records")
	_ = cmd.MarkFlagRequired("entity")

	return cmd
}

func runImport(cmd *cobra.Command, path string, opts *ImportOptions) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return importFile(ctx, cmd.OutOrStdout(), cfg, newLogger(), path, opts)
}

// importFile parses one file and uploads it. Shared by import and watch.
func importFile(ctx context.Context, out io.Writer, cfg *config.Config, logger *slog.Logger, path string, opts *ImportOptions) error {
	entity := core.EntityType(opts.Entity)
	if !entity.Valid() {
		return fmt.Errorf("unknown entity type %q (want Property, Tenant or Payment)", opts.Entity)
	}

	serverURL := cfg.Import.ServerURL
	if opts.ServerURL != "" {
		serverURL = opts.ServerURL
	}
	chunkSize := cfg.Import.ChunkSize
	if opts.ChunkSize > 0 {
		chunkSize = opts.ChunkSize
	}
	importedBy := cfg.Import.ImportedBy
	if opts.ImportedBy != "" {
		importedBy = opts.ImportedBy
	}

	tbl, err := parse.ParseFile(path)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Parsed %d rows from %s\n", len(tbl.Rows), path)

	orchOpts := []upload.Option{
		upload.WithChunkSize(chunkSize),
		upload.WithProgress(func(p upload.Progress) {
			fmt.Fprintf(out, "  chunk %d/%d (%d%%) processed=%d failed=%d\n",
				p.ChunksDone, p.ChunksTotal, p.Percent, p.Processed, p.Failed)
		}),
	}
	if cfg.Resolve.BaseURL != "" {
		resolver := resolve.New(resolverConfig(cfg), nil, resolve.NewHTTPFetcher(cfg.Resolve.BaseURL), logger)
		orchOpts = append(orchOpts, upload.WithResolver(resolver))
	}

	orchestrator := upload.New(upload.NewHTTPSender(serverURL), logger, orchOpts...)

	summary, err := orchestrator.Run(ctx, &upload.Dataset{
		EntityType: entity,
		Headers:    tbl.Headers,
		Rows:       tbl.Rows,
		ImportedBy: importedBy,
	})
	if err != nil {
		return err
	}

	printSummary(out, summary)
	if summary.Status == core.JobStatusFailed {
		return fmt.Errorf("import failed: no chunk was accepted")
	}
	return nil
}

func printSummary(out io.Writer, summary *upload.Summary) {
	fmt.Fprintf(out, "\nJob %s: %s in %s\n", summary.JobID, summary.Status, summary.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(out, "  records: %d total, %d processed, %d failed\n", summary.TotalRecords, summary.Processed, summary.Failed)

	if len(summary.ChunkErrors) > 0 {
		t := table.NewWriter()
		t.SetOutputMirror(out)
		t.SetStyle(table.StyleLight)
		t.AppendHeader(table.Row{"Chunk", "Records", "Error"})
		for _, ce := range summary.ChunkErrors {
			t.AppendRow(table.Row{ce.Chunk, ce.Records, ce.Message})
		}
		t.Render()
	}

	if len(summary.Errors) > 0 {
		t := table.NewWriter()
		t.SetOutputMirror(out)
		t.SetStyle(table.StyleLight)
		t.AppendHeader(table.Row{"Row", "Column", "Kind", "Message"})
		for _, detail := range summary.Errors {
			t.AppendRow(table.Row{detail.Row, detail.Column, detail.Kind, detail.Message})
		}
		t.Render()
	}
}
