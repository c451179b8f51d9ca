package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jjenkins/lawarchive/internal/model"
	"github.com/jjenkins/lawarchive/internal/service"
)

var (
	ingestPath      string
	ingestDocType   string
	ingestSourceURL string
	ingestName      string
	ingestTitle     int
	ingestFrom      int
	ingestTo        int
	ingestCurrent   bool
	ingestPublished string
	ingestRetrieved string
	ingestRetries   int
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file-or-url>",
	Short: "Parse and store one version of a statute document",
	Long: `Ingest reads a USLM XML document from disk or over HTTP, parses its
sections, resolves citations and stores it as a new version of the source.

Storing the same content twice is a no-op. A newer current version
supersedes the previous current version of the same source.

Examples:
  # Store the current edition of title 7
  lawarchive ingest usc07.xml --path us/usc/t7 --from 2023

  # Store an older edition that applied from 2018 through 2022
  lawarchive ingest usc07-2018.xml --path us/usc/t7 --from 2018 --to 2022 --current=false

  # Download and store
  lawarchive ingest https://uscode.house.gov/download/usc07.xml --path us/usc/t7`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)

	ingestCmd.Flags().StringVar(&ingestPath, "path", "", "Logical source path, e.g. us/usc/t7 (required)")
	ingestCmd.Flags().StringVar(&ingestDocType, "doc-type", "statute", "Document type")
	ingestCmd.Flags().StringVar(&ingestSourceURL, "source-url", "", "Canonical URL of the source")
	ingestCmd.Flags().StringVar(&ingestName, "name", "", "Human-readable source title")
	ingestCmd.Flags().IntVarP(&ingestTitle, "title", "t", 0, "Override the title number declared in the document")
	ingestCmd.Flags().IntVar(&ingestFrom, "from", 0, "First year the version applies to")
	ingestCmd.Flags().IntVar(&ingestTo, "to", 0, "Last year the version applies to")
	ingestCmd.Flags().BoolVar(&ingestCurrent, "current", true, "Mark the version as current")
	ingestCmd.Flags().StringVar(&ingestPublished, "published", "", "Publication date (YYYY-MM-DD)")
	ingestCmd.Flags().StringVar(&ingestRetrieved, "retrieved", "", "Retrieval time (RFC 3339), defaults to now")
	ingestCmd.Flags().IntVar(&ingestRetries, "retries", 3, "Download attempts for URLs")
	ingestCmd.MarkFlagRequired("path")
}

func optionalYear(y int) *int {
	if y <= 0 {
		return nil
	}
	return model.Year(y)
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	version := model.Version{
		AppliesFromYear: optionalYear(ingestFrom),
		AppliesToYear:   optionalYear(ingestTo),
		IsCurrent:       ingestCurrent,
		MimeType:        "application/xml",
		StorageKey:      args[0],
	}
	if ingestPublished != "" {
		t, err := time.Parse("2006-01-02", ingestPublished)
		if err != nil {
			return fmt.Errorf("invalid --published date: %w", err)
		}
		version.PublishedAt = &t
	}
	if ingestRetrieved != "" {
		t, err := time.Parse(time.RFC3339, ingestRetrieved)
		if err != nil {
			return fmt.Errorf("invalid --retrieved time: %w", err)
		}
		version.RetrievedAt = t
	}

	var content []byte
	var err error
	if strings.HasPrefix(args[0], "http://") || strings.HasPrefix(args[0], "https://") {
		opts := service.DefaultFetchOptions()
		opts.MaxRetries = ingestRetries
		content, _, err = service.NewFetcher(opts, logger).Fetch(ctx, args[0])
	} else {
		content, err = os.ReadFile(args[0])
	}
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", args[0], err)
	}

	archive, closeArchive, err := openArchive(ctx)
	if err != nil {
		return err
	}
	defer closeArchive()

	res, err := archive.Ingest(ctx, service.IngestRequest{
		Source: model.Source{
			Path:      ingestPath,
			DocType:   ingestDocType,
			SourceURL: ingestSourceURL,
			Title:     ingestName,
		},
		Version: version,
		Content: content,
		Title:   ingestTitle,
	})
	if err != nil {
		if ctx.Err() != nil {
			logger.Warn("ingest cancelled")
		}
		return err
	}

	for _, w := range res.Warnings {
		logger.Warn("parser warning", "warning", w)
	}
	return printJSON(cmd.OutOrStdout(), res)
}
