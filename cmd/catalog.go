package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/jjenkins/lawarchive/internal/service"
)

var (
	catalogConcurrency int
	catalogWatch       bool
)

var catalogCmd = &cobra.Command{
	Use:   "catalog <manifest.yaml>",
	Short: "Catalog every document listed in a YAML manifest",
	Long: `Catalog reads a manifest of documents, loads each from disk or over HTTP,
and stores it as a version of its source. XML documents are parsed into
sections; other formats are kept as section-less versions.

Manifest format:
  base_dir: ./downloads
  documents:
    - path: us/usc/t7
      doc_type: statute
      file: usc07.xml
      applies_from_year: 2023
    - path: us/usc/t7/print
      doc_type: statute
      url: https://example.gov/usc07.pdf
      is_current: false
      applies_to_year: 2022

With --watch the command keeps running and catalogs the manifest again
whenever it changes. Documents already stored are reported as duplicates.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		archive, closeArchive, err := openArchive(ctx)
		if err != nil {
			return err
		}
		defer closeArchive()

		if catalogConcurrency <= 0 {
			catalogConcurrency = cfg.Concurrency
		}
		fetcher := service.NewFetcher(service.DefaultFetchOptions(), logger)
		cataloger := service.NewCataloger(archive, fetcher, catalogConcurrency, logger)

		if catalogWatch {
			logger.Info("watching manifest", "manifest", args[0])
			err := cataloger.Watch(ctx, args[0], 500*time.Millisecond, func(_ []service.CatalogResult, stats *service.CatalogStats, err error) {
				if err != nil {
					return
				}
				printCatalogSummary(cmd.OutOrStdout(), stats)
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}

		manifest, err := service.LoadManifest(args[0])
		if err != nil {
			return err
		}

		logger.Info("starting catalog", "manifest", args[0], "documents", len(manifest.Documents))
		_, stats, err := cataloger.Run(ctx, manifest)
		if err != nil {
			return err
		}

		printCatalogSummary(cmd.OutOrStdout(), stats)

		if stats.Failed > 0 {
			return fmt.Errorf("%d of %d documents failed", stats.Failed, stats.Total)
		}
		return nil
	},
}

func printCatalogSummary(out io.Writer, stats *service.CatalogStats) {
	fmt.Fprintln(out, "=== Catalog Summary ===")
	fmt.Fprintf(out, "Total:      %d\n", stats.Total)
	fmt.Fprintf(out, "Stored:     %d\n", stats.Stored)
	fmt.Fprintf(out, "Duplicates: %d\n", stats.Duplicates)
	fmt.Fprintf(out, "Failed:     %d\n", stats.Failed)
}

func init() {
	rootCmd.AddCommand(catalogCmd)
	catalogCmd.Flags().IntVarP(&catalogConcurrency, "concurrency", "c", 0, "Documents processed in parallel (default ARCHIVE_CONCURRENCY)")
	catalogCmd.Flags().BoolVarP(&catalogWatch, "watch", "w", false, "Catalog again whenever the manifest changes")
}
