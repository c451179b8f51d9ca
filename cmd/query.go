package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jjenkins/lawarchive/internal/model"
	"github.com/jjenkins/lawarchive/internal/search"
)

var (
	querySubsection string
	queryAsOf       string
	queryTitle      int
	queryLimit      int
	queryDirection  string
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query the archive",
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// parseKey reads "<title> <section>" arguments.
func parseKey(args []string) (model.Key, error) {
	title, err := strconv.Atoi(args[0])
	if err != nil || title <= 0 {
		return model.Key{}, fmt.Errorf("%w: invalid title number %q", model.ErrInvalidInput, args[0])
	}
	return model.Key{Title: title, Section: args[1], Subsection: model.NormalizeSubsection(querySubsection)}, nil
}

var querySectionCmd = &cobra.Command{
	Use:   "section <title> <section>",
	Short: "Show a provision, optionally as of a date",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := parseKey(args)
		if err != nil {
			return err
		}
		asOf, err := model.ParseAsOf(queryAsOf)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		archive, closeArchive, err := openArchive(ctx)
		if err != nil {
			return err
		}
		defer closeArchive()

		section, err := archive.GetSection(ctx, key, asOf)
		if err != nil {
			return err
		}
		if section == nil {
			return fmt.Errorf("%s: %w", key, model.ErrNotFound)
		}
		return printJSON(cmd.OutOrStdout(), section)
	},
}

var querySearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Full-text search over current provisions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		archive, closeArchive, err := openArchive(ctx)
		if err != nil {
			return err
		}
		defer closeArchive()

		results, err := archive.Search(ctx, args[0], search.Options{Title: queryTitle, Limit: queryLimit})
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, r := range results {
			fmt.Fprintf(out, "%.3f  %s  %s\n       %s\n", r.Score, r.Key(), r.Heading, r.Snippet)
		}
		return nil
	},
}

var queryRefsCmd = &cobra.Command{
	Use:   "refs <title> <section>",
	Short: "List citations to or from a section",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := parseKey(args)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		archive, closeArchive, err := openArchive(ctx)
		if err != nil {
			return err
		}
		defer closeArchive()

		var keys []model.Key
		switch queryDirection {
		case "to":
			keys, err = archive.ReferencesTo(ctx, key.Title, key.Section)
		case "from":
			keys, err = archive.ReferencedBy(ctx, key.Title, key.Section)
		default:
			return fmt.Errorf("%w: --direction must be to or from", model.ErrInvalidInput)
		}
		if err != nil {
			return err
		}
		for _, k := range keys {
			fmt.Fprintln(cmd.OutOrStdout(), k)
		}
		return nil
	},
}

var queryTitlesCmd = &cobra.Command{
	Use:   "titles",
	Short: "List titles with current section counts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		archive, closeArchive, err := openArchive(ctx)
		if err != nil {
			return err
		}
		defer closeArchive()

		titles, err := archive.ListTitles(ctx)
		if err != nil {
			return err
		}
		for _, t := range titles {
			fmt.Fprintf(cmd.OutOrStdout(), "%3d  %-60s %6d sections\n", t.Number, t.Name, t.SectionCount)
		}
		return nil
	},
}

var queryHistoryCmd = &cobra.Command{
	Use:   "history <title> <section>",
	Short: "List the versions that hold a section",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := parseKey(args)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		archive, closeArchive, err := openArchive(ctx)
		if err != nil {
			return err
		}
		defer closeArchive()

		versions, err := archive.SectionHistory(ctx, key)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), versions)
	},
}

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.AddCommand(querySectionCmd, querySearchCmd, queryRefsCmd, queryTitlesCmd, queryHistoryCmd)

	querySectionCmd.Flags().StringVarP(&querySubsection, "subsection", "s", "", "Subsection path, e.g. (a)(1)")
	querySectionCmd.Flags().StringVar(&queryAsOf, "as-of", "", "Date (YYYY-MM-DD) or year to resolve the version for")
	querySearchCmd.Flags().IntVarP(&queryTitle, "title", "t", 0, "Restrict to one title")
	querySearchCmd.Flags().IntVarP(&queryLimit, "limit", "n", 20, "Maximum results")
	queryRefsCmd.Flags().StringVarP(&queryDirection, "direction", "d", "to", "to: sections citing this one; from: sections this one cites")
}
