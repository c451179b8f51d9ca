package templates

import (
	"context"
	"fmt"
	"io"

	"github.com/a-h/templ"

	"github.com/jjenkins/lawarchive/internal/model"
)

func SearchResults(query string, results []model.SearchResult) templ.Component {
	return Layout("Search", templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := fmt.Fprintf(w, "<h1>Results for &ldquo;%s&rdquo;</h1>\n", templ.EscapeString(query)); err != nil {
			return err
		}
		if len(results) == 0 {
			_, err := io.WriteString(w, "<p>No matching provisions.</p>\n")
			return err
		}
		if _, err := io.WriteString(w, "<ol>\n"); err != nil {
			return err
		}
		for _, r := range results {
			k := r.Key()
			_, err := fmt.Fprintf(w, "<li><a href=\"%s#%s\">%s</a> %s<br><small>%s</small></li>\n",
				string(sectionHref(k)), templ.EscapeString(k.Subsection), templ.EscapeString(k.String()),
				templ.EscapeString(r.Heading), templ.EscapeString(r.Snippet))
			if err != nil {
				return err
			}
		}
		_, err := io.WriteString(w, "</ol>\n")
		return err
	}))
}
