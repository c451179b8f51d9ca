package templates

import (
	"context"
	"fmt"
	"io"

	"github.com/a-h/templ"

	"github.com/jjenkins/lawarchive/internal/model"
)

// HomeMetrics are the figures shown on the landing page
type HomeMetrics struct {
	TotalTitles     int
	TotalSections   int
	AverageSections float64
	LargestTitle    string
	HasData         bool
}

func Home(metrics HomeMetrics, titles []model.TitleInfo) templ.Component {
	return Layout("Home", templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if !metrics.HasData {
			_, err := io.WriteString(w, "<h1>Law Archive</h1>\n<p>No documents have been ingested yet.</p>\n")
			return err
		}

		_, err := fmt.Fprintf(w, `<h1>Law Archive</h1>
<dl>
<dt>Titles</dt><dd>%d</dd>
<dt>Sections</dt><dd>%d</dd>
<dt>Average sections per title</dt><dd>%.1f</dd>
<dt>Largest title</dt><dd>%s</dd>
</dl>
<table>
<thead><tr><th>Title</th><th>Name</th><th>Sections</th></tr></thead>
<tbody>
`, metrics.TotalTitles, metrics.TotalSections, metrics.AverageSections, templ.EscapeString(metrics.LargestTitle))
		if err != nil {
			return err
		}
		for _, t := range titles {
			_, err := fmt.Fprintf(w, "<tr><td>%d</td><td>%s</td><td>%d</td></tr>\n",
				t.Number, templ.EscapeString(t.Name), t.SectionCount)
			if err != nil {
				return err
			}
		}
		_, err = io.WriteString(w, "</tbody>\n</table>\n")
		return err
	}))
}
