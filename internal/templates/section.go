package templates

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/a-h/templ"

	"github.com/jjenkins/lawarchive/internal/model"
)

// SectionPage is everything shown for one provision
type SectionPage struct {
	Section      *model.Section
	AsOf         string
	ReferencesTo []model.Key
	ReferencedBy []model.Key
	History      []model.Version
}

func sectionHref(k model.Key) templ.SafeURL {
	return templ.SafeURL(fmt.Sprintf("/sections/%d/%s", k.Title, url.PathEscape(k.Section)))
}

func Section(page SectionPage) templ.Component {
	s := page.Section
	heading := fmt.Sprintf("%d U.S.C. § %s%s", s.Title, s.Section, s.Subsection)
	return Layout(heading, templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var b strings.Builder
		fmt.Fprintf(&b, "<h1>%s</h1>\n", templ.EscapeString(heading))
		if s.Heading != "" {
			fmt.Fprintf(&b, "<h2>%s</h2>\n", templ.EscapeString(s.Heading))
		}
		if page.AsOf != "" {
			fmt.Fprintf(&b, "<p class=\"as-of\">As of %s</p>\n", templ.EscapeString(page.AsOf))
		}
		if s.Reserved {
			b.WriteString("<p class=\"reserved\">Reserved or repealed.</p>\n")
		}
		if s.Body != "" {
			fmt.Fprintf(&b, "<p>%s</p>\n", templ.EscapeString(s.Body))
		}
		writeUnits(&b, s.Subsections)

		writeKeys(&b, "Cited by", page.ReferencesTo)
		writeKeys(&b, "Cites", page.ReferencedBy)

		if len(page.History) > 0 {
			b.WriteString("<h3>Versions</h3>\n<table>\n<thead><tr><th>Version</th><th>From</th><th>To</th><th>Current</th></tr></thead>\n<tbody>\n")
			for _, v := range page.History {
				fmt.Fprintf(&b, "<tr><td>%s</td><td>%s</td><td>%s</td><td>%t</td></tr>\n",
					templ.EscapeString(v.ID), year(v.AppliesFromYear), year(v.AppliesToYear), v.IsCurrent)
			}
			b.WriteString("</tbody>\n</table>\n")
		}

		_, err := io.WriteString(w, b.String())
		return err
	}))
}

func writeUnits(b *strings.Builder, units []model.Subsection) {
	if len(units) == 0 {
		return
	}
	b.WriteString("<ul>\n")
	for _, u := range units {
		fmt.Fprintf(b, "<li id=\"%s\"><strong>%s</strong>", templ.EscapeString(u.ID), templ.EscapeString(u.Num))
		if u.Heading != "" {
			fmt.Fprintf(b, " <em>%s</em>", templ.EscapeString(u.Heading))
		}
		if u.Body != "" {
			fmt.Fprintf(b, " %s", templ.EscapeString(u.Body))
		}
		writeUnits(b, u.Subsections)
		b.WriteString("</li>\n")
	}
	b.WriteString("</ul>\n")
}

func writeKeys(b *strings.Builder, label string, keys []model.Key) {
	if len(keys) == 0 {
		return
	}
	fmt.Fprintf(b, "<h3>%s</h3>\n<ul>\n", label)
	for _, k := range keys {
		fmt.Fprintf(b, "<li><a href=\"%s\">%s</a></li>\n", string(sectionHref(k)), templ.EscapeString(k.String()))
	}
	b.WriteString("</ul>\n")
}

func year(y *int) string {
	if y == nil {
		return "open"
	}
	return fmt.Sprint(*y)
}
