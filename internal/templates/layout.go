package templates

import (
	"context"
	"fmt"
	"io"

	"github.com/a-h/templ"
)

// Layout wraps body in the site chrome.
func Layout(title string, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := fmt.Fprintf(w, `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>%s | Law Archive</title>
</head>
<body>
<header><a href="/">Law Archive</a>
<form action="/search" method="get"><input type="search" name="q" placeholder="Search provisions"></form>
</header>
<main>
`, templ.EscapeString(title))
		if err != nil {
			return err
		}
		if err := body.Render(ctx, w); err != nil {
			return err
		}
		_, err = io.WriteString(w, "</main>\n</body>\n</html>\n")
		return err
	})
}

// NotFound renders a plain missing-page message.
func NotFound(message string) templ.Component {
	return Layout("Not found", templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := fmt.Fprintf(w, "<h1>Not found</h1>\n<p>%s</p>\n", templ.EscapeString(message))
		return err
	}))
}
