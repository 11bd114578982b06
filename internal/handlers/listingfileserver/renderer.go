package listingfileserver

import (
	"bytes"
	"html/template"
	"net/url"
	"strings"

	"github.com/dustin/go-humanize"
)

// Renderer turns a directory label and its ordered entry names into a response
// body. Implementations must not do I/O and must depend only on their inputs.
type Renderer interface {
	Render(label string, entries []string) ([]byte, error)
}

// RendererFunc adapts a function to the Renderer interface.
type RendererFunc func(label string, entries []string) ([]byte, error)

func (f RendererFunc) Render(label string, entries []string) ([]byte, error) {
	return f(label, entries)
}

const listingTemplate = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}} {{.Label}}</title>
</head>
<body>
<h1>{{.Title}} {{.Label}}</h1>
<hr>
<ul>
{{- if ne .Label "/"}}
<li><a href="../">../</a></li>
{{- end}}
{{- range .Entries}}
<li><a href="{{.Href}}">{{.Name}}</a></li>
{{- end}}
</ul>
<hr>
<p>{{.Count}}</p>
</body>
</html>
`

var listingTmpl = template.Must(template.New("listing").Parse(listingTemplate))

type listingEntry struct {
	Name string
	Href string
}

// NewHTMLRenderer returns the default renderer: an HTML page with one relative
// link per entry. An empty title defaults to "Index of".
func NewHTMLRenderer(title string) Renderer {
	if title == "" {
		title = "Index of"
	}
	return RendererFunc(func(label string, entries []string) ([]byte, error) {
		items := make([]listingEntry, len(entries))
		for i, name := range entries {
			items[i] = listingEntry{Name: name, Href: entryHref(name)}
		}

		count := humanize.Comma(int64(len(entries))) + " entries"
		if len(entries) == 1 {
			count = "1 entry"
		}

		var buf bytes.Buffer
		err := listingTmpl.Execute(&buf, struct {
			Title   string
			Label   string
			Entries []listingEntry
			Count   string
		}{title, label, items, count})
		if err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	})
}

// entryHref escapes a listed name for use as a link relative to the listed
// directory. A leading "./" keeps names containing ':' from parsing as a scheme.
func entryHref(name string) string {
	dir := strings.HasSuffix(name, "/")
	escaped := url.PathEscape(strings.TrimSuffix(name, "/"))
	if dir {
		escaped += "/"
	}
	return "./" + escaped
}
