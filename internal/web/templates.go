package web

import (
	"embed"
	"html/template"
	"time"
)

//go:embed templates/*.html
var templatesFS embed.FS

// Each page is parsed together with the shared layout so page blocks do not
// collide.
var pages = map[string]*template.Template{
	"index":   parsePage("index.html"),
	"form":    parsePage("form.html"),
	"details": parsePage("details.html"),
	"error":   parsePage("error.html"),
}

var templateFuncs = template.FuncMap{
	"formatTime": func(t time.Time) string {
		return t.UTC().Format("2006-01-02 15:04 MST")
	},
	"formatDue": func(t *time.Time) string {
		if t == nil {
			return "-"
		}
		return t.UTC().Format("2006-01-02 15:04 MST")
	},
	"deref": func(s *string) string {
		if s == nil {
			return ""
		}
		return *s
	},
}

func parsePage(name string) *template.Template {
	return template.Must(template.New(name).Funcs(templateFuncs).
		ParseFS(templatesFS, "templates/layout.html", "templates/partials.html", "templates/"+name))
}
