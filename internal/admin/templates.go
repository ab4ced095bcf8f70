// ABOUTME: Template loading and rendering for admin UI.
// ABOUTME: Embeds HTML templates and provides render helpers.

package admin

import (
	"embed"
	"fmt"
	"html/template"
	"io"
)

//go:embed templates/*.html
var templateFS embed.FS

var (
	layoutTmpl *template.Template
	pageTmpls  map[string]*template.Template
)

// pageDefinitions maps page names to their template files
func getPageDefinitions() map[string]string {
	return map[string]string{
		"dashboard": "templates/dashboard.html",
		"grid":      "templates/grid.html",
		"logs":      "templates/logs.html",
	}
}

var funcs = template.FuncMap{
	"percent": func(f float64) string { return fmt.Sprintf("%.1f%%", f) },
}

// parsePageTemplates creates a map of page templates, each with its own copy of the layout
func parsePageTemplates() map[string]*template.Template {
	templates := make(map[string]*template.Template)
	for name, path := range getPageDefinitions() {
		tmpl := template.Must(layoutTmpl.Clone())
		templates[name] = template.Must(tmpl.ParseFS(templateFS, path))
	}
	return templates
}

func init() {
	layoutTmpl = template.Must(template.New("layout.html").Funcs(funcs).ParseFS(templateFS, "templates/layout.html"))
	pageTmpls = parsePageTemplates()
}

func renderPage(w io.Writer, page string, data any) error {
	tmpl, ok := pageTmpls[page]
	if !ok {
		return fmt.Errorf("unknown page %q", page)
	}
	return tmpl.ExecuteTemplate(w, "layout", data)
}
