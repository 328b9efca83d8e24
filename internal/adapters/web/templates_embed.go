package web

import (
	"embed"
	"html/template"
)

// templatesFS embeds the UI pages so the binary does not depend on the working directory.
//
//go:embed templates/index.html templates/progress.html
var templatesFS embed.FS

func parseTemplates() *template.Template {
	return template.Must(template.ParseFS(templatesFS, "templates/*.html"))
}
