package agent

import (
	"embed"
	"strings"
	"text/template"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var promptTmpl = template.Must(template.ParseFS(templateFS, "templates/*.tmpl"))

const proposeTemplate = "propose.md.tmpl"

type promptData struct {
	Project   string
	Modules   string
	Request   string
	LastError string
}

func renderPrompt(name string, data promptData) (string, error) {
	var b strings.Builder
	if err := promptTmpl.ExecuteTemplate(&b, name, data); err != nil {
		return "", err
	}
	return b.String(), nil
}
