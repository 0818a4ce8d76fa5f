package mailer

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
)

const TemplateBillingInvoice = "billingInvoice"

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// Render executes the named template against data.
func Render(name string, data any) (string, error) {
	tmpl := templates.Lookup(name + ".html")
	if tmpl == nil {
		return "", fmt.Errorf("mail template %q not found", name)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render mail template %q: %w", name, err)
	}
	return buf.String(), nil
}
