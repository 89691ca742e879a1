package output

import (
	"bytes"
	"sync"
	"text/template"

	"github.com/jamesainslie/mus/pkg/mus/types"
)

// TemplateFormatter formats a report with a Go text/template.
type TemplateFormatter struct {
	templateStr string
	template    *template.Template
	mu          sync.Mutex
}

// templateData wraps Report to add computed fields.
type templateData struct {
	*Report
	TotalSize int64
	Failed    []FileResult
}

// NewTemplateFormatter creates a template formatter for templateStr.
func NewTemplateFormatter(templateStr string) *TemplateFormatter {
	return &TemplateFormatter{templateStr: templateStr}
}

// SetTemplate replaces the template string.
func (f *TemplateFormatter) SetTemplate(templateStr string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.templateStr = templateStr
	f.template = nil
}

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		// Usage: {{bytes .Size}}
		"bytes": types.FormatSize,
		// Usage: {{speed .Status.BytesPerSecond}}
		"speed": types.FormatSpeed,
		// Usage: {{seconds .Status.ElapsedSeconds}}
		"seconds": types.FormatSeconds,
	}
}

// Format writes the formatted output to the buffer.
func (f *TemplateFormatter) Format(w *bytes.Buffer, r *Report) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.template == nil {
		tmpl, err := template.New("output").Funcs(templateFuncs()).Parse(f.templateStr)
		if err != nil {
			return err
		}
		f.template = tmpl
	}

	return f.template.Execute(w, templateData{
		Report:    r,
		TotalSize: r.TotalSize(),
		Failed:    r.Failures(),
	})
}

// defaultTemplate lists failed files.
const defaultTemplate = `{{range .Failed}}{{.Status}}	{{.RelPath}}	{{.Cause}}
{{end}}`

func init() {
	Register("template", func() Formatter {
		return NewTemplateFormatter(defaultTemplate)
	})
}

var _ Formatter = (*TemplateFormatter)(nil)
