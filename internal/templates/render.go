// Package templates handles HTML template rendering for Datastar SSE responses.
package templates

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

//go:embed fragments/*.html
var embedded embed.FS

var funcMap = template.FuncMap{
	// pct formats a [0,1] score as a whole percentage.
	"pct": func(v float64) string {
		return fmt.Sprintf("%.0f%%", v*100)
	},
	// stars formats a rating with one decimal.
	"stars": func(v float64) string {
		return fmt.Sprintf("%.1f", v)
	},
}

// Renderer executes the card and panel fragments. It is safe for
// concurrent use by SSE streams.
type Renderer struct {
	templates *template.Template
	mu        sync.RWMutex
}

// New creates a renderer from the *.html files in fragmentsDir. An empty
// fragmentsDir uses the built-in fragments.
func New(fragmentsDir string) (*Renderer, error) {
	tmpl, err := parse(fragmentsDir)
	if err != nil {
		return nil, err
	}
	return &Renderer{templates: tmpl}, nil
}

func parse(fragmentsDir string) (*template.Template, error) {
	var fsys fs.FS
	pattern := "*.html"
	if fragmentsDir == "" {
		fsys = embedded
		pattern = "fragments/*.html"
	} else {
		if _, err := os.Stat(fragmentsDir); err != nil {
			return nil, fmt.Errorf("fragments dir: %w", err)
		}
		fsys = os.DirFS(filepath.Clean(fragmentsDir))
	}
	return template.New("").Funcs(funcMap).ParseFS(fsys, pattern)
}

// Render renders a named template to a string.
func (r *Renderer) Render(name string, data any) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var buf bytes.Buffer
	if err := r.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// RenderToBuffer renders a named template to a buffer.
func (r *Renderer) RenderToBuffer(buf *bytes.Buffer, name string, data any) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.templates.ExecuteTemplate(buf, name, data)
}
