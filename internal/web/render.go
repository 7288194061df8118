package web

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"go.uber.org/zap"

	"github.com/hpungsan/topicnav/internal/errors"
	"github.com/hpungsan/topicnav/internal/logging"
	"github.com/hpungsan/topicnav/internal/nav"
	"github.com/hpungsan/topicnav/internal/topic"
)

// DiagramFallback replaces the diagram when it cannot be rendered.
const DiagramFallback = "Error rendering diagram. Please try again."

// PageData contains common fields used across all page templates.
type PageData struct {
	Title   string
	Version string
}

// IndexPageData is the template data for the navigator page.
type IndexPageData struct {
	PageData
	View        nav.View
	Diagram     template.HTML
	SummaryHTML template.HTML

	// Flash is a one-off message from the last action, such as a validation error.
	Flash string
}

// DiagramData is the template data for the diagram block.
type DiagramData struct {
	Domains []topic.Domain
	Pairs   []PairRow
	Empty   bool
}

// PairRow is one cell of the distance table.
type PairRow struct {
	A, B     topic.Domain
	Distance string

	// Closeness is 0..100, where 100 is the closest pair on the level.
	Closeness int
}

// ErrorPageData is the template data for the error page.
type ErrorPageData struct {
	PageData
	StatusCode int
	Message    string
}

// Renderer manages template parsing and rendering.
type Renderer struct {
	templates map[string]*template.Template
	version   string
	logger    *zap.Logger
}

// NewRenderer creates a Renderer by parsing templates from the given FS.
func NewRenderer(templateFS fs.FS, version string, logger *zap.Logger) *Renderer {
	funcMap := template.FuncMap{
		"formatTime": formatTime,
		"hasValue":   hasValue,
	}

	// Parse layout as the base template
	layoutTmpl := template.Must(template.New("layout").Funcs(funcMap).ParseFS(templateFS, "layout.html"))

	pages := map[string][]string{
		"index": {"index.html", "diagram.html"},
		"error": {"error.html"},
	}

	templates := make(map[string]*template.Template, len(pages))
	for name, files := range pages {
		t := template.Must(layoutTmpl.Clone())
		template.Must(t.ParseFS(templateFS, files...))
		templates[name] = t
	}

	return &Renderer{
		templates: templates,
		version:   version,
		logger:    logging.OrNop(logger).Named("web"),
	}
}

// renderPage renders a named page template with the given data and HTTP 200 status.
func (r *Renderer) renderPage(w http.ResponseWriter, req *http.Request, name string, data any) {
	r.renderPageStatus(w, req, http.StatusOK, name, data)
}

// renderPageStatus renders a named page template with the given data and HTTP status code.
// For HTMX requests, only the "content" block is rendered to avoid duplicating the layout.
func (r *Renderer) renderPageStatus(w http.ResponseWriter, req *http.Request, status int, name string, data any) {
	block := "layout"
	if req != nil && req.Header.Get("HX-Request") == "true" {
		block = "content"
	}
	r.renderBlock(w, status, name, block, data)
}

// renderBlock renders a specific named block from a page template.
// Used for htmx partial swaps that target a sub-section of the page.
func (r *Renderer) renderBlock(w http.ResponseWriter, status int, page, block string, data any) {
	t, ok := r.templates[page]
	if !ok {
		r.logger.Error("template not found", zap.String("template", page))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, block, data); err != nil {
		r.logger.Error("template execution failed", zap.String("block", block), zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

// renderDiagram renders the diagram block on its own. Any failure, panics included,
// yields the static fallback so the rest of the page still renders.
func (r *Renderer) renderDiagram(v nav.View) (out template.HTML) {
	fallback := template.HTML(`<div class="diagram-error">` + DiagramFallback + `</div>`)
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("diagram rendering panicked", zap.Any("panic", rec))
			out = fallback
		}
	}()

	t, ok := r.templates["index"]
	if !ok {
		return fallback
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "diagram", diagramData(v)); err != nil {
		r.logger.Error("diagram rendering failed", zap.Error(err))
		return fallback
	}
	return template.HTML(buf.String())
}

// diagramData lays the current level out as tiles plus a pairwise distance table.
// Missing distances are shown as unknown and treated as the maximum.
func diagramData(v nav.View) DiagramData {
	out := DiagramData{
		Domains: v.Domains,
		Empty:   v.Empty,
	}
	for i := 0; i < len(v.Domains); i++ {
		for j := i + 1; j < len(v.Domains); j++ {
			a, b := v.Domains[i], v.Domains[j]
			row := PairRow{A: a, B: b, Distance: "?"}
			if d, ok := v.Distances.Get(a.ID, b.ID); ok {
				row.Distance = fmt.Sprintf("%.2f", d)
				if v.MaxDistance > 0 {
					row.Closeness = int(100 - 100*d/v.MaxDistance)
				}
			}
			out.Pairs = append(out.Pairs, row)
		}
	}
	return out
}

// renderError renders an error response with content negotiation.
func (r *Renderer) renderError(w http.ResponseWriter, req *http.Request, err error) {
	navErr, ok := errors.As(err)
	if !ok {
		navErr = errors.NewInternal(err)
	}

	status := navErr.Status
	message := navErr.Message
	if status >= 500 {
		r.logger.Error("request failed", zap.String("path", req.URL.Path), zap.Error(err))
	}

	// HTMX request: return HTML fragment
	if req.Header.Get("HX-Request") == "true" {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(status)
		fmt.Fprintf(w, `<div class="error-message">%s</div>`, template.HTMLEscapeString(message))
		return
	}

	// JSON request
	if strings.Contains(req.Header.Get("Accept"), "application/json") {
		renderJSON(w, status, map[string]any{
			"error": map[string]any{
				"code":    string(navErr.Code),
				"message": message,
				"status":  status,
			},
		})
		return
	}

	// Full error page
	r.renderPageStatus(w, req, status, "error", ErrorPageData{
		PageData: PageData{
			Title:   fmt.Sprintf("Error %d", status),
			Version: r.version,
		},
		StatusCode: status,
		Message:    message,
	})
}

// renderJSON writes a JSON response.
func renderJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// renderMarkdown converts markdown text to HTML using goldmark. Raw HTML in the
// source is not passed through.
func renderMarkdown(md string) template.HTML {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(md), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(md))
	}
	return template.HTML(buf.String())
}

// formatTime formats an RFC 3339 timestamp as "2006-01-02 15:04" UTC. Other values
// are shown as they are.
func formatTime(s string) string {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return s
	}
	return t.UTC().Format("2006-01-02 15:04")
}

// hasValue checks if a pointer value is non-nil.
func hasValue(v any) bool {
	if v == nil {
		return false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		return !rv.IsNil()
	}
	return true
}
