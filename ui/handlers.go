package ui

import (
	"bytes"
	"html/template"
	"net/http"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"

	"crimestats/internal/analysis"
)

func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	t := a.service.Table()
	a.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"source":  t.Source,
		"version": t.Version.Short(),
		"rows":    len(t.Records),
		"stats":   t.Stats,
	})
}

func (a *App) handleReportMarkdown(w http.ResponseWriter, r *http.Request) {
	report := a.service.Report(r.Context())
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	_, _ = w.Write([]byte(report.Markdown()))
}

type reportPage struct {
	Title  string
	Report *analysis.Report
	Body   template.HTML
}

func (a *App) handleReport(w http.ResponseWriter, r *http.Request) {
	report := a.service.Report(r.Context())
	a.renderTemplate(w, "report.html", reportPage{
		Title:  "Crime Statistics",
		Report: report,
		Body:   renderMarkdown(report.Markdown()),
	})
}

// renderMarkdown converts report markdown to HTML, dropping any raw HTML.
func renderMarkdown(md string) template.HTML {
	p := parser.NewWithExtensions(parser.CommonExtensions)
	renderer := html.NewRenderer(html.RendererOptions{Flags: html.CommonFlags | html.SkipHTML})
	out := markdown.ToHTML([]byte(md), p, renderer)
	return template.HTML(bytes.TrimSpace(out))
}
