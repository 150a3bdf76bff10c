package report

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"

	"flexwta/domain/result"
	apperrors "flexwta/internal/errors"
)

// RenderHTML converts the markdown report into a standalone HTML page
func RenderHTML(title, md string) []byte {
	extensions := parser.CommonExtensions | parser.AutoHeadingIDs
	p := parser.NewWithExtensions(extensions)
	doc := p.Parse([]byte(md))

	opts := html.RendererOptions{Flags: html.CommonFlags}
	renderer := html.NewRenderer(opts)
	body := markdown.Render(doc, renderer)

	page := fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>%s</title>
<style>
body { font-family: sans-serif; max-width: 60em; margin: 2em auto; padding: 0 1em; }
table { border-collapse: collapse; }
th, td { border: 1px solid #ccc; padding: 0.3em 0.6em; text-align: left; }
code { background: #f4f4f4; padding: 0.1em 0.3em; }
</style>
</head>
<body>
%s</body>
</html>
`, title, body)
	return []byte(page)
}

// WriteReportFiles renders one run report into <dir>/report_<experiment>.md
// and .html, returning the written paths.
func WriteReportFiles(dir string, report *result.RunReport) (string, string, error) {
	if report == nil {
		return "", "", apperrors.InvalidInput("report files require a run report")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", apperrors.ExportFailed("failed to create report directory", err)
	}

	md := report.Markdown()
	base := fmt.Sprintf("report_%s", report.Manifest.Experiment)
	mdPath := filepath.Join(dir, base+".md")
	htmlPath := filepath.Join(dir, base+".html")

	if err := os.WriteFile(mdPath, []byte(md), 0o644); err != nil {
		return "", "", apperrors.ExportFailed(fmt.Sprintf("failed to write %s", mdPath), err)
	}
	title := fmt.Sprintf("Replication report: %s", report.Manifest.Experiment)
	if err := os.WriteFile(htmlPath, RenderHTML(title, md), 0o644); err != nil {
		return "", "", apperrors.ExportFailed(fmt.Sprintf("failed to write %s", htmlPath), err)
	}
	return mdPath, htmlPath, nil
}
