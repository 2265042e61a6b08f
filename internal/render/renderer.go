// Package render turns record batches into deliverable artifacts: a Markdown
// body, its HTML conversion and a plain-text summary.
package render

import (
	"bytes"
	"fmt"
	"html/template"
	"os"
	"strings"
	texttemplate "text/template"
	"time"

	"github.com/CosmoTheDev/repowatch/internal/config"
	"github.com/CosmoTheDev/repowatch/models"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// Renderer produces artifacts. It is safe for concurrent use.
type Renderer struct {
	loc    *time.Location
	custom map[models.ContentKind]*texttemplate.Template
	md     goldmark.Markdown
	now    func() time.Time
}

// TemplateData is what custom templates are executed with.
type TemplateData struct {
	Repo     string
	Kind     string
	Type     string // display name, e.g. "Pull Requests"
	Count    int
	Time     string
	Commits  []models.CommitRecord
	Issues   []models.IssueRecord
	Comments []models.CommentRecord
	Runs     []models.ActionRunRecord
}

// New creates a Renderer. Custom template files named in cfg.Templates are
// parsed up front so a broken template fails at startup, not mid-cycle.
func New(cfg config.RenderConfig) (*Renderer, error) {
	loc := time.UTC
	if cfg.Timezone != "" {
		l, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			return nil, fmt.Errorf("loading timezone %q: %w", cfg.Timezone, err)
		}
		loc = l
	}

	r := &Renderer{
		loc:    loc,
		custom: map[models.ContentKind]*texttemplate.Template{},
		md:     goldmark.New(goldmark.WithExtensions(extension.GFM)),
		now:    time.Now,
	}
	for kind, path := range cfg.Templates {
		if path == "" {
			continue
		}
		k := models.ContentKind(strings.ToLower(kind))
		if _, ok := kindTitles[k]; !ok {
			return nil, fmt.Errorf("template for unknown kind %q", kind)
		}
		src, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %s template: %w", kind, err)
		}
		if err := r.SetTemplate(k, string(src)); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// SetTemplate replaces the built-in layout of kind with a text/template.
// The template output is treated as Markdown.
func (r *Renderer) SetTemplate(kind models.ContentKind, src string) error {
	t, err := texttemplate.New(string(kind)).Funcs(texttemplate.FuncMap{
		"truncate":  func(n int, s string) string { return truncate(s, n) },
		"firstLine": firstLine,
		"oneLine":   oneLine,
		"time":      r.when,
	}).Parse(src)
	if err != nil {
		return fmt.Errorf("parsing %s template: %w", kind, err)
	}
	r.custom[kind] = t
	return nil
}

// Render builds the artifact of a batch. An empty batch yields nil.
func (r *Renderer) Render(b models.Batch) (*models.Artifact, error) {
	if b.Len() == 0 {
		return nil, nil
	}

	body := ""
	if t, ok := r.custom[b.Kind]; ok {
		var buf bytes.Buffer
		if err := t.Execute(&buf, r.data(b)); err != nil {
			return nil, fmt.Errorf("executing %s template: %w", b.Kind, err)
		}
		body = buf.String()
	} else {
		body = r.markdown(b)
	}

	html, err := r.html(kindTitles[b.Kind]+" · "+b.Repo, body)
	if err != nil {
		return nil, err
	}
	return &models.Artifact{
		Kind:     b.Kind,
		Repo:     b.Repo,
		Title:    fmt.Sprintf("[%s] %s", b.Repo, plural(b.Len(), "new "+kindNouns[b.Kind])),
		Markdown: body,
		HTML:     html,
		Text:     Summary(b),
	}, nil
}

func (r *Renderer) data(b models.Batch) TemplateData {
	return TemplateData{
		Repo:     b.Repo,
		Kind:     string(b.Kind),
		Type:     kindTitles[b.Kind],
		Count:    b.Len(),
		Time:     r.when(r.now()),
		Commits:  b.Commits,
		Issues:   b.Issues,
		Comments: b.Comments,
		Runs:     b.Runs,
	}
}

var page = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body style="font-family:-apple-system,'Segoe UI',Helvetica,Arial,sans-serif;max-width:640px">
{{.Body}}
<p style="color:#8b949e;font-size:11px">repowatch · {{.Time}}</p>
</body></html>
`))

// html converts the Markdown body and wraps it in a standalone page.
func (r *Renderer) html(title, body string) (string, error) {
	var conv bytes.Buffer
	if err := r.md.Convert([]byte(body), &conv); err != nil {
		return "", fmt.Errorf("converting markdown: %w", err)
	}
	var out bytes.Buffer
	err := page.Execute(&out, struct {
		Title string
		Body  template.HTML
		Time  string
	}{title, template.HTML(conv.String()), r.when(r.now())})
	if err != nil {
		return "", fmt.Errorf("wrapping html: %w", err)
	}
	return out.String(), nil
}
