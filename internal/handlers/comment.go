package handlers

import (
	"html/template"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"labtree/internal/contextutil"
)

// Renderer turns markdown into HTML.
type Renderer interface {
	RenderHTML(src []byte) ([]byte, error)
}

// CommentHandler serves the markdown comment of a record as an HTML page.
type CommentHandler struct {
	notebook Notebook
	renderer Renderer
	template *template.Template
}

// commentPageData holds template data for rendered comment pages.
type commentPageData struct {
	Title   string
	ID      string
	Type    string
	Path    string
	Tags    []string
	Content template.HTML
}

// NewCommentHandler creates a new handler for record comments.
func NewCommentHandler(nb Notebook, renderer Renderer) *CommentHandler {
	tmpl := template.Must(template.New("comment").Parse(`<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>{{.Title}} ({{.ID}})</title>
  <style>
    body {
      font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', sans-serif;
      margin: 0 auto;
      padding: 2rem;
      max-width: 900px;
      line-height: 1.7;
    }
    header {
      margin-bottom: 2rem;
      border-bottom: 1px solid #ccd;
      padding-bottom: 1.5rem;
    }
    pre {
      padding: 1rem;
      overflow-x: auto;
      border-radius: 10px;
      background: #f4f4f8;
    }
    .meta {
      color: #667;
      font-size: 0.95rem;
    }
    .tag {
      background: #eef;
      border-radius: 6px;
      padding: 2px 6px;
      margin-right: 4px;
    }
  </style>
</head>
<body>
  <header>
    <h1>{{.Title}}</h1>
    <p class="meta">{{.Type}} &middot; {{.ID}}{{if .Path}} &middot; {{.Path}}{{end}}</p>
    {{if .Tags}}<p>{{range .Tags}}<span class="tag">{{.}}</span>{{end}}</p>{{end}}
  </header>
  <article>{{.Content}}</article>
</body>
</html>`))

	return &CommentHandler{
		notebook: nb,
		renderer: renderer,
		template: tmpl,
	}
}

// ServeHTTP renders the comment of the requested record.
//
// swagger:route GET /api/v1/docs/{id}/comment renderComment
//
// # Render a record comment
//
// ---
// produces:
// - text/html
// responses:
//
//	'200':
//	  description: Rendered comment page
//	'404':
//	  description: No record with this id
func (h *CommentHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		http.Error(w, "id is required", http.StatusBadRequest)
		return
	}

	doc, err := h.notebook.Doc(ctx, id)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			logger.ErrorContext(ctx, "failed to load record", "doc_id", id, "error", err)
		}
		http.Error(w, http.StatusText(status), status)
		return
	}

	htmlContent, err := h.renderer.RenderHTML([]byte(doc.Comment))
	if err != nil {
		logger.ErrorContext(ctx, "failed to render markdown", "doc_id", id, "error", err)
		http.Error(w, "failed to render comment", http.StatusInternalServerError)
		return
	}

	pageData := commentPageData{
		Title:   doc.Name,
		ID:      doc.ID,
		Type:    strings.Join(doc.Type, "/"),
		Path:    doc.Path(),
		Tags:    doc.Tags,
		Content: template.HTML(htmlContent),
	}
	if pageData.Title == "" {
		pageData.Title = doc.ID
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.template.Execute(w, pageData); err != nil {
		logger.ErrorContext(ctx, "failed to execute comment template", "doc_id", id, "error", err)
		http.Error(w, "failed to render comment", http.StatusInternalServerError)
		return
	}
}
