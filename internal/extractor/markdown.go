package extractor

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"

	"labtree/internal/record"
)

// Markdown turns markdown files into procedure records. The first heading
// becomes the title; all headings are kept as the outline.
type Markdown struct {
	md goldmark.Markdown
}

// NewMarkdown creates a Markdown extractor.
func NewMarkdown() *Markdown {
	return &Markdown{
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
		),
	}
}

// Extract parses the file and returns procedure metadata without a preview.
func (m *Markdown) Extract(ctx context.Context, absPath string, doc *record.Record) (Result, error) {
	content, err := os.ReadFile(absPath)
	if err != nil {
		return Result{}, err
	}

	root := m.md.Parser().Parse(text.NewReader(content))
	var (
		title    string
		outline  []string
		tasks    int
		finished int
	)
	_ = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch v := n.(type) {
		case *ast.Heading:
			h := nodeText(v, content)
			if title == "" {
				title = h
			}
			outline = append(outline, strings.Repeat("#", v.Level)+" "+h)
		case *ast.ListItem:
			if block := v.FirstChild(); block != nil {
				if cb, ok := block.FirstChild().(*extast.TaskCheckBox); ok {
					tasks++
					if cb.IsChecked {
						finished++
					}
				}
			}
		}
		return ast.WalkContinue, nil
	})

	vendor := map[string]any{"outline": outline}
	if title != "" {
		vendor["title"] = title
	}
	if tasks > 0 {
		vendor["tasks"] = tasks
		vendor["tasksDone"] = finished
	}
	return Result{
		Kind: KindNone,
		Meta: Meta{DocType: record.KindProcedure, MetaVendor: vendor},
	}, nil
}

// RenderHTML renders markdown source as HTML.
func (m *Markdown) RenderHTML(src []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := m.md.Convert(src, &buf); err != nil {
		return nil, fmt.Errorf("failed to render markdown: %w", err)
	}
	return buf.Bytes(), nil
}

func nodeText(n ast.Node, content []byte) string {
	var b strings.Builder
	_ = ast.Walk(n, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch v := node.(type) {
		case *ast.Text:
			b.Write(v.Segment.Value(content))
		case *ast.String:
			b.Write(v.Value)
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(b.String())
}
