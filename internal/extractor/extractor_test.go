package extractor

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"labtree/internal/record"
)

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, data, 0644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestRegistry_Lookup(t *testing.T) {
	r := DefaultRegistry()
	tests := []struct {
		name   string
		file   string
		wantOK bool
	}{
		{name: "csv", file: "run.csv", wantOK: true},
		{name: "upper case", file: "IMG.JPG", wantOK: true},
		{name: "markdown", file: "sop/Nanoindentation.md", wantOK: true},
		{name: "unknown", file: "data.hap", wantOK: false},
		{name: "no extension", file: "README", wantOK: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, ok := r.Lookup(tt.file); ok != tt.wantOK {
				t.Errorf("Lookup(%q) ok = %v, want %v", tt.file, ok, tt.wantOK)
			}
		})
	}
}

func TestRegistry_UnregisteredFileYieldsMeasurement(t *testing.T) {
	p := writeFile(t, "data.hap", []byte{0, 1, 2})
	res, err := DefaultRegistry().Extract(context.Background(), p, nil)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if res.Kind != KindNone || res.Preview != nil {
		t.Errorf("Extract() = %+v, want no preview", res)
	}
	if got := res.Type(); len(got) != 1 || got[0] != "measurement" {
		t.Errorf("Type() = %v", got)
	}
	if res.Meta.MetaVendor == nil || res.Meta.MetaUser == nil {
		t.Error("Extract() should default metadata maps")
	}
}

func TestCSV_Extract(t *testing.T) {
	p := writeFile(t, "sample.csv", []byte("time,force\n0,1.5\n1,2.5\n2,2.0\n"))
	res, err := NewCSV().Extract(context.Background(), p, nil)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if res.Kind != KindLine || res.Kind.Ext() != "svg" {
		t.Errorf("Kind = %q", res.Kind)
	}
	if !bytes.HasPrefix(res.Preview, []byte("<svg")) || !bytes.Contains(res.Preview, []byte("<polyline")) {
		t.Errorf("Preview is not an svg plot: %s", res.Preview)
	}
	if res.Meta.MetaVendor["rows"] != 3 {
		t.Errorf("rows = %v, want 3", res.Meta.MetaVendor["rows"])
	}
	if got := res.Type(); strings.Join(got, ",") != "measurement,csv" {
		t.Errorf("Type() = %v", got)
	}
}

func TestCSV_NoNumbers(t *testing.T) {
	p := writeFile(t, "names.csv", []byte("a,b\nc,d\n"))
	res, err := NewCSV().Extract(context.Background(), p, nil)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if res.Kind != KindNone {
		t.Errorf("Kind = %q, want none", res.Kind)
	}
}

func TestMarkdown_Extract(t *testing.T) {
	src := "# Nanoindentation\n\nPrepare the tip.\n\n## Calibration\n\n- [x] clean\n- [ ] align\n"
	p := writeFile(t, "Nanoindentation.md", []byte(src))
	res, err := NewMarkdown().Extract(context.Background(), p, nil)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if res.Meta.DocType != record.KindProcedure {
		t.Errorf("DocType = %q, want procedure", res.Meta.DocType)
	}
	if res.Meta.MetaVendor["title"] != "Nanoindentation" {
		t.Errorf("title = %v", res.Meta.MetaVendor["title"])
	}
	outline, _ := res.Meta.MetaVendor["outline"].([]string)
	if len(outline) != 2 || outline[1] != "## Calibration" {
		t.Errorf("outline = %v", outline)
	}
	if res.Meta.MetaVendor["tasks"] != 2 || res.Meta.MetaVendor["tasksDone"] != 1 {
		t.Errorf("tasks = %v/%v", res.Meta.MetaVendor["tasksDone"], res.Meta.MetaVendor["tasks"])
	}
	if got := res.Type(); len(got) != 1 || got[0] != "procedure" {
		t.Errorf("Type() = %v", got)
	}
}

func TestMarkdown_RenderHTML(t *testing.T) {
	html, err := NewMarkdown().RenderHTML([]byte("**bold** text"))
	if err != nil {
		t.Fatalf("RenderHTML() error = %v", err)
	}
	if !strings.Contains(string(html), "<strong>bold</strong>") {
		t.Errorf("RenderHTML() = %s", html)
	}
}

func TestImage_Downscales(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 1200, 300))
	for x := 0; x < 1200; x++ {
		src.Set(x, 10, color.RGBA{R: 255, A: 255})
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, src); err != nil {
		t.Fatal(err)
	}
	p := writeFile(t, "grain.png", buf.Bytes())

	res, err := NewImage(KindContours, 600).Extract(context.Background(), p, nil)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if res.Kind != KindContours || res.Kind.Ext() != "png" {
		t.Errorf("Kind = %q", res.Kind)
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(res.Preview))
	if err != nil {
		t.Fatalf("preview does not decode: %v", err)
	}
	if cfg.Width != 600 || cfg.Height != 150 {
		t.Errorf("preview size = %dx%d, want 600x150", cfg.Width, cfg.Height)
	}
	if res.Meta.MetaVendor["width"] != 1200 {
		t.Errorf("width = %v", res.Meta.MetaVendor["width"])
	}
}

func TestLoadRegistry(t *testing.T) {
	cfg := "max_preview_size: 200\nextensions:\n  dat: csv\n  png: photo\n"
	p := writeFile(t, "extractors.yaml", []byte(cfg))

	r, err := LoadRegistry(p)
	if err != nil {
		t.Fatalf("LoadRegistry() error = %v", err)
	}
	if _, ok := r.Lookup("x.dat"); !ok {
		t.Error("configured extension not registered")
	}
	if _, ok := r.Lookup("x.md"); !ok {
		t.Error("default extensions should be kept")
	}
	if e, _ := r.Lookup("x.png"); e.(*Image).kind != KindWaves {
		t.Error("configured extension should override the default")
	}

	bad := writeFile(t, "bad.yaml", []byte("extensions:\n  dat: matlab\n"))
	if _, err := LoadRegistry(bad); !errors.Is(err, ErrUnknownExtractor) {
		t.Errorf("LoadRegistry() error = %v, want ErrUnknownExtractor", err)
	}

	replaced, err := NewRegistryFromConfig(FileConfig{Replace: true, Extensions: map[string]string{"csv": "csv"}})
	if err != nil {
		t.Fatal(err)
	}
	if got := replaced.Extensions(); len(got) != 1 || got[0] != "csv" {
		t.Errorf("Extensions() = %v", got)
	}
}
