package record

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"unicode/utf8"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		typ  []string
		want Kind
	}{
		{name: "project", typ: []string{"text", "project"}, want: KindProject},
		{name: "task", typ: []string{"text", "task"}, want: KindTask},
		{name: "measurement with subtype", typ: []string{"measurement", "csv"}, want: KindMeasurement},
		{name: "sample", typ: []string{"sample"}, want: KindSample},
		{name: "custom", typ: []string{"instrument"}, want: KindCustom},
		{name: "text without level", typ: []string{"text"}, want: ""},
		{name: "empty", typ: nil, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.typ); got != tt.want {
				t.Errorf("KindOf(%v) = %v, want %v", tt.typ, got, tt.want)
			}
		})
	}
}

func TestIDPrefix(t *testing.T) {
	tests := []struct {
		name string
		typ  []string
		want string
	}{
		{name: "text", typ: []string{"text", "step"}, want: "t"},
		{name: "measurement", typ: []string{"measurement", "csv"}, want: "m"},
		{name: "multi-byte first rune", typ: []string{"Überprüfung"}, want: "Ü"},
		{name: "empty first type", typ: []string{""}, want: "x"},
		{name: "no type", typ: nil, want: "x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IDPrefix(tt.typ)
			if got != tt.want {
				t.Errorf("IDPrefix(%v) = %q, want %q", tt.typ, got, tt.want)
			}
			if !utf8.ValidString(got) {
				t.Errorf("IDPrefix(%v) = %q is not valid UTF-8", tt.typ, got)
			}
		})
	}
}

func TestRecord_CurrentIsLastBranch(t *testing.T) {
	rec := &Record{ID: "t-1", Type: TypeFor(KindStep)}
	rec.AppendBranch(Branch{Stack: []string{"t-0"}, Child: 1, Path: "P/001_Old", Op: OpCreate})
	rec.AppendBranch(Branch{Stack: []string{"t-0"}, Child: 1, Path: "P/001_New", Op: OpUpdate})

	if got := rec.Path(); got != "P/001_New" {
		t.Errorf("Path() = %q, want P/001_New", got)
	}
	if !rec.Active() {
		t.Error("Active() = false, want true")
	}

	rec.AppendBranch(Branch{Path: "P/001_New", Op: OpDelete})
	if rec.Active() {
		t.Error("Active() = true after delete branch, want false")
	}
	if len(rec.Branch) != 3 {
		t.Errorf("branch history length = %d, want 3", len(rec.Branch))
	}
	if rec.Branch[2].Stack == nil {
		t.Error("AppendBranch() should normalize nil stack")
	}
}

func TestRecord_Validate(t *testing.T) {
	tests := []struct {
		name    string
		rec     *Record
		wantErr bool
	}{
		{
			name: "valid project",
			rec: &Record{ID: "t-1", Type: TypeFor(KindProject), Name: "P",
				Branch: []Branch{{Stack: []string{}, Path: "P", Op: OpCreate}}},
		},
		{
			name: "project with ordinal",
			rec: &Record{ID: "t-1", Type: TypeFor(KindProject), Name: "P",
				Branch: []Branch{{Stack: []string{}, Child: 3, Path: "P", Op: OpCreate}}},
			wantErr: true,
		},
		{
			name: "step with wrong depth",
			rec: &Record{ID: "t-2", Type: TypeFor(KindStep), Name: "S",
				Branch: []Branch{{Stack: []string{"t-1", "t-9"}, Child: 1, Path: "P/001_S", Op: OpCreate}}},
			wantErr: true,
		},
		{
			name: "measurement without image fields",
			rec:  &Record{ID: "m-1", Type: TypeFor(KindMeasurement)},
			wantErr: true,
		},
		{
			name: "measurement",
			rec:  &Record{ID: "m-1", Type: TypeFor(KindMeasurement, "csv"), MeasurementFields: &MeasurementFields{}},
		},
		{
			name:    "sample carrying objective",
			rec:     &Record{ID: "s-1", Type: TypeFor(KindSample), SampleFields: &SampleFields{}, ProjectFields: &ProjectFields{Objective: "x"}},
			wantErr: true,
		},
		{
			name:    "prefix mismatch",
			rec:     &Record{ID: "m-1", Type: TypeFor(KindSample), SampleFields: &SampleFields{}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rec.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestFiles_MarkerRoundTrip(t *testing.T) {
	dir := t.TempDir()
	files := NewFiles("")

	rec := &Record{
		ID:   "t-abc",
		Type: TypeFor(KindStep),
		Name: "Old Name",
		Tags: []string{},
	}
	rec.AppendBranch(Branch{Stack: []string{"t-root"}, Child: 5, Path: "Project/005_OldName", Op: OpCreate})

	if err := files.WriteMarker(dir, rec); err != nil {
		t.Fatalf("WriteMarker() error = %v", err)
	}
	got, err := files.ReadMarker(dir)
	if err != nil {
		t.Fatalf("ReadMarker() error = %v", err)
	}

	if got.ID != rec.ID || !SameType(got.Type, rec.Type) || got.Path() != rec.Path() {
		t.Errorf("ReadMarker() = (%s, %v, %s), want (%s, %v, %s)",
			got.ID, got.Type, got.Path(), rec.ID, rec.Type, rec.Path())
	}
	if !Equal(got, rec) {
		t.Error("marker round trip changed the record")
	}
}

func TestFiles_ReadMarkerFaults(t *testing.T) {
	files := NewFiles("eln")

	missing := t.TempDir()
	if _, err := files.ReadMarker(missing); !errors.Is(err, ErrMarkerMissing) {
		t.Errorf("ReadMarker() on empty dir error = %v, want ErrMarkerMissing", err)
	}

	corrupt := t.TempDir()
	if err := os.WriteFile(filepath.Join(corrupt, files.MarkerName()), []byte("{not json"), 0644); err != nil {
		t.Fatalf("failed to write marker: %v", err)
	}
	if _, err := files.ReadMarker(corrupt); !errors.Is(err, ErrMarkerCorrupt) {
		t.Errorf("ReadMarker() on corrupt marker error = %v, want ErrMarkerCorrupt", err)
	}
}

func TestFiles_SidecarNames(t *testing.T) {
	files := NewFiles("eln")

	tests := []struct {
		name string
		got  string
		want string
	}{
		{name: "directory snapshot", got: files.SnapshotPath("P/001_Step", true), want: "P/001_Step/data_eln.json"},
		{name: "file snapshot", got: files.SnapshotPath("P/001_Step/sample.csv", false), want: "P/001_Step/sample_csv_eln.json"},
		{name: "preview", got: files.PreviewPath("P/photo.v2.jpg", "jpg"), want: "P/photo_v2_jpg_eln.jpg"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}

	for name, want := range map[string]bool{
		".id_eln.json":         true,
		"data_eln.json":        true,
		"sample_csv_eln.json":  true,
		"sample_csv_eln.svg":   true,
		"sample_png_eln.png":   true,
		"sample.csv":           false,
		"elnotes.txt":          false,
		"run_eln.csv":          false,
		"run_eln.json.bak":     false,
		"_eln.json":            false,
	} {
		if got := files.IsInternal(name); got != want {
			t.Errorf("IsInternal(%q) = %v, want %v", name, got, want)
		}
	}
}
