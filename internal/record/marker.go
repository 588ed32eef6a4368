package record

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// DefaultSuffix names marker and sidecar files when none is configured.
const DefaultSuffix = "eln"

var (
	// ErrMarkerMissing is returned when a directory has no marker file.
	ErrMarkerMissing = errors.New("marker file missing")
	// ErrMarkerCorrupt is returned when a marker file cannot be parsed.
	ErrMarkerCorrupt = errors.New("marker file corrupt")
)

// Files resolves the names of marker and sidecar files for one suffix.
type Files struct {
	Suffix string
}

// NewFiles returns a Files for suffix, falling back to DefaultSuffix.
func NewFiles(suffix string) Files {
	if suffix == "" {
		suffix = DefaultSuffix
	}
	return Files{Suffix: suffix}
}

// MarkerName is the file name of the per-directory marker.
func (f Files) MarkerName() string {
	return ".id_" + f.Suffix + ".json"
}

// sidecarExts are the extensions of generated snapshots and previews.
var sidecarExts = []string{"json", "svg", "jpg", "png"}

// IsInternal reports whether a file name belongs to the tool rather than to
// the user: markers, snapshots and generated previews.
func (f Files) IsInternal(name string) bool {
	if name == f.MarkerName() {
		return true
	}
	for _, ext := range sidecarExts {
		tail := "_" + f.Suffix + "." + ext
		if len(name) > len(tail) && strings.HasSuffix(name, tail) {
			return true
		}
	}
	return false
}

// SnapshotPath returns the sidecar snapshot path for a relative path.
// Directories get <dir>/data_<suffix>.json, files <stem>_<suffix>.json
// where the stem is the file path with dots replaced by underscores.
func (f Files) SnapshotPath(rel string, isDir bool) string {
	if isDir {
		return path.Join(rel, "data_"+f.Suffix+".json")
	}
	return f.sidecarStem(rel) + ".json"
}

// PreviewPath returns the sidecar path for a generated preview with the given extension.
func (f Files) PreviewPath(rel, ext string) string {
	return f.sidecarStem(rel) + "." + ext
}

func (f Files) sidecarStem(rel string) string {
	dir, name := path.Split(rel)
	return dir + strings.ReplaceAll(name, ".", "_") + "_" + f.Suffix
}

// ReadMarker reads the marker file of absDir.
func (f Files) ReadMarker(absDir string) (*Record, error) {
	data, err := os.ReadFile(filepath.Join(absDir, f.MarkerName()))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrMarkerMissing
		}
		return nil, fmt.Errorf("failed to read marker in %s: %w", absDir, err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMarkerCorrupt, absDir, err)
	}
	if rec.ID == "" || len(rec.Type) == 0 {
		return nil, fmt.Errorf("%w: %s: no id or type", ErrMarkerCorrupt, absDir)
	}
	return &rec, nil
}

// WriteMarker writes rec as the marker file of absDir.
func (f Files) WriteMarker(absDir string, rec *Record) error {
	return WriteJSON(filepath.Join(absDir, f.MarkerName()), rec)
}

// WriteJSON serializes rec to absPath.
func WriteJSON(absPath string, rec *Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode record %s: %w", rec.ID, err)
	}
	if err := os.WriteFile(absPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", absPath, err)
	}
	return nil
}

// ReadJSON parses a record previously written with WriteJSON.
func ReadJSON(absPath string) (*Record, error) {
	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, err
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", absPath, err)
	}
	return &rec, nil
}

// Equal reports whether two records serialize identically.
func Equal(a, b *Record) bool {
	ja, errA := json.Marshal(a)
	jb, errB := json.Marshal(b)
	return errA == nil && errB == nil && string(ja) == string(jb)
}
