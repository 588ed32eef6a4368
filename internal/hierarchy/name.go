// Package hierarchy maps hierarchy records to directory names and paths.
package hierarchy

import (
	"errors"
	"fmt"
	"math"
	"path"
	"strconv"
	"strings"
	"unicode"

	"labtree/internal/record"
)

// MaxOrdinal is the largest ordinal that fits the three digit prefix.
const MaxOrdinal = 999

var (
	// ErrOrdinalOverflow is returned alongside a name whose ordinal does not
	// fit three digits. The name is still usable but no longer sorts correctly.
	ErrOrdinalOverflow = errors.New("ordinal exceeds three digits")
	// ErrInvalidOrdinal is returned for ordinals that are not non-negative integers.
	ErrInvalidOrdinal = errors.New("invalid ordinal")
)

func isWord(r rune) bool {
	return r == '_' || (r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)))
}

// CamelCase deletes whitespace, capitalizes the first character, every
// character following deleted whitespace and every existing capital, lowers
// everything else, then strips non-word characters.
func CamelCase(title string) string {
	var b strings.Builder
	upperNext := true
	for _, r := range title {
		if unicode.IsSpace(r) {
			upperNext = true
			continue
		}
		if upperNext || unicode.IsUpper(r) {
			r = unicode.ToUpper(r)
		} else {
			r = unicode.ToLower(r)
		}
		upperNext = false
		if isWord(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ComposeName returns the directory name of a hierarchy record. Projects use
// the camel-cased title; steps and tasks are prefixed with a zero padded
// ordinal so that lexicographic order equals sibling order.
// An ordinal above MaxOrdinal yields the name together with ErrOrdinalOverflow.
func ComposeName(title string, kind record.Kind, ordinal int) (string, error) {
	if kind == record.KindProject {
		return CamelCase(title), nil
	}
	if ordinal < 0 {
		return "", fmt.Errorf("%w: %d", ErrInvalidOrdinal, ordinal)
	}
	name := fmt.Sprintf("%03d_%s", ordinal, CamelCase(title))
	if ordinal > MaxOrdinal {
		return name, fmt.Errorf("%w: %d", ErrOrdinalOverflow, ordinal)
	}
	return name, nil
}

// ParseOrdinal coerces an ordinal given as a number or numeric string.
func ParseOrdinal(v any) (int, error) {
	switch o := v.(type) {
	case int:
		return o, nil
	case int64:
		return int(o), nil
	case float64:
		if o != math.Trunc(o) {
			return 0, fmt.Errorf("%w: %v", ErrInvalidOrdinal, o)
		}
		return int(o), nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(o))
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidOrdinal, o)
		}
		return n, nil
	}
	return 0, fmt.Errorf("%w: %T", ErrInvalidOrdinal, v)
}

// ParseName splits a step or task directory name into ordinal and title.
func ParseName(dirName string) (ordinal int, title string, ok bool) {
	prefix, rest, found := strings.Cut(dirName, "_")
	if !found || len(prefix) < 3 {
		return 0, dirName, false
	}
	n, err := strconv.Atoi(prefix)
	if err != nil || n < 0 {
		return 0, dirName, false
	}
	return n, rest, true
}

// Parent returns the parent of a slash separated relative path, "" at the top.
func Parent(rel string) string {
	dir := path.Dir(rel)
	if dir == "." || dir == "/" {
		return ""
	}
	return dir
}

// IsWithin reports whether rel equals root or lies below it. An empty root
// contains everything.
func IsWithin(rel, root string) bool {
	if root == "" {
		return true
	}
	return rel == root || strings.HasPrefix(rel, root+"/")
}

// Depth returns the number of path elements in rel.
func Depth(rel string) int {
	if rel == "" {
		return 0
	}
	return strings.Count(rel, "/") + 1
}
