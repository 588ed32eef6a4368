// Package envelope normalizes raw documents before they are persisted.
package envelope

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"labtree/internal/record"
)

var (
	ratingPattern = regexp.MustCompile(`#\d`)
	tagPattern    = regexp.MustCompile(`#\D\S+`)
	anyTagPattern = regexp.MustCompile(`#\S+`)
	fieldPattern  = regexp.MustCompile(`:([^\s:]+):([^\s:]+):`)
	indentPattern = regexp.MustCompile(`\S|$`)
)

// Keys consumed by Normalize; everything else ends up in Record.Fields.
var envelopeKeys = map[string]bool{
	"_id": true, "_rev": true, "type": true, "branch": true, "name": true,
	"comment": true, "tags": true, "contentHash": true, "date": true,
	"user": true, "revision": true, "path": true, "fields": true,
	"objective": true, "status": true, "qrCode": true,
	"image": true, "imageKind": true, "metaVendor": true, "metaUser": true,
}

// Builder turns raw field maps into records.
type Builder struct {
	user  string
	now   func() time.Time
	newID func() string
}

// NewBuilder creates a Builder stamping records with user.
func NewBuilder(user string) *Builder {
	return &Builder{
		user: user,
		now:  time.Now,
		newID: func() string {
			return strings.ReplaceAll(uuid.NewString(), "-", "")
		},
	}
}

// Normalize builds a record from raw fields. It trims strings, assigns an id
// (idPrefix + "-" + uuid) when absent, stamps the date, separates tags and
// field:value: pairs from the comment and fills kind-specific defaults.
// Tags and fields are only parsed when raw carries no tags, so Normalize is
// idempotent on its own output.
func (b *Builder) Normalize(raw map[string]any, typ []string, idPrefix string) (*record.Record, error) {
	data := make(map[string]any, len(raw))
	for k, v := range raw {
		if s, ok := v.(string); ok {
			v = strings.TrimSpace(s)
		}
		data[k] = v
	}

	rec := &record.Record{
		User:     b.user,
		Revision: 0,
		Date:     b.now().UTC().Format(time.RFC3339Nano),
		Fields:   map[string]any{},
	}

	if t := stringList(data["type"]); len(t) > 0 {
		rec.Type = t
	} else {
		rec.Type = append([]string(nil), typ...)
	}
	if len(rec.Type) == 0 {
		return nil, &record.ValidationError{Field: "type", Message: "must not be empty"}
	}
	if idPrefix == "" {
		idPrefix = record.IDPrefix(rec.Type)
	}

	rec.ID = stringValue(data["_id"])
	if rec.ID == "" {
		rec.ID = idPrefix + "-" + b.newID()
	}
	rec.Rev = stringValue(data["_rev"])
	rec.Name = stringValue(data["name"])
	rec.Comment = stringValue(data["comment"])
	rec.ContentHash = stringValue(data["contentHash"])
	if u := stringValue(data["user"]); u != "" {
		rec.User = u
	}
	if existing, ok := data["fields"].(map[string]any); ok {
		for k, v := range existing {
			rec.Fields[k] = v
		}
	}

	if tags, present := data["tags"]; present && tags != nil {
		if s, ok := tags.(string); ok {
			rec.Tags = splitSpace(s)
		} else {
			rec.Tags = stringList(tags)
		}
	} else {
		rec.Tags, rec.Comment = parseComment(rec.Comment, rec.Fields)
	}
	if rec.Tags == nil {
		rec.Tags = []string{}
	}

	for k, v := range data {
		if !envelopeKeys[k] {
			rec.Fields[k] = v
		}
	}
	if len(rec.Fields) == 0 {
		rec.Fields = nil
	}

	switch rec.Kind() {
	case record.KindProject:
		objective, status := stringValue(data["objective"]), stringValue(data["status"])
		if objective != "" || status != "" {
			rec.ProjectFields = &record.ProjectFields{Objective: objective, Status: status}
		}
	case record.KindSample:
		rec.SampleFields = &record.SampleFields{QRCode: []string{}}
		switch q := data["qrCode"].(type) {
		case string:
			rec.SampleFields.QRCode = splitSpace(q)
		case nil:
		default:
			rec.SampleFields.QRCode = stringList(q)
		}
	case record.KindMeasurement:
		rec.MeasurementFields = &record.MeasurementFields{
			Image:      stringValue(data["image"]),
			ImageKind:  stringValue(data["imageKind"]),
			MetaVendor: mapValue(data["metaVendor"]),
			MetaUser:   mapValue(data["metaUser"]),
		}
	}

	if rec.Kind() == "" {
		return nil, &record.ValidationError{Field: "type", Message: fmt.Sprintf("unknown type %v", rec.Type)}
	}
	return rec, nil
}

// parseComment extracts the rating tag (first #digit), the other tags and the
// field:value: triplets from comment, stores the fields and re-indents the
// remaining text in steps of two spaces.
func parseComment(comment string, fields map[string]any) ([]string, string) {
	tags := []string{}
	if rating := ratingPattern.FindString(comment); rating != "" {
		tags = append(tags, rating)
	}
	tags = append(tags, tagPattern.FindAllString(comment, -1)...)
	comment = anyTagPattern.ReplaceAllString(comment, "")

	for _, m := range fieldPattern.FindAllStringSubmatch(comment, -1) {
		if n, err := strconv.ParseFloat(m[2], 64); err == nil {
			fields[m[1]] = n
		} else {
			fields[m[1]] = m[2]
		}
	}
	comment = fieldPattern.ReplaceAllString(comment, "")

	lines := strings.Split(comment, "\n")
	for i, line := range lines {
		spaces := indentPattern.FindStringIndex(line)[0]
		indent := int(math.Round(float64(spaces)/2.0)) * 2
		lines[i] = strings.Repeat(" ", indent) + strings.TrimSpace(line)
	}
	return tags, strings.Join(lines, "\n")
}

func stringValue(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case nil:
		return ""
	}
	return fmt.Sprint(v)
}

func stringList(v any) []string {
	switch l := v.(type) {
	case []string:
		return append([]string(nil), l...)
	case []any:
		out := make([]string, 0, len(l))
		for _, item := range l {
			out = append(out, stringValue(item))
		}
		return out
	}
	return nil
}

func splitSpace(s string) []string {
	if s == "" {
		return []string{}
	}
	return strings.Split(s, " ")
}

func mapValue(v any) map[string]any {
	if m, ok := v.(map[string]any); ok {
		return m
	}
	return map[string]any{}
}
