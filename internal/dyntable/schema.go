package dyntable

import (
	"strings"

	"github.com/MarkoPoloResearchLab/cmsconsole/internal/model"
)

// FieldKind classifies a column by the value it carries.
type FieldKind int

const (
	FieldKindText FieldKind = iota
	FieldKindImage
	FieldKindVideo
	FieldKindDocument
)

const (
	prefixImage    = "image_"
	prefixVideo    = "video_"
	prefixDocument = "pdf_"

	uploadSuffixImage    = " (Upload Image)"
	uploadSuffixVideo    = " (Upload Video)"
	uploadSuffixDocument = " (Upload PDF)"
)

var kindPrefixes = []struct {
	prefix string
	kind   FieldKind
}{
	{prefix: prefixImage, kind: FieldKindImage},
	{prefix: prefixVideo, kind: FieldKindVideo},
	{prefix: prefixDocument, kind: FieldKindDocument},
}

func (kind FieldKind) String() string {
	switch kind {
	case FieldKindImage:
		return "image"
	case FieldKindVideo:
		return "video"
	case FieldKindDocument:
		return "document"
	default:
		return "text"
	}
}

// IsAsset reports whether the kind refers to an uploaded file.
func (kind FieldKind) IsAsset() bool {
	return kind != FieldKindText
}

// KindOf derives the kind of a column from its name prefix.
func KindOf(field string) FieldKind {
	for _, candidate := range kindPrefixes {
		if strings.HasPrefix(field, candidate.prefix) {
			return candidate.kind
		}
	}
	return FieldKindText
}

// FormatLabel strips one asset prefix, replaces underscores with spaces and upper-cases the result.
func FormatLabel(field string) string {
	trimmed := field
	for _, candidate := range kindPrefixes {
		if strings.HasPrefix(trimmed, candidate.prefix) {
			trimmed = strings.TrimPrefix(trimmed, candidate.prefix)
			break
		}
	}
	return strings.ToUpper(strings.ReplaceAll(trimmed, "_", " "))
}

// FieldLabel is the label shown next to an editable input.
func FieldLabel(field string) string {
	label := FormatLabel(field)
	switch KindOf(field) {
	case FieldKindImage:
		return label + uploadSuffixImage
	case FieldKindVideo:
		return label + uploadSuffixVideo
	case FieldKindDocument:
		return label + uploadSuffixDocument
	default:
		return label
	}
}

// Column is one inferred field.
type Column struct {
	Name  string
	Kind  FieldKind
	Label string
}

// Schema is the ordered set of columns of a fetched page.
type Schema struct {
	Columns []Column
}

// InferSchema takes the columns of the first row. An empty page yields an empty schema.
func InferSchema(rows []model.TableRecord) Schema {
	if len(rows) == 0 {
		return Schema{Columns: []Column{}}
	}
	keys := rows[0].Keys()
	columns := make([]Column, 0, len(keys))
	for _, key := range keys {
		columns = append(columns, Column{Name: key, Kind: KindOf(key), Label: FormatLabel(key)})
	}
	return Schema{Columns: columns}
}

// IsEmpty reports whether no columns are known.
func (schema Schema) IsEmpty() bool {
	return len(schema.Columns) == 0
}

// Names lists the column names in order.
func (schema Schema) Names() []string {
	names := make([]string, 0, len(schema.Columns))
	for _, column := range schema.Columns {
		names = append(names, column.Name)
	}
	return names
}

// Editable lists every column except the record identity.
func (schema Schema) Editable() []Column {
	editable := make([]Column, 0, len(schema.Columns))
	for _, column := range schema.Columns {
		if column.Name == model.RecordIdentifierField {
			continue
		}
		editable = append(editable, column)
	}
	return editable
}

// Column returns the named column.
func (schema Schema) Column(name string) (Column, bool) {
	for _, column := range schema.Columns {
		if column.Name == name {
			return column, true
		}
	}
	return Column{}, false
}
