package catalog

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/MarkoPoloResearchLab/cmsconsole/internal/gateway"
)

var (
	ErrUnknownField = errors.New("catalog: unknown form field")
	ErrNoForm       = errors.New("catalog: no open form")
)

// FieldSet is the fixed shape of a catalog form: text fields sent on every submit and
// file fields sent only when a new file was chosen.
type FieldSet struct {
	TextFields []string
	FileFields []string
}

// CategoryFields is the category form.
var CategoryFields = FieldSet{
	TextFields: []string{
		"category",
		"category_heading",
		"category_description",
		"category_seo_keywords",
		"category_seo_description",
	},
	FileFields: []string{
		"category_banner",
		"category_mobile_banner",
		"category_thumbnail",
		"category_mobile_thumbnail",
		"category_popular_pick_banner",
		"category_mobile_popular_pick_banner",
	},
}

// SubcategoryFields is the subcategory form. category_id is set by the board, not the user.
var SubcategoryFields = FieldSet{
	TextFields: []string{
		fieldCategoryID,
		"sub_category",
		"sub_category_heading",
		"sub_category_description",
		"sub_category_seo_keywords",
		"sub_category_seo_description",
	},
	FileFields: []string{
		"sub_category_banner",
		"sub_category_thumbnail",
		"plp_banner_mobile",
		"collection_banner_mobile",
	},
}

const fieldCategoryID = "category_id"

func (fieldSet FieldSet) hasText(field string) bool {
	for _, candidate := range fieldSet.TextFields {
		if candidate == field {
			return true
		}
	}
	return false
}

func (fieldSet FieldSet) hasFile(field string) bool {
	for _, candidate := range fieldSet.FileFields {
		if candidate == field {
			return true
		}
	}
	return false
}

// FormMode distinguishes creating from editing.
type FormMode int

const (
	FormModeAdd FormMode = iota + 1
	FormModeEdit
)

// FormDraft holds the values of an open category or subcategory form.
// Previews map file fields to the filenames already stored on the backend.
type FormDraft struct {
	Mode     FormMode
	RecordID int64
	Values   map[string]string
	Previews map[string]string
	Files    map[string]gateway.FilePart
	fields   FieldSet
}

func newFormDraft(fieldSet FieldSet, mode FormMode, recordID int64) *FormDraft {
	return &FormDraft{
		Mode:     mode,
		RecordID: recordID,
		Values:   make(map[string]string, len(fieldSet.TextFields)),
		Previews: make(map[string]string, len(fieldSet.FileFields)),
		Files:    make(map[string]gateway.FilePart),
		fields:   fieldSet,
	}
}

// Fields returns the shape of the form.
func (draft *FormDraft) Fields() FieldSet {
	return draft.fields
}

func (draft *FormDraft) set(field string, value string) error {
	if !draft.fields.hasText(field) || field == fieldCategoryID {
		return fmt.Errorf("%w: %s", ErrUnknownField, field)
	}
	draft.Values[field] = value
	return nil
}

func (draft *FormDraft) attach(part gateway.FilePart) error {
	if !draft.fields.hasFile(part.Field) {
		return fmt.Errorf("%w: %s", ErrUnknownField, part.Field)
	}
	if len(part.Content) == 0 {
		return nil
	}
	draft.Files[part.Field] = part
	return nil
}

func (draft *FormDraft) clone() FormDraft {
	copied := FormDraft{
		Mode:     draft.Mode,
		RecordID: draft.RecordID,
		Values:   make(map[string]string, len(draft.Values)),
		Previews: make(map[string]string, len(draft.Previews)),
		Files:    make(map[string]gateway.FilePart, len(draft.Files)),
		fields:   draft.fields,
	}
	for key, value := range draft.Values {
		copied.Values[key] = value
	}
	for key, value := range draft.Previews {
		copied.Previews[key] = value
	}
	for key, value := range draft.Files {
		copied.Files[key] = value
	}
	return copied
}

// payload writes every text field, then the chosen files, in field set order.
func (draft *FormDraft) payload() *gateway.Payload {
	payload := gateway.NewPayload()
	for _, field := range draft.fields.TextFields {
		payload.AddField(field, draft.Values[field])
	}
	for _, field := range draft.fields.FileFields {
		if part, chosen := draft.Files[field]; chosen {
			payload.AddFile(part)
		}
	}
	return payload
}

func formatIdentifier(identifier int64) string {
	return strconv.FormatInt(identifier, 10)
}
