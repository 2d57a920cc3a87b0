package dyntable

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"strings"

	"github.com/MarkoPoloResearchLab/cmsconsole/internal/model"
)

//go:embed templates/*.tmpl
var templateFiles embed.FS

const (
	templateTable        = "table"
	templateForm         = "form"
	templateCellImage    = "cell_image"
	templateCellVideo    = "cell_video"
	templateCellDocument = "cell_document"
	templateCellToggle   = "cell_toggle"
	templateInputAsset   = "input_asset"
	templateInputText    = "input_text"

	acceptImage    = "image/*"
	acceptVideo    = "video/*"
	acceptDocument = "application/pdf"

	formTitleAdd       = "Add Record"
	formTitleEdit      = "Edit Record"
	submitLabelAdd     = "Add Record"
	submitLabelEdit    = "Save Changes"
	StatusLevelSuccess = "success"
	StatusLevelDanger  = "danger"
	StatusLevelInfo    = "info"
)

var parsedTemplates = template.Must(template.New("dyntable").ParseFS(templateFiles, "templates/*.tmpl"))

// Renderer turns table state into HTML fragments.
type Renderer struct {
	assetBaseURL string
	templates    *template.Template
}

// NewRenderer returns a Renderer resolving stored filenames against assetBaseURL.
func NewRenderer(assetBaseURL string) *Renderer {
	return &Renderer{
		assetBaseURL: strings.TrimRight(strings.TrimSpace(assetBaseURL), "/"),
		templates:    parsedTemplates,
	}
}

// AssetURL resolves a stored filename.
func (renderer *Renderer) AssetURL(filename string) string {
	return renderer.assetBaseURL + "/" + strings.TrimLeft(filename, "/")
}

// TableOptions carries the per-view parameters of a table render.
type TableOptions struct {
	ElementID     string
	ActionBase    string
	Title         string
	Layout        Layout
	ReadOnly      bool
	ExportURL     string
	ToggleFields  []string
	CappedFields  map[string]bool
	PendingDelete int64
	HasPending    bool
	Status        string
	StatusLevel   string
}

// CellView is one rendered cell.
type CellView struct {
	Label string
	HTML  template.HTML
}

// RowView is one rendered record.
type RowView struct {
	ID         int64
	Number     int
	Cells      []CellView
	Editable   bool
	ActionBase string
}

// PageLink is one pagination entry.
type PageLink struct {
	Number  int
	Current bool
}

type tableTemplateData struct {
	ElementID        string
	ActionBase       string
	Title            string
	Layout           Layout
	ReadOnly         bool
	ExportURL        string
	Search           string
	Columns          []Column
	Rows             []RowView
	PageCount        int
	Pages            []PageLink
	HasPendingDelete bool
	PendingDelete    int64
	Status           string
	StatusLevel      string
}

type assetTemplateData struct {
	URL   string
	Label string
}

type toggleTemplateData struct {
	Label    string
	Checked  bool
	Disabled bool
	Action   string
}

type assetInputTemplateData struct {
	Name       string
	Label      string
	Accept     string
	PreviewURL string
	Preview    template.HTML
}

type textInputTemplateData struct {
	Name  string
	Label string
	Value string
}

type formTemplateData struct {
	ElementID   string
	ActionBase  string
	Open        bool
	Title       string
	SubmitLabel string
	Inputs      []template.HTML
}

// RenderTable writes the table fragment for state.
func (renderer *Renderer) RenderTable(writer io.Writer, state ListState, options TableOptions) error {
	toggles := make(map[string]bool, len(options.ToggleFields))
	for _, field := range options.ToggleFields {
		toggles[field] = true
	}

	rows := make([]RowView, 0, len(state.Page.Rows))
	for index, record := range state.Page.Rows {
		identifier, _ := record.ID()
		cells := make([]CellView, 0, len(state.Schema.Columns))
		for _, column := range state.Schema.Columns {
			var cellHTML template.HTML
			var cellErr error
			if toggles[column.Name] {
				cellHTML, cellErr = renderer.toggleCell(column, record, identifier, options)
			} else {
				cellHTML, cellErr = renderer.Cell(column, record)
			}
			if cellErr != nil {
				return cellErr
			}
			cells = append(cells, CellView{Label: column.Label, HTML: cellHTML})
		}
		rows = append(rows, RowView{
			ID:         identifier,
			Number:     index + 1,
			Cells:      cells,
			Editable:   !options.ReadOnly,
			ActionBase: options.ActionBase,
		})
	}

	pages := make([]PageLink, 0, state.PageCount)
	for number := 1; number <= state.PageCount; number++ {
		pages = append(pages, PageLink{Number: number, Current: number == state.Page.PageNumber})
	}

	layout := options.Layout
	if layout == "" {
		layout = LayoutLandscape
	}
	return renderer.templates.ExecuteTemplate(writer, templateTable, tableTemplateData{
		ElementID:        options.ElementID,
		ActionBase:       options.ActionBase,
		Title:            options.Title,
		Layout:           layout,
		ReadOnly:         options.ReadOnly,
		ExportURL:        options.ExportURL,
		Search:           state.Search,
		Columns:          state.Schema.Columns,
		Rows:             rows,
		PageCount:        state.PageCount,
		Pages:            pages,
		HasPendingDelete: options.HasPending,
		PendingDelete:    options.PendingDelete,
		Status:           options.Status,
		StatusLevel:      options.StatusLevel,
	})
}

// Cell renders the read-mode value of column for record.
func (renderer *Renderer) Cell(column Column, record model.TableRecord) (template.HTML, error) {
	value := record.Text(column.Name)
	if column.Kind.IsAsset() && strings.TrimSpace(value) == "" {
		return "", nil
	}
	switch column.Kind {
	case FieldKindImage:
		return renderer.execute(templateCellImage, assetTemplateData{URL: renderer.AssetURL(value), Label: column.Label})
	case FieldKindVideo:
		return renderer.execute(templateCellVideo, assetTemplateData{URL: renderer.AssetURL(value), Label: column.Label})
	case FieldKindDocument:
		return renderer.execute(templateCellDocument, assetTemplateData{URL: renderer.AssetURL(value), Label: column.Label})
	default:
		return template.HTML(template.HTMLEscapeString(value)), nil
	}
}

func (renderer *Renderer) toggleCell(column Column, record model.TableRecord, identifier int64, options TableOptions) (template.HTML, error) {
	checked := record.IsTruthy(column.Name)
	next := "1"
	if checked {
		next = "0"
	}
	return renderer.execute(templateCellToggle, toggleTemplateData{
		Label:    column.Label,
		Checked:  checked,
		Disabled: !checked && options.CappedFields[column.Name],
		Action:   fmt.Sprintf("%s/toggle/%d/%s/%s", options.ActionBase, identifier, column.Name, next),
	})
}

// Input renders the edit-mode control of column bound to the draft value.
func (renderer *Renderer) Input(column Column, draft model.TableRecord) (template.HTML, error) {
	label := FieldLabel(column.Name)
	if !column.Kind.IsAsset() {
		return renderer.execute(templateInputText, textInputTemplateData{
			Name:  column.Name,
			Label: label,
			Value: draft.Text(column.Name),
		})
	}

	data := assetInputTemplateData{Name: column.Name, Label: label}
	switch column.Kind {
	case FieldKindImage:
		data.Accept = acceptImage
	case FieldKindVideo:
		data.Accept = acceptVideo
	case FieldKindDocument:
		data.Accept = acceptDocument
	}
	if current := strings.TrimSpace(draft.Text(column.Name)); current != "" {
		preview, previewErr := renderer.Cell(column, draft)
		if previewErr != nil {
			return "", previewErr
		}
		data.PreviewURL = renderer.AssetURL(current)
		data.Preview = preview
	}
	return renderer.execute(templateInputAsset, data)
}

// FormOptions carries the per-view parameters of a form render.
type FormOptions struct {
	ElementID  string
	ActionBase string
}

// RenderForm writes the add/edit dialog. A closed draft renders an empty placeholder.
func (renderer *Renderer) RenderForm(writer io.Writer, schema Schema, draft Draft, open bool, options FormOptions) error {
	data := formTemplateData{
		ElementID:   options.ElementID,
		ActionBase:  options.ActionBase,
		Open:        open,
		Title:       formTitleAdd,
		SubmitLabel: submitLabelAdd,
	}
	if open {
		if draft.Mode == DraftModeEdit {
			data.Title = formTitleEdit
			data.SubmitLabel = submitLabelEdit
		}
		for _, column := range schema.Editable() {
			input, inputErr := renderer.Input(column, draft.Values)
			if inputErr != nil {
				return inputErr
			}
			data.Inputs = append(data.Inputs, input)
		}
	}
	return renderer.templates.ExecuteTemplate(writer, templateForm, data)
}

func (renderer *Renderer) execute(name string, data any) (template.HTML, error) {
	buffer := &bytes.Buffer{}
	if executeErr := renderer.templates.ExecuteTemplate(buffer, name, data); executeErr != nil {
		return "", fmt.Errorf("dyntable: render %s: %w", name, executeErr)
	}
	return template.HTML(buffer.String()), nil
}
