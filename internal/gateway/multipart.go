package gateway

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"strings"
	"sync"
)

const (
	contentTypeOctetStream = "application/octet-stream"
	percentComplete        = 100
)

// ProgressFunc receives the upload progress of a multipart body as a percentage.
type ProgressFunc func(percent int)

// FilePart is one file attached under a form field.
type FilePart struct {
	Field       string
	FileName    string
	ContentType string
	Content     []byte
}

type formField struct {
	name  string
	value string
}

// Payload is an ordered multipart form body. Fields and files are written in insertion order.
type Payload struct {
	fields   []formField
	files    []FilePart
	progress ProgressFunc
}

// NewPayload returns an empty Payload.
func NewPayload() *Payload {
	return &Payload{}
}

// AddField appends a text field.
func (payload *Payload) AddField(name string, value string) *Payload {
	payload.fields = append(payload.fields, formField{name: name, value: value})
	return payload
}

// AddFile appends a file part. Parts without content are ignored.
func (payload *Payload) AddFile(part FilePart) *Payload {
	if len(part.Content) == 0 || strings.TrimSpace(part.Field) == "" {
		return payload
	}
	payload.files = append(payload.files, part)
	return payload
}

// OnProgress registers a callback invoked while the body streams to the backend.
func (payload *Payload) OnProgress(progress ProgressFunc) *Payload {
	payload.progress = progress
	return payload
}

// FieldNames lists the text field names in insertion order.
func (payload *Payload) FieldNames() []string {
	names := make([]string, 0, len(payload.fields))
	for _, field := range payload.fields {
		names = append(names, field.name)
	}
	return names
}

// FileFields lists the file field names in insertion order.
func (payload *Payload) FileFields() []string {
	names := make([]string, 0, len(payload.files))
	for _, file := range payload.files {
		names = append(names, file.Field)
	}
	return names
}

func (payload *Payload) encode() (io.Reader, int64, string, error) {
	buffer := &bytes.Buffer{}
	writer := multipart.NewWriter(buffer)
	for _, field := range payload.fields {
		if writeErr := writer.WriteField(field.name, field.value); writeErr != nil {
			return nil, 0, "", fmt.Errorf("gateway: write form field %s: %w", field.name, writeErr)
		}
	}
	for _, file := range payload.files {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, escapeQuotes(file.Field), escapeQuotes(file.FileName)))
		contentType := file.ContentType
		if contentType == "" {
			contentType = contentTypeOctetStream
		}
		header.Set(headerContentType, contentType)
		partWriter, partErr := writer.CreatePart(header)
		if partErr != nil {
			return nil, 0, "", fmt.Errorf("gateway: create file part %s: %w", file.Field, partErr)
		}
		if _, copyErr := partWriter.Write(file.Content); copyErr != nil {
			return nil, 0, "", fmt.Errorf("gateway: write file part %s: %w", file.Field, copyErr)
		}
	}
	if closeErr := writer.Close(); closeErr != nil {
		return nil, 0, "", fmt.Errorf("gateway: close multipart body: %w", closeErr)
	}

	var body io.Reader = bytes.NewReader(buffer.Bytes())
	if payload.progress != nil {
		body = newProgressReader(body, int64(buffer.Len()), payload.progress)
	}
	return body, int64(buffer.Len()), writer.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(value string) string {
	return quoteEscaper.Replace(value)
}

type progressReader struct {
	source      io.Reader
	total       int64
	transferred int64
	lastPercent int
	report      ProgressFunc
	once        sync.Once
}

func newProgressReader(source io.Reader, total int64, report ProgressFunc) *progressReader {
	return &progressReader{source: source, total: total, lastPercent: -1, report: report}
}

func (reader *progressReader) Read(buffer []byte) (int, error) {
	reader.once.Do(func() {
		reader.publish(0)
	})
	count, readErr := reader.source.Read(buffer)
	reader.transferred += int64(count)
	if reader.total > 0 {
		reader.publish(int(reader.transferred * percentComplete / reader.total))
	}
	if readErr == io.EOF {
		reader.publish(percentComplete)
	}
	return count, readErr
}

func (reader *progressReader) publish(percent int) {
	if percent > percentComplete {
		percent = percentComplete
	}
	if percent == reader.lastPercent {
		return
	}
	reader.lastPercent = percent
	reader.report(percent)
}
