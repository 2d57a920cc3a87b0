package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	// RecordIdentifierField names the immutable identity column present on every table record.
	RecordIdentifierField = "id"
)

var (
	ErrInvalidRecordJSON       = errors.New("invalid_record_json")
	ErrMissingRecordIdentifier = errors.New("missing_record_identifier")
)

// TableRecord is a single backend row. Column order is the order in which the keys were received.
type TableRecord struct {
	keys   []string
	values map[string]any
}

// NewTableRecord builds a record from ordered keys and their values.
// Keys missing from values are stored as nil.
func NewTableRecord(keys []string, values map[string]any) TableRecord {
	record := TableRecord{
		keys:   make([]string, 0, len(keys)),
		values: make(map[string]any, len(keys)),
	}
	for _, key := range keys {
		record.Set(key, values[key])
	}
	return record
}

// Keys returns the record's column names in received order.
func (record TableRecord) Keys() []string {
	keys := make([]string, len(record.keys))
	copy(keys, record.keys)
	return keys
}

// Len reports the number of columns.
func (record TableRecord) Len() int {
	return len(record.keys)
}

// Value returns the raw value stored under key.
func (record TableRecord) Value(key string) (any, bool) {
	if record.values == nil {
		return nil, false
	}
	value, exists := record.values[key]
	return value, exists
}

// Set stores value under key, appending the key when it is new.
func (record *TableRecord) Set(key string, value any) {
	if record.values == nil {
		record.values = make(map[string]any)
	}
	if _, exists := record.values[key]; !exists {
		record.keys = append(record.keys, key)
	}
	record.values[key] = value
}

// Text renders the value stored under key as display text. Absent and null values render empty.
func (record TableRecord) Text(key string) string {
	value, exists := record.Value(key)
	if !exists {
		return ""
	}
	return FormatScalar(value)
}

// ID parses the record identity.
func (record TableRecord) ID() (int64, error) {
	value, exists := record.Value(RecordIdentifierField)
	if !exists || value == nil {
		return 0, ErrMissingRecordIdentifier
	}
	identifier, parseErr := strconv.ParseInt(strings.TrimSpace(FormatScalar(value)), 10, 64)
	if parseErr != nil {
		return 0, fmt.Errorf("%w: %v", ErrMissingRecordIdentifier, parseErr)
	}
	return identifier, nil
}

// IsTruthy reports whether the value under key represents an enabled boolean flag (true, 1, "1", "true").
func (record TableRecord) IsTruthy(key string) bool {
	value, exists := record.Value(key)
	if !exists || value == nil {
		return false
	}
	switch typed := value.(type) {
	case bool:
		return typed
	case json.Number:
		number, parseErr := typed.Float64()
		return parseErr == nil && number != 0
	case float64:
		return typed != 0
	case int:
		return typed != 0
	case int64:
		return typed != 0
	case string:
		normalized := strings.ToLower(strings.TrimSpace(typed))
		return normalized == "1" || normalized == "true"
	default:
		return false
	}
}

// Clone returns a deep copy of the key order and a shallow copy of the values.
func (record TableRecord) Clone() TableRecord {
	return NewTableRecord(record.keys, record.values)
}

// UnmarshalJSON decodes a JSON object while keeping the key order of the payload.
func (record *TableRecord) UnmarshalJSON(data []byte) error {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()

	openingToken, tokenErr := decoder.Token()
	if tokenErr != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRecordJSON, tokenErr)
	}
	if delimiter, ok := openingToken.(json.Delim); !ok || delimiter != '{' {
		return fmt.Errorf("%w: expected object", ErrInvalidRecordJSON)
	}

	decoded := TableRecord{values: make(map[string]any)}
	for decoder.More() {
		keyToken, keyErr := decoder.Token()
		if keyErr != nil {
			return fmt.Errorf("%w: %v", ErrInvalidRecordJSON, keyErr)
		}
		key, ok := keyToken.(string)
		if !ok {
			return fmt.Errorf("%w: non-string key", ErrInvalidRecordJSON)
		}
		var value any
		if valueErr := decoder.Decode(&value); valueErr != nil {
			return fmt.Errorf("%w: %v", ErrInvalidRecordJSON, valueErr)
		}
		decoded.Set(key, value)
	}
	if _, closingErr := decoder.Token(); closingErr != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRecordJSON, closingErr)
	}

	*record = decoded
	return nil
}

// MarshalJSON encodes the record with its original key order.
func (record TableRecord) MarshalJSON() ([]byte, error) {
	buffer := &bytes.Buffer{}
	buffer.WriteByte('{')
	for index, key := range record.keys {
		if index > 0 {
			buffer.WriteByte(',')
		}
		encodedKey, keyErr := json.Marshal(key)
		if keyErr != nil {
			return nil, keyErr
		}
		encodedValue, valueErr := json.Marshal(record.values[key])
		if valueErr != nil {
			return nil, valueErr
		}
		buffer.Write(encodedKey)
		buffer.WriteByte(':')
		buffer.Write(encodedValue)
	}
	buffer.WriteByte('}')
	return buffer.Bytes(), nil
}

// FormatScalar renders a decoded JSON value the way it is shown in a table cell.
func FormatScalar(value any) string {
	switch typed := value.(type) {
	case nil:
		return ""
	case string:
		return typed
	case json.Number:
		return typed.String()
	case bool:
		return strconv.FormatBool(typed)
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	case int:
		return strconv.Itoa(typed)
	case int64:
		return strconv.FormatInt(typed, 10)
	default:
		encoded, encodeErr := json.Marshal(typed)
		if encodeErr != nil {
			return fmt.Sprint(typed)
		}
		return string(encoded)
	}
}
