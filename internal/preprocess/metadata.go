package preprocess

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// MissingValue is substituted for any schema field absent from the payload.
const MissingValue float32 = -1

var ErrInvalidMetadata = errors.New("invalid metadata")

// Field is one named slot of a metadata vector.
type Field struct {
	Name    string
	Default float32
}

// Schema fixes the length and order of a metadata vector.
type Schema []Field

// MetadataSchema is the feature layout the multimodal classifier was trained on.
var MetadataSchema = Schema{
	{Name: "smoke", Default: MissingValue},
	{Name: "drink", Default: MissingValue},
	{Name: "background_father", Default: MissingValue},
	{Name: "background_mother", Default: MissingValue},
	{Name: "age", Default: MissingValue},
	{Name: "gender", Default: MissingValue},
	{Name: "skin_cancer_history", Default: MissingValue},
	{Name: "cancer_history", Default: MissingValue},
	{Name: "region", Default: MissingValue},
	{Name: "itch", Default: MissingValue},
	{Name: "grew", Default: MissingValue},
	{Name: "hurt", Default: MissingValue},
	{Name: "changed", Default: MissingValue},
	{Name: "bleed", Default: MissingValue},
	{Name: "elevation", Default: MissingValue},
	{Name: "biopsed", Default: MissingValue},
	{Name: "fitzpatrick", Default: MissingValue},
}

// Names returns the field names in vector order.
func (s Schema) Names() []string {
	names := make([]string, len(s))
	for i, f := range s {
		names[i] = f.Name
	}
	return names
}

// Vector lays out values in schema order. Absent or null fields take the field default.
func (s Schema) Vector(values map[string]any) ([]float32, error) {
	vec := make([]float32, len(s))
	for i, f := range s {
		raw, ok := values[f.Name]
		if !ok || raw == nil {
			vec[i] = f.Default
			continue
		}
		v, err := toFloat(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: field %q: %v", ErrInvalidMetadata, f.Name, err)
		}
		vec[i] = float32(v)
	}
	return vec, nil
}

// ParseMetadata decodes a metadata payload into a MetadataSchema vector.
// The payload may be a JSON object or a JSON string holding one.
func ParseMetadata(raw []byte) ([]float32, error) {
	values, err := DecodeObject(raw)
	if err != nil {
		return nil, err
	}
	return MetadataSchema.Vector(values)
}

// DecodeObject decodes a metadata payload without applying the schema.
// Unknown keys are kept.
func DecodeObject(raw []byte) (map[string]any, error) {
	return decodeObject(raw, 1)
}

func decodeObject(raw []byte, unwrap int) (map[string]any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrInvalidMetadata)
	}

	if trimmed[0] == '"' && unwrap > 0 {
		var inner string
		if err := json.Unmarshal(trimmed, &inner); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidMetadata, err)
		}
		return decodeObject([]byte(inner), unwrap-1)
	}

	var values map[string]any
	if err := json.Unmarshal(trimmed, &values); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMetadata, err)
	}
	if values == nil {
		return nil, fmt.Errorf("%w: expected a JSON object", ErrInvalidMetadata)
	}
	return values, nil
}

func toFloat(v any) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case bool:
		if t {
			return 1, nil
		}
		return 0, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, fmt.Errorf("cannot convert %q to a number", t)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("unsupported value of type %T", v)
	}
}
