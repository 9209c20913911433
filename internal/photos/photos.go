// Package photos decodes the photo field of listing and bundle records.
//
// The field has been stored in several shapes over the life of the schema and
// old rows keep whatever shape they were written with. Normalize accepts all
// of them and never fails: anything it does not recognise yields an empty list.
package photos

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Shape identifies which historical encoding a photo field uses.
type Shape int

// Known photo field shapes.
const (
	ShapeUnknown Shape = iota
	ShapeStrings       // ["https://...", ...]
	ShapeObjects       // [{"url": "https://..."}, ...]
	ShapeDelimited     // "https://a;https://b"
	ShapeWrapped       // {"photos": <any of the above>}
)

func (s Shape) String() string {
	switch s {
	case ShapeStrings:
		return "strings"
	case ShapeObjects:
		return "objects"
	case ShapeDelimited:
		return "delimited"
	case ShapeWrapped:
		return "wrapped"
	}
	return "unknown"
}

// urlKeys are the keys an object element may carry its URL under.
var urlKeys = []string{"url", "src", "href", "image_url", "imageUrl", "public_url", "publicUrl"}

// wrapperKeys are the keys a wrapper object may hold the photo list under.
var wrapperKeys = []string{"photos", "images", "urls", "items", "data"}

// Field is a decoded photo field: its shape plus the decoded value the shape
// applies to.
type Field struct {
	Shape Shape
	value any
}

// Decode classifies a raw field. Input that is not JSON is treated as a bare
// delimited string, which is how the oldest rows were written.
func Decode(raw []byte) Field {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return Field{Shape: ShapeUnknown}
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return Field{Shape: ShapeDelimited, value: string(raw)}
	}
	return classify(v)
}

func classify(v any) Field {
	switch x := v.(type) {
	case string:
		return Field{Shape: ShapeDelimited, value: x}
	case []any:
		if len(x) == 0 {
			return Field{Shape: ShapeStrings, value: x}
		}
		for _, el := range x {
			if _, ok := el.(string); !ok {
				return Field{Shape: ShapeObjects, value: x}
			}
		}
		return Field{Shape: ShapeStrings, value: x}
	case map[string]any:
		for _, k := range wrapperKeys {
			if inner, ok := x[k]; ok {
				return Field{Shape: ShapeWrapped, value: inner}
			}
		}
	}
	return Field{Shape: ShapeUnknown}
}

// URLs returns the ordered photo URLs held by the field.
func (f Field) URLs() []string {
	return f.urls(1)
}

func (f Field) urls(depth int) []string {
	out := []string{}
	switch f.Shape {
	case ShapeStrings:
		for _, el := range f.value.([]any) {
			if s := strings.TrimSpace(el.(string)); s != "" {
				out = append(out, s)
			}
		}
	case ShapeObjects:
		for _, el := range f.value.([]any) {
			if u := objectURL(el); isHTTP(u) {
				out = append(out, u)
			}
		}
	case ShapeDelimited:
		out = splitDelimited(f.value.(string))
	case ShapeWrapped:
		if depth > 0 {
			inner := classify(f.value)
			if inner.Shape != ShapeWrapped {
				return inner.urls(depth - 1)
			}
		}
	}
	return out
}

// Normalize decodes raw and returns its URLs. It never returns nil.
func Normalize(raw []byte) []string {
	return Decode(raw).URLs()
}

func objectURL(el any) string {
	switch x := el.(type) {
	case map[string]any:
		for _, k := range urlKeys {
			if s, ok := x[k].(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
	case string:
		return strings.TrimSpace(x)
	}
	return ""
}

func splitDelimited(s string) []string {
	out := []string{}
	for _, part := range strings.Split(s, ";") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func isHTTP(s string) bool {
	lower := strings.ToLower(s)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}
