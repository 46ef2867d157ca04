// Package record encodes records exchanged with child processes and
// external systems as JSON google.protobuf.Value documents.
package record

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"pipeflow/internal/definition"
)

// Encode serialises a record as single-line compact JSON.
func Encode(rec any) ([]byte, error) {
	v, err := structpb.NewValue(normalize(rec))
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	b, err := protojson.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	// protojson randomises whitespace between releases
	var out bytes.Buffer
	if err := json.Compact(&out, b); err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return out.Bytes(), nil
}

// Decode is the inverse of Encode. Numbers decode as float64.
func Decode(b []byte) (any, error) {
	var v structpb.Value
	if err := protojson.Unmarshal(b, &v); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return v.AsInterface(), nil
}

// normalize converts values structpb cannot represent directly.
func normalize(v any) any {
	switch x := v.(type) {
	case nil, bool, string, []byte,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return x
	case time.Time:
		return x.Format(time.RFC3339Nano)
	case time.Duration:
		return x.String()
	case definition.Ordered:
		return normalize(x.Map())
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, item := range x {
			out[k] = normalize(item)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = normalize(item)
		}
		return out
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = normalize(rv.Index(i).Interface())
		}
		return out
	case reflect.Map:
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[fmt.Sprint(iter.Key().Interface())] = normalize(iter.Value().Interface())
		}
		return out
	case reflect.Pointer:
		if rv.IsNil() {
			return nil
		}
		return normalize(rv.Elem().Interface())
	}
	return fmt.Sprint(v)
}
