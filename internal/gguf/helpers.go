package gguf

import (
	"fmt"
	"strconv"
)

// Metadata flattens scalar entries into strings. Arrays are summarized by
// element type and length.
func Metadata(kv map[string]Value) map[string]string {
	out := make(map[string]string, len(kv))
	for k, val := range kv {
		if s, ok := formatValue(val.Value); ok {
			out[k] = s
		}
	}
	return out
}

func formatValue(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case bool:
		return strconv.FormatBool(t), true
	case float32:
		return strconv.FormatFloat(float64(t), 'g', -1, 32), true
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64), true
	case int8:
		return strconv.FormatInt(int64(t), 10), true
	case int16:
		return strconv.FormatInt(int64(t), 10), true
	case int32:
		return strconv.FormatInt(int64(t), 10), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case ArrayValue:
		return fmt.Sprintf("[%d x %s]", len(t.Values), t.ElemType), true
	}
	if u, ok := asUint64(v); ok {
		return strconv.FormatUint(u, 10), true
	}
	return "", false
}
